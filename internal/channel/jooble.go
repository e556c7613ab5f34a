package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"strconv"
	"strings"
	"time"

	"job_distributor/internal/model"
)

// Jooble campaign states accepted by editCampaign.
const (
	joobleRunning = 0
	joobleStopped = 1
	joobleDeleted = 2
)

// Jooble segmentation rule types.
const (
	ruleTitle   = 1
	ruleCompany = 2
	ruleRegion  = 4
)

const joobleTimezone = "Europe/Madrid"

// Jooble publishes campaigns through the Jooble auction API. Without an API
// key it runs in simulation mode.
type Jooble struct {
	baseURL   string
	apiKey    string
	maxCPA    float64
	client    HTTPClient
	timeout   time.Duration
	simulated bool
	dice      *dice
	now       func() time.Time
	log       *slog.Logger
}

type joobleRule struct {
	Type     int    `json:"type"`
	Value    string `json:"value"`
	Operator string `json:"operator"`
}

type joobleCampaign struct {
	Name              string       `json:"name"`
	DailyBudget       float64      `json:"dailyBudget"`
	MaxCPC            float64      `json:"maxCPC"`
	StartDate         string       `json:"startDate"`
	EndDate           string       `json:"endDate"`
	Status            int          `json:"status"`
	SegmentationRules []joobleRule `json:"segmentationRules"`
	Timezone          string       `json:"timezone"`
}

func newJooble(info Info, values map[string]string, deps adapterDeps) *Jooble {
	base := values["baseUrl"]
	if base == "" {
		country := strings.ToLower(values["country"])
		if country == "" {
			country = "es"
		}
		base = "https://" + country + ".jooble.org/auction/api"
	}
	return &Jooble{
		baseURL:   strings.TrimRight(base, "/"),
		apiKey:    values["apiKey"],
		maxCPA:    info.DefaultCPA,
		client:    deps.client,
		timeout:   deps.timeout,
		simulated: deps.simulated,
		dice:      deps.dice,
		now:       deps.now,
		log:       deps.log,
	}
}

// ID returns "jooble".
func (j *Jooble) ID() string { return "jooble" }

// Publish creates one Jooble campaign covering the offers.
func (j *Jooble) Publish(ctx context.Context, c *model.Campaign, offers []model.Offer) (*PublishResult, error) {
	payload := j.campaignPayload(c, offers)
	if j.simulated {
		j.log.Info("jooble simulation: campaign not sent", "campaign_id", c.ID, "offers", len(offers))
		return &PublishResult{
			ChannelID:          j.ID(),
			Published:          len(offers),
			ExternalCampaignID: "jooble_sim_" + strconv.FormatInt(j.now().UnixMilli(), 10),
			EstimatedCost:      payload.DailyBudget * 30,
			Simulated:          true,
		}, nil
	}

	var resp struct {
		CampaignID json.RawMessage `json:"campaignId"`
	}
	if err := j.call(ctx, "/createCampaign/"+j.apiKey, payload, &resp); err != nil {
		return nil, fmt.Errorf("jooble create campaign: %w", err)
	}
	id := strings.Trim(string(resp.CampaignID), `"`)
	if id == "" || id == "null" {
		return nil, fmt.Errorf("jooble create campaign: response without campaignId")
	}
	return &PublishResult{
		ChannelID:          j.ID(),
		Published:          len(offers),
		ExternalCampaignID: id,
		EstimatedCost:      payload.DailyBudget * 30,
	}, nil
}

// FetchStats reports the totals of one Jooble campaign.
func (j *Jooble) FetchStats(ctx context.Context, q StatsQuery) (*Stats, error) {
	to := q.To
	if to.IsZero() {
		to = j.now()
	}
	from := q.From
	if from.IsZero() {
		from = to.AddDate(0, 0, -7)
	}

	var raw struct {
		Impressions  float64 `json:"impressions"`
		Clicks       float64 `json:"clicks"`
		Applications float64 `json:"applications"`
		Spend        float64 `json:"spend"`
	}
	if j.simulated {
		raw.Impressions = float64(j.dice.between(10000, 60000))
		raw.Clicks = float64(j.dice.between(500, 2500))
		raw.Applications = float64(j.dice.between(20, 120))
		raw.Spend = float64(j.dice.between(200, 1200))
	} else {
		req := map[string]string{"from": dateOnly(from), "to": dateOnly(to), "campaignId": q.ExternalCampaignID}
		if err := j.call(ctx, "/"+j.apiKey, req, &raw); err != nil {
			return nil, fmt.Errorf("jooble stats: %w", err)
		}
	}

	st := &Stats{
		Impressions:  int(raw.Impressions),
		Clicks:       int(raw.Clicks),
		Applications: int(raw.Applications),
		Spend:        raw.Spend,
	}
	st.CPA = cpa(st.Spend, st.Applications)
	st.QualityScore = qualityScore(st.Impressions, st.Clicks, st.Applications)
	return st, nil
}

// Pause stops a Jooble campaign.
func (j *Jooble) Pause(ctx context.Context, externalID string) error {
	return j.setStatus(ctx, externalID, joobleStopped)
}

// Resume restarts a stopped Jooble campaign.
func (j *Jooble) Resume(ctx context.Context, externalID string) error {
	return j.setStatus(ctx, externalID, joobleRunning)
}

// Delete removes a Jooble campaign.
func (j *Jooble) Delete(ctx context.Context, externalID string) error {
	return j.setStatus(ctx, externalID, joobleDeleted)
}

func (j *Jooble) setStatus(ctx context.Context, externalID string, status int) error {
	if j.simulated {
		j.log.Info("jooble simulation: status not sent", "external_id", externalID, "status", status)
		return nil
	}
	req := map[string]any{"campaignId": externalID, "status": status}
	if err := j.call(ctx, "/editCampaign/"+j.apiKey, req, nil); err != nil {
		return fmt.Errorf("jooble edit campaign %s: %w", externalID, err)
	}
	return nil
}

func (j *Jooble) call(ctx context.Context, path string, in, out any) error {
	body, err := json.Marshal(in)
	if err != nil {
		return fmt.Errorf("encode request: %w", err)
	}
	data, err := post(ctx, j.client, j.timeout, j.baseURL+path, "application/json", body)
	if err != nil {
		return err
	}
	if out == nil || len(data) == 0 {
		return nil
	}
	if err := json.Unmarshal(data, out); err != nil {
		return fmt.Errorf("decode response: %w", err)
	}
	return nil
}

func (j *Jooble) campaignPayload(c *model.Campaign, offers []model.Offer) joobleCampaign {
	maxCPA := c.MaxCPA
	if maxCPA <= 0 {
		maxCPA = j.maxCPA
	}
	start := j.now()
	return joobleCampaign{
		Name:              campaignName(c),
		DailyBudget:       math.Floor(c.Budget / 30),
		MaxCPC:            math.Floor(maxCPA * 0.8),
		StartDate:         dateOnly(start),
		EndDate:           dateOnly(start.AddDate(0, 0, 30)),
		Status:            joobleRunning,
		SegmentationRules: segmentationRules(offers),
		Timezone:          joobleTimezone,
	}
}

func segmentationRules(offers []model.Offer) []joobleRule {
	titles := distinct(offers, 5, func(o model.Offer) string { return o.Title })
	companies := distinct(offers, 3, func(o model.Offer) string { return o.CompanyName })
	regions := distinct(offers, 5, func(o model.Offer) string {
		if o.City != "" {
			return o.City
		}
		return o.Region
	})

	rules := make([]joobleRule, 0, len(titles)+len(companies)+1)
	for _, t := range titles {
		rules = append(rules, joobleRule{Type: ruleTitle, Value: t, Operator: "contains"})
	}
	for _, c := range companies {
		rules = append(rules, joobleRule{Type: ruleCompany, Value: c, Operator: "equals"})
	}
	if len(regions) > 0 {
		rules = append(rules, joobleRule{Type: ruleRegion, Value: strings.Join(regions, ","), Operator: "in"})
	}
	return rules
}

func distinct(offers []model.Offer, limit int, field func(model.Offer) string) []string {
	seen := make(map[string]bool)
	var out []string
	for _, o := range offers {
		v := field(o)
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
		if len(out) == limit {
			break
		}
	}
	return out
}

func campaignName(c *model.Campaign) string {
	if c.Name != "" {
		return c.Name
	}
	return "campaign " + strconv.FormatInt(c.ID, 10)
}
