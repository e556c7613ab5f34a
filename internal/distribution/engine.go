// Package distribution splits a campaign's budget and application target
// across its offers and channels.
package distribution

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"math"
	"strings"
	"time"

	"job_distributor/internal/channel"
	"job_distributor/internal/model"
	"job_distributor/internal/segment"
	"job_distributor/internal/storage"
)

// Allocation thresholds. Falling below a minimum only produces a warning.
const (
	MinBudgetPerOffer = 50
	MinTargetPerOffer = 5
	DefaultManualCPA  = 20
	MaxSelectedOffers = 1000
	HistoryWindow     = 30 * 24 * time.Hour
	bidFactor         = 0.9
)

// Store is the persistence the engine needs.
type Store interface {
	GetCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	GetSegment(ctx context.Context, id int64) (*model.Segment, error)
	ListActiveOffers(ctx context.Context, userID int64) ([]model.Offer, error)
	ChannelHistory(ctx context.Context, channels []string, since time.Time) ([]model.ChannelPerformance, error)
	InsertCampaignChannels(ctx context.Context, rows []model.CampaignChannel) error
}

// OfferShare is one offer's part of a campaign.
type OfferShare struct {
	OfferID int64
	Title   string
	Budget  float64
	Target  int
	CPA     float64
}

// OfferAllocation is the per-offer split of a campaign.
type OfferAllocation struct {
	Mode           model.DistributionMode
	TotalOffers    int
	TotalBudget    float64
	TotalTarget    int
	BudgetPerOffer float64
	TargetPerOffer int
	EstimatedCPA   float64
	Offers         []OfferShare
	Warnings       []string
}

// Result is the outcome of allocating a stored campaign.
type Result struct {
	CampaignID int64
	Offers     OfferAllocation
	Channels   []model.CampaignChannel
	Warnings   []string
}

// Engine computes and stores campaign allocations.
type Engine struct {
	store   Store
	catalog *channel.Catalog
	log     *slog.Logger
	now     func() time.Time
}

// New creates an Engine using the wall clock.
func New(store Store, catalog *channel.Catalog, log *slog.Logger) *Engine {
	return NewWithClock(store, catalog, log, func() time.Time { return time.Now().UTC() })
}

// NewWithClock creates an Engine with a fixed clock (useful for testing).
func NewWithClock(store Store, catalog *channel.Catalog, log *slog.Logger, now func() time.Time) *Engine {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Engine{store: store, catalog: catalog, log: log, now: now}
}

// AllocateOffers splits the campaign across offers. Manual campaigns get
// zeroed shares for the operator to fill in; automatic campaigns are split
// equally.
func (e *Engine) AllocateOffers(c *model.Campaign, offers []model.Offer) OfferAllocation {
	a := OfferAllocation{
		Mode:        c.Mode,
		TotalOffers: len(offers),
		TotalBudget: c.Budget,
		TotalTarget: c.TargetApplications,
		Offers:      make([]OfferShare, 0, len(offers)),
	}

	if c.Mode == model.ModeManual {
		cpa := c.MaxCPA
		if cpa <= 0 {
			cpa = DefaultManualCPA
		}
		for _, o := range offers {
			a.Offers = append(a.Offers, OfferShare{OfferID: o.ID, Title: o.Title, CPA: cpa})
		}
		return a
	}

	a.Mode = model.ModeAutomatic
	if len(offers) == 0 {
		return a
	}
	n := float64(len(offers))
	a.BudgetPerOffer = math.Floor(c.Budget / n)
	a.TargetPerOffer = int(math.Floor(float64(c.TargetApplications) / n))
	if c.TargetApplications > 0 {
		a.EstimatedCPA = c.Budget / float64(c.TargetApplications)
	}

	if a.BudgetPerOffer < MinBudgetPerOffer {
		a.Warnings = append(a.Warnings, fmt.Sprintf("budget per offer %.0f is below the minimum of %d", a.BudgetPerOffer, MinBudgetPerOffer))
	}
	if a.TargetPerOffer < MinTargetPerOffer {
		a.Warnings = append(a.Warnings, fmt.Sprintf("target per offer %d is below the minimum of %d", a.TargetPerOffer, MinTargetPerOffer))
	}
	for _, w := range a.Warnings {
		e.log.Warn("allocation below guideline", "campaign_id", c.ID, "warning", w)
	}

	for _, o := range offers {
		a.Offers = append(a.Offers, OfferShare{
			OfferID: o.ID,
			Title:   o.Title,
			Budget:  a.BudgetPerOffer,
			Target:  a.TargetPerOffer,
			CPA:     a.EstimatedCPA,
		})
	}
	return a
}

// AllocateChannels splits every offer share equally across the known
// channels. Bids come in 10% under the tighter of the channel's expected CPA
// and the campaign cap. Unknown channel ids are skipped.
func (e *Engine) AllocateChannels(ctx context.Context, c *model.Campaign, alloc OfferAllocation, channels []string) ([]model.CampaignChannel, error) {
	var valid []channel.Info
	seen := make(map[string]bool)
	for _, id := range channels {
		info, ok := e.catalog.Get(strings.TrimSpace(id))
		if !ok {
			e.log.Warn("unknown channel skipped", "campaign_id", c.ID, "channel", id)
			continue
		}
		if seen[info.ID] {
			continue
		}
		seen[info.ID] = true
		valid = append(valid, info)
	}
	if len(valid) == 0 {
		return nil, fmt.Errorf("%w: campaign %d", channel.ErrNoChannels, c.ID)
	}

	ids := make([]string, len(valid))
	for i, info := range valid {
		ids[i] = info.ID
	}
	history, err := e.history(ctx, ids)
	if err != nil {
		e.log.Warn("channel history unavailable, using defaults", "campaign_id", c.ID, "error", err)
	}

	n := float64(len(valid))
	now := e.now()
	rows := make([]model.CampaignChannel, 0, len(alloc.Offers)*len(valid))
	for _, share := range alloc.Offers {
		budget := math.Floor(share.Budget / n)
		target := int(math.Floor(float64(share.Target) / n))
		for _, info := range valid {
			perf := history[info.ID]
			est := perf.AvgCPA
			if est <= 0 {
				est = info.DefaultCPA
			}
			maxCPA := c.MaxCPA
			if maxCPA <= 0 {
				maxCPA = est
			}
			rows = append(rows, model.CampaignChannel{
				CampaignID:      c.ID,
				OfferID:         share.OfferID,
				ChannelID:       info.ID,
				AllocatedBudget: budget,
				AllocatedTarget: target,
				CurrentCPA:      est,
				BidAmount:       roundCents(math.Min(est*bidFactor, maxCPA*bidFactor)),
				QualityScore:    perf.AvgQuality,
				ConversionRate:  perf.AvgConversion,
				Status:          model.ChannelPending,
				CreatedAt:       now,
				UpdatedAt:       now,
			})
		}
	}
	return rows, nil
}

func (e *Engine) history(ctx context.Context, channels []string) (map[string]model.ChannelPerformance, error) {
	perf, err := e.store.ChannelHistory(ctx, channels, e.now().Add(-HistoryWindow))
	if err != nil {
		return nil, err
	}
	out := make(map[string]model.ChannelPerformance, len(perf))
	for _, p := range perf {
		out[p.ChannelID] = p
	}
	return out, nil
}

// SelectOffers returns the active offers of the campaign owner matching any
// of its segments, newest first and capped at MaxSelectedOffers.
func (e *Engine) SelectOffers(ctx context.Context, c *model.Campaign) ([]model.Offer, error) {
	filters := make([]model.SegmentFilters, 0, len(c.SegmentIDs))
	for _, id := range c.SegmentIDs {
		s, err := e.store.GetSegment(ctx, id)
		if errors.Is(err, storage.ErrNotFound) {
			e.log.Warn("campaign segment missing", "campaign_id", c.ID, "segment_id", id)
			continue
		}
		if err != nil {
			return nil, fmt.Errorf("load segment %d: %w", id, err)
		}
		filters = append(filters, segment.Clean(s.Filters))
	}
	if len(c.SegmentIDs) > 0 && len(filters) == 0 {
		return nil, nil
	}

	offers, err := e.store.ListActiveOffers(ctx, c.UserID)
	if err != nil {
		return nil, fmt.Errorf("list active offers: %w", err)
	}
	out := offers[:0]
	for i := range offers {
		if !segment.MatchAny(&offers[i], filters) {
			continue
		}
		out = append(out, offers[i])
		if len(out) == MaxSelectedOffers {
			break
		}
	}
	return out, nil
}

// Allocate loads a campaign, selects its offers, computes both allocation
// levels and stores the resulting campaign channel rows.
func (e *Engine) Allocate(ctx context.Context, campaignID int64) (*Result, error) {
	c, err := e.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %d: %w", campaignID, err)
	}

	offers, err := e.SelectOffers(ctx, c)
	if err != nil {
		return nil, err
	}
	res := &Result{CampaignID: c.ID}
	res.Offers = e.AllocateOffers(c, offers)
	res.Warnings = append(res.Warnings, res.Offers.Warnings...)
	if len(offers) == 0 {
		res.Warnings = append(res.Warnings, "no offers match the campaign segments")
		return res, nil
	}

	rows, err := e.AllocateChannels(ctx, c, res.Offers, c.Channels)
	if err != nil {
		return nil, err
	}
	if err := e.store.InsertCampaignChannels(ctx, rows); err != nil {
		return nil, fmt.Errorf("store allocation: %w", err)
	}
	res.Channels = rows

	e.log.Info("campaign allocated",
		"campaign_id", c.ID, "offers", len(offers), "channels", len(rows)/len(offers), "rows", len(rows))
	return res, nil
}

func roundCents(v float64) float64 {
	return math.Round(v*100) / 100
}
