package channel

import (
	"context"
	"fmt"
	"log/slog"
	"net/url"
	"strconv"
	"strings"
	"time"

	"job_distributor/internal/model"
)

const defaultPublisherURL = "https://jobplatform.example"

// feed holds what the feed-based channels share: an optional endpoint that
// receives the generated document, and simulated per-offer reporting.
type feed struct {
	id           string
	feedURL      string
	publisherURL string
	client       HTTPClient
	timeout      time.Duration
	dice         *dice
	now          func() time.Time
	log          *slog.Logger
}

func newFeed(id string, values map[string]string, deps adapterDeps) feed {
	pub := values["publisherUrl"]
	if pub == "" {
		pub = defaultPublisherURL
	}
	return feed{
		id:           id,
		feedURL:      values["feedUrl"],
		publisherURL: strings.TrimRight(pub, "/"),
		client:       deps.client,
		timeout:      deps.timeout,
		dice:         deps.dice,
		now:          deps.now,
		log:          deps.log,
	}
}

// ID returns the channel id.
func (f *feed) ID() string { return f.id }

// push sends a generated feed to the configured endpoint. Without one the
// feed is only built and the channel is expected to pull it later.
func (f *feed) push(ctx context.Context, contentType string, body []byte) error {
	if f.feedURL == "" {
		f.log.Info("feed endpoint not configured, feed kept local", "channel", f.id, "bytes", len(body))
		return nil
	}
	if _, err := post(ctx, f.client, f.timeout, f.feedURL, contentType, body); err != nil {
		return fmt.Errorf("push %s feed: %w", f.id, err)
	}
	return nil
}

// FetchStats reports per-offer counters. Feed channels expose no reporting
// API, so the counters are simulated.
func (f *feed) FetchStats(_ context.Context, q StatsQuery) (*Stats, error) {
	return f.dice.offerStats(q.OfferIDs), nil
}

// Pause drops the campaign from subsequent feeds.
func (f *feed) Pause(_ context.Context, externalID string) error {
	f.log.Info("feed campaign paused", "channel", f.id, "external_id", externalID)
	return nil
}

// Resume returns the campaign to subsequent feeds.
func (f *feed) Resume(_ context.Context, externalID string) error {
	f.log.Info("feed campaign resumed", "channel", f.id, "external_id", externalID)
	return nil
}

// Delete removes the campaign from subsequent feeds.
func (f *feed) Delete(_ context.Context, externalID string) error {
	f.log.Info("feed campaign deleted", "channel", f.id, "external_id", externalID)
	return nil
}

func (f *feed) externalID(c *model.Campaign) string {
	return f.id + "_" + strconv.FormatInt(c.ID, 10)
}

// trackingURL appends attribution parameters to the offer's landing page.
func (f *feed) trackingURL(c *model.Campaign, o model.Offer, medium string) string {
	base := o.ExternalURL
	if base == "" {
		base = o.ApplicationURL
	}
	if base == "" {
		base = f.publisherURL + "/job/" + strconv.FormatInt(o.ID, 10)
	}

	params := url.Values{}
	params.Set("source", f.id)
	params.Set("campaign_id", strconv.FormatInt(c.ID, 10))
	params.Set("offer_id", strconv.FormatInt(o.ID, 10))
	params.Set("utm_source", f.id)
	params.Set("utm_medium", medium)
	params.Set("utm_campaign", utmCampaign(c))

	u, err := url.Parse(base)
	if err != nil {
		return base + "?" + params.Encode()
	}
	q := u.Query()
	for k, v := range params {
		q[k] = v
	}
	u.RawQuery = q.Encode()
	return u.String()
}

func utmCampaign(c *model.Campaign) string {
	if c.Name == "" {
		return "job_distribution"
	}
	return strings.Join(strings.Fields(strings.ToLower(c.Name)), "_")
}

func orDefault(s, def string) string {
	if strings.TrimSpace(s) == "" {
		return def
	}
	return s
}

func isoDate(t *time.Time, now time.Time) string {
	if t == nil {
		return now.UTC().Format(time.RFC3339)
	}
	return t.UTC().Format(time.RFC3339)
}

func formatMoney(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}
