// Package channel reaches external job-distribution channels: a catalog of
// known channels, the adapters that publish offers and report performance,
// and a registry that builds adapters per (channel, user).
package channel

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"time"

	"job_distributor/internal/model"
)

var (
	// ErrCredentialMissing is returned when a channel needs credentials the user has not stored.
	ErrCredentialMissing = errors.New("channel credentials missing")
	// ErrUnknownChannel is returned for channel ids absent from the catalog.
	ErrUnknownChannel = errors.New("unknown channel")
	// ErrNoChannels is returned when none of the requested channels is usable.
	ErrNoChannels = errors.New("no valid channels")
)

// PublishResult is the outcome of publishing a batch of offers on a channel.
type PublishResult struct {
	ChannelID          string
	Published          int
	ExternalCampaignID string
	EstimatedReach     int
	EstimatedCost      float64
	FeedSize           int
	Simulated          bool
}

// StatsQuery selects what to report. Channels that track campaigns use
// ExternalCampaignID; feed channels report per offer.
type StatsQuery struct {
	ExternalCampaignID string
	OfferIDs           []int64
	From               time.Time
	To                 time.Time
}

// OfferStats is the performance of one offer on a channel.
type OfferStats struct {
	Views        int
	Clicks       int
	Applications int
	Spend        float64
}

// Stats is the performance reported by a channel. PerOffer is nil when the
// channel only reports a campaign total.
type Stats struct {
	Impressions  int
	Clicks       int
	Applications int
	Spend        float64
	CPA          float64
	QualityScore float64
	PerOffer     map[int64]OfferStats
}

// Publisher publishes offers of a campaign.
type Publisher interface {
	Publish(ctx context.Context, c *model.Campaign, offers []model.Offer) (*PublishResult, error)
}

// StatsFetcher pulls spend and application counters back from a channel.
type StatsFetcher interface {
	FetchStats(ctx context.Context, q StatsQuery) (*Stats, error)
}

// Controller changes the state of a published campaign on the channel.
type Controller interface {
	Pause(ctx context.Context, externalID string) error
	Resume(ctx context.Context, externalID string) error
	Delete(ctx context.Context, externalID string) error
}

// Adapter is the capability set every channel provides. Adapters may also
// implement Controller.
type Adapter interface {
	ID() string
	Publisher
	StatsFetcher
}

// HTTPClient is the interface for performing HTTP requests.
type HTTPClient interface {
	Do(req *http.Request) (*http.Response, error)
}

const maxResponseSize = 5 * 1024 * 1024

func post(ctx context.Context, client HTTPClient, timeout time.Duration, url, contentType string, body []byte) ([]byte, error) {
	ctx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("create request: %w", err)
	}
	req.Header.Set("Content-Type", contentType)
	req.Header.Set("User-Agent", "JobDistributor/1.0")

	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("post: %w", err)
	}
	defer func() { _ = resp.Body.Close() }()

	data, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("read response: %w", err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("unexpected status %d: %s", resp.StatusCode, truncate(string(data), 200))
	}
	return data, nil
}

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n] + "..."
}
