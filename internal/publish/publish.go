// Package publish fans campaign offers out to channels and relays control
// commands to them.
package publish

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"golang.org/x/sync/errgroup"

	"job_distributor/internal/channel"
	"job_distributor/internal/model"
)

// DefaultTimeout bounds one channel's publish or control call.
const DefaultTimeout = 60 * time.Second

// Store is the persistence the orchestrator needs.
type Store interface {
	GetCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	SetCampaignStatus(ctx context.Context, id int64, status model.CampaignStatus) error
	GetOffer(ctx context.Context, id int64) (*model.Offer, error)
	ListCampaignChannels(ctx context.Context, campaignID int64) ([]model.CampaignChannel, error)
	SetExternalCampaignID(ctx context.Context, campaignID int64, channelID, externalID string) error
	SetCampaignChannelStatus(ctx context.Context, campaignID int64, channelID string, status model.CampaignChannelStatus) error
}

// Channels resolves channel adapters for a user.
type Channels interface {
	Get(ctx context.Context, channelID string, userID int64) (channel.Adapter, error)
}

// Action is a control command for published campaigns.
type Action string

// Control actions.
const (
	ActionPause  Action = "pause"
	ActionResume Action = "resume"
	ActionDelete Action = "delete"
)

// ChannelResult is the outcome on one channel. Skipped is set when the
// channel was not attempted because credentials are missing.
type ChannelResult struct {
	ChannelID string
	Success   bool
	Skipped   bool
	Result    *channel.PublishResult
	Err       error
	Warning   string
}

// Summary aggregates the per-channel outcomes of one fan-out.
type Summary struct {
	CampaignID    int64
	TotalChannels int
	Successful    int
	Failed        int
	Results       []ChannelResult
}

// Orchestrator publishes to and controls channels concurrently.
type Orchestrator struct {
	store    Store
	channels Channels
	timeout  time.Duration
	log      *slog.Logger
}

// New creates an Orchestrator. A zero timeout uses DefaultTimeout.
func New(store Store, channels Channels, timeout time.Duration, log *slog.Logger) *Orchestrator {
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return &Orchestrator{store: store, channels: channels, timeout: timeout, log: log}
}

// Publish sends the offers to every channel at once and waits for all of
// them. A failing channel only marks its own result.
func (o *Orchestrator) Publish(ctx context.Context, c *model.Campaign, offers []model.Offer, channels []string) *Summary {
	byChannel := make(map[string][]model.Offer, len(channels))
	for _, ch := range channels {
		byChannel[ch] = offers
	}
	return o.fanOut(ctx, c, channels, byChannel)
}

// PublishCampaign publishes a stored campaign: every channel receives the
// offers allocated to it. With no channels given the campaign's own channel
// list is used.
func (o *Orchestrator) PublishCampaign(ctx context.Context, campaignID int64, channels []string) (*Summary, error) {
	c, err := o.store.GetCampaign(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("load campaign %d: %w", campaignID, err)
	}
	if len(channels) == 0 {
		channels = c.Channels
	}
	channels = normalizeIDs(channels)
	if len(channels) == 0 {
		return nil, fmt.Errorf("%w: campaign %d", channel.ErrNoChannels, campaignID)
	}

	rows, err := o.store.ListCampaignChannels(ctx, campaignID)
	if err != nil {
		return nil, fmt.Errorf("list campaign channels: %w", err)
	}
	cache := make(map[int64]*model.Offer)
	byChannel := make(map[string][]model.Offer)
	for _, r := range rows {
		if r.Status == model.ChannelArchived {
			continue
		}
		offer, ok := cache[r.OfferID]
		if !ok {
			offer, err = o.store.GetOffer(ctx, r.OfferID)
			if err != nil {
				return nil, fmt.Errorf("load offer %d: %w", r.OfferID, err)
			}
			cache[r.OfferID] = offer
		}
		byChannel[r.ChannelID] = append(byChannel[r.ChannelID], *offer)
	}

	s := o.fanOut(ctx, c, channels, byChannel)
	if s.Successful > 0 && c.Status != model.CampaignActive {
		if err := o.store.SetCampaignStatus(ctx, c.ID, model.CampaignActive); err != nil {
			return s, fmt.Errorf("activate campaign: %w", err)
		}
	}
	return s, nil
}

func normalizeIDs(ids []string) []string {
	out := make([]string, 0, len(ids))
	seen := make(map[string]bool, len(ids))
	for _, id := range ids {
		id = strings.ToLower(strings.TrimSpace(id))
		if id == "" || seen[id] {
			continue
		}
		seen[id] = true
		out = append(out, id)
	}
	return out
}

func (o *Orchestrator) fanOut(ctx context.Context, c *model.Campaign, channels []string, offers map[string][]model.Offer) *Summary {
	results := make([]ChannelResult, len(channels))

	var g errgroup.Group
	for i, ch := range channels {
		g.Go(func() error {
			results[i] = o.publishOne(ctx, c, ch, offers[ch])
			return nil
		})
	}
	_ = g.Wait()

	s := &Summary{CampaignID: c.ID, TotalChannels: len(channels), Results: results}
	for _, r := range results {
		if r.Success {
			s.Successful++
		} else {
			s.Failed++
		}
	}
	o.log.Info("campaign published",
		"campaign_id", c.ID, "channels", s.TotalChannels, "successful", s.Successful, "failed", s.Failed)
	return s
}

func (o *Orchestrator) publishOne(ctx context.Context, c *model.Campaign, channelID string, offers []model.Offer) (res ChannelResult) {
	res.ChannelID = channelID
	log := o.log.With("campaign_id", c.ID, "channel", channelID)
	defer func() {
		if p := recover(); p != nil {
			res = ChannelResult{ChannelID: channelID, Err: fmt.Errorf("publish panicked: %v", p)}
			log.Error("channel publish panicked", "panic", p)
		}
	}()

	a, err := o.channels.Get(ctx, channelID, c.UserID)
	if err != nil {
		res.Err = err
		res.Skipped = errors.Is(err, channel.ErrCredentialMissing)
		log.Warn("channel unavailable", "error", err)
		return res
	}
	if len(offers) == 0 {
		res.Err = fmt.Errorf("no offers allocated to %s", channelID)
		log.Warn("nothing to publish")
		return res
	}

	pctx, cancel := context.WithTimeout(ctx, o.timeout)
	defer cancel()
	pub, err := a.Publish(pctx, c, offers)
	if err != nil {
		res.Err = err
		log.Error("channel publish failed", "error", err)
		return res
	}
	res.Success = true
	res.Result = pub

	if pub.ExternalCampaignID != "" {
		if err := o.store.SetExternalCampaignID(ctx, c.ID, a.ID(), pub.ExternalCampaignID); err != nil {
			res.Warning = fmt.Sprintf("store external id: %v", err)
			log.Error("store external campaign id", "error", err)
		}
	}
	log.Info("channel published", "offers", pub.Published, "external_id", pub.ExternalCampaignID, "simulated", pub.Simulated)
	return res
}
