// Package tracker pulls performance counters back from channels into the
// campaign channel rows and raises threshold alerts.
package tracker

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"math"
	"sync"
	"time"

	"golang.org/x/sync/errgroup"

	"job_distributor/internal/channel"
	"job_distributor/internal/model"
	"job_distributor/internal/storage"
)

// Store is the persistence the tracker needs.
type Store interface {
	ListActiveCampaigns(ctx context.Context) ([]model.Campaign, error)
	ListCampaignChannels(ctx context.Context, campaignID int64) ([]model.CampaignChannel, error)
	UpdateOfferChannelStats(ctx context.Context, campaignID, offerID int64, channelID string, st storage.ChannelStats) error
	UpdateChannelStats(ctx context.Context, id int64, st storage.ChannelStats) error
}

// Channels resolves channel adapters for a user.
type Channels interface {
	Get(ctx context.Context, channelID string, userID int64) (channel.Adapter, error)
}

// CampaignReport is the outcome of one campaign's update.
type CampaignReport struct {
	CampaignID      int64
	ChannelsUpdated int
	ChannelsFailed  int
	Spent           float64
	Applications    int
	Alerts          []Alert
	Errors          []string
}

// Report is the outcome of one tracker run.
type Report struct {
	Campaigns []CampaignReport
	Duration  time.Duration
}

// Tracker updates campaign performance from channel statistics.
type Tracker struct {
	store      Store
	channels   Channels
	sink       AlertSink
	thresholds Thresholds
	now        func() time.Time
	log        *slog.Logger
}

// New creates a Tracker with the default thresholds. A nil sink logs alerts.
func New(store Store, channels Channels, sink AlertSink, log *slog.Logger) *Tracker {
	if log == nil {
		log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	if sink == nil {
		sink = LogSink{Log: log}
	}
	return &Tracker{
		store:      store,
		channels:   channels,
		sink:       sink,
		thresholds: DefaultThresholds,
		now:        func() time.Time { return time.Now().UTC() },
		log:        log,
	}
}

// WithThresholds replaces the alert thresholds.
func (t *Tracker) WithThresholds(th Thresholds) *Tracker {
	t.thresholds = th
	return t
}

// WithClock replaces the clock (useful for testing).
func (t *Tracker) WithClock(now func() time.Time) *Tracker {
	t.now = now
	return t
}

// RunOnce updates every active campaign. A failing campaign is reported and
// does not stop the others.
func (t *Tracker) RunOnce(ctx context.Context) (*Report, error) {
	start := time.Now()
	campaigns, err := t.store.ListActiveCampaigns(ctx)
	if err != nil {
		return nil, fmt.Errorf("list active campaigns: %w", err)
	}

	rep := &Report{Campaigns: make([]CampaignReport, 0, len(campaigns))}
	for i := range campaigns {
		if ctx.Err() != nil {
			return rep, ctx.Err()
		}
		cr := t.UpdateCampaign(ctx, &campaigns[i])
		rep.Campaigns = append(rep.Campaigns, cr)
	}
	rep.Duration = time.Since(start)
	t.log.Info("performance update finished", "campaigns", len(campaigns), "duration", rep.Duration)
	return rep, nil
}

// UpdateCampaign refreshes the published channels of one campaign and
// evaluates its alerts.
func (t *Tracker) UpdateCampaign(ctx context.Context, c *model.Campaign) CampaignReport {
	rep := CampaignReport{CampaignID: c.ID}
	log := t.log.With("campaign_id", c.ID)

	rows, err := t.store.ListCampaignChannels(ctx, c.ID)
	if err != nil {
		rep.Errors = append(rep.Errors, err.Error())
		log.Error("list campaign channels", "error", err)
		return rep
	}

	var order []string
	groups := make(map[string][]*model.CampaignChannel)
	for i := range rows {
		r := &rows[i]
		if r.Status != model.ChannelActive || r.ExternalCampaignID == "" {
			continue
		}
		if _, ok := groups[r.ChannelID]; !ok {
			order = append(order, r.ChannelID)
		}
		groups[r.ChannelID] = append(groups[r.ChannelID], r)
	}
	if len(order) == 0 {
		return rep
	}

	var mu sync.Mutex
	var g errgroup.Group
	for _, ch := range order {
		g.Go(func() error {
			err := t.updateChannel(ctx, c, ch, groups[ch])
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				rep.ChannelsFailed++
				rep.Errors = append(rep.Errors, fmt.Sprintf("%s: %v", ch, err))
				log.Error("channel performance update failed", "channel", ch, "error", err)
				return nil
			}
			rep.ChannelsUpdated++
			return nil
		})
	}
	_ = g.Wait()

	for _, ch := range order {
		for _, r := range groups[ch] {
			rep.Spent += r.BudgetSpent
			rep.Applications += r.ApplicationsReceived
		}
	}
	rep.Spent = math.Round(rep.Spent*100) / 100

	rep.Alerts = evaluate(t.thresholds, c.ID, c.Name, c.Budget, c.TargetApplications, rep.Spent, rep.Applications)
	for _, a := range rep.Alerts {
		if err := t.sink.Send(ctx, a); err != nil {
			log.Error("send alert", "alert", string(a.Kind), "error", err)
		}
	}
	return rep
}

// updateChannel fetches one channel's stats and writes them into its rows.
// Per-offer stats update the matching row; a campaign total is split evenly.
func (t *Tracker) updateChannel(ctx context.Context, c *model.Campaign, channelID string, rows []*model.CampaignChannel) error {
	a, err := t.channels.Get(ctx, channelID, c.UserID)
	if err != nil {
		return err
	}

	q := channel.StatsQuery{
		ExternalCampaignID: rows[0].ExternalCampaignID,
		OfferIDs:           make([]int64, 0, len(rows)),
		From:               c.CreatedAt,
		To:                 t.now(),
	}
	for _, r := range rows {
		q.OfferIDs = append(q.OfferIDs, r.OfferID)
	}
	stats, err := a.FetchStats(ctx, q)
	if err != nil {
		return fmt.Errorf("fetch stats: %w", err)
	}

	if stats.PerOffer != nil {
		for _, r := range rows {
			ps, ok := stats.PerOffer[r.OfferID]
			if !ok {
				continue
			}
			st := storage.ChannelStats{BudgetSpent: ps.Spend, ApplicationsReceived: ps.Applications, CurrentCPA: r.CurrentCPA}
			if ps.Applications > 0 {
				st.CurrentCPA = math.Round(ps.Spend/float64(ps.Applications)*100) / 100
			}
			if err := t.store.UpdateOfferChannelStats(ctx, c.ID, r.OfferID, channelID, st); err != nil {
				return err
			}
			apply(r, st)
		}
		return nil
	}

	n := len(rows)
	for _, r := range rows {
		st := storage.ChannelStats{
			BudgetSpent:          stats.Spend / float64(n),
			ApplicationsReceived: stats.Applications / n,
			CurrentCPA:           stats.CPA,
		}
		if st.CurrentCPA <= 0 {
			st.CurrentCPA = r.CurrentCPA
		}
		if err := t.store.UpdateChannelStats(ctx, r.ID, st); err != nil {
			return err
		}
		apply(r, st)
	}
	return nil
}

func apply(r *model.CampaignChannel, st storage.ChannelStats) {
	r.BudgetSpent = st.BudgetSpent
	r.ApplicationsReceived = st.ApplicationsReceived
	r.CurrentCPA = st.CurrentCPA
}
