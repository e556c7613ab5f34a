package tracker

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"
	"github.com/google/go-cmp/cmp/cmpopts"

	"job_distributor/internal/channel"
	"job_distributor/internal/model"
	"job_distributor/internal/storage"
)

var fixedNow = time.Date(2024, 6, 1, 12, 0, 0, 0, time.UTC)

func discard() *slog.Logger { return slog.New(slog.NewTextHandler(io.Discard, nil)) }

type fakeStore struct {
	mu        sync.Mutex
	campaigns []model.Campaign
	rows      []model.CampaignChannel
	listCalls atomic.Int32

	// block, when set, holds every ListActiveCampaigns call until closed.
	block       chan struct{}
	inFlight    atomic.Int32
	maxInFlight atomic.Int32
}

func (s *fakeStore) ListActiveCampaigns(context.Context) ([]model.Campaign, error) {
	s.listCalls.Add(1)
	n := s.inFlight.Add(1)
	defer s.inFlight.Add(-1)
	for {
		m := s.maxInFlight.Load()
		if n <= m || s.maxInFlight.CompareAndSwap(m, n) {
			break
		}
	}
	if s.block != nil {
		<-s.block
	}
	return s.campaigns, nil
}

func (s *fakeStore) ListCampaignChannels(_ context.Context, id int64) ([]model.CampaignChannel, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var out []model.CampaignChannel
	for _, r := range s.rows {
		if r.CampaignID == id {
			out = append(out, r)
		}
	}
	return out, nil
}

func (s *fakeStore) UpdateOfferChannelStats(_ context.Context, campaignID, offerID int64, ch string, st storage.ChannelStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		r := &s.rows[i]
		if r.CampaignID == campaignID && r.OfferID == offerID && r.ChannelID == ch {
			r.BudgetSpent, r.ApplicationsReceived, r.CurrentCPA = st.BudgetSpent, st.ApplicationsReceived, st.CurrentCPA
		}
	}
	return nil
}

func (s *fakeStore) UpdateChannelStats(_ context.Context, id int64, st storage.ChannelStats) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for i := range s.rows {
		r := &s.rows[i]
		if r.ID == id {
			r.BudgetSpent, r.ApplicationsReceived, r.CurrentCPA = st.BudgetSpent, st.ApplicationsReceived, st.CurrentCPA
		}
	}
	return nil
}

type fakeAdapter struct {
	id    string
	stats *channel.Stats
	err   error

	mu      sync.Mutex
	queries []channel.StatsQuery
}

func (a *fakeAdapter) ID() string { return a.id }

func (a *fakeAdapter) Publish(context.Context, *model.Campaign, []model.Offer) (*channel.PublishResult, error) {
	return nil, errors.New("not used")
}

func (a *fakeAdapter) FetchStats(_ context.Context, q channel.StatsQuery) (*channel.Stats, error) {
	a.mu.Lock()
	a.queries = append(a.queries, q)
	a.mu.Unlock()
	if a.err != nil {
		return nil, a.err
	}
	return a.stats, nil
}

type fakeChannels map[string]*fakeAdapter

func (f fakeChannels) Get(_ context.Context, id string, _ int64) (channel.Adapter, error) {
	a, ok := f[id]
	if !ok {
		return nil, channel.ErrUnknownChannel
	}
	return a, nil
}

type recordSink struct {
	mu     sync.Mutex
	alerts []Alert
}

func (s *recordSink) Send(_ context.Context, a Alert) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.alerts = append(s.alerts, a)
	return nil
}

func fixture() (*fakeStore, fakeChannels) {
	created := fixedNow.AddDate(0, 0, -10)
	store := &fakeStore{
		campaigns: []model.Campaign{{
			ID: 7, UserID: 3, Name: "Summer", Budget: 500, TargetApplications: 100,
			Status: model.CampaignActive, CreatedAt: created,
		}},
		rows: []model.CampaignChannel{
			{ID: 1, CampaignID: 7, OfferID: 1, ChannelID: "jooble", Status: model.ChannelActive, ExternalCampaignID: "J-1", CurrentCPA: 9},
			{ID: 2, CampaignID: 7, OfferID: 2, ChannelID: "jooble", Status: model.ChannelActive, ExternalCampaignID: "J-1", CurrentCPA: 9},
			{ID: 3, CampaignID: 7, OfferID: 1, ChannelID: "talent", Status: model.ChannelActive, ExternalCampaignID: "talent_7", CurrentCPA: 10.8},
			{ID: 4, CampaignID: 7, OfferID: 2, ChannelID: "talent", Status: model.ChannelActive, ExternalCampaignID: "talent_7", BudgetSpent: 5, CurrentCPA: 10.8},
			{ID: 5, CampaignID: 7, OfferID: 1, ChannelID: "linkedin", Status: model.ChannelPending, BudgetSpent: 1000},
		},
	}
	channels := fakeChannels{
		"jooble": {id: "jooble", stats: &channel.Stats{Spend: 300, Applications: 21, CPA: 15}},
		"talent": {id: "talent", stats: &channel.Stats{PerOffer: map[int64]channel.OfferStats{
			1: {Spend: 40, Applications: 4},
		}}},
	}
	return store, channels
}

func TestRunOnceUpdatesRows(t *testing.T) {
	store, channels := fixture()
	sink := &recordSink{}
	tr := New(store, channels, sink, discard()).WithClock(func() time.Time { return fixedNow })

	rep, err := tr.RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}

	type counters struct {
		ID    int64
		Spent float64
		Apps  int
		CPA   float64
	}
	var got []counters
	for _, r := range store.rows {
		got = append(got, counters{r.ID, r.BudgetSpent, r.ApplicationsReceived, r.CurrentCPA})
	}
	want := []counters{
		{1, 150, 10, 15},
		{2, 150, 10, 15},
		{3, 40, 4, 10},
		{4, 5, 0, 10.8},
		{5, 1000, 0, 0},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("rows mismatch (-want +got):\n%s", diff)
	}

	wantRep := &Report{Campaigns: []CampaignReport{{
		CampaignID:      7,
		ChannelsUpdated: 2,
		Spent:           345,
		Applications:    24,
		Alerts: []Alert{{
			Kind: AlertLowPerformance, CampaignID: 7, Campaign: "Summer",
			Ratio: 0.24, Applications: 24, Target: 100,
		}},
	}}}
	if diff := cmp.Diff(wantRep, rep, cmpopts.IgnoreFields(Report{}, "Duration"), cmpopts.EquateApprox(0, 1e-9)); diff != "" {
		t.Errorf("report mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff(rep.Campaigns[0].Alerts, sink.alerts); diff != "" {
		t.Errorf("sink mismatch (-want +got):\n%s", diff)
	}

	q := channels["jooble"].queries
	wantQ := []channel.StatsQuery{{
		ExternalCampaignID: "J-1",
		OfferIDs:           []int64{1, 2},
		From:               fixedNow.AddDate(0, 0, -10),
		To:                 fixedNow,
	}}
	if diff := cmp.Diff(wantQ, q); diff != "" {
		t.Errorf("query mismatch (-want +got):\n%s", diff)
	}
}

func TestRunOnceIsolatesFailingChannel(t *testing.T) {
	store, channels := fixture()
	channels["talent"].err = errors.New("feed down")

	rep, err := New(store, channels, &recordSink{}, discard()).RunOnce(context.Background())
	if err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	cr := rep.Campaigns[0]
	if cr.ChannelsUpdated != 1 || cr.ChannelsFailed != 1 {
		t.Errorf("updated/failed = %d/%d, want 1/1", cr.ChannelsUpdated, cr.ChannelsFailed)
	}
	if diff := cmp.Diff([]string{"talent: fetch stats: feed down"}, cr.Errors); diff != "" {
		t.Errorf("errors mismatch (-want +got):\n%s", diff)
	}
	if store.rows[0].BudgetSpent != 150 {
		t.Errorf("jooble row not updated: %+v", store.rows[0])
	}
}

func TestRunOnceCPAFallsBackToRow(t *testing.T) {
	store, channels := fixture()
	channels["jooble"].stats = &channel.Stats{Spend: 10, Applications: 1}

	if _, err := New(store, channels, nil, discard()).RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	r := store.rows[0]
	if r.BudgetSpent != 5 || r.ApplicationsReceived != 0 || r.CurrentCPA != 9 {
		t.Errorf("row = %+v, want spent 5, apps 0, cpa 9", r)
	}
}

func TestEvaluate(t *testing.T) {
	tests := []struct {
		name   string
		budget float64
		target int
		spent  float64
		apps   int
		want   []AlertKind
	}{
		{"healthy", 100, 10, 50, 8, nil},
		{"warning", 100, 10, 80, 8, []AlertKind{AlertBudgetWarning}},
		{"critical", 100, 10, 95, 8, []AlertKind{AlertBudgetCritical}},
		{"critical and low", 100, 10, 120, 2, []AlertKind{AlertBudgetCritical, AlertLowPerformance}},
		{"half target is fine", 100, 10, 10, 5, nil},
		{"no budget or target", 0, 0, 500, 0, nil},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			var got []AlertKind
			for _, a := range evaluate(DefaultThresholds, 1, "c", tt.budget, tt.target, tt.spent, tt.apps) {
				got = append(got, a.Kind)
			}
			if diff := cmp.Diff(tt.want, got); diff != "" {
				t.Errorf("alerts mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAlertMessage(t *testing.T) {
	a := Alert{Kind: AlertBudgetWarning, CampaignID: 7, Campaign: "Summer", Ratio: 0.85, Spent: 425, Budget: 500}
	want := "Campaign 7 (Summer): 85.0% of budget used (425.00 of 500.00)"
	if got := a.Message(); got != want {
		t.Errorf("Message() = %q, want %q", got, want)
	}
}

func TestSinks(t *testing.T) {
	a, b := &recordSink{}, &recordSink{}
	if err := (Sinks{a, LogSink{Log: discard()}, b}).Send(context.Background(), Alert{Kind: AlertBudgetCritical}); err != nil {
		t.Fatalf("Send: %v", err)
	}
	if len(a.alerts) != 1 || len(b.alerts) != 1 {
		t.Errorf("alerts delivered = %d/%d, want 1/1", len(a.alerts), len(b.alerts))
	}
}

func TestCronRunsImmediately(t *testing.T) {
	store, channels := fixture()
	c := NewCron(New(store, channels, &recordSink{}, discard()), "@every 1h", discard())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}
	deadline := time.Now().Add(2 * time.Second)
	for store.listCalls.Load() == 0 && time.Now().Before(deadline) {
		time.Sleep(10 * time.Millisecond)
	}
	c.Stop()
	if n := store.listCalls.Load(); n != 1 {
		t.Errorf("runs = %d, want 1", n)
	}
}

func TestCronSkipsOverlappingRuns(t *testing.T) {
	store, channels := fixture()
	store.block = make(chan struct{})
	c := NewCron(New(store, channels, &recordSink{}, discard()), "@every 1s", discard())
	if err := c.Start(context.Background()); err != nil {
		t.Fatalf("Start: %v", err)
	}

	// Ticks at 1s and 2s fire while the first run is still blocked.
	time.Sleep(2500 * time.Millisecond)
	close(store.block)
	c.Stop()

	if n := store.maxInFlight.Load(); n != 1 {
		t.Errorf("concurrent runs = %d, want 1", n)
	}
	if n := store.listCalls.Load(); n != 1 {
		t.Errorf("runs = %d, want the skipped ticks to stay skipped", n)
	}
}

func TestCronRejectsBadSpec(t *testing.T) {
	c := NewCron(New(&fakeStore{}, fakeChannels{}, nil, discard()), "every now and then", discard())
	if err := c.Start(context.Background()); err == nil {
		t.Fatal("expected an error for an invalid spec")
	}
}

func TestRunOnceCustomThresholds(t *testing.T) {
	store, channels := fixture()
	sink := &recordSink{}
	tr := New(store, channels, sink, discard()).WithThresholds(Thresholds{BudgetWarning: 0.5, BudgetCritical: 0.9, LowPerformance: 0.1})

	if _, err := tr.RunOnce(context.Background()); err != nil {
		t.Fatalf("RunOnce: %v", err)
	}
	var got []AlertKind
	for _, a := range sink.alerts {
		got = append(got, a.Kind)
	}
	if diff := cmp.Diff([]AlertKind{AlertBudgetWarning}, got); diff != "" {
		t.Errorf("alerts mismatch (-want +got):\n%s", diff)
	}
}
