package channel

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"job_distributor/internal/model"
)

type joobleServer struct {
	mu       sync.Mutex
	requests map[string][]map[string]any
	status   int
}

func (s *joobleServer) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	var body map[string]any
	_ = json.NewDecoder(r.Body).Decode(&body)

	s.mu.Lock()
	s.requests[r.URL.Path] = append(s.requests[r.URL.Path], body)
	status := s.status
	s.mu.Unlock()

	if status != 0 {
		w.WriteHeader(status)
		_, _ = w.Write([]byte(`{"error":"bad key"}`))
		return
	}
	switch {
	case strings.HasPrefix(r.URL.Path, "/createCampaign/"):
		_, _ = w.Write([]byte(`{"campaignId": 98765}`))
	case strings.HasPrefix(r.URL.Path, "/editCampaign/"):
		_, _ = w.Write([]byte(`{"success": true}`))
	default:
		_, _ = w.Write([]byte(`{"impressions": 20000, "clicks": 400, "applications": 40, "spend": 600}`))
	}
}

func newJoobleFixture(t *testing.T) (*Jooble, *joobleServer) {
	t.Helper()
	srv := &joobleServer{requests: make(map[string][]map[string]any)}
	ts := httptest.NewServer(srv)
	t.Cleanup(ts.Close)

	r := NewRegistry(DefaultCatalog(), nil, Options{
		Settings: map[string]map[string]string{"jooble": {"apiKey": "secret", "baseUrl": ts.URL}},
		Clock:    func() time.Time { return fixedNow },
	})
	a, err := r.Get(context.Background(), "jooble", 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}
	return a.(*Jooble), srv
}

func sampleOffers() []model.Offer {
	return []model.Offer{
		{ID: 1, Title: "Camarero", CompanyName: "Bar Pepe", City: "Sevilla"},
		{ID: 2, Title: "Cocinero", CompanyName: "Bar Pepe", Region: "Andalucia"},
		{ID: 3, Title: "Camarero", CompanyName: "Hotel Sol", City: "Sevilla"},
	}
}

func TestJooblePublish(t *testing.T) {
	j, srv := newJoobleFixture(t)
	c := &model.Campaign{ID: 4, Name: "Verano", Budget: 900, MaxCPA: 20}

	res, err := j.Publish(context.Background(), c, sampleOffers())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if res.ExternalCampaignID != "98765" || res.Published != 3 || res.Simulated {
		t.Errorf("unexpected result %+v", res)
	}

	sent := srv.requests["/createCampaign/secret"]
	if len(sent) != 1 {
		t.Fatalf("createCampaign calls = %d, want 1", len(sent))
	}
	want := map[string]any{
		"name":        "Verano",
		"dailyBudget": 30.0,
		"maxCPC":      16.0,
		"startDate":   "2024-06-01",
		"endDate":     "2024-07-01",
		"status":      0.0,
		"timezone":    "Europe/Madrid",
		"segmentationRules": []any{
			map[string]any{"type": 1.0, "value": "Camarero", "operator": "contains"},
			map[string]any{"type": 1.0, "value": "Cocinero", "operator": "contains"},
			map[string]any{"type": 2.0, "value": "Bar Pepe", "operator": "equals"},
			map[string]any{"type": 2.0, "value": "Hotel Sol", "operator": "equals"},
			map[string]any{"type": 4.0, "value": "Sevilla,Andalucia", "operator": "in"},
		},
	}
	if diff := cmp.Diff(want, sent[0]); diff != "" {
		t.Errorf("campaign payload mismatch (-want +got):\n%s", diff)
	}
}

func TestJoobleStats(t *testing.T) {
	j, srv := newJoobleFixture(t)

	st, err := j.FetchStats(context.Background(), StatsQuery{ExternalCampaignID: "98765"})
	if err != nil {
		t.Fatalf("FetchStats: %v", err)
	}
	want := &Stats{Impressions: 20000, Clicks: 400, Applications: 40, Spend: 600, CPA: 15, QualityScore: 70}
	if diff := cmp.Diff(want, st); diff != "" {
		t.Errorf("stats mismatch (-want +got):\n%s", diff)
	}

	wantReq := map[string]any{"from": "2024-05-25", "to": "2024-06-01", "campaignId": "98765"}
	if diff := cmp.Diff(wantReq, srv.requests["/secret"][0]); diff != "" {
		t.Errorf("stats request mismatch (-want +got):\n%s", diff)
	}
}

func TestJoobleControl(t *testing.T) {
	j, srv := newJoobleFixture(t)
	ctx := context.Background()

	steps := []func(context.Context, string) error{j.Pause, j.Resume, j.Delete}
	for _, step := range steps {
		if err := step(ctx, "98765"); err != nil {
			t.Fatalf("control: %v", err)
		}
	}

	var got []float64
	for _, req := range srv.requests["/editCampaign/secret"] {
		got = append(got, req["status"].(float64))
	}
	if diff := cmp.Diff([]float64{1, 0, 2}, got); diff != "" {
		t.Errorf("statuses mismatch (-want +got):\n%s", diff)
	}
}

func TestJoobleHTTPError(t *testing.T) {
	j, srv := newJoobleFixture(t)
	srv.status = http.StatusUnauthorized

	_, err := j.Publish(context.Background(), &model.Campaign{ID: 1, Budget: 100}, sampleOffers())
	if err == nil || !strings.Contains(err.Error(), "401") {
		t.Fatalf("err = %v, want status 401", err)
	}
	if strings.Contains(err.Error(), "secret") {
		t.Errorf("error leaks the api key: %v", err)
	}
}

func TestJoobleSimulation(t *testing.T) {
	r := NewRegistry(DefaultCatalog(), nil, Options{
		AllowSimulation: true,
		Seed:            1,
		Clock:           func() time.Time { return fixedNow },
	})
	a, err := r.Get(context.Background(), "jooble", 0)
	if err != nil {
		t.Fatalf("Get: %v", err)
	}

	res, err := a.Publish(context.Background(), &model.Campaign{ID: 1, Budget: 300}, sampleOffers())
	if err != nil {
		t.Fatalf("Publish: %v", err)
	}
	if !res.Simulated || !strings.HasPrefix(res.ExternalCampaignID, "jooble_sim_") {
		t.Errorf("unexpected simulated result %+v", res)
	}

	st, err := a.FetchStats(context.Background(), StatsQuery{ExternalCampaignID: res.ExternalCampaignID})
	if err != nil {
		t.Fatalf("FetchStats: %v", err)
	}
	if st.Applications < 20 || st.Applications > 120 || st.Spend < 200 || st.Spend > 1200 {
		t.Errorf("simulated stats out of range: %+v", st)
	}
	if st.PerOffer != nil {
		t.Error("jooble reports campaign totals only")
	}
}
