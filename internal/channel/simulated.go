package channel

import (
	"context"
	"log/slog"
	"math"
	"math/rand/v2"
	"sync"
	"time"

	"github.com/google/uuid"

	"job_distributor/internal/model"
)

// dice produces the randomized but plausible numbers of simulated channels.
type dice struct {
	mu sync.Mutex
	r  *rand.Rand
}

func newDice(seed uint64) *dice {
	if seed == 0 {
		seed = rand.Uint64()
	}
	return &dice{r: rand.New(rand.NewPCG(seed, seed^0x9e3779b97f4a7c15))}
}

// between returns an integer in [lo, hi].
func (d *dice) between(lo, hi int) int {
	d.mu.Lock()
	defer d.mu.Unlock()
	return lo + d.r.IntN(hi-lo+1)
}

// offerStats simulates per-offer counters for the given offers.
func (d *dice) offerStats(offerIDs []int64) *Stats {
	st := &Stats{PerOffer: make(map[int64]OfferStats, len(offerIDs))}
	for _, id := range offerIDs {
		o := OfferStats{
			Views:        d.between(100, 1099),
			Clicks:       d.between(10, 109),
			Applications: d.between(1, 20),
			Spend:        float64(d.between(20, 120)),
		}
		st.PerOffer[id] = o
		st.Impressions += o.Views
		st.Clicks += o.Clicks
		st.Applications += o.Applications
		st.Spend += o.Spend
	}
	st.CPA = cpa(st.Spend, st.Applications)
	st.QualityScore = qualityScore(st.Impressions, st.Clicks, st.Applications)
	return st
}

// Simulated stands in for channels without a real integration.
type Simulated struct {
	info Info
	dice *dice
	log  *slog.Logger
}

func newSimulated(info Info, d *dice, log *slog.Logger) *Simulated {
	return &Simulated{info: info, dice: d, log: log}
}

// ID returns the channel id.
func (s *Simulated) ID() string { return s.info.ID }

// Publish reports a plausible publication without contacting anyone.
func (s *Simulated) Publish(_ context.Context, c *model.Campaign, offers []model.Offer) (*PublishResult, error) {
	s.log.Info("simulated publish", "channel", s.info.ID, "campaign_id", c.ID, "offers", len(offers))
	return &PublishResult{
		ChannelID:          s.info.ID,
		Published:          len(offers),
		ExternalCampaignID: s.info.ID + "_sim_" + uuid.NewString(),
		EstimatedReach:     len(offers) * s.dice.between(500, 2000),
		EstimatedCost:      float64(len(offers)) * s.info.DefaultCPA,
		Simulated:          true,
	}, nil
}

// FetchStats returns simulated per-offer counters.
func (s *Simulated) FetchStats(_ context.Context, q StatsQuery) (*Stats, error) {
	return s.dice.offerStats(q.OfferIDs), nil
}

// Pause is a no-op.
func (s *Simulated) Pause(context.Context, string) error { return nil }

// Resume is a no-op.
func (s *Simulated) Resume(context.Context, string) error { return nil }

// Delete is a no-op.
func (s *Simulated) Delete(context.Context, string) error { return nil }

func cpa(spend float64, applications int) float64 {
	if applications <= 0 {
		return 0
	}
	return math.Round(spend/float64(applications)*100) / 100
}

// qualityScore rates traffic from 0 to 100 using click-through and
// conversion rates.
func qualityScore(impressions, clicks, applications int) float64 {
	var ctr, conv float64
	if impressions > 0 {
		ctr = float64(clicks) / float64(impressions)
	}
	if clicks > 0 {
		conv = float64(applications) / float64(clicks)
	}
	score := math.Min(100, math.Max(0, ctr*1000+conv*500))
	return math.Round(score*100) / 100
}

func dateOnly(t time.Time) string {
	return t.UTC().Format(time.DateOnly)
}
