package channel

import "math"

// DefaultMaxCPA is used by SplitBudget for channels without an explicit cap.
const DefaultMaxCPA = 20

// ChannelBudget is one channel's share of a multi-channel campaign.
type ChannelBudget struct {
	ChannelID          string
	Budget             float64
	DailyBudget        float64
	MaxCPA             float64
	MaxCPC             float64
	TargetApplications int
}

// SplitBudget divides budget equally across channels. Daily budgets assume a
// 30-day campaign and the CPC cap is 80% of the channel's CPA cap.
func SplitBudget(budget float64, channels []string, maxCPA map[string]float64) []ChannelBudget {
	if len(channels) == 0 {
		return nil
	}
	share := math.Floor(budget / float64(len(channels)))
	out := make([]ChannelBudget, 0, len(channels))
	for _, id := range channels {
		cpa := maxCPA[id]
		if cpa <= 0 {
			cpa = DefaultMaxCPA
		}
		out = append(out, ChannelBudget{
			ChannelID:          id,
			Budget:             share,
			DailyBudget:        math.Floor(share / 30),
			MaxCPA:             cpa,
			MaxCPC:             math.Floor(cpa * 0.8),
			TargetApplications: int(math.Floor(share / cpa)),
		})
	}
	return out
}
