package channel

import (
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestSplitBudget(t *testing.T) {
	got := SplitBudget(1000, []string{"jooble", "talent", "indeed"}, map[string]float64{"jooble": 25, "talent": 0})
	want := []ChannelBudget{
		{ChannelID: "jooble", Budget: 333, DailyBudget: 11, MaxCPA: 25, MaxCPC: 20, TargetApplications: 13},
		{ChannelID: "talent", Budget: 333, DailyBudget: 11, MaxCPA: 20, MaxCPC: 16, TargetApplications: 16},
		{ChannelID: "indeed", Budget: 333, DailyBudget: 11, MaxCPA: 20, MaxCPC: 16, TargetApplications: 16},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("SplitBudget mismatch (-want +got):\n%s", diff)
	}

	if got := SplitBudget(1000, nil, nil); got != nil {
		t.Errorf("SplitBudget with no channels = %v, want nil", got)
	}
}
