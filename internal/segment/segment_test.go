package segment

import (
	"testing"

	"github.com/google/go-cmp/cmp"

	"job_distributor/internal/model"
)

func TestMatch(t *testing.T) {
	driver := &model.Offer{
		Title:       "Conductor de camión",
		JobTitle:    "Truck driver",
		City:        "Zaragoza",
		Region:      "Aragón",
		Country:     "España",
		Sector:      "Logística",
		CompanyName: "Transportes Pepe",
	}

	tests := []struct {
		name    string
		filters model.SegmentFilters
		want    bool
	}{
		{
			name:    "no filters passes everything",
			filters: model.SegmentFilters{},
			want:    true,
		},
		{
			name:    "job title matches job_title field",
			filters: model.SegmentFilters{JobTitles: []string{"driver"}},
			want:    true,
		},
		{
			name:    "job title is case insensitive and unicode aware",
			filters: model.SegmentFilters{JobTitles: []string{"CAMIÓN"}},
			want:    true,
		},
		{
			name:    "titles OR logic: second matches",
			filters: model.SegmentFilters{JobTitles: []string{"nurse", "conductor"}},
			want:    true,
		},
		{
			name:    "titles OR logic: none match",
			filters: model.SegmentFilters{JobTitles: []string{"nurse", "cook"}},
			want:    false,
		},
		{
			name:    "location uses first comma part",
			filters: model.SegmentFilters{Locations: []string{"Zaragoza, Spain"}},
			want:    true,
		},
		{
			name:    "location matches region",
			filters: model.SegmentFilters{Locations: []string{"aragón"}},
			want:    true,
		},
		{
			name:    "location ignores country",
			filters: model.SegmentFilters{Locations: []string{"España"}},
			want:    false,
		},
		{
			name:    "categories AND logic: all match",
			filters: model.SegmentFilters{JobTitles: []string{"driver"}, Sectors: []string{"logística"}, Companies: []string{"pepe"}},
			want:    true,
		},
		{
			name:    "categories AND logic: company fails",
			filters: model.SegmentFilters{JobTitles: []string{"driver"}, Companies: []string{"acme"}},
			want:    false,
		},
		{
			name:    "blank value does not match",
			filters: model.SegmentFilters{Sectors: []string{"  "}},
			want:    false,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := Match(driver, tt.filters); got != tt.want {
				t.Errorf("Match() = %v, want %v", got, tt.want)
			}
		})
	}
}

func TestMatchAny(t *testing.T) {
	cook := &model.Offer{Title: "Cook", City: "Madrid"}
	segments := []model.SegmentFilters{
		{JobTitles: []string{"driver"}},
		{Locations: []string{"madrid"}},
	}
	if !MatchAny(cook, segments) {
		t.Error("expected OR across segments to match the second segment")
	}
	if MatchAny(cook, segments[:1]) {
		t.Error("expected no match with only the driver segment")
	}
	if !MatchAny(cook, nil) {
		t.Error("expected every offer to pass without segments")
	}
}

func TestClean(t *testing.T) {
	got := Clean(model.SegmentFilters{
		JobTitles: []string{" Driver ", "driver", ""},
		Locations: []string{"Madrid"},
	})
	want := model.SegmentFilters{
		JobTitles: []string{"driver"},
		Locations: []string{"madrid"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Clean mismatch (-want +got):\n%s", diff)
	}
}
