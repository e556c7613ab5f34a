// Package segment implements the offer matching used to select the working
// set of a campaign.
package segment

import (
	"strings"

	"job_distributor/internal/model"
)

// Clean trims, lowercases and de-duplicates filter values, dropping empty ones.
func Clean(f model.SegmentFilters) model.SegmentFilters {
	return model.SegmentFilters{
		JobTitles: cleanValues(f.JobTitles),
		Locations: cleanValues(f.Locations),
		Sectors:   cleanValues(f.Sectors),
		Companies: cleanValues(f.Companies),
	}
}

// Match checks whether an offer passes one segment's filters.
// An empty category does not constrain. Values within a category use OR
// logic; categories use AND logic. Matching is a case-insensitive substring
// test.
func Match(o *model.Offer, f model.SegmentFilters) bool {
	if len(f.JobTitles) > 0 && !anyContains(f.JobTitles, o.Title, o.JobTitle) {
		return false
	}
	if len(f.Locations) > 0 && !matchLocation(f.Locations, o) {
		return false
	}
	if len(f.Sectors) > 0 && !anyContains(f.Sectors, o.Sector) {
		return false
	}
	if len(f.Companies) > 0 && !anyContains(f.Companies, o.CompanyName) {
		return false
	}
	return true
}

// MatchAny reports whether an offer passes at least one of the segments.
// With no segments every offer passes.
func MatchAny(o *model.Offer, segments []model.SegmentFilters) bool {
	if len(segments) == 0 {
		return true
	}
	for _, f := range segments {
		if Match(o, f) {
			return true
		}
	}
	return false
}

// A location filter such as "Madrid, Spain" is matched on its first part.
func matchLocation(values []string, o *model.Offer) bool {
	for _, v := range values {
		city, _, _ := strings.Cut(v, ",")
		if anyContains([]string{city}, o.City, o.Region, o.Address) {
			return true
		}
	}
	return false
}

func anyContains(values []string, fields ...string) bool {
	for _, v := range values {
		needle := strings.ToLower(strings.TrimSpace(v))
		if needle == "" {
			continue
		}
		for _, field := range fields {
			if strings.Contains(strings.ToLower(field), needle) {
				return true
			}
		}
	}
	return false
}

func cleanValues(vs []string) []string {
	var out []string
	seen := make(map[string]bool, len(vs))
	for _, v := range vs {
		v = strings.ToLower(strings.TrimSpace(v))
		if v == "" || seen[v] {
			continue
		}
		seen[v] = true
		out = append(out, v)
	}
	return out
}
