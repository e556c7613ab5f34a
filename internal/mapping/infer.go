package mapping

import (
	"strings"

	"job_distributor/internal/model"
	"job_distributor/internal/record"
)

// LocationTarget is the target written for the single inferred location field.
const LocationTarget = "location"

// Location-like source fields, most specific first. Inference maps at most
// one of them.
var locationPriority = []string{"city", "region", "country", "location", "address", "postcode"}

var standardMappings = []struct {
	sources []string
	target  string
}{
	{sources: []string{"id", "external_id", "externalid"}, target: "external_id"},
	{sources: []string{"title", "jobtitle"}, target: "title"},
	{sources: []string{"content", "description"}, target: "description"},
	{sources: []string{"company"}, target: "company"},
	{sources: []string{"category"}, target: "sector"},
	{sources: []string{"url"}, target: "url"},
	{sources: []string{"url_apply", "application_url", "apply_url"}, target: "apply_url"},
	{sources: []string{"publication", "publication_date", "date"}, target: "published_at"},
	{sources: []string{"salary", "salary_min"}, target: "salary_min"},
	{sources: []string{"salary_max"}, target: "salary_max"},
	{sources: []string{"jobtype", "job_type", "tipo", "modalidad"}, target: "contract_type"},
}

// Infer derives mappings from the field names of a sample record.
// Each target is used at most once; the first matching source field wins.
func Infer(connectionID int64, rec *record.Record) []model.FieldMapping {
	keys := rec.Keys()
	lower := make(map[string]string, len(keys))
	for _, k := range keys {
		lk := strings.ToLower(k)
		if _, dup := lower[lk]; !dup {
			lower[lk] = k
		}
	}

	var out []model.FieldMapping
	for _, p := range locationPriority {
		if src, ok := lower[p]; ok {
			out = append(out, model.FieldMapping{
				ConnectionID: connectionID,
				SourceField:  src,
				TargetField:  LocationTarget,
				Type:         model.TransformString,
			})
			break
		}
	}

	used := make(map[string]bool)
	for _, k := range keys {
		lk := strings.ToLower(k)
		if isLocationField(lk) {
			continue
		}
		target := standardTarget(lk)
		if target == "" || used[target] {
			continue
		}
		used[target] = true

		typ := detectType(lk)
		if target == "external_id" {
			typ = model.TransformString
		}
		out = append(out, model.FieldMapping{
			ConnectionID: connectionID,
			SourceField:  k,
			TargetField:  target,
			Type:         typ,
		})
	}
	return out
}

func isLocationField(name string) bool {
	for _, p := range locationPriority {
		if p == name {
			return true
		}
	}
	return false
}

func standardTarget(name string) string {
	for _, sm := range standardMappings {
		for _, s := range sm.sources {
			if s == name {
				return sm.target
			}
		}
	}
	return ""
}

func detectType(name string) model.TransformationType {
	switch {
	case strings.Contains(name, "url") || strings.Contains(name, "link") || strings.Contains(name, "http"):
		return model.TransformString
	case strings.Contains(name, "date") || strings.Contains(name, "publication") || strings.Contains(name, "created"):
		return model.TransformDate
	case name == "id" || strings.HasSuffix(name, "_id") ||
		strings.Contains(name, "count") || strings.Contains(name, "number") ||
		strings.Contains(name, "salary") || strings.Contains(name, "vacancies"):
		return model.TransformNumber
	default:
		return model.TransformString
	}
}
