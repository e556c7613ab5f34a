package source

import (
	"fmt"
	"strings"
	"unicode/utf8"

	"job_distributor/internal/record"
)

const maxSampleLen = 100

// FieldDescriptor describes one source field for mapping assistance.
type FieldDescriptor struct {
	Name        string `json:"name"`
	Type        string `json:"type"`
	Sample      string `json:"sample"`
	Description string `json:"description"`
}

var fieldDescriptions = map[string]string{
	"id":              "Unique offer identifier in the source",
	"title":           "Offer title",
	"jobtitle":        "Job title",
	"job_title":       "Job title",
	"puesto":          "Job title",
	"titulo":          "Offer title",
	"content":         "Full offer description",
	"description":     "Offer description",
	"descripcion":     "Offer description",
	"company":         "Hiring company",
	"empresa":         "Hiring company",
	"company_name":    "Hiring company",
	"category":        "Sector or category",
	"sector":          "Sector or category",
	"address":         "Street address",
	"location":        "Free-text location",
	"ubicacion":       "Free-text location",
	"city":            "City",
	"ciudad":          "City",
	"region":          "Region or province",
	"provincia":       "Region or province",
	"country":         "Country",
	"pais":            "Country",
	"postcode":        "Postal code",
	"codigo_postal":   "Postal code",
	"url":             "Offer URL",
	"url_apply":       "Application URL",
	"apply_url":       "Application URL",
	"application_url": "Application URL",
	"publication":     "Publication date",
	"published_at":    "Publication date",
	"date":            "Date",
	"fecha":           "Date",
	"salary":          "Salary",
	"salary_min":      "Minimum salary",
	"salary_max":      "Maximum salary",
	"jobtype":         "Contract type",
	"job_type":        "Contract type",
	"vacancies":       "Number of vacancies",
	"vacantes":        "Number of vacancies",
	"latitude":        "Latitude",
	"longitude":       "Longitude",
}

// Describe returns one descriptor per field of rec. Nested objects also
// contribute their immediate children under dotted names.
func Describe(rec *record.Record) []FieldDescriptor {
	var out []FieldDescriptor
	for _, k := range rec.Keys() {
		v, _ := rec.Get(k)
		out = append(out, describeField(k, v))
		if inner := v.Record(); inner != nil {
			for _, ik := range inner.Keys() {
				iv, _ := inner.Get(ik)
				if iv.Kind() == record.Object {
					continue
				}
				out = append(out, describeField(k+"."+ik, iv))
			}
		}
	}
	return out
}

func describeField(name string, v record.Value) FieldDescriptor {
	desc, ok := fieldDescriptions[strings.ToLower(name)]
	if !ok {
		desc = fmt.Sprintf("Field: %s", name)
	}
	return FieldDescriptor{
		Name:        name,
		Type:        inferFieldType(name, v),
		Sample:      sample(v),
		Description: desc,
	}
}

func inferFieldType(name string, v record.Value) string {
	n := strings.ToLower(name)
	switch {
	case strings.Contains(n, "url") || strings.Contains(n, "link") || strings.Contains(n, "enlace"):
		return "url"
	case strings.Contains(n, "date") || strings.Contains(n, "fecha") ||
		strings.Contains(n, "publication") || strings.Contains(n, "created") || strings.Contains(n, "updated"):
		return "date"
	case strings.Contains(n, "salary") || strings.Contains(n, "salario") || strings.Contains(n, "budget") ||
		strings.Contains(n, "vacanc") || strings.Contains(n, "vacantes") ||
		strings.Contains(n, "count") || strings.Contains(n, "num") ||
		n == "lat" || n == "lng" || strings.Contains(n, "latitud") || strings.Contains(n, "longitud"):
		return "number"
	case strings.HasPrefix(n, "is_") || strings.HasPrefix(n, "has_"):
		return "boolean"
	}
	switch v.Kind() {
	case record.Bool:
		return "boolean"
	case record.Number:
		return "number"
	case record.Array:
		return "array"
	case record.Object:
		return "object"
	}
	return "string"
}

func sample(v record.Value) string {
	s := v.String()
	if v.Kind() == record.Object {
		s = v.Scalar().String()
	}
	if utf8.RuneCountInString(s) <= maxSampleLen {
		return s
	}
	r := []rune(s)
	return string(r[:maxSampleLen]) + "..."
}
