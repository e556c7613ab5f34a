// Package mapping resolves, infers and saves the source-to-canonical field
// mappings of a connection.
package mapping

import "strings"

// Canonical offer fields a mapping may target.
const (
	FieldExternalID       = "ExternalId"
	FieldTitle            = "Title"
	FieldJobTitle         = "JobTitle"
	FieldDescription      = "Description"
	FieldCompanyName      = "CompanyName"
	FieldSector           = "Sector"
	FieldAddress          = "Address"
	FieldCountry          = "Country"
	FieldRegion           = "Region"
	FieldCity             = "City"
	FieldPostcode         = "Postcode"
	FieldLatitude         = "Latitude"
	FieldLongitude        = "Longitude"
	FieldVacancies        = "Vacancies"
	FieldSalaryMin        = "SalaryMin"
	FieldSalaryMax        = "SalaryMax"
	FieldJobType          = "JobType"
	FieldExternalURL      = "ExternalUrl"
	FieldApplicationURL   = "ApplicationUrl"
	FieldPublicationDate  = "PublicationDate"
	FieldBudget           = "Budget"
	FieldApplicationsGoal = "ApplicationsGoal"
)

// Target names as written by operators or generated by inference, keyed by
// their lowercase form with separators removed.
var targetAliases = map[string]string{
	"externalid":       FieldExternalID,
	"id":               FieldExternalID,
	"title":            FieldTitle,
	"jobtitle":         FieldJobTitle,
	"description":      FieldDescription,
	"content":          FieldDescription,
	"companyname":      FieldCompanyName,
	"company":          FieldCompanyName,
	"sector":           FieldSector,
	"category":         FieldSector,
	"address":          FieldAddress,
	"country":          FieldCountry,
	"region":           FieldRegion,
	"city":             FieldCity,
	"location":         FieldCity,
	"postcode":         FieldPostcode,
	"postalcode":       FieldPostcode,
	"latitude":         FieldLatitude,
	"lat":              FieldLatitude,
	"longitude":        FieldLongitude,
	"lng":              FieldLongitude,
	"lon":              FieldLongitude,
	"vacancies":        FieldVacancies,
	"salary":           FieldSalaryMin,
	"salarymin":        FieldSalaryMin,
	"salarymax":        FieldSalaryMax,
	"jobtype":          FieldJobType,
	"contracttype":     FieldJobType,
	"url":              FieldExternalURL,
	"externalurl":      FieldExternalURL,
	"applyurl":         FieldApplicationURL,
	"urlapply":         FieldApplicationURL,
	"applicationurl":   FieldApplicationURL,
	"publishedat":      FieldPublicationDate,
	"publicationdate":  FieldPublicationDate,
	"publication":      FieldPublicationDate,
	"date":             FieldPublicationDate,
	"budget":           FieldBudget,
	"applicationsgoal": FieldApplicationsGoal,
}

// CanonicalTarget resolves a target field name in any of its accepted
// spellings to the canonical offer field.
func CanonicalTarget(name string) (string, bool) {
	c, ok := targetAliases[squash(name)]
	return c, ok
}

func squash(s string) string {
	var b strings.Builder
	for _, r := range strings.ToLower(strings.TrimSpace(s)) {
		if r == '_' || r == '-' || r == ' ' || r == '.' {
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
