// Package normalize turns loosely-typed source records into canonical offers.
package normalize

import (
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"

	"job_distributor/internal/mapping"
	"job_distributor/internal/model"
	"job_distributor/internal/record"
)

// Defaults for numeric fields left absent or zero by the source.
const (
	DefaultBudget           = 10
	DefaultApplicationsGoal = 50
	DefaultVacancies        = 1
)

// RuleCleanHTML forces HTML cleanup on a STRING mapping.
const RuleCleanHTML = "clean_html"

// offerNamespace seeds the name-based UUIDs given to records without an id.
var offerNamespace = uuid.NewSHA1(uuid.NameSpaceURL, []byte("job-distributor/offer"))

// Normalizer applies mappings and type coercion to source records.
type Normalizer struct {
	now func() time.Time
}

// New creates a Normalizer using the wall clock.
func New() *Normalizer {
	return &Normalizer{now: func() time.Time { return time.Now().UTC() }}
}

// NewWithClock creates a Normalizer with a fixed clock (useful for testing).
func NewWithClock(now func() time.Time) *Normalizer {
	return &Normalizer{now: now}
}

// Normalize builds one offer from rec. The default mapping populates the
// offer first; persisted mappings are applied on top of it, so a mapped
// field always wins over an alias match.
func (n *Normalizer) Normalize(rec *record.Record, mappings []model.FieldMapping, conn *model.Connection) model.Offer {
	now := n.now()
	var o model.Offer

	applyDefaultMapping(&o, rec, now)

	for _, m := range mappings {
		target, ok := mapping.CanonicalTarget(m.TargetField)
		if !ok {
			continue
		}
		v, ok := rec.Lookup(m.SourceField)
		if !ok {
			continue
		}
		setField(&o, target, coerce(v, m.Type, now), m.Type, m.Rule, now)
	}

	if o.Title == "" {
		o.Title = o.JobTitle
	}
	if o.JobTitle == "" {
		o.JobTitle = o.Title
	}
	if o.Budget <= 0 {
		o.Budget = DefaultBudget
	}
	if o.ApplicationsGoal <= 0 {
		o.ApplicationsGoal = DefaultApplicationsGoal
	}
	if o.Vacancies <= 0 {
		o.Vacancies = DefaultVacancies
	}
	if o.ExternalID == "" {
		o.ExternalID = fallbackID(conn.ID, &o)
	}

	o.ConnectionID = conn.ID
	o.Source = conn.Kind.Label()
	o.Status = model.StatusPending
	o.BudgetSpent = 0
	o.ApplicationsReceived = 0
	o.CreatedAt = now
	o.UpdatedAt = now
	return o
}

// fallbackID derives a stable id from identifying content, so re-ingesting
// the same record updates rather than duplicates it.
func fallbackID(connectionID int64, o *model.Offer) string {
	key := strings.Join([]string{
		strconv.FormatInt(connectionID, 10), o.Title, o.CompanyName, o.City, o.ExternalURL, o.ApplicationURL,
	}, "|")
	return uuid.NewSHA1(offerNamespace, []byte(key)).String()
}

func coerce(v record.Value, typ model.TransformationType, now time.Time) record.Value {
	if typ == model.TransformArray {
		v = v.First()
	}
	v = v.Scalar()
	switch typ {
	case model.TransformNumber:
		if f, ok := v.Float(); ok {
			return record.NumberValue(f)
		}
		return record.Value{}
	case model.TransformBoolean:
		return record.BoolValue(v.Truthy())
	case model.TransformDate:
		return record.StringValue(ParseDate(v.String(), now).Format(time.RFC3339))
	}
	return v
}

func setField(o *model.Offer, target string, v record.Value, typ model.TransformationType, rule string, now time.Time) {
	if v.IsNull() {
		return
	}
	switch target {
	case mapping.FieldLatitude:
		if p := floatPtr(v); p != nil {
			o.Latitude = p
		}
	case mapping.FieldLongitude:
		if p := floatPtr(v); p != nil {
			o.Longitude = p
		}
	case mapping.FieldSalaryMin:
		if p := floatPtr(v); p != nil {
			o.SalaryMin = p
		}
	case mapping.FieldSalaryMax:
		if p := floatPtr(v); p != nil {
			o.SalaryMax = p
		}
	case mapping.FieldBudget:
		if f, ok := v.Float(); ok {
			o.Budget = f
		}
	case mapping.FieldVacancies:
		if f, ok := v.Float(); ok {
			o.Vacancies = int(f)
		}
	case mapping.FieldApplicationsGoal:
		if f, ok := v.Float(); ok {
			o.ApplicationsGoal = int(f)
		}
	case mapping.FieldPublicationDate:
		t := ParseDate(v.String(), now)
		o.PublicationDate = &t
	default:
		s := v.String()
		if typ == model.TransformString || typ == "" {
			s = cleanText(s, rule, target == mapping.FieldDescription)
		}
		if s == "" {
			return
		}
		setString(o, target, s)
	}
}

func cleanText(s, rule string, always bool) string {
	if always || rule == RuleCleanHTML || looksLikeHTML(s) {
		return CleanHTML(s)
	}
	return strings.TrimSpace(s)
}

func setString(o *model.Offer, target, s string) {
	switch target {
	case mapping.FieldExternalID:
		o.ExternalID = s
	case mapping.FieldTitle:
		o.Title = s
	case mapping.FieldJobTitle:
		o.JobTitle = s
	case mapping.FieldDescription:
		o.Description = s
	case mapping.FieldCompanyName:
		o.CompanyName = s
	case mapping.FieldSector:
		o.Sector = s
	case mapping.FieldAddress:
		o.Address = s
	case mapping.FieldCountry:
		o.Country = s
	case mapping.FieldRegion:
		o.Region = s
	case mapping.FieldCity:
		o.City = s
	case mapping.FieldPostcode:
		o.Postcode = s
	case mapping.FieldJobType:
		o.JobType = s
	case mapping.FieldExternalURL:
		o.ExternalURL = s
	case mapping.FieldApplicationURL:
		o.ApplicationURL = s
	}
}

func floatPtr(v record.Value) *float64 {
	f, ok := v.Float()
	if !ok {
		return nil
	}
	return &f
}
