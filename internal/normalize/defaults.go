package normalize

import (
	"strings"
	"time"

	"job_distributor/internal/mapping"
	"job_distributor/internal/model"
	"job_distributor/internal/record"
)

// defaultMapping is the built-in mapping used for every record: for each
// canonical field the first alias present with a non-empty value is taken.
// Dotted aliases reach into nested company, location and salary objects.
var defaultMapping = []struct {
	target  string
	typ     model.TransformationType
	aliases []string
}{
	{mapping.FieldExternalID, model.TransformString, []string{"id", "ID", "Id", "codigo", "identifier", "externalId", "external_id", "referencenumber", "reference", "guid"}},
	{mapping.FieldTitle, model.TransformString, []string{"title", "titulo", "puesto", "jobtitle", "job_title", "name"}},
	{mapping.FieldJobTitle, model.TransformString, []string{"jobtitle", "job_title", "puesto", "title"}},
	{mapping.FieldDescription, model.TransformString, []string{"content", "description", "descripcion", "job_description", "body"}},
	{mapping.FieldCompanyName, model.TransformString, []string{"company", "empresa", "company_name", "companyName", "company.name", "enterprise"}},
	{mapping.FieldSector, model.TransformString, []string{"category", "categoria", "sector"}},
	{mapping.FieldAddress, model.TransformString, []string{"address", "direccion", "ubicacion", "streetaddress"}},
	{mapping.FieldCountry, model.TransformString, []string{"pais", "country", "location.country", "location.countryName"}},
	{mapping.FieldRegion, model.TransformString, []string{"region", "provincia", "comunidad", "state", "location.region", "location.regionName"}},
	{mapping.FieldCity, model.TransformString, []string{"city", "ciudad", "localidad", "municipio", "location.city", "location.cityName", "location"}},
	{mapping.FieldPostcode, model.TransformString, []string{"postcode", "codigo_postal", "cp", "postal_code", "postalcode"}},
	{mapping.FieldLatitude, model.TransformNumber, []string{"latitude", "lat", "latitud", "location.latitude", "location.lat"}},
	{mapping.FieldLongitude, model.TransformNumber, []string{"longitude", "lng", "longitud", "location.longitude", "location.lng"}},
	{mapping.FieldVacancies, model.TransformNumber, []string{"vacancies", "vacantes", "num_vacancies"}},
	{mapping.FieldSalaryMin, model.TransformNumber, []string{"salary_min", "salaryMin", "salario_min", "salary.min", "salary.from", "salary.salaryMin"}},
	{mapping.FieldSalaryMax, model.TransformNumber, []string{"salary_max", "salaryMax", "salario_max", "salary.max", "salary.to", "salary.salaryMax"}},
	{mapping.FieldJobType, model.TransformString, []string{"jobtype", "job_type", "tipo_contrato", "tipo", "contract_type"}},
	{mapping.FieldExternalURL, model.TransformString, []string{"url", "enlace", "external_url", "link"}},
	{mapping.FieldApplicationURL, model.TransformString, []string{"url_apply", "url_aplicacion", "application_url", "apply_url"}},
	{mapping.FieldPublicationDate, model.TransformDate, []string{"publication", "fecha", "publication_date", "published_at", "created_at", "date"}},
	{mapping.FieldBudget, model.TransformNumber, []string{"budget", "presupuesto"}},
	{mapping.FieldApplicationsGoal, model.TransformNumber, []string{"applications_goal", "applicationsGoal", "objetivo_candidaturas"}},
}

func applyDefaultMapping(o *model.Offer, rec *record.Record, now time.Time) {
	var folded map[string]string
	for _, dm := range defaultMapping {
		v, ok := lookupAlias(rec, dm.aliases, &folded)
		if !ok {
			continue
		}
		setField(o, dm.target, coerce(v, dm.typ, now), dm.typ, "", now)
	}
}

// lookupAlias returns the first alias with a non-empty scalar value. Exact
// keys are tried before a case-insensitive pass over top-level keys.
func lookupAlias(rec *record.Record, aliases []string, folded *map[string]string) (record.Value, bool) {
	for _, a := range aliases {
		if v, ok := rec.Lookup(a); ok && nonEmpty(v) {
			return v, true
		}
	}
	if *folded == nil {
		*folded = make(map[string]string, rec.Len())
		for _, k := range rec.Keys() {
			lk := strings.ToLower(k)
			if _, dup := (*folded)[lk]; !dup {
				(*folded)[lk] = k
			}
		}
	}
	for _, a := range aliases {
		if k, ok := (*folded)[strings.ToLower(a)]; ok {
			if v, _ := rec.Get(k); nonEmpty(v) {
				return v, true
			}
		}
	}
	return record.Value{}, false
}

func nonEmpty(v record.Value) bool {
	return strings.TrimSpace(v.Scalar().String()) != ""
}
