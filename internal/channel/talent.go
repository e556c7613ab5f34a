package channel

import (
	"context"
	"encoding/xml"
	"fmt"
	"strings"

	"job_distributor/internal/model"
)

// Talent publishes offers to Talent.com through an XML feed.
type Talent struct {
	feed
	publisherName string
}

func newTalent(values map[string]string, deps adapterDeps) *Talent {
	return &Talent{
		feed:          newFeed("talent", values, deps),
		publisherName: orDefault(values["publisherName"], "Job Platform"),
	}
}

type cdata struct {
	Value string `xml:",cdata"`
}

func text(s string) cdata { return cdata{Value: s} }

func optional(s string) *cdata {
	if s == "" {
		return nil
	}
	return &cdata{Value: s}
}

type talentFeed struct {
	XMLName       xml.Name    `xml:"source"`
	Publisher     string      `xml:"publisher"`
	PublisherURL  string      `xml:"publisherurl"`
	LastBuildDate string      `xml:"lastbuilddate"`
	Jobs          []talentJob `xml:"job"`
}

type talentJob struct {
	ReferenceNumber cdata  `xml:"referencenumber"`
	Title           cdata  `xml:"title"`
	Company         cdata  `xml:"company"`
	City            cdata  `xml:"city"`
	State           cdata  `xml:"state"`
	Country         cdata  `xml:"country"`
	DatePosted      cdata  `xml:"dateposted"`
	URL             cdata  `xml:"url"`
	Description     cdata  `xml:"description"`
	StreetAddress   *cdata `xml:"streetaddress"`
	PostalCode      *cdata `xml:"postalcode"`
	JobType         *cdata `xml:"jobtype"`
	Salary          *cdata `xml:"salary"`
	Category        *cdata `xml:"category"`
}

// Publish builds the XML feed for the offers and pushes it when an endpoint
// is configured.
func (t *Talent) Publish(ctx context.Context, c *model.Campaign, offers []model.Offer) (*PublishResult, error) {
	doc, err := t.Feed(c, offers)
	if err != nil {
		return nil, err
	}
	if err := t.push(ctx, "application/xml", doc); err != nil {
		return nil, err
	}
	return &PublishResult{
		ChannelID:          t.id,
		Published:          len(offers),
		ExternalCampaignID: t.externalID(c),
		EstimatedCost:      c.Budget,
		FeedSize:           len(doc),
	}, nil
}

// Feed renders the Talent.com XML document for the offers.
func (t *Talent) Feed(c *model.Campaign, offers []model.Offer) ([]byte, error) {
	now := t.now()
	f := talentFeed{
		Publisher:     t.publisherName,
		PublisherURL:  t.publisherURL,
		LastBuildDate: now.UTC().Format("2006-01-02T15:04:05Z"),
		Jobs:          make([]talentJob, 0, len(offers)),
	}
	for _, o := range offers {
		job := talentJob{
			ReferenceNumber: text(orDefault(o.ExternalID, fmt.Sprint(o.ID))),
			Title:           text(orDefault(o.Title, "Sin título")),
			Company:         text(orDefault(o.CompanyName, "Sin empresa")),
			City:            text(orDefault(o.City, "Sin ciudad")),
			State:           text(orDefault(o.Region, orDefault(o.City, "Sin región"))),
			Country:         text(orDefault(o.Country, "España")),
			DatePosted:      text(isoDate(o.PublicationDate, now)),
			URL:             text(t.trackingURL(c, o, "cpc")),
			Description:     text(talentDescription(o)),
			StreetAddress:   optional(o.Address),
			PostalCode:      optional(o.Postcode),
			JobType:         optional(talentJobType(o.JobType)),
			Category:        optional(talentCategory(o.Sector)),
		}
		if o.SalaryMin != nil && o.SalaryMax != nil {
			job.Salary = optional("€" + formatMoney(*o.SalaryMin) + " - €" + formatMoney(*o.SalaryMax))
		}
		f.Jobs = append(f.Jobs, job)
	}

	out, err := xml.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode talent feed: %w", err)
	}
	return append([]byte(xml.Header), out...), nil
}

// talentDescription returns HTML: plain text is wrapped in a paragraph and
// salary, contract and vacancy details are appended.
func talentDescription(o model.Offer) string {
	d := orDefault(o.Description, "Sin descripción disponible")
	if !strings.Contains(d, "<") {
		d = "<p>" + strings.ReplaceAll(d, "\n", "<br>") + "</p>"
	}

	var extra []string
	if o.SalaryMin != nil && o.SalaryMax != nil {
		extra = append(extra, "<p><strong>Salario:</strong> €"+formatMoney(*o.SalaryMin)+" - €"+formatMoney(*o.SalaryMax)+"</p>")
	}
	if o.JobType != "" {
		extra = append(extra, "<p><strong>Tipo de contrato:</strong> "+o.JobType+"</p>")
	}
	if o.Vacancies > 1 {
		extra = append(extra, fmt.Sprintf("<p><strong>Vacantes:</strong> %d</p>", o.Vacancies))
	}
	return d + strings.Join(extra, "")
}

var talentJobTypes = map[string]string{
	"full-time":  "Full time",
	"part-time":  "Part time",
	"contract":   "Contract",
	"temporary":  "Temporary",
	"internship": "Internship",
	"freelance":  "Contract",
	"indefinido": "Full time",
	"temporal":   "Temporary",
	"practicas":  "Internship",
}

func talentJobType(jobType string) string {
	if jobType == "" {
		return "Full time"
	}
	if t, ok := talentJobTypes[strings.ToLower(jobType)]; ok {
		return t
	}
	return jobType
}

// talentCategories is matched in order; the first keyword contained in the
// sector wins.
var talentCategories = []struct{ keyword, category string }{
	{"tecnologia", "IT"},
	{"informatica", "IT"},
	{"desarrollo", "IT"},
	{"programacion", "IT"},
	{"sistemas", "IT"},
	{"administracion", "Administration"},
	{"contabilidad", "Accounting"},
	{"finanzas", "Finance"},
	{"marketing", "Marketing"},
	{"ventas", "Sales"},
	{"comercial", "Sales"},
	{"recursos humanos", "Human Resources"},
	{"rrhh", "Human Resources"},
	{"educacion", "Education"},
	{"sanidad", "Healthcare"},
	{"medicina", "Healthcare"},
	{"enfermeria", "Nursing"},
	{"ingenieria", "Engineering"},
	{"construccion", "Construction"},
	{"turismo", "Hospitality"},
	{"hosteleria", "Hospitality"},
	{"restauracion", "Food Industry"},
	{"cocina", "Food Industry"},
	{"camarero", "Hospitality"},
	{"transporte", "Transportation"},
	{"logistica", "Logistics"},
	{"almacen", "Warehouse"},
	{"produccion", "Manufacturing"},
	{"industria", "Manufacturing"},
	{"legal", "Legal"},
	{"seguros", "Insurance"},
	{"banca", "Finance"},
	{"consultoria", "Consulting"},
	{"telecomunicaciones", "Telecommunications"},
	{"comunicacion", "Media"},
	{"seguridad", "Security"},
	{"limpieza", "Services"},
	{"mantenimiento", "Services"},
}

func talentCategory(sector string) string {
	if sector == "" {
		return ""
	}
	s := strings.ToLower(sector)
	for _, c := range talentCategories {
		if strings.Contains(s, c.keyword) {
			return c.category
		}
	}
	return "Other"
}
