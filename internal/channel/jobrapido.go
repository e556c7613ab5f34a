package channel

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"

	"job_distributor/internal/model"
)

// JobRapido publishes offers through a JSON feed.
type JobRapido struct {
	feed
	partnerID    string
	partnerEmail string
}

func newJobRapido(values map[string]string, deps adapterDeps) *JobRapido {
	return &JobRapido{
		feed:         newFeed("jobrapido", values, deps),
		partnerID:    values["partnerId"],
		partnerEmail: orDefault(values["partnerEmail"], "jobs@jobplatform.example"),
	}
}

type rapidoFeed struct {
	Jobs     []rapidoJob `json:"jobs"`
	Metadata struct {
		GeneratedAt string `json:"generated_at"`
		PartnerID   string `json:"partner_id,omitempty"`
		TotalJobs   int    `json:"total_jobs"`
		CampaignID  int64  `json:"campaign_id"`
	} `json:"metadata"`
}

type rapidoJob struct {
	ID          string `json:"id"`
	Reference   string `json:"reference"`
	Title       string `json:"title"`
	Company     string `json:"company"`
	Description string `json:"description"`
	Location    struct {
		City     string `json:"city"`
		Region   string `json:"region"`
		Country  string `json:"country"`
		Postcode string `json:"postcode,omitempty"`
	} `json:"location"`
	ContractType string `json:"contract_type"`
	Category     string `json:"category"`
	Dates        struct {
		PublicationDate string `json:"publication_date"`
	} `json:"dates"`
	Contact struct {
		ApplyURL     string `json:"apply_url"`
		PartnerEmail string `json:"partner_email"`
	} `json:"contact"`
	Salary *rapidoSalary `json:"salary,omitempty"`
}

type rapidoSalary struct {
	Min      float64 `json:"min"`
	Max      float64 `json:"max"`
	Currency string  `json:"currency"`
}

// Publish builds the JSON feed for the offers and pushes it when an endpoint
// is configured.
func (r *JobRapido) Publish(ctx context.Context, c *model.Campaign, offers []model.Offer) (*PublishResult, error) {
	doc, err := r.Feed(c, offers)
	if err != nil {
		return nil, err
	}
	if err := r.push(ctx, "application/json", doc); err != nil {
		return nil, err
	}
	return &PublishResult{
		ChannelID:          r.id,
		Published:          len(offers),
		ExternalCampaignID: r.externalID(c),
		EstimatedReach:     len(offers) * 500,
		EstimatedCost:      c.Budget,
		FeedSize:           len(doc),
	}, nil
}

// Feed renders the JobRapido JSON document for the offers.
func (r *JobRapido) Feed(c *model.Campaign, offers []model.Offer) ([]byte, error) {
	now := r.now()
	var f rapidoFeed
	f.Jobs = make([]rapidoJob, 0, len(offers))
	for _, o := range offers {
		var j rapidoJob
		j.ID = orDefault(o.ExternalID, strconv.FormatInt(o.ID, 10))
		j.Reference = fmt.Sprintf("jobrapido_%d_%d", o.ID, c.ID)
		j.Title = orDefault(o.Title, "Sin título")
		j.Company = orDefault(o.CompanyName, "Sin empresa")
		j.Description = orDefault(o.Description, "Sin descripción disponible")
		j.Location.City = orDefault(o.City, "Sin ciudad")
		j.Location.Region = orDefault(o.Region, j.Location.City)
		j.Location.Country = orDefault(o.Country, "España")
		j.Location.Postcode = o.Postcode
		j.ContractType = rapidoContractType(o.JobType)
		j.Category = orDefault(talentCategory(o.Sector), "Other")
		j.Dates.PublicationDate = isoDate(o.PublicationDate, now)
		j.Contact.ApplyURL = r.trackingURL(c, o, "organic")
		j.Contact.PartnerEmail = r.partnerEmail
		if o.SalaryMin != nil && o.SalaryMax != nil {
			j.Salary = &rapidoSalary{Min: *o.SalaryMin, Max: *o.SalaryMax, Currency: "EUR"}
		}
		f.Jobs = append(f.Jobs, j)
	}
	f.Metadata.GeneratedAt = now.UTC().Format(time.RFC3339)
	f.Metadata.PartnerID = r.partnerID
	f.Metadata.TotalJobs = len(f.Jobs)
	f.Metadata.CampaignID = c.ID

	out, err := json.MarshalIndent(f, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("encode jobrapido feed: %w", err)
	}
	return out, nil
}

func rapidoContractType(jobType string) string {
	switch strings.ToLower(jobType) {
	case "", "full-time", "indefinido":
		return "permanent"
	case "part-time":
		return "part_time"
	case "temporary", "temporal":
		return "temporary"
	case "internship", "practicas":
		return "internship"
	case "contract", "freelance":
		return "contract"
	default:
		return strings.ToLower(jobType)
	}
}
