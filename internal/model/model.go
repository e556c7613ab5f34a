// Package model defines the domain types used across the application.
package model

import "time"

// SourceKind is the kind of external source a connection reads from.
type SourceKind string

// Supported source kinds.
const (
	KindXMLFeed SourceKind = "xml-feed"
	KindAPI     SourceKind = "api"
	KindCSVFile SourceKind = "csv-file"
	KindXMLFile SourceKind = "xml-file"
	KindManual  SourceKind = "manual"
)

// Label returns the value stored in the offer source column for this kind.
func (k SourceKind) Label() string {
	switch k {
	case KindXMLFeed:
		return "XML"
	case KindAPI:
		return "API"
	case KindCSVFile:
		return "CSV"
	case KindXMLFile:
		return "XMLFILE"
	default:
		return "MANUAL"
	}
}

// ConnectionStatus is the last known state of a connection's ingestion runs.
type ConnectionStatus string

// Connection statuses.
const (
	ConnectionPending   ConnectionStatus = "pending"
	ConnectionImporting ConnectionStatus = "importing"
	ConnectionActive    ConnectionStatus = "active"
	ConnectionError     ConnectionStatus = "error"
)

// Connection is a configured external source of job offers.
type Connection struct {
	ID                  int64
	UserID              int64
	Name                string
	Kind                SourceKind
	URL                 string // remote endpoint, or a filesystem path for file kinds
	Method              string
	Headers             string // JSON object of request headers
	Body                string // JSON request body template
	SyncIntervalMinutes int
	Status              ConnectionStatus
	LastSyncAt          *time.Time
	ImportedOffers      int
	ErrorCount          int
	CreatedAt           time.Time
}

// TransformationType selects how a mapped source value is coerced.
type TransformationType string

// Supported transformation types.
const (
	TransformString  TransformationType = "STRING"
	TransformNumber  TransformationType = "NUMBER"
	TransformDate    TransformationType = "DATE"
	TransformBoolean TransformationType = "BOOLEAN"
	TransformArray   TransformationType = "ARRAY"
)

// FieldMapping maps one source field onto one canonical offer field.
type FieldMapping struct {
	ConnectionID int64
	SourceField  string
	TargetField  string
	Type         TransformationType
	Rule         string
}

// OfferStatus is the lifecycle state of an offer.
type OfferStatus int

// Offer statuses. Pending and active share a value.
const (
	StatusPending         OfferStatus = 1
	StatusActive          OfferStatus = 1
	StatusPaused          OfferStatus = 2
	StatusGoalCompleted   OfferStatus = 3
	StatusBudgetCompleted OfferStatus = 4
	StatusArchived        OfferStatus = 5
)

// Locked reports whether the sweeper must leave an offer in this status alone.
func (s OfferStatus) Locked() bool {
	return s == StatusPaused || s == StatusGoalCompleted || s == StatusBudgetCompleted
}

func (s OfferStatus) String() string {
	switch s {
	case StatusActive:
		return "active"
	case StatusPaused:
		return "paused"
	case StatusGoalCompleted:
		return "goal-completed"
	case StatusBudgetCompleted:
		return "budget-completed"
	case StatusArchived:
		return "archived"
	default:
		return "unknown"
	}
}

// Offer is one canonical job posting tied to a connection.
type Offer struct {
	ID                   int64
	ExternalID           string
	ConnectionID         int64
	Title                string
	JobTitle             string
	Description          string
	CompanyName          string
	Sector               string
	Address              string
	Country              string
	Region               string
	City                 string
	Postcode             string
	Latitude             *float64
	Longitude            *float64
	Vacancies            int
	SalaryMin            *float64
	SalaryMax            *float64
	JobType              string
	ExternalURL          string
	ApplicationURL       string
	PublicationDate      *time.Time
	Budget               float64
	BudgetSpent          float64
	ApplicationsGoal     int
	ApplicationsReceived int
	Status               OfferStatus
	Source               string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// SegmentFilters holds the substring criteria of a segment.
// Values within a category are OR-combined; categories are AND-combined.
type SegmentFilters struct {
	JobTitles []string `json:"jobTitles,omitempty"`
	Locations []string `json:"locations,omitempty"`
	Sectors   []string `json:"sectors,omitempty"`
	Companies []string `json:"companies,omitempty"`
}

// Segment is a saved filter used to select offers for a campaign.
type Segment struct {
	ID        int64
	UserID    int64
	Name      string
	Filters   SegmentFilters
	CreatedAt time.Time
}

// DistributionMode selects how a campaign's budget is split.
type DistributionMode string

// Distribution modes.
const (
	ModeAutomatic DistributionMode = "automatic"
	ModeManual    DistributionMode = "manual"
)

// CampaignStatus is the lifecycle state of a campaign.
type CampaignStatus string

// Campaign statuses.
const (
	CampaignDraft     CampaignStatus = "draft"
	CampaignActive    CampaignStatus = "active"
	CampaignPaused    CampaignStatus = "paused"
	CampaignCompleted CampaignStatus = "completed"
)

// Campaign is a budget/target plan that distributes offers across channels.
type Campaign struct {
	ID                 int64
	UserID             int64
	Name               string
	Budget             float64
	TargetApplications int
	MaxCPA             float64
	Mode               DistributionMode
	Channels           []string
	SegmentIDs         []int64
	Status             CampaignStatus
	CreatedAt          time.Time
}

// CampaignChannelStatus is the state of one allocation record.
type CampaignChannelStatus string

// Campaign channel statuses.
const (
	ChannelPending  CampaignChannelStatus = "pending"
	ChannelActive   CampaignChannelStatus = "active"
	ChannelPaused   CampaignChannelStatus = "paused"
	ChannelArchived CampaignChannelStatus = "archived"
)

// CampaignChannel is the allocation and performance record of one
// (campaign, offer, channel) triple.
type CampaignChannel struct {
	ID                   int64
	CampaignID           int64
	OfferID              int64
	ChannelID            string
	AllocatedBudget      float64
	AllocatedTarget      int
	BudgetSpent          float64
	ApplicationsReceived int
	CurrentCPA           float64
	BidAmount            float64
	QualityScore         float64
	ConversionRate       float64
	Status               CampaignChannelStatus
	ExternalCampaignID   string
	CreatedAt            time.Time
	UpdatedAt            time.Time
}

// ChannelPerformance is the trailing average performance of a channel.
type ChannelPerformance struct {
	ChannelID     string
	AvgCPA        float64
	AvgQuality    float64
	AvgConversion float64
}

// ChannelCredentials holds a user's credentials for one channel.
type ChannelCredentials struct {
	UserID    int64
	ChannelID string
	Values    map[string]string
	IsActive  bool
	UpdatedAt time.Time
}
