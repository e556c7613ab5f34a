// Package storage defines the persistence interface and its implementations.
package storage

import (
	"context"
	"errors"
	"time"

	"job_distributor/internal/model"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// SyncResult is the bookkeeping written after an ingestion run.
type SyncResult struct {
	Status     model.ConnectionStatus
	SyncedAt   time.Time
	Imported   int
	ErrorCount int
}

// ArchiveRange is one chunk of an archival sweep. Offers of the connection and
// source whose external id sorts within [From, Until) and is not in Keep are
// archived. Empty bounds are open.
type ArchiveRange struct {
	ConnectionID int64
	Source       string
	Keep         []string
	From         string
	Until        string
}

// ChannelStats is a performance update for campaign channel rows.
type ChannelStats struct {
	BudgetSpent          float64
	ApplicationsReceived int
	CurrentCPA           float64
}

// ConnectionStore persists connections and their run bookkeeping.
type ConnectionStore interface {
	CreateConnection(ctx context.Context, c *model.Connection) error
	GetConnection(ctx context.Context, id int64) (*model.Connection, error)
	ListDueConnections(ctx context.Context, now time.Time) ([]model.Connection, error)
	SetConnectionStatus(ctx context.Context, id int64, status model.ConnectionStatus) error
	RecordSync(ctx context.Context, id int64, res SyncResult) error
}

// MappingStore persists per-connection field mappings.
type MappingStore interface {
	ListMappings(ctx context.Context, connectionID int64) ([]model.FieldMapping, error)
	ReplaceMappings(ctx context.Context, connectionID int64, mappings []model.FieldMapping) error
	UpsertMappings(ctx context.Context, connectionID int64, mappings []model.FieldMapping) error
}

// OfferStore persists offers and their status transitions.
type OfferStore interface {
	UpsertOffer(ctx context.Context, o *model.Offer) error
	GetOffer(ctx context.Context, id int64) (*model.Offer, error)
	GetOfferByExternalID(ctx context.Context, connectionID int64, externalID string) (*model.Offer, error)
	ListOffers(ctx context.Context, connectionID int64) ([]model.Offer, error)
	ListActiveOffers(ctx context.Context, userID int64) ([]model.Offer, error)
	SetOfferStatus(ctx context.Context, id int64, status model.OfferStatus) error
	ArchiveMissing(ctx context.Context, r ArchiveRange) (int64, error)
	PromoteGoalCompleted(ctx context.Context, connectionID int64) (int64, error)
	PromoteBudgetCompleted(ctx context.Context, connectionID int64) (int64, error)
}

// CampaignStore persists segments, campaigns and their channel allocations.
type CampaignStore interface {
	CreateSegment(ctx context.Context, s *model.Segment) error
	GetSegment(ctx context.Context, id int64) (*model.Segment, error)

	CreateCampaign(ctx context.Context, c *model.Campaign) error
	GetCampaign(ctx context.Context, id int64) (*model.Campaign, error)
	ListActiveCampaigns(ctx context.Context) ([]model.Campaign, error)
	SetCampaignStatus(ctx context.Context, id int64, status model.CampaignStatus) error

	InsertCampaignChannels(ctx context.Context, rows []model.CampaignChannel) error
	ListCampaignChannels(ctx context.Context, campaignID int64) ([]model.CampaignChannel, error)
	ChannelHistory(ctx context.Context, channels []string, since time.Time) ([]model.ChannelPerformance, error)
	SetExternalCampaignID(ctx context.Context, campaignID int64, channelID, externalID string) error
	SetCampaignChannelStatus(ctx context.Context, campaignID int64, channelID string, status model.CampaignChannelStatus) error
	UpdateOfferChannelStats(ctx context.Context, campaignID, offerID int64, channelID string, st ChannelStats) error
	UpdateChannelStats(ctx context.Context, id int64, st ChannelStats) error
}

// CredentialStore persists per-user channel credentials.
type CredentialStore interface {
	GetCredentials(ctx context.Context, userID int64, channelID string) (*model.ChannelCredentials, error)
	SaveCredentials(ctx context.Context, c *model.ChannelCredentials) error
}

// Storage is the interface for all persistence operations.
type Storage interface {
	ConnectionStore
	MappingStore
	OfferStore
	CampaignStore
	CredentialStore

	Close() error
}
