package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"job_distributor/internal/model"
)

// CreateSegment inserts a new segment and populates its ID and CreatedAt.
func (s *SQL) CreateSegment(ctx context.Context, seg *model.Segment) error {
	filters, err := json.Marshal(seg.Filters)
	if err != nil {
		return fmt.Errorf("encode segment filters: %w", err)
	}
	now := time.Now().UTC()
	id, err := s.insertID(ctx,
		`INSERT INTO segments (user_id, name, filters, created_at) VALUES (?, ?, ?, ?)`,
		seg.UserID, seg.Name, string(filters), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert segment: %w", err)
	}
	seg.ID = id
	seg.CreatedAt, _ = time.Parse(timeLayout, formatTime(now))
	return nil
}

// GetSegment returns a single segment by its ID.
func (s *SQL) GetSegment(ctx context.Context, id int64) (*model.Segment, error) {
	var seg model.Segment
	var filters string
	var created sql.NullString
	err := s.queryRow(ctx,
		`SELECT id, user_id, name, filters, created_at FROM segments WHERE id = ?`, id,
	).Scan(&seg.ID, &seg.UserID, &seg.Name, &filters, &created)
	if err != nil {
		return nil, notFound(err, "segment")
	}
	if err := json.Unmarshal([]byte(filters), &seg.Filters); err != nil {
		return nil, fmt.Errorf("decode segment %d filters: %w", id, err)
	}
	seg.CreatedAt = parseTime(created)
	return &seg, nil
}

const campaignColumns = `id, user_id, name, budget, target_applications, max_cpa, distribution_mode,
	channels, segment_ids, status, created_at`

// CreateCampaign inserts a new campaign and populates its ID and CreatedAt.
func (s *SQL) CreateCampaign(ctx context.Context, c *model.Campaign) error {
	channels, err := json.Marshal(nonNil(c.Channels))
	if err != nil {
		return fmt.Errorf("encode channels: %w", err)
	}
	segments, err := json.Marshal(nonNil(c.SegmentIDs))
	if err != nil {
		return fmt.Errorf("encode segment ids: %w", err)
	}
	if c.Status == "" {
		c.Status = model.CampaignDraft
	}
	if c.Mode == "" {
		c.Mode = model.ModeAutomatic
	}
	now := time.Now().UTC()
	id, err := s.insertID(ctx,
		`INSERT INTO campaigns (user_id, name, budget, target_applications, max_cpa, distribution_mode,
		 channels, segment_ids, status, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.Name, c.Budget, c.TargetApplications, c.MaxCPA, string(c.Mode),
		string(channels), string(segments), string(c.Status), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert campaign: %w", err)
	}
	c.ID = id
	c.CreatedAt, _ = time.Parse(timeLayout, formatTime(now))
	return nil
}

// GetCampaign returns a single campaign by its ID.
func (s *SQL) GetCampaign(ctx context.Context, id int64) (*model.Campaign, error) {
	row := s.queryRow(ctx, `SELECT `+campaignColumns+` FROM campaigns WHERE id = ?`, id)
	c, err := scanCampaign(row)
	if err != nil {
		return nil, notFound(err, "campaign")
	}
	return c, nil
}

// ListActiveCampaigns returns every campaign in the active status.
func (s *SQL) ListActiveCampaigns(ctx context.Context) ([]model.Campaign, error) {
	rows, err := s.query(ctx,
		`SELECT `+campaignColumns+` FROM campaigns WHERE status = ? ORDER BY id`, string(model.CampaignActive),
	)
	if err != nil {
		return nil, fmt.Errorf("query active campaigns: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.Campaign
	for rows.Next() {
		c, err := scanCampaign(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign: %w", err)
		}
		out = append(out, *c)
	}
	return out, rows.Err()
}

// SetCampaignStatus updates the status of a campaign.
func (s *SQL) SetCampaignStatus(ctx context.Context, id int64, status model.CampaignStatus) error {
	_, err := s.exec(ctx, `UPDATE campaigns SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update campaign status: %w", err)
	}
	return nil
}

const campaignChannelColumns = `id, campaign_id, offer_id, channel_id, allocated_budget, allocated_target,
	budget_spent, applications_received, current_cpa, bid_amount, quality_score, conversion_rate,
	status, external_campaign_id, created_at, updated_at`

// InsertCampaignChannels writes allocation rows in one transaction. An
// existing (campaign, offer, channel) row gets its allocation replaced.
func (s *SQL) InsertCampaignChannels(ctx context.Context, rows []model.CampaignChannel) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	now := formatTime(time.Now())
	query := s.rebind(`INSERT INTO campaign_channels (campaign_id, offer_id, channel_id, allocated_budget,
		allocated_target, budget_spent, applications_received, current_cpa, bid_amount, quality_score,
		conversion_rate, status, created_at, updated_at)
		VALUES (?, ?, ?, ?, ?, 0, 0, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT (campaign_id, offer_id, channel_id) DO UPDATE SET
		allocated_budget = excluded.allocated_budget,
		allocated_target = excluded.allocated_target,
		bid_amount = excluded.bid_amount,
		updated_at = excluded.updated_at
		RETURNING id`)

	for i := range rows {
		r := &rows[i]
		if r.Status == "" {
			r.Status = model.ChannelPending
		}
		err := tx.QueryRowContext(ctx, query,
			r.CampaignID, r.OfferID, r.ChannelID, r.AllocatedBudget, r.AllocatedTarget,
			r.CurrentCPA, r.BidAmount, r.QualityScore, r.ConversionRate, string(r.Status), now, now,
		).Scan(&r.ID)
		if err != nil {
			return fmt.Errorf("insert campaign channel %s/%d: %w", r.ChannelID, r.OfferID, err)
		}
	}
	return tx.Commit()
}

// ListCampaignChannels returns all allocation rows of a campaign.
func (s *SQL) ListCampaignChannels(ctx context.Context, campaignID int64) ([]model.CampaignChannel, error) {
	rows, err := s.query(ctx,
		`SELECT `+campaignChannelColumns+` FROM campaign_channels WHERE campaign_id = ? ORDER BY id`, campaignID,
	)
	if err != nil {
		return nil, fmt.Errorf("query campaign channels: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.CampaignChannel
	for rows.Next() {
		cc, err := scanCampaignChannel(rows)
		if err != nil {
			return nil, fmt.Errorf("scan campaign channel: %w", err)
		}
		out = append(out, cc)
	}
	return out, rows.Err()
}

// ChannelHistory returns per-channel averages of CPA, quality and conversion
// over rows created since the given time.
func (s *SQL) ChannelHistory(ctx context.Context, channels []string, since time.Time) ([]model.ChannelPerformance, error) {
	if len(channels) == 0 {
		return nil, nil
	}
	args := []any{formatTime(since)}
	for _, ch := range channels {
		args = append(args, ch)
	}
	rows, err := s.query(ctx,
		`SELECT channel_id, AVG(current_cpa), AVG(quality_score), AVG(conversion_rate)
		 FROM campaign_channels
		 WHERE created_at >= ? AND channel_id IN (`+placeholders(len(channels))+`)
		 GROUP BY channel_id ORDER BY channel_id`, args...,
	)
	if err != nil {
		return nil, fmt.Errorf("query channel history: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.ChannelPerformance
	for rows.Next() {
		var p model.ChannelPerformance
		var cpa, quality, conv sql.NullFloat64
		if err := rows.Scan(&p.ChannelID, &cpa, &quality, &conv); err != nil {
			return nil, fmt.Errorf("scan channel history: %w", err)
		}
		p.AvgCPA, p.AvgQuality, p.AvgConversion = cpa.Float64, quality.Float64, conv.Float64
		out = append(out, p)
	}
	return out, rows.Err()
}

// SetExternalCampaignID stores the channel-side id of a published campaign
// and activates its rows.
func (s *SQL) SetExternalCampaignID(ctx context.Context, campaignID int64, channelID, externalID string) error {
	_, err := s.exec(ctx,
		`UPDATE campaign_channels SET external_campaign_id = ?, status = ?, updated_at = ?
		 WHERE campaign_id = ? AND channel_id = ?`,
		externalID, string(model.ChannelActive), formatTime(time.Now()), campaignID, channelID,
	)
	if err != nil {
		return fmt.Errorf("set external campaign id: %w", err)
	}
	return nil
}

// SetCampaignChannelStatus sets the status of every row of a campaign channel.
func (s *SQL) SetCampaignChannelStatus(ctx context.Context, campaignID int64, channelID string, status model.CampaignChannelStatus) error {
	_, err := s.exec(ctx,
		`UPDATE campaign_channels SET status = ?, updated_at = ? WHERE campaign_id = ? AND channel_id = ?`,
		string(status), formatTime(time.Now()), campaignID, channelID,
	)
	if err != nil {
		return fmt.Errorf("set campaign channel status: %w", err)
	}
	return nil
}

// UpdateOfferChannelStats writes performance for one (campaign, offer, channel) row.
func (s *SQL) UpdateOfferChannelStats(ctx context.Context, campaignID, offerID int64, channelID string, st ChannelStats) error {
	_, err := s.exec(ctx,
		`UPDATE campaign_channels SET budget_spent = ?, applications_received = ?, current_cpa = ?, updated_at = ?
		 WHERE campaign_id = ? AND offer_id = ? AND channel_id = ?`,
		st.BudgetSpent, st.ApplicationsReceived, st.CurrentCPA, formatTime(time.Now()), campaignID, offerID, channelID,
	)
	if err != nil {
		return fmt.Errorf("update offer channel stats: %w", err)
	}
	return nil
}

// UpdateChannelStats writes performance for one campaign channel row by ID.
func (s *SQL) UpdateChannelStats(ctx context.Context, id int64, st ChannelStats) error {
	_, err := s.exec(ctx,
		`UPDATE campaign_channels SET budget_spent = ?, applications_received = ?, current_cpa = ?, updated_at = ?
		 WHERE id = ?`,
		st.BudgetSpent, st.ApplicationsReceived, st.CurrentCPA, formatTime(time.Now()), id,
	)
	if err != nil {
		return fmt.Errorf("update channel stats: %w", err)
	}
	return nil
}

func scanCampaign(row scannable) (*model.Campaign, error) {
	var c model.Campaign
	var mode, channels, segments, status string
	var created sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &c.Budget, &c.TargetApplications, &c.MaxCPA, &mode,
		&channels, &segments, &status, &created)
	if err != nil {
		return nil, err
	}
	if err := json.Unmarshal([]byte(channels), &c.Channels); err != nil {
		return nil, fmt.Errorf("decode channels: %w", err)
	}
	if err := json.Unmarshal([]byte(segments), &c.SegmentIDs); err != nil {
		return nil, fmt.Errorf("decode segment ids: %w", err)
	}
	c.Mode = model.DistributionMode(mode)
	c.Status = model.CampaignStatus(status)
	c.CreatedAt = parseTime(created)
	return &c, nil
}

func scanCampaignChannel(row scannable) (model.CampaignChannel, error) {
	var cc model.CampaignChannel
	var status string
	var external, created, updated sql.NullString
	err := row.Scan(&cc.ID, &cc.CampaignID, &cc.OfferID, &cc.ChannelID, &cc.AllocatedBudget, &cc.AllocatedTarget,
		&cc.BudgetSpent, &cc.ApplicationsReceived, &cc.CurrentCPA, &cc.BidAmount, &cc.QualityScore,
		&cc.ConversionRate, &status, &external, &created, &updated)
	if err != nil {
		return cc, err
	}
	cc.Status = model.CampaignChannelStatus(status)
	cc.ExternalCampaignID = external.String
	cc.CreatedAt = parseTime(created)
	cc.UpdatedAt = parseTime(updated)
	return cc, nil
}

func nonNil[T any](s []T) []T {
	if s == nil {
		return []T{}
	}
	return s
}
