package storage

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"time"

	"job_distributor/internal/model"
)

// GetCredentials returns the stored credentials of a user for one channel.
func (s *SQL) GetCredentials(ctx context.Context, userID int64, channelID string) (*model.ChannelCredentials, error) {
	var c model.ChannelCredentials
	var values string
	var active int
	var updated sql.NullString
	err := s.queryRow(ctx,
		`SELECT user_id, channel_id, credentials, is_active, updated_at
		 FROM channel_credentials WHERE user_id = ? AND channel_id = ?`, userID, channelID,
	).Scan(&c.UserID, &c.ChannelID, &values, &active, &updated)
	if err != nil {
		return nil, notFound(err, "credentials")
	}
	if err := json.Unmarshal([]byte(values), &c.Values); err != nil {
		return nil, fmt.Errorf("decode credentials: %w", err)
	}
	c.IsActive = active == 1
	c.UpdatedAt = parseTime(updated)
	return &c, nil
}

// SaveCredentials inserts or replaces the credentials of a user for one channel.
func (s *SQL) SaveCredentials(ctx context.Context, c *model.ChannelCredentials) error {
	values, err := json.Marshal(c.Values)
	if err != nil {
		return fmt.Errorf("encode credentials: %w", err)
	}
	now := time.Now().UTC()
	_, err = s.exec(ctx,
		`INSERT INTO channel_credentials (user_id, channel_id, credentials, is_active, updated_at)
		 VALUES (?, ?, ?, ?, ?)
		 ON CONFLICT (user_id, channel_id) DO UPDATE SET
		 credentials = excluded.credentials,
		 is_active = excluded.is_active,
		 updated_at = excluded.updated_at`,
		c.UserID, c.ChannelID, string(values), boolToInt(c.IsActive), formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("save credentials: %w", err)
	}
	c.UpdatedAt, _ = time.Parse(timeLayout, formatTime(now))
	return nil
}
