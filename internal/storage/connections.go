package storage

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"job_distributor/internal/model"
)

const connectionColumns = `id, user_id, name, kind, url, method, headers, body, sync_interval_minutes,
	status, last_sync_at, imported_offers, error_count, created_at`

// CreateConnection inserts a new connection and populates its ID and CreatedAt.
func (s *SQL) CreateConnection(ctx context.Context, c *model.Connection) error {
	now := time.Now().UTC()
	if c.Status == "" {
		c.Status = model.ConnectionPending
	}
	if c.Method == "" {
		c.Method = "GET"
	}
	id, err := s.insertID(ctx,
		`INSERT INTO connections (user_id, name, kind, url, method, headers, body, sync_interval_minutes,
		 status, last_sync_at, imported_offers, error_count, created_at)
		 VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)`,
		c.UserID, c.Name, string(c.Kind), c.URL, c.Method, c.Headers, c.Body, c.SyncIntervalMinutes,
		string(c.Status), formatTimePtr(c.LastSyncAt), c.ImportedOffers, c.ErrorCount, formatTime(now),
	)
	if err != nil {
		return fmt.Errorf("insert connection: %w", err)
	}
	c.ID = id
	c.CreatedAt, _ = time.Parse(timeLayout, formatTime(now))
	return nil
}

// GetConnection returns a single connection by its ID.
func (s *SQL) GetConnection(ctx context.Context, id int64) (*model.Connection, error) {
	row := s.queryRow(ctx, `SELECT `+connectionColumns+` FROM connections WHERE id = ?`, id)
	c, err := scanConnection(row)
	if err != nil {
		return nil, notFound(err, "connection")
	}
	return c, nil
}

// ListDueConnections returns the scheduled connections whose sync interval
// has elapsed at now. Manual and currently importing connections are skipped.
func (s *SQL) ListDueConnections(ctx context.Context, now time.Time) ([]model.Connection, error) {
	rows, err := s.query(ctx,
		`SELECT `+connectionColumns+` FROM connections
		 WHERE sync_interval_minutes > 0 AND kind <> ? AND status <> ?
		 ORDER BY id`,
		string(model.KindManual), string(model.ConnectionImporting),
	)
	if err != nil {
		return nil, fmt.Errorf("query due connections: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var due []model.Connection
	for rows.Next() {
		c, err := scanConnection(rows)
		if err != nil {
			return nil, fmt.Errorf("scan connection: %w", err)
		}
		interval := time.Duration(c.SyncIntervalMinutes) * time.Minute
		if c.LastSyncAt == nil || !c.LastSyncAt.Add(interval).After(now) {
			due = append(due, *c)
		}
	}
	return due, rows.Err()
}

// SetConnectionStatus updates only the status of a connection.
func (s *SQL) SetConnectionStatus(ctx context.Context, id int64, status model.ConnectionStatus) error {
	_, err := s.exec(ctx, `UPDATE connections SET status = ? WHERE id = ?`, string(status), id)
	if err != nil {
		return fmt.Errorf("update connection status: %w", err)
	}
	return nil
}

// RecordSync stores the outcome of a completed ingestion run.
func (s *SQL) RecordSync(ctx context.Context, id int64, res SyncResult) error {
	_, err := s.exec(ctx,
		`UPDATE connections SET status = ?, last_sync_at = ?, imported_offers = ?, error_count = ?
		 WHERE id = ?`,
		string(res.Status), formatTime(res.SyncedAt), res.Imported, res.ErrorCount, id,
	)
	if err != nil {
		return fmt.Errorf("record sync: %w", err)
	}
	return nil
}

func scanConnection(row scannable) (*model.Connection, error) {
	var c model.Connection
	var kind, status string
	var lastSync, created sql.NullString
	err := row.Scan(&c.ID, &c.UserID, &c.Name, &kind, &c.URL, &c.Method, &c.Headers, &c.Body,
		&c.SyncIntervalMinutes, &status, &lastSync, &c.ImportedOffers, &c.ErrorCount, &created)
	if err != nil {
		return nil, err
	}
	c.Kind = model.SourceKind(kind)
	c.Status = model.ConnectionStatus(status)
	c.LastSyncAt = parseTimePtr(lastSync)
	c.CreatedAt = parseTime(created)
	return &c, nil
}
