package storage

import (
	"context"
	"fmt"

	"job_distributor/internal/model"
)

// ListMappings returns the field mappings of a connection in insertion order.
func (s *SQL) ListMappings(ctx context.Context, connectionID int64) ([]model.FieldMapping, error) {
	rows, err := s.query(ctx,
		`SELECT connection_id, source_field, target_field, transformation_type, transformation_rule
		 FROM field_mappings WHERE connection_id = ? ORDER BY id`, connectionID,
	)
	if err != nil {
		return nil, fmt.Errorf("query mappings: %w", err)
	}
	defer func() { _ = rows.Close() }()

	var out []model.FieldMapping
	for rows.Next() {
		var m model.FieldMapping
		var typ string
		if err := rows.Scan(&m.ConnectionID, &m.SourceField, &m.TargetField, &typ, &m.Rule); err != nil {
			return nil, fmt.Errorf("scan mapping: %w", err)
		}
		m.Type = model.TransformationType(typ)
		out = append(out, m)
	}
	return out, rows.Err()
}

// ReplaceMappings deletes all mappings of a connection and inserts the given set.
func (s *SQL) ReplaceMappings(ctx context.Context, connectionID int64, mappings []model.FieldMapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	if _, err := tx.ExecContext(ctx, s.rebind(`DELETE FROM field_mappings WHERE connection_id = ?`), connectionID); err != nil {
		return fmt.Errorf("delete mappings: %w", err)
	}
	for _, m := range mappings {
		if _, err := tx.ExecContext(ctx, s.rebind(upsertMappingSQL),
			connectionID, m.SourceField, m.TargetField, string(m.Type), m.Rule,
		); err != nil {
			return fmt.Errorf("insert mapping %s->%s: %w", m.SourceField, m.TargetField, err)
		}
	}
	return tx.Commit()
}

// UpsertMappings inserts mappings, updating the type of existing (source, target) pairs.
func (s *SQL) UpsertMappings(ctx context.Context, connectionID int64, mappings []model.FieldMapping) error {
	tx, err := s.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("begin tx: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, m := range mappings {
		if _, err := tx.ExecContext(ctx, s.rebind(upsertMappingSQL),
			connectionID, m.SourceField, m.TargetField, string(m.Type), m.Rule,
		); err != nil {
			return fmt.Errorf("upsert mapping %s->%s: %w", m.SourceField, m.TargetField, err)
		}
	}
	return tx.Commit()
}

const upsertMappingSQL = `INSERT INTO field_mappings
	(connection_id, source_field, target_field, transformation_type, transformation_rule)
	VALUES (?, ?, ?, ?, ?)
	ON CONFLICT (connection_id, source_field, target_field) DO UPDATE SET
	transformation_type = excluded.transformation_type,
	transformation_rule = excluded.transformation_rule`
