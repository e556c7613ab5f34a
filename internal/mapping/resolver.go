package mapping

import (
	"context"
	"fmt"
	"log/slog"

	"job_distributor/internal/model"
	"job_distributor/internal/record"
)

// Store is the persistence the resolver needs.
type Store interface {
	ListMappings(ctx context.Context, connectionID int64) ([]model.FieldMapping, error)
	ReplaceMappings(ctx context.Context, connectionID int64, mappings []model.FieldMapping) error
	UpsertMappings(ctx context.Context, connectionID int64, mappings []model.FieldMapping) error
}

// AutoResult reports the outcome of mapping inference. A non-empty Warning
// means persistence failed; ingestion carries on regardless.
type AutoResult struct {
	Mappings []model.FieldMapping
	Warning  string
}

// Resolver loads and maintains field mappings per connection.
type Resolver struct {
	store Store
	log   *slog.Logger
}

// NewResolver creates a Resolver backed by store.
func NewResolver(store Store, log *slog.Logger) *Resolver {
	return &Resolver{store: store, log: log}
}

// Resolve returns the persisted mappings of a connection. An empty result is
// not an error; the normalizer then relies on its default mapping.
func (r *Resolver) Resolve(ctx context.Context, connectionID int64) ([]model.FieldMapping, error) {
	ms, err := r.store.ListMappings(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("list mappings: %w", err)
	}
	return ms, nil
}

// Save validates and fully replaces the mappings of a connection.
func (r *Resolver) Save(ctx context.Context, connectionID int64, mappings []model.FieldMapping) error {
	seen := make(map[[2]string]bool, len(mappings))
	out := make([]model.FieldMapping, 0, len(mappings))
	for _, m := range mappings {
		if m.SourceField == "" || m.TargetField == "" {
			return fmt.Errorf("mapping with empty source or target field")
		}
		if _, ok := CanonicalTarget(m.TargetField); !ok {
			return fmt.Errorf("unknown target field %q", m.TargetField)
		}
		switch m.Type {
		case "":
			m.Type = model.TransformString
		case model.TransformString, model.TransformNumber, model.TransformDate,
			model.TransformBoolean, model.TransformArray:
		default:
			return fmt.Errorf("unknown transformation type %q", m.Type)
		}
		key := [2]string{m.SourceField, m.TargetField}
		if seen[key] {
			continue
		}
		seen[key] = true
		m.ConnectionID = connectionID
		out = append(out, m)
	}
	if err := r.store.ReplaceMappings(ctx, connectionID, out); err != nil {
		return fmt.Errorf("replace mappings: %w", err)
	}
	return nil
}

// AutoGenerate infers mappings from a sample record and upserts them.
func (r *Resolver) AutoGenerate(ctx context.Context, connectionID int64, sample *record.Record) AutoResult {
	if sample == nil || sample.Len() == 0 {
		return AutoResult{Warning: "no sample record to infer mappings from"}
	}
	ms := Infer(connectionID, sample)
	if len(ms) == 0 {
		return AutoResult{Warning: "no recognizable fields in sample record"}
	}
	if err := r.store.UpsertMappings(ctx, connectionID, ms); err != nil {
		r.log.Warn("auto-generate mappings", "connection_id", connectionID, "error", err)
		return AutoResult{Mappings: ms, Warning: fmt.Sprintf("save inferred mappings: %v", err)}
	}
	r.log.Debug("auto-generated mappings", "connection_id", connectionID, "count", len(ms))
	return AutoResult{Mappings: ms}
}
