package ingest

import (
	"context"
	"fmt"
	"log/slog"
	"slices"

	"job_distributor/internal/storage"
)

// DefaultChunkSize bounds the number of ids bound into one sweep statement.
const DefaultChunkSize = 2000

// Archiver runs one sweep statement.
type Archiver interface {
	ArchiveMissing(ctx context.Context, r storage.ArchiveRange) (int64, error)
}

// SweepResult summarizes an archival sweep. A failed statement is reported in
// Warning and does not stop the remaining ones.
type SweepResult struct {
	Archived   int64  `json:"archived"`
	Statements int    `json:"statements"`
	Warning    string `json:"warning,omitempty"`
}

// Sweeper archives offers that were absent from the latest ingestion pass.
type Sweeper struct {
	store Archiver
	chunk int
	log   *slog.Logger
}

// NewSweeper creates a Sweeper. A non-positive chunk uses DefaultChunkSize.
func NewSweeper(store Archiver, chunk int, log *slog.Logger) *Sweeper {
	if chunk <= 0 {
		chunk = DefaultChunkSize
	}
	return &Sweeper{store: store, chunk: chunk, log: log}
}

// Archive flips every unlocked offer of the connection and source whose
// external id is not in active to archived.
//
// The sorted id list is cut into chunks and each statement only covers the
// key range of its chunk, so an id kept by one chunk is never archived by
// another.
func (s *Sweeper) Archive(ctx context.Context, connectionID int64, source string, active []string) SweepResult {
	ids := slices.Clone(active)
	slices.Sort(ids)
	ids = slices.Compact(ids)

	var ranges []storage.ArchiveRange
	for start := 0; start < len(ids); start += s.chunk {
		end := min(start+s.chunk, len(ids))
		r := storage.ArchiveRange{ConnectionID: connectionID, Source: source, Keep: ids[start:end]}
		if start > 0 {
			r.From = ids[start]
		}
		if end < len(ids) {
			r.Until = ids[end]
		}
		ranges = append(ranges, r)
	}
	if len(ranges) == 0 {
		ranges = append(ranges, storage.ArchiveRange{ConnectionID: connectionID, Source: source})
	}

	var res SweepResult
	var failed int
	for _, r := range ranges {
		res.Statements++
		n, err := s.store.ArchiveMissing(ctx, r)
		if err != nil {
			failed++
			s.log.Error("archive chunk", "connection_id", connectionID, "keep", len(r.Keep), "error", err)
			continue
		}
		res.Archived += n
	}
	if failed > 0 {
		res.Warning = fmt.Sprintf("%d of %d archive statements failed", failed, res.Statements)
	}
	if res.Archived > 0 {
		s.log.Info("archived offers", "connection_id", connectionID, "count", res.Archived)
	}
	return res
}
