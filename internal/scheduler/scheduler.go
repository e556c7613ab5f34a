// Package scheduler runs ingestion for connections whose sync interval has
// elapsed.
package scheduler

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"job_distributor/internal/ingest"
	"job_distributor/internal/model"
)

// DueLister lists the connections due for a sync.
type DueLister interface {
	ListDueConnections(ctx context.Context, now time.Time) ([]model.Connection, error)
}

// Ingester runs one ingestion pass for a connection.
type Ingester interface {
	Ingest(ctx context.Context, connectionID int64) (*ingest.RunResult, error)
}

// Scheduler periodically ingests due connections.
type Scheduler struct {
	store    DueLister
	ingester Ingester
	log      *slog.Logger
	tick     time.Duration
	now      func() time.Time
}

// New creates a Scheduler that checks for due connections every minute.
func New(store DueLister, ingester Ingester, log *slog.Logger) *Scheduler {
	return &Scheduler{
		store:    store,
		ingester: ingester,
		log:      log,
		tick:     1 * time.Minute,
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetTickInterval overrides the default 1-minute check interval.
func (s *Scheduler) SetTickInterval(d time.Duration) {
	if d > 0 {
		s.tick = d
	}
}

// Run starts the scheduler loop, blocking until ctx is cancelled.
func (s *Scheduler) Run(ctx context.Context) {
	s.checkAll(ctx)

	ticker := time.NewTicker(s.tick)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			s.checkAll(ctx)
		}
	}
}

func (s *Scheduler) checkAll(ctx context.Context) {
	conns, err := s.store.ListDueConnections(ctx, s.now())
	if err != nil {
		s.log.Error("list due connections", "error", err)
		return
	}

	for _, conn := range conns {
		if ctx.Err() != nil {
			return
		}
		s.sync(ctx, conn)
	}
}

func (s *Scheduler) sync(ctx context.Context, conn model.Connection) {
	s.log.Debug("syncing connection", "connection_id", conn.ID, "name", conn.Name)

	res, err := s.ingester.Ingest(ctx, conn.ID)
	switch {
	case errors.Is(err, ingest.ErrRunInProgress):
		s.log.Debug("connection already syncing", "connection_id", conn.ID)
		return
	case err != nil:
		s.log.Error("sync connection", "connection_id", conn.ID, "error", err)
		return
	}

	if res.Skipped {
		return
	}
	s.log.Info("synced connection", "connection_id", conn.ID, "name", conn.Name,
		"processed", res.Batch.Processed, "failed", res.Batch.Failed)
}
