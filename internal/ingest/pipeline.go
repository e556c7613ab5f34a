package ingest

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"job_distributor/internal/lock"
	"job_distributor/internal/mapping"
	"job_distributor/internal/model"
	"job_distributor/internal/normalize"
	"job_distributor/internal/record"
	"job_distributor/internal/source"
	"job_distributor/internal/storage"
)

// Errors returned by the pipeline.
var (
	ErrRunInProgress = errors.New("ingestion already running for connection")
	ErrNoRawCache    = errors.New("raw record cache not configured")
)

// Store is the persistence the pipeline needs.
type Store interface {
	storage.ConnectionStore
	storage.MappingStore
	OfferWriter
	Archiver
	Promoter
}

// Guard serializes runs of the same connection.
type Guard interface {
	Acquire(ctx context.Context, connectionID int64) (lock.Release, error)
}

// RawCache keeps the last parsed records of a connection.
type RawCache interface {
	Put(ctx context.Context, connectionID int64, recs []*record.Record) error
	Get(ctx context.Context, connectionID int64) ([]*record.Record, error)
}

// AdapterFactory builds the source adapter of a connection.
type AdapterFactory func(conn *model.Connection) (source.Adapter, error)

// RunResult reports one ingestion run.
type RunResult struct {
	ConnectionID int64         `json:"connectionId"`
	Skipped      bool          `json:"skipped,omitempty"`
	Incomplete   bool          `json:"incomplete,omitempty"`
	Records      int           `json:"records"`
	Batch        BatchResult   `json:"batch"`
	Sweep        *SweepResult  `json:"sweep,omitempty"`
	Promote      PromoteResult `json:"promote"`
	Warnings     []string      `json:"warnings,omitempty"`
}

// Options configures a Pipeline. Zero values select defaults.
type Options struct {
	BatchSize int
	ChunkSize int
	Guard     Guard
	Cache     RawCache
	Adapters  AdapterFactory
	Clock     func() time.Time
}

// Pipeline ingests one connection at a time: fetch, parse, normalize,
// batch upsert, sweep and promote.
type Pipeline struct {
	store      Store
	resolver   *mapping.Resolver
	normalizer *normalize.Normalizer
	batcher    *Batcher
	sweeper    *Sweeper
	updater    *StatusUpdater
	guard      Guard
	cache      RawCache
	adapters   AdapterFactory
	now        func() time.Time
	log        *slog.Logger
}

// NewPipeline creates a Pipeline backed by store.
func NewPipeline(store Store, opts Options, log *slog.Logger) *Pipeline {
	if opts.Guard == nil {
		opts.Guard = lock.NewMemory()
	}
	if opts.Adapters == nil {
		opts.Adapters = func(conn *model.Connection) (source.Adapter, error) {
			return source.New(conn, source.Options{Log: log})
		}
	}
	if opts.Clock == nil {
		opts.Clock = func() time.Time { return time.Now().UTC() }
	}
	return &Pipeline{
		store:      store,
		resolver:   mapping.NewResolver(store, log),
		normalizer: normalize.NewWithClock(opts.Clock),
		batcher:    NewBatcher(store, opts.BatchSize, log),
		sweeper:    NewSweeper(store, opts.ChunkSize, log),
		updater:    NewStatusUpdater(store),
		guard:      opts.Guard,
		cache:      opts.Cache,
		adapters:   opts.Adapters,
		now:        opts.Clock,
		log:        log,
	}
}

// Ingest runs a full ingestion pass for a connection. Fetch and parse
// failures abort the run, mark the connection as errored and are returned.
func (p *Pipeline) Ingest(ctx context.Context, connectionID int64) (*RunResult, error) {
	conn, err := p.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}
	if conn.Kind == model.KindManual {
		p.log.Info("manual connection, nothing to import", "connection_id", conn.ID)
		return &RunResult{ConnectionID: conn.ID, Skipped: true}, nil
	}

	release, err := p.acquire(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	if err := p.store.SetConnectionStatus(ctx, conn.ID, model.ConnectionImporting); err != nil {
		return nil, fmt.Errorf("mark importing: %w", err)
	}

	recs, gaps, err := p.load(ctx, conn)
	if err != nil {
		p.fail(ctx, conn, err)
		return nil, err
	}

	var warnings []string
	complete := len(gaps) == 0
	if !complete {
		p.log.Warn("source pass incomplete", "connection_id", conn.ID, "gaps", len(gaps))
		warnings = append(warnings, gaps...)
	}
	// An incomplete pass must not replace the cached records used by Remap.
	if p.cache != nil && complete {
		if err := p.cache.Put(ctx, conn.ID, recs); err != nil {
			p.log.Warn("cache raw records", "connection_id", conn.ID, "error", err)
			warnings = append(warnings, "raw records not cached: "+err.Error())
		}
	}

	res, err := p.process(ctx, conn, recs, complete)
	if err != nil {
		p.fail(ctx, conn, err)
		return nil, err
	}
	res.Warnings = append(warnings, res.Warnings...)
	return res, nil
}

// Remap rebuilds the offers of a connection from its cached raw records with
// the current mappings, without contacting the source.
func (p *Pipeline) Remap(ctx context.Context, connectionID int64) (*RunResult, error) {
	if p.cache == nil {
		return nil, ErrNoRawCache
	}
	conn, err := p.store.GetConnection(ctx, connectionID)
	if err != nil {
		return nil, fmt.Errorf("get connection: %w", err)
	}

	release, err := p.acquire(ctx, conn.ID)
	if err != nil {
		return nil, err
	}
	defer release()

	recs, err := p.cache.Get(ctx, conn.ID)
	if err != nil {
		return nil, fmt.Errorf("load raw records: %w", err)
	}
	if err := p.store.SetConnectionStatus(ctx, conn.ID, model.ConnectionImporting); err != nil {
		return nil, fmt.Errorf("mark importing: %w", err)
	}

	res, err := p.process(ctx, conn, recs, true)
	if err != nil {
		p.fail(ctx, conn, err)
		return nil, err
	}
	return res, nil
}

func (p *Pipeline) acquire(ctx context.Context, connectionID int64) (lock.Release, error) {
	release, err := p.guard.Acquire(ctx, connectionID)
	if errors.Is(err, lock.ErrHeld) {
		return nil, fmt.Errorf("connection %d: %w", connectionID, ErrRunInProgress)
	}
	if err != nil {
		return nil, fmt.Errorf("acquire run guard: %w", err)
	}
	return release, nil
}

// load fetches and parses the source. gaps is non-empty when the adapter
// skipped part of the source.
func (p *Pipeline) load(ctx context.Context, conn *model.Connection) (recs []*record.Record, gaps []string, err error) {
	adapter, err := p.adapters(conn)
	if err != nil {
		return nil, nil, fmt.Errorf("build adapter: %w", err)
	}
	raw, err := adapter.Fetch(ctx)
	if err != nil {
		return nil, nil, fmt.Errorf("fetch: %w", err)
	}
	if pa, ok := adapter.(source.Partial); ok {
		gaps = pa.Gaps()
	}
	recs, err = adapter.Parse(raw)
	if err != nil {
		return nil, nil, fmt.Errorf("parse: %w", err)
	}
	p.log.Debug("source parsed", "connection_id", conn.ID, "records", len(recs))
	return recs, gaps, nil
}

// process stores recs. The archival sweep only runs for a complete pass,
// since offers missing from a partial one have not been withdrawn.
func (p *Pipeline) process(ctx context.Context, conn *model.Connection, recs []*record.Record, complete bool) (*RunResult, error) {
	res := &RunResult{ConnectionID: conn.ID, Records: len(recs), Incomplete: !complete}

	mappings, err := p.resolver.Resolve(ctx, conn.ID)
	if err != nil {
		return nil, err
	}

	offers := make([]model.Offer, 0, len(recs))
	active := make([]string, 0, len(recs))
	for _, rec := range recs {
		o := p.normalizer.Normalize(rec, mappings, conn)
		offers = append(offers, o)
		active = append(active, o.ExternalID)
	}

	res.Batch = p.batcher.Ingest(ctx, offers)

	if res.Batch.Processed > 0 {
		// Regenerated on every run so mappings follow source schema changes.
		if auto := p.resolver.AutoGenerate(ctx, conn.ID, recs[0]); auto.Warning != "" {
			res.Warnings = append(res.Warnings, auto.Warning)
		}

		if complete {
			sweep := p.sweeper.Archive(ctx, conn.ID, conn.Kind.Label(), active)
			res.Sweep = &sweep
			if sweep.Warning != "" {
				res.Warnings = append(res.Warnings, sweep.Warning)
			}
		} else {
			p.log.Warn("archival sweep skipped for incomplete pass", "connection_id", conn.ID)
			res.Warnings = append(res.Warnings, "archival sweep skipped: source pass incomplete")
		}
	} else {
		p.log.Warn("nothing stored, archival sweep skipped", "connection_id", conn.ID, "records", len(recs))
	}

	promote, err := p.updater.Update(ctx, conn.ID)
	if err != nil {
		p.log.Error("promote offers", "connection_id", conn.ID, "error", err)
		res.Warnings = append(res.Warnings, err.Error())
	}
	res.Promote = promote

	err = p.store.RecordSync(ctx, conn.ID, storage.SyncResult{
		Status:     model.ConnectionActive,
		SyncedAt:   p.now(),
		Imported:   res.Batch.Processed,
		ErrorCount: res.Batch.Failed,
	})
	if err != nil {
		return nil, err
	}

	p.log.Info("connection ingested", "connection_id", conn.ID, "records", res.Records,
		"processed", res.Batch.Processed, "failed", res.Batch.Failed)
	return res, nil
}

func (p *Pipeline) fail(ctx context.Context, conn *model.Connection, cause error) {
	p.log.Error("ingestion failed", "connection_id", conn.ID, "error", cause)
	err := p.store.RecordSync(ctx, conn.ID, storage.SyncResult{
		Status:     model.ConnectionError,
		SyncedAt:   p.now(),
		Imported:   conn.ImportedOffers,
		ErrorCount: conn.ErrorCount + 1,
	})
	if err != nil {
		p.log.Error("record failed sync", "connection_id", conn.ID, "error", err)
	}
}
