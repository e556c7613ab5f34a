// Package source implements the per-kind adapters that fetch raw job-offer
// data from external sources and parse it into source records.
package source

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"time"

	"job_distributor/internal/model"
	"job_distributor/internal/record"
)

var (
	// ErrSourceUnavailable marks network or filesystem failures while fetching.
	ErrSourceUnavailable = errors.New("source unavailable")
	// ErrMalformedSource marks raw data that could not be parsed into records.
	ErrMalformedSource = errors.New("malformed source")
	// ErrUnsupportedKind is returned for connection kinds without an adapter.
	ErrUnsupportedKind = errors.New("unsupported connection kind")
)

// Adapter fetches and parses one kind of source.
type Adapter interface {
	// Fetch reads the raw payload from the network or filesystem.
	Fetch(ctx context.Context) ([]byte, error)
	// Parse turns a raw payload into an ordered list of records.
	Parse(raw []byte) ([]*record.Record, error)
	// DetectFields samples the fields of the first record for mapping assistance.
	DetectFields(raw []byte) ([]FieldDescriptor, error)
	// Test fetches and parses once and reports whether records were found.
	Test(ctx context.Context) (bool, string)
}

// Partial is implemented by adapters whose Fetch can succeed while skipping
// part of the source. Gaps describes what the last Fetch missed and is empty
// after a complete pass.
type Partial interface {
	Gaps() []string
}

// Options configures adapter construction.
type Options struct {
	Client    HTTPClient
	Timeout   time.Duration
	PageDelay time.Duration
	Log       *slog.Logger
}

func (o Options) withDefaults() Options {
	if o.Client == nil {
		o.Client = http.DefaultClient
	}
	if o.Timeout <= 0 {
		o.Timeout = 30 * time.Second
	}
	if o.PageDelay <= 0 {
		o.PageDelay = 200 * time.Millisecond
	}
	if o.Log == nil {
		o.Log = slog.New(slog.NewTextHandler(io.Discard, nil))
	}
	return o
}

// New returns the adapter for the connection's kind.
func New(conn *model.Connection, opts Options) (Adapter, error) {
	opts = opts.withDefaults()
	switch conn.Kind {
	case model.KindXMLFeed:
		return &XMLFeed{url: conn.URL, fetcher: newFetcher(opts.Client, opts.Timeout)}, nil
	case model.KindXMLFile:
		return &XMLFile{path: conn.URL}, nil
	case model.KindCSVFile:
		return &CSVFile{path: conn.URL}, nil
	case model.KindAPI:
		return newAPI(conn, opts)
	default:
		return nil, fmt.Errorf("%w: %q", ErrUnsupportedKind, conn.Kind)
	}
}

func testAdapter(ctx context.Context, a Adapter) (bool, string) {
	raw, err := a.Fetch(ctx)
	if err != nil {
		return false, fmt.Sprintf("fetch failed: %v", err)
	}
	recs, err := a.Parse(raw)
	if err != nil {
		return false, fmt.Sprintf("parse failed: %v", err)
	}
	if len(recs) == 0 {
		return false, "connection reachable but no records found"
	}
	return true, fmt.Sprintf("connection ok: %d records found", len(recs))
}

func detectFromRecords(recs []*record.Record) []FieldDescriptor {
	if len(recs) == 0 {
		return nil
	}
	return Describe(recs[0])
}
