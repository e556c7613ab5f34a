package source

import (
	"context"
	"encoding/json"
	"fmt"
	"log/slog"
	"math"
	"net/http"
	"strings"
	"sync"
	"time"

	"job_distributor/internal/model"
	"job_distributor/internal/record"
)

const (
	defaultPageSize = 8
	maxPages        = 200
)

// Keys probed, in order, for the offer list inside an API payload.
var payloadKeys = []string{"data", "results", "jobs", "offers", "items"}

// API reads offers from a REST endpoint. When the body template carries a
// page object with an index, pages are requested until the reported total.
type API struct {
	url       string
	method    string
	headers   map[string]string
	body      *record.Record
	rawBody   []byte
	fetcher   *fetcher
	pageDelay time.Duration
	log       *slog.Logger

	mu   sync.Mutex
	gaps []string
}

func newAPI(conn *model.Connection, opts Options) (*API, error) {
	method := strings.ToUpper(strings.TrimSpace(conn.Method))
	if method == "" {
		method = http.MethodGet
	}
	headers, err := parseHeaders(conn.Headers)
	if err != nil {
		return nil, err
	}

	a := &API{
		url:       conn.URL,
		method:    method,
		headers:   headers,
		fetcher:   newFetcher(opts.Client, opts.Timeout),
		pageDelay: opts.PageDelay,
		log:       opts.Log.With("connection_id", conn.ID),
	}
	if tmpl := strings.TrimSpace(conn.Body); tmpl != "" {
		v, err := record.DecodeJSON([]byte(tmpl))
		if err != nil {
			return nil, fmt.Errorf("parse body template: %w", err)
		}
		a.body = v.Record()
		a.rawBody = []byte(tmpl)
	}
	return a, nil
}

func parseHeaders(raw string) (map[string]string, error) {
	if strings.TrimSpace(raw) == "" {
		return nil, nil
	}
	var m map[string]any
	if err := json.Unmarshal([]byte(raw), &m); err != nil {
		return nil, fmt.Errorf("parse headers: %w", err)
	}
	out := make(map[string]string, len(m))
	for k, v := range m {
		if s, ok := v.(string); ok {
			out[k] = s
		} else {
			out[k] = fmt.Sprint(v)
		}
	}
	return out, nil
}

// Fetch requests the endpoint, following pagination when configured, and
// returns the collected offer items as one JSON array.
func (a *API) Fetch(ctx context.Context) ([]byte, error) {
	a.setGaps(nil)
	start, size, paged := a.pagination()
	if !paged {
		raw, err := a.fetcher.do(ctx, a.method, a.url, a.headers, a.requestBody())
		if err != nil {
			return nil, err
		}
		v, err := record.DecodeJSON(raw)
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
		}
		return encodeItems(extractItems(v))
	}

	var (
		all        []record.Value
		gaps       []string
		totalPages int
		reached    bool
	)
	defer func() { a.setGaps(gaps) }()

	for i := 0; i < maxPages; i++ {
		idx := start + i
		if i > 0 {
			select {
			case <-ctx.Done():
				return nil, fmt.Errorf("%w: %w", ErrSourceUnavailable, ctx.Err())
			case <-time.After(a.pageDelay):
			}
		}

		body, err := a.pageBody(idx)
		if err != nil {
			return nil, err
		}
		raw, err := a.fetcher.do(ctx, a.method, a.url, a.headers, body)
		var v record.Value
		if err == nil {
			if v, err = record.DecodeJSON(raw); err != nil {
				err = fmt.Errorf("%w: %w", ErrMalformedSource, err)
			}
		}
		if err != nil {
			if i == 0 {
				return nil, err
			}
			a.log.Warn("skip api page", "page", idx, "error", err)
			gaps = append(gaps, fmt.Sprintf("page %d skipped: %v", idx, err))
			// Without a known page count the end of the source is unknown.
			if totalPages == 0 || i+1 >= totalPages {
				break
			}
			continue
		}

		items := extractItems(v)
		all = append(all, items...)
		if i == 0 {
			totalPages = pageCount(v, size)
			a.log.Debug("api pagination", "start", start, "size", size, "pages", totalPages)
		}
		if totalPages > 0 && i+1 >= totalPages {
			reached = true
			break
		}
		if totalPages == 0 && len(items) < size {
			reached = true
			break
		}
	}
	if !reached && len(gaps) == 0 {
		a.log.Warn("api page limit reached", "pages", maxPages)
		gaps = append(gaps, fmt.Sprintf("stopped at the %d page limit", maxPages))
	}
	return encodeItems(all)
}

// Gaps lists the pages the last Fetch skipped.
func (a *API) Gaps() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	return append([]string(nil), a.gaps...)
}

func (a *API) setGaps(gaps []string) {
	a.mu.Lock()
	a.gaps = gaps
	a.mu.Unlock()
}

// Parse decodes a JSON payload into records.
func (a *API) Parse(raw []byte) ([]*record.Record, error) {
	return parseJSONRecords(raw)
}

// DetectFields describes the fields of the first offer item.
func (a *API) DetectFields(raw []byte) ([]FieldDescriptor, error) {
	recs, err := parseJSONRecords(raw)
	if err != nil {
		return nil, err
	}
	return detectFromRecords(recs), nil
}

// Test requests the endpoint once.
func (a *API) Test(ctx context.Context) (bool, string) {
	return testAdapter(ctx, a)
}

func (a *API) requestBody() []byte {
	if a.method == http.MethodGet || a.method == http.MethodHead {
		return nil
	}
	return a.rawBody
}

func (a *API) pagination() (start, size int, ok bool) {
	if a.body == nil {
		return 0, 0, false
	}
	pv, found := a.body.Get("page")
	page := pv.Record()
	if !found || page == nil {
		return 0, 0, false
	}
	iv, found := page.Get("index")
	if !found {
		return 0, 0, false
	}
	idx, _ := iv.Float()
	size = defaultPageSize
	if sv, found := page.Get("size"); found {
		if n, ok := sv.Float(); ok && n > 0 {
			size = int(n)
		}
	}
	return int(idx), size, true
}

func (a *API) pageBody(idx int) ([]byte, error) {
	clone, err := record.DecodeJSON(a.rawBody)
	if err != nil {
		return nil, fmt.Errorf("clone body template: %w", err)
	}
	pv, _ := clone.Record().Get("page")
	pv.Record().Set("index", record.NumberValue(float64(idx)))
	return clone.MarshalJSON()
}

func pageCount(v record.Value, size int) int {
	rec := v.Record()
	if rec == nil {
		return 0
	}
	scopes := []*record.Record{rec}
	for _, k := range []string{"page", "meta", "pagination"} {
		if inner, ok := rec.Get(k); ok && inner.Record() != nil {
			scopes = append(scopes, inner.Record())
		}
	}
	for _, s := range scopes {
		for _, k := range []string{"pages", "totalPages", "total_pages"} {
			if pv, ok := s.Get(k); ok {
				if n, ok := pv.Float(); ok && n > 0 {
					return int(n)
				}
			}
		}
	}
	for _, s := range scopes {
		for _, k := range []string{"total", "totalCount", "total_count", "count"} {
			if tv, ok := s.Get(k); ok {
				if n, ok := tv.Float(); ok && n > 0 && size > 0 {
					return int(math.Ceil(n / float64(size)))
				}
			}
		}
	}
	return 0
}

func extractItems(v record.Value) []record.Value {
	switch v.Kind() {
	case record.Array:
		return v.Items()
	case record.Object:
		rec := v.Record()
		for _, k := range payloadKeys {
			inner, ok := rec.Get(k)
			if !ok {
				continue
			}
			switch inner.Kind() {
			case record.Array:
				return inner.Items()
			case record.Object:
				if items := extractItems(inner); items != nil {
					return items
				}
			}
		}
	}
	return nil
}

func encodeItems(items []record.Value) ([]byte, error) {
	if items == nil {
		items = []record.Value{}
	}
	data, err := record.ArrayValue(items...).MarshalJSON()
	if err != nil {
		return nil, fmt.Errorf("encode items: %w", err)
	}
	return data, nil
}

func parseJSONRecords(raw []byte) ([]*record.Record, error) {
	v, err := record.DecodeJSON(raw)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
	}
	var recs []*record.Record
	for _, it := range extractItems(v) {
		if r := it.Record(); r != nil {
			recs = append(recs, r)
		}
	}
	return recs, nil
}
