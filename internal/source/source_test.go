package source

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"os"
	"path/filepath"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/google/go-cmp/cmp"

	"job_distributor/internal/model"
	"job_distributor/internal/record"
)

type funcHTTP func(req *http.Request) (*http.Response, error)

func (f funcHTTP) Do(req *http.Request) (*http.Response, error) { return f(req) }

func response(code int, body string) *http.Response {
	return &http.Response{
		StatusCode: code,
		Body:       io.NopCloser(bytes.NewBufferString(body)),
	}
}

// flatten renders the scalar fields of each record for comparison.
func flatten(recs []*record.Record, keys ...string) []map[string]string {
	out := make([]map[string]string, 0, len(recs))
	for _, r := range recs {
		m := make(map[string]string)
		for _, k := range keys {
			if v, ok := r.Lookup(k); ok {
				m[k] = v.String()
			}
		}
		out = append(out, m)
	}
	return out
}

func TestParseXML(t *testing.T) {
	tests := []struct {
		name string
		xml  string
		keys []string
		want []map[string]string
	}{
		{
			name: "jobs container with cdata and attributes",
			xml: `<?xml version="1.0" encoding="UTF-8"?>
<jobs>
  <job id="1"><title><![CDATA[Driver]]></title><city>Madrid</city></job>
  <job id="2"><title>Cook &amp; Helper</title><city>Sevilla</city></job>
</jobs>`,
			keys: []string{"id", "title", "city"},
			want: []map[string]string{
				{"id": "1", "title": "Driver", "city": "Madrid"},
				{"id": "2", "title": "Cook & Helper", "city": "Sevilla"},
			},
		},
		{
			name: "single offer in offers container",
			xml:  `<offers><offer><title>Nurse</title></offer></offers>`,
			keys: []string{"title"},
			want: []map[string]string{{"title": "Nurse"}},
		},
		{
			name: "vacancies container",
			xml:  `<vacancies><vacancy><title>A</title></vacancy><vacancy><title>B</title></vacancy></vacancies>`,
			keys: []string{"title"},
			want: []map[string]string{{"title": "A"}, {"title": "B"}},
		},
		{
			name: "unknown root falls back to first repeated child",
			xml: `<source><publisher>Board</publisher>
  <item><title>A</title></item><item><title>B</title></item></source>`,
			keys: []string{"title"},
			want: []map[string]string{{"title": "A"}, {"title": "B"}},
		},
		{
			name: "offer element preferred over other objects under unknown root",
			xml:  `<source><meta><generated>today</generated></meta><job><title>A</title></job></source>`,
			keys: []string{"title"},
			want: []map[string]string{{"title": "A"}},
		},
		{
			name: "nested elements addressable by dotted path",
			xml:  `<jobs><job><company><name>Acme</name></company><salary currency="EUR">1200</salary></job></jobs>`,
			keys: []string{"company.name", "salary.currency", "salary._"},
			want: []map[string]string{{"company.name": "Acme", "salary.currency": "EUR", "salary._": "1200"}},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := parseXML([]byte(tt.xml))
			if err != nil {
				t.Fatalf("parseXML: %v", err)
			}
			if diff := cmp.Diff(tt.want, flatten(recs, tt.keys...)); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestParseXMLMalformed(t *testing.T) {
	for _, in := range []string{"", "not xml at all", "<jobs></jobs>"} {
		if _, err := parseXML([]byte(in)); !errors.Is(err, ErrMalformedSource) {
			t.Errorf("parseXML(%q) error = %v, want ErrMalformedSource", in, err)
		}
	}
}

func TestParseXMLSyndication(t *testing.T) {
	feed := `<?xml version="1.0"?>
<rss version="2.0"><channel><title>Jobs</title>
<item>
  <guid>job-1</guid>
  <title>Warehouse operator</title>
  <link>https://jobs.example.com/1</link>
  <description>Night shift</description>
  <pubDate>Mon, 02 Jan 2006 15:04:05 GMT</pubDate>
  <category>Logistics</category>
</item>
<item>
  <title>Forklift driver</title>
  <link>https://jobs.example.com/2</link>
</item>
</channel></rss>`

	recs, err := parseXML([]byte(feed))
	if err != nil {
		t.Fatalf("parseXML: %v", err)
	}
	got := flatten(recs, "id", "title", "url", "description", "publication", "category")
	want := []map[string]string{
		{
			"id":          "job-1",
			"title":       "Warehouse operator",
			"url":         "https://jobs.example.com/1",
			"description": "Night shift",
			"publication": "2006-01-02T15:04:05Z",
			"category":    "Logistics",
		},
		{
			"id":          got[1]["id"],
			"title":       "Forklift driver",
			"url":         "https://jobs.example.com/2",
			"description": "",
		},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}
	if !strings.HasPrefix(got[1]["id"], "sha256:") {
		t.Errorf("item without guid should get hashed id, got %q", got[1]["id"])
	}
}

func TestXMLFeedFetch(t *testing.T) {
	var gotMethod string
	client := funcHTTP(func(req *http.Request) (*http.Response, error) {
		gotMethod = req.Method
		return response(200, `<jobs><job><title>A</title></job></jobs>`), nil
	})
	a, err := New(&model.Connection{Kind: model.KindXMLFeed, URL: "https://feed.example.com/jobs.xml"}, Options{Client: client})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	ok, msg := a.Test(context.Background())
	if !ok {
		t.Fatalf("Test() = false, %q", msg)
	}
	if gotMethod != http.MethodGet {
		t.Errorf("method = %s, want GET", gotMethod)
	}

	failing := funcHTTP(func(*http.Request) (*http.Response, error) { return response(503, ""), nil })
	a, _ = New(&model.Connection{Kind: model.KindXMLFeed, URL: "https://feed.example.com"}, Options{Client: failing})
	if _, err := a.Fetch(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Fetch error = %v, want ErrSourceUnavailable", err)
	}
}

func TestParseCSV(t *testing.T) {
	tests := []struct {
		name string
		csv  string
		keys []string
		want []map[string]string
	}{
		{
			name: "spanish header row",
			csv:  "id,titulo,empresa,ciudad\n1,Conductor,Acme &amp; Co,Madrid\n\n2,Cocinero,&quot;Bar&quot;,Sevilla\n",
			keys: []string{"id", "titulo", "empresa", "ciudad", "col_0"},
			want: []map[string]string{
				{"id": "1", "titulo": "Conductor", "empresa": "Acme & Co", "ciudad": "Madrid", "col_0": "1"},
				{"id": "2", "titulo": "Cocinero", "empresa": `"Bar"`, "ciudad": "Sevilla", "col_0": "2"},
			},
		},
		{
			name: "semicolon delimited with bom",
			csv:  "\xEF\xBB\xBFtitle;company;city\nDriver;Acme;Bilbao\n",
			keys: []string{"title", "company", "city"},
			want: []map[string]string{{"title": "Driver", "company": "Acme", "city": "Bilbao"}},
		},
		{
			name: "headerless numeric rows keep positional columns",
			csv:  "123,4500,99\n124,3000,12\n",
			keys: []string{"id", "col_0", "col_1", "title"},
			want: []map[string]string{
				{"id": "123", "col_0": "123", "col_1": "4500"},
				{"id": "124", "col_0": "124", "col_1": "3000"},
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			recs, err := parseCSV([]byte(tt.csv))
			if err != nil {
				t.Fatalf("parseCSV: %v", err)
			}
			if diff := cmp.Diff(tt.want, flatten(recs, tt.keys...)); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestLooksLikeHeader(t *testing.T) {
	tests := []struct {
		row  []string
		want bool
	}{
		{row: []string{"id", "title", "company"}, want: true},
		{row: []string{"puesto", "empresa", "salario"}, want: true},
		{row: []string{"1", "2", "3"}, want: false},
		{row: []string{"17", "Driver", "4500", "2024-01-01"}, want: false},
		{row: nil, want: false},
	}
	for _, tt := range tests {
		if got := LooksLikeHeader(tt.row); got != tt.want {
			t.Errorf("LooksLikeHeader(%v) = %v, want %v", tt.row, got, tt.want)
		}
	}
}

func TestCSVFileFromDisk(t *testing.T) {
	path := filepath.Join(t.TempDir(), "offers.csv")
	if err := os.WriteFile(path, []byte("id,title\n9,Electrician\n"), 0o600); err != nil {
		t.Fatalf("write file: %v", err)
	}
	a, err := New(&model.Connection{Kind: model.KindCSVFile, URL: path}, Options{})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	raw, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	fields, err := a.DetectFields(raw)
	if err != nil {
		t.Fatalf("detect fields: %v", err)
	}
	want := []FieldDescriptor{
		{Name: "id", Type: "string", Sample: "9", Description: "Unique offer identifier in the source"},
		{Name: "title", Type: "string", Sample: "Electrician", Description: "Offer title"},
		{Name: "col_0", Type: "string", Sample: "9", Description: "Field: col_0"},
		{Name: "col_1", Type: "string", Sample: "Electrician", Description: "Field: col_1"},
	}
	if diff := cmp.Diff(want, fields); diff != "" {
		t.Errorf("DetectFields mismatch (-want +got):\n%s", diff)
	}

	missing, _ := New(&model.Connection{Kind: model.KindCSVFile, URL: filepath.Join(t.TempDir(), "nope.csv")}, Options{})
	if _, err := missing.Fetch(context.Background()); !errors.Is(err, ErrSourceUnavailable) {
		t.Errorf("Fetch missing file error = %v, want ErrSourceUnavailable", err)
	}
}

func TestAPIPayloadKeys(t *testing.T) {
	bodies := map[string]string{
		"bare array": `[{"id":1,"title":"A"},{"id":2,"title":"B"}]`,
		"data":       `{"data":[{"id":1,"title":"A"},{"id":2,"title":"B"}]}`,
		"results":    `{"count":2,"results":[{"id":1,"title":"A"},{"id":2,"title":"B"}]}`,
		"jobs":       `{"jobs":[{"id":1,"title":"A"},{"id":2,"title":"B"}]}`,
		"offers":     `{"offers":[{"id":1,"title":"A"},{"id":2,"title":"B"}]}`,
		"nested":     `{"data":{"offers":[{"id":1,"title":"A"},{"id":2,"title":"B"}]}}`,
	}
	want := []map[string]string{{"id": "1", "title": "A"}, {"id": "2", "title": "B"}}

	for name, body := range bodies {
		t.Run(name, func(t *testing.T) {
			client := funcHTTP(func(*http.Request) (*http.Response, error) { return response(200, body), nil })
			a, err := New(&model.Connection{Kind: model.KindAPI, URL: "https://api.example.com/jobs"}, Options{Client: client})
			if err != nil {
				t.Fatalf("new adapter: %v", err)
			}
			raw, err := a.Fetch(context.Background())
			if err != nil {
				t.Fatalf("fetch: %v", err)
			}
			recs, err := a.Parse(raw)
			if err != nil {
				t.Fatalf("parse: %v", err)
			}
			if diff := cmp.Diff(want, flatten(recs, "id", "title")); diff != "" {
				t.Errorf("records mismatch (-want +got):\n%s", diff)
			}
		})
	}
}

func TestAPIRequestConfiguration(t *testing.T) {
	var (
		gotMethod string
		gotAuth   string
		gotBody   string
	)
	client := funcHTTP(func(req *http.Request) (*http.Response, error) {
		gotMethod = req.Method
		gotAuth = req.Header.Get("Authorization")
		b, _ := io.ReadAll(req.Body)
		gotBody = string(b)
		return response(200, `[]`), nil
	})
	conn := &model.Connection{
		Kind:    model.KindAPI,
		URL:     "https://api.example.com/search",
		Method:  "post",
		Headers: `{"Authorization":"Bearer t0k"}`,
		Body:    `{"country":"es"}`,
	}
	a, err := New(conn, Options{Client: client})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if _, err := a.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if diff := cmp.Diff([]string{"POST", "Bearer t0k", `{"country":"es"}`}, []string{gotMethod, gotAuth, gotBody}); diff != "" {
		t.Errorf("request mismatch (-want +got):\n%s", diff)
	}

	if _, err := New(&model.Connection{Kind: model.KindAPI, Headers: "{bad"}, Options{}); err == nil {
		t.Error("expected error for invalid headers JSON")
	}
}

func TestAPIPagination(t *testing.T) {
	pages := map[int]pageReply{
		1: {code: 200, body: `{"total":5,"data":[{"id":"a"},{"id":"b"}]}`},
		2: {code: 500},
		3: {code: 200, body: `{"data":[{"id":"e"}]}`},
	}

	var (
		mu   sync.Mutex
		seen []int
	)
	client := funcHTTP(func(req *http.Request) (*http.Response, error) {
		var body struct {
			Page struct {
				Index int `json:"index"`
			} `json:"page"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return nil, err
		}
		mu.Lock()
		seen = append(seen, body.Page.Index)
		mu.Unlock()
		p := pages[body.Page.Index]
		return response(p.code, p.body), nil
	})

	conn := &model.Connection{
		Kind:   model.KindAPI,
		URL:    "https://api.example.com/search",
		Method: "POST",
		Body:   `{"query":"driver","page":{"index":1,"size":2}}`,
	}
	a, err := New(conn, Options{Client: client, PageDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	raw, err := a.Fetch(context.Background())
	if err != nil {
		t.Fatalf("fetch: %v", err)
	}
	recs, err := a.Parse(raw)
	if err != nil {
		t.Fatalf("parse: %v", err)
	}

	if diff := cmp.Diff([]int{1, 2, 3}, seen); diff != "" {
		t.Errorf("requested pages mismatch (-want +got):\n%s", diff)
	}
	if diff := cmp.Diff([]map[string]string{{"id": "a"}, {"id": "b"}, {"id": "e"}}, flatten(recs, "id")); diff != "" {
		t.Errorf("records mismatch (-want +got):\n%s", diff)
	}

	gaps := a.(Partial).Gaps()
	if len(gaps) != 1 || !strings.HasPrefix(gaps[0], "page 2 skipped") {
		t.Errorf("gaps = %q, want page 2 skipped", gaps)
	}
}

func TestAPIPaginationGapsReset(t *testing.T) {
	fail := true
	client := funcHTTP(func(req *http.Request) (*http.Response, error) {
		var body struct {
			Page struct {
				Index int `json:"index"`
			} `json:"page"`
		}
		if err := json.NewDecoder(req.Body).Decode(&body); err != nil {
			return nil, err
		}
		switch {
		case body.Page.Index == 0:
			return response(200, `{"pages":2,"data":[{"id":"a"},{"id":"b"}]}`), nil
		case fail:
			return response(503, ""), nil
		default:
			return response(200, `{"data":[{"id":"c"}]}`), nil
		}
	})

	conn := &model.Connection{Kind: model.KindAPI, URL: "https://api.example.com/jobs", Method: "POST", Body: `{"page":{"index":0,"size":2}}`}
	a, err := New(conn, Options{Client: client, PageDelay: time.Millisecond})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}

	if _, err := a.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gaps := a.(Partial).Gaps(); len(gaps) != 1 {
		t.Errorf("gaps after failing page = %q, want one", gaps)
	}

	fail = false
	if _, err := a.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if gaps := a.(Partial).Gaps(); len(gaps) != 0 {
		t.Errorf("gaps after complete pass = %q, want none", gaps)
	}
}

func TestAPIPageLimit(t *testing.T) {
	var calls int
	client := funcHTTP(func(*http.Request) (*http.Response, error) {
		calls++
		return response(200, `{"data":[{"id":"x"}]}`), nil
	})
	conn := &model.Connection{Kind: model.KindAPI, URL: "https://api.example.com/jobs", Method: "POST", Body: `{"page":{"index":0,"size":1}}`}
	a, err := New(conn, Options{Client: client, PageDelay: time.Nanosecond})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if _, err := a.Fetch(context.Background()); err != nil {
		t.Fatalf("fetch: %v", err)
	}
	if calls != maxPages {
		t.Errorf("calls = %d, want %d", calls, maxPages)
	}
	gaps := a.(Partial).Gaps()
	if len(gaps) != 1 || !strings.Contains(gaps[0], "page limit") {
		t.Errorf("gaps = %q, want the page limit", gaps)
	}
}

func TestFetchRejectsOversizedBody(t *testing.T) {
	client := funcHTTP(func(*http.Request) (*http.Response, error) {
		return response(200, "0123456789A"), nil
	})
	f := &fetcher{client: client, timeout: time.Second, limit: 10}
	if _, err := f.do(context.Background(), http.MethodGet, "https://feed.example/jobs.xml", nil, nil); !errors.Is(err, ErrMalformedSource) {
		t.Errorf("oversized body error = %v, want ErrMalformedSource", err)
	}

	f.limit = 11
	data, err := f.do(context.Background(), http.MethodGet, "https://feed.example/jobs.xml", nil, nil)
	if err != nil || string(data) != "0123456789A" {
		t.Errorf("body at the limit = %q, %v", data, err)
	}
}

func TestCSVFileRejectsOversizedFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "big.csv")
	f, err := os.Create(path)
	if err != nil {
		t.Fatalf("create: %v", err)
	}
	if _, err := f.WriteString("id,title\n1,Cook\n"); err != nil {
		t.Fatalf("write: %v", err)
	}
	// Sparse tail keeps the file cheap while exceeding the limit.
	if err := f.Truncate(maxBodySize + 1); err != nil {
		t.Fatalf("truncate: %v", err)
	}
	_ = f.Close()

	a, err := New(&model.Connection{Kind: model.KindCSVFile, URL: path}, Options{})
	if err != nil {
		t.Fatalf("new adapter: %v", err)
	}
	if _, err := a.Fetch(context.Background()); !errors.Is(err, ErrMalformedSource) {
		t.Errorf("oversized file error = %v, want ErrMalformedSource", err)
	}
}

type pageReply struct {
	code int
	body string
}

func TestDescribe(t *testing.T) {
	long := strings.Repeat("x", 120)
	v, err := record.DecodeJSON([]byte(`{"url":"https://a","fecha":"2024-01-01","salary_min":"1000","tags":["a"],"is_remote":"yes","notes":"` + long + `","company":{"name":"Acme"}}`))
	if err != nil {
		t.Fatalf("decode: %v", err)
	}
	got := Describe(v.Record())
	want := []FieldDescriptor{
		{Name: "url", Type: "url", Sample: "https://a", Description: "Offer URL"},
		{Name: "fecha", Type: "date", Sample: "2024-01-01", Description: "Date"},
		{Name: "salary_min", Type: "number", Sample: "1000", Description: "Minimum salary"},
		{Name: "tags", Type: "array", Sample: "a", Description: "Field: tags"},
		{Name: "is_remote", Type: "boolean", Sample: "yes", Description: "Field: is_remote"},
		{Name: "notes", Type: "string", Sample: strings.Repeat("x", 100) + "...", Description: "Field: notes"},
		{Name: "company", Type: "object", Sample: "Acme", Description: "Hiring company"},
		{Name: "company.name", Type: "string", Sample: "Acme", Description: "Field: company.name"},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Describe mismatch (-want +got):\n%s", diff)
	}
}

func TestNewUnsupportedKind(t *testing.T) {
	if _, err := New(&model.Connection{Kind: model.KindManual}, Options{}); !errors.Is(err, ErrUnsupportedKind) {
		t.Errorf("New(manual) error = %v, want ErrUnsupportedKind", err)
	}
}
