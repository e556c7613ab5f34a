package source

import (
	"bytes"
	"context"
	"crypto/sha256"
	"encoding/xml"
	"errors"
	"fmt"
	"io"
	"net/http"
	"sort"
	"strings"
	"time"

	"github.com/mmcdole/gofeed"
	"golang.org/x/net/html/charset"

	"job_distributor/internal/record"
)

// Container paths probed in order to locate the repeated offer element.
var xmlContainerPaths = []string{"jobs.job", "job", "offers.offer", "offer", "vacancies.vacancy"}

// Element names taken as offers directly under an unknown root.
var xmlOfferNames = []string{"job", "offer", "vacancy"}

// XMLFeed reads offers from a remote XML document.
type XMLFeed struct {
	url     string
	fetcher *fetcher
}

// Fetch downloads the feed.
func (a *XMLFeed) Fetch(ctx context.Context) ([]byte, error) {
	return a.fetcher.do(ctx, http.MethodGet, a.url, nil, nil)
}

// Parse extracts one record per offer element.
func (a *XMLFeed) Parse(raw []byte) ([]*record.Record, error) {
	return parseXML(raw)
}

// DetectFields describes the fields of the first offer element.
func (a *XMLFeed) DetectFields(raw []byte) ([]FieldDescriptor, error) {
	recs, err := parseXML(raw)
	if err != nil {
		return nil, err
	}
	return detectFromRecords(recs), nil
}

// Test fetches and parses the feed once.
func (a *XMLFeed) Test(ctx context.Context) (bool, string) {
	return testAdapter(ctx, a)
}

// XMLFile reads offers from an uploaded XML file.
type XMLFile struct {
	path string
}

// Fetch reads the file from disk.
func (a *XMLFile) Fetch(_ context.Context) ([]byte, error) {
	return readFile(a.path)
}

// Parse extracts one record per offer element.
func (a *XMLFile) Parse(raw []byte) ([]*record.Record, error) {
	return parseXML(raw)
}

// DetectFields describes the fields of the first offer element.
func (a *XMLFile) DetectFields(raw []byte) ([]FieldDescriptor, error) {
	recs, err := parseXML(raw)
	if err != nil {
		return nil, err
	}
	return detectFromRecords(recs), nil
}

// Test reads and parses the file once.
func (a *XMLFile) Test(ctx context.Context) (bool, string) {
	return testAdapter(ctx, a)
}

func parseXML(raw []byte) ([]*record.Record, error) {
	switch gofeed.DetectFeedType(bytes.NewReader(raw)) {
	case gofeed.FeedTypeRSS, gofeed.FeedTypeAtom:
		return parseSyndication(raw)
	}

	root, err := parseXMLTree(raw)
	if err != nil {
		return nil, err
	}
	return xmlRecords(root)
}

// parseSyndication handles job boards that publish RSS or Atom.
func parseSyndication(raw []byte) ([]*record.Record, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(raw))
	if err != nil {
		return nil, fmt.Errorf("%w: parse feed: %w", ErrMalformedSource, err)
	}

	recs := make([]*record.Record, 0, len(feed.Items))
	for _, it := range feed.Items {
		rec := record.New()
		rec.SetString("id", ItemGUID(it))
		rec.SetString("title", it.Title)
		desc := it.Description
		if desc == "" {
			desc = it.Content
		}
		rec.SetString("description", desc)
		rec.SetString("url", it.Link)
		switch {
		case it.PublishedParsed != nil:
			rec.SetString("publication", it.PublishedParsed.UTC().Format(time.RFC3339))
		case it.Published != "":
			rec.SetString("publication", it.Published)
		}
		if len(it.Categories) > 0 {
			rec.SetString("category", it.Categories[0])
		}
		if it.Author != nil && it.Author.Name != "" {
			rec.SetString("company", it.Author.Name)
		}

		keys := make([]string, 0, len(it.Custom))
		for k := range it.Custom {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if _, exists := rec.Get(k); !exists {
				rec.SetString(k, it.Custom[k])
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// ItemGUID returns the GUID for a feed item.
// If the item has no GUID, a SHA-256 hash of title+link is used.
func ItemGUID(item *gofeed.Item) string {
	if item.GUID != "" {
		return item.GUID
	}
	h := sha256.Sum256([]byte(item.Title + "|" + item.Link))
	return fmt.Sprintf("sha256:%x", h[:16])
}

type xmlNode struct {
	name     string
	attrs    []xml.Attr
	children []*xmlNode
	text     strings.Builder
}

func parseXMLTree(raw []byte) (*xmlNode, error) {
	dec := xml.NewDecoder(bytes.NewReader(raw))
	dec.Strict = false
	dec.AutoClose = xml.HTMLAutoClose
	dec.Entity = xml.HTMLEntity
	dec.CharsetReader = charset.NewReaderLabel

	var (
		root  *xmlNode
		stack []*xmlNode
	)
	for {
		tok, err := dec.Token()
		if errors.Is(err, io.EOF) {
			break
		}
		if err != nil {
			return nil, fmt.Errorf("%w: %w", ErrMalformedSource, err)
		}
		switch t := tok.(type) {
		case xml.StartElement:
			n := &xmlNode{name: t.Name.Local, attrs: t.Attr}
			if len(stack) > 0 {
				parent := stack[len(stack)-1]
				parent.children = append(parent.children, n)
			} else if root == nil {
				root = n
			}
			stack = append(stack, n)
		case xml.EndElement:
			if len(stack) > 0 {
				stack = stack[:len(stack)-1]
			}
		case xml.CharData:
			if len(stack) > 0 {
				stack[len(stack)-1].text.Write(t)
			}
		}
	}
	if root == nil {
		return nil, fmt.Errorf("%w: no root element", ErrMalformedSource)
	}
	return root, nil
}

// value folds a node the way attribute-merging XML-to-object converters do:
// a leaf becomes its text, repeated children become arrays, and attributes
// sit next to child elements. Text alongside structure is kept under "_".
func (n *xmlNode) value() record.Value {
	text := strings.TrimSpace(n.text.String())
	var attrs []xml.Attr
	for _, a := range n.attrs {
		if a.Name.Space == "xmlns" || a.Name.Local == "xmlns" {
			continue
		}
		attrs = append(attrs, a)
	}
	if len(n.children) == 0 && len(attrs) == 0 {
		return record.StringValue(text)
	}

	rec := record.New()
	for _, a := range attrs {
		rec.SetString(a.Name.Local, a.Value)
	}

	var order []string
	groups := make(map[string][]record.Value)
	for _, c := range n.children {
		if _, seen := groups[c.name]; !seen {
			order = append(order, c.name)
		}
		groups[c.name] = append(groups[c.name], c.value())
	}
	for _, name := range order {
		vs := groups[name]
		if len(vs) == 1 {
			rec.Set(name, vs[0])
		} else {
			rec.Set(name, record.ArrayValue(vs...))
		}
	}
	if text != "" && len(n.children) == 0 {
		rec.SetString("_", text)
	}
	return record.ObjectValue(rec)
}

func xmlRecords(root *xmlNode) ([]*record.Record, error) {
	rootVal := root.value()
	top := record.New()
	top.Set(root.name, rootVal)

	for _, p := range xmlContainerPaths {
		if v, ok := top.Lookup(p); ok {
			if recs := asRecords(v); len(recs) > 0 {
				return recs, nil
			}
		}
	}

	if rec := rootVal.Record(); rec != nil {
		for _, k := range xmlOfferNames {
			if v, ok := rec.Get(k); ok {
				if recs := asRecords(v); len(recs) > 0 {
					return recs, nil
				}
			}
		}
		for _, k := range rec.Keys() {
			v, _ := rec.Get(k)
			if v.Kind() == record.Array {
				if recs := asRecords(v); len(recs) > 0 {
					return recs, nil
				}
			}
		}
		for _, k := range rec.Keys() {
			v, _ := rec.Get(k)
			if recs := asRecords(v); len(recs) > 0 {
				return recs, nil
			}
		}
	}
	return nil, fmt.Errorf("%w: no offer elements found under <%s>", ErrMalformedSource, root.name)
}

func asRecords(v record.Value) []*record.Record {
	switch v.Kind() {
	case record.Object:
		return []*record.Record{v.Record()}
	case record.Array:
		var out []*record.Record
		for _, it := range v.Items() {
			if r := it.Record(); r != nil {
				out = append(out, r)
			}
		}
		return out
	}
	return nil
}
