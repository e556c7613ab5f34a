package source

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"regexp"
	"strconv"
	"strings"

	"job_distributor/internal/record"
)

const headerSampleSize = 10

var (
	headerWordsEN = regexp.MustCompile(`(?i)^(id|title|name|company|city|location|url|date|publication|salary|description|content)$`)
	headerWordsES = regexp.MustCompile(`(?i)^(titulo|empresa|ciudad|ubicacion|fecha|salario|descripcion|contenido|puesto)$`)

	cellEntities = strings.NewReplacer(
		"&lt;", "<",
		"&gt;", ">",
		"&amp;", "&",
		"&quot;", `"`,
		"&#39;", "'",
		"&nbsp;", " ",
	)

	utf8BOM = []byte{0xEF, 0xBB, 0xBF}
)

// Positional fields assigned when a file has no header row.
var headerlessColumns = []struct {
	name string
	idx  int
}{{"id", 0}, {"title", 24}, {"location", 26}}

// CSVFile reads offers from an uploaded CSV file.
type CSVFile struct {
	path string
}

// Fetch reads the file from disk.
func (a *CSVFile) Fetch(_ context.Context) ([]byte, error) {
	return readFile(a.path)
}

// Parse returns one record per data row. Every record carries positional
// col_N keys; named keys come from the header row when one is detected.
func (a *CSVFile) Parse(raw []byte) ([]*record.Record, error) {
	return parseCSV(raw)
}

// DetectFields describes the columns of the first data row.
func (a *CSVFile) DetectFields(raw []byte) ([]FieldDescriptor, error) {
	recs, err := parseCSV(raw)
	if err != nil {
		return nil, err
	}
	return detectFromRecords(recs), nil
}

// Test reads and parses the file once.
func (a *CSVFile) Test(ctx context.Context) (bool, string) {
	return testAdapter(ctx, a)
}

func parseCSV(raw []byte) ([]*record.Record, error) {
	raw = bytes.TrimPrefix(raw, utf8BOM)

	r := csv.NewReader(bytes.NewReader(raw))
	r.Comma = detectDelimiter(raw)
	r.FieldsPerRecord = -1
	r.LazyQuotes = true

	all, err := r.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("%w: read csv: %w", ErrMalformedSource, err)
	}

	rows := all[:0]
	for _, row := range all {
		if !blankRow(row) {
			rows = append(rows, row)
		}
	}
	if len(rows) == 0 {
		return nil, nil
	}

	var headers []string
	data := rows
	hasHeader := LooksLikeHeader(rows[0])
	if hasHeader {
		for _, h := range rows[0] {
			headers = append(headers, cleanCell(h))
		}
		data = rows[1:]
	}

	recs := make([]*record.Record, 0, len(data))
	for _, row := range data {
		rec := record.New()
		for j, h := range headers {
			if h == "" {
				continue
			}
			val := ""
			if j < len(row) {
				val = cleanCell(row[j])
			}
			rec.SetString(h, val)
		}
		for j, cell := range row {
			rec.SetString("col_"+strconv.Itoa(j), cleanCell(cell))
		}
		if !hasHeader {
			for _, hc := range headerlessColumns {
				if hc.idx < len(row) {
					rec.SetString(hc.name, cleanCell(row[hc.idx]))
				}
			}
		}
		recs = append(recs, rec)
	}
	return recs, nil
}

// LooksLikeHeader scores the first cells of row and reports whether more
// than half of them look like column names rather than data.
func LooksLikeHeader(row []string) bool {
	n := min(len(row), headerSampleSize)
	if n == 0 {
		return false
	}
	positive := 0
	for _, cell := range row[:n] {
		c := strings.TrimSpace(cell)
		score := 0
		if c != "" && !isNumeric(c) {
			score++
		}
		if headerWordsEN.MatchString(c) {
			score += 2
		}
		if headerWordsES.MatchString(c) {
			score += 2
		}
		if score > 0 {
			positive++
		}
	}
	return float64(positive) > 0.5*float64(n)
}

func isNumeric(s string) bool {
	_, err := strconv.ParseFloat(s, 64)
	return err == nil
}

func cleanCell(s string) string {
	return strings.TrimSpace(cellEntities.Replace(s))
}

func blankRow(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func detectDelimiter(raw []byte) rune {
	line := raw
	if i := bytes.IndexByte(raw, '\n'); i >= 0 {
		line = raw[:i]
	}
	best, bestCount := ',', bytes.Count(line, []byte{','})
	for _, d := range []rune{';', '\t', '|'} {
		if c := bytes.Count(line, []byte(string(d))); c > bestCount {
			best, bestCount = d, c
		}
	}
	return best
}
