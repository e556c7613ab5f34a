package channel

import (
	"os"
	"path/filepath"
	"testing"

	"github.com/google/go-cmp/cmp"
)

func TestDefaultCatalog(t *testing.T) {
	c := DefaultCatalog()

	wantIDs := []string{"jooble", "talent", "jobrapido", "whatjobs", "infojobs", "linkedin", "indeed"}
	if diff := cmp.Diff(wantIDs, c.IDs()); diff != "" {
		t.Errorf("IDs mismatch (-want +got):\n%s", diff)
	}

	tests := []struct {
		id   string
		want Info
	}{
		{"jooble", Info{ID: "jooble", Name: "Jooble", Integration: IntegrationAPI, DefaultCPA: 15, MinCPA: 8, MaxCPA: 25, Requires: []string{"apiKey"}}},
		{"talent", Info{ID: "talent", Name: "Talent.com", Integration: IntegrationFeed, DefaultCPA: 18, MinCPA: 10, MaxCPA: 30}},
		{"linkedin", Info{ID: "linkedin", Name: "LinkedIn", Integration: IntegrationSimulated, DefaultCPA: 25, MinCPA: 15, MaxCPA: 50}},
	}
	for _, tt := range tests {
		got, ok := c.Get(tt.id)
		if !ok {
			t.Fatalf("Get(%q) not found", tt.id)
		}
		if diff := cmp.Diff(tt.want, got); diff != "" {
			t.Errorf("Get(%q) mismatch (-want +got):\n%s", tt.id, diff)
		}
	}

	if _, ok := c.Get("myspace"); ok {
		t.Error("unknown channel should not be found")
	}
	if got := c.DefaultCPA("INDEED"); got != 22 {
		t.Errorf("DefaultCPA(INDEED) = %v, want 22", got)
	}
}

func TestLoadCatalogOverride(t *testing.T) {
	path := filepath.Join(t.TempDir(), "channels.yaml")
	doc := "channels:\n  - id: Acme\n    default_cpa: 9.5\n"
	if err := os.WriteFile(path, []byte(doc), 0o600); err != nil {
		t.Fatal(err)
	}

	c, err := LoadCatalog(path)
	if err != nil {
		t.Fatalf("LoadCatalog: %v", err)
	}
	want := Info{ID: "acme", Name: "acme", Integration: IntegrationSimulated, DefaultCPA: 9.5}
	got, _ := c.Get("acme")
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("Get mismatch (-want +got):\n%s", diff)
	}
}

func TestParseCatalogErrors(t *testing.T) {
	tests := []struct {
		name string
		doc  string
	}{
		{"bad yaml", "channels: [\n"},
		{"missing id", "channels:\n  - default_cpa: 3\n"},
		{"duplicate", "channels:\n  - {id: a, default_cpa: 1}\n  - {id: A, default_cpa: 2}\n"},
		{"no cpa", "channels:\n  - {id: a}\n"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := ParseCatalog([]byte(tt.doc)); err == nil {
				t.Error("expected error")
			}
		})
	}
}
