package ingest

import (
	"context"
	"errors"
	"fmt"
	"sync"
	"testing"

	"github.com/DATA-DOG/go-sqlmock"
	"github.com/google/go-cmp/cmp"

	"job_distributor/internal/storage"
)

func activeIDs(n int) []string {
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("ext-%05d", i)
	}
	return ids
}

type recordingArchiver struct {
	mu     sync.Mutex
	ranges []storage.ArchiveRange
	err    error
}

func (r *recordingArchiver) ArchiveMissing(_ context.Context, ar storage.ArchiveRange) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.ranges = append(r.ranges, ar)
	if r.err != nil && len(r.ranges) == 2 {
		return 0, r.err
	}
	return 1, nil
}

func TestSweeperChunksWithDisjointRanges(t *testing.T) {
	rec := &recordingArchiver{}
	s := NewSweeper(rec, 0, newLogger())

	ids := activeIDs(4500)
	// Duplicates and ordering must not matter.
	input := append([]string{ids[4499], ids[0]}, ids...)

	res := s.Archive(context.Background(), 3, "XML", input)
	if res.Statements != 3 || res.Archived != 3 || res.Warning != "" {
		t.Fatalf("result = %+v, want 3 clean statements", res)
	}

	type shape struct {
		Keep, From, Until string
		N                 int
	}
	var got []shape
	for _, r := range rec.ranges {
		got = append(got, shape{Keep: r.Keep[0], N: len(r.Keep), From: r.From, Until: r.Until})
	}
	want := []shape{
		{Keep: "ext-00000", N: 2000, From: "", Until: "ext-02000"},
		{Keep: "ext-02000", N: 2000, From: "ext-02000", Until: "ext-04000"},
		{Keep: "ext-04000", N: 500, From: "ext-04000", Until: ""},
	}
	if diff := cmp.Diff(want, got); diff != "" {
		t.Errorf("chunks mismatch (-want +got):\n%s", diff)
	}

	// Every active id falls in exactly one range, and that range keeps it.
	for _, id := range ids {
		covering := 0
		for _, r := range rec.ranges {
			if (r.From == "" || id >= r.From) && (r.Until == "" || id < r.Until) {
				covering++
				found := false
				for _, k := range r.Keep {
					if k == id {
						found = true
						break
					}
				}
				if !found {
					t.Fatalf("%s is in range [%q, %q) but not kept", id, r.From, r.Until)
				}
			}
		}
		if covering != 1 {
			t.Fatalf("%s covered by %d ranges, want 1", id, covering)
		}
	}
}

func TestSweeperReportsFailedStatement(t *testing.T) {
	rec := &recordingArchiver{err: errors.New("too many variables")}
	s := NewSweeper(rec, 2, newLogger())

	res := s.Archive(context.Background(), 1, "CSV", []string{"a", "b", "c", "d", "e"})
	if res.Statements != 3 {
		t.Errorf("statements = %d, want 3", res.Statements)
	}
	if res.Archived != 2 {
		t.Errorf("archived = %d, want 2", res.Archived)
	}
	if res.Warning == "" {
		t.Error("expected a warning for the failed statement")
	}
}

func TestSweeperIssuesOneStatementPerChunk(t *testing.T) {
	db, mock, err := sqlmock.New()
	if err != nil {
		t.Fatalf("sqlmock: %v", err)
	}
	defer func() { _ = db.Close() }()

	store := storage.New(db, "sqlite")
	s := NewSweeper(store, 0, newLogger())

	for _, n := range []int64{4, 0, 2} {
		mock.ExpectExec(`(?s)UPDATE offers SET status = \? .* AND external_id NOT IN \(`).
			WillReturnResult(sqlmock.NewResult(0, n))
	}

	res := s.Archive(context.Background(), 9, "API", activeIDs(4500))
	if res.Statements != 3 || res.Archived != 6 || res.Warning != "" {
		t.Errorf("result = %+v, want 3 statements archiving 6", res)
	}
	if err := mock.ExpectationsWereMet(); err != nil {
		t.Errorf("unmet expectations: %v", err)
	}
}
