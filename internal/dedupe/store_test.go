package dedupe

import (
	"encoding/json"
	"os"
	"path/filepath"
	"testing"
	"time"
)

func tempStore(t *testing.T) (*Store, string) {
	t.Helper()
	path := filepath.Join(t.TempDir(), "history.json")
	return Open(path), path
}

func entry(hash, name string) HistoryEntry {
	return HistoryEntry{
		Hash:           hash,
		SubjectName:    name,
		RecordID:       "100",
		ContractNumber: "55",
		PublishedAt:    "2026-08-28 10:00:00.000",
		PostedAt:       time.Now(),
	}
}

func TestHashIsStable(t *testing.T) {
	a := Hash("100", "55", "2026-08-28 10:00:00.000")
	b := Hash("100", "55", "2026-08-28 10:00:00.000")
	if a != b {
		t.Fatalf("same triple hashed differently: %s vs %s", a, b)
	}
	if c := Hash("100", "56", "2026-08-28 10:00:00.000"); c == a {
		t.Fatal("different contract numbers produced the same hash")
	}
	if len(a) != 32 {
		t.Fatalf("hash length = %d, want 32 hex chars", len(a))
	}
}

func TestRecordAndContains(t *testing.T) {
	s, _ := tempStore(t)

	h := Hash("100", "55", "2026-08-28 10:00:00.000")
	if s.Contains(h) {
		t.Fatal("empty store reported hash as present")
	}

	s.Record(entry(h, "Fulano"))
	if !s.Contains(h) {
		t.Fatal("recorded hash not found")
	}
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1", s.Len())
	}
}

func TestRecordPersistsAcrossReopen(t *testing.T) {
	s, path := tempStore(t)
	h := Hash("100", "55", "2026-08-28 10:00:00.000")
	s.Record(entry(h, "Fulano"))

	reopened := Open(path)
	if !reopened.Contains(h) {
		t.Fatal("hash lost after reopen")
	}
	if reopened.Len() != 1 {
		t.Fatalf("Len after reopen = %d, want 1", reopened.Len())
	}
}

func TestRecordIsIdempotent(t *testing.T) {
	s, _ := tempStore(t)
	h := Hash("100", "55", "2026-08-28 10:00:00.000")
	s.Record(entry(h, "Fulano"))
	s.Record(entry(h, "Fulano"))
	if s.Len() != 1 {
		t.Fatalf("Len = %d, want 1 after duplicate insert", s.Len())
	}
}

func TestFirstRotationCheckOnlyRecordsDay(t *testing.T) {
	s, _ := tempStore(t)
	h := Hash("100", "55", "2026-08-28 10:00:00.000")
	s.Record(entry(h, "Fulano"))

	if rotated := s.RotateIfNewDay("2026-08-28"); rotated {
		t.Fatal("first check must not rotate")
	}
	if !s.Contains(h) {
		t.Fatal("first rotation check wiped same-day history")
	}
	if s.LastRotationDay() != "2026-08-28" {
		t.Fatalf("LastRotationDay = %q, want 2026-08-28", s.LastRotationDay())
	}
}

func TestRotationClearsOnDayChange(t *testing.T) {
	s, path := tempStore(t)
	h := Hash("100", "55", "2026-08-28 10:00:00.000")
	s.Record(entry(h, "Fulano"))
	s.RotateIfNewDay("2026-08-28")

	if rotated := s.RotateIfNewDay("2026-08-28"); rotated {
		t.Fatal("same day must not rotate")
	}

	if rotated := s.RotateIfNewDay("2026-08-29"); !rotated {
		t.Fatal("day change must rotate")
	}
	if s.Len() != 0 {
		t.Fatalf("Len after rotation = %d, want 0", s.Len())
	}

	// The empty state must be flushed to disk.
	data, err := os.ReadFile(path)
	if err != nil {
		t.Fatalf("reading persisted file: %v", err)
	}
	var m map[string]HistoryEntry
	if err := json.Unmarshal(data, &m); err != nil {
		t.Fatalf("persisted document is not valid JSON: %v", err)
	}
	if len(m) != 0 {
		t.Fatalf("persisted entries after rotation = %d, want 0", len(m))
	}
}

func TestOpenToleratesCorruptFile(t *testing.T) {
	path := filepath.Join(t.TempDir(), "history.json")
	if err := os.WriteFile(path, []byte("{{not json"), 0o644); err != nil {
		t.Fatal(err)
	}

	s := Open(path)
	if s.Len() != 0 {
		t.Fatalf("Len = %d, want 0 for corrupt file", s.Len())
	}

	// The store must still accept writes afterward.
	h := Hash("1", "2", "3")
	s.Record(entry(h, "Fulano"))
	if !s.Contains(h) {
		t.Fatal("store unusable after corrupt load")
	}
}

func TestEntriesOrderedByPostTime(t *testing.T) {
	s, _ := tempStore(t)
	base := time.Date(2026, 8, 28, 10, 0, 0, 0, time.UTC)

	for i, name := range []string{"C", "A", "B"} {
		e := entry(Hash(name, "1", "2"), name)
		e.PostedAt = base.Add(time.Duration(2-i) * time.Hour)
		s.Record(e)
	}

	got := s.Entries()
	if len(got) != 3 {
		t.Fatalf("Entries = %d, want 3", len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].PostedAt.Before(got[i-1].PostedAt) {
			t.Fatal("entries not ordered by posting time")
		}
	}
}

func TestClear(t *testing.T) {
	s, _ := tempStore(t)
	s.Record(entry(Hash("1", "2", "3"), "Fulano"))
	s.Clear()
	if s.Len() != 0 {
		t.Fatalf("Len after Clear = %d, want 0", s.Len())
	}
}
