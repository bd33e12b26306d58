package api

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/morelatto/bidwatch/internal/dedupe"
	"github.com/morelatto/bidwatch/internal/monitor"
	"github.com/morelatto/bidwatch/internal/storage"
)

type fakeScheduler struct {
	state monitor.State
}

func (f *fakeScheduler) Status() monitor.State { return f.state }

type fakeHistory struct {
	entries []dedupe.HistoryEntry
}

func (f *fakeHistory) Len() int                       { return len(f.entries) }
func (f *fakeHistory) Entries() []dedupe.HistoryEntry { return f.entries }

type fakeJournal struct {
	cycles []storage.Cycle
	posts  []storage.Post
	limits []int
}

func (f *fakeJournal) RecentCycles(limit int) ([]storage.Cycle, error) {
	f.limits = append(f.limits, limit)
	return f.cycles, nil
}

func (f *fakeJournal) RecentPosts(limit int) ([]storage.Post, error) {
	f.limits = append(f.limits, limit)
	return f.posts, nil
}

func testDeps() (Deps, *fakeJournal) {
	journal := &fakeJournal{}
	return Deps{
		Scheduler: &fakeScheduler{state: monitor.State{
			Running:         true,
			CycleCount:      7,
			LastRotationDay: "28/08/2026",
		}},
		History: &fakeHistory{entries: []dedupe.HistoryEntry{
			{Hash: "abc", SubjectName: "JOAO DA SILVA", PostedAt: time.Now()},
		}},
		Journal: journal,
		Version: "test",
	}, journal
}

func get(t *testing.T, h http.Handler, path string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodGet, path, nil)
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	return rec
}

func TestHealth(t *testing.T) {
	deps, _ := testDeps()
	rec := get(t, NewHandler(deps), "/health")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body map[string]string
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if body["status"] != "ok" || body["version"] != "test" {
		t.Errorf("body = %v", body)
	}
}

func TestStatus(t *testing.T) {
	deps, _ := testDeps()
	rec := get(t, NewHandler(deps), "/status")

	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d", rec.Code)
	}
	var body struct {
		Running         bool   `json:"running"`
		CycleCount      int    `json:"cycle_count"`
		PostedToday     int    `json:"posted_today"`
		LastRotationDay string `json:"last_rotation_day"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &body); err != nil {
		t.Fatal(err)
	}
	if !body.Running || body.CycleCount != 7 || body.PostedToday != 1 {
		t.Errorf("body = %+v", body)
	}
	if body.LastRotationDay != "28/08/2026" {
		t.Errorf("rotation day = %q", body.LastRotationDay)
	}
}

func TestHistory(t *testing.T) {
	deps, _ := testDeps()
	rec := get(t, NewHandler(deps), "/history")

	var entries []dedupe.HistoryEntry
	if err := json.Unmarshal(rec.Body.Bytes(), &entries); err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].SubjectName != "JOAO DA SILVA" {
		t.Errorf("entries = %+v", entries)
	}
}

func TestCyclesLimit(t *testing.T) {
	deps, journal := testDeps()
	h := NewHandler(deps)

	get(t, h, "/cycles")
	get(t, h, "/cycles?limit=5")
	get(t, h, "/cycles?limit=9999")
	get(t, h, "/cycles?limit=bogus")

	want := []int{defaultListLimit, 5, maxListLimit, defaultListLimit}
	for i, lim := range journal.limits {
		if lim != want[i] {
			t.Errorf("request %d limit = %d, want %d", i, lim, want[i])
		}
	}
}

func TestJournalDisabled(t *testing.T) {
	deps, _ := testDeps()
	deps.Journal = nil
	h := NewHandler(deps)

	for _, path := range []string{"/cycles", "/posts"} {
		if rec := get(t, h, path); rec.Code != http.StatusNotFound {
			t.Errorf("GET %s = %d, want 404 without a journal", path, rec.Code)
		}
	}
}

func TestBearerAuth(t *testing.T) {
	deps, _ := testDeps()
	deps.Token = "secret"
	h := NewHandler(deps)

	if rec := get(t, h, "/status"); rec.Code != http.StatusUnauthorized {
		t.Fatalf("unauthenticated status = %d, want 401", rec.Code)
	}

	req := httptest.NewRequest(http.MethodGet, "/status", nil)
	req.Header.Set("Authorization", "Bearer secret")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	if rec.Code != http.StatusOK {
		t.Fatalf("authenticated status = %d, want 200", rec.Code)
	}
}
