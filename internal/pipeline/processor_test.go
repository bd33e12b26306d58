package pipeline

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/morelatto/bidwatch/internal/bid"
	"github.com/morelatto/bidwatch/internal/dedupe"
	"github.com/morelatto/bidwatch/internal/render"
)

type mockHistory struct {
	seen     map[string]bool
	recorded []dedupe.HistoryEntry
}

func newMockHistory() *mockHistory {
	return &mockHistory{seen: make(map[string]bool)}
}

func (m *mockHistory) Contains(hash string) bool { return m.seen[hash] }

func (m *mockHistory) Record(e dedupe.HistoryEntry) {
	m.seen[e.Hash] = true
	m.recorded = append(m.recorded, e)
}

type mockAssets struct {
	photoErr error
}

func (m *mockAssets) FetchAsset(ctx context.Context, url string) ([]byte, error) {
	if m.photoErr != nil && strings.Contains(url, "foto") {
		return nil, m.photoErr
	}
	return []byte("img"), nil
}

func (m *mockAssets) PhotoURL(id string) string { return "https://x.example/foto/" + id }
func (m *mockAssets) CrestURL() string          { return "https://x.example/escudo.jpg" }

type mockRenderer struct {
	err   error
	calls int
}

func (m *mockRenderer) Render(ctx context.Context, rec bid.Record, assets render.Assets) ([]byte, error) {
	m.calls++
	if m.err != nil {
		return nil, m.err
	}
	return []byte("png"), nil
}

type mockPublisher struct {
	err      error
	captions []string
	paths    []string
}

func (m *mockPublisher) Publish(ctx context.Context, imagePath, caption string) error {
	m.paths = append(m.paths, imagePath)
	if m.err != nil {
		return m.err
	}
	m.captions = append(m.captions, caption)
	return nil
}

func sampleRecord() bid.Record {
	return bid.Record{
		RecordID:         "123456",
		SubjectName:      "JOAO DA SILVA",
		ContractNumber:   "555",
		ContractType:     "Profissional",
		PublishedAt:      "2026-08-28T10:30:00",
		OrganizationName: "Figueirense",
	}
}

func TestProcessPostsNewRecord(t *testing.T) {
	history := newMockHistory()
	pub := &mockPublisher{}
	p := New(history, &mockAssets{}, &mockRenderer{}, pub, t.TempDir())

	outcome, err := p.Process(context.Background(), sampleRecord())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome != Posted {
		t.Fatalf("outcome = %v, want Posted", outcome)
	}
	if len(history.recorded) != 1 {
		t.Fatalf("recorded = %d entries, want 1", len(history.recorded))
	}
	if history.recorded[0].SubjectName != "JOAO DA SILVA" {
		t.Errorf("recorded entry = %+v", history.recorded[0])
	}

	// Published card files are removed once the post went out.
	if len(pub.paths) != 1 {
		t.Fatalf("publish calls = %d, want 1", len(pub.paths))
	}
	if _, err := os.Stat(pub.paths[0]); !os.IsNotExist(err) {
		t.Errorf("card file %s not cleaned up", pub.paths[0])
	}
}

func TestProcessSkipsSeenRecord(t *testing.T) {
	rec := sampleRecord()
	history := newMockHistory()
	history.seen[dedupe.Hash(rec.RecordID, rec.ContractNumber, rec.PublishedAt)] = true

	renderer := &mockRenderer{}
	p := New(history, &mockAssets{}, renderer, &mockPublisher{}, t.TempDir())

	outcome, err := p.Process(context.Background(), rec)
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome != Skipped {
		t.Fatalf("outcome = %v, want Skipped", outcome)
	}
	if renderer.calls != 0 {
		t.Error("seen record must not reach the renderer")
	}
}

func TestProcessRenderFailureLeavesRecordUnmarked(t *testing.T) {
	history := newMockHistory()
	p := New(history, &mockAssets{}, &mockRenderer{err: errors.New("chrome crashed")}, &mockPublisher{}, t.TempDir())

	outcome, err := p.Process(context.Background(), sampleRecord())
	if err == nil {
		t.Fatal("expected error from render failure")
	}
	if outcome != Failed {
		t.Fatalf("outcome = %v, want Failed", outcome)
	}
	if len(history.recorded) != 0 {
		t.Error("failed record must not be marked as seen")
	}
}

func TestProcessPublishFailureLeavesRecordUnmarked(t *testing.T) {
	history := newMockHistory()
	pub := &mockPublisher{err: errors.New("login wall")}
	p := New(history, &mockAssets{}, &mockRenderer{}, pub, t.TempDir())

	outcome, err := p.Process(context.Background(), sampleRecord())
	if err == nil {
		t.Fatal("expected error from publish failure")
	}
	if outcome != Failed {
		t.Fatalf("outcome = %v, want Failed", outcome)
	}
	if len(history.recorded) != 0 {
		t.Error("failed record must not be marked as seen")
	}
	// Cleanup runs on the failure path too.
	if _, err := os.Stat(pub.paths[0]); !os.IsNotExist(err) {
		t.Errorf("card file %s not cleaned up after publish failure", pub.paths[0])
	}
}

func TestProcessAssetFailureIsNotFatal(t *testing.T) {
	history := newMockHistory()
	p := New(history, &mockAssets{photoErr: errors.New("timeout")}, &mockRenderer{}, &mockPublisher{}, t.TempDir())

	outcome, err := p.Process(context.Background(), sampleRecord())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome != Posted {
		t.Fatalf("outcome = %v, want Posted despite photo failure", outcome)
	}
}

func TestProcessDryRunKeepsCard(t *testing.T) {
	history := newMockHistory()
	dir := t.TempDir()
	p := New(history, &mockAssets{}, &mockRenderer{}, nil, dir)

	outcome, err := p.Process(context.Background(), sampleRecord())
	if err != nil {
		t.Fatalf("Process: %v", err)
	}
	if outcome != Posted {
		t.Fatalf("outcome = %v, want Posted", outcome)
	}
	if len(history.recorded) != 1 {
		t.Error("dry run must still mark the record as seen")
	}

	entries, err := os.ReadDir(filepath.Join(dir, "cards"))
	if err != nil || len(entries) != 1 {
		t.Fatalf("expected one kept card file, got %v (err %v)", entries, err)
	}
}

func TestCaption(t *testing.T) {
	got := Caption(sampleRecord())

	want := "Jogador publicado no BID: JOAO DA SILVA\n\n" +
		"Publicado em: 28/08/2026 10:30\n\n" +
		"Tipo de contrato: Profissional\n\n" +
		"#JOAODASILVA #BID #Figueirense"
	if got != want {
		t.Errorf("Caption = %q, want %q", got, want)
	}
}

func TestCaptionWithEndDate(t *testing.T) {
	rec := sampleRecord()
	rec.ContractEndDate = "2027-12-31"

	got := Caption(rec)
	if !strings.Contains(got, "Data de término do contrato: 31/12/2027") {
		t.Errorf("caption missing end date: %q", got)
	}
}

func TestCardFilenameSanitizes(t *testing.T) {
	rec := sampleRecord()
	rec.SubjectName = "JOÃO / DA SILVA"

	name := cardFilename(rec)
	if strings.ContainsAny(name, "/\\ ") {
		t.Errorf("filename %q contains unsafe characters", name)
	}
	if !strings.HasSuffix(name, "-123456.png") {
		t.Errorf("filename %q missing record id suffix", name)
	}
}
