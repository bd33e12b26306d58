// Package dedupe keeps the per-day record of everything already posted so
// a crash or an overlapping batch never causes a duplicate publication.
package dedupe

import (
	"crypto/md5"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"log/slog"
	"os"
	"sort"
	"sync"
	"time"
)

// HistoryEntry is one posted record. The persisted document maps hash to
// entry and is meant to be readable by operators directly.
type HistoryEntry struct {
	Hash           string    `json:"hash"`
	SubjectName    string    `json:"subject_name"`
	RecordID       string    `json:"record_id"`
	ContractNumber string    `json:"contract_number"`
	PublishedAt    string    `json:"published_at"`
	PostedAt       time.Time `json:"posted_at"`
}

// Hash derives the deduplication key from the registry's identity triple.
func Hash(recordID, contractNumber, publishedAt string) string {
	sum := md5.Sum([]byte(fmt.Sprintf("%s_%s_%s", recordID, contractNumber, publishedAt)))
	return hex.EncodeToString(sum[:])
}

// Store is a write-through map of posted-record hashes. The in-memory map
// is authoritative; the JSON document on disk is rewritten in full after
// every insertion so a crash loses at most the in-flight record.
type Store struct {
	mu              sync.RWMutex
	path            string
	entries         map[string]HistoryEntry
	lastRotationDay string
	logger          *slog.Logger
}

// Open loads the store from path. An absent or unreadable file yields an
// empty store; the error is logged, never returned — degraded operation
// beats a dead poller.
func Open(path string) *Store {
	s := &Store{
		path:    path,
		entries: make(map[string]HistoryEntry),
		logger:  slog.Default(),
	}

	data, err := os.ReadFile(path)
	if err != nil {
		if !os.IsNotExist(err) {
			s.logger.Warn("could not read history file, starting empty", "path", path, "error", err)
		}
		return s
	}

	if err := json.Unmarshal(data, &s.entries); err != nil {
		s.logger.Warn("could not parse history file, starting empty", "path", path, "error", err)
		s.entries = make(map[string]HistoryEntry)
		return s
	}

	s.logger.Info("history loaded", "entries", len(s.entries), "path", path)
	return s
}

// RotateIfNewDay clears the store when the calendar day changed since the
// last check. The first call after process start only records the day, so
// a restart never wipes the same-day history.
func (s *Store) RotateIfNewDay(today string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.lastRotationDay == "" {
		s.lastRotationDay = today
		s.logger.Info("rotation day initialized", "day", today)
		return false
	}
	if today == s.lastRotationDay {
		return false
	}

	s.logger.Info("day changed, clearing history", "from", s.lastRotationDay, "to", today, "dropped", len(s.entries))
	s.entries = make(map[string]HistoryEntry)
	s.lastRotationDay = today
	s.persistLocked()
	return true
}

// Contains reports whether hash was already posted this rotation period.
func (s *Store) Contains(hash string) bool {
	s.mu.RLock()
	defer s.mu.RUnlock()
	_, ok := s.entries[hash]
	return ok
}

// Record inserts entry and synchronously rewrites the persisted document.
// Persistence failures are logged and swallowed: the in-memory map stays
// authoritative and the next successful write flushes the full state.
func (s *Store) Record(entry HistoryEntry) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries[entry.Hash] = entry
	s.persistLocked()
}

// Clear drops all entries and persists the empty document.
func (s *Store) Clear() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.entries = make(map[string]HistoryEntry)
	s.persistLocked()
}

// Len returns the number of posted records this rotation period.
func (s *Store) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.entries)
}

// LastRotationDay returns the day the store last observed, or "" before
// the first rotation check.
func (s *Store) LastRotationDay() string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.lastRotationDay
}

// Entries returns all history entries ordered by posting time.
func (s *Store) Entries() []HistoryEntry {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]HistoryEntry, 0, len(s.entries))
	for _, e := range s.entries {
		out = append(out, e)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].PostedAt.Before(out[j].PostedAt) })
	return out
}

func (s *Store) persistLocked() {
	data, err := json.MarshalIndent(s.entries, "", "  ")
	if err != nil {
		s.logger.Error("could not marshal history", "error", err)
		return
	}
	if err := os.WriteFile(s.path, data, 0o644); err != nil {
		s.logger.Error("could not persist history, continuing in memory", "path", s.path, "error", err)
		return
	}
	s.logger.Debug("history persisted", "entries", len(s.entries))
}
