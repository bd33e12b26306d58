package storage

import (
	"errors"
	"time"
)

// ErrNotFound is returned when a requested row does not exist.
var ErrNotFound = errors.New("not found")

// Cycle is one poll run, from search to the last processed record.
type Cycle struct {
	ID           string
	StartedAt    time.Time
	FinishedAt   time.Time
	Status       string // "ok", "failed"
	RecordsFound int
	Posted       int
	Skipped      int
	Failed       int
	Error        string
}

// Post is the journal entry for one record handled during a cycle. Every
// record gets a row regardless of outcome so failures stay inspectable.
type Post struct {
	ID             string
	CycleID        string
	RecordID       string
	SubjectName    string
	ContractNumber string
	Outcome        string // "posted", "skipped", "failed"
	Detail         string
	CreatedAt      time.Time
}
