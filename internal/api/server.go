// Package api exposes a small read-only status server for the poller,
// meant to be bound to localhost and scraped by operators or dashboards.
package api

import (
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/morelatto/bidwatch/internal/dedupe"
	"github.com/morelatto/bidwatch/internal/monitor"
	"github.com/morelatto/bidwatch/internal/storage"
)

const (
	defaultListLimit = 20
	maxListLimit     = 100
)

// SchedulerStatus is the scheduler slice the server reads.
type SchedulerStatus interface {
	Status() monitor.State
}

// HistoryReader exposes the day's posted records.
type HistoryReader interface {
	Len() int
	Entries() []dedupe.HistoryEntry
}

// JournalReader serves the persisted cycle and post journal.
type JournalReader interface {
	RecentCycles(limit int) ([]storage.Cycle, error)
	RecentPosts(limit int) ([]storage.Post, error)
}

type Deps struct {
	Scheduler SchedulerStatus
	History   HistoryReader
	Journal   JournalReader // optional; journal routes 404 without it
	Token     string        // optional; empty disables auth
	Version   string
}

// NewHandler builds the status router.
func NewHandler(deps Deps) http.Handler {
	r := chi.NewRouter()
	if deps.Token != "" {
		r.Use(BearerAuth(deps.Token))
	}

	r.Get("/health", handleHealth(deps))
	r.Get("/status", handleStatus(deps))
	r.Get("/history", handleHistory(deps))
	r.Get("/cycles", handleCycles(deps))
	r.Get("/posts", handlePosts(deps))

	return r
}

func handleHealth(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok", "version": deps.Version})
	}
}

type statusResponse struct {
	monitor.State
	PostedToday int    `json:"posted_today"`
	Version     string `json:"version"`
}

func handleStatus(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, statusResponse{
			State:       deps.Scheduler.Status(),
			PostedToday: deps.History.Len(),
			Version:     deps.Version,
		})
	}
}

func handleHistory(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		entries := deps.History.Entries()
		if entries == nil {
			entries = []dedupe.HistoryEntry{}
		}
		writeJSON(w, http.StatusOK, entries)
	}
}

func handleCycles(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Journal == nil {
			httpError(w, http.StatusNotFound, "journal disabled")
			return
		}
		cycles, err := deps.Journal.RecentCycles(listLimit(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "reading cycles: %v", err)
			return
		}
		if cycles == nil {
			cycles = []storage.Cycle{}
		}
		writeJSON(w, http.StatusOK, cycles)
	}
}

func handlePosts(deps Deps) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if deps.Journal == nil {
			httpError(w, http.StatusNotFound, "journal disabled")
			return
		}
		posts, err := deps.Journal.RecentPosts(listLimit(r))
		if err != nil {
			httpError(w, http.StatusInternalServerError, "reading posts: %v", err)
			return
		}
		if posts == nil {
			posts = []storage.Post{}
		}
		writeJSON(w, http.StatusOK, posts)
	}
}

func listLimit(r *http.Request) int {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return defaultListLimit
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n <= 0 {
		return defaultListLimit
	}
	if n > maxListLimit {
		return maxListLimit
	}
	return n
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}

func httpError(w http.ResponseWriter, code int, format string, args ...any) {
	writeJSON(w, code, map[string]string{"error": fmt.Sprintf(format, args...)})
}
