// Package challenge drives the registry's challenge-response gate: fetch a
// challenge image, decode it, submit a query, and classify the answer,
// retrying under a bounded budget until the registry accepts one attempt.
package challenge

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/morelatto/bidwatch/internal/bid"
)

// ErrExhausted is returned when the retry budget is consumed without an
// accepted submission. It aborts the current cycle only.
var ErrExhausted = errors.New("challenge: retry budget exhausted")

// minDecodeLen gates obviously failed decodes: the registry never issues
// challenges shorter than three characters, so anything below that is
// skipped without wasting a submission.
const minDecodeLen = 3

// Solver decodes a challenge image into text. Implementations are
// interchangeable; the loop only cares about the decoded string.
type Solver interface {
	Decode(ctx context.Context, image []byte) (string, error)
}

// Source is the slice of the registry client the loop needs.
type Source interface {
	SessionToken(ctx context.Context) (string, error)
	FetchChallenge(ctx context.Context) ([]byte, error)
	SubmitQuery(ctx context.Context, token, text, date string) ([]byte, error)
}

// Loop runs the acquire-and-search sequence for one cycle.
type Loop struct {
	source  Source
	solver  Solver
	budget  int
	pace    time.Duration
	markers []string
	logger  *slog.Logger
}

// New creates a Loop. budget <= 0 defaults to 25 attempts, pace <= 0 to 2s.
func New(source Source, solver Solver, budget int, pace time.Duration) *Loop {
	if budget <= 0 {
		budget = 25
	}
	if pace <= 0 {
		pace = 2 * time.Second
	}
	return &Loop{
		source:  source,
		solver:  solver,
		budget:  budget,
		pace:    pace,
		markers: []string{"captcha", "inválido"},
		logger:  slog.Default(),
	}
}

// Search acquires a session token, then repeatedly solves challenges and
// submits the query for date until the registry accepts one, returning the
// parsed records. Token failure is fatal for the cycle. Rejected
// challenges, short decodes, and transient network failures each consume
// one attempt from the budget; ErrExhausted is returned when it runs out.
func (l *Loop) Search(ctx context.Context, date string) ([]bid.Record, error) {
	token, err := l.source.SessionToken(ctx)
	if err != nil {
		return nil, fmt.Errorf("acquiring session token: %w", err)
	}
	l.logger.Info("session token acquired")

	for attempt := 1; attempt <= l.budget; attempt++ {
		body, accepted, err := l.attempt(ctx, token, date, attempt)
		if err != nil {
			if ctx.Err() != nil {
				return nil, ctx.Err()
			}
			l.logger.Warn("challenge attempt failed", "attempt", attempt, "error", err)
			if err := l.sleep(ctx); err != nil {
				return nil, err
			}
			continue
		}
		if !accepted {
			if err := l.sleep(ctx); err != nil {
				return nil, err
			}
			continue
		}

		l.logger.Info("challenge accepted", "attempt", attempt)
		records, err := bid.ParseRecords(body)
		if err != nil {
			return nil, fmt.Errorf("parsing query response: %w", err)
		}
		return records, nil
	}

	return nil, ErrExhausted
}

// attempt runs one fetch-decode-submit round. accepted is false when the
// attempt should be retried (short decode or rejected challenge).
func (l *Loop) attempt(ctx context.Context, token, date string, attempt int) (body []byte, accepted bool, err error) {
	image, err := l.source.FetchChallenge(ctx)
	if err != nil {
		return nil, false, fmt.Errorf("fetching challenge: %w", err)
	}

	text, err := l.solver.Decode(ctx, image)
	if err != nil {
		return nil, false, fmt.Errorf("decoding challenge: %w", err)
	}
	text = strings.TrimSpace(text)
	l.logger.Debug("challenge decoded", "attempt", attempt, "text", text)

	if len(text) < minDecodeLen {
		l.logger.Warn("decoded text too short, skipping submission", "attempt", attempt, "length", len(text))
		return nil, false, nil
	}

	body, err = l.source.SubmitQuery(ctx, token, text, date)
	if err != nil {
		return nil, false, fmt.Errorf("submitting query: %w", err)
	}

	if l.rejected(body) {
		l.logger.Warn("challenge rejected", "attempt", attempt)
		return nil, false, nil
	}
	return body, true, nil
}

// rejected reports whether the response body indicates an invalid
// challenge. Markers are matched case-insensitively against the raw body.
func (l *Loop) rejected(body []byte) bool {
	lower := strings.ToLower(string(body))
	for _, m := range l.markers {
		if strings.Contains(lower, m) {
			return true
		}
	}
	return false
}

func (l *Loop) sleep(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(l.pace):
		return nil
	}
}
