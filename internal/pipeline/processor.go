// Package pipeline takes one registry record through card rendering and
// publication. A failure on one record never affects the rest of a batch;
// the caller inspects the Outcome and moves on.
package pipeline

import (
	"context"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/morelatto/bidwatch/internal/bid"
	"github.com/morelatto/bidwatch/internal/dedupe"
	"github.com/morelatto/bidwatch/internal/render"
)

// Outcome classifies what happened to one record.
type Outcome int

const (
	// Posted means the card was published and the record marked as seen.
	Posted Outcome = iota
	// Skipped means the record was already posted this rotation period.
	Skipped
	// Failed means a pipeline step errored; the record stays unmarked so
	// the next cycle retries it.
	Failed
)

func (o Outcome) String() string {
	switch o {
	case Posted:
		return "posted"
	case Skipped:
		return "skipped"
	case Failed:
		return "failed"
	default:
		return "unknown"
	}
}

// AssetFetcher downloads card images and knows their remote locations.
type AssetFetcher interface {
	FetchAsset(ctx context.Context, url string) ([]byte, error)
	PhotoURL(recordID string) string
	CrestURL() string
}

// Renderer produces the PNG card for a record.
type Renderer interface {
	Render(ctx context.Context, rec bid.Record, assets render.Assets) ([]byte, error)
}

// Publisher posts one card with its caption.
type Publisher interface {
	Publish(ctx context.Context, imagePath, caption string) error
}

// History is the slice of the dedup store the pipeline needs.
type History interface {
	Contains(hash string) bool
	Record(entry dedupe.HistoryEntry)
}

// Processor runs the per-record pipeline. A nil publisher puts the
// processor in dry-run mode: cards are rendered and kept on disk and the
// record is still marked as seen, but nothing is posted.
type Processor struct {
	history   History
	assets    AssetFetcher
	renderer  Renderer
	publisher Publisher
	cardsDir  string
	logger    *slog.Logger
}

// New creates a Processor writing card files under dataDir/cards.
func New(history History, assets AssetFetcher, renderer Renderer, publisher Publisher, dataDir string) *Processor {
	return &Processor{
		history:   history,
		assets:    assets,
		renderer:  renderer,
		publisher: publisher,
		cardsDir:  filepath.Join(dataDir, "cards"),
		logger:    slog.Default(),
	}
}

// Process takes rec through dedup check, asset fetch, card render, and
// publication. The record is marked as seen only after the card went out,
// so a failed record is retried on the next cycle.
func (p *Processor) Process(ctx context.Context, rec bid.Record) (Outcome, error) {
	hash := dedupe.Hash(rec.RecordID, rec.ContractNumber, rec.PublishedAt)
	if p.history.Contains(hash) {
		p.logger.Debug("record already posted", "record", rec.RecordID, "subject", rec.SubjectName)
		return Skipped, nil
	}

	p.logger.Info("processing record",
		"record", rec.RecordID, "subject", rec.SubjectName, "contract", rec.ContractNumber)

	// Asset downloads are best effort: the card renders with remote
	// fallbacks when either is missing.
	assets := render.Assets{
		Photo: p.fetchAsset(ctx, p.assets.PhotoURL(rec.RecordID)),
		Crest: p.fetchAsset(ctx, p.assets.CrestURL()),
	}

	card, err := p.renderer.Render(ctx, rec, assets)
	if err != nil {
		return Failed, fmt.Errorf("rendering card for %s: %w", rec.RecordID, err)
	}

	cardPath, err := p.writeCard(rec, card)
	if err != nil {
		return Failed, err
	}

	if p.publisher != nil {
		defer os.Remove(cardPath)
		if err := p.publisher.Publish(ctx, cardPath, Caption(rec)); err != nil {
			return Failed, fmt.Errorf("publishing card for %s: %w", rec.RecordID, err)
		}
	} else {
		p.logger.Info("publishing disabled, card kept on disk", "path", cardPath)
	}

	p.history.Record(dedupe.HistoryEntry{
		Hash:           hash,
		SubjectName:    rec.SubjectName,
		RecordID:       rec.RecordID,
		ContractNumber: rec.ContractNumber,
		PublishedAt:    rec.PublishedAt,
		PostedAt:       time.Now(),
	})
	return Posted, nil
}

func (p *Processor) fetchAsset(ctx context.Context, url string) []byte {
	data, err := p.assets.FetchAsset(ctx, url)
	if err != nil {
		p.logger.Warn("asset download failed, card will use remote fallback", "url", url, "error", err)
		return nil
	}
	return data
}

func (p *Processor) writeCard(rec bid.Record, card []byte) (string, error) {
	if err := os.MkdirAll(p.cardsDir, 0o755); err != nil {
		return "", fmt.Errorf("creating cards directory: %w", err)
	}
	path := filepath.Join(p.cardsDir, cardFilename(rec))
	if err := os.WriteFile(path, card, 0o644); err != nil {
		return "", fmt.Errorf("writing card file: %w", err)
	}
	return path, nil
}

// cardFilename derives a filesystem-safe name from the record identity.
func cardFilename(rec bid.Record) string {
	name := strings.Map(func(r rune) rune {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9':
			return r
		case r == ' ':
			return '-'
		default:
			return -1
		}
	}, rec.SubjectName)
	return fmt.Sprintf("%s-%s.png", name, rec.RecordID)
}

// Caption builds the post text for rec. The wording and hashtags follow
// the account's established format, so this output is deterministic.
func Caption(rec bid.Record) string {
	var sb strings.Builder
	fmt.Fprintf(&sb, "Jogador publicado no BID: %s\n\n", rec.SubjectName)
	fmt.Fprintf(&sb, "Publicado em: %s\n\n", rec.PublishedAtDisplay())
	fmt.Fprintf(&sb, "Tipo de contrato: %s", rec.ContractType)
	if end := rec.EndDateDisplay(); end != "" {
		fmt.Fprintf(&sb, "\n\nData de término do contrato: %s", end)
	}
	fmt.Fprintf(&sb, "\n\n#%s #BID #%s",
		strings.ReplaceAll(rec.SubjectName, " ", ""),
		strings.ReplaceAll(rec.OrganizationName, " ", ""))
	return sb.String()
}
