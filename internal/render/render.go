// Package render turns a registry record into a PNG announcement card by
// laying it out as HTML and screenshotting it in headless Chrome.
package render

import (
	"context"
	_ "embed"
	"encoding/base64"
	"fmt"
	"html/template"
	"log/slog"
	"strings"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"

	"github.com/morelatto/bidwatch/internal/bid"
)

//go:embed card.tmpl
var cardHTML string

var cardTmpl = template.Must(template.New("card").Parse(cardHTML))

// Viewport of the rendering page. The card itself is capped at 700px wide
// by its stylesheet; the extra room keeps the screenshot free of clipping.
const (
	viewportWidth  = 900
	viewportHeight = 700
)

// cardData is the template's view of a record. Photo and crest arrive as
// data URIs so the page renders without network access.
type cardData struct {
	Name           string
	Nickname       string
	RecordID       string
	ContractNumber string
	ContractType   string
	PublishedAt    string
	EndDate        string
	BirthDate      string
	ClubName       string
	Region         string
	PhotoSrc       template.URL
	CrestSrc       template.URL
	HistoryURL     string
}

// Assets holds the downloaded card images. Either may be nil; the card
// then falls back to the remote URL and lets the browser fetch or hide it.
type Assets struct {
	Photo []byte
	Crest []byte
}

// Renderer screenshots record cards with a headless Chrome it launches on
// demand. One browser per card keeps the failure domain small; cards are
// rendered a few times per day at most.
type Renderer struct {
	region   string
	photoURL func(recordID string) string
	crestURL func() string
	history  func(recordID string) string
	logger   *slog.Logger
}

// New creates a Renderer. The URL helpers come from the registry client so
// remote fallbacks point at the same host the assets were fetched from.
func New(region string, photoURL func(string) string, crestURL func() string, historyURL func(string) string) *Renderer {
	return &Renderer{
		region:   region,
		photoURL: photoURL,
		crestURL: crestURL,
		history:  historyURL,
		logger:   slog.Default(),
	}
}

// Available reports whether a Chrome or Chromium binary can be found.
// Called at preflight so watch mode fails before the first cycle instead
// of on the first posted record.
func (r *Renderer) Available() error {
	if _, has := launcher.LookPath(); !has {
		return fmt.Errorf("render: no chrome or chromium binary found")
	}
	return nil
}

// Render produces the PNG card for rec.
func (r *Renderer) Render(ctx context.Context, rec bid.Record, assets Assets) ([]byte, error) {
	html, err := r.buildHTML(rec, assets)
	if err != nil {
		return nil, err
	}

	path, has := launcher.LookPath()
	if !has {
		return nil, fmt.Errorf("render: no chrome or chromium binary found")
	}

	l := launcher.New().Bin(path).Headless(true).NoSandbox(true)
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("render: launching chrome: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return nil, fmt.Errorf("render: connecting to chrome: %w", err)
	}
	defer browser.Close()

	page, err := browser.Page(proto.TargetCreateTarget{})
	if err != nil {
		return nil, fmt.Errorf("render: opening page: %w", err)
	}

	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             viewportWidth,
		Height:            viewportHeight,
		DeviceScaleFactor: 1,
	}); err != nil {
		return nil, fmt.Errorf("render: setting viewport: %w", err)
	}

	if err := page.SetDocumentContent(html); err != nil {
		return nil, fmt.Errorf("render: loading card html: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("render: waiting for card: %w", err)
	}

	el, err := page.Element(".container")
	if err != nil {
		return nil, fmt.Errorf("render: locating card element: %w", err)
	}

	shot, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("render: capturing card: %w", err)
	}

	r.logger.Debug("card rendered", "record", rec.RecordID, "bytes", len(shot))
	return shot, nil
}

// buildHTML fills the card template. Downloaded assets are inlined as data
// URIs; a missing photo falls back to the remote URL and a missing crest
// relies on the template's onerror handler to hide the element.
func (r *Renderer) buildHTML(rec bid.Record, assets Assets) (string, error) {
	data := cardData{
		Name:           rec.SubjectName,
		Nickname:       nicknameOrDash(rec.SubjectNickname),
		RecordID:       rec.RecordID,
		ContractNumber: rec.ContractNumber,
		ContractType:   rec.ContractType,
		PublishedAt:    rec.PublishedAtDisplay(),
		EndDate:        rec.EndDateDisplay(),
		BirthDate:      rec.BirthDate,
		ClubName:       rec.OrganizationName,
		Region:         r.region,
		PhotoSrc:       imageSrc(assets.Photo, r.photoURL(rec.RecordID)),
		CrestSrc:       imageSrc(assets.Crest, r.crestURL()),
		HistoryURL:     r.history(rec.RecordID),
	}

	var sb strings.Builder
	if err := cardTmpl.Execute(&sb, data); err != nil {
		return "", fmt.Errorf("render: executing card template: %w", err)
	}
	return sb.String(), nil
}

func imageSrc(data []byte, fallbackURL string) template.URL {
	if len(data) == 0 {
		return template.URL(fallbackURL)
	}
	return template.URL("data:image/png;base64," + base64.StdEncoding.EncodeToString(data))
}

func nicknameOrDash(nick string) string {
	if nick == "" {
		return "-"
	}
	return nick
}
