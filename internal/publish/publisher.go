// Package publish posts announcement cards to X through a scripted browser
// session. The platform has no affordable write API, so the publisher
// drives the regular web UI with a stealth-patched page.
package publish

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/input"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/stealth"

	"github.com/morelatto/bidwatch/internal/config"
)

const (
	loginURL   = "https://x.com/login"
	composeURL = "https://x.com/compose/post"

	stepTimeout = 30 * time.Second
)

// Publisher posts one card per call. Each Publish runs a full login and
// post sequence in a fresh browser so a wedged session never poisons the
// next record.
type Publisher struct {
	creds  config.Credentials
	logger *slog.Logger
}

// New creates a Publisher with the given account credentials.
func New(creds config.Credentials) *Publisher {
	return &Publisher{creds: creds, logger: slog.Default()}
}

// Publish logs in, attaches the card image at imagePath, types the caption,
// and posts. Any step failing aborts the whole attempt.
func (p *Publisher) Publish(ctx context.Context, imagePath, caption string) error {
	path, has := launcher.LookPath()
	if !has {
		return fmt.Errorf("publish: no chrome or chromium binary found")
	}

	l := launcher.New().Bin(path).Headless(true).NoSandbox(true).
		Set("disable-blink-features", "AutomationControlled")
	controlURL, err := l.Launch()
	if err != nil {
		return fmt.Errorf("publish: launching chrome: %w", err)
	}
	defer l.Cleanup()

	browser := rod.New().ControlURL(controlURL).Context(ctx)
	if err := browser.Connect(); err != nil {
		return fmt.Errorf("publish: connecting to chrome: %w", err)
	}
	defer browser.Close()

	page, err := stealth.Page(browser)
	if err != nil {
		return fmt.Errorf("publish: opening stealth page: %w", err)
	}

	if err := p.login(ctx, page); err != nil {
		return err
	}
	if err := p.compose(ctx, page, imagePath, caption); err != nil {
		return err
	}

	p.logger.Info("card published", "image", imagePath)
	return nil
}

func (p *Publisher) login(ctx context.Context, page *rod.Page) error {
	navCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(loginURL); err != nil {
		return fmt.Errorf("publish: opening login page: %w", err)
	}
	if err := page.Context(navCtx).WaitLoad(); err != nil {
		return fmt.Errorf("publish: loading login page: %w", err)
	}

	user, err := firstElement(ctx, page,
		`input[autocomplete="username"]`,
		`input[name="text"]`,
	)
	if err != nil {
		return fmt.Errorf("publish: username field: %w", err)
	}
	if err := user.Input(p.creds.Username); err != nil {
		return fmt.Errorf("publish: typing username: %w", err)
	}
	if err := user.Type(input.Enter); err != nil {
		return fmt.Errorf("publish: advancing past username: %w", err)
	}

	pass, err := firstElement(ctx, page,
		`input[autocomplete="current-password"]`,
		`input[name="password"]`,
	)
	if err != nil {
		return fmt.Errorf("publish: password field: %w", err)
	}
	if err := pass.Input(p.creds.Password); err != nil {
		return fmt.Errorf("publish: typing password: %w", err)
	}
	if err := pass.Type(input.Enter); err != nil {
		return fmt.Errorf("publish: submitting login: %w", err)
	}

	// Login is done once the home timeline's composer entry point exists.
	if _, err := firstElement(ctx, page,
		`a[data-testid="SideNav_NewTweet_Button"]`,
		`div[data-testid="primaryColumn"]`,
	); err != nil {
		return fmt.Errorf("publish: login did not complete: %w", err)
	}

	p.logger.Debug("login complete", "username", p.creds.Username)
	return nil
}

func (p *Publisher) compose(ctx context.Context, page *rod.Page, imagePath, caption string) error {
	navCtx, cancel := context.WithTimeout(ctx, stepTimeout)
	defer cancel()

	if err := page.Context(navCtx).Navigate(composeURL); err != nil {
		return fmt.Errorf("publish: opening composer: %w", err)
	}

	text, err := firstElement(ctx, page,
		`div[data-testid="tweetTextarea_0"]`,
		`div[role="textbox"]`,
	)
	if err != nil {
		return fmt.Errorf("publish: composer textbox: %w", err)
	}
	if err := text.Input(caption); err != nil {
		return fmt.Errorf("publish: typing caption: %w", err)
	}

	file, err := firstElement(ctx, page, `input[data-testid="fileInput"]`, `input[type="file"]`)
	if err != nil {
		return fmt.Errorf("publish: file input: %w", err)
	}
	if err := file.SetFiles([]string{imagePath}); err != nil {
		return fmt.Errorf("publish: attaching card: %w", err)
	}

	// The post button stays disabled until the upload finishes; waiting
	// for the media preview keeps the click from firing early.
	if _, err := firstElement(ctx, page,
		`div[data-testid="attachments"]`,
		`div[data-testid="media"]`,
	); err != nil {
		return fmt.Errorf("publish: card upload did not finish: %w", err)
	}

	post, err := firstElement(ctx, page,
		`button[data-testid="tweetButton"]`,
		`div[data-testid="tweetButton"]`,
	)
	if err != nil {
		return fmt.Errorf("publish: post button: %w", err)
	}
	if err := post.Click("left", 1); err != nil {
		return fmt.Errorf("publish: clicking post: %w", err)
	}

	// Posting navigates or clears the composer; give it a moment to land
	// before the browser is torn down.
	waitCtx, cancelWait := context.WithTimeout(ctx, stepTimeout)
	defer cancelWait()
	if err := page.Context(waitCtx).WaitIdle(stepTimeout); err != nil {
		p.logger.Warn("post confirmation wait ended early", "error", err)
	}
	return nil
}

// firstElement tries each selector in order with a short deadline and
// returns the first match. The selector lists absorb the platform's habit
// of shuffling test ids between UI revisions.
func firstElement(ctx context.Context, page *rod.Page, selectors ...string) (*rod.Element, error) {
	var lastErr error
	for _, sel := range selectors {
		elCtx, cancel := context.WithTimeout(ctx, stepTimeout)
		el, err := page.Context(elCtx).Element(sel)
		cancel()
		if err == nil {
			return el, nil
		}
		lastErr = err
		if ctx.Err() != nil {
			return nil, ctx.Err()
		}
	}
	return nil, fmt.Errorf("no selector matched %v: %w", selectors, lastErr)
}
