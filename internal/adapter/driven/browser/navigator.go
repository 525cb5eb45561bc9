// Package browser drives scripted account-deletion flows in a headless
// browser. Only sites with a script are attempted; everything else is
// reported as skipped so the caller can fall back to email.
package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/ericfisherdev/datawipe/internal/classify"
	"github.com/ericfisherdev/datawipe/internal/domain/model"
	"github.com/ericfisherdev/datawipe/internal/domain/port/driven"
)

// Compile-time interface satisfaction check.
var _ driven.Navigator = (*Navigator)(nil)

// captchaSelector matches the common challenge widgets.
const captchaSelector = `.g-recaptcha, .h-captcha, iframe[src*="recaptcha"], iframe[src*="hcaptcha"], #captcha`

// Page is the subset of browser-tab behaviour a script needs.
type Page interface {
	Navigate(ctx context.Context, url string) error
	Fill(ctx context.Context, selector, textPattern, value string) error
	Click(ctx context.Context, selector, textPattern string) error
	Select(ctx context.Context, selector, value string) error
	Has(ctx context.Context, selector string) (bool, error)
	HTML(ctx context.Context) (string, error)
	Close() error
}

// PageOpener opens an isolated browser tab.
type PageOpener interface {
	Open(ctx context.Context) (Page, error)
}

// Config tunes a Navigator.
type Config struct {
	// Timeout bounds a whole attempt.
	Timeout time.Duration

	// StepTimeout bounds the wait for a single element.
	StepTimeout time.Duration

	// MaxDifficulty skips scripts rated harder than this. Zero disables the check.
	MaxDifficulty int
}

// Navigator runs site scripts in pages from a PageOpener.
type Navigator struct {
	scripts *Scripts
	opener  PageOpener
	cfg     Config
	logger  *slog.Logger
}

// NewNavigator creates a Navigator.
func NewNavigator(scripts *Scripts, opener PageOpener, cfg Config, logger *slog.Logger) *Navigator {
	if cfg.Timeout <= 0 {
		cfg.Timeout = 60 * time.Second
	}
	if cfg.StepTimeout <= 0 {
		cfg.StepTimeout = 10 * time.Second
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Navigator{scripts: scripts, opener: opener, cfg: cfg, logger: logger}
}

func skip(reason string) model.DeletionOutcome {
	return model.DeletionOutcome{Result: model.OutcomeSkipped, SkipReason: reason}
}

func fail(format string, args ...any) model.DeletionOutcome {
	return model.DeletionOutcome{Result: model.OutcomeFailed, Error: fmt.Sprintf(format, args...)}
}

// Supports reports whether a script exists for the site's host.
func (n *Navigator) Supports(siteURL string) bool {
	_, ok := n.scripts.Lookup(classify.ExtractDomain(siteURL))
	return ok
}

// AttemptDeletion signs in and walks the site's deletion script. Failing to
// open a page is returned as an error; every other problem is reported in the
// outcome.
func (n *Navigator) AttemptDeletion(ctx context.Context, acct model.Account, hints model.SiteMetadata) (model.DeletionOutcome, error) {
	script, ok := n.scripts.Lookup(classify.ExtractDomain(acct.SiteURL))
	if !ok {
		return skip(model.SkipNotSupported), nil
	}
	switch {
	case script.RequiresTwoFactor:
		return skip(model.SkipRequiresTwoFactor), nil
	case n.cfg.MaxDifficulty > 0 && script.Difficulty > n.cfg.MaxDifficulty:
		return skip(model.SkipDifficultyTooHigh), nil
	case acct.Secret.IsZero() || acct.Identity() == "":
		return skip(model.SkipMissingCredentials), nil
	}

	ctx, cancel := context.WithTimeout(ctx, n.cfg.Timeout)
	defer cancel()

	page, err := n.opener.Open(ctx)
	if err != nil {
		return model.DeletionOutcome{}, fmt.Errorf("open browser page: %w", err)
	}
	defer func() {
		if err := page.Close(); err != nil {
			n.logger.Debug("close browser page", "error", err)
		}
	}()

	n.logger.Info("automated deletion started", "site", acct.SiteName, "script", script.Domain)
	outcome := n.run(ctx, page, script, acct, hints)
	n.logger.Info("automated deletion finished",
		"site", acct.SiteName, "result", outcome.Result, "reason", outcome.Reason())
	return outcome, nil
}

func (n *Navigator) run(ctx context.Context, page Page, script *Script, acct model.Account, hints model.SiteMetadata) model.DeletionOutcome {
	expand := strings.NewReplacer(
		"{username}", acct.Identity(),
		"{email}", acct.Email,
		"{password}", acct.Secret.Reveal(),
	)

	if err := n.navigate(ctx, page, script.LoginURL); err != nil {
		return failure("open login page", err)
	}
	if o, blocked := n.captcha(ctx, page); blocked {
		return o
	}

	login := []Step{
		{Action: ActionFill, Selector: script.Login.Username, Value: "{username}"},
		{Action: ActionFill, Selector: script.Login.Password, Value: "{password}"},
		{Action: ActionClick, Selector: script.Login.Submit},
	}
	for i, st := range login {
		if err := n.do(ctx, page, st, expand); err != nil {
			return failure(fmt.Sprintf("login step %d", i+1), err)
		}
	}
	if o, blocked := n.captcha(ctx, page); blocked {
		return o
	}

	target := script.DeletionURL
	if target == "" {
		target = hints.DeletionURL
	}
	if err := n.navigate(ctx, page, target); err != nil {
		return failure("open deletion page", err)
	}

	for i, st := range script.Steps {
		if err := n.do(ctx, page, st, expand); err != nil {
			return failure(fmt.Sprintf("deletion step %d (%s)", i+1, st.Action), err)
		}
	}

	html, err := page.HTML(ctx)
	if err != nil {
		return failure("read result page", err)
	}
	if text, ok := script.confirmation(PageText(html)); ok {
		return model.DeletionOutcome{Result: model.OutcomeSucceeded, ConfirmationText: text}
	}
	if o, blocked := n.captcha(ctx, page); blocked {
		return o
	}
	return fail("no deletion confirmation found after %d steps", len(script.Steps))
}

func (n *Navigator) navigate(ctx context.Context, page Page, url string) error {
	if url == "" {
		return errors.New("no url")
	}
	return page.Navigate(ctx, url)
}

func (n *Navigator) do(ctx context.Context, page Page, st Step, expand *strings.Replacer) error {
	stepCtx, cancel := context.WithTimeout(ctx, n.cfg.StepTimeout)
	defer cancel()

	switch st.Action {
	case ActionGoto:
		return n.navigate(stepCtx, page, st.URL)
	case ActionFill:
		return page.Fill(stepCtx, st.Selector, st.Text, expand.Replace(st.Value))
	case ActionClick, ActionCheck:
		return page.Click(stepCtx, st.Selector, st.Text)
	case ActionSelect:
		return page.Select(stepCtx, st.Selector, expand.Replace(st.Value))
	default:
		return fmt.Errorf("unknown action %q", st.Action)
	}
}

// captcha reports a failed outcome when the page shows a challenge.
func (n *Navigator) captcha(ctx context.Context, page Page) (model.DeletionOutcome, bool) {
	found, err := page.Has(ctx, captchaSelector)
	if err != nil || !found {
		return model.DeletionOutcome{}, false
	}
	return fail("captcha challenge shown"), true
}

// failure words a step error so the retry classifier can read it.
func failure(stage string, err error) model.DeletionOutcome {
	if errors.Is(err, context.DeadlineExceeded) {
		return fail("%s: timeout waiting for page", stage)
	}
	return fail("%s: %v", stage, err)
}
