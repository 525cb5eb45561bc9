package browser

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

// RodConfig controls how the browser is launched.
type RodConfig struct {
	// Bin is the browser executable. Empty lets the launcher find or
	// download one.
	Bin      string
	Headless bool
}

// RodOpener launches a browser on first use and opens each page in its own
// incognito context, so attempts never share cookies.
type RodOpener struct {
	cfg    RodConfig
	logger *slog.Logger

	mu       sync.Mutex
	launcher *launcher.Launcher
	browser  *rod.Browser
}

// NewRodOpener returns an opener. The browser is not started until Open.
func NewRodOpener(cfg RodConfig, logger *slog.Logger) *RodOpener {
	if logger == nil {
		logger = slog.Default()
	}
	return &RodOpener{cfg: cfg, logger: logger}
}

func (o *RodOpener) connect() (*rod.Browser, error) {
	o.mu.Lock()
	defer o.mu.Unlock()

	if o.browser != nil {
		if _, err := o.browser.Version(); err == nil {
			return o.browser, nil
		}
		o.logger.Warn("browser connection lost, relaunching")
		o.closeLocked()
	}

	l := launcher.New().Headless(o.cfg.Headless)
	if o.cfg.Bin != "" {
		l = l.Bin(o.cfg.Bin)
	}
	controlURL, err := l.Launch()
	if err != nil {
		return nil, fmt.Errorf("launch browser: %w", err)
	}

	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		l.Kill()
		return nil, fmt.Errorf("connect to browser: %w", err)
	}

	o.launcher = l
	o.browser = b
	o.logger.Info("browser launched", "headless", o.cfg.Headless)
	return b, nil
}

// Open returns a blank page in a fresh incognito context.
func (o *RodOpener) Open(ctx context.Context) (Page, error) {
	b, err := o.connect()
	if err != nil {
		return nil, err
	}

	incognito, err := b.Incognito()
	if err != nil {
		return nil, fmt.Errorf("incognito context: %w", err)
	}
	page, err := incognito.Page(proto.TargetCreateTarget{})
	if err != nil {
		_ = incognito.Close()
		return nil, fmt.Errorf("create page: %w", err)
	}

	return &rodPage{page: page, context: incognito}, nil
}

// Close shuts the browser down.
func (o *RodOpener) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.closeLocked()
}

func (o *RodOpener) closeLocked() error {
	var err error
	if o.browser != nil {
		err = o.browser.Close()
		o.browser = nil
	}
	if o.launcher != nil {
		o.launcher.Kill()
		o.launcher = nil
	}
	return err
}

// rodPage adapts a rod page to Page.
type rodPage struct {
	page    *rod.Page
	context *rod.Browser
}

func (p *rodPage) Navigate(ctx context.Context, url string) error {
	pg := p.page.Context(ctx)
	if err := pg.Navigate(url); err != nil {
		return fmt.Errorf("navigate: %w", err)
	}
	if err := pg.WaitLoad(); err != nil {
		return fmt.Errorf("wait for load: %w", err)
	}
	return nil
}

func (p *rodPage) element(ctx context.Context, selector, textPattern string) (*rod.Element, error) {
	pg := p.page.Context(ctx)
	var (
		el  *rod.Element
		err error
	)
	if textPattern != "" {
		el, err = pg.ElementR(selector, "/"+textPattern+"/i")
	} else {
		el, err = pg.Element(selector)
	}
	if err != nil {
		return nil, fmt.Errorf("element %q not found: %w", selector, err)
	}
	return el, nil
}

func (p *rodPage) Fill(ctx context.Context, selector, textPattern, value string) error {
	el, err := p.element(ctx, selector, textPattern)
	if err != nil {
		return err
	}
	if err := el.SelectAllText(); err != nil {
		return fmt.Errorf("clear %q: %w", selector, err)
	}
	return el.Input(value)
}

func (p *rodPage) Click(ctx context.Context, selector, textPattern string) error {
	el, err := p.element(ctx, selector, textPattern)
	if err != nil {
		return err
	}
	return el.Click(proto.InputMouseButtonLeft, 1)
}

func (p *rodPage) Select(ctx context.Context, selector, value string) error {
	el, err := p.element(ctx, selector, "")
	if err != nil {
		return err
	}
	return el.Select([]string{value}, true, rod.SelectorTypeText)
}

func (p *rodPage) Has(ctx context.Context, selector string) (bool, error) {
	found, _, err := p.page.Context(ctx).Has(selector)
	return found, err
}

func (p *rodPage) HTML(ctx context.Context) (string, error) {
	return p.page.Context(ctx).HTML()
}

func (p *rodPage) Close() error {
	return errors.Join(p.page.Close(), p.context.Close())
}
