package browser

import (
	"context"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/go-rod/stealth"
)

// Config configures the Rod-backed driver.
type Config struct {
	// RemoteURL is the WebSocket URL of an external Chrome instance.
	// Empty = launch a local Chrome via launcher.
	RemoteURL string

	// Headless runs Chrome without a display. Default: true.
	// Headful is occasionally needed against aggressive bot detection.
	Headless *bool

	// ElementTimeout bounds each selector lookup. Default: 5s.
	ElementTimeout time.Duration

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.Headless == nil {
		v := true
		c.Headless = &v
	}
	if c.ElementTimeout <= 0 {
		c.ElementTimeout = 5 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Rod is a Driver backed by a go-rod Chrome session. One Rod instance
// owns one page; the workflow engine drives it sequentially.
type Rod struct {
	cfg     Config
	browser *rod.Browser
	lnch    *launcher.Launcher
	page    *rod.Page
}

// Launch starts (or connects to) Chrome and opens one stealth page.
func Launch(cfg Config) (*Rod, error) {
	cfg.defaults()
	log := cfg.Logger

	var wsURL string
	var lnch *launcher.Launcher

	if cfg.RemoteURL != "" {
		wsURL = cfg.RemoteURL
		log.Info("browser: connecting to remote chrome", "url", wsURL)
	} else {
		l := launcher.New().
			Headless(*cfg.Headless).
			Set("disable-blink-features", "AutomationControlled")
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("browser: launch: %w", err)
		}
		wsURL = u
		lnch = l
		log.Info("browser: launched local chrome", "headless", *cfg.Headless)
	}

	b := rod.New().ControlURL(wsURL)
	if err := b.Connect(); err != nil {
		return nil, fmt.Errorf("browser: connect: %w", err)
	}

	page, err := stealth.Page(b)
	if err != nil {
		b.Close()
		return nil, fmt.Errorf("browser: stealth page: %w", err)
	}

	return &Rod{cfg: cfg, browser: b, lnch: lnch, page: page}, nil
}

// Close shuts the page, the browser, and the launched Chrome process.
func (r *Rod) Close() error {
	if r.page != nil {
		r.page.Close()
	}
	if r.browser != nil {
		r.browser.Close()
	}
	if r.lnch != nil {
		r.lnch.Cleanup()
	}
	return nil
}

// Navigate loads url and waits for the load event.
func (r *Rod) Navigate(ctx context.Context, url string) error {
	p := r.page.Context(ctx)
	if err := p.Navigate(url); err != nil {
		return fmt.Errorf("browser: navigate %s: %w", url, err)
	}
	if err := p.WaitLoad(); err != nil {
		// Pages with long-polling assets never fire load; the DOM is
		// usually usable anyway.
		r.cfg.Logger.Warn("browser: wait load", "url", url, "error", err)
	}
	return nil
}

// FindAndClick tries each selector in order. CSS selectors go through
// Element; "text:X" selectors match buttons and links whose visible text
// contains X.
func (r *Rod) FindAndClick(ctx context.Context, selectors []string) (bool, error) {
	for _, sel := range selectors {
		el, err := r.find(ctx, sel)
		if err != nil {
			continue // not found within timeout — try the next candidate
		}
		if err := el.Click(proto.InputMouseButtonLeft, 1); err != nil {
			r.cfg.Logger.Debug("browser: click failed", "selector", sel, "error", err)
			continue
		}
		// Give the page a beat to react before the caller reclassifies.
		r.page.Context(ctx).WaitRequestIdle(800*time.Millisecond, nil, nil, nil)()
		return true, nil
	}
	return false, nil
}

func (r *Rod) find(ctx context.Context, sel string) (*rod.Element, error) {
	p := r.page.Context(ctx).Timeout(r.cfg.ElementTimeout)
	if text, ok := strings.CutPrefix(sel, "text:"); ok {
		return p.ElementR("button, a, input[type=submit]", "/"+regexpQuote(text)+"/i")
	}
	return p.Element(sel)
}

// regexpQuote escapes text for use inside the JS regex ElementR builds.
func regexpQuote(s string) string {
	var b strings.Builder
	for _, r := range s {
		if strings.ContainsRune(`\.+*?()|[]{}^$/`, r) {
			b.WriteByte('\\')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FillField sets the element's value, clearing any previous content.
func (r *Rod) FillField(ctx context.Context, selector, value string) error {
	el, err := r.find(ctx, selector)
	if err != nil {
		return fmt.Errorf("%w: %s", ErrElementNotFound, selector)
	}
	if err := el.SelectAllText(); err == nil {
		el.Input("")
	}
	if err := el.Input(value); err != nil {
		return fmt.Errorf("browser: fill %s: %w", selector, err)
	}
	return nil
}

// VisibleText returns document.body.innerText.
func (r *Rod) VisibleText(ctx context.Context) (string, error) {
	res, err := r.page.Context(ctx).Eval(`() => document.body ? document.body.innerText : ""`)
	if err != nil {
		return "", fmt.Errorf("browser: visible text: %w", err)
	}
	return res.Value.Str(), nil
}

// Screenshot captures the viewport as PNG.
func (r *Rod) Screenshot(ctx context.Context) ([]byte, error) {
	buf, err := r.page.Context(ctx).Screenshot(false, nil)
	if err != nil {
		return nil, fmt.Errorf("browser: screenshot: %w", err)
	}
	return buf, nil
}
