// Package navigate walks a browser session from an arbitrary URL toward
// an application form, driven entirely by page classifications. The
// machine is bounded: every run ends within MaxSteps in either success
// (an application_form page) or a terminal failure with a reason.
//
// Classifications are opaque inputs from the oracle; the machine must be
// correct for any value, including adversarial ones — unknown types are
// already folded to "other" by the classify boundary.
package navigate

import (
	"context"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"strings"
	"time"

	"github.com/mbultel/postule/browser"
	"github.com/mbultel/postule/classify"
)

// Terminal failure reasons.
const (
	ReasonManualAuth = "manual auth required"
	ReasonNoApply    = "could not find apply action"
	ReasonNotFound   = "job not found in listing"
	ReasonNoPath     = "no application path found"
	ReasonExhausted  = "navigation exhausted"
	ReasonErrorPage  = "error page"
)

// Generic action candidates, tried after whatever the classifier offers.
var (
	applyHeuristics = []string{
		"text:Apply now",
		"text:Apply",
		"text:Postuler",
		"a[href*='apply']",
		"button[class*='apply']",
	}
	entryHeuristics = []string{
		"text:Apply",
		"text:Careers",
		"text:Jobs",
		"text:View job",
		"a[href*='apply']",
		"a[href*='careers']",
		"a[href*='job']",
	}
)

// Config tunes the machine.
type Config struct {
	// MaxSteps bounds classification/action cycles. Default: 10.
	MaxSteps int
	// DelayMin/DelayMax bound the jittered pause inserted before every
	// action. The pause is load-bearing: acting at machine speed trips
	// anti-automation defenses on real sites. Defaults: 800ms / 2.5s.
	DelayMin time.Duration
	DelayMax time.Duration
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxSteps <= 0 {
		c.MaxSteps = 10
	}
	if c.DelayMin <= 0 {
		c.DelayMin = 800 * time.Millisecond
	}
	if c.DelayMax <= c.DelayMin {
		c.DelayMax = c.DelayMin + 1700*time.Millisecond
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Outcome is the result of one navigation run.
type Outcome struct {
	Success        bool
	Page           classify.PageType
	Classification classify.Classification
	Reason         string // empty on success
	Steps          int
	Screenshot     []byte // best-effort capture on terminal failure
}

// Machine drives one navigation run at a time.
type Machine struct {
	driver     browser.Driver
	classifier classify.Classifier
	cfg        Config
	jitter     func() float64 // test hook; default rand
}

// New creates a Machine.
func New(driver browser.Driver, classifier classify.Classifier, cfg Config) *Machine {
	cfg.defaults()
	return &Machine{driver: driver, classifier: classifier, cfg: cfg, jitter: rand.Float64}
}

// Run navigates from startURL toward an application form for the job
// titled targetTitle. Terminal-per-job conditions come back inside the
// Outcome; the returned error is reserved for transient driver or
// classifier failures (retryable by the caller) and for cancellation.
func (m *Machine) Run(ctx context.Context, startURL, targetTitle string) (Outcome, error) {
	log := m.cfg.Logger

	if err := m.driver.Navigate(ctx, startURL); err != nil {
		return Outcome{}, fmt.Errorf("navigate: open %s: %w", startURL, err)
	}

	out := Outcome{}
	for out.Steps < m.cfg.MaxSteps {
		if err := m.humanDelay(ctx); err != nil {
			return out, err
		}

		snap, err := m.driver.Snapshot(ctx)
		if err != nil {
			return out, fmt.Errorf("navigate: snapshot: %w", err)
		}
		cls, err := m.classifier.Classify(ctx, snap)
		if err != nil {
			return out, fmt.Errorf("navigate: classify: %w", err)
		}
		out.Steps++
		out.Page = cls.PageType
		out.Classification = cls
		log.Debug("navigate: step", "step", out.Steps, "page", cls.PageType, "url", snap.URL)

		switch cls.PageType {
		case classify.PageApplicationForm:
			out.Success = true
			return out, nil

		case classify.PageLogin:
			return m.fail(ctx, out, ReasonManualAuth), nil

		case classify.PageError:
			reason := ReasonErrorPage
			if len(cls.Errors) > 0 {
				reason = ReasonErrorPage + ": " + cls.Errors[0]
			}
			return m.fail(ctx, out, reason), nil

		case classify.PageJobDetails:
			selectors := append(append([]string{}, cls.ApplySelectors...), applyHeuristics...)
			clicked, err := m.driver.FindAndClick(ctx, selectors)
			if err != nil {
				return out, fmt.Errorf("navigate: apply click: %w", err)
			}
			if !clicked {
				// A details page without an apply control is decisive:
				// reclassifying will not grow one.
				return m.fail(ctx, out, ReasonNoApply), nil
			}

		case classify.PageJobListing:
			selectors := listingSelectors(cls, targetTitle)
			if len(selectors) == 0 {
				return m.fail(ctx, out, ReasonNotFound), nil
			}
			clicked, err := m.driver.FindAndClick(ctx, selectors)
			if err != nil {
				return out, fmt.Errorf("navigate: listing click: %w", err)
			}
			if !clicked {
				return m.fail(ctx, out, ReasonNotFound), nil
			}

		default: // PageOther and anything the boundary folded into it
			selectors := append(append([]string{}, cls.ApplySelectors...), entryHeuristics...)
			clicked, err := m.driver.FindAndClick(ctx, selectors)
			if err != nil {
				// The entry point was there but could not be activated —
				// no retry will route around it.
				return m.fail(ctx, out, ReasonNoPath), nil
			}
			if !clicked {
				// Nothing matched; the page may still be settling.
				// Step on — the budget is the backstop.
				continue
			}
		}
	}

	return m.fail(ctx, out, ReasonExhausted), nil
}

// fail builds a terminal outcome, capturing a best-effort screenshot.
func (m *Machine) fail(ctx context.Context, out Outcome, reason string) Outcome {
	out.Success = false
	out.Reason = reason
	if shot, err := m.driver.Screenshot(ctx); err == nil {
		out.Screenshot = shot
	}
	m.cfg.Logger.Info("navigate: terminal", "reason", reason, "steps", out.Steps)
	return out
}

// humanDelay sleeps a jittered interval in [DelayMin, DelayMax].
// Cancellable: a cancelled ctx interrupts the wait immediately.
func (m *Machine) humanDelay(ctx context.Context) error {
	span := m.cfg.DelayMax - m.cfg.DelayMin
	d := m.cfg.DelayMin + time.Duration(m.jitter()*float64(span))
	t := time.NewTimer(d)
	defer t.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-t.C:
		return nil
	}
}

// listingSelectors returns click candidates for the listing entry whose
// title matches targetTitle, best match first.
func listingSelectors(cls classify.Classification, targetTitle string) []string {
	var out []string
	for _, j := range cls.Jobs {
		if TitleMatches(j.Title, targetTitle) {
			if j.Selector != "" {
				out = append(out, j.Selector)
			} else if j.Title != "" {
				out = append(out, "text:"+j.Title)
			}
		}
	}
	return out
}

// TitleMatches reports whether a listing entry's title refers to the
// target job: exact match, substring containment either direction, or
// token overlap covering at least half of the smaller title's tokens.
// All comparisons run on lower-cased, punctuation-stripped,
// whitespace-collapsed text.
func TitleMatches(listed, target string) bool {
	a := normalizeTitle(listed)
	b := normalizeTitle(target)
	if a == "" || b == "" {
		return false
	}
	if a == b {
		return true
	}
	if strings.Contains(a, b) || strings.Contains(b, a) {
		return true
	}

	at := tokenSet(a)
	bt := tokenSet(b)
	smaller := len(at)
	if len(bt) < smaller {
		smaller = len(bt)
	}
	if smaller == 0 {
		return false
	}
	shared := 0
	for t := range at {
		if bt[t] {
			shared++
		}
	}
	return float64(shared) >= float64(smaller)/2
}

func normalizeTitle(s string) string {
	var b strings.Builder
	b.Grow(len(s))
	prevSpace := false
	for _, r := range strings.ToLower(s) {
		switch {
		case r >= 'a' && r <= 'z' || r >= '0' && r <= '9':
			b.WriteRune(r)
			prevSpace = false
		default:
			if !prevSpace && b.Len() > 0 {
				b.WriteByte(' ')
				prevSpace = true
			}
		}
	}
	return strings.TrimSpace(b.String())
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range strings.Fields(s) {
		out[t] = true
	}
	return out
}
