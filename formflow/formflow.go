// Package formflow runs the in-form half of an application: fill the
// current page, advance or submit, reclassify, repeat. Multi-page ATS
// flows (Workday, Greenhouse, Lever and their clones) all reduce to this
// loop; the page budget is the backstop against forms that never advance,
// and "no actionable button found" is the fast path out.
package formflow

import (
	"context"
	"fmt"
	"log/slog"
	"strings"

	"github.com/mbultel/postule/browser"
	"github.com/mbultel/postule/classify"
)

// successPhrases mark a completed submission. Checked case-insensitively
// against the page's visible text.
var successPhrases = []string{
	"application submitted",
	"application received",
	"application complete",
	"thank you for applying",
	"thank you for your application",
	"successfully applied",
	"your application has been",
}

// Generic advance candidates, tried after the classifier's selectors.
var (
	nextHeuristics = []string{
		"text:Continue",
		"text:Next",
		"button[class*='next']",
	}
	submitHeuristics = []string{
		"text:Submit application",
		"text:Submit",
		"text:Envoyer",
		"button[type='submit']",
		"input[type='submit']",
	}
)

// Terminal failure reasons.
const (
	ReasonNoButton       = "no actionable button found"
	ReasonBudget         = "form page budget exhausted"
	ReasonUnexpectedPage = "unexpected page type"
)

// FillResult reports one page's fill pass.
type FillResult struct {
	FieldsFilled  int
	FieldsSkipped int
	Errors        []string
}

// FillFunc fills the fields of one classified form page. Returning an
// error (a required field with no value to give) is terminal for the job.
type FillFunc func(ctx context.Context, cls classify.Classification) (FillResult, error)

// Config tunes the runner.
type Config struct {
	// MaxPages bounds form pages processed in one run. Default: 20.
	MaxPages int
	Logger   *slog.Logger
}

func (c *Config) defaults() {
	if c.MaxPages <= 0 {
		c.MaxPages = 20
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Result is the outcome of one form run.
type Result struct {
	Success      bool
	Reason       string // empty on success
	TotalPages   int
	FieldsFilled int
	Screenshot   []byte // best-effort capture on failure
}

// Runner drives one form to submission.
type Runner struct {
	driver     browser.Driver
	classifier classify.Classifier
	fill       FillFunc
	cfg        Config
}

// New creates a Runner.
func New(driver browser.Driver, classifier classify.Classifier, fill FillFunc, cfg Config) *Runner {
	cfg.defaults()
	return &Runner{driver: driver, classifier: classifier, fill: fill, cfg: cfg}
}

// Run processes form pages until submission is confirmed, a terminal
// condition is hit, or the page budget runs out. The caller is already
// on the first form page. The returned error is reserved for transient
// driver/classifier failures and cancellation.
func (r *Runner) Run(ctx context.Context) (Result, error) {
	log := r.cfg.Logger
	res := Result{}

	for {
		if err := ctx.Err(); err != nil {
			return res, err
		}

		snap, err := r.driver.Snapshot(ctx)
		if err != nil {
			return res, fmt.Errorf("formflow: snapshot: %w", err)
		}

		// Success text wins over whatever the classifier thinks: a
		// confirmation page sometimes still classifies as a form.
		if MatchesSuccessPhrase(snap.VisibleText) {
			res.Success = true
			return res, nil
		}

		cls, err := r.classifier.Classify(ctx, snap)
		if err != nil {
			return res, fmt.Errorf("formflow: classify: %w", err)
		}

		if cls.PageType != classify.PageApplicationForm {
			return r.fail(ctx, res, fmt.Sprintf("%s: %s", ReasonUnexpectedPage, cls.PageType)), nil
		}

		if res.TotalPages >= r.cfg.MaxPages {
			return r.fail(ctx, res, ReasonBudget), nil
		}
		res.TotalPages++

		fr, err := r.fill(ctx, cls)
		res.FieldsFilled += fr.FieldsFilled
		if err != nil {
			return r.fail(ctx, res, fmt.Sprintf("fill failed: %v", err)), nil
		}
		log.Debug("formflow: page filled",
			"page", res.TotalPages, "filled", fr.FieldsFilled, "skipped", fr.FieldsSkipped)

		// Advance: "next" first, then "submit".
		clicked, err := r.driver.FindAndClick(ctx, append(append([]string{}, cls.NextSelectors...), nextHeuristics...))
		if err != nil {
			return res, fmt.Errorf("formflow: next click: %w", err)
		}
		if !clicked {
			clicked, err = r.driver.FindAndClick(ctx, append(append([]string{}, cls.SubmitSelectors...), submitHeuristics...))
			if err != nil {
				return res, fmt.Errorf("formflow: submit click: %w", err)
			}
			if !clicked {
				return r.fail(ctx, res, ReasonNoButton), nil
			}
		}
	}
}

func (r *Runner) fail(ctx context.Context, res Result, reason string) Result {
	res.Success = false
	res.Reason = reason
	if shot, err := r.driver.Screenshot(ctx); err == nil {
		res.Screenshot = shot
	}
	r.cfg.Logger.Info("formflow: terminal", "reason", reason, "pages", res.TotalPages)
	return res
}

// MatchesSuccessPhrase reports whether text contains any submission
// confirmation phrase.
func MatchesSuccessPhrase(text string) bool {
	t := strings.ToLower(text)
	for _, p := range successPhrases {
		if strings.Contains(t, p) {
			return true
		}
	}
	return false
}
