// Package workflow sequences one application run: discover candidates,
// score them, then walk each surviving job through navigation and form
// submission, recording exactly one attempt per job.
//
// Error taxonomy: transient browser/classifier failures are retried
// through the retry package; terminal-per-job conditions (login wall,
// job not found, navigation exhausted, required field missing) finalize
// that job's attempt and the run continues; terminal-per-session
// conditions (discovery failure, storage unavailable) stop the run and
// persist an error status. No raw driver error escapes this package.
//
// Cancellation is polling-based and persisted: the engine watches the
// session's cancel flag in the store and stops launching new jobs once
// it flips. A watchdog goroutine cancels the run context so in-flight
// waits (backoff sleeps, human delays, rate-limit cooldowns) unwind
// promptly; attempts already past their last checkpoint finish.
package workflow

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"os"
	"path/filepath"
	"time"

	"github.com/mbultel/postule/browser"
	"github.com/mbultel/postule/classify"
	"github.com/mbultel/postule/formflow"
	"github.com/mbultel/postule/match"
	"github.com/mbultel/postule/navigate"
	"github.com/mbultel/postule/ratelimit"
	"github.com/mbultel/postule/retry"
	"github.com/mbultel/postule/store"
)

// Discoverer yields candidate jobs for a profile. External collaborator:
// job boards, search APIs, or a pre-loaded list.
type Discoverer interface {
	Discover(ctx context.Context, profile *match.Profile) ([]*match.Job, error)
}

// FormFiller resolves field values for one classified form page.
type FormFiller func(ctx context.Context, cls classify.Classification, profile *match.Profile, job *match.Job) (formflow.FillResult, error)

// ConfirmFunc gates one job on human approval. Returning false skips
// the job; the run continues.
type ConfirmFunc func(ctx context.Context, job *match.Job, res match.Result) (bool, error)

// Config tunes a run.
type Config struct {
	// MinScore filters the scored queue. Default: 50.
	MinScore float64
	// MaxJobs caps attempts per run. 0 = no cap.
	MaxJobs int
	// SkipWhenLimited skips a rate-limited job instead of waiting out
	// the cooldown. Default: wait.
	SkipWhenLimited bool
	// CancelPollInterval is how often the persisted cancel flag is
	// checked while the run sleeps. Default: 2s.
	CancelPollInterval time.Duration
	// ScreenshotDir stores failure screenshots. Empty disables capture.
	ScreenshotDir string

	Retry retry.Options
	Nav   navigate.Config
	Form  formflow.Config

	Logger *slog.Logger
}

func (c *Config) defaults() {
	if c.MinScore <= 0 {
		c.MinScore = 50
	}
	if c.CancelPollInterval <= 0 {
		c.CancelPollInterval = 2 * time.Second
	}
	if c.Logger == nil {
		c.Logger = slog.Default()
	}
}

// Engine is the workflow orchestrator. One Engine owns one browser
// session and runs sessions sequentially; run several Engines for
// concurrent users.
type Engine struct {
	store      *store.Store
	limiter    *ratelimit.Limiter
	matcher    *match.Engine
	driver     browser.Driver
	classifier classify.Classifier
	discover   Discoverer
	fill       FormFiller
	confirm    ConfirmFunc // nil = no human gate
	cfg        Config
	events     chan Event
}

// New wires an Engine. All collaborators are injected; nothing here
// reaches for process-global state.
func New(st *store.Store, limiter *ratelimit.Limiter, matcher *match.Engine,
	driver browser.Driver, classifier classify.Classifier,
	discover Discoverer, fill FormFiller, confirm ConfirmFunc, cfg Config) *Engine {
	cfg.defaults()
	return &Engine{
		store:      st,
		limiter:    limiter,
		matcher:    matcher,
		driver:     driver,
		classifier: classifier,
		discover:   discover,
		fill:       fill,
		confirm:    confirm,
		cfg:        cfg,
		events:     make(chan Event, 64),
	}
}

// Run executes one full workflow session for owner and returns the
// final session record. Terminal-per-session failures come back as an
// error after the session's error status is persisted.
func (e *Engine) Run(ctx context.Context, owner string, profile *match.Profile) (*store.Session, error) {
	defer close(e.events)
	log := e.cfg.Logger

	sess, err := e.store.CreateSession(ctx, owner, "apply", 0)
	if err != nil {
		return nil, fmt.Errorf("workflow: create session: %w", err)
	}

	// Watchdog: cancel the run context when the persisted flag flips,
	// so sleeps anywhere below unwind without waiting out their timers.
	runCtx, cancelRun := context.WithCancel(ctx)
	defer cancelRun()
	go e.watchCancel(runCtx, cancelRun, sess.ID)

	if err := e.runQueue(runCtx, sess.ID, profile); err != nil {
		if errors.Is(err, ErrCancelled) {
			e.store.SetSessionStatus(ctx, sess.ID, store.SessionStopped, "cancelled")
			e.store.AppendLog(ctx, sess.ID, "info", "session cancelled")
			return e.store.GetSession(ctx, sess.ID)
		}
		e.store.SetSessionStatus(ctx, sess.ID, store.SessionError, err.Error())
		e.store.AppendLog(ctx, sess.ID, "error", err.Error())
		log.Error("workflow: session failed", "session", sess.ID, "error", err)
		return nil, err
	}

	final := store.SessionCompleted
	msg := ""
	if e.store.IsCancelRequested(ctx, sess.ID) {
		final = store.SessionStopped
		msg = "cancelled"
	}
	e.store.SetSessionStatus(ctx, sess.ID, final, msg)
	return e.store.GetSession(ctx, sess.ID)
}

// runQueue builds the scored queue and processes it in order. Returned
// errors are terminal-per-session.
func (e *Engine) runQueue(ctx context.Context, sessionID string, profile *match.Profile) error {
	log := e.cfg.Logger

	jobs, err := e.discover.Discover(ctx, profile)
	if err != nil {
		return fmt.Errorf("%w: %v", ErrDiscovery, err)
	}
	e.store.AppendLog(ctx, sessionID, "info", fmt.Sprintf("discovered %d jobs", len(jobs)))
	for _, j := range jobs {
		e.emit(ctx, Event{Kind: EventDiscovered, SessionID: sessionID, JobID: j.ID, JobTitle: j.Title})
	}

	ranked := e.matcher.Rank(jobs, profile, match.RankOptions{MinScore: e.cfg.MinScore, Limit: e.cfg.MaxJobs})
	for _, r := range ranked {
		e.emit(ctx, Event{
			Kind: EventMatched, SessionID: sessionID, JobID: r.Job.ID,
			JobTitle: r.Job.Title, Score: r.Result.Overall,
			Message: string(r.Result.Fit),
		})
		if err := e.persistJob(ctx, r); err != nil {
			return err
		}
	}
	if err := e.store.SetTotalItems(ctx, sessionID, len(ranked)); err != nil {
		return err
	}
	log.Info("workflow: queue built", "session", sessionID,
		"discovered", len(jobs), "queued", len(ranked))

	// The queue is fixed now; attempts run strictly in score order.
	for i, r := range ranked {
		// Checkpoint: stop launching new attempts once cancel is set.
		if e.store.IsCancelRequested(ctx, sessionID) {
			log.Info("workflow: cancel requested, stopping", "session", sessionID)
			return ErrCancelled
		}

		if err := e.processJob(ctx, sessionID, profile, r); err != nil {
			return err
		}
		if err := e.store.SetProgress(ctx, sessionID, i+1); err != nil {
			return err
		}
		if ctx.Err() != nil {
			return ErrCancelled // watchdog fired mid-job
		}
	}
	return nil
}

// processJob drives one job to a finalized attempt. Terminal-per-job
// conditions are absorbed here: the attempt records them and the run
// moves on. Storage failures are terminal-per-session and returned.
func (e *Engine) processJob(ctx context.Context, sessionID string, profile *match.Profile, r match.Ranked) error {
	job := r.Job
	log := e.cfg.Logger

	// One attempt per job per session, ever.
	done, err := e.store.HasAttempt(ctx, sessionID, job.ID)
	if err != nil {
		return fmt.Errorf("workflow: check attempt: %w", err)
	}
	if done {
		log.Debug("workflow: job already attempted", "job", job.ID)
		return nil
	}

	if !e.waitForRateLimit(ctx, sessionID, job) {
		return nil // skipped or cancelled; attempt already recorded if skipped
	}

	if e.confirm != nil {
		e.emit(ctx, Event{Kind: EventConfirmationRequired, SessionID: sessionID,
			JobID: job.ID, JobTitle: job.Title, Score: r.Result.Overall})
		ok, err := e.confirm(ctx, job, r.Result)
		if err != nil || !ok {
			e.recordSkip(ctx, sessionID, job, "declined by user")
			return nil
		}
	}

	attempt, err := e.store.CreateAttempt(ctx, sessionID, job.ID)
	if err != nil {
		if errors.Is(err, store.ErrDuplicateAttempt) {
			log.Debug("workflow: job already attempted", "job", job.ID)
			return nil
		}
		return fmt.Errorf("workflow: create attempt: %w", err)
	}
	e.emit(ctx, Event{Kind: EventApplicationStart, SessionID: sessionID,
		JobID: job.ID, JobTitle: job.Title})
	e.store.AppendLog(ctx, sessionID, "info", "applying: "+job.Title+" @ "+job.Company)

	status, message, filled, shot := e.applyOnce(ctx, profile, job)

	ref := e.saveScreenshot(attempt.ID, shot)
	if err := e.store.FinalizeAttempt(ctx, attempt.ID, status, message, filled, ref); err != nil {
		log.Error("workflow: finalize attempt", "attempt", attempt.ID, "error", err)
	}

	switch status {
	case store.AttemptSuccess:
		e.emit(ctx, Event{Kind: EventApplicationComplete, SessionID: sessionID,
			JobID: job.ID, JobTitle: job.Title, Message: message})
		e.store.AppendLog(ctx, sessionID, "info", "submitted: "+job.Title)
	default:
		e.emit(ctx, Event{Kind: EventError, SessionID: sessionID,
			JobID: job.ID, JobTitle: job.Title, Message: message})
		e.store.AppendLog(ctx, sessionID, "warn", "attempt "+status+": "+message)
	}
	return nil
}

// applyOnce runs navigation then the form, both behind retry for
// transient failures, and maps the outcome onto an attempt status.
func (e *Engine) applyOnce(ctx context.Context, profile *match.Profile, job *match.Job) (status, message string, filled int, screenshot []byte) {
	nav := navigate.New(e.driver, e.classifier, e.cfg.Nav)

	var out navigate.Outcome
	err := retry.Do(ctx, e.cfg.Retry, func(ctx context.Context) error {
		o, err := nav.Run(ctx, job.URL, job.Title)
		if err != nil {
			return err // transient: driver or classifier hiccup
		}
		out = o
		return nil
	})
	if err != nil {
		return store.AttemptFailed, fmt.Sprintf("navigation failed: %v", err), 0, nil
	}
	if !out.Success {
		st := store.AttemptFailed
		if out.Reason == navigate.ReasonManualAuth {
			// Expected outcome, not a bug: login walls and CAPTCHAs.
			st = store.AttemptRequiresManual
		}
		return st, out.Reason, 0, out.Screenshot
	}

	runner := formflow.New(e.driver, e.classifier, func(ctx context.Context, cls classify.Classification) (formflow.FillResult, error) {
		return e.fill(ctx, cls, profile, job)
	}, e.cfg.Form)

	var res formflow.Result
	err = retry.Do(ctx, e.cfg.Retry, func(ctx context.Context) error {
		r, err := runner.Run(ctx)
		if err != nil {
			return err
		}
		res = r
		return nil
	})
	if err != nil {
		return store.AttemptFailed, fmt.Sprintf("form failed: %v", err), res.FieldsFilled, nil
	}
	if !res.Success {
		return store.AttemptFailed, res.Reason, res.FieldsFilled, res.Screenshot
	}
	return store.AttemptSuccess,
		fmt.Sprintf("submitted after %d page(s)", res.TotalPages),
		res.FieldsFilled, nil
}

// waitForRateLimit blocks until the platform has headroom, polling the
// cancel flag during the wait. Returns false when the job should not
// proceed (skipped or cancelled).
func (e *Engine) waitForRateLimit(ctx context.Context, sessionID string, job *match.Job) bool {
	for {
		allowed, retryAfter := e.limiter.CheckAndConsume(job.Source)
		if allowed {
			return true
		}
		if e.cfg.SkipWhenLimited {
			e.recordSkip(ctx, sessionID, job, fmt.Sprintf("rate limited on %s (retry in %s)", job.Source, retryAfter.Round(time.Second)))
			return false
		}
		e.cfg.Logger.Info("workflow: rate limited, waiting",
			"platform", job.Source, "retry_after", retryAfter)
		if !e.sleepInterruptible(ctx, sessionID, retryAfter) {
			return false
		}
	}
}

// sleepInterruptible sleeps up to d, waking early on ctx cancellation or
// when the persisted cancel flag flips. Returns false when interrupted.
func (e *Engine) sleepInterruptible(ctx context.Context, sessionID string, d time.Duration) bool {
	deadline := time.Now().Add(d)
	for time.Now().Before(deadline) {
		step := e.cfg.CancelPollInterval
		if remaining := time.Until(deadline); remaining < step {
			step = remaining
		}
		t := time.NewTimer(step)
		select {
		case <-ctx.Done():
			t.Stop()
			return false
		case <-t.C:
		}
		if e.store.IsCancelRequested(ctx, sessionID) {
			return false
		}
	}
	return true
}

// watchCancel polls the persisted cancel flag and cancels the run
// context when it flips.
func (e *Engine) watchCancel(ctx context.Context, cancel context.CancelFunc, sessionID string) {
	ticker := time.NewTicker(e.cfg.CancelPollInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			if e.store.IsCancelRequested(ctx, sessionID) {
				cancel()
				return
			}
		}
	}
}

func (e *Engine) recordSkip(ctx context.Context, sessionID string, job *match.Job, reason string) {
	attempt, err := e.store.CreateAttempt(ctx, sessionID, job.ID)
	if err != nil {
		e.cfg.Logger.Error("workflow: record skip", "job", job.ID, "error", err)
		return
	}
	e.store.FinalizeAttempt(ctx, attempt.ID, store.AttemptSkipped, reason, 0, "")
	e.store.AppendLog(ctx, sessionID, "info", "skipped "+job.Title+": "+reason)
}

// saveScreenshot writes shot under ScreenshotDir and returns its path.
// Empty when capture is disabled or there is nothing to save.
func (e *Engine) saveScreenshot(attemptID string, shot []byte) string {
	if e.cfg.ScreenshotDir == "" || len(shot) == 0 {
		return ""
	}
	if err := os.MkdirAll(e.cfg.ScreenshotDir, 0o755); err != nil {
		e.cfg.Logger.Warn("workflow: screenshot dir", "error", err)
		return ""
	}
	path := filepath.Join(e.cfg.ScreenshotDir, attemptID+".png")
	if err := os.WriteFile(path, shot, 0o644); err != nil {
		e.cfg.Logger.Warn("workflow: save screenshot", "error", err)
		return ""
	}
	return path
}

// persistJob stores a ranked job with its match columns.
func (e *Engine) persistJob(ctx context.Context, r match.Ranked) error {
	j := r.Job
	return e.store.UpsertJob(ctx, &store.Job{
		ID:           j.ID,
		Title:        j.Title,
		Company:      j.Company,
		Location:     j.Location,
		Description:  j.Description,
		Source:       j.Source,
		URL:          j.URL,
		Remote:       j.Remote,
		SalaryMin:    j.SalaryMin,
		SalaryMax:    j.SalaryMax,
		SkillsJSON:   skillsJSON(j.Skills),
		MatchScore:   r.Result.Overall,
		Fit:          string(r.Result.Fit),
		DiscoveredAt: j.DiscoveredAt.UnixMilli(),
	})
}

func skillsJSON(skills []match.JobSkill) string {
	if len(skills) == 0 {
		return "[]"
	}
	b, err := json.Marshal(skills)
	if err != nil {
		return "[]"
	}
	return string(b)
}
