package workflow

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/mbultel/postule/browser"
	"github.com/mbultel/postule/classify"
	"github.com/mbultel/postule/dbopen"
	"github.com/mbultel/postule/formflow"
	"github.com/mbultel/postule/match"
	"github.com/mbultel/postule/navigate"
	"github.com/mbultel/postule/ratelimit"
	"github.com/mbultel/postule/retry"
	"github.com/mbultel/postule/store"
	_ "modernc.org/sqlite"
)

// stubDiscoverer hands back a fixed batch.
type stubDiscoverer struct {
	jobs []*match.Job
	err  error
}

func (s *stubDiscoverer) Discover(ctx context.Context, profile *match.Profile) ([]*match.Job, error) {
	return s.jobs, s.err
}

// scriptDriver scripts page texts per Snapshot call and click results per
// FindAndClick call; missing entries default to "" and true.
type scriptDriver struct {
	snapTexts    []string
	clickResults []bool
	navigated    []string
	filled       int
}

func (d *scriptDriver) Navigate(ctx context.Context, url string) error {
	d.navigated = append(d.navigated, url)
	return nil
}

func (d *scriptDriver) FindAndClick(ctx context.Context, selectors []string) (bool, error) {
	if len(d.clickResults) == 0 {
		return true, nil
	}
	r := d.clickResults[0]
	d.clickResults = d.clickResults[1:]
	return r, nil
}

func (d *scriptDriver) FillField(ctx context.Context, selector, value string) error {
	d.filled++
	return nil
}

func (d *scriptDriver) VisibleText(ctx context.Context) (string, error) { return "", nil }
func (d *scriptDriver) Screenshot(ctx context.Context) ([]byte, error)  { return []byte{0x89}, nil }

func (d *scriptDriver) Snapshot(ctx context.Context) (classify.Snapshot, error) {
	text := ""
	if len(d.snapTexts) > 0 {
		text = d.snapTexts[0]
		d.snapTexts = d.snapTexts[1:]
	}
	return classify.Snapshot{URL: "https://jobs.example/x", VisibleText: text}, nil
}

var _ browser.Driver = (*scriptDriver)(nil)

// seqClassifier replays a fixed sequence; the last entry repeats.
type seqClassifier struct {
	seq []classify.Classification
	i   int
}

func (s *seqClassifier) Classify(ctx context.Context, snap classify.Snapshot) (classify.Classification, error) {
	c := s.seq[s.i]
	if s.i < len(s.seq)-1 {
		s.i++
	}
	return c, nil
}

func testProfile() *match.Profile {
	start := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	return &match.Profile{
		Skills: []match.Skill{
			{Name: "Go", Proficiency: match.ProficiencyAdvanced},
			{Name: "PostgreSQL", Proficiency: match.ProficiencyIntermediate},
		},
		Experience: []match.Experience{
			{Company: "Acme", Title: "Software Engineer", Start: start},
		},
		Preferences: match.Preferences{RemoteOK: true},
	}
}

// jobSeq staggers DiscoveredAt so equal-score jobs rank in construction
// order (recency is the tiebreak).
var jobSeq int

func strongJob(id, platform string) *match.Job {
	jobSeq++
	return &match.Job{
		ID: id, Title: "Software Engineer", Company: "Initech",
		Description: "Build backend services in Go.",
		Source:      platform, URL: "https://jobs.example/" + id,
		Remote:       true,
		Skills:       []match.JobSkill{{Name: "Go", Required: true}},
		DiscoveredAt: time.Now().Add(-time.Duration(jobSeq) * time.Hour),
	}
}

func weakJob(id string) *match.Job {
	return &match.Job{
		ID: id, Title: "Mainframe Operator", Company: "Legacy Corp",
		Description:  "Requires 10+ years of COBOL experience.",
		Source:       "indeed", URL: "https://jobs.example/" + id,
		Location:     "Paris, France",
		Skills:       []match.JobSkill{{Name: "COBOL", Required: true}},
		DiscoveredAt: time.Now(),
	}
}

type rig struct {
	db     *sql.DB
	store  *store.Store
	engine *Engine
	driver *scriptDriver
}

// newRig wires an Engine over an in-memory store with fast timings.
// snapTexts scripts the driver's page texts; cls scripts the classifier.
func newRig(t *testing.T, jobs []*match.Job, cfg Config,
	cls []classify.Classification, snapTexts []string, clickResults []bool,
	confirm ConfirmFunc) *rig {
	t.Helper()

	db := dbopen.OpenMemory(t, dbopen.WithSchema(store.Schema))
	st := store.New(db)

	d := &scriptDriver{snapTexts: snapTexts, clickResults: clickResults}
	cfg.Nav = navigate.Config{MaxSteps: 10, DelayMin: time.Microsecond, DelayMax: 2 * time.Microsecond}
	cfg.Form = formflow.Config{MaxPages: 20}
	cfg.Retry = retry.Options{MaxAttempts: 1, BaseDelay: time.Microsecond}
	if cfg.CancelPollInterval == 0 {
		cfg.CancelPollInterval = time.Hour // checkpoint-only cancellation
	}

	fill := func(ctx context.Context, c classify.Classification, p *match.Profile, j *match.Job) (formflow.FillResult, error) {
		return formflow.FillResult{FieldsFilled: 3}, nil
	}

	eng := New(st, ratelimit.New(ratelimit.Limits{}), match.New(match.Weights{}),
		d, &seqClassifier{seq: cls}, &stubDiscoverer{jobs: jobs}, fill, confirm, cfg)
	return &rig{db: db, store: st, engine: eng, driver: d}
}

func formClassification() classify.Classification {
	return classify.Classification{PageType: classify.PageApplicationForm}
}

func drain(ch <-chan Event) []Event {
	var out []Event
	for ev := range ch {
		out = append(out, ev)
	}
	return out
}

func TestRunHappyPathAndScoreFilter(t *testing.T) {
	// WHAT: One strong job and one weak job; only the strong one is
	// queued (score filter) and it is applied to successfully.
	// WHY: The core promise: discover, score, filter, apply, record.
	ctx := context.Background()
	r := newRig(t, []*match.Job{strongJob("j1", "linkedin"), weakJob("j2")},
		Config{MinScore: 50},
		[]classify.Classification{formClassification()},
		[]string{"", "", "thank you for applying"}, nil, nil)

	sess, err := r.engine.Run(ctx, "marie", testProfile())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sess.Status != store.SessionCompleted {
		t.Fatalf("status = %q, want completed (%s)", sess.Status, sess.Message)
	}
	if sess.TotalItems != 1 || sess.ProcessedItems != 1 {
		t.Fatalf("progress = %d/%d, want 1/1", sess.ProcessedItems, sess.TotalItems)
	}

	attempts, err := r.store.ListAttempts(ctx, sess.ID)
	if err != nil {
		t.Fatalf("list attempts: %v", err)
	}
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1 (weak job must be filtered)", len(attempts))
	}
	a := attempts[0]
	if a.JobID != "j1" || a.Status != store.AttemptSuccess {
		t.Fatalf("attempt = %s/%s, want j1/success (%s)", a.JobID, a.Status, a.Message)
	}
	if a.FieldsFilled != 3 {
		t.Fatalf("fields filled = %d, want 3", a.FieldsFilled)
	}

	// Both jobs were persisted with their scores; only j1 was attempted.
	if j, err := r.store.GetJob(ctx, "j1"); err != nil || j.MatchScore < 50 {
		t.Fatalf("j1 persisted score = %v, %v", j, err)
	}
}

func TestRunEmitsOrderedEvents(t *testing.T) {
	// WHAT: The happy path emits discovered, matched, application_start,
	// application_complete, in that order.
	// WHY: Consumers reconstruct run history from the stream; order is
	// part of the contract.
	r := newRig(t, []*match.Job{strongJob("j1", "linkedin")},
		Config{MinScore: 50},
		[]classify.Classification{formClassification()},
		[]string{"", "", "application submitted"}, nil, nil)

	done := make(chan []Event, 1)
	go func() { done <- drain(r.engine.Events()) }()

	if _, err := r.engine.Run(context.Background(), "marie", testProfile()); err != nil {
		t.Fatalf("run: %v", err)
	}
	events := <-done

	want := []EventKind{EventDiscovered, EventMatched, EventApplicationStart, EventApplicationComplete}
	if len(events) != len(want) {
		t.Fatalf("got %d events, want %d: %+v", len(events), len(want), events)
	}
	for i, k := range want {
		if events[i].Kind != k {
			t.Fatalf("event[%d] = %s, want %s", i, events[i].Kind, k)
		}
	}
	if events[1].Score < 50 {
		t.Fatalf("matched event score = %v, want >= 50", events[1].Score)
	}
}

func TestCancelStopsNewAttempts(t *testing.T) {
	// WHAT: Setting the persisted cancel flag during job 1 prevents jobs
	// 2 and 3 from starting; the session lands on "stopped".
	// WHY: Cancellation must win at the checkpoint even when the current
	// attempt runs to completion.
	ctx := context.Background()
	jobs := []*match.Job{strongJob("j1", "linkedin"), strongJob("j2", "linkedin"), strongJob("j3", "linkedin")}
	r := newRig(t, jobs, Config{MinScore: 50},
		[]classify.Classification{formClassification()},
		[]string{"", "", "application submitted", "", "", "application submitted", "", "", "application submitted"},
		nil, nil)

	// Flip the flag from inside job 1's fill pass.
	r.engine.fill = func(fctx context.Context, c classify.Classification, p *match.Profile, j *match.Job) (formflow.FillResult, error) {
		sessions, err := r.store.ListSessionsByOwner(fctx, "marie")
		if err != nil || len(sessions) != 1 {
			t.Fatalf("list sessions: %v (%d)", err, len(sessions))
		}
		if err := r.store.RequestCancel(fctx, sessions[0].ID); err != nil {
			t.Fatalf("request cancel: %v", err)
		}
		return formflow.FillResult{FieldsFilled: 1}, nil
	}

	sess, err := r.engine.Run(ctx, "marie", testProfile())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sess.Status != store.SessionStopped {
		t.Fatalf("status = %q, want stopped", sess.Status)
	}

	attempts, _ := r.store.ListAttempts(ctx, sess.ID)
	if len(attempts) != 1 {
		t.Fatalf("attempts = %d, want 1: no new attempts after cancel", len(attempts))
	}
	if attempts[0].JobID != "j1" || attempts[0].Status != store.AttemptSuccess {
		t.Fatalf("in-flight attempt = %s/%s, want j1/success", attempts[0].JobID, attempts[0].Status)
	}
}

func TestRateLimitedJobIsSkipped(t *testing.T) {
	// WHAT: With a per-minute budget of 1 and SkipWhenLimited, the
	// second job on the platform records a skipped attempt.
	// WHY: Skipping must leave an auditable row, not silently drop the
	// job.
	ctx := context.Background()
	r := newRig(t, []*match.Job{strongJob("j1", "linkedin"), strongJob("j2", "linkedin")},
		Config{MinScore: 50, SkipWhenLimited: true},
		[]classify.Classification{formClassification()},
		[]string{"", "", "application submitted"}, nil, nil)
	r.engine.limiter = ratelimit.New(ratelimit.Limits{PerMinute: 1, PerHour: 100, PerDay: 100})

	sess, err := r.engine.Run(ctx, "marie", testProfile())
	if err != nil {
		t.Fatalf("run: %v", err)
	}

	attempts, _ := r.store.ListAttempts(ctx, sess.ID)
	if len(attempts) != 2 {
		t.Fatalf("attempts = %d, want 2", len(attempts))
	}
	byJob := map[string]*store.Attempt{}
	for _, a := range attempts {
		byJob[a.JobID] = a
	}
	if byJob["j1"].Status != store.AttemptSuccess {
		t.Fatalf("j1 = %s, want success", byJob["j1"].Status)
	}
	if byJob["j2"].Status != store.AttemptSkipped || !strings.Contains(byJob["j2"].Message, "rate limited") {
		t.Fatalf("j2 = %s %q, want skipped/rate limited", byJob["j2"].Status, byJob["j2"].Message)
	}
}

func TestLoginWallRequiresManual(t *testing.T) {
	// WHAT: A login page during navigation finalizes the attempt as
	// requires_manual, not failed.
	// WHY: Auth walls are an expected outcome the user must resolve;
	// conflating them with failures hides actionable items.
	ctx := context.Background()
	r := newRig(t, []*match.Job{strongJob("j1", "linkedin")},
		Config{MinScore: 50},
		[]classify.Classification{{PageType: classify.PageLogin}},
		nil, nil, nil)

	sess, err := r.engine.Run(ctx, "marie", testProfile())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	if sess.Status != store.SessionCompleted {
		t.Fatalf("status = %q, want completed (a manual-auth job does not fail the run)", sess.Status)
	}

	attempts, _ := r.store.ListAttempts(ctx, sess.ID)
	if len(attempts) != 1 || attempts[0].Status != store.AttemptRequiresManual {
		t.Fatalf("attempt = %+v, want requires_manual", attempts)
	}
	if attempts[0].Message != navigate.ReasonManualAuth {
		t.Fatalf("message = %q, want %q", attempts[0].Message, navigate.ReasonManualAuth)
	}
}

func TestConfirmDeclinedSkipsWithoutBrowser(t *testing.T) {
	// WHAT: A declining confirmation callback records a skip and never
	// touches the browser.
	// WHY: Declining one job is job-scoped; and no navigation may happen
	// before approval.
	ctx := context.Background()
	confirm := func(ctx context.Context, job *match.Job, res match.Result) (bool, error) {
		return false, nil
	}
	r := newRig(t, []*match.Job{strongJob("j1", "linkedin")},
		Config{MinScore: 50},
		[]classify.Classification{formClassification()},
		nil, nil, confirm)

	sess, err := r.engine.Run(ctx, "marie", testProfile())
	if err != nil {
		t.Fatalf("run: %v", err)
	}
	attempts, _ := r.store.ListAttempts(ctx, sess.ID)
	if len(attempts) != 1 || attempts[0].Status != store.AttemptSkipped {
		t.Fatalf("attempt = %+v, want one skipped", attempts)
	}
	if attempts[0].Message != "declined by user" {
		t.Fatalf("message = %q", attempts[0].Message)
	}
	if len(r.driver.navigated) != 0 {
		t.Fatalf("browser touched before approval: %v", r.driver.navigated)
	}
}

func TestAttemptStorageFailureFailsSession(t *testing.T) {
	// WHAT: A storage error while checking for a prior attempt fails the
	// session with an error status; the job is not silently dropped.
	// WHY: Storage unavailability is terminal for the whole run; a job
	// vanishing with no attempt row and no log line is undiagnosable.
	ctx := context.Background()
	r := newRig(t, []*match.Job{strongJob("j1", "linkedin")},
		Config{MinScore: 50},
		[]classify.Classification{formClassification()},
		[]string{"", "", "application submitted"}, nil, nil)

	if _, err := r.db.Exec(`DROP TABLE attempts`); err != nil {
		t.Fatalf("drop attempts: %v", err)
	}

	_, err := r.engine.Run(ctx, "marie", testProfile())
	if err == nil {
		t.Fatal("run should surface the storage error")
	}
	if !strings.Contains(err.Error(), "check attempt") {
		t.Fatalf("err = %v, want attempt-check failure", err)
	}
	sessions, lerr := r.store.ListSessionsByOwner(ctx, "marie")
	if lerr != nil || len(sessions) != 1 {
		t.Fatalf("sessions: %v (%d)", lerr, len(sessions))
	}
	if sessions[0].Status != store.SessionError {
		t.Fatalf("status = %q, want error", sessions[0].Status)
	}
}

func TestDiscoveryFailureFailsSession(t *testing.T) {
	// WHAT: A discovery error persists an error-status session and
	// surfaces from Run.
	// WHY: Terminal-per-session errors must leave a diagnosable record.
	ctx := context.Background()
	r := newRig(t, nil, Config{MinScore: 50}, []classify.Classification{formClassification()}, nil, nil, nil)
	r.engine.discover = &stubDiscoverer{err: context.DeadlineExceeded}

	_, err := r.engine.Run(ctx, "marie", testProfile())
	if !errors.Is(err, ErrDiscovery) {
		t.Fatalf("err = %v, want ErrDiscovery", err)
	}
	sessions, err := r.store.ListSessionsByOwner(ctx, "marie")
	if err != nil || len(sessions) != 1 {
		t.Fatalf("sessions: %v (%d)", err, len(sessions))
	}
	if sessions[0].Status != store.SessionError {
		t.Fatalf("status = %q, want error", sessions[0].Status)
	}
}
