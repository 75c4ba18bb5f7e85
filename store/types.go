package store

import "errors"

// ErrNotFound marks an operation against an id with no row.
var ErrNotFound = errors.New("store: not found")

// Session status values.
const (
	SessionActive    = "active"
	SessionPaused    = "paused"
	SessionStopped   = "stopped"
	SessionCompleted = "completed"
	SessionError     = "error"
)

// Attempt status values.
const (
	AttemptSuccess             = "success"
	AttemptFailed              = "failed"
	AttemptSkipped             = "skipped"
	AttemptRequiresManual      = "requires_manual"
	AttemptPendingConfirmation = "pending_confirmation"
)

// Session is one workflow run.
type Session struct {
	ID              string
	Owner           string
	Type            string
	Status          string
	CancelRequested bool
	ProcessedItems  int
	TotalItems      int
	Message         string
	CreatedAt       int64
	UpdatedAt       int64
}

// LogEntry is one structured session log line.
type LogEntry struct {
	ID        int64
	SessionID string
	Level     string
	Message   string
	LoggedAt  int64
}

// Job is a persisted discovered posting with its computed match.
type Job struct {
	ID           string
	Title        string
	Company      string
	Location     string
	Description  string
	Source       string
	URL          string
	Remote       bool
	SalaryMin    int
	SalaryMax    int
	SkillsJSON   string
	MatchScore   float64
	Fit          string
	DiscoveredAt int64
}

// Attempt is one application attempt. Immutable after finalization; a
// retry creates a new row.
type Attempt struct {
	ID            string
	SessionID     string
	JobID         string
	Status        string
	Message       string
	FieldsFilled  int
	ScreenshotRef string
	StartedAt     int64
	FinishedAt    int64 // 0 until finalized
}
