package workflow

import "errors"

// Sentinels for run-level control flow. Job-level terminal conditions
// never surface as errors: they finalize the job's attempt and the run
// continues.
var (
	// ErrCancelled ends a run at a cancellation checkpoint. The session
	// settles on "stopped", not "error".
	ErrCancelled = errors.New("workflow: cancelled")

	// ErrDiscovery wraps a failed discovery pass. Terminal for the
	// session: with no candidate list there is nothing to process.
	ErrDiscovery = errors.New("workflow: discovery failed")
)
