// Package browser drives one Chrome session for the application workflow.
//
// The Driver interface is the only surface the navigation and form layers
// see; the Rod implementation lives behind it so tests run against fakes
// and the orchestrator never touches go-rod types.
package browser

import (
	"context"
	"errors"

	"github.com/mbultel/postule/classify"
)

// ErrElementNotFound reports a selector that matched nothing within the
// lookup timeout. It is the recoverable browser error: the element may
// appear after a retry or a page settle.
var ErrElementNotFound = errors.New("browser: element not found")

// Driver is the minimal browser surface the workflow engine needs.
// Any call may fail; ErrElementNotFound is retryable, everything else is
// classified by the caller.
type Driver interface {
	// Navigate loads url and waits for the page to settle.
	Navigate(ctx context.Context, url string) error

	// FindAndClick tries each selector in order and clicks the first
	// element found. Selectors are CSS by default; the "text:" prefix
	// matches buttons/links by visible text. Returns false (no error)
	// when nothing matched.
	FindAndClick(ctx context.Context, selectors []string) (bool, error)

	// FillField sets the value of the element at selector.
	FillField(ctx context.Context, selector, value string) error

	// VisibleText returns the page's rendered text content.
	VisibleText(ctx context.Context) (string, error)

	// Screenshot captures the current viewport as PNG.
	Screenshot(ctx context.Context) ([]byte, error)

	// Snapshot captures everything the classifier needs in one pass.
	Snapshot(ctx context.Context) (classify.Snapshot, error)
}
