// Package classify defines the boundary to the page-understanding oracle.
//
// The oracle (a vision/LLM call, out of scope here) looks at a page
// snapshot and answers "what kind of page is this, and what can be acted
// on". Its answer arrives as loosely-shaped JSON; this package pins it to
// a closed tagged type so the navigation state machine can exhaustively
// switch on PageType. Anything unrecognized or malformed folds into
// PageOther — the state machine must behave given any oracle output.
package classify

import (
	"context"
	"encoding/json"
	"strings"
)

// PageType is the closed set of page classifications.
type PageType string

const (
	PageJobListing      PageType = "job_listing"
	PageJobDetails      PageType = "job_details"
	PageApplicationForm PageType = "application_form"
	PageLogin           PageType = "login"
	PageOther           PageType = "other"
	PageError           PageType = "error"
)

// NormalizePageType maps an arbitrary oracle string onto the closed set.
// Unknown values fold to PageOther.
func NormalizePageType(s string) PageType {
	switch PageType(strings.ToLower(strings.TrimSpace(s))) {
	case PageJobListing, PageJobDetails, PageApplicationForm, PageLogin, PageOther, PageError:
		return PageType(strings.ToLower(strings.TrimSpace(s)))
	default:
		return PageOther
	}
}

// Snapshot is the oracle's input: one captured page.
type Snapshot struct {
	URL         string
	Title       string
	Markdown    string // page HTML rendered to markdown
	VisibleText string
	Screenshot  []byte // optional
}

// ListedJob is one posting the oracle spotted on a listing page.
type ListedJob struct {
	Title    string `json:"title"`
	Selector string `json:"selector"`
	URL      string `json:"url,omitempty"`
}

// FormField is one fillable field the oracle spotted on a form page.
type FormField struct {
	Selector string   `json:"selector"`
	Label    string   `json:"label"`
	Kind     string   `json:"kind"` // text, email, select, file, checkbox...
	Required bool     `json:"required"`
	Options  []string `json:"options,omitempty"`
}

// Classification is the oracle's structured answer for one snapshot.
type Classification struct {
	PageType        PageType    `json:"page_type"`
	Jobs            []ListedJob `json:"jobs,omitempty"`
	FormFields      []FormField `json:"form_fields,omitempty"`
	ApplySelectors  []string    `json:"apply_selectors,omitempty"`
	NextSelectors   []string    `json:"next_selectors,omitempty"`
	SubmitSelectors []string    `json:"submit_selectors,omitempty"`
	LoginRequired   bool        `json:"login_required"`
	Errors          []string    `json:"errors,omitempty"`
}

// Classifier turns a snapshot into a Classification. Implementations may
// fail outright or answer PageOther with no detail; callers handle both.
type Classifier interface {
	Classify(ctx context.Context, snap Snapshot) (Classification, error)
}

// Decode parses raw oracle JSON into a Classification, normalizing the
// page type. Malformed JSON yields a PageOther classification carrying
// the parse error rather than failing the caller — the state machine's
// "other" arm is the designated fallback for oracle noise.
func Decode(raw []byte) Classification {
	var c Classification
	if err := json.Unmarshal(raw, &c); err != nil {
		return Classification{
			PageType: PageOther,
			Errors:   []string{"malformed classification: " + err.Error()},
		}
	}
	c.PageType = NormalizePageType(string(c.PageType))
	if c.LoginRequired && c.PageType == PageOther {
		c.PageType = PageLogin
	}
	return c
}
