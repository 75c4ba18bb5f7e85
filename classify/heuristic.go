package classify

import (
	"context"
	"strings"
)

// Keyword heuristic used when no oracle is wired. Coarse on purpose: it
// identifies the page kind well enough for simple career sites and never
// extracts selectors, so navigation leans entirely on the built-in
// selector heuristics downstream.

var (
	loginMarkers = []string{
		"sign in to continue", "log in to continue", "sign in to apply",
		"forgot password", "create an account to apply",
	}
	errorMarkers = []string{
		"page not found", "404", "this job is no longer available",
		"posting has expired", "an error occurred",
	}
	formMarkers = []string{
		"upload resume", "upload your resume", "upload cv",
		"cover letter", "first name", "last name", "phone number",
	}
	detailsMarkers = []string{
		"responsibilities", "qualifications", "what you'll do",
		"about the role", "job description",
	}
	listingMarkers = []string{
		"jobs found", "open positions", "search results",
		"filter by", "all openings",
	}
)

// Heuristic is a Classifier that keyword-scans the snapshot's visible
// text. Checks run most-specific first: a details page that also says
// "sign in to apply" is a login wall, not a details page.
type Heuristic struct{}

func (Heuristic) Classify(ctx context.Context, snap Snapshot) (Classification, error) {
	text := strings.ToLower(snap.VisibleText)
	if text == "" {
		text = strings.ToLower(snap.Markdown)
	}

	switch {
	case containsAny(text, loginMarkers):
		return Classification{PageType: PageLogin, LoginRequired: true}, nil
	case containsAny(text, errorMarkers):
		return Classification{PageType: PageError}, nil
	case containsAny(text, formMarkers):
		return Classification{PageType: PageApplicationForm}, nil
	case containsAny(text, detailsMarkers):
		return Classification{PageType: PageJobDetails}, nil
	case containsAny(text, listingMarkers):
		return Classification{PageType: PageJobListing}, nil
	}
	return Classification{PageType: PageOther}, nil
}

func containsAny(text string, markers []string) bool {
	for _, m := range markers {
		if strings.Contains(text, m) {
			return true
		}
	}
	return false
}
