package match

import (
	"regexp"
	"sort"
	"strconv"
	"time"
)

// Requirement patterns, tried in order; the first match wins. Range
// forms take the upper bound — "3-5 years" parses as 5. That reading
// overcounts lenient requirements, but it is the established behaviour
// and downstream fixtures depend on it.
var yearPatterns = []*regexp.Regexp{
	regexp.MustCompile(`(\d+)\s*\+\s*years?`),
	regexp.MustCompile(`(\d+)\s*-\s*(\d+)\s*years?`),
	regexp.MustCompile(`(\d+)\s+to\s+(\d+)\s*years?`),
}

// extractRequiredYears parses an "N+ years" style requirement out of the
// job text. Returns 0 when no pattern matches.
func extractRequiredYears(text string) int {
	for _, re := range yearPatterns {
		m := re.FindStringSubmatch(text)
		if m == nil {
			continue
		}
		// Range patterns capture two groups; take the last (upper bound).
		n, err := strconv.Atoi(m[len(m)-1])
		if err != nil {
			continue
		}
		return n
	}
	return 0
}

// mergedYears sums the profile's experience with overlapping periods
// collapsed, so concurrent positions count once.
func mergedYears(exp []Experience, now time.Time) float64 {
	type span struct{ start, end time.Time }
	spans := make([]span, 0, len(exp))
	for _, e := range exp {
		if e.Start.IsZero() {
			continue
		}
		end := now
		if e.End != nil {
			end = *e.End
		}
		if !end.After(e.Start) {
			continue
		}
		spans = append(spans, span{e.Start, end})
	}
	sort.Slice(spans, func(i, j int) bool { return spans[i].start.Before(spans[j].start) })

	var total time.Duration
	var cur span
	for i, s := range spans {
		if i == 0 {
			cur = s
			continue
		}
		if s.start.After(cur.end) {
			total += cur.end.Sub(cur.start)
			cur = s
			continue
		}
		if s.end.After(cur.end) {
			cur.end = s.end
		}
	}
	if len(spans) > 0 {
		total += cur.end.Sub(cur.start)
	}
	return total.Hours() / (24 * 365.25)
}

// titleBoost measures normalized-token overlap between the job title and
// the profile's current/past titles. Returns a value in [0,20].
func titleBoost(jobTitle string, exp []Experience) float64 {
	jobTokens := tokenSet(jobTitle)
	if len(jobTokens) == 0 {
		return 0
	}
	best := 0.0
	for _, e := range exp {
		tokens := tokenSet(e.Title)
		if len(tokens) == 0 {
			continue
		}
		shared := 0
		for t := range tokens {
			if jobTokens[t] {
				shared++
			}
		}
		smaller := len(tokens)
		if len(jobTokens) < smaller {
			smaller = len(jobTokens)
		}
		if ratio := float64(shared) / float64(smaller); ratio > best {
			best = ratio
		}
	}
	return best * 20
}

func tokenSet(s string) map[string]bool {
	out := make(map[string]bool)
	for _, t := range tokenize(s) {
		out[t] = true
	}
	return out
}

// scoreExperience compares the profile's merged years against the
// posting's stated requirement. The base score tops out at 80; title
// relevance contributes the remaining 20.
func (e *Engine) scoreExperience(job *Job, profile *Profile) (score, years float64, reqYears int) {
	years = mergedYears(profile.Experience, e.now())
	text := e.strip.Sanitize(job.Description)
	reqYears = extractRequiredYears(text)

	var base float64
	switch {
	case reqYears == 0:
		// No stated requirement: years still count, gently.
		base = 60
		if years >= 2 {
			base = 80
		}
	case years >= float64(reqYears):
		base = 80
	default:
		base = 80 * years / float64(reqYears)
	}

	score = base + titleBoost(job.Title, profile.Experience)
	if score > 100 {
		score = 100
	}
	return score, years, reqYears
}
