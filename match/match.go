// Package match scores candidate-to-job fit. Scoring is pure and
// deterministic given (job, profile, weights) and the engine's clock:
// the same inputs always produce the same category scores.
package match

import (
	"sort"
	"strings"
	"time"

	"github.com/microcosm-cc/bluemonday"
)

// skillAliases maps common shorthands onto canonical skill names before
// comparison. Both sides of a match pass through this table.
var skillAliases = map[string]string{
	"js":       "javascript",
	"ts":       "typescript",
	"golang":   "go",
	"py":       "python",
	"k8s":      "kubernetes",
	"node":     "node.js",
	"nodejs":   "node.js",
	"postgres": "postgresql",
	"reactjs":  "react",
	"react.js": "react",
	"vuejs":    "vue",
	"vue.js":   "vue",
}

// Engine scores jobs against a profile.
type Engine struct {
	weights Weights
	strip   *bluemonday.Policy
	now     func() time.Time // clock for years-of-experience; test hook
}

// New creates an Engine. Zero weights select the defaults
// (skills 0.4, experience 0.3, location 0.2, salary 0.1).
func New(weights Weights) *Engine {
	weights.defaults()
	return &Engine{
		weights: weights,
		strip:   bluemonday.StrictPolicy(),
		now:     time.Now,
	}
}

// Score computes the fit of one (job, profile) pair.
func (e *Engine) Score(job *Job, profile *Profile) Result {
	r := Result{}

	r.SkillScore, r.SkillMatches = e.scoreSkills(job, profile)
	r.ExperienceScore, r.YearsOfExp, r.ReqYears = e.scoreExperience(job, profile)
	r.LocationScore = scoreLocation(job, profile)
	r.SalaryScore, r.HasSalary = scoreSalary(job, profile)

	// Weighted sum over present categories, weights renormalized to 1.
	total := e.weights.Skills + e.weights.Experience + e.weights.Location
	sum := r.SkillScore*e.weights.Skills +
		r.ExperienceScore*e.weights.Experience +
		r.LocationScore*e.weights.Location
	if r.HasSalary {
		total += e.weights.Salary
		sum += r.SalaryScore * e.weights.Salary
	}
	if total > 0 {
		r.Overall = sum / total
	}
	r.Fit = FitFor(r.Overall)
	return r
}

// normalizeSkill lowercases, trims, and resolves aliases.
func normalizeSkill(s string) string {
	s = strings.ToLower(strings.TrimSpace(s))
	if canon, ok := skillAliases[s]; ok {
		return canon
	}
	return s
}

// skillPresent checks a job skill against one profile skill name.
// Very short names ("go", "c") only match exactly — substring matching
// on them produces false positives on nearly every description.
func skillPresent(jobSkill, profileSkill string) bool {
	if len(jobSkill) < 3 || len(profileSkill) < 3 {
		return jobSkill == profileSkill
	}
	return strings.Contains(profileSkill, jobSkill) || strings.Contains(jobSkill, profileSkill)
}

func (e *Engine) scoreSkills(job *Job, profile *Profile) (float64, []SkillMatch) {
	if len(job.Skills) == 0 {
		return 0, nil
	}

	profSkills := make([]string, 0, len(profile.Skills))
	for _, s := range profile.Skills {
		profSkills = append(profSkills, normalizeSkill(s.Name))
	}

	var matchedWeight, totalWeight float64
	matches := make([]SkillMatch, 0, len(job.Skills))
	for _, js := range job.Skills {
		w := js.Weight
		if w <= 0 {
			w = 1
			if js.Required {
				w = 2
			}
		}
		totalWeight += w

		name := normalizeSkill(js.Name)
		present := false
		for _, ps := range profSkills {
			if skillPresent(name, ps) {
				present = true
				break
			}
		}
		if present {
			matchedWeight += w
		}
		matches = append(matches, SkillMatch{Name: js.Name, Required: js.Required, Present: present})
	}

	return matchedWeight / totalWeight * 100, matches
}

func scoreLocation(job *Job, profile *Profile) float64 {
	jobLoc := normalizeText(job.Location)
	for _, loc := range profile.Preferences.Locations {
		if jobLoc != "" && jobLoc == normalizeText(loc) {
			return 100
		}
	}
	remoteJob := job.Remote || strings.Contains(jobLoc, "remote")
	if remoteJob && profile.Preferences.RemoteOK {
		return 85
	}
	if profile.Preferences.WillRelocate {
		return 60
	}
	return 0
}

// scoreSalary is present only when both sides declare numbers.
func scoreSalary(job *Job, profile *Profile) (float64, bool) {
	floor := profile.Preferences.SalaryFloor
	if floor <= 0 || (job.SalaryMin <= 0 && job.SalaryMax <= 0) {
		return 0, false
	}
	jobMax := job.SalaryMax
	if jobMax <= 0 {
		jobMax = job.SalaryMin
	}
	switch {
	case jobMax >= floor:
		return 100, true
	case float64(jobMax) >= 0.9*float64(floor):
		return 60, true
	default:
		return 20, true
	}
}

// normalizeText lowercases, strips punctuation, and collapses whitespace.
func normalizeText(s string) string {
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

func tokenize(s string) []string {
	return strings.Fields(normalizeText(s))
}

// Ranked is one entry of a batch scoring pass.
type Ranked struct {
	Job    *Job
	Result Result
}

// RankOptions filter a batch scoring pass.
type RankOptions struct {
	// MinScore drops results below the threshold. 0 keeps everything.
	MinScore float64
	// Limit caps the output. 0 means no cap.
	Limit int
}

// Rank scores every job and returns them sorted by overall score
// descending; ties break by discovery recency descending. The sort is
// stable, so equal (score, recency) pairs keep their input order.
func (e *Engine) Rank(jobs []*Job, profile *Profile, opts RankOptions) []Ranked {
	out := make([]Ranked, 0, len(jobs))
	for _, j := range jobs {
		res := e.Score(j, profile)
		if res.Overall < opts.MinScore {
			continue
		}
		out = append(out, Ranked{Job: j, Result: res})
	}

	sort.SliceStable(out, func(i, k int) bool {
		if out[i].Result.Overall != out[k].Result.Overall {
			return out[i].Result.Overall > out[k].Result.Overall
		}
		return out[i].Job.DiscoveredAt.After(out[k].Job.DiscoveredAt)
	})

	if opts.Limit > 0 && len(out) > opts.Limit {
		out = out[:opts.Limit]
	}
	return out
}
