package match

import "time"

// Job is one discovered posting. Immutable after discovery; the computed
// match score is attached by the caller, never written back here.
type Job struct {
	ID           string
	Title        string
	Company      string
	Location     string
	Description  string // may contain scraped HTML; sanitized before scoring
	Source       string // platform the posting came from (linkedin, indeed...)
	URL          string
	Remote       bool
	SalaryMin    int
	SalaryMax    int
	Skills       []JobSkill
	DiscoveredAt time.Time
}

// JobSkill is one skill the posting asks for.
type JobSkill struct {
	Name     string
	Required bool
	// Weight of this skill in the skill score. 0 means default:
	// 2 for required skills, 1 for preferred.
	Weight float64
}

// Proficiency tiers for profile skills.
const (
	ProficiencyBeginner     = "beginner"
	ProficiencyIntermediate = "intermediate"
	ProficiencyAdvanced     = "advanced"
	ProficiencyExpert       = "expert"
)

// Skill is one skill the applicant declares.
type Skill struct {
	Name        string
	Proficiency string
}

// Experience is one employment period. End nil means current.
type Experience struct {
	Company string
	Title   string
	Start   time.Time
	End     *time.Time
	Skills  []string
}

// Education is one degree or certification.
type Education struct {
	Institution string
	Degree      string
	Field       string
	Year        int
}

// Preferences are the applicant's targeting constraints.
type Preferences struct {
	TargetRoles  []string
	Locations    []string
	RemoteOK     bool
	WillRelocate bool
	SalaryFloor  int
}

// Profile is the applicant. Read-only to this package.
type Profile struct {
	Skills      []Skill
	Experience  []Experience
	Education   []Education
	Preferences Preferences
}

// FitCategory buckets an overall score.
type FitCategory string

const (
	FitExcellent FitCategory = "excellent" // >= 85
	FitGood      FitCategory = "good"      // >= 70
	FitModerate  FitCategory = "moderate"  // >= 50
	FitStretch   FitCategory = "stretch"   // >= 30
	FitUnlikely  FitCategory = "unlikely"
)

// SkillMatch is one job skill's presence verdict.
type SkillMatch struct {
	Name     string
	Required bool
	Present  bool
}

// Result is the scored fit of one (job, profile) pair. Category scores
// are in [0,100]; a category whose Has flag is false did not contribute
// to Overall (weights renormalize over present categories).
type Result struct {
	Overall float64
	Fit     FitCategory

	SkillScore      float64
	ExperienceScore float64
	LocationScore   float64
	SalaryScore     float64
	HasSalary       bool

	SkillMatches []SkillMatch
	YearsOfExp   float64
	ReqYears     int // 0 when the posting states no requirement
}

// Weights are the relative category weights, renormalized at scoring
// time over the categories actually present for a given pair.
type Weights struct {
	Skills     float64
	Experience float64
	Location   float64
	Salary     float64
}

func (w *Weights) defaults() {
	if w.Skills <= 0 && w.Experience <= 0 && w.Location <= 0 && w.Salary <= 0 {
		w.Skills = 0.4
		w.Experience = 0.3
		w.Location = 0.2
		w.Salary = 0.1
	}
}

// FitFor buckets a score per the fixed thresholds.
func FitFor(score float64) FitCategory {
	switch {
	case score >= 85:
		return FitExcellent
	case score >= 70:
		return FitGood
	case score >= 50:
		return FitModerate
	case score >= 30:
		return FitStretch
	default:
		return FitUnlikely
	}
}
