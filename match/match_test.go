package match

import (
	"testing"
	"time"
)

func testClock() time.Time {
	return time.Date(2026, 6, 1, 0, 0, 0, 0, time.UTC)
}

func newTestEngine() *Engine {
	e := New(Weights{})
	e.now = testClock
	return e
}

func devProfile() *Profile {
	end2022 := time.Date(2022, 1, 1, 0, 0, 0, 0, time.UTC)
	return &Profile{
		Skills: []Skill{
			{Name: "TypeScript", Proficiency: ProficiencyExpert},
			{Name: "Node.js", Proficiency: ProficiencyExpert},
			{Name: "React", Proficiency: ProficiencyAdvanced},
		},
		Experience: []Experience{
			{
				Company: "Acme",
				Title:   "Backend Developer",
				Start:   time.Date(2019, 1, 1, 0, 0, 0, 0, time.UTC),
				End:     &end2022,
			},
			{
				Company: "Globex",
				Title:   "Senior Software Engineer",
				Start:   time.Date(2021, 6, 1, 0, 0, 0, 0, time.UTC),
			},
		},
		Preferences: Preferences{
			Locations:   []string{"Lyon, France"},
			RemoteOK:    true,
			SalaryFloor: 55000,
		},
	}
}

func TestZeroSkillsScoresZero(t *testing.T) {
	// WHAT: A job with no declared skills gets skill score 0, no error.
	// WHY: Scraped postings often carry no structured skill list.
	e := newTestEngine()
	r := e.Score(&Job{Title: "Engineer"}, devProfile())
	if r.SkillScore != 0 {
		t.Errorf("skill score: got %v, want 0", r.SkillScore)
	}
}

func TestScoresAreBounded(t *testing.T) {
	// WHAT: Overall and every category stay in [0,100].
	// WHY: Downstream thresholds and the fit buckets assume the range.
	e := newTestEngine()
	jobs := []*Job{
		{},
		{Title: "Senior Software Engineer", Location: "Lyon, France",
			Description: "10+ years required", SalaryMax: 90000,
			Skills: []JobSkill{{Name: "typescript", Required: true}}},
		{Description: "<p>2-4 years</p>", Skills: []JobSkill{{Name: "cobol"}}},
	}
	for i, j := range jobs {
		r := e.Score(j, devProfile())
		for name, v := range map[string]float64{
			"overall": r.Overall, "skills": r.SkillScore,
			"experience": r.ExperienceScore, "location": r.LocationScore,
			"salary": r.SalaryScore,
		} {
			if v < 0 || v > 100 {
				t.Errorf("job %d: %s score %v out of [0,100]", i, name, v)
			}
		}
	}
}

func TestStrongSkillMatch(t *testing.T) {
	// WHAT: Full required-skill coverage scores high and fits well.
	// WHY: The canonical scenario: ts/node/react profile vs ts/node/react job.
	e := newTestEngine()
	job := &Job{
		Title:    "Full Stack Engineer",
		Location: "Remote",
		Skills: []JobSkill{
			{Name: "typescript", Required: true},
			{Name: "node.js", Required: true},
			{Name: "react", Required: true},
		},
	}
	r := e.Score(job, devProfile())
	if r.SkillScore <= 70 {
		t.Errorf("skill score: got %v, want > 70", r.SkillScore)
	}
	if r.Fit != FitExcellent && r.Fit != FitGood {
		t.Errorf("fit: got %q, want excellent or good", r.Fit)
	}
	for _, m := range r.SkillMatches {
		if !m.Present {
			t.Errorf("skill %q should be present", m.Name)
		}
	}
}

func TestSkillAliases(t *testing.T) {
	// WHAT: "JS" on the job side matches "JavaScript" on the profile.
	// WHY: Postings and profiles rarely agree on skill spelling.
	e := newTestEngine()
	p := &Profile{Skills: []Skill{{Name: "JavaScript"}, {Name: "Kubernetes"}}}
	job := &Job{Skills: []JobSkill{{Name: "JS"}, {Name: "k8s"}}}
	r := e.Score(job, p)
	if r.SkillScore != 100 {
		t.Errorf("skill score: got %v, want 100", r.SkillScore)
	}
}

func TestShortSkillNamesMatchExactly(t *testing.T) {
	// WHAT: "go" does not substring-match "django".
	// WHY: Two-letter names match almost everything by containment.
	e := newTestEngine()
	p := &Profile{Skills: []Skill{{Name: "django"}}}
	r := e.Score(&Job{Skills: []JobSkill{{Name: "go"}}}, p)
	if r.SkillScore != 0 {
		t.Errorf("skill score: got %v, want 0", r.SkillScore)
	}
}

func TestSalaryOmittedWhenUndeclared(t *testing.T) {
	// WHAT: Without numbers on both sides the salary category is absent.
	// WHY: Weights renormalize over present categories only.
	e := newTestEngine()
	r := e.Score(&Job{}, devProfile()) // job has no salary
	if r.HasSalary {
		t.Error("salary should be absent")
	}

	p := devProfile()
	p.Preferences.SalaryFloor = 0
	r = e.Score(&Job{SalaryMax: 80000}, p) // profile has no floor
	if r.HasSalary {
		t.Error("salary should be absent without a profile floor")
	}
}

func TestScoreIsDeterministic(t *testing.T) {
	// WHAT: Two passes over the same inputs give bit-identical results.
	// WHY: Recomputing a MatchResult must overwrite, not drift.
	e := newTestEngine()
	job := &Job{
		Title:       "Senior Software Engineer",
		Location:    "Lyon, France",
		Description: "We want 3-5 years of experience with react",
		SalaryMin:   50000, SalaryMax: 70000,
		Skills: []JobSkill{{Name: "react", Required: true}, {Name: "graphql"}},
	}
	a := e.Score(job, devProfile())
	b := e.Score(job, devProfile())
	if a.Overall != b.Overall || a.SkillScore != b.SkillScore ||
		a.ExperienceScore != b.ExperienceScore ||
		a.LocationScore != b.LocationScore || a.SalaryScore != b.SalaryScore {
		t.Errorf("scores differ between runs: %+v vs %+v", a, b)
	}
}

func TestLocationTiers(t *testing.T) {
	// WHAT: exact > remote > relocation > nothing.
	// WHY: Fixed tiers, not a similarity metric.
	e := newTestEngine()
	p := devProfile()

	if r := e.Score(&Job{Location: "Lyon, France"}, p); r.LocationScore != 100 {
		t.Errorf("exact: got %v, want 100", r.LocationScore)
	}
	if r := e.Score(&Job{Location: "Remote (EU)"}, p); r.LocationScore != 85 {
		t.Errorf("remote: got %v, want 85", r.LocationScore)
	}

	p.Preferences.RemoteOK = false
	p.Preferences.WillRelocate = true
	if r := e.Score(&Job{Location: "Berlin"}, p); r.LocationScore != 60 {
		t.Errorf("relocate: got %v, want 60", r.LocationScore)
	}

	p.Preferences.WillRelocate = false
	if r := e.Score(&Job{Location: "Berlin"}, p); r.LocationScore != 0 {
		t.Errorf("no match: got %v, want 0", r.LocationScore)
	}
}

func TestRankIsSortedAndFiltered(t *testing.T) {
	// WHAT: Rank sorts score-desc, tie-breaks on recency, honors MinScore
	// and Limit.
	// WHY: The orchestrator processes jobs strictly in this order.
	e := newTestEngine()
	p := devProfile()
	base := time.Date(2026, 5, 1, 0, 0, 0, 0, time.UTC)

	jobs := []*Job{
		{ID: "low", Title: "Accountant", DiscoveredAt: base},
		{ID: "old", Title: "Engineer", Location: "Lyon, France",
			Skills: []JobSkill{{Name: "react"}}, DiscoveredAt: base},
		{ID: "new", Title: "Engineer", Location: "Lyon, France",
			Skills: []JobSkill{{Name: "react"}}, DiscoveredAt: base.Add(time.Hour)},
	}

	ranked := e.Rank(jobs, p, RankOptions{MinScore: 30})
	for i := 1; i < len(ranked); i++ {
		if ranked[i-1].Result.Overall < ranked[i].Result.Overall {
			t.Errorf("not sorted at %d", i)
		}
	}
	// "old" and "new" score identically; recency puts "new" first.
	if len(ranked) >= 2 && ranked[0].Job.ID != "new" {
		t.Errorf("tie-break: got %q first, want new", ranked[0].Job.ID)
	}

	capped := e.Rank(jobs, p, RankOptions{Limit: 1})
	if len(capped) != 1 {
		t.Errorf("limit: got %d results, want 1", len(capped))
	}
}
