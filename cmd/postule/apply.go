package main

import (
	"context"
	"fmt"
	"os"
	"strings"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbultel/postule/browser"
	"github.com/mbultel/postule/classify"
	"github.com/mbultel/postule/formflow"
	"github.com/mbultel/postule/idgen"
	"github.com/mbultel/postule/match"
)

// jobsFile is the YAML shape of a candidate list. Until a live search
// integration lands, candidates come from a curated file.
type jobsFile struct {
	Jobs []struct {
		ID          string `yaml:"id"`
		Title       string `yaml:"title"`
		Company     string `yaml:"company"`
		Location    string `yaml:"location"`
		Description string `yaml:"description"`
		Source      string `yaml:"source"`
		URL         string `yaml:"url"`
		Remote      bool   `yaml:"remote"`
		SalaryMin   int    `yaml:"salary_min"`
		SalaryMax   int    `yaml:"salary_max"`
		Skills      []struct {
			Name     string `yaml:"name"`
			Required bool   `yaml:"required"`
		} `yaml:"skills"`
	} `yaml:"jobs"`
}

// fileDiscoverer reads candidates from a YAML file at discovery time, so
// edits between runs are picked up without a restart.
type fileDiscoverer struct {
	path string
}

func (f *fileDiscoverer) Discover(ctx context.Context, profile *match.Profile) ([]*match.Job, error) {
	raw, err := os.ReadFile(f.path)
	if err != nil {
		return nil, fmt.Errorf("jobs %s: %w", f.path, err)
	}
	var jf jobsFile
	if err := yaml.Unmarshal(raw, &jf); err != nil {
		return nil, fmt.Errorf("jobs %s: %w", f.path, err)
	}

	now := time.Now()
	jobs := make([]*match.Job, 0, len(jf.Jobs))
	for _, j := range jf.Jobs {
		id := j.ID
		if id == "" {
			id = idgen.Job()
		}
		job := &match.Job{
			ID: id, Title: j.Title, Company: j.Company, Location: j.Location,
			Description: j.Description, Source: j.Source, URL: j.URL,
			Remote: j.Remote, SalaryMin: j.SalaryMin, SalaryMax: j.SalaryMax,
			DiscoveredAt: now,
		}
		for _, s := range j.Skills {
			job.Skills = append(job.Skills, match.JobSkill{Name: s.Name, Required: s.Required})
		}
		jobs = append(jobs, job)
	}
	return jobs, nil
}

// answersFiller fills form fields by matching their label or selector
// against the configured answer keys. A required field with no answer is
// terminal for the job.
type answersFiller struct {
	driver  browser.Driver
	answers map[string]string
}

func (a *answersFiller) fill(ctx context.Context, cls classify.Classification) (formflow.FillResult, error) {
	res := formflow.FillResult{}
	for _, f := range cls.FormFields {
		value, ok := a.answerFor(f)
		if !ok {
			if f.Required {
				return res, fmt.Errorf("no answer for required field %q", f.Label)
			}
			res.FieldsSkipped++
			continue
		}
		if err := a.driver.FillField(ctx, f.Selector, value); err != nil {
			if f.Required {
				return res, fmt.Errorf("fill %q: %w", f.Label, err)
			}
			res.Errors = append(res.Errors, fmt.Sprintf("%s: %v", f.Label, err))
			res.FieldsSkipped++
			continue
		}
		res.FieldsFilled++
	}
	return res, nil
}

func (a *answersFiller) answerFor(f classify.FormField) (string, bool) {
	label := strings.ToLower(f.Label)
	for key, value := range a.answers {
		if strings.Contains(label, strings.ToLower(key)) {
			return value, true
		}
	}
	return "", false
}
