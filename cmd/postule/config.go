package main

import (
	"fmt"
	"os"
	"time"

	"gopkg.in/yaml.v3"

	"github.com/mbultel/postule/browser"
	"github.com/mbultel/postule/formflow"
	"github.com/mbultel/postule/match"
	"github.com/mbultel/postule/navigate"
	"github.com/mbultel/postule/ratelimit"
	"github.com/mbultel/postule/retry"
	"github.com/mbultel/postule/workflow"
)

// duration accepts "800ms"-style strings in YAML.
type duration time.Duration

func (d *duration) UnmarshalYAML(value *yaml.Node) error {
	v, err := time.ParseDuration(value.Value)
	if err != nil {
		return fmt.Errorf("duration %q: %w", value.Value, err)
	}
	*d = duration(v)
	return nil
}

// fileConfig is the YAML shape of the config file. Zero values fall
// through to each package's defaults; DB_PATH and LOG_LEVEL env vars
// override their fields.
type fileConfig struct {
	DB            string `yaml:"db"`
	Owner         string `yaml:"owner"`
	ScreenshotDir string `yaml:"screenshot_dir"`

	MinScore        float64 `yaml:"min_score"`
	MaxJobs         int     `yaml:"max_jobs"`
	SkipWhenLimited bool    `yaml:"skip_when_limited"`
	Confirm         bool    `yaml:"confirm"`

	Browser struct {
		RemoteURL string `yaml:"remote_url"`
		Headless  *bool  `yaml:"headless"`
	} `yaml:"browser"`

	Limits struct {
		PerMinute int `yaml:"per_minute"`
		PerHour   int `yaml:"per_hour"`
		PerDay    int `yaml:"per_day"`
	} `yaml:"limits"`

	Weights struct {
		Skills     float64 `yaml:"skills"`
		Experience float64 `yaml:"experience"`
		Location   float64 `yaml:"location"`
		Salary     float64 `yaml:"salary"`
	} `yaml:"weights"`

	Retry struct {
		MaxAttempts int      `yaml:"max_attempts"`
		BaseDelay   duration `yaml:"base_delay"`
	} `yaml:"retry"`

	Nav struct {
		MaxSteps int      `yaml:"max_steps"`
		DelayMin duration `yaml:"delay_min"`
		DelayMax duration `yaml:"delay_max"`
	} `yaml:"nav"`

	Form struct {
		MaxPages int `yaml:"max_pages"`
	} `yaml:"form"`

	// Answers map field-label keywords (lowercase) to values for the
	// form filler: {"email": "...", "phone": "...", "resume": "/path"}.
	Answers map[string]string `yaml:"answers"`
}

func loadConfig(path string) (*fileConfig, error) {
	cfg := &fileConfig{}
	if path != "" {
		raw, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
		if err := yaml.Unmarshal(raw, cfg); err != nil {
			return nil, fmt.Errorf("config %s: %w", path, err)
		}
	}
	if cfg.DB == "" {
		cfg.DB = env("DB_PATH", "data/postule.db")
	}
	if cfg.Owner == "" {
		cfg.Owner = env("OWNER", "default")
	}
	return cfg, nil
}

func (c *fileConfig) limits() ratelimit.Limits {
	return ratelimit.Limits{
		PerMinute: c.Limits.PerMinute,
		PerHour:   c.Limits.PerHour,
		PerDay:    c.Limits.PerDay,
	}
}

func (c *fileConfig) weights() match.Weights {
	return match.Weights{
		Skills:     c.Weights.Skills,
		Experience: c.Weights.Experience,
		Location:   c.Weights.Location,
		Salary:     c.Weights.Salary,
	}
}

func (c *fileConfig) browserConfig() browser.Config {
	return browser.Config{
		RemoteURL: c.Browser.RemoteURL,
		Headless:  c.Browser.Headless,
	}
}

func (c *fileConfig) workflowConfig() workflow.Config {
	return workflow.Config{
		MinScore:        c.MinScore,
		MaxJobs:         c.MaxJobs,
		SkipWhenLimited: c.SkipWhenLimited,
		ScreenshotDir:   c.ScreenshotDir,
		Retry: retry.Options{
			MaxAttempts: c.Retry.MaxAttempts,
			BaseDelay:   time.Duration(c.Retry.BaseDelay),
		},
		Nav: navigate.Config{
			MaxSteps: c.Nav.MaxSteps,
			DelayMin: time.Duration(c.Nav.DelayMin),
			DelayMax: time.Duration(c.Nav.DelayMax),
		},
		Form: formflow.Config{MaxPages: c.Form.MaxPages},
	}
}

// profileFile is the YAML shape of the applicant profile.
type profileFile struct {
	Skills []struct {
		Name        string `yaml:"name"`
		Proficiency string `yaml:"proficiency"`
	} `yaml:"skills"`
	Experience []struct {
		Company string     `yaml:"company"`
		Title   string     `yaml:"title"`
		Start   time.Time  `yaml:"start"`
		End     *time.Time `yaml:"end"`
		Skills  []string   `yaml:"skills"`
	} `yaml:"experience"`
	Education []struct {
		Institution string `yaml:"institution"`
		Degree      string `yaml:"degree"`
		Field       string `yaml:"field"`
		Year        int    `yaml:"year"`
	} `yaml:"education"`
	Preferences struct {
		TargetRoles  []string `yaml:"target_roles"`
		Locations    []string `yaml:"locations"`
		RemoteOK     bool     `yaml:"remote_ok"`
		WillRelocate bool     `yaml:"will_relocate"`
		SalaryFloor  int      `yaml:"salary_floor"`
	} `yaml:"preferences"`
}

func loadProfile(path string) (*match.Profile, error) {
	raw, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}
	var pf profileFile
	if err := yaml.Unmarshal(raw, &pf); err != nil {
		return nil, fmt.Errorf("profile %s: %w", path, err)
	}

	p := &match.Profile{}
	for _, s := range pf.Skills {
		p.Skills = append(p.Skills, match.Skill{Name: s.Name, Proficiency: s.Proficiency})
	}
	for _, e := range pf.Experience {
		p.Experience = append(p.Experience, match.Experience{
			Company: e.Company, Title: e.Title, Start: e.Start, End: e.End, Skills: e.Skills,
		})
	}
	for _, e := range pf.Education {
		p.Education = append(p.Education, match.Education{
			Institution: e.Institution, Degree: e.Degree, Field: e.Field, Year: e.Year,
		})
	}
	p.Preferences = match.Preferences{
		TargetRoles:  pf.Preferences.TargetRoles,
		Locations:    pf.Preferences.Locations,
		RemoteOK:     pf.Preferences.RemoteOK,
		WillRelocate: pf.Preferences.WillRelocate,
		SalaryFloor:  pf.Preferences.SalaryFloor,
	}
	return p, nil
}
