package browser

import "testing"

func TestRegexpQuote(t *testing.T) {
	// WHAT: Metacharacters in button text are escaped for ElementR.
	// WHY: "Apply (1-click)" must not become an invalid JS regex.
	cases := map[string]string{
		"Apply":           "Apply",
		"Apply (1-click)": `Apply \(1-click\)`,
		"Next >":          "Next >",
		"a.b":             `a\.b`,
	}
	for in, want := range cases {
		if got := regexpQuote(in); got != want {
			t.Errorf("regexpQuote(%q): got %q, want %q", in, got, want)
		}
	}
}

func TestConfigDefaults(t *testing.T) {
	// WHAT: Zero config defaults to headless with a 5s element timeout.
	// WHY: Launch on an empty Config must be production-safe.
	var c Config
	c.defaults()
	if c.Headless == nil || !*c.Headless {
		t.Error("default should be headless")
	}
	if c.ElementTimeout <= 0 {
		t.Error("element timeout should default")
	}
	if c.Logger == nil {
		t.Error("logger should default")
	}
}
