package classify

import (
	_ "embed"
	"fmt"
	"os"
	"regexp"

	"gopkg.in/yaml.v3"
)

//go:embed rules.yaml
var defaultRules []byte

// RuleSet is the raw, data-file form of the classifier configuration.
// Treated as configuration, not code: ops can tune the lists via RULES_FILE
// without a rebuild.
type RuleSet struct {
	CasualtyRedAlertThreshold int `yaml:"casualty_red_alert_threshold"`

	AbsoluteVetoes    []VetoRule   `yaml:"absolute_vetoes"`
	ConditionalVetoes []VetoRule   `yaml:"conditional_vetoes"`
	Hazards           []HazardRule `yaml:"hazards"`

	IntensityTerms []string `yaml:"intensity_terms"`
	ForecastTerms  []string `yaml:"forecast_terms"`
	AftermathTerms []string `yaml:"aftermath_terms"`
	RedAlertTerms  []string `yaml:"red_alert_terms"`
}

// VetoRule is a group of exclusion patterns sharing one reason tag.
type VetoRule struct {
	Reason   string   `yaml:"reason"`
	Patterns []string `yaml:"patterns"`
}

// HazardRule is one taxonomy entry: keywords that detect the hazard plus
// severity cues that raise its level.
type HazardRule struct {
	Type string `yaml:"type"`
	// Priority breaks level ties during primary-type selection; lower wins.
	Priority    int         `yaml:"priority"`
	BaseLevel   int         `yaml:"base_level"`
	Keywords    []string    `yaml:"keywords"`
	SevereTerms []string    `yaml:"severe_terms"`
	Scales      []ScaleRule `yaml:"scales"`
}

// ScaleRule maps a captured numeric cue (wind force, magnitude) to a level.
type ScaleRule struct {
	// Pattern must capture the number in group 1.
	Pattern    string      `yaml:"pattern"`
	Thresholds []Threshold `yaml:"thresholds"`
}

// Threshold assigns a level when the captured number is at least Min.
// Thresholds are evaluated in order; list them highest first.
type Threshold struct {
	Min   float64 `yaml:"min"`
	Level int     `yaml:"level"`
}

// LoadRules reads a rule set from path, or the embedded default when path is
// empty.
func LoadRules(path string) (*RuleSet, error) {
	data := defaultRules
	if path != "" {
		b, err := os.ReadFile(path)
		if err != nil {
			return nil, fmt.Errorf("read rules file: %w", err)
		}
		data = b
	}

	var rs RuleSet
	if err := yaml.Unmarshal(data, &rs); err != nil {
		return nil, fmt.Errorf("parse rules file: %w", err)
	}
	if len(rs.Hazards) == 0 {
		return nil, fmt.Errorf("rules file defines no hazards")
	}
	if rs.CasualtyRedAlertThreshold <= 0 {
		rs.CasualtyRedAlertThreshold = 3
	}
	return &rs, nil
}

// Compiled pattern forms, built once at startup.

type compiledVeto struct {
	reason   string
	patterns []*regexp.Regexp
}

type compiledHazard struct {
	typ         string
	priority    int
	baseLevel   int
	keywords    []*regexp.Regexp
	severeTerms []*regexp.Regexp
	scales      []compiledScale
}

type compiledScale struct {
	re         *regexp.Regexp
	thresholds []Threshold
}

func compileVetoes(rules []VetoRule) ([]compiledVeto, error) {
	out := make([]compiledVeto, 0, len(rules))
	for _, r := range rules {
		cv := compiledVeto{reason: r.Reason}
		for _, p := range r.Patterns {
			re, err := regexp.Compile(p)
			if err != nil {
				return nil, fmt.Errorf("veto %q pattern %q: %w", r.Reason, p, err)
			}
			cv.patterns = append(cv.patterns, re)
		}
		out = append(out, cv)
	}
	return out, nil
}

func compileHazards(rules []HazardRule) ([]compiledHazard, error) {
	out := make([]compiledHazard, 0, len(rules))
	for _, r := range rules {
		ch := compiledHazard{typ: r.Type, priority: r.Priority, baseLevel: r.BaseLevel}
		if ch.baseLevel <= 0 {
			ch.baseLevel = 1
		}
		for _, k := range r.Keywords {
			re, err := regexp.Compile(k)
			if err != nil {
				return nil, fmt.Errorf("hazard %q keyword %q: %w", r.Type, k, err)
			}
			ch.keywords = append(ch.keywords, re)
		}
		for _, s := range r.SevereTerms {
			re, err := regexp.Compile(s)
			if err != nil {
				return nil, fmt.Errorf("hazard %q severe term %q: %w", r.Type, s, err)
			}
			ch.severeTerms = append(ch.severeTerms, re)
		}
		for _, sc := range r.Scales {
			re, err := regexp.Compile(sc.Pattern)
			if err != nil {
				return nil, fmt.Errorf("hazard %q scale %q: %w", r.Type, sc.Pattern, err)
			}
			if re.NumSubexp() < 1 {
				return nil, fmt.Errorf("hazard %q scale %q: missing capture group", r.Type, sc.Pattern)
			}
			ch.scales = append(ch.scales, compiledScale{re: re, thresholds: sc.Thresholds})
		}
		out = append(out, ch)
	}
	return out, nil
}

func compileTerms(terms []string, what string) ([]*regexp.Regexp, error) {
	out := make([]*regexp.Regexp, 0, len(terms))
	for _, t := range terms {
		re, err := regexp.Compile(t)
		if err != nil {
			return nil, fmt.Errorf("%s term %q: %w", what, t, err)
		}
		out = append(out, re)
	}
	return out, nil
}
