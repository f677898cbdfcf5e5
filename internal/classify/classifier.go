package classify

import (
	"fmt"
	"regexp"
	"sort"
	"strings"

	"github.com/vietwatch/disaster-crawler/internal/domain"
)

// Hazard is one taxonomy match with its computed severity level.
type Hazard struct {
	Type  string `json:"type"`
	Level int    `json:"level"` // 0-5
}

// Result is the classifier verdict for one article text.
type Result struct {
	Accept       bool         `json:"accept"`
	DisasterType string       `json:"disaster_type"`
	RiskLevel    int          `json:"risk_level"`
	AllHazards   []Hazard     `json:"all_hazards,omitempty"`
	Stage        domain.Stage `json:"stage"`
	RedAlert     bool         `json:"red_alert"`
	Reason       string       `json:"reason"`

	// Impact and Location are populated only when Accept is true.
	Impact   Impact   `json:"impact,omitempty"`
	Location Location `json:"location,omitempty"`
}

// Classifier applies the compiled rule tables. It is a pure function of the
// input text: read-only after New, safe for concurrent use without locks.
type Classifier struct {
	absVetoes  []compiledVeto
	condVetoes []compiledVeto
	hazards    []compiledHazard

	intensity []*regexp.Regexp
	forecast  []*regexp.Regexp
	aftermath []*regexp.Regexp
	redAlert  []*regexp.Regexp

	casualtyThreshold int
}

// New compiles a rule set into a Classifier. Rules compile once here; Classify
// runs in O(|text| × |rules|).
func New(rs *RuleSet) (*Classifier, error) {
	abs, err := compileVetoes(rs.AbsoluteVetoes)
	if err != nil {
		return nil, err
	}
	cond, err := compileVetoes(rs.ConditionalVetoes)
	if err != nil {
		return nil, err
	}
	hazards, err := compileHazards(rs.Hazards)
	if err != nil {
		return nil, err
	}
	intensity, err := compileTerms(rs.IntensityTerms, "intensity")
	if err != nil {
		return nil, err
	}
	forecast, err := compileTerms(rs.ForecastTerms, "forecast")
	if err != nil {
		return nil, err
	}
	aftermath, err := compileTerms(rs.AftermathTerms, "aftermath")
	if err != nil {
		return nil, err
	}
	redAlert, err := compileTerms(rs.RedAlertTerms, "red alert")
	if err != nil {
		return nil, err
	}

	return &Classifier{
		absVetoes:         abs,
		condVetoes:        cond,
		hazards:           hazards,
		intensity:         intensity,
		forecast:          forecast,
		aftermath:         aftermath,
		redAlert:          redAlert,
		casualtyThreshold: rs.CasualtyRedAlertThreshold,
	}, nil
}

// Classify runs the decision pipeline over "title + ' ' + summary".
// First matching rule wins: absolute veto, conditional veto, hazard scan.
func (c *Classifier) Classify(title, summary string) Result {
	original := strings.TrimSpace(title + " " + summary)
	text := strings.ToLower(original)

	impact := ExtractImpact(original)
	casualties := impact.Deaths + impact.Missing
	hazards := c.scanHazards(text, impact)

	// Vetoed texts still report their hazard matches so review tooling can
	// surface near-misses.
	if reason, ok := matchVeto(c.absVetoes, text); ok {
		return Result{DisasterType: "unknown", Stage: domain.StageIncident, Reason: reason, AllHazards: hazards}
	}

	// Conditional vetoes exclude only when no hazard keyword rescues the text.
	if reason, ok := matchVeto(c.condVetoes, text); ok && len(hazards) == 0 {
		return Result{DisasterType: "unknown", Stage: domain.StageIncident, Reason: reason}
	}

	if len(hazards) == 0 {
		return Result{DisasterType: "unknown", Stage: domain.StageIncident, Reason: "no_hazard"}
	}

	primary := hazards[0]
	stage := c.detectStage(text)
	red := c.isRedAlert(hazards, casualties, text)

	return Result{
		Accept:       true,
		DisasterType: primary.Type,
		RiskLevel:    primary.Level,
		AllHazards:   hazards,
		Stage:        stage,
		RedAlert:     red,
		Reason:       "hazard:" + primary.Type,
		Impact:       impact,
		Location:     ExtractLocation(original),
	}
}

func matchVeto(vetoes []compiledVeto, text string) (string, bool) {
	for _, v := range vetoes {
		for _, re := range v.patterns {
			if re.MatchString(text) {
				return fmt.Sprintf("veto:%s:%s", v.reason, re.String()), true
			}
		}
	}
	return "", false
}

// scanHazards evaluates every taxonomy and returns the matches sorted by
// level descending, ties broken by declared priority (earthquake > tsunami >
// storm > flood > landslide > wildfire > others).
func (c *Classifier) scanHazards(text string, impact Impact) []Hazard {
	hasIntensity := anyMatch(c.intensity, text)
	hasCasualties := impact.Deaths+impact.Missing+impact.Injured > 0

	var out []Hazard
	priorities := make(map[string]int, len(c.hazards))
	for _, h := range c.hazards {
		if !anyMatch(h.keywords, text) {
			continue
		}
		level := h.baseLevel
		if anyMatch(h.severeTerms, text) {
			level++
		}
		for _, sc := range h.scales {
			level = max(level, scaleLevel(sc, text))
		}
		if hasCasualties {
			level = max(level, 3)
		}
		if hasIntensity {
			level++
		}
		level = min(level, 5)
		out = append(out, Hazard{Type: h.typ, Level: level})
		priorities[h.typ] = h.priority
	}

	sort.SliceStable(out, func(i, j int) bool {
		if out[i].Level != out[j].Level {
			return out[i].Level > out[j].Level
		}
		return priorities[out[i].Type] < priorities[out[j].Type]
	})
	return out
}

// scaleLevel extracts the numeric cue and maps it through the thresholds.
// Multiple occurrences keep the highest mapped level (e.g. "mạnh cấp 12,
// giật cấp 14").
func scaleLevel(sc compiledScale, text string) int {
	level := 0
	for _, m := range sc.re.FindAllStringSubmatch(text, -1) {
		v, ok := parseNumber(m[1])
		if !ok {
			continue
		}
		for _, th := range sc.thresholds {
			if v >= th.Min {
				level = max(level, th.Level)
				break
			}
		}
	}
	return level
}

func (c *Classifier) detectStage(text string) domain.Stage {
	if anyMatch(c.forecast, text) {
		return domain.StageForecast
	}
	if anyMatch(c.aftermath, text) {
		return domain.StageAftermath
	}
	return domain.StageIncident
}

func (c *Classifier) isRedAlert(hazards []Hazard, casualties int, text string) bool {
	for _, h := range hazards {
		if h.Level >= 4 {
			return true
		}
	}
	if casualties >= c.casualtyThreshold {
		return true
	}
	return anyMatch(c.redAlert, text)
}

func anyMatch(res []*regexp.Regexp, text string) bool {
	for _, re := range res {
		if re.MatchString(text) {
			return true
		}
	}
	return false
}
