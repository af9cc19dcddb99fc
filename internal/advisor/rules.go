package advisor

import (
	"cropsense/internal/types"
)

// Override labels for rules that supersede the classifier. The severe
// deficiency label matches a model label; the withhold label is deliberately
// outside the model's vocabulary since "do nothing" is never a model output.
const (
	LabelHighNitrogen       = "urea"
	LabelWithholdFertilizer = "withhold_fertilizer"
)

// Rule is one deterministic override: when Matches returns true for a request,
// the rule's Label and Confidence replace the classifier's output. Matches
// must be a pure predicate over its inputs.
type Rule struct {
	Name       string
	Label      string
	Confidence float64
	Matches    func(reading types.SensorReading, weather types.WeatherObservation) bool
}

// RuleEngine evaluates an ordered rule list. Order is significant: the first
// matching rule wins and later rules are not evaluated. The rule set is data,
// not control flow, so tests can exercise it table-style and deployments can
// reorder or extend it without touching engine code.
type RuleEngine struct {
	rules []Rule
}

// NewRuleEngine creates an engine over the given ordered rules.
func NewRuleEngine(rules []Rule) *RuleEngine {
	return &RuleEngine{rules: rules}
}

// DefaultRules returns the production override rule set, in evaluation order:
//
//  1. leaf_severe_deficiency: leaf color 0 (yellow) indicates severe nitrogen
//     deficiency; force the high-nitrogen recommendation at full confidence.
//  2. leaf_possible_toxicity: leaf color 5 (dark green with spots) indicates
//     possible nutrient toxicity; withhold fertilizer entirely.
func DefaultRules() []Rule {
	return []Rule{
		{
			Name:       "leaf_severe_deficiency",
			Label:      LabelHighNitrogen,
			Confidence: 1.0,
			Matches: func(r types.SensorReading, _ types.WeatherObservation) bool {
				return r.LeafColor == types.LeafYellowSevereDeficiency
			},
		},
		{
			Name:       "leaf_possible_toxicity",
			Label:      LabelWithholdFertilizer,
			Confidence: 1.0,
			Matches: func(r types.SensorReading, _ types.WeatherObservation) bool {
				return r.LeafColor == types.LeafDarkGreenSpots
			},
		},
	}
}

// Apply evaluates the rules in order against the request. It returns the
// first matching rule, or nil when the classifier's output should stand.
func (e *RuleEngine) Apply(reading types.SensorReading, weather types.WeatherObservation) *Rule {
	for i := range e.rules {
		if e.rules[i].Matches(reading, weather) {
			return &e.rules[i]
		}
	}
	return nil
}
