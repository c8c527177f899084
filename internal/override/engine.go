// Package override applies clinician-authored threshold rules on top of model predictions.
package override

import (
	"fmt"

	"github.com/Skufu/cardiorisk/internal/clinical"
	"github.com/Skufu/cardiorisk/internal/model"
)

// Op is a comparison between a feature value and a rule threshold.
type Op string

const (
	OpGT Op = ">"
	OpGE Op = ">="
	OpLT Op = "<"
	OpLE Op = "<="
	OpEQ Op = "=="
	OpNE Op = "!="
)

func (o Op) compare(v, threshold float64) (bool, bool) {
	switch o {
	case OpGT:
		return v > threshold, true
	case OpGE:
		return v >= threshold, true
	case OpLT:
		return v < threshold, true
	case OpLE:
		return v <= threshold, true
	case OpEQ:
		return v == threshold, true
	case OpNE:
		return v != threshold, true
	default:
		return false, false
	}
}

// Rule is one declarative heuristic: field op threshold => severity.
// ModelAtMost, when set, limits the rule to predictions at or below that tier.
type Rule struct {
	ID          string     `json:"id"`
	Field       string     `json:"field"`
	Op          Op         `json:"op"`
	Threshold   float64    `json:"threshold"`
	Severity    model.Tier `json:"severity"`
	Reason      string     `json:"reason"`
	ModelAtMost model.Tier `json:"modelAtMost,omitempty"`
}

// DefaultRules is the built-in clinical rule set.
var DefaultRules = []Rule{
	{ID: "bp-elevated", Field: model.FeatureRestingBP, Op: OpGT, Threshold: 160, Severity: model.TierMedium, ModelAtMost: model.TierLow,
		Reason: "Resting blood pressure is in the hypertensive range while the model reports low risk"},
	{ID: "vessels-multi", Field: model.FeatureVessels, Op: OpGE, Threshold: 2, Severity: model.TierHigh,
		Reason: "Two or more major vessels colored by fluoroscopy"},
	{ID: "st-depression", Field: model.FeatureSTDepression, Op: OpGT, Threshold: 2, Severity: model.TierMedium,
		Reason: "Exercise-induced ST depression above 2 mm"},
	{ID: "chol-high", Field: model.FeatureCholesterol, Op: OpGT, Threshold: 240, Severity: model.TierMedium, ModelAtMost: model.TierLow,
		Reason: "Serum cholesterol above 240 mg/dL while the model reports low risk"},
	{ID: "max-hr-low", Field: model.FeatureMaxHeartRate, Op: OpLT, Threshold: 100, Severity: model.TierMedium,
		Reason: "Maximum heart rate below 100 bpm suggests reduced exercise capacity"},
}

// Engine evaluates a fixed, validated rule list.
type Engine struct {
	rules []Rule
}

// New validates rules and returns an engine that evaluates them in order.
func New(rules []Rule) (*Engine, error) {
	seen := make(map[string]bool, len(rules))
	out := make([]Rule, len(rules))
	for i, r := range rules {
		if r.ID == "" {
			return nil, fmt.Errorf("override: rule %d has no id", i)
		}
		if seen[r.ID] {
			return nil, fmt.Errorf("override: duplicate rule id %q", r.ID)
		}
		seen[r.ID] = true
		if !clinical.Known(r.Field) {
			return nil, fmt.Errorf("override: rule %q: unknown field %q", r.ID, r.Field)
		}
		if _, ok := r.Op.compare(0, 0); !ok {
			return nil, fmt.Errorf("override: rule %q: unknown operator %q", r.ID, r.Op)
		}
		if !r.Severity.Valid() {
			return nil, fmt.Errorf("override: rule %q: invalid severity %q", r.ID, r.Severity)
		}
		if r.ModelAtMost != "" && !r.ModelAtMost.Valid() {
			return nil, fmt.Errorf("override: rule %q: invalid model_at_most %q", r.ID, r.ModelAtMost)
		}
		out[i] = r
	}
	return &Engine{rules: out}, nil
}

// MustDefault returns an engine over DefaultRules.
func MustDefault() *Engine {
	e, err := New(DefaultRules)
	if err != nil {
		panic(err)
	}
	return e
}

// Rules returns a copy of the engine's rules.
func (e *Engine) Rules() []Rule {
	out := make([]Rule, len(e.rules))
	copy(out, e.rules)
	return out
}

// Apply returns the flags triggered by in, in rule order. The prediction is read, never changed.
func (e *Engine) Apply(in model.ClinicalInput, pred model.PredictionResult) []model.OverrideFlag {
	flags := []model.OverrideFlag{}
	for _, r := range e.rules {
		if r.ModelAtMost != "" && pred.Tier.Rank() > r.ModelAtMost.Rank() {
			continue
		}
		v, ok := in.Feature(r.Field)
		if !ok {
			continue
		}
		if hit, _ := r.Op.compare(v, r.Threshold); !hit {
			continue
		}
		flags = append(flags, model.OverrideFlag{
			RuleID:   r.ID,
			Reason:   fmt.Sprintf("%s (%s = %g)", r.Reason, r.Field, v),
			Severity: r.Severity,
		})
	}
	return flags
}

// FinalTier is the displayed tier: the model tier raised by the most severe flag, never lowered.
func FinalTier(modelTier model.Tier, flags []model.OverrideFlag) model.Tier {
	out := modelTier
	for _, f := range flags {
		out = model.MaxTier(out, f.Severity)
	}
	return out
}
