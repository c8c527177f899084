package override

import (
	"os"

	"github.com/rotisserie/eris"
	"gopkg.in/yaml.v3"

	"github.com/Skufu/cardiorisk/internal/model"
)

type ruleFile struct {
	Rules []ruleSpec `yaml:"rules"`
}

type ruleSpec struct {
	ID          string  `yaml:"id"`
	Field       string  `yaml:"field"`
	Op          string  `yaml:"op"`
	Threshold   float64 `yaml:"threshold"`
	Severity    string  `yaml:"severity"`
	Reason      string  `yaml:"reason"`
	ModelAtMost string  `yaml:"model_at_most"`
}

// ParseRules decodes a YAML rule list and validates it.
func ParseRules(data []byte) (*Engine, error) {
	var f ruleFile
	if err := yaml.Unmarshal(data, &f); err != nil {
		return nil, eris.Wrap(err, "override: decode rules")
	}
	rules := make([]Rule, 0, len(f.Rules))
	for _, s := range f.Rules {
		r := Rule{
			ID:        s.ID,
			Field:     s.Field,
			Op:        Op(s.Op),
			Threshold: s.Threshold,
			Reason:    s.Reason,
		}
		sev, ok := model.ParseTier(s.Severity)
		if !ok {
			return nil, eris.Errorf("override: rule %q: invalid severity %q", s.ID, s.Severity)
		}
		r.Severity = sev
		if s.ModelAtMost != "" {
			at, ok := model.ParseTier(s.ModelAtMost)
			if !ok {
				return nil, eris.Errorf("override: rule %q: invalid model_at_most %q", s.ID, s.ModelAtMost)
			}
			r.ModelAtMost = at
		}
		rules = append(rules, r)
	}
	return New(rules)
}

// LoadRules reads a YAML rules file. An empty path yields the default rules.
func LoadRules(path string) (*Engine, error) {
	if path == "" {
		return New(DefaultRules)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, eris.Wrapf(err, "override: read %s", path)
	}
	return ParseRules(data)
}
