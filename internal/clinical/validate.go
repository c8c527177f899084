// Package clinical validates and normalizes raw clinical form values.
package clinical

import (
	"encoding/json"
	"errors"
	"fmt"
	"math"
	"strconv"
	"strings"

	"github.com/Skufu/cardiorisk/internal/model"
)

// ErrUnknownField is returned for field names with no validation rule.
var ErrUnknownField = errors.New("clinical: unknown field")

// ValidationError is a field-level rejection.
type ValidationError struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("%s %s", e.Field, e.Reason)
}

type rule interface {
	normalize(token string) (float64, string)
}

type numericRule struct {
	min, max float64
	integer  bool
}

func (r numericRule) normalize(token string) (float64, string) {
	v, err := strconv.ParseFloat(token, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, "must be a number"
	}
	if r.integer && v != math.Trunc(v) {
		return 0, "must be a whole number"
	}
	if v < r.min {
		return 0, "must be >= " + formatBound(r.min)
	}
	if v > r.max {
		return 0, "must be <= " + formatBound(r.max)
	}
	return v, ""
}

type categoricalRule struct {
	codes  []float64
	labels map[string]float64
}

func (r categoricalRule) normalize(token string) (float64, string) {
	if code, ok := r.labels[strings.ToLower(token)]; ok {
		return code, ""
	}
	if v, err := strconv.ParseFloat(token, 64); err == nil {
		for _, c := range r.codes {
			if v == c {
				return c, ""
			}
		}
	}
	allowed := make([]string, len(r.codes))
	for i, c := range r.codes {
		allowed[i] = formatBound(c)
	}
	return 0, "must be one of " + strings.Join(allowed, ", ")
}

type booleanRule struct{}

func (booleanRule) normalize(token string) (float64, string) {
	switch strings.ToLower(token) {
	case "1", "true", "yes", "y", "t":
		return 1, ""
	case "0", "false", "no", "n", "f":
		return 0, ""
	}
	return 0, "must be yes/no"
}

var rules = map[string]rule{
	model.FeatureAge:          numericRule{min: 1, max: 120, integer: true},
	model.FeatureSex:          categoricalRule{codes: []float64{0, 1}, labels: map[string]float64{"female": 0, "f": 0, "male": 1, "m": 1}},
	model.FeatureChestPain:    categoricalRule{codes: []float64{0, 1, 2, 3}, labels: labelMap(chestPainLabels, chestPainAliases)},
	model.FeatureRestingBP:    numericRule{min: 60, max: 260, integer: true},
	model.FeatureCholesterol:  numericRule{min: 80, max: 700, integer: true},
	model.FeatureFastingBS:    booleanRule{},
	model.FeatureRestECG:      categoricalRule{codes: []float64{0, 1, 2}, labels: labelMap(restECGLabels, restECGAliases)},
	model.FeatureMaxHeartRate: numericRule{min: 40, max: 230, integer: true},
	model.FeatureExAngina:     booleanRule{},
	model.FeatureSTDepression: numericRule{min: 0, max: 10},
	model.FeatureSlope:        categoricalRule{codes: []float64{1, 2, 3}, labels: labelMap(slopeLabels, nil)},
	model.FeatureVessels:      numericRule{min: 0, max: 3, integer: true},
	model.FeatureThal:         categoricalRule{codes: []float64{3, 6, 7}, labels: labelMap(thalLabels, thalAliases)},
}

// Fields lists the 13 features in the documented upload column order.
var Fields = []string{
	model.FeatureAge, model.FeatureSex, model.FeatureChestPain, model.FeatureRestingBP,
	model.FeatureCholesterol, model.FeatureFastingBS, model.FeatureRestECG,
	model.FeatureMaxHeartRate, model.FeatureExAngina, model.FeatureSTDepression,
	model.FeatureSlope, model.FeatureVessels, model.FeatureThal,
}

// Known reports whether name has a validation rule.
func Known(name string) bool {
	_, ok := rules[name]
	return ok
}

// Validate normalizes raw for field. The result is the numeric model code.
func Validate(field string, raw any) (float64, error) {
	r, ok := rules[field]
	if !ok {
		return 0, fmt.Errorf("%w: %q", ErrUnknownField, field)
	}
	token, ok := toToken(raw)
	if !ok {
		return 0, &ValidationError{Field: field, Reason: "has an unsupported value type"}
	}
	if token == "" {
		return 0, &ValidationError{Field: field, Reason: "is required"}
	}
	v, reason := r.normalize(token)
	if reason != "" {
		return 0, &ValidationError{Field: field, Reason: reason}
	}
	return v, nil
}

func toToken(raw any) (string, bool) {
	switch v := raw.(type) {
	case nil:
		return "", true
	case string:
		return strings.TrimSpace(v), true
	case json.Number:
		return v.String(), true
	case bool:
		if v {
			return "1", true
		}
		return "0", true
	case int:
		return strconv.Itoa(v), true
	case int64:
		return strconv.FormatInt(v, 10), true
	case float64:
		return strconv.FormatFloat(v, 'f', -1, 64), true
	case float32:
		return strconv.FormatFloat(float64(v), 'f', -1, 32), true
	default:
		return "", false
	}
}

// Assemble builds a ClinicalInput from normalized values. Every feature must be present.
func Assemble(values map[string]float64) (model.ClinicalInput, error) {
	var missing []string
	for _, f := range Fields {
		if _, ok := values[f]; !ok {
			missing = append(missing, f)
		}
	}
	if len(missing) > 0 {
		errs := make([]error, len(missing))
		for i, f := range missing {
			errs[i] = &ValidationError{Field: f, Reason: "is required"}
		}
		return model.ClinicalInput{}, errors.Join(errs...)
	}

	return model.ClinicalInput{
		Age:               int(values[model.FeatureAge]),
		Sex:               int(values[model.FeatureSex]),
		ChestPain:         int(values[model.FeatureChestPain]),
		RestingBP:         int(values[model.FeatureRestingBP]),
		Cholesterol:       int(values[model.FeatureCholesterol]),
		FastingBloodSugar: values[model.FeatureFastingBS] == 1,
		RestECG:           int(values[model.FeatureRestECG]),
		MaxHeartRate:      int(values[model.FeatureMaxHeartRate]),
		ExerciseAngina:    values[model.FeatureExAngina] == 1,
		STDepression:      values[model.FeatureSTDepression],
		Slope:             int(values[model.FeatureSlope]),
		MajorVessels:      int(values[model.FeatureVessels]),
		Thal:              int(values[model.FeatureThal]),
	}, nil
}

// Parse validates a full raw record (as read from an upload row or JSON body).
// All field errors are reported together.
func Parse(raw map[string]any) (model.ClinicalInput, error) {
	values := make(map[string]float64, len(Fields))
	var errs []error
	for _, f := range Fields {
		v, err := Validate(f, raw[f])
		if err != nil {
			errs = append(errs, err)
			continue
		}
		values[f] = v
	}
	if len(errs) > 0 {
		return model.ClinicalInput{}, errors.Join(errs...)
	}
	return Assemble(values)
}

// FieldErrors flattens an error returned by Parse or Assemble into field -> reason.
func FieldErrors(err error) map[string]string {
	out := map[string]string{}
	var collect func(error)
	collect = func(e error) {
		if e == nil {
			return
		}
		var ve *ValidationError
		if joined, ok := e.(interface{ Unwrap() []error }); ok {
			for _, inner := range joined.Unwrap() {
				collect(inner)
			}
			return
		}
		if errors.As(e, &ve) {
			out[ve.Field] = ve.Reason
		}
	}
	collect(err)
	return out
}

func formatBound(v float64) string {
	return strconv.FormatFloat(v, 'f', -1, 64)
}

func labelMap(labels map[float64]string, aliases map[string]float64) map[string]float64 {
	out := make(map[string]float64, len(labels)+len(aliases))
	for code, label := range labels {
		out[strings.ToLower(label)] = code
	}
	for alias, code := range aliases {
		out[alias] = code
	}
	return out
}
