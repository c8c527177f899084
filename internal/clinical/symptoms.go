package clinical

import (
	"strings"

	"github.com/Skufu/cardiorisk/internal/model"
)

// Symptoms is what the patient symptom checker asks for before any clinical values are known.
type Symptoms struct {
	Age            int     `json:"age"`
	Sex            int     `json:"sex"`
	ChestPain      string  `json:"chestPain"` // none, mild, moderate, severe
	Breathlessness bool    `json:"breathlessness"`
	Fatigue        bool    `json:"fatigue"`
	STDepression   float64 `json:"oldpeak"`
}

// SymptomDefaults derives a full set of typical clinical values from reported symptoms.
// The result validates, so it can prefill the form; the patient may correct any of it.
func SymptomDefaults(s Symptoms) (map[string]float64, error) {
	if _, err := Validate(model.FeatureAge, s.Age); err != nil {
		return nil, err
	}
	if _, err := Validate(model.FeatureSex, s.Sex); err != nil {
		return nil, err
	}
	if _, err := Validate(model.FeatureSTDepression, s.STDepression); err != nil {
		return nil, err
	}

	severity := strings.ToLower(strings.TrimSpace(s.ChestPain))
	cp, ok := map[string]float64{"severe": 0, "moderate": 1, "mild": 2, "none": 3, "": 3}[severity]
	if !ok {
		return nil, &ValidationError{Field: model.FeatureChestPain, Reason: "must be one of none, mild, moderate, severe"}
	}

	age := s.Age
	out := map[string]float64{
		model.FeatureAge:          float64(age),
		model.FeatureSex:          float64(s.Sex),
		model.FeatureChestPain:    cp,
		model.FeatureFastingBS:    0,
		model.FeatureRestECG:      0,
		model.FeatureSTDepression: s.STDepression,
		model.FeatureSlope:        1,
		model.FeatureVessels:      0,
		model.FeatureThal:         3,
		model.FeatureExAngina:     0,
	}

	switch {
	case age < 30:
		out[model.FeatureRestingBP] = 112
	case age < 50:
		out[model.FeatureRestingBP] = 122
	case age < 70:
		out[model.FeatureRestingBP] = 132
	default:
		out[model.FeatureRestingBP] = 142
	}

	switch {
	case s.Sex == 1 && age < 40:
		out[model.FeatureCholesterol] = 185
	case s.Sex == 1:
		out[model.FeatureCholesterol] = 205
	case age < 50:
		out[model.FeatureCholesterol] = 195
	default:
		out[model.FeatureCholesterol] = 215
	}

	maxHR := float64(220 - age)
	if s.Fatigue {
		maxHR *= 0.85
	}
	hr := float64(int(maxHR * 0.85))
	if hr < 60 {
		hr = 60
	}
	out[model.FeatureMaxHeartRate] = hr

	if severity == "moderate" || severity == "severe" {
		out[model.FeatureSlope] = 2
	}
	if severity == "severe" {
		out[model.FeatureVessels] = 1
	}
	if s.Breathlessness {
		out[model.FeatureExAngina] = 1
	}
	return out, nil
}
