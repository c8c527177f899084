package clinical

import (
	"fmt"
	"sort"

	"github.com/Skufu/cardiorisk/internal/model"
)

var (
	sexLabels = map[float64]string{0: "Female", 1: "Male"}

	chestPainLabels = map[float64]string{
		0: "Typical Angina",
		1: "Atypical Angina",
		2: "Non-anginal Pain",
		3: "Asymptomatic",
	}
	chestPainAliases = map[string]float64{"typical": 0, "atypical": 1, "non-anginal": 2}

	restECGLabels = map[float64]string{
		0: "Normal",
		1: "ST-T Wave Abnormality",
		2: "Left Ventricular Hypertrophy",
	}
	restECGAliases = map[string]float64{"st-t": 1, "lvh": 2}

	slopeLabels = map[float64]string{1: "Upsloping", 2: "Flat", 3: "Downsloping"}

	thalLabels = map[float64]string{3: "Normal", 6: "Fixed Defect", 7: "Reversible Defect"}
	// "reversable" is a common misspelling in Cleveland dataset exports.
	thalAliases = map[string]float64{"fixed": 6, "reversible": 7, "reversable defect": 7}

	yesNoLabels = map[float64]string{0: "No", 1: "Yes"}
)

var describeLabels = map[string]map[float64]string{
	model.FeatureSex:       sexLabels,
	model.FeatureChestPain: chestPainLabels,
	model.FeatureFastingBS: yesNoLabels,
	model.FeatureRestECG:   restECGLabels,
	model.FeatureExAngina:  yesNoLabels,
	model.FeatureSlope:     slopeLabels,
	model.FeatureThal:      thalLabels,
}

// Titles are the human-readable names of each feature.
var Titles = map[string]string{
	model.FeatureAge:          "Age",
	model.FeatureSex:          "Sex",
	model.FeatureChestPain:    "Chest Pain Type",
	model.FeatureRestingBP:    "Resting Blood Pressure",
	model.FeatureCholesterol:  "Serum Cholesterol",
	model.FeatureFastingBS:    "Fasting Blood Sugar > 120 mg/dL",
	model.FeatureRestECG:      "Resting ECG",
	model.FeatureMaxHeartRate: "Maximum Heart Rate",
	model.FeatureExAngina:     "Exercise-Induced Angina",
	model.FeatureSTDepression: "ST Depression",
	model.FeatureSlope:        "ST Segment Slope",
	model.FeatureVessels:      "Major Vessels Colored",
	model.FeatureThal:         "Thalassemia",
}

var units = map[string]string{
	model.FeatureAge:          "years",
	model.FeatureRestingBP:    "mmHg",
	model.FeatureCholesterol:  "mg/dL",
	model.FeatureMaxHeartRate: "bpm",
	model.FeatureSTDepression: "mm",
}

// Describe renders a normalized value the way a clinician reads it.
func Describe(field string, v float64) string {
	if labels, ok := describeLabels[field]; ok {
		if label, ok := labels[v]; ok {
			return label
		}
		return fmt.Sprintf("Unknown (%g)", v)
	}
	if unit, ok := units[field]; ok {
		return fmt.Sprintf("%g %s", v, unit)
	}
	return fmt.Sprintf("%g", v)
}

// Option is one selectable value of a categorical field.
type Option struct {
	Code  float64 `json:"code"`
	Label string  `json:"label"`
}

// Options lists the selectable values of a categorical field in code order.
// Numeric fields return nil.
func Options(field string) []Option {
	labels, ok := describeLabels[field]
	if !ok {
		return nil
	}
	codes := make([]float64, 0, len(labels))
	for c := range labels {
		codes = append(codes, c)
	}
	sort.Float64s(codes)
	out := make([]Option, len(codes))
	for i, c := range codes {
		out[i] = Option{Code: c, Label: labels[c]}
	}
	return out
}
