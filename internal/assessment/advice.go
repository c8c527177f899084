package assessment

import (
	"fmt"

	"github.com/Skufu/cardiorisk/internal/clinical"
	"github.com/Skufu/cardiorisk/internal/model"
)

// RiskFactors lists the notable findings in an input, most general first.
func RiskFactors(in model.ClinicalInput) []string {
	out := []string{}

	switch {
	case in.Age > 65:
		out = append(out, fmt.Sprintf("Advanced age (%d years)", in.Age))
	case in.Age > 45:
		out = append(out, fmt.Sprintf("Middle age (%d years)", in.Age))
	}
	if in.Sex == 1 {
		out = append(out, "Male sex")
	}
	if in.ChestPain <= 1 {
		out = append(out, "Chest pain: "+clinical.Describe(model.FeatureChestPain, float64(in.ChestPain)))
	}

	switch {
	case in.RestingBP > 160:
		out = append(out, fmt.Sprintf("Severe hypertension (%d mmHg)", in.RestingBP))
	case in.RestingBP > 140:
		out = append(out, fmt.Sprintf("Hypertension (%d mmHg)", in.RestingBP))
	}

	switch {
	case in.Cholesterol > 240:
		out = append(out, fmt.Sprintf("High cholesterol (%d mg/dL)", in.Cholesterol))
	case in.Cholesterol > 200:
		out = append(out, fmt.Sprintf("Borderline cholesterol (%d mg/dL)", in.Cholesterol))
	}

	if in.FastingBloodSugar {
		out = append(out, "Fasting blood sugar above 120 mg/dL")
	}

	switch {
	case in.STDepression > 2:
		out = append(out, fmt.Sprintf("Significant ST depression (%g mm)", in.STDepression))
	case in.STDepression > 1:
		out = append(out, fmt.Sprintf("Mild ST changes (%g mm)", in.STDepression))
	}

	if in.ExerciseAngina {
		out = append(out, "Exercise-induced angina")
	}
	return out
}

var tierAdvice = map[model.Tier][]string{
	model.TierLow: {
		"Continue maintaining a healthy lifestyle",
		"Keep regular check-ups with your doctor",
		"Monitor your health metrics regularly",
	},
	model.TierMedium: {
		"Consult a healthcare provider",
		"Consider diet and exercise changes",
		"Monitor heart health regularly",
		"Practice stress management",
	},
	model.TierHigh: {
		"Consult a healthcare provider immediately",
		"Make lifestyle changes under medical guidance",
		"Keep up regular medical monitoring",
		"Follow medical advice strictly",
	},
}

// Recommendations returns the advice for a tier followed by input-specific advice.
func Recommendations(tier model.Tier, in model.ClinicalInput) []string {
	out := append([]string{}, tierAdvice[tier]...)
	if in.RestingBP > 140 {
		out = append(out, "Discuss blood pressure management with your doctor")
	}
	if in.Cholesterol > 240 {
		out = append(out, "Ask about lipid-lowering options and a low saturated-fat diet")
	}
	if in.MaxHeartRate < 120 {
		out = append(out, "Reduced exercise capacity warrants a cardiac evaluation")
	}
	return out
}
