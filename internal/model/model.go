// Package model holds the domain types shared by the assessment pipeline.
package model

import (
	"strings"
	"time"
)

// Tier is a displayed risk classification.
type Tier string

const (
	TierLow    Tier = "LOW"
	TierMedium Tier = "MEDIUM"
	TierHigh   Tier = "HIGH"
)

var tierRank = map[Tier]int{
	TierLow:    1,
	TierMedium: 2,
	TierHigh:   3,
}

// Rank orders tiers; unknown tiers rank 0.
func (t Tier) Rank() int {
	return tierRank[t]
}

// Valid reports whether t is one of the known tiers.
func (t Tier) Valid() bool {
	return t.Rank() > 0
}

// MaxTier returns the higher of the given tiers.
func MaxTier(tiers ...Tier) Tier {
	out := Tier("")
	for _, t := range tiers {
		if t.Rank() > out.Rank() {
			out = t
		}
	}
	return out
}

// ParseTier maps a label as written by the model service or a rules file to a tier.
func ParseTier(label string) (Tier, bool) {
	switch strings.ToLower(strings.TrimSpace(label)) {
	case "low", "low risk", "none":
		return TierLow, true
	case "medium", "moderate", "possible", "borderline", "medium risk", "moderate risk":
		return TierMedium, true
	case "high", "very high", "high risk", "very high risk":
		return TierHigh, true
	default:
		return "", false
	}
}

// Feature names as used by the model service and upload headers.
const (
	FeatureAge          = "age"
	FeatureSex          = "sex"
	FeatureChestPain    = "cp"
	FeatureRestingBP    = "trestbps"
	FeatureCholesterol  = "chol"
	FeatureFastingBS    = "fbs"
	FeatureRestECG      = "restecg"
	FeatureMaxHeartRate = "thalach"
	FeatureExAngina     = "exang"
	FeatureSTDepression = "oldpeak"
	FeatureSlope        = "slope"
	FeatureVessels      = "ca"
	FeatureThal         = "thal"
)

// ClinicalInput is one patient's complete feature set.
type ClinicalInput struct {
	Age               int     `json:"age"`
	Sex               int     `json:"sex"`
	ChestPain         int     `json:"cp"`
	RestingBP         int     `json:"trestbps"`
	Cholesterol       int     `json:"chol"`
	FastingBloodSugar bool    `json:"fbs"`
	RestECG           int     `json:"restecg"`
	MaxHeartRate      int     `json:"thalach"`
	ExerciseAngina    bool    `json:"exang"`
	STDepression      float64 `json:"oldpeak"`
	Slope             int     `json:"slope"`
	MajorVessels      int     `json:"ca"`
	Thal              int     `json:"thal"`
}

// Feature returns the numeric model value of the named feature.
func (c ClinicalInput) Feature(name string) (float64, bool) {
	switch name {
	case FeatureAge:
		return float64(c.Age), true
	case FeatureSex:
		return float64(c.Sex), true
	case FeatureChestPain:
		return float64(c.ChestPain), true
	case FeatureRestingBP:
		return float64(c.RestingBP), true
	case FeatureCholesterol:
		return float64(c.Cholesterol), true
	case FeatureFastingBS:
		return boolToFloat(c.FastingBloodSugar), true
	case FeatureRestECG:
		return float64(c.RestECG), true
	case FeatureMaxHeartRate:
		return float64(c.MaxHeartRate), true
	case FeatureExAngina:
		return boolToFloat(c.ExerciseAngina), true
	case FeatureSTDepression:
		return c.STDepression, true
	case FeatureSlope:
		return float64(c.Slope), true
	case FeatureVessels:
		return float64(c.MajorVessels), true
	case FeatureThal:
		return float64(c.Thal), true
	default:
		return 0, false
	}
}

// Features returns all 13 features keyed by name.
func (c ClinicalInput) Features() map[string]float64 {
	out := make(map[string]float64, 13)
	for _, name := range []string{
		FeatureAge, FeatureSex, FeatureChestPain, FeatureRestingBP, FeatureCholesterol,
		FeatureFastingBS, FeatureRestECG, FeatureMaxHeartRate, FeatureExAngina,
		FeatureSTDepression, FeatureSlope, FeatureVessels, FeatureThal,
	} {
		v, _ := c.Feature(name)
		out[name] = v
	}
	return out
}

func boolToFloat(b bool) float64 {
	if b {
		return 1
	}
	return 0
}

// PredictionResult is the model service output for one input.
type PredictionResult struct {
	Tier              Tier               `json:"tier"`
	Label             string             `json:"label"`
	Confidence        float64            `json:"confidence"`
	FeatureImportance map[string]float64 `json:"featureImportance,omitempty"`
}

// OverrideFlag is a rule-triggered annotation carried next to the prediction.
type OverrideFlag struct {
	RuleID   string `json:"ruleId"`
	Reason   string `json:"reason"`
	Severity Tier   `json:"severity"`
}

// Assessment pairs a prediction with its override layer and the displayed outcome.
type Assessment struct {
	Input           ClinicalInput    `json:"input"`
	Prediction      PredictionResult `json:"prediction"`
	Flags           []OverrideFlag   `json:"flags"`
	FinalTier       Tier             `json:"finalTier"`
	RiskFactors     []string         `json:"riskFactors"`
	Recommendations []string         `json:"recommendations"`
	AssessedAt      time.Time        `json:"assessedAt"`
}

// Upgraded reports whether override flags raised the tier above the model's.
func (a Assessment) Upgraded() bool {
	return a.FinalTier.Rank() > a.Prediction.Tier.Rank()
}

// BatchRecord is the outcome of one uploaded row.
type BatchRecord struct {
	Row        int         `json:"row"`
	PatientID  string      `json:"patientId,omitempty"`
	Assessment *Assessment `json:"assessment,omitempty"`
	Err        error       `json:"-"`
	Error      string      `json:"error,omitempty"`
}

// OK reports whether the row produced an assessment.
func (r BatchRecord) OK() bool {
	return r.Err == nil && r.Assessment != nil
}

// HistoryEntry is one persisted past assessment.
type HistoryEntry struct {
	ID         string    `json:"id"`
	Summary    string    `json:"summary"`
	ModelTier  Tier      `json:"modelTier"`
	Confidence float64   `json:"confidence"`
	FinalTier  Tier      `json:"finalTier"`
	FlagCount  int       `json:"flagCount"`
	CreatedAt  time.Time `json:"createdAt"`
}
