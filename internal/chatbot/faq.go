package chatbot

import (
	"strings"

	"github.com/Skufu/cardiorisk/internal/model"
)

var glossary = map[string]string{
	model.FeatureSTDepression: "ST depression (oldpeak) measures how far the ST segment of the ECG drops during exercise compared to rest. Normal values are 0-1 mm; values above 2 mm may indicate heart disease.",
	model.FeatureChestPain:    "Chest pain type (cp): 0 typical angina, 1 atypical angina, 2 non-anginal pain, 3 asymptomatic.",
	model.FeatureRestingBP:    "Resting blood pressure (trestbps) is the systolic pressure at rest. The normal range is 90-140 mmHg; values above 140 indicate hypertension.",
	model.FeatureCholesterol:  "Serum cholesterol (chol) is total blood cholesterol. Normal is below 200 mg/dL, borderline 200-239 mg/dL, high 240 mg/dL and above.",
	model.FeatureMaxHeartRate: "Maximum heart rate (thalach) is the highest rate reached during exercise, usually 120-200 bpm. Lower values may indicate reduced exercise capacity.",
	model.FeatureExAngina:     "Exercise-induced angina (exang) is chest pain during physical activity, a key symptom of coronary artery disease.",
}

// glossaryOrder fixes lookup order when a question names several terms.
var glossaryOrder = []string{
	model.FeatureSTDepression, model.FeatureChestPain, model.FeatureRestingBP,
	model.FeatureCholesterol, model.FeatureMaxHeartRate, model.FeatureExAngina,
}

type topic struct {
	keywords []string
	answer   string
}

var topics = []topic{
	{
		keywords: []string{"symptom", "sign", "warning", "emergency"},
		answer: `**Heart disease warning signs**

Call emergency services immediately for chest pain or pressure, shortness of breath, pain spreading to the arms, neck or jaw, or cold sweats with nausea.

Other symptoms include fatigue, swelling in the legs or ankles, an irregular heartbeat and dizziness.`,
	},
	{
		keywords: []string{"diet", "food", "nutrition", "eat", "meal"},
		answer: `**Heart-healthy diet**

Include fruits and vegetables, whole grains, lean proteins such as fish and legumes, and healthy fats such as olive oil and nuts.

Limit saturated and trans fats, sodium (under 2,300 mg a day), added sugars and processed foods.`,
	},
	{
		keywords: []string{"exercise", "workout", "fitness", "activity", "sport"},
		answer: `**Exercise for heart health**

Aim for 150 minutes of moderate aerobic activity a week plus two days of strength training. Start slowly, warm up and cool down, and stop if you feel chest pain or severe breathlessness.`,
	},
	{
		keywords: []string{"blood pressure", "hypertension", "bp"},
		answer: `**Managing blood pressure**

Normal is below 120/80 mmHg; 130/80 and above is hypertension. Reduce sodium, stay active, limit alcohol, manage stress and take prescribed medication consistently.`,
	},
	{
		keywords: []string{"cholesterol", "lipid", "hdl", "ldl"},
		answer: `**Managing cholesterol**

Total cholesterol below 200 mg/dL is desirable. Eat more soluble fiber and omega-3 fats, cut saturated fat, exercise regularly and ask your doctor whether medication is appropriate.`,
	},
	{
		keywords: []string{"stress", "anxiety", "mental", "relax"},
		answer: `**Stress and heart health**

Chronic stress raises blood pressure. Regular exercise, enough sleep, breathing exercises and staying connected with others all help.`,
	},
}

const helpText = `I can help with heart health questions:

- Medical terms such as oldpeak, cp, trestbps, chol, thalach and exang
- Warning signs and emergency symptoms
- Diet, exercise, blood pressure, cholesterol and stress
- Personalized tips based on your last assessment

What would you like to know?`

func words(s string) map[string]bool {
	out := map[string]bool{}
	for _, w := range strings.FieldsFunc(s, func(r rune) bool {
		return !(r >= 'a' && r <= 'z' || r >= '0' && r <= '9')
	}) {
		out[w] = true
	}
	return out
}

func containsKeyword(q string, ws map[string]bool, kw string) bool {
	if strings.Contains(kw, " ") {
		return strings.Contains(q, kw)
	}
	if ws[kw] {
		return true
	}
	// Allow plurals and other suffixes for longer keywords.
	if len(kw) > 3 {
		return strings.Contains(q, kw)
	}
	return false
}

func lookupGlossary(ws map[string]bool) (string, bool) {
	for _, term := range glossaryOrder {
		if ws[term] {
			return glossary[term], true
		}
	}
	return "", false
}

func lookupTopic(q string, ws map[string]bool) (string, bool) {
	for _, t := range topics {
		for _, kw := range t.keywords {
			if containsKeyword(q, ws, kw) {
				return t.answer, true
			}
		}
	}
	return "", false
}

// Personalized returns advice derived from the last assessed input.
func Personalized(in *model.ClinicalInput) string {
	if in == nil {
		return "I can give personalized recommendations once you complete a risk assessment."
	}
	var recs []string
	switch {
	case in.Age > 65:
		recs = append(recs, "**Age:** over 65, consider more frequent health check-ups.")
	case in.Age > 45:
		recs = append(recs, "**Age:** middle age is a crucial time for heart health.")
	}
	if in.RestingBP > 140 {
		recs = append(recs, "**Blood pressure:** your elevated blood pressure needs attention.")
	}
	if in.Cholesterol > 240 {
		recs = append(recs, "**Cholesterol:** high cholesterol detected; focus on a heart-healthy diet.")
	}
	if in.ChestPain <= 1 {
		recs = append(recs, "**Chest pain:** anginal chest pain should be evaluated by a doctor promptly.")
	}
	if len(recs) == 0 {
		recs = append(recs, "**Good news:** your current values look healthy.")
	}
	return strings.Join(recs, "\n\n")
}
