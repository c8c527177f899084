// Package report renders an assessment as a shareable document.
package report

import (
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/gomarkdown/markdown"
	"github.com/gomarkdown/markdown/html"
	"github.com/gomarkdown/markdown/parser"

	"github.com/Skufu/cardiorisk/internal/clinical"
	"github.com/Skufu/cardiorisk/internal/model"
	"github.com/Skufu/cardiorisk/internal/override"
)

const title = "Heart Disease Risk Assessment Report"

const disclaimer = `This report is generated by an automated screening system for educational and screening purposes only. It is not a substitute for professional medical advice, diagnosis, or treatment. Always consult qualified healthcare professionals for medical decisions.

The accuracy of this assessment depends on the quality and completeness of the provided data. For medical emergencies, contact emergency services immediately.`

// topFeatures is how many feature importances the analysis section lists.
const topFeatures = 5

// Markdown renders the full report. The displayed tier is recomputed from the
// prediction and flags, so it is never below the model tier.
func Markdown(in *model.Assessment, generatedAt time.Time) string {
	a := *in
	a.FinalTier = override.FinalTier(a.Prediction.Tier, a.Flags)

	var b strings.Builder

	fmt.Fprintf(&b, "# %s\n\n", title)
	fmt.Fprintf(&b, "Report generated: %s\n\n", generatedAt.Format("January 2, 2006 at 3:04 PM MST"))

	b.WriteString("## Patient Information\n\n")
	b.WriteString("| Field | Value |\n|---|---|\n")
	for _, f := range clinical.Fields {
		v, _ := a.Input.Feature(f)
		fmt.Fprintf(&b, "| %s | %s |\n", clinical.Titles[f], clinical.Describe(f, v))
	}
	b.WriteString("\n")

	b.WriteString("## Assessment Results\n\n")
	fmt.Fprintf(&b, "**Risk level: %s**\n\n", a.FinalTier)
	label := a.Prediction.Label
	if label == "" {
		label = string(a.Prediction.Tier)
	}
	fmt.Fprintf(&b, "- Model prediction: %s (%s)\n", a.Prediction.Tier, label)
	fmt.Fprintf(&b, "- Model confidence: %.1f%%\n", a.Prediction.Confidence*100)
	if a.Upgraded() {
		fmt.Fprintf(&b, "- Raised from %s to %s by clinical rules\n", a.Prediction.Tier, a.FinalTier)
	}
	b.WriteString("\n")

	if len(a.Flags) > 0 {
		b.WriteString("### Clinical Rule Flags\n\n")
		for _, f := range a.Flags {
			fmt.Fprintf(&b, "- **%s** %s\n", f.Severity, f.Reason)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Detailed Analysis\n\n")
	if len(a.RiskFactors) == 0 {
		b.WriteString("No notable risk factors were found in the entered values.\n\n")
	} else {
		b.WriteString("Risk factors:\n\n")
		for _, rf := range a.RiskFactors {
			fmt.Fprintf(&b, "- %s\n", rf)
		}
		b.WriteString("\n")
	}
	if top := rankFeatures(a.Prediction.FeatureImportance, topFeatures); len(top) > 0 {
		b.WriteString("Key contributing factors:\n\n")
		for _, fi := range top {
			name := clinical.Titles[fi.name]
			if name == "" {
				name = fi.name
			}
			fmt.Fprintf(&b, "- %s: %.3f\n", name, fi.weight)
		}
		b.WriteString("\n")
	}

	b.WriteString("## Recommendations\n\n")
	for _, r := range a.Recommendations {
		fmt.Fprintf(&b, "- %s\n", r)
	}
	b.WriteString("\n")

	b.WriteString("## Important Medical Disclaimer\n\n")
	b.WriteString(disclaimer)
	b.WriteString("\n")
	return b.String()
}

// HTML renders the report as a complete HTML page.
func HTML(a *model.Assessment, generatedAt time.Time) []byte {
	return ToHTML([]byte(Markdown(a, generatedAt)))
}

// ToHTML converts markdown into a standalone HTML page. Raw HTML in the
// markdown is dropped.
func ToHTML(md []byte) []byte {
	p := parser.NewWithExtensions(parser.CommonExtensions | parser.AutoHeadingIDs)
	doc := p.Parse(md)
	renderer := html.NewRenderer(html.RendererOptions{
		Title: title,
		Flags: html.CommonFlags | html.CompletePage | html.SkipHTML | html.Safelink,
	})
	return markdown.Render(doc, renderer)
}

type featureWeight struct {
	name   string
	weight float64
}

func rankFeatures(importance map[string]float64, n int) []featureWeight {
	out := make([]featureWeight, 0, len(importance))
	for name, w := range importance {
		out = append(out, featureWeight{name: name, weight: w})
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].weight != out[j].weight {
			return out[i].weight > out[j].weight
		}
		return out[i].name < out[j].name
	})
	if len(out) > n {
		out = out[:n]
	}
	return out
}
