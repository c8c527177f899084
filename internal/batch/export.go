package batch

import (
	"encoding/csv"
	"io"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/montanaflynn/stats"
	"github.com/rotisserie/eris"

	"github.com/Skufu/cardiorisk/internal/model"
)

// Summary aggregates a batch run.
type Summary struct {
	Total            int                `json:"total"`
	Succeeded        int                `json:"succeeded"`
	Failed           int                `json:"failed"`
	Upgraded         int                `json:"upgraded"`
	Tiers            map[model.Tier]int `json:"tiers"`
	MeanConfidence   float64            `json:"meanConfidence"`
	MedianConfidence float64            `json:"medianConfidence"`
}

// Summarize counts outcomes and final tiers and averages model confidence.
func Summarize(records []model.BatchRecord) Summary {
	s := Summary{Total: len(records), Tiers: map[model.Tier]int{}}
	var conf stats.Float64Data
	for _, rec := range records {
		if !rec.OK() {
			s.Failed++
			continue
		}
		s.Succeeded++
		s.Tiers[rec.Assessment.FinalTier]++
		if rec.Assessment.Upgraded() {
			s.Upgraded++
		}
		conf = append(conf, rec.Assessment.Prediction.Confidence)
	}
	if len(conf) > 0 {
		s.MeanConfidence, _ = stats.Mean(conf)
		s.MedianConfidence, _ = stats.Median(conf)
	}
	return s
}

type resultRow struct {
	Row        int     `csv:"row"`
	PatientID  string  `csv:"patient_id"`
	Status     string  `csv:"status"`
	ModelTier  string  `csv:"model_tier"`
	Confidence float64 `csv:"confidence,omitempty"`
	FinalTier  string  `csv:"final_tier"`
	Flags      string  `csv:"flags"`
	Error      string  `csv:"error"`
}

// WriteCSV writes one line per record, in the order given.
func WriteCSV(w io.Writer, records []model.BatchRecord) error {
	cw := csv.NewWriter(w)
	enc := csvutil.NewEncoder(cw)
	if err := enc.EncodeHeader(resultRow{}); err != nil {
		return eris.Wrap(err, "batch: write header")
	}
	for _, rec := range records {
		out := resultRow{Row: rec.Row, PatientID: rec.PatientID, Status: "error", Error: rec.Error}
		if rec.OK() {
			a := rec.Assessment
			ids := make([]string, len(a.Flags))
			for i, f := range a.Flags {
				ids[i] = f.RuleID
			}
			out.Status = "ok"
			out.ModelTier = string(a.Prediction.Tier)
			out.Confidence = a.Prediction.Confidence
			out.FinalTier = string(a.FinalTier)
			out.Flags = strings.Join(ids, ";")
		}
		if err := enc.Encode(out); err != nil {
			return eris.Wrapf(err, "batch: write row %d", rec.Row)
		}
	}
	cw.Flush()
	return eris.Wrap(cw.Error(), "batch: flush csv")
}
