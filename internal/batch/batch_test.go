package batch

import (
	"bytes"
	"context"
	"encoding/csv"
	"errors"
	"strings"
	"sync/atomic"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"
	"go.uber.org/zap"

	"github.com/Skufu/cardiorisk/internal/clinical"
	"github.com/Skufu/cardiorisk/internal/model"
	"github.com/Skufu/cardiorisk/internal/predict"
)

const upload = ` Patient ID ,AGE,Sex,cp,trestbps,chol,fbs,restecg,thalach,exang,oldpeak,slope,ca,thal,notes
p-1,63,1,3,145,233,1,0,150,0,2.3,3,0,6,first
p-2,37,male,2,130,250,no,1,187,no,3.5,downsloping,0,3,
,41,0,1,130,204,0,0,172,0,1.4,1,0,3,no id
p-4,56,1,1,120,236,0,1,178,0,0.8,1,0,3,
`

type countingAssessor struct {
	calls atomic.Int32
	fail  map[int]error
}

func (c *countingAssessor) Assess(_ context.Context, in model.ClinicalInput) (*model.Assessment, error) {
	c.calls.Add(1)
	if err, ok := c.fail[in.Age]; ok {
		return nil, err
	}
	tier := model.TierLow
	if in.Age > 60 {
		tier = model.TierHigh
	}
	return &model.Assessment{
		Input:      in,
		Prediction: model.PredictionResult{Tier: tier, Confidence: float64(in.Age) / 100},
		FinalTier:  tier,
		Flags:      []model.OverrideFlag{},
	}, nil
}

func TestParseCSV_HeaderMapping(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(upload))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	for i, r := range rows {
		assert.Equal(t, i+1, r.Index)
		assert.NoError(t, r.Err)
	}
	assert.Equal(t, "p-1", rows[0].PatientID)
	assert.Equal(t, 63, rows[0].Input.Age)
	assert.True(t, rows[0].Input.FastingBloodSugar)
	assert.Equal(t, 6, rows[0].Input.Thal)
	assert.Equal(t, 3, rows[1].Input.Slope)
	assert.Equal(t, "3", rows[2].PatientID)
}

func TestParseCSV_MalformedRowIsolated(t *testing.T) {
	data := strings.Replace(upload, "p-2,37,", "p-2,370,", 1)
	rows, err := ParseCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 4)

	var re *RowError
	require.ErrorAs(t, rows[1].Err, &re)
	assert.Equal(t, 2, re.Row)
	assert.Contains(t, clinical.FieldErrors(re.Err)["age"], "<= 120")

	a := &countingAssessor{}
	records := NewRunner(a, WithLogger(zap.NewNop())).RunAll(context.Background(), rows)
	require.Len(t, records, 4)
	errCount := 0
	for i, rec := range records {
		assert.Equal(t, i+1, rec.Row)
		if !rec.OK() {
			errCount++
			assert.Equal(t, 2, rec.Row)
			assert.Contains(t, rec.Error, "row 2")
		}
	}
	assert.Equal(t, 1, errCount)
	assert.Equal(t, int32(3), a.calls.Load())
}

func TestParseCSV_RaggedRow(t *testing.T) {
	data := upload + "p-5,50,1\n"
	rows, err := ParseCSV(strings.NewReader(data))
	require.NoError(t, err)
	require.Len(t, rows, 5)
	var re *RowError
	assert.ErrorAs(t, rows[4].Err, &re)
	assert.Equal(t, 5, rows[4].Index)
}

func TestParseCSV_HeaderErrors(t *testing.T) {
	_, err := ParseCSV(strings.NewReader(""))
	assert.ErrorIs(t, err, ErrEmpty)

	_, err = ParseCSV(strings.NewReader("age,sex,cp\n50,1,0\n"))
	var he *HeaderError
	require.ErrorAs(t, err, &he)
	assert.Contains(t, he.Missing, "thal")
	assert.Len(t, he.Missing, 10)
}

func TestParseXLSX(t *testing.T) {
	f := excelize.NewFile()
	defer f.Close()
	header := []any{"Age", "Sex", "CP", "Trestbps", "Chol", "FBS", "RestECG", "Thalach", "Exang", "Oldpeak", "Slope", "CA", "Thal"}
	require.NoError(t, f.SetSheetRow("Sheet1", "A1", &header))
	require.NoError(t, f.SetSheetRow("Sheet1", "A2", &[]any{63, 1, 3, 145, 233, 1, 0, 150, 0, 2.3, 3, 0, 6}))
	require.NoError(t, f.SetSheetRow("Sheet1", "A4", &[]any{45, "female", 2, 120, 200, "no", 0, 170, "no", 0, 1, 0, 3}))
	buf, err := f.WriteToBuffer()
	require.NoError(t, err)

	rows, err := ParseXLSX(bytes.NewReader(buf.Bytes()))
	require.NoError(t, err)
	require.Len(t, rows, 2)
	require.NoError(t, rows[0].Err)
	require.NoError(t, rows[1].Err)
	assert.Equal(t, 63, rows[0].Input.Age)
	assert.InDelta(t, 2.3, rows[0].Input.STDepression, 1e-9)
	assert.Equal(t, 0, rows[1].Input.Sex)
	assert.Equal(t, "2", rows[1].PatientID)
}

func TestParseFile_ByExtension(t *testing.T) {
	rows, err := ParseFile("patients.CSV", strings.NewReader(upload))
	require.NoError(t, err)
	assert.Len(t, rows, 4)

	_, err = ParseFile("patients.xlsx", strings.NewReader(upload))
	assert.Error(t, err)
}

func TestRun_LazyAndRestartable(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(upload))
	require.NoError(t, err)

	a := &countingAssessor{}
	seq := NewRunner(a, WithLogger(zap.NewNop())).Run(context.Background(), rows)
	assert.Equal(t, int32(0), a.calls.Load())

	for rec := range seq {
		assert.Equal(t, 1, rec.Row)
		break
	}
	assert.Equal(t, int32(1), a.calls.Load())

	var got []int
	for rec := range seq {
		got = append(got, rec.Row)
	}
	assert.Equal(t, []int{1, 2, 3, 4}, got)
	assert.Equal(t, int32(5), a.calls.Load())
}

func TestRun_PredictFailureIsRowError(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(upload))
	require.NoError(t, err)

	a := &countingAssessor{fail: map[int]error{41: &predict.ServiceError{StatusCode: 503}}}
	var records []model.BatchRecord
	for rec := range NewRunner(a, WithLogger(zap.NewNop())).Run(context.Background(), rows) {
		records = append(records, rec)
	}
	require.Len(t, records, 4)
	var se *predict.ServiceError
	assert.True(t, errors.As(records[2].Err, &se))
	var re *RowError
	assert.ErrorAs(t, records[2].Err, &re)
	assert.True(t, records[3].OK())
}

func TestRunAll_CancelledContext(t *testing.T) {
	rows, err := ParseCSV(strings.NewReader(upload))
	require.NoError(t, err)
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	a := &countingAssessor{}
	records := NewRunner(a, WithConcurrency(2), WithLogger(zap.NewNop())).RunAll(ctx, rows)
	require.Len(t, records, 4)
	for _, rec := range records {
		assert.ErrorIs(t, rec.Err, context.Canceled)
	}
	assert.Equal(t, int32(0), a.calls.Load())
}

func TestSummarizeAndWriteCSV(t *testing.T) {
	records := []model.BatchRecord{
		{Row: 1, PatientID: "a", Assessment: &model.Assessment{
			Prediction: model.PredictionResult{Tier: model.TierLow, Confidence: 0.9},
			Flags:      []model.OverrideFlag{{RuleID: "bp-elevated", Severity: model.TierMedium}},
			FinalTier:  model.TierMedium,
		}},
		{Row: 2, PatientID: "b", Err: errors.New("row 2: age is required"), Error: "row 2: age is required"},
		{Row: 3, PatientID: "c", Assessment: &model.Assessment{
			Prediction: model.PredictionResult{Tier: model.TierHigh, Confidence: 0.5},
			FinalTier:  model.TierHigh,
		}},
	}

	s := Summarize(records)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 2, s.Succeeded)
	assert.Equal(t, 1, s.Failed)
	assert.Equal(t, 1, s.Upgraded)
	assert.Equal(t, 1, s.Tiers[model.TierMedium])
	assert.InDelta(t, 0.7, s.MeanConfidence, 1e-9)
	assert.InDelta(t, 0.7, s.MedianConfidence, 1e-9)

	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, records))
	lines, err := csv.NewReader(&buf).ReadAll()
	require.NoError(t, err)
	require.Len(t, lines, 4)
	assert.Equal(t, []string{"row", "patient_id", "status", "model_tier", "confidence", "final_tier", "flags", "error"}, lines[0])
	assert.Equal(t, []string{"1", "a", "ok", "LOW", "0.9", "MEDIUM", "bp-elevated", ""}, lines[1])
	assert.Equal(t, "error", lines[2][2])
	assert.Equal(t, "row 2: age is required", lines[2][7])
}

func TestWriteCSV_EmptyStillHasHeader(t *testing.T) {
	var buf bytes.Buffer
	require.NoError(t, WriteCSV(&buf, nil))
	assert.Equal(t, "row,patient_id,status,model_tier,confidence,final_tier,flags,error\n", buf.String())
}
