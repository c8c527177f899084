package main

import (
	"bytes"
	"context"
	"encoding/csv"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/Skufu/cardiorisk/internal/model"
	"github.com/Skufu/cardiorisk/internal/override"
)

const rowsCSV = `patient_id,age,sex,cp,trestbps,chol,fbs,restecg,thalach,exang,oldpeak,slope,ca,thal
p1,55,1,2,180,240,0,0,150,0,1.0,1,0,3
p2,55,1,2,180,240,0,0,150,0,1.0,1,0,9
p3,62,0,0,130,210,1,1,95,1,2.5,2,2,7
`

type lowAssessor struct {
	engine *override.Engine
}

func (l lowAssessor) Assess(_ context.Context, in model.ClinicalInput) (*model.Assessment, error) {
	pred := model.PredictionResult{Tier: model.TierLow, Label: "low", Confidence: 0.8}
	flags := l.engine.Apply(in, pred)
	return &model.Assessment{Input: in, Prediction: pred, Flags: flags, FinalTier: override.FinalTier(pred.Tier, flags)}, nil
}

func writeRows(t *testing.T) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "rows.csv")
	require.NoError(t, os.WriteFile(path, []byte(rowsCSV), 0o644))
	return path
}

func TestRootCommand_HasSubcommands(t *testing.T) {
	names := make(map[string]bool)
	for _, c := range rootCmd.Commands() {
		names[c.Name()] = true
	}
	for _, name := range []string{"batch", "validate", "rules"} {
		assert.True(t, names[name], "expected subcommand %q not found", name)
	}
}

func TestBatchCommand_Flags(t *testing.T) {
	require.NotNil(t, batchCmd.Flags().Lookup("file"))
	require.NotNil(t, batchCmd.Flags().Lookup("out"))
	flag := batchCmd.Flags().Lookup("concurrency")
	require.NotNil(t, flag)
	assert.Equal(t, "0", flag.DefValue)
}

func TestRunBatch(t *testing.T) {
	var out bytes.Buffer
	summary, err := runBatch(context.Background(), lowAssessor{engine: override.MustDefault()}, writeRows(t), &out, 2)
	require.NoError(t, err)

	assert.Equal(t, 3, summary.Total)
	assert.Equal(t, 2, summary.Succeeded)
	assert.Equal(t, 1, summary.Failed)
	assert.Equal(t, 2, summary.Upgraded)

	records, err := csv.NewReader(&out).ReadAll()
	require.NoError(t, err)
	require.Len(t, records, 4)
	assert.Equal(t, "p1", records[1][1])
	assert.Equal(t, "p2", records[2][1])
	assert.Contains(t, strings.Join(records[2], ","), "thal")
}

func TestRunBatch_MissingFile(t *testing.T) {
	_, err := runBatch(context.Background(), lowAssessor{engine: override.MustDefault()}, filepath.Join(t.TempDir(), "nope.csv"), &bytes.Buffer{}, 1)
	assert.Error(t, err)
}

func TestValidateRows(t *testing.T) {
	var out bytes.Buffer
	valid, invalid, err := validateRows(writeRows(t), &out)
	require.NoError(t, err)
	assert.Equal(t, 2, valid)
	assert.Equal(t, 1, invalid)
	assert.Contains(t, out.String(), "row 2")
	assert.Contains(t, out.String(), "3 rows: 2 valid, 1 invalid")
}

func TestPrintRules(t *testing.T) {
	var out bytes.Buffer
	require.NoError(t, printRules(&out, override.MustDefault().Rules()))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 6)
	assert.Contains(t, lines[1], "bp-elevated")
	assert.Contains(t, lines[1], "trestbps > 160")
	assert.Contains(t, lines[1], "LOW")
}
