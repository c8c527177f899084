// Package batch assesses uploaded tables of patients row by row.
package batch

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"path/filepath"
	"strings"

	"github.com/jszwec/csvutil"
	"github.com/rotisserie/eris"
	"github.com/xuri/excelize/v2"

	"github.com/Skufu/cardiorisk/internal/clinical"
	"github.com/Skufu/cardiorisk/internal/model"
)

// Row is one parsed data row. Exactly one of Input and Err is meaningful.
type Row struct {
	Index     int
	PatientID string
	Input     model.ClinicalInput
	Err       error
}

// RowError ties a failure to its 1-based data row.
type RowError struct {
	Row int
	Err error
}

func (e *RowError) Error() string {
	return fmt.Sprintf("row %d: %v", e.Row, e.Err)
}

func (e *RowError) Unwrap() error { return e.Err }

// HeaderError reports required columns absent from the header.
type HeaderError struct {
	Missing []string
}

func (e *HeaderError) Error() string {
	return "batch: missing columns: " + strings.Join(e.Missing, ", ")
}

// ErrEmpty is returned for uploads without a header row.
var ErrEmpty = errors.New("batch: file has no header row")

type record struct {
	PatientID string `csv:"patient_id"`
	Age       string `csv:"age"`
	Sex       string `csv:"sex"`
	ChestPain string `csv:"cp"`
	RestingBP string `csv:"trestbps"`
	Chol      string `csv:"chol"`
	FBS       string `csv:"fbs"`
	RestECG   string `csv:"restecg"`
	Thalach   string `csv:"thalach"`
	Exang     string `csv:"exang"`
	Oldpeak   string `csv:"oldpeak"`
	Slope     string `csv:"slope"`
	CA        string `csv:"ca"`
	Thal      string `csv:"thal"`
}

func (r record) values() map[string]any {
	return map[string]any{
		model.FeatureAge:          r.Age,
		model.FeatureSex:          r.Sex,
		model.FeatureChestPain:    r.ChestPain,
		model.FeatureRestingBP:    r.RestingBP,
		model.FeatureCholesterol:  r.Chol,
		model.FeatureFastingBS:    r.FBS,
		model.FeatureRestECG:      r.RestECG,
		model.FeatureMaxHeartRate: r.Thalach,
		model.FeatureExAngina:     r.Exang,
		model.FeatureSTDepression: r.Oldpeak,
		model.FeatureSlope:        r.Slope,
		model.FeatureVessels:      r.CA,
		model.FeatureThal:         r.Thal,
	}
}

func normalizeHeader(h string) string {
	h = strings.ToLower(strings.TrimSpace(strings.TrimPrefix(h, "\ufeff")))
	return strings.NewReplacer(" ", "_", "-", "_").Replace(h)
}

// ParseCSV reads a header row followed by data rows. Columns are matched by
// name ignoring case and surrounding space; unknown columns are ignored.
func ParseCSV(r io.Reader) ([]Row, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	return parse(cr)
}

// ParseFile picks the parser from the file name: .xlsx is a workbook, anything else CSV.
func ParseFile(name string, r io.Reader) ([]Row, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return ParseXLSX(r)
	}
	return ParseCSV(r)
}

// ParseXLSX reads the first sheet of a workbook the same way as ParseCSV.
func ParseXLSX(r io.Reader) ([]Row, error) {
	f, err := excelize.OpenReader(r)
	if err != nil {
		return nil, eris.Wrap(err, "batch: open workbook")
	}
	defer f.Close()

	sheets := f.GetSheetList()
	if len(sheets) == 0 {
		return nil, ErrEmpty
	}
	rows, err := f.GetRows(sheets[0])
	if err != nil {
		return nil, eris.Wrapf(err, "batch: read sheet %s", sheets[0])
	}
	return parse(&sliceReader{rows: rows})
}

// sliceReader feeds spreadsheet rows to the CSV decoder, skipping blank rows
// and padding rows whose trailing cells are empty.
type sliceReader struct {
	rows  [][]string
	pos   int
	width int
}

func (s *sliceReader) Read() ([]string, error) {
	for s.pos < len(s.rows) {
		row := s.rows[s.pos]
		s.pos++
		if blank(row) {
			continue
		}
		if s.width == 0 {
			s.width = len(row)
		}
		for len(row) < s.width {
			row = append(row, "")
		}
		return row, nil
	}
	return nil, io.EOF
}

func blank(row []string) bool {
	for _, c := range row {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}

func parse(r csvutil.Reader) ([]Row, error) {
	header, err := r.Read()
	if errors.Is(err, io.EOF) {
		return nil, ErrEmpty
	}
	if err != nil {
		return nil, eris.Wrap(err, "batch: read header")
	}
	for i, h := range header {
		header[i] = normalizeHeader(h)
	}
	if missing := missingColumns(header); len(missing) > 0 {
		return nil, &HeaderError{Missing: missing}
	}

	dec, err := csvutil.NewDecoder(r, header...)
	if err != nil {
		return nil, eris.Wrap(err, "batch: create decoder")
	}

	var rows []Row
	for idx := 1; ; idx++ {
		var rec record
		err := dec.Decode(&rec)
		if errors.Is(err, io.EOF) {
			break
		}
		row := Row{Index: idx, PatientID: strings.TrimSpace(rec.PatientID)}
		if row.PatientID == "" {
			row.PatientID = fmt.Sprint(idx)
		}
		if err != nil {
			var pe *csv.ParseError
			if !errors.Is(err, csvutil.ErrFieldCount) && !errors.As(err, &pe) {
				return nil, eris.Wrapf(err, "batch: read row %d", idx)
			}
			row.Err = &RowError{Row: idx, Err: err}
			rows = append(rows, row)
			continue
		}
		in, err := clinical.Parse(rec.values())
		if err != nil {
			row.Err = &RowError{Row: idx, Err: err}
		} else {
			row.Input = in
		}
		rows = append(rows, row)
	}
	return rows, nil
}

func missingColumns(header []string) []string {
	have := make(map[string]bool, len(header))
	for _, h := range header {
		have[h] = true
	}
	var missing []string
	for _, f := range clinical.Fields {
		if !have[f] {
			missing = append(missing, f)
		}
	}
	return missing
}
