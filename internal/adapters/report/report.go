// Package report writes run outputs: flat CSV tables, an XLSX workbook with the
// same sheets and a JSON run summary.
package report

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"

	"github.com/okian/graftloss/internal/domain/model"
	"github.com/okian/graftloss/internal/domain/types"
	"github.com/okian/graftloss/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// Output file names.
const (
	PerformanceFile = "performance.csv"
	ImportanceFile  = "importance.csv"
	ResultsFile     = "results.csv"
	WorkbookFile    = "report.xlsx"
	SummaryFile     = "summary.json"
)

const (
	dirPermission  = 0o750
	filePermission = 0o600
)

// Column headers of the flat tables.
var (
	performanceHeader = []string{ //nolint:gochecknoglobals // static header
		"model",
		"cindex_time_dependent_mean", "cindex_time_dependent_sd",
		"cindex_time_dependent_ci_low", "cindex_time_dependent_ci_high",
		"cindex_time_independent_mean", "cindex_time_independent_sd",
		"cindex_time_independent_ci_low", "cindex_time_independent_ci_high",
		"n_valid_splits", "n_failed_splits", "n_total_splits", "mean_fit_ms",
	}
	importanceHeader = []string{"rank", "feature", "aggregate_importance"} //nolint:gochecknoglobals // static header
	resultsHeader    = []string{                                           //nolint:gochecknoglobals // static header
		"model", "split", "cindex_time_dependent", "cindex_time_independent",
		"elapsed_ms", "n_train", "n_test", "failure_kind", "error",
	}
	// textColumns hold names and messages and are never converted to numbers.
	textColumns = map[string]bool{"model": true, "feature": true, "failure_kind": true, "error": true} //nolint:gochecknoglobals // static set
)

// Writer writes report files into a directory.
type Writer struct {
	dir      string
	workbook bool
	log      logger.Logger
}

// NewWriter creates a Writer targeting dir.
func NewWriter(dir string, opts ...Option) *Writer {
	w := &Writer{dir: dir, workbook: true, log: logger.Discard()}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// Write emits every output and returns the paths written.
func (w *Writer) Write(ctx context.Context, summary types.RunSummary, results []model.Result) ([]string, error) {
	if err := os.MkdirAll(w.dir, dirPermission); err != nil {
		return nil, fmt.Errorf("create output dir: %w", err)
	}
	tables := map[string][][]string{
		PerformanceFile: performanceTable(summary.Performance),
		ImportanceFile:  importanceTable(summary.Importance),
		ResultsFile:     resultsTable(results),
	}
	var written []string
	for _, name := range []string{PerformanceFile, ImportanceFile, ResultsFile} {
		p := filepath.Join(w.dir, name)
		if err := writeCSV(p, tables[name]); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	if w.workbook {
		p := filepath.Join(w.dir, WorkbookFile)
		if err := writeWorkbook(p, tables); err != nil {
			return written, err
		}
		written = append(written, p)
	}
	p := filepath.Join(w.dir, SummaryFile)
	if err := writeJSON(p, summary); err != nil {
		return written, err
	}
	written = append(written, p)

	w.log.Info(ctx, "report written",
		logger.String("dir", w.dir),
		logger.Int("files", len(written)),
		logger.Bool("partial", summary.Partial))
	return written, nil
}

func formatFloat(v float64) string {
	return strconv.FormatFloat(v, 'g', 6, 64)
}

// formatNullable renders undefined values as an empty cell.
func formatNullable(p *float64) string {
	if p == nil {
		return ""
	}
	return formatFloat(*p)
}

func performanceTable(rows []types.PerformanceRow) [][]string {
	out := [][]string{performanceHeader}
	for _, r := range rows {
		out = append(out, []string{
			r.Model,
			formatNullable(r.TDMean), formatNullable(r.TDSD),
			formatNullable(r.TDCILow), formatNullable(r.TDCIHigh),
			formatNullable(r.TIMean), formatNullable(r.TISD),
			formatNullable(r.TICILow), formatNullable(r.TICIHigh),
			strconv.Itoa(r.NValidSplits), strconv.Itoa(r.NFailed), strconv.Itoa(r.NTotalSplits),
			formatFloat(r.MeanFitMS),
		})
	}
	return out
}

func importanceTable(rows []types.ImportanceRow) [][]string {
	out := [][]string{importanceHeader}
	for _, r := range rows {
		out = append(out, []string{strconv.Itoa(r.Rank), r.Feature, formatFloat(r.Importance)})
	}
	return out
}

func resultsTable(results []model.Result) [][]string {
	out := [][]string{resultsHeader}
	for _, r := range results {
		out = append(out, []string{
			r.Unit.Model, strconv.Itoa(r.Unit.Split),
			formatNullable(model.NullableFloat(r.TimeDependent)),
			formatNullable(model.NullableFloat(r.TimeIndependent)),
			formatFloat(float64(r.Elapsed.Microseconds()) / 1000),
			strconv.Itoa(r.NTrain), strconv.Itoa(r.NTest),
			string(r.FailureKind), r.Err,
		})
	}
	return out
}

func writeCSV(path string, rows [][]string) (err error) {
	f, err := os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_TRUNC, filePermission) //nolint:gosec // output dir is operator-supplied
	if err != nil {
		return fmt.Errorf("create %s: %w", filepath.Base(path), err)
	}
	defer func() {
		if cerr := f.Close(); cerr != nil && err == nil {
			err = cerr
		}
	}()
	cw := csv.NewWriter(f)
	if err := cw.WriteAll(rows); err != nil {
		return fmt.Errorf("write %s: %w", filepath.Base(path), err)
	}
	return nil
}

// writeWorkbook stores each table as a sheet named after its file.
func writeWorkbook(path string, tables map[string][][]string) error {
	f := excelize.NewFile()
	defer func() { _ = f.Close() }()
	sheets := []struct{ name, file string }{
		{"performance", PerformanceFile},
		{"importance", ImportanceFile},
		{"results", ResultsFile},
	}
	for i, s := range sheets {
		if i == 0 {
			if err := f.SetSheetName("Sheet1", s.name); err != nil {
				return fmt.Errorf("name sheet: %w", err)
			}
		} else if _, err := f.NewSheet(s.name); err != nil {
			return fmt.Errorf("add sheet %s: %w", s.name, err)
		}
		table := tables[s.file]
		for r, row := range table {
			cells := make([]interface{}, len(row))
			for c, v := range row {
				if r == 0 || c >= len(table[0]) {
					cells[c] = v
					continue
				}
				cells[c] = typedCell(table[0][c], v)
			}
			axis, err := excelize.CoordinatesToCellName(1, r+1)
			if err != nil {
				return err
			}
			if err := f.SetSheetRow(s.name, axis, &cells); err != nil {
				return fmt.Errorf("write sheet %s: %w", s.name, err)
			}
		}
	}
	if err := f.SaveAs(path); err != nil {
		return fmt.Errorf("save workbook: %w", err)
	}
	return nil
}

// typedCell stores finite values of numeric columns as numbers. Text columns
// and values a workbook cannot hold as numbers (NaN, ±Inf) stay strings.
func typedCell(column, v string) interface{} {
	if v == "" || textColumns[column] {
		return v
	}
	n, err := strconv.ParseFloat(v, 64)
	if err != nil || math.IsNaN(n) || math.IsInf(n, 0) {
		return v
	}
	return n
}

func writeJSON(path string, v interface{}) error {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return fmt.Errorf("encode summary: %w", err)
	}
	if err := os.WriteFile(path, b, filePermission); err != nil {
		return fmt.Errorf("write summary: %w", err)
	}
	return nil
}
