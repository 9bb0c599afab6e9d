// Package dataload reads cohort tables from CSV or XLSX into a survival dataset.
package dataload

import (
	"context"
	"encoding/csv"
	"fmt"
	"io"
	"math"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/montanaflynn/stats"
	"github.com/okian/graftloss/internal/domain/dataset"
	"github.com/okian/graftloss/pkg/logger"
	"github.com/xuri/excelize/v2"
)

// Report describes what loading changed on the way in.
type Report struct {
	Rows        int
	DroppedRows int                 // rows missing a usable time or status
	Imputed     map[string]int      // cells filled per source column
	Encoded     map[string][]string // categorical column -> indicator levels (reference level excluded)
}

// Loader converts tabular files into a dataset.
type Loader struct {
	timeCol    string
	statusCol  string
	covariates []string
	sheet      string
	log        logger.Logger
}

// New creates a Loader for the given duration and event columns.
func New(timeCol, statusCol string, opts ...Option) *Loader {
	l := &Loader{timeCol: timeCol, statusCol: statusCol, log: logger.Discard()}
	for _, opt := range opts {
		opt(l)
	}
	return l
}

// Load reads path, picking the reader by extension (.csv or .xlsx).
func (l *Loader) Load(ctx context.Context, path string) (*dataset.Dataset, Report, error) {
	start := time.Now()
	var (
		rows [][]string
		err  error
	)
	switch ext := strings.ToLower(filepath.Ext(path)); ext {
	case ".csv":
		var f *os.File
		f, err = os.Open(path) //nolint:gosec // operator-supplied path
		if err != nil {
			return nil, Report{}, fmt.Errorf("open csv: %w", err)
		}
		defer func() { _ = f.Close() }()
		rows, err = readCSV(f)
	case ".xlsx":
		rows, err = l.readXLSX(path)
	default:
		return nil, Report{}, fmt.Errorf("%w: %q", ErrUnsupportedFormat, ext)
	}
	if err != nil {
		return nil, Report{}, err
	}
	ds, rep, err := l.FromRows(rows)
	if err != nil {
		return nil, rep, err
	}
	l.log.Info(ctx, "loaded cohort table",
		logger.String("path", path),
		logger.Int("rows", rep.Rows),
		logger.Int("dropped_rows", rep.DroppedRows),
		logger.Int("covariates", len(ds.Covariates)),
		logger.Int("events", ds.EventCount()),
		logger.Duration("elapsed", time.Since(start)))
	return ds, rep, nil
}

// ReadCSV parses CSV content from r.
func (l *Loader) ReadCSV(r io.Reader) (*dataset.Dataset, Report, error) {
	rows, err := readCSV(r)
	if err != nil {
		return nil, Report{}, err
	}
	return l.FromRows(rows)
}

func readCSV(r io.Reader) ([][]string, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	rows, err := cr.ReadAll()
	if err != nil {
		return nil, fmt.Errorf("read csv: %w", err)
	}
	return rows, nil
}

func (l *Loader) readXLSX(path string) ([][]string, error) {
	f, err := excelize.OpenFile(path)
	if err != nil {
		return nil, fmt.Errorf("open xlsx: %w", err)
	}
	defer func() { _ = f.Close() }()
	sheet := l.sheet
	if sheet == "" {
		sheets := f.GetSheetList()
		if len(sheets) == 0 {
			return nil, ErrEmptyTable
		}
		sheet = sheets[0]
	}
	rows, err := f.GetRows(sheet)
	if err != nil {
		return nil, fmt.Errorf("read sheet %q: %w", sheet, err)
	}
	return rows, nil
}

// FromRows builds the dataset from a header row followed by data rows.
// Rows without a finite time or a present status are dropped. Numeric
// covariates get median imputation for missing or non-finite cells;
// non-numeric ones are one-hot encoded with the first sorted level as reference.
func (l *Loader) FromRows(rows [][]string) (*dataset.Dataset, Report, error) {
	rep := Report{Imputed: map[string]int{}, Encoded: map[string][]string{}}
	if len(rows) < 2 {
		return nil, rep, ErrEmptyTable
	}
	header := make([]string, len(rows[0]))
	pos := make(map[string]int, len(header))
	for i, h := range rows[0] {
		header[i] = strings.TrimSpace(h)
		pos[header[i]] = i
	}
	ti, ok := pos[l.timeCol]
	if !ok {
		return nil, rep, fmt.Errorf("%w: time column %q", dataset.ErrColumnNotFound, l.timeCol)
	}
	si, ok := pos[l.statusCol]
	if !ok {
		return nil, rep, fmt.Errorf("%w: status column %q", dataset.ErrColumnNotFound, l.statusCol)
	}

	names := l.covariates
	if len(names) == 0 {
		for _, h := range header {
			if h != l.timeCol && h != l.statusCol && h != "" {
				names = append(names, h)
			}
		}
	}
	for _, n := range names {
		if _, ok := pos[n]; !ok {
			return nil, rep, fmt.Errorf("%w: covariate %q", dataset.ErrColumnNotFound, n)
		}
	}

	var (
		durations []float64
		events    []int
		kept      [][]string
	)
	for r, row := range rows[1:] {
		t, ok := parseFinite(cell(row, ti))
		s := cell(row, si)
		if !ok || isMissing(s) {
			rep.DroppedRows++
			continue
		}
		ev, err := parseStatus(s)
		if err != nil {
			return nil, rep, fmt.Errorf("%w: row %d %s=%q: %v", ErrInvalidCell, r+2, l.statusCol, s, err)
		}
		durations = append(durations, t)
		events = append(events, ev)
		kept = append(kept, row)
	}
	if len(kept) == 0 {
		return nil, rep, ErrEmptyTable
	}
	rep.Rows = len(kept)

	var cols []dataset.Column
	for _, n := range names {
		raw := make([]string, len(kept))
		for i, row := range kept {
			raw[i] = cell(row, pos[n])
		}
		encoded, err := encodeColumn(n, raw, &rep)
		if err != nil {
			return nil, rep, err
		}
		cols = append(cols, encoded...)
	}

	ds, err := dataset.New(durations, events, cols)
	if err != nil {
		return nil, rep, err
	}
	return ds, rep, nil
}

func cell(row []string, i int) string {
	if i >= len(row) {
		return ""
	}
	return strings.TrimSpace(row[i])
}

// parseFinite parses s, rejecting missing markers, NaN and ±Inf.
func parseFinite(s string) (float64, bool) {
	if isMissing(s) {
		return 0, false
	}
	v, err := strconv.ParseFloat(s, 64)
	if err != nil || math.IsNaN(v) || math.IsInf(v, 0) {
		return 0, false
	}
	return v, true
}

func parseStatus(s string) (int, error) {
	v, err := strconv.ParseFloat(s, 64)
	if err != nil {
		return 0, err
	}
	switch v {
	case 0:
		return 0, nil
	case 1:
		return 1, nil
	default:
		return 0, fmt.Errorf("event indicator must be 0 or 1")
	}
}

func isMissing(s string) bool {
	switch strings.ToLower(s) {
	case "", "na", "nan", "null":
		return true
	}
	return false
}

// encodeColumn returns one numeric column, or one indicator per non-reference level.
func encodeColumn(name string, raw []string, rep *Report) ([]dataset.Column, error) {
	values := make([]float64, len(raw))
	gap := make([]bool, len(raw))
	var present []float64
	numeric := true
	for i, s := range raw {
		if isMissing(s) {
			gap[i] = true
			continue
		}
		v, err := strconv.ParseFloat(s, 64)
		if err != nil {
			numeric = false
			break
		}
		if math.IsInf(v, 0) || math.IsNaN(v) {
			gap[i] = true
			continue
		}
		values[i] = v
		present = append(present, v)
	}

	if numeric {
		if len(present) == 0 {
			return nil, fmt.Errorf("%w: covariate %q has no values", ErrInvalidCell, name)
		}
		if len(present) < len(raw) {
			med, err := stats.Median(present)
			if err != nil {
				return nil, fmt.Errorf("impute %q: %w", name, err)
			}
			for i := range raw {
				if gap[i] {
					values[i] = med
					rep.Imputed[name]++
				}
			}
		}
		return []dataset.Column{{Name: name, Values: values}}, nil
	}

	levelSet := map[string]bool{}
	for _, s := range raw {
		if !isMissing(s) {
			levelSet[s] = true
		}
	}
	levels := make([]string, 0, len(levelSet))
	for lv := range levelSet {
		levels = append(levels, lv)
	}
	sort.Strings(levels)
	// missing cells fall into the reference level
	for _, s := range raw {
		if isMissing(s) {
			rep.Imputed[name]++
		}
	}
	out := make([]dataset.Column, 0, len(levels)-1)
	for _, lv := range levels[1:] {
		vals := make([]float64, len(raw))
		for i, s := range raw {
			if s == lv {
				vals[i] = 1
			}
		}
		out = append(out, dataset.Column{Name: name + "_" + lv, Values: vals})
	}
	rep.Encoded[name] = levels[1:]
	return out, nil
}
