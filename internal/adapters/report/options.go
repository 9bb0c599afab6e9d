package report

import "github.com/okian/graftloss/pkg/logger"

// Option configures a Writer.
type Option func(*Writer)

// WithWorkbook toggles the XLSX workbook next to the CSV tables. Default on.
func WithWorkbook(enabled bool) Option {
	return func(w *Writer) {
		w.workbook = enabled
	}
}

// WithLogger sets the writer logger.
func WithLogger(log logger.Logger) Option {
	return func(w *Writer) {
		if log != nil {
			w.log = log
		}
	}
}
