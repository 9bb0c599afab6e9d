package dataload

import "github.com/okian/graftloss/pkg/logger"

// Option configures a Loader.
type Option func(*Loader)

// WithCovariates restricts the covariates read; empty means every other column.
func WithCovariates(names ...string) Option {
	return func(l *Loader) {
		l.covariates = append([]string(nil), names...)
	}
}

// WithSheet selects the XLSX sheet; the default is the first sheet.
func WithSheet(name string) Option {
	return func(l *Loader) {
		l.sheet = name
	}
}

// WithLogger sets the loader logger.
func WithLogger(log logger.Logger) Option {
	return func(l *Loader) {
		if log != nil {
			l.log = log
		}
	}
}
