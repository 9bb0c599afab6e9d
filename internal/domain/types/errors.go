package types

import "errors"

// ErrNotReady is returned by result readers before a run has produced the data.
var ErrNotReady = errors.New("run has not finished")
