package concordance

import "errors"

// Tier failures. Either one moves the Estimator to the next tier.
var (
	ErrBackendUnsupported = errors.New("concordance backend does not support input")
	ErrBackendFailed      = errors.New("concordance backend failed")
)
