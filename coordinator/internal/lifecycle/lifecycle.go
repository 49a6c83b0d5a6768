// Package lifecycle is JobLifecycle: it owns the error taxonomy the
// coordinator uses to decide a worker-reported failure's fate, and the
// savings-floor check a successful report must clear before SafeReplace
// ever runs. The coordinator does not use a worker's own retryable flag —
// the reported kind alone decides, via the classification here.
package lifecycle

import "github.com/avfarm/common/constants"

// retryableKinds classifies worker-reported failure kinds: retryable job
// failures go back to pending (attempt_count++); anything else is fatal.
var retryableKinds = map[string]bool{
	constants.ErrKindTransferError: true,
	constants.ErrKindEncoderCrash:  true,
	constants.ErrKindStalled:       true,
	constants.ErrKindWorkerOffline: true,
	constants.ErrKindStaleLease:    true,
	constants.ErrKindProbeTimeout:  true,
}

// IsRetryable reports whether a failure of the given kind should return the
// file to pending (subject to the attempt ceiling) rather than marking it
// permanently failed. A worker's own Retryable hint is not consulted — this
// is the coordinator's authoritative classification.
func IsRetryable(kind string) bool {
	return retryableKinds[kind]
}

// MeetsSavingsFloor reports whether a completed encode's measured savings
// clears the cluster's configured minimum — the gate SafeReplace enforces
// before any swap is attempted.
func MeetsSavingsFloor(savingsPercent, minSavingsPct float64) bool {
	return savingsPercent >= minSavingsPct
}
