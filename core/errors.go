package core

import "github.com/cockroachdb/errors"

// Fatal error kinds. Programmer and configuration errors are never produced
// by device data; the device-reported ones mean the run's results are unusable.
var (
	ErrInvalidAlignment    = errors.New("invalid alignment")
	ErrBitRange            = errors.New("bit range out of bounds")
	ErrUnsupportedTopology = errors.New("unsupported topology")
	ErrAllocationFailure   = errors.New("allocation failure")
	ErrInvalidLayout       = errors.New("invalid layout")
	ErrInvalidSizes        = errors.New("invalid problem sizes")
	ErrCapacityExceeded    = errors.New("capacity exceeded")
	ErrSignatureMismatch   = errors.New("signature mismatch")
	ErrAbortedExecution    = errors.New("aborted execution")
	ErrMissingConfig       = errors.New("missing configuration data")
)

// Informational kinds. Decoding continues and the numeric results stay usable.
var (
	ErrOverflowDetected  = errors.New("overflow detected")
	ErrNoResultsReturned = errors.New("no results returned")
	ErrWriteAfterEnd     = errors.New("write after end")
	ErrDebugFifoFull     = errors.New("debug fifo full")
)

var informational = []error{
	ErrOverflowDetected,
	ErrNoResultsReturned,
	ErrWriteAfterEnd,
	ErrDebugFifoFull,
}

// IsFatal reports whether err should stop the caller from using the results
// of the current call. nil and informational kinds are not fatal.
func IsFatal(err error) bool {
	if err == nil {
		return false
	}
	for _, kind := range informational {
		if errors.Is(err, kind) {
			return false
		}
	}
	return true
}

// IsDeviceReported reports whether err came from the device (as opposed to a
// host-side programming or configuration mistake). Callers use it to decide
// between retrying a solve and abandoning the session.
func IsDeviceReported(err error) bool {
	return errors.Is(err, ErrSignatureMismatch) || errors.Is(err, ErrAbortedExecution)
}
