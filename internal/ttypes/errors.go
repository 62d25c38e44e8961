package ttypes

import (
	"context"
	"errors"
	"fmt"
)

// Common errors shared across packages.
var (
	// ErrCanceled indicates an operation was canceled by the user or
	// superseded by a newer one. It is never shown to the user.
	ErrCanceled = errors.New("operation canceled")

	// ErrStale indicates a result arrived for an operation that is no
	// longer current.
	ErrStale = errors.New("stale result discarded")

	// ErrNoSpeech indicates the transcription was empty or spurious.
	ErrNoSpeech = errors.New("no speech detected")

	// ErrNeedsResume refuses recording and speech after the client was
	// backgrounded, until an explicit resume.
	ErrNeedsResume = errors.New("session needs resume")
)

// ErrorKind classifies errors by how they are handled and surfaced.
type ErrorKind string

const (
	// KindPermission is a denied microphone; user-visible, not retried.
	KindPermission ErrorKind = "PERMISSION"

	// KindAcquisitionRace is a stale microphone grant; silent.
	KindAcquisitionRace ErrorKind = "ACQUISITION_RACE"

	// KindAcquisition is a device failure while acquiring a stream.
	KindAcquisition ErrorKind = "ACQUISITION"

	// KindEncoding covers encoder failures and relay decode failures.
	KindEncoding ErrorKind = "ENCODING"

	// KindNetwork covers transport failures and non-2xx responses.
	KindNetwork ErrorKind = "NETWORK"

	// KindPlayback covers output handle failures; non-fatal.
	KindPlayback ErrorKind = "PLAYBACK"

	// KindCanceled is cancellation; explicitly not an error for the user.
	KindCanceled ErrorKind = "CANCELED"

	// KindInput covers unusable input such as spurious transcripts.
	KindInput ErrorKind = "INPUT"

	// KindState is an operation refused by the lifecycle state.
	KindState ErrorKind = "STATE"
)

// Error carries a kind and the operation that failed alongside the cause.
type Error struct {
	Kind ErrorKind
	Op   string
	Err  error
}

// Error implements the error interface.
func (e *Error) Error() string {
	if e.Err != nil {
		return fmt.Sprintf("%s: %s: %v", e.Kind, e.Op, e.Err)
	}
	return fmt.Sprintf("%s: %s", e.Kind, e.Op)
}

// Unwrap returns the underlying error.
func (e *Error) Unwrap() error {
	return e.Err
}

// NewError creates a classified error.
func NewError(kind ErrorKind, op string, cause error) *Error {
	return &Error{Kind: kind, Op: op, Err: cause}
}

// KindOf returns the kind of err, classifying bare sentinel and context
// errors on the way.
func KindOf(err error) ErrorKind {
	if err == nil {
		return ""
	}
	if errors.Is(err, ErrCanceled) || errors.Is(err, context.Canceled) {
		return KindCanceled
	}
	if errors.Is(err, ErrStale) {
		return KindCanceled
	}
	var e *Error
	if errors.As(err, &e) {
		return e.Kind
	}
	if errors.Is(err, ErrNoSpeech) {
		return KindInput
	}
	if errors.Is(err, context.DeadlineExceeded) {
		return KindNetwork
	}
	return ""
}

// IsSilent reports whether err must never produce a user-facing message.
func IsSilent(err error) bool {
	switch KindOf(err) {
	case KindCanceled, KindAcquisitionRace:
		return true
	}
	return false
}

// User-facing status strings.
const (
	StatusPermission   = "Microphone access denied. Allow it in your system settings and press again."
	StatusTryAgain     = "Sorry, that didn't work. Please try again."
	StatusConnectivity = "Connection problem. Check your network and try again."
	StatusNoSpeech     = "No speech detected."
	StatusNeedsResume  = "Paused while in the background. Press r to resume."
	StatusDevice       = "No microphone available."
)

// Status collapses any error to a short human-readable status. Silent
// errors collapse to the empty string.
func Status(err error) string {
	if err == nil || IsSilent(err) {
		return ""
	}
	switch KindOf(err) {
	case KindPermission:
		return StatusPermission
	case KindAcquisition:
		return StatusDevice
	case KindNetwork:
		return StatusConnectivity
	case KindInput:
		return StatusNoSpeech
	case KindState:
		if errors.Is(err, ErrNeedsResume) {
			return StatusNeedsResume
		}
		return StatusTryAgain
	default:
		return StatusTryAgain
	}
}
