package audio

import (
	"context"
	"errors"
)

// Output errors.
var (
	// ErrNotAllowed is returned when the output refuses to start without a
	// fresh user gesture priming it first.
	ErrNotAllowed = errors.New("playback not allowed until primed by a user gesture")

	// ErrClosed is returned when a closed output is used.
	ErrClosed = errors.New("audio output is closed")

	// ErrEmptyAudio is returned for zero-length resources.
	ErrEmptyAudio = errors.New("audio data is empty")

	// ErrUnsupportedFormat is returned when the resource cannot be decoded.
	ErrUnsupportedFormat = errors.New("unsupported audio format")
)

// Output is the single reusable audio output handle.
type Output interface {
	// Play plays res and blocks until it ends naturally, Stop is called,
	// or ctx is done. Interrupted playback returns nil.
	Play(ctx context.Context, res *Resource) error

	// Stop halts current playback. It is a no-op when idle.
	Stop() error

	// Prime makes the output eligible to play again after it was
	// suspended. It must be called from a user gesture.
	Prime() error

	// Close releases the handle. A closed output cannot be reused.
	Close() error
}

// OutputFactory creates a fresh output handle.
type OutputFactory func() (Output, error)

// PlayerState represents the current state of an output.
type PlayerState int32

const (
	StateStopped PlayerState = iota
	StatePlaying
	StateClosed
)

// String returns the state name.
func (s PlayerState) String() string {
	switch s {
	case StateStopped:
		return "stopped"
	case StatePlaying:
		return "playing"
	case StateClosed:
		return "closed"
	default:
		return "unknown"
	}
}
