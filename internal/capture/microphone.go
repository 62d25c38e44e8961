package capture

import (
	"context"
	"sync"
)

// Constraints are the requested stream properties. Echo cancellation,
// noise suppression and auto gain are hints the device may ignore.
type Constraints struct {
	SampleRate       int
	Channels         int
	EchoCancellation bool
	NoiseSuppression bool
	AutoGainControl  bool
}

// DefaultConstraints returns mono 16 kHz with all processing hints on.
func DefaultConstraints() Constraints {
	return Constraints{
		SampleRate:       16000,
		Channels:         1,
		EchoCancellation: true,
		NoiseSuppression: true,
		AutoGainControl:  true,
	}
}

// Stream is a live microphone stream of mono float samples.
type Stream interface {
	// Frames delivers sample buffers until the stream stops, then closes.
	Frames() <-chan []float32
	SampleRate() int
	// Stop stops every track of the stream. It is idempotent.
	Stop()
	Stopped() bool
}

// Microphone acquires streams. Acquire may block on a permission prompt
// or device start.
type Microphone interface {
	Acquire(ctx context.Context, c Constraints) (Stream, error)
}

// ChanStream is a Stream fed by Push. Frames are dropped when the reader
// falls behind.
type ChanStream struct {
	rate   int
	frames chan []float32

	mu      sync.Mutex
	stopped bool
	onStop  func()
}

// NewChanStream creates a stream buffering up to depth frames. onStop, if
// set, runs once after the stream stops.
func NewChanStream(rate, depth int, onStop func()) *ChanStream {
	return &ChanStream{
		rate:   rate,
		frames: make(chan []float32, depth),
		onStop: onStop,
	}
}

// Push delivers one buffer. It never blocks and is a no-op once stopped.
func (s *ChanStream) Push(samples []float32) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.stopped {
		return false
	}
	select {
	case s.frames <- samples:
		return true
	default:
		return false
	}
}

// Frames implements Stream.
func (s *ChanStream) Frames() <-chan []float32 {
	return s.frames
}

// SampleRate implements Stream.
func (s *ChanStream) SampleRate() int {
	return s.rate
}

// Stop implements Stream.
func (s *ChanStream) Stop() {
	s.mu.Lock()
	if s.stopped {
		s.mu.Unlock()
		return
	}
	s.stopped = true
	close(s.frames)
	onStop := s.onStop
	s.mu.Unlock()

	if onStop != nil {
		onStop()
	}
}

// Stopped implements Stream.
func (s *ChanStream) Stopped() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.stopped
}
