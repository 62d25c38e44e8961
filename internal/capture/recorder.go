package capture

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/dgnsrekt/habla/internal/audio"
	"github.com/dgnsrekt/habla/internal/ttypes"
)

// Recorder turns one stream into one blob. There are two variants: a
// container encoder and the raw PCM WAV graph.
type Recorder interface {
	// Start begins consuming the stream.
	Start(s Stream) error
	// Stop finishes recording, waits for flushed data and assembles the
	// blob. It does not stop the stream.
	Stop(ctx context.Context) (*ttypes.Blob, error)
	// Abort discards everything recorded.
	Abort()
	IsWAV() bool
	MimeType() string
}

// EncoderFactory reports and creates container encoders.
type EncoderFactory interface {
	IsTypeSupported(mime string) bool
	NewRecorder(mime string) (Recorder, error)
}

// WAVRecorder collects float samples and writes a 16-bit mono WAV.
type WAVRecorder struct {
	drain time.Duration

	mu      sync.Mutex
	rate    int
	samples []int16
	stopCh  chan struct{}
	done    chan struct{}
	started bool
}

// NewWAVRecorder creates a recorder that keeps collecting for drain after
// Stop so trailing buffers are not lost.
func NewWAVRecorder(drain time.Duration) *WAVRecorder {
	return &WAVRecorder{drain: drain}
}

// Start implements Recorder.
func (r *WAVRecorder) Start(s Stream) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.started {
		return fmt.Errorf("wav recorder already started")
	}
	r.started = true
	r.rate = s.SampleRate()
	r.stopCh = make(chan struct{})
	r.done = make(chan struct{})
	go r.consume(s.Frames(), r.stopCh, r.done)
	return nil
}

// consume owns stop and done for its lifetime; halt may clear the fields
// before the loop observes the close.
func (r *WAVRecorder) consume(frames <-chan []float32, stop <-chan struct{}, done chan<- struct{}) {
	defer close(done)
	for {
		select {
		case <-stop:
			return
		case f, ok := <-frames:
			if !ok {
				return
			}
			r.mu.Lock()
			for _, v := range f {
				r.samples = append(r.samples, audio.FloatToPCM16(v))
			}
			r.mu.Unlock()
		}
	}
}

// Stop implements Recorder.
func (r *WAVRecorder) Stop(ctx context.Context) (*ttypes.Blob, error) {
	r.mu.Lock()
	if !r.started {
		r.mu.Unlock()
		return nil, fmt.Errorf("wav recorder not started")
	}
	done := r.done
	r.mu.Unlock()

	if r.drain > 0 {
		timer := time.NewTimer(r.drain)
		select {
		case <-timer.C:
		case <-done:
			timer.Stop()
		case <-ctx.Done():
			timer.Stop()
		}
	}
	r.halt()

	r.mu.Lock()
	samples := r.samples
	r.samples = nil
	rate := r.rate
	r.mu.Unlock()

	data := audio.EncodeWAV(samples, rate)
	if err := audio.ValidateWAVBlob(data, len(samples)); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrWAVSizeMismatch, err)
	}
	return &ttypes.Blob{Data: data, MimeType: ttypes.MimeWAV, Samples: len(samples)}, nil
}

// Abort implements Recorder.
func (r *WAVRecorder) Abort() {
	r.halt()
	r.mu.Lock()
	r.samples = nil
	r.mu.Unlock()
}

func (r *WAVRecorder) halt() {
	r.mu.Lock()
	stopCh, done := r.stopCh, r.done
	r.stopCh = nil
	r.mu.Unlock()
	if stopCh == nil {
		return
	}
	close(stopCh)
	<-done
}

// IsWAV implements Recorder.
func (r *WAVRecorder) IsWAV() bool { return true }

// MimeType implements Recorder.
func (r *WAVRecorder) MimeType() string { return ttypes.MimeWAV }
