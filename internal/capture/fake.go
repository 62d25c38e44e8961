package capture

import (
	"context"
	"sync"

	"github.com/dgnsrekt/habla/internal/ttypes"
)

// FakeMicrophone is an in-memory Microphone for tests.
type FakeMicrophone struct {
	mu       sync.Mutex
	err      error
	gate     chan struct{}
	streams  []*ChanStream
	acquires int
	rate     int
}

// NewFakeMicrophone creates a microphone that grants immediately.
func NewFakeMicrophone() *FakeMicrophone {
	return &FakeMicrophone{rate: 16000}
}

// Acquire implements Microphone.
func (f *FakeMicrophone) Acquire(ctx context.Context, c Constraints) (Stream, error) {
	f.mu.Lock()
	f.acquires++
	gate := f.gate
	err := f.err
	f.mu.Unlock()

	if gate != nil {
		select {
		case <-gate:
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}

	rate := c.SampleRate
	if rate <= 0 {
		rate = f.rate
	}
	s := NewChanStream(rate, 64, nil)
	f.mu.Lock()
	f.streams = append(f.streams, s)
	f.mu.Unlock()
	return s, nil
}

// Fail makes every Acquire return err until cleared with nil.
func (f *FakeMicrophone) Fail(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.err = err
}

// Hold makes Acquire block until the returned release func is called.
func (f *FakeMicrophone) Hold() (release func()) {
	gate := make(chan struct{})
	f.mu.Lock()
	f.gate = gate
	f.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			f.mu.Lock()
			if f.gate == gate {
				f.gate = nil
			}
			f.mu.Unlock()
			close(gate)
		})
	}
}

// Streams returns every stream handed out.
func (f *FakeMicrophone) Streams() []*ChanStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*ChanStream(nil), f.streams...)
}

// Last returns the newest stream, or nil.
func (f *FakeMicrophone) Last() *ChanStream {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.streams) == 0 {
		return nil
	}
	return f.streams[len(f.streams)-1]
}

// Acquires returns how many times Acquire was called.
func (f *FakeMicrophone) Acquires() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.acquires
}

// FakeEncoders is an EncoderFactory producing canned container blobs.
type FakeEncoders struct {
	mu        sync.Mutex
	supported map[string]bool
	failStop  int
	created   []string
}

// NewFakeEncoders supports the given mime types.
func NewFakeEncoders(supported ...string) *FakeEncoders {
	f := &FakeEncoders{supported: make(map[string]bool)}
	for _, m := range supported {
		f.supported[m] = true
	}
	return f
}

// IsTypeSupported implements EncoderFactory.
func (f *FakeEncoders) IsTypeSupported(mime string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.supported[mime]
}

// NewRecorder implements EncoderFactory.
func (f *FakeEncoders) NewRecorder(mime string) (Recorder, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if !f.supported[mime] {
		return nil, ErrUnsupportedType
	}
	f.created = append(f.created, mime)
	fail := f.failStop > 0
	if fail {
		f.failStop--
	}
	return &fakeRecorder{mime: mime, failStop: fail}, nil
}

// FailStops makes the next n recorders fail on Stop.
func (f *FakeEncoders) FailStops(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failStop = n
}

// Created returns the mime types of every recorder created.
func (f *FakeEncoders) Created() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.created...)
}

type fakeRecorder struct {
	mime     string
	failStop bool
	started  bool
	aborted  bool
}

func (r *fakeRecorder) Start(Stream) error {
	r.started = true
	return nil
}

func (r *fakeRecorder) Stop(context.Context) (*ttypes.Blob, error) {
	if r.failStop {
		return nil, ErrEncoderFailed
	}
	return &ttypes.Blob{Data: []byte("fake " + r.mime), MimeType: r.mime}, nil
}

func (r *fakeRecorder) Abort()           { r.aborted = true }
func (r *fakeRecorder) IsWAV() bool      { return false }
func (r *fakeRecorder) MimeType() string { return r.mime }
