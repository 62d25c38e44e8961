package audio

import (
	"context"
	"sync"
	"sync/atomic"
	"time"
)

// MockOutput implements Output for testing purposes.
// It simulates playback by sleeping for a fixed duration.
type MockOutput struct {
	state atomic.Int32 // PlayerState

	mu         sync.Mutex
	duration   time.Duration
	failures   []error
	notAllowed bool
	stopCh     chan struct{}
	played     []uint64
	callbacks  MockCallbacks

	// Metrics for testing
	playCount  atomic.Int64
	stopCount  atomic.Int64
	primeCount atomic.Int64
	closeCount atomic.Int64
}

// MockCallbacks provides hooks for testing.
type MockCallbacks struct {
	OnPlay func(res *Resource)
	OnStop func()
}

// DefaultMockOutput creates a mock output whose plays last 10ms.
func DefaultMockOutput() *MockOutput {
	mo := &MockOutput{duration: 10 * time.Millisecond}
	mo.state.Store(int32(StateStopped))
	return mo
}

// NewMockOutput creates a mock output with custom callbacks.
func NewMockOutput(callbacks MockCallbacks) *MockOutput {
	mo := DefaultMockOutput()
	mo.callbacks = callbacks
	return mo
}

// Play simulates playback of res.
func (mo *MockOutput) Play(ctx context.Context, res *Resource) error {
	mo.mu.Lock()
	if PlayerState(mo.state.Load()) == StateClosed {
		mo.mu.Unlock()
		return ErrClosed
	}
	if mo.notAllowed {
		mo.mu.Unlock()
		return ErrNotAllowed
	}
	if len(mo.failures) > 0 {
		err := mo.failures[0]
		mo.failures = mo.failures[1:]
		mo.mu.Unlock()
		return err
	}
	if _, err := res.Bytes(); err != nil {
		mo.mu.Unlock()
		return err
	}

	stopCh := make(chan struct{})
	mo.stopCh = stopCh
	mo.played = append(mo.played, res.ID())
	duration := mo.duration
	onPlay := mo.callbacks.OnPlay
	mo.state.Store(int32(StatePlaying))
	mo.playCount.Add(1)
	mo.mu.Unlock()

	if onPlay != nil {
		onPlay(res)
	}

	timer := time.NewTimer(duration)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-stopCh:
	case <-ctx.Done():
	}

	mo.mu.Lock()
	if mo.stopCh == stopCh {
		mo.stopCh = nil
		if PlayerState(mo.state.Load()) == StatePlaying {
			mo.state.Store(int32(StateStopped))
		}
	}
	mo.mu.Unlock()
	return nil
}

// Stop interrupts a simulated play.
func (mo *MockOutput) Stop() error {
	mo.mu.Lock()
	defer mo.mu.Unlock()

	mo.stopCount.Add(1)
	if mo.stopCh != nil {
		close(mo.stopCh)
		mo.stopCh = nil
	}
	if PlayerState(mo.state.Load()) == StatePlaying {
		mo.state.Store(int32(StateStopped))
	}
	if mo.callbacks.OnStop != nil {
		mo.callbacks.OnStop()
	}
	return nil
}

// Prime clears the not-allowed condition.
func (mo *MockOutput) Prime() error {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	if PlayerState(mo.state.Load()) == StateClosed {
		return ErrClosed
	}
	mo.notAllowed = false
	mo.primeCount.Add(1)
	return nil
}

// Close retires the mock.
func (mo *MockOutput) Close() error {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	if mo.stopCh != nil {
		close(mo.stopCh)
		mo.stopCh = nil
	}
	mo.state.Store(int32(StateClosed))
	mo.closeCount.Add(1)
	return nil
}

// Test helper methods

// GetState returns the current state for testing.
func (mo *MockOutput) GetState() PlayerState {
	return PlayerState(mo.state.Load())
}

// IsPlaying reports whether a simulated play is in progress.
func (mo *MockOutput) IsPlaying() bool {
	return mo.GetState() == StatePlaying
}

// SetDuration sets how long each simulated play lasts.
func (mo *MockOutput) SetDuration(d time.Duration) {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	mo.duration = d
}

// FailNext makes the next Play calls return errs, in order.
func (mo *MockOutput) FailNext(errs ...error) {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	mo.failures = append(mo.failures, errs...)
}

// SetNotAllowed makes Play return ErrNotAllowed until Prime.
func (mo *MockOutput) SetNotAllowed(v bool) {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	mo.notAllowed = v
}

// Played returns the resource ids played so far.
func (mo *MockOutput) Played() []uint64 {
	mo.mu.Lock()
	defer mo.mu.Unlock()
	return append([]uint64(nil), mo.played...)
}

// GetMetrics returns playback metrics for testing.
func (mo *MockOutput) GetMetrics() MockOutputMetrics {
	return MockOutputMetrics{
		PlayCount:  mo.playCount.Load(),
		StopCount:  mo.stopCount.Load(),
		PrimeCount: mo.primeCount.Load(),
		CloseCount: mo.closeCount.Load(),
	}
}

// MockOutputMetrics contains playback metrics for testing.
type MockOutputMetrics struct {
	PlayCount  int64
	StopCount  int64
	PrimeCount int64
	CloseCount int64
}

// MockFactory hands out MockOutputs and remembers them.
type MockFactory struct {
	mu        sync.Mutex
	outputs   []*MockOutput
	configure func(*MockOutput)
	failNext  error
}

// NewMockFactory creates a factory. configure, if set, runs on every
// new output.
func NewMockFactory(configure func(*MockOutput)) *MockFactory {
	return &MockFactory{configure: configure}
}

// New implements OutputFactory.
func (f *MockFactory) New() (Output, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.failNext != nil {
		err := f.failNext
		f.failNext = nil
		return nil, err
	}
	mo := DefaultMockOutput()
	if f.configure != nil {
		f.configure(mo)
	}
	f.outputs = append(f.outputs, mo)
	return mo, nil
}

// FailNext makes the next New call fail with err.
func (f *MockFactory) FailNext(err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.failNext = err
}

// Created returns the number of outputs created.
func (f *MockFactory) Created() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.outputs)
}

// Last returns the most recent output, or nil.
func (f *MockFactory) Last() *MockOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.outputs) == 0 {
		return nil
	}
	return f.outputs[len(f.outputs)-1]
}

// Outputs returns every output created so far.
func (f *MockFactory) Outputs() []*MockOutput {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]*MockOutput(nil), f.outputs...)
}

var _ Output = (*MockOutput)(nil)
var _ Output = (*OtoOutput)(nil)
