package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

// sharedTestContext returns the process audio context, or skips when the
// machine has no audio device.
func sharedTestContext(t *testing.T) *Context {
	t.Helper()
	if testing.Short() {
		t.Skip("Skipping audio device test in short mode")
	}
	ctx, err := SharedContext(DefaultContextOptions())
	if err != nil {
		t.Skipf("Skipping test: cannot create audio context (no audio device?): %v", err)
	}
	return ctx
}

func TestOtoOutput_PlayWAV(t *testing.T) {
	actx := sharedTestContext(t)
	out := NewOtoOutput(actx, nil)
	defer out.Close()

	// 50ms of silence.
	res := NewResource(EncodeWAV(make([]int16, 800), 16000), "audio/wav")
	defer res.Release()

	done := make(chan error, 1)
	go func() { done <- out.Play(context.Background(), res) }()

	select {
	case err := <-done:
		if err != nil {
			t.Fatalf("Play failed: %v", err)
		}
	case <-time.After(3 * time.Second):
		t.Fatal("Play did not return after the clip ended")
	}
	if out.State() != StateStopped {
		t.Errorf("State should be stopped after natural end, got %v", out.State())
	}
}

func TestOtoOutput_StopInterrupts(t *testing.T) {
	actx := sharedTestContext(t)
	out := NewOtoOutput(actx, nil)
	defer out.Close()

	res := NewResource(EncodeWAV(make([]int16, 16000*5), 16000), "audio/wav")
	defer res.Release()

	done := make(chan error, 1)
	go func() { done <- out.Play(context.Background(), res) }()
	time.Sleep(100 * time.Millisecond)

	if err := out.Stop(); err != nil {
		t.Fatalf("Stop failed: %v", err)
	}
	select {
	case err := <-done:
		if err != nil {
			t.Errorf("interrupted Play should return nil, got %v", err)
		}
	case <-time.After(time.Second):
		t.Fatal("Play did not return after Stop")
	}
}

func TestOtoOutput_SuspendedRefuses(t *testing.T) {
	actx := sharedTestContext(t)
	out := NewOtoOutput(actx, nil)
	defer out.Close()

	if err := actx.Suspend(); err != nil {
		t.Skipf("Skipping test: cannot suspend context: %v", err)
	}
	defer actx.Resume()

	res := NewResource(EncodeWAV(make([]int16, 160), 16000), "audio/wav")
	defer res.Release()

	if err := out.Play(context.Background(), res); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed while suspended, got %v", err)
	}
	if err := out.Prime(); err != nil {
		t.Fatalf("Prime failed: %v", err)
	}
	if actx.Suspended() {
		t.Error("context should be resumed after Prime")
	}
}

func TestOtoOutput_Closed(t *testing.T) {
	out := NewOtoOutput(&Context{}, nil)
	if err := out.Close(); err != nil {
		t.Fatalf("Close failed: %v", err)
	}
	res := NewResource([]byte{1, 2}, "audio/wav")
	defer res.Release()

	if err := out.Play(context.Background(), res); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed, got %v", err)
	}
	if err := out.Prime(); !errors.Is(err, ErrClosed) {
		t.Errorf("expected ErrClosed from Prime, got %v", err)
	}
}

func TestPlayerState_String(t *testing.T) {
	tests := map[PlayerState]string{
		StateStopped:    "stopped",
		StatePlaying:    "playing",
		StateClosed:     "closed",
		PlayerState(42): "unknown",
	}
	for state, want := range tests {
		if got := state.String(); got != want {
			t.Errorf("%d.String() = %q, want %q", state, got, want)
		}
	}
}
