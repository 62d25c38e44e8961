package audio

import (
	"context"
	"errors"
	"testing"
	"time"
)

func TestMockOutput_BasicPlayback(t *testing.T) {
	out := DefaultMockOutput()
	defer out.Close()

	if out.GetState() != StateStopped {
		t.Errorf("Initial state should be Stopped, got %v", out.GetState())
	}

	res := NewResource([]byte{1, 2, 3, 4}, "audio/mpeg")
	defer res.Release()

	if err := out.Play(context.Background(), res); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if out.IsPlaying() {
		t.Error("Play should have returned after the simulated clip ended")
	}

	played := out.Played()
	if len(played) != 1 || played[0] != res.ID() {
		t.Errorf("Played() = %v, want [%d]", played, res.ID())
	}
	if m := out.GetMetrics(); m.PlayCount != 1 {
		t.Errorf("PlayCount = %d, want 1", m.PlayCount)
	}
}

func TestMockOutput_StopInterrupts(t *testing.T) {
	out := DefaultMockOutput()
	out.SetDuration(10 * time.Second)
	defer out.Close()

	res := NewResource([]byte{1}, "audio/mpeg")
	defer res.Release()

	started := make(chan struct{})
	out.callbacks.OnPlay = func(*Resource) { close(started) }

	done := make(chan error, 1)
	go func() { done <- out.Play(context.Background(), res) }()
	<-started

	if !out.IsPlaying() {
		t.Error("output should report playing")
	}
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

	// Stop while idle is a no-op.
	if err := out.Stop(); err != nil {
		t.Errorf("second Stop failed: %v", err)
	}
}

func TestMockOutput_ContextCancel(t *testing.T) {
	out := DefaultMockOutput()
	out.SetDuration(10 * time.Second)

	res := NewResource([]byte{1}, "audio/mpeg")
	defer res.Release()

	ctx, cancel := context.WithTimeout(context.Background(), 20*time.Millisecond)
	defer cancel()

	start := time.Now()
	if err := out.Play(ctx, res); err != nil {
		t.Fatalf("Play failed: %v", err)
	}
	if time.Since(start) > time.Second {
		t.Error("Play ignored context cancellation")
	}
}

func TestMockOutput_FailuresAndPrime(t *testing.T) {
	out := DefaultMockOutput()
	res := NewResource([]byte{1}, "audio/mpeg")
	defer res.Release()

	boom := errors.New("boom")
	out.FailNext(boom)
	if err := out.Play(context.Background(), res); !errors.Is(err, boom) {
		t.Fatalf("expected injected failure, got %v", err)
	}
	if err := out.Play(context.Background(), res); err != nil {
		t.Fatalf("failure should only apply once, got %v", err)
	}

	out.SetNotAllowed(true)
	if err := out.Play(context.Background(), res); !errors.Is(err, ErrNotAllowed) {
		t.Fatalf("expected ErrNotAllowed, got %v", err)
	}
	if err := out.Prime(); err != nil {
		t.Fatalf("Prime failed: %v", err)
	}
	if err := out.Play(context.Background(), res); err != nil {
		t.Fatalf("Play after Prime failed: %v", err)
	}
}

func TestMockOutput_ReleasedResource(t *testing.T) {
	out := DefaultMockOutput()
	res := NewResource([]byte{1}, "audio/mpeg")
	res.Release()

	if err := out.Play(context.Background(), res); !errors.Is(err, ErrReleased) {
		t.Errorf("expected ErrReleased, got %v", err)
	}
}

func TestMockFactory(t *testing.T) {
	f := NewMockFactory(func(mo *MockOutput) { mo.SetDuration(time.Millisecond) })

	first, err := f.New()
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if _, err := f.New(); err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if f.Created() != 2 {
		t.Errorf("Created() = %d, want 2", f.Created())
	}
	if f.Last() == first {
		t.Error("Last() should return the newest output")
	}

	f.FailNext(errors.New("no device"))
	if _, err := f.New(); err == nil {
		t.Error("expected factory failure")
	}
	if f.Created() != 2 {
		t.Errorf("failed New should not count, got %d", f.Created())
	}
}
