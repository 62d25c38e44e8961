package capture

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/dgnsrekt/habla/internal/ttypes"
)

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func newTestManager(t *testing.T, enc EncoderFactory) (*Manager, *FakeMicrophone, *fakeClock) {
	t.Helper()
	mic := NewFakeMicrophone()
	cfg := DefaultConfig()
	cfg.DrainWindow = 0
	m := NewManager(mic, enc, cfg, nil)
	clock := &fakeClock{now: time.Unix(1000, 0)}
	m.now = clock.Now
	if err := m.RequestPermission(context.Background()); err != nil {
		t.Fatalf("RequestPermission failed: %v", err)
	}
	return m, mic, clock
}

func TestManager_RequiresPermission(t *testing.T) {
	m := NewManager(NewFakeMicrophone(), nil, DefaultConfig(), nil)
	err := m.Begin(context.Background())
	if !errors.Is(err, ErrNotArmed) || ttypes.KindOf(err) != ttypes.KindPermission {
		t.Errorf("Begin before permission = %v", err)
	}
}

func TestManager_PermissionDeniedResetsArmed(t *testing.T) {
	m, mic, _ := newTestManager(t, nil)
	mic.Fail(ErrPermissionDenied)

	err := m.Begin(context.Background())
	if ttypes.KindOf(err) != ttypes.KindPermission {
		t.Errorf("kind = %v, want permission", ttypes.KindOf(err))
	}
	if m.PermissionGranted() {
		t.Error("permission denial should reset the armed flag")
	}
	if ttypes.Status(err) != ttypes.StatusPermission {
		t.Errorf("status = %q", ttypes.Status(err))
	}
}

func TestManager_PermissionRequestReleasesStream(t *testing.T) {
	_, mic, _ := newTestManager(t, nil)
	if s := mic.Last(); s == nil || !s.Stopped() {
		t.Error("permission probe stream should be stopped")
	}
}

func TestManager_TooShortDiscarded(t *testing.T) {
	m, mic, clock := newTestManager(t, NewFakeEncoders(ttypes.MimeMP4))

	if err := m.Begin(context.Background()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	clock.Advance(500 * time.Millisecond)

	blob, err := m.End(context.Background())
	if !errors.Is(err, ErrTooShort) {
		t.Fatalf("End = %v, want ErrTooShort", err)
	}
	if blob != nil {
		t.Error("short gesture must not produce a blob")
	}
	if !ttypes.IsSilent(err) {
		t.Error("too-short gestures are silent")
	}
	if !mic.Last().Stopped() {
		t.Error("stream must be stopped after a short gesture")
	}
}

func TestManager_RecordsContainer(t *testing.T) {
	enc := NewFakeEncoders(ttypes.MimeWebM, ttypes.MimeOgg)
	m, mic, clock := newTestManager(t, enc)

	if err := m.Begin(context.Background()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	if !m.Active() {
		t.Error("session should be active")
	}
	clock.Advance(time.Second)

	blob, err := m.End(context.Background())
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if blob.MimeType != ttypes.MimeWebM {
		t.Errorf("mime = %q, want first supported rung %q", blob.MimeType, ttypes.MimeWebM)
	}
	if blob.Duration != time.Second {
		t.Errorf("Duration = %v", blob.Duration)
	}
	if !mic.Last().Stopped() || m.Active() {
		t.Error("stream must be stopped and session cleared")
	}
}

func TestManager_FallsBackToWAVWhenUnsupported(t *testing.T) {
	m, mic, clock := newTestManager(t, NewFakeEncoders())

	if err := m.Begin(context.Background()); err != nil {
		t.Fatalf("Begin failed: %v", err)
	}
	mic.Last().Push(make([]float32, 100))
	clock.Advance(time.Second)

	blob, err := m.End(context.Background())
	if err != nil {
		t.Fatalf("End failed: %v", err)
	}
	if !blob.IsWAV() {
		t.Errorf("mime = %q, want WAV", blob.MimeType)
	}
	if len(blob.Data) != 44+2*blob.Samples {
		t.Errorf("WAV size %d does not match %d samples", len(blob.Data), blob.Samples)
	}
}

func TestManager_EncoderFailuresSwitchToWAV(t *testing.T) {
	enc := NewFakeEncoders(ttypes.MimeMP4)
	enc.FailStops(2)
	m, _, clock := newTestManager(t, enc)

	for i := 0; i < 2; i++ {
		m.Begin(context.Background())
		clock.Advance(time.Second)
		if _, err := m.End(context.Background()); ttypes.KindOf(err) != ttypes.KindEncoding {
			t.Fatalf("attempt %d: kind = %v, want encoding", i, ttypes.KindOf(err))
		}
	}
	if m.Mode() != ModeWAV {
		t.Fatal("two encoder failures should switch to WAV")
	}

	m.Begin(context.Background())
	clock.Advance(time.Second)
	blob, err := m.End(context.Background())
	if err != nil || !blob.IsWAV() {
		t.Fatalf("expected WAV recording, got %v, %v", blob, err)
	}

	for i := 0; i < 3; i++ {
		m.ReportSuccess(true)
	}
	if m.Mode() != ModeContainer {
		t.Error("three WAV successes should switch back")
	}
}

func TestManager_DecodeFailuresSwitchToWAV(t *testing.T) {
	m, _, _ := newTestManager(t, NewFakeEncoders(ttypes.MimeMP4))
	m.ReportDecodeFailure(false)
	m.ReportDecodeFailure(false)
	if m.Mode() != ModeWAV {
		t.Error("two decode failures should switch to WAV")
	}
	m.ResetGraph()
	if m.Mode() != ModeContainer {
		t.Error("ResetGraph should reset the counters")
	}
}

func TestManager_StaleAcquisitionStopped(t *testing.T) {
	m, mic, _ := newTestManager(t, nil)
	release := mic.Hold()

	errCh := make(chan error, 1)
	go func() { errCh <- m.Begin(context.Background()) }()

	// Wait until the acquisition is pending, then cancel it.
	deadline := time.Now().Add(time.Second)
	for mic.Acquires() < 2 {
		if time.Now().After(deadline) {
			t.Fatal("acquire never started")
		}
		time.Sleep(time.Millisecond)
	}
	m.Cancel()
	release()

	err := <-errCh
	if !errors.Is(err, ErrStaleAcquisition) {
		t.Fatalf("Begin = %v, want ErrStaleAcquisition", err)
	}
	if !ttypes.IsSilent(err) {
		t.Error("stale acquisition must be silent")
	}
	if !mic.Last().Stopped() {
		t.Error("late stream must be stopped")
	}
	if m.Active() {
		t.Error("no session should be live")
	}
}

func TestManager_SingleSession(t *testing.T) {
	m, _, _ := newTestManager(t, nil)
	if err := m.Begin(context.Background()); err != nil {
		t.Fatal(err)
	}
	if err := m.Begin(context.Background()); !errors.Is(err, ErrSessionActive) {
		t.Errorf("second Begin = %v, want ErrSessionActive", err)
	}
	if _, err := NewManager(NewFakeMicrophone(), nil, DefaultConfig(), nil).End(context.Background()); !errors.Is(err, ErrNoActiveSession) {
		t.Errorf("End without session = %v", err)
	}
}

func TestManager_CancelStopsStream(t *testing.T) {
	m, mic, _ := newTestManager(t, nil)
	m.Begin(context.Background())
	m.Cancel()
	if !mic.Last().Stopped() || m.Active() {
		t.Error("Cancel must stop the stream and clear the session")
	}
	m.Cancel()
}
