package capture

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/habla/internal/ttypes"
)

// Config holds capture tunables.
type Config struct {
	// MinHold is the shortest gesture that is recorded.
	MinHold time.Duration
	// DrainWindow is how long the WAV path keeps collecting after stop.
	DrainWindow time.Duration
	// Formats is the container ladder in preference order.
	Formats     []string
	Constraints Constraints

	FailuresToWAV      int
	SuccessesToPrimary int
}

// DefaultConfig returns the default capture configuration.
func DefaultConfig() Config {
	return Config{
		MinHold:            800 * time.Millisecond,
		DrainWindow:        300 * time.Millisecond,
		Formats:            []string{ttypes.MimeMP4, ttypes.MimeWebM, ttypes.MimeOgg},
		Constraints:        DefaultConstraints(),
		FailuresToWAV:      2,
		SuccessesToPrimary: 3,
	}
}

type session struct {
	token   uint64
	stream  Stream
	rec     Recorder
	started time.Time
}

// Manager runs at most one capture session at a time.
type Manager struct {
	mic      Microphone
	encoders EncoderFactory
	selector *ModeSelector
	logger   *log.Logger
	now      func() time.Time

	mu      sync.Mutex
	cfg     Config
	token   uint64
	session *session
	armed   bool
}

// NewManager creates a capture manager. encoders may be nil, in which
// case every session records WAV.
func NewManager(mic Microphone, encoders EncoderFactory, cfg Config, logger *log.Logger) *Manager {
	if logger == nil {
		logger = log.Default().WithPrefix("capture")
	}
	return &Manager{
		mic:      mic,
		encoders: encoders,
		selector: NewModeSelector(cfg.FailuresToWAV, cfg.SuccessesToPrimary),
		logger:   logger,
		now:      time.Now,
		cfg:      cfg,
	}
}

// SetConfig updates tunables for the next session.
func (m *Manager) SetConfig(cfg Config) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.cfg = cfg
	m.selector.SetThresholds(cfg.FailuresToWAV, cfg.SuccessesToPrimary)
}

// RequestPermission arms the microphone by acquiring and immediately
// releasing a stream.
func (m *Manager) RequestPermission(ctx context.Context) error {
	m.mu.Lock()
	constraints := m.cfg.Constraints
	m.mu.Unlock()

	stream, err := m.mic.Acquire(ctx, constraints)
	if err != nil {
		m.mu.Lock()
		m.armed = false
		m.mu.Unlock()
		return classifyAcquire("request permission", err)
	}
	stream.Stop()

	m.mu.Lock()
	m.armed = true
	m.mu.Unlock()
	m.logger.Debug("microphone armed")
	return nil
}

// PermissionGranted reports whether the microphone is armed.
func (m *Manager) PermissionGranted() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.armed
}

// Begin acquires the microphone and starts recording. A stream that
// resolves after a newer Begin or a Cancel is stopped and reported as a
// silent ErrStaleAcquisition.
func (m *Manager) Begin(ctx context.Context) error {
	m.mu.Lock()
	if !m.armed {
		m.mu.Unlock()
		return ttypes.NewError(ttypes.KindPermission, "begin", ErrNotArmed)
	}
	if m.session != nil {
		m.mu.Unlock()
		return ttypes.NewError(ttypes.KindState, "begin", ErrSessionActive)
	}
	m.token++
	token := m.token
	constraints := m.cfg.Constraints
	m.mu.Unlock()

	stream, err := m.mic.Acquire(ctx, constraints)

	m.mu.Lock()
	defer m.mu.Unlock()

	if err != nil {
		if errors.Is(err, ErrPermissionDenied) {
			m.armed = false
		}
		return classifyAcquire("begin", err)
	}
	if token != m.token || m.session != nil {
		stream.Stop()
		m.logger.Debug("discarding stale stream", "token", token, "current", m.token)
		return ttypes.NewError(ttypes.KindAcquisitionRace, "begin", ErrStaleAcquisition)
	}

	rec := m.newRecorderLocked()
	if err := rec.Start(stream); err != nil {
		stream.Stop()
		if !rec.IsWAV() {
			m.selector.RecordFailure(false)
		}
		return ttypes.NewError(ttypes.KindEncoding, "begin", err)
	}

	m.session = &session{token: token, stream: stream, rec: rec, started: m.now()}
	m.logger.Debug("recording", "mime", rec.MimeType(), "token", token)
	return nil
}

// newRecorderLocked walks the container ladder unless the selector is in
// WAV mode or nothing is supported.
func (m *Manager) newRecorderLocked() Recorder {
	if m.encoders != nil && m.selector.Mode() == ModeContainer {
		for _, mime := range m.cfg.Formats {
			if !m.encoders.IsTypeSupported(mime) {
				continue
			}
			rec, err := m.encoders.NewRecorder(mime)
			if err != nil {
				m.logger.Warn("encoder unavailable", "mime", mime, "err", err)
				continue
			}
			return rec
		}
	}
	return NewWAVRecorder(m.cfg.DrainWindow)
}

// End finishes the session. Gestures shorter than the minimum hold fail
// silently with ErrTooShort. The stream is stopped on every path.
func (m *Manager) End(ctx context.Context) (*ttypes.Blob, error) {
	m.mu.Lock()
	s := m.session
	m.session = nil
	minHold := m.cfg.MinHold
	m.mu.Unlock()

	if s == nil {
		return nil, ttypes.NewError(ttypes.KindState, "end", ErrNoActiveSession)
	}
	defer s.stream.Stop()

	elapsed := m.now().Sub(s.started)
	if elapsed < minHold {
		s.rec.Abort()
		m.logger.Debug("gesture too short", "elapsed", elapsed)
		return nil, ttypes.NewError(ttypes.KindCanceled, "end", ErrTooShort)
	}

	blob, err := s.rec.Stop(ctx)
	if err != nil {
		if ctx.Err() != nil {
			return nil, ttypes.NewError(ttypes.KindCanceled, "end", err)
		}
		if !s.rec.IsWAV() {
			m.selector.RecordFailure(false)
		}
		return nil, ttypes.NewError(ttypes.KindEncoding, "end", err)
	}
	blob.Duration = elapsed
	return blob, nil
}

// Cancel invalidates any pending acquisition and tears down the live
// session without producing a blob.
func (m *Manager) Cancel() {
	m.mu.Lock()
	m.token++
	s := m.session
	m.session = nil
	m.mu.Unlock()

	if s == nil {
		return
	}
	defer s.stream.Stop()
	s.rec.Abort()
	m.logger.Debug("capture canceled", "token", s.token)
}

// ResetGraph drops the live session, resets failure counters and forgets
// cached encoder capabilities.
func (m *Manager) ResetGraph() {
	m.Cancel()
	m.selector.Reset()
	if r, ok := m.encoders.(interface{ Reset() }); ok {
		r.Reset()
	}
}

// Active reports whether a session is recording.
func (m *Manager) Active() bool {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.session != nil
}

// Mode returns the recording path of the next session.
func (m *Manager) Mode() Mode {
	return m.selector.Mode()
}

// ReportDecodeFailure records that the relay could not decode a blob.
func (m *Manager) ReportDecodeFailure(wav bool) {
	if m.selector.RecordFailure(wav) {
		m.logger.Info("switching to WAV recording after repeated decode failures")
	}
}

// ReportSuccess records that a blob was transcribed.
func (m *Manager) ReportSuccess(wav bool) {
	if m.selector.RecordSuccess(wav) {
		m.logger.Info("switching back to container recording")
	}
}

func classifyAcquire(op string, err error) error {
	switch {
	case errors.Is(err, ErrPermissionDenied):
		return ttypes.NewError(ttypes.KindPermission, op, err)
	case errors.Is(err, context.Canceled):
		return ttypes.NewError(ttypes.KindCanceled, op, err)
	default:
		return ttypes.NewError(ttypes.KindAcquisition, op, err)
	}
}
