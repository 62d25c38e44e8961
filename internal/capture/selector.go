package capture

import "sync"

// Mode is the recording path the next session uses.
type Mode int

const (
	// ModeContainer records through the preferred container encoder.
	ModeContainer Mode = iota
	// ModeWAV records raw PCM into a WAV blob.
	ModeWAV
)

// String returns the mode name.
func (m Mode) String() string {
	if m == ModeWAV {
		return "wav"
	}
	return "container"
}

// ModeSelector switches to WAV after consecutive container failures and
// back to containers after consecutive WAV successes.
type ModeSelector struct {
	mu        sync.Mutex
	mode      Mode
	failures  int
	successes int

	failuresToWAV      int
	successesToPrimary int
}

// NewModeSelector creates a selector in container mode.
func NewModeSelector(failuresToWAV, successesToPrimary int) *ModeSelector {
	if failuresToWAV <= 0 {
		failuresToWAV = 2
	}
	if successesToPrimary <= 0 {
		successesToPrimary = 3
	}
	return &ModeSelector{failuresToWAV: failuresToWAV, successesToPrimary: successesToPrimary}
}

// Mode returns the current mode.
func (s *ModeSelector) Mode() Mode {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.mode
}

// RecordFailure counts a container encoder or relay decode failure. It
// reports whether the selector switched to WAV.
func (s *ModeSelector) RecordFailure(wav bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if wav || s.mode == ModeWAV {
		s.successes = 0
		return false
	}
	s.failures++
	if s.failures >= s.failuresToWAV {
		s.mode = ModeWAV
		s.failures = 0
		s.successes = 0
		return true
	}
	return false
}

// RecordSuccess counts a successfully transcribed recording. It reports
// whether the selector switched back to containers.
func (s *ModeSelector) RecordSuccess(wav bool) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if !wav {
		s.failures = 0
		return false
	}
	if s.mode != ModeWAV {
		return false
	}
	s.successes++
	if s.successes >= s.successesToPrimary {
		s.mode = ModeContainer
		s.successes = 0
		s.failures = 0
		return true
	}
	return false
}

// SetThresholds updates the switch thresholds.
func (s *ModeSelector) SetThresholds(failuresToWAV, successesToPrimary int) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if failuresToWAV > 0 {
		s.failuresToWAV = failuresToWAV
	}
	if successesToPrimary > 0 {
		s.successesToPrimary = successesToPrimary
	}
}

// Reset returns to container mode with cleared counters.
func (s *ModeSelector) Reset() {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.mode = ModeContainer
	s.failures = 0
	s.successes = 0
}
