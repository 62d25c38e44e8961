package coordinator

// State is the activity the coordinator is currently running.
type State int

const (
	// StateIdle means nothing owns the microphone or the speaker.
	StateIdle State = iota
	// StateRecording means a capture session is live.
	StateRecording
	// StateProcessing means a recording is being transcribed and answered.
	StateProcessing
	// StateAutoPlaying means reply audio is queued or playing.
	StateAutoPlaying
)

// String returns the string representation of the state.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateRecording:
		return "recording"
	case StateProcessing:
		return "processing"
	case StateAutoPlaying:
		return "auto-playing"
	default:
		return "unknown"
	}
}

// Visibility tracks whether the client may produce or capture audio.
type Visibility int

const (
	// VisibilityReady allows every operation.
	VisibilityReady Visibility = iota
	// VisibilityBackgrounded means the client lost focus or was suspended.
	VisibilityBackgrounded
	// VisibilityNeedsResume means the client is back but must be resumed.
	VisibilityNeedsResume
)

// String returns the string representation of the visibility.
func (v Visibility) String() string {
	switch v {
	case VisibilityReady:
		return "ready"
	case VisibilityBackgrounded:
		return "backgrounded"
	case VisibilityNeedsResume:
		return "needs-resume"
	default:
		return "unknown"
	}
}

// stateMachine validates lifecycle transitions. It is guarded by the
// coordinator's mutex.
type stateMachine struct {
	current     State
	transitions map[State][]State
	onEnter     func(from, to State)
}

func newStateMachine() *stateMachine {
	return &stateMachine{
		current: StateIdle,
		transitions: map[State][]State{
			StateIdle:        {StateRecording, StateAutoPlaying},
			StateRecording:   {StateProcessing, StateIdle},
			StateProcessing:  {StateAutoPlaying, StateIdle, StateRecording},
			StateAutoPlaying: {StateIdle, StateRecording},
		},
	}
}

// Transition moves to the given state if the transition is valid.
func (sm *stateMachine) Transition(to State) bool {
	if sm.current == to {
		return false
	}
	valid := false
	for _, s := range sm.transitions[sm.current] {
		if s == to {
			valid = true
			break
		}
	}
	if !valid {
		return false
	}
	sm.set(to)
	return true
}

// ForceIdle returns to idle from any state.
func (sm *stateMachine) ForceIdle() bool {
	if sm.current == StateIdle {
		return false
	}
	sm.set(StateIdle)
	return true
}

func (sm *stateMachine) set(to State) {
	from := sm.current
	sm.current = to
	if sm.onEnter != nil {
		sm.onEnter(from, to)
	}
}

// Current returns the current state.
func (sm *stateMachine) Current() State {
	return sm.current
}
