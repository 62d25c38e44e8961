package coordinator

import "testing"

func TestStateMachine_Transitions(t *testing.T) {
	tests := []struct {
		name string
		from State
		to   State
		want bool
	}{
		{"idle to recording", StateIdle, StateRecording, true},
		{"idle to processing", StateIdle, StateProcessing, false},
		{"recording to processing", StateRecording, StateProcessing, true},
		{"recording to auto-playing", StateRecording, StateAutoPlaying, false},
		{"processing to auto-playing", StateProcessing, StateAutoPlaying, true},
		{"processing to recording", StateProcessing, StateRecording, true},
		{"auto-playing to recording", StateAutoPlaying, StateRecording, true},
		{"auto-playing to processing", StateAutoPlaying, StateProcessing, false},
		{"same state", StateIdle, StateIdle, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sm := newStateMachine()
			sm.current = tt.from
			if got := sm.Transition(tt.to); got != tt.want {
				t.Errorf("Transition(%v -> %v) = %v, want %v", tt.from, tt.to, got, tt.want)
			}
		})
	}
}

func TestStateMachine_ForceIdleAndHook(t *testing.T) {
	sm := newStateMachine()
	var entered []State
	sm.onEnter = func(from, to State) { entered = append(entered, to) }

	sm.Transition(StateRecording)
	if !sm.ForceIdle() {
		t.Error("ForceIdle from recording should report a change")
	}
	if sm.ForceIdle() {
		t.Error("ForceIdle from idle is a no-op")
	}
	if len(entered) != 2 || entered[1] != StateIdle {
		t.Errorf("entered = %v", entered)
	}
}

func TestStrings(t *testing.T) {
	if StateAutoPlaying.String() != "auto-playing" || State(99).String() != "unknown" {
		t.Error("unexpected state names")
	}
	if VisibilityNeedsResume.String() != "needs-resume" || Visibility(99).String() != "unknown" {
		t.Error("unexpected visibility names")
	}
}
