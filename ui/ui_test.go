package ui

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/habla/internal/coordinator"
	"github.com/dgnsrekt/habla/internal/ttypes"
)

type fakeController struct {
	mu        sync.Mutex
	calls     []string
	snap      coordinator.Snapshot
	err       error
	subs      []func(coordinator.Snapshot)
	hideDelay time.Duration
}

func (f *fakeController) record(name string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.calls = append(f.calls, name)
}

func (f *fakeController) Press(context.Context) error   { f.record("press"); return f.err }
func (f *fakeController) Release(context.Context) error { f.record("release"); return f.err }
func (f *fakeController) Cancel()                       { f.record("cancel") }
func (f *fakeController) Resume(context.Context) error  { f.record("resume"); return f.err }
func (f *fakeController) TapBubble(_ context.Context, id string) (bool, error) {
	f.record("tap " + id)
	return true, f.err
}
func (f *fakeController) StopBubble(id string) bool { f.record("stop " + id); return true }
func (f *fakeController) Reset()                    { f.record("reset") }
func (f *fakeController) Hidden() {
	time.Sleep(f.hideDelay)
	f.record("hidden")
}
func (f *fakeController) Visible() { f.record("visible") }
func (f *fakeController) Snapshot() coordinator.Snapshot {
	return f.snap
}
func (f *fakeController) Subscribe(fn func(coordinator.Snapshot)) {
	f.subs = append(f.subs, fn)
}

func (f *fakeController) recorded() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// waitLast polls until the newest call is want.
func waitLast(t *testing.T, ctrl *fakeController, want string) {
	t.Helper()
	deadline := time.Now().Add(2 * time.Second)
	for ctrl.last() != want {
		if time.Now().After(deadline) {
			t.Fatalf("Expected %q, got %q", want, ctrl.last())
		}
		time.Sleep(time.Millisecond)
	}
}

func (f *fakeController) last() string {
	f.mu.Lock()
	defer f.mu.Unlock()
	if len(f.calls) == 0 {
		return ""
	}
	return f.calls[len(f.calls)-1]
}

func conversation() coordinator.Snapshot {
	return coordinator.Snapshot{
		State:      coordinator.StateIdle,
		Visibility: coordinator.VisibilityReady,
		Messages: []ttypes.Message{
			{ID: "m1", Role: ttypes.RoleUser, Text: "hola"},
			{ID: "m2", Role: ttypes.RoleAssistant, Text: "¡Hola! ¿Qué tal?", Translation: "Hi! How are you?"},
		},
		Revealed: map[string]bool{},
	}
}

func sized(t *testing.T, ctrl *fakeController) model {
	t.Helper()
	m := newModel(Config{BubbleWidth: 40}, ctrl)
	next, _ := m.Update(tea.WindowSizeMsg{Width: 80, Height: 24})
	return next.(model)
}

// run executes cmd and feeds its message back unless it is a batch.
func run(cmd tea.Cmd) tea.Msg {
	if cmd == nil {
		return nil
	}
	return cmd()
}

func keyPress(s string) tea.KeyMsg {
	switch s {
	case " ":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

func TestKeyHandling(t *testing.T) {
	testCases := []struct {
		description string
		state       coordinator.State
		visibility  coordinator.Visibility
		key         string
		want        string
	}{
		{"space starts talking", coordinator.StateIdle, coordinator.VisibilityReady, " ", "press"},
		{"space during playback starts talking", coordinator.StateAutoPlaying, coordinator.VisibilityReady, " ", "press"},
		{"space while recording sends", coordinator.StateRecording, coordinator.VisibilityReady, " ", "release"},
		{"esc cancels", coordinator.StateProcessing, coordinator.VisibilityReady, "esc", "cancel"},
		{"r resumes", coordinator.StateIdle, coordinator.VisibilityNeedsResume, "r", "resume"},
		{"r resumes when backgrounded", coordinator.StateIdle, coordinator.VisibilityBackgrounded, "r", "resume"},
		{"r ignored when ready", coordinator.StateIdle, coordinator.VisibilityReady, "r", ""},
		{"n starts over", coordinator.StateIdle, coordinator.VisibilityReady, "n", "reset"},
	}

	for _, testCase := range testCases {
		t.Run(testCase.description, func(t *testing.T) {
			snap := conversation()
			snap.State = testCase.state
			snap.Visibility = testCase.visibility
			ctrl := &fakeController{snap: snap}
			m := sized(t, ctrl)

			_, cmd := m.Update(keyPress(testCase.key))
			run(cmd)
			if got := ctrl.last(); got != testCase.want {
				t.Errorf("Expected %q, got %q", testCase.want, got)
			}
		})
	}
}

func TestSelectionAndTap(t *testing.T) {
	ctrl := &fakeController{snap: conversation()}
	m := sized(t, ctrl)

	if _, ok := m.selectedID(); ok {
		t.Fatal("Nothing should be selected initially")
	}
	_, cmd := m.Update(keyPress("enter"))
	if cmd != nil {
		t.Error("Enter without a selection should do nothing")
	}

	next, _ := m.Update(keyPress("up"))
	m = next.(model)
	if id, _ := m.selectedID(); id != "m2" {
		t.Fatalf("First move should select the newest message, got %q", id)
	}
	next, _ = m.Update(keyPress("up"))
	m = next.(model)
	next, _ = m.Update(keyPress("up"))
	m = next.(model)
	if id, _ := m.selectedID(); id != "m1" {
		t.Fatalf("Selection should stop at the oldest message, got %q", id)
	}

	_, cmd = m.Update(keyPress("enter"))
	run(cmd)
	if got := ctrl.last(); got != "tap m1" {
		t.Errorf("Expected tap m1, got %q", got)
	}

	_, cmd = m.Update(keyPress("s"))
	run(cmd)
	if got := ctrl.last(); got != "stop m1" {
		t.Errorf("Expected stop m1, got %q", got)
	}
}

func TestFocusMapsToVisibility(t *testing.T) {
	ctrl := &fakeController{snap: conversation()}
	m := sized(t, ctrl)

	m.Update(tea.BlurMsg{})
	waitLast(t, ctrl, "hidden")

	m.Update(tea.FocusMsg{})
	waitLast(t, ctrl, "visible")

	_, cmd := m.Update(tea.KeyMsg{Type: tea.KeyCtrlZ})
	waitLast(t, ctrl, "hidden")
	if cmd == nil {
		t.Error("Expected a suspend command")
	}
}

func TestFocusEventsApplyInOrder(t *testing.T) {
	ctrl := &fakeController{snap: conversation(), hideDelay: 20 * time.Millisecond}
	m := sized(t, ctrl)

	for i := 0; i < 5; i++ {
		m.Update(tea.BlurMsg{})
		m.Update(tea.FocusMsg{})
	}
	waitLast(t, ctrl, "visible")
	deadline := time.Now().Add(2 * time.Second)
	for len(ctrl.recorded()) < 10 && time.Now().Before(deadline) {
		time.Sleep(time.Millisecond)
	}

	calls := ctrl.recorded()
	if len(calls) != 10 {
		t.Fatalf("Expected 10 calls, got %v", calls)
	}
	for i, call := range calls {
		want := "hidden"
		if i%2 == 1 {
			want = "visible"
		}
		if call != want {
			t.Fatalf("Call %d: expected %q, got %q (%v)", i, want, call, calls)
		}
	}
}

func TestActionErrorsBecomeNotices(t *testing.T) {
	ctrl := &fakeController{snap: conversation()}
	m := sized(t, ctrl)

	next, _ := m.Update(actionMsg{"press", ttypes.NewError(ttypes.KindPermission, "begin", nil)})
	m = next.(model)
	if m.notice != ttypes.StatusPermission {
		t.Errorf("Expected permission notice, got %q", m.notice)
	}

	m.notice = ""
	next, _ = m.Update(actionMsg{"release", ttypes.NewError(ttypes.KindCanceled, "end", nil)})
	m = next.(model)
	if m.notice != "" {
		t.Errorf("Silent errors should not show, got %q", m.notice)
	}
}

func TestSnapshotFeedKeepsLatest(t *testing.T) {
	feed := newSnapshotFeed()
	feed.push(coordinator.Snapshot{OpID: 1})
	feed.push(coordinator.Snapshot{OpID: 2})

	msg := feed.wait()()
	snap, ok := msg.(snapshotMsg)
	if !ok {
		t.Fatalf("Expected snapshotMsg, got %T", msg)
	}
	if snap.OpID != 2 {
		t.Errorf("Expected newest snapshot, got op %d", snap.OpID)
	}
}

func TestView(t *testing.T) {
	snap := conversation()
	snap.Revealed["m2"] = true
	snap.Playing = "m2"
	snap.Status = "Microphone ready. Press again to talk."
	ctrl := &fakeController{snap: snap}
	m := sized(t, ctrl)

	view := m.View()
	for _, want := range []string{"habla", "hola", "Hi! How are you?", "♪", "idle", "Microphone ready"} {
		if !strings.Contains(view, want) {
			t.Errorf("View missing %q", want)
		}
	}
}

func TestStatusLineNeedsResume(t *testing.T) {
	snap := conversation()
	snap.Visibility = coordinator.VisibilityNeedsResume
	ctrl := &fakeController{snap: snap}
	m := sized(t, ctrl)

	if line := m.statusLine(); !strings.Contains(line, "needs-resume") {
		t.Errorf("Expected needs-resume indicator, got %q", line)
	}

	snap.Visibility = coordinator.VisibilityBackgrounded
	ctrl = &fakeController{snap: snap}
	m = sized(t, ctrl)
	if line := m.statusLine(); !strings.Contains(line, "backgrounded") {
		t.Errorf("Expected backgrounded indicator, got %q", line)
	}
}

func TestRenderBubbleHidesTranslationUntilRevealed(t *testing.T) {
	msg := ttypes.Message{ID: "m2", Role: ttypes.RoleAssistant, Text: "Bien", Translation: "Good", Correction: "Se dice «estoy bien»"}

	hidden := renderBubble(bubbleView{msg: msg}, 40, 80)
	if strings.Contains(hidden, "Good") {
		t.Error("Translation shown before reveal")
	}
	if !strings.Contains(hidden, "estoy bien") {
		t.Error("Correction should always be shown")
	}

	shown := renderBubble(bubbleView{msg: msg, revealed: true}, 40, 80)
	if !strings.Contains(shown, "Good") {
		t.Error("Translation missing after reveal")
	}
}

func TestTruncate(t *testing.T) {
	if got := truncate("hola", 10); got != "hola" {
		t.Errorf("Short strings unchanged, got %q", got)
	}
	if got := truncate("buenos días a todos", 8); !strings.HasSuffix(got, ellipsis) {
		t.Errorf("Expected ellipsis, got %q", got)
	}
}
