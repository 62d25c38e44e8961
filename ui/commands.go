package ui

import (
	"context"
	"sync"

	"github.com/atotto/clipboard"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/dgnsrekt/habla/internal/coordinator"
)

// Controller is the part of the coordinator the UI drives.
type Controller interface {
	Press(ctx context.Context) error
	Release(ctx context.Context) error
	Cancel()
	Resume(ctx context.Context) error
	TapBubble(ctx context.Context, messageID string) (bool, error)
	StopBubble(messageID string) bool
	Reset()
	Hidden()
	Visible()
	Snapshot() coordinator.Snapshot
	Subscribe(fn func(coordinator.Snapshot))
}

var _ Controller = (*coordinator.Coordinator)(nil)

type (
	snapshotMsg coordinator.Snapshot
	actionMsg   struct {
		action string
		err    error
	}
	copiedMsg struct{ err error }
)

// snapshotFeed keeps only the newest snapshot so a slow UI never blocks
// the coordinator.
type snapshotFeed struct {
	mu     sync.Mutex
	latest coordinator.Snapshot
	ready  chan struct{}
}

func newSnapshotFeed() *snapshotFeed {
	return &snapshotFeed{ready: make(chan struct{}, 1)}
}

func (f *snapshotFeed) push(s coordinator.Snapshot) {
	f.mu.Lock()
	f.latest = s
	f.mu.Unlock()
	select {
	case f.ready <- struct{}{}:
	default:
	}
}

func (f *snapshotFeed) wait() tea.Cmd {
	return func() tea.Msg {
		<-f.ready
		f.mu.Lock()
		defer f.mu.Unlock()
		return snapshotMsg(f.latest)
	}
}

func pressCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{"press", c.Press(context.Background())}
	}
}

func releaseCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{"release", c.Release(context.Background())}
	}
}

func cancelCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		c.Cancel()
		return actionMsg{action: "cancel"}
	}
}

func resumeCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		return actionMsg{"resume", c.Resume(context.Background())}
	}
}

func tapCmd(c Controller, id string) tea.Cmd {
	return func() tea.Msg {
		_, err := c.TapBubble(context.Background(), id)
		return actionMsg{"tap", err}
	}
}

func stopBubbleCmd(c Controller, id string) tea.Cmd {
	return func() tea.Msg {
		c.StopBubble(id)
		return actionMsg{action: "stop"}
	}
}

func resetCmd(c Controller) tea.Cmd {
	return func() tea.Msg {
		c.Reset()
		return actionMsg{action: "reset"}
	}
}

// visibilityPump applies focus changes one at a time in the order Update
// saw them. Commands run on their own goroutines, so a blur quickly
// followed by a focus could otherwise reach the coordinator reversed.
type visibilityPump struct {
	events chan func()
	once   sync.Once
}

func newVisibilityPump() *visibilityPump {
	return &visibilityPump{events: make(chan func(), 16)}
}

func (p *visibilityPump) send(fn func()) {
	p.once.Do(func() {
		go func() {
			for fn := range p.events {
				fn()
			}
		}()
	})
	p.events <- fn
}

func copyCmd(text string) tea.Cmd {
	return func() tea.Msg {
		return copiedMsg{clipboard.WriteAll(text)}
	}
}
