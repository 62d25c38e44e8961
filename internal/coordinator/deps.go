package coordinator

import (
	"context"
	"time"

	"github.com/dgnsrekt/habla/internal/audio"
	"github.com/dgnsrekt/habla/internal/cache"
	"github.com/dgnsrekt/habla/internal/capture"
	"github.com/dgnsrekt/habla/internal/playback"
	"github.com/dgnsrekt/habla/internal/relay"
	"github.com/dgnsrekt/habla/internal/ttypes"
)

// Capture is the microphone side of a turn.
type Capture interface {
	RequestPermission(ctx context.Context) error
	PermissionGranted() bool
	Begin(ctx context.Context) error
	End(ctx context.Context) (*ttypes.Blob, error)
	Cancel()
	ResetGraph()
	ReportDecodeFailure(wav bool)
	ReportSuccess(wav bool)
}

// Relay performs the backend requests of a turn.
type Relay interface {
	Transcribe(ctx context.Context, blob *ttypes.Blob) (string, error)
	Reply(ctx context.Context, history []ttypes.Message, translate bool) (ttypes.Reply, error)
	Synthesize(ctx context.Context, text string) ([]byte, string, error)
}

// Player is the playback driver.
type Player interface {
	Enqueue(id string, res *audio.Resource, fromCache bool) error
	StopIfPlaying(id string) bool
	PauseForHigherPriority(reason string)
	Prime() error
	RequirePrime()
	NeedsPrime() bool
	ResetOutput() error
	Busy() bool
	Current() (string, bool)
	SetOnDrain(fn func())
}

// AudioCache holds synthesized speech by audio key.
type AudioCache interface {
	Get(key string) (*audio.Resource, bool)
	Put(key string, data []byte, mime string) (*audio.Resource, bool)
	Clear()
}

// Suspender pauses the shared audio device while backgrounded.
type Suspender interface {
	Suspend() error
}

// History persists the conversation on a best-effort basis.
type History interface {
	Load() ([]ttypes.Message, error)
	Save(messages []ttypes.Message) error
	Clear() error
}

// Metrics observes the coordinator. Implementations must not block.
type Metrics interface {
	StateChanged(from, to State)
	StaleDiscarded(stage string)
	TurnCompleted(outcome string)
	StageLatency(stage string, d time.Duration)
}

type nopMetrics struct{}

func (nopMetrics) StateChanged(State, State)          {}
func (nopMetrics) StaleDiscarded(string)              {}
func (nopMetrics) TurnCompleted(string)               {}
func (nopMetrics) StageLatency(string, time.Duration) {}

var (
	_ Capture    = (*capture.Manager)(nil)
	_ Relay      = (*relay.Client)(nil)
	_ Player     = (*playback.Driver)(nil)
	_ AudioCache = (*cache.AudioCache)(nil)
	_ Suspender  = (*audio.Context)(nil)
)
