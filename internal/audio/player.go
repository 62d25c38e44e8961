package audio

import (
	"bytes"
	"context"
	"fmt"
	"sync"
	"sync/atomic"
	"time"

	"github.com/charmbracelet/log"
	"github.com/ebitengine/oto/v3"
)

// pollInterval is how often a playing output checks for natural end.
const pollInterval = 20 * time.Millisecond

// OtoOutput is the native output handle. It plays one resource at a time
// on the shared Context.
type OtoOutput struct {
	ctx    *Context
	logger *log.Logger

	state atomic.Int32 // PlayerState

	mu     sync.Mutex
	player *oto.Player
	// pcm keeps the decoded samples alive while oto reads them.
	pcm    []byte
	stopCh chan struct{}
}

// NewOtoOutput creates an output handle on ctx.
func NewOtoOutput(ctx *Context, logger *log.Logger) *OtoOutput {
	if logger == nil {
		logger = log.Default().WithPrefix("audio")
	}
	o := &OtoOutput{ctx: ctx, logger: logger}
	o.state.Store(int32(StateStopped))
	return o
}

// NewOtoFactory returns a factory producing handles on the shared context.
func NewOtoFactory(opts ContextOptions, logger *log.Logger) OutputFactory {
	return func() (Output, error) {
		ctx, err := SharedContext(opts)
		if err != nil {
			return nil, err
		}
		return NewOtoOutput(ctx, logger), nil
	}
}

// Play decodes res and blocks until it finishes, Stop is called or ctx
// is done.
func (o *OtoOutput) Play(ctx context.Context, res *Resource) error {
	if PlayerState(o.state.Load()) == StateClosed {
		return ErrClosed
	}
	if o.ctx.Suspended() {
		return ErrNotAllowed
	}

	data, err := res.Bytes()
	if err != nil {
		return err
	}
	pcm, err := Decode(data, res.MimeType())
	if err != nil {
		return err
	}
	pcm = pcm.Convert(o.ctx.SampleRate(), o.ctx.Channels())
	if len(pcm.Data) == 0 {
		return ErrEmptyAudio
	}

	o.mu.Lock()
	if o.player != nil {
		o.stopLocked()
	}
	player := o.ctx.newPlayer(bytes.NewReader(pcm.Data))
	if player == nil {
		o.mu.Unlock()
		return fmt.Errorf("failed to create oto player")
	}
	stopCh := make(chan struct{})
	o.player = player
	o.pcm = pcm.Data
	o.stopCh = stopCh
	player.Play()
	o.state.Store(int32(StatePlaying))
	o.mu.Unlock()

	o.logger.Debug("playing", "resource", res.URL(), "duration", pcm.Duration())

	ticker := time.NewTicker(pollInterval)
	defer ticker.Stop()

	var playErr error
loop:
	for {
		select {
		case <-ctx.Done():
			break loop
		case <-stopCh:
			break loop
		case <-ticker.C:
			if err := player.Err(); err != nil {
				playErr = fmt.Errorf("playback: %w", err)
				break loop
			}
			if !player.IsPlaying() && player.BufferedSize() == 0 {
				break loop
			}
		}
	}

	o.mu.Lock()
	if o.player == player {
		o.stopLocked()
	}
	o.mu.Unlock()

	return playErr
}

// Stop halts current playback. It is a no-op when idle.
func (o *OtoOutput) Stop() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
	return nil
}

func (o *OtoOutput) stopLocked() {
	if o.player != nil {
		o.player.Pause()
		if err := o.player.Close(); err != nil {
			o.logger.Debug("close player", "err", err)
		}
		o.player = nil
	}
	if o.stopCh != nil {
		close(o.stopCh)
		o.stopCh = nil
	}
	o.pcm = nil
	if PlayerState(o.state.Load()) != StateClosed {
		o.state.Store(int32(StateStopped))
	}
}

// Prime resumes a suspended context.
func (o *OtoOutput) Prime() error {
	if PlayerState(o.state.Load()) == StateClosed {
		return ErrClosed
	}
	return o.ctx.Resume()
}

// Close stops playback and retires the handle. The shared context stays.
func (o *OtoOutput) Close() error {
	o.mu.Lock()
	defer o.mu.Unlock()
	o.stopLocked()
	o.state.Store(int32(StateClosed))
	return nil
}

// State returns the current output state.
func (o *OtoOutput) State() PlayerState {
	return PlayerState(o.state.Load())
}
