package audio

import (
	"errors"
	"fmt"
	"io"
	"runtime"
	"sync"
	"time"

	"github.com/ebitengine/oto/v3"
)

// ContextOptions configures the process-wide oto context.
type ContextOptions struct {
	SampleRate int
	Channels   int
}

// DefaultContextOptions matches the relay's synthesized speech.
func DefaultContextOptions() ContextOptions {
	return ContextOptions{
		SampleRate: 24000,
		Channels:   2,
	}
}

// Context wraps the oto context. oto allows one context per process, so
// output handles are recreated on top of a shared Context rather than
// recreating the context itself.
type Context struct {
	otoCtx     *oto.Context
	sampleRate int
	channels   int

	mu        sync.Mutex
	suspended bool
}

var (
	sharedContext    *Context
	sharedContextErr error
	contextOnce      sync.Once
)

// SharedContext returns the process-wide context, creating it on first use.
// Options passed after the first call are ignored.
func SharedContext(opts ContextOptions) (*Context, error) {
	contextOnce.Do(func() {
		sharedContext, sharedContextErr = newContext(opts)
	})
	return sharedContext, sharedContextErr
}

func newContext(opts ContextOptions) (*Context, error) {
	if opts.SampleRate <= 0 {
		opts.SampleRate = DefaultContextOptions().SampleRate
	}
	if opts.Channels != 1 && opts.Channels != 2 {
		return nil, fmt.Errorf("channels must be 1 (mono) or 2 (stereo), got %d", opts.Channels)
	}

	options := &oto.NewContextOptions{
		SampleRate:   opts.SampleRate,
		ChannelCount: opts.Channels,
		Format:       oto.FormatSignedInt16LE,
	}

	// Platform-specific buffer size adjustments
	switch runtime.GOOS {
	case "darwin":
		options.BufferSize = 100 * time.Millisecond
	default:
		options.BufferSize = 50 * time.Millisecond
	}

	otoCtx, ready, err := oto.NewContext(options)
	if err != nil {
		return nil, fmt.Errorf("failed to create audio context: %w", err)
	}
	<-ready

	return &Context{
		otoCtx:     otoCtx,
		sampleRate: opts.SampleRate,
		channels:   opts.Channels,
	}, nil
}

// SampleRate returns the output sample rate.
func (c *Context) SampleRate() int {
	return c.sampleRate
}

// Channels returns the output channel count.
func (c *Context) Channels() int {
	return c.channels
}

// Suspend pauses the device. Outputs refuse to play until Resume.
func (c *Context) Suspend() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.otoCtx == nil {
		return errors.New("audio context not initialized")
	}
	if c.suspended {
		return nil
	}
	if err := c.otoCtx.Suspend(); err != nil {
		return fmt.Errorf("suspend audio context: %w", err)
	}
	c.suspended = true
	return nil
}

// Resume restarts a suspended device.
func (c *Context) Resume() error {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.otoCtx == nil {
		return errors.New("audio context not initialized")
	}
	if !c.suspended {
		return nil
	}
	if err := c.otoCtx.Resume(); err != nil {
		return fmt.Errorf("resume audio context: %w", err)
	}
	c.suspended = false
	return nil
}

// Suspended reports whether the device is suspended.
func (c *Context) Suspended() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.suspended
}

// Err returns the device error, if any.
func (c *Context) Err() error {
	return c.otoCtx.Err()
}

func (c *Context) newPlayer(r io.Reader) *oto.Player {
	return c.otoCtx.NewPlayer(r)
}
