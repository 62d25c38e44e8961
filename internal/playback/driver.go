package playback

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/habla/internal/audio"
)

// Config holds the driver tunables.
type Config struct {
	// InterItemPause is the gap between consecutive clips.
	InterItemPause time.Duration
	// RotateEvery replaces the output handle after this many completed
	// plays. Zero disables rotation.
	RotateEvery int
}

// DefaultConfig returns the default driver configuration.
func DefaultConfig() Config {
	return Config{
		InterItemPause: 200 * time.Millisecond,
		RotateEvery:    20,
	}
}

// CacheMarker protects cached clips from eviction while they play.
type CacheMarker interface {
	MarkPlaying(key string, playing bool)
}

// Hooks are optional callbacks for metrics and UI. They must not block or
// call back into the driver.
type Hooks struct {
	OnPlayStart func(id string)
	OnPlayEnd   func(id string, err error)
	OnRotate    func()
}

type current struct {
	item   Item
	cancel context.CancelFunc
	done   chan struct{}
}

// Driver plays queued clips one at a time through a single reusable output
// handle. It is the only component that decides whether something is
// audible.
type Driver struct {
	factory audio.OutputFactory
	cache   CacheMarker
	logger  *log.Logger

	mu         sync.Mutex
	cfg        Config
	hooks      Hooks
	queue      *Queue
	output     audio.Output
	cur        *current
	processing bool
	needsPrime bool
	plays      int
	onDrain    func()
	closed     bool
	stats      Stats

	wake chan struct{}
}

// NewDriver creates a driver. cache may be nil.
func NewDriver(factory audio.OutputFactory, cache CacheMarker, cfg Config, logger *log.Logger) *Driver {
	if logger == nil {
		logger = log.Default().WithPrefix("playback")
	}
	return &Driver{
		factory: factory,
		cache:   cache,
		logger:  logger,
		cfg:     cfg,
		queue:   NewQueue(),
		wake:    make(chan struct{}, 1),
	}
}

// SetOnDrain sets the callback fired each time the queue fully drains.
func (d *Driver) SetOnDrain(fn func()) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.onDrain = fn
}

// SetHooks installs observation callbacks.
func (d *Driver) SetHooks(h Hooks) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.hooks = h
}

// SetConfig updates tunables; it applies from the next item.
func (d *Driver) SetConfig(cfg Config) {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.cfg = cfg
}

// Enqueue appends a clip and starts processing when idle. A clip that is
// not cache-owned is released by the driver once played or dropped.
func (d *Driver) Enqueue(id string, res *audio.Resource, fromCache bool) error {
	d.mu.Lock()
	defer d.mu.Unlock()

	if d.closed {
		return ErrQueueClosed
	}
	if err := d.queue.Enqueue(Item{ID: id, Resource: res, FromCache: fromCache}); err != nil {
		return err
	}
	if !d.processing {
		d.processing = true
		go d.processQueue()
	}
	return nil
}

func (d *Driver) processQueue() {
	for {
		d.mu.Lock()
		if d.closed {
			d.processing = false
			d.mu.Unlock()
			return
		}
		item, err := d.queue.Dequeue()
		if err != nil {
			d.processing = false
			onDrain := d.onDrain
			d.mu.Unlock()
			d.logger.Debug("queue drained")
			if onDrain != nil {
				onDrain()
			}
			return
		}

		if d.needsPrime {
			d.stats.Skipped++
			d.mu.Unlock()
			d.logger.Debug("output needs priming, skipping", "id", item.ID)
			d.finish(item)
			continue
		}

		if err := d.ensureOutputLocked(); err != nil {
			d.stats.Skipped++
			d.mu.Unlock()
			d.logger.Warn("no output handle", "err", err)
			d.finish(item)
			continue
		}

		ctx, cancel := context.WithCancel(context.Background())
		cur := &current{item: item, cancel: cancel, done: make(chan struct{})}
		d.cur = cur
		hooks := d.hooks
		d.mu.Unlock()

		if item.FromCache && d.cache != nil {
			d.cache.MarkPlaying(item.ID, true)
		}
		if hooks.OnPlayStart != nil {
			hooks.OnPlayStart(item.ID)
		}

		playErr := d.play(ctx, item)
		interrupted := ctx.Err() != nil
		cancel()

		if hooks.OnPlayEnd != nil {
			hooks.OnPlayEnd(item.ID, playErr)
		}
		d.finish(item)

		d.mu.Lock()
		d.cur = nil
		close(cur.done)
		if playErr == nil && !interrupted {
			d.plays++
			d.stats.Played++
		}
		d.maybeRotateLocked()
		pause := d.cfg.InterItemPause
		more := d.queue.Size() > 0 && !d.closed
		d.mu.Unlock()

		if more && pause > 0 {
			d.sleep(pause)
		}
	}
}

// play runs one item, recreating the output handle and retrying once on
// a non-permission failure.
func (d *Driver) play(ctx context.Context, item Item) error {
	d.mu.Lock()
	out := d.output
	d.mu.Unlock()

	err := audio.ErrClosed
	if out != nil {
		err = out.Play(ctx, item.Resource)
	}
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if d.skippable(item, err) {
		return err
	}

	d.logger.Warn("playback failed, recreating output", "id", item.ID, "err", err)
	d.mu.Lock()
	d.stats.Retries++
	if rerr := d.replaceOutputLocked(); rerr != nil {
		d.mu.Unlock()
		d.logger.Error("recreate output", "err", rerr)
		return err
	}
	out = d.output
	d.mu.Unlock()

	err = out.Play(ctx, item.Resource)
	if err == nil || ctx.Err() != nil {
		return nil
	}
	if !d.skippable(item, err) {
		d.logger.Error("playback failed after retry", "id", item.ID, "err", err)
	}
	return err
}

func (d *Driver) skippable(item Item, err error) bool {
	switch {
	case errors.Is(err, audio.ErrNotAllowed):
		d.mu.Lock()
		d.needsPrime = true
		d.stats.Skipped++
		d.mu.Unlock()
		d.logger.Info("output refused without a gesture, skipping", "id", item.ID)
		return true
	case errors.Is(err, audio.ErrReleased), errors.Is(err, audio.ErrEmptyAudio), errors.Is(err, audio.ErrUnsupportedFormat):
		d.mu.Lock()
		d.stats.Skipped++
		d.mu.Unlock()
		d.logger.Warn("unplayable clip, skipping", "id", item.ID, "err", err)
		return true
	}
	return false
}

// finish clears eviction protection or releases the handle.
func (d *Driver) finish(item Item) {
	if item.FromCache {
		if d.cache != nil {
			d.cache.MarkPlaying(item.ID, false)
		}
		return
	}
	item.Resource.Release()
}

func (d *Driver) sleep(pause time.Duration) {
	select {
	case <-d.wake:
	default:
	}
	timer := time.NewTimer(pause)
	defer timer.Stop()
	select {
	case <-timer.C:
	case <-d.wake:
	}
}

// StopIfPlaying halts the current clip if its id matches ("" matches any).
// It is idempotent and a no-op when idle. The queue continues afterwards.
func (d *Driver) StopIfPlaying(id string) bool {
	d.mu.Lock()
	cur := d.cur
	if cur == nil || (id != "" && cur.item.ID != id) {
		d.mu.Unlock()
		return false
	}
	out := d.output
	d.mu.Unlock()

	d.halt(cur, out)
	return true
}

// PauseForHigherPriority halts the current clip and drops everything
// queued. Playback does not resume afterwards.
func (d *Driver) PauseForHigherPriority(reason string) {
	d.mu.Lock()
	dropped := d.queue.Drain()
	cur := d.cur
	out := d.output
	d.mu.Unlock()

	for _, item := range dropped {
		d.finish(item)
	}
	if cur != nil {
		d.halt(cur, out)
	}
	select {
	case d.wake <- struct{}{}:
	default:
	}

	if cur != nil || len(dropped) > 0 {
		d.logger.Debug("playback paused", "reason", reason, "dropped", len(dropped))
	}
}

func (d *Driver) halt(cur *current, out audio.Output) {
	cur.cancel()
	if out != nil {
		if err := out.Stop(); err != nil {
			d.logger.Debug("stop output", "err", err)
		}
	}
	<-cur.done
}

// Prime makes the output eligible to play again. Call it from a user
// gesture.
func (d *Driver) Prime() error {
	d.mu.Lock()
	if err := d.ensureOutputLocked(); err != nil {
		d.mu.Unlock()
		return err
	}
	out := d.output
	d.mu.Unlock()

	if err := out.Prime(); err != nil {
		return err
	}

	d.mu.Lock()
	d.needsPrime = false
	d.mu.Unlock()
	return nil
}

// RequirePrime blocks playback until the next Prime.
func (d *Driver) RequirePrime() {
	d.mu.Lock()
	defer d.mu.Unlock()
	d.needsPrime = true
}

// NeedsPrime reports whether playback waits for a gesture.
func (d *Driver) NeedsPrime() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.needsPrime
}

// ResetOutput stops everything and replaces the output handle.
func (d *Driver) ResetOutput() error {
	d.PauseForHigherPriority("reset")

	d.mu.Lock()
	defer d.mu.Unlock()
	d.plays = 0
	return d.replaceOutputLocked()
}

// Busy reports whether anything is playing, queued, or between items.
func (d *Driver) Busy() bool {
	d.mu.Lock()
	defer d.mu.Unlock()
	return d.processing || d.cur != nil || d.queue.Size() > 0
}

// Current returns the id of the clip being played.
func (d *Driver) Current() (string, bool) {
	d.mu.Lock()
	defer d.mu.Unlock()
	if d.cur == nil {
		return "", false
	}
	return d.cur.item.ID, true
}

// Len returns the number of queued clips, excluding the current one.
func (d *Driver) Len() int {
	return d.queue.Size()
}

// Stats returns queue and driver counters.
func (d *Driver) Stats() Stats {
	q := d.queue.GetStats()
	d.mu.Lock()
	defer d.mu.Unlock()
	q.Played = d.stats.Played
	q.Skipped = d.stats.Skipped
	q.Retries = d.stats.Retries
	q.Rotations = d.stats.Rotations
	return q
}

// Close stops playback, releases queued clips and retires the handle.
func (d *Driver) Close() error {
	d.PauseForHigherPriority("close")

	d.mu.Lock()
	defer d.mu.Unlock()
	if d.closed {
		return nil
	}
	d.closed = true
	for _, item := range d.queue.Close() {
		d.finish(item)
	}
	if d.output != nil {
		err := d.output.Close()
		d.output = nil
		return err
	}
	return nil
}

func (d *Driver) ensureOutputLocked() error {
	if d.output != nil {
		return nil
	}
	out, err := d.factory()
	if err != nil {
		return err
	}
	d.output = out
	return nil
}

func (d *Driver) replaceOutputLocked() error {
	if d.output != nil {
		if err := d.output.Close(); err != nil {
			d.logger.Debug("close output", "err", err)
		}
		d.output = nil
	}
	return d.ensureOutputLocked()
}

// maybeRotateLocked replaces the handle between items once enough plays
// have completed.
func (d *Driver) maybeRotateLocked() {
	if d.cfg.RotateEvery <= 0 || d.plays < d.cfg.RotateEvery || d.cur != nil {
		return
	}
	if err := d.replaceOutputLocked(); err != nil {
		d.logger.Warn("rotate output", "err", err)
		return
	}
	d.plays = 0
	d.stats.Rotations++
	d.logger.Debug("output rotated")
	if d.hooks.OnRotate != nil {
		d.hooks.OnRotate()
	}
}
