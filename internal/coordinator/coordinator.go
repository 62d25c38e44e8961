package coordinator

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/habla/internal/capture"
	"github.com/dgnsrekt/habla/internal/relay"
	"github.com/dgnsrekt/habla/internal/ttypes"
)

var (
	// ErrNeedsResume refuses recording and speech until Resume.
	ErrNeedsResume = ttypes.ErrNeedsResume

	// ErrUnknownMessage is returned for taps on a message that does not exist.
	ErrUnknownMessage = errors.New("unknown message")
)

// StatusMicReady is shown after the permission request succeeds.
const StatusMicReady = "Microphone ready. Press again to talk."

// Config holds coordinator options.
type Config struct {
	// Translate asks the relay for an English translation of each reply.
	Translate bool
}

// Snapshot is a consistent copy of the coordinator's observable state.
type Snapshot struct {
	State      State
	Visibility Visibility
	OpID       uint64
	Messages   []ttypes.Message
	Revealed   map[string]bool
	Playing    string
	Status     string
	NeedsPrime bool
}

// Deps are the collaborators of a Coordinator. Suspender, History, Flag
// and Metrics are optional.
type Deps struct {
	Capture   Capture
	Relay     Relay
	Player    Player
	Cache     AudioCache
	Suspender Suspender
	History   History
	Flag      FlagStore
	Metrics   Metrics
	Logger    *log.Logger
}

// Coordinator sequences capture, relay requests and playback so that at
// most one of them owns the session at a time.
type Coordinator struct {
	capture   Capture
	relay     Relay
	player    Player
	cache     AudioCache
	suspender Suspender
	history   History
	flag      FlagStore
	metrics   Metrics
	logger    *log.Logger
	newID     func() string

	mu             sync.Mutex
	cfg            Config
	sm             *stateMachine
	vis            Visibility
	opID           uint64
	cancelOp       context.CancelFunc
	pendingEnqueue bool
	messages       []ttypes.Message
	revealed       map[string]bool
	status         string
	listeners      []func(Snapshot)

	wg sync.WaitGroup
}

// New creates a coordinator. A persisted needs-resume flag starts the
// coordinator in the needs-resume state, and saved history is restored.
func New(deps Deps, cfg Config) *Coordinator {
	c := &Coordinator{
		capture:   deps.Capture,
		relay:     deps.Relay,
		player:    deps.Player,
		cache:     deps.Cache,
		suspender: deps.Suspender,
		history:   deps.History,
		flag:      deps.Flag,
		metrics:   deps.Metrics,
		logger:    deps.Logger,
		newID:     uuid.NewString,
		cfg:       cfg,
		sm:        newStateMachine(),
		revealed:  make(map[string]bool),
	}
	if c.logger == nil {
		c.logger = log.Default().WithPrefix("coordinator")
	}
	if c.metrics == nil {
		c.metrics = nopMetrics{}
	}
	if c.flag == nil {
		c.flag = &MemFlag{}
	}
	c.sm.onEnter = func(from, to State) {
		c.logger.Debug("state", "from", from, "to", to, "op", c.opID)
		c.metrics.StateChanged(from, to)
	}

	if pending, err := c.flag.Get(); err != nil {
		c.logger.Warn("read needs-resume flag", "err", err)
	} else if pending {
		c.vis = VisibilityNeedsResume
		c.status = ttypes.StatusNeedsResume
	}
	if c.history != nil {
		if msgs, err := c.history.Load(); err != nil {
			c.logger.Warn("load history", "err", err)
		} else {
			c.messages = msgs
		}
	}

	c.player.SetOnDrain(c.onDrain)
	return c
}

// SetConfig replaces the options; they apply from the next turn.
func (c *Coordinator) SetConfig(cfg Config) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.cfg = cfg
}

// Subscribe registers fn to receive a snapshot after every change. fn is
// called outside the coordinator's lock and must not block.
func (c *Coordinator) Subscribe(fn func(Snapshot)) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.listeners = append(c.listeners, fn)
}

// Snapshot returns a copy of the current state.
func (c *Coordinator) Snapshot() Snapshot {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.snapshotLocked()
}

func (c *Coordinator) snapshotLocked() Snapshot {
	s := Snapshot{
		State:      c.sm.Current(),
		Visibility: c.vis,
		OpID:       c.opID,
		Messages:   append([]ttypes.Message(nil), c.messages...),
		Revealed:   make(map[string]bool, len(c.revealed)),
		Status:     c.status,
		NeedsPrime: c.player.NeedsPrime(),
	}
	for k, v := range c.revealed {
		s.Revealed[k] = v
	}
	if key, ok := c.player.Current(); ok {
		s.Playing = messageIDOf(key)
	}
	return s
}

func (c *Coordinator) emit() {
	c.mu.Lock()
	snap := c.snapshotLocked()
	listeners := make([]func(Snapshot), len(c.listeners))
	copy(listeners, c.listeners)
	c.mu.Unlock()
	for _, fn := range listeners {
		fn(snap)
	}
}

// Press starts recording. Recording always wins: queued playback is
// dropped and an in-flight turn is canceled. Without microphone
// permission, Press only requests it.
func (c *Coordinator) Press(ctx context.Context) error {
	c.mu.Lock()
	if c.vis != VisibilityReady {
		c.status = ttypes.StatusNeedsResume
		c.mu.Unlock()
		c.emit()
		return ttypes.NewError(ttypes.KindState, "press", ErrNeedsResume)
	}
	if c.sm.Current() == StateRecording {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	if !c.capture.PermissionGranted() {
		err := c.capture.RequestPermission(ctx)
		c.mu.Lock()
		if err != nil {
			c.status = ttypes.Status(err)
		} else {
			c.status = StatusMicReady
		}
		c.mu.Unlock()
		c.emit()
		return err
	}

	c.mu.Lock()
	id := c.newOpLocked()
	c.mu.Unlock()

	c.player.PauseForHigherPriority("recording")
	if c.player.NeedsPrime() {
		if err := c.player.Prime(); err != nil {
			c.logger.Warn("prime output", "err", err)
		}
	}

	c.mu.Lock()
	if c.opID != id || c.vis != VisibilityReady {
		c.mu.Unlock()
		return ttypes.NewError(ttypes.KindCanceled, "press", ttypes.ErrCanceled)
	}
	c.sm.Transition(StateRecording)
	c.status = ""
	c.mu.Unlock()
	c.emit()

	if err := c.capture.Begin(ctx); err != nil {
		c.fail(id, "begin", err)
		return err
	}
	return nil
}

// Release ends recording and starts processing the turn in the background.
// Gestures shorter than the minimum hold return to idle silently.
func (c *Coordinator) Release(ctx context.Context) error {
	c.mu.Lock()
	if c.sm.Current() != StateRecording {
		c.mu.Unlock()
		return nil
	}
	id := c.opID
	c.mu.Unlock()

	blob, err := c.capture.End(ctx)
	if err != nil {
		if errors.Is(err, capture.ErrNoActiveSession) {
			// Acquisition still pending; make it stale. The gesture was
			// superseded, which is not an error.
			c.capture.Cancel()
			err = ttypes.NewError(ttypes.KindCanceled, "release", ttypes.ErrCanceled)
		}
		c.fail(id, "end", err)
		return err
	}

	c.mu.Lock()
	if c.opID != id || !c.sm.Transition(StateProcessing) {
		c.mu.Unlock()
		c.metrics.StaleDiscarded("recording")
		return nil
	}
	opCtx, cancel := context.WithCancel(context.Background())
	c.cancelOp = cancel
	c.wg.Add(1)
	c.mu.Unlock()
	c.emit()

	go c.process(opCtx, id, blob)
	return nil
}

// process runs transcription, reply and synthesis for one turn.
func (c *Coordinator) process(ctx context.Context, id uint64, blob *ttypes.Blob) {
	defer c.wg.Done()
	defer c.settle(id)
	defer func() {
		if r := recover(); r != nil {
			c.logger.Error("turn panicked", "op", id, "panic", r)
			c.fail(id, "process", fmt.Errorf("panic: %v", r))
		}
	}()

	start := time.Now()
	text, err := c.relay.Transcribe(ctx, blob)
	c.metrics.StageLatency("stt", time.Since(start))
	if !c.isCurrent(id, "stt") {
		return
	}
	if err != nil {
		if errors.Is(err, relay.ErrUndecodable) {
			c.capture.ReportDecodeFailure(blob.IsWAV())
		}
		c.fail(id, "transcribe", err)
		return
	}
	c.capture.ReportSuccess(blob.IsWAV())

	if relay.IsSpurious(text) {
		c.logger.Debug("discarding spurious transcript", "text", text)
		c.fail(id, "transcribe", ttypes.NewError(ttypes.KindInput, "transcribe", ttypes.ErrNoSpeech))
		return
	}

	c.mu.Lock()
	if c.opID != id {
		c.mu.Unlock()
		c.metrics.StaleDiscarded("stt")
		return
	}
	c.messages = append(c.messages, ttypes.Message{
		ID:        c.newID(),
		Role:      ttypes.RoleUser,
		Text:      text,
		CreatedAt: time.Now(),
	})
	history := append([]ttypes.Message(nil), c.messages...)
	translate := c.cfg.Translate
	c.mu.Unlock()
	c.emit()

	start = time.Now()
	reply, err := c.relay.Reply(ctx, history, translate)
	c.metrics.StageLatency("chat", time.Since(start))
	if !c.isCurrent(id, "chat") {
		return
	}
	if err != nil {
		c.fail(id, "reply", err)
		return
	}

	msg := ttypes.Message{
		ID:          c.newID(),
		Role:        ttypes.RoleAssistant,
		Text:        reply.Reply,
		Translation: reply.Translation,
		Correction:  reply.CorrectionText(),
		CreatedAt:   time.Now(),
	}
	c.mu.Lock()
	if c.opID != id {
		c.mu.Unlock()
		c.metrics.StaleDiscarded("chat")
		return
	}
	c.messages = append(c.messages, msg)
	saved := append([]ttypes.Message(nil), c.messages...)
	c.mu.Unlock()
	c.emit()
	c.saveHistory(saved)

	c.speak(ctx, id, segmentsOf(msg))
}

// segmentsOf returns the non-empty spoken parts of a reply, correction
// first.
func segmentsOf(msg ttypes.Message) []ttypes.Segment {
	var segs []ttypes.Segment
	if strings.TrimSpace(msg.Correction) != "" {
		segs = append(segs, ttypes.Segment{MessageID: msg.ID, Kind: ttypes.SegmentCorrection, Text: msg.Correction})
	}
	if strings.TrimSpace(msg.Text) != "" {
		segs = append(segs, ttypes.Segment{MessageID: msg.ID, Kind: ttypes.SegmentReply, Text: msg.Text})
	}
	return segs
}

// speak synthesizes and enqueues segments in order. A segment that fails
// to synthesize is skipped.
func (c *Coordinator) speak(ctx context.Context, id uint64, segs []ttypes.Segment) {
	if len(segs) == 0 {
		return
	}

	c.mu.Lock()
	if c.opID != id {
		c.mu.Unlock()
		return
	}
	c.pendingEnqueue = true
	c.mu.Unlock()

	for _, seg := range segs {
		res, cached := c.cache.Get(seg.AudioKey())
		if res == nil {
			start := time.Now()
			data, mime, err := c.relay.Synthesize(ctx, seg.Text)
			c.metrics.StageLatency("tts", time.Since(start))
			if !c.isCurrent(id, "tts") {
				return
			}
			if err != nil {
				c.logger.Warn("synthesis failed, skipping segment", "kind", seg.Kind, "err", err)
				continue
			}
			res, cached = c.cache.Put(seg.AudioKey(), data, mime)
		}

		// The op-id check and the enqueue share the lock so a Press
		// cannot slip between them.
		c.mu.Lock()
		if c.opID != id {
			c.mu.Unlock()
			if !cached {
				res.Release()
			}
			c.metrics.StaleDiscarded("tts")
			return
		}
		changed := c.sm.Transition(StateAutoPlaying)
		err := c.player.Enqueue(seg.AudioKey(), res, cached)
		c.mu.Unlock()
		if err != nil {
			c.logger.Warn("enqueue failed", "kind", seg.Kind, "err", err)
			if !cached {
				res.Release()
			}
		}
		if changed {
			c.emit()
		}
	}
}

// settle returns to idle once a turn has nothing left to do.
func (c *Coordinator) settle(id uint64) {
	c.mu.Lock()
	if c.opID != id {
		c.mu.Unlock()
		return
	}
	c.pendingEnqueue = false
	changed := false
	switch c.sm.Current() {
	case StateProcessing:
		changed = c.sm.ForceIdle()
		c.metrics.TurnCompleted("silent")
	case StateAutoPlaying:
		if !c.player.Busy() {
			changed = c.sm.ForceIdle()
		}
		c.metrics.TurnCompleted("spoken")
	}
	c.mu.Unlock()
	if changed {
		c.emit()
	}
}

func (c *Coordinator) onDrain() {
	c.mu.Lock()
	changed := false
	if c.sm.Current() == StateAutoPlaying && !c.pendingEnqueue {
		changed = c.sm.ForceIdle()
	}
	c.mu.Unlock()
	if changed {
		c.emit()
	}
}

// isCurrent reports whether id is still the live operation, counting a
// stale discard otherwise.
func (c *Coordinator) isCurrent(id uint64, stage string) bool {
	c.mu.Lock()
	current := c.opID == id
	c.mu.Unlock()
	if !current {
		c.metrics.StaleDiscarded(stage)
		c.logger.Debug("discarding stale result", "stage", stage, "op", id)
	}
	return current
}

// fail returns to idle and surfaces err if id is still current.
func (c *Coordinator) fail(id uint64, op string, err error) {
	c.mu.Lock()
	if c.opID != id {
		c.mu.Unlock()
		c.metrics.StaleDiscarded(op)
		return
	}
	c.pendingEnqueue = false
	c.sm.ForceIdle()
	c.status = ttypes.Status(err)
	c.mu.Unlock()

	if ttypes.IsSilent(err) {
		c.logger.Debug("turn ended", "op", op, "err", err)
	} else {
		c.logger.Warn("turn failed", "op", op, "err", err)
		c.metrics.TurnCompleted("error")
	}
	c.emit()
}

func (c *Coordinator) newOpLocked() uint64 {
	if c.cancelOp != nil {
		c.cancelOp()
		c.cancelOp = nil
	}
	c.pendingEnqueue = false
	c.opID++
	return c.opID
}

// Cancel forces the coordinator to idle: in-flight requests are aborted,
// capture is stopped and playback is cleared. Every step runs even if an
// earlier one fails.
func (c *Coordinator) Cancel() {
	c.mu.Lock()
	c.newOpLocked()
	c.mu.Unlock()

	defer func() {
		c.mu.Lock()
		c.pendingEnqueue = false
		c.sm.ForceIdle()
		c.mu.Unlock()
		c.emit()
	}()

	c.step("stop capture", func() error { c.capture.Cancel(); return nil })
	c.step("clear playback", func() error { c.player.PauseForHigherPriority("cancel"); return nil })
}

// step runs one best-effort teardown step, containing panics.
func (c *Coordinator) step(name string, fn func() error) (err error) {
	defer func() {
		if r := recover(); r != nil {
			err = fmt.Errorf("%s: panic: %v", name, r)
		}
		if err != nil {
			c.logger.Warn("teardown step failed", "step", name, "err", err)
		}
	}()
	return fn()
}

// Hidden records that the client went to the background. The needs-resume
// flag is persisted so a restart also requires Resume.
func (c *Coordinator) Hidden() {
	c.mu.Lock()
	if c.vis != VisibilityReady {
		c.mu.Unlock()
		return
	}
	c.vis = VisibilityBackgrounded
	c.mu.Unlock()

	c.Cancel()
	c.step("persist flag", func() error { return c.flag.Set(true) })
	if c.suspender != nil {
		c.step("suspend audio", c.suspender.Suspend)
	}
	c.emit()
}

// Visible records that the client is in the foreground again. A session
// that was backgrounded now needs an explicit Resume.
func (c *Coordinator) Visible() {
	c.mu.Lock()
	if c.vis != VisibilityBackgrounded {
		c.mu.Unlock()
		return
	}
	c.vis = VisibilityNeedsResume
	c.status = ttypes.StatusNeedsResume
	c.mu.Unlock()
	c.emit()
}

// Resume recovers from the background: playback, requests and capture are
// torn down, the output handle and encoding context are recreated, and
// the output must be primed again by the next gesture.
func (c *Coordinator) Resume(ctx context.Context) error {
	c.mu.Lock()
	if c.vis == VisibilityReady {
		c.mu.Unlock()
		return nil
	}
	c.mu.Unlock()

	c.Cancel()
	outErr := c.step("reset output", c.player.ResetOutput)
	c.step("reset capture", func() error { c.capture.ResetGraph(); return nil })
	c.step("require prime", func() error { c.player.RequirePrime(); return nil })
	c.step("clear flag", func() error { return c.flag.Set(false) })

	c.mu.Lock()
	c.vis = VisibilityReady
	c.status = ""
	c.mu.Unlock()
	c.emit()

	if outErr != nil {
		return ttypes.NewError(ttypes.KindPlayback, "resume", outErr)
	}
	return nil
}

// TapBubble reveals a message's translation and, when nothing else owns
// the session, plays its reply audio. It reports whether audio was
// enqueued.
func (c *Coordinator) TapBubble(ctx context.Context, messageID string) (bool, error) {
	c.mu.Lock()
	msg, ok := c.findLocked(messageID)
	if !ok {
		c.mu.Unlock()
		return false, ttypes.NewError(ttypes.KindInput, "tap", ErrUnknownMessage)
	}
	c.revealed[messageID] = true
	if c.vis != VisibilityReady {
		c.status = ttypes.StatusNeedsResume
		c.mu.Unlock()
		c.emit()
		return false, ttypes.NewError(ttypes.KindState, "tap", ErrNeedsResume)
	}
	if c.sm.Current() != StateIdle || msg.Role != ttypes.RoleAssistant || strings.TrimSpace(msg.Text) == "" {
		c.mu.Unlock()
		c.emit()
		return false, nil
	}
	id := c.newOpLocked()
	opCtx, cancel := context.WithCancel(ctx)
	c.cancelOp = cancel
	c.sm.Transition(StateAutoPlaying)
	c.pendingEnqueue = true
	c.mu.Unlock()
	c.emit()
	defer cancel()
	defer c.settle(id)

	if c.player.NeedsPrime() {
		if err := c.player.Prime(); err != nil {
			c.logger.Warn("prime output", "err", err)
		}
	}

	seg := ttypes.Segment{MessageID: msg.ID, Kind: ttypes.SegmentReply, Text: msg.Text}
	res, cached := c.cache.Get(seg.AudioKey())
	if res == nil {
		data, mime, err := c.relay.Synthesize(opCtx, seg.Text)
		if !c.isCurrent(id, "tts") {
			return false, nil
		}
		if err != nil {
			c.fail(id, "synthesize", err)
			return false, err
		}
		res, cached = c.cache.Put(seg.AudioKey(), data, mime)
	}

	c.mu.Lock()
	if c.opID != id {
		c.mu.Unlock()
		if !cached {
			res.Release()
		}
		c.metrics.StaleDiscarded("tts")
		return false, nil
	}
	err := c.player.Enqueue(seg.AudioKey(), res, cached)
	c.mu.Unlock()
	if err != nil {
		if !cached {
			res.Release()
		}
		c.fail(id, "enqueue", ttypes.NewError(ttypes.KindPlayback, "tap", err))
		return false, err
	}
	return true, nil
}

// StopBubble stops the message's audio if it is the one playing.
func (c *Coordinator) StopBubble(messageID string) bool {
	for _, kind := range []ttypes.SegmentKind{ttypes.SegmentCorrection, ttypes.SegmentReply} {
		if c.player.StopIfPlaying(ttypes.AudioKey(messageID, kind)) {
			return true
		}
	}
	return false
}

// Reset cancels everything and starts a new conversation.
func (c *Coordinator) Reset() {
	c.Cancel()
	c.cache.Clear()

	c.mu.Lock()
	c.messages = nil
	c.revealed = make(map[string]bool)
	c.status = ""
	c.mu.Unlock()

	if c.history != nil {
		c.step("clear history", c.history.Clear)
	}
	c.emit()
}

// Close cancels the live turn and waits for background work to finish.
func (c *Coordinator) Close() {
	c.Cancel()
	c.wg.Wait()
}

func (c *Coordinator) findLocked(id string) (ttypes.Message, bool) {
	for _, m := range c.messages {
		if m.ID == id {
			return m, true
		}
	}
	return ttypes.Message{}, false
}

func (c *Coordinator) saveHistory(msgs []ttypes.Message) {
	if c.history == nil {
		return
	}
	if err := c.history.Save(msgs); err != nil {
		c.logger.Debug("save history", "err", err)
	}
}

// messageIDOf strips the segment suffix from an audio key.
func messageIDOf(key string) string {
	if i := strings.LastIndexByte(key, ':'); i >= 0 {
		return key[:i]
	}
	return key
}
