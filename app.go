package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/habla/internal/audio"
	"github.com/dgnsrekt/habla/internal/cache"
	"github.com/dgnsrekt/habla/internal/capture"
	"github.com/dgnsrekt/habla/internal/config"
	"github.com/dgnsrekt/habla/internal/coordinator"
	"github.com/dgnsrekt/habla/internal/history"
	"github.com/dgnsrekt/habla/internal/observability"
	"github.com/dgnsrekt/habla/internal/playback"
	"github.com/dgnsrekt/habla/internal/relay"
)

// app owns every long-lived component of a session.
type app struct {
	mic      *capture.MalgoMicrophone
	encoders *capture.FFmpegEncoders
	capture  *capture.Manager
	disk     *cache.DiskCache
	cache    *cache.AudioCache
	player   *playback.Driver
	relay    *relay.Client
	history  *history.Store
	metrics  *observability.Metrics
	debug    *observability.DebugServer
	coord    *coordinator.Coordinator
}

// contextSuspender suspends the shared output context without creating it
// early.
type contextSuspender struct {
	opts audio.ContextOptions
}

func (s contextSuspender) Suspend() error {
	ctx, err := audio.SharedContext(s.opts)
	if err != nil {
		return err
	}
	return ctx.Suspend()
}

func newApp(s config.Settings) (*app, error) {
	a := &app{metrics: observability.NewMetrics(config.AppName)}

	mic, err := capture.NewMalgoMicrophone(log.Default().WithPrefix("mic"))
	if err != nil {
		return nil, fmt.Errorf("unable to open audio input: %w", err)
	}
	a.mic = mic
	a.encoders = capture.NewFFmpegEncoders(s.Capture.SampleRate, log.Default().WithPrefix("encoder"))
	a.capture = capture.NewManager(a.mic, a.encoders, s.CaptureConfig(), log.Default().WithPrefix("capture"))

	cc := s.CacheConfig()
	opts := []cache.Option{cache.WithLogger(log.Default().WithPrefix("cache"))}
	if cc.DiskEnabled {
		disk, err := cache.OpenDiskCache(cc, log.Default().WithPrefix("disk-cache"))
		if err != nil {
			log.Warn("disk cache disabled", "err", err)
		} else {
			a.disk = disk
			opts = append(opts, cache.WithBacking(disk))
		}
	}
	a.cache = cache.NewAudioCache(cc.Capacity, opts...)
	a.metrics.WatchCache(config.AppName, a.cache.Stats)

	outOpts := audio.DefaultContextOptions()
	outOpts.SampleRate = s.Playback.SampleRate
	a.player = playback.NewDriver(
		audio.NewOtoFactory(outOpts, log.Default().WithPrefix("output")),
		a.cache,
		s.PlaybackConfig(),
		log.Default().WithPrefix("playback"),
	)
	a.player.SetHooks(a.metrics.PlaybackHooks())

	a.relay = relay.NewClient(s.RelayConfig(), relay.WithLogger(log.Default().WithPrefix("relay")))

	deps := coordinator.Deps{
		Capture:   a.capture,
		Relay:     a.relay,
		Player:    a.player,
		Cache:     a.cache,
		Suspender: contextSuspender{opts: outOpts},
		Metrics:   a.metrics,
		Logger:    log.Default().WithPrefix("coordinator"),
	}
	if s.History {
		store, err := history.NewStore(s.HistoryPath(), 0)
		if err != nil {
			log.Warn("conversation history disabled", "err", err)
		} else {
			a.history = store
			deps.History = store
		}
	}
	flag, err := coordinator.NewFileFlag(s.StateDir, "needs-resume")
	if err != nil {
		log.Warn("needs-resume flag kept in memory", "err", err)
	} else {
		deps.Flag = flag
	}
	a.coord = coordinator.New(deps, coordinator.Config{Translate: s.Translate})

	if s.DebugAddr != "" {
		a.debug = observability.NewDebugServer(s.DebugAddr, a.metrics, observability.StateSource{
			Snapshot: a.coord.Snapshot,
			Cache:    a.cache.Stats,
			Playback: a.player.Stats,
			Mode:     func() string { return a.capture.Mode().String() },
		}, log.Default().WithPrefix("debug"))
		if err := a.debug.Start(); err != nil {
			log.Warn("debug server disabled", "addr", s.DebugAddr, "err", err)
			a.debug = nil
		}
	}
	return a, nil
}

// apply pushes reloaded settings into the running components. Relay and
// storage locations only change on restart.
func (a *app) apply(s config.Settings) {
	a.capture.SetConfig(s.CaptureConfig())
	a.player.SetConfig(s.PlaybackConfig())
	a.cache.Resize(s.Cache.Capacity)
	a.coord.SetConfig(coordinator.Config{Translate: s.Translate})
}

// Close stops the session and releases devices and files.
func (a *app) Close() error {
	var errs []error
	a.coord.Close()
	if a.debug != nil {
		ctx, cancel := context.WithTimeout(context.Background(), 2*time.Second)
		errs = append(errs, a.debug.Shutdown(ctx))
		cancel()
	}
	errs = append(errs, a.player.Close())
	a.cache.Clear()
	if a.disk != nil {
		errs = append(errs, a.disk.Close())
	}
	if a.history != nil {
		errs = append(errs, a.history.Close())
	}
	errs = append(errs, a.mic.Close())
	return errors.Join(errs...)
}
