// Package config loads habla's settings from the config file, the
// environment and flags, and maps them onto component configurations.
package config

import (
	"errors"
	"fmt"
	"net/url"
	"path/filepath"
	"time"

	"github.com/joho/godotenv"
	homedir "github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"

	"github.com/dgnsrekt/habla/internal/cache"
	"github.com/dgnsrekt/habla/internal/capture"
	"github.com/dgnsrekt/habla/internal/playback"
	"github.com/dgnsrekt/habla/internal/relay"
	"github.com/dgnsrekt/habla/internal/ttypes"
)

// AppName names the config file, the env prefix and the app directories.
const AppName = "habla"

// CaptureSettings are the microphone tunables.
type CaptureSettings struct {
	MinHold            time.Duration `mapstructure:"min_hold"`
	DrainWindow        time.Duration `mapstructure:"drain_window"`
	FailuresToWAV      int           `mapstructure:"mp4_failures_to_wav"`
	SuccessesToPrimary int           `mapstructure:"wav_successes_to_mp4"`
	SampleRate         int           `mapstructure:"sample_rate"`
	Formats            []string      `mapstructure:"formats"`
}

// PlaybackSettings are the output tunables.
type PlaybackSettings struct {
	InterItemPause time.Duration `mapstructure:"inter_item_pause"`
	RotateEvery    int           `mapstructure:"rotate_every"`
	SampleRate     int           `mapstructure:"sample_rate"`
}

// CacheSettings size the in-memory and on-disk speech caches.
type CacheSettings struct {
	Capacity         int           `mapstructure:"capacity"`
	Disk             bool          `mapstructure:"disk"`
	Dir              string        `mapstructure:"dir"`
	DiskMaxBytes     int64         `mapstructure:"disk_max_bytes"`
	MaxAge           time.Duration `mapstructure:"max_age"`
	CompressionLevel int           `mapstructure:"compression_level"`
}

// RelaySettings configure the backend client.
type RelaySettings struct {
	URL            string        `mapstructure:"url"`
	Timeout        time.Duration `mapstructure:"timeout"`
	STTAttempts    int           `mapstructure:"stt_attempts"`
	STTBackoff     time.Duration `mapstructure:"stt_backoff"`
	SynthesisRate  float64       `mapstructure:"synthesis_rate"`
	SynthesisBurst int           `mapstructure:"synthesis_burst"`
}

// Settings is the complete configuration.
type Settings struct {
	Translate bool   `mapstructure:"translate"`
	Debug     bool   `mapstructure:"debug"`
	LogFile   string `mapstructure:"logfile"`
	DebugAddr string `mapstructure:"debug_addr"`
	StateDir  string `mapstructure:"state_dir"`
	History   bool   `mapstructure:"history"`

	Capture  CaptureSettings  `mapstructure:"capture"`
	Playback PlaybackSettings `mapstructure:"playback"`
	Cache    CacheSettings    `mapstructure:"cache"`
	Relay    RelaySettings    `mapstructure:"relay"`
}

// SetDefaults registers every default on v.
func SetDefaults(v *viper.Viper) {
	cc := capture.DefaultConfig()
	pc := playback.DefaultConfig()
	rc := relay.DefaultConfig()

	v.SetDefault("translate", true)
	v.SetDefault("debug", false)
	v.SetDefault("logfile", "")
	v.SetDefault("debug_addr", "")
	v.SetDefault("state_dir", "")
	v.SetDefault("history", true)

	v.SetDefault("capture.min_hold", cc.MinHold)
	v.SetDefault("capture.drain_window", cc.DrainWindow)
	v.SetDefault("capture.mp4_failures_to_wav", cc.FailuresToWAV)
	v.SetDefault("capture.wav_successes_to_mp4", cc.SuccessesToPrimary)
	v.SetDefault("capture.sample_rate", cc.Constraints.SampleRate)
	v.SetDefault("capture.formats", cc.Formats)

	v.SetDefault("playback.inter_item_pause", pc.InterItemPause)
	v.SetDefault("playback.rotate_every", pc.RotateEvery)
	v.SetDefault("playback.sample_rate", 24000)

	v.SetDefault("cache.capacity", cache.DefaultCapacity)
	v.SetDefault("cache.disk", true)
	v.SetDefault("cache.dir", "")
	v.SetDefault("cache.disk_max_bytes", cache.DefaultCacheConfig().DiskCapacity)
	v.SetDefault("cache.max_age", cache.DefaultCacheConfig().DiskMaxAge)
	v.SetDefault("cache.compression_level", cache.DefaultCacheConfig().CompressionLevel)

	v.SetDefault("relay.url", rc.BaseURL)
	v.SetDefault("relay.timeout", rc.Timeout)
	v.SetDefault("relay.stt_attempts", rc.STTAttempts)
	v.SetDefault("relay.stt_backoff", rc.STTBackoff)
	v.SetDefault("relay.synthesis_rate", rc.SynthesisRate)
	v.SetDefault("relay.synthesis_burst", rc.SynthesisBurst)
}

// LoadDotEnv loads variables from the given .env files. Missing files are
// ignored; variables already set in the environment win.
func LoadDotEnv(paths ...string) error {
	if len(paths) == 0 {
		paths = []string{".env"}
	}
	var existing []string
	for _, p := range paths {
		p, err := homedir.Expand(p)
		if err != nil {
			return err
		}
		if fileExists(p) {
			existing = append(existing, p)
		}
	}
	if len(existing) == 0 {
		return nil
	}
	return godotenv.Load(existing...)
}

// Load decodes v into Settings, resolves directories and validates.
func Load(v *viper.Viper) (Settings, error) {
	var s Settings
	if err := v.Unmarshal(&s); err != nil {
		return s, fmt.Errorf("unable to decode config: %w", err)
	}
	if err := s.resolvePaths(); err != nil {
		return s, err
	}
	return s, s.Validate()
}

func (s *Settings) resolvePaths() error {
	scope := gap.NewScope(gap.User, AppName)

	var err error
	if s.StateDir == "" {
		p, derr := scope.DataPath("state")
		if derr != nil {
			return fmt.Errorf("unable to find data directory: %w", derr)
		}
		s.StateDir = p
	}
	if s.StateDir, err = homedir.Expand(s.StateDir); err != nil {
		return err
	}
	if s.Cache.Dir == "" {
		p, derr := scope.CacheDir()
		if derr != nil {
			return fmt.Errorf("unable to find cache directory: %w", derr)
		}
		s.Cache.Dir = filepath.Join(p, "speech")
	}
	if s.Cache.Dir, err = homedir.Expand(s.Cache.Dir); err != nil {
		return err
	}
	if s.LogFile != "" {
		if s.LogFile, err = homedir.Expand(s.LogFile); err != nil {
			return err
		}
	}
	return nil
}

// Validate checks ranges.
func (s Settings) Validate() error {
	var errs []error
	u, err := url.Parse(s.Relay.URL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		errs = append(errs, fmt.Errorf("relay.url must be an http(s) URL, got %q", s.Relay.URL))
	}
	if s.Capture.MinHold < 0 || s.Capture.MinHold > 10*time.Second {
		errs = append(errs, fmt.Errorf("capture.min_hold must be between 0 and 10s, got %s", s.Capture.MinHold))
	}
	if s.Capture.DrainWindow < 0 || s.Capture.DrainWindow > 5*time.Second {
		errs = append(errs, fmt.Errorf("capture.drain_window must be between 0 and 5s, got %s", s.Capture.DrainWindow))
	}
	if s.Capture.FailuresToWAV < 1 {
		errs = append(errs, fmt.Errorf("capture.mp4_failures_to_wav must be at least 1, got %d", s.Capture.FailuresToWAV))
	}
	if s.Capture.SuccessesToPrimary < 1 {
		errs = append(errs, fmt.Errorf("capture.wav_successes_to_mp4 must be at least 1, got %d", s.Capture.SuccessesToPrimary))
	}
	if s.Capture.SampleRate < 8000 || s.Capture.SampleRate > 48000 {
		errs = append(errs, fmt.Errorf("capture.sample_rate must be between 8000 and 48000, got %d", s.Capture.SampleRate))
	}
	for _, f := range s.Capture.Formats {
		if ttypes.ExtensionFor(f) == ".bin" {
			errs = append(errs, fmt.Errorf("capture.formats: unsupported container %q", f))
		}
	}
	if s.Playback.RotateEvery < 0 {
		errs = append(errs, fmt.Errorf("playback.rotate_every must not be negative, got %d", s.Playback.RotateEvery))
	}
	if s.Playback.InterItemPause < 0 {
		errs = append(errs, fmt.Errorf("playback.inter_item_pause must not be negative"))
	}
	if s.Cache.Capacity < 1 || s.Cache.Capacity > 1000 {
		errs = append(errs, fmt.Errorf("cache.capacity must be between 1 and 1000, got %d", s.Cache.Capacity))
	}
	if s.Cache.Disk && s.Cache.DiskMaxBytes < 1 {
		errs = append(errs, fmt.Errorf("cache.disk_max_bytes must be positive, got %d", s.Cache.DiskMaxBytes))
	}
	if s.Cache.MaxAge < 0 {
		errs = append(errs, fmt.Errorf("cache.max_age must not be negative, got %s", s.Cache.MaxAge))
	}
	if s.Relay.STTAttempts < 1 || s.Relay.STTAttempts > 10 {
		errs = append(errs, fmt.Errorf("relay.stt_attempts must be between 1 and 10, got %d", s.Relay.STTAttempts))
	}
	return errors.Join(errs...)
}

// CaptureConfig maps the settings onto the capture manager.
func (s Settings) CaptureConfig() capture.Config {
	c := capture.DefaultConfig()
	c.MinHold = s.Capture.MinHold
	c.DrainWindow = s.Capture.DrainWindow
	c.FailuresToWAV = s.Capture.FailuresToWAV
	c.SuccessesToPrimary = s.Capture.SuccessesToPrimary
	c.Constraints.SampleRate = s.Capture.SampleRate
	if len(s.Capture.Formats) > 0 {
		c.Formats = s.Capture.Formats
	}
	return c
}

// PlaybackConfig maps the settings onto the playback driver.
func (s Settings) PlaybackConfig() playback.Config {
	return playback.Config{
		InterItemPause: s.Playback.InterItemPause,
		RotateEvery:    s.Playback.RotateEvery,
	}
}

// CacheConfig maps the settings onto the speech caches.
func (s Settings) CacheConfig() cache.CacheConfig {
	return cache.CacheConfig{
		Capacity:         s.Cache.Capacity,
		DiskEnabled:      s.Cache.Disk,
		DiskPath:         s.Cache.Dir,
		DiskCapacity:     s.Cache.DiskMaxBytes,
		DiskMaxAge:       s.Cache.MaxAge,
		CompressionLevel: s.Cache.CompressionLevel,
	}
}

// RelayConfig maps the settings onto the relay client.
func (s Settings) RelayConfig() relay.Config {
	return relay.Config{
		BaseURL:        s.Relay.URL,
		Timeout:        s.Relay.Timeout,
		STTAttempts:    s.Relay.STTAttempts,
		STTBackoff:     s.Relay.STTBackoff,
		SynthesisRate:  s.Relay.SynthesisRate,
		SynthesisBurst: s.Relay.SynthesisBurst,
	}
}

// HistoryPath is where the conversation is saved.
func (s Settings) HistoryPath() string {
	return filepath.Join(s.StateDir, "history.json.zst")
}
