package main

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path"
	"path/filepath"

	"github.com/charmbracelet/x/editor"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
)

const defaultConfig = `# ask the tutor for English translations
translate: true
# log at debug level
debug: false
# write logs here (empty: no log unless debug is set)
logfile: ""
# serve /metrics and /debug/state here, e.g. "localhost:9464"
debug_addr: ""
# keep the conversation between runs
history: true

relay:
  # base URL of the tutor relay
  url: "http://localhost:8787"
  timeout: "30s"
  # transcription attempts for audio the relay could not decode
  stt_attempts: 3
  stt_backoff: "250ms"
  # synthesis requests per second
  synthesis_rate: 4
  synthesis_burst: 4

capture:
  # shorter presses are discarded
  min_hold: "800ms"
  # WAV recording keeps collecting this long after release
  drain_window: "300ms"
  # containers tried in order; WAV is the fallback
  formats: ["audio/mp4", "audio/webm", "audio/ogg"]
  mp4_failures_to_wav: 2
  wav_successes_to_mp4: 3
  sample_rate: 16000

playback:
  inter_item_pause: "200ms"
  # recreate the output device after this many clips (0 disables)
  rotate_every: 20
  sample_rate: 24000

cache:
  # replies kept in memory
  capacity: 20
  # keep synthesized speech on disk as well
  disk: true
  disk_max_bytes: 67108864
  # forget speech not replayed for this long
  max_age: "720h"
  compression_level: 3
`

var configCmd = &cobra.Command{
	Use:     "config",
	Hidden:  false,
	Short:   "Edit the habla config file",
	Long:    paragraph(fmt.Sprintf("\n%s the habla config file. We’ll use EDITOR to determine which editor to use. If the config file doesn't exist, it will be created.", keyword("Edit"))),
	Example: paragraph("habla config\nhabla config --config path/to/config.yml"),
	Args:    cobra.NoArgs,
	RunE: func(*cobra.Command, []string) error {
		if err := ensureConfigFile(); err != nil {
			return err
		}

		c, err := editor.Cmd("habla", configFile)
		if err != nil {
			return fmt.Errorf("unable to set config file: %w", err)
		}
		c.Stdin = os.Stdin
		c.Stdout = os.Stdout
		c.Stderr = os.Stderr
		if err := c.Run(); err != nil {
			return fmt.Errorf("unable to run command: %w", err)
		}

		fmt.Println("Wrote config file to:", configFile)
		return nil
	},
}

func ensureConfigFile() error {
	if configFile == "" {
		configFile = viper.GetViper().ConfigFileUsed()
	}
	if configFile == "" {
		return errors.New("no configuration path")
	}

	if ext := path.Ext(configFile); ext != ".yaml" && ext != ".yml" {
		return fmt.Errorf("'%s' is not a supported configuration type: use '%s' or '%s'", ext, ".yaml", ".yml")
	}

	if _, err := os.Stat(configFile); errors.Is(err, fs.ErrNotExist) {
		// File doesn't exist yet, create all necessary directories and
		// write the default config file
		if err := os.MkdirAll(filepath.Dir(configFile), 0o700); err != nil {
			return fmt.Errorf("unable create directory: %w", err)
		}

		f, err := os.Create(configFile)
		if err != nil {
			return fmt.Errorf("unable to create config file: %w", err)
		}
		defer func() { _ = f.Close() }()

		if _, err := f.WriteString(defaultConfig); err != nil {
			return fmt.Errorf("unable to write config file: %w", err)
		}
	} else if err != nil { // some other error occurred
		return fmt.Errorf("unable to stat config file: %w", err)
	}
	return nil
}
