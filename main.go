// Package main provides the entry point for the habla CLI application.
package main

import (
	"errors"
	"fmt"
	"os"

	"github.com/caarlos0/env/v11"
	"github.com/charmbracelet/log"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"github.com/dgnsrekt/habla/internal/config"
	"github.com/dgnsrekt/habla/ui"
)

var (
	// Version as provided by goreleaser.
	Version = ""
	// CommitSHA as provided by goreleaser.
	CommitSHA = ""

	configFile string
	settings   config.Settings
	closeLog   = func() error { return nil }

	rootCmd = &cobra.Command{
		Use:   "habla",
		Short: "Practice spoken Spanish with a push-to-talk tutor",
		Long: paragraph(
			fmt.Sprintf("\nPractice spoken Spanish with a %s tutor. Press space to talk, press it again to send, and listen to the reply.", keyword("push-to-talk")),
		),
		SilenceErrors:     false,
		SilenceUsage:      true,
		TraverseChildren:  true,
		Args:              cobra.NoArgs,
		PersistentPreRunE: loadSettings,
		RunE:              execute,
	}
)

// loadSettings reads .env files, the config file, the environment and
// flags, in increasing precedence.
func loadSettings(*cobra.Command, []string) error {
	if err := config.LoadDotEnv(".env", "~/.config/habla/.env"); err != nil {
		return fmt.Errorf("unable to read .env: %w", err)
	}

	path, err := config.Init(viper.GetViper(), configFile)
	if err != nil {
		return fmt.Errorf("unable to read config file: %w", err)
	}
	if configFile == "" {
		configFile = path
	}

	s, err := config.Load(viper.GetViper())
	if err != nil {
		return err
	}
	settings = s

	closer, err := setupLog(s)
	if err != nil {
		return err
	}
	closeLog = closer
	if used := viper.ConfigFileUsed(); used != "" {
		log.Debug("Using configuration file", "path", used)
	}
	return nil
}

func execute(*cobra.Command, []string) error {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return errors.New("habla needs an interactive terminal")
	}

	// Read environment to get debugging stuff
	cfg, err := env.ParseAs[ui.Config]()
	if err != nil {
		return fmt.Errorf("error parsing config: %v", err)
	}
	cfg.Translate = settings.Translate

	a, err := newApp(settings)
	if err != nil {
		return err
	}
	defer func() {
		if err := a.Close(); err != nil {
			log.Warn("shutdown", "err", err)
		}
	}()

	if viper.ConfigFileUsed() != "" {
		config.Watch(viper.GetViper(), log.Default().WithPrefix("config"), a.apply)
	}

	if _, err := ui.NewProgram(cfg, a.coord).Run(); err != nil {
		return fmt.Errorf("unable to run tui program: %w", err)
	}
	return nil
}

func main() {
	err := rootCmd.Execute()
	_ = closeLog()
	if err != nil {
		os.Exit(1)
	}
}

func init() {
	if len(CommitSHA) >= 7 {
		vt := rootCmd.VersionTemplate()
		rootCmd.SetVersionTemplate(vt[:len(vt)-1] + " (" + CommitSHA[0:7] + ")\n")
	}
	if Version == "" {
		Version = "unknown (built from source)"
	}
	rootCmd.Version = Version
	rootCmd.InitDefaultCompletionCmd()

	flags := rootCmd.PersistentFlags()
	flags.StringVar(&configFile, "config", "", "config file (default $XDG_CONFIG_HOME/habla/habla.yml)")
	flags.String("relay-url", "", "base URL of the tutor relay")
	flags.Bool("translate", true, "ask the tutor for English translations")
	flags.Bool("debug", false, "log at debug level")
	flags.String("logfile", "", "write logs to this file")
	flags.String("debug-addr", "", "serve metrics and state on this address, e.g. localhost:9464")

	// Config bindings
	_ = viper.BindPFlag("relay.url", flags.Lookup("relay-url"))
	_ = viper.BindPFlag("translate", flags.Lookup("translate"))
	_ = viper.BindPFlag("debug", flags.Lookup("debug"))
	_ = viper.BindPFlag("logfile", flags.Lookup("logfile"))
	_ = viper.BindPFlag("debug_addr", flags.Lookup("debug-addr"))

	rootCmd.AddCommand(configCmd, checkCmd, manCmd)
}
