package config

import (
	"os"
	"path/filepath"
	"strings"

	"github.com/charmbracelet/log"
	"github.com/fsnotify/fsnotify"
	gap "github.com/muesli/go-app-paths"
	"github.com/spf13/viper"
)

// ConfigDirs returns the directories searched for habla.yml, most
// specific first.
func ConfigDirs() ([]string, error) {
	scope := gap.NewScope(gap.User, AppName)
	dirs, err := scope.ConfigDirs()
	if err != nil {
		return nil, err
	}
	if c := os.Getenv("XDG_CONFIG_HOME"); c != "" {
		dirs = append([]string{filepath.Join(c, AppName)}, dirs...)
	}
	if c := os.Getenv("HABLA_CONFIG_HOME"); c != "" {
		dirs = append([]string{c}, dirs...)
	}
	return dirs, nil
}

// Init points v at the default config locations and the HABLA_ env
// prefix, then reads the config file if there is one. It returns the
// path that was read or, when none exists, the path a new file should be
// written to.
func Init(v *viper.Viper, explicit string) (string, error) {
	SetDefaults(v)
	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if explicit != "" {
		v.SetConfigFile(explicit)
		if err := v.ReadInConfig(); err != nil && !os.IsNotExist(err) {
			return explicit, err
		}
		return explicit, nil
	}

	dirs, err := ConfigDirs()
	if err != nil {
		return "", err
	}
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	v.SetConfigName(AppName)
	v.SetConfigType("yaml")

	if err := v.ReadInConfig(); err != nil {
		if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
			return "", err
		}
	}
	if used := v.ConfigFileUsed(); used != "" {
		return used, nil
	}
	return filepath.Join(dirs[0], AppName+".yml"), nil
}

// Watch reloads settings whenever the config file changes and passes
// valid ones to fn. Invalid edits are logged and ignored.
func Watch(v *viper.Viper, logger *log.Logger, fn func(Settings)) {
	v.OnConfigChange(func(e fsnotify.Event) {
		if !e.Has(fsnotify.Write) && !e.Has(fsnotify.Create) {
			return
		}
		s, err := Load(v)
		if err != nil {
			logger.Warn("ignoring invalid config change", "file", e.Name, "err", err)
			return
		}
		logger.Info("config reloaded", "file", e.Name)
		fn(s)
	})
	v.WatchConfig()
}

func fileExists(p string) bool {
	st, err := os.Stat(p)
	return err == nil && !st.IsDir()
}
