package config

import (
	"fmt"
	"path/filepath"

	"github.com/caarlos0/env/v11"
	"github.com/mitchellh/go-homedir"
	gap "github.com/muesli/go-app-paths"

	"github.com/dgnsrekt/narrator/internal/state"
)

// AppName names the config file, the app directories and the env prefix.
const AppName = "narrator"

// Env holds process-level switches read from the environment.
type Env struct {
	MockAudio     bool   `env:"NARRATOR_MOCK_AUDIO"`
	Debug         bool   `env:"NARRATOR_DEBUG"`
	ConfigHome    string `env:"NARRATOR_CONFIG_HOME"`
	XDGConfigHome string `env:"XDG_CONFIG_HOME"`
}

// ParseEnv reads Env from the process environment.
func ParseEnv() (Env, error) {
	e, err := env.ParseAs[Env]()
	if err != nil {
		return Env{}, fmt.Errorf("error parsing environment: %w", err)
	}
	return e, nil
}

func scope() *gap.Scope {
	return gap.NewScope(gap.User, AppName)
}

// ConfigDirs returns the directories searched for narrator.yml, most
// specific first.
func ConfigDirs(e Env) ([]string, error) {
	dirs, err := scope().ConfigDirs()
	if err != nil {
		return nil, err
	}
	if e.XDGConfigHome != "" {
		dirs = append([]string{filepath.Join(e.XDGConfigHome, AppName)}, dirs...)
	}
	if e.ConfigHome != "" {
		dirs = append([]string{e.ConfigHome}, dirs...)
	}
	return dirs, nil
}

// LogFile returns the path of the log file in the user cache dir.
func LogFile() (string, error) {
	dir, err := scope().CacheDir()
	if err != nil {
		return "", err
	}
	return filepath.Join(dir, AppName+".log"), nil
}

// ResolvePaths fills empty directories with per-user defaults and expands
// a leading ~ everywhere.
func (c *Config) ResolvePaths() error {
	if c.Cache.Dir == "" {
		dir, err := scope().CacheDir()
		if err != nil {
			return fmt.Errorf("locate cache dir: %w", err)
		}
		c.Cache.Dir = filepath.Join(dir, "segments")
	}
	if c.State.Path == "" {
		p, err := scope().DataPath(state.FileName)
		if err != nil {
			return fmt.Errorf("locate data dir: %w", err)
		}
		c.State.Path = p
	}

	for _, p := range []*string{
		&c.Cache.Dir,
		&c.State.Path,
		&c.Synth.Piper.Binary,
		&c.Synth.Piper.Model,
		&c.Synth.Piper.Config,
	} {
		expanded, err := homedir.Expand(*p)
		if err != nil {
			return fmt.Errorf("expand %q: %w", *p, err)
		}
		*p = expanded
	}
	return nil
}
