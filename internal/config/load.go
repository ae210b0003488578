package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/viper"
)

// FileName is the config file name looked up in ConfigDirs.
const FileName = AppName + ".yml"

// Configure prepares v to read narrator.yml from dirs and NARRATOR_*
// environment overrides, and registers every default.
func Configure(v *viper.Viper, dirs []string) {
	for _, d := range dirs {
		v.AddConfigPath(d)
	}
	v.SetConfigName(AppName)
	v.SetConfigType("yaml")
	v.SetEnvPrefix(AppName)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	SetDefaults(v)
}

// ReadFile reads the config file. An explicit path wins over the search
// dirs; a missing file in the search dirs is not an error.
func ReadFile(v *viper.Viper, path string) error {
	if path != "" {
		v.SetConfigFile(path)
	}
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if path == "" && errors.As(err, &notFound) {
			return nil
		}
		return fmt.Errorf("read config: %w", err)
	}
	return nil
}

// SetDefaults registers Default() on v key by key so that environment
// overrides apply to keys missing from the file.
func SetDefaults(v *viper.Viper) {
	d := Default()

	v.SetDefault("audio.sample_rate", d.Audio.SampleRate)
	v.SetDefault("audio.block_size", d.Audio.BlockSize)
	v.SetDefault("audio.buffer_segments", d.Audio.BufferSegments)
	v.SetDefault("audio.volume", d.Audio.Volume)
	v.SetDefault("audio.mock", d.Audio.Mock)

	v.SetDefault("synth.engine", d.Synth.Engine)
	v.SetDefault("synth.voice", d.Synth.Voice)
	v.SetDefault("synth.speed", d.Synth.Speed)
	v.SetDefault("synth.timeout", d.Synth.Timeout)
	v.SetDefault("synth.piper.binary", d.Synth.Piper.Binary)
	v.SetDefault("synth.piper.model", d.Synth.Piper.Model)
	v.SetDefault("synth.piper.config", d.Synth.Piper.Config)
	v.SetDefault("synth.piper.speaker", d.Synth.Piper.Speaker)
	v.SetDefault("synth.exec.command", d.Synth.Exec.Command)
	v.SetDefault("synth.tone.frequency", d.Synth.Tone.Frequency)
	v.SetDefault("synth.tone.ms_per_char", d.Synth.Tone.MsPerChar)

	v.SetDefault("cache.enabled", d.Cache.Enabled)
	v.SetDefault("cache.dir", d.Cache.Dir)
	v.SetDefault("cache.memory_mb", d.Cache.MemoryMB)
	v.SetDefault("cache.disk_mb", d.Cache.DiskMB)
	v.SetDefault("cache.compression_level", d.Cache.CompressionLevel)

	v.SetDefault("server.host", d.Server.Host)
	v.SetDefault("server.port", d.Server.Port)
	v.SetDefault("server.rate_limit", d.Server.RateLimit)
	v.SetDefault("server.burst", d.Server.Burst)
	v.SetDefault("server.max_text_length", d.Server.MaxTextLength)

	v.SetDefault("queue.poll_interval", d.Queue.PollInterval)
	v.SetDefault("state.path", d.State.Path)
	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)

	v.SetDefault("reader.ms_per_char", d.Reader.MsPerChar)
	v.SetDefault("reader.refresh", d.Reader.Refresh)
}

// Load decodes the effective configuration from v, resolves paths and
// validates the result.
func Load(v *viper.Viper) (Config, error) {
	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.ResolvePaths(); err != nil {
		return Config{}, err
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, fmt.Errorf("invalid configuration: %w", err)
	}
	return cfg, nil
}
