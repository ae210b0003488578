// Package config defines narrator's settings, their defaults and how they
// map onto the components.
package config

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/internal/highlight"
	"github.com/dgnsrekt/narrator/internal/playback"
	"github.com/dgnsrekt/narrator/internal/queue"
	"github.com/dgnsrekt/narrator/internal/server"
	"github.com/dgnsrekt/narrator/internal/synth"
)

// Config is the full set of settings read from narrator.yml.
type Config struct {
	Audio     AudioConfig     `mapstructure:"audio" yaml:"audio"`
	Synth     SynthConfig     `mapstructure:"synth" yaml:"synth"`
	Cache     CacheConfig     `mapstructure:"cache" yaml:"cache"`
	Server    ServerConfig    `mapstructure:"server" yaml:"server"`
	Queue     QueueConfig     `mapstructure:"queue" yaml:"queue"`
	State     StateConfig     `mapstructure:"state" yaml:"state"`
	Telemetry TelemetryConfig `mapstructure:"telemetry" yaml:"telemetry"`
	Reader    ReaderConfig    `mapstructure:"reader" yaml:"reader"`
}

// AudioConfig holds output settings.
type AudioConfig struct {
	SampleRate     int     `mapstructure:"sample_rate" yaml:"sample_rate"`
	BlockSize      int     `mapstructure:"block_size" yaml:"block_size"`
	BufferSegments int     `mapstructure:"buffer_segments" yaml:"buffer_segments"`
	Volume         float64 `mapstructure:"volume" yaml:"volume"`
	// Mock plays into an in-memory sink instead of the audio device.
	Mock bool `mapstructure:"mock" yaml:"mock"`
}

// SynthConfig selects the speech engine.
type SynthConfig struct {
	Engine  string        `mapstructure:"engine" yaml:"engine"`
	Voice   string        `mapstructure:"voice" yaml:"voice"`
	Speed   float64       `mapstructure:"speed" yaml:"speed"`
	Timeout time.Duration `mapstructure:"timeout" yaml:"timeout"`
	Piper   PiperConfig   `mapstructure:"piper" yaml:"piper"`
	Exec    ExecConfig    `mapstructure:"exec" yaml:"exec"`
	Tone    ToneConfig    `mapstructure:"tone" yaml:"tone"`
}

type PiperConfig struct {
	Binary  string `mapstructure:"binary" yaml:"binary"`
	Model   string `mapstructure:"model" yaml:"model"`
	Config  string `mapstructure:"config" yaml:"config"`
	Speaker string `mapstructure:"speaker" yaml:"speaker"`
}

type ExecConfig struct {
	Command string `mapstructure:"command" yaml:"command"`
}

type ToneConfig struct {
	Frequency float64 `mapstructure:"frequency" yaml:"frequency"`
	MsPerChar float64 `mapstructure:"ms_per_char" yaml:"ms_per_char"`
}

// CacheConfig controls the synthesized segment cache.
type CacheConfig struct {
	Enabled          bool   `mapstructure:"enabled" yaml:"enabled"`
	Dir              string `mapstructure:"dir" yaml:"dir"`
	MemoryMB         int    `mapstructure:"memory_mb" yaml:"memory_mb"`
	DiskMB           int    `mapstructure:"disk_mb" yaml:"disk_mb"`
	CompressionLevel int    `mapstructure:"compression_level" yaml:"compression_level"`
}

type ServerConfig struct {
	Host          string  `mapstructure:"host" yaml:"host"`
	Port          int     `mapstructure:"port" yaml:"port"`
	RateLimit     float64 `mapstructure:"rate_limit" yaml:"rate_limit"`
	Burst         int     `mapstructure:"burst" yaml:"burst"`
	MaxTextLength int     `mapstructure:"max_text_length" yaml:"max_text_length"`
}

type QueueConfig struct {
	PollInterval time.Duration `mapstructure:"poll_interval" yaml:"poll_interval"`
}

type StateConfig struct {
	Path string `mapstructure:"path" yaml:"path"`
}

type TelemetryConfig struct {
	Enabled bool `mapstructure:"enabled" yaml:"enabled"`
}

// ReaderConfig tunes the terminal reader.
type ReaderConfig struct {
	// MsPerChar drives the sentence highlight estimate at speed 1.
	MsPerChar float64       `mapstructure:"ms_per_char" yaml:"ms_per_char"`
	Refresh   time.Duration `mapstructure:"refresh" yaml:"refresh"`
}

// Default returns the built-in settings. Empty paths are resolved later by
// ResolvePaths.
func Default() Config {
	pb := playback.DefaultConfig()
	srv := server.DefaultConfig()
	return Config{
		Audio: AudioConfig{
			SampleRate:     pb.SampleRate,
			BlockSize:      pb.BlockSize,
			BufferSegments: pb.BufferSegments,
			Volume:         pb.Volume,
		},
		Synth: SynthConfig{
			Engine:  synth.EnginePiper,
			Speed:   1.0,
			Timeout: 30 * time.Second,
			Piper: PiperConfig{
				Binary: "piper",
				Model:  "~/.local/share/piper/en_US-lessac-medium.onnx",
			},
			Tone: ToneConfig{
				Frequency: 440,
				MsPerChar: highlight.DefaultMsPerChar,
			},
		},
		Cache: CacheConfig{
			Enabled:          true,
			MemoryMB:         64,
			DiskMB:           512,
			CompressionLevel: 3,
		},
		Server: ServerConfig{
			Host:          srv.Host,
			Port:          srv.Port,
			RateLimit:     srv.RateLimit,
			Burst:         srv.Burst,
			MaxTextLength: srv.MaxTextLength,
		},
		Queue:  QueueConfig{PollInterval: queue.DefaultPollInterval},
		Reader: ReaderConfig{MsPerChar: highlight.DefaultMsPerChar, Refresh: 100 * time.Millisecond},
	}
}

// Validate checks every setting and reports all problems at once.
func (c Config) Validate() error {
	var errs []error
	check := func(ok bool, format string, args ...any) {
		if !ok {
			errs = append(errs, fmt.Errorf(format, args...))
		}
	}

	sinkCfg := audio.SinkConfig{SampleRate: c.Audio.SampleRate, BlockSize: c.Audio.BlockSize}
	if err := sinkCfg.Validate(); err != nil {
		errs = append(errs, fmt.Errorf("audio: %w", err))
	}
	check(c.Audio.BufferSegments >= 1, "audio.buffer_segments must be at least 1, got %d", c.Audio.BufferSegments)
	check(c.Audio.Volume >= 0 && c.Audio.Volume <= 2, "audio.volume must be between 0.0 and 2.0, got %.2f", c.Audio.Volume)

	engine := strings.ToLower(strings.TrimSpace(c.Synth.Engine))
	check(slices.Contains(synth.Engines, engine), "synth.engine must be one of %s, got %q", strings.Join(synth.Engines, ", "), c.Synth.Engine)
	check(c.Synth.Speed >= 0.1 && c.Synth.Speed <= 3.0, "synth.speed must be between 0.1 and 3.0, got %.2f", c.Synth.Speed)
	check(c.Synth.Timeout > 0, "synth.timeout must be positive, got %s", c.Synth.Timeout)
	if engine == synth.EngineExec {
		check(strings.TrimSpace(c.Synth.Exec.Command) != "", "synth.exec.command is required for the exec engine")
	}
	if engine == synth.EnginePiper {
		check(c.Synth.Piper.Model != "", "synth.piper.model is required for the piper engine")
	}
	check(c.Synth.Tone.Frequency > 0, "synth.tone.frequency must be positive")
	check(c.Synth.Tone.MsPerChar > 0, "synth.tone.ms_per_char must be positive")

	if c.Cache.Enabled {
		check(c.Cache.MemoryMB >= 1 && c.Cache.MemoryMB <= 10000, "cache.memory_mb must be between 1 and 10000, got %d", c.Cache.MemoryMB)
		check(c.Cache.DiskMB >= 1 && c.Cache.DiskMB <= 100000, "cache.disk_mb must be between 1 and 100000, got %d", c.Cache.DiskMB)
		check(c.Cache.CompressionLevel >= 0 && c.Cache.CompressionLevel <= 22, "cache.compression_level must be between 0 and 22, got %d", c.Cache.CompressionLevel)
	}

	if err := c.ServerConfig().Validate(); err != nil {
		errs = append(errs, fmt.Errorf("server: %w", err))
	}
	check(c.Queue.PollInterval > 0, "queue.poll_interval must be positive, got %s", c.Queue.PollInterval)
	check(c.Reader.MsPerChar > 0, "reader.ms_per_char must be positive")
	check(c.Reader.Refresh > 0, "reader.refresh must be positive, got %s", c.Reader.Refresh)

	return errors.Join(errs...)
}

// PlaybackConfig maps the audio section onto the engine configuration.
func (c Config) PlaybackConfig() playback.Config {
	return playback.Config{
		SampleRate:     c.Audio.SampleRate,
		BlockSize:      c.Audio.BlockSize,
		BufferSegments: c.Audio.BufferSegments,
		Volume:         c.Audio.Volume,
	}
}

// SynthConfig maps the synth section onto the engine registry.
func (c Config) SynthConfig() synth.Config {
	return synth.Config{
		Engine:     c.Synth.Engine,
		Voice:      c.Synth.Voice,
		Speed:      c.Synth.Speed,
		Timeout:    c.Synth.Timeout,
		SampleRate: c.Audio.SampleRate,
		Piper: synth.PiperConfig{
			Binary:  c.Synth.Piper.Binary,
			Model:   c.Synth.Piper.Model,
			Config:  c.Synth.Piper.Config,
			Speaker: c.Synth.Piper.Speaker,
		},
		Exec: synth.ExecConfig{Command: c.Synth.Exec.Command},
		Tone: synth.ToneConfig{
			Frequency: c.Synth.Tone.Frequency,
			MsPerChar: c.Synth.Tone.MsPerChar,
		},
	}
}

// CacheConfig maps the cache section onto the cache manager configuration.
func (c Config) CacheConfig() cache.Config {
	cc := cache.DefaultConfig()
	cc.MemoryCapacity = int64(c.Cache.MemoryMB) << 20
	cc.DiskCapacity = int64(c.Cache.DiskMB) << 20
	cc.Dir = c.Cache.Dir
	cc.CompressionLevel = c.Cache.CompressionLevel
	return cc
}

// ServerConfig maps the server section onto the HTTP server configuration.
func (c Config) ServerConfig() server.Config {
	return server.Config{
		Host:          c.Server.Host,
		Port:          c.Server.Port,
		RateLimit:     c.Server.RateLimit,
		Burst:         c.Server.Burst,
		MaxTextLength: c.Server.MaxTextLength,
	}
}
