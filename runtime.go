package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/cache"
	"github.com/dgnsrekt/narrator/internal/config"
	"github.com/dgnsrekt/narrator/internal/playback"
	"github.com/dgnsrekt/narrator/internal/synth"
	"github.com/dgnsrekt/narrator/internal/telemetry"
)

// runtime is the synthesizer, cache, engine and telemetry wired from cfg.
type runtime struct {
	cfg       config.Config
	cache     *cache.Manager
	synth     synth.Synthesizer
	engine    *playback.Engine
	telemetry *telemetry.Provider
}

func newRuntime(ctx context.Context, cfg config.Config) (*runtime, error) {
	rt := &runtime{cfg: cfg}

	var store synth.SegmentStore
	if cfg.Cache.Enabled {
		m, err := cache.NewManager(cfg.CacheConfig(), log.Default())
		if err != nil {
			// A broken cache only costs re-synthesis.
			log.Warn("Segment cache disabled", "dir", cfg.Cache.Dir, "err", err)
		} else {
			rt.cache = m
			store = m
		}
	}

	s, err := synth.New(cfg.SynthConfig(), store, log.Default())
	if err != nil {
		_ = rt.Close(ctx)
		return nil, err
	}
	rt.synth = s

	opts := []playback.Option{playback.WithLogger(log.Default())}
	if cfg.Telemetry.Enabled {
		p, err := telemetry.Setup(ctx, Version, log.Default())
		if err != nil {
			_ = rt.Close(ctx)
			return nil, fmt.Errorf("unable to set up telemetry: %w", err)
		}
		rt.telemetry = p
		opts = append(opts, playback.WithMetrics(p.Recorder()))
	}

	rt.engine = playback.New(s, rt.opener(), cfg.PlaybackConfig(), opts...)
	log.Info("Engine ready",
		"engine", s.Name(),
		"sample_rate", rt.engine.SampleRate(),
		"mock_audio", cfg.Audio.Mock,
		"cache", rt.cache != nil,
	)
	return rt, nil
}

// opener returns the audio device, or a sink that consumes blocks in real
// time when audio is mocked.
func (rt *runtime) opener() audio.Opener {
	if !rt.cfg.Audio.Mock {
		return audio.DeviceOpener{}
	}
	rate := rt.synth.SampleRate()
	if rate <= 0 {
		rate = rt.cfg.Audio.SampleRate
	}
	perBlock := time.Duration(rt.cfg.Audio.BlockSize) * time.Second / time.Duration(rate)
	return audio.OpenerFunc(func(c audio.SinkConfig) (audio.Sink, error) {
		if err := c.Validate(); err != nil {
			return nil, err
		}
		// A fresh sink per request keeps memory bounded to one request.
		return audio.NewMockSink(perBlock), nil
	})
}

func (rt *runtime) Close(ctx context.Context) error {
	var errs []error
	if rt.engine != nil {
		rt.engine.Close()
	}
	if rt.telemetry != nil {
		errs = append(errs, rt.telemetry.Shutdown(ctx))
	}
	if rt.cache != nil {
		errs = append(errs, rt.cache.Close())
	}
	return errors.Join(errs...)
}
