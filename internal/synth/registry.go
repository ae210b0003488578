package synth

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/log"
)

// Engine names accepted by New.
const (
	EnginePiper = "piper"
	EngineExec  = "exec"
	EngineTone  = "tone"
)

// Engines lists every engine name in a stable order.
var Engines = []string{EnginePiper, EngineExec, EngineTone}

// Config selects and configures an engine.
type Config struct {
	Engine     string
	Voice      string
	Speed      float64
	Timeout    time.Duration
	SampleRate int

	Piper PiperConfig
	Exec  ExecConfig
	Tone  ToneConfig
}

// New builds the configured engine. A non-nil store wraps it with Cached.
func New(cfg Config, store SegmentStore, logger *log.Logger) (Synthesizer, error) {
	if logger == nil {
		logger = log.Default()
	}

	var (
		s   Synthesizer
		err error
	)
	switch strings.ToLower(strings.TrimSpace(cfg.Engine)) {
	case EnginePiper:
		pc := cfg.Piper
		pc.Speed = cfg.Speed
		pc.Timeout = cfg.Timeout
		if pc.Speaker == "" {
			pc.Speaker = cfg.Voice
		}
		s, err = NewPiper(pc, logger)
	case EngineExec:
		ec := cfg.Exec
		ec.Voice = cfg.Voice
		ec.Speed = cfg.Speed
		ec.SampleRate = cfg.SampleRate
		s, err = NewExec(ec, logger)
	case EngineTone:
		tc := cfg.Tone
		tc.Speed = cfg.Speed
		tc.SampleRate = cfg.SampleRate
		s = NewTone(tc)
	default:
		return nil, fmt.Errorf("%w: %q (want one of %s)", ErrUnknownEngine, cfg.Engine, strings.Join(Engines, ", "))
	}
	if err != nil {
		return nil, err
	}

	logger.Debug("Synthesizer ready", "engine", s.Name(), "sample_rate", s.SampleRate())

	if store != nil {
		return NewCached(s, store, cfg.Voice, cfg.Speed, logger), nil
	}
	return s, nil
}
