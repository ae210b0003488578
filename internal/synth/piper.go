package synth

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/log"
	"github.com/mitchellh/go-homedir"

	"github.com/dgnsrekt/narrator/internal/audio"
)

const defaultPiperRate = 22050

// PiperConfig configures the piper engine.
type PiperConfig struct {
	Binary  string
	Model   string
	Config  string // defaults to <model>.onnx.json or <model>.json
	Speaker string
	Speed   float64
	Timeout time.Duration // per paragraph
}

// Piper runs one piper process per paragraph with its stdin pre-loaded, so
// the process never races the writer for input.
type Piper struct {
	binary     string
	model      string
	config     string
	speaker    string
	speed      float64
	timeout    time.Duration
	sampleRate int
	logger     *log.Logger
}

// NewPiper validates cfg and reads the sample rate from the voice config.
func NewPiper(cfg PiperConfig, logger *log.Logger) (*Piper, error) {
	if logger == nil {
		logger = log.Default()
	}
	if cfg.Model == "" {
		return nil, &Error{Engine: "piper", Op: "configure", Err: errors.New("model path is required")}
	}

	model, err := homedir.Expand(cfg.Model)
	if err != nil {
		return nil, &Error{Engine: "piper", Op: "configure", Err: err}
	}
	if _, err := os.Stat(model); err != nil {
		return nil, &Error{Engine: "piper", Op: "configure", Err: fmt.Errorf("%w: model not found: %v", ErrEngineUnavailable, err)}
	}

	voiceCfg := cfg.Config
	if voiceCfg == "" {
		voiceCfg = strings.TrimSuffix(model, filepath.Ext(model)) + ".onnx.json"
		if _, err := os.Stat(voiceCfg); err != nil {
			voiceCfg = strings.TrimSuffix(model, filepath.Ext(model)) + ".json"
		}
	}
	if voiceCfg, err = homedir.Expand(voiceCfg); err != nil {
		return nil, &Error{Engine: "piper", Op: "configure", Err: err}
	}
	if _, err := os.Stat(voiceCfg); err != nil {
		logger.Debug("Piper voice config not found, letting piper locate it", "path", voiceCfg)
		voiceCfg = ""
	}

	binary := cfg.Binary
	if binary == "" {
		binary = "piper"
	}
	if binary, err = homedir.Expand(binary); err != nil {
		return nil, &Error{Engine: "piper", Op: "configure", Err: err}
	}
	if _, err := exec.LookPath(binary); err != nil {
		return nil, &Error{Engine: "piper", Op: "configure", Err: fmt.Errorf("%w: %v", ErrEngineUnavailable, err)}
	}

	speed := cfg.Speed
	if speed <= 0 {
		speed = 1
	}
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 30 * time.Second
	}

	return &Piper{
		binary:     binary,
		model:      model,
		config:     voiceCfg,
		speaker:    cfg.Speaker,
		speed:      speed,
		timeout:    timeout,
		sampleRate: readPiperSampleRate(voiceCfg),
		logger:     logger.WithPrefix("piper"),
	}, nil
}

// readPiperSampleRate reads audio.sample_rate from a piper voice config.
func readPiperSampleRate(path string) int {
	data, err := os.ReadFile(path)
	if err != nil {
		return defaultPiperRate
	}
	var voice struct {
		Audio struct {
			SampleRate int `json:"sample_rate"`
		} `json:"audio"`
	}
	if err := json.Unmarshal(data, &voice); err != nil || voice.Audio.SampleRate <= 0 {
		return defaultPiperRate
	}
	return voice.Audio.SampleRate
}

func (p *Piper) Name() string    { return "piper" }
func (p *Piper) SampleRate() int { return p.sampleRate }

// Synthesize implements Synthesizer.
func (p *Piper) Synthesize(_ context.Context, text string) (Stream, error) {
	return newParagraphStream(text, p.render), nil
}

func (p *Piper) args() []string {
	// length-scale is the inverse of speed: 2.0 plays twice as fast.
	args := []string{
		"--model", p.model,
		"--output-raw",
		"--length-scale", strconv.FormatFloat(1/p.speed, 'f', 2, 64),
	}
	if p.config != "" {
		args = append(args, "--config", p.config)
	}
	if p.speaker != "" {
		args = append(args, "--speaker", p.speaker)
	}
	return args
}

func (p *Piper) render(ctx context.Context, paragraph string) ([]float32, error) {
	ctx, cancel := context.WithTimeout(ctx, p.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, p.binary, p.args()...)
	cmd.Stdin = strings.NewReader(paragraph)
	// Interrupt first so piper can exit cleanly; kill if it lingers.
	cmd.Cancel = func() error { return cmd.Process.Signal(os.Interrupt) }
	cmd.WaitDelay = 100 * time.Millisecond

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	start := time.Now()
	if err := cmd.Run(); err != nil {
		if ctx.Err() != nil {
			return nil, &Error{Engine: "piper", Op: "synthesize", Err: ctx.Err()}
		}
		return nil, &Error{Engine: "piper", Op: "synthesize", Err: fmt.Errorf("%w, stderr: %s", err, strings.TrimSpace(stderr.String()))}
	}
	if stdout.Len() == 0 {
		return nil, &Error{Engine: "piper", Op: "synthesize", Err: fmt.Errorf("no audio produced, stderr: %s", strings.TrimSpace(stderr.String()))}
	}

	p.logger.Debug("Synthesized paragraph",
		"chars", len(paragraph),
		"bytes", stdout.Len(),
		"took", time.Since(start))

	return audio.DecodePCM16LE(stdout.Bytes()), nil
}
