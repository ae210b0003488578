package synth

import (
	"bufio"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os/exec"
	"sync"

	"github.com/charmbracelet/log"
	"github.com/mattn/go-shellwords"

	"github.com/dgnsrekt/narrator/internal/audio"
)

// ExecConfig configures the exec engine.
type ExecConfig struct {
	Command    string
	Voice      string
	Speed      float64
	SampleRate int
}

// Exec drives an external synthesizer process. The process receives one JSON
// request on stdin and answers with JSON lines, each carrying base64 16-bit
// PCM for one segment.
type Exec struct {
	argv       []string
	voice      string
	speed      float64
	sampleRate int
	logger     *log.Logger
}

type execRequest struct {
	Text       string  `json:"text"`
	Voice      string  `json:"voice"`
	SampleRate int     `json:"sample_rate"`
	Speed      float64 `json:"speed"`
}

type execResponse struct {
	PCMBase64 string `json:"pcm_base64"`
	Final     bool   `json:"final"`
	Error     string `json:"error"`
}

// NewExec parses the command line with shell quoting rules.
func NewExec(cfg ExecConfig, logger *log.Logger) (*Exec, error) {
	if logger == nil {
		logger = log.Default()
	}
	args, err := shellwords.NewParser().Parse(cfg.Command)
	if err != nil {
		return nil, &Error{Engine: "exec", Op: "configure", Err: fmt.Errorf("parse command: %w", err)}
	}
	if len(args) == 0 {
		return nil, &Error{Engine: "exec", Op: "configure", Err: errors.New("command is empty")}
	}
	rate := cfg.SampleRate
	if rate <= 0 {
		rate = audio.DefaultSampleRate
	}
	speed := cfg.Speed
	if speed <= 0 {
		speed = 1
	}
	return &Exec{
		argv:       args,
		voice:      cfg.Voice,
		speed:      speed,
		sampleRate: rate,
		logger:     logger.WithPrefix("exec"),
	}, nil
}

func (e *Exec) Name() string    { return "exec" }
func (e *Exec) SampleRate() int { return e.sampleRate }

// Synthesize starts the process and returns a stream reading its output.
func (e *Exec) Synthesize(ctx context.Context, text string) (Stream, error) {
	payload, err := json.Marshal(execRequest{
		Text:       text,
		Voice:      e.voice,
		SampleRate: e.sampleRate,
		Speed:      e.speed,
	})
	if err != nil {
		return nil, &Error{Engine: "exec", Op: "encode", Err: err}
	}

	ctx, cancel := context.WithCancel(ctx)
	cmd := exec.CommandContext(ctx, e.argv[0], e.argv[1:]...)
	stdin, err := cmd.StdinPipe()
	if err != nil {
		cancel()
		return nil, &Error{Engine: "exec", Op: "start", Err: err}
	}
	stdout, err := cmd.StdoutPipe()
	if err != nil {
		cancel()
		return nil, &Error{Engine: "exec", Op: "start", Err: err}
	}
	if err := cmd.Start(); err != nil {
		cancel()
		return nil, &Error{Engine: "exec", Op: "start", Err: err}
	}

	writeErr := func() error {
		defer stdin.Close()
		_, err := stdin.Write(append(payload, '\n'))
		return err
	}()
	if writeErr != nil {
		cancel()
		_ = cmd.Wait()
		return nil, &Error{Engine: "exec", Op: "write request", Err: writeErr}
	}

	scanner := bufio.NewScanner(stdout)
	scanner.Buffer(make([]byte, 64*1024), 16*1024*1024)

	e.logger.Debug("Started synthesizer process", "command", e.argv[0], "chars", len(text))
	return &execStream{cmd: cmd, cancel: cancel, scanner: scanner}, nil
}

type execStream struct {
	cmd     *exec.Cmd
	cancel  context.CancelFunc
	scanner *bufio.Scanner
	done    bool

	closeOnce sync.Once
	closeErr  error
}

func (s *execStream) Next(ctx context.Context) ([]float32, error) {
	if s.done {
		return nil, io.EOF
	}
	// Scanning blocks on the process; cancellation kills it.
	stop := context.AfterFunc(ctx, s.cancel)
	defer stop()

	for s.scanner.Scan() {
		line := s.scanner.Bytes()
		if len(line) == 0 {
			continue
		}
		var resp execResponse
		if err := json.Unmarshal(line, &resp); err != nil {
			return nil, s.fail("decode response", err)
		}
		if resp.Error != "" {
			return nil, s.fail("synthesize", errors.New(resp.Error))
		}
		pcm, err := base64.StdEncoding.DecodeString(resp.PCMBase64)
		if err != nil {
			return nil, s.fail("decode audio", err)
		}
		if resp.Final {
			s.done = true
		}
		if len(pcm) == 0 && s.done {
			return nil, io.EOF
		}
		return audio.DecodePCM16LE(pcm), nil
	}

	s.done = true
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if err := s.scanner.Err(); err != nil {
		return nil, s.fail("read output", err)
	}
	if err := s.wait(); err != nil {
		return nil, &Error{Engine: "exec", Op: "run", Err: err}
	}
	return nil, io.EOF
}

func (s *execStream) fail(op string, err error) error {
	s.done = true
	s.cancel()
	return &Error{Engine: "exec", Op: op, Err: err}
}

func (s *execStream) wait() error {
	s.closeOnce.Do(func() {
		s.closeErr = s.cmd.Wait()
		s.cancel()
	})
	return s.closeErr
}

// Close terminates the process if it is still running.
func (s *execStream) Close() error {
	s.done = true
	s.cancel()
	_ = s.wait()
	return nil
}
