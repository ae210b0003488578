// Package playback implements the narration engine: it streams synthesized
// segments to an audio sink while tracking a resumable offset, and can be
// paused, resumed or stopped at any block boundary.
package playback

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"
	"github.com/google/uuid"

	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/synth"
)

var (
	// ErrEmptyText is returned by Load for empty or whitespace-only text.
	ErrEmptyText = errors.New("text is empty")

	// ErrNotLoaded is returned by Play when no text is loaded.
	ErrNotLoaded = errors.New("no text loaded")

	// ErrBusy is returned when an operation requires the engine to be idle.
	ErrBusy = errors.New("playback already active")

	// ErrNotPlaying is returned by Pause unless the engine is playing.
	ErrNotPlaying = errors.New("not playing")

	// ErrNotPaused is returned by Resume unless the engine is paused.
	ErrNotPaused = errors.New("not paused")

	// ErrNegativeOffset is returned by SetOffset for offsets below zero.
	ErrNegativeOffset = errors.New("offset must not be negative")
)

// Outcomes reported to Metrics.PlaybackFinished.
const (
	OutcomeCompleted = "completed"
	OutcomeStopped   = "stopped"
	OutcomeError     = "error"
)

// Metrics receives playback measurements.
type Metrics interface {
	PlaybackStarted()
	PlaybackFinished(outcome string)
	SamplesPlayed(n int64)
}

type nopMetrics struct{}

func (nopMetrics) PlaybackStarted()        {}
func (nopMetrics) PlaybackFinished(string) {}
func (nopMetrics) SamplesPlayed(int64)     {}

// Config tunes the engine.
type Config struct {
	// SampleRate is used when the synthesizer does not report its own.
	SampleRate int
	// BlockSize is the number of samples per sink write; pause, resume and
	// stop take effect at block boundaries.
	BlockSize int
	// BufferSegments bounds how far synthesis may run ahead of playback.
	BufferSegments int
	// Volume scales every sample before clamping; 0 mutes.
	Volume float64
}

// DefaultConfig returns the default engine configuration.
func DefaultConfig() Config {
	return Config{
		SampleRate:     audio.DefaultSampleRate,
		BlockSize:      audio.DefaultBlockSize,
		BufferSegments: 4,
		Volume:         1.0,
	}
}

// Validate checks the configuration.
func (c Config) Validate() error {
	var errs []error
	if c.SampleRate <= 0 {
		errs = append(errs, fmt.Errorf("sample rate must be positive, got %d", c.SampleRate))
	}
	if c.BlockSize <= 0 {
		errs = append(errs, fmt.Errorf("block size must be positive, got %d", c.BlockSize))
	}
	if c.BufferSegments <= 0 {
		errs = append(errs, fmt.Errorf("buffer segments must be positive, got %d", c.BufferSegments))
	}
	if c.Volume < 0 {
		errs = append(errs, fmt.Errorf("volume must not be negative, got %v", c.Volume))
	}
	return errors.Join(errs...)
}

// Option configures an Engine.
type Option func(*Engine)

// WithLogger sets the engine logger.
func WithLogger(l *log.Logger) Option {
	return func(e *Engine) {
		if l != nil {
			e.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(e *Engine) {
		if m != nil {
			e.metrics = m
		}
	}
}

// Engine plays one request at a time. All methods are safe for concurrent
// use. The mutex is never held across a channel wait, a sink call or an
// event send.
type Engine struct {
	synth   synth.Synthesizer
	opener  audio.Opener
	cfg     Config
	rate    int
	logger  *log.Logger
	metrics Metrics
	gate    *gate

	mu            sync.Mutex
	state         State
	req           Request
	offsetSamples int64
	offsetMs      int64
	cancel        context.CancelFunc
	done          chan struct{} // closed when the current loop has exited

	subMu   sync.Mutex
	subs    map[int]chan Event
	nextSub int
	closed  bool
}

// New creates an idle engine. Zero numeric fields in cfg take defaults.
func New(s synth.Synthesizer, opener audio.Opener, cfg Config, opts ...Option) *Engine {
	def := DefaultConfig()
	if cfg.SampleRate <= 0 {
		cfg.SampleRate = def.SampleRate
	}
	if cfg.BlockSize <= 0 {
		cfg.BlockSize = def.BlockSize
	}
	if cfg.BufferSegments <= 0 {
		cfg.BufferSegments = def.BufferSegments
	}
	if cfg.Volume < 0 {
		cfg.Volume = 0
	}

	e := &Engine{
		synth:   s,
		opener:  opener,
		cfg:     cfg,
		rate:    cfg.SampleRate,
		logger:  log.Default(),
		metrics: nopMetrics{},
		gate:    newGate(),
		subs:    make(map[int]chan Event),
	}
	if r := s.SampleRate(); r > 0 {
		e.rate = r
	}
	for _, opt := range opts {
		opt(e)
	}
	e.logger = e.logger.WithPrefix("playback")
	return e
}

// SampleRate returns the rate offsets are measured in.
func (e *Engine) SampleRate() int { return e.rate }

// Load stops any current playback and stores text as a new request with a
// zero offset. It does not start audio.
func (e *Engine) Load(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	e.halt()
	ev, changed := e.resetLocked()
	e.req = Request{ID: uuid.NewString(), Text: text}
	id := e.req.ID
	e.mu.Unlock()

	if changed {
		e.publish(ev)
	}
	e.logger.Debug("Loaded text", "request", id, "chars", len(text))
	return nil
}

// SetOffset presets where the next Play starts. Only allowed while idle.
func (e *Engine) SetOffset(d time.Duration) error {
	if d < 0 {
		return ErrNegativeOffset
	}
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.state != StateIdle {
		return ErrBusy
	}
	e.offsetMs = d.Milliseconds()
	e.offsetSamples = audio.MsToSamples(e.offsetMs, e.rate)
	return nil
}

// Play starts playback of the loaded text from the committed offset. It is a
// no-op returning ErrNotLoaded or ErrBusy when there is nothing to play or a
// request is already active.
func (e *Engine) Play() error {
	e.mu.Lock()
	if e.req.Text == "" {
		e.mu.Unlock()
		return ErrNotLoaded
	}
	if e.state != StateIdle {
		e.mu.Unlock()
		return ErrBusy
	}

	start := audio.MsToSamples(e.offsetMs, e.rate)
	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan struct{})
	e.cancel = cancel
	e.done = done
	e.offsetSamples = start
	e.state = StatePlaying
	e.gate.open()
	req := e.req
	ev := e.eventLocked(EventStateChanged, nil)
	e.mu.Unlock()

	e.logger.Debug("Starting playback", "request", req.ID, "offset_ms", ev.Offset.Milliseconds())
	e.metrics.PlaybackStarted()
	e.publish(ev)

	go e.run(ctx, req, start, done)
	return nil
}

// Pause suspends playback at the next block boundary.
func (e *Engine) Pause() error {
	e.mu.Lock()
	if e.state != StatePlaying {
		e.mu.Unlock()
		return ErrNotPlaying
	}
	e.gate.shut()
	e.state = StatePaused
	ev := e.eventLocked(EventStateChanged, nil)
	e.mu.Unlock()

	e.publish(ev)
	return nil
}

// Resume continues a paused request where it stopped.
func (e *Engine) Resume() error {
	e.mu.Lock()
	if e.state != StatePaused {
		e.mu.Unlock()
		return ErrNotPaused
	}
	e.state = StatePlaying
	e.gate.open()
	ev := e.eventLocked(EventStateChanged, nil)
	e.mu.Unlock()

	e.publish(ev)
	return nil
}

// Stop ends any playback, waits for the loop to exit and clears the loaded
// text and offset. It is valid in every state.
func (e *Engine) Stop() {
	e.halt()
	ev, changed := e.resetLocked()
	e.req = Request{}
	e.mu.Unlock()

	if changed {
		e.publish(ev)
	}
}

// halt cancels the playback loop and waits for it to exit. It returns with
// e.mu held and no loop running, so the caller's changes cannot race a Play.
func (e *Engine) halt() {
	for {
		e.mu.Lock()
		cancel, done := e.cancel, e.done
		if done == nil {
			return
		}
		e.mu.Unlock()

		cancel()
		<-done
	}
}

// resetLocked returns the engine to Idle at offset 0. The event reports the
// change and is only worth publishing when changed is true.
func (e *Engine) resetLocked() (Event, bool) {
	prev := e.state
	e.state = StateIdle
	e.offsetSamples = 0
	e.offsetMs = 0
	e.gate.open()
	return e.eventLocked(EventStateChanged, nil), prev != StateIdle
}

// Offset returns the committed offset at millisecond granularity.
func (e *Engine) Offset() time.Duration {
	e.mu.Lock()
	defer e.mu.Unlock()
	return time.Duration(e.offsetMs) * time.Millisecond
}

// OffsetSamples returns the committed offset in samples.
func (e *Engine) OffsetSamples() int64 {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.offsetSamples
}

// State returns the current state.
func (e *Engine) State() State {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.state
}

// Text returns the loaded text, or "" when nothing is loaded.
func (e *Engine) Text() string {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req.Text
}

// Request returns the loaded request.
func (e *Engine) Request() Request {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.req
}

// Subscribe registers for events. Delivery never blocks the engine: when the
// subscriber's buffer is full the event is dropped for that subscriber. The
// returned function unsubscribes and closes the channel.
func (e *Engine) Subscribe(buffer int) (<-chan Event, func()) {
	if buffer < 0 {
		buffer = 0
	}
	ch := make(chan Event, buffer)

	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.closed {
		close(ch)
		return ch, func() {}
	}
	id := e.nextSub
	e.nextSub++
	e.subs[id] = ch

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			e.subMu.Lock()
			defer e.subMu.Unlock()
			if c, ok := e.subs[id]; ok {
				delete(e.subs, id)
				close(c)
			}
		})
	}
}

// Close stops playback and closes every subscription.
func (e *Engine) Close() {
	e.Stop()

	e.subMu.Lock()
	defer e.subMu.Unlock()
	if e.closed {
		return
	}
	e.closed = true
	for id, ch := range e.subs {
		delete(e.subs, id)
		close(ch)
	}
}

func (e *Engine) publish(ev Event) {
	e.subMu.Lock()
	defer e.subMu.Unlock()
	for _, ch := range e.subs {
		select {
		case ch <- ev:
		default:
		}
	}
}

// eventLocked must be called with e.mu held.
func (e *Engine) eventLocked(kind EventKind, err error) Event {
	return Event{
		Kind:      kind,
		State:     e.state,
		RequestID: e.req.ID,
		Offset:    time.Duration(e.offsetMs) * time.Millisecond,
		Err:       err,
		At:        time.Now(),
	}
}

func (e *Engine) advance(n int64) {
	e.mu.Lock()
	e.offsetSamples += n
	e.offsetMs = audio.SamplesToMs(e.offsetSamples, e.rate)
	e.mu.Unlock()
	e.metrics.SamplesPlayed(n)
}

func (e *Engine) run(ctx context.Context, req Request, skip int64, done chan struct{}) {
	defer close(done)
	err := e.stream(ctx, req, skip)
	e.finish(ctx, req, err, done)
}

// finish settles the engine after the loop for req returned err.
func (e *Engine) finish(ctx context.Context, req Request, err error, done chan struct{}) {
	stopped := ctx.Err() != nil

	e.mu.Lock()
	if e.done == done {
		e.cancel()
		e.cancel = nil
		e.done = nil
	}

	// Cancelled by Stop, which resets the engine once the loop has exited.
	if stopped {
		e.mu.Unlock()
		e.metrics.PlaybackFinished(OutcomeStopped)
		e.logger.Debug("Playback stopped", "request", req.ID)
		return
	}

	e.state = StateIdle
	e.offsetSamples = 0
	e.offsetMs = 0
	e.gate.open()
	if err != nil {
		ev := e.eventLocked(EventError, err)
		ev.RequestID = req.ID
		e.mu.Unlock()

		e.logger.Error("Playback failed", "request", req.ID, "err", err)
		e.metrics.PlaybackFinished(OutcomeError)
		e.publish(ev)
		return
	}

	ev := e.eventLocked(EventCompleted, nil)
	ev.RequestID = req.ID
	e.mu.Unlock()

	e.logger.Debug("Playback completed", "request", req.ID)
	e.metrics.PlaybackFinished(OutcomeCompleted)
	e.publish(ev)
}

// stream runs one playback loop: it starts the producer, opens the sink and
// writes blocks until the segments run out, ctx is cancelled or something
// fails. skip is the number of leading samples to drop.
func (e *Engine) stream(ctx context.Context, req Request, skip int64) (err error) {
	stream, err := e.synth.Synthesize(ctx, req.Text)
	if err != nil {
		return fmt.Errorf("start synthesis: %w", err)
	}

	pctx, pcancel := context.WithCancel(ctx)
	segments := make(chan []float32, e.cfg.BufferSegments)
	var (
		wg      sync.WaitGroup
		prodErr error
	)
	wg.Add(1)
	go func() {
		defer wg.Done()
		prodErr = produce(pctx, stream, e.cfg.Volume, segments)
	}()
	defer func() {
		pcancel()
		wg.Wait()
	}()

	sink, err := e.opener.Open(audio.SinkConfig{SampleRate: e.rate, BlockSize: e.cfg.BlockSize})
	if err != nil {
		return fmt.Errorf("open audio sink: %w", err)
	}
	defer func() {
		// A failed or cancelled run must not drain buffered audio.
		if err != nil {
			_ = sink.Stop()
		}
		if cerr := sink.Close(); cerr != nil && err == nil {
			err = fmt.Errorf("close audio sink: %w", cerr)
		}
	}()
	if err := sink.Start(); err != nil {
		return fmt.Errorf("start audio sink: %w", err)
	}

	block := e.cfg.BlockSize
	for {
		var (
			seg []float32
			ok  bool
		)
		select {
		case <-ctx.Done():
			return ctx.Err()
		case seg, ok = <-segments:
		}
		if !ok {
			break
		}

		if n := int64(len(seg)); skip >= n {
			skip -= n
			continue
		}
		seg = seg[skip:]
		skip = 0

		for off := 0; off < len(seg); off += block {
			end := min(off+block, len(seg))
			if err := e.waitGate(ctx, sink); err != nil {
				return err
			}
			if err := sink.Write(ctx, seg[off:end]); err != nil {
				if ctx.Err() != nil {
					return ctx.Err()
				}
				return fmt.Errorf("write audio: %w", err)
			}
			e.advance(int64(end - off))
		}
	}

	wg.Wait()
	if prodErr != nil {
		return fmt.Errorf("synthesis: %w", prodErr)
	}
	return nil
}

// waitGate blocks while the engine is paused, suspending the sink for the
// duration of the pause.
func (e *Engine) waitGate(ctx context.Context, sink audio.Sink) error {
	open := e.gate.wait()
	select {
	case <-open:
		return nil
	default:
	}

	if err := sink.Stop(); err != nil {
		e.logger.Warn("Failed to suspend audio sink", "err", err)
	}
	select {
	case <-open:
	case <-ctx.Done():
		return ctx.Err()
	}
	if err := sink.Start(); err != nil {
		return fmt.Errorf("restart audio sink: %w", err)
	}
	return nil
}
