package queue

import (
	"context"
	"errors"
	"strings"
	"sync"
	"time"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/playback"
)

var (
	// ErrEmptyText is returned for empty or whitespace-only requests.
	ErrEmptyText = errors.New("text is empty")

	// ErrClosed is returned by Enqueue after Shutdown.
	ErrClosed = errors.New("queue is shut down")
)

// DefaultPollInterval is how often the dispatcher re-checks the player when
// no wake-up arrives.
const DefaultPollInterval = 100 * time.Millisecond

// Player is the part of the playback engine the controller drives.
type Player interface {
	Load(text string) error
	Play() error
	Stop()
	State() playback.State
}

// subscriber is implemented by players that publish events; the dispatcher
// uses them to react to completion without waiting for the next poll.
type subscriber interface {
	Subscribe(buffer int) (<-chan playback.Event, func())
}

// Metrics receives queue measurements.
type Metrics interface {
	RequestAccepted(kind string)
	RequestDispatched(wait time.Duration)
	QueueDepth(n int)
}

type nopMetrics struct{}

func (nopMetrics) RequestAccepted(string)          {}
func (nopMetrics) RequestDispatched(time.Duration) {}
func (nopMetrics) QueueDepth(int)                  {}

// Option configures a Controller.
type Option func(*Controller)

// WithPollInterval sets the dispatcher's fallback poll interval.
func WithPollInterval(d time.Duration) Option {
	return func(c *Controller) {
		if d > 0 {
			c.pollInterval = d
		}
	}
}

// WithLogger sets the controller logger.
func WithLogger(l *log.Logger) Option {
	return func(c *Controller) {
		if l != nil {
			c.logger = l
		}
	}
}

// WithMetrics sets the metrics recorder.
func WithMetrics(m Metrics) Option {
	return func(c *Controller) {
		if m != nil {
			c.metrics = m
		}
	}
}

// Controller owns the pending-request FIFO and is the only component that
// starts playback on its player. At most one request plays at a time and the
// playing request is never also pending.
type Controller struct {
	player       Player
	pollInterval time.Duration
	logger       *log.Logger
	metrics      Metrics

	mu      sync.Mutex
	pending []Item
	closed  bool

	wake      chan struct{}
	stop      chan struct{}
	done      chan struct{}
	startOnce sync.Once
	stopOnce  sync.Once
}

// New creates a controller for player. Call Start to run the dispatcher.
func New(player Player, opts ...Option) *Controller {
	c := &Controller{
		player:       player,
		pollInterval: DefaultPollInterval,
		logger:       log.Default(),
		metrics:      nopMetrics{},
		wake:         make(chan struct{}, 1),
		stop:         make(chan struct{}),
		done:         make(chan struct{}),
	}
	for _, opt := range opts {
		opt(c)
	}
	c.logger = c.logger.WithPrefix("queue")
	return c
}

// Speak drops every pending request, interrupts the current one and plays
// text immediately.
func (c *Controller) Speak(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	cleared := len(c.pending)
	c.pending = nil
	if err := c.player.Load(text); err != nil {
		return err
	}
	if err := c.player.Play(); err != nil {
		return err
	}

	c.logger.Info("Speaking", "chars", len(text), "cleared", cleared)
	c.metrics.RequestAccepted("speak")
	c.metrics.QueueDepth(0)
	return nil
}

// Enqueue appends text to the pending requests.
func (c *Controller) Enqueue(text string) error {
	text = strings.TrimSpace(text)
	if text == "" {
		return ErrEmptyText
	}

	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrClosed
	}
	item := newItem(text)
	c.pending = append(c.pending, item)
	depth := len(c.pending)
	c.mu.Unlock()

	c.logger.Debug("Request enqueued", "id", item.ID, "queue_size", depth)
	c.metrics.RequestAccepted("enqueue")
	c.metrics.QueueDepth(depth)
	c.signal()
	return nil
}

// Stop drops every pending request and stops the player.
func (c *Controller) Stop() {
	c.mu.Lock()
	defer c.mu.Unlock()

	cleared := len(c.pending)
	c.pending = nil
	c.player.Stop()

	c.logger.Info("Stopped", "cleared", cleared)
	c.metrics.QueueDepth(0)
}

// Size returns the number of pending requests.
func (c *Controller) Size() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.pending)
}

// Items returns a snapshot of the pending requests in play order.
func (c *Controller) Items() []Item {
	c.mu.Lock()
	defer c.mu.Unlock()
	return append([]Item(nil), c.pending...)
}

// Start launches the dispatcher. Calling it more than once has no effect.
func (c *Controller) Start() {
	c.startOnce.Do(func() {
		go c.dispatch()
	})
}

// Shutdown stops the dispatcher and waits for it to exit or ctx to end.
// Playback in progress is left alone.
func (c *Controller) Shutdown(ctx context.Context) error {
	c.mu.Lock()
	c.closed = true
	c.mu.Unlock()

	c.stopOnce.Do(func() { close(c.stop) })
	// A controller that was never started has no dispatcher to wait for.
	c.startOnce.Do(func() { close(c.done) })

	select {
	case <-c.done:
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (c *Controller) signal() {
	select {
	case c.wake <- struct{}{}:
	default:
	}
}

func (c *Controller) dispatch() {
	defer close(c.done)

	var events <-chan playback.Event
	if s, ok := c.player.(subscriber); ok {
		ch, cancel := s.Subscribe(8)
		defer cancel()
		events = ch
	}

	ticker := time.NewTicker(c.pollInterval)
	defer ticker.Stop()

	for {
		c.next()

		select {
		case <-c.stop:
			return
		case <-c.wake:
		case <-ticker.C:
		case _, ok := <-events:
			if !ok {
				events = nil
			}
		}
	}
}

// next starts the oldest pending request if the player is idle.
func (c *Controller) next() {
	c.mu.Lock()
	defer c.mu.Unlock()

	if len(c.pending) == 0 || c.player.State().Active() {
		return
	}

	item := c.pending[0]
	c.pending[0] = Item{}
	c.pending = c.pending[1:]

	if err := c.player.Load(item.Text); err != nil {
		c.logger.Error("Failed to load queued request", "id", item.ID, "err", err)
		return
	}
	if err := c.player.Play(); err != nil {
		c.logger.Error("Failed to play queued request", "id", item.ID, "err", err)
		return
	}

	c.logger.Debug("Dispatched request", "id", item.ID, "waited", item.Wait(), "remaining", len(c.pending))
	c.metrics.RequestDispatched(item.Wait())
	c.metrics.QueueDepth(len(c.pending))
}
