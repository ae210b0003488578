// Package server exposes the narration queue over a small local HTTP API.
package server

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"time"

	"github.com/charmbracelet/log"
	"golang.org/x/time/rate"

	"github.com/dgnsrekt/narrator/internal/playback"
)

// Defaults for Config.
const (
	DefaultHost          = "127.0.0.1"
	DefaultPort          = 8765
	DefaultRateLimit     = 20
	DefaultBurst         = 40
	DefaultMaxTextLength = 100_000
)

// maxBodyBytes caps request bodies independently of the text limit.
const maxBodyBytes = 4 << 20

// Queue is the request queue the handlers drive.
type Queue interface {
	Speak(text string) error
	Enqueue(text string) error
	Stop()
	Size() int
}

// Player exposes the playback readback used by /status.
type Player interface {
	State() playback.State
	Offset() time.Duration
}

// Config holds the HTTP server settings.
type Config struct {
	Host string
	Port int

	// RateLimit is the sustained requests per second; zero disables limiting.
	RateLimit float64
	Burst     int

	// MaxTextLength bounds the text field in runes; zero disables the check.
	MaxTextLength int
}

// DefaultConfig returns the default server settings.
func DefaultConfig() Config {
	return Config{
		Host:          DefaultHost,
		Port:          DefaultPort,
		RateLimit:     DefaultRateLimit,
		Burst:         DefaultBurst,
		MaxTextLength: DefaultMaxTextLength,
	}
}

// Addr returns the host:port listen address.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Host, strconv.Itoa(c.Port))
}

// Validate checks the settings.
func (c Config) Validate() error {
	var errs []error
	if c.Port < 0 || c.Port > 65535 {
		errs = append(errs, fmt.Errorf("port %d out of range", c.Port))
	}
	if c.RateLimit < 0 {
		errs = append(errs, errors.New("rate limit must not be negative"))
	}
	if c.RateLimit > 0 && c.Burst < 1 {
		errs = append(errs, errors.New("burst must be at least 1 when rate limiting"))
	}
	if c.MaxTextLength < 0 {
		errs = append(errs, errors.New("max text length must not be negative"))
	}
	return errors.Join(errs...)
}

// Option configures a Server.
type Option func(*Server)

// WithLogger sets the server logger.
func WithLogger(l *log.Logger) Option {
	return func(s *Server) {
		if l != nil {
			s.logger = l
		}
	}
}

// WithPlayer enables /status readback from p.
func WithPlayer(p Player) Option {
	return func(s *Server) { s.player = p }
}

// WithMetricsHandler serves h at /metrics.
func WithMetricsHandler(h http.Handler) Option {
	return func(s *Server) { s.metrics = h }
}

// Server is the local HTTP control surface.
type Server struct {
	cfg     Config
	queue   Queue
	player  Player
	metrics http.Handler
	limiter *rate.Limiter
	logger  *log.Logger
	server  *http.Server
}

// New creates a server driving q.
func New(cfg Config, q Queue, opts ...Option) *Server {
	s := &Server{
		cfg:    cfg,
		queue:  q,
		logger: log.Default(),
	}
	for _, opt := range opts {
		opt(s)
	}
	s.logger = s.logger.WithPrefix("http")
	if cfg.RateLimit > 0 {
		s.limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), cfg.Burst)
	}

	s.server = &http.Server{
		Addr:         cfg.Addr(),
		Handler:      s.Handler(),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	return s
}

// Handler returns the full handler chain.
func (s *Server) Handler() http.Handler {
	return s.withLogging(s.withCORS(s.withRateLimit(http.HandlerFunc(s.route))))
}

// Start listens on the configured address and serves until Shutdown.
func (s *Server) Start() error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.server.Addr, err)
	}
	return s.Serve(ln)
}

// Serve serves on ln until Shutdown.
func (s *Server) Serve(ln net.Listener) error {
	s.logger.Info("Listening", "addr", ln.Addr().String())
	if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("http server error: %w", err)
	}
	return nil
}

// Shutdown gracefully stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("Shutting down")
	return s.server.Shutdown(ctx)
}
