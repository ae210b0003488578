package synth

import (
	"context"
	"errors"
	"io"

	"github.com/charmbracelet/log"

	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/cache"
)

// SegmentStore is the part of the cache the decorator needs.
type SegmentStore interface {
	Get(key string) ([]byte, bool)
	Put(key string, value []byte) error
}

// Cached stores each synthesized paragraph so replays skip the engine.
type Cached struct {
	inner  Synthesizer
	store  SegmentStore
	voice  string
	speed  float64
	logger *log.Logger
}

// NewCached wraps inner. voice and speed are part of every cache key.
func NewCached(inner Synthesizer, store SegmentStore, voice string, speed float64, logger *log.Logger) *Cached {
	if logger == nil {
		logger = log.Default()
	}
	return &Cached{
		inner:  inner,
		store:  store,
		voice:  voice,
		speed:  speed,
		logger: logger.WithPrefix("synth"),
	}
}

func (c *Cached) Name() string    { return c.inner.Name() }
func (c *Cached) SampleRate() int { return c.inner.SampleRate() }

// Synthesize implements Synthesizer.
func (c *Cached) Synthesize(_ context.Context, text string) (Stream, error) {
	return newParagraphStream(text, c.paragraph), nil
}

func (c *Cached) paragraph(ctx context.Context, p string) ([]float32, error) {
	key := cache.Key{Engine: c.inner.Name(), Voice: c.voice, Speed: c.speed, Text: p}.String()

	if data, ok := c.store.Get(key); ok {
		c.logger.Debug("Cache hit", "key", key, "bytes", len(data))
		return audio.DecodeFloat32LE(data), nil
	}

	samples, err := c.render(ctx, p)
	if err != nil {
		return nil, err
	}
	if err := c.store.Put(key, audio.EncodeFloat32LE(nil, samples)); err != nil {
		c.logger.Warn("Failed to cache segment", "key", key, "err", err)
	}
	return samples, nil
}

// render collects every segment the inner engine yields for one paragraph.
func (c *Cached) render(ctx context.Context, p string) ([]float32, error) {
	stream, err := c.inner.Synthesize(ctx, p)
	if err != nil {
		return nil, err
	}
	defer stream.Close()

	var samples []float32
	for {
		seg, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return samples, nil
		}
		if err != nil {
			return nil, err
		}
		samples = append(samples, seg...)
	}
}
