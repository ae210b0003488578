// Package synth adapts text-to-speech engines to a lazy stream of float32
// audio segments.
package synth

import (
	"context"
	"errors"
	"fmt"
	"io"
	"regexp"
	"strings"
)

var (
	// ErrUnknownEngine is returned by New for an unrecognized engine name.
	ErrUnknownEngine = errors.New("unknown synthesis engine")

	// ErrEngineUnavailable indicates the engine's binary or model is missing.
	ErrEngineUnavailable = errors.New("synthesis engine unavailable")
)

// Synthesizer turns text into audio.
type Synthesizer interface {
	// Name identifies the engine, e.g. "piper".
	Name() string

	// SampleRate is the rate of every segment the engine produces.
	SampleRate() int

	// Synthesize starts synthesis of text. Segments are produced lazily by
	// the returned stream; the work can only be restarted from the beginning.
	Synthesize(ctx context.Context, text string) (Stream, error)
}

// Stream yields mono float32 segments in order. Next returns io.EOF once the
// text is exhausted.
type Stream interface {
	Next(ctx context.Context) ([]float32, error)
	Close() error
}

// Error describes a failure of one engine operation.
type Error struct {
	Engine string
	Op     string
	Err    error
}

func (e *Error) Error() string {
	return fmt.Sprintf("%s %s: %v", e.Engine, e.Op, e.Err)
}

func (e *Error) Unwrap() error { return e.Err }

var paragraphBreak = regexp.MustCompile(`\n+`)

// SplitParagraphs splits text on runs of newlines, dropping blank pieces.
func SplitParagraphs(text string) []string {
	parts := paragraphBreak.Split(text, -1)
	out := parts[:0]
	for _, p := range parts {
		if p = strings.TrimSpace(p); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// paragraphStream synthesizes one paragraph per Next call.
type paragraphStream struct {
	paragraphs []string
	next       int
	render     func(ctx context.Context, paragraph string) ([]float32, error)
	closed     bool
}

func newParagraphStream(text string, render func(context.Context, string) ([]float32, error)) *paragraphStream {
	return &paragraphStream{paragraphs: SplitParagraphs(text), render: render}
}

func (s *paragraphStream) Next(ctx context.Context) ([]float32, error) {
	if s.closed || s.next >= len(s.paragraphs) {
		return nil, io.EOF
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	p := s.paragraphs[s.next]
	s.next++
	return s.render(ctx, p)
}

func (s *paragraphStream) Close() error {
	s.closed = true
	return nil
}
