package playback

import (
	"context"
	"errors"
	"io"

	"github.com/dgnsrekt/narrator/internal/audio"
	"github.com/dgnsrekt/narrator/internal/synth"
)

// produce pulls segments from stream, normalizes them and sends them to out
// until the stream is exhausted, fails, or ctx is done. A full out blocks
// production; nothing is dropped. out and stream are always closed on
// return, so a closed channel marks the end of the stream for the consumer.
func produce(ctx context.Context, stream synth.Stream, volume float64, out chan<- []float32) error {
	defer close(out)
	defer stream.Close()

	for {
		seg, err := stream.Next(ctx)
		if errors.Is(err, io.EOF) {
			return nil
		}
		if err != nil {
			if ctx.Err() != nil {
				return ctx.Err()
			}
			return err
		}

		select {
		case out <- audio.Normalize(seg, volume):
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
