package audio

import (
	"context"
	"io"
	"sync"
	"time"
)

// pcmBuffer is the byte queue between a sink's Write and the device player.
// Writes block while it holds limit bytes. Reads of an empty buffer wait up
// to readWait and then return no bytes; a zero readWait waits for data.
type pcmBuffer struct {
	mu       sync.Mutex
	cond     *sync.Cond
	data     []byte
	limit    int
	readWait time.Duration
	closed   bool
	err      error
}

func newPCMBuffer(limit int, readWait time.Duration) *pcmBuffer {
	b := &pcmBuffer{limit: limit, readWait: readWait}
	b.cond = sync.NewCond(&b.mu)
	return b
}

// Write queues p, waiting for room or ctx. A block larger than limit is
// accepted once the buffer is empty.
func (b *pcmBuffer) Write(ctx context.Context, p []byte) error {
	stop := context.AfterFunc(ctx, func() {
		b.mu.Lock()
		defer b.mu.Unlock()
		b.cond.Broadcast()
	})
	defer stop()

	b.mu.Lock()
	defer b.mu.Unlock()
	for len(b.data) > 0 && len(b.data)+len(p) > b.limit {
		if b.err != nil || b.closed {
			break
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		b.cond.Wait()
	}
	if b.err != nil {
		return b.err
	}
	if b.closed {
		return io.ErrClosedPipe
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	b.data = append(b.data, p...)
	b.cond.Broadcast()
	return nil
}

// Read implements io.Reader. It returns io.EOF once the buffer is closed
// and drained.
func (b *pcmBuffer) Read(p []byte) (int, error) {
	b.mu.Lock()
	defer b.mu.Unlock()

	expired := false
	if len(b.data) == 0 && b.readWait > 0 {
		t := time.AfterFunc(b.readWait, func() {
			b.mu.Lock()
			defer b.mu.Unlock()
			expired = true
			b.cond.Broadcast()
		})
		defer t.Stop()
	}
	for len(b.data) == 0 && !b.closed && b.err == nil && !expired {
		b.cond.Wait()
	}

	if b.err != nil {
		return 0, b.err
	}
	if len(b.data) == 0 {
		if b.closed {
			return 0, io.EOF
		}
		return 0, nil
	}
	n := copy(p, b.data)
	b.data = b.data[:copy(b.data, b.data[n:])]
	b.cond.Broadcast()
	return n, nil
}

// Len returns the number of queued bytes.
func (b *pcmBuffer) Len() int {
	b.mu.Lock()
	defer b.mu.Unlock()
	return len(b.data)
}

// Close ends the stream; readers see io.EOF after the queued bytes.
func (b *pcmBuffer) Close() {
	b.mu.Lock()
	defer b.mu.Unlock()
	b.closed = true
	b.cond.Broadcast()
}

// CloseWithError drops the queued bytes and fails every pending and future
// call with err.
func (b *pcmBuffer) CloseWithError(err error) {
	b.mu.Lock()
	defer b.mu.Unlock()
	if b.err == nil {
		b.err = err
	}
	b.data = nil
	b.cond.Broadcast()
}
