package telemetry

import (
	"context"
	"errors"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/metric"
)

const meterName = "github.com/dgnsrekt/narrator"

// Recorder implements the playback and queue metrics hooks.
type Recorder struct {
	started    metric.Int64Counter
	finished   metric.Int64Counter
	samples    metric.Int64Counter
	accepted   metric.Int64Counter
	dispatched metric.Float64Histogram

	depth        atomic.Int64
	registration metric.Registration
}

// NewRecorder creates the instruments on a meter from mp.
func NewRecorder(mp metric.MeterProvider) (*Recorder, error) {
	meter := mp.Meter(meterName)
	r := &Recorder{}

	var errs []error
	var err error
	if r.started, err = meter.Int64Counter("narrator.playback.started",
		metric.WithDescription("Playback runs started")); err != nil {
		errs = append(errs, err)
	}
	if r.finished, err = meter.Int64Counter("narrator.playback.finished",
		metric.WithDescription("Playback runs finished, by outcome")); err != nil {
		errs = append(errs, err)
	}
	if r.samples, err = meter.Int64Counter("narrator.playback.samples",
		metric.WithDescription("Samples written to the audio sink")); err != nil {
		errs = append(errs, err)
	}
	if r.accepted, err = meter.Int64Counter("narrator.queue.requests",
		metric.WithDescription("Requests accepted, by kind")); err != nil {
		errs = append(errs, err)
	}
	if r.dispatched, err = meter.Float64Histogram("narrator.queue.wait",
		metric.WithDescription("Time queued requests waited before playing"),
		metric.WithUnit("s")); err != nil {
		errs = append(errs, err)
	}

	depth, err := meter.Int64ObservableGauge("narrator.queue.depth",
		metric.WithDescription("Pending requests"))
	if err != nil {
		errs = append(errs, err)
	}
	if err := errors.Join(errs...); err != nil {
		return nil, err
	}

	r.registration, err = meter.RegisterCallback(func(_ context.Context, o metric.Observer) error {
		o.ObserveInt64(depth, r.depth.Load())
		return nil
	}, depth)
	if err != nil {
		return nil, err
	}
	return r, nil
}

// Close unregisters the queue depth callback.
func (r *Recorder) Close() error {
	if r.registration == nil {
		return nil
	}
	return r.registration.Unregister()
}

func (r *Recorder) PlaybackStarted() {
	r.started.Add(context.Background(), 1)
}

func (r *Recorder) PlaybackFinished(outcome string) {
	r.finished.Add(context.Background(), 1, metric.WithAttributes(outcomeAttr(outcome)))
}

func (r *Recorder) SamplesPlayed(n int64) {
	r.samples.Add(context.Background(), n)
}

func (r *Recorder) RequestAccepted(kind string) {
	r.accepted.Add(context.Background(), 1, metric.WithAttributes(kindAttr(kind)))
}

func (r *Recorder) RequestDispatched(wait time.Duration) {
	r.dispatched.Record(context.Background(), wait.Seconds())
}

func (r *Recorder) QueueDepth(n int) {
	r.depth.Store(int64(n))
}
