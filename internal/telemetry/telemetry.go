// Package telemetry records playback and queue metrics with OpenTelemetry and
// exposes them in the Prometheus text format.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"net/http"

	"github.com/charmbracelet/log"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	otelprom "go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/metric/noop"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.30.0"
)

// ServiceName identifies the process in exported metrics.
const ServiceName = "narrator"

// Provider owns the meter provider and the scrape handler.
type Provider struct {
	meters   *sdkmetric.MeterProvider
	handler  http.Handler
	recorder *Recorder
}

// Setup installs a meter provider exporting to a private Prometheus
// registry and returns it with a recorder bound to its meter.
func Setup(ctx context.Context, version string, logger *log.Logger) (*Provider, error) {
	if logger == nil {
		logger = log.Default()
	}

	res, err := resource.New(ctx,
		resource.WithAttributes(
			semconv.ServiceName(ServiceName),
			semconv.ServiceVersion(version),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("telemetry resource: %w", err)
	}

	registry := prometheus.NewRegistry()
	exporter, err := otelprom.New(otelprom.WithRegisterer(registry))
	if err != nil {
		return nil, fmt.Errorf("prometheus exporter: %w", err)
	}

	meters := sdkmetric.NewMeterProvider(
		sdkmetric.WithReader(exporter),
		sdkmetric.WithResource(res),
	)
	otel.SetMeterProvider(meters)

	rec, err := NewRecorder(meters)
	if err != nil {
		_ = meters.Shutdown(ctx)
		return nil, err
	}

	logger.Info("Telemetry initialized", "exporter", "prometheus")
	return &Provider{
		meters:   meters,
		handler:  promhttp.HandlerFor(registry, promhttp.HandlerOpts{}),
		recorder: rec,
	}, nil
}

// Handler serves the Prometheus exposition.
func (p *Provider) Handler() http.Handler { return p.handler }

// Recorder returns the recorder bound to this provider.
func (p *Provider) Recorder() *Recorder { return p.recorder }

// Shutdown flushes and stops the meter provider.
func (p *Provider) Shutdown(ctx context.Context) error {
	var errs []error
	if err := p.recorder.Close(); err != nil {
		errs = append(errs, err)
	}
	if err := p.meters.Shutdown(ctx); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

// Nop returns a recorder that discards everything.
func Nop() *Recorder {
	rec, _ := NewRecorder(noop.NewMeterProvider())
	return rec
}

func outcomeAttr(outcome string) attribute.KeyValue {
	return attribute.String("outcome", outcome)
}

func kindAttr(kind string) attribute.KeyValue {
	return attribute.String("kind", kind)
}
