package tracing

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/AzielCF/az-connect/core/config"
	"github.com/sirupsen/logrus"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracehttp"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

// Manager owns the process-wide tracer provider. Provider clients and the
// pipeline forwarder pick it up through otel.Tracer and otelhttp.
type Manager struct {
	cfg      config.TracingConfig
	version  string
	env      string
	provider *sdktrace.TracerProvider
}

func NewManager(cfg config.TracingConfig, app config.AppConfig) *Manager {
	return &Manager{cfg: cfg, version: app.Version, env: app.Environment}
}

func (m *Manager) Initialize(ctx context.Context) error {
	if !m.cfg.Enabled {
		logrus.Debug("[TRACING] Disabled")
		return nil
	}

	res, err := resource.New(ctx, resource.WithAttributes(
		attribute.String("service.name", m.cfg.ServiceName),
		attribute.String("service.version", m.version),
		attribute.String("deployment.environment", m.env),
	))
	if err != nil {
		return fmt.Errorf("tracing resource: %w", err)
	}

	exporter, err := m.exporter(ctx)
	if err != nil {
		return err
	}

	m.provider = sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.ParentBased(sdktrace.TraceIDRatioBased(m.cfg.SampleRate))),
	)
	otel.SetTracerProvider(m.provider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	logrus.WithFields(logrus.Fields{
		"service":     m.cfg.ServiceName,
		"sample_rate": m.cfg.SampleRate,
	}).Info("[TRACING] OpenTelemetry initialized")
	return nil
}

func (m *Manager) exporter(ctx context.Context) (sdktrace.SpanExporter, error) {
	if m.cfg.Stdout || m.cfg.OTLPEndpoint == "" {
		exp, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
		if err != nil {
			return nil, fmt.Errorf("stdout trace exporter: %w", err)
		}
		logrus.Info("[TRACING] Using stdout exporter")
		return exp, nil
	}

	opts := []otlptracehttp.Option{otlptracehttp.WithEndpointURL(m.cfg.OTLPEndpoint)}
	if strings.HasPrefix(m.cfg.OTLPEndpoint, "http://") {
		opts = append(opts, otlptracehttp.WithInsecure())
	}
	exp, err := otlptracehttp.New(ctx, opts...)
	if err != nil {
		return nil, fmt.Errorf("otlp trace exporter: %w", err)
	}
	logrus.WithField("endpoint", m.cfg.OTLPEndpoint).Info("[TRACING] Using OTLP HTTP exporter")
	return exp, nil
}

// Shutdown flushes pending spans.
func (m *Manager) Shutdown(ctx context.Context) error {
	if m.provider == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := m.provider.Shutdown(ctx); err != nil {
		return fmt.Errorf("tracer provider shutdown: %w", err)
	}
	logrus.Info("[TRACING] Shutdown completed")
	return nil
}
