// Package telemetry wires the OpenTelemetry SDK for the service: an
// optional OTLP trace exporter, a Prometheus metrics listener, and the
// domain instruments in metrics.go.
package telemetry

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/otlp/otlptrace/otlptracegrpc"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/propagation"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.27.0"
	"go.uber.org/zap"

	"github.com/reviewgate/reviewgate/consts"
	"github.com/reviewgate/reviewgate/pkg/logger"
)

const (
	exporterDialTimeout = 10 * time.Second
	metricsHTTPTimeout  = 10 * time.Second
)

// Config is the telemetry surface the service exposes. Traces leave via
// OTLP only when an endpoint is set; /metrics is served only when a port
// is set. Service name and version come from the build, not the config.
type Config struct {
	Enabled      bool   `yaml:"enabled"`
	OTLPEndpoint string `yaml:"otlp_endpoint"`
	OTLPInsecure bool   `yaml:"otlp_insecure"`
	MetricsPort  int    `yaml:"metrics_port"`
}

// Telemetry owns everything New installed and tears it down in order.
type Telemetry struct {
	enabled  bool
	shutdown []func(context.Context) error
}

// New installs the process-global tracer and meter providers. A disabled
// config yields an inert instance whose Shutdown is a no-op.
func New(cfg Config) (*Telemetry, error) {
	if !cfg.Enabled {
		logger.Info("telemetry disabled")
		return &Telemetry{}, nil
	}

	res, err := resource.New(context.Background(), resource.WithAttributes(
		semconv.ServiceName(consts.ServiceName),
		semconv.ServiceVersion(consts.Version),
	))
	if err != nil {
		return nil, fmt.Errorf("build telemetry resource: %w", err)
	}

	t := &Telemetry{enabled: true}

	tp, err := newTracerProvider(cfg, res)
	if err != nil {
		return nil, err
	}
	otel.SetTracerProvider(tp)
	t.shutdown = append(t.shutdown, tp.Shutdown)

	mp, err := newMeterProvider(res)
	if err != nil {
		return nil, err
	}
	otel.SetMeterProvider(mp)
	t.shutdown = append(t.shutdown, mp.Shutdown)

	if cfg.MetricsPort > 0 {
		t.shutdown = append(t.shutdown, serveMetrics(cfg.MetricsPort))
	}

	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(
		propagation.TraceContext{},
		propagation.Baggage{},
	))

	logger.Info("telemetry initialized",
		zap.String("otlp_endpoint", cfg.OTLPEndpoint),
		zap.Int("metrics_port", cfg.MetricsPort))
	return t, nil
}

// newTracerProvider builds the tracer provider. Without an OTLP endpoint
// spans are still recorded for local propagation but never exported.
func newTracerProvider(cfg Config, res *resource.Resource) (*sdktrace.TracerProvider, error) {
	opts := []sdktrace.TracerProviderOption{sdktrace.WithResource(res)}

	if cfg.OTLPEndpoint != "" {
		ctx, cancel := context.WithTimeout(context.Background(), exporterDialTimeout)
		defer cancel()

		dial := []otlptracegrpc.Option{otlptracegrpc.WithEndpoint(cfg.OTLPEndpoint)}
		if cfg.OTLPInsecure {
			dial = append(dial, otlptracegrpc.WithInsecure())
		}
		exporter, err := otlptracegrpc.New(ctx, dial...)
		if err != nil {
			return nil, fmt.Errorf("create OTLP trace exporter: %w", err)
		}
		opts = append(opts, sdktrace.WithBatcher(exporter))
		logger.Info("OTLP trace export enabled", zap.String("endpoint", cfg.OTLPEndpoint))
	}

	return sdktrace.NewTracerProvider(opts...), nil
}

// newMeterProvider builds the meter provider backed by the Prometheus
// default registry.
func newMeterProvider(res *resource.Resource) (*sdkmetric.MeterProvider, error) {
	reader, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("create Prometheus exporter: %w", err)
	}
	return sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(reader),
	), nil
}

// serveMetrics starts the /metrics listener and returns its shutdown.
func serveMetrics(port int) func(context.Context) error {
	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.Handler())

	srv := &http.Server{
		Addr:         fmt.Sprintf(":%d", port),
		Handler:      mux,
		ReadTimeout:  metricsHTTPTimeout,
		WriteTimeout: metricsHTTPTimeout,
	}
	go func() {
		logger.Info("metrics listener started", zap.Int("port", port))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("metrics listener failed", zap.Error(err))
		}
	}()
	return srv.Shutdown
}

// Shutdown tears down providers and the metrics listener. Individual
// failures are logged; the last one is returned.
func (t *Telemetry) Shutdown(ctx context.Context) error {
	if !t.enabled {
		return nil
	}
	logger.Info("shutting down telemetry")

	var last error
	for _, fn := range t.shutdown {
		if err := fn(ctx); err != nil {
			logger.Error("telemetry shutdown step failed", zap.Error(err))
			last = err
		}
	}
	return last
}

// IsEnabled reports whether New installed exporters.
func (t *Telemetry) IsEnabled() bool {
	return t.enabled
}
