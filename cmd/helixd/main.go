// Command helixd hosts the HTTP facade (spec §6) as a long-running
// daemon, sharing one Orchestrator and job bus across every request.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/prometheus"
	"go.opentelemetry.io/otel/exporters/stdout/stdoutmetric"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/propagation"
	"go.opentelemetry.io/otel/sdk/resource"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"

	"github.com/helix-run/helix/internal/agentrunner"
	"github.com/helix-run/helix/internal/cmdrunner"
	"github.com/helix-run/helix/internal/config"
	"github.com/helix-run/helix/internal/dataflow"
	"github.com/helix-run/helix/internal/escalation"
	"github.com/helix-run/helix/internal/executor"
	"github.com/helix-run/helix/internal/gate"
	"github.com/helix-run/helix/internal/httpapi"
	"github.com/helix-run/helix/internal/jobbus"
	"github.com/helix-run/helix/internal/orchestrator"
	"github.com/helix-run/helix/internal/phase"
	"github.com/helix-run/helix/internal/status"
	"github.com/helix-run/helix/internal/template"
	"github.com/helix-run/helix/internal/verify"
	"github.com/helix-run/helix/pkg/logging"
)

func main() {
	port := flag.Int("port", 8080, "port to listen on")
	flag.Parse()

	log, err := logging.New(logging.Config{JSON: true, Service: "helixd"})
	if err != nil {
		fmt.Fprintln(os.Stderr, "build logger:", err)
		os.Exit(1)
	}

	shutdownTelemetry, err := setupTelemetry(context.Background())
	if err != nil {
		log.Error("telemetry setup failed", "error", err)
		os.Exit(1)
	}
	defer shutdownTelemetry(context.Background())

	cfg, err := config.Global()
	if err != nil {
		log.Error("load config", "error", err)
		os.Exit(1)
	}

	runner := cmdrunner.NewExec()
	bus := jobbus.New()
	orch := orchestrator.New(
		phase.NewLoader(""),
		status.NewStore(),
		dataflow.New(),
		template.New(""),
		executor.New(agentrunner.New(cfg.Agent, runner)),
		verify.New(runner),
		gate.New(runner),
		escalation.New(cfg.Escalation),
		bus,
	)

	server := httpapi.New(orch, bus, log)
	httpServer := &http.Server{
		Addr:    fmt.Sprintf(":%d", *port),
		Handler: server.Handler(),
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	errCh := make(chan error, 1)
	go func() {
		log.Info("helixd listening", "port", *port)
		if err := httpServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
			return
		}
		errCh <- nil
	}()

	select {
	case <-ctx.Done():
		log.Info("shutting down")
	case err := <-errCh:
		if err != nil {
			log.Error("server failed", "error", err)
			os.Exit(1)
		}
		return
	}

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := httpServer.Shutdown(shutdownCtx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}

// setupTelemetry wires a TracerProvider and MeterProvider so otelgin's
// spans and HELIX's phase/pipeline metrics actually export somewhere:
// traces to stdout, metrics to both stdout and the /metrics Prometheus
// endpoint that promhttp.Handler serves.
func setupTelemetry(ctx context.Context) (func(context.Context), error) {
	res, err := resource.New(ctx, resource.WithAttributes(semconv.ServiceNameKey.String("helixd")))
	if err != nil {
		return nil, fmt.Errorf("build resource: %w", err)
	}

	traceExporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, fmt.Errorf("build trace exporter: %w", err)
	}
	tracerProvider := sdktrace.NewTracerProvider(
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
		sdktrace.WithResource(res),
		sdktrace.WithBatcher(traceExporter),
	)
	otel.SetTracerProvider(tracerProvider)
	otel.SetTextMapPropagator(propagation.NewCompositeTextMapPropagator(propagation.TraceContext{}, propagation.Baggage{}))

	promExporter, err := prometheus.New()
	if err != nil {
		return nil, fmt.Errorf("build prometheus exporter: %w", err)
	}
	metricExporter, err := stdoutmetric.New()
	if err != nil {
		return nil, fmt.Errorf("build stdout metric exporter: %w", err)
	}
	meterProvider := sdkmetric.NewMeterProvider(
		sdkmetric.WithResource(res),
		sdkmetric.WithReader(promExporter),
		sdkmetric.WithReader(sdkmetric.NewPeriodicReader(metricExporter, sdkmetric.WithInterval(30*time.Second))),
	)
	otel.SetMeterProvider(meterProvider)

	return func(shutdownCtx context.Context) {
		_ = tracerProvider.Shutdown(shutdownCtx)
		_ = meterProvider.Shutdown(shutdownCtx)
	}, nil
}
