// Command engine-metrics-demo wires a minimal RemoteMedia engine up to
// Prometheus metrics and OpenTelemetry tracing and runs a handful of
// envelopes through it. It is not a product surface: it exists to exercise
// the Prometheus exporter and OTLP tracing end to end, the way
// runtime/metrics/prometheus/exporter.go is meant to be served.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/AltairaLabs/remotemedia/runtime/data"
	"github.com/AltairaLabs/remotemedia/runtime/engine"
	"github.com/AltairaLabs/remotemedia/runtime/events"
	"github.com/AltairaLabs/remotemedia/runtime/manifest"
	"github.com/AltairaLabs/remotemedia/runtime/metrics/prometheus"
	"github.com/AltairaLabs/remotemedia/runtime/node"
	"github.com/AltairaLabs/remotemedia/runtime/nodes/builtin"
	"github.com/AltairaLabs/remotemedia/runtime/statestore"
	"github.com/AltairaLabs/remotemedia/runtime/telemetry"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
)

func main() {
	metricsAddr := flag.String("metrics-addr", ":9090", "address to serve /metrics and /health on")
	otlpEndpoint := flag.String("otlp-endpoint", "", "OTLP/HTTP traces endpoint; tracing is disabled if empty")
	serviceName := flag.String("service-name", "remotemedia-engine", "service.name reported on exported spans")
	chunks := flag.Int("chunks", 5, "number of synthetic chunks to push through the demo pipeline")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, nil))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	bus := events.NewEventBus()

	metricsListener := prometheus.NewMetricsListener()
	bus.SubscribeAll(metricsListener.Listener())

	var tp *sdktrace.TracerProvider
	if *otlpEndpoint != "" {
		telemetry.SetupPropagation()
		var err error
		tp, err = telemetry.NewTracerProvider(ctx, *otlpEndpoint, *serviceName)
		if err != nil {
			logger.Error("failed to build tracer provider", "error", err)
			os.Exit(1)
		}
		defer func() {
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
			defer cancel()
			if err := tp.Shutdown(shutdownCtx); err != nil {
				logger.Error("tracer provider shutdown failed", "error", err)
			}
		}()
	}
	spanListener := telemetry.NewSpanListener(telemetry.Tracer(tp))
	bus.SubscribeAll(spanListener.Listener())

	exporter := prometheus.NewExporter(*metricsAddr)
	go func() {
		if err := exporter.Start(); err != nil {
			logger.Error("metrics exporter stopped", "error", err)
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = exporter.Shutdown(shutdownCtx)
	}()
	logger.Info("serving metrics", "addr", *metricsAddr)

	store := statestore.NewMemoryStore(statestore.WithOnEvict(func(key statestore.Key, reason string) {
		bus.Publish(&events.Event{
			Type:      events.EventStateEntryEvicted,
			Timestamp: time.Now(),
			SessionID: key.SessionID,
			Data:      &events.StateEntryEvictedData{NodeID: key.NodeID, Reason: reason},
		})
	}))
	defer store.Close()

	registry := node.NewRegistry()
	if err := builtin.RegisterAll(registry); err != nil {
		logger.Error("failed to register builtin nodes", "error", err)
		os.Exit(1)
	}

	e, err := engine.New(registry, store, &engine.Config{Events: bus})
	if err != nil {
		logger.Error("failed to construct engine", "error", err)
		os.Exit(1)
	}

	m := demoManifest()
	inputs := make([]data.Envelope, *chunks)
	for i := range inputs {
		inputs[i] = data.NewJSON(map[string]any{"value": float64(i)}).WithSequence(uint64(i))
	}

	outputs, err := e.Execute(ctx, m, inputs)
	if err != nil {
		logger.Error("demo pipeline run failed", "error", err)
		os.Exit(1)
	}
	for _, out := range outputs {
		fmt.Println(out.JSON.Value)
	}

	logger.Info("demo run complete, serving metrics until interrupted")
	<-ctx.Done()

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := e.Shutdown(shutdownCtx); err != nil {
		logger.Error("engine shutdown failed", "error", err)
	}
}

// demoManifest declares a two-node pipeline (calculator -> pass-through)
// exercising a stateless transform followed by an identity sink.
func demoManifest() *manifest.Manifest {
	return &manifest.Manifest{
		Version:  "v1",
		Metadata: manifest.Metadata{Name: "engine-metrics-demo"},
		Nodes: []manifest.NodeSpec{
			{
				ID:       "double",
				NodeType: builtin.CalculatorType,
				Params:   map[string]any{"operation": "multiply", "operand": 2.0},
			},
			{ID: "sink", NodeType: builtin.PassThroughType},
		},
		Connections: []manifest.ConnectionSpec{
			{From: "double", To: "sink"},
		},
	}
}
