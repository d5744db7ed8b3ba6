// Package telemetry configures the OpenTelemetry trace pipeline.
package telemetry

import (
	"context"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.21.0"
)

// Options configure the trace pipeline. The zero value exports compact spans
// to stdout.
type Options struct {
	ServiceName string
	// Writer receives exported spans. Defaults to os.Stdout.
	Writer io.Writer
	// Pretty enables indented span output, readable during development at
	// the price of log volume.
	Pretty bool
}

// Init installs a global tracer provider exporting to opts.Writer and
// returns its shutdown function.
func Init(opts Options, logger *slog.Logger) (func(context.Context) error, error) {
	if opts.Writer == nil {
		opts.Writer = os.Stdout
	}

	exporterOpts := []stdouttrace.Option{stdouttrace.WithWriter(opts.Writer)}
	if opts.Pretty {
		exporterOpts = append(exporterOpts, stdouttrace.WithPrettyPrint())
	}
	exporter, err := stdouttrace.New(exporterOpts...)
	if err != nil {
		return nil, err
	}

	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			"",
			semconv.ServiceName(opts.ServiceName),
		),
	)
	if err != nil {
		return nil, err
	}

	tp := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
	)

	otel.SetTracerProvider(tp)

	logger.Info("OpenTelemetry initialized",
		slog.String("service", opts.ServiceName),
		slog.Bool("pretty", opts.Pretty))

	return tp.Shutdown, nil
}
