// Package telemetry sets up OpenTelemetry tracing, metrics and logging.
package telemetry

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"os"

	"go.opentelemetry.io/otel/sdk/resource"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"google.golang.org/grpc"
	"google.golang.org/grpc/credentials/insecure"
)

// Options describes the service and where its telemetry goes.
type Options struct {
	Enabled      bool
	ServiceName  string
	Environment  string
	OTLPEndpoint string
	Level        slog.Level
	// Output receives local logs when export is disabled.
	Output io.Writer
}

// Providers owns whatever Setup started.
type Providers struct {
	shutdown []func(context.Context) error
}

// Shutdown flushes and stops every provider, last started first.
func (p *Providers) Shutdown(ctx context.Context) error {
	var errs []error
	for i := len(p.shutdown) - 1; i >= 0; i-- {
		errs = append(errs, p.shutdown[i](ctx))
	}
	p.shutdown = nil
	return errors.Join(errs...)
}

// Setup starts the tracer, meter and logger providers and returns the
// application logger. With export disabled the global providers stay no-op
// and the logger writes JSON to opts.Output.
func Setup(ctx context.Context, opts Options) (*Providers, *slog.Logger, error) {
	p := &Providers{}
	if opts.Output == nil {
		opts.Output = os.Stderr
	}
	if !opts.Enabled {
		return p, NewLogger(opts.Output, opts.Level), nil
	}

	conn, err := grpc.NewClient(opts.OTLPEndpoint,
		grpc.WithTransportCredentials(insecure.NewCredentials()),
	)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to create gRPC connection: %w", err)
	}
	p.shutdown = append(p.shutdown, func(context.Context) error { return conn.Close() })

	tp, err := InitTracerProvider(ctx, conn, opts)
	if err != nil {
		return nil, nil, errors.Join(err, p.Shutdown(ctx))
	}
	p.shutdown = append(p.shutdown, tp.Shutdown)

	mp, err := InitMeterProvider(ctx, conn, opts)
	if err != nil {
		return nil, nil, errors.Join(err, p.Shutdown(ctx))
	}
	p.shutdown = append(p.shutdown, mp.Shutdown)

	// Started last so the other providers are in place for log-trace correlation.
	lp, logger, err := InitLoggerProvider(ctx, conn, opts)
	if err != nil {
		return nil, nil, errors.Join(err, p.Shutdown(ctx))
	}
	p.shutdown = append(p.shutdown, lp.Shutdown)

	return p, logger, nil
}

func newResource(opts Options) (*resource.Resource, error) {
	res, err := resource.Merge(
		resource.Default(),
		resource.NewWithAttributes(
			semconv.SchemaURL,
			semconv.ServiceName(opts.ServiceName),
			semconv.DeploymentEnvironment(opts.Environment),
		),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create resource: %w", err)
	}
	return res, nil
}
