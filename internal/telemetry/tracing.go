// ABOUTME: OpenTelemetry tracer provider for KSC call spans
// ABOUTME: Exports finished spans as JSON lines to stderr or a trace file

package telemetry

import (
	"context"
	"fmt"
	"io"
	"os"

	"github.com/harper/ksc-bridge/internal/logger"
	"github.com/harper/ksc-bridge/internal/rpc"
	"github.com/harper/ksc-bridge/internal/session"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	"go.opentelemetry.io/otel/trace"
)

const serviceName = "ksc-bridge"

var log = logger.Named("telemetry")

// Provider owns an SDK tracer provider and the file its exporter writes to.
type Provider struct {
	tp  *sdktrace.TracerProvider
	out io.Closer
}

// New builds a provider that batches spans to w.
func New(w io.Writer, version string) (*Provider, error) {
	exp, err := stdouttrace.New(stdouttrace.WithWriter(w))
	if err != nil {
		return nil, fmt.Errorf("trace exporter: %w", err)
	}
	res := resource.NewSchemaless(
		attribute.String("service.name", serviceName),
		attribute.String("service.version", version),
	)
	return &Provider{tp: sdktrace.NewTracerProvider(sdktrace.WithBatcher(exp), sdktrace.WithResource(res))}, nil
}

// Open writes spans to path, or to stderr when path is empty. The file is appended to.
func Open(path, version string) (*Provider, error) {
	if path == "" {
		return New(os.Stderr, version)
	}
	f, err := os.OpenFile(path, os.O_CREATE|os.O_APPEND|os.O_WRONLY, 0o600) //nolint:gosec // path from config
	if err != nil {
		return nil, fmt.Errorf("open trace file: %w", err)
	}
	p, err := New(f, version)
	if err != nil {
		_ = f.Close()
		return nil, err
	}
	p.out = f
	log.Info("writing traces to %s", path)
	return p, nil
}

func (p *Provider) TracerProvider() trace.TracerProvider { return p.tp }

// Instrument routes the session's call spans and HTTP client spans to p.
func (p *Provider) Instrument(cfg session.Config) session.Config {
	cfg.Transport.Tracing = true
	cfg.Transport.TracerProvider = p.tp
	cfg.InvokerOpts = append(append([]rpc.Option(nil), cfg.InvokerOpts...), rpc.WithTracerProvider(p.tp))
	return cfg
}

// Shutdown flushes pending spans and closes the trace file.
func (p *Provider) Shutdown(ctx context.Context) error {
	err := p.tp.Shutdown(ctx)
	if p.out != nil {
		if cerr := p.out.Close(); err == nil {
			err = cerr
		}
	}
	return err
}
