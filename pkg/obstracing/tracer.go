package obstracing

import (
	"context"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/exporters/stdout/stdouttrace"
	"go.opentelemetry.io/otel/sdk/resource"
	sdktrace "go.opentelemetry.io/otel/sdk/trace"
	semconv "go.opentelemetry.io/otel/semconv/v1.26.0"
	"go.opentelemetry.io/otel/trace"

	"github.com/gimel-foundation/authcore/pkg/autherrors"
)

// Config configures a Provider.
type Config struct {
	ServiceName    string
	ServiceVersion string
	Environment    string
}

// Provider wraps an OpenTelemetry SDK tracer provider scoped to this
// process. Unlike the teacher's version, construction never calls
// otel.SetTracerProvider; callers that want a process-global tracer do
// that explicitly with the *sdktrace.TracerProvider returned by SDK.
type Provider struct {
	sdk    *sdktrace.TracerProvider
	tracer trace.Tracer
}

// New builds a Provider backed by the stdout exporter (pretty-printed spans
// to stdout; swap the exporter for an OTLP one at the call site when a
// collector is available).
func New(cfg Config) (*Provider, error) {
	exporter, err := stdouttrace.New(stdouttrace.WithPrettyPrint())
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to create trace exporter", err)
	}

	res, err := resource.New(context.Background(),
		resource.WithAttributes(
			semconv.ServiceNameKey.String(cfg.ServiceName),
			semconv.ServiceVersionKey.String(cfg.ServiceVersion),
			attribute.String("environment", cfg.Environment),
		),
	)
	if err != nil {
		return nil, autherrors.Wrap(autherrors.KindStorageUnavailable, "failed to build trace resource", err)
	}

	sdk := sdktrace.NewTracerProvider(
		sdktrace.WithBatcher(exporter),
		sdktrace.WithResource(res),
		sdktrace.WithSampler(sdktrace.AlwaysSample()),
	)

	return &Provider{sdk: sdk, tracer: sdk.Tracer(cfg.ServiceName)}, nil
}

// SDK returns the underlying *sdktrace.TracerProvider, for callers that want
// to register it globally via otel.SetTracerProvider.
func (p *Provider) SDK() *sdktrace.TracerProvider {
	return p.sdk
}

// StartSpan starts a span named name with the given attributes.
func (p *Provider) StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return p.tracer.Start(ctx, name, trace.WithAttributes(attrs...), trace.WithTimestamp(time.Now()))
}

// Shutdown flushes and stops the exporter.
func (p *Provider) Shutdown(ctx context.Context) error {
	return p.sdk.Shutdown(ctx)
}

// Span names for the operations this module instruments.
const (
	SpanTokenCreate  = "authcore.token.create"
	SpanTokenVerify  = "authcore.token.verify"
	SpanTokenRevoke  = "authcore.token.revoke"
	SpanGroupCreate  = "authcore.group.create"
	SpanGroupDefunct = "authcore.group.make_defunct"
	SpanVaultRead    = "authcore.vaultkv.read"
	SpanVaultWrite   = "authcore.vaultkv.write"
	SpanAgentLogin   = "authcore.identity.login"
	SpanAgentRenew   = "authcore.identity.renew"
)

// Attribute keys used alongside the span names above.
var (
	AttributeTokenID = attribute.Key("authcore.token.id")
	AttributeGroupID = attribute.Key("authcore.group.id")
	AttributePath    = attribute.Key("authcore.vaultkv.path")
	AttributeAgent   = attribute.Key("authcore.identity.agent")
)
