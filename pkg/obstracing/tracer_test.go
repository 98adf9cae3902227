package obstracing

import (
	"context"
	"testing"
)

func TestNewProviderStartsAndEndsSpan(t *testing.T) {
	p, err := New(Config{ServiceName: "authcore-test", ServiceVersion: "0.0.0", Environment: "test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown(context.Background())

	ctx, span := p.StartSpan(context.Background(), SpanTokenCreate, AttributeTokenID.String("tok-1"))
	if !span.SpanContext().IsValid() {
		t.Fatal("expected a valid span context")
	}
	span.End()

	if ctx == nil {
		t.Fatal("expected non-nil context")
	}
}

func TestSDKReturnsUnderlyingProvider(t *testing.T) {
	p, err := New(Config{ServiceName: "authcore-test"})
	if err != nil {
		t.Fatalf("New: %v", err)
	}
	defer p.Shutdown(context.Background())

	if p.SDK() == nil {
		t.Fatal("expected non-nil SDK tracer provider")
	}
}
