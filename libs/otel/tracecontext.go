package otelx

import (
	"context"

	"go.opentelemetry.io/otel/propagation"
)

// W3C trace context only; baggage is not persisted with stored events.
var w3c propagation.TraceContext

// CaptureTrace returns the traceparent and tracestate of the span in ctx.
// Both are empty when ctx carries no valid span.
func CaptureTrace(ctx context.Context) (traceparent, tracestate string) {
	c := propagation.MapCarrier{}
	w3c.Inject(ctx, c)
	return c.Get("traceparent"), c.Get("tracestate")
}

// RestoreTrace makes a previously captured span the remote parent in ctx.
func RestoreTrace(ctx context.Context, traceparent, tracestate string) context.Context {
	if traceparent == "" {
		return ctx
	}
	return w3c.Extract(ctx, propagation.MapCarrier{"traceparent": traceparent, "tracestate": tracestate})
}
