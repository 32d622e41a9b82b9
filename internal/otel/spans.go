package otel

import (
	"context"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

// Standard attribute keys for transfer-pipeline spans.
var (
	AttrTaskID     = attribute.Key("bridge.task.id")
	AttrChatID     = attribute.Key("bridge.chat.id")
	AttrCmdType    = attribute.Key("bridge.cmd_type")
	AttrFilename   = attribute.Key("bridge.filename")
	AttrPartOffset = attribute.Key("bridge.part.offset")
	AttrPartSize   = attribute.Key("bridge.part.size")
	AttrAccount    = attribute.Key("bridge.storage.account")
)

// StartSpan is a convenience wrapper that starts an internal span with
// common attributes, used around a single part upload or store write.
func StartSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindInternal),
	)
}

// StartClientSpan starts a span for an outbound call (chat platform,
// storage provider).
func StartClientSpan(ctx context.Context, tracer trace.Tracer, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	return tracer.Start(ctx, name,
		trace.WithAttributes(attrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}
