package instrumentation

import (
	"context"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"
)

// TracerName is the default tracer name for venuedesk.
const TracerName = "github.com/teemow/venuedesk"

// Span attribute keys.
const (
	SpanAttrTool      = "mcp.tool"
	SpanAttrService   = "external.service"
	SpanAttrOperation = "external.operation"
	SpanAttrMessageID = "email.message_id"
	SpanAttrThreadID  = "email.thread_id"
	SpanAttrShortID   = "approval.short_id"
	SpanAttrCategory  = "email.category"
	SpanAttrCount     = "batch.count"
	SpanAttrForce     = "sync.force_refresh"
	SpanAttrFiltered  = "sync.filtered"
	SpanAttrStatus    = "venuedesk.status"
	SpanAttrPhoneHash = "sms.phone_hash"
	SpanAttrCommand   = "approval.command"
)

// SpanAttributeBuilder helps construct OpenTelemetry span attributes
// with consistent naming.
type SpanAttributeBuilder struct {
	attrs []attribute.KeyValue
}

// NewSpanAttributeBuilder creates a new SpanAttributeBuilder.
func NewSpanAttributeBuilder() *SpanAttributeBuilder {
	return &SpanAttributeBuilder{
		attrs: make([]attribute.KeyValue, 0, 8),
	}
}

// WithMessage adds message and thread identifiers. Empty values are skipped.
func (b *SpanAttributeBuilder) WithMessage(messageID, threadID string) *SpanAttributeBuilder {
	if messageID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrMessageID, messageID))
	}
	if threadID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrThreadID, threadID))
	}
	return b
}

// WithShortID adds the pending action token.
func (b *SpanAttributeBuilder) WithShortID(shortID string) *SpanAttributeBuilder {
	if shortID != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrShortID, shortID))
	}
	return b
}

// WithCategory adds the email category.
func (b *SpanAttributeBuilder) WithCategory(category string) *SpanAttributeBuilder {
	if category != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrCategory, category))
	}
	return b
}

// WithCommand adds an operator command verb and its outcome.
func (b *SpanAttributeBuilder) WithCommand(verb, status string) *SpanAttributeBuilder {
	if verb != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrCommand, verb))
	}
	return b.WithStatus(status)
}

// WithStatus adds a low-cardinality outcome such as a sync or approval
// result.
func (b *SpanAttributeBuilder) WithStatus(status string) *SpanAttributeBuilder {
	if status != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrStatus, status))
	}
	return b
}

// WithPhoneHash adds an already hashed phone number.
func (b *SpanAttributeBuilder) WithPhoneHash(hash string) *SpanAttributeBuilder {
	if hash != "" {
		b.attrs = append(b.attrs, attribute.String(SpanAttrPhoneHash, hash))
	}
	return b
}

// WithCount adds a batch size.
func (b *SpanAttributeBuilder) WithCount(n int) *SpanAttributeBuilder {
	b.attrs = append(b.attrs, attribute.Int(SpanAttrCount, n))
	return b
}

// WithSync adds the refresh flags of a sync run.
func (b *SpanAttributeBuilder) WithSync(force, filtered bool) *SpanAttributeBuilder {
	b.attrs = append(b.attrs,
		attribute.Bool(SpanAttrForce, force),
		attribute.Bool(SpanAttrFiltered, filtered),
	)
	return b
}

// Build returns the constructed attributes.
func (b *SpanAttributeBuilder) Build() []attribute.KeyValue {
	return b.attrs
}

// StartSpan starts a new span with the given name and attributes.
// The caller ends the span.
func StartSpan(ctx context.Context, name string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, name, trace.WithAttributes(attrs...))
}

// StartToolSpan starts a span for an MCP tool invocation.
func StartToolSpan(ctx context.Context, toolName string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+1)
	allAttrs = append(allAttrs, attribute.String(SpanAttrTool, toolName))
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, "tool."+toolName,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindServer),
	)
}

// StartExternalSpan starts a client span for a call to Gmail, Calendar,
// the language model or the SMS gateway.
func StartExternalSpan(ctx context.Context, service, operation string, attrs ...attribute.KeyValue) (context.Context, trace.Span) {
	allAttrs := make([]attribute.KeyValue, 0, len(attrs)+2)
	allAttrs = append(allAttrs,
		attribute.String(SpanAttrService, service),
		attribute.String(SpanAttrOperation, operation),
	)
	allAttrs = append(allAttrs, attrs...)

	tracer := otel.GetTracerProvider().Tracer(TracerName)
	return tracer.Start(ctx, service+"."+operation,
		trace.WithAttributes(allAttrs...),
		trace.WithSpanKind(trace.SpanKindClient),
	)
}

// SetSpanError records an error on the span and sets the status to error.
func SetSpanError(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
}

// SetSpanSuccess sets the span status to OK.
func SetSpanSuccess(span trace.Span) {
	span.SetStatus(codes.Ok, "")
}

// EndSpan sets the span status from err and ends it.
func EndSpan(span trace.Span, err error) {
	if err != nil {
		SetSpanError(span, err)
	} else {
		SetSpanSuccess(span)
	}
	span.End()
}

// GetTraceID returns the trace ID from the current span in context.
// Returns empty string if no valid span is present.
func GetTraceID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().TraceID().String()
	}
	return ""
}

// GetSpanID returns the span ID from the current span in context.
func GetSpanID(ctx context.Context) string {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		return span.SpanContext().SpanID().String()
	}
	return ""
}
