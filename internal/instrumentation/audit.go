package instrumentation

import (
	"context"
	"log/slog"
	"time"

	"go.opentelemetry.io/otel/trace"
)

// ToolInvocation captures one MCP tool call for the audit trail.
//
// Caller holds an address or phone number when the transport provides
// one. It is only logged in full when the audit logger includes PII.
type ToolInvocation struct {
	Tool      string
	Caller    string
	Operation string

	StartTime time.Time
	Duration  time.Duration
	Success   bool
	Error     string

	TraceID string
	SpanID  string
}

// NewToolInvocation creates a new ToolInvocation with timing started.
func NewToolInvocation(tool string) *ToolInvocation {
	return &ToolInvocation{
		Tool:      tool,
		StartTime: time.Now(),
	}
}

// WithCaller sets the caller identity.
func (ti *ToolInvocation) WithCaller(caller string) *ToolInvocation {
	ti.Caller = caller
	return ti
}

// WithOperation sets the operation label.
func (ti *ToolInvocation) WithOperation(operation string) *ToolInvocation {
	ti.Operation = operation
	return ti
}

// WithSpanContext copies trace identifiers from the current span.
func (ti *ToolInvocation) WithSpanContext(ctx context.Context) *ToolInvocation {
	span := trace.SpanFromContext(ctx)
	if span.SpanContext().IsValid() {
		ti.TraceID = span.SpanContext().TraceID().String()
		ti.SpanID = span.SpanContext().SpanID().String()
	}
	return ti
}

// Complete marks the invocation as completed and calculates duration.
func (ti *ToolInvocation) Complete(err error) *ToolInvocation {
	ti.Duration = time.Since(ti.StartTime)
	ti.Success = err == nil
	if err != nil {
		ti.Error = err.Error()
	}
	return ti
}

// Status returns "success" or "error" based on the Success field.
func (ti *ToolInvocation) Status() string {
	if ti.Success {
		return StatusSuccess
	}
	return StatusError
}

func (ti *ToolInvocation) attrs(includePII bool) []any {
	attrs := []any{
		slog.String("tool", ti.Tool),
		slog.Duration("duration", ti.Duration),
		slog.Bool("success", ti.Success),
	}
	if ti.Caller != "" {
		if includePII {
			attrs = append(attrs, slog.String("caller", ti.Caller))
		} else {
			attrs = append(attrs, slog.String("caller_domain", ExtractUserDomain(ti.Caller)))
		}
	}
	if ti.Operation != "" {
		attrs = append(attrs, slog.String("operation", ti.Operation))
	}
	if ti.TraceID != "" {
		attrs = append(attrs, slog.String("trace_id", ti.TraceID))
	}
	if includePII && ti.SpanID != "" {
		attrs = append(attrs, slog.String("span_id", ti.SpanID))
	}
	if ti.Error != "" {
		attrs = append(attrs, slog.String("error", ti.Error))
	}
	return attrs
}

// ApprovalDecision records what an operator command did to a pending
// action. Phone and recipient are hashed unless PII is included.
type ApprovalDecision struct {
	ShortID   string
	Command   string
	Result    string
	Phone     string
	Recipient string
	Edited    bool
	Error     string
}

// AuditLogger writes audit records for tool invocations and approval
// decisions.
type AuditLogger struct {
	logger     *slog.Logger
	includePII bool
	enabled    bool

	// hash turns a phone number or address into a stable pseudonym.
	hash func(string) string
}

// NewAuditLogger creates an AuditLogger from config. hash pseudonymises
// phone numbers and addresses when PII is excluded; nil drops them.
func NewAuditLogger(logger *slog.Logger, config AuditLoggingConfig, hash func(string) string) *AuditLogger {
	if logger == nil {
		logger = slog.Default()
	}
	return &AuditLogger{
		logger:     logger,
		includePII: config.IncludePII,
		enabled:    config.Enabled,
		hash:       hash,
	}
}

// LogToolInvocation logs a completed tool invocation.
func (al *AuditLogger) LogToolInvocation(ti *ToolInvocation) {
	if al == nil || !al.enabled {
		return
	}

	if ti.Success {
		al.logger.Info("tool_executed", ti.attrs(al.includePII)...)
	} else {
		al.logger.Warn("tool_failed", ti.attrs(al.includePII)...)
	}
}

func (al *AuditLogger) identity(v string) string {
	if v == "" || al.includePII {
		return v
	}
	if al.hash == nil {
		return ""
	}
	return al.hash(v)
}

// LogApproval logs an operator decision on a pending action.
func (al *AuditLogger) LogApproval(d ApprovalDecision) {
	if al == nil || !al.enabled {
		return
	}

	args := []any{
		slog.String("command", d.Command),
		slog.String("result", d.Result),
	}
	if d.ShortID != "" {
		args = append(args, slog.String("short_id", d.ShortID))
	}
	if v := al.identity(d.Phone); v != "" {
		args = append(args, slog.String("phone", v))
	}
	if v := al.identity(d.Recipient); v != "" {
		args = append(args, slog.String("recipient", v))
	}
	if d.Edited {
		args = append(args, slog.Bool("edited", true))
	}
	if d.Error != "" {
		args = append(args, slog.String("error", d.Error))
	}

	if d.Result == ApprovalSent {
		al.logger.Info("approval_resolved", args...)
	} else {
		al.logger.Warn("approval_rejected", args...)
	}
}
