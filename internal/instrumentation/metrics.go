package instrumentation

import (
	"context"
	"fmt"
	"strconv"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

// Metric attribute keys
const (
	attrMethod    = "method"
	attrPath      = "path"
	attrStatus    = "status"
	attrOperation = "operation"
	attrService   = "service"
	attrResult    = "result"
	attrTool      = "tool"
	attrCategory  = "category"
	attrCommand   = "command"
	attrDomain    = "domain"
)

var durationBuckets = metric.WithExplicitBucketBoundaries(0.01, 0.05, 0.1, 0.25, 0.5, 1.0, 2.5, 5.0, 10.0, 30.0, 60.0)

// Metrics provides methods for recording observability metrics.
// A zero Metrics is a valid no-op recorder.
type Metrics struct {
	// HTTP
	httpRequestsTotal   metric.Int64Counter
	httpRequestDuration metric.Float64Histogram

	// External APIs
	apiOperationsTotal   metric.Int64Counter
	apiOperationDuration metric.Float64Histogram

	// Sync pipeline
	syncRunsTotal        metric.Int64Counter
	syncDuration         metric.Float64Histogram
	hydrationsTotal      metric.Int64Counter
	classificationsTotal metric.Int64Counter
	associationLookups   metric.Int64Counter
	associationIndexSize metric.Int64Gauge
	threadCacheLookups   metric.Int64Counter
	suggestionsTotal     metric.Int64Counter
	approvalsTotal       metric.Int64Counter
	pendingActions       metric.Int64UpDownCounter
	smsTotal             metric.Int64Counter

	// MCP tools
	toolInvocationsTotal metric.Int64Counter
	toolDuration         metric.Float64Histogram

	detailedLabels bool
}

// NewMetrics creates a new Metrics instance with all instruments initialized.
// detailedLabels adds the caller domain to tool metrics.
func NewMetrics(meter metric.Meter, detailedLabels bool) (*Metrics, error) {
	m := &Metrics{detailedLabels: detailedLabels}

	counters := []struct {
		dst  *metric.Int64Counter
		name string
		desc string
		unit string
	}{
		{&m.httpRequestsTotal, "http_requests_total", "Total number of HTTP requests", "{request}"},
		{&m.apiOperationsTotal, "external_api_operations_total", "Total number of Gmail, Calendar, LLM and Signal operations", "{operation}"},
		{&m.syncRunsTotal, "email_sync_runs_total", "Email sync runs by outcome", "{run}"},
		{&m.hydrationsTotal, "email_hydrations_total", "Messages hydrated from the mail provider", "{message}"},
		{&m.classificationsTotal, "email_classifications_total", "Message classifications by category", "{message}"},
		{&m.associationLookups, "event_association_lookups_total", "Event association lookups by result", "{lookup}"},
		{&m.threadCacheLookups, "thread_cache_lookups_total", "Thread cache lookups by result", "{lookup}"},
		{&m.suggestionsTotal, "suggestions_total", "Suggestion runs by outcome", "{run}"},
		{&m.approvalsTotal, "approval_commands_total", "Operator approval commands by outcome", "{command}"},
		{&m.smsTotal, "sms_sent_total", "Outbound SMS by status", "{message}"},
		{&m.toolInvocationsTotal, "mcp_tool_invocations_total", "Total number of MCP tool invocations", "{invocation}"},
	}
	for _, c := range counters {
		counter, err := meter.Int64Counter(c.name, metric.WithDescription(c.desc), metric.WithUnit(c.unit))
		if err != nil {
			return nil, fmt.Errorf("failed to create %s counter: %w", c.name, err)
		}
		*c.dst = counter
	}

	histograms := []struct {
		dst  *metric.Float64Histogram
		name string
		desc string
	}{
		{&m.httpRequestDuration, "http_request_duration_seconds", "HTTP request duration in seconds"},
		{&m.apiOperationDuration, "external_api_operation_duration_seconds", "External API operation duration in seconds"},
		{&m.syncDuration, "email_sync_duration_seconds", "Email sync run duration in seconds"},
		{&m.toolDuration, "mcp_tool_duration_seconds", "MCP tool execution duration in seconds"},
	}
	for _, h := range histograms {
		hist, err := meter.Float64Histogram(h.name, metric.WithDescription(h.desc), metric.WithUnit("s"), durationBuckets)
		if err != nil {
			return nil, fmt.Errorf("failed to create %s histogram: %w", h.name, err)
		}
		*h.dst = hist
	}

	var err error
	m.pendingActions, err = meter.Int64UpDownCounter(
		"pending_actions_open",
		metric.WithDescription("Pending actions awaiting an operator command"),
		metric.WithUnit("{action}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create pending_actions_open gauge: %w", err)
	}

	m.associationIndexSize, err = meter.Int64Gauge(
		"event_association_index_size",
		metric.WithDescription("Addresses in the event association index"),
		metric.WithUnit("{address}"),
	)
	if err != nil {
		return nil, fmt.Errorf("failed to create event_association_index_size gauge: %w", err)
	}

	return m, nil
}

func statusOf(err error) string {
	if err != nil {
		return StatusError
	}
	return StatusSuccess
}

// RecordHTTPRequest records an HTTP request with method, path, status code, and duration.
func (m *Metrics) RecordHTTPRequest(ctx context.Context, method, path string, statusCode int, duration time.Duration) {
	if m == nil || m.httpRequestsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrMethod, method),
		attribute.String(attrPath, path),
		attribute.String(attrStatus, strconv.Itoa(statusCode)),
	)
	m.httpRequestsTotal.Add(ctx, 1, attrs)
	m.httpRequestDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordAPIOperation records a call to an external service (ServiceGmail,
// ServiceCalendar, ServiceLLM, ServiceSignal).
func (m *Metrics) RecordAPIOperation(ctx context.Context, service, operation string, err error, duration time.Duration) {
	if m == nil || m.apiOperationsTotal == nil {
		return
	}

	attrs := metric.WithAttributes(
		attribute.String(attrService, service),
		attribute.String(attrOperation, operation),
		attribute.String(attrStatus, statusOf(err)),
	)
	m.apiOperationsTotal.Add(ctx, 1, attrs)
	m.apiOperationDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordSyncRun records one GetAllEmails call. result is SyncCacheHit,
// SyncRefreshed or SyncFailed.
func (m *Metrics) RecordSyncRun(ctx context.Context, result string, duration time.Duration) {
	if m == nil || m.syncRunsTotal == nil {
		return
	}
	attrs := metric.WithAttributes(attribute.String(attrResult, result))
	m.syncRunsTotal.Add(ctx, 1, attrs)
	m.syncDuration.Record(ctx, duration.Seconds(), attrs)
}

// RecordHydration records the outcome of hydrating one message.
func (m *Metrics) RecordHydration(ctx context.Context, err error) {
	if m == nil || m.hydrationsTotal == nil {
		return
	}
	m.hydrationsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, statusOf(err))))
}

// RecordClassification records the category chosen for a message. A
// failed classification is recorded with status error and the fallback
// category.
func (m *Metrics) RecordClassification(ctx context.Context, category string, err error) {
	if m == nil || m.classificationsTotal == nil {
		return
	}
	m.classificationsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCategory, category),
		attribute.String(attrStatus, statusOf(err)),
	))
}

// RecordAssociationLookup records whether a message matched an event.
func (m *Metrics) RecordAssociationLookup(ctx context.Context, matched bool) {
	if m == nil || m.associationLookups == nil {
		return
	}
	result := "unmatched"
	if matched {
		result = "matched"
	}
	m.associationLookups.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordAssociationIndexSize records the size of a freshly built index.
func (m *Metrics) RecordAssociationIndexSize(ctx context.Context, size int) {
	if m == nil || m.associationIndexSize == nil {
		return
	}
	m.associationIndexSize.Record(ctx, int64(size))
}

// RecordThreadCacheLookup records a thread cache hit or miss.
func (m *Metrics) RecordThreadCacheLookup(ctx context.Context, hit bool) {
	if m == nil || m.threadCacheLookups == nil {
		return
	}
	result := "miss"
	if hit {
		result = "hit"
	}
	m.threadCacheLookups.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordSuggestion records the outcome of a suggestion run.
func (m *Metrics) RecordSuggestion(ctx context.Context, result string) {
	if m == nil || m.suggestionsTotal == nil {
		return
	}
	m.suggestionsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrResult, result)))
}

// RecordApproval records an operator command. command is "yes", "edit"
// or "unknown".
func (m *Metrics) RecordApproval(ctx context.Context, command, result string) {
	if m == nil || m.approvalsTotal == nil {
		return
	}
	m.approvalsTotal.Add(ctx, 1, metric.WithAttributes(
		attribute.String(attrCommand, command),
		attribute.String(attrResult, result),
	))
}

// AddPendingActions moves the open pending action gauge by delta.
func (m *Metrics) AddPendingActions(ctx context.Context, delta int64) {
	if m == nil || m.pendingActions == nil {
		return
	}
	m.pendingActions.Add(ctx, delta)
}

// RecordSMS records an outbound SMS.
func (m *Metrics) RecordSMS(ctx context.Context, err error) {
	if m == nil || m.smsTotal == nil {
		return
	}
	m.smsTotal.Add(ctx, 1, metric.WithAttributes(attribute.String(attrStatus, statusOf(err))))
}

// RecordToolInvocation records an MCP tool invocation. caller is only
// used, reduced to its domain, when detailed labels are enabled.
func (m *Metrics) RecordToolInvocation(ctx context.Context, toolName, status, caller string, duration time.Duration) {
	if m == nil || m.toolInvocationsTotal == nil {
		return
	}

	attrs := []attribute.KeyValue{
		attribute.String(attrTool, toolName),
		attribute.String(attrStatus, status),
	}
	if m.detailedLabels && caller != "" {
		attrs = append(attrs, attribute.String(attrDomain, ExtractUserDomain(caller)))
	}

	m.toolInvocationsTotal.Add(ctx, 1, metric.WithAttributes(attrs...))
	m.toolDuration.Record(ctx, duration.Seconds(), metric.WithAttributes(attrs...))
}
