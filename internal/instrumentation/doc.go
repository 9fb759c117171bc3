// Package instrumentation provides OpenTelemetry metrics, tracing and
// audit logging for venuedesk.
//
// # Metrics
//
// Server/HTTP:
//   - http_requests_total, http_request_duration_seconds
//
// External services (gmail, calendar, llm, signal):
//   - external_api_operations_total, external_api_operation_duration_seconds
//
// Pipeline:
//   - email_sync_runs_total{result}, email_sync_duration_seconds
//   - email_hydrations_total{status}
//   - email_classifications_total{category,status}
//   - event_association_lookups_total{result}, event_association_index_size
//   - thread_cache_lookups_total{result}
//   - suggestions_total{result}
//   - approval_commands_total{command,result}, pending_actions_open
//   - sms_sent_total{status}
//
// MCP tools:
//   - mcp_tool_invocations_total, mcp_tool_duration_seconds
//
// Label values come from closed sets. Message ids, short ids, addresses and
// phone numbers appear only on spans and in audit logs, never as metric
// labels.
//
// # Configuration
//
//   - INSTRUMENTATION_ENABLED: Enable/disable instrumentation (default: true)
//   - METRICS_EXPORTER: prometheus, otlp, stdout (default: prometheus)
//   - TRACING_EXPORTER: otlp, stdout, none (default: none)
//   - OTEL_EXPORTER_OTLP_ENDPOINT: OTLP endpoint for traces/metrics
//   - OTEL_TRACES_SAMPLER_ARG: Sampling rate (0.0 to 1.0, default: 0.1)
//   - OTEL_SERVICE_NAME: Service name (default: venuedesk)
//   - AUDIT_LOGGING_ENABLED, AUDIT_LOGGING_INCLUDE_PII
//
// # Example Usage
//
//	provider, err := instrumentation.NewProvider(ctx, instrumentation.DefaultConfig())
//	if err != nil {
//		return err
//	}
//	defer provider.Shutdown(ctx)
//
//	m := provider.Metrics()
//	m.RecordSyncRun(ctx, instrumentation.SyncRefreshed, time.Since(start))
//	m.RecordApproval(ctx, "yes", instrumentation.ApprovalSent)
package instrumentation
