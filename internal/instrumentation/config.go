package instrumentation

import (
	"fmt"
	"os"
	"slices"
	"strconv"
	"time"
)

// Config holds the configuration for OpenTelemetry instrumentation.
type Config struct {
	// ServiceName is the name of the service (default: venuedesk)
	ServiceName string

	ServiceVersion string

	// ServiceInstanceID defaults to the hostname, which is the pod name
	// in Kubernetes.
	ServiceInstanceID string

	// VenueName is attached to the resource so several venues can share
	// one collector.
	VenueName string

	K8sNamespace string
	K8sPodName   string

	// Enabled determines if instrumentation is active (default: true).
	// INSTRUMENTATION_ENABLED=false turns metrics and tracing off.
	Enabled bool

	// MetricsExporter is one of prometheus (default), otlp or stdout.
	MetricsExporter string

	// TracingExporter is one of none (default), otlp or stdout.
	TracingExporter string

	// OTLPEndpoint is the collector host:port without a scheme.
	OTLPEndpoint string

	// OTLPInsecure switches OTLP export to plain HTTP. Spans carry
	// message ids, so keep TLS outside local development.
	OTLPInsecure bool

	// TraceSamplingRate is the parent based ratio, 0.0 to 1.0 (default 0.1).
	TraceSamplingRate float64

	// ExportInterval is how often push exporters flush metrics.
	ExportInterval time.Duration

	// PrometheusEndpoint is the scrape path (default: /metrics).
	PrometheusEndpoint string

	// DetailedLabels adds the caller's hashed identity to tool metrics.
	// Leave it off in production to bound cardinality.
	DetailedLabels bool

	AuditLogging AuditLoggingConfig
}

// AuditLoggingConfig holds configuration for audit logging.
type AuditLoggingConfig struct {
	// Enabled determines if audit logging is active (default: true).
	// Audit logs record every approval decision and tool call.
	Enabled bool

	// IncludePII logs phone numbers and email addresses in clear text
	// instead of their hashes.
	IncludePII bool

	// LogLevel is informational; audit events are always written.
	LogLevel string
}

// Constants for metric label values.
const (
	// Status values
	StatusSuccess = "success"
	StatusError   = "error"

	// External service names
	ServiceGmail    = "gmail"
	ServiceCalendar = "calendar"
	ServiceLLM      = "llm"
	ServiceSignal   = "signal"

	// Exporter types
	ExporterPrometheus = "prometheus"
	ExporterOTLP       = "otlp"
	ExporterStdout     = "stdout"
	ExporterNone       = "none"

	DefaultMetricInterval = 10 * time.Second
)

// envSource reads settings from the process environment. Unset or
// unparseable values fall back to the given default.
type envSource func(key string) string

func (e envSource) str(key, def string) string {
	if v := e(key); v != "" {
		return v
	}
	return def
}

// first returns the first non-empty value among keys.
func (e envSource) first(def string, keys ...string) string {
	for _, k := range keys {
		if v := e(k); v != "" {
			return v
		}
	}
	return def
}

func (e envSource) boolean(key string, def bool) bool {
	v, err := strconv.ParseBool(e(key))
	if err != nil {
		return def
	}
	return v
}

func (e envSource) float(key string, def float64) float64 {
	v, err := strconv.ParseFloat(e(key), 64)
	if err != nil {
		return def
	}
	return v
}

func (e envSource) duration(key string, def time.Duration) time.Duration {
	v, err := time.ParseDuration(e(key))
	if err != nil || v <= 0 {
		return def
	}
	return v
}

// DefaultConfig returns a Config built from the standard OTEL_* variables
// and the service's own switches.
func DefaultConfig() Config {
	env := envSource(os.Getenv)

	return Config{
		ServiceName:        env.str("OTEL_SERVICE_NAME", "venuedesk"),
		ServiceVersion:     "unknown",
		ServiceInstanceID:  env.str("OTEL_SERVICE_INSTANCE_ID", ""),
		VenueName:          env.str("VENUEDESK_VENUE_NAME", ""),
		K8sNamespace:       env.first("", "K8S_NAMESPACE", "POD_NAMESPACE"),
		K8sPodName:         env.first("", "K8S_POD_NAME", "HOSTNAME"),
		Enabled:            env.boolean("INSTRUMENTATION_ENABLED", true),
		MetricsExporter:    env.str("METRICS_EXPORTER", ExporterPrometheus),
		TracingExporter:    env.str("TRACING_EXPORTER", ExporterNone),
		OTLPEndpoint:       env.str("OTEL_EXPORTER_OTLP_ENDPOINT", ""),
		OTLPInsecure:       env.boolean("OTEL_EXPORTER_OTLP_INSECURE", false),
		TraceSamplingRate:  env.float("OTEL_TRACES_SAMPLER_ARG", 0.1),
		ExportInterval:     env.duration("OTEL_METRIC_EXPORT_INTERVAL", DefaultMetricInterval),
		PrometheusEndpoint: env.str("PROMETHEUS_ENDPOINT", "/metrics"),
		DetailedLabels:     env.boolean("METRICS_DETAILED_LABELS", false),
		AuditLogging: AuditLoggingConfig{
			Enabled:    env.boolean("AUDIT_LOGGING_ENABLED", true),
			IncludePII: env.boolean("AUDIT_LOGGING_INCLUDE_PII", false),
			LogLevel:   env.str("AUDIT_LOGGING_LEVEL", "info"),
		},
	}
}

// Validate checks exporter names, the sampling rate and that OTLP
// exporters have an endpoint. Empty exporter names take the defaults.
func (c *Config) Validate() error {
	if c.TraceSamplingRate < 0 || c.TraceSamplingRate > 1 {
		return fmt.Errorf("trace sampling rate must be between 0.0 and 1.0, got %f", c.TraceSamplingRate)
	}

	if c.MetricsExporter != "" && !slices.Contains([]string{ExporterPrometheus, ExporterOTLP, ExporterStdout}, c.MetricsExporter) {
		return fmt.Errorf("invalid metrics exporter %q, must be one of: prometheus, otlp, stdout", c.MetricsExporter)
	}
	if c.TracingExporter != "" && !slices.Contains([]string{ExporterOTLP, ExporterStdout, ExporterNone}, c.TracingExporter) {
		return fmt.Errorf("invalid tracing exporter %q, must be one of: otlp, stdout, none", c.TracingExporter)
	}

	if c.OTLPEndpoint == "" {
		if c.TracingExporter == ExporterOTLP {
			return fmt.Errorf("OTLP endpoint is required when using OTLP tracing exporter")
		}
		if c.MetricsExporter == ExporterOTLP {
			return fmt.Errorf("OTLP endpoint is required when using OTLP metrics exporter")
		}
	}

	return nil
}
