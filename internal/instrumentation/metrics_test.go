package instrumentation

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.opentelemetry.io/otel/attribute"
	sdkmetric "go.opentelemetry.io/otel/sdk/metric"
	"go.opentelemetry.io/otel/sdk/metric/metricdata"
)

func newTestMetrics(t *testing.T, detailed bool) (*Metrics, *sdkmetric.ManualReader) {
	t.Helper()
	reader := sdkmetric.NewManualReader()
	mp := sdkmetric.NewMeterProvider(sdkmetric.WithReader(reader))
	t.Cleanup(func() { _ = mp.Shutdown(context.Background()) })

	m, err := NewMetrics(mp.Meter("test"), detailed)
	require.NoError(t, err)
	return m, reader
}

// sumFor returns the value of the int64 sum named name whose data point
// carries every attribute in want.
func sumFor(t *testing.T, reader *sdkmetric.ManualReader, name string, want ...attribute.KeyValue) int64 {
	t.Helper()
	var rm metricdata.ResourceMetrics
	require.NoError(t, reader.Collect(context.Background(), &rm))

	var total int64
	for _, sm := range rm.ScopeMetrics {
		for _, m := range sm.Metrics {
			if m.Name != name {
				continue
			}
			sum, ok := m.Data.(metricdata.Sum[int64])
			require.True(t, ok, "metric %s is not an int64 sum", name)
			for _, dp := range sum.DataPoints {
				if hasAll(dp.Attributes, want) {
					total += dp.Value
				}
			}
		}
	}
	return total
}

func hasAll(set attribute.Set, want []attribute.KeyValue) bool {
	for _, kv := range want {
		v, ok := set.Value(kv.Key)
		if !ok || v != kv.Value {
			return false
		}
	}
	return true
}

func TestMetrics_NilSafe(t *testing.T) {
	ctx := context.Background()
	var m *Metrics
	m.RecordSyncRun(ctx, SyncRefreshed, time.Second)
	m.RecordHydration(ctx, nil)
	m.RecordApproval(ctx, "yes", ApprovalSent)
	m.AddPendingActions(ctx, 1)

	empty := &Metrics{}
	empty.RecordHTTPRequest(ctx, "GET", "/healthz", 200, time.Millisecond)
	empty.RecordToolInvocation(ctx, "venue_list_emails", StatusSuccess, "", time.Millisecond)
	empty.RecordAssociationIndexSize(ctx, 3)
}

func TestMetrics_SyncAndHydration(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordSyncRun(ctx, SyncCacheHit, time.Millisecond)
	m.RecordSyncRun(ctx, SyncRefreshed, time.Second)
	m.RecordSyncRun(ctx, SyncRefreshed, time.Second)
	m.RecordHydration(ctx, nil)
	m.RecordHydration(ctx, errors.New("boom"))

	assert.Equal(t, int64(1), sumFor(t, reader, "email_sync_runs_total", attribute.String("result", SyncCacheHit)))
	assert.Equal(t, int64(2), sumFor(t, reader, "email_sync_runs_total", attribute.String("result", SyncRefreshed)))
	assert.Equal(t, int64(1), sumFor(t, reader, "email_hydrations_total", attribute.String("status", StatusError)))
	assert.Equal(t, int64(2), sumFor(t, reader, "email_hydrations_total"))
}

func TestMetrics_ApprovalsAndPending(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.AddPendingActions(ctx, 1)
	m.AddPendingActions(ctx, 1)
	m.AddPendingActions(ctx, -1)
	m.RecordApproval(ctx, "edit", ApprovalSent)
	m.RecordApproval(ctx, "unknown", ApprovalInvalid)

	assert.Equal(t, int64(1), sumFor(t, reader, "pending_actions_open"))
	assert.Equal(t, int64(1), sumFor(t, reader, "approval_commands_total",
		attribute.String("command", "edit"), attribute.String("result", ApprovalSent)))
	assert.Equal(t, int64(1), sumFor(t, reader, "approval_commands_total", attribute.String("result", ApprovalInvalid)))
}

func TestMetrics_ToolInvocationLabels(t *testing.T) {
	tests := []struct {
		name     string
		detailed bool
		want     []attribute.KeyValue
	}{
		{
			name:     "domain omitted by default",
			detailed: false,
			want:     []attribute.KeyValue{attribute.String("tool", "venue_list_emails")},
		},
		{
			name:     "domain included with detailed labels",
			detailed: true,
			want: []attribute.KeyValue{
				attribute.String("tool", "venue_list_emails"),
				attribute.String("domain", "example.com"),
			},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			m, reader := newTestMetrics(t, tt.detailed)
			m.RecordToolInvocation(context.Background(), "venue_list_emails", StatusSuccess, "ops@Example.com", time.Millisecond)
			assert.Equal(t, int64(1), sumFor(t, reader, "mcp_tool_invocations_total", tt.want...))
			if !tt.detailed {
				assert.Equal(t, int64(0), sumFor(t, reader, "mcp_tool_invocations_total", attribute.String("domain", "example.com")))
			}
		})
	}
}

func TestMetrics_ExternalAPI(t *testing.T) {
	m, reader := newTestMetrics(t, false)
	ctx := context.Background()

	m.RecordAPIOperation(ctx, ServiceGmail, OperationGet, nil, time.Millisecond)
	m.RecordAPIOperation(ctx, ServiceGmail, OperationGet, errors.New("503"), time.Millisecond)
	m.RecordAPIOperation(ctx, ServiceLLM, OperationClassify, nil, time.Millisecond)

	assert.Equal(t, int64(2), sumFor(t, reader, "external_api_operations_total", attribute.String("service", ServiceGmail)))
	assert.Equal(t, int64(1), sumFor(t, reader, "external_api_operations_total",
		attribute.String("service", ServiceGmail), attribute.String("status", StatusError)))
}

func TestExtractUserDomain(t *testing.T) {
	tests := map[string]string{
		"jane@example.com": "example.com",
		"Jane@EXAMPLE.com": "example.com",
		"invalid":          "unknown",
		"":                 "unknown",
		"a@b@c":            "unknown",
		"trailing@":        "unknown",
	}
	for in, want := range tests {
		assert.Equal(t, want, ExtractUserDomain(in), in)
	}
}
