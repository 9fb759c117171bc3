package common

import (
	"context"
	"encoding/json"
	"errors"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestRunBatch(t *testing.T) {
	var seen []string
	br := RunBatch(context.Background(), []string{"a", "b", "c"}, func(_ context.Context, id string) error {
		seen = append(seen, id)
		if id == "b" {
			return errors.New("not found")
		}
		return nil
	})

	assert.Equal(t, []string{"a", "b", "c"}, seen)
	assert.Equal(t, 3, br.Total)
	assert.Equal(t, 2, br.Successful)
	assert.Equal(t, 1, br.Failed)
	assert.Equal(t, BatchItem{ID: "b", Status: BatchError, Error: "not found"}, br.Results[1])
}

func TestRunBatch_Cancelled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	calls := 0
	br := RunBatch(ctx, []string{"a", "b"}, func(context.Context, string) error {
		calls++
		return nil
	})
	assert.Zero(t, calls)
	assert.Equal(t, 2, br.Failed)
}

func TestBatchToolResult(t *testing.T) {
	tests := []struct {
		name    string
		br      BatchResult
		isError bool
	}{
		{name: "all ok", br: BatchResult{Total: 1, Successful: 1, Results: []BatchItem{{ID: "a", Status: BatchSuccess}}}},
		{name: "partial", br: BatchResult{Total: 2, Successful: 1, Failed: 1}},
		{name: "all failed", br: BatchResult{Total: 1, Failed: 1}, isError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res, err := BatchToolResult(tt.br)
			require.NoError(t, err)
			assert.Equal(t, tt.isError, res.IsError)

			text, ok := res.Content[0].(mcp.TextContent)
			require.True(t, ok)
			var got BatchResult
			require.NoError(t, json.Unmarshal([]byte(text.Text), &got))
			assert.Equal(t, tt.br.Total, got.Total)
		})
	}
}
