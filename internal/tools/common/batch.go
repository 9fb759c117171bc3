package common

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
)

// Batch item statuses.
const (
	BatchSuccess = "success"
	BatchError   = "error"
)

// BatchItem is the outcome for one id of a batch call.
type BatchItem struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error,omitempty"`
}

// BatchResult aggregates a batch call.
type BatchResult struct {
	Total      int         `json:"total"`
	Successful int         `json:"successful"`
	Failed     int         `json:"failed"`
	Results    []BatchItem `json:"results"`
}

// RunBatch applies fn to each id in order. A failing id does not stop the
// rest; a cancelled ctx marks the remaining ids as failed.
func RunBatch(ctx context.Context, ids []string, fn func(ctx context.Context, id string) error) BatchResult {
	br := BatchResult{Total: len(ids), Results: make([]BatchItem, 0, len(ids))}
	for _, id := range ids {
		item := BatchItem{ID: id, Status: BatchSuccess}
		err := ctx.Err()
		if err == nil {
			err = fn(ctx, id)
		}
		if err != nil {
			item.Status = BatchError
			item.Error = err.Error()
			br.Failed++
		} else {
			br.Successful++
		}
		br.Results = append(br.Results, item)
	}
	return br
}

// JSONResult renders v as an indented JSON text result.
func JSONResult(v any) (*mcp.CallToolResult, error) {
	b, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return nil, fmt.Errorf("failed to encode result: %w", err)
	}
	return mcp.NewToolResultText(string(b)), nil
}

// BatchToolResult renders br, flagging the result as an error when every
// item failed.
func BatchToolResult(br BatchResult) (*mcp.CallToolResult, error) {
	res, err := JSONResult(br)
	if err != nil {
		return nil, err
	}
	res.IsError = br.Total > 0 && br.Failed == br.Total
	return res, nil
}
