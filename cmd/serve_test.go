package cmd

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"strings"
	"testing"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/venuedesk/internal/model"
	"github.com/teemow/venuedesk/internal/server"
)

func TestParseCommaSeparatedList(t *testing.T) {
	tests := []struct {
		name     string
		input    string
		expected []string
	}{
		{name: "empty string", input: "", expected: nil},
		{name: "single value", input: "+15550001", expected: []string{"+15550001"}},
		{name: "multiple values", input: "+15550001,+15550002", expected: []string{"+15550001", "+15550002"}},
		{name: "spaces around comma", input: "  +15550001 ,  +15550002  ", expected: []string{"+15550001", "+15550002"}},
		{name: "trailing comma", input: "+15550001,", expected: []string{"+15550001"}},
		{name: "consecutive commas", input: "+15550001,,+15550002", expected: []string{"+15550001", "+15550002"}},
		{name: "only commas and spaces", input: ",  , , ", expected: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, parseCommaSeparatedList(tt.input))
		})
	}
}

func TestSummarize(t *testing.T) {
	ev := "ev-1"
	msgs := []model.Message{
		{ID: "1", Category: "event", Replied: true, AssociatedEventID: &ev},
		{ID: "2", Category: "event"},
		{ID: "3", Category: "invoice"},
	}

	s := summarize(msgs)
	assert.Equal(t, 3, s.Total)
	assert.Equal(t, 1, s.Replied)
	assert.Equal(t, 1, s.Associated)
	assert.Equal(t, map[string]int{"event": 2, "invoice": 1}, s.ByCategory)

	var text bytes.Buffer
	require.NoError(t, s.write(&text, false))
	assert.Equal(t, "3 messages (1 replied, 1 linked to events)\n  event        2\n  invoice      1\n", text.String())

	var raw bytes.Buffer
	require.NoError(t, s.write(&raw, true))
	var decoded syncSummary
	require.NoError(t, json.Unmarshal(raw.Bytes(), &decoded))
	assert.Equal(t, s, decoded)
}

func TestGetCategoryFromToolName(t *testing.T) {
	tests := map[string]string{
		"venue_list_emails":     "Email Tools",
		"venue_archive_email":   "Email Tools",
		"venue_list_pending":    "Approval Tools",
		"venue_resolve_command": "Approval Tools",
		"venue_run_suggestion":  "Approval Tools",
		"gmail_list_threads":    "Other",
		"venue":                 "Other",
	}
	for name, want := range tests {
		assert.Equal(t, want, getCategoryFromToolName(name), name)
	}
}

func TestToolsMarkdown(t *testing.T) {
	sc := server.NewServerContext(context.Background(), server.Components{})
	t.Cleanup(func() { _ = sc.Shutdown() })

	md, err := toolsMarkdown(sc)
	require.NoError(t, err)

	assert.True(t, strings.HasPrefix(md, "# MCP Tools Reference\n"))
	for _, name := range []string{
		"venue_list_emails", "venue_refresh_emails", "venue_archive_email",
		"venue_list_pending", "venue_resolve_command", "venue_run_suggestion",
	} {
		assert.Contains(t, md, "### "+name+"\n")
	}
	assert.Contains(t, md, "- [Approval Tools](#approval-tools)")
	assert.Contains(t, md, "### venue_list_pending\n\nList AI drafted replies awaiting operator approval, oldest first\n\n_Read-only._\n\nNo arguments.\n")
	assert.Contains(t, md, "| `command` | string | yes |")
	assert.Contains(t, md, "| `messageIds` | string | yes |")
}

func TestDisabledSMS(t *testing.T) {
	_, err := disabledSMS{}.Send(context.Background(), "+15550001", "hi")
	assert.ErrorIs(t, err, errSMSDisabled)
}

func TestServeUntilDone_MCPHTTP(t *testing.T) {
	sc := server.NewServerContext(context.Background(), server.Components{})
	t.Cleanup(func() { _ = sc.Shutdown() })

	mcpSrv := mcpserver.NewMCPServer("venuedesk", "test", mcpserver.WithToolCapabilities(true))
	require.NoError(t, registerAllTools(mcpSrv, sc, true))

	httpSrv := newMCPHTTPServer(mcpSrv, "127.0.0.1:0")
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))

	ctx, cancel := context.WithCancel(context.Background())
	done := make(chan error, 1)
	go func() {
		done <- serveUntilDone(ctx, "MCP HTTP", httpSrv.StartWithReadySignal, httpSrv.Shutdown, httpSrv.Addr, logger)
	}()

	require.Eventually(t, func() bool {
		return !strings.HasSuffix(httpSrv.Addr(), ":0")
	}, 5*time.Second, 10*time.Millisecond)

	body := `{"jsonrpc":"2.0","id":1,"method":"initialize","params":{"protocolVersion":"2025-03-26","capabilities":{},"clientInfo":{"name":"test","version":"1"}}}`
	req, err := http.NewRequest(http.MethodPost, "http://"+httpSrv.Addr()+"/mcp", strings.NewReader(body))
	require.NoError(t, err)
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json, text/event-stream")

	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	_ = resp.Body.Close()
	assert.Equal(t, http.StatusOK, resp.StatusCode)

	cancel()
	select {
	case err := <-done:
		assert.NoError(t, err)
	case <-time.After(5 * time.Second):
		t.Fatal("server did not stop")
	}
}
