package venue_tools

import (
	"context"
	"encoding/json"
	"errors"
	"slices"
	"testing"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/teemow/venuedesk/internal/approval"
	"github.com/teemow/venuedesk/internal/model"
	"github.com/teemow/venuedesk/internal/server"
	"github.com/teemow/venuedesk/internal/suggest"
	"github.com/teemow/venuedesk/internal/tools/common"
)

type fakeMailbox struct {
	msgs     []model.Message
	refresh  []any
	archived []string
	err      error
}

func (f *fakeMailbox) GetAllEmails(_ context.Context, maxResults int, force bool, query string) ([]model.Message, error) {
	f.refresh = []any{maxResults, force, query}
	return f.msgs, f.err
}

func (f *fakeMailbox) Emails(context.Context) ([]model.Message, error) { return f.msgs, f.err }

func (f *fakeMailbox) Archive(_ context.Context, id string) error {
	if id == "missing" {
		return errors.New("message missing: not cached")
	}
	f.archived = append(f.archived, id)
	return nil
}

type fakePending []model.PendingAction

func (f fakePending) Open() []model.PendingAction { return f }

type fakeCommands struct{ text, from string }

func (f *fakeCommands) ResolveCommand(_ context.Context, text, from string) approval.Result {
	f.text, f.from = text, from
	if text == "YES9xyz" {
		return approval.Result{Message: "no pending email found for id 9xyz"}
	}
	return approval.Result{Success: true, Message: "email sent for id 1abc"}
}

type fakeSuggester struct{}

func (fakeSuggester) Run(context.Context) (suggest.Outcome, error) {
	return suggest.Outcome{Result: "created", EmailID: "m1", ShortID: "1abc", Notified: true}, nil
}

type fixture struct {
	sc       *server.ServerContext
	mailbox  *fakeMailbox
	commands *fakeCommands
}

func newFixture(t *testing.T) *fixture {
	t.Helper()
	f := &fixture{
		mailbox: &fakeMailbox{msgs: []model.Message{
			{ID: "m2", Category: "event", Replied: true},
			{ID: "m1", Category: "event"},
			{ID: "m0", Category: "other"},
		}},
		commands: &fakeCommands{},
	}
	f.sc = server.NewServerContext(context.Background(), server.Components{
		Mailbox:   f.mailbox,
		Pending:   fakePending{{ShortID: "1abc", EmailID: "m1"}},
		Commands:  f.commands,
		Suggester: fakeSuggester{},
	})
	t.Cleanup(func() { _ = f.sc.Shutdown() })
	return f
}

func request(name string, args map[string]any) mcp.CallToolRequest {
	return mcp.CallToolRequest{Params: mcp.CallToolParams{Name: name, Arguments: args}}
}

func resultText(t *testing.T, res *mcp.CallToolResult) string {
	t.Helper()
	require.NotNil(t, res)
	require.NotEmpty(t, res.Content)
	text, ok := res.Content[0].(mcp.TextContent)
	require.True(t, ok)
	return text.Text
}

func decode[T any](t *testing.T, res *mcp.CallToolResult) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal([]byte(resultText(t, res)), &v))
	return v
}

func registeredTools(t *testing.T, readOnly bool) []string {
	t.Helper()
	f := newFixture(t)
	s := mcpserver.NewMCPServer("venuedesk-test", "test", mcpserver.WithToolCapabilities(true))
	require.NoError(t, RegisterVenueTools(s, f.sc, readOnly))

	resp := s.HandleMessage(context.Background(), json.RawMessage(`{"jsonrpc":"2.0","id":1,"method":"tools/list"}`))
	raw, err := json.Marshal(resp)
	require.NoError(t, err)

	var decoded struct {
		Result struct {
			Tools []struct {
				Name string `json:"name"`
			} `json:"tools"`
		} `json:"result"`
	}
	require.NoError(t, json.Unmarshal(raw, &decoded))

	names := make([]string, 0, len(decoded.Result.Tools))
	for _, tool := range decoded.Result.Tools {
		names = append(names, tool.Name)
	}
	slices.Sort(names)
	return names
}

func TestRegisterVenueTools(t *testing.T) {
	assert.Equal(t, []string{
		"venue_list_emails",
		"venue_list_pending",
		"venue_refresh_emails",
	}, registeredTools(t, true))

	assert.Equal(t, []string{
		"venue_archive_email",
		"venue_list_emails",
		"venue_list_pending",
		"venue_refresh_emails",
		"venue_resolve_command",
		"venue_run_suggestion",
	}, registeredTools(t, false))
}

func TestHandleListEmails(t *testing.T) {
	tests := []struct {
		name string
		args map[string]any
		want []string
	}{
		{name: "all", args: map[string]any{}, want: []string{"m2", "m1", "m0"}},
		{name: "category", args: map[string]any{"category": "event"}, want: []string{"m2", "m1"}},
		{name: "unreplied events", args: map[string]any{"category": "event", "unrepliedOnly": true}, want: []string{"m1"}},
		{name: "limit", args: map[string]any{"limit": float64(1)}, want: []string{"m2"}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := handleListEmails(context.Background(), request("venue_list_emails", tt.args), f.sc)
			require.NoError(t, err)

			resp := decode[server.EmailsResponse](t, res)
			var ids []string
			for _, m := range resp.Emails {
				ids = append(ids, m.ID)
			}
			assert.Equal(t, tt.want, ids)
		})
	}
}

func TestHandleRefreshEmails(t *testing.T) {
	f := newFixture(t)

	res, err := handleRefreshEmails(context.Background(), request("venue_refresh_emails", map[string]any{
		"maxResults":   float64(10),
		"forceRefresh": true,
		"query":        "from:a@b.com",
	}), f.sc)
	require.NoError(t, err)
	assert.False(t, res.IsError)
	assert.Equal(t, []any{10, true, "from:a@b.com"}, f.mailbox.refresh)
	assert.Equal(t, 3, decode[server.EmailsResponse](t, res).Count)

	res, err = handleRefreshEmails(context.Background(), request("venue_refresh_emails", map[string]any{}), f.sc)
	require.NoError(t, err)
	assert.Equal(t, []any{defaultRefreshResults, false, ""}, f.mailbox.refresh)

	f.mailbox.err = errors.New("gmail down")
	res, err = handleRefreshEmails(context.Background(), request("venue_refresh_emails", map[string]any{}), f.sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleArchiveEmail(t *testing.T) {
	f := newFixture(t)

	res, err := handleArchiveEmail(context.Background(), request("venue_archive_email", map[string]any{
		"messageIds": []any{"m1", "missing"},
	}), f.sc)
	require.NoError(t, err)
	assert.False(t, res.IsError)

	br := decode[common.BatchResult](t, res)
	assert.Equal(t, 1, br.Successful)
	assert.Equal(t, 1, br.Failed)
	assert.Equal(t, []string{"m1"}, f.mailbox.archived)

	res, err = handleArchiveEmail(context.Background(), request("venue_archive_email", map[string]any{}), f.sc)
	require.NoError(t, err)
	assert.True(t, res.IsError)
}

func TestHandleListPending(t *testing.T) {
	f := newFixture(t)
	res, err := handleListPending(context.Background(), request("venue_list_pending", nil), f.sc)
	require.NoError(t, err)

	resp := decode[server.PendingResponse](t, res)
	require.Len(t, resp.Pending, 1)
	assert.Equal(t, "1abc", resp.Pending[0].ShortID)
}

func TestHandleResolveCommand(t *testing.T) {
	tests := []struct {
		name        string
		args        map[string]any
		wantError   bool
		wantMessage string
	}{
		{name: "sent", args: map[string]any{"command": "YES1abc", "from": "+15550001"}, wantMessage: "email sent for id 1abc"},
		{name: "unknown id", args: map[string]any{"command": "YES9xyz", "from": "+15550001"}, wantError: true, wantMessage: "no pending email found for id 9xyz"},
		{name: "missing from", args: map[string]any{"command": "YES1abc"}, wantError: true},
		{name: "missing command", args: map[string]any{"from": "+15550001"}, wantError: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			f := newFixture(t)
			res, err := handleResolveCommand(context.Background(), request("venue_resolve_command", tt.args), f.sc)
			require.NoError(t, err)
			assert.Equal(t, tt.wantError, res.IsError)
			if tt.wantMessage != "" {
				assert.Equal(t, tt.wantMessage, decode[approval.Result](t, res).Message)
				assert.Equal(t, "+15550001", f.commands.from)
			}
		})
	}
}

func TestHandleRunSuggestion(t *testing.T) {
	f := newFixture(t)
	res, err := handleRunSuggestion(context.Background(), request("venue_run_suggestion", nil), f.sc)
	require.NoError(t, err)

	out := decode[suggest.Outcome](t, res)
	assert.Equal(t, "1abc", out.ShortID)
	assert.True(t, out.Notified)
}
