package venue_tools

import (
	"context"
	"fmt"

	"github.com/mark3labs/mcp-go/mcp"
	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/venuedesk/internal/instrumentation"
	"github.com/teemow/venuedesk/internal/model"
	"github.com/teemow/venuedesk/internal/server"
	"github.com/teemow/venuedesk/internal/tools/common"
)

// RegisterApprovalTools registers the pending action tools.
func RegisterApprovalTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listPendingTool := mcp.NewTool("venue_list_pending",
		mcp.WithDescription("List AI drafted replies awaiting operator approval, oldest first"),
		mcp.WithReadOnlyHintAnnotation(true),
	)
	s.AddTool(listPendingTool, common.InstrumentedToolHandler("venue_list_pending", instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListPending(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	resolveTool := mcp.NewTool("venue_resolve_command",
		mcp.WithDescription("Execute an operator approval command as if it arrived by SMS: YES<id> sends the drafted reply, EDIT<id> <text> sends <text> instead"),
		mcp.WithString("command",
			mcp.Required(),
			mcp.Description("The command text, e.g. 'YES1abc' or 'EDIT1abc Thanks, see you then'"),
		),
		mcp.WithString("from",
			mcp.Required(),
			mcp.Description("Operator phone number in E.164 format; the result is sent back to it"),
		),
	)
	s.AddTool(resolveTool, common.InstrumentedToolHandler("venue_resolve_command", instrumentation.OperationResolve, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleResolveCommand(ctx, request, sc)
		}))

	suggestTool := mcp.NewTool("venue_run_suggestion",
		mcp.WithDescription("Draft a reply for the newest unnotified event email and notify the operator by SMS. Handles at most one email per call."),
	)
	s.AddTool(suggestTool, common.InstrumentedToolHandler("venue_run_suggestion", instrumentation.OperationSuggest, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRunSuggestion(ctx, request, sc)
		}))

	return nil
}

func handleListPending(_ context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	open := sc.Pending().Open()
	if open == nil {
		open = []model.PendingAction{}
	}
	return common.JSONResult(server.PendingResponse{Pending: open, Count: len(open)})
}

func handleResolveCommand(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	command, err := common.RequiredString(args, "command")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	from, err := common.RequiredString(args, "from")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}

	res := sc.Commands().ResolveCommand(ctx, command, from)
	out, err := common.JSONResult(res)
	if err != nil {
		return nil, err
	}
	out.IsError = !res.Success
	return out, nil
}

func handleRunSuggestion(ctx context.Context, _ mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	outcome, err := sc.Suggester().Run(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Suggestion failed: %v", err)), nil
	}
	return common.JSONResult(outcome)
}
