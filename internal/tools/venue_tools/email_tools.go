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

const defaultRefreshResults = 50

// RegisterEmailTools registers the inbox tools.
func RegisterEmailTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	listTool := mcp.NewTool("venue_list_emails",
		mcp.WithDescription("List cached inbox messages, newest first, without contacting Gmail"),
		mcp.WithReadOnlyHintAnnotation(true),
		mcp.WithString("category",
			mcp.Description("Only messages with this category (e.g. 'event')"),
		),
		mcp.WithBoolean("unrepliedOnly",
			mcp.Description("Only messages that have not been answered yet"),
		),
		mcp.WithNumber("limit",
			mcp.Description("Maximum number of messages to return (default: all)"),
		),
	)
	s.AddTool(listTool, common.InstrumentedToolHandler("venue_list_emails", instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleListEmails(ctx, request, sc)
		}))

	refreshTool := mcp.NewTool("venue_refresh_emails",
		mcp.WithDescription("Sync the inbox from Gmail into the cache and return the cached messages. Skipped when the cache was refreshed this minute unless forceRefresh is set."),
		mcp.WithNumber("maxResults",
			mcp.Description("Maximum number of inbox messages to list (default: 50)"),
		),
		mcp.WithBoolean("forceRefresh",
			mcp.Description("Refresh even if the cache is fresh"),
		),
		mcp.WithString("query",
			mcp.Description("Gmail search query; a filtered refresh does not update the freshness timestamp"),
		),
	)
	s.AddTool(refreshTool, common.InstrumentedToolHandler("venue_refresh_emails", instrumentation.OperationList, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleRefreshEmails(ctx, request, sc)
		}))

	if readOnly {
		return nil
	}

	archiveTool := mcp.NewTool("venue_archive_email",
		mcp.WithDescription("Archive one or more messages by removing them from the Gmail inbox"),
		mcp.WithString("messageIds",
			mcp.Required(),
			mcp.Description("Message ID (string) or array of message IDs to archive"),
		),
	)
	s.AddTool(archiveTool, common.InstrumentedToolHandler("venue_archive_email", instrumentation.OperationModify, sc,
		func(ctx context.Context, request mcp.CallToolRequest) (*mcp.CallToolResult, error) {
			return handleArchiveEmail(ctx, request, sc)
		}))

	return nil
}

func handleListEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	category := common.StringArg(args, "category")
	unrepliedOnly := common.BoolArg(args, "unrepliedOnly")
	limit := common.IntArg(args, "limit", 0)

	msgs, err := sc.Mailbox().Emails(ctx)
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to load emails: %v", err)), nil
	}

	out := make([]model.Message, 0, len(msgs))
	for _, m := range msgs {
		if category != "" && m.Category != category {
			continue
		}
		if unrepliedOnly && m.Replied {
			continue
		}
		out = append(out, m)
		if limit > 0 && len(out) == limit {
			break
		}
	}
	return common.JSONResult(server.EmailsResponse{Emails: out, Count: len(out)})
}

func handleRefreshEmails(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	args := request.GetArguments()
	maxResults := common.IntArg(args, "maxResults", defaultRefreshResults)
	if maxResults <= 0 {
		return mcp.NewToolResultError("maxResults must be positive"), nil
	}

	msgs, err := sc.Mailbox().GetAllEmails(ctx, maxResults, common.BoolArg(args, "forceRefresh"), common.StringArg(args, "query"))
	if err != nil {
		return mcp.NewToolResultError(fmt.Sprintf("Failed to refresh emails: %v", err)), nil
	}
	if msgs == nil {
		msgs = []model.Message{}
	}
	return common.JSONResult(server.EmailsResponse{Emails: msgs, Count: len(msgs)})
}

func handleArchiveEmail(ctx context.Context, request mcp.CallToolRequest, sc *server.ServerContext) (*mcp.CallToolResult, error) {
	ids, err := common.StringOrArray(request.GetArguments()["messageIds"], "messageIds")
	if err != nil {
		return mcp.NewToolResultError(err.Error()), nil
	}
	br := common.RunBatch(ctx, ids, sc.Mailbox().Archive)
	return common.BatchToolResult(br)
}
