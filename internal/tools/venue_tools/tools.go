package venue_tools

import (
	"fmt"

	mcpserver "github.com/mark3labs/mcp-go/server"

	"github.com/teemow/venuedesk/internal/server"
)

// RegisterVenueTools registers all venuedesk tools with the MCP server.
func RegisterVenueTools(s *mcpserver.MCPServer, sc *server.ServerContext, readOnly bool) error {
	if err := RegisterEmailTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register email tools: %w", err)
	}
	if err := RegisterApprovalTools(s, sc, readOnly); err != nil {
		return fmt.Errorf("failed to register approval tools: %w", err)
	}
	return nil
}
