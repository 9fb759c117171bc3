package cmd

import (
	"context"
	"net"
	"net/http"
	"sync"
	"time"

	mcpserver "github.com/mark3labs/mcp-go/server"
	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"
)

// mcpHTTPServer serves the MCP streamable HTTP transport on /mcp.
type mcpHTTPServer struct {
	handler http.Handler

	mu         sync.Mutex
	httpServer *http.Server
	addr       string
}

func newMCPHTTPServer(mcpSrv *mcpserver.MCPServer, addr string) *mcpHTTPServer {
	mux := http.NewServeMux()
	mux.Handle("/mcp", mcpserver.NewStreamableHTTPServer(mcpSrv,
		mcpserver.WithEndpointPath("/mcp"),
	))
	return &mcpHTTPServer{
		handler: otelhttp.NewHandler(mux, "venuedesk.mcp"),
		addr:    addr,
	}
}

// StartWithReadySignal listens on the configured address, closes ready and
// serves until Shutdown.
func (s *mcpHTTPServer) StartWithReadySignal(ready chan<- struct{}) error {
	ln, err := net.Listen("tcp", s.Addr())
	if err != nil {
		return err
	}

	s.mu.Lock()
	s.addr = ln.Addr().String()
	s.httpServer = &http.Server{
		Handler:           s.handler,
		ReadHeaderTimeout: 10 * time.Second,
	}
	srv := s.httpServer
	s.mu.Unlock()

	close(ready)
	return srv.Serve(ln)
}

func (s *mcpHTTPServer) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.httpServer
	s.mu.Unlock()
	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}

func (s *mcpHTTPServer) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.addr
}
