package mcp

import (
	"log/slog"

	"github.com/mark3labs/mcp-go/server"

	"github.com/mbocsi/ipcd/client"
)

// MCPServer exposes a running IPCD client to MCP tools over stdio.
type MCPServer struct {
	Server *server.MCPServer

	client *client.Client
	logger *slog.Logger
}

func NewMCPServer(c *client.Client, logger *slog.Logger) *MCPServer {
	if logger == nil {
		logger = slog.Default()
	}
	s := &MCPServer{
		Server: server.NewMCPServer("IPCD Client", "1.0.0"),
		client: c,
		logger: logger,
	}
	s.registerDeviceTools()
	s.registerSessionTools()
	return s
}

// Run serves MCP on stdin/stdout until the input closes. Log output must not
// go to stdout while it runs.
func (s *MCPServer) Run() error {
	s.logger.Info("Started stdio MCP server")
	defer func() {
		s.logger.Info("Shut down stdio MCP server")
	}()
	return server.ServeStdio(s.Server)
}
