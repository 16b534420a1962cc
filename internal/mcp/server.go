// Package mcp exposes the execution engine as an MCP tool server over
// stdio. The transport marshals tool calls to the engine and returns
// its results unmodified; all policy decisions live in the engine.
package mcp

import (
	"context"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/shellguard/internal/config"
	"github.com/ppiankov/shellguard/internal/engine"
)

// Server wraps the MCP SDK server around a shellguard engine.
type Server struct {
	mcpServer *mcpsdk.Server
	engine    *engine.Engine
}

// New creates an MCP server with a fully initialized engine.
func New(settings config.Settings, version string) (*Server, error) {
	eng, err := engine.New(settings, version)
	if err != nil {
		return nil, err
	}

	s := &Server{engine: eng}
	s.mcpServer = mcpsdk.NewServer(
		&mcpsdk.Implementation{
			Name:    "shellguard",
			Version: version,
		},
		nil,
	)

	s.registerTools()
	return s, nil
}

// Engine returns the underlying engine (the CLI shares it with the
// policy file watcher).
func (s *Server) Engine() *engine.Engine {
	return s.engine
}

// Run starts the MCP server on stdio transport. Blocks until ctx is
// cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.mcpServer.Run(ctx, &mcpsdk.StdioTransport{})
}

// Close releases the engine's audit log.
func (s *Server) Close() error {
	return s.engine.Close()
}

// registerTools adds all shellguard tools to the MCP server.
func (s *Server) registerTools() {
	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "execute_command",
		Description: "Execute a shell command under the security policy. Blocked commands return an error with the reason.",
	}, s.handleExecute)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "list_policy",
		Description: "List the effective allowed/blocked command sets and the override sets behind them.",
	}, s.handleListPolicy)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "get_status",
		Description: "Report version, execution limits, allowed directories, and audit record counts.",
	}, s.handleGetStatus)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "search_history",
		Description: "Search the audit log for executions and configuration changes containing a substring.",
	}, s.handleSearchHistory)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "allow_command",
		Description: "Add an allow override for a command. Dangerous commands are allowed with a warning.",
	}, s.handleAllowCommand)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "block_command",
		Description: "Add a block override for a command.",
	}, s.handleBlockCommand)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "view_config",
		Description: "Show the detailed policy breakdown with per-command override provenance.",
	}, s.handleViewConfig)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "reset_config",
		Description: "Clear all command overrides. Refuses unless confirm is true.",
	}, s.handleResetConfig)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "export_config",
		Description: "Export the override sets as a JSON snapshot.",
	}, s.handleExportConfig)

	mcpsdk.AddTool(s.mcpServer, &mcpsdk.Tool{
		Name:        "import_config",
		Description: "Import an exported override snapshot. All-or-nothing: any invalid entry rejects the whole import.",
	}, s.handleImportConfig)
}
