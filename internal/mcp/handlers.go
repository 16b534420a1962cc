package mcp

import (
	"context"
	"errors"

	mcpsdk "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/ppiankov/shellguard/internal/engine"
	"github.com/ppiankov/shellguard/internal/validate"
)

// --- Input/Output types ---

// ExecuteInput defines parameters for the execute_command tool.
type ExecuteInput struct {
	Command    string `json:"command" jsonschema:"shell command line to execute"`
	WorkingDir string `json:"working_dir,omitempty" jsonschema:"working directory, defaults to the server's"`
}

// ExecuteOutput contains the execution result or denial details.
type ExecuteOutput struct {
	Stdout   string `json:"stdout,omitempty"`
	Stderr   string `json:"stderr,omitempty"`
	ExitCode *int   `json:"exit_code"`
	Success  bool   `json:"success"`
	TimedOut bool   `json:"timed_out,omitempty"`
	Blocked  bool   `json:"blocked,omitempty"`
	Reason   string `json:"reason,omitempty"`
}

// SearchHistoryInput defines parameters for the search_history tool.
type SearchHistoryInput struct {
	Query string `json:"query" jsonschema:"substring to search for"`
	Limit int    `json:"limit,omitempty" jsonschema:"maximum matches to return, most recent first kept (default 20)"`
}

// HistoryItem is one flattened audit entry.
type HistoryItem struct {
	Kind      string `json:"kind"`
	Timestamp string `json:"ts"`
	Command   string `json:"command,omitempty"`
	Action    string `json:"action,omitempty"`
	Success   bool   `json:"success,omitempty"`
	TimedOut  bool   `json:"timed_out,omitempty"`
	Error     string `json:"error,omitempty"`
}

// SearchHistoryOutput lists matching audit entries in file order.
type SearchHistoryOutput struct {
	Entries []HistoryItem `json:"entries"`
}

// CommandInput names a single command for allow/block tools.
type CommandInput struct {
	Command string `json:"command" jsonschema:"command name (alphanumeric, dash, underscore)"`
}

// ResetInput defines parameters for the reset_config tool.
type ResetInput struct {
	Confirm bool `json:"confirm" jsonschema:"must be true to actually reset"`
}

// EmptyInput is for tools without parameters.
type EmptyInput struct{}

// ExportOutput carries the serialized override snapshot.
type ExportOutput struct {
	Config string `json:"config"`
}

// ImportInput carries a previously exported snapshot.
type ImportInput struct {
	Config string `json:"config" jsonschema:"JSON snapshot from export_config"`
}

// --- Handlers ---

func (s *Server) handleExecute(ctx context.Context, req *mcpsdk.CallToolRequest, input ExecuteInput) (*mcpsdk.CallToolResult, ExecuteOutput, error) {
	res, err := s.engine.Execute(ctx, input.Command, input.WorkingDir)
	if err != nil {
		var denied *validate.DeniedError
		if errors.As(err, &denied) {
			out := ExecuteOutput{
				Blocked: true,
				Reason:  denied.Reason,
			}
			return &mcpsdk.CallToolResult{IsError: true}, out, nil
		}
		return nil, ExecuteOutput{}, err
	}

	return nil, ExecuteOutput{
		Stdout:   res.Stdout,
		Stderr:   res.Stderr,
		ExitCode: res.ExitCode,
		Success:  res.Success,
		TimedOut: res.TimedOut,
	}, nil
}

func (s *Server) handleListPolicy(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, engine.PolicyView, error) {
	return nil, s.engine.ListPolicy(), nil
}

func (s *Server) handleGetStatus(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, engine.Status, error) {
	return nil, s.engine.GetStatus(), nil
}

func (s *Server) handleSearchHistory(ctx context.Context, req *mcpsdk.CallToolRequest, input SearchHistoryInput) (*mcpsdk.CallToolResult, SearchHistoryOutput, error) {
	entries, err := s.engine.SearchHistory(input.Query, input.Limit)
	if err != nil {
		return nil, SearchHistoryOutput{}, err
	}

	items := make([]HistoryItem, 0, len(entries))
	for _, e := range entries {
		item := HistoryItem{Kind: e.Kind, Timestamp: e.Timestamp}
		switch {
		case e.Exec != nil:
			item.Command = e.Exec.Command
			item.Success = e.Exec.Success
			item.TimedOut = e.Exec.TimedOut
			item.Error = e.Exec.Error
		case e.Config != nil:
			item.Action = e.Config.Action
		}
		items = append(items, item)
	}
	return nil, SearchHistoryOutput{Entries: items}, nil
}

func (s *Server) handleAllowCommand(ctx context.Context, req *mcpsdk.CallToolRequest, input CommandInput) (*mcpsdk.CallToolResult, engine.ChangeResult, error) {
	res, err := s.engine.AllowCommand(input.Command)
	if err != nil {
		return nil, engine.ChangeResult{}, err
	}
	return nil, *res, nil
}

func (s *Server) handleBlockCommand(ctx context.Context, req *mcpsdk.CallToolRequest, input CommandInput) (*mcpsdk.CallToolResult, engine.ChangeResult, error) {
	res, err := s.engine.BlockCommand(input.Command)
	if err != nil {
		return nil, engine.ChangeResult{}, err
	}
	return nil, *res, nil
}

func (s *Server) handleViewConfig(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, engine.ConfigView, error) {
	return nil, s.engine.ViewConfig(), nil
}

func (s *Server) handleResetConfig(ctx context.Context, req *mcpsdk.CallToolRequest, input ResetInput) (*mcpsdk.CallToolResult, engine.ResetResult, error) {
	res, err := s.engine.ResetConfig(input.Confirm)
	if err != nil {
		return nil, engine.ResetResult{}, err
	}
	if !res.Confirmed {
		return &mcpsdk.CallToolResult{IsError: true}, *res, nil
	}
	return nil, *res, nil
}

func (s *Server) handleExportConfig(ctx context.Context, req *mcpsdk.CallToolRequest, input EmptyInput) (*mcpsdk.CallToolResult, ExportOutput, error) {
	data, err := s.engine.ExportConfig()
	if err != nil {
		return nil, ExportOutput{}, err
	}
	return nil, ExportOutput{Config: string(data)}, nil
}

func (s *Server) handleImportConfig(ctx context.Context, req *mcpsdk.CallToolRequest, input ImportInput) (*mcpsdk.CallToolResult, engine.ChangeResult, error) {
	res, err := s.engine.ImportConfig([]byte(input.Config))
	if err != nil {
		return nil, engine.ChangeResult{}, err
	}
	return nil, *res, nil
}
