// Package engine ties the policy store, validator, runner, and audit
// log together behind the operation surface the transport exposes.
package engine

import (
	"context"
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/ppiankov/shellguard/internal/audit"
	"github.com/ppiankov/shellguard/internal/config"
	"github.com/ppiankov/shellguard/internal/policy"
	"github.com/ppiankov/shellguard/internal/runner"
	"github.com/ppiankov/shellguard/internal/validate"
)

// Engine is the secure command execution engine. Policy mutation is
// serialized by the store; executions share no mutable state beyond
// the store and the audit log.
type Engine struct {
	settings  config.Settings
	store     *policy.Store
	validator *validate.Validator
	runner    *runner.Runner
	log       *audit.Log // nil when auditing is disabled
	version   string
}

// New builds an Engine from resolved settings.
func New(settings config.Settings, version string) (*Engine, error) {
	store, err := policy.Load(settings.PolicyPath)
	if err != nil {
		return nil, fmt.Errorf("load policy store: %w", err)
	}

	var log *audit.Log
	if settings.AuditEnabled {
		log, err = audit.Open(settings.AuditLogPath)
		if err != nil {
			return nil, fmt.Errorf("open audit log: %w", err)
		}
	}

	return &Engine{
		settings:  settings,
		store:     store,
		validator: validate.New(store, settings.AllowedDirs),
		runner: &runner.Runner{
			Shell:          settings.Shell,
			Timeout:        settings.ExecTimeout,
			MaxOutputLines: settings.MaxOutputLines,
		},
		log:     log,
		version: version,
	}, nil
}

// Store exposes the policy store for the file watcher.
func (e *Engine) Store() *policy.Store {
	return e.store
}

// Close releases the audit log.
func (e *Engine) Close() error {
	if e.log != nil {
		return e.log.Close()
	}
	return nil
}

// ExecResult is the outcome of Execute.
type ExecResult struct {
	ID         string
	Stdout     string
	Stderr     string
	ExitCode   *int
	Success    bool
	TimedOut   bool
	Duration   time.Duration
	WorkingDir string
}

// Execute validates commandLine, runs it, and records the outcome.
// Denials surface as *validate.DeniedError; spawn failures wrap
// runner.ErrSpawn. Both are recorded as failed execution records.
// Audit appends are best-effort and never fail the execution.
func (e *Engine) Execute(ctx context.Context, commandLine, workingDir string) (*ExecResult, error) {
	id := newExecID()
	if workingDir == "" {
		wd, err := os.Getwd()
		if err != nil {
			wd = string(os.PathSeparator)
		}
		workingDir = wd
	}

	if err := e.validator.Validate(commandLine); err != nil {
		e.recordExec(audit.ExecRecord{
			ID:         id,
			Command:    commandLine,
			WorkingDir: workingDir,
			Error:      err.Error(),
		})
		return nil, err
	}

	res, err := e.runner.Run(ctx, commandLine, workingDir)
	if err != nil {
		fmt.Fprintf(os.Stderr, "shellguard: execution failed: %v\n", err)
		e.recordExec(audit.ExecRecord{
			ID:         id,
			Command:    commandLine,
			WorkingDir: workingDir,
			Error:      err.Error(),
		})
		return nil, err
	}

	e.recordExec(audit.ExecRecord{
		ID:         id,
		Command:    commandLine,
		WorkingDir: workingDir,
		DurationMs: res.Duration.Milliseconds(),
		ExitCode:   res.ExitCode,
		Success:    res.Success,
		TimedOut:   res.TimedOut,
	})

	return &ExecResult{
		ID:         id,
		Stdout:     res.Stdout,
		Stderr:     res.Stderr,
		ExitCode:   res.ExitCode,
		Success:    res.Success,
		TimedOut:   res.TimedOut,
		Duration:   res.Duration,
		WorkingDir: workingDir,
	}, nil
}

// PolicyView is the effective policy plus the override sets behind it.
type PolicyView struct {
	Allowed        []string `json:"allowed"`
	Blocked        []string `json:"blocked"`
	AllowOverrides []string `json:"allow_overrides"`
	BlockOverrides []string `json:"block_overrides"`
}

// ListPolicy returns the current effective policy.
func (e *Engine) ListPolicy() PolicyView {
	allow, block := e.store.Overrides()
	return PolicyView{
		Allowed:        e.store.EffectiveAllowed(),
		Blocked:        e.store.EffectiveBlocked(),
		AllowOverrides: allow,
		BlockOverrides: block,
	}
}

// Status summarizes the engine's configuration and audit counters.
type Status struct {
	Version        string   `json:"version"`
	Timeout        string   `json:"timeout"`
	MaxOutputLines int      `json:"max_output_lines"`
	AllowedDirs    []string `json:"allowed_dirs"`
	AllowedCount   int      `json:"allowed_count"`
	BlockedCount   int      `json:"blocked_count"`
	AuditEnabled   bool     `json:"audit_enabled"`
	ExecRecords    int      `json:"exec_records"`
	ConfigRecords  int      `json:"config_records"`
}

// GetStatus reports version, limits, allowed roots, and record counts.
func (e *Engine) GetStatus() Status {
	execs, configs := 0, 0
	if e.settings.AuditEnabled {
		execs, configs, _ = audit.Count(e.settings.AuditLogPath)
	}
	return Status{
		Version:        e.version,
		Timeout:        e.settings.ExecTimeout.String(),
		MaxOutputLines: e.settings.MaxOutputLines,
		AllowedDirs:    e.settings.AllowedDirs,
		AllowedCount:   len(e.store.EffectiveAllowed()),
		BlockedCount:   len(e.store.EffectiveBlocked()),
		AuditEnabled:   e.settings.AuditEnabled,
		ExecRecords:    execs,
		ConfigRecords:  configs,
	}
}

// SearchHistory returns the most recent audit entries whose raw lines
// contain query.
func (e *Engine) SearchHistory(query string, limit int) ([]audit.Entry, error) {
	if limit <= 0 {
		limit = 20
	}
	return audit.Search(e.settings.AuditLogPath, query, limit)
}

// ChangeResult summarizes a configuration mutation.
type ChangeResult struct {
	Action       string `json:"action"`
	Command      string `json:"command,omitempty"`
	Warning      string `json:"warning,omitempty"`
	AllowedCount int    `json:"allowed_count"`
	BlockedCount int    `json:"blocked_count"`
}

// AllowCommand adds an allow override for cmd. Allowing a command from
// the dangerous list annotates the result with a warning; the warning
// never refuses the operation.
func (e *Engine) AllowCommand(cmd string) (*ChangeResult, error) {
	if !policy.ValidName(cmd) {
		return nil, fmt.Errorf("%w: invalid command name %q", policy.ErrInvalidConfig, cmd)
	}

	beforeAllow, beforeBlock := e.store.Overrides()
	if err := e.store.SetAllowOverride(cmd); err != nil {
		return nil, err
	}
	e.recordConfig(audit.ActionAllowCommand, []string{cmd}, beforeAllow, beforeBlock)

	res := &ChangeResult{
		Action:       audit.ActionAllowCommand,
		Command:      cmd,
		AllowedCount: len(e.store.EffectiveAllowed()),
		BlockedCount: len(e.store.EffectiveBlocked()),
	}
	if policy.IsDangerous(cmd) {
		res.Warning = fmt.Sprintf("%q is a potentially dangerous command; it is now allowed", cmd)
	}
	return res, nil
}

// BlockCommand adds a block override for cmd.
func (e *Engine) BlockCommand(cmd string) (*ChangeResult, error) {
	if !policy.ValidName(cmd) {
		return nil, fmt.Errorf("%w: invalid command name %q", policy.ErrInvalidConfig, cmd)
	}

	beforeAllow, beforeBlock := e.store.Overrides()
	if err := e.store.SetBlockOverride(cmd); err != nil {
		return nil, err
	}
	e.recordConfig(audit.ActionBlockCommand, []string{cmd}, beforeAllow, beforeBlock)

	return &ChangeResult{
		Action:       audit.ActionBlockCommand,
		Command:      cmd,
		AllowedCount: len(e.store.EffectiveAllowed()),
		BlockedCount: len(e.store.EffectiveBlocked()),
	}, nil
}

// ResetResult reports a reset, or a refusal pending confirmation.
type ResetResult struct {
	Confirmed    bool     `json:"confirmed"`
	Message      string   `json:"message,omitempty"`
	PrevAllow    []string `json:"prev_allow,omitempty"`
	PrevBlock    []string `json:"prev_block,omitempty"`
	AllowedCount int      `json:"allowed_count"`
	BlockedCount int      `json:"blocked_count"`
}

// ResetConfig clears all overrides when confirm is true; otherwise it
// refuses and reports what would be cleared.
func (e *Engine) ResetConfig(confirm bool) (*ResetResult, error) {
	if !confirm {
		allow, block := e.store.Overrides()
		return &ResetResult{
			Confirmed: false,
			Message: fmt.Sprintf("reset would clear %d allow and %d block overrides; pass confirm=true to proceed",
				len(allow), len(block)),
			PrevAllow:    allow,
			PrevBlock:    block,
			AllowedCount: len(e.store.EffectiveAllowed()),
			BlockedCount: len(e.store.EffectiveBlocked()),
		}, nil
	}

	prevAllow, prevBlock, err := e.store.Reset()
	if err != nil {
		return nil, err
	}
	e.recordConfig(audit.ActionResetConfig, nil, prevAllow, prevBlock)

	return &ResetResult{
		Confirmed:    true,
		PrevAllow:    prevAllow,
		PrevBlock:    prevBlock,
		AllowedCount: len(e.store.EffectiveAllowed()),
		BlockedCount: len(e.store.EffectiveBlocked()),
	}, nil
}

// ExportConfig serializes the current override sets.
func (e *Engine) ExportConfig() ([]byte, error) {
	return e.store.Export()
}

// ImportConfig replaces the override sets from an exported snapshot.
// All-or-nothing: malformed payloads leave state untouched. The
// pre-import snapshot goes into the audit record for reversibility.
func (e *Engine) ImportConfig(data []byte) (*ChangeResult, error) {
	prevAllow, prevBlock, err := e.store.Import(data)
	if err != nil {
		return nil, err
	}
	afterAllow, afterBlock := e.store.Overrides()
	e.recordConfig(audit.ActionImportConfig, append(afterAllow, afterBlock...), prevAllow, prevBlock)

	return &ChangeResult{
		Action:       audit.ActionImportConfig,
		AllowedCount: len(e.store.EffectiveAllowed()),
		BlockedCount: len(e.store.EffectiveBlocked()),
	}, nil
}

// PolicyEntry is one command in the detailed config view, with the
// origin that put it in its list.
type PolicyEntry struct {
	Command string `json:"command"`
	Source  string `json:"source"` // "default" or "override"
}

// ConfigView is the detailed policy breakdown with override
// provenance.
type ConfigView struct {
	Allowed        []PolicyEntry `json:"allowed"`
	Blocked        []PolicyEntry `json:"blocked"`
	AllowOverrides []string      `json:"allow_overrides"`
	BlockOverrides []string      `json:"block_overrides"`
	DefaultAllowed []string      `json:"default_allowed"`
	DefaultBlocked []string      `json:"default_blocked"`
}

// ViewConfig returns the effective lists annotated with each entry's
// provenance.
func (e *Engine) ViewConfig() ConfigView {
	allowOv, blockOv := e.store.Overrides()
	overrideAllow := toSet(allowOv)
	overrideBlock := toSet(blockOv)

	view := ConfigView{
		AllowOverrides: allowOv,
		BlockOverrides: blockOv,
		DefaultAllowed: policy.DefaultAllowed,
		DefaultBlocked: policy.DefaultBlocked,
	}
	for _, cmd := range e.store.EffectiveAllowed() {
		source := "default"
		if overrideAllow[cmd] {
			source = "override"
		}
		view.Allowed = append(view.Allowed, PolicyEntry{Command: cmd, Source: source})
	}
	for _, cmd := range e.store.EffectiveBlocked() {
		source := "default"
		if overrideBlock[cmd] {
			source = "override"
		}
		view.Blocked = append(view.Blocked, PolicyEntry{Command: cmd, Source: source})
	}
	return view
}

// IsDenied reports whether err is a policy denial (as opposed to an
// infrastructure failure).
func IsDenied(err error) bool {
	var denied *validate.DeniedError
	return errors.As(err, &denied)
}

// recordExec appends an execution record. Best-effort: the error is
// deliberately discarded so logging never fails the execution.
func (e *Engine) recordExec(rec audit.ExecRecord) {
	if e.log == nil {
		return
	}
	_ = e.log.Record(audit.Entry{Kind: audit.KindExec, Exec: &rec})
}

// recordConfig appends a config change record with before/after
// override snapshots. Best-effort, same as recordExec.
func (e *Engine) recordConfig(action string, commands, beforeAllow, beforeBlock []string) {
	if e.log == nil {
		return
	}
	afterAllow, afterBlock := e.store.Overrides()
	_ = e.log.Record(audit.Entry{
		Kind: audit.KindConfig,
		Config: &audit.ConfigRecord{
			Action:      action,
			Commands:    commands,
			BeforeAllow: beforeAllow,
			BeforeBlock: beforeBlock,
			AfterAllow:  afterAllow,
			AfterBlock:  afterBlock,
		},
	})
}

func toSet(list []string) map[string]bool {
	set := make(map[string]bool, len(list))
	for _, s := range list {
		set[s] = true
	}
	return set
}
