package engine

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ppiankov/shellguard/internal/audit"
	"github.com/ppiankov/shellguard/internal/config"
	"github.com/ppiankov/shellguard/internal/policy"
	"github.com/ppiankov/shellguard/internal/runner"
)

func newEngine(t *testing.T) *Engine {
	t.Helper()
	dir := t.TempDir()
	settings := config.Settings{
		ExecTimeout:    30 * time.Second,
		MaxOutputLines: 100,
		AllowedDirs:    []string{dir + "/"},
		AuditEnabled:   true,
		PolicyPath:     filepath.Join(dir, "policy.json"),
		AuditLogPath:   filepath.Join(dir, "audit.jsonl"),
	}
	e, err := New(settings, "test")
	if err != nil {
		t.Fatalf("new engine: %v", err)
	}
	t.Cleanup(func() { e.Close() })
	return e
}

func TestExecuteAllowedCommand(t *testing.T) {
	e := newEngine(t)

	res, err := e.Execute(context.Background(), "echo hello", "")
	if err != nil {
		t.Fatalf("execute: %v", err)
	}
	if !res.Success || res.TimedOut {
		t.Errorf("expected clean success, got %+v", res)
	}
	if !strings.Contains(res.Stdout, "hello") {
		t.Errorf("expected hello in stdout, got %q", res.Stdout)
	}
	if res.ID == "" {
		t.Error("expected execution ID")
	}
}

func TestExecuteDeniedIsAudited(t *testing.T) {
	e := newEngine(t)

	_, err := e.Execute(context.Background(), "rm -rf /", "")
	if err == nil {
		t.Fatal("expected denial")
	}
	if !IsDenied(err) {
		t.Errorf("expected policy denial, got %v", err)
	}

	entries, err := e.SearchHistory("rm -rf", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audited denial, got %d", len(entries))
	}
	if entries[0].Exec.Success {
		t.Error("denied execution must be recorded as failed")
	}
	if !strings.Contains(entries[0].Exec.Error, "rm") {
		t.Errorf("expected denial reason in record, got %q", entries[0].Exec.Error)
	}
}

func TestExecuteRecordsSuccess(t *testing.T) {
	e := newEngine(t)

	if _, err := e.Execute(context.Background(), "echo audited", ""); err != nil {
		t.Fatal(err)
	}

	entries, err := e.SearchHistory("audited", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 record, got %d", len(entries))
	}
	rec := entries[0].Exec
	if rec == nil || !rec.Success || rec.ExitCode == nil || *rec.ExitCode != 0 {
		t.Errorf("unexpected record: %+v", rec)
	}
}

func TestAllowCommandWarnsOnDangerous(t *testing.T) {
	e := newEngine(t)

	res, err := e.AllowCommand("rm")
	if err != nil {
		t.Fatalf("allow: %v", err)
	}
	if res.Warning == "" {
		t.Error("expected dangerous-command warning for rm")
	}

	// The warning never refuses: rm must now execute.
	if _, err := e.Execute(context.Background(), "rm -f nothing-here", t.TempDir()); err != nil {
		t.Errorf("expected rm allowed after override, got %v", err)
	}
}

func TestAllowCommandNoWarningForSafe(t *testing.T) {
	e := newEngine(t)

	res, err := e.AllowCommand("git")
	if err != nil {
		t.Fatal(err)
	}
	if res.Warning != "" {
		t.Errorf("unexpected warning: %q", res.Warning)
	}
	if res.AllowedCount != len(policy.DefaultAllowed)+1 {
		t.Errorf("expected allowed count %d, got %d", len(policy.DefaultAllowed)+1, res.AllowedCount)
	}
}

func TestAllowThenBlockLastWriterWins(t *testing.T) {
	e := newEngine(t)

	if _, err := e.AllowCommand("docker"); err != nil {
		t.Fatal(err)
	}
	if _, err := e.BlockCommand("docker"); err != nil {
		t.Fatal(err)
	}

	view := e.ListPolicy()
	for _, cmd := range view.Allowed {
		if cmd == "docker" {
			t.Error("docker must not be in effective allowed")
		}
	}
	found := false
	for _, cmd := range view.Blocked {
		if cmd == "docker" {
			found = true
		}
	}
	if !found {
		t.Error("docker must be in effective blocked")
	}
}

func TestInvalidCommandNameRejected(t *testing.T) {
	e := newEngine(t)

	if _, err := e.AllowCommand("bad cmd"); !errors.Is(err, policy.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
	if _, err := e.BlockCommand("; rm"); !errors.Is(err, policy.ErrInvalidConfig) {
		t.Errorf("expected ErrInvalidConfig, got %v", err)
	}
}

func TestResetRequiresConfirmation(t *testing.T) {
	e := newEngine(t)
	e.AllowCommand("git")

	res, err := e.ResetConfig(false)
	if err != nil {
		t.Fatal(err)
	}
	if res.Confirmed {
		t.Error("expected refusal without confirm")
	}
	view := e.ListPolicy()
	if len(view.AllowOverrides) != 1 {
		t.Error("unconfirmed reset must not mutate state")
	}

	res, err = e.ResetConfig(true)
	if err != nil {
		t.Fatal(err)
	}
	if !res.Confirmed {
		t.Error("expected confirmed reset")
	}
	view = e.ListPolicy()
	if len(view.AllowOverrides) != 0 || len(view.BlockOverrides) != 0 {
		t.Error("expected overrides cleared")
	}
}

func TestExportImportRoundTripOnFreshReset(t *testing.T) {
	e := newEngine(t)
	e.AllowCommand("git")
	e.BlockCommand("ls")

	snapshot, err := e.ExportConfig()
	if err != nil {
		t.Fatal(err)
	}

	e.ResetConfig(true)
	if _, err := e.ImportConfig(snapshot); err != nil {
		t.Fatalf("import: %v", err)
	}

	before := e.ListPolicy()
	snapshot2, err := e.ExportConfig()
	if err != nil {
		t.Fatal(err)
	}
	e.ResetConfig(true)
	e.ImportConfig(snapshot2)
	after := e.ListPolicy()

	if strings.Join(before.Allowed, ",") != strings.Join(after.Allowed, ",") {
		t.Error("effective allowed not reproduced by round trip")
	}
	if strings.Join(before.Blocked, ",") != strings.Join(after.Blocked, ",") {
		t.Error("effective blocked not reproduced by round trip")
	}
}

func TestConfigChangesAudited(t *testing.T) {
	e := newEngine(t)

	e.AllowCommand("git")
	e.BlockCommand("git")
	e.ResetConfig(true)

	entries, err := e.SearchHistory(audit.KindConfig, 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 config records, got %d", len(entries))
	}
	if entries[0].Config.Action != audit.ActionAllowCommand ||
		entries[1].Config.Action != audit.ActionBlockCommand ||
		entries[2].Config.Action != audit.ActionResetConfig {
		t.Errorf("unexpected action sequence: %s, %s, %s",
			entries[0].Config.Action, entries[1].Config.Action, entries[2].Config.Action)
	}
	if len(entries[2].Config.BeforeBlock) != 1 {
		t.Errorf("reset record should snapshot prior overrides, got %+v", entries[2].Config)
	}
}

func TestViewConfigProvenance(t *testing.T) {
	e := newEngine(t)
	e.AllowCommand("git")

	view := e.ViewConfig()
	sources := map[string]string{}
	for _, entry := range view.Allowed {
		sources[entry.Command] = entry.Source
	}
	if sources["ls"] != "default" {
		t.Errorf("expected ls from default, got %q", sources["ls"])
	}
	if sources["git"] != "override" {
		t.Errorf("expected git from override, got %q", sources["git"])
	}
}

func TestGetStatus(t *testing.T) {
	e := newEngine(t)
	e.Execute(context.Background(), "echo hi", "")
	e.AllowCommand("git")

	st := e.GetStatus()
	if st.Version != "test" {
		t.Errorf("unexpected version %q", st.Version)
	}
	if st.Timeout != "30s" {
		t.Errorf("unexpected timeout %q", st.Timeout)
	}
	if st.ExecRecords != 1 || st.ConfigRecords != 1 {
		t.Errorf("expected 1 exec / 1 config record, got %d / %d", st.ExecRecords, st.ConfigRecords)
	}
	if st.AllowedCount != len(policy.DefaultAllowed)+1 {
		t.Errorf("unexpected allowed count %d", st.AllowedCount)
	}
}

func TestSpawnFailureIsAudited(t *testing.T) {
	dir := t.TempDir()
	settings := config.Settings{
		ExecTimeout:    time.Second,
		MaxOutputLines: 10,
		AllowedDirs:    []string{dir + "/"},
		AuditEnabled:   true,
		Shell:          "/nonexistent/shell",
		PolicyPath:     filepath.Join(dir, "policy.json"),
		AuditLogPath:   filepath.Join(dir, "audit.jsonl"),
	}
	e, err := New(settings, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	_, err = e.Execute(context.Background(), "echo hi", "")
	if !errors.Is(err, runner.ErrSpawn) {
		t.Fatalf("expected spawn error, got %v", err)
	}

	entries, err := e.SearchHistory("echo hi", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audited spawn failure, got %d", len(entries))
	}
	rec := entries[0].Exec
	if rec == nil || rec.Success {
		t.Errorf("spawn failure must be recorded as failed, got %+v", rec)
	}
	if !strings.Contains(rec.Error, "spawn") {
		t.Errorf("expected spawn failure reason in record, got %q", rec.Error)
	}
}

func TestMutationPersistFailureSurfaces(t *testing.T) {
	e := newEngine(t)

	// Replace the policy file with a directory so the atomic rename
	// in persist fails. The mutation must report non-durable state.
	path := e.Store().Path()
	if err := os.Remove(path); err != nil {
		t.Fatal(err)
	}
	if err := os.Mkdir(path, 0700); err != nil {
		t.Fatal(err)
	}

	if _, err := e.AllowCommand("git"); err == nil {
		t.Error("expected persist failure to surface from AllowCommand")
	}
	if _, err := e.BlockCommand("docker"); err == nil {
		t.Error("expected persist failure to surface from BlockCommand")
	}
}

func TestAuditDisabledSkipsRecords(t *testing.T) {
	dir := t.TempDir()
	settings := config.Settings{
		ExecTimeout:    time.Second,
		MaxOutputLines: 10,
		AllowedDirs:    []string{dir + "/"},
		AuditEnabled:   false,
		PolicyPath:     filepath.Join(dir, "policy.json"),
		AuditLogPath:   filepath.Join(dir, "audit.jsonl"),
	}
	e, err := New(settings, "test")
	if err != nil {
		t.Fatal(err)
	}
	defer e.Close()

	if _, err := e.Execute(context.Background(), "echo hi", ""); err != nil {
		t.Fatal(err)
	}
	entries, err := e.SearchHistory("echo", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 0 {
		t.Errorf("expected no records with audit disabled, got %d", len(entries))
	}
}
