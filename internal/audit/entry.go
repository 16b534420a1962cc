package audit

// Entry kinds. The log is a single ordered stream of heterogeneous
// entries.
const (
	KindExec   = "exec"
	KindConfig = "config"
)

// Config change actions.
const (
	ActionAllowCommand = "allow_command"
	ActionBlockCommand = "block_command"
	ActionResetConfig  = "reset_config"
	ActionImportConfig = "import_config"
)

// ExecRecord describes one command execution.
type ExecRecord struct {
	ID         string `json:"id"`
	Command    string `json:"command"`
	WorkingDir string `json:"working_dir"`
	DurationMs int64  `json:"duration_ms"`
	ExitCode   *int   `json:"exit_code"`
	Success    bool   `json:"success"`
	TimedOut   bool   `json:"timed_out,omitempty"`
	Error      string `json:"error,omitempty"`
}

// ConfigRecord describes one configuration change, with before/after
// override snapshots for reversibility.
type ConfigRecord struct {
	Action      string   `json:"action"`
	Commands    []string `json:"commands,omitempty"`
	BeforeAllow []string `json:"before_allow"`
	BeforeBlock []string `json:"before_block"`
	AfterAllow  []string `json:"after_allow"`
	AfterBlock  []string `json:"after_block"`
}

// Entry is one line in the hash-chained JSONL audit log. All fields
// are structs (no map[string]any) to guarantee deterministic
// json.Marshal field order for reproducible hashing. Exactly one of
// Exec/Config is set, matching Kind.
type Entry struct {
	Kind      string        `json:"kind"`
	Timestamp string        `json:"ts"`
	Exec      *ExecRecord   `json:"exec,omitempty"`
	Config    *ConfigRecord `json:"config,omitempty"`
	PrevHash  string        `json:"prev_hash"`
}
