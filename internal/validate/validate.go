// Package validate decides whether a command line may execute: the
// base command is checked against the effective policy, and any
// absolute-path arguments must fall under the configured allowed
// directory roots.
package validate

import (
	"fmt"
	"path/filepath"
	"strings"

	"github.com/ppiankov/shellguard/internal/policy"
)

// DeniedError reports a policy denial with a human-readable reason.
// It is a structured caller-visible outcome, never a system error.
type DeniedError struct {
	Command string
	Reason  string
}

func (e *DeniedError) Error() string {
	return fmt.Sprintf("command denied: %s", e.Reason)
}

// Validator checks command lines against a policy store and a fixed
// set of allowed directory roots (each absolute, cleaned, with a
// trailing separator).
type Validator struct {
	store *policy.Store
	roots []string
}

// New creates a Validator. The roots slice is fixed for the process
// lifetime.
func New(store *policy.Store, roots []string) *Validator {
	return &Validator{store: store, roots: roots}
}

// Validate returns nil if commandLine may execute, or a *DeniedError.
//
// The check is lexical: the command line is split on whitespace, the
// first token is matched against the effective blocked then allowed
// sets, and every remaining token that starts with a path separator is
// cleaned and prefix-checked against the allowed roots. Shell
// metacharacters are not parsed; a pipeline stage or command
// substitution after an allowed base command is invisible to this
// check. Relative paths are likewise not checked; they resolve under
// the working directory.
func (v *Validator) Validate(commandLine string) error {
	fields := strings.Fields(commandLine)
	if len(fields) == 0 {
		return &DeniedError{Command: commandLine, Reason: "empty command"}
	}
	base := fields[0]

	if v.store.Blocked(base) {
		return &DeniedError{Command: base, Reason: fmt.Sprintf("blocked command: %s", base)}
	}
	if !v.store.Allowed(base) {
		return &DeniedError{Command: base, Reason: fmt.Sprintf("command not allowed: %s", base)}
	}

	for _, tok := range fields[1:] {
		if !strings.HasPrefix(tok, string(filepath.Separator)) {
			continue
		}
		if !v.pathAllowed(tok) {
			return &DeniedError{Command: base, Reason: fmt.Sprintf("path not allowed: %s", tok)}
		}
	}
	return nil
}

// pathAllowed reports whether the cleaned absolute path falls under at
// least one allowed root. Roots carry a trailing separator, so a path
// equal to a root (minus the separator) is also contained.
func (v *Validator) pathAllowed(token string) bool {
	p := filepath.Clean(token)
	pp := p + string(filepath.Separator)
	for _, root := range v.roots {
		if strings.HasPrefix(pp, root) {
			return true
		}
	}
	return false
}
