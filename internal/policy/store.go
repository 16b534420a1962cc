// Package policy holds the persisted command policy: fixed default
// allow/block lists plus user override sets. The effective policy is
// derived fresh on every query, so overrides apply immediately.
package policy

import (
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"sync"
	"time"
)

// ErrInvalidConfig marks malformed import payloads and invalid command
// names. Import is all-or-nothing: any violation leaves state untouched.
var ErrInvalidConfig = errors.New("invalid policy config")

// validName matches command name tokens: alphanumeric, dash, underscore.
var validName = regexp.MustCompile(`^[A-Za-z0-9_-]+$`)

// ValidName reports whether s is an acceptable command name token.
func ValidName(s string) bool {
	return validName.MatchString(s)
}

// Overrides is the persisted policy file shape. Export and import use
// the same two-array layout.
type Overrides struct {
	AllowOverrides []string `json:"allowOverrides"`
	BlockOverrides []string `json:"blockOverrides"`
	LastModified   string   `json:"lastModified,omitempty"`
}

// Store is the single-writer policy store. All mutation happens under
// one mutex and persists synchronously before returning, so
// load-modify-persist races cannot interleave.
type Store struct {
	path    string
	mu      sync.Mutex
	allow   map[string]bool
	block   map[string]bool
	lastSum string // sha256 of the last bytes this store persisted
}

// Load opens the policy store at path, creating the directory if
// needed. A missing or corrupt file degrades to empty override sets,
// which are persisted back as the new baseline; parse failures never
// propagate to the caller.
func Load(path string) (*Store, error) {
	if err := os.MkdirAll(filepath.Dir(path), 0700); err != nil {
		return nil, fmt.Errorf("policy: create directory: %w", err)
	}

	s := &Store{
		path:  path,
		allow: map[string]bool{},
		block: map[string]bool{},
	}

	data, err := os.ReadFile(path)
	if err == nil {
		if ov, perr := parseOverrides(data); perr == nil {
			s.allow = toSet(ov.AllowOverrides)
			s.block = toSet(ov.BlockOverrides)
			s.lastSum = sumBytes(data)
			return s, nil
		}
		// Corrupt file: fall through to secure defaults.
	}

	// Persist the empty baseline. Best effort: a write failure here
	// still yields a working in-memory store.
	s.mu.Lock()
	_ = s.persistLocked()
	s.mu.Unlock()
	return s, nil
}

// EffectiveAllowed returns the defaults minus block overrides, plus
// allow overrides, sorted. Computed fresh on every call.
func (s *Store) EffectiveAllowed() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveAllowedLocked()
}

// EffectiveBlocked returns the defaults minus allow overrides, plus
// block overrides, sorted. Computed fresh on every call.
func (s *Store) EffectiveBlocked() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.effectiveBlockedLocked()
}

// Allowed reports whether cmd is in the effective allowed set.
func (s *Store) Allowed(cmd string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.allow[cmd] {
		return true
	}
	return defaultAllowedSet[cmd] && !s.block[cmd]
}

// Blocked reports whether cmd is in the effective blocked set.
func (s *Store) Blocked(cmd string) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.block[cmd] {
		return true
	}
	return defaultBlockedSet[cmd] && !s.allow[cmd]
}

// SetAllowOverride allows cmd: evicts it from the block overrides and,
// unless it is already default-allowed, records an allow override.
// Persists before returning; a write failure means the new state is
// not durable and is surfaced to the caller.
func (s *Store) SetAllowOverride(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.block, cmd)
	if !defaultAllowedSet[cmd] {
		s.allow[cmd] = true
	}
	return s.persistLocked()
}

// SetBlockOverride blocks cmd: evicts it from the allow overrides and,
// unless it is already default-blocked, records a block override.
func (s *Store) SetBlockOverride(cmd string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	delete(s.allow, cmd)
	if !defaultBlockedSet[cmd] {
		s.block[cmd] = true
	}
	return s.persistLocked()
}

// Reset clears both override sets and returns the prior sets for the
// audit record.
func (s *Store) Reset() (prevAllow, prevBlock []string, err error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	prevAllow = sortedKeys(s.allow)
	prevBlock = sortedKeys(s.block)
	s.allow = map[string]bool{}
	s.block = map[string]bool{}
	return prevAllow, prevBlock, s.persistLocked()
}

// Overrides returns a snapshot of the current override sets.
func (s *Store) Overrides() (allow, block []string) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return sortedKeys(s.allow), sortedKeys(s.block)
}

// Export serializes the override sets in the persisted file shape.
func (s *Store) Export() ([]byte, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return json.MarshalIndent(Overrides{
		AllowOverrides: sortedKeys(s.allow),
		BlockOverrides: sortedKeys(s.block),
		LastModified:   time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
}

// Import replaces both override sets from an exported snapshot.
// All-or-nothing: any shape or token violation returns
// ErrInvalidConfig with no partial mutation. The prior sets are
// returned for the audit record.
func (s *Store) Import(data []byte) (prevAllow, prevBlock []string, err error) {
	ov, err := parseOverrides(data)
	if err != nil {
		return nil, nil, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	prevAllow = sortedKeys(s.allow)
	prevBlock = sortedKeys(s.block)
	s.allow = toSet(ov.AllowOverrides)
	s.block = toSet(ov.BlockOverrides)
	if perr := s.persistLocked(); perr != nil {
		return prevAllow, prevBlock, perr
	}
	return prevAllow, prevBlock, nil
}

// Reload re-reads the policy file, picking up out-of-band edits.
// Returns false without touching state when the file still matches
// what this store last persisted, or when it fails to parse.
func (s *Store) Reload() (bool, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		return false, err
	}

	s.mu.Lock()
	defer s.mu.Unlock()
	if sumBytes(data) == s.lastSum {
		return false, nil
	}
	ov, err := parseOverrides(data)
	if err != nil {
		return false, err
	}
	s.allow = toSet(ov.AllowOverrides)
	s.block = toSet(ov.BlockOverrides)
	s.lastSum = sumBytes(data)
	return true, nil
}

// Path returns the policy file location.
func (s *Store) Path() string {
	return s.path
}

func (s *Store) effectiveAllowedLocked() []string {
	set := make(map[string]bool, len(DefaultAllowed)+len(s.allow))
	for _, c := range DefaultAllowed {
		if !s.block[c] {
			set[c] = true
		}
	}
	for c := range s.allow {
		set[c] = true
	}
	return sortedKeys(set)
}

func (s *Store) effectiveBlockedLocked() []string {
	set := make(map[string]bool, len(DefaultBlocked)+len(s.block))
	for _, c := range DefaultBlocked {
		if !s.allow[c] {
			set[c] = true
		}
	}
	for c := range s.block {
		set[c] = true
	}
	return sortedKeys(set)
}

// persistLocked writes the current override sets atomically
// (tmp+rename) and records the content hash so the file watcher can
// tell our own writes from out-of-band edits. Caller holds s.mu.
func (s *Store) persistLocked() error {
	data, err := json.MarshalIndent(Overrides{
		AllowOverrides: sortedKeys(s.allow),
		BlockOverrides: sortedKeys(s.block),
		LastModified:   time.Now().UTC().Format(time.RFC3339),
	}, "", "  ")
	if err != nil {
		return fmt.Errorf("policy: marshal: %w", err)
	}
	data = append(data, '\n')

	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0600); err != nil {
		return fmt.Errorf("policy: write: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("policy: rename: %w", err)
	}
	s.lastSum = sumBytes(data)
	return nil
}

// parseOverrides validates an override payload: both array fields must
// be present, every token must match the command-name pattern, and no
// token may appear in both sets.
func parseOverrides(data []byte) (*Overrides, error) {
	var raw struct {
		AllowOverrides *[]string `json:"allowOverrides"`
		BlockOverrides *[]string `json:"blockOverrides"`
	}
	if err := json.Unmarshal(data, &raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidConfig, err)
	}
	if raw.AllowOverrides == nil || raw.BlockOverrides == nil {
		return nil, fmt.Errorf("%w: allowOverrides and blockOverrides arrays are required", ErrInvalidConfig)
	}
	for _, cmd := range append(append([]string{}, *raw.AllowOverrides...), *raw.BlockOverrides...) {
		if !ValidName(cmd) {
			return nil, fmt.Errorf("%w: invalid command name %q", ErrInvalidConfig, cmd)
		}
	}
	allow := toSet(*raw.AllowOverrides)
	for _, cmd := range *raw.BlockOverrides {
		if allow[cmd] {
			return nil, fmt.Errorf("%w: %q appears in both override sets", ErrInvalidConfig, cmd)
		}
	}
	return &Overrides{
		AllowOverrides: *raw.AllowOverrides,
		BlockOverrides: *raw.BlockOverrides,
	}, nil
}

func sortedKeys(set map[string]bool) []string {
	keys := make([]string, 0, len(set))
	for k := range set {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

func sumBytes(data []byte) string {
	h := sha256.Sum256(data)
	return hex.EncodeToString(h[:])
}
