package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
)

// ChainError locates the first broken link found while verifying the
// audit chain.
type ChainError struct {
	Line   int
	Reason string
}

func (e *ChainError) Error() string {
	return fmt.Sprintf("audit chain broken at line %d: %s", e.Line, e.Reason)
}

// Verify walks the JSONL audit log and checks that every entry's
// prev_hash matches the hash of the line before it, genesis for the
// first. Returns the number of entries verified; a broken or
// unparsable link is reported as a *ChainError.
func Verify(path string) (int, error) {
	f, err := os.Open(path)
	if err != nil {
		return 0, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	want := GenesisHash
	lines := 0

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		lines++
		var entry Entry
		if err := json.Unmarshal(scanner.Bytes(), &entry); err != nil {
			return lines, &ChainError{Line: lines, Reason: fmt.Sprintf("parse: %v", err)}
		}
		if entry.PrevHash != want {
			return lines, &ChainError{
				Line:   lines,
				Reason: fmt.Sprintf("prev_hash %s, expected %s", entry.PrevHash, want),
			}
		}
		want = HashLine(scanner.Bytes())
	}
	if err := scanner.Err(); err != nil {
		return lines, fmt.Errorf("audit: scan log: %w", err)
	}
	return lines, nil
}
