package audit

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"
)

// Search scans the log for lines containing substring (naïve text
// match over the raw JSON lines, not a structured query) and returns
// the last limit matches in file order. Lines that fail to parse are
// silently discarded. A missing log file yields an empty result.
func Search(path, substring string, limit int) ([]Entry, error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	var matches []string
	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		line := scanner.Text()
		if strings.Contains(line, substring) {
			matches = append(matches, line)
		}
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("audit: scan log: %w", err)
	}

	if limit > 0 && len(matches) > limit {
		matches = matches[len(matches)-limit:]
	}

	entries := make([]Entry, 0, len(matches))
	for _, line := range matches {
		var e Entry
		if err := json.Unmarshal([]byte(line), &e); err != nil {
			continue
		}
		entries = append(entries, e)
	}
	return entries, nil
}

// Count returns the number of entries of each kind in the log. A
// missing file counts as empty.
func Count(path string) (execs, configs int, err error) {
	f, err := os.Open(path)
	if err != nil {
		if os.IsNotExist(err) {
			return 0, 0, nil
		}
		return 0, 0, fmt.Errorf("audit: open log: %w", err)
	}
	defer f.Close()

	scanner := bufio.NewScanner(f)
	scanner.Buffer(make([]byte, 0, 64*1024), 1<<20)
	for scanner.Scan() {
		var e Entry
		if err := json.Unmarshal(scanner.Bytes(), &e); err != nil {
			continue
		}
		switch e.Kind {
		case KindExec:
			execs++
		case KindConfig:
			configs++
		}
	}
	if err := scanner.Err(); err != nil {
		return 0, 0, fmt.Errorf("audit: scan log: %w", err)
	}
	return execs, configs, nil
}
