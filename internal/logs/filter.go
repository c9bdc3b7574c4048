package logs

import (
	"encoding/json"
	"strings"

	"wsideid/internal/logging"
)

// Filter keeps JSON log lines whose structured fields match every non-empty
// criterion. Lines that are not JSON objects are dropped when any criterion
// is set.
type Filter struct {
	ItemID    string
	JobID     string
	Component string
	MinLevel  string
}

// Active reports whether any criterion is set.
func (f Filter) Active() bool {
	return f.ItemID != "" || f.JobID != "" || f.Component != "" || f.MinLevel != ""
}

// Apply returns the matching lines in their original order.
func (f Filter) Apply(lines []string) []string {
	if !f.Active() {
		return lines
	}
	kept := make([]string, 0, len(lines))
	for _, line := range lines {
		if f.Match(line) {
			kept = append(kept, line)
		}
	}
	return kept
}

// Match reports whether one line passes the filter.
func (f Filter) Match(line string) bool {
	if !f.Active() {
		return true
	}
	var record map[string]any
	if err := json.Unmarshal([]byte(line), &record); err != nil {
		return false
	}
	if !fieldEquals(record, logging.FieldItemID, f.ItemID) ||
		!fieldEquals(record, logging.FieldJobID, f.JobID) ||
		!fieldEquals(record, logging.FieldComponent, f.Component) {
		return false
	}
	if f.MinLevel != "" {
		level, _ := record["level"].(string)
		return levelRank(level) >= levelRank(f.MinLevel)
	}
	return true
}

func fieldEquals(record map[string]any, key, want string) bool {
	if want == "" {
		return true
	}
	got, ok := record[key].(string)
	return ok && got == want
}

func levelRank(level string) int {
	switch strings.ToUpper(strings.TrimSpace(level)) {
	case "DEBUG":
		return 0
	case "INFO":
		return 1
	case "WARN", "WARNING":
		return 2
	case "ERROR":
		return 3
	default:
		return 1
	}
}
