package workflow

import (
	"strings"

	"wsideid/internal/services"
)

// Action is one of the fixed item actions.
type Action string

const (
	ActionProcess      Action = "process"
	ActionReject       Action = "reject"
	ActionQuarantine   Action = "quarantine"
	ActionUnquarantine Action = "unquarantine"
	ActionFinish       Action = "finish"
	ActionOCR          Action = "ocr"
)

var actionLabels = map[Action]struct {
	name       string
	participle string
}{
	ActionProcess:      {"redact", "redacting"},
	ActionReject:       {"reject", "rejecting"},
	ActionQuarantine:   {"quarantine", "quarantining"},
	ActionUnquarantine: {"unquarantine", "unquarantining"},
	ActionFinish:       {"approve", "approving"},
	ActionOCR:          {"scan", "scanning"},
}

// Actions lists every action in display order.
func Actions() []Action {
	return []Action{ActionProcess, ActionReject, ActionQuarantine, ActionUnquarantine, ActionFinish, ActionOCR}
}

// ParseAction resolves an action name.
func ParseAction(value string) (Action, error) {
	action := Action(strings.ToLower(strings.TrimSpace(value)))
	if _, ok := actionLabels[action]; !ok {
		return "", services.Wrap(services.ErrUnknownAction, "workflow", "parse action", value, nil)
	}
	return action, nil
}

// Verb describes the action in log lines ("Failed to redact item").
func (a Action) Verb() string {
	return actionLabels[a].name
}

// Participle describes the action in progress ("redacting").
func (a Action) Participle() string {
	return actionLabels[a].participle
}

func (a Action) String() string { return string(a) }
