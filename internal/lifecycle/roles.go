package lifecycle

import (
	"fmt"
	"strings"

	"wsideid/internal/config"
	"wsideid/internal/services"
)

// Role names a workflow state bound to one folder.
type Role string

const (
	RoleIngest     Role = "ingest"
	RoleQuarantine Role = "quarantine"
	RoleProcessed  Role = "processed"
	RoleRejected   Role = "rejected"
	RoleOriginal   Role = "original"
	RoleFinished   Role = "finished"
	RoleUnfiled    Role = "unfiled"
	// RoleReports is bound like the others but never holds workflow items.
	RoleReports Role = "reports"
)

// ParseRole validates a role name.
func ParseRole(value string) (Role, error) {
	role := Role(strings.ToLower(strings.TrimSpace(value)))
	for _, name := range config.RoleNames() {
		if string(role) == name {
			return role, nil
		}
	}
	return "", services.Wrap(services.ErrValidation, "lifecycle", "parse role", fmt.Sprintf("unknown role %q", value), nil)
}

func (r Role) String() string { return string(r) }

// roleIndex maps bound folder ids to their role.
func roleIndex(cfg *config.Config) map[string]Role {
	index := make(map[string]Role)
	for _, name := range config.RoleNames() {
		if id := cfg.RoleBindings()[name]; id != "" {
			index[id] = Role(name)
		}
	}
	return index
}
