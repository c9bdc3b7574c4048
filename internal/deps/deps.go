package deps

import (
	"fmt"
	"os/exec"
	"strings"
)

// Requirement names an external tool wsideid shells out to: the OCR engine
// or the slide redaction codec.
type Requirement struct {
	Name        string
	Command     string
	Description string
	Optional    bool
	// VersionArgs, when set, are passed to the tool to report its version.
	VersionArgs []string
}

// Status is the outcome of resolving one Requirement.
type Status struct {
	Requirement
	Available bool
	Path      string
	Version   string
	Detail    string
}

// Satisfied reports whether the tool is present or allowed to be missing.
func (s Status) Satisfied() bool {
	return s.Available || s.Optional
}

// CheckBinaries resolves every requirement on PATH, probing versions where
// VersionArgs are given. Results keep the input order.
func CheckBinaries(requirements []Requirement) []Status {
	results := make([]Status, len(requirements))
	for i, req := range requirements {
		req.Command = strings.TrimSpace(req.Command)
		req.Description = strings.TrimSpace(req.Description)
		results[i] = resolve(req)
	}
	return results
}

func resolve(req Requirement) Status {
	status := Status{Requirement: req}
	if req.Command == "" {
		status.Detail = "command not configured"
		return status
	}
	path, err := exec.LookPath(req.Command)
	if err != nil {
		status.Detail = fmt.Sprintf("binary %q not found", req.Command)
		return status
	}
	status.Available = true
	status.Path = path
	if len(req.VersionArgs) > 0 {
		status.Version = ProbeVersion(path, req.VersionArgs...)
	}
	return status
}
