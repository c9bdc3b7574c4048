package ocr

import (
	"context"
	"errors"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"wsideid/internal/services"
)

// Region identifies the image the engine should read.
type Region struct {
	ItemID string
	Name   string
	Path   string
}

// Engine recognizes text tokens in an image region.
type Engine interface {
	RecognizeText(ctx context.Context, region Region) ([]string, error)
}

// Executor abstracts command execution for the command engine.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	return cmd.Output()
}

// CommandEngine runs an external OCR binary that prints recognized text to
// stdout, tesseract style: `<binary> <image> stdout`.
type CommandEngine struct {
	binary  string
	timeout time.Duration
	exec    Executor
}

// EngineOption customizes a CommandEngine.
type EngineOption func(*CommandEngine)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) EngineOption {
	return func(e *CommandEngine) {
		if exec != nil {
			e.exec = exec
		}
	}
}

// NewCommandEngine constructs an engine for binary. A timeout <= 0 disables
// the per-call deadline.
func NewCommandEngine(binary string, timeoutSeconds int, opts ...EngineOption) (*CommandEngine, error) {
	binary = strings.TrimSpace(binary)
	if binary == "" {
		return nil, services.Wrap(services.ErrConfiguration, "ocr", "init", "ocr command is empty", nil)
	}
	engine := &CommandEngine{
		binary:  binary,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(engine)
	}
	return engine, nil
}

// RecognizeText splits the recognizer output on whitespace.
func (e *CommandEngine) RecognizeText(ctx context.Context, region Region) ([]string, error) {
	if region.Path == "" {
		return nil, fmt.Errorf("%s: no image file", region.Name)
	}
	if e.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, e.timeout)
		defer cancel()
	}
	out, err := e.exec.Run(ctx, e.binary, []string{region.Path, "stdout"})
	if err != nil {
		var exitErr *exec.ExitError
		detail := err.Error()
		if errors.As(err, &exitErr) && len(exitErr.Stderr) > 0 {
			detail = strings.TrimSpace(string(exitErr.Stderr))
		}
		return nil, services.Wrap(services.ErrExternalTool, "ocr", e.binary, detail, err)
	}
	return strings.Fields(string(out)), nil
}
