package redaction

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"wsideid/internal/services"
	"wsideid/internal/store"
)

// Info is the codec's description of the applied redactions. It must carry
// a "mimetype" entry.
type Info map[string]any

// MimeType returns the reported mime type.
func (i Info) MimeType() string {
	s, _ := i["mimetype"].(string)
	return s
}

// Source describes the file the codec should redact.
type Source struct {
	Item *store.Item
	Path string
}

// Codec produces a redacted copy of an item's image.
type Codec interface {
	Redact(ctx context.Context, src Source, redactList map[string]any, scratchDir string) (string, Info, error)
}

// Executor abstracts command execution for the command codec.
type Executor interface {
	Run(ctx context.Context, binary string, args []string) ([]byte, error)
}

type commandExecutor struct{}

func (commandExecutor) Run(ctx context.Context, binary string, args []string) ([]byte, error) {
	cmd := exec.CommandContext(ctx, binary, args...) //nolint:gosec
	var stderr bytes.Buffer
	cmd.Stderr = &stderr
	out, err := cmd.Output()
	if err != nil && stderr.Len() > 0 {
		return out, fmt.Errorf("%w: %s", err, strings.TrimSpace(stderr.String()))
	}
	return out, err
}

// CommandCodec runs `<command> <source> <redactList.json> <outdir>`. The tool
// writes the redacted file into outdir and prints a JSON info object. When
// the object carries "path" that file is used, otherwise the single file in
// outdir.
type CommandCodec struct {
	command string
	timeout time.Duration
	exec    Executor
}

// CodecOption customizes a CommandCodec.
type CodecOption func(*CommandCodec)

// WithExecutor injects a custom executor (primarily for tests).
func WithExecutor(exec Executor) CodecOption {
	return func(c *CommandCodec) {
		if exec != nil {
			c.exec = exec
		}
	}
}

// NewCommandCodec constructs a codec backed by an external command.
func NewCommandCodec(command string, timeoutSeconds int, opts ...CodecOption) (*CommandCodec, error) {
	command = strings.TrimSpace(command)
	if command == "" {
		return nil, services.Wrap(services.ErrConfiguration, "redaction", "init", "redaction command is empty", nil)
	}
	codec := &CommandCodec{
		command: command,
		timeout: time.Duration(timeoutSeconds) * time.Second,
		exec:    commandExecutor{},
	}
	for _, opt := range opts {
		opt(codec)
	}
	return codec, nil
}

// Redact implements Codec.
func (c *CommandCodec) Redact(ctx context.Context, src Source, redactList map[string]any, scratchDir string) (string, Info, error) {
	outDir := filepath.Join(scratchDir, "out")
	if err := os.MkdirAll(outDir, 0o755); err != nil {
		return "", nil, err
	}
	listPath := filepath.Join(scratchDir, "redactList.json")
	encoded, err := json.Marshal(redactList)
	if err != nil {
		return "", nil, fmt.Errorf("encode redact list: %w", err)
	}
	if err := os.WriteFile(listPath, encoded, 0o600); err != nil {
		return "", nil, err
	}

	if c.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, c.timeout)
		defer cancel()
	}
	out, err := c.exec.Run(ctx, c.command, []string{src.Path, listPath, outDir})
	if err != nil {
		return "", nil, err
	}

	info := Info{}
	dec := json.NewDecoder(bytes.NewReader(out))
	dec.UseNumber()
	if err := dec.Decode(&info); err != nil {
		return "", nil, fmt.Errorf("parse %s output: %w", c.command, err)
	}
	if info.MimeType() == "" {
		return "", nil, errors.New("codec did not report a mimetype")
	}
	path, err := resolveOutput(outDir, info)
	if err != nil {
		return "", nil, err
	}
	delete(info, "path")
	return path, info, nil
}

func resolveOutput(outDir string, info Info) (string, error) {
	if p, ok := info["path"].(string); ok && p != "" {
		if !filepath.IsAbs(p) {
			p = filepath.Join(outDir, p)
		}
		if _, err := os.Stat(p); err != nil {
			return "", fmt.Errorf("codec output: %w", err)
		}
		return p, nil
	}
	entries, err := os.ReadDir(outDir)
	if err != nil {
		return "", err
	}
	var files []string
	for _, e := range entries {
		if !e.IsDir() {
			files = append(files, filepath.Join(outDir, e.Name()))
		}
	}
	if len(files) != 1 {
		return "", fmt.Errorf("codec produced %d files, expected 1", len(files))
	}
	return files[0], nil
}
