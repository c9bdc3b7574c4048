package testsupport

import (
	"context"
	"errors"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"wsideid/internal/ocr"
	"wsideid/internal/redaction"
)

// FakeOCR returns canned tokens per item name.
type FakeOCR struct {
	mu     sync.Mutex
	Tokens map[string][]string
	Errors map[string]error
	Delays map[string]time.Duration
	calls  []string
}

// NewFakeOCR returns an engine with no canned results.
func NewFakeOCR() *FakeOCR {
	return &FakeOCR{
		Tokens: map[string][]string{},
		Errors: map[string]error{},
		Delays: map[string]time.Duration{},
	}
}

// RecognizeText implements ocr.Engine.
func (f *FakeOCR) RecognizeText(ctx context.Context, region ocr.Region) ([]string, error) {
	f.mu.Lock()
	f.calls = append(f.calls, region.Name)
	delay := f.Delays[region.Name]
	err := f.Errors[region.Name]
	tokens := append([]string(nil), f.Tokens[region.Name]...)
	f.mu.Unlock()

	if delay > 0 {
		select {
		case <-time.After(delay):
		case <-ctx.Done():
			return nil, ctx.Err()
		}
	}
	if err != nil {
		return nil, err
	}
	if region.Path == "" {
		return nil, errors.New("no image path")
	}
	return tokens, nil
}

// Calls returns the item names recognized so far, in call order.
func (f *FakeOCR) Calls() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.calls...)
}

// FakeCodec writes a small redacted file per call.
type FakeCodec struct {
	mu        sync.Mutex
	Extension string
	MimeType  string
	Err       error
	calls     []map[string]any
}

// NewFakeCodec returns a codec that produces TIFF output.
func NewFakeCodec() *FakeCodec {
	return &FakeCodec{Extension: ".tiff", MimeType: "image/tiff"}
}

// Redact implements redaction.Codec.
func (f *FakeCodec) Redact(ctx context.Context, src redaction.Source, redactList map[string]any, scratchDir string) (string, redaction.Info, error) {
	f.mu.Lock()
	f.calls = append(f.calls, redactList)
	err := f.Err
	f.mu.Unlock()
	if err != nil {
		return "", nil, err
	}
	if err := ctx.Err(); err != nil {
		return "", nil, err
	}
	base := strings.TrimSuffix(src.Item.Name, filepath.Ext(src.Item.Name))
	out := filepath.Join(scratchDir, base+"-redacted"+f.Extension)
	if err := os.WriteFile(out, []byte("redacted:"+src.Item.Name), 0o644); err != nil {
		return "", nil, err
	}
	return out, redaction.Info{"mimetype": f.MimeType, "format": "fake"}, nil
}

// Calls returns the redaction lists passed to Redact, in call order.
func (f *FakeCodec) Calls() []map[string]any {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]map[string]any(nil), f.calls...)
}

// FakeRemoteSink records uploaded objects in memory.
type FakeRemoteSink struct {
	mu      sync.Mutex
	Prefix  string
	Err     error
	objects map[string][]byte
}

// NewFakeRemoteSink returns an empty in-memory sink.
func NewFakeRemoteSink() *FakeRemoteSink {
	return &FakeRemoteSink{objects: map[string][]byte{}}
}

// Key implements importexport.RemoteSink.
func (f *FakeRemoteSink) Key(rel string) string {
	if f.Prefix == "" {
		return rel
	}
	return path.Join(f.Prefix, rel)
}

// Put implements importexport.RemoteSink.
func (f *FakeRemoteSink) Put(ctx context.Context, key, localPath string, size int64, contentType string) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.Err != nil {
		return f.Err
	}
	data, err := os.ReadFile(localPath)
	if err != nil {
		return err
	}
	if int64(len(data)) != size {
		return errors.New("size mismatch")
	}
	f.objects[key] = data
	return nil
}

// Objects returns a copy of the stored objects keyed by object key.
func (f *FakeRemoteSink) Objects() map[string][]byte {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make(map[string][]byte, len(f.objects))
	for k, v := range f.objects {
		out[k] = v
	}
	return out
}
