// Package fileutil holds small file copy helpers shared by the object store
// and the export path.
package fileutil

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
)

// CopyFileVerified copies src to dst, syncs it, then re-reads dst and
// compares its SHA-256 with the digest taken while reading src. It returns
// the hex digest. dst is removed on any failure.
func CopyFileVerified(src, dst string) (digest string, err error) {
	in, err := os.Open(src)
	if err != nil {
		return "", fmt.Errorf("open source: %w", err)
	}
	defer in.Close()

	out, err := os.Create(dst)
	if err != nil {
		return "", err
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(dst)
		}
	}()

	srcHash := sha256.New()
	if _, err = io.Copy(out, io.TeeReader(in, srcHash)); err != nil {
		return "", fmt.Errorf("copy %s: %w", filepath.Base(src), err)
	}
	if err = out.Sync(); err != nil {
		return "", fmt.Errorf("sync %s: %w", dst, err)
	}
	if err = out.Close(); err != nil {
		return "", err
	}

	want := hex.EncodeToString(srcHash.Sum(nil))
	got, err := FileDigest(dst)
	if err != nil {
		return "", err
	}
	if got != want {
		err = fmt.Errorf("copy of %s is corrupt: sha256 %s, expected %s", filepath.Base(src), got, want)
		return "", err
	}
	return want, nil
}

// FileDigest returns the hex SHA-256 of the file at path.
func FileDigest(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()
	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", fmt.Errorf("hash %s: %w", path, err)
	}
	return hex.EncodeToString(h.Sum(nil)), nil
}

// CopyInto copies src to dir/name, creating dir as needed, and returns the
// target path and its digest. An existing file is replaced through a
// temporary sibling so readers never see a partial copy.
func CopyInto(src, dir, name string) (target, digest string, err error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", "", fmt.Errorf("create %s: %w", dir, err)
	}
	target = filepath.Join(dir, name)
	tmp := target + ".partial"
	if digest, err = CopyFileVerified(src, tmp); err != nil {
		return "", "", err
	}
	if err := os.Rename(tmp, target); err != nil {
		_ = os.Remove(tmp)
		return "", "", fmt.Errorf("finalize %s: %w", target, err)
	}
	return target, digest, nil
}

// SafeName strips path separators so a display name can be used as a file name.
func SafeName(name string) string {
	name = strings.TrimSpace(name)
	name = strings.NewReplacer("/", "_", "\\", "_", "\x00", "").Replace(name)
	if name == "" || name == "." || name == ".." {
		return "_"
	}
	return name
}
