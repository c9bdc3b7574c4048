package preflight

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"

	"github.com/dustin/go-humanize"
	"golang.org/x/sys/unix"

	"wsideid/internal/config"
	"wsideid/internal/deps"
	"wsideid/internal/importexport"
	"wsideid/internal/services"
	"wsideid/internal/store"
)

// MinFreeBytes is the free space below which scratch checks fail. Redacted
// copies of whole-slide images are written there before upload.
const MinFreeBytes uint64 = 2 << 30

// CheckDirectoryAccess verifies that the directory exists and is readable/writable.
func CheckDirectoryAccess(name, path string) Result {
	if path == "" {
		return Result{Name: name, Detail: "not configured"}
	}
	info, err := os.Stat(path)
	if err != nil {
		if os.IsNotExist(err) {
			return Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", path)}
		}
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: stat: %v)", path, err)}
	}
	if !info.IsDir() {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: is not a directory)", path)}
	}
	if err := unix.Access(path, unix.R_OK|unix.W_OK|unix.X_OK); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: insufficient permissions: %v)", path, err)}
	}
	return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (read/write ok)", path)}
}

// CheckFreeSpace verifies that the filesystem holding path has at least min
// bytes available to unprivileged users.
func CheckFreeSpace(name, path string, min uint64) Result {
	var stat unix.Statfs_t
	if err := unix.Statfs(path, &stat); err != nil {
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: statfs: %v)", path, err)}
	}
	free := stat.Bavail * uint64(stat.Bsize)
	detail := fmt.Sprintf("%s free on %s", humanize.IBytes(free), path)
	if free < min {
		return Result{Name: name, Detail: fmt.Sprintf("%s (need %s)", detail, humanize.IBytes(min))}
	}
	return Result{Name: name, Passed: true, Detail: detail}
}

// CheckSystemDeps evaluates the external tools named in cfg.
func CheckSystemDeps(cfg *config.Config) []deps.Status {
	return deps.CheckBinaries([]deps.Requirement{
		{
			Name:        "OCR",
			Command:     cfg.OCR.Command,
			Description: "Reads label text from slide images",
			Optional:    true,
			VersionArgs: []string{"--version"},
		},
		{
			Name:        "Redaction",
			Command:     cfg.Redaction.Command,
			Description: "Rewrites image files without identifying content",
			VersionArgs: []string{"--version"},
		},
	})
}

// CheckRoleFolders verifies that every workflow role is bound to a folder
// that exists in st.
func CheckRoleFolders(ctx context.Context, cfg *config.Config, st *store.Store) []Result {
	bindings := cfg.RoleBindings()
	results := make([]Result, 0, len(bindings))
	for _, role := range config.RoleNames() {
		name := "Folder " + role
		id := bindings[role]
		if id == "" {
			results = append(results, Result{Name: name, Detail: "not configured"})
			continue
		}
		folder, err := st.LoadFolder(ctx, id)
		switch {
		case err != nil:
			results = append(results, Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", id, err)})
		case folder == nil:
			results = append(results, Result{Name: name, Detail: fmt.Sprintf("%s (error: does not exist)", id)})
		default:
			results = append(results, Result{Name: name, Passed: true, Detail: folder.Name})
		}
	}
	return results
}

// CheckRemote verifies that the remote export destination accepts the
// configured credentials.
func CheckRemote(ctx context.Context, remote config.Remote) Result {
	const name = "Remote export"

	target := path.Join(remote.Host, remote.Path)
	exists, err := importexport.ProbeRemote(ctx, remote)
	switch {
	case errors.Is(err, services.ErrConfiguration):
		return Result{Name: name, Detail: err.Error()}
	case err != nil:
		return Result{Name: name, Detail: fmt.Sprintf("%s (error: %v)", target, err)}
	case !exists:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (bucket will be created on first export)", target)}
	default:
		return Result{Name: name, Passed: true, Detail: fmt.Sprintf("%s (reachable)", target)}
	}
}
