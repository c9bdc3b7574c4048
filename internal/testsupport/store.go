package testsupport

import (
	"context"
	"strings"
	"testing"

	"wsideid/internal/config"
	"wsideid/internal/store"
)

// MustOpenStore opens a store.Store for tests and registers cleanup.
func MustOpenStore(t testing.TB, cfg *config.Config) *store.Store {
	t.Helper()

	st, err := store.Open(cfg)
	if err != nil {
		t.Fatalf("store.Open: %v", err)
	}
	t.Cleanup(func() {
		st.Close()
	})
	return st
}

// Roles holds the role folders created by MustSetupRoles.
type Roles struct {
	CollectionID string
	Folders      map[string]*store.Folder
}

// Folder returns the folder bound to role.
func (r Roles) Folder(role string) *store.Folder {
	return r.Folders[role]
}

// MustSetupRoles creates one root folder per role in a test collection and
// binds them in cfg.
func MustSetupRoles(t testing.TB, st *store.Store, cfg *config.Config) Roles {
	t.Helper()

	ctx := context.Background()
	collectionID, err := st.EnsureCollection(ctx, "WSI DeID")
	if err != nil {
		t.Fatalf("EnsureCollection: %v", err)
	}
	roles := Roles{CollectionID: collectionID, Folders: map[string]*store.Folder{}}
	for _, role := range config.RoleNames() {
		folder, err := st.CreateRootFolder(ctx, collectionID, titleCase(role), "admin", true)
		if err != nil {
			t.Fatalf("CreateRootFolder %s: %v", role, err)
		}
		if err := cfg.SetRoleBinding(role, folder.ID); err != nil {
			t.Fatalf("SetRoleBinding %s: %v", role, err)
		}
		roles.Folders[role] = folder
	}
	return roles
}

// MustCreateFolder creates (or reuses) a nested path of folders under parent.
func MustCreateFolder(t testing.TB, st *store.Store, parent *store.Folder, path ...string) *store.Folder {
	t.Helper()

	current := parent
	for _, name := range path {
		next, err := st.CreateFolder(context.Background(), current, name, "admin", true)
		if err != nil {
			t.Fatalf("CreateFolder %s: %v", name, err)
		}
		current = next
	}
	return current
}

// MustCreateItem creates an item with a small source file.
func MustCreateItem(t testing.TB, st *store.Store, folder *store.Folder, name string, meta store.Metadata) *store.Item {
	t.Helper()

	ctx := context.Background()
	item, err := st.CreateItem(ctx, folder, name, "admin", meta)
	if err != nil {
		t.Fatalf("CreateItem %s: %v", name, err)
	}
	payload := "pixels:" + name
	if _, err := st.UploadFile(ctx, strings.NewReader(payload), int64(len(payload)), name, item, "image/tiff"); err != nil {
		t.Fatalf("UploadFile %s: %v", name, err)
	}
	if err := st.SetLargeImage(ctx, item); err != nil {
		t.Fatalf("SetLargeImage %s: %v", name, err)
	}
	reloaded, err := st.LoadItem(ctx, item.ID)
	if err != nil || reloaded == nil {
		t.Fatalf("LoadItem %s: %v", name, err)
	}
	return reloaded
}

// MustLoadItem reloads an item and fails the test when it is missing.
func MustLoadItem(t testing.TB, st *store.Store, id string) *store.Item {
	t.Helper()

	item, err := st.LoadItem(context.Background(), id)
	if err != nil {
		t.Fatalf("LoadItem %s: %v", id, err)
	}
	if item == nil {
		t.Fatalf("item %s not found", id)
	}
	return item
}

func titleCase(role string) string {
	if role == "" {
		return role
	}
	return strings.ToUpper(role[:1]) + role[1:]
}
