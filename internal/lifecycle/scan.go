package lifecycle

import (
	"context"

	"wsideid/internal/store"
)

// NextUnprocessedItem returns the first item awaiting review, searching the
// unfiled, ingest, quarantine, and processed folders in turn. In-flight
// items are skipped. Unbound or missing folders are ignored.
func (m *Machine) NextUnprocessedItem(ctx context.Context) (*store.Item, error) {
	for _, role := range []Role{RoleUnfiled, RoleIngest, RoleQuarantine, RoleProcessed} {
		folder, err := m.RoleFolder(ctx, role)
		if err != nil || folder == nil {
			continue
		}
		item, err := FirstItem(ctx, m.store, folder, m.idle, nil)
		if err != nil {
			return nil, err
		}
		if item != nil {
			return item, nil
		}
	}
	return nil, nil
}

// NextUnprocessedFolders returns up to two folders holding the next items to
// review followed by the finished folder id. The second search skips the
// first folder and every folder holding an in-flight item.
func (m *Machine) NextUnprocessedFolders(ctx context.Context) ([]string, error) {
	var (
		folders []string
		skip    map[string]bool
	)
	for pass := 0; pass < 2; pass++ {
		if skip != nil {
			if err := m.skipInFlightFolders(ctx, skip); err != nil {
				return nil, err
			}
		}
		for _, role := range []Role{RoleIngest, RoleQuarantine, RoleProcessed} {
			folder, err := m.RoleFolder(ctx, role)
			if err != nil {
				continue
			}
			item, err := FirstItem(ctx, m.store, folder, m.idle, skip)
			if err != nil {
				return nil, err
			}
			if item != nil {
				folders = append(folders, item.FolderID)
				skip = map[string]bool{item.FolderID: true}
				break
			}
		}
		if skip == nil {
			break
		}
	}
	folders = append(folders, m.cfg.Folders.Finished)
	return folders, nil
}

func (m *Machine) idle(item *store.Item) bool {
	return !m.registry.InFlight(item.ID)
}

func (m *Machine) skipInFlightFolders(ctx context.Context, skip map[string]bool) error {
	items, err := m.store.ItemsByID(ctx, m.registry.Snapshot())
	if err != nil {
		return err
	}
	for _, item := range items {
		skip[item.FolderID] = true
	}
	return nil
}
