package lifecycle

import (
	"context"

	"wsideid/internal/store"
)

// WalkAncestors visits folder and then each parent folder until visit returns
// stop or the walk reaches a folder whose parent is a collection.
func WalkAncestors(ctx context.Context, st *store.Store, folder *store.Folder, visit func(*store.Folder) (stop bool)) error {
	current := folder
	for current != nil {
		if visit(current) {
			return nil
		}
		if current.ParentType != store.ParentFolder {
			return nil
		}
		parent, err := st.LoadFolder(ctx, current.ParentID)
		if err != nil {
			return err
		}
		current = parent
	}
	return nil
}

// FirstItem returns the first item, in case-folded name order, found depth
// first under folder that satisfies accept. Items directly inside a folder
// listed in skip are ignored; that folder's subfolders are still searched.
func FirstItem(ctx context.Context, st *store.Store, folder *store.Folder, accept func(*store.Item) bool, skip map[string]bool) (*store.Item, error) {
	if folder == nil {
		return nil, nil
	}
	if !skip[folder.ID] {
		items, err := st.ChildItems(ctx, folder, store.ItemQuery{Sort: store.SortLowerName})
		if err != nil {
			return nil, err
		}
		for _, item := range items {
			if accept == nil || accept(item) {
				return item, nil
			}
		}
	}
	children, err := st.ChildFolders(ctx, folder)
	if err != nil {
		return nil, err
	}
	for _, child := range children {
		item, err := FirstItem(ctx, st, child, accept, skip)
		if err != nil || item != nil {
			return item, err
		}
	}
	return nil, nil
}

// WalkTree visits root and every folder beneath it, depth first in name
// order. rel holds the folder names from root (exclusive) down to the
// visited folder.
func WalkTree(ctx context.Context, st *store.Store, root *store.Folder, visit func(folder *store.Folder, rel []string) error) error {
	return walkTree(ctx, st, root, nil, visit)
}

func walkTree(ctx context.Context, st *store.Store, folder *store.Folder, rel []string, visit func(*store.Folder, []string) error) error {
	if folder == nil {
		return nil
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if err := visit(folder, rel); err != nil {
		return err
	}
	children, err := st.ChildFolders(ctx, folder)
	if err != nil {
		return err
	}
	for _, child := range children {
		next := append(append([]string(nil), rel...), child.Name)
		if err := walkTree(ctx, st, child, next, visit); err != nil {
			return err
		}
	}
	return nil
}

// IsProjectFolder returns the role of the first bound role folder found on
// the ancestor walk from folder, inclusive.
func (m *Machine) IsProjectFolder(ctx context.Context, folder *store.Folder) (Role, bool, error) {
	index := roleIndex(m.cfg)
	var found Role
	err := WalkAncestors(ctx, m.store, folder, func(f *store.Folder) bool {
		if role, ok := index[f.ID]; ok {
			found = role
			return true
		}
		return false
	})
	if err != nil {
		return "", false, err
	}
	return found, found != "", nil
}

// sourcePath returns the folders between the item and its enclosing role
// folder, outermost first. An item outside every role folder yields none.
func (m *Machine) sourcePath(ctx context.Context, item *store.Item) ([]*store.Folder, error) {
	start, err := m.store.LoadFolder(ctx, item.FolderID)
	if err != nil {
		return nil, err
	}
	index := roleIndex(m.cfg)
	var (
		path        []*store.Folder
		reachedRole bool
	)
	err = WalkAncestors(ctx, m.store, start, func(f *store.Folder) bool {
		if _, ok := index[f.ID]; ok {
			reachedRole = true
			return true
		}
		path = append([]*store.Folder{f}, path...)
		return false
	})
	if err != nil {
		return nil, err
	}
	if !reachedRole {
		return nil, nil
	}
	return path, nil
}

// MirrorInto recreates the item's path beneath the folder bound to role and
// returns the innermost folder. The item is not moved.
func (m *Machine) MirrorInto(ctx context.Context, item *store.Item, user string, role Role) (*store.Folder, error) {
	dest, err := m.RoleFolder(ctx, role)
	if err != nil {
		return nil, err
	}
	path, err := m.sourcePath(ctx, item)
	if err != nil {
		return nil, err
	}
	return m.mirror(ctx, path, dest, user)
}

// mirror recreates path beneath dest, reusing same-named folders.
func (m *Machine) mirror(ctx context.Context, path []*store.Folder, dest *store.Folder, user string) (*store.Folder, error) {
	current := dest
	for _, f := range path {
		next, err := m.store.CreateFolder(ctx, current, f.Name, user, true)
		if err != nil {
			return nil, err
		}
		current = next
	}
	return current, nil
}

// prune removes vacated folders leaf-up, stopping at the first non-empty one.
func (m *Machine) prune(ctx context.Context, path []*store.Folder) error {
	for i := len(path) - 1; i >= 0; i-- {
		busy, err := m.store.HasChildren(ctx, path[i])
		if err != nil {
			return err
		}
		if busy {
			return nil
		}
		if err := m.store.RemoveFolder(ctx, path[i]); err != nil {
			return err
		}
	}
	return nil
}
