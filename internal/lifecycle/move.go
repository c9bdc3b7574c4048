package lifecycle

import (
	"context"
	"time"

	"wsideid/internal/logging"
	"wsideid/internal/services"
	"wsideid/internal/store"
)

// Move transitions item into the folder bound to role, mirroring the item's
// path beneath it. Quarantine records where the item came from and leaves
// the source path in place; every other role prunes emptied source folders.
func (m *Machine) Move(ctx context.Context, item *store.Item, user string, role Role) (*store.Item, error) {
	dest, err := m.RoleFolder(ctx, role)
	if err != nil {
		return nil, err
	}
	if dest.ID == item.FolderID {
		return nil, services.Wrap(services.ErrNoOp, "lifecycle", string(role),
			"The item is already in the appropriate folder.", nil)
	}

	path, err := m.sourcePath(ctx, item)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "lifecycle", "walk source path", item.ID, err)
	}
	target, err := m.mirror(ctx, path, dest, user)
	if err != nil {
		return nil, services.Wrap(services.ErrTransient, "lifecycle", "mirror folders", item.ID, err)
	}

	var quarantine map[string]any
	if role == RoleQuarantine {
		quarantine = map[string]any{
			"originalFolderId":       item.FolderID,
			"originalBaseParentType": item.BaseParentType,
			"originalBaseParentId":   item.BaseParentID,
			"originalUpdated":        item.UpdatedAt.UTC().Format(time.RFC3339Nano),
			"quarantineUserId":       userValue(user),
			"quarantineTime":         m.timestamp(),
		}
	}

	moved, err := m.store.MoveItem(ctx, item, target)
	if err != nil {
		return nil, err
	}

	if role == RoleQuarantine {
		moved, err = m.store.SetMetadata(ctx, moved, store.Metadata{MetaQuarantine: quarantine})
		if err != nil {
			return nil, err
		}
	} else {
		if moved.Meta.Has(MetaQuarantine) {
			moved, err = m.store.SetMetadata(ctx, moved, store.Metadata{MetaQuarantine: nil})
			if err != nil {
				return nil, err
			}
		}
		if err := m.prune(ctx, path); err != nil {
			logging.WarnWithContext(m.logger, "failed to prune vacated folders", "prune_failed",
				logging.String(logging.FieldItemID, item.ID),
				logging.Error(err),
				logging.String(logging.FieldImpact, "empty folders remain under the source role folder"),
			)
		}
	}

	m.logger.Info("item moved",
		logging.String(logging.FieldItemID, moved.ID),
		logging.String("role", string(role)),
		logging.String(logging.FieldFolderID, target.ID),
		logging.String(logging.FieldEventType, "item_moved"),
	)
	return moved, nil
}

// Unquarantine returns a quarantined item to the folder it was quarantined
// from and drops the quarantine record.
func (m *Machine) Unquarantine(ctx context.Context, item *store.Item, user string) (*store.Item, error) {
	record := item.Meta.Map(MetaQuarantine)
	if record == nil {
		return nil, services.Wrap(services.ErrConflict, "lifecycle", "unquarantine",
			"The item is not quarantined.", nil)
	}
	originalID, _ := record["originalFolderId"].(string)
	original, err := m.store.LoadFolder(ctx, originalID)
	if err != nil {
		return nil, err
	}
	if original == nil {
		return nil, services.Wrap(services.ErrNotFound, "lifecycle", "unquarantine",
			"The original folder no longer exists.", nil)
	}

	path, err := m.sourcePath(ctx, item)
	if err != nil {
		return nil, err
	}
	moved, err := m.store.MoveItem(ctx, item, original)
	if err != nil {
		return nil, err
	}
	moved, err = m.store.SetMetadata(ctx, moved, store.Metadata{MetaQuarantine: nil})
	if err != nil {
		return nil, err
	}
	if err := m.prune(ctx, path); err != nil {
		logging.WarnWithContext(m.logger, "failed to prune quarantine folders", "prune_failed",
			logging.String(logging.FieldItemID, item.ID),
			logging.Error(err),
			logging.String(logging.FieldImpact, "empty folders remain under quarantine"),
		)
	}
	m.logger.Info("item restored from quarantine",
		logging.String(logging.FieldItemID, moved.ID),
		logging.String(logging.FieldFolderID, original.ID),
		logging.String(logging.FieldUser, user),
		logging.String(logging.FieldEventType, "item_unquarantined"),
	)
	return moved, nil
}

// SetRedactList replaces the item's redact specification.
func (m *Machine) SetRedactList(ctx context.Context, item *store.Item, redactList map[string]any) (*store.Item, error) {
	if redactList == nil {
		return nil, services.Wrap(services.ErrValidation, "lifecycle", "set redact list", "redact list must be an object", nil)
	}
	return m.store.SetMetadata(ctx, item, store.Metadata{MetaRedactList: redactList})
}
