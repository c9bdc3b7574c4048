package lifecycle

import (
	"context"
	"path/filepath"
	"sort"
	"strings"

	"wsideid/internal/logging"
	"wsideid/internal/manifest"
	"wsideid/internal/redactspec"
	"wsideid/internal/services"
	"wsideid/internal/store"
)

// Refile assigns item to a manifest image identifier and files it under
// ingest/{tokenID}. An empty imageID refiles by token alone.
func (m *Machine) Refile(ctx context.Context, item *store.Item, user, imageID, tokenID string) (*store.Item, error) {
	imageID = strings.TrimSpace(imageID)
	tokenID = strings.TrimSpace(tokenID)
	if imageID == "" && tokenID == "" {
		return nil, services.Wrap(services.ErrValidation, "lifecycle", "refile", "an image or token identifier is required", nil)
	}

	if imageID != "" && imageID != baseName(item.Name) {
		taken, err := m.nameTaken(ctx, imageID, item.ID)
		if err != nil {
			return nil, err
		}
		if taken {
			return nil, services.Wrap(services.ErrConflict, "lifecycle", "refile",
				"An image with that name already exists.", nil)
		}
	}
	if imageID == "" {
		imageID = manifest.TokenOnlyPrefix + tokenID
	}

	uploadInfo := manifest.FromMeta(item.Meta.Map(MetaUploadInfo))
	if _, ok := uploadInfo[manifest.TokenOnlyPrefix+imageID]; ok {
		imageID = manifest.TokenOnlyPrefix + imageID
	}
	record, known := uploadInfo[imageID]
	if known {
		if token := record.Fields[m.cfg.Import.FolderNameField]; token != "" {
			tokenID = token
		} else if record.TokenID != "" {
			tokenID = record.TokenID
		}
	}
	if tokenID == "" {
		tokenID, _, _ = strings.Cut(imageID, "_")
	}

	ingest, err := m.RoleFolder(ctx, RoleIngest)
	if err != nil {
		return nil, err
	}
	parent, err := m.store.CreateFolder(ctx, ingest, tokenID, user, true)
	if err != nil {
		return nil, err
	}

	newName := item.Name
	displayID := strings.TrimPrefix(imageID, manifest.TokenOnlyPrefix)
	if !strings.HasPrefix(imageID, manifest.TokenOnlyPrefix) {
		newName = imageID + filepath.Ext(item.Name)
	}
	refiled, err := m.store.RenameItem(ctx, item, newName)
	if err != nil {
		return nil, err
	}
	if refiled.FolderID != parent.ID {
		if refiled, err = m.store.MoveItem(ctx, refiled, parent); err != nil {
			return nil, err
		}
	}

	update := store.Metadata{
		MetaRedactList: redactspec.Standard(displayID, newName),
		MetaUploadInfo: nil,
	}
	if known {
		update[MetaDeidUpload] = record.FieldsMeta()
	}
	if refiled, err = m.store.SetMetadata(ctx, refiled, update); err != nil {
		return nil, err
	}

	m.logger.Info("item refiled",
		logging.String(logging.FieldItemID, refiled.ID),
		logging.String("image_id", imageID),
		logging.String("token_id", tokenID),
		logging.String(logging.FieldFolderID, parent.ID),
		logging.String(logging.FieldEventType, "item_refiled"),
	)
	return refiled, nil
}

// RefileList returns the image identifiers from the item's upload info that
// no item has claimed yet. Token-only entries contribute their token.
func (m *Machine) RefileList(ctx context.Context, item *store.Item) ([]string, error) {
	uploadInfo := manifest.FromMeta(item.Meta.Map(MetaUploadInfo))
	seen := make(map[string]struct{})
	var ids []string
	for _, key := range uploadInfo.Keys() {
		if strings.HasPrefix(key, manifest.TokenOnlyPrefix) {
			continue
		}
		taken, err := m.nameTaken(ctx, key, "")
		if err != nil {
			return nil, err
		}
		if !taken {
			ids = append(ids, key)
			seen[key] = struct{}{}
		}
	}
	for _, key := range uploadInfo.Keys() {
		if !strings.HasPrefix(key, manifest.TokenOnlyPrefix) {
			continue
		}
		base := strings.TrimPrefix(key, manifest.TokenOnlyPrefix)
		if _, ok := seen[base]; !ok {
			ids = append(ids, base)
			seen[base] = struct{}{}
		}
	}
	sort.Strings(ids)
	return ids, nil
}

// nameTaken reports whether an item other than excludeID is named
// "{imageID}.{anything}".
func (m *Machine) nameTaken(ctx context.Context, imageID, excludeID string) (bool, error) {
	items, err := m.store.ItemsNamedLike(ctx, imageID+".", excludeID)
	if err != nil {
		return false, err
	}
	return len(items) > 0, nil
}

func baseName(name string) string {
	base, _, _ := strings.Cut(name, ".")
	return base
}
