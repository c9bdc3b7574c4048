// Package redactspec builds and inspects redact specifications, the
// `redactList` metadata describing which regions and fields of a slide must
// be removed.
package redactspec

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
)

// Metadata keys that carry the scanner-assigned title or file name. Each is
// replaced with the image identifier.
var titleKeys = []string{
	"internal;openslide;aperio.Filename",
	"internal;openslide;aperio.Title",
	"internal;openslide;hamamatsu.Reference",
	"internal;openslide;philips.PIM_DP_UFS_BARCODE",
	"internal;xml;PIIM_DP_SCANNER_OPERATOR_ID",
}

// Standard returns the default redact specification for an image: label and
// macro images are replaced, scanner title fields are rewritten to imageID,
// and no area redactions are requested.
func Standard(imageID, itemName string) map[string]any {
	metadata := make(map[string]any, len(titleKeys))
	value := imageID
	if ext := filepath.Ext(itemName); ext != "" && !strings.HasSuffix(imageID, ext) {
		value = imageID + ext
	}
	for _, key := range titleKeys {
		if strings.HasSuffix(key, "Filename") {
			metadata[key] = map[string]any{"value": value}
			continue
		}
		metadata[key] = map[string]any{"value": imageID}
	}
	return map[string]any{
		"metadata": metadata,
		"images": map[string]any{
			"label": map[string]any{"value": "redact", "replaceWith": imageID},
			"macro": map[string]any{"value": "redact"},
		},
		"area": map[string]any{},
	}
}

// HasGeometry reports whether list requests an area redaction on the main
// image or a geometry redaction on any associated image. Malformed lists,
// including a present but null area, _wsi or images, return an error so
// callers can fall back to the conservative path.
func HasGeometry(list map[string]any) (bool, error) {
	if list == nil {
		return false, nil
	}
	if rawArea, ok := list["area"]; ok {
		area, ok := rawArea.(map[string]any)
		if !ok {
			return false, errors.New("redact list area is not an object")
		}
		if wsi, ok := area["_wsi"]; ok {
			wsiMap, ok := wsi.(map[string]any)
			if !ok {
				return false, errors.New("redact list area._wsi is not an object")
			}
			if truthy(wsiMap["geojson"]) {
				return true, nil
			}
		}
	}
	rawImages, ok := list["images"]
	if !ok {
		return false, nil
	}
	images, ok := rawImages.(map[string]any)
	if !ok {
		return false, errors.New("redact list images is not an object")
	}
	for key, raw := range images {
		entry, ok := raw.(map[string]any)
		if !ok {
			return false, fmt.Errorf("redact list image %q is not an object", key)
		}
		if truthy(entry["geojson"]) {
			return true, nil
		}
	}
	return false, nil
}

func truthy(v any) bool {
	switch t := v.(type) {
	case nil:
		return false
	case bool:
		return t
	case string:
		return t != ""
	case map[string]any:
		return len(t) > 0
	case []any:
		return len(t) > 0
	default:
		return true
	}
}
