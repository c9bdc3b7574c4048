package redactspec_test

import (
	"testing"

	"wsideid/internal/redactspec"
)

func TestStandardUsesImageID(t *testing.T) {
	spec := redactspec.Standard("T1_01", "scan.svs")

	metadata, ok := spec["metadata"].(map[string]any)
	if !ok {
		t.Fatalf("expected metadata object, got %#v", spec["metadata"])
	}
	filename := metadata["internal;openslide;aperio.Filename"].(map[string]any)
	if filename["value"] != "T1_01.svs" {
		t.Fatalf("unexpected filename replacement %#v", filename)
	}
	title := metadata["internal;openslide;aperio.Title"].(map[string]any)
	if title["value"] != "T1_01" {
		t.Fatalf("unexpected title replacement %#v", title)
	}
	has, err := redactspec.HasGeometry(spec)
	if err != nil || has {
		t.Fatalf("standard spec should carry no geometry, got %v err=%v", has, err)
	}
}

func TestHasGeometry(t *testing.T) {
	cases := []struct {
		name    string
		list    map[string]any
		want    bool
		wantErr bool
	}{
		{"nil", nil, false, false},
		{"area", map[string]any{"area": map[string]any{"_wsi": map[string]any{"geojson": map[string]any{"type": "FeatureCollection"}}}}, true, false},
		{"associated", map[string]any{"images": map[string]any{"macro": map[string]any{"geojson": []any{1}}}}, true, false},
		{"empty geojson", map[string]any{"images": map[string]any{"macro": map[string]any{"geojson": map[string]any{}}}}, false, false},
		{"malformed images", map[string]any{"images": "bogus"}, false, true},
		{"malformed entry", map[string]any{"images": map[string]any{"label": 3}}, false, true},
		{"null area", map[string]any{"area": nil}, false, true},
		{"null wsi", map[string]any{"area": map[string]any{"_wsi": nil}}, false, true},
		{"null images", map[string]any{"images": nil}, false, true},
		{"null geojson", map[string]any{"area": map[string]any{"_wsi": map[string]any{"geojson": nil}}}, false, false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, err := redactspec.HasGeometry(tc.list)
			if (err != nil) != tc.wantErr {
				t.Fatalf("err=%v wantErr=%v", err, tc.wantErr)
			}
			if got != tc.want {
				t.Fatalf("got %v want %v", got, tc.want)
			}
		})
	}
}
