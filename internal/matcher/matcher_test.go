package matcher_test

import (
	"context"
	"fmt"
	"math/rand"
	"strings"
	"testing"

	"wsideid/internal/lifecycle"
	"wsideid/internal/manifest"
	"wsideid/internal/matcher"
	"wsideid/internal/testsupport"
)

func TestFindBestMatch(t *testing.T) {
	cases := []struct {
		name   string
		input  []matcher.Candidate
		want   string
		wantOK bool
	}{
		{"empty", nil, "", false},
		{"single", []matcher.Candidate{{"a", 1}}, "a", true},
		{"unique max", []matcher.Candidate{{"a", 1}, {"b", 3}, {"c", 2}}, "b", true},
		{"tie at max", []matcher.Candidate{{"a", 2}, {"b", 2}}, "", false},
		{"tie above lower", []matcher.Candidate{{"a", 1}, {"b", 4}, {"c", 4}}, "", false},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			got, ok := matcher.FindBestMatch(tc.input)
			if got != tc.want || ok != tc.wantOK {
				t.Fatalf("FindBestMatch(%v) = %q,%v want %q,%v", tc.input, got, ok, tc.want, tc.wantOK)
			}
		})
	}
}

func TestFindBestMatchProperties(t *testing.T) {
	rng := rand.New(rand.NewSource(7))
	for iter := 0; iter < 500; iter++ {
		n := 1 + rng.Intn(6)
		candidates := make([]matcher.Candidate, n)
		maxCount, maxSeen := 0, 0
		for i := range candidates {
			count := 1 + rng.Intn(5)
			candidates[i] = matcher.Candidate{ItemID: fmt.Sprintf("item-%d", i), MatchedWordCount: count}
			switch {
			case count > maxCount:
				maxCount, maxSeen = count, 1
			case count == maxCount:
				maxSeen++
			}
		}
		got, ok := matcher.FindBestMatch(candidates)
		if maxSeen > 1 {
			if ok {
				t.Fatalf("tie at max %d must not match, got %q for %v", maxCount, got, candidates)
			}
			continue
		}
		if !ok {
			t.Fatalf("unique max must match for %v", candidates)
		}
		for _, c := range candidates {
			if c.ItemID == got && c.MatchedWordCount != maxCount {
				t.Fatalf("returned %q with count %d, max is %d", got, c.MatchedWordCount, maxCount)
			}
		}
	}
}

func TestMatchImagesToUploadRecordsFilesUniqueMatch(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	roles := testsupport.MustSetupRoles(t, st, cfg)
	ctx := context.Background()

	source := testsupport.MustCreateItem(t, st, roles.Folder("unfiled"), "scan.svs", nil)
	records := manifest.Index([]manifest.Record{
		{ImageID: "T1_01", TokenID: "T1", Fields: map[string]string{"TokenID": "T1", "PatientID": "P100"}},
		{ImageID: "T2_01", TokenID: "T2", Fields: map[string]string{"TokenID": "T2"}},
	})

	var lines []string
	m := matcher.New(lifecycle.New(cfg, st, nil, nil), nil)
	report, err := m.MatchImagesToUploadRecords(ctx, map[string][]matcher.Candidate{
		"T1_01": {{ItemID: source.ID, MatchedWordCount: 1}},
		"T2_01": {},
	}, records, "admin", func(line string) { lines = append(lines, line) })
	if err != nil {
		t.Fatalf("MatchImagesToUploadRecords: %v", err)
	}
	if len(report.Filed) != 1 || len(report.Unmatched) != 1 || report.Unmatched[0] != "T2_01" {
		t.Fatalf("unexpected report %#v", report)
	}

	copied := testsupport.MustLoadItem(t, st, report.Filed[0].ItemID)
	if copied.Name != "T1_01.svs" {
		t.Fatalf("unexpected copy name %q", copied.Name)
	}
	folder, err := st.LoadFolder(ctx, copied.FolderID)
	if err != nil || folder == nil || folder.Name != "T1" || folder.ParentID != roles.Folder("ingest").ID {
		t.Fatalf("expected ingest/T1, got %#v err=%v", folder, err)
	}
	if copied.Meta.Map(lifecycle.MetaDeidUpload)["PatientID"] != "P100" {
		t.Fatalf("expected deidUpload fields, got %#v", copied.Meta)
	}
	if copied.Meta.Map(lifecycle.MetaRedactList) == nil {
		t.Fatal("expected redact list")
	}
	if still := testsupport.MustLoadItem(t, st, source.ID); still.FolderID != roles.Folder("unfiled").ID {
		t.Fatal("source item must stay in unfiled")
	}
	if !containsLine(lines, "No items could be matched via OCR with ImageID T2_01") {
		t.Fatalf("expected unmatched log line, got %v", lines)
	}
}

func TestMatchImagesToUploadRecordsLeavesTiesUnfiled(t *testing.T) {
	cfg := testsupport.NewConfig(t)
	st := testsupport.MustOpenStore(t, cfg)
	roles := testsupport.MustSetupRoles(t, st, cfg)
	ctx := context.Background()

	a := testsupport.MustCreateItem(t, st, roles.Folder("unfiled"), "a.svs", nil)
	b := testsupport.MustCreateItem(t, st, roles.Folder("unfiled"), "b.svs", nil)
	records := manifest.Index([]manifest.Record{{ImageID: "T1_01", TokenID: "T1"}})

	var lines []string
	m := matcher.New(lifecycle.New(cfg, st, nil, nil), nil)
	report, err := m.MatchImagesToUploadRecords(ctx, map[string][]matcher.Candidate{
		"T1_01": {{ItemID: a.ID, MatchedWordCount: 2}, {ItemID: b.ID, MatchedWordCount: 2}},
	}, records, "admin", func(line string) { lines = append(lines, line) })
	if err != nil {
		t.Fatalf("MatchImagesToUploadRecords: %v", err)
	}
	if len(report.Filed) != 0 || len(report.Ambiguous) != 1 {
		t.Fatalf("unexpected report %#v", report)
	}
	if !containsLine(lines, "More than one item matched via OCR with ImageID T1_01") {
		t.Fatalf("expected ambiguity log line, got %v", lines)
	}
	children, err := st.ChildFolders(ctx, roles.Folder("ingest"))
	if err != nil {
		t.Fatalf("ChildFolders: %v", err)
	}
	if len(children) != 0 {
		t.Fatalf("ties must not create token folders, got %d", len(children))
	}
}

func containsLine(lines []string, fragment string) bool {
	for _, line := range lines {
		if strings.Contains(line, fragment) {
			return true
		}
	}
	return false
}
