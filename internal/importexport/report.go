package importexport

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"

	"wsideid/internal/lifecycle"
	"wsideid/internal/logging"
)

// attachReport stores a CSV summary of the run in the reports folder. A
// missing reports binding or a write failure only logs.
func (o *Orchestrator) attachReport(ctx context.Context, kind, user string, result *Result) {
	logger := logging.WithContext(ctx, o.logger)
	folder, err := o.machine.RoleFolder(ctx, lifecycle.RoleReports)
	if err != nil {
		logger.Debug("reports folder unavailable; skipping report", logging.Error(err))
		return
	}

	var buf bytes.Buffer
	w := csv.NewWriter(&buf)
	rows := [][]string{
		{"action", result.Action},
		{"time", o.timestamp()},
		{"user", user},
		{"added", fmt.Sprint(result.Added)},
		{"matched", fmt.Sprint(result.Matched)},
		{"unfiled", fmt.Sprint(result.Unfiled)},
		{"exported", fmt.Sprint(result.Exported)},
		{"skipped", fmt.Sprint(result.Skipped)},
		{"failed", fmt.Sprint(result.Failed)},
		{"manifest_rows", fmt.Sprint(result.ManifestRows)},
	}
	for _, line := range result.Messages {
		rows = append(rows, []string{"message", line})
	}
	if err := w.WriteAll(rows); err != nil {
		logger.Warn("failed to encode report", logging.Error(err))
		return
	}

	st := o.machine.Store()
	name := fmt.Sprintf("%s Report %s.csv", kind, o.now().UTC().Format("20060102 150405"))
	item, err := st.CreateItem(ctx, folder, name, user, nil)
	if err == nil {
		_, err = st.UploadFile(ctx, bytes.NewReader(buf.Bytes()), int64(buf.Len()), name, item, "text/csv")
	}
	if err != nil {
		logging.WarnWithContext(logger, "failed to store report", "report_write_failed",
			logging.Error(err),
			logging.String(logging.FieldImpact, "run summary is only available in the logs"),
		)
		return
	}
	result.ReportItemID = item.ID
}
