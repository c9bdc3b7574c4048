package main

import (
	"context"
	"fmt"
	"io"
	"strconv"

	"github.com/spf13/cobra"

	"wsideid/internal/daemonrun"
	"wsideid/internal/importexport"
	"wsideid/internal/store"
)

func newIngestCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "ingest",
		Short: "Import new files from the import directory",
		Long: "Ingest walks the import directory, files images named in a manifest into the ingest folder, " +
			"and parks the rest in the unfiled folder. When OCR on import is enabled the command waits " +
			"for the association job before exiting.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				result, err := rt.Service.Ingest(c, ctx.user())
				if err != nil {
					return err
				}
				if result.JobID != "" {
					rt.Runner.Wait()
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				out := cmd.OutOrStdout()
				printResult(out, result)
				if result.JobID != "" {
					job, err := rt.Store.GetJob(c, result.JobID)
					if err != nil {
						return err
					}
					if job != nil {
						printJob(out, job)
					}
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func newExportCommand(ctx *commandContext) *cobra.Command {
	var all bool
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export finished items to the configured destinations",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{ConnectRemote: true}, func(c context.Context, rt *daemonrun.Runtime) error {
				var (
					result importexport.Result
					err    error
				)
				if all {
					result, err = rt.Service.ExportAll(c, ctx.user())
				} else {
					result, err = rt.Service.Export(c, ctx.user())
				}
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, result)
				}
				printResult(cmd.OutOrStdout(), result)
				if result.Failed > 0 {
					return fmt.Errorf("%d items failed to export", result.Failed)
				}
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&all, "all", false, "Re-export items that were already exported")
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the result as JSON")
	return cmd
}

func printResult(out io.Writer, result importexport.Result) {
	rows := [][]string{}
	add := func(label string, value int, always bool) {
		if value > 0 || always {
			rows = append(rows, []string{label, strconv.Itoa(value)})
		}
	}
	switch result.Action {
	case "ingest":
		add("Added", result.Added, true)
		add("Unfiled", result.Unfiled, false)
		add("Matched", result.Matched, false)
		add("Manifest rows", result.ManifestRows, false)
	default:
		add("Exported", result.Exported, true)
	}
	add("Skipped", result.Skipped, false)
	add("Failed", result.Failed, false)
	fmt.Fprintln(out, renderTable([]string{"Result", "Count"}, rows, []columnAlignment{alignLeft, alignRight}))
	for _, line := range result.Messages {
		fmt.Fprintln(out, line)
	}
	if result.ReportItemID != "" {
		fmt.Fprintf(out, "Report item: %s\n", result.ReportItemID)
	}
}

func printJob(out io.Writer, job *store.Job) {
	fmt.Fprintf(out, "Job %s (%s): %s\n", job.ID, job.Title, job.Status)
	if job.Log != "" {
		fmt.Fprint(out, job.Log)
	}
}
