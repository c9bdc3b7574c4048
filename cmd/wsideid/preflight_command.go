package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"wsideid/internal/daemonrun"
	"wsideid/internal/preflight"
)

func newPreflightCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "preflight",
		Short: "Check tools, directories, folder bindings, and the remote destination",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				results := preflight.RunAll(c, rt.Config, rt.Store)
				rows := make([][]string, 0, len(results))
				for _, r := range results {
					status := "ok"
					if !r.Passed {
						status = "FAIL"
					}
					rows = append(rows, []string{r.Name, status, r.Detail})
				}
				fmt.Fprintln(cmd.OutOrStdout(), renderTable([]string{"Check", "Status", "Detail"}, rows, nil))
				if failed := preflight.Failed(results); len(failed) > 0 {
					return fmt.Errorf("%d preflight checks failed", len(failed))
				}
				return nil
			})
		},
	}
}
