package main

import (
	"context"
	"fmt"

	"github.com/spf13/cobra"

	"wsideid/internal/daemonrun"
)

func newOCRCommand(ctx *commandContext) *cobra.Command {
	ocrCmd := &cobra.Command{
		Use:   "ocr",
		Short: "Label text recognition",
	}
	ocrCmd.AddCommand(&cobra.Command{
		Use:   "all",
		Short: "Recognize label text for every ingest item that has none",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				handle, err := rt.Service.OCRAll(c, ctx.user(), false)
				if err != nil {
					return err
				}
				if handle == nil {
					fmt.Fprintln(cmd.OutOrStdout(), "No ingest items need label text")
					return nil
				}
				return reportJob(c, cmd.OutOrStdout(), rt, handle.ID())
			})
		},
	})
	return ocrCmd
}
