package main

import (
	"context"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"wsideid/internal/daemonrun"
)

func newJobsCommand(ctx *commandContext) *cobra.Command {
	jobsCmd := &cobra.Command{
		Use:   "jobs",
		Short: "Inspect background jobs",
	}

	var limit int
	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List recent jobs",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				jobs, err := rt.Store.ListJobs(c, limit)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(jobs) == 0 {
					fmt.Fprintln(out, "No jobs")
					return nil
				}
				rows := make([][]string, 0, len(jobs))
				for _, job := range jobs {
					rows = append(rows, []string{
						job.ID,
						job.Type,
						string(job.Status),
						job.Title,
						valueOrDash(job.UserID),
						job.UpdatedAt.Local().Format(time.DateTime),
					})
				}
				fmt.Fprintln(out, renderTable([]string{"ID", "Type", "Status", "Title", "User", "Updated"}, rows, nil))
				return nil
			})
		},
	}
	listCmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of jobs to show")
	jobsCmd.AddCommand(listCmd)

	jobsCmd.AddCommand(&cobra.Command{
		Use:   "show <job-id>",
		Short: "Show a job's status and log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				job, err := rt.Store.GetJob(c, args[0])
				if err != nil {
					return err
				}
				if job == nil {
					return fmt.Errorf("job %s not found", args[0])
				}
				printJob(cmd.OutOrStdout(), job)
				return nil
			})
		},
	})
	return jobsCmd
}
