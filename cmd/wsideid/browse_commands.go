package main

import (
	"context"
	"fmt"
	"strconv"

	"github.com/spf13/cobra"

	"wsideid/internal/daemonrun"
	"wsideid/internal/lifecycle"
	"wsideid/internal/services"
	"wsideid/internal/store"
)

func newNextCommand(ctx *commandContext) *cobra.Command {
	nextCmd := &cobra.Command{
		Use:   "next",
		Short: "Find the next work awaiting review",
	}
	nextCmd.AddCommand(&cobra.Command{
		Use:   "item",
		Short: "Print the next unprocessed item",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				item, err := rt.Service.Machine().NextUnprocessedItem(c)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if item == nil {
					fmt.Fprintln(out, "No unprocessed items")
					return nil
				}
				fmt.Fprintf(out, "%s\t%s\n", item.ID, item.Name)
				return nil
			})
		},
	})
	nextCmd.AddCommand(&cobra.Command{
		Use:   "folders",
		Short: "Print the next folders to review followed by the finished folder",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				ids, err := rt.Service.Machine().NextUnprocessedFolders(c)
				if err != nil {
					return err
				}
				for _, id := range ids {
					fmt.Fprintln(cmd.OutOrStdout(), id)
				}
				return nil
			})
		},
	})
	return nextCmd
}

func newFolderCommand(ctx *commandContext) *cobra.Command {
	folderCmd := &cobra.Command{
		Use:   "folder",
		Short: "Inspect workflow folders",
	}
	folderCmd.AddCommand(&cobra.Command{
		Use:   "role <folder-id>",
		Short: "Print the workflow role a folder belongs to",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				folder, err := loadFolder(c, rt, args[0])
				if err != nil {
					return err
				}
				role, ok, err := rt.Service.Machine().IsProjectFolder(c, folder)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if !ok {
					fmt.Fprintln(out, "none")
					return nil
				}
				fmt.Fprintln(out, role.String())
				return nil
			})
		},
	})

	var limit, offset int
	listCmd := &cobra.Command{
		Use:   "list <folder-id|role>",
		Short: "List a folder's subfolders and items",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				folder, err := resolveFolder(c, rt, args[0])
				if err != nil {
					return err
				}
				children, err := rt.Store.ChildFolders(c, folder)
				if err != nil {
					return err
				}
				items, err := rt.Store.ChildItems(c, folder, store.ItemQuery{Sort: store.SortLowerName, Limit: limit, Offset: offset})
				if err != nil {
					return err
				}
				registry := rt.Service.Registry()
				rows := make([][]string, 0, len(children)+len(items))
				for _, child := range children {
					rows = append(rows, []string{"folder", child.ID, child.Name, "", ""})
				}
				for _, item := range items {
					rows = append(rows, []string{"item", item.ID, item.Name,
						strconv.Itoa(len(item.Meta.List(lifecycle.MetaRedacted))),
						yesNo(registry.InFlight(item.ID)),
					})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "%s (%s)\n", folder.Name, folder.ID)
				fmt.Fprintln(out, renderTable([]string{"Kind", "ID", "Name", "Redactions", "In flight"}, rows,
					[]columnAlignment{alignLeft, alignLeft, alignLeft, alignRight, alignLeft}))
				return nil
			})
		},
	}
	listCmd.Flags().IntVar(&limit, "limit", 0, "Maximum number of items (0 for all)")
	listCmd.Flags().IntVar(&offset, "offset", 0, "Items to skip")
	folderCmd.AddCommand(listCmd)
	return folderCmd
}

// resolveFolder accepts a role name or a folder id.
func resolveFolder(ctx context.Context, rt *daemonrun.Runtime, value string) (*store.Folder, error) {
	if role, err := lifecycle.ParseRole(value); err == nil {
		return rt.Service.Machine().RoleFolder(ctx, role)
	}
	return loadFolder(ctx, rt, value)
}

func loadFolder(ctx context.Context, rt *daemonrun.Runtime, id string) (*store.Folder, error) {
	folder, err := rt.Store.LoadFolder(ctx, id)
	if err != nil {
		return nil, err
	}
	if folder == nil {
		return nil, services.Wrap(services.ErrNotFound, "cli", "folder", "folder "+id+" does not exist", nil)
	}
	return folder, nil
}
