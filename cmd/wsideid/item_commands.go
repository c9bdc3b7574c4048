package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"wsideid/internal/daemonrun"
	"wsideid/internal/redaction"
	"wsideid/internal/services"
	"wsideid/internal/store"
	"wsideid/internal/workflow"
)

func newItemCommand(ctx *commandContext) *cobra.Command {
	itemCmd := &cobra.Command{
		Use:   "item",
		Short: "Inspect and act on a single item",
	}
	itemCmd.AddCommand(newItemShowCommand(ctx))
	itemCmd.AddCommand(newItemActionCommand(ctx))
	itemCmd.AddCommand(newItemRefileCommand(ctx))
	itemCmd.AddCommand(newItemRefileListCommand(ctx))
	itemCmd.AddCommand(newItemRedactListCommand(ctx))
	return itemCmd
}

func newItemShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <item-id>",
		Short: "Show an item with its metadata and redaction history",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				item, err := loadItem(c, rt, args[0])
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, item)
				}
				history, err := redaction.History(item)
				if err != nil {
					return err
				}
				folder, err := rt.Store.LoadFolder(c, item.FolderID)
				if err != nil {
					return err
				}
				folderName := item.FolderID
				if folder != nil {
					folderName = folder.Name + " (" + folder.ID + ")"
				}
				out := cmd.OutOrStdout()
				rows := [][]string{
					{"ID", item.ID},
					{"Name", item.Name},
					{"Folder", folderName},
					{"Large image", yesNo(item.LargeImage)},
					{"In flight", yesNo(rt.Service.Registry().InFlight(item.ID))},
					{"Updated", item.UpdatedAt.Local().Format(time.RFC3339)},
				}
				fmt.Fprintln(out, renderTable([]string{"Field", "Value"}, rows, nil))
				if len(history) > 0 {
					historyRows := make([][]string, 0, len(history))
					for _, entry := range history {
						user := "-"
						if entry.User != nil {
							user = *entry.User
						}
						historyRows = append(historyRows, []string{
							entry.Time, user,
							fmt.Sprintf("%d", entry.OriginalSize),
							fmt.Sprintf("%d", entry.RedactedSize),
							valueOrDash(entry.Version),
						})
					}
					fmt.Fprintln(out, "Redaction history")
					fmt.Fprintln(out, renderTable([]string{"Time", "User", "Original", "Redacted", "Version"}, historyRows,
						[]columnAlignment{alignLeft, alignLeft, alignRight, alignRight, alignLeft}))
				}
				fmt.Fprintln(out, "Metadata")
				return writeJSON(cmd, item.Meta)
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Print the item as JSON")
	return cmd
}

func newItemActionCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "action <item-id> <action>",
		Short: "Run a workflow action on one item",
		Long:  "Actions: " + actionNames() + ".",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				item, err := rt.Service.ItemAction(c, args[0], ctx.user(), args[1])
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%s: %s is now in folder %s\n", args[1], item.Name, item.FolderID)
				return nil
			})
		},
	}
}

func newItemRefileCommand(ctx *commandContext) *cobra.Command {
	var imageID, tokenID string

	cmd := &cobra.Command{
		Use:   "refile <item-id>",
		Short: "File an item under an image id and token",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(imageID) == "" && strings.TrimSpace(tokenID) == "" {
				return fmt.Errorf("--image-id or --token-id is required")
			}
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				item, err := rt.Service.Refile(c, args[0], ctx.user(), imageID, tokenID)
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Refiled as %s in folder %s\n", item.Name, item.FolderID)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&imageID, "image-id", "", "Image id that becomes the item name")
	cmd.Flags().StringVar(&tokenID, "token-id", "", "Token folder; alone it refiles by token only")
	return cmd
}

func newItemRefileListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "refile-list <item-id>",
		Short: "List image ids the item could be refiled under",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				item, err := loadItem(c, rt, args[0])
				if err != nil {
					return err
				}
				candidates, err := rt.Service.Machine().RefileList(c, item)
				if err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				if len(candidates) == 0 {
					fmt.Fprintln(out, "No refile candidates")
					return nil
				}
				rows := make([][]string, 0, len(candidates))
				for _, id := range candidates {
					rows = append(rows, []string{id})
				}
				fmt.Fprintln(out, renderTable([]string{"Image ID"}, rows, nil))
				return nil
			})
		},
	}
}

func newItemRedactListCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "redact-list <item-id> <file|->",
		Short: "Replace an item's redact list from a JSON file",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			list, err := readRedactList(cmd.InOrStdin(), args[1])
			if err != nil {
				return err
			}
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				if _, err := rt.Service.SetRedactList(c, args[0], list); err != nil {
					return err
				}
				fmt.Fprintln(cmd.OutOrStdout(), "Redact list updated")
				return nil
			})
		},
	}
}

func newItemsCommand(ctx *commandContext) *cobra.Command {
	itemsCmd := &cobra.Command{
		Use:   "items",
		Short: "Act on several items at once",
	}
	itemsCmd.AddCommand(&cobra.Command{
		Use:   "action <action> <item-id>...",
		Short: "Run a workflow action on a list of items as one job",
		Long:  "Actions: " + actionNames() + ". Items that fail are logged in the job and the rest continue.",
		Args:  cobra.MinimumNArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				handle, err := rt.Service.ItemListAction(c, args[1:], ctx.user(), args[0], false)
				if err != nil {
					return err
				}
				return reportJob(c, cmd.OutOrStdout(), rt, handle.ID())
			})
		},
	})
	return itemsCmd
}

func loadItem(ctx context.Context, rt *daemonrun.Runtime, id string) (*store.Item, error) {
	item, err := rt.Store.LoadItem(ctx, id)
	if err != nil {
		return nil, err
	}
	if item == nil {
		return nil, services.Wrap(services.ErrNotFound, "cli", "item", "item "+id+" does not exist", nil)
	}
	return item, nil
}

func readRedactList(stdin io.Reader, source string) (map[string]any, error) {
	var (
		raw []byte
		err error
	)
	if source == "-" {
		raw, err = io.ReadAll(stdin)
	} else {
		raw, err = os.ReadFile(source)
	}
	if err != nil {
		return nil, fmt.Errorf("read redact list: %w", err)
	}
	var list map[string]any
	dec := json.NewDecoder(strings.NewReader(string(raw)))
	dec.UseNumber()
	if err := dec.Decode(&list); err != nil {
		return nil, fmt.Errorf("parse redact list: %w", err)
	}
	return list, nil
}

func actionNames() string {
	names := make([]string, 0, len(workflow.Actions()))
	for _, action := range workflow.Actions() {
		names = append(names, string(action))
	}
	return strings.Join(names, ", ")
}

// reportJob prints a finished job and converts an ERROR status into an error.
func reportJob(ctx context.Context, out io.Writer, rt *daemonrun.Runtime, id string) error {
	job, err := rt.Store.GetJob(ctx, id)
	if err != nil {
		return err
	}
	if job == nil {
		return fmt.Errorf("job %s not found", id)
	}
	printJob(out, job)
	if job.Status == store.JobError {
		return fmt.Errorf("job %s failed", job.ID)
	}
	return nil
}
