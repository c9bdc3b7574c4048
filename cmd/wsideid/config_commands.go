package main

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"
	"golang.org/x/text/cases"
	"golang.org/x/text/language"

	"wsideid/internal/config"
	"wsideid/internal/daemonrun"
)

func newConfigCommand(ctx *commandContext) *cobra.Command {
	configCmd := &cobra.Command{
		Use:   "config",
		Short: "Configuration utilities",
	}

	configCmd.AddCommand(newConfigValidateCommand(ctx))
	configCmd.AddCommand(newConfigInitCommand())

	return configCmd
}

func newConfigInitCommand() *cobra.Command {
	var targetPath string
	var overwrite bool

	cmd := &cobra.Command{
		Use:         "init",
		Short:       "Create a sample configuration file",
		Annotations: map[string]string{"skipConfigLoad": "true"},
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(targetPath)
			if target == "" {
				defaultPath, err := config.DefaultConfigPath()
				if err != nil {
					return fmt.Errorf("determine default config path: %w", err)
				}
				target = defaultPath
			} else {
				expanded, err := config.ExpandPath(target)
				if err != nil {
					return fmt.Errorf("resolve config path: %w", err)
				}
				target = expanded
			}

			dir := filepath.Dir(target)
			if err := os.MkdirAll(dir, 0o755); err != nil {
				return fmt.Errorf("create config directory %q: %w", dir, err)
			}

			if !overwrite {
				if _, err := os.Stat(target); err == nil {
					return fmt.Errorf("config file already exists at %s (use --overwrite to replace it)", target)
				} else if !os.IsNotExist(err) {
					return fmt.Errorf("check config path: %w", err)
				}
			}

			if err := config.CreateSample(target); err != nil {
				return fmt.Errorf("create sample config: %w", err)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Wrote sample configuration to %s\n", target)
			fmt.Fprintln(out, "Run `wsideid setup` to create and bind the workflow folders.")
			return nil
		},
	}

	cmd.Flags().StringVarP(&targetPath, "path", "p", "", "Destination for the configuration file")
	cmd.Flags().BoolVar(&overwrite, "overwrite", false, "Overwrite existing configuration if present")
	return cmd
}

func newConfigValidateCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "validate",
		Short: "Validate configuration file",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := ctx.ensureConfig()
			if err != nil {
				return fmt.Errorf("load config: %w", err)
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Config path: %s\n", ctx.configPath)
			if _, err := os.Stat(ctx.configPath); err != nil {
				fmt.Fprintln(out, "Config file did not exist; defaults were used")
			}
			unbound := 0
			for _, role := range config.RoleNames() {
				if cfg.RoleBindings()[role] == "" {
					unbound++
				}
			}
			if unbound > 0 {
				fmt.Fprintf(out, "%d workflow roles are unbound; run `wsideid setup`\n", unbound)
			}
			fmt.Fprintln(out, "Configuration valid")
			return nil
		},
	}
}

func newSetupCommand(ctx *commandContext) *cobra.Command {
	var collection string
	var rebind bool

	cmd := &cobra.Command{
		Use:   "setup",
		Short: "Create the workflow role folders and bind them in the config file",
		Long: "Setup creates one top-level folder per workflow role in the named collection, " +
			"reusing folders that already exist, and writes the bindings back to the config file. " +
			"Roles that are already bound keep their folder unless --rebind is given.",
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withRuntime(cmd, daemonrun.BuildOptions{}, func(c context.Context, rt *daemonrun.Runtime) error {
				collectionID, err := rt.Store.EnsureCollection(c, collection)
				if err != nil {
					return err
				}
				title := cases.Title(language.English)
				rows := make([][]string, 0, len(config.RoleNames()))
				for _, role := range config.RoleNames() {
					if existing := rt.Config.RoleBindings()[role]; existing != "" && !rebind {
						folder, err := rt.Store.LoadFolder(c, existing)
						if err != nil {
							return err
						}
						if folder != nil {
							rows = append(rows, []string{role, folder.Name, folder.ID, "kept"})
							continue
						}
					}
					folder, err := rt.Store.CreateRootFolder(c, collectionID, title.String(role), ctx.user(), true)
					if err != nil {
						return fmt.Errorf("create %s folder: %w", role, err)
					}
					if err := rt.Config.SetRoleBinding(role, folder.ID); err != nil {
						return err
					}
					rows = append(rows, []string{role, folder.Name, folder.ID, "bound"})
				}
				if err := rt.Config.Save(ctx.configPath); err != nil {
					return err
				}
				out := cmd.OutOrStdout()
				fmt.Fprintln(out, renderTable([]string{"Role", "Folder", "ID", "State"}, rows, nil))
				fmt.Fprintf(out, "Saved folder bindings to %s\n", ctx.configPath)
				return nil
			})
		},
	}

	cmd.Flags().StringVar(&collection, "collection", "WSI DeID", "Collection that holds the role folders")
	cmd.Flags().BoolVar(&rebind, "rebind", false, "Rebind roles that already have a folder")
	return cmd
}
