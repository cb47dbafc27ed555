package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/auth"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/config"
	"github.com/examinare000/obsidian-todo-integrator-sub001/pkg/gtasks"
)

func (a *app) authCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "auth",
		Short: "Authorize access to Google Tasks",
		Long:  "Removes any stored token and runs the browser authorization flow again.",
		RunE: func(cmd *cobra.Command, _ []string) error {
			ctx := cmd.Context()
			flow, err := auth.NewFlow(a.logger)
			if err != nil {
				return err
			}
			if err := flow.Reset(); err != nil {
				return err
			}
			httpClient, err := flow.Client(ctx, auth.TasksScopes())
			if err != nil {
				return fmt.Errorf("authentication failed: %w", err)
			}

			client, err := gtasks.NewClient(ctx, httpClient, a.cfg.TaskList)
			if err != nil {
				return err
			}
			lists, err := client.TaskLists(ctx)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Authentication successful, %d task list(s) visible\n", len(lists))
			return nil
		},
	}
}

func (a *app) configCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   "config",
		Short: "Change persistent settings",
	}
	cmd.AddCommand(&cobra.Command{
		Use:   "set-list <name>",
		Short: "Set the Google Tasks list to sync with",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			// Load afresh so environment overrides are not written back.
			cfg, err := config.Load(a.configPath)
			if err != nil {
				return err
			}
			cfg.TaskList = args[0]
			if err := config.Save(cfg, a.configPath); err != nil {
				return fmt.Errorf("error saving config: %w", err)
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Task list set to: %s\n", args[0])
			return nil
		},
	})
	return cmd
}
