package cli

import (
	"github.com/spf13/cobra"

	"callstack/internal/output"
)

func NewActivityCmd(deps *Dependencies) *cobra.Command {
	var limit int
	var prune bool

	cmd := &cobra.Command{
		Use:   "activity",
		Short: "List recent recordings kept on this machine",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			store := deps.Services.Activity

			if !store.Enabled() {
				formatter.Info("Activity log is off (activity.retention_mode: " + deps.Services.Config.Activity.RetentionMode + ")")
				return nil
			}
			if prune {
				if err := store.Prune(cmd.Context()); err != nil {
					return err
				}
				formatter.Success("Old recordings pruned")
			}

			entries, err := store.List(cmd.Context(), limit)
			if err != nil {
				return err
			}
			formatter.Activity(entries)
			return nil
		},
	}

	cmd.Flags().IntVarP(&limit, "limit", "n", 20, "Number of recordings to show")
	cmd.Flags().BoolVar(&prune, "prune", false, "Apply the retention window before listing")

	return cmd
}
