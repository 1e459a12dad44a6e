package cli

import (
	"github.com/spf13/cobra"

	"callstack/internal/output"
)

func NewDashboardCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "dashboard",
		Short: "Show projects and tasks",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := signedIn(ctx, deps)
			if err != nil {
				return err
			}
			dashboard, err := deps.Services.Backend.Dashboard(ctx, session.UserID, session.AccessToken)
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Dashboard(dashboard)
			return nil
		},
	}
}

func NewHistoryCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "history",
		Short: "Show past calls",
		RunE: func(cmd *cobra.Command, args []string) error {
			ctx := cmd.Context()
			session, err := signedIn(ctx, deps)
			if err != nil {
				return err
			}
			sessions, err := deps.Services.Backend.History(ctx, session.UserID, session.AccessToken)
			if err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).History(sessions)
			return nil
		},
	}
}
