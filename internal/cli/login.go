package cli

import (
	"bufio"

	"github.com/spf13/cobra"

	"callstack/internal/domain"
	"callstack/internal/output"
)

func NewLoginCmd(deps *Dependencies) *cobra.Command {
	var phone string
	var code string
	var provider string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Sign in with a phone code or an OAuth provider",
		Long:  "Sign in by phone: a 6-digit code is texted to you and read from --code or prompted.\nUse --oauth google to sign in through a browser instead.",
		RunE: func(cmd *cobra.Command, args []string) error {
			formatter := output.NewFormatter(cmd.OutOrStdout())
			in := bufio.NewReader(cmd.InOrStdin())
			identity := deps.Services.Identity
			ctx := cmd.Context()

			if provider != "" {
				url, err := identity.OAuthURL(provider)
				if err != nil {
					return err
				}
				formatter.Info("Open this URL to sign in:\n   " + url)
				if code == "" {
					if code, err = prompt(in, cmd.OutOrStdout(), "Code from the redirect: "); err != nil {
						return err
					}
				}
				session, err := identity.ExchangeOAuthCode(ctx, code)
				if err != nil {
					return err
				}
				formatter.Success("Signed in as " + sessionLabel(session))
				return nil
			}

			var err error
			if phone == "" {
				if phone, err = prompt(in, cmd.OutOrStdout(), "Phone number: "); err != nil {
					return err
				}
			}
			if code == "" {
				if err := identity.SendCode(ctx, phone); err != nil {
					return err
				}
				formatter.Info("Verification code sent")
				if code, err = prompt(in, cmd.OutOrStdout(), "Verification code: "); err != nil {
					return err
				}
			}
			session, err := identity.VerifyCode(ctx, phone, code)
			if err != nil {
				return err
			}
			formatter.Success("Signed in as " + sessionLabel(session))
			return nil
		},
	}

	cmd.Flags().StringVarP(&phone, "phone", "p", "", "Phone number to text the code to")
	cmd.Flags().StringVar(&code, "code", "", "Verification code already received")
	cmd.Flags().StringVar(&provider, "oauth", "", "Sign in with an OAuth provider (e.g. google)")

	return cmd
}

func NewLogoutCmd(deps *Dependencies) *cobra.Command {
	return &cobra.Command{
		Use:   "logout",
		Short: "Sign out and forget the stored session",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := deps.Services.Identity.SignOut(cmd.Context()); err != nil {
				return err
			}
			output.NewFormatter(cmd.OutOrStdout()).Success("Signed out")
			return nil
		},
	}
}

func sessionLabel(session *domain.Session) string {
	if session == nil {
		return "unknown user"
	}
	if session.Phone != "" {
		return session.Phone
	}
	return session.UserID
}
