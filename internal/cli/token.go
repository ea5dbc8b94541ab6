package cli

import (
	"fmt"

	"github.com/navikt/liveroom/internal/models"
	"github.com/spf13/cobra"
)

func newTokenCmd(a *app) *cobra.Command {
	var req models.TokenRequest
	var role string

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Get a session token from a development backend",
		Long: `Asks a backend running with LIVEROOM_DEV_TOKENS=true for a token and prints it.
Use it as LIVEROOM_TOKEN or with --token.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			req.Role = models.Role(role)
			if err := models.Validate(req); err != nil {
				return err
			}

			token, err := a.anonymousClient().IssueDevToken(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	flags := cmd.Flags()
	flags.StringVar(&req.Name, "name", "", "Display name")
	flags.StringVar(&role, "role", string(models.RoleStudent), "Role: tutor or student")
	flags.StringVar(&req.UserID, "user-id", "", "User ID (generated when empty)")
	_ = cmd.MarkFlagRequired("name")
	return cmd
}
