package cli

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/inkwellhq/inkwell-sync/internal/session"
)

func newTokenCommand() *cobra.Command {
	var (
		userID   string
		secret   string
		validity time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint an access token for a self-hosted backend",
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := session.GenerateToken(userID, []byte(secret), validity)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&userID, "user", "", "owner user id (uuid)")
	cmd.Flags().StringVar(&secret, "secret", "", "token signing secret")
	cmd.Flags().DurationVar(&validity, "validity", 30*24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("user")
	_ = cmd.MarkFlagRequired("secret")

	return cmd
}
