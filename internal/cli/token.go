package cli

import (
	"fmt"
	"time"

	"sayu-ops/internal/utils"

	"github.com/spf13/cobra"
)

func newTokenCommand(a *app) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the ops API",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			token, err := utils.GenerateToken(subject, ttl, []byte(a.cfg.Server.TokenSecret))
			if err != nil {
				return fmt.Errorf("mint token (is OPS_TOKEN_SECRET set?): %w", err)
			}
			_, err = fmt.Fprintln(a.stdout, token)
			return err
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "operator", "who the token is for")
	cmd.Flags().DurationVar(&ttl, "ttl", 12*time.Hour, "token lifetime")
	return cmd
}
