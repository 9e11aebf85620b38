package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/subaquatic-pierre/postmanager/internal/auth"
)

func newTokenCmd(opts *globalOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the mutating HTTP routes",
		Long: `Sign a token with the configured jwt_secret. Send it as
"Authorization: Bearer <token>" or as ?token=<token> on POST, PUT and DELETE.`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts, "stderr")
			if err != nil {
				return err
			}
			a := auth.New(cfg.JWTSecret)
			if !a.Enabled() {
				return fmt.Errorf("jwt_secret is not configured; set POSTMANAGER_JWT_SECRET")
			}
			token, expiresAt, err := a.GenerateToken(subject, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), token)
			cmd.PrintErrf("expires %s\n", expiresAt.Format(time.RFC3339))
			return nil
		},
	}
	cmd.Flags().StringVar(&subject, "subject", "", "token subject, e.g. the editor's name")
	cmd.Flags().DurationVar(&ttl, "ttl", auth.DefaultTTL, "token lifetime")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
