package commands

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/kbukum/mmrunner/auth"
	"github.com/kbukum/mmrunner/logger"
	"github.com/kbukum/mmrunner/util"
)

func tokenCmd(opts *rootOptions) *cobra.Command {
	var (
		subject string
		ttl     time.Duration
	)

	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a bearer token for the control API",
		Long: `Signs a token with auth.secret. Send it as "Authorization: Bearer <token>"
to the /api/v1/runner routes of "mmrunner serve".`,
		Args: cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(opts)
			if err != nil {
				return err
			}
			cfg.ApplyDefaults()
			if ttl > 0 {
				cfg.Auth.TTL = ttl
			}
			logger.Init(&cfg.Logging)

			svc, err := auth.NewService(cfg.Auth)
			if err != nil {
				return err
			}
			token, err := svc.Generate(subject)
			if err != nil {
				return err
			}

			logger.Get("auth").Info("token issued", logger.Fields(
				"subject", subject,
				"ttl", cfg.Auth.TTL.String(),
				"token", util.MaskSecret(token, 8),
			))
			fmt.Fprintln(cmd.OutOrStdout(), token)
			return nil
		},
	}

	cmd.Flags().StringVar(&subject, "subject", "", "Subject (sub claim) the token is issued to")
	cmd.Flags().DurationVar(&ttl, "ttl", 0, "Token lifetime (default: auth.ttl)")
	_ = cmd.MarkFlagRequired("subject")
	return cmd
}
