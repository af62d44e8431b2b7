package main

import (
	"fmt"
	"time"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"

	"github.com/bryanwahyu/imageproof/internal/infra/auth"
)

var tokenTTL time.Duration

// tokenCmd mints a bearer token for local development and for the
// imageproof CLI.
var tokenCmd = &cobra.Command{
	Use:   "token <owner>",
	Short: "Sign a JWT for owner with the configured secret",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		if cfg.Auth.JWTSecret == "" {
			return eris.New("auth.jwt_secret is not configured")
		}
		j, err := auth.NewJWT(cfg.Auth.JWTSecret, cfg.Auth.JWTIssuer)
		if err != nil {
			return err
		}
		tok, err := j.Issue(args[0], tokenTTL)
		if err != nil {
			return err
		}
		_, err = fmt.Fprintln(cmd.OutOrStdout(), tok)
		return err
	},
}

func init() {
	tokenCmd.Flags().DurationVar(&tokenTTL, "ttl", 24*time.Hour, "token lifetime")
}
