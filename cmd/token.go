/*
Copyright © 2026 NAME HERE <EMAIL ADDRESS>
*/
package cmd

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/assignhub/apiserver/config"
	"github.com/assignhub/apiserver/internal/auth"
	"github.com/spf13/cobra"
)

var (
	tokenRole string
	tokenTTL  time.Duration
)

// tokenCmd groups offline token tooling. Both subcommands use JWT_SECRET.
var tokenCmd = &cobra.Command{
	Use:   "token",
	Short: "Issue or inspect access tokens",
}

var tokenIssueCmd = &cobra.Command{
	Use:   "issue <subject>",
	Short: "Sign a token for a user id",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := newCLICodec(tokenTTL)
		if err != nil {
			return err
		}
		token, err := codec.Issue(args[0], auth.Role(tokenRole))
		if err != nil {
			return err
		}
		fmt.Fprintln(cmd.OutOrStdout(), token)
		return nil
	},
}

var tokenVerifyCmd = &cobra.Command{
	Use:   "verify <token>",
	Short: "Verify a token and print its claims",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		codec, err := newCLICodec(0)
		if err != nil {
			return err
		}
		assertion, err := codec.Verify(args[0])
		if err != nil {
			return err
		}
		enc := json.NewEncoder(cmd.OutOrStdout())
		enc.SetIndent("", "  ")
		return enc.Encode(map[string]any{
			"sub":        assertion.Subject,
			"role":       assertion.Role,
			"issued_at":  assertion.IssuedAt.UTC(),
			"expires_at": assertion.ExpiresAt.UTC(),
		})
	},
}

func newCLICodec(ttl time.Duration) (*auth.Codec, error) {
	cfg := config.LoadConfig()
	if cfg.Auth.JWTSecret == "" {
		return nil, errors.New("JWT_SECRET is required")
	}
	if ttl == 0 {
		ttl = cfg.Auth.TokenTTL
	}
	return auth.NewCodec([]byte(cfg.Auth.JWTSecret), ttl)
}

func init() {
	rootCmd.AddCommand(tokenCmd)
	tokenCmd.AddCommand(tokenIssueCmd)
	tokenCmd.AddCommand(tokenVerifyCmd)

	tokenIssueCmd.Flags().StringVar(&tokenRole, "role", string(auth.RoleUser), "role claim: user or admin")
	tokenIssueCmd.Flags().DurationVar(&tokenTTL, "ttl", 0, "token lifetime (defaults to TOKEN_TTL)")
}
