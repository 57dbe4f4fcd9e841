package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/outfit-review/internal/auth"
)

func newTokenCmd() *cobra.Command {
	var (
		reviewer string
		ttl      time.Duration
	)
	cmd := &cobra.Command{
		Use:   "token",
		Short: "Mint a reviewer bearer token signed with OUTFIT_JWT_SECRET",
		RunE: func(cmd *cobra.Command, args []string) error {
			v, err := auth.NewVerifier(configFrom(cmd).JWTSecret)
			if err != nil {
				return fmt.Errorf("OUTFIT_JWT_SECRET: %w", err)
			}
			tok, err := v.Issue(reviewer, ttl)
			if err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), tok)
			return nil
		},
	}
	cmd.Flags().StringVar(&reviewer, "reviewer", "", "reviewer id stored with each decision")
	cmd.Flags().DurationVar(&ttl, "ttl", 24*time.Hour, "token lifetime")
	_ = cmd.MarkFlagRequired("reviewer")
	return cmd
}
