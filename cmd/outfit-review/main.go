package main

import (
	"context"
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/outfit-review/internal/config"
	"github.com/ILLUVRSE/outfit-review/internal/logging"
)

type contextKey struct{}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "outfit-review",
		Short:         "Serve random outfit combinations and record review decisions",
		SilenceUsage:  true,
		SilenceErrors: true,
		PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
			if cmd.Name() == "help" {
				return nil
			}
			cfg, err := config.Load()
			if err != nil {
				return fmt.Errorf("config load: %w", err)
			}
			logging.Init(cfg.LogLevel)
			cmd.SetContext(context.WithValue(cmd.Context(), contextKey{}, cfg))
			return nil
		},
	}
	root.AddCommand(newServeCmd(), newArchiveCmd(), newTokenCmd())
	return root
}

func configFrom(cmd *cobra.Command) config.Config {
	cfg, _ := cmd.Context().Value(contextKey{}).(config.Config)
	return cfg
}

func main() {
	if err := newRootCmd().ExecuteContext(context.Background()); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}
