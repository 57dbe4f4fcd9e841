package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/ILLUVRSE/outfit-review/internal/export"
)

func newArchiveCmd() *cobra.Command {
	var bucket, prefix string
	cmd := &cobra.Command{
		Use:   "archive",
		Short: "Upload CSV snapshots of both ledgers to S3",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg := configFrom(cmd)
			if bucket == "" {
				bucket = cfg.ArchiveBucket
			}
			if prefix == "" {
				prefix = cfg.ArchivePrefix
			}
			ctx := cmd.Context()
			store, err := openStore(ctx, cfg)
			if err != nil {
				return err
			}
			defer store.Close()

			archiver, err := export.NewS3Archiver(ctx, export.NewExporter(store), bucket, prefix)
			if err != nil {
				return err
			}
			keys, err := archiver.Archive(ctx)
			if err != nil {
				return err
			}
			for _, k := range keys {
				fmt.Fprintf(cmd.OutOrStdout(), "s3://%s/%s\n", bucket, k)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&bucket, "bucket", "", "target bucket (default OUTFIT_ARCHIVE_BUCKET)")
	cmd.Flags().StringVar(&prefix, "prefix", "", "key prefix (default OUTFIT_ARCHIVE_PREFIX)")
	return cmd
}
