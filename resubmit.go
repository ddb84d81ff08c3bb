package main

import (
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"github.com/navarrastar/gapscan/pkg/clients/webhook"
	"github.com/navarrastar/gapscan/pkg/i18n"
	"github.com/navarrastar/gapscan/pkg/services"
	"github.com/navarrastar/gapscan/pkg/storage"
	"github.com/navarrastar/gapscan/pkg/validation"
)

// resubmit <session-id>: send a draft left behind by a failed submission.
func resubmitCmd() *cobra.Command {
	var language string

	cmd := &cobra.Command{
		Use:   "resubmit <session-id>",
		Short: "Submit a stored draft to the webhook once",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if cfg.RedisAddr == "" {
				return fmt.Errorf("REDIS_ADDR is required: drafts only outlive the server in Redis")
			}

			ctx := cmd.Context()
			store, closeStore := buildStore(ctx)
			defer closeStore()

			catalog, err := i18n.NewCatalog()
			if err != nil {
				return err
			}
			validator, err := validation.New(catalog)
			if err != nil {
				return err
			}

			start := time.Now()
			key := storage.Key(cfg.DraftKeyPrefix, args[0])
			submitter := webhook.NewClient(cfg.WebhookURL, webhook.WithLogger(logger))
			if err := services.ResubmitStored(ctx, store, key, submitter, validator, i18n.Normalize(language), logger); err != nil {
				return err
			}
			fmt.Printf("submitted %s in %s\n", args[0], time.Since(start).Round(time.Millisecond))
			return nil
		},
	}
	cmd.Flags().StringVarP(&language, "language", "l", "en", "language sent with the submission (en or fr)")
	return cmd
}
