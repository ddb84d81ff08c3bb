package services

import (
	"context"
	"fmt"

	"github.com/navarrastar/gapscan/pkg/clients/webhook"
	"github.com/navarrastar/gapscan/pkg/logging"
	"github.com/navarrastar/gapscan/pkg/storage"
	"github.com/navarrastar/gapscan/pkg/utils"
	"github.com/navarrastar/gapscan/pkg/validation"
)

// ResubmitStored sends a draft that a failed submission left in the store,
// without a live session. The page context is unknown at this point, so the
// payload carries the "direct" referrer and an empty page URL.
func ResubmitStored(
	ctx context.Context,
	store storage.DraftStore,
	key string,
	submitter webhook.Client,
	validator *validation.Validator,
	locale string,
	logger *logging.Logger,
) error {
	if logger == nil {
		logger = logging.Default()
	}

	draft, err := store.Load(ctx, key)
	if err != nil {
		return fmt.Errorf("error loading draft %s: %w", key, err)
	}
	if errs := validator.Complete(draft, locale); errs != nil {
		return fmt.Errorf("stored draft %s is incomplete: %w", key, errs)
	}

	if err := submitter.Submit(ctx, webhook.Request{Draft: draft, Locale: locale}); err != nil {
		return fmt.Errorf("error resubmitting draft %s: %w", key, err)
	}

	if err := store.Delete(ctx, key); err != nil {
		logger.Warn("resubmitted but could not clear draft", "key", key, "error", err)
	}
	logger.Info("stored draft resubmitted", "key", key, "email_hash", utils.HashString(draft.Email))
	return nil
}
