package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/bit-broker/examples/pkg/entity"
)

// Sync runs one full session: open in mode, apply verb to records, close.
//
// A successful action is committed. When the action fails the session is
// closed without commit as best-effort cleanup and the action error is
// returned, joined with the close error if cleanup failed too. An open failure
// leaves nothing to clean up.
func Sync(ctx context.Context, s *Session, mode Mode, verb Verb, records []entity.Record) (ActionResult, error) {
	if err := s.Open(ctx, mode); err != nil {
		return ActionResult{}, err
	}

	result, actionErr := s.Action(ctx, verb, records)
	if actionErr != nil {
		s.logger.Error("catalog action failed, discarding session",
			"verb", verb, "accepted", result.Items, "total", len(records), "error", actionErr)

		// cleanup must run even when ctx is what aborted the action
		if err := s.Close(context.WithoutCancel(ctx), false); err != nil {
			s.logger.Warn("catalog session cleanup failed", "error", err)
			return result, errors.Join(actionErr, err)
		}
		return result, actionErr
	}

	if err := s.Close(ctx, true); err != nil {
		s.logger.Error("catalog session commit failed", "error", err)
		return result, fmt.Errorf("commit: %w", err)
	}

	s.logger.Info("catalog sync complete", "mode", mode, "verb", verb,
		"items", result.Items, "batches", result.Batches)
	return result, nil
}
