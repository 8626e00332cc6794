package dispatch

import (
	"context"
	"errors"

	"github.com/postcard/backend/internal/domain/shared"
)

// Retryable reports whether running the dispatch again can help. Re-running is
// always safe because sent recipients are skipped and the ledger debit is
// guarded per campaign, so only outcomes a rerun would repeat are excluded.
func Retryable(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, ErrChargeFailed) {
		return true
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, ErrSetupFailed) {
		return false
	}
	var de *shared.DomainError
	return !errors.As(err, &de)
}
