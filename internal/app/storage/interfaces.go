package storage

import (
	"context"

	"github.com/splito-labs/settlement_gateway/internal/app/domain/onboarding"
	"github.com/splito-labs/settlement_gateway/internal/app/domain/settlement"
	"github.com/splito-labs/settlement_gateway/internal/apperr"
)

var (
	// ErrNotFound is matched with errors.Is by any not_found coded error.
	ErrNotFound = apperr.New(apperr.CodeNotFound, "record not found")
	// ErrStaleStatus reports a status update racing another one.
	ErrStaleStatus = apperr.New(apperr.CodeConflict, "settlement status changed concurrently")
)

// SettlementStore persists settlement records.
type SettlementStore interface {
	CreateSettlement(ctx context.Context, s settlement.Settlement) (settlement.Settlement, error)
	GetSettlement(ctx context.Context, id string) (settlement.Settlement, error)
	ListSettlements(ctx context.Context, userID string, limit int) ([]settlement.Settlement, error)
	// UpdateSettlement writes s only if the stored status is still from.
	// Otherwise it returns ErrStaleStatus.
	UpdateSettlement(ctx context.Context, s settlement.Settlement, from settlement.Status) (settlement.Settlement, error)
	ListSubmittedSettlements(ctx context.Context) ([]settlement.Settlement, error)
}

// OnboardingStore persists tutorial flags.
type OnboardingStore interface {
	MarkSeen(ctx context.Context, userID, tutorial string) (onboarding.Flag, error)
	GetFlag(ctx context.Context, userID, tutorial string) (onboarding.Flag, error)
	ListFlags(ctx context.Context, userID string) ([]onboarding.Flag, error)
	ResetFlag(ctx context.Context, userID, tutorial string) error
}
