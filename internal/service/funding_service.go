package service

import (
	"context"

	"campus-coin/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// FundingService moves coin from a partner wallet into an event wallet.
// Insufficient partner funds is a hard failure here. Updating the event's
// own metadata (capacity and the like) stays with the caller; the ledger
// only guarantees the balance movement and the paired rows.
type FundingService struct {
	ledger *LedgerService
}

func NewFundingService(ledger *LedgerService) *FundingService {
	return &FundingService{ledger: ledger}
}

func (s *FundingService) FundEvent(ctx context.Context, partnerID, eventID uuid.UUID, amount decimal.Decimal, fundingID string, idempotencyKey string) (*domain.TransactionPair, error) {
	partner := domain.OwnerRef{Type: domain.OwnerPartner, ID: partnerID}
	event := domain.OwnerRef{Type: domain.OwnerEvent, ID: eventID}

	return s.ledger.transferAs(ctx, partner, event, amount,
		domain.TxFundEvent, domain.TxReceiveFunding,
		domain.RefFunding, fundingID, idempotencyKey, nil)
}
