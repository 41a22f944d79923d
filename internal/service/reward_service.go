package service

import (
	"context"
	"errors"

	"campus-coin/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// RewardService pays out checkin rewards from an event (or partner) wallet
// to a student.
//
// Policy: a checkin with an underfunded source is still a valid checkin. An
// insufficient-funds transfer degrades to a recorded-but-unrewarded outcome
// instead of failing the workflow; every other error is surfaced. This
// asymmetry with redemption and funding (where insufficient funds is a hard
// failure) is intentional.
type RewardService struct {
	ledger *LedgerService
}

func NewRewardService(ledger *LedgerService) *RewardService {
	return &RewardService{ledger: ledger}
}

// RewardResult reports what happened to one checkin payout.
type RewardResult struct {
	Rewarded bool                    `json:"rewarded"`
	Pair     *domain.TransactionPair `json:"pair,omitempty"`
}

// PayCheckinReward moves amount from source to the student for checkinID.
// Retried calls with the same idempotency key replay the original outcome.
func (s *RewardService) PayCheckinReward(ctx context.Context, source domain.OwnerRef, studentID uuid.UUID, amount decimal.Decimal, checkinID string, idempotencyKey string) (*RewardResult, error) {
	student := domain.OwnerRef{Type: domain.OwnerStudent, ID: studentID}

	pair, err := s.ledger.transferAs(ctx, source, student, amount,
		domain.TxEventPayout, domain.TxCheckinReward,
		domain.RefCheckin, checkinID, idempotencyKey, nil)
	if err != nil {
		if errors.Is(err, domain.ErrInsufficientFunds) {
			return &RewardResult{Rewarded: false}, nil
		}
		return nil, err
	}
	return &RewardResult{Rewarded: true, Pair: pair}, nil
}
