package service

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"campus-coin/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// RedemptionService is the invoice state machine. It holds no money itself:
// it wraps one product debit (at redeem time) and, on cancellation, one
// refund, keeping the invoice row, the stock count and the ledger movement
// inside the same atomic unit.
type RedemptionService struct {
	ledger      *LedgerService
	invoiceRepo domain.InvoiceRepository
}

func NewRedemptionService(ledger *LedgerService, invoiceRepo domain.InvoiceRepository) *RedemptionService {
	return &RedemptionService{ledger: ledger, invoiceRepo: invoiceRepo}
}

// RedemptionResult is what a redeem call hands back.
type RedemptionResult struct {
	Invoice     *domain.Invoice     `json:"invoice"`
	Transaction *domain.Transaction `json:"transaction"`
	Replayed    bool                `json:"replayed"`
}

// Redeem debits the student for quantity * product price, decrements stock
// and creates a PENDING invoice, all in one unit. A retried request with the
// same idempotency key returns the original invoice untouched.
func (s *RedemptionService) Redeem(ctx context.Context, studentID, productID uuid.UUID, quantity int, idempotencyKey string) (*RedemptionResult, error) {
	if quantity <= 0 {
		return nil, domain.ErrInvalidAmount
	}

	product, err := s.invoiceRepo.GetProduct(ctx, productID)
	if err != nil {
		return nil, err
	}
	totalCost := product.Price.Mul(decimal.NewFromInt(int64(quantity)))

	student := domain.OwnerRef{Type: domain.OwnerStudent, ID: studentID}
	invoice := &domain.Invoice{
		ID:               uuid.New(),
		StudentID:        studentID,
		ProductID:        productID,
		Quantity:         quantity,
		TotalCost:        totalCost,
		Status:           domain.InvoicePending,
		VerificationCode: newVerificationCode(),
	}

	row, replayed, err := s.ledger.postSingle(ctx, student, totalCost.Neg(),
		domain.TxProductDebit, domain.RefInvoice, invoice.ID.String(), idempotencyKey,
		func(tx *gorm.DB) error {
			if err := s.invoiceRepo.DecrementStock(ctx, tx, productID, quantity); err != nil {
				return err
			}
			return s.invoiceRepo.Create(ctx, tx, invoice)
		})
	if err != nil {
		return nil, err
	}

	if replayed {
		// The original commit's invoice id rides on the replayed row.
		originalID, perr := uuid.Parse(row.ReferenceID)
		if perr != nil {
			return nil, fmt.Errorf("replayed redemption carries bad reference %q: %w", row.ReferenceID, perr)
		}
		invoice, err = s.invoiceRepo.GetByID(ctx, originalID)
		if err != nil {
			return nil, err
		}
	}

	return &RedemptionResult{Invoice: invoice, Transaction: row, Replayed: replayed}, nil
}

// Deliver moves a PENDING invoice to DELIVERED after checking the
// verification code. No ledger effect; the debit stands. Delivering an
// invoice that already left PENDING is ErrInvalidTransition.
func (s *RedemptionService) Deliver(ctx context.Context, invoiceID uuid.UUID, code string) (*domain.Invoice, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, err
	}
	if invoice.Status != domain.InvoicePending {
		return nil, domain.ErrInvalidTransition
	}
	if !strings.EqualFold(invoice.VerificationCode, code) {
		return nil, domain.ErrVerificationCode
	}

	// The conditional update is its own atomicity: no money moves here,
	// so there is nothing to couple it with.
	now := time.Now().UTC()
	if err := s.invoiceRepo.TransitionStatus(ctx, nil, invoiceID, domain.InvoiceDelivered, &now); err != nil {
		return nil, err
	}
	invoice.Status = domain.InvoiceDelivered
	invoice.DeliveredAt = &now
	return invoice, nil
}

// Cancel moves a PENDING invoice to CANCELLED, refunds the student and
// restores the stock, all in one unit. A cancel after delivery is a bad
// state transition (ErrInvalidTransition); a repeated refund of an already
// cancelled invoice under a fresh key is ErrAlreadyFinalized; a retry under
// the same key replays the original refund. Either refusal posts nothing.
func (s *RedemptionService) Cancel(ctx context.Context, invoiceID uuid.UUID, idempotencyKey string, reason string) (*domain.Invoice, *domain.TransactionPair, error) {
	invoice, err := s.invoiceRepo.GetByID(ctx, invoiceID)
	if err != nil {
		return nil, nil, err
	}
	if invoice.Status == domain.InvoiceDelivered {
		return nil, nil, domain.ErrInvalidTransition
	}

	debits, err := s.ledger.transRepo.FindByReference(ctx, domain.RefInvoice, invoiceID.String(), domain.TxProductDebit)
	if err != nil {
		return nil, nil, err
	}
	if len(debits) == 0 {
		return nil, nil, domain.ErrTransactionNotFound
	}

	pair, err := s.ledger.rollbackAs(ctx, debits[0].ID, domain.TxProductRefund, idempotencyKey, reason,
		func(tx *gorm.DB) error {
			if err := s.invoiceRepo.TransitionStatus(ctx, tx, invoiceID, domain.InvoiceCancelled, nil); err != nil {
				return err
			}
			return s.invoiceRepo.IncrementStock(ctx, tx, invoice.ProductID, invoice.Quantity)
		})
	if err != nil {
		return nil, nil, err
	}

	if !pair.Replayed {
		invoice.Status = domain.InvoiceCancelled
	} else {
		invoice, err = s.invoiceRepo.GetByID(ctx, invoiceID)
		if err != nil {
			return nil, nil, err
		}
	}
	return invoice, pair, nil
}

// GetInvoice is a read-only lookup for collaborators.
func (s *RedemptionService) GetInvoice(ctx context.Context, invoiceID uuid.UUID) (*domain.Invoice, error) {
	return s.invoiceRepo.GetByID(ctx, invoiceID)
}

func newVerificationCode() string {
	buf := make([]byte, 4)
	if _, err := rand.Read(buf); err != nil {
		// crypto/rand only fails when the platform entropy source is broken.
		return strings.ToUpper(uuid.NewString()[:8])
	}
	return strings.ToUpper(hex.EncodeToString(buf))
}
