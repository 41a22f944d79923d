package domain

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// Wallet holds one balance per (owner type, owner id, currency) triple.
// Balance is scale-2 fixed point. Version is bumped on every committed
// mutation and is the optimistic-concurrency token: a balance write only
// lands if the version is still the one that was read.
type Wallet struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	OwnerType OwnerType       `gorm:"not null;uniqueIndex:idx_wallet_owner" json:"owner_type"`
	OwnerID   uuid.UUID       `gorm:"type:uuid;not null;uniqueIndex:idx_wallet_owner" json:"owner_id"`
	Currency  Currency        `gorm:"not null;default:'COIN';uniqueIndex:idx_wallet_owner" json:"currency"`
	Balance   decimal.Decimal `gorm:"type:numeric(14,2);not null;default:0" json:"balance"`
	Version   int64           `gorm:"not null;default:0" json:"version"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

func (w *Wallet) Owner() OwnerRef {
	return OwnerRef{Type: w.OwnerType, ID: w.OwnerID}
}

// TransactionType says why value moved.
type TransactionType string

const (
	TxTopup          TransactionType = "TOPUP"
	TxAdminTopup     TransactionType = "ADMIN_TOPUP"
	TxTransfer       TransactionType = "TRANSFER"
	TxFundEvent      TransactionType = "FUND_EVENT"
	TxReceiveFunding TransactionType = "RECEIVE_FUNDING"
	TxCheckinReward  TransactionType = "CHECKIN_REWARD"
	TxEventPayout    TransactionType = "EVENT_PAYOUT"
	TxProductDebit   TransactionType = "PRODUCT_DEBIT"
	TxProductRefund  TransactionType = "PRODUCT_REFUND"
	TxRollback       TransactionType = "ROLLBACK"
	TxSignupBonus    TransactionType = "SIGNUP_BONUS"
)

// ReferenceType names the external business object that caused a movement.
type ReferenceType string

const (
	RefInvoice ReferenceType = "INVOICE"
	RefCheckin ReferenceType = "CHECKIN"
	RefFunding ReferenceType = "FUNDING"
	RefTopup   ReferenceType = "TOPUP"
	RefSignup  ReferenceType = "SIGNUP"
)

// Transaction is one immutable signed movement against one wallet. A
// two-wallet economic event posts exactly two rows with equal and opposite
// amounts and the same reference. The idempotency key identifies the event,
// so both rows of a pair carry the same key; the composite unique index on
// (idempotency_key, wallet_id) lets the pair coexist while any second commit
// of the same event collides on its first row.
type Transaction struct {
	ID                   uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	WalletID             uuid.UUID       `gorm:"type:uuid;not null;index;uniqueIndex:idx_tx_idem" json:"wallet_id"`
	CounterpartyWalletID *uuid.UUID      `gorm:"type:uuid" json:"counterparty_wallet_id,omitempty"`
	Amount               decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"amount"`
	Type                 TransactionType `gorm:"not null" json:"type"`
	ReferenceType        ReferenceType   `gorm:"not null" json:"reference_type"`
	ReferenceID          string          `gorm:"not null;index" json:"reference_id"`
	IdempotencyKey       *string         `gorm:"uniqueIndex:idx_tx_idem" json:"idempotency_key,omitempty"`
	Note                 *string         `json:"note,omitempty"`
	CreatedAt            time.Time       `gorm:"autoCreateTime" json:"created_at"`
}

func (Transaction) TableName() string {
	return "wallet_transactions"
}

// TransactionPair is the result of a two-wallet economic event.
// Debit.Amount is negative, Credit.Amount positive, and they sum to zero.
type TransactionPair struct {
	Debit  *Transaction `json:"debit"`
	Credit *Transaction `json:"credit"`
	// Replayed is true when the pair was served from a prior commit for the
	// same idempotency key instead of moving any value.
	Replayed bool `json:"replayed"`
}

// InvoiceStatus is the redemption lifecycle state.
type InvoiceStatus string

const (
	InvoicePending   InvoiceStatus = "PENDING"
	InvoiceDelivered InvoiceStatus = "DELIVERED"
	InvoiceCancelled InvoiceStatus = "CANCELLED"
)

// Invoice tracks one product redemption. Status only ever moves
// PENDING -> DELIVERED or PENDING -> CANCELLED.
type Invoice struct {
	ID               uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	StudentID        uuid.UUID       `gorm:"type:uuid;not null;index" json:"student_id"`
	ProductID        uuid.UUID       `gorm:"type:uuid;not null" json:"product_id"`
	Quantity         int             `gorm:"not null" json:"quantity"`
	TotalCost        decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"total_cost"`
	Status           InvoiceStatus   `gorm:"not null;default:'PENDING'" json:"status"`
	VerificationCode string          `gorm:"not null" json:"verification_code"`
	DeliveredAt      *time.Time      `json:"delivered_at,omitempty"`
	CreatedAt        time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt        time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// Product is the redeemable good whose stock moves with the invoice.
type Product struct {
	ID        uuid.UUID       `gorm:"type:uuid;primary_key;default:gen_random_uuid()" json:"id"`
	Name      string          `gorm:"not null" json:"name"`
	Price     decimal.Decimal `gorm:"type:numeric(14,2);not null" json:"price"`
	Stock     int             `gorm:"not null;default:0" json:"stock"`
	CreatedAt time.Time       `gorm:"autoCreateTime" json:"created_at"`
	UpdatedAt time.Time       `gorm:"autoUpdateTime" json:"updated_at"`
}

// LedgerEvent is the payload published to RabbitMQ after a commit.
type LedgerEvent struct {
	TransactionID  uuid.UUID       `json:"transaction_id"`
	WalletID       uuid.UUID       `json:"wallet_id"`
	CounterpartyID *uuid.UUID      `json:"counterparty_id,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	Type           TransactionType `json:"type"`
	ReferenceType  ReferenceType   `json:"reference_type"`
	ReferenceID    string          `json:"reference_id"`
}

// PageRequest / Page are the history listing shape.
type PageRequest struct {
	Offset int
	Limit  int
}

type Page struct {
	Items  []Transaction `json:"items"`
	Total  int64         `json:"total"`
	Offset int           `json:"offset"`
	Limit  int           `json:"limit"`
}

// Repository Interfaces

type WalletRepository interface {
	Create(ctx context.Context, tx *gorm.DB, wallet *Wallet) error
	GetByID(ctx context.Context, id uuid.UUID) (*Wallet, error)
	GetByOwner(ctx context.Context, owner OwnerRef, currency Currency) (*Wallet, error)
	// UpdateBalance writes the new balance only if the row's version still
	// equals fromVersion, bumping the version in the same statement. It
	// returns ErrVersionConflict when the conditional write hits zero rows.
	UpdateBalance(ctx context.Context, tx *gorm.DB, id uuid.UUID, newBalance decimal.Decimal, fromVersion int64) error
	WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error
}

type TransactionRepository interface {
	Create(ctx context.Context, tx *gorm.DB, transaction *Transaction) error
	// FindByIdempotencyKey returns every row of the economic event committed
	// under key, or an empty slice.
	FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) ([]Transaction, error)
	GetByID(ctx context.Context, id uuid.UUID) (*Transaction, error)
	// FindRollbackForReference reports whether a ROLLBACK row already
	// references the given business object.
	FindRollbackForReference(ctx context.Context, tx *gorm.DB, refType ReferenceType, refID string) (*Transaction, error)
	// FindByReference returns the rows of the given type posted against a
	// business object.
	FindByReference(ctx context.Context, refType ReferenceType, refID string, txType TransactionType) ([]Transaction, error)
	ListByWallet(ctx context.Context, walletID uuid.UUID, page PageRequest) (*Page, error)
	// SumByWallet returns the signed sum of all rows against a wallet,
	// used for reconciliation against the stored balance.
	SumByWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error)
}

type InvoiceRepository interface {
	Create(ctx context.Context, tx *gorm.DB, invoice *Invoice) error
	GetByID(ctx context.Context, id uuid.UUID) (*Invoice, error)
	// TransitionStatus moves an invoice out of PENDING. The update is
	// conditional on the current status still being PENDING and returns
	// ErrInvalidTransition otherwise.
	TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, to InvoiceStatus, deliveredAt *time.Time) error
	GetProduct(ctx context.Context, id uuid.UUID) (*Product, error)
	// DecrementStock is conditional on stock >= quantity and returns
	// ErrProductOutOfStock otherwise.
	DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error
	IncrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error
}

type CacheRepository interface {
	// The cache holds only the immutable owner-triple -> wallet id mapping.
	// Balances are never cached; the store is the single source of truth.
	GetWalletID(ctx context.Context, owner OwnerRef, currency Currency) (uuid.UUID, bool, error)
	SetWalletID(ctx context.Context, owner OwnerRef, currency Currency, walletID uuid.UUID) error
}

type EventProducer interface {
	PublishLedgerEvent(ctx context.Context, event LedgerEvent) error
}
