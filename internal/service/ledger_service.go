package service

import (
	"context"
	"errors"
	"fmt"
	"log"
	"math/rand"
	"time"

	"campus-coin/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

const (
	defaultMaxRetries  = 5
	defaultBackoffBase = 5 * time.Millisecond
)

// LedgerConfig carries the engine's tunables. AdminOwnerID names the mint
// wallet explicitly; the engine refuses to start without it.
type LedgerConfig struct {
	AdminOwnerID uuid.UUID
	Currency     domain.Currency
	SignupBonus  decimal.Decimal
	MaxRetries   int
	BackoffBase  time.Duration
}

// LedgerService is the wallet ledger engine. Every balance mutation in the
// system goes through it: it loads wallets, checks idempotency inside the
// atomic unit, performs version-conditional balance writes in deterministic
// wallet order, appends the transaction rows, and retries lost races with
// randomized backoff.
type LedgerService struct {
	walletRepo    domain.WalletRepository
	transRepo     domain.TransactionRepository
	cacheRepo     domain.CacheRepository
	eventProducer domain.EventProducer

	adminOwner  domain.OwnerRef
	currency    domain.Currency
	signupBonus decimal.Decimal
	maxRetries  int
	backoffBase time.Duration
}

func NewLedgerService(
	wRepo domain.WalletRepository,
	tRepo domain.TransactionRepository,
	cRepo domain.CacheRepository,
	evt domain.EventProducer,
	cfg LedgerConfig,
) (*LedgerService, error) {
	if cfg.AdminOwnerID == uuid.Nil {
		return nil, errors.New("ledger: admin owner id is required")
	}
	if cfg.Currency == "" {
		cfg.Currency = domain.CurrencyCoin
	}
	if cfg.MaxRetries <= 0 {
		cfg.MaxRetries = defaultMaxRetries
	}
	if cfg.BackoffBase <= 0 {
		cfg.BackoffBase = defaultBackoffBase
	}
	return &LedgerService{
		walletRepo:    wRepo,
		transRepo:     tRepo,
		cacheRepo:     cRepo,
		eventProducer: evt,
		adminOwner:    domain.OwnerRef{Type: domain.OwnerAdmin, ID: cfg.AdminOwnerID},
		currency:      cfg.Currency,
		signupBonus:   cfg.SignupBonus,
		maxRetries:    cfg.MaxRetries,
		backoffBase:   cfg.BackoffBase,
	}, nil
}

// EnsureAdminWallet creates the mint wallet on first boot. The admin wallet
// is the only one allowed to go negative: its balance is the negation of all
// coin ever issued.
func (s *LedgerService) EnsureAdminWallet(ctx context.Context) (*domain.Wallet, error) {
	wallet, err := s.walletRepo.GetByOwner(ctx, s.adminOwner, s.currency)
	if err == nil {
		return wallet, nil
	}
	if !errors.Is(err, domain.ErrWalletNotFound) {
		return nil, err
	}
	wallet = &domain.Wallet{
		ID:        uuid.New(),
		OwnerType: s.adminOwner.Type,
		OwnerID:   s.adminOwner.ID,
		Currency:  s.currency,
		Balance:   decimal.Zero,
	}
	if err := s.walletRepo.Create(ctx, nil, wallet); err != nil {
		if errors.Is(err, domain.ErrWalletExists) {
			return s.walletRepo.GetByOwner(ctx, s.adminOwner, s.currency)
		}
		return nil, err
	}
	return wallet, nil
}

// DefaultSignupBonus returns the configured one-time bonus for new students.
func (s *LedgerService) DefaultSignupBonus() decimal.Decimal {
	return s.signupBonus
}

// CreateOwnerWallet creates an empty wallet for a partner or an event.
func (s *LedgerService) CreateOwnerWallet(ctx context.Context, owner domain.OwnerRef) (*domain.Wallet, error) {
	wallet := &domain.Wallet{
		ID:        uuid.New(),
		OwnerType: owner.Type,
		OwnerID:   owner.ID,
		Currency:  s.currency,
		Balance:   decimal.Zero,
	}
	if err := s.walletRepo.Create(ctx, nil, wallet); err != nil {
		return nil, err
	}
	return wallet, nil
}

// CreateStudentWallet creates a student wallet and posts the one-time signup
// bonus from the admin wallet in the same atomic unit. No idempotency key is
// involved: the unique owner constraint on the wallet table means the bonus
// is triggered exactly once per student.
func (s *LedgerService) CreateStudentWallet(ctx context.Context, studentID uuid.UUID, bonus decimal.Decimal) (*domain.Wallet, error) {
	if bonus.IsNegative() {
		return nil, domain.ErrInvalidAmount
	}

	wallet := &domain.Wallet{
		ID:        uuid.New(),
		OwnerType: domain.OwnerStudent,
		OwnerID:   studentID,
		Currency:  s.currency,
		Balance:   decimal.Zero,
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		admin, err := s.walletRepo.GetByOwner(ctx, s.adminOwner, s.currency)
		if err != nil {
			return nil, fmt.Errorf("resolve admin wallet: %w", err)
		}

		err = s.walletRepo.WithTx(ctx, func(tx *gorm.DB) error {
			if err := s.walletRepo.Create(ctx, tx, wallet); err != nil {
				return err
			}
			if bonus.IsZero() {
				return nil
			}
			if err := s.walletRepo.UpdateBalance(ctx, tx, admin.ID, admin.Balance.Sub(bonus), admin.Version); err != nil {
				return err
			}
			if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, bonus, 0); err != nil {
				return err
			}
			debit := &domain.Transaction{
				ID:                   uuid.New(),
				WalletID:             admin.ID,
				CounterpartyWalletID: &wallet.ID,
				Amount:               bonus.Neg(),
				Type:                 domain.TxSignupBonus,
				ReferenceType:        domain.RefSignup,
				ReferenceID:          studentID.String(),
			}
			credit := &domain.Transaction{
				ID:                   uuid.New(),
				WalletID:             wallet.ID,
				CounterpartyWalletID: &admin.ID,
				Amount:               bonus,
				Type:                 domain.TxSignupBonus,
				ReferenceType:        domain.RefSignup,
				ReferenceID:          studentID.String(),
			}
			if err := s.transRepo.Create(ctx, tx, debit); err != nil {
				return err
			}
			return s.transRepo.Create(ctx, tx, credit)
		})
		if err == nil {
			if !bonus.IsZero() {
				wallet.Balance = bonus
				wallet.Version = 1
			}
			return wallet, nil
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			if berr := s.backoff(ctx, attempt); berr != nil {
				return nil, berr
			}
			continue
		}
		return nil, err
	}
	return nil, domain.ErrConcurrencyConflict
}

// GetBalance resolves the owner's wallet. The triple -> id mapping comes
// from the cache when warm; the balance itself is always read from the store.
func (s *LedgerService) GetBalance(ctx context.Context, owner domain.OwnerRef) (*domain.Wallet, error) {
	if id, ok, err := s.cacheRepo.GetWalletID(ctx, owner, s.currency); err == nil && ok {
		return s.walletRepo.GetByID(ctx, id)
	}

	wallet, err := s.walletRepo.GetByOwner(ctx, owner, s.currency)
	if err != nil {
		return nil, err
	}
	if err := s.cacheRepo.SetWalletID(ctx, owner, s.currency, wallet.ID); err != nil {
		log.Printf("failed to cache wallet id for %s: %v", owner, err)
	}
	return wallet, nil
}

// GetHistory lists the wallet's ledger rows, newest first.
func (s *LedgerService) GetHistory(ctx context.Context, owner domain.OwnerRef, page domain.PageRequest) (*domain.Page, error) {
	wallet, err := s.GetBalance(ctx, owner)
	if err != nil {
		return nil, err
	}
	return s.transRepo.ListByWallet(ctx, wallet.ID, page)
}

// Deduct posts a single debit row against the owner's wallet (no
// counterparty; used for sink movements like a product debit).
func (s *LedgerService) Deduct(ctx context.Context, owner domain.OwnerRef, amount decimal.Decimal, txType domain.TransactionType, refType domain.ReferenceType, refID string, idempotencyKey string) (*domain.Transaction, bool, error) {
	if !amount.IsPositive() {
		return nil, false, domain.ErrInvalidAmount
	}
	return s.postSingle(ctx, owner, amount.Neg(), txType, refType, refID, idempotencyKey, nil)
}

// Credit posts a single credit row against the owner's wallet.
func (s *LedgerService) Credit(ctx context.Context, owner domain.OwnerRef, amount decimal.Decimal, txType domain.TransactionType, refType domain.ReferenceType, refID string, idempotencyKey string) (*domain.Transaction, bool, error) {
	if !amount.IsPositive() {
		return nil, false, domain.ErrInvalidAmount
	}
	return s.postSingle(ctx, owner, amount, txType, refType, refID, idempotencyKey, nil)
}

// Transfer moves amount between two owners as a TRANSFER pair.
func (s *LedgerService) Transfer(ctx context.Context, from, to domain.OwnerRef, amount decimal.Decimal, refType domain.ReferenceType, refID string, idempotencyKey string) (*domain.TransactionPair, error) {
	return s.transferAs(ctx, from, to, amount, domain.TxTransfer, domain.TxTransfer, refType, refID, idempotencyKey, nil)
}

// Topup mints coin to a recipient: the admin wallet is debited by the same
// amount and may go unboundedly negative.
func (s *LedgerService) Topup(ctx context.Context, to domain.OwnerRef, amount decimal.Decimal, refID string, idempotencyKey string) (*domain.TransactionPair, error) {
	return s.transferAs(ctx, s.adminOwner, to, amount, domain.TxAdminTopup, domain.TxTopup, domain.RefTopup, refID, idempotencyKey, nil)
}

// Rollback reverses a committed transaction by posting a compensating pair
// (or single row) against the same business reference. A reference that
// already has a rollback is refused with ErrAlreadyFinalized.
func (s *LedgerService) Rollback(ctx context.Context, originalTxID uuid.UUID, idempotencyKey string, reason string) (*domain.TransactionPair, error) {
	return s.rollbackAs(ctx, originalTxID, domain.TxRollback, idempotencyKey, reason, nil)
}

// transferAs is the two-wallet workhorse. The sideEffect, when non-nil, runs
// inside the same atomic unit as the balance writes and row inserts, so a
// coupled change (stock decrement, invoice insert) commits or aborts with
// the movement. There is deliberately no partial debit-only entry point.
func (s *LedgerService) transferAs(
	ctx context.Context,
	from, to domain.OwnerRef,
	amount decimal.Decimal,
	debitType, creditType domain.TransactionType,
	refType domain.ReferenceType,
	refID string,
	idempotencyKey string,
	sideEffect func(tx *gorm.DB) error,
) (*domain.TransactionPair, error) {
	if !amount.IsPositive() {
		return nil, domain.ErrInvalidAmount
	}

	fromWallet, err := s.GetBalance(ctx, from)
	if err != nil {
		return nil, fmt.Errorf("resolve source wallet: %w", err)
	}
	toWallet, err := s.GetBalance(ctx, to)
	if err != nil {
		return nil, fmt.Errorf("resolve destination wallet: %w", err)
	}
	if fromWallet.ID == toWallet.ID {
		return nil, domain.ErrSelfTransfer
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		pair, err := s.tryTransfer(ctx, fromWallet.ID, toWallet.ID, amount, debitType, creditType, refType, refID, idempotencyKey, sideEffect)
		if err == nil {
			if !pair.Replayed {
				s.publish(ctx, pair.Debit, pair.Credit)
			}
			return pair, nil
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			if berr := s.backoff(ctx, attempt); berr != nil {
				return nil, berr
			}
			continue
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			// Lost the idempotency race to a concurrent identical request;
			// serve its result.
			return s.replayPair(ctx, idempotencyKey)
		}
		return nil, err
	}
	return nil, domain.ErrConcurrencyConflict
}

// tryTransfer is one optimistic attempt: fresh reads, one atomic unit.
func (s *LedgerService) tryTransfer(
	ctx context.Context,
	fromID, toID uuid.UUID,
	amount decimal.Decimal,
	debitType, creditType domain.TransactionType,
	refType domain.ReferenceType,
	refID string,
	idempotencyKey string,
	sideEffect func(tx *gorm.DB) error,
) (*domain.TransactionPair, error) {
	fromWallet, err := s.walletRepo.GetByID(ctx, fromID)
	if err != nil {
		return nil, err
	}
	toWallet, err := s.walletRepo.GetByID(ctx, toID)
	if err != nil {
		return nil, err
	}

	newFromBal := fromWallet.Balance.Sub(amount)
	newToBal := toWallet.Balance.Add(amount)

	var pair *domain.TransactionPair
	err = s.walletRepo.WithTx(ctx, func(tx *gorm.DB) error {
		// Replay lookup comes first: a retried request must see its prior
		// result even when the committed debit left the balance too low to
		// pass the funds check again.
		if idempotencyKey != "" {
			rows, err := s.transRepo.FindByIdempotencyKey(ctx, tx, idempotencyKey)
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				pair = pairFromRows(rows)
				return nil
			}
		}

		if newFromBal.IsNegative() && fromWallet.OwnerType != domain.OwnerAdmin {
			return domain.ErrInsufficientFunds
		}

		if sideEffect != nil {
			if err := sideEffect(tx); err != nil {
				return err
			}
		}

		// Fixed acquisition order by wallet id keeps opposite-direction
		// pairs from deadlocking on the row locks the updates take.
		type write struct {
			id      uuid.UUID
			balance decimal.Decimal
			version int64
		}
		writes := []write{
			{fromWallet.ID, newFromBal, fromWallet.Version},
			{toWallet.ID, newToBal, toWallet.Version},
		}
		if writes[0].id.String() > writes[1].id.String() {
			writes[0], writes[1] = writes[1], writes[0]
		}
		for _, w := range writes {
			if err := s.walletRepo.UpdateBalance(ctx, tx, w.id, w.balance, w.version); err != nil {
				return err
			}
		}

		var key *string
		if idempotencyKey != "" {
			key = &idempotencyKey
		}
		debit := &domain.Transaction{
			ID:                   uuid.New(),
			WalletID:             fromWallet.ID,
			CounterpartyWalletID: &toWallet.ID,
			Amount:               amount.Neg(),
			Type:                 debitType,
			ReferenceType:        refType,
			ReferenceID:          refID,
			IdempotencyKey:       key,
		}
		credit := &domain.Transaction{
			ID:                   uuid.New(),
			WalletID:             toWallet.ID,
			CounterpartyWalletID: &fromWallet.ID,
			Amount:               amount,
			Type:                 creditType,
			ReferenceType:        refType,
			ReferenceID:          refID,
			IdempotencyKey:       key,
		}
		if err := s.transRepo.Create(ctx, tx, debit); err != nil {
			return err
		}
		if err := s.transRepo.Create(ctx, tx, credit); err != nil {
			return err
		}
		pair = &domain.TransactionPair{Debit: debit, Credit: credit}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// postSingle is the one-wallet workhorse, same discipline as transferAs.
// signedAmount is negative for a debit, positive for a credit.
func (s *LedgerService) postSingle(
	ctx context.Context,
	owner domain.OwnerRef,
	signedAmount decimal.Decimal,
	txType domain.TransactionType,
	refType domain.ReferenceType,
	refID string,
	idempotencyKey string,
	sideEffect func(tx *gorm.DB) error,
) (*domain.Transaction, bool, error) {
	if signedAmount.IsZero() {
		return nil, false, domain.ErrInvalidAmount
	}

	wallet, err := s.GetBalance(ctx, owner)
	if err != nil {
		return nil, false, err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		row, replayed, err := s.trySingle(ctx, wallet.ID, signedAmount, txType, refType, refID, idempotencyKey, sideEffect)
		if err == nil {
			if !replayed {
				s.publish(ctx, row)
			}
			return row, replayed, nil
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			if berr := s.backoff(ctx, attempt); berr != nil {
				return nil, false, berr
			}
			continue
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			rows, lerr := s.transRepo.FindByIdempotencyKey(ctx, nil, idempotencyKey)
			if lerr != nil || len(rows) == 0 {
				return nil, false, err
			}
			return &rows[0], true, nil
		}
		return nil, false, err
	}
	return nil, false, domain.ErrConcurrencyConflict
}

func (s *LedgerService) trySingle(
	ctx context.Context,
	walletID uuid.UUID,
	signedAmount decimal.Decimal,
	txType domain.TransactionType,
	refType domain.ReferenceType,
	refID string,
	idempotencyKey string,
	sideEffect func(tx *gorm.DB) error,
) (*domain.Transaction, bool, error) {
	wallet, err := s.walletRepo.GetByID(ctx, walletID)
	if err != nil {
		return nil, false, err
	}

	newBal := wallet.Balance.Add(signedAmount)

	var row *domain.Transaction
	replayed := false
	err = s.walletRepo.WithTx(ctx, func(tx *gorm.DB) error {
		// Replay lookup before the funds check, for the same reason as
		// tryTransfer: the first commit may have drained the wallet.
		if idempotencyKey != "" {
			rows, err := s.transRepo.FindByIdempotencyKey(ctx, tx, idempotencyKey)
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				row = &rows[0]
				replayed = true
				return nil
			}
		}

		if newBal.IsNegative() && wallet.OwnerType != domain.OwnerAdmin {
			return domain.ErrInsufficientFunds
		}

		if sideEffect != nil {
			if err := sideEffect(tx); err != nil {
				return err
			}
		}

		if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, newBal, wallet.Version); err != nil {
			return err
		}

		var key *string
		if idempotencyKey != "" {
			key = &idempotencyKey
		}
		row = &domain.Transaction{
			ID:             uuid.New(),
			WalletID:       wallet.ID,
			Amount:         signedAmount,
			Type:           txType,
			ReferenceType:  refType,
			ReferenceID:    refID,
			IdempotencyKey: key,
		}
		return s.transRepo.Create(ctx, tx, row)
	})
	if err != nil {
		return nil, false, err
	}
	return row, replayed, nil
}

// rollbackAs posts the compensating movement for originalTxID. The
// double-refund guard and the postings share one atomic unit.
func (s *LedgerService) rollbackAs(
	ctx context.Context,
	originalTxID uuid.UUID,
	rollbackType domain.TransactionType,
	idempotencyKey string,
	reason string,
	sideEffect func(tx *gorm.DB) error,
) (*domain.TransactionPair, error) {
	original, err := s.transRepo.GetByID(ctx, originalTxID)
	if err != nil {
		return nil, err
	}

	for attempt := 0; attempt < s.maxRetries; attempt++ {
		pair, err := s.tryRollback(ctx, original, rollbackType, idempotencyKey, reason, sideEffect)
		if err == nil {
			if !pair.Replayed {
				s.publish(ctx, pair.Debit, pair.Credit)
			}
			return pair, nil
		}
		if errors.Is(err, domain.ErrVersionConflict) {
			if berr := s.backoff(ctx, attempt); berr != nil {
				return nil, berr
			}
			continue
		}
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return s.replayPair(ctx, idempotencyKey)
		}
		return nil, err
	}
	return nil, domain.ErrConcurrencyConflict
}

func (s *LedgerService) tryRollback(
	ctx context.Context,
	original *domain.Transaction,
	rollbackType domain.TransactionType,
	idempotencyKey string,
	reason string,
	sideEffect func(tx *gorm.DB) error,
) (*domain.TransactionPair, error) {
	wallet, err := s.walletRepo.GetByID(ctx, original.WalletID)
	if err != nil {
		return nil, err
	}
	var counterparty *domain.Wallet
	if original.CounterpartyWalletID != nil {
		counterparty, err = s.walletRepo.GetByID(ctx, *original.CounterpartyWalletID)
		if err != nil {
			return nil, err
		}
	}

	// Reversing the original row credits what was debited and vice versa.
	walletDelta := original.Amount.Neg()
	newWalletBal := wallet.Balance.Add(walletDelta)
	var newCounterBal decimal.Decimal
	if counterparty != nil {
		newCounterBal = counterparty.Balance.Add(original.Amount)
	}

	var note *string
	if reason != "" {
		note = &reason
	}
	var key *string
	if idempotencyKey != "" {
		key = &idempotencyKey
	}

	var pair *domain.TransactionPair
	err = s.walletRepo.WithTx(ctx, func(tx *gorm.DB) error {
		if idempotencyKey != "" {
			rows, err := s.transRepo.FindByIdempotencyKey(ctx, tx, idempotencyKey)
			if err != nil {
				return err
			}
			if len(rows) > 0 {
				pair = pairFromRows(rows)
				return nil
			}
		}

		existing, err := s.transRepo.FindRollbackForReference(ctx, tx, original.ReferenceType, original.ReferenceID)
		if err != nil {
			return err
		}
		if existing != nil {
			return domain.ErrAlreadyFinalized
		}

		if newWalletBal.IsNegative() && wallet.OwnerType != domain.OwnerAdmin {
			return domain.ErrInsufficientFunds
		}
		if counterparty != nil && newCounterBal.IsNegative() && counterparty.OwnerType != domain.OwnerAdmin {
			return domain.ErrInsufficientFunds
		}

		if sideEffect != nil {
			if err := sideEffect(tx); err != nil {
				return err
			}
		}

		if err := s.walletRepo.UpdateBalance(ctx, tx, wallet.ID, newWalletBal, wallet.Version); err != nil {
			return err
		}
		first := &domain.Transaction{
			ID:             uuid.New(),
			WalletID:       wallet.ID,
			Amount:         walletDelta,
			Type:           rollbackType,
			ReferenceType:  original.ReferenceType,
			ReferenceID:    original.ReferenceID,
			IdempotencyKey: key,
			Note:           note,
		}
		if counterparty == nil {
			if err := s.transRepo.Create(ctx, tx, first); err != nil {
				return err
			}
			if walletDelta.IsNegative() {
				pair = &domain.TransactionPair{Debit: first}
			} else {
				pair = &domain.TransactionPair{Credit: first}
			}
			return nil
		}

		first.CounterpartyWalletID = &counterparty.ID
		if err := s.walletRepo.UpdateBalance(ctx, tx, counterparty.ID, newCounterBal, counterparty.Version); err != nil {
			return err
		}
		second := &domain.Transaction{
			ID:                   uuid.New(),
			WalletID:             counterparty.ID,
			CounterpartyWalletID: &wallet.ID,
			Amount:               original.Amount,
			Type:                 rollbackType,
			ReferenceType:        original.ReferenceType,
			ReferenceID:          original.ReferenceID,
			IdempotencyKey:       key,
			Note:                 note,
		}
		if err := s.transRepo.Create(ctx, tx, first); err != nil {
			return err
		}
		if err := s.transRepo.Create(ctx, tx, second); err != nil {
			return err
		}
		if first.Amount.IsNegative() {
			pair = &domain.TransactionPair{Debit: first, Credit: second}
		} else {
			pair = &domain.TransactionPair{Debit: second, Credit: first}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return pair, nil
}

// VerifyWallet recomputes the wallet's balance from its ledger rows and
// reports whether the stored balance matches. Reconciliation helper.
func (s *LedgerService) VerifyWallet(ctx context.Context, owner domain.OwnerRef) (bool, error) {
	wallet, err := s.GetBalance(ctx, owner)
	if err != nil {
		return false, err
	}
	sum, err := s.transRepo.SumByWallet(ctx, wallet.ID)
	if err != nil {
		return false, err
	}
	return wallet.Balance.Equal(sum), nil
}

func (s *LedgerService) replayPair(ctx context.Context, idempotencyKey string) (*domain.TransactionPair, error) {
	if idempotencyKey == "" {
		return nil, gorm.ErrDuplicatedKey
	}
	rows, err := s.transRepo.FindByIdempotencyKey(ctx, nil, idempotencyKey)
	if err != nil {
		return nil, err
	}
	if len(rows) == 0 {
		return nil, gorm.ErrDuplicatedKey
	}
	return pairFromRows(rows), nil
}

// pairFromRows rebuilds a replayed result from the committed event rows.
func pairFromRows(rows []domain.Transaction) *domain.TransactionPair {
	pair := &domain.TransactionPair{Replayed: true}
	for i := range rows {
		if rows[i].Amount.IsNegative() {
			pair.Debit = &rows[i]
		} else {
			pair.Credit = &rows[i]
		}
	}
	return pair
}

func (s *LedgerService) backoff(ctx context.Context, attempt int) error {
	jitter := time.Duration(rand.Int63n(int64(s.backoffBase))) //nolint:gosec
	delay := s.backoffBase*time.Duration(attempt+1) + jitter
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(delay):
		return nil
	}
}

// publish is best effort: a committed movement is never unwound because the
// event stream hiccupped.
func (s *LedgerService) publish(ctx context.Context, rows ...*domain.Transaction) {
	for _, row := range rows {
		if row == nil {
			continue
		}
		event := domain.LedgerEvent{
			TransactionID:  row.ID,
			WalletID:       row.WalletID,
			CounterpartyID: row.CounterpartyWalletID,
			Amount:         row.Amount,
			Type:           row.Type,
			ReferenceType:  row.ReferenceType,
			ReferenceID:    row.ReferenceID,
		}
		if err := s.eventProducer.PublishLedgerEvent(ctx, event); err != nil {
			log.Printf("failed to publish ledger event for transaction %s: %v", row.ID, err)
		}
	}
}
