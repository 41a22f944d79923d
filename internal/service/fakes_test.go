package service

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"campus-coin/internal/domain"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"gorm.io/gorm"
)

// fakeTx marks "inside the atomic unit" for the fakes the way a live
// *gorm.DB does for the real repositories.
var fakeTx = &gorm.DB{}

// fakeStore is an in-memory stand-in for Postgres with the same contract
// the services rely on: version-conditional wallet writes, unique indexes
// on the owner triple and on (idempotency_key, wallet_id), and
// all-or-nothing transactions. Mutations inside withTx land in an overlay
// that is merged on success and dropped on error, and the store lock is
// held for the whole unit, so reads taken before the unit can genuinely
// lose version races the way they do against the real database.
type fakeStore struct {
	mu       sync.Mutex
	wallets  map[uuid.UUID]domain.Wallet
	ownerIdx map[string]uuid.UUID
	txs      []domain.Transaction
	idemIdx  map[string]bool // key|walletID
	invoices map[uuid.UUID]domain.Invoice
	products map[uuid.UUID]domain.Product

	// forceConflicts makes the next N conditional writes lose, for
	// exercising the retry loop.
	forceConflicts int

	ov *fakeOverlay
}

type fakeOverlay struct {
	wallets  map[uuid.UUID]domain.Wallet
	ownerIdx map[string]uuid.UUID
	txs      []domain.Transaction
	idemIdx  map[string]bool
	invoices map[uuid.UUID]domain.Invoice
	products map[uuid.UUID]domain.Product
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		wallets:  make(map[uuid.UUID]domain.Wallet),
		ownerIdx: make(map[string]uuid.UUID),
		idemIdx:  make(map[string]bool),
		invoices: make(map[uuid.UUID]domain.Invoice),
		products: make(map[uuid.UUID]domain.Product),
	}
}

func ownerKey(t domain.OwnerType, id uuid.UUID, c domain.Currency) string {
	return fmt.Sprintf("%s|%s|%s", t, id, c)
}

func idemKey(key string, walletID uuid.UUID) string {
	return key + "|" + walletID.String()
}

func (s *fakeStore) withTx(fn func(tx *gorm.DB) error) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.ov = &fakeOverlay{
		wallets:  make(map[uuid.UUID]domain.Wallet),
		ownerIdx: make(map[string]uuid.UUID),
		idemIdx:  make(map[string]bool),
		invoices: make(map[uuid.UUID]domain.Invoice),
		products: make(map[uuid.UUID]domain.Product),
	}
	err := fn(fakeTx)
	if err == nil {
		for id, w := range s.ov.wallets {
			s.wallets[id] = w
		}
		for k, id := range s.ov.ownerIdx {
			s.ownerIdx[k] = id
		}
		s.txs = append(s.txs, s.ov.txs...)
		for k := range s.ov.idemIdx {
			s.idemIdx[k] = true
		}
		for id, inv := range s.ov.invoices {
			s.invoices[id] = inv
		}
		for id, p := range s.ov.products {
			s.products[id] = p
		}
	}
	s.ov = nil
	return err
}

// lockUnless takes the store lock for calls outside a unit; inside a unit
// the lock is already held by withTx.
func (s *fakeStore) lockUnless(tx *gorm.DB) func() {
	if tx != nil {
		return func() {}
	}
	s.mu.Lock()
	return s.mu.Unlock
}

func (s *fakeStore) lookupWallet(id uuid.UUID) (domain.Wallet, bool) {
	if s.ov != nil {
		if w, ok := s.ov.wallets[id]; ok {
			return w, true
		}
	}
	w, ok := s.wallets[id]
	return w, ok
}

func (s *fakeStore) lookupInvoice(id uuid.UUID) (domain.Invoice, bool) {
	if s.ov != nil {
		if inv, ok := s.ov.invoices[id]; ok {
			return inv, true
		}
	}
	inv, ok := s.invoices[id]
	return inv, ok
}

func (s *fakeStore) lookupProduct(id uuid.UUID) (domain.Product, bool) {
	if s.ov != nil {
		if p, ok := s.ov.products[id]; ok {
			return p, true
		}
	}
	p, ok := s.products[id]
	return p, ok
}

func (s *fakeStore) hasIdem(k string) bool {
	if s.idemIdx[k] {
		return true
	}
	return s.ov != nil && s.ov.idemIdx[k]
}

// --- WalletRepository ---

type fakeWalletRepo struct{ st *fakeStore }

func (r *fakeWalletRepo) Create(ctx context.Context, tx *gorm.DB, wallet *domain.Wallet) error {
	defer r.st.lockUnless(tx)()
	key := ownerKey(wallet.OwnerType, wallet.OwnerID, wallet.Currency)
	if _, exists := r.st.ownerIdx[key]; exists {
		return domain.ErrWalletExists
	}
	if r.st.ov != nil {
		if _, exists := r.st.ov.ownerIdx[key]; exists {
			return domain.ErrWalletExists
		}
	}
	if wallet.ID == uuid.Nil {
		wallet.ID = uuid.New()
	}
	wallet.CreatedAt = time.Now()
	if tx != nil && r.st.ov != nil {
		r.st.ov.wallets[wallet.ID] = *wallet
		r.st.ov.ownerIdx[key] = wallet.ID
	} else {
		r.st.wallets[wallet.ID] = *wallet
		r.st.ownerIdx[key] = wallet.ID
	}
	return nil
}

func (r *fakeWalletRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Wallet, error) {
	defer r.st.lockUnless(nil)()
	w, ok := r.st.wallets[id]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := w
	return &cp, nil
}

func (r *fakeWalletRepo) GetByOwner(ctx context.Context, owner domain.OwnerRef, currency domain.Currency) (*domain.Wallet, error) {
	defer r.st.lockUnless(nil)()
	id, ok := r.st.ownerIdx[ownerKey(owner.Type, owner.ID, currency)]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	w, ok := r.st.wallets[id]
	if !ok {
		return nil, domain.ErrWalletNotFound
	}
	cp := w
	return &cp, nil
}

func (r *fakeWalletRepo) UpdateBalance(ctx context.Context, tx *gorm.DB, id uuid.UUID, newBalance decimal.Decimal, fromVersion int64) error {
	defer r.st.lockUnless(tx)()
	if r.st.forceConflicts > 0 {
		r.st.forceConflicts--
		return domain.ErrVersionConflict
	}
	w, ok := r.st.lookupWallet(id)
	if !ok {
		return domain.ErrWalletNotFound
	}
	if w.Version != fromVersion {
		return domain.ErrVersionConflict
	}
	w.Balance = newBalance
	w.Version = fromVersion + 1
	if tx != nil && r.st.ov != nil {
		r.st.ov.wallets[id] = w
	} else {
		r.st.wallets[id] = w
	}
	return nil
}

func (r *fakeWalletRepo) WithTx(ctx context.Context, fn func(tx *gorm.DB) error) error {
	return r.st.withTx(fn)
}

// --- TransactionRepository ---

type fakeTransactionRepo struct{ st *fakeStore }

func (r *fakeTransactionRepo) Create(ctx context.Context, tx *gorm.DB, transaction *domain.Transaction) error {
	defer r.st.lockUnless(tx)()
	if transaction.ID == uuid.Nil {
		transaction.ID = uuid.New()
	}
	transaction.CreatedAt = time.Now()
	if transaction.IdempotencyKey != nil {
		k := idemKey(*transaction.IdempotencyKey, transaction.WalletID)
		if r.st.hasIdem(k) {
			return gorm.ErrDuplicatedKey
		}
		if tx != nil && r.st.ov != nil {
			r.st.ov.idemIdx[k] = true
		} else {
			r.st.idemIdx[k] = true
		}
	}
	if tx != nil && r.st.ov != nil {
		r.st.ov.txs = append(r.st.ov.txs, *transaction)
	} else {
		r.st.txs = append(r.st.txs, *transaction)
	}
	return nil
}

func (r *fakeTransactionRepo) allRows() []domain.Transaction {
	rows := append([]domain.Transaction{}, r.st.txs...)
	if r.st.ov != nil {
		rows = append(rows, r.st.ov.txs...)
	}
	return rows
}

func (r *fakeTransactionRepo) FindByIdempotencyKey(ctx context.Context, tx *gorm.DB, key string) ([]domain.Transaction, error) {
	defer r.st.lockUnless(tx)()
	var out []domain.Transaction
	for _, row := range r.allRows() {
		if row.IdempotencyKey != nil && *row.IdempotencyKey == key {
			out = append(out, row)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].Amount.LessThan(out[j].Amount) })
	return out, nil
}

func (r *fakeTransactionRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Transaction, error) {
	defer r.st.lockUnless(nil)()
	for _, row := range r.st.txs {
		if row.ID == id {
			cp := row
			return &cp, nil
		}
	}
	return nil, domain.ErrTransactionNotFound
}

func (r *fakeTransactionRepo) FindRollbackForReference(ctx context.Context, tx *gorm.DB, refType domain.ReferenceType, refID string) (*domain.Transaction, error) {
	defer r.st.lockUnless(tx)()
	for _, row := range r.allRows() {
		if (row.Type == domain.TxRollback || row.Type == domain.TxProductRefund) &&
			row.ReferenceType == refType && row.ReferenceID == refID {
			cp := row
			return &cp, nil
		}
	}
	return nil, nil
}

func (r *fakeTransactionRepo) FindByReference(ctx context.Context, refType domain.ReferenceType, refID string, txType domain.TransactionType) ([]domain.Transaction, error) {
	defer r.st.lockUnless(nil)()
	var out []domain.Transaction
	for _, row := range r.st.txs {
		if row.ReferenceType == refType && row.ReferenceID == refID && row.Type == txType {
			out = append(out, row)
		}
	}
	return out, nil
}

func (r *fakeTransactionRepo) ListByWallet(ctx context.Context, walletID uuid.UUID, page domain.PageRequest) (*domain.Page, error) {
	defer r.st.lockUnless(nil)()
	if page.Limit <= 0 || page.Limit > 100 {
		page.Limit = 20
	}
	var all []domain.Transaction
	for _, row := range r.st.txs {
		if row.WalletID == walletID {
			all = append(all, row)
		}
	}
	sort.Slice(all, func(i, j int) bool { return all[i].CreatedAt.After(all[j].CreatedAt) })
	total := int64(len(all))
	start := page.Offset
	if start > len(all) {
		start = len(all)
	}
	end := start + page.Limit
	if end > len(all) {
		end = len(all)
	}
	return &domain.Page{Items: all[start:end], Total: total, Offset: page.Offset, Limit: page.Limit}, nil
}

func (r *fakeTransactionRepo) SumByWallet(ctx context.Context, walletID uuid.UUID) (decimal.Decimal, error) {
	defer r.st.lockUnless(nil)()
	sum := decimal.Zero
	for _, row := range r.st.txs {
		if row.WalletID == walletID {
			sum = sum.Add(row.Amount)
		}
	}
	return sum, nil
}

// --- InvoiceRepository ---

type fakeInvoiceRepo struct{ st *fakeStore }

func (r *fakeInvoiceRepo) Create(ctx context.Context, tx *gorm.DB, invoice *domain.Invoice) error {
	defer r.st.lockUnless(tx)()
	if invoice.ID == uuid.Nil {
		invoice.ID = uuid.New()
	}
	invoice.CreatedAt = time.Now()
	if tx != nil && r.st.ov != nil {
		r.st.ov.invoices[invoice.ID] = *invoice
	} else {
		r.st.invoices[invoice.ID] = *invoice
	}
	return nil
}

func (r *fakeInvoiceRepo) GetByID(ctx context.Context, id uuid.UUID) (*domain.Invoice, error) {
	defer r.st.lockUnless(nil)()
	inv, ok := r.st.invoices[id]
	if !ok {
		return nil, domain.ErrInvoiceNotFound
	}
	cp := inv
	return &cp, nil
}

func (r *fakeInvoiceRepo) TransitionStatus(ctx context.Context, tx *gorm.DB, id uuid.UUID, to domain.InvoiceStatus, deliveredAt *time.Time) error {
	defer r.st.lockUnless(tx)()
	inv, ok := r.st.lookupInvoice(id)
	if !ok {
		return domain.ErrInvoiceNotFound
	}
	if inv.Status != domain.InvoicePending {
		return domain.ErrInvalidTransition
	}
	inv.Status = to
	if deliveredAt != nil {
		inv.DeliveredAt = deliveredAt
	}
	if tx != nil && r.st.ov != nil {
		r.st.ov.invoices[id] = inv
	} else {
		r.st.invoices[id] = inv
	}
	return nil
}

func (r *fakeInvoiceRepo) GetProduct(ctx context.Context, id uuid.UUID) (*domain.Product, error) {
	defer r.st.lockUnless(nil)()
	p, ok := r.st.products[id]
	if !ok {
		return nil, domain.ErrProductNotFound
	}
	cp := p
	return &cp, nil
}

func (r *fakeInvoiceRepo) DecrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error {
	defer r.st.lockUnless(tx)()
	p, ok := r.st.lookupProduct(productID)
	if !ok || p.Stock < quantity {
		return domain.ErrProductOutOfStock
	}
	p.Stock -= quantity
	if tx != nil && r.st.ov != nil {
		r.st.ov.products[productID] = p
	} else {
		r.st.products[productID] = p
	}
	return nil
}

func (r *fakeInvoiceRepo) IncrementStock(ctx context.Context, tx *gorm.DB, productID uuid.UUID, quantity int) error {
	defer r.st.lockUnless(tx)()
	p, ok := r.st.lookupProduct(productID)
	if !ok {
		return domain.ErrProductNotFound
	}
	p.Stock += quantity
	if tx != nil && r.st.ov != nil {
		r.st.ov.products[productID] = p
	} else {
		r.st.products[productID] = p
	}
	return nil
}

// --- CacheRepository ---

type fakeCache struct {
	mu sync.Mutex
	m  map[string]uuid.UUID
}

func newFakeCache() *fakeCache {
	return &fakeCache{m: make(map[string]uuid.UUID)}
}

func (c *fakeCache) GetWalletID(ctx context.Context, owner domain.OwnerRef, currency domain.Currency) (uuid.UUID, bool, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	id, ok := c.m[ownerKey(owner.Type, owner.ID, currency)]
	return id, ok, nil
}

func (c *fakeCache) SetWalletID(ctx context.Context, owner domain.OwnerRef, currency domain.Currency, walletID uuid.UUID) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.m[ownerKey(owner.Type, owner.ID, currency)] = walletID
	return nil
}

// --- EventProducer ---

type fakeProducer struct {
	mu     sync.Mutex
	events []domain.LedgerEvent
}

func (p *fakeProducer) PublishLedgerEvent(ctx context.Context, event domain.LedgerEvent) error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.events = append(p.events, event)
	return nil
}

func (p *fakeProducer) count() int {
	p.mu.Lock()
	defer p.mu.Unlock()
	return len(p.events)
}
