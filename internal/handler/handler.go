package handler

import (
	"encoding/json"
	"errors"
	"net/http"
	"strconv"

	"campus-coin/internal/domain"
	"campus-coin/internal/service"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Handler is the thin HTTP surface over the ledger. Identity and
// authorization belong to the callers; the engine still enforces
// amount positivity, sufficiency and idempotency.
type Handler struct {
	ledger     *service.LedgerService
	reward     *service.RewardService
	funding    *service.FundingService
	redemption *service.RedemptionService
	validator  *validator.Validate
}

func NewHandler(ledger *service.LedgerService, reward *service.RewardService, funding *service.FundingService, redemption *service.RedemptionService) *Handler {
	return &Handler{
		ledger:     ledger,
		reward:     reward,
		funding:    funding,
		redemption: redemption,
		validator:  validator.New(),
	}
}

// Responses

type ErrorResponse struct {
	Code    int    `json:"code"`
	Message string `json:"message"`
}

func respondError(w http.ResponseWriter, code int, msg string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(ErrorResponse{Code: code, Message: msg})
}

func respondJSON(w http.ResponseWriter, code int, payload interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(payload)
}

// respondDomainError maps the ledger's error taxonomy onto HTTP statuses.
func respondDomainError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, domain.ErrWalletNotFound),
		errors.Is(err, domain.ErrInvoiceNotFound),
		errors.Is(err, domain.ErrProductNotFound),
		errors.Is(err, domain.ErrTransactionNotFound):
		respondError(w, http.StatusNotFound, err.Error())
	case errors.Is(err, domain.ErrInvalidAmount),
		errors.Is(err, domain.ErrUnknownOwnerType),
		errors.Is(err, domain.ErrSelfTransfer),
		errors.Is(err, domain.ErrVerificationCode):
		respondError(w, http.StatusBadRequest, err.Error())
	case errors.Is(err, domain.ErrInsufficientFunds),
		errors.Is(err, domain.ErrProductOutOfStock):
		respondError(w, http.StatusUnprocessableEntity, err.Error())
	case errors.Is(err, domain.ErrAlreadyFinalized),
		errors.Is(err, domain.ErrInvalidTransition),
		errors.Is(err, domain.ErrWalletExists):
		respondError(w, http.StatusConflict, err.Error())
	case errors.Is(err, domain.ErrConcurrencyConflict):
		// Retryable, not a business failure.
		respondError(w, http.StatusServiceUnavailable, err.Error())
	default:
		respondError(w, http.StatusInternalServerError, err.Error())
	}
}

func parseOwner(typeStr, idStr string) (domain.OwnerRef, error) {
	id, err := uuid.Parse(idStr)
	if err != nil {
		return domain.OwnerRef{}, domain.ErrUnknownOwnerType
	}
	return domain.NewOwnerRef(domain.OwnerType(typeStr), id)
}

// Request Models

type CreateStudentReq struct {
	StudentID string `json:"student_id" validate:"required,uuid"`
	Bonus     string `json:"bonus"`
}

type CreateWalletReq struct {
	OwnerType string `json:"owner_type" validate:"required,oneof=PARTNER EVENT"`
	OwnerID   string `json:"owner_id" validate:"required,uuid"`
}

type TopupReq struct {
	OwnerType      string `json:"owner_type" validate:"required,oneof=STUDENT PARTNER"`
	OwnerID        string `json:"owner_id" validate:"required,uuid"`
	Amount         string `json:"amount" validate:"required"`
	ReferenceID    string `json:"reference_id" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
}

type FundingReq struct {
	PartnerID      string `json:"partner_id" validate:"required,uuid"`
	EventID        string `json:"event_id" validate:"required,uuid"`
	Amount         string `json:"amount" validate:"required"`
	FundingID      string `json:"funding_id" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
}

type CheckinRewardReq struct {
	SourceType     string `json:"source_type" validate:"required,oneof=EVENT PARTNER"`
	SourceID       string `json:"source_id" validate:"required,uuid"`
	StudentID      string `json:"student_id" validate:"required,uuid"`
	Amount         string `json:"amount" validate:"required"`
	CheckinID      string `json:"checkin_id" validate:"required"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
}

type RedeemReq struct {
	StudentID      string `json:"student_id" validate:"required,uuid"`
	ProductID      string `json:"product_id" validate:"required,uuid"`
	Quantity       int    `json:"quantity" validate:"required,gt=0"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
}

type DeliverReq struct {
	Code string `json:"code" validate:"required"`
}

type CancelReq struct {
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
	Reason         string `json:"reason"`
}

type RollbackReq struct {
	TransactionID  string `json:"transaction_id" validate:"required,uuid"`
	IdempotencyKey string `json:"idempotency_key" validate:"required"`
	Reason         string `json:"reason"`
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		respondError(w, http.StatusBadRequest, "Invalid request body")
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		respondError(w, http.StatusBadRequest, err.Error())
		return false
	}
	return true
}

func parseAmount(w http.ResponseWriter, raw string) (decimal.Decimal, bool) {
	amount, err := decimal.NewFromString(raw)
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid amount format")
		return decimal.Zero, false
	}
	return amount, true
}

// Handlers

func (h *Handler) CreateStudent(w http.ResponseWriter, r *http.Request) {
	var req CreateStudentReq
	if !h.decode(w, r, &req) {
		return
	}

	bonus := h.ledger.DefaultSignupBonus()
	if req.Bonus != "" {
		var ok bool
		if bonus, ok = parseAmount(w, req.Bonus); !ok {
			return
		}
	}

	studentID, _ := uuid.Parse(req.StudentID)
	wallet, err := h.ledger.CreateStudentWallet(r.Context(), studentID, bonus)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, wallet)
}

func (h *Handler) CreateWallet(w http.ResponseWriter, r *http.Request) {
	var req CreateWalletReq
	if !h.decode(w, r, &req) {
		return
	}

	owner, err := parseOwner(req.OwnerType, req.OwnerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	wallet, err := h.ledger.CreateOwnerWallet(r.Context(), owner)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, wallet)
}

func (h *Handler) GetBalance(w http.ResponseWriter, r *http.Request) {
	owner, err := parseOwner(r.PathValue("ownerType"), r.PathValue("ownerId"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	wallet, err := h.ledger.GetBalance(r.Context(), owner)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, wallet)
}

func (h *Handler) GetHistory(w http.ResponseWriter, r *http.Request) {
	owner, err := parseOwner(r.PathValue("ownerType"), r.PathValue("ownerId"))
	if err != nil {
		respondDomainError(w, err)
		return
	}

	offset, _ := strconv.Atoi(r.URL.Query().Get("offset"))
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))

	page, err := h.ledger.GetHistory(r.Context(), owner, domain.PageRequest{Offset: offset, Limit: limit})
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, page)
}

func (h *Handler) Topup(w http.ResponseWriter, r *http.Request) {
	var req TopupReq
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}

	owner, err := parseOwner(req.OwnerType, req.OwnerID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	pair, err := h.ledger.Topup(r.Context(), owner, amount, req.ReferenceID, req.IdempotencyKey)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

func (h *Handler) FundEvent(w http.ResponseWriter, r *http.Request) {
	var req FundingReq
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}

	partnerID, _ := uuid.Parse(req.PartnerID)
	eventID, _ := uuid.Parse(req.EventID)

	pair, err := h.funding.FundEvent(r.Context(), partnerID, eventID, amount, req.FundingID, req.IdempotencyKey)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pair)
}

func (h *Handler) CheckinReward(w http.ResponseWriter, r *http.Request) {
	var req CheckinRewardReq
	if !h.decode(w, r, &req) {
		return
	}
	amount, ok := parseAmount(w, req.Amount)
	if !ok {
		return
	}

	source, err := parseOwner(req.SourceType, req.SourceID)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	studentID, _ := uuid.Parse(req.StudentID)

	result, err := h.reward.PayCheckinReward(r.Context(), source, studentID, amount, req.CheckinID, req.IdempotencyKey)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, result)
}

func (h *Handler) Redeem(w http.ResponseWriter, r *http.Request) {
	var req RedeemReq
	if !h.decode(w, r, &req) {
		return
	}

	studentID, _ := uuid.Parse(req.StudentID)
	productID, _ := uuid.Parse(req.ProductID)

	result, err := h.redemption.Redeem(r.Context(), studentID, productID, req.Quantity, req.IdempotencyKey)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusCreated, result)
}

func (h *Handler) DeliverInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid invoice ID format")
		return
	}
	var req DeliverReq
	if !h.decode(w, r, &req) {
		return
	}

	invoice, err := h.redemption.Deliver(r.Context(), invoiceID, req.Code)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, invoice)
}

func (h *Handler) CancelInvoice(w http.ResponseWriter, r *http.Request) {
	invoiceID, err := uuid.Parse(r.PathValue("id"))
	if err != nil {
		respondError(w, http.StatusBadRequest, "Invalid invoice ID format")
		return
	}
	var req CancelReq
	if !h.decode(w, r, &req) {
		return
	}

	invoice, pair, err := h.redemption.Cancel(r.Context(), invoiceID, req.IdempotencyKey, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, map[string]interface{}{
		"invoice": invoice,
		"refund":  pair,
	})
}

func (h *Handler) Rollback(w http.ResponseWriter, r *http.Request) {
	var req RollbackReq
	if !h.decode(w, r, &req) {
		return
	}

	txID, _ := uuid.Parse(req.TransactionID)
	pair, err := h.ledger.Rollback(r.Context(), txID, req.IdempotencyKey, req.Reason)
	if err != nil {
		respondDomainError(w, err)
		return
	}
	respondJSON(w, http.StatusOK, pair)
}
