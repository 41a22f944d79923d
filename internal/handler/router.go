package handler

import (
	"net/http"
)

func NewRouter(h *Handler) http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("POST /students", h.CreateStudent)
	mux.HandleFunc("POST /wallets", h.CreateWallet)
	mux.HandleFunc("GET /wallets/{ownerType}/{ownerId}", h.GetBalance)
	mux.HandleFunc("GET /wallets/{ownerType}/{ownerId}/transactions", h.GetHistory)

	mux.HandleFunc("POST /topups", h.Topup)
	mux.HandleFunc("POST /fundings", h.FundEvent)
	mux.HandleFunc("POST /checkins/reward", h.CheckinReward)

	mux.HandleFunc("POST /redemptions", h.Redeem)
	mux.HandleFunc("POST /invoices/{id}/deliver", h.DeliverInvoice)
	mux.HandleFunc("POST /invoices/{id}/cancel", h.CancelInvoice)

	mux.HandleFunc("POST /rollbacks", h.Rollback)

	return mux
}
