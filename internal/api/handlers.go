package api

import (
	"errors"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/xtrntr/tradeproof/internal/db"
	"github.com/xtrntr/tradeproof/internal/field"
	"github.com/xtrntr/tradeproof/internal/models"
	"github.com/xtrntr/tradeproof/internal/payments"
	"github.com/xtrntr/tradeproof/internal/proof"
	"go.uber.org/zap"
)

// Handler contains dependencies for HTTP handlers
type Handler struct {
	Proof    *proof.Service
	Payments *payments.Service
	log      *zap.Logger
}

// NewHandler creates a new handler
func NewHandler(proofService *proof.Service, paymentService *payments.Service, log *zap.Logger) *Handler {
	if log == nil {
		log = zap.NewNop()
	}
	return &Handler{Proof: proofService, Payments: paymentService, log: log.Named("api")}
}

// fail maps a service error to a status code. Causes of internal errors are
// logged and never returned.
func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verr *proof.ValidationError
	switch {
	case errors.As(err, &verr):
		writeError(w, http.StatusBadRequest, "validation failed", verr.Fields...)
	case errors.Is(err, proof.ErrCommitmentUsed):
		writeError(w, http.StatusBadRequest, "commitment already used")
	case errors.Is(err, payments.ErrUnknownTier):
		writeError(w, http.StatusBadRequest, "validation failed", proof.FieldError{Field: "tier", Message: "must be one of basic, pro, premium, enterprise"})
	case errors.Is(err, payments.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, "invalid or expired token")
	case errors.Is(err, db.ErrAlreadyExists):
		writeError(w, http.StatusConflict, "payment already confirmed")
	case errors.Is(err, db.ErrNotFound):
		writeError(w, http.StatusNotFound, "not found")
	default:
		h.log.Error("request failed",
			zap.String("path", r.URL.Path),
			zap.String("request_id", middleware.GetReqID(r.Context())),
			zap.Error(err),
		)
		writeError(w, http.StatusInternalServerError, "internal error")
	}
}

type pnlResponse struct {
	Value      string `json:"value"`
	IsNegative bool   `json:"is_negative"`
}

type symbolPnLResponse struct {
	Symbol       string `json:"symbol"`
	SymbolFelt   string `json:"symbol_felt"`
	Magnitude    string `json:"magnitude"`
	IsNegative   bool   `json:"is_negative"`
	IsProfitable bool   `json:"is_profitable"`
}

// GenerateProof encodes a trade batch and returns its commitment
func (h *Handler) GenerateProof(w http.ResponseWriter, r *http.Request) {
	var req proof.GenerateRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.Proof.Generate(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	symbols := make([]symbolPnLResponse, len(res.SymbolPnLs))
	for i, s := range res.SymbolPnLs {
		symbols[i] = symbolPnLResponse{
			Symbol:       s.Name,
			SymbolFelt:   field.Decimal(s.Symbol),
			Magnitude:    s.Magnitude.String(),
			IsNegative:   s.IsNegative,
			IsProfitable: s.IsProfitable,
		}
	}

	writeData(w, http.StatusOK, map[string]interface{}{
		"commitment":   field.Decimal(res.Commitment),
		"report_hash":  field.Decimal(res.ReportHash),
		"trade_count":  res.TradeCount,
		"symbol_count": res.SymbolCount,
		"total_pnl":    pnlResponse{Value: res.TotalPnL.Value.String(), IsNegative: res.TotalPnL.IsNegative},
		"symbol_pnls":  symbols,
	})
}

// SubmitProof records a generated report on-chain
func (h *Handler) SubmitProof(w http.ResponseWriter, r *http.Request) {
	var req proof.SubmitRequest
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	res, err := h.Proof.Submit(r.Context(), req)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, map[string]interface{}{
		"report_id":        field.Decimal(res.ReportID),
		"transaction_hash": field.Hex(res.TransactionHash),
		"block_number":     res.BlockNumber,
	})
}

// GetReport returns the report count and the ledger entry for an id
func (h *Handler) GetReport(w http.ResponseWriter, r *http.Request) {
	status, err := h.Proof.Report(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusOK, map[string]interface{}{
		"report_id":     status.ReportID,
		"total_reports": strconv.FormatUint(status.TotalReports, 10),
		"report":        status.Report,
	})
}

// GetTraderStats returns a trader's on-chain aggregate
func (h *Handler) GetTraderStats(w http.ResponseWriter, r *http.Request) {
	stats, err := h.Proof.TraderStats(r.Context(), chi.URLParam(r, "address"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, statsResponse(stats))
}

func statsResponse(stats *models.TraderStats) map[string]interface{} {
	return map[string]interface{}{
		"total_reports": strconv.FormatUint(stats.TotalReports, 10),
		"total_trades":  strconv.FormatUint(stats.TotalTrades, 10),
		"total_pnl":     pnlResponse{Value: stats.TotalPnL.Value.String(), IsNegative: stats.TotalPnL.IsNegative},
	}
}

// GetTraderRegistered reports whether a trader is registered
func (h *Handler) GetTraderRegistered(w http.ResponseWriter, r *http.Request) {
	address := chi.URLParam(r, "address")
	registered, err := h.Proof.TraderRegistered(r.Context(), address)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"trader_address": address,
		"registered":     registered,
	})
}

// RegisterTrader registers a trader address with the contract
func (h *Handler) RegisterTrader(w http.ResponseWriter, r *http.Request) {
	var req struct {
		TraderAddress string `json:"trader_address"`
	}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	receipt, err := h.Proof.RegisterTrader(r.Context(), req.TraderAddress)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"transaction_hash": field.Hex(receipt.TransactionHash),
		"block_number":     receipt.BlockNumber,
	})
}

// ConfirmPayment stores a payment proof and issues an access token
func (h *Handler) ConfirmPayment(w http.ResponseWriter, r *http.Request) {
	var req struct {
		PaymentID string `json:"payment_id"`
		Tier      string `json:"tier"`
	}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	p, token, err := h.Payments.Confirm(r.Context(), req.PaymentID, req.Tier)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	writeData(w, http.StatusCreated, map[string]interface{}{
		"payment_id":   p.PaymentID,
		"tier":         p.Tier,
		"confirmed_at": p.ConfirmedAt,
		"expires_at":   p.ExpiresAt,
		"access_token": token,
	})
}

// GetPayment returns a payment proof and whether it is active
func (h *Handler) GetPayment(w http.ResponseWriter, r *http.Request) {
	status, err := h.Payments.Verify(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.fail(w, r, err)
		return
	}
	writeData(w, http.StatusOK, status)
}

// VerifyToken validates an access token and returns its claims
func (h *Handler) VerifyToken(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Token string `json:"token"`
	}
	if err := decode(w, r, &req); err != nil {
		h.fail(w, r, err)
		return
	}

	claims, err := h.Payments.ParseToken(req.Token)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	var expires time.Time
	if claims.ExpiresAt != nil {
		expires = claims.ExpiresAt.Time
	}
	writeData(w, http.StatusOK, map[string]interface{}{
		"payment_id": claims.PaymentID,
		"tier":       claims.Tier,
		"expires_at": expires,
	})
}

// Health is a liveness probe with no dependency checks
func (h *Handler) Health(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

// Ready succeeds only when the chain client can sign
func (h *Handler) Ready(w http.ResponseWriter, r *http.Request) {
	if !h.Proof.Ready() {
		writeJSON(w, http.StatusServiceUnavailable, map[string]string{"status": "not ready"})
		return
	}
	writeJSON(w, http.StatusOK, map[string]string{"status": "ready"})
}
