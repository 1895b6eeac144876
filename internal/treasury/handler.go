package treasury

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler serves fund transfers and bank adjustments.
type Handler struct {
	logger   *slog.Logger
	service  *Service
	validate *validator.Validate
}

func NewHandler(logger *slog.Logger, service *Service) *Handler {
	return &Handler{logger: logger, service: service, validate: validator.New()}
}

// MountRoutes registers routes under the caller's prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Route("/fund-transfers", func(r chi.Router) {
		r.Get("/", h.listTransfers)
		r.Post("/", h.createTransfer)
		r.Get("/{id}", h.getTransfer)
	})
	r.Route("/bank-adjustments", func(r chi.Router) {
		r.Get("/", h.listAdjustments)
		r.Post("/", h.createAdjustment)
		r.Get("/{id}", h.getAdjustment)
	})
}

type transferRequest struct {
	TransferDate  string `json:"transfer_date" validate:"required,datetime=2006-01-02"`
	FromAccountID int64  `json:"from_account_id" validate:"required,gt=0"`
	ToAccountID   int64  `json:"to_account_id" validate:"required,gt=0"`
	Amount        string `json:"amount" validate:"required"`
	Description   string `json:"description" validate:"max=500"`
	Reference     string `json:"reference" validate:"max=100"`
}

type transferResponse struct {
	ID            string `json:"id"`
	Number        string `json:"number"`
	TransferDate  string `json:"transfer_date"`
	FromAccountID int64  `json:"from_account_id"`
	ToAccountID   int64  `json:"to_account_id"`
	Amount        string `json:"amount"`
	Description   string `json:"description,omitempty"`
	Reference     string `json:"reference,omitempty"`
}

func toTransferResponse(t FundTransfer) transferResponse {
	return transferResponse{
		ID:            t.ID.String(),
		Number:        t.Number,
		TransferDate:  t.TransferDate.Format(time.DateOnly),
		FromAccountID: t.FromAccountID,
		ToAccountID:   t.ToAccountID,
		Amount:        t.Amount.StringFixed(2),
		Description:   t.Description,
		Reference:     t.Reference,
	}
}

func (h *Handler) createTransfer(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var req transferRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(time.DateOnly, req.TransferDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	transfer, err := h.service.Transfer(r.Context(), authz, TransferInput{
		TransferDate:  date,
		FromAccountID: req.FromAccountID,
		ToAccountID:   req.ToAccountID,
		Amount:        amount,
		Description:   req.Description,
		Reference:     req.Reference,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toTransferResponse(transfer))
}

func (h *Handler) getTransfer(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid transfer id")
		return
	}
	transfer, err := h.service.GetTransfer(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toTransferResponse(transfer))
}

func (h *Handler) listTransfers(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	transfers, err := h.service.ListTransfers(r.Context(), authz, limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]transferResponse, 0, len(transfers))
	for _, t := range transfers {
		out = append(out, toTransferResponse(t))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fund_transfers": out})
}

type adjustmentRequest struct {
	AdjustmentDate string `json:"adjustment_date" validate:"required,datetime=2006-01-02"`
	BankAccountID  int64  `json:"bank_account_id" validate:"required,gt=0"`
	Type           string `json:"type" validate:"required,oneof=bank_charge interest error_correction other"`
	Direction      string `json:"direction" validate:"required,oneof=increase decrease"`
	Amount         string `json:"amount" validate:"required"`
	Description    string `json:"description" validate:"max=500"`
	Reference      string `json:"reference" validate:"max=100"`
}

type adjustmentResponse struct {
	ID             string `json:"id"`
	Number         string `json:"number"`
	AdjustmentDate string `json:"adjustment_date"`
	BankAccountID  int64  `json:"bank_account_id"`
	Type           string `json:"type"`
	Direction      string `json:"direction"`
	Amount         string `json:"amount"`
	Description    string `json:"description,omitempty"`
	Reference      string `json:"reference,omitempty"`
}

func toAdjustmentResponse(a BankAdjustment) adjustmentResponse {
	return adjustmentResponse{
		ID:             a.ID.String(),
		Number:         a.Number,
		AdjustmentDate: a.AdjustmentDate.Format(time.DateOnly),
		BankAccountID:  a.BankAccountID,
		Type:           string(a.Type),
		Direction:      string(a.Direction),
		Amount:         a.Amount.StringFixed(2),
		Description:    a.Description,
		Reference:      a.Reference,
	}
}

func (h *Handler) createAdjustment(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var req adjustmentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(time.DateOnly, req.AdjustmentDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	adjustment, err := h.service.CreateAdjustment(r.Context(), authz, AdjustmentInput{
		AdjustmentDate: date,
		BankAccountID:  req.BankAccountID,
		Type:           AdjustmentType(req.Type),
		Direction:      AdjustmentDirection(req.Direction),
		Amount:         amount,
		Description:    req.Description,
		Reference:      req.Reference,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAdjustmentResponse(adjustment))
}

func (h *Handler) getAdjustment(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid adjustment id")
		return
	}
	adjustment, err := h.service.GetAdjustment(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAdjustmentResponse(adjustment))
}

func (h *Handler) listAdjustments(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	bankAccountID, _ := strconv.ParseInt(r.URL.Query().Get("bank_account_id"), 10, 64)
	adjustments, err := h.service.ListAdjustments(r.Context(), authz, bankAccountID, limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]adjustmentResponse, 0, len(adjustments))
	for _, a := range adjustments {
		out = append(out, toAdjustmentResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bank_adjustments": out})
}

func pageParams(r *http.Request) (limit, offset int) {
	limit = 50
	if v, err := strconv.Atoi(r.URL.Query().Get("limit")); err == nil && v > 0 && v <= 200 {
		limit = v
	}
	if v, err := strconv.Atoi(r.URL.Query().Get("offset")); err == nil && v > 0 {
		offset = v
	}
	return limit, offset
}
