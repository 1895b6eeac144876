package accounts

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler serves the chart of accounts.
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
	r.Route("/accounts", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Get("/{id}", h.get)
		r.Get("/{id}/balance", h.balance)
		r.Post("/{id}/archive", h.archive)
	})
}

type accountRequest struct {
	Code       string `json:"code" validate:"required,max=20"`
	Name       string `json:"name" validate:"required,max=200"`
	Type       string `json:"type" validate:"required,oneof=ASSET LIABILITY EQUITY REVENUE EXPENSE"`
	IsCashBank bool   `json:"is_cash_bank"`
}

type accountResponse struct {
	ID              int64  `json:"id"`
	Code            string `json:"code"`
	Name            string `json:"name"`
	Type            string `json:"type"`
	IsSystemAccount bool   `json:"is_system_account"`
	IsCashBank      bool   `json:"is_cash_bank"`
	IsActive        bool   `json:"is_active"`
}

func toAccountResponse(a Account) accountResponse {
	return accountResponse{
		ID:              a.ID,
		Code:            a.Code,
		Name:            a.Name,
		Type:            string(a.Type),
		IsSystemAccount: a.IsSystemAccount,
		IsCashBank:      a.IsCashBank,
		IsActive:        a.IsActive,
	}
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var req accountRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	account, err := h.service.Create(r.Context(), authz, CreateInput{
		Code:       req.Code,
		Name:       req.Name,
		Type:       AccountType(req.Type),
		IsCashBank: req.IsCashBank,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAccountResponse(account))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	account, err := h.service.Get(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAccountResponse(account))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var (
		out []Account
		err error
	)
	if t := r.URL.Query().Get("type"); t != "" {
		out, err = h.service.ListByType(r.Context(), authz, AccountType(t))
	} else {
		out, err = h.service.List(r.Context(), authz)
	}
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	resp := make([]accountResponse, 0, len(out))
	for _, a := range out {
		resp = append(resp, toAccountResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"accounts": resp})
}

func (h *Handler) balance(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	var q BalanceQuery
	if v := r.URL.Query().Get("branch_id"); v != "" {
		branchID, err := strconv.ParseInt(v, 10, 64)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid branch id")
			return
		}
		q.BranchID = &branchID
	}
	if v := r.URL.Query().Get("as_of"); v != "" {
		asOf, err := time.Parse(time.DateOnly, v)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid as_of date")
			return
		}
		q.AsOf = &asOf
	}
	balance, err := h.service.Balance(r.Context(), authz, id, q)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"account_id": id, "balance": balance.StringFixed(2)})
}

func (h *Handler) archive(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid account id")
		return
	}
	if err := h.service.Archive(r.Context(), authz, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"archived": true})
}
