package expenses

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

// Handler serves the expense and other-income endpoints.
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
	r.Route("/expenses", func(r chi.Router) {
		r.Get("/", h.listExpenses)
		r.Post("/", h.createExpense)
		r.Get("/{id}", h.getExpense)
		r.Put("/{id}", h.updateExpense)
		r.Delete("/{id}", h.deleteExpense)
	})
	r.Route("/other-incomes", func(r chi.Router) {
		r.Get("/", h.listIncomes)
		r.Post("/", h.createIncome)
		r.Get("/{id}", h.getIncome)
		r.Put("/{id}", h.updateIncome)
		r.Delete("/{id}", h.deleteIncome)
	})
}

type expenseRequest struct {
	Date              string `json:"date" validate:"required,datetime=2006-01-02"`
	Description       string `json:"description" validate:"required,max=500"`
	Reference         string `json:"reference" validate:"max=100"`
	ExpenseAccountID  int64  `json:"expense_account_id" validate:"required,gt=0"`
	PaidFromAccountID int64  `json:"paid_from_account_id" validate:"required,gt=0"`
	SubTotal          string `json:"sub_total" validate:"required"`
	VATAmount         string `json:"vat_amount"`
}

func (req expenseRequest) toInput() (ExpenseInput, error) {
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return ExpenseInput{}, err
	}
	subTotal, err := decimal.NewFromString(req.SubTotal)
	if err != nil {
		return ExpenseInput{}, err
	}
	vat := decimal.Zero
	if req.VATAmount != "" {
		if vat, err = decimal.NewFromString(req.VATAmount); err != nil {
			return ExpenseInput{}, err
		}
	}
	return ExpenseInput{
		ExpenseDate:       date,
		Description:       req.Description,
		Reference:         req.Reference,
		ExpenseAccountID:  req.ExpenseAccountID,
		PaidFromAccountID: req.PaidFromAccountID,
		SubTotal:          subTotal,
		VATAmount:         vat,
	}, nil
}

type expenseResponse struct {
	ID                string `json:"id"`
	Number            string `json:"number"`
	Date              string `json:"date"`
	Description       string `json:"description"`
	Reference         string `json:"reference,omitempty"`
	ExpenseAccountID  int64  `json:"expense_account_id"`
	PaidFromAccountID int64  `json:"paid_from_account_id"`
	SubTotal          string `json:"sub_total"`
	VATAmount         string `json:"vat_amount"`
	Amount            string `json:"amount"`
}

func toExpenseResponse(e Expense) expenseResponse {
	return expenseResponse{
		ID:                e.ID.String(),
		Number:            e.Number,
		Date:              e.ExpenseDate.Format(time.DateOnly),
		Description:       e.Description,
		Reference:         e.Reference,
		ExpenseAccountID:  e.ExpenseAccountID,
		PaidFromAccountID: e.PaidFromAccountID,
		SubTotal:          e.SubTotal.StringFixed(2),
		VATAmount:         e.VATAmount.StringFixed(2),
		Amount:            e.Amount.StringFixed(2),
	}
}

func (h *Handler) createExpense(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	expense, err := h.service.CreateExpense(r.Context(), authz, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toExpenseResponse(expense))
}

func (h *Handler) updateExpense(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid expense id")
		return
	}
	var req expenseRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	expense, err := h.service.UpdateExpense(r.Context(), authz, id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toExpenseResponse(expense))
}

func (h *Handler) deleteExpense(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid expense id")
		return
	}
	if err := h.service.DeleteExpense(r.Context(), authz, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getExpense(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid expense id")
		return
	}
	expense, err := h.service.GetExpense(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toExpenseResponse(expense))
}

func (h *Handler) listExpenses(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	expenses, err := h.service.ListExpenses(r.Context(), authz, limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]expenseResponse, 0, len(expenses))
	for _, e := range expenses {
		out = append(out, toExpenseResponse(e))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"expenses": out})
}

type incomeRequest struct {
	Date                  string `json:"date" validate:"required,datetime=2006-01-02"`
	Description           string `json:"description" validate:"required,max=500"`
	Reference             string `json:"reference" validate:"max=100"`
	IncomeAccountID       int64  `json:"income_account_id" validate:"required,gt=0"`
	ReceivedIntoAccountID int64  `json:"received_into_account_id" validate:"required,gt=0"`
	SubTotal              string `json:"sub_total" validate:"required"`
	VATAmount             string `json:"vat_amount"`
}

func (req incomeRequest) toInput() (IncomeInput, error) {
	date, err := time.Parse(time.DateOnly, req.Date)
	if err != nil {
		return IncomeInput{}, err
	}
	subTotal, err := decimal.NewFromString(req.SubTotal)
	if err != nil {
		return IncomeInput{}, err
	}
	vat := decimal.Zero
	if req.VATAmount != "" {
		if vat, err = decimal.NewFromString(req.VATAmount); err != nil {
			return IncomeInput{}, err
		}
	}
	return IncomeInput{
		IncomeDate:            date,
		Description:           req.Description,
		Reference:             req.Reference,
		IncomeAccountID:       req.IncomeAccountID,
		ReceivedIntoAccountID: req.ReceivedIntoAccountID,
		SubTotal:              subTotal,
		VATAmount:             vat,
	}, nil
}

type incomeResponse struct {
	ID                    string `json:"id"`
	Number                string `json:"number"`
	Date                  string `json:"date"`
	Description           string `json:"description"`
	Reference             string `json:"reference,omitempty"`
	IncomeAccountID       int64  `json:"income_account_id"`
	ReceivedIntoAccountID int64  `json:"received_into_account_id"`
	SubTotal              string `json:"sub_total"`
	VATAmount             string `json:"vat_amount"`
	Amount                string `json:"amount"`
}

func toIncomeResponse(o OtherIncome) incomeResponse {
	return incomeResponse{
		ID:                    o.ID.String(),
		Number:                o.Number,
		Date:                  o.IncomeDate.Format(time.DateOnly),
		Description:           o.Description,
		Reference:             o.Reference,
		IncomeAccountID:       o.IncomeAccountID,
		ReceivedIntoAccountID: o.ReceivedIntoAccountID,
		SubTotal:              o.SubTotal.StringFixed(2),
		VATAmount:             o.VATAmount.StringFixed(2),
		Amount:                o.Amount.StringFixed(2),
	}
}

func (h *Handler) createIncome(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var req incomeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	income, err := h.service.CreateIncome(r.Context(), authz, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toIncomeResponse(income))
}

func (h *Handler) updateIncome(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid income id")
		return
	}
	var req incomeRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in, err := req.toInput()
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	income, err := h.service.UpdateIncome(r.Context(), authz, id, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toIncomeResponse(income))
}

func (h *Handler) deleteIncome(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid income id")
		return
	}
	if err := h.service.DeleteIncome(r.Context(), authz, id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) getIncome(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid income id")
		return
	}
	income, err := h.service.GetIncome(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toIncomeResponse(income))
}

func (h *Handler) listIncomes(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	incomes, err := h.service.ListIncomes(r.Context(), authz, limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]incomeResponse, 0, len(incomes))
	for _, o := range incomes {
		out = append(out, toIncomeResponse(o))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"other_incomes": out})
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
