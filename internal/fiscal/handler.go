package fiscal

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler serves fiscal years, periods and opening balances.
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
	r.Route("/fiscal-years", func(r chi.Router) {
		r.Get("/", h.listYears)
		r.Post("/", h.createYear)
		r.Get("/current", h.currentYear)
		r.Get("/{id}", h.getYear)
		r.Get("/{id}/periods", h.listPeriods)
		r.Post("/{id}/set-current", h.setCurrent)
		r.Post("/{id}/close", h.closeYear)
		r.Get("/{id}/opening-balances", h.listOpeningBalances)
		r.Post("/{id}/opening-balances", h.createOpeningBalance)
		r.Post("/{id}/opening-balances/bulk", h.bulkCreateOpeningBalances)
		r.Post("/{id}/opening-balances/post", h.postOpeningBalances)
	})
	r.Post("/fiscal-periods/{id}/close", h.closePeriod)
}

type yearResponse struct {
	ID        int64  `json:"id"`
	Name      string `json:"name"`
	StartDate string `json:"start_date"`
	EndDate   string `json:"end_date"`
	IsCurrent bool   `json:"is_current"`
	IsClosed  bool   `json:"is_closed"`
	ClosedAt  string `json:"closed_at,omitempty"`
}

func toYearResponse(y Year) yearResponse {
	resp := yearResponse{
		ID:        y.ID,
		Name:      y.Name,
		StartDate: y.StartDate.Format(time.DateOnly),
		EndDate:   y.EndDate.Format(time.DateOnly),
		IsCurrent: y.IsCurrent,
		IsClosed:  y.IsClosed,
	}
	if y.ClosedAt != nil {
		resp.ClosedAt = y.ClosedAt.Format(time.RFC3339)
	}
	return resp
}

type periodResponse struct {
	ID           int64  `json:"id"`
	Number       int    `json:"number"`
	Name         string `json:"name"`
	StartDate    string `json:"start_date"`
	EndDate      string `json:"end_date"`
	IsAdjustment bool   `json:"is_adjustment"`
	IsClosed     bool   `json:"is_closed"`
}

func toPeriodResponse(p Period) periodResponse {
	return periodResponse{
		ID:           p.ID,
		Number:       p.Number,
		Name:         p.Name,
		StartDate:    p.StartDate.Format(time.DateOnly),
		EndDate:      p.EndDate.Format(time.DateOnly),
		IsAdjustment: p.IsAdjustment,
		IsClosed:     p.IsClosed,
	}
}

func (h *Handler) listYears(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	years, err := h.service.ListYears(r.Context(), authz)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]yearResponse, 0, len(years))
	for _, y := range years {
		out = append(out, toYearResponse(y))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"fiscal_years": out})
}

func (h *Handler) currentYear(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	year, err := h.service.GetCurrentYear(r.Context(), authz)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearResponse(year))
}

func (h *Handler) getYear(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	year, err := h.service.GetYear(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearResponse(year))
}

func (h *Handler) listPeriods(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	periods, err := h.service.ListPeriods(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"periods": out})
}

type createYearRequest struct {
	Name                 string `json:"name" validate:"required,max=100"`
	StartDate            string `json:"start_date" validate:"required,datetime=2006-01-02"`
	EndDate              string `json:"end_date" validate:"required,datetime=2006-01-02"`
	PeriodType           string `json:"period_type" validate:"required,oneof=monthly quarterly"`
	WithAdjustmentPeriod bool   `json:"with_adjustment_period"`
	SetCurrent           bool   `json:"set_current"`
}

func (h *Handler) createYear(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var req createYearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	start, err := time.Parse(time.DateOnly, req.StartDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	end, err := time.Parse(time.DateOnly, req.EndDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	year, periods, err := h.service.CreateYear(r.Context(), authz, CreateYearInput{
		Name:                 req.Name,
		StartDate:            start,
		EndDate:              end,
		PeriodType:           PeriodType(req.PeriodType),
		WithAdjustmentPeriod: req.WithAdjustmentPeriod,
		SetCurrent:           req.SetCurrent,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]periodResponse, 0, len(periods))
	for _, p := range periods {
		out = append(out, toPeriodResponse(p))
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"fiscal_year": toYearResponse(year), "periods": out})
}

func (h *Handler) setCurrent(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	year, err := h.service.SetCurrent(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toYearResponse(year))
}

type closeYearRequest struct {
	CloseIncomeSummary bool `json:"close_income_summary"`
}

func (h *Handler) closeYear(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	var req closeYearRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	result, err := h.service.CloseYear(r.Context(), authz, id, req.CloseIncomeSummary)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"fiscal_year": toYearResponse(result.Year),
		"net_income":  result.NetIncome.StringFixed(2),
		"posted":      result.Posted,
	})
}

func (h *Handler) closePeriod(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal period id")
		return
	}
	period, err := h.service.ClosePeriod(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toPeriodResponse(period))
}

type openingBalanceRequest struct {
	AccountID   int64  `json:"account_id" validate:"required,gt=0"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	EntryDate   string `json:"entry_date" validate:"required,datetime=2006-01-02"`
	Description string `json:"description" validate:"max=500"`
}

func (req openingBalanceRequest) toInput() (OpeningBalanceInput, error) {
	date, err := time.Parse(time.DateOnly, req.EntryDate)
	if err != nil {
		return OpeningBalanceInput{}, err
	}
	debit, credit := decimal.Zero, decimal.Zero
	if req.Debit != "" {
		if debit, err = decimal.NewFromString(req.Debit); err != nil {
			return OpeningBalanceInput{}, err
		}
	}
	if req.Credit != "" {
		if credit, err = decimal.NewFromString(req.Credit); err != nil {
			return OpeningBalanceInput{}, err
		}
	}
	return OpeningBalanceInput{
		AccountID:   req.AccountID,
		Debit:       debit,
		Credit:      credit,
		EntryDate:   date,
		Description: req.Description,
	}, nil
}

type openingBalanceResponse struct {
	ID          int64  `json:"id"`
	EntryNumber string `json:"entry_number"`
	EntryDate   string `json:"entry_date"`
	AccountID   int64  `json:"account_id"`
	Debit       string `json:"debit"`
	Credit      string `json:"credit"`
	Description string `json:"description,omitempty"`
	IsPosted    bool   `json:"is_posted"`
}

func toOpeningBalanceResponse(o OpeningBalance) openingBalanceResponse {
	return openingBalanceResponse{
		ID:          o.ID,
		EntryNumber: o.EntryNumber,
		EntryDate:   o.EntryDate.Format(time.DateOnly),
		AccountID:   o.AccountID,
		Debit:       o.Debit.StringFixed(2),
		Credit:      o.Credit.StringFixed(2),
		Description: o.Description,
		IsPosted:    o.IsPosted,
	}
}

func (h *Handler) listOpeningBalances(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	yearID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	balances, err := h.service.ListOpeningBalances(r.Context(), authz, yearID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]openingBalanceResponse, 0, len(balances))
	for _, o := range balances {
		out = append(out, toOpeningBalanceResponse(o))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"opening_balances": out})
}

func (h *Handler) createOpeningBalance(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	yearID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	var req openingBalanceRequest
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
	balance, err := h.service.CreateOpeningBalance(r.Context(), authz, yearID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toOpeningBalanceResponse(balance))
}

type bulkOpeningRequest struct {
	Entries []openingBalanceRequest `json:"entries" validate:"required,min=1,dive"`
}

func (h *Handler) bulkCreateOpeningBalances(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	yearID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	var req bulkOpeningRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	ins := make([]OpeningBalanceInput, 0, len(req.Entries))
	for _, entry := range req.Entries {
		in, err := entry.toInput()
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		ins = append(ins, in)
	}
	balances, err := h.service.BulkCreateOpeningBalances(r.Context(), authz, yearID, ins)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]openingBalanceResponse, 0, len(balances))
	for _, o := range balances {
		out = append(out, toOpeningBalanceResponse(o))
	}
	httpx.JSON(w, http.StatusCreated, map[string]any{"opening_balances": out})
}

func (h *Handler) postOpeningBalances(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	yearID, err := pathID(r)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid fiscal year id")
		return
	}
	posted, err := h.service.PostOpeningBalances(r.Context(), authz, yearID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"posted": posted})
}

func pathID(r *http.Request) (int64, error) {
	return strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
}
