package assets

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

// Handler serves fixed assets and their depreciation lifecycle.
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
	r.Route("/fixed-assets", func(r chi.Router) {
		r.Get("/", h.list)
		r.Post("/", h.create)
		r.Post("/depreciation-runs", h.runBulk)
		r.Get("/{id}", h.get)
		r.Get("/{id}/depreciation", h.listDepreciation)
		r.Post("/{id}/depreciation", h.recordDepreciation)
		r.Post("/{id}/dispose", h.dispose)
		r.Post("/{id}/write-off", h.writeOff)
	})
}

type assetRequest struct {
	Name             string `json:"name" validate:"required,max=200"`
	Description      string `json:"description" validate:"max=500"`
	AssetAccountID   int64  `json:"asset_account_id" validate:"required,gt=0"`
	AcquisitionDate  string `json:"acquisition_date" validate:"required,datetime=2006-01-02"`
	Cost             string `json:"cost" validate:"required"`
	SalvageValue     string `json:"salvage_value"`
	UsefulLifeMonths int    `json:"useful_life_months" validate:"gte=0"`
}

type assetResponse struct {
	ID                      string `json:"id"`
	Name                    string `json:"name"`
	Description             string `json:"description,omitempty"`
	AssetAccountID          int64  `json:"asset_account_id"`
	AcquisitionDate         string `json:"acquisition_date"`
	Cost                    string `json:"cost"`
	SalvageValue            string `json:"salvage_value"`
	UsefulLifeMonths        int    `json:"useful_life_months"`
	AccumulatedDepreciation string `json:"accumulated_depreciation"`
	BookValue               string `json:"book_value"`
	Status                  string `json:"status"`
	DisposalDate            string `json:"disposal_date,omitempty"`
}

func toAssetResponse(a Asset) assetResponse {
	resp := assetResponse{
		ID:                      a.ID.String(),
		Name:                    a.Name,
		Description:             a.Description,
		AssetAccountID:          a.AssetAccountID,
		AcquisitionDate:         a.AcquisitionDate.Format(time.DateOnly),
		Cost:                    a.Cost.StringFixed(2),
		SalvageValue:            a.SalvageValue.StringFixed(2),
		UsefulLifeMonths:        a.UsefulLifeMonths,
		AccumulatedDepreciation: a.AccumulatedDepreciation.StringFixed(2),
		BookValue:               a.BookValue.StringFixed(2),
		Status:                  string(a.Status),
	}
	if a.DisposalDate != nil {
		resp.DisposalDate = a.DisposalDate.Format(time.DateOnly)
	}
	return resp
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var req assetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(time.DateOnly, req.AcquisitionDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	cost, err := decimal.NewFromString(req.Cost)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	salvage := decimal.Zero
	if req.SalvageValue != "" {
		if salvage, err = decimal.NewFromString(req.SalvageValue); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
	}
	asset, err := h.service.Create(r.Context(), authz, AssetInput{
		Name:             req.Name,
		Description:      req.Description,
		AssetAccountID:   req.AssetAccountID,
		AcquisitionDate:  date,
		Cost:             cost,
		SalvageValue:     salvage,
		UsefulLifeMonths: req.UsefulLifeMonths,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toAssetResponse(asset))
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	asset, err := h.service.Get(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(asset))
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	items, err := h.service.List(r.Context(), authz, AssetStatus(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]assetResponse, 0, len(items))
	for _, a := range items {
		out = append(out, toAssetResponse(a))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"assets": out})
}

type depreciationRequest struct {
	DepreciationDate string `json:"depreciation_date" validate:"required,datetime=2006-01-02"`
	Amount           string `json:"amount" validate:"required"`
}

type depreciationResponse struct {
	ID               string `json:"id"`
	AssetID          string `json:"asset_id"`
	Number           string `json:"number"`
	DepreciationDate string `json:"depreciation_date"`
	Amount           string `json:"amount"`
}

func toDepreciationResponse(d DepreciationRecord) depreciationResponse {
	return depreciationResponse{
		ID:               d.ID.String(),
		AssetID:          d.AssetID.String(),
		Number:           d.Number,
		DepreciationDate: d.DepreciationDate.Format(time.DateOnly),
		Amount:           d.Amount.StringFixed(2),
	}
}

func (h *Handler) recordDepreciation(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	assetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	var req depreciationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(time.DateOnly, req.DepreciationDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	record, err := h.service.RecordDepreciation(r.Context(), authz, assetID, DepreciationInput{
		DepreciationDate: date,
		Amount:           amount,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toDepreciationResponse(record))
}

func (h *Handler) listDepreciation(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	assetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	records, err := h.service.ListDepreciation(r.Context(), authz, assetID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]depreciationResponse, 0, len(records))
	for _, d := range records {
		out = append(out, toDepreciationResponse(d))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"depreciation": out})
}

type bulkRunRequest struct {
	RunDate string `json:"run_date" validate:"omitempty,datetime=2006-01-02"`
}

type bulkResultResponse struct {
	AssetID string `json:"asset_id"`
	Number  string `json:"number,omitempty"`
	Amount  string `json:"amount"`
	Error   string `json:"error,omitempty"`
}

func (h *Handler) runBulk(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var req bulkRunRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	var date time.Time
	if req.RunDate != "" {
		var err error
		if date, err = time.Parse(time.DateOnly, req.RunDate); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
	}
	results, err := h.service.RunBulkDepreciation(r.Context(), authz, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]bulkResultResponse, 0, len(results))
	for _, res := range results {
		item := bulkResultResponse{
			AssetID: res.AssetID.String(),
			Number:  res.Number,
			Amount:  res.Amount.StringFixed(2),
		}
		if res.Err != nil {
			item.Error = res.Err.Error()
		}
		out = append(out, item)
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"results": out})
}

type disposalRequest struct {
	DisposalDate      string `json:"disposal_date" validate:"required,datetime=2006-01-02"`
	Proceeds          string `json:"proceeds"`
	ProceedsAccountID int64  `json:"proceeds_account_id"`
}

func (h *Handler) dispose(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	assetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	var req disposalRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(time.DateOnly, req.DisposalDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	proceeds := decimal.Zero
	if req.Proceeds != "" {
		if proceeds, err = decimal.NewFromString(req.Proceeds); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
	}
	asset, err := h.service.Dispose(r.Context(), authz, assetID, DisposalInput{
		DisposalDate:      date,
		Proceeds:          proceeds,
		ProceedsAccountID: req.ProceedsAccountID,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(asset))
}

type writeOffRequest struct {
	WriteOffDate string `json:"write_off_date" validate:"required,datetime=2006-01-02"`
}

func (h *Handler) writeOff(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	assetID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid asset id")
		return
	}
	var req writeOffRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(time.DateOnly, req.WriteOffDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	asset, err := h.service.WriteOff(r.Context(), authz, assetID, date)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toAssetResponse(asset))
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
