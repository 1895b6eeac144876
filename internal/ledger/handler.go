package ledger

import (
	"log/slog"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/meridian-erp/meridian-erp/internal/platform/httpx"
)

// Handler exposes the read-only ledger views: the cash book and the raw
// entry lines behind a source document.
type Handler struct {
	logger *slog.Logger
	repo   *Repository
}

func NewHandler(logger *slog.Logger, repo *Repository) *Handler {
	return &Handler{logger: logger, repo: repo}
}

// MountRoutes registers routes under the caller's prefix.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/cash-book", h.cashBook)
	r.Get("/ledger-entries/{sourceType}/{sourceID}", h.linesForSource)
}

type cashBookResponse struct {
	ID           int64  `json:"id"`
	Number       string `json:"number"`
	AccountID    int64  `json:"account_id"`
	EntryDate    string `json:"entry_date"`
	Description  string `json:"description,omitempty"`
	Reference    string `json:"reference,omitempty"`
	Amount       string `json:"amount"`
	Direction    string `json:"direction"`
	BalanceAfter string `json:"balance_after"`
	SourceType   string `json:"source_type"`
	SourceID     string `json:"source_id"`
}

func (h *Handler) cashBook(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	accountID, err := strconv.ParseInt(r.URL.Query().Get("account_id"), 10, 64)
	if err != nil || accountID <= 0 {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "account_id query parameter required")
		return
	}
	limit, offset := pageParams(r)
	entries, err := ListCashBook(r.Context(), h.repo.Pool(), authz.BusinessID, accountID, limit, offset)
	if err != nil {
		h.logger.Error("list cash book", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	out := make([]cashBookResponse, 0, len(entries))
	for _, e := range entries {
		out = append(out, cashBookResponse{
			ID:           e.ID,
			Number:       e.Number,
			AccountID:    e.AccountID,
			EntryDate:    e.EntryDate.Format(time.DateOnly),
			Description:  e.Description,
			Reference:    e.Reference,
			Amount:       e.Amount.StringFixed(2),
			Direction:    string(e.Direction),
			BalanceAfter: e.BalanceAfter.StringFixed(2),
			SourceType:   string(e.SourceType),
			SourceID:     e.SourceID.String(),
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"cash_book": out})
}

type entryResponse struct {
	ID              int64  `json:"id"`
	BranchID        int64  `json:"branch_id,omitempty"`
	TransactionDate string `json:"transaction_date"`
	Description     string `json:"description,omitempty"`
	Reference       string `json:"reference,omitempty"`
	Debit           string `json:"debit"`
	Credit          string `json:"credit"`
	AccountID       int64  `json:"account_id"`
}

func (h *Handler) linesForSource(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	sourceType := SourceType(chi.URLParam(r, "sourceType"))
	sourceID, err := uuid.Parse(chi.URLParam(r, "sourceID"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid source id")
		return
	}
	lines, err := h.repo.LinesForSource(r.Context(), authz.BusinessID, sourceType, sourceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]entryResponse, 0, len(lines))
	for _, e := range lines {
		out = append(out, entryResponse{
			ID:              e.ID,
			BranchID:        e.BranchID,
			TransactionDate: e.TransactionDate.Format(time.DateOnly),
			Description:     e.Description,
			Reference:       e.Reference,
			Debit:           e.Debit.StringFixed(2),
			Credit:          e.Credit.StringFixed(2),
			AccountID:       e.AccountID,
		})
	}
	httpx.JSON(w, http.StatusOK, map[string]any{
		"source_type": string(sourceType),
		"source_id":   sourceID.String(),
		"entries":     out,
	})
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
