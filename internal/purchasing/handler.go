package purchasing

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

// Handler serves purchase bills, payments and debit notes.
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
	r.Route("/purchase-bills", func(r chi.Router) {
		r.Get("/", h.listBills)
		r.Post("/", h.createBill)
		r.Get("/{id}", h.getBill)
		r.Get("/{id}/payments", h.listPayments)
		r.Post("/{id}/payments", h.recordPayment)
		r.Get("/{id}/debit-notes", h.listNotes)
		r.Post("/{id}/debit-notes", h.createNote)
	})
	r.Route("/debit-notes", func(r chi.Router) {
		r.Get("/{id}", h.getNote)
		r.Post("/{id}/apply", h.applyNote)
		r.Post("/{id}/void", h.voidNote)
	})
}

type billLineRequest struct {
	AccountID   int64  `json:"account_id" validate:"required,gt=0"`
	Description string `json:"description" validate:"max=500"`
	Quantity    string `json:"quantity" validate:"required"`
	UnitPrice   string `json:"unit_price" validate:"required"`
}

type billRequest struct {
	VendorID          int64             `json:"vendor_id" validate:"required,gt=0"`
	BillDate          string            `json:"bill_date" validate:"required,datetime=2006-01-02"`
	DueDate           string            `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Description       string            `json:"description" validate:"max=500"`
	Reference         string            `json:"reference" validate:"max=100"`
	VATAmount         string            `json:"vat_amount"`
	Lines             []billLineRequest `json:"lines" validate:"required,min=1,dive"`
	PayImmediately    bool              `json:"pay_immediately"`
	PaidFromAccountID int64             `json:"paid_from_account_id"`
}

func (req billRequest) toInput() (BillInput, error) {
	billDate, err := time.Parse(time.DateOnly, req.BillDate)
	if err != nil {
		return BillInput{}, err
	}
	dueDate := billDate
	if req.DueDate != "" {
		if dueDate, err = time.Parse(time.DateOnly, req.DueDate); err != nil {
			return BillInput{}, err
		}
	}
	vat := decimal.Zero
	if req.VATAmount != "" {
		if vat, err = decimal.NewFromString(req.VATAmount); err != nil {
			return BillInput{}, err
		}
	}
	lines := make([]BillLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		qty, err := decimal.NewFromString(l.Quantity)
		if err != nil {
			return BillInput{}, err
		}
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return BillInput{}, err
		}
		lines = append(lines, BillLineInput{
			AccountID:   l.AccountID,
			Description: l.Description,
			Quantity:    qty,
			UnitPrice:   price,
		})
	}
	return BillInput{
		VendorID:          req.VendorID,
		BillDate:          billDate,
		DueDate:           dueDate,
		Description:       req.Description,
		Reference:         req.Reference,
		VATAmount:         vat,
		Lines:             lines,
		PayImmediately:    req.PayImmediately,
		PaidFromAccountID: req.PaidFromAccountID,
	}, nil
}

type billLineResponse struct {
	ID               int64  `json:"id"`
	AccountID        int64  `json:"account_id"`
	Description      string `json:"description,omitempty"`
	Quantity         string `json:"quantity"`
	UnitPrice        string `json:"unit_price"`
	Amount           string `json:"amount"`
	ReturnedQuantity string `json:"returned_quantity"`
}

type billResponse struct {
	ID          string             `json:"id"`
	Number      string             `json:"number"`
	VendorID    int64              `json:"vendor_id"`
	BillDate    string             `json:"bill_date"`
	DueDate     string             `json:"due_date"`
	Description string             `json:"description,omitempty"`
	Reference   string             `json:"reference,omitempty"`
	SubTotal    string             `json:"sub_total"`
	VATAmount   string             `json:"vat_amount"`
	Amount      string             `json:"amount"`
	PaidAmount  string             `json:"paid_amount"`
	Returned    string             `json:"returned_amount"`
	Outstanding string             `json:"outstanding"`
	Status      string             `json:"status"`
	Lines       []billLineResponse `json:"lines,omitempty"`
}

func toBillResponse(b Bill) billResponse {
	resp := billResponse{
		ID:          b.ID.String(),
		Number:      b.Number,
		VendorID:    b.VendorID,
		BillDate:    b.BillDate.Format(time.DateOnly),
		DueDate:     b.DueDate.Format(time.DateOnly),
		Description: b.Description,
		Reference:   b.Reference,
		SubTotal:    b.SubTotal.StringFixed(2),
		VATAmount:   b.VATAmount.StringFixed(2),
		Amount:      b.Amount.StringFixed(2),
		PaidAmount:  b.PaidAmount.StringFixed(2),
		Returned:    b.ReturnedAmount.StringFixed(2),
		Outstanding: b.Outstanding().StringFixed(2),
		Status:      string(b.Status),
	}
	for _, l := range b.Lines {
		resp.Lines = append(resp.Lines, billLineResponse{
			ID:               l.ID,
			AccountID:        l.AccountID,
			Description:      l.Description,
			Quantity:         l.Quantity.String(),
			UnitPrice:        l.UnitPrice.StringFixed(2),
			Amount:           l.Amount.StringFixed(2),
			ReturnedQuantity: l.ReturnedQuantity.String(),
		})
	}
	return resp
}

func (h *Handler) createBill(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var req billRequest
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
	bill, err := h.service.CreateBill(r.Context(), authz, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toBillResponse(bill))
}

func (h *Handler) getBill(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	bill, err := h.service.GetBill(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toBillResponse(bill))
}

func (h *Handler) listBills(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	bills, err := h.service.ListBills(r.Context(), authz, BillStatus(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]billResponse, 0, len(bills))
	for _, b := range bills {
		out = append(out, toBillResponse(b))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"bills": out})
}

type paymentRequest struct {
	PaymentDate       string `json:"payment_date" validate:"required,datetime=2006-01-02"`
	Amount            string `json:"amount" validate:"required"`
	PaidFromAccountID int64  `json:"paid_from_account_id" validate:"required,gt=0"`
	Reference         string `json:"reference" validate:"max=100"`
}

type paymentResponse struct {
	ID                string `json:"id"`
	BillID            string `json:"bill_id"`
	PaymentDate       string `json:"payment_date"`
	Amount            string `json:"amount"`
	PaidFromAccountID int64  `json:"paid_from_account_id"`
	Reference         string `json:"reference,omitempty"`
}

func toPaymentResponse(p Payment) paymentResponse {
	return paymentResponse{
		ID:                p.ID.String(),
		BillID:            p.BillID.String(),
		PaymentDate:       p.PaymentDate.Format(time.DateOnly),
		Amount:            p.Amount.StringFixed(2),
		PaidFromAccountID: p.PaidFromAccountID,
		Reference:         p.Reference,
	}
}

func (h *Handler) recordPayment(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	var req paymentRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(time.DateOnly, req.PaymentDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	payment, err := h.service.RecordPayment(r.Context(), authz, billID, PaymentInput{
		PaymentDate:       date,
		Amount:            amount,
		PaidFromAccountID: req.PaidFromAccountID,
		Reference:         req.Reference,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toPaymentResponse(payment))
}

func (h *Handler) listPayments(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	payments, err := h.service.ListPayments(r.Context(), authz, billID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]paymentResponse, 0, len(payments))
	for _, p := range payments {
		out = append(out, toPaymentResponse(p))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"payments": out})
}

type noteItemRequest struct {
	BillLineID int64  `json:"bill_line_id" validate:"required,gt=0"`
	Quantity   string `json:"quantity" validate:"required"`
}

type noteRequest struct {
	NoteDate string            `json:"note_date" validate:"required,datetime=2006-01-02"`
	Reason   string            `json:"reason" validate:"max=500"`
	Items    []noteItemRequest `json:"items" validate:"required,min=1,dive"`
}

type noteLineResponse struct {
	BillLineID int64  `json:"bill_line_id"`
	AccountID  int64  `json:"account_id"`
	Quantity   string `json:"quantity"`
	UnitPrice  string `json:"unit_price"`
	Amount     string `json:"amount"`
}

type noteResponse struct {
	ID           string             `json:"id"`
	Number       string             `json:"number"`
	BillID       string             `json:"bill_id"`
	NoteDate     string             `json:"note_date"`
	Reason       string             `json:"reason,omitempty"`
	Status       string             `json:"status"`
	SubTotal     string             `json:"sub_total"`
	VATAmount    string             `json:"vat_amount"`
	TotalAmount  string             `json:"total_amount"`
	RefundMethod string             `json:"refund_method"`
	Lines        []noteLineResponse `json:"lines,omitempty"`
}

func toNoteResponse(n DebitNote) noteResponse {
	resp := noteResponse{
		ID:           n.ID.String(),
		Number:       n.Number,
		BillID:       n.BillID.String(),
		NoteDate:     n.NoteDate.Format(time.DateOnly),
		Reason:       n.Reason,
		Status:       string(n.Status),
		SubTotal:     n.SubTotal.StringFixed(2),
		VATAmount:    n.VATAmount.StringFixed(2),
		TotalAmount:  n.TotalAmount.StringFixed(2),
		RefundMethod: string(n.RefundMethod),
	}
	for _, l := range n.Lines {
		resp.Lines = append(resp.Lines, noteLineResponse{
			BillLineID: l.BillLineID,
			AccountID:  l.AccountID,
			Quantity:   l.Quantity.String(),
			UnitPrice:  l.UnitPrice.StringFixed(2),
			Amount:     l.Amount.StringFixed(2),
		})
	}
	return resp
}

func (h *Handler) createNote(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	var req noteRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(time.DateOnly, req.NoteDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	items := make([]ReturnItem, 0, len(req.Items))
	for _, item := range req.Items {
		qty, err := decimal.NewFromString(item.Quantity)
		if err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
		items = append(items, ReturnItem{BillLineID: item.BillLineID, Quantity: qty})
	}
	note, err := h.service.CreateNote(r.Context(), authz, billID, NoteInput{NoteDate: date, Reason: req.Reason, Items: items})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toNoteResponse(note))
}

type applyRequest struct {
	RefundMethod    string `json:"refund_method" validate:"required,oneof=none vendor_balance cash_refund"`
	RefundAccountID int64  `json:"refund_account_id"`
	RefundDate      string `json:"refund_date" validate:"omitempty,datetime=2006-01-02"`
}

func (h *Handler) applyNote(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	noteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid note id")
		return
	}
	var req applyRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	in := ApplyInput{RefundMethod: RefundMethod(req.RefundMethod), RefundAccountID: req.RefundAccountID}
	if req.RefundDate != "" {
		if in.RefundDate, err = time.Parse(time.DateOnly, req.RefundDate); err != nil {
			httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
			return
		}
	}
	note, err := h.service.ApplyNote(r.Context(), authz, noteID, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNoteResponse(note))
}

func (h *Handler) voidNote(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	noteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid note id")
		return
	}
	note, err := h.service.VoidNote(r.Context(), authz, noteID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNoteResponse(note))
}

func (h *Handler) getNote(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	noteID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid note id")
		return
	}
	note, err := h.service.GetNote(r.Context(), authz, noteID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toNoteResponse(note))
}

func (h *Handler) listNotes(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	billID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid bill id")
		return
	}
	notes, err := h.service.ListNotes(r.Context(), authz, billID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteResponse(n))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"debit_notes": out})
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
