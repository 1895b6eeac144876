package invoicing

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

// Handler serves sales invoices, receipts and credit notes.
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
	r.Route("/sales-invoices", func(r chi.Router) {
		r.Get("/", h.listInvoices)
		r.Post("/", h.createInvoice)
		r.Get("/{id}", h.getInvoice)
		r.Get("/{id}/receipts", h.listReceipts)
		r.Post("/{id}/receipts", h.recordReceipt)
		r.Get("/{id}/credit-notes", h.listNotes)
		r.Post("/{id}/credit-notes", h.createNote)
	})
	r.Route("/credit-notes", func(r chi.Router) {
		r.Get("/{id}", h.getNote)
		r.Post("/{id}/apply", h.applyNote)
		r.Post("/{id}/void", h.voidNote)
	})
}

type invoiceLineRequest struct {
	RevenueAccountID int64  `json:"revenue_account_id" validate:"required,gt=0"`
	Description      string `json:"description" validate:"max=500"`
	Quantity         string `json:"quantity" validate:"required"`
	UnitPrice        string `json:"unit_price" validate:"required"`
}

type invoiceRequest struct {
	CustomerID            int64                `json:"customer_id" validate:"required,gt=0"`
	InvoiceDate           string               `json:"invoice_date" validate:"required,datetime=2006-01-02"`
	DueDate               string               `json:"due_date" validate:"omitempty,datetime=2006-01-02"`
	Description           string               `json:"description" validate:"max=500"`
	Reference             string               `json:"reference" validate:"max=100"`
	VATAmount             string               `json:"vat_amount"`
	Lines                 []invoiceLineRequest `json:"lines" validate:"required,min=1,dive"`
	CollectImmediately    bool                 `json:"collect_immediately"`
	ReceivedIntoAccountID int64                `json:"received_into_account_id"`
}

func (req invoiceRequest) toInput() (InvoiceInput, error) {
	invoiceDate, err := time.Parse(time.DateOnly, req.InvoiceDate)
	if err != nil {
		return InvoiceInput{}, err
	}
	dueDate := invoiceDate
	if req.DueDate != "" {
		if dueDate, err = time.Parse(time.DateOnly, req.DueDate); err != nil {
			return InvoiceInput{}, err
		}
	}
	vat := decimal.Zero
	if req.VATAmount != "" {
		if vat, err = decimal.NewFromString(req.VATAmount); err != nil {
			return InvoiceInput{}, err
		}
	}
	lines := make([]InvoiceLineInput, 0, len(req.Lines))
	for _, l := range req.Lines {
		qty, err := decimal.NewFromString(l.Quantity)
		if err != nil {
			return InvoiceInput{}, err
		}
		price, err := decimal.NewFromString(l.UnitPrice)
		if err != nil {
			return InvoiceInput{}, err
		}
		lines = append(lines, InvoiceLineInput{
			RevenueAccountID: l.RevenueAccountID,
			Description:      l.Description,
			Quantity:         qty,
			UnitPrice:        price,
		})
	}
	return InvoiceInput{
		CustomerID:            req.CustomerID,
		InvoiceDate:           invoiceDate,
		DueDate:               dueDate,
		Description:           req.Description,
		Reference:             req.Reference,
		VATAmount:             vat,
		Lines:                 lines,
		CollectImmediately:    req.CollectImmediately,
		ReceivedIntoAccountID: req.ReceivedIntoAccountID,
	}, nil
}

type invoiceLineResponse struct {
	ID               int64  `json:"id"`
	RevenueAccountID int64  `json:"revenue_account_id"`
	Description      string `json:"description,omitempty"`
	Quantity         string `json:"quantity"`
	UnitPrice        string `json:"unit_price"`
	Amount           string `json:"amount"`
	ReturnedQuantity string `json:"returned_quantity"`
}

type invoiceResponse struct {
	ID          string                `json:"id"`
	Number      string                `json:"number"`
	CustomerID  int64                 `json:"customer_id"`
	InvoiceDate string                `json:"invoice_date"`
	DueDate     string                `json:"due_date"`
	Description string                `json:"description,omitempty"`
	Reference   string                `json:"reference,omitempty"`
	SubTotal    string                `json:"sub_total"`
	VATAmount   string                `json:"vat_amount"`
	Amount      string                `json:"amount"`
	Received    string                `json:"received_amount"`
	Returned    string                `json:"returned_amount"`
	Outstanding string                `json:"outstanding"`
	Status      string                `json:"status"`
	Lines       []invoiceLineResponse `json:"lines,omitempty"`
}

func toInvoiceResponse(inv Invoice) invoiceResponse {
	resp := invoiceResponse{
		ID:          inv.ID.String(),
		Number:      inv.Number,
		CustomerID:  inv.CustomerID,
		InvoiceDate: inv.InvoiceDate.Format(time.DateOnly),
		DueDate:     inv.DueDate.Format(time.DateOnly),
		Description: inv.Description,
		Reference:   inv.Reference,
		SubTotal:    inv.SubTotal.StringFixed(2),
		VATAmount:   inv.VATAmount.StringFixed(2),
		Amount:      inv.Amount.StringFixed(2),
		Received:    inv.ReceivedAmount.StringFixed(2),
		Returned:    inv.ReturnedAmount.StringFixed(2),
		Outstanding: inv.Outstanding().StringFixed(2),
		Status:      string(inv.Status),
	}
	for _, l := range inv.Lines {
		resp.Lines = append(resp.Lines, invoiceLineResponse{
			ID:               l.ID,
			RevenueAccountID: l.RevenueAccountID,
			Description:      l.Description,
			Quantity:         l.Quantity.String(),
			UnitPrice:        l.UnitPrice.StringFixed(2),
			Amount:           l.Amount.StringFixed(2),
			ReturnedQuantity: l.ReturnedQuantity.String(),
		})
	}
	return resp
}

func (h *Handler) createInvoice(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	var req invoiceRequest
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
	invoice, err := h.service.CreateInvoice(r.Context(), authz, in)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toInvoiceResponse(invoice))
}

func (h *Handler) getInvoice(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	invoice, err := h.service.GetInvoice(r.Context(), authz, id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, toInvoiceResponse(invoice))
}

func (h *Handler) listInvoices(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	limit, offset := pageParams(r)
	invoices, err := h.service.ListInvoices(r.Context(), authz, InvoiceStatus(r.URL.Query().Get("status")), limit, offset)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]invoiceResponse, 0, len(invoices))
	for _, inv := range invoices {
		out = append(out, toInvoiceResponse(inv))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"invoices": out})
}

type receiptRequest struct {
	ReceiptDate           string `json:"receipt_date" validate:"required,datetime=2006-01-02"`
	Amount                string `json:"amount" validate:"required"`
	ReceivedIntoAccountID int64  `json:"received_into_account_id" validate:"required,gt=0"`
	Reference             string `json:"reference" validate:"max=100"`
}

type receiptResponse struct {
	ID                    string `json:"id"`
	InvoiceID             string `json:"invoice_id"`
	ReceiptDate           string `json:"receipt_date"`
	Amount                string `json:"amount"`
	ReceivedIntoAccountID int64  `json:"received_into_account_id"`
	Reference             string `json:"reference,omitempty"`
}

func toReceiptResponse(rc Receipt) receiptResponse {
	return receiptResponse{
		ID:                    rc.ID.String(),
		InvoiceID:             rc.InvoiceID.String(),
		ReceiptDate:           rc.ReceiptDate.Format(time.DateOnly),
		Amount:                rc.Amount.StringFixed(2),
		ReceivedIntoAccountID: rc.ReceivedIntoAccountID,
		Reference:             rc.Reference,
	}
}

func (h *Handler) recordReceipt(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	var req receiptRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	date, err := time.Parse(time.DateOnly, req.ReceiptDate)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	amount, err := decimal.NewFromString(req.Amount)
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", err.Error())
		return
	}
	receipt, err := h.service.RecordReceipt(r.Context(), authz, invoiceID, ReceiptInput{
		ReceiptDate:           date,
		Amount:                amount,
		ReceivedIntoAccountID: req.ReceivedIntoAccountID,
		Reference:             req.Reference,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toReceiptResponse(receipt))
}

func (h *Handler) listReceipts(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	receipts, err := h.service.ListReceipts(r.Context(), authz, invoiceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]receiptResponse, 0, len(receipts))
	for _, rc := range receipts {
		out = append(out, toReceiptResponse(rc))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"receipts": out})
}

type noteItemRequest struct {
	InvoiceLineID int64  `json:"invoice_line_id" validate:"required,gt=0"`
	Quantity      string `json:"quantity" validate:"required"`
}

type noteRequest struct {
	NoteDate string            `json:"note_date" validate:"required,datetime=2006-01-02"`
	Reason   string            `json:"reason" validate:"max=500"`
	Items    []noteItemRequest `json:"items" validate:"required,min=1,dive"`
}

type noteLineResponse struct {
	InvoiceLineID int64  `json:"invoice_line_id"`
	AccountID     int64  `json:"account_id"`
	Quantity      string `json:"quantity"`
	UnitPrice     string `json:"unit_price"`
	Amount        string `json:"amount"`
}

type noteResponse struct {
	ID           string             `json:"id"`
	Number       string             `json:"number"`
	InvoiceID    string             `json:"invoice_id"`
	NoteDate     string             `json:"note_date"`
	Reason       string             `json:"reason,omitempty"`
	Status       string             `json:"status"`
	SubTotal     string             `json:"sub_total"`
	VATAmount    string             `json:"vat_amount"`
	TotalAmount  string             `json:"total_amount"`
	RefundMethod string             `json:"refund_method"`
	Lines        []noteLineResponse `json:"lines,omitempty"`
}

func toNoteResponse(n CreditNote) noteResponse {
	resp := noteResponse{
		ID:           n.ID.String(),
		Number:       n.Number,
		InvoiceID:    n.InvoiceID.String(),
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
			InvoiceLineID: l.InvoiceLineID,
			AccountID:     l.AccountID,
			Quantity:      l.Quantity.String(),
			UnitPrice:     l.UnitPrice.StringFixed(2),
			Amount:        l.Amount.StringFixed(2),
		})
	}
	return resp
}

func (h *Handler) createNote(w http.ResponseWriter, r *http.Request) {
	authz, ok := httpx.Authorization(w, r)
	if !ok {
		return
	}
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
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
		items = append(items, ReturnItem{InvoiceLineID: item.InvoiceLineID, Quantity: qty})
	}
	note, err := h.service.CreateNote(r.Context(), authz, invoiceID, NoteInput{NoteDate: date, Reason: req.Reason, Items: items})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, toNoteResponse(note))
}

type applyRequest struct {
	RefundMethod    string `json:"refund_method" validate:"required,oneof=none customer_balance cash_refund"`
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
	invoiceID, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Bad Request", "invalid invoice id")
		return
	}
	notes, err := h.service.ListNotes(r.Context(), authz, invoiceID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	out := make([]noteResponse, 0, len(notes))
	for _, n := range notes {
		out = append(out, toNoteResponse(n))
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"credit_notes": out})
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
