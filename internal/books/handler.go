package books

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/go-chi/httprate"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"

	"github.com/odyssey-erp/odyssey-books/internal/accounting"
	"github.com/odyssey-erp/odyssey-books/internal/accounting/reports"
	"github.com/odyssey-erp/odyssey-books/internal/integration"
	"github.com/odyssey-erp/odyssey-books/internal/inventory"
	"github.com/odyssey-erp/odyssey-books/internal/payroll"
	"github.com/odyssey-erp/odyssey-books/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-books/internal/shared"
)

// ActorHeader carries the acting user recorded in the audit trail.
const ActorHeader = "X-Actor"

// IdempotencyHeader lets clients retry a write without posting it twice.
const IdempotencyHeader = "Idempotency-Key"

const dateLayout = "2006-01-02"

var problemRules = []httpx.Rule{
	{Target: accounting.ErrReportingInconsistency, Status: http.StatusInternalServerError, Title: "Reporting Inconsistency", Kind: "reporting_inconsistency"},
	{Target: accounting.ErrEntryNotFound, Status: http.StatusNotFound, Title: "Entry Not Found", Kind: "entry_not_found"},
	{Target: accounting.ErrDocumentNotFound, Status: http.StatusNotFound, Title: "Document Not Found", Kind: "document_not_found"},
	{Target: inventory.ErrItemNotFound, Status: http.StatusNotFound, Title: "Item Not Found", Kind: "item_not_found"},
	{Target: accounting.ErrAlreadyVoided, Status: http.StatusConflict, Title: "Already Voided", Kind: "already_voided"},
	{Target: accounting.ErrDocumentSettled, Status: http.StatusConflict, Title: "Document Settled", Kind: "document_settled"},
	{Target: accounting.ErrDuplicateDocument, Status: http.StatusConflict, Title: "Duplicate Document", Kind: "duplicate_document"},
	{Target: accounting.ErrInvalidStatus, Status: http.StatusConflict, Title: "Invalid Status", Kind: "invalid_status"},
	{Target: accounting.ErrSequenceConflict, Status: http.StatusConflict, Title: "Sequence Conflict", Kind: "sequence_conflict"},
	{Target: inventory.ErrInsufficientStock, Status: http.StatusConflict, Title: "Insufficient Stock", Kind: "insufficient_stock"},
	{Target: inventory.ErrDuplicateItem, Status: http.StatusConflict, Title: "Duplicate Item", Kind: "duplicate_item"},
	{Target: shared.ErrIdempotencyInFlight, Status: http.StatusConflict, Title: "Request In Progress", Kind: "idempotency_in_flight"},
	{Target: shared.ErrLedgerBusy, Status: http.StatusServiceUnavailable, Title: "Ledger Busy", Kind: "ledger_busy"},
	{Target: accounting.ErrAmountMismatch, Status: http.StatusUnprocessableEntity, Title: "Amount Mismatch", Kind: "amount_mismatch"},
	{Target: accounting.ErrStructuralImbalance, Status: http.StatusUnprocessableEntity, Title: "Unbalanced Entry", Kind: "structural_imbalance"},
	{Target: accounting.ErrTooFewLines, Status: http.StatusUnprocessableEntity, Title: "Too Few Lines", Kind: "too_few_lines"},
	{Target: accounting.ErrInvalidLine, Status: http.StatusUnprocessableEntity, Title: "Invalid Line", Kind: "invalid_line"},
	{Target: accounting.ErrAccountNotFound, Status: http.StatusUnprocessableEntity, Title: "Account Not Found", Kind: "account_not_found"},
	{Target: inventory.ErrInvalidQuantity, Status: http.StatusUnprocessableEntity, Title: "Invalid Quantity", Kind: "invalid_quantity"},
	{Target: inventory.ErrInvalidUnitCost, Status: http.StatusUnprocessableEntity, Title: "Invalid Unit Cost", Kind: "invalid_unit_cost"},
	{Target: inventory.ErrValuationExceedsCarrying, Status: http.StatusUnprocessableEntity, Title: "Valuation Exceeds Carrying", Kind: "valuation_exceeds_carrying"},
	{Target: payroll.ErrInvalidFormula, Status: http.StatusUnprocessableEntity, Title: "Invalid Formula", Kind: "invalid_formula"},
	{Target: ErrUnsupportedReason, Status: http.StatusUnprocessableEntity, Title: "Unsupported Reason", Kind: "unsupported_reason"},
	{Target: context.DeadlineExceeded, Status: http.StatusGatewayTimeout, Title: "Timeout", Kind: "timeout"},
}

// IdempotencyStore replays write responses by key. *shared.IdempotencyStore
// satisfies it.
type IdempotencyStore interface {
	Begin(ctx context.Context, key string) (*shared.StoredResponse, error)
	Complete(ctx context.Context, key string, resp shared.StoredResponse) error
	Release(ctx context.Context, key string) error
}

// Handler exposes a ledger over JSON.
type Handler struct {
	logger      *slog.Logger
	books       *Books
	validator   *validator.Validate
	writeRate   int
	idempotency IdempotencyStore
}

// NewHandler constructs the books HTTP handler. writeRate caps write
// requests per minute per client; zero disables the limit.
func NewHandler(logger *slog.Logger, books *Books, writeRate int) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		logger:    logger,
		books:     books,
		validator: validator.New(),
		writeRate: writeRate,
	}
}

// WithIdempotency enables Idempotency-Key handling on write routes.
func (h *Handler) WithIdempotency(store IdempotencyStore) *Handler {
	h.idempotency = store
	return h
}

// MountRoutes registers the ledger endpoints.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Use(actorMiddleware)

	r.Get("/entries", h.handleListEntries)
	r.Get("/entries/{id}", h.handleGetEntry)
	r.Get("/items", h.handleListItems)
	r.Get("/inventory/movements", h.handleListMovements)
	r.Get("/ledger", h.handleLedger)
	r.Get("/trial-balance", h.handleTrialBalance)
	r.Get("/balance-sheet", h.handleBalanceSheet)
	r.Get("/income-statement", h.handleIncomeStatement)
	r.Get("/vat", h.handleVat)
	r.Get("/pack", h.handlePack)
	r.Get("/integrity", h.handleIntegrity)

	r.Group(func(gr chi.Router) {
		if h.writeRate > 0 {
			gr.Use(httprate.Limit(h.writeRate, time.Minute,
				httprate.WithKeyFuncs(rateLimitKey),
				httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
					httpx.Problem(w, http.StatusTooManyRequests, "Too Many Requests", "")
				}),
			))
		}
		if h.idempotency != nil {
			gr.Use(h.idempotent)
		}
		gr.Post("/sales", h.handleSale)
		gr.Post("/purchases", h.handlePurchase)
		gr.Post("/inventory/movements", h.handleMovement)
		gr.Post("/payments", h.handlePayment)
		gr.Post("/entries", h.handleManualEntry)
		gr.Post("/entries/{id}/void", h.handleVoid)
		gr.Post("/payroll", h.handlePayroll)
		gr.Post("/items", h.handleCreateItem)
	})
}

func actorMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
			r = r.WithContext(shared.ContextWithActor(r.Context(), actor))
		}
		next.ServeHTTP(w, r)
	})
}

// idempotent replays the stored response for a repeated Idempotency-Key.
// Server errors release the key so the client may retry.
func (h *Handler) idempotent(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		key := strings.TrimSpace(r.Header.Get(IdempotencyHeader))
		if key == "" {
			next.ServeHTTP(w, r)
			return
		}
		key = r.Method + " " + r.URL.Path + " " + key
		stored, err := h.idempotency.Begin(r.Context(), key)
		switch {
		case errors.Is(err, shared.ErrIdempotencyInFlight):
			httpx.RespondError(w, err, problemRules...)
			return
		case err != nil:
			h.logger.Warn("idempotency store unavailable", slog.Any("error", err))
			next.ServeHTTP(w, r)
			return
		case stored != nil:
			if stored.ContentType != "" {
				w.Header().Set("Content-Type", stored.ContentType)
			}
			w.Header().Set("Idempotent-Replayed", "true")
			w.WriteHeader(stored.Status)
			_, _ = w.Write(stored.Body)
			return
		}

		var body bytes.Buffer
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		ww.Tee(&body)
		next.ServeHTTP(ww, r)

		ctx := context.WithoutCancel(r.Context())
		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		if status >= http.StatusInternalServerError {
			if err := h.idempotency.Release(ctx, key); err != nil {
				h.logger.Warn("idempotency release", slog.Any("error", err))
			}
			return
		}
		resp := shared.StoredResponse{Status: status, ContentType: ww.Header().Get("Content-Type"), Body: body.Bytes()}
		if err := h.idempotency.Complete(ctx, key, resp); err != nil {
			h.logger.Warn("idempotency complete", slog.Any("error", err))
		}
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor := strings.TrimSpace(r.Header.Get(ActorHeader)); actor != "" {
		return "actor:" + actor, nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}

func (h *Handler) handleSale(w http.ResponseWriter, r *http.Request) {
	var sale integration.Sale
	if !h.decode(w, r, &sale) {
		return
	}
	res, err := h.books.RecordSale(r.Context(), sale)
	h.respond(w, http.StatusCreated, res, err)
}

func (h *Handler) handlePurchase(w http.ResponseWriter, r *http.Request) {
	var purchase integration.Purchase
	if !h.decode(w, r, &purchase) {
		return
	}
	res, err := h.books.RecordPurchase(r.Context(), purchase)
	h.respond(w, http.StatusCreated, res, err)
}

type movementRequest struct {
	ItemID     uuid.UUID        `json:"item_id" validate:"required"`
	Type       string           `json:"type" validate:"required,oneof=IN OUT"`
	Quantity   decimal.Decimal  `json:"quantity"`
	UnitCost   *decimal.Decimal `json:"unit_cost,omitempty"`
	Reason     string           `json:"reason" validate:"required,oneof=adjustment return opening"`
	DocumentID *uuid.UUID       `json:"document_id,omitempty"`
	Date       time.Time        `json:"date" validate:"required"`
	Memo       string           `json:"memo" validate:"max=200"`
}

func (h *Handler) handleMovement(w http.ResponseWriter, r *http.Request) {
	var req movementRequest
	if !h.decode(w, r, &req) {
		return
	}
	res, err := h.books.RecordInventoryMovement(r.Context(), inventory.MovementRequest{
		ItemID:     req.ItemID,
		Type:       inventory.MovementType(req.Type),
		Quantity:   req.Quantity,
		UnitCost:   req.UnitCost,
		Reason:     inventory.Reason(req.Reason),
		DocumentID: req.DocumentID,
		Date:       req.Date,
		Memo:       req.Memo,
	})
	h.respond(w, http.StatusCreated, res, err)
}

func (h *Handler) handlePayment(w http.ResponseWriter, r *http.Request) {
	var payment integration.Payment
	if !h.decode(w, r, &payment) {
		return
	}
	entry, err := h.books.RecordPayment(r.Context(), payment)
	h.respond(w, http.StatusCreated, entry, err)
}

func (h *Handler) handleManualEntry(w http.ResponseWriter, r *http.Request) {
	var manual integration.ManualEntry
	if !h.decode(w, r, &manual) {
		return
	}
	entry, err := h.books.PostManualEntry(r.Context(), manual)
	h.respond(w, http.StatusCreated, entry, err)
}

type voidRequest struct {
	Date *time.Time `json:"date,omitempty"`
}

func (h *Handler) handleVoid(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"id": "must be a UUID"})
		return
	}
	var req voidRequest
	if r.ContentLength != 0 && !h.decode(w, r, &req) {
		return
	}
	var date time.Time
	if req.Date != nil {
		date = *req.Date
	}
	res, err := h.books.VoidEntry(r.Context(), id, date)
	h.respond(w, http.StatusCreated, res, err)
}

type payrollResponse struct {
	Entry   accounting.JournalEntry `json:"entry"`
	Summary payroll.Summary         `json:"summary"`
}

func (h *Handler) handlePayroll(w http.ResponseWriter, r *http.Request) {
	var run payroll.Run
	if !h.decode(w, r, &run) {
		return
	}
	entry, summary, err := h.books.PostPayroll(r.Context(), run)
	h.respond(w, http.StatusCreated, payrollResponse{Entry: entry, Summary: summary}, err)
}

type itemResponse struct {
	Item    inventory.Item `json:"item"`
	Opening Result         `json:"opening"`
}

func (h *Handler) handleCreateItem(w http.ResponseWriter, r *http.Request) {
	var input inventory.CreateItemInput
	if !h.decode(w, r, &input) {
		return
	}
	item, res, err := h.books.CreateItem(r.Context(), input)
	h.respond(w, http.StatusCreated, itemResponse{Item: item, Opening: res}, err)
}

func (h *Handler) handleListEntries(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	filter := accounting.EntryFilter{From: from, To: to}
	for _, s := range splitList(q.Get("status")) {
		filter.Statuses = append(filter.Statuses, accounting.EntryStatus(strings.ToUpper(s)))
	}
	for _, o := range splitList(q.Get("origin")) {
		filter.Origins = append(filter.Origins, accounting.EntryOrigin(strings.ToUpper(o)))
	}
	if raw := q.Get("document_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"document_id": "must be a UUID"})
			return
		}
		filter.DocumentID = &id
	}
	entries, err := h.books.ListEntries(r.Context(), filter)
	h.respond(w, http.StatusOK, entries, err)
}

func (h *Handler) handleGetEntry(w http.ResponseWriter, r *http.Request) {
	id, err := uuid.Parse(chi.URLParam(r, "id"))
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"id": "must be a UUID"})
		return
	}
	entry, err := h.books.GetEntry(r.Context(), id)
	h.respond(w, http.StatusOK, entry, err)
}

func (h *Handler) handleListItems(w http.ResponseWriter, r *http.Request) {
	items, err := h.books.ListItems(r.Context())
	h.respond(w, http.StatusOK, items, err)
}

func (h *Handler) handleListMovements(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	filter := inventory.MovementFilter{From: from, To: to}
	if raw := r.URL.Query().Get("item_id"); raw != "" {
		id, err := uuid.Parse(raw)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"item_id": "must be a UUID"})
			return
		}
		filter.ItemID = &id
	}
	movements, err := h.books.ListMovements(r.Context(), filter)
	h.respond(w, http.StatusOK, movements, err)
}

func (h *Handler) handleLedger(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	opts := reports.LedgerOptions{From: from, To: to, AccountCode: q.Get("account")}
	if raw := q.Get("include_voided"); raw != "" {
		v, err := strconv.ParseBool(raw)
		if err != nil {
			httpx.ValidationProblem(w, map[string]string{"include_voided": "must be a boolean"})
			return
		}
		opts.IncludeVoided = v
	}
	views, err := h.books.GetLedgerView(r.Context(), opts)
	h.respond(w, http.StatusOK, views, err)
}

func (h *Handler) handleTrialBalance(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	q := r.URL.Query()
	tb, err := h.books.GetTrialBalance(r.Context(), reports.TrialBalanceFilter{
		From:     from,
		To:       to,
		CodeFrom: q.Get("code_from"),
		CodeTo:   q.Get("code_to"),
	})
	h.respond(w, http.StatusOK, tb, err)
}

func (h *Handler) handleBalanceSheet(w http.ResponseWriter, r *http.Request) {
	asOf, err := parseDate(r.URL.Query().Get("as_of"), true)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"as_of": err.Error()})
		return
	}
	bs, err := h.books.GetBalanceSheet(r.Context(), asOf)
	h.respond(w, http.StatusOK, bs, err)
}

func (h *Handler) handleIncomeStatement(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	pl, err := h.books.GetIncomeStatement(r.Context(), from, to)
	h.respond(w, http.StatusOK, pl, err)
}

func (h *Handler) handleVat(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	vat, err := h.books.GetVatDeclaration(r.Context(), from, to)
	h.respond(w, http.StatusOK, vat, err)
}

func (h *Handler) handlePack(w http.ResponseWriter, r *http.Request) {
	from, to, ok := h.dateRange(w, r)
	if !ok {
		return
	}
	pack, err := h.books.GetFinancialPack(r.Context(), from, to)
	h.respond(w, http.StatusOK, pack, err)
}

func (h *Handler) handleIntegrity(w http.ResponseWriter, r *http.Request) {
	report, err := h.books.VerifyIntegrity(r.Context())
	h.respond(w, http.StatusOK, report, err)
}

// decode reads and validates a JSON body, answering the request itself on
// failure.
func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			httpx.RespondError(w, fmt.Errorf("%w: %v", httpx.ErrValidation, err))
			return false
		}
		fields := make(map[string]string, len(fieldErrs))
		for _, fe := range fieldErrs {
			fields[fe.Namespace()] = fe.Tag()
		}
		httpx.ValidationProblem(w, fields)
		return false
	}
	return true
}

func (h *Handler) respond(w http.ResponseWriter, status int, body any, err error) {
	if err != nil {
		if errors.Is(err, accounting.ErrReportingInconsistency) || unmapped(err) {
			h.logger.Error("books request failed", slog.Any("error", err))
		}
		httpx.RespondError(w, err, problemRules...)
		return
	}
	httpx.JSON(w, status, body)
}

func unmapped(err error) bool {
	for _, rule := range problemRules {
		if errors.Is(err, rule.Target) {
			return false
		}
	}
	return !errors.Is(err, httpx.ErrValidation)
}

func (h *Handler) dateRange(w http.ResponseWriter, r *http.Request) (time.Time, time.Time, bool) {
	q := r.URL.Query()
	from, err := parseDate(q.Get("from"), false)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"from": err.Error()})
		return time.Time{}, time.Time{}, false
	}
	to, err := parseDate(q.Get("to"), true)
	if err != nil {
		httpx.ValidationProblem(w, map[string]string{"to": err.Error()})
		return time.Time{}, time.Time{}, false
	}
	if !from.IsZero() && !to.IsZero() && to.Before(from) {
		httpx.ValidationProblem(w, map[string]string{"to": "must not precede from"})
		return time.Time{}, time.Time{}, false
	}
	return from, to, true
}

// parseDate accepts YYYY-MM-DD or RFC3339. A bare date used as an upper
// bound covers the whole day.
func parseDate(raw string, endOfDay bool) (time.Time, error) {
	if raw == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(dateLayout, raw); err == nil {
		if endOfDay {
			return t.Add(24*time.Hour - time.Nanosecond), nil
		}
		return t, nil
	}
	t, err := time.Parse(time.RFC3339, raw)
	if err != nil {
		return time.Time{}, errors.New("must be YYYY-MM-DD or RFC3339")
	}
	return t, nil
}

func splitList(raw string) []string {
	if raw == "" {
		return nil
	}
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
