package ledger

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/billbatista/acasinha-debts/eventlogger"
	"github.com/billbatista/acasinha-debts/httpx"
	"github.com/billbatista/acasinha-debts/middleware"
	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const dateLayout = "2006-01-02"

// AuditTrail reads back the events recorded for a debt.
type AuditTrail interface {
	GetBySubject(ctx context.Context, actorID, subjectID uuid.UUID) ([]eventlogger.Event, error)
}

type Handler struct {
	service   *Service
	audit     AuditTrail
	validator *validator.Validate
	symbol    string
	keepAlive time.Duration
	log       *slog.Logger
}

func NewHandler(service *Service, audit AuditTrail, currencySymbol string, logger *slog.Logger) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{
		service:   service,
		audit:     audit,
		validator: validator.New(),
		symbol:    currencySymbol,
		keepAlive: 30 * time.Second,
		log:       logger,
	}
}

// Routes mounts the request/response endpoints. The event stream is mounted
// separately because it must not run under a request timeout.
func (h *Handler) Routes(r chi.Router) {
	r.Get("/debts", h.list)
	r.Get("/debts/summary", h.summary)
	r.Post("/debts", h.create)
	r.Route("/debts/{debtID}", func(r chi.Router) {
		r.Get("/", h.get)
		r.Delete("/", h.deleteDebt)
		r.Get("/events", h.events)
		r.Post("/records", h.appendRecord)
		r.Put("/records/{recordID}", h.editRecord)
		r.Delete("/records/{recordID}", h.deleteRecord)
	})
}

type listQuery struct {
	Status    string `validate:"omitempty,oneof=active closed"`
	Direction string `validate:"omitempty,oneof=lent borrowed"`
}

type listResponse struct {
	Debts        []Debt          `json:"debts"`
	Total        decimal.Decimal `json:"total"`
	TotalDisplay string          `json:"total_display"`
}

func (h *Handler) listResponse(debts []Debt) listResponse {
	total := Total(debts)
	return listResponse{
		Debts:        debts,
		Total:        total,
		TotalDisplay: FormatAmount(h.symbol, total),
	}
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	q := listQuery{
		Status:    r.URL.Query().Get("status"),
		Direction: r.URL.Query().Get("direction"),
	}
	if err := h.validator.Struct(q); err != nil {
		h.fail(w, r, err)
		return
	}

	debts, err := h.service.List(r.Context(), userID, Filter{
		Status:    Status(q.Status),
		Direction: Direction(q.Direction),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}

	httpx.JSON(w, http.StatusOK, h.listResponse(debts))
}

func (h *Handler) summary(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	s, err := h.service.Summary(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, s)
}

type recordRequest struct {
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description" validate:"max=500"`
	Account     string          `json:"account" validate:"omitempty,oneof=Cash bKash Nagad Bank Others"`
	Date        string          `json:"date" validate:"omitempty,datetime=2006-01-02"`
}

func (req recordRequest) input() RecordInput {
	in := RecordInput{
		Amount:      req.Amount,
		Description: req.Description,
		Account:     Account(req.Account),
	}
	// Format already checked by the validator.
	if req.Date != "" {
		in.Date, _ = time.Parse(dateLayout, req.Date)
	}
	return in
}

type createDebtRequest struct {
	Name      string `json:"name" validate:"required,max=120"`
	Direction string `json:"direction" validate:"required,oneof=lent borrowed"`
	recordRequest
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}

	var req createDebtRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.service.Create(r.Context(), userID, req.Name, Direction(req.Direction), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	debtID, ok := h.debtID(w, r)
	if !ok {
		return
	}

	d, err := h.service.Get(r.Context(), userID, debtID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) deleteDebt(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	debtID, ok := h.debtID(w, r)
	if !ok {
		return
	}

	if err := h.service.DeleteDebt(r.Context(), userID, debtID); err != nil {
		h.fail(w, r, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) events(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	debtID, ok := h.debtID(w, r)
	if !ok {
		return
	}
	if h.audit == nil {
		httpx.JSON(w, http.StatusOK, []eventlogger.Event{})
		return
	}

	events, err := h.audit.GetBySubject(r.Context(), userID, debtID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, events)
}

type appendRecordRequest struct {
	Kind string `json:"kind" validate:"required,oneof=increase repay"`
	recordRequest
}

func (h *Handler) appendRecord(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	debtID, ok := h.debtID(w, r)
	if !ok {
		return
	}

	var req appendRecordRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.service.AppendRecord(r.Context(), userID, debtID, Kind(req.Kind), req.input())
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, d)
}

type editRecordRequest struct {
	Kind string `json:"kind" validate:"omitempty,oneof=initial increase repay"`
	recordRequest
}

func (h *Handler) editRecord(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	debtID, ok := h.debtID(w, r)
	if !ok {
		return
	}
	recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, ErrRecordNotFound)
		return
	}

	var req editRecordRequest
	if !h.decode(w, r, &req) {
		return
	}

	d, err := h.service.EditRecord(r.Context(), userID, debtID, recordID, RecordEdit{
		Kind:        Kind(req.Kind),
		RecordInput: req.input(),
	})
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

func (h *Handler) deleteRecord(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	debtID, ok := h.debtID(w, r)
	if !ok {
		return
	}
	recordID, err := uuid.Parse(chi.URLParam(r, "recordID"))
	if err != nil {
		h.fail(w, r, ErrRecordNotFound)
		return
	}

	d, err := h.service.DeleteRecord(r.Context(), userID, debtID, recordID)
	if err != nil {
		h.fail(w, r, err)
		return
	}
	httpx.JSON(w, http.StatusOK, d)
}

// Stream sends the user's full debt list as a server-sent event on connect
// and after every change.
func (h *Handler) Stream(w http.ResponseWriter, r *http.Request) {
	userID, ok := h.user(w, r)
	if !ok {
		return
	}
	flusher, ok := w.(http.Flusher)
	if !ok {
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "streaming unsupported")
		return
	}

	updates, err := h.service.Subscribe(r.Context(), userID)
	if err != nil {
		h.fail(w, r, err)
		return
	}

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	ticker := time.NewTicker(h.keepAlive)
	defer ticker.Stop()

	for {
		select {
		case debts, ok := <-updates:
			if !ok {
				return
			}
			payload, err := json.Marshal(h.listResponse(debts))
			if err != nil {
				h.log.Error("failed to encode debt list", "error", err, "user_id", userID)
				return
			}
			if _, err := fmt.Fprintf(w, "event: debts\ndata: %s\n\n", payload); err != nil {
				return
			}
			flusher.Flush()
		case <-ticker.C:
			if _, err := fmt.Fprint(w, ": ping\n\n"); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}

func (h *Handler) user(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	userID, ok := middleware.GetUserID(r.Context())
	if !ok {
		httpx.Problem(w, http.StatusUnauthorized, "Unauthorized", "authentication required")
	}
	return userID, ok
}

func (h *Handler) debtID(w http.ResponseWriter, r *http.Request) (uuid.UUID, bool) {
	id, err := uuid.Parse(chi.URLParam(r, "debtID"))
	if err != nil {
		h.fail(w, r, ErrDebtNotFound)
		return uuid.Nil, false
	}
	return id, true
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dest any) bool {
	if err := httpx.DecodeJSON(r, dest); err != nil {
		h.fail(w, r, err)
		return false
	}
	if err := h.validator.Struct(dest); err != nil {
		h.fail(w, r, err)
		return false
	}
	return true
}

func (h *Handler) fail(w http.ResponseWriter, r *http.Request, err error) {
	var verrs validator.ValidationErrors
	switch {
	case errors.As(err, &verrs):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", verrs.Error())
	case errors.Is(err, ErrValidation), errors.Is(err, httpx.ErrBadJSON):
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
	case errors.Is(err, ErrDebtNotFound):
		httpx.Problem(w, http.StatusNotFound, "Not Found", err.Error())
	case errors.Is(err, ErrRecordNotFound):
		httpx.Problem(w, http.StatusConflict, "Stale Record", err.Error())
	case errors.Is(err, ErrConflict):
		httpx.Problem(w, http.StatusConflict, "Conflict", err.Error())
	case errors.Is(err, ErrLastRecord):
		httpx.Problem(w, http.StatusUnprocessableEntity, "Last Record", err.Error())
	default:
		h.log.Error("debt request failed", "error", err, "method", r.Method, "path", r.URL.Path)
		httpx.Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}
