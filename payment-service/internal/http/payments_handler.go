package http

import (
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strings"

	"github.com/fjod/go_shop/payment-service/internal/domain"
	"github.com/fjod/go_shop/payment-service/internal/repository"
	"github.com/fjod/go_shop/payment-service/internal/service"
	"github.com/fjod/go_shop/pkg/httpx"
	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const maxStatusBody = 1 << 10

type PaymentService interface {
	CreatePayment(ctx context.Context, d service.PaymentDetails) (*domain.Payment, error)
	GetPaymentByID(ctx context.Context, id string) (*domain.Payment, error)
	GetAllPayments(ctx context.Context) ([]*domain.Payment, error)
	GetPaymentsByUserID(ctx context.Context, userID string) ([]*domain.Payment, error)
	GetPaymentsByStatus(ctx context.Context, status string) ([]*domain.Payment, error)
	UpdatePayment(ctx context.Context, id string, d service.PaymentDetails) (*domain.Payment, error)
	UpdatePaymentStatus(ctx context.Context, id, status string) (*domain.Payment, error)
	DeletePayment(ctx context.Context, id string) error
}

type PaymentsHandler struct {
	svc      PaymentService
	validate *validatorv10.Validate
	log      logrus.FieldLogger
}

func NewPaymentsHandler(svc PaymentService, log logrus.FieldLogger) *PaymentsHandler {
	return &PaymentsHandler{
		svc:      svc,
		validate: httpx.NewValidator(),
		log:      log,
	}
}

type PaymentRequest struct {
	OrderID string          `json:"orderId" validate:"required"`
	UserID  string          `json:"userId"`
	Amount  decimal.Decimal `json:"amount" validate:"gte=0"`
	Status  string          `json:"status"`
}

type statusRequest struct {
	Status string `json:"status"`
}

func (h *PaymentsHandler) Routes(r chi.Router) {
	r.Route("/api/payments", func(r chi.Router) {
		r.Get("/", h.ListPayments)
		r.Post("/", h.CreatePayment)
		r.Get("/user/{userId}", h.ListPaymentsByUser)
		r.Get("/status/{status}", h.ListPaymentsByStatus)
		r.Get("/{id}", h.GetPayment)
		r.Put("/{id}", h.UpdatePayment)
		r.Patch("/{id}/status", h.UpdatePaymentStatus)
		r.Delete("/{id}", h.DeletePayment)
	})
}

// POST /api/payments
func (h *PaymentsHandler) CreatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := httpx.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}

	p, err := h.svc.CreatePayment(r.Context(), service.PaymentDetails{
		OrderID: req.OrderID,
		UserID:  req.UserID,
		Amount:  req.Amount,
		Status:  req.Status,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, p)
}

// GET /api/payments
func (h *PaymentsHandler) ListPayments(w http.ResponseWriter, r *http.Request) {
	payments, err := h.svc.GetAllPayments(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, nonNil(payments))
}

// GET /api/payments/{id}
func (h *PaymentsHandler) GetPayment(w http.ResponseWriter, r *http.Request) {
	p, err := h.svc.GetPaymentByID(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, p)
}

// GET /api/payments/user/{userId}
func (h *PaymentsHandler) ListPaymentsByUser(w http.ResponseWriter, r *http.Request) {
	payments, err := h.svc.GetPaymentsByUserID(r.Context(), chi.URLParam(r, "userId"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, nonNil(payments))
}

// GET /api/payments/status/{status}
func (h *PaymentsHandler) ListPaymentsByStatus(w http.ResponseWriter, r *http.Request) {
	payments, err := h.svc.GetPaymentsByStatus(r.Context(), chi.URLParam(r, "status"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, nonNil(payments))
}

// PUT /api/payments/{id}
func (h *PaymentsHandler) UpdatePayment(w http.ResponseWriter, r *http.Request) {
	var req PaymentRequest
	if err := httpx.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}

	p, err := h.svc.UpdatePayment(r.Context(), chi.URLParam(r, "id"), service.PaymentDetails{
		OrderID: req.OrderID,
		UserID:  req.UserID,
		Amount:  req.Amount,
		Status:  req.Status,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, p)
}

// PATCH /api/payments/{id}/status
func (h *PaymentsHandler) UpdatePaymentStatus(w http.ResponseWriter, r *http.Request) {
	status, err := readStatus(r)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_request_body", err.Error())
		return
	}

	p, err := h.svc.UpdatePaymentStatus(r.Context(), chi.URLParam(r, "id"), status)
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, p)
}

// DELETE /api/payments/{id}
func (h *PaymentsHandler) DeletePayment(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeletePayment(r.Context(), chi.URLParam(r, "id")); err != nil {
		h.handleError(w, err)
		return
	}
	httpx.NoContent(w)
}

// readStatus accepts {"status":"X"}, a JSON string "X" or the bare text X.
func readStatus(r *http.Request) (string, error) {
	raw, err := io.ReadAll(io.LimitReader(r.Body, maxStatusBody))
	if err != nil {
		return "", err
	}
	body := strings.TrimSpace(string(raw))
	if body == "" {
		return "", errors.New("status is required")
	}

	switch body[0] {
	case '{':
		var req statusRequest
		if err := json.Unmarshal([]byte(body), &req); err != nil {
			return "", err
		}
		return req.Status, nil
	case '"':
		var s string
		if err := json.Unmarshal([]byte(body), &s); err != nil {
			return "", err
		}
		return s, nil
	}
	return body, nil
}

func (h *PaymentsHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrPaymentNotFound):
		httpx.RespondError(w, http.StatusNotFound, "payment_not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidStatus):
		httpx.RespondError(w, http.StatusBadRequest, "invalid_status", err.Error())
	default:
		h.log.WithError(err).Error("payment request failed")
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func nonNil(payments []*domain.Payment) []*domain.Payment {
	if payments == nil {
		return []*domain.Payment{}
	}
	return payments
}
