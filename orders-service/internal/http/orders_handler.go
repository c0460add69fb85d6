package http

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"strconv"
	"time"

	"github.com/fjod/go_shop/orders-service/internal/domain"
	"github.com/fjod/go_shop/orders-service/internal/repository"
	"github.com/fjod/go_shop/orders-service/internal/service"
	"github.com/fjod/go_shop/pkg/httpx"
	"github.com/go-chi/chi/v5"
	validatorv10 "github.com/go-playground/validator/v10"
	"github.com/shopspring/decimal"
	"github.com/sirupsen/logrus"
)

const (
	defaultAbnormalMinutes = 10
	// one leap year
	maxAbnormalMinutes = 366 * 24 * 60
)

type OrderService interface {
	GetAllOrders(ctx context.Context) ([]*domain.Order, error)
	GetOrderByOrderID(ctx context.Context, orderID string) (*domain.Order, error)
	FindOrdersByUserID(ctx context.Context, userID int64) ([]*domain.Order, error)
	CreateOrder(ctx context.Context, order *domain.Order) (*domain.Order, error)
	SimulatePayment(ctx context.Context, orderID string) (bool, error)
	UpdateOrder(ctx context.Context, orderID string, upd service.OrderUpdate) (*domain.Order, error)
	UpdateOrderStatus(ctx context.Context, orderID, newStatus string) (*domain.Order, error)
	DeleteOrder(ctx context.Context, id int64) error
	DeleteOrderByOrderID(ctx context.Context, orderID string) error
	FindLongPendingPaymentOrders(ctx context.Context, age time.Duration) ([]*domain.Order, error)
}

type OrdersHandler struct {
	svc      OrderService
	validate *validatorv10.Validate
	log      logrus.FieldLogger
}

func NewOrdersHandler(svc OrderService, log logrus.FieldLogger) *OrdersHandler {
	return &OrdersHandler{
		svc:      svc,
		validate: httpx.NewValidator(),
		log:      log,
	}
}

type OrderItemDTO struct {
	ProductID   string          `json:"productId" validate:"required"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity" validate:"gte=0"`
	UnitPrice   decimal.Decimal `json:"unitPrice" validate:"gte=0"`
}

type CreateOrderRequest struct {
	UserID          int64           `json:"userId" validate:"required"`
	TotalAmount     decimal.Decimal `json:"totalAmount" validate:"gte=0"`
	ShippingAddress string          `json:"shippingAddress"`
	Items           []OrderItemDTO  `json:"items" validate:"dive"`
}

type UpdateOrderRequest struct {
	UserID          *int64           `json:"userId"`
	TotalAmount     *decimal.Decimal `json:"totalAmount"`
	ShippingAddress *string          `json:"shippingAddress"`
	Status          *string          `json:"status"`
}

func (h *OrdersHandler) Routes(r chi.Router) {
	r.Route("/api/orders", func(r chi.Router) {
		r.Get("/", h.ListOrders)
		r.Post("/", h.CreateOrder)
		r.Get("/abnormal", h.ListAbnormalOrders)
		r.Get("/user/{userId}", h.ListOrdersByUser)
		r.Delete("/id/{id}", h.DeleteOrderByID)
		r.Get("/{orderId}", h.GetOrder)
		r.Put("/{orderId}", h.UpdateOrder)
		r.Delete("/{orderId}", h.DeleteOrder)
		r.Post("/{orderId}/pay", h.SimulatePayment)
		r.Put("/{orderId}/status/{newStatus}", h.UpdateOrderStatus)
	})
}

// GET /api/orders
func (h *OrdersHandler) ListOrders(w http.ResponseWriter, r *http.Request) {
	orders, err := h.svc.GetAllOrders(r.Context())
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, nonNil(orders))
}

// GET /api/orders/{orderId}
func (h *OrdersHandler) GetOrder(w http.ResponseWriter, r *http.Request) {
	order, err := h.svc.GetOrderByOrderID(r.Context(), chi.URLParam(r, "orderId"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, order)
}

// GET /api/orders/user/{userId}
func (h *OrdersHandler) ListOrdersByUser(w http.ResponseWriter, r *http.Request) {
	userID, err := strconv.ParseInt(chi.URLParam(r, "userId"), 10, 64)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_user_id", "userId must be an integer")
		return
	}

	orders, err := h.svc.FindOrdersByUserID(r.Context(), userID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, nonNil(orders))
}

// POST /api/orders
func (h *OrdersHandler) CreateOrder(w http.ResponseWriter, r *http.Request) {
	var req CreateOrderRequest
	if err := httpx.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}

	order := &domain.Order{
		UserID:          req.UserID,
		TotalAmount:     req.TotalAmount,
		ShippingAddress: req.ShippingAddress,
		Items:           make([]domain.OrderItem, 0, len(req.Items)),
	}
	for _, it := range req.Items {
		order.Items = append(order.Items, domain.OrderItem{
			ProductID:   it.ProductID,
			ProductName: it.ProductName,
			Quantity:    it.Quantity,
			UnitPrice:   it.UnitPrice,
		})
	}

	created, err := h.svc.CreateOrder(r.Context(), order)
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusCreated, created)
}

// POST /api/orders/{orderId}/pay
func (h *OrdersHandler) SimulatePayment(w http.ResponseWriter, r *http.Request) {
	orderID := chi.URLParam(r, "orderId")

	ok, err := h.svc.SimulatePayment(r.Context(), orderID)
	if err != nil {
		h.handleError(w, err)
		return
	}
	if !ok {
		httpx.RespondText(w, http.StatusBadRequest, fmt.Sprintf("Order %s cannot be paid or is already paid.", orderID))
		return
	}
	httpx.RespondText(w, http.StatusOK, fmt.Sprintf("Order %s payment simulated successfully.", orderID))
}

// PUT /api/orders/{orderId}
func (h *OrdersHandler) UpdateOrder(w http.ResponseWriter, r *http.Request) {
	var req UpdateOrderRequest
	if err := httpx.BindAndValidate(w, r, &req, h.validate); err != nil {
		return
	}
	if req.TotalAmount != nil && req.TotalAmount.IsNegative() {
		httpx.RespondError(w, http.StatusBadRequest, "validation_failed", "totalAmount must not be negative")
		return
	}

	updated, err := h.svc.UpdateOrder(r.Context(), chi.URLParam(r, "orderId"), service.OrderUpdate{
		UserID:          req.UserID,
		TotalAmount:     req.TotalAmount,
		ShippingAddress: req.ShippingAddress,
		Status:          req.Status,
	})
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, updated)
}

// PUT /api/orders/{orderId}/status/{newStatus}
func (h *OrdersHandler) UpdateOrderStatus(w http.ResponseWriter, r *http.Request) {
	updated, err := h.svc.UpdateOrderStatus(r.Context(), chi.URLParam(r, "orderId"), chi.URLParam(r, "newStatus"))
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, updated)
}

// DELETE /api/orders/id/{id}
func (h *OrdersHandler) DeleteOrderByID(w http.ResponseWriter, r *http.Request) {
	id, err := strconv.ParseInt(chi.URLParam(r, "id"), 10, 64)
	if err != nil {
		httpx.RespondError(w, http.StatusBadRequest, "invalid_id", "id must be an integer")
		return
	}

	if err := h.svc.DeleteOrder(r.Context(), id); err != nil {
		h.handleError(w, err)
		return
	}
	httpx.NoContent(w)
}

// DELETE /api/orders/{orderId}
func (h *OrdersHandler) DeleteOrder(w http.ResponseWriter, r *http.Request) {
	if err := h.svc.DeleteOrderByOrderID(r.Context(), chi.URLParam(r, "orderId")); err != nil {
		h.handleError(w, err)
		return
	}
	httpx.NoContent(w)
}

// GET /api/orders/abnormal?minutes=N
func (h *OrdersHandler) ListAbnormalOrders(w http.ResponseWriter, r *http.Request) {
	minutes := int64(defaultAbnormalMinutes)
	if raw := r.URL.Query().Get("minutes"); raw != "" {
		n, err := strconv.ParseInt(raw, 10, 64)
		if err != nil || n < 0 || n > maxAbnormalMinutes {
			httpx.RespondError(w, http.StatusBadRequest, "invalid_minutes",
				fmt.Sprintf("minutes must be an integer between 0 and %d", maxAbnormalMinutes))
			return
		}
		minutes = n
	}

	orders, err := h.svc.FindLongPendingPaymentOrders(r.Context(), time.Duration(minutes)*time.Minute)
	if err != nil {
		h.handleError(w, err)
		return
	}
	httpx.RespondJSON(w, http.StatusOK, nonNil(orders))
}

func (h *OrdersHandler) handleError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, repository.ErrOrderNotFound):
		httpx.RespondError(w, http.StatusNotFound, "order_not_found", err.Error())
	case errors.Is(err, domain.ErrInvalidTransition):
		httpx.RespondError(w, http.StatusBadRequest, "invalid_transition", err.Error())
	case errors.Is(err, domain.ErrInvalidStatus):
		httpx.RespondError(w, http.StatusBadRequest, "invalid_status", err.Error())
	case errors.Is(err, domain.ErrTotalMismatch):
		httpx.RespondError(w, http.StatusBadRequest, "total_mismatch", err.Error())
	case errors.Is(err, domain.ErrInvalidAmount):
		httpx.RespondError(w, http.StatusBadRequest, "invalid_amount", err.Error())
	case errors.Is(err, repository.ErrDuplicateOrderID):
		httpx.RespondError(w, http.StatusConflict, "duplicate_order_id", err.Error())
	default:
		h.log.WithError(err).Error("order request failed")
		httpx.RespondError(w, http.StatusInternalServerError, "internal_error", "internal server error")
	}
}

func nonNil(orders []*domain.Order) []*domain.Order {
	if orders == nil {
		return []*domain.Order{}
	}
	return orders
}
