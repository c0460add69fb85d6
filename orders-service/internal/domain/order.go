package domain

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPendingPayment OrderStatus = "PENDING_PAYMENT"
	OrderStatusPaid           OrderStatus = "PAID"

	// OrderStatusAnomaly tags stale orders in alerts. It is never stored.
	OrderStatusAnomaly OrderStatus = "ANOMALY"
)

var (
	ErrInvalidStatus     = errors.New("unknown order status")
	ErrInvalidTransition = errors.New("illegal transition of order status")
	ErrTotalMismatch     = errors.New("total amount does not match order items")
	ErrInvalidAmount     = errors.New("amount has more than two decimal places")
)

// MoneyScale is the number of decimal places amounts are stored with.
const MoneyScale = 2

func checkAmount(field string, d decimal.Decimal) error {
	if !d.Equal(d.Truncate(MoneyScale)) {
		return fmt.Errorf("%w: %s is %s", ErrInvalidAmount, field, d)
	}
	return nil
}

func ParseOrderStatus(s string) (OrderStatus, error) {
	switch st := OrderStatus(s); st {
	case OrderStatusPendingPayment, OrderStatusPaid:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

func (s OrderStatus) String() string {
	return string(s)
}

type OrderItem struct {
	ID          int64           `json:"id,omitempty"`
	ProductID   string          `json:"productId"`
	ProductName string          `json:"productName"`
	Quantity    int             `json:"quantity"`
	UnitPrice   decimal.Decimal `json:"unitPrice"`
}

func (i OrderItem) Subtotal() decimal.Decimal {
	return i.UnitPrice.Mul(decimal.NewFromInt(int64(i.Quantity)))
}

type Order struct {
	ID              int64           `json:"id"`
	OrderID         string          `json:"orderId"`
	UserID          int64           `json:"userId"`
	TotalAmount     decimal.Decimal `json:"totalAmount"`
	OrderTime       time.Time       `json:"orderTime"`
	Status          OrderStatus     `json:"status"`
	ShippingAddress string          `json:"shippingAddress"`
	Items           []OrderItem     `json:"items"`
}

// NewBusinessID returns an id of the form ORDER-1A2B3C4D.
func NewBusinessID() string {
	return "ORDER-" + strings.ToUpper(uuid.NewString()[:8])
}

func ItemsTotal(items []OrderItem) decimal.Decimal {
	total := decimal.Zero
	for _, it := range items {
		total = total.Add(it.Subtotal())
	}
	return total
}

// ValidateAmounts rejects unit prices, and a total given without items,
// that would be rounded on storage.
func (o *Order) ValidateAmounts() error {
	for i, it := range o.Items {
		if err := checkAmount(fmt.Sprintf("items[%d].unitPrice", i), it.UnitPrice); err != nil {
			return err
		}
	}
	if len(o.Items) == 0 {
		return checkAmount("totalAmount", o.TotalAmount)
	}
	return nil
}

// Place stamps a new order: business id, time, PENDING_PAYMENT and,
// when items are present, the derived total.
func (o *Order) Place(now time.Time) {
	o.OrderID = NewBusinessID()
	o.OrderTime = now
	o.Status = OrderStatusPendingPayment
	if len(o.Items) > 0 {
		o.TotalAmount = ItemsTotal(o.Items)
	}
}

// SetTotal rejects a total that disagrees with the items.
func (o *Order) SetTotal(total decimal.Decimal) error {
	if err := checkAmount("totalAmount", total); err != nil {
		return err
	}
	if len(o.Items) > 0 && !ItemsTotal(o.Items).Equal(total) {
		return fmt.Errorf("%w: items sum to %s, got %s", ErrTotalMismatch, ItemsTotal(o.Items), total)
	}
	o.TotalAmount = total
	return nil
}

// TransitionTo applies a requested status. An order that has left
// PENDING_PAYMENT can never go back to it; any other known status is accepted.
func (o *Order) TransitionTo(requested string) error {
	next, err := ParseOrderStatus(requested)
	if err != nil {
		return err
	}
	if next == OrderStatusPendingPayment && o.Status != OrderStatusPendingPayment {
		return fmt.Errorf("%w: cannot revert order %s from %s to %s", ErrInvalidTransition, o.OrderID, o.Status, next)
	}
	o.Status = next
	return nil
}

// MarkPaid moves PENDING_PAYMENT to PAID and reports whether it did.
func (o *Order) MarkPaid() bool {
	if o.Status != OrderStatusPendingPayment {
		return false
	}
	o.Status = OrderStatusPaid
	return true
}

// IsStale reports whether the order is still unpaid and was placed before threshold.
func (o *Order) IsStale(threshold time.Time) bool {
	return o.Status == OrderStatusPendingPayment && o.OrderTime.Before(threshold)
}
