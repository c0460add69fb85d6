package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusPending Status = "PENDING"
	StatusSuccess Status = "SUCCESS"
	StatusFailed  Status = "FAILED"
)

var ErrInvalidStatus = errors.New("invalid payment status")

// ParseStatus accepts exactly PENDING, SUCCESS or FAILED.
func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusPending, StatusSuccess, StatusFailed:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

type Payment struct {
	ID        string          `json:"id"`
	OrderID   string          `json:"orderId"`
	UserID    string          `json:"userId"`
	Amount    decimal.Decimal `json:"amount"`
	Status    Status          `json:"status"`
	CreatedAt time.Time       `json:"createdAt"`
	UpdatedAt time.Time       `json:"updatedAt"`
}

// SetStatus overwrites the status and stamps UpdatedAt. Any order of
// transitions is allowed, SUCCESS back to PENDING included.
func (p *Payment) SetStatus(s string, now time.Time) error {
	st, err := ParseStatus(s)
	if err != nil {
		return err
	}
	p.Status = st
	p.UpdatedAt = now
	return nil
}
