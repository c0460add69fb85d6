package domain

import (
	"errors"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
)

type Status string

const (
	StatusAvailable    Status = "AVAILABLE"
	StatusOutOfStock   Status = "OUT_OF_STOCK"
	StatusDiscontinued Status = "DISCONTINUED"
)

var ErrInvalidStatus = errors.New("invalid product status")

func ParseStatus(s string) (Status, error) {
	switch st := Status(s); st {
	case StatusAvailable, StatusOutOfStock, StatusDiscontinued:
		return st, nil
	}
	return "", fmt.Errorf("%w: %q", ErrInvalidStatus, s)
}

type Product struct {
	ID             string          `json:"id"`
	Name           string          `json:"name"`
	Description    string          `json:"description"`
	Category       string          `json:"category"`
	Brand          string          `json:"brand"`
	Price          decimal.Decimal `json:"price"`
	Stock          int             `json:"stock"`
	Status         Status          `json:"status"`
	Tags           []string        `json:"tags"`
	ImageURL       string          `json:"imageUrl"`
	SKU            string          `json:"sku"`
	Rating         float64         `json:"rating"`
	ReviewCount    int             `json:"reviewCount"`
	Specifications string          `json:"specifications"`
	CreatedAt      time.Time       `json:"createdAt"`
	UpdatedAt      time.Time       `json:"updatedAt"`
}

// ApplyStock sets the stock and keeps the status in line with it:
// no stock means OUT_OF_STOCK, restocking an OUT_OF_STOCK product makes it
// AVAILABLE again. DISCONTINUED is never lifted by a restock.
func (p *Product) ApplyStock(stock int, now time.Time) {
	p.Stock = stock
	switch {
	case stock <= 0:
		p.Status = StatusOutOfStock
	case p.Status == StatusOutOfStock:
		p.Status = StatusAvailable
	}
	p.UpdatedAt = now
}

// SetStatus sets any known status without looking at stock, so an operator
// can leave status and stock disagreeing.
func (p *Product) SetStatus(s string, now time.Time) error {
	st, err := ParseStatus(s)
	if err != nil {
		return err
	}
	p.Status = st
	p.UpdatedAt = now
	return nil
}

func (p *Product) SetPrice(price decimal.Decimal, now time.Time) {
	p.Price = price
	p.UpdatedAt = now
}

// InitDefaults fills what a new product must carry: id, timestamps and
// status AVAILABLE when none was given. Rating and review count already
// default to zero.
func (p *Product) InitDefaults(id string, now time.Time) {
	p.ID = id
	p.CreatedAt = now
	p.UpdatedAt = now
	if p.Status == "" {
		p.Status = StatusAvailable
	}
	if p.Tags == nil {
		p.Tags = []string{}
	}
}
