package domain

import (
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var now = time.Date(2026, 10, 14, 12, 0, 0, 0, time.UTC)

func TestApplyStock(t *testing.T) {
	tests := []struct {
		name    string
		current Status
		stock   int
		want    Status
	}{
		{"zero from available", StatusAvailable, 0, StatusOutOfStock},
		{"negative from available", StatusAvailable, -2, StatusOutOfStock},
		{"zero from discontinued", StatusDiscontinued, 0, StatusOutOfStock},
		{"restock from out of stock", StatusOutOfStock, 5, StatusAvailable},
		{"restock keeps discontinued", StatusDiscontinued, 5, StatusDiscontinued},
		{"restock keeps available", StatusAvailable, 7, StatusAvailable},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := &Product{Status: tt.current, Stock: 3}
			p.ApplyStock(tt.stock, now)
			assert.Equal(t, tt.want, p.Status)
			assert.Equal(t, tt.stock, p.Stock)
			assert.Equal(t, now, p.UpdatedAt)
		})
	}
}

func TestApplyStock_RoundTrip(t *testing.T) {
	p := &Product{Status: StatusAvailable, Stock: 3}

	p.ApplyStock(0, now)
	assert.Equal(t, StatusOutOfStock, p.Status)

	p.ApplyStock(5, now)
	assert.Equal(t, StatusAvailable, p.Status)
}

func TestSetStatus_NoStockGuard(t *testing.T) {
	p := &Product{Status: StatusOutOfStock, Stock: 0}

	require.NoError(t, p.SetStatus("AVAILABLE", now))
	assert.Equal(t, StatusAvailable, p.Status)
	assert.Equal(t, 0, p.Stock)

	err := p.SetStatus("SOLD_OUT", now.Add(time.Minute))
	assert.ErrorIs(t, err, ErrInvalidStatus)
	assert.Equal(t, StatusAvailable, p.Status)
	assert.Equal(t, now, p.UpdatedAt)
}

func TestInitDefaults(t *testing.T) {
	p := &Product{Name: "Phone"}
	p.InitDefaults("id-1", now)

	assert.Equal(t, "id-1", p.ID)
	assert.Equal(t, StatusAvailable, p.Status)
	assert.Zero(t, p.Rating)
	assert.Zero(t, p.ReviewCount)
	assert.NotNil(t, p.Tags)
	assert.Equal(t, now, p.CreatedAt)

	kept := &Product{Status: StatusDiscontinued, Rating: 4.5}
	kept.InitDefaults("id-2", now)
	assert.Equal(t, StatusDiscontinued, kept.Status)
	assert.Equal(t, 4.5, kept.Rating)
}

func TestSetPrice(t *testing.T) {
	p := &Product{}
	p.SetPrice(decimal.RequireFromString("9.99"), now)
	assert.Equal(t, "9.99", p.Price.String())
	assert.Equal(t, now, p.UpdatedAt)
}
