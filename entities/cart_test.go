package entities

import (
	"encoding/json"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func sampleCart() Cart {
	c := NewCart()
	c.Items = append(c.Items,
		CartItem{Id: ItemId("p1", "v1"), ProductId: "p1", VariantId: "v1", Price: dec("100"), CoopPrice: dec("85"), Quantity: 2, Stock: 5},
		CartItem{Id: ItemId("p2", "v1"), ProductId: "p2", VariantId: "v1", Price: dec("9.99"), CoopPrice: dec("8.49"), Quantity: 3, Stock: 10},
	)
	return c
}

func TestRecalculate(t *testing.T) {
	rate := dec("0.1")

	t.Run("regular prices", func(t *testing.T) {
		c := sampleCart()
		c.Recalculate(rate)
		assert.Equal(t, 5, c.ItemCount)
		assert.True(t, dec("229.97").Equal(c.Subtotal), c.Subtotal.String())
		assert.True(t, dec("22.997").Equal(c.Tax), c.Tax.String())
		assert.True(t, dec("252.967").Equal(c.Total), c.Total.String())
	})

	t.Run("member prices", func(t *testing.T) {
		c := sampleCart()
		c.IsCoOpMember = true
		c.Recalculate(rate)
		assert.True(t, dec("195.47").Equal(c.Subtotal), c.Subtotal.String())
		assert.True(t, dec("215.017").Equal(c.Total), c.Total.String())
	})

	t.Run("discount", func(t *testing.T) {
		c := sampleCart()
		c.Discount = &Discount{Code: "SAVE50", Amount: dec("50")}
		c.Recalculate(rate)
		assert.True(t, dec("202.967").Equal(c.Total), c.Total.String())
	})

	t.Run("total is clamped at zero", func(t *testing.T) {
		c := sampleCart()
		c.Discount = &Discount{Code: "HUGE", Amount: dec("10000")}
		c.Recalculate(rate)
		assert.True(t, c.Total.IsZero())
		assert.False(t, c.Subtotal.IsZero())
	})

	t.Run("nil items become empty", func(t *testing.T) {
		c := Cart{}
		c.Recalculate(rate)
		assert.NotNil(t, c.Items)
		assert.Equal(t, 0, c.ItemCount)
		assert.True(t, c.Total.IsZero())
	})
}

func TestDisplayRoundsOnlyAtTheEdge(t *testing.T) {
	c := NewCart()
	c.Items = append(c.Items, CartItem{Id: "a:b", Price: dec("0.335"), CoopPrice: dec("0.3"), Quantity: 3, ProductName: "Oat milk"})
	c.Recalculate(dec("0"))

	assert.True(t, dec("1.005").Equal(c.Subtotal))

	disp := c.Display()
	assert.Equal(t, "1.01", disp.Subtotal)
	assert.Equal(t, "1.01", disp.Total)
	assert.Equal(t, "0.34", disp.Items[0].UnitPrice)
	assert.Equal(t, "1.01", disp.Items[0].LineTotal)
	assert.Equal(t, "0.00", disp.Discount)
}

func TestFind(t *testing.T) {
	c := sampleCart()
	assert.Equal(t, 1, c.Find("p2:v1"))
	assert.Equal(t, -1, c.Find("nope"))
	assert.Equal(t, 0, sampleCart().Find("p1:v1"))
}

func TestIsEmpty(t *testing.T) {
	assert.True(t, NewCart().IsEmpty())
	assert.False(t, sampleCart().IsEmpty())
}

func TestCartSnapshotCarriesUpdatedAt(t *testing.T) {
	c := NewCart()
	c.UpdatedAt = time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	data, err := json.Marshal(c)
	assert.NoError(t, err)
	assert.Contains(t, string(data), `"updatedAt":"2026-05-01T12:00:00Z"`)
}
