package entities

import (
	"time"

	"github.com/shopspring/decimal"
)

type CartItem struct {
	Id           string          `json:"id"`
	ProductId    string          `json:"productId"`
	VariantId    string          `json:"variantId"`
	ProductName  string          `json:"productName"`
	ProductImage string          `json:"productImage"`
	VariantName  string          `json:"variantName"`
	Price        decimal.Decimal `json:"price"`
	CoopPrice    decimal.Decimal `json:"coopPrice"`
	Quantity     int             `json:"quantity"`
	Stock        int             `json:"stock"` // latest known stock for the variant
}

type Discount struct {
	Code   string          `json:"code"`
	Amount decimal.Decimal `json:"amount"`
}

type Cart struct {
	Items        []CartItem      `json:"items"`
	IsCoOpMember bool            `json:"isCoOpMember"`
	Discount     *Discount       `json:"discount,omitempty"`
	ItemCount    int             `json:"itemCount"`
	Subtotal     decimal.Decimal `json:"subtotal"`
	Tax          decimal.Decimal `json:"tax"`
	Total        decimal.Decimal `json:"total"`
	UpdatedAt    time.Time       `json:"updatedAt"`
}

// VariantInfo is what the catalog hands the cart for one product variant.
type VariantInfo struct {
	ProductId   string
	VariantId   string
	Name        string
	Image       string
	VariantName string
	Price       decimal.Decimal
	CoopPrice   decimal.Decimal
	Stock       int
}

type CheckoutStatus struct {
	IsValid bool   `json:"isValid"`
	Message string `json:"message,omitempty"`
}

type Result struct {
	Success bool   `json:"success"`
	Message string `json:"message,omitempty"`
}

type CartRequest struct {
	ProductId string `json:"productId"`
	VariantId string `json:"variantId"`
	Quantity  int    `json:"quantity"`
}

type QuantityRequest struct {
	Quantity int `json:"quantity"`
}

type DiscountRequest struct {
	Code string `json:"code"`
}

type MembershipRequest struct {
	IsCoOpMember bool `json:"isCoOpMember"`
}

// CartDisplay is the cart with every amount rounded to cents.
type CartDisplay struct {
	Items        []CartItemDisplay `json:"items"`
	IsCoOpMember bool              `json:"isCoOpMember"`
	DiscountCode string            `json:"discountCode,omitempty"`
	Discount     string            `json:"discount"`
	ItemCount    int               `json:"itemCount"`
	Subtotal     string            `json:"subtotal"`
	Tax          string            `json:"tax"`
	Total        string            `json:"total"`
}

type CartItemDisplay struct {
	Id          string `json:"id"`
	ProductName string `json:"productName"`
	VariantName string `json:"variantName"`
	Image       string `json:"productImage"`
	Quantity    int    `json:"quantity"`
	UnitPrice   string `json:"unitPrice"`
	LineTotal   string `json:"lineTotal"`
}

type Receipt struct {
	OrderNumber string      `json:"orderNumber"`
	PlacedAt    time.Time   `json:"placedAt"`
	Cart        CartDisplay `json:"cart"`
}

type OrderSummary struct {
	OrderNumber  string    `json:"orderNumber"`
	PlacedAt     time.Time `json:"placedAt"`
	Status       string    `json:"status"`
	DiscountCode string    `json:"discountCode,omitempty"`
	Total        string    `json:"total"`
}
