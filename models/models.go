package models

import (
	"database/sql"
	"errors"
	"time"

	"github.com/shopspring/decimal"
)

var ErrBadRequest = errors.New("bad request")
var ErrServerError = errors.New("server error")
var ErrNotFoundError = errors.New("not found")
var ErrNotAllowed = errors.New("not acceptable")

// cart failures, returned wrapped with a human readable message
var ErrInvalidQuantity = errors.New("invalid quantity")
var ErrOutOfStock = errors.New("out of stock")
var ErrProductUnavailable = errors.New("product unavailable")
var ErrItemNotFound = errors.New("item not found")

// coupon failures
var ErrInvalidCoupon = errors.New("invalid coupon")
var ErrCouponExpired = errors.New("coupon expired")
var ErrMinPurchaseNotMet = errors.New("minimum purchase not met")

// ErrPersistenceCorrupt is logged when a stored cart cannot be decoded; it never reaches callers.
var ErrPersistenceCorrupt = errors.New("persisted cart is corrupt")

// ErrPersistenceUnavailable is returned when the cart storage rejects a write.
var ErrPersistenceUnavailable = errors.New("cart storage unavailable")

const (
	CouponPercentage = "percentage"
	CouponFixed      = "fixed"
)

const OrderPlaced = "placed"

type Product_db struct {
	Id        string
	Name      string
	Image     string
	Available bool
}

type Variant_db struct {
	Id        string
	ProductId string
	Name      string
	Price     decimal.Decimal
	CoopPrice decimal.Decimal
	Stock     int
}

type Coupon_db struct {
	Code        string
	Kind        string
	Value       decimal.Decimal
	MinPurchase decimal.Decimal
	ExpiresAt   sql.NullTime
	UsageLimit  int
	UsedCount   int
	Active      bool
}

// Order_db amounts are rounded to cents, as shown on the receipt.
type Order_db struct {
	OrderNumber  string
	CartKey      string
	PlacedAt     time.Time
	Status       string
	IsCoOpMember bool
	DiscountCode string
	Subtotal     decimal.Decimal
	Tax          decimal.Decimal
	Discount     decimal.Decimal
	Total        decimal.Decimal
}

type OrderItem_db struct {
	OrderNumber string
	ItemId      string
	ProductId   string
	VariantId   string
	Name        string
	Quantity    int
	UnitPrice   decimal.Decimal
}
