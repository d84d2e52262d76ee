package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"strings"
	"time"

	"coopStore/entities"
	"coopStore/models"

	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// CouponRepository validates discount codes against a cart subtotal.
type CouponRepository interface {
	ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (amount decimal.Decimal, err error)
	RedeemCoupon(ctx context.Context, code string) (err error)
	CreateCoupon(ctx context.Context, cModel models.Coupon_db) (err error)
}

type CouponRepo struct {
	db     *sql.DB
	logger *zap.Logger
	now    func() time.Time
}

func NewCouponRepository(conn *sql.DB, logger *zap.Logger) (CouponRepository, error) {
	if conn == nil {
		return nil, errors.New("conn must be non-nil")
	}
	err := conn.Ping()
	if err != nil {
		return nil, err
	}
	return &CouponRepo{
		db:     conn,
		logger: logger,
		now:    time.Now,
	}, nil
}

func NormalizeCode(code string) string {
	return strings.ToUpper(strings.TrimSpace(code))
}

func (c *CouponRepo) getCoupon(ctx context.Context, code string) (cModel models.Coupon_db, exists bool, err error) {
	row := c.db.QueryRowContext(ctx, "SELECT Code, Kind, Value, MinPurchase, ExpiresAt, UsageLimit, UsedCount, Active "+
		"FROM Coupons WHERE Code = $1", code)
	err = row.Scan(&cModel.Code, &cModel.Kind, &cModel.Value, &cModel.MinPurchase,
		&cModel.ExpiresAt, &cModel.UsageLimit, &cModel.UsedCount, &cModel.Active)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		} else {
			c.logger.Error("getCoupon: query failed", zap.String("code", code), zap.Error(err))
			err = models.ErrServerError
		}
		return
	}
	exists = true
	return
}

func (c *CouponRepo) ValidateCoupon(ctx context.Context, code string, subtotal decimal.Decimal) (amount decimal.Decimal, err error) {
	code = NormalizeCode(code)
	if code == "" {
		err = fmt.Errorf("%w: coupon code is required", models.ErrInvalidCoupon)
		return
	}
	cModel, ex, err := c.getCoupon(ctx, code)
	if err != nil {
		return
	}
	if !ex || !cModel.Active {
		err = fmt.Errorf("%w: coupon %s does not exist", models.ErrInvalidCoupon, code)
		return
	}
	if cModel.ExpiresAt.Valid && !c.now().Before(cModel.ExpiresAt.Time) {
		err = fmt.Errorf("%w: coupon %s expired on %s", models.ErrCouponExpired, code, cModel.ExpiresAt.Time.Format("2006-01-02"))
		return
	}
	if cModel.UsageLimit > 0 && cModel.UsedCount >= cModel.UsageLimit {
		err = fmt.Errorf("%w: coupon %s has reached its usage limit", models.ErrInvalidCoupon, code)
		return
	}
	if subtotal.LessThan(cModel.MinPurchase) {
		err = fmt.Errorf("%w: coupon %s requires a minimum purchase of %s", models.ErrMinPurchaseNotMet, code, entities.Money(cModel.MinPurchase))
		return
	}

	switch cModel.Kind {
	case models.CouponPercentage:
		amount = subtotal.Mul(cModel.Value).Div(decimal.NewFromInt(100))
	case models.CouponFixed:
		amount = cModel.Value
	default:
		c.logger.Error("ValidateCoupon: unknown coupon kind", zap.String("code", code), zap.String("kind", cModel.Kind))
		err = fmt.Errorf("%w: coupon %s cannot be applied", models.ErrInvalidCoupon, code)
	}
	return
}

func (c *CouponRepo) RedeemCoupon(ctx context.Context, code string) (err error) {
	_, err = c.db.ExecContext(ctx, "UPDATE Coupons SET UsedCount = UsedCount + 1 WHERE Code = $1", NormalizeCode(code))
	if err != nil {
		c.logger.Error("RedeemCoupon: update failed", zap.String("code", code), zap.Error(err))
		err = models.ErrServerError
	}
	return
}

func (c *CouponRepo) CreateCoupon(ctx context.Context, cModel models.Coupon_db) (err error) {
	cModel.Code = NormalizeCode(cModel.Code)
	if !isValidId(cModel.Code) {
		c.logger.Info("CreateCoupon: code field is invalid", zap.String("code", cModel.Code))
		return models.ErrBadRequest
	}
	if cModel.Kind != models.CouponPercentage && cModel.Kind != models.CouponFixed {
		c.logger.Info("CreateCoupon: kind field is invalid", zap.String("kind", cModel.Kind))
		return models.ErrBadRequest
	}
	if !cModel.Value.IsPositive() || (cModel.Kind == models.CouponPercentage && cModel.Value.GreaterThan(decimal.NewFromInt(100))) {
		c.logger.Info("CreateCoupon: value field is invalid", zap.String("value", cModel.Value.String()))
		return models.ErrBadRequest
	}
	_, err = c.db.ExecContext(ctx, "INSERT INTO Coupons (Code, Kind, Value, MinPurchase, ExpiresAt, UsageLimit, UsedCount, Active) "+
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
		cModel.Code, cModel.Kind, cModel.Value, cModel.MinPurchase, cModel.ExpiresAt, cModel.UsageLimit, cModel.UsedCount, cModel.Active)
	if err != nil {
		c.logger.Error("CreateCoupon: insert failed", zap.String("code", cModel.Code), zap.Error(err))
		err = models.ErrServerError
	}
	return
}
