package repository

import (
	"context"
	"database/sql"
	"errors"

	"coopStore/models"

	"go.uber.org/zap"
)

// OrderRepository records checked out carts.
type OrderRepository interface {
	CreateOrder(ctx context.Context, order models.Order_db, items []models.OrderItem_db) (err error)
	GetOrder(ctx context.Context, orderNumber string) (order models.Order_db, items []models.OrderItem_db, err error)
	GetCartOrders(ctx context.Context, cartKey string) (orders []models.Order_db, err error)
}

type OrderRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewOrderRepository(conn *sql.DB, logger *zap.Logger) (OrderRepository, error) {
	if conn == nil {
		return nil, errors.New("conn must be non-nil")
	}
	err := conn.Ping()
	if err != nil {
		return nil, err
	}
	return &OrderRepo{
		db:     conn,
		logger: logger,
	}, nil
}

// CreateOrder writes the order and its lines in one transaction.
func (o *OrderRepo) CreateOrder(ctx context.Context, order models.Order_db, items []models.OrderItem_db) (err error) {
	if order.OrderNumber == "" || len(items) == 0 {
		o.logger.Info("CreateOrder: order without number or lines", zap.String("orderNumber", order.OrderNumber))
		return models.ErrBadRequest
	}
	if order.Status == "" {
		order.Status = models.OrderPlaced
	}
	tx, e := o.db.BeginTx(ctx, nil)
	if e != nil {
		o.logger.Error("CreateOrder: begin failed", zap.Error(e))
		return models.ErrServerError
	}
	defer func() {
		if err != nil {
			tx.Rollback()
		}
	}()

	_, e = tx.ExecContext(ctx, "INSERT INTO Orders (OrderNumber, CartKey, PlacedAt, Status, IsCoOpMember, DiscountCode, Subtotal, Tax, Discount, Total) "+
		"VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10)",
		order.OrderNumber, order.CartKey, order.PlacedAt, order.Status, order.IsCoOpMember, order.DiscountCode,
		order.Subtotal, order.Tax, order.Discount, order.Total)
	if e != nil {
		o.logger.Error("CreateOrder: insert order failed", zap.String("orderNumber", order.OrderNumber), zap.Error(e))
		return models.ErrServerError
	}
	for i, v := range items {
		_, e = tx.ExecContext(ctx, "INSERT INTO OrderItems (OrderNumber, Position, ItemId, ProductId, VariantId, Name, Quantity, UnitPrice) "+
			"VALUES ($1, $2, $3, $4, $5, $6, $7, $8)",
			order.OrderNumber, i, v.ItemId, v.ProductId, v.VariantId, v.Name, v.Quantity, v.UnitPrice)
		if e != nil {
			o.logger.Error("CreateOrder: insert item failed", zap.String("orderNumber", order.OrderNumber), zap.String("itemId", v.ItemId), zap.Error(e))
			return models.ErrServerError
		}
	}
	if e = tx.Commit(); e != nil {
		o.logger.Error("CreateOrder: commit failed", zap.String("orderNumber", order.OrderNumber), zap.Error(e))
		return models.ErrServerError
	}
	return nil
}

const orderColumns = "OrderNumber, CartKey, PlacedAt, Status, IsCoOpMember, DiscountCode, Subtotal, Tax, Discount, Total"

type rowScanner interface {
	Scan(dest ...any) error
}

func scanOrder(row rowScanner) (order models.Order_db, err error) {
	err = row.Scan(&order.OrderNumber, &order.CartKey, &order.PlacedAt, &order.Status, &order.IsCoOpMember,
		&order.DiscountCode, &order.Subtotal, &order.Tax, &order.Discount, &order.Total)
	return
}

func (o *OrderRepo) GetOrder(ctx context.Context, orderNumber string) (order models.Order_db, items []models.OrderItem_db, err error) {
	row := o.db.QueryRowContext(ctx, "SELECT "+orderColumns+" FROM Orders WHERE OrderNumber = $1", orderNumber)
	order, err = scanOrder(row)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = models.ErrNotFoundError
		} else {
			o.logger.Error("GetOrder: query failed", zap.String("orderNumber", orderNumber), zap.Error(err))
			err = models.ErrServerError
		}
		return
	}

	rows, e := o.db.QueryContext(ctx, "SELECT OrderNumber, ItemId, ProductId, VariantId, Name, Quantity, UnitPrice "+
		"FROM OrderItems WHERE OrderNumber = $1 ORDER BY Position", orderNumber)
	if e != nil {
		o.logger.Error("GetOrder: items query failed", zap.String("orderNumber", orderNumber), zap.Error(e))
		err = models.ErrServerError
		return
	}
	defer rows.Close()
	for rows.Next() {
		var item models.OrderItem_db
		if err = rows.Scan(&item.OrderNumber, &item.ItemId, &item.ProductId, &item.VariantId, &item.Name, &item.Quantity, &item.UnitPrice); err != nil {
			o.logger.Error("GetOrder: items scan failed", zap.String("orderNumber", orderNumber), zap.Error(err))
			err = models.ErrServerError
			return
		}
		items = append(items, item)
	}
	if err = rows.Err(); err != nil {
		o.logger.Error("GetOrder: items iteration failed", zap.Error(err))
		err = models.ErrServerError
	}
	return
}

// GetCartOrders lists the orders placed from one cart key, oldest first.
func (o *OrderRepo) GetCartOrders(ctx context.Context, cartKey string) (orders []models.Order_db, err error) {
	rows, e := o.db.QueryContext(ctx, "SELECT "+orderColumns+" FROM Orders WHERE CartKey = $1 ORDER BY PlacedAt, OrderNumber", cartKey)
	if e != nil {
		o.logger.Error("GetCartOrders: query failed", zap.String("cartKey", cartKey), zap.Error(e))
		err = models.ErrServerError
		return
	}
	defer rows.Close()
	for rows.Next() {
		order, e := scanOrder(rows)
		if e != nil {
			o.logger.Error("GetCartOrders: scan failed", zap.String("cartKey", cartKey), zap.Error(e))
			err = models.ErrServerError
			return
		}
		orders = append(orders, order)
	}
	if e = rows.Err(); e != nil {
		o.logger.Error("GetCartOrders: iteration failed", zap.Error(e))
		err = models.ErrServerError
	}
	return
}
