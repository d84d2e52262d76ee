package repository

import (
	"context"
	"database/sql"
)

// catalogSchema is valid for both postgres and sqlite.
var catalogSchema = []string{
	`CREATE TABLE IF NOT EXISTS Products (
		Id TEXT PRIMARY KEY,
		Name TEXT NOT NULL,
		Image TEXT NOT NULL DEFAULT '',
		Available BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS Variants (
		Id TEXT NOT NULL,
		ProductId TEXT NOT NULL REFERENCES Products (Id),
		Name TEXT NOT NULL,
		Price NUMERIC NOT NULL,
		CoopPrice NUMERIC NOT NULL,
		Stock INTEGER NOT NULL DEFAULT 0,
		PRIMARY KEY (ProductId, Id)
	)`,
	`CREATE TABLE IF NOT EXISTS Coupons (
		Code TEXT PRIMARY KEY,
		Kind TEXT NOT NULL,
		Value NUMERIC NOT NULL,
		MinPurchase NUMERIC NOT NULL DEFAULT 0,
		ExpiresAt TIMESTAMP NULL,
		UsageLimit INTEGER NOT NULL DEFAULT 0,
		UsedCount INTEGER NOT NULL DEFAULT 0,
		Active BOOLEAN NOT NULL DEFAULT TRUE
	)`,
	`CREATE TABLE IF NOT EXISTS Orders (
		OrderNumber TEXT PRIMARY KEY,
		CartKey TEXT NOT NULL,
		PlacedAt TIMESTAMP NOT NULL,
		Status TEXT NOT NULL,
		IsCoOpMember BOOLEAN NOT NULL DEFAULT FALSE,
		DiscountCode TEXT NOT NULL DEFAULT '',
		Subtotal NUMERIC NOT NULL,
		Tax NUMERIC NOT NULL,
		Discount NUMERIC NOT NULL,
		Total NUMERIC NOT NULL
	)`,
	`CREATE TABLE IF NOT EXISTS OrderItems (
		OrderNumber TEXT NOT NULL REFERENCES Orders (OrderNumber),
		Position INTEGER NOT NULL,
		ItemId TEXT NOT NULL,
		ProductId TEXT NOT NULL,
		VariantId TEXT NOT NULL,
		Name TEXT NOT NULL,
		Quantity INTEGER NOT NULL,
		UnitPrice NUMERIC NOT NULL,
		PRIMARY KEY (OrderNumber, ItemId)
	)`,
}

func MigrateCatalog(ctx context.Context, db *sql.DB) error {
	for _, stmt := range catalogSchema {
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
