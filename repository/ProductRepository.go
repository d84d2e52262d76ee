package repository

import (
	"context"
	"database/sql"
	"errors"
	"strings"
	"unicode"

	"coopStore/entities"
	"coopStore/models"

	"go.uber.org/zap"
)

// ProductRepository resolves product variants for the cart. Catalog administration
// happens elsewhere; Create* exist for seeding.
type ProductRepository interface {
	GetVariant(ctx context.Context, productId, variantId string) (info entities.VariantInfo, exists bool, err error)
	CreateProduct(ctx context.Context, pModel models.Product_db) (err error)
	CreateVariant(ctx context.Context, vModel models.Variant_db) (err error)
}

type ProductRepo struct {
	db     *sql.DB
	logger *zap.Logger
}

func NewProductRepository(conn *sql.DB, logger *zap.Logger) (ProductRepository, error) {
	if conn == nil {
		return nil, errors.New("conn must be non-nil")
	}
	err := conn.Ping()
	if err != nil {
		return nil, err
	}
	return &ProductRepo{
		db:     conn,
		logger: logger,
	}, nil
}

func (p *ProductRepo) GetVariant(ctx context.Context, productId, variantId string) (info entities.VariantInfo, exists bool, err error) {
	var available bool
	row := p.db.QueryRowContext(ctx, "SELECT Products.Id, Products.Name, Products.Image, Products.Available, "+
		"Variants.Id, Variants.Name, Variants.Price, Variants.CoopPrice, Variants.Stock "+
		"FROM Variants JOIN Products ON Products.Id = Variants.ProductId "+
		"WHERE Variants.ProductId = $1 AND Variants.Id = $2", productId, variantId)
	err = row.Scan(&info.ProductId, &info.Name, &info.Image, &available,
		&info.VariantId, &info.VariantName, &info.Price, &info.CoopPrice, &info.Stock)
	if err != nil {
		if errors.Is(err, sql.ErrNoRows) {
			err = nil
		} else {
			p.logger.Error("GetVariant: query failed",
				zap.String("productId", productId), zap.String("variantId", variantId), zap.Error(err))
			err = models.ErrServerError
		}
		return
	}
	if !available {
		p.logger.Info("GetVariant: product is not available", zap.String("productId", productId))
		return entities.VariantInfo{}, false, nil
	}
	exists = true
	return
}

func (p *ProductRepo) CreateProduct(ctx context.Context, pModel models.Product_db) (err error) {
	if !isValidId(pModel.Id) {
		p.logger.Info("CreateProduct: id field is invalid", zap.String("id", pModel.Id))
		return models.ErrBadRequest
	}
	if !isValidLen(pModel.Name, 2, 60) || !isValidString(pModel.Name) {
		p.logger.Info("CreateProduct: name field is invalid", zap.String("name", pModel.Name))
		return models.ErrBadRequest
	}
	_, err = p.db.ExecContext(ctx, "INSERT INTO Products (Id, Name, Image, Available) VALUES ($1, $2, $3, $4)",
		pModel.Id, pModel.Name, pModel.Image, pModel.Available)
	if err != nil {
		p.logger.Error("CreateProduct: insert failed", zap.String("id", pModel.Id), zap.Error(err))
		err = models.ErrServerError
	}
	return
}

func (p *ProductRepo) CreateVariant(ctx context.Context, vModel models.Variant_db) (err error) {
	if !isValidId(vModel.Id) || !isValidId(vModel.ProductId) {
		p.logger.Info("CreateVariant: id fields are invalid", zap.String("id", vModel.Id), zap.String("productId", vModel.ProductId))
		return models.ErrBadRequest
	}
	if !isValidLen(vModel.Name, 1, 60) || !isValidString(vModel.Name) {
		p.logger.Info("CreateVariant: name field is invalid", zap.String("name", vModel.Name))
		return models.ErrBadRequest
	}
	if !vModel.Price.IsPositive() || vModel.CoopPrice.IsNegative() {
		p.logger.Info("CreateVariant: price fields are invalid", zap.String("id", vModel.Id))
		return models.ErrBadRequest
	}
	if vModel.Stock < 0 {
		p.logger.Info("CreateVariant: stock field is invalid", zap.String("id", vModel.Id))
		return models.ErrBadRequest
	}
	_, err = p.db.ExecContext(ctx, "INSERT INTO Variants (Id, ProductId, Name, Price, CoopPrice, Stock) VALUES ($1, $2, $3, $4, $5, $6)",
		vModel.Id, vModel.ProductId, vModel.Name, vModel.Price, vModel.CoopPrice, vModel.Stock)
	if err != nil {
		p.logger.Error("CreateVariant: insert failed", zap.String("id", vModel.Id), zap.Error(err))
		err = models.ErrServerError
	}
	return
}

func isValidId(input string) bool {
	if input == "" || len(input) > 64 {
		return false
	}
	return !strings.ContainsAny(input, ": \t\n")
}

func isValidLen(input string, minLen int, maxLen int) bool {
	inputLen := len([]rune(input))
	if inputLen < minLen || inputLen > maxLen {
		return false
	}
	return true
}

func isValidString(input string) bool {
	allowedSymbols := map[rune]bool{
		'-':  true,
		' ':  true,
		':':  true,
		'.':  true,
		',':  true,
		'"':  true,
		'\'': true,
		'&':  true,
		'(':  true,
		')':  true,
	}
	for _, char := range input {
		if !(unicode.IsLetter(char) || unicode.IsDigit(char) || allowedSymbols[char]) {
			return false
		}
	}
	return true
}
