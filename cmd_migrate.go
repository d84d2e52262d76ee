package main

import (
	"database/sql"
	"fmt"
	"os"
	"time"

	"coopStore/models"
	"coopStore/repository"

	"github.com/shopspring/decimal"
	"github.com/spf13/cobra"
	"go.uber.org/zap"
	"gopkg.in/yaml.v3"
)

var seedPath string

var migrateCmd = &cobra.Command{
	Use:   "migrate",
	Short: "Create the catalog schema and optionally load a seed file",
	Long: `Creates the Products, Variants, Coupons and Orders tables in the catalog database.

With --seed, products, variants and coupons are loaded from a YAML file:

  products:
    - id: coffee
      name: House Coffee
      variants:
        - {id: 1lb, name: 1 lb, price: "12.99", coop_price: "11.49", stock: 20}
  coupons:
    - {code: SAVE10, kind: percentage, value: "10"}`,
	Args: cobra.NoArgs,
	RunE: runMigrate,
}

func init() {
	migrateCmd.Flags().StringVar(&seedPath, "seed", "", "YAML file with products and coupons to load")
}

type seedFile struct {
	Products []seedProduct `yaml:"products"`
	Coupons  []seedCoupon  `yaml:"coupons"`
}

type seedProduct struct {
	Id        string        `yaml:"id"`
	Name      string        `yaml:"name"`
	Image     string        `yaml:"image"`
	Available *bool         `yaml:"available"`
	Variants  []seedVariant `yaml:"variants"`
}

type seedVariant struct {
	Id        string `yaml:"id"`
	Name      string `yaml:"name"`
	Price     string `yaml:"price"`
	CoopPrice string `yaml:"coop_price"`
	Stock     int    `yaml:"stock"`
}

type seedCoupon struct {
	Code        string     `yaml:"code"`
	Kind        string     `yaml:"kind"`
	Value       string     `yaml:"value"`
	MinPurchase string     `yaml:"min_purchase"`
	ExpiresAt   *time.Time `yaml:"expires_at"`
	UsageLimit  int        `yaml:"usage_limit"`
	Active      *bool      `yaml:"active"`
}

func orTrue(b *bool) bool {
	return b == nil || *b
}

func parseAmount(s string) (decimal.Decimal, error) {
	if s == "" {
		return decimal.Zero, nil
	}
	return decimal.NewFromString(s)
}

func runMigrate(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	db, err := openCatalog(ctx, cfg)
	if err != nil {
		return err
	}
	defer db.Close()

	if err = repository.MigrateCatalog(ctx, db); err != nil {
		return fmt.Errorf("failed to create catalog schema: %w", err)
	}
	logger.Info("catalog schema ready", zap.String("driver", cfg.Catalog.Driver))

	if seedPath == "" {
		return nil
	}
	return loadSeed(cmd, db, seedPath)
}

func loadSeed(cmd *cobra.Command, db *sql.DB, path string) error {
	ctx := cmd.Context()
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("failed to read seed: %w", err)
	}
	var seed seedFile
	if err = yaml.Unmarshal(data, &seed); err != nil {
		return fmt.Errorf("failed to parse seed: %w", err)
	}

	pr, err := repository.NewProductRepository(db, logger)
	if err != nil {
		return err
	}
	cr, err := repository.NewCouponRepository(db, logger)
	if err != nil {
		return err
	}

	variants := 0
	for _, p := range seed.Products {
		err = pr.CreateProduct(ctx, models.Product_db{Id: p.Id, Name: p.Name, Image: p.Image, Available: orTrue(p.Available)})
		if err != nil {
			return fmt.Errorf("product %s: %w", p.Id, err)
		}
		for _, v := range p.Variants {
			vModel := models.Variant_db{Id: v.Id, ProductId: p.Id, Name: v.Name, Stock: v.Stock}
			if vModel.Price, err = parseAmount(v.Price); err != nil {
				return fmt.Errorf("variant %s/%s price: %w", p.Id, v.Id, err)
			}
			if v.CoopPrice == "" {
				vModel.CoopPrice = vModel.Price
			} else if vModel.CoopPrice, err = parseAmount(v.CoopPrice); err != nil {
				return fmt.Errorf("variant %s/%s coop price: %w", p.Id, v.Id, err)
			}
			if err = pr.CreateVariant(ctx, vModel); err != nil {
				return fmt.Errorf("variant %s/%s: %w", p.Id, v.Id, err)
			}
			variants++
		}
	}

	for _, c := range seed.Coupons {
		cModel := models.Coupon_db{Code: c.Code, Kind: c.Kind, UsageLimit: c.UsageLimit, Active: orTrue(c.Active)}
		if cModel.Value, err = parseAmount(c.Value); err != nil {
			return fmt.Errorf("coupon %s value: %w", c.Code, err)
		}
		if cModel.MinPurchase, err = parseAmount(c.MinPurchase); err != nil {
			return fmt.Errorf("coupon %s min purchase: %w", c.Code, err)
		}
		if c.ExpiresAt != nil {
			cModel.ExpiresAt = sql.NullTime{Time: *c.ExpiresAt, Valid: true}
		}
		if err = cr.CreateCoupon(ctx, cModel); err != nil {
			return fmt.Errorf("coupon %s: %w", c.Code, err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "loaded %d products, %d variants, %d coupons\n",
		len(seed.Products), variants, len(seed.Coupons))
	return nil
}
