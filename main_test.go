package main

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"testing"

	"coopStore/config"
	"coopStore/entities"
	"coopStore/events"
	"coopStore/models"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

const testSeed = `
products:
  - id: coffee
    name: House Coffee
    image: /img/coffee.png
    variants:
      - {id: 1lb, name: 1 lb, price: "12.99", coop_price: "11.49", stock: 20}
  - id: tea
    name: Green Tea
    available: false
    variants:
      - {id: box, name: Box, price: "5"}
coupons:
  - {code: save10, kind: percentage, value: "10"}
`

func setupWorkspace(t *testing.T) string {
	t.Helper()
	for _, name := range []string{"STORAGE_BACKEND", "CART_KEY", "REDIS_HOST", "REDIS_PORT",
		"DATABASE_HOST", "CATALOG_DRIVER", "CATALOG_DSN", "TAX_RATE", "HTTP_ADDR", "LOG_LEVEL"} {
		t.Setenv(name, "")
	}
	ws := t.TempDir()
	body := "storage:\n" +
		"  backend: file\n" +
		"  dir: " + filepath.Join(ws, "carts") + "\n" +
		"catalog:\n" +
		"  driver: sqlite3\n" +
		"  dsn: " + filepath.Join(ws, "catalog.db") + "\n" +
		"logging:\n" +
		"  level: error\n"
	path := filepath.Join(ws, "coopstore.yaml")
	require.NoError(t, os.WriteFile(path, []byte(body), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "seed.yaml"), []byte(testSeed), 0o644))
	return ws
}

// run executes the root command once and returns what it printed.
func run(t *testing.T, ws string, args ...string) (string, error) {
	t.Helper()
	seedPath, cartKey, syncFlag = "", "", false

	var out bytes.Buffer
	rootCmd.SetOut(&out)
	rootCmd.SetErr(io.Discard)
	rootCmd.SetArgs(append([]string{"--config", filepath.Join(ws, "coopstore.yaml")}, args...))
	err := rootCmd.ExecuteContext(context.Background())
	return out.String(), err
}

func mustRun(t *testing.T, ws string, args ...string) string {
	t.Helper()
	out, err := run(t, ws, args...)
	require.NoError(t, err, "coopstore %v", args)
	return out
}

func showCart(t *testing.T, ws string, args ...string) entities.CartDisplay {
	t.Helper()
	var cart entities.CartDisplay
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, ws, append([]string{"cart", "show"}, args...)...)), &cart))
	return cart
}

func TestCartCommands(t *testing.T) {
	ws := setupWorkspace(t)

	out := mustRun(t, ws, "migrate", "--seed", filepath.Join(ws, "seed.yaml"))
	assert.Contains(t, out, "loaded 2 products, 2 variants, 1 coupons")

	out = mustRun(t, ws, "cart", "add", "coffee", "1lb", "2")
	assert.Contains(t, out, `"success": true`)

	cart := showCart(t, ws)
	require.Len(t, cart.Items, 1)
	assert.Equal(t, "coffee:1lb", cart.Items[0].Id)
	assert.Equal(t, "25.98", cart.Subtotal)
	assert.Equal(t, "2.08", cart.Tax)
	assert.Equal(t, "28.06", cart.Total)

	mustRun(t, ws, "cart", "member", "true")
	mustRun(t, ws, "cart", "discount", "save10")
	cart = showCart(t, ws)
	assert.Equal(t, "22.98", cart.Subtotal)
	assert.Equal(t, "SAVE10", cart.DiscountCode)
	assert.Equal(t, "2.30", cart.Discount)
	assert.Equal(t, "22.52", cart.Total)

	_, err := run(t, ws, "cart", "update", "coffee:1lb", "50")
	assert.ErrorIs(t, err, models.ErrOutOfStock)
	_, err = run(t, ws, "cart", "add", "tea", "box")
	assert.ErrorIs(t, err, models.ErrProductUnavailable)
	_, err = run(t, ws, "cart", "update", "coffee:1lb", "many")
	assert.Error(t, err)

	var status entities.CheckoutStatus
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, ws, "cart", "check", "--sync")), &status))
	assert.True(t, status.IsValid)

	var receipt entities.Receipt
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, ws, "cart", "checkout")), &receipt))
	assert.NotEmpty(t, receipt.OrderNumber)
	assert.Equal(t, "22.52", receipt.Cart.Total)

	var orders []entities.OrderSummary
	require.NoError(t, json.Unmarshal([]byte(mustRun(t, ws, "cart", "orders")), &orders))
	require.Len(t, orders, 1)
	assert.Equal(t, receipt.OrderNumber, orders[0].OrderNumber)
	assert.Equal(t, "22.52", orders[0].Total)
	assert.Equal(t, "SAVE10", orders[0].DiscountCode)

	cart = showCart(t, ws)
	assert.Empty(t, cart.Items)
	assert.True(t, cart.IsCoOpMember)

	_, err = run(t, ws, "cart", "checkout")
	assert.ErrorIs(t, err, models.ErrNotAllowed)
}

func TestCartKeysAreSeparate(t *testing.T) {
	ws := setupWorkspace(t)
	mustRun(t, ws, "migrate", "--seed", filepath.Join(ws, "seed.yaml"))

	mustRun(t, ws, "cart", "add", "coffee", "1lb", "--key", "cart:kiosk")
	assert.Equal(t, 1, showCart(t, ws, "--key", "cart:kiosk").ItemCount)
	assert.Equal(t, 0, showCart(t, ws).ItemCount)

	mustRun(t, ws, "cart", "remove", "coffee:1lb", "--key", "cart:kiosk")
	assert.Equal(t, 0, showCart(t, ws, "--key", "cart:kiosk").ItemCount)
}

func TestCartWithoutCatalog(t *testing.T) {
	ws := setupWorkspace(t)
	t.Setenv("CATALOG_DSN", filepath.Join(ws, "missing", "dir", "that", "is", "a", "file.db", "x"))
	require.NoError(t, os.WriteFile(filepath.Join(ws, "missing"), nil, 0o644))

	_, err := run(t, ws, "cart", "add", "coffee", "1lb")
	assert.ErrorIs(t, err, models.ErrProductUnavailable)

	mustRun(t, ws, "cart", "member", "true")
	assert.True(t, showCart(t, ws).IsCoOpMember)
}

func TestOpenCartStorageBackends(t *testing.T) {
	ctx := context.Background()
	for _, backend := range []string{config.BackendMemory, config.BackendFile, config.BackendSqlite} {
		t.Run(backend, func(t *testing.T) {
			c := config.DefaultConfig()
			c.Storage.Backend = backend
			c.Storage.Dir = filepath.Join(t.TempDir(), "carts")
			c.Storage.SqlitePath = filepath.Join(t.TempDir(), "db", "carts.db")

			st, err := openCartStorage(ctx, c, events.NewBus(), zap.NewNop())
			require.NoError(t, err)
			defer st.Close()

			require.NoError(t, st.repo.SetCart("cart", "{}"))
			raw, exists, err := st.repo.GetCart("cart")
			require.NoError(t, err)
			assert.True(t, exists)
			assert.Equal(t, "{}", raw)
		})
	}

	c := config.DefaultConfig()
	c.Storage.Backend = "floppy"
	_, err := openCartStorage(ctx, c, events.NewBus(), zap.NewNop())
	assert.Error(t, err)
}

func TestNewLogger(t *testing.T) {
	l, err := newLogger(config.LoggingConfig{Level: "warn", Development: true}, false)
	require.NoError(t, err)
	assert.False(t, l.Core().Enabled(zap.InfoLevel))

	l, err = newLogger(config.LoggingConfig{Level: "warn"}, true)
	require.NoError(t, err)
	assert.True(t, l.Core().Enabled(zap.DebugLevel))

	_, err = newLogger(config.LoggingConfig{Level: "chatty"}, false)
	assert.Error(t, err)
}
