package services

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"
	"time"

	"coopStore/entities"
	"coopStore/events"
	"coopStore/models"
	"coopStore/repository"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"go.uber.org/zap"
)

// DefaultTaxRate applies when the configuration does not name one.
var DefaultTaxRate = decimal.RequireFromString("0.08")

type CartParams struct {
	Key         string
	TaxRate     *decimal.Decimal
	CartRepo    repository.CartRepository
	ProductRepo repository.ProductRepository
	CouponRepo  repository.CouponRepository
	OrderRepo   repository.OrderRepository
	Notifier    events.Notifier
	Logger      *zap.Logger
}

// CartService is the cart store for one cart key. Every operation reads the stored
// snapshot, applies its change and writes the whole snapshot back; concurrent writers
// on the same key overwrite each other.
type CartService struct {
	key      string
	taxRate  decimal.Decimal
	pr       repository.ProductRepository
	cpr      repository.CouponRepository
	or       repository.OrderRepository
	notifier events.Notifier
	logger   *zap.Logger
	now      func() time.Time

	mu       sync.Mutex
	cr       repository.CartRepository
	degraded bool
}

func NewCartService(params CartParams) *CartService {
	cs := &CartService{
		key:      params.Key,
		taxRate:  DefaultTaxRate,
		pr:       params.ProductRepo,
		cpr:      params.CouponRepo,
		or:       params.OrderRepo,
		notifier: params.Notifier,
		logger:   params.Logger,
		now:      time.Now,
		cr:       params.CartRepo,
	}
	if params.TaxRate != nil {
		cs.taxRate = *params.TaxRate
	}
	if cs.key == "" {
		cs.key = "cart"
	}
	if cs.notifier == nil {
		cs.notifier = events.Discard{}
	}
	if cs.logger == nil {
		cs.logger = zap.NewNop()
	}
	if cs.cr == nil {
		cs.cr = repository.NewMemoryCartRepository()
	}
	return cs
}

func (cs *CartService) Key() string {
	return cs.key
}

func (cs *CartService) UpdateEventName() string {
	return events.CartUpdateEvent
}

func (cs *CartService) StorageEventName() string {
	return events.StorageEvent
}

// Degraded reports whether the service fell back to memory after a storage failure.
func (cs *CartService) Degraded() bool {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.degraded
}

func (cs *CartService) repo() repository.CartRepository {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	return cs.cr
}

// degrade swaps the storage for an in-memory one seeded with the last good snapshot.
func (cs *CartService) degrade(seed string, cause error) {
	cs.mu.Lock()
	defer cs.mu.Unlock()
	if cs.degraded {
		return
	}
	mem := repository.NewMemoryCartRepository()
	if seed != "" {
		if err := mem.SetCart(cs.key, seed); err != nil {
			cs.logger.Error("degrade: seeding memory store failed", zap.String("key", cs.key), zap.Error(err))
		}
	}
	cs.cr = mem
	cs.degraded = true
	cs.logger.Warn("cart storage unavailable, keeping the cart in memory", zap.String("key", cs.key), zap.Error(cause))
}

// load returns the stored cart and the raw snapshot it came from.
func (cs *CartService) load() (cart entities.Cart, raw string) {
	raw, exists, err := cs.repo().GetCart(cs.key)
	if err != nil {
		cs.degrade("", err)
		raw, exists, _ = cs.repo().GetCart(cs.key)
	}
	if !exists {
		cart = entities.NewCart()
		cart.Recalculate(cs.taxRate)
		return cart, ""
	}
	cart, err = decodeCart(raw)
	if err != nil {
		cs.logger.Warn("discarding stored cart", zap.String("key", cs.key), zap.Error(err))
		cart = entities.NewCart()
		raw = ""
	}
	cart.Recalculate(cs.taxRate)
	return cart, raw
}

func decodeCart(raw string) (cart entities.Cart, err error) {
	if err = json.Unmarshal([]byte(raw), &cart); err != nil {
		return cart, fmt.Errorf("%w: %v", models.ErrPersistenceCorrupt, err)
	}
	seen := make(map[string]bool, len(cart.Items))
	for _, item := range cart.Items {
		switch {
		case item.Id == "" || seen[item.Id]:
			return cart, fmt.Errorf("%w: duplicate or empty item id %q", models.ErrPersistenceCorrupt, item.Id)
		case item.Quantity < 1:
			return cart, fmt.Errorf("%w: item %s has quantity %d", models.ErrPersistenceCorrupt, item.Id, item.Quantity)
		case item.Price.IsNegative() || item.CoopPrice.IsNegative():
			return cart, fmt.Errorf("%w: item %s has a negative price", models.ErrPersistenceCorrupt, item.Id)
		}
		seen[item.Id] = true
	}
	if cart.Discount != nil && cart.Discount.Amount.IsNegative() {
		return cart, fmt.Errorf("%w: negative discount", models.ErrPersistenceCorrupt)
	}
	return cart, nil
}

// save writes cart and announces it on the local channel. prev is the snapshot the
// operation started from; it seeds the memory fallback if the write fails.
func (cs *CartService) save(cart entities.Cart, prev string) (err error) {
	cart.UpdatedAt = cs.now().UTC()
	cart.Recalculate(cs.taxRate)
	data, err := json.Marshal(cart)
	if err != nil {
		cs.logger.Error("save: marshal failed", zap.Error(err))
		return models.ErrServerError
	}
	raw := string(data)
	if err = cs.repo().SetCart(cs.key, raw); err != nil {
		cs.degrade(prev, err)
		return fmt.Errorf("%w: your cart could not be saved", models.ErrPersistenceUnavailable)
	}
	cs.notifier.Notify(events.Event{
		Name:     events.CartUpdateEvent,
		Channel:  events.Local,
		Key:      cs.key,
		NewValue: raw,
	})
	return nil
}

// GetCartState never fails: missing or unreadable state yields an empty cart.
func (cs *CartService) GetCartState() entities.Cart {
	cart, _ := cs.load()
	return cart
}

func (cs *CartService) GetCartItemCount() int {
	return cs.GetCartState().ItemCount
}

func (cs *CartService) GetCartTotal() decimal.Decimal {
	return cs.GetCartState().Total
}

func (cs *CartService) AddToCart(ctx context.Context, productId, variantId string, quantity int) (err error) {
	if quantity < 1 {
		return fmt.Errorf("%w: quantity must be at least 1", models.ErrInvalidQuantity)
	}
	if cs.pr == nil {
		return fmt.Errorf("%w: the catalog is not reachable", models.ErrProductUnavailable)
	}
	info, ex, e := cs.pr.GetVariant(ctx, productId, variantId)
	if e != nil {
		cs.logger.Error("AddToCart: catalog lookup failed", zap.String("productId", productId), zap.String("variantId", variantId), zap.Error(e))
		return fmt.Errorf("%w: product %s could not be loaded", models.ErrProductUnavailable, productId)
	}
	if !ex {
		return fmt.Errorf("%w: product %s is not available", models.ErrProductUnavailable, productId)
	}
	if quantity > info.Stock {
		return fmt.Errorf("%w: only %d of %s in stock", models.ErrOutOfStock, info.Stock, info.Name)
	}

	cart, prev := cs.load()
	id := entities.ItemId(productId, variantId)
	if idx := cart.Find(id); idx >= 0 {
		item := &cart.Items[idx]
		merged := item.Quantity + quantity
		if merged > info.Stock {
			return fmt.Errorf("%w: only %d of %s in stock and %d already in your cart",
				models.ErrOutOfStock, info.Stock, info.Name, item.Quantity)
		}
		item.Quantity = merged
		applySnapshot(item, info)
	} else {
		item := entities.CartItem{
			Id:        id,
			ProductId: productId,
			VariantId: variantId,
			Quantity:  quantity,
		}
		applySnapshot(&item, info)
		cart.Items = append(cart.Items, item)
	}
	return cs.save(cart, prev)
}

func applySnapshot(item *entities.CartItem, info entities.VariantInfo) {
	item.ProductName = info.Name
	item.ProductImage = info.Image
	item.VariantName = info.VariantName
	item.Price = info.Price
	item.CoopPrice = info.CoopPrice
	item.Stock = info.Stock
}

// UpdateQuantity rejects quantities below 1; removing a line is RemoveFromCart's job.
func (cs *CartService) UpdateQuantity(itemId string, quantity int) (err error) {
	if quantity <= 0 {
		return fmt.Errorf("%w: quantity must be at least 1, remove the item instead", models.ErrInvalidQuantity)
	}
	cart, prev := cs.load()
	idx := cart.Find(itemId)
	if idx < 0 {
		return fmt.Errorf("%w: %s is not in your cart", models.ErrItemNotFound, itemId)
	}
	item := &cart.Items[idx]
	if quantity > item.Stock {
		return fmt.Errorf("%w: only %d of %s in stock", models.ErrOutOfStock, item.Stock, item.ProductName)
	}
	item.Quantity = quantity
	return cs.save(cart, prev)
}

// RemoveFromCart is a no-op for unknown ids.
func (cs *CartService) RemoveFromCart(itemId string) (err error) {
	cart, prev := cs.load()
	idx := cart.Find(itemId)
	if idx < 0 {
		return nil
	}
	cart.Items = append(cart.Items[:idx], cart.Items[idx+1:]...)
	return cs.save(cart, prev)
}

func (cs *CartService) ApplyDiscount(ctx context.Context, code string) (err error) {
	if cs.cpr == nil {
		return fmt.Errorf("%w: discount codes are not accepted", models.ErrInvalidCoupon)
	}
	cart, prev := cs.load()
	amount, e := cs.cpr.ValidateCoupon(ctx, code, cart.Subtotal)
	if e != nil {
		if errors.Is(e, models.ErrInvalidCoupon) || errors.Is(e, models.ErrCouponExpired) || errors.Is(e, models.ErrMinPurchaseNotMet) {
			return e
		}
		cs.logger.Error("ApplyDiscount: coupon lookup failed", zap.String("code", code), zap.Error(e))
		return fmt.Errorf("%w: coupon could not be checked", models.ErrInvalidCoupon)
	}
	cart.Discount = &entities.Discount{
		Code:   repository.NormalizeCode(code),
		Amount: amount,
	}
	return cs.save(cart, prev)
}

func (cs *CartService) ClearDiscount() (err error) {
	cart, prev := cs.load()
	if cart.Discount == nil {
		return nil
	}
	cart.Discount = nil
	return cs.save(cart, prev)
}

// SetCoOpMembership only switches which unit price the totals use.
func (cs *CartService) SetCoOpMembership(isMember bool) (err error) {
	cart, prev := cs.load()
	cart.IsCoOpMember = isMember
	return cs.save(cart, prev)
}

// ClearCart drops every line and the discount; the membership flag stays.
func (cs *CartService) ClearCart() (err error) {
	cart, prev := cs.load()
	cart.Items = []entities.CartItem{}
	cart.Discount = nil
	return cs.save(cart, prev)
}

func (cs *CartService) IsCartValidForCheckout() entities.CheckoutStatus {
	cart, _ := cs.load()
	return checkoutStatus(cart)
}

func checkoutStatus(cart entities.Cart) entities.CheckoutStatus {
	if cart.IsEmpty() {
		return entities.CheckoutStatus{Message: "Your cart is empty"}
	}
	for _, item := range cart.Items {
		if item.Stock <= 0 {
			return entities.CheckoutStatus{Message: fmt.Sprintf("%s (%s) is out of stock", item.ProductName, item.VariantName)}
		}
		if item.Quantity > item.Stock {
			return entities.CheckoutStatus{Message: fmt.Sprintf("Only %d of %s (%s) available", item.Stock, item.ProductName, item.VariantName)}
		}
	}
	return entities.CheckoutStatus{IsValid: true}
}

// SyncStock refreshes every line from the catalog. Lines whose variant is gone keep
// their quantity with a stock of zero so the checkout gate rejects them.
func (cs *CartService) SyncStock(ctx context.Context) (err error) {
	if cs.pr == nil {
		return fmt.Errorf("%w: the catalog is not reachable", models.ErrProductUnavailable)
	}
	cart, prev := cs.load()
	if cart.IsEmpty() {
		return nil
	}
	for i := range cart.Items {
		item := &cart.Items[i]
		info, ex, e := cs.pr.GetVariant(ctx, item.ProductId, item.VariantId)
		if e != nil {
			cs.logger.Error("SyncStock: catalog lookup failed", zap.String("itemId", item.Id), zap.Error(e))
			return fmt.Errorf("%w: product %s could not be loaded", models.ErrProductUnavailable, item.ProductId)
		}
		if !ex {
			item.Stock = 0
			continue
		}
		applySnapshot(item, info)
	}
	return cs.save(cart, prev)
}

// Checkout is simulated: it validates the cart, records the order, redeems the coupon
// and empties the cart. No payment is taken. Once the order is recorded Checkout
// succeeds even if the cart cannot be cleared; checking out the same stored snapshot
// again finds the recorded order and only clears the cart.
func (cs *CartService) Checkout(ctx context.Context) (receipt entities.Receipt, err error) {
	cart, prev := cs.load()
	status := checkoutStatus(cart)
	if !status.IsValid {
		err = fmt.Errorf("%w: %s", models.ErrNotAllowed, status.Message)
		return
	}
	receipt = entities.Receipt{
		OrderNumber: orderNumber(cs.key, prev),
		PlacedAt:    cs.now().UTC(),
		Cart:        cart.Display(),
	}
	recorded := false
	if cs.or != nil {
		placed, _, e := cs.or.GetOrder(ctx, receipt.OrderNumber)
		switch {
		case e == nil:
			recorded = true
			receipt.PlacedAt = placed.PlacedAt
			cs.logger.Warn("Checkout: order already recorded, clearing the cart", zap.String("order", receipt.OrderNumber))
		case errors.Is(e, models.ErrNotFoundError):
			order, items := orderRows(cs.key, receipt, cart)
			if err = cs.or.CreateOrder(ctx, order, items); err != nil {
				return entities.Receipt{}, fmt.Errorf("%w: the order could not be recorded", err)
			}
		default:
			return entities.Receipt{}, fmt.Errorf("%w: the order could not be recorded", e)
		}
	}
	if !recorded && cart.Discount != nil && cs.cpr != nil {
		if e := cs.cpr.RedeemCoupon(ctx, cart.Discount.Code); e != nil {
			cs.logger.Error("Checkout: coupon not redeemed", zap.String("order", receipt.OrderNumber), zap.String("code", cart.Discount.Code), zap.Error(e))
		}
	}

	cart.Items = []entities.CartItem{}
	cart.Discount = nil
	if e := cs.save(cart, prev); e != nil {
		cs.logger.Error("Checkout: order placed but cart not cleared in storage", zap.String("order", receipt.OrderNumber), zap.Error(e))
		// storage fell back to memory seeded with the full cart
		if e = cs.save(cart, prev); e != nil {
			cs.logger.Error("Checkout: clearing the memory copy failed", zap.String("order", receipt.OrderNumber), zap.Error(e))
		}
	}
	cs.logger.Info("Checkout: order placed", zap.String("order", receipt.OrderNumber), zap.String("total", receipt.Cart.Total))
	return receipt, nil
}

// orderNumber is derived from the stored snapshot, which changes with every save.
func orderNumber(key, snapshot string) string {
	if snapshot == "" {
		return uuid.NewString()
	}
	return uuid.NewSHA1(uuid.NameSpaceOID, []byte(key+"\n"+snapshot)).String()
}

func orderRows(key string, receipt entities.Receipt, cart entities.Cart) (order models.Order_db, items []models.OrderItem_db) {
	cents := func(d decimal.Decimal) decimal.Decimal { return d.Round(2) }
	order = models.Order_db{
		OrderNumber:  receipt.OrderNumber,
		CartKey:      key,
		PlacedAt:     receipt.PlacedAt,
		Status:       models.OrderPlaced,
		IsCoOpMember: cart.IsCoOpMember,
		Subtotal:     cents(cart.Subtotal),
		Tax:          cents(cart.Tax),
		Total:        cents(cart.Total),
	}
	if cart.Discount != nil {
		order.DiscountCode = cart.Discount.Code
		order.Discount = cents(cart.Discount.Amount)
	}
	for _, item := range cart.Items {
		items = append(items, models.OrderItem_db{
			OrderNumber: receipt.OrderNumber,
			ItemId:      item.Id,
			ProductId:   item.ProductId,
			VariantId:   item.VariantId,
			Name:        item.ProductName + " (" + item.VariantName + ")",
			Quantity:    item.Quantity,
			UnitPrice:   item.EffectivePrice(cart.IsCoOpMember),
		})
	}
	return
}

// Orders lists the orders checked out from this cart key.
func (cs *CartService) Orders(ctx context.Context) (orders []models.Order_db, err error) {
	if cs.or == nil {
		return nil, nil
	}
	return cs.or.GetCartOrders(ctx, cs.key)
}

// Watch calls fn with the current cart whenever the cart key changes, locally or in
// another instance.
func (cs *CartService) Watch(fn func(cart entities.Cart, ev events.Event)) (unsubscribe func()) {
	listener := func(ev events.Event) {
		if ev.Key != cs.key {
			return
		}
		fn(cs.GetCartState(), ev)
	}
	unLocal := cs.notifier.Subscribe(events.Local, listener)
	unExternal := cs.notifier.Subscribe(events.External, listener)
	return func() {
		unLocal()
		unExternal()
	}
}
