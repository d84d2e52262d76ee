package entities

import "github.com/shopspring/decimal"

// ItemId derives the line id of a product variant.
func ItemId(productId, variantId string) string {
	return productId + ":" + variantId
}

func NewCart() Cart {
	return Cart{
		Items:    []CartItem{},
		Subtotal: decimal.Zero,
		Tax:      decimal.Zero,
		Total:    decimal.Zero,
	}
}

// EffectivePrice is the unit price the cart charges for the item.
func (ci CartItem) EffectivePrice(isCoOpMember bool) decimal.Decimal {
	if isCoOpMember {
		return ci.CoopPrice
	}
	return ci.Price
}

func (c Cart) Find(itemId string) int {
	for i := range c.Items {
		if c.Items[i].Id == itemId {
			return i
		}
	}
	return -1
}

func (c Cart) IsEmpty() bool {
	return len(c.Items) == 0
}

// Recalculate refreshes the derived fields. Amounts are kept at full precision.
func (c *Cart) Recalculate(taxRate decimal.Decimal) {
	if c.Items == nil {
		c.Items = []CartItem{}
	}
	count := 0
	subtotal := decimal.Zero
	for _, item := range c.Items {
		count += item.Quantity
		subtotal = subtotal.Add(item.EffectivePrice(c.IsCoOpMember).Mul(decimal.NewFromInt(int64(item.Quantity))))
	}
	c.ItemCount = count
	c.Subtotal = subtotal
	c.Tax = subtotal.Mul(taxRate)

	total := subtotal.Add(c.Tax)
	if c.Discount != nil {
		total = total.Sub(c.Discount.Amount)
	}
	if total.IsNegative() {
		total = decimal.Zero
	}
	c.Total = total
}

func Money(d decimal.Decimal) string {
	return d.StringFixed(2)
}

func (c Cart) Display() CartDisplay {
	disp := CartDisplay{
		Items:        make([]CartItemDisplay, 0, len(c.Items)),
		IsCoOpMember: c.IsCoOpMember,
		Discount:     Money(decimal.Zero),
		ItemCount:    c.ItemCount,
		Subtotal:     Money(c.Subtotal),
		Tax:          Money(c.Tax),
		Total:        Money(c.Total),
	}
	if c.Discount != nil {
		disp.DiscountCode = c.Discount.Code
		disp.Discount = Money(c.Discount.Amount)
	}
	for _, item := range c.Items {
		unit := item.EffectivePrice(c.IsCoOpMember)
		disp.Items = append(disp.Items, CartItemDisplay{
			Id:          item.Id,
			ProductName: item.ProductName,
			VariantName: item.VariantName,
			Image:       item.ProductImage,
			Quantity:    item.Quantity,
			UnitPrice:   Money(unit),
			LineTotal:   Money(unit.Mul(decimal.NewFromInt(int64(item.Quantity)))),
		})
	}
	return disp
}
