package domain

import (
	"fmt"
	"sort"
)

// MaxLineQuantity caps the units of a single product in a cart.
const MaxLineQuantity = 999

// Cart is a customer's mutable pre-checkout selection, one line per product.
type Cart struct {
	CustomerID string
	Lines      []CartLine
}

type CartLine struct {
	ProductID string `json:"product_id"`
	Quantity  int    `json:"quantity"`
}

func NewCart(customerID string) *Cart {
	return &Cart{CustomerID: customerID}
}

func (c *Cart) Empty() bool { return len(c.Lines) == 0 }

func (c *Cart) index(productID string) int {
	for i, l := range c.Lines {
		if l.ProductID == productID {
			return i
		}
	}
	return -1
}

// Add increases the quantity of a product, creating the line if needed.
// A line never grows past MaxLineQuantity.
func (c *Cart) Add(productID string, quantity int) error {
	if quantity < 1 || quantity > MaxLineQuantity {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if i := c.index(productID); i >= 0 {
		current := c.Lines[i].Quantity
		if current > MaxLineQuantity-quantity {
			return fmt.Errorf("%w: %s would hold %d+%d units, max %d",
				ErrInvalidQuantity, productID, current, quantity, MaxLineQuantity)
		}
		c.Lines[i].Quantity = current + quantity
		return nil
	}
	c.Lines = append(c.Lines, CartLine{ProductID: productID, Quantity: quantity})
	return nil
}

// SetQuantity replaces a line's quantity. Zero removes the line.
func (c *Cart) SetQuantity(productID string, quantity int) error {
	if quantity < 0 || quantity > MaxLineQuantity {
		return fmt.Errorf("%w: got %d", ErrInvalidQuantity, quantity)
	}
	if quantity == 0 {
		return c.Remove(productID)
	}
	if i := c.index(productID); i >= 0 {
		c.Lines[i].Quantity = quantity
		return nil
	}
	c.Lines = append(c.Lines, CartLine{ProductID: productID, Quantity: quantity})
	return nil
}

// Decrement removes one unit; the line disappears with its last unit.
func (c *Cart) Decrement(productID string) error {
	i := c.index(productID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, productID)
	}
	if c.Lines[i].Quantity <= 1 {
		return c.Remove(productID)
	}
	c.Lines[i].Quantity--
	return nil
}

func (c *Cart) Remove(productID string) error {
	i := c.index(productID)
	if i < 0 {
		return fmt.Errorf("%w: %s", ErrLineNotFound, productID)
	}
	c.Lines = append(c.Lines[:i], c.Lines[i+1:]...)
	return nil
}

// Normalize sorts lines by product and folds duplicates, so stored carts
// always satisfy one line per product with quantity >= 1.
func (c *Cart) Normalize() {
	merged := make(map[string]int, len(c.Lines))
	for _, l := range c.Lines {
		if l.Quantity > 0 {
			merged[l.ProductID] += l.Quantity
		}
	}
	lines := make([]CartLine, 0, len(merged))
	for id, q := range merged {
		lines = append(lines, CartLine{ProductID: id, Quantity: q})
	}
	sort.Slice(lines, func(i, j int) bool { return lines[i].ProductID < lines[j].ProductID })
	c.Lines = lines
}
