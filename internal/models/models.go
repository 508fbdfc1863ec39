package models

import (
	"encoding/json"
	"time"
)

// Storage keys
const (
	KeyProducts    = "products"
	KeyOrders      = "orders"
	KeyLastOrderID = "lastOrderId"
	KeyCart        = "cart"
)

// LastOrderIDKey is the key holding the last order placed by session. Each
// session follows its own order; an empty session uses the shared key.
func LastOrderIDKey(session string) string {
	if session == "" {
		return KeyLastOrderID
	}
	return KeyLastOrderID + ":" + session
}

// ID prefixes
const (
	ProductIDPrefix = "PROD"
	OrderIDPrefix   = "ORD"
)

// productFields are the JSON members owned by Product itself; anything else
// found in a stored product is carried in Extra.
var productFields = []string{"id", "name", "price", "description", "category", "image", "available"}

// Product represents a sellable menu item
type Product struct {
	ID          string  `json:"id"`
	Name        string  `json:"name"`
	Price       float64 `json:"price"`
	Description string  `json:"description"`
	Category    string  `json:"category"`
	Image       string  `json:"image"`
	Available   bool    `json:"available"`

	// Extra holds fields added by the admin that the catalog does not model.
	Extra map[string]json.RawMessage `json:"-"`
}

type productJSON Product

func (p Product) MarshalJSON() ([]byte, error) {
	base, err := json.Marshal(productJSON(p))
	if err != nil {
		return nil, err
	}
	if len(p.Extra) == 0 {
		return base, nil
	}

	var fields map[string]json.RawMessage
	if err := json.Unmarshal(base, &fields); err != nil {
		return nil, err
	}
	merged := make(map[string]json.RawMessage, len(fields)+len(p.Extra))
	for k, v := range p.Extra {
		merged[k] = v
	}
	for k, v := range fields {
		merged[k] = v
	}
	return json.Marshal(merged)
}

func (p *Product) UnmarshalJSON(data []byte) error {
	var base productJSON
	if err := json.Unmarshal(data, &base); err != nil {
		return err
	}

	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, f := range productFields {
		delete(raw, f)
	}
	base.Extra = nil
	if len(raw) > 0 {
		base.Extra = raw
	}

	*p = Product(base)
	return nil
}

// Clone returns a copy that shares no mutable state with p.
func (p Product) Clone() Product {
	p.Extra = cloneRaw(p.Extra)
	return p
}

// SameDescriptiveFields reports whether name, price, description, category
// and image match.
func (p Product) SameDescriptiveFields(o Product) bool {
	return p.Name == o.Name &&
		p.Price == o.Price &&
		p.Description == o.Description &&
		p.Category == o.Category &&
		p.Image == o.Image
}

// ProductPatch carries a partial product update. Nil fields are left alone.
type ProductPatch struct {
	Name        *string
	Price       *float64
	Description *string
	Category    *string
	Image       *string
	Available   *bool
	Extra       map[string]json.RawMessage
}

type productPatchJSON struct {
	Name        *string  `json:"name"`
	Price       *float64 `json:"price"`
	Description *string  `json:"description"`
	Category    *string  `json:"category"`
	Image       *string  `json:"image"`
	Available   *bool    `json:"available"`
}

// UnmarshalJSON accepts a partial product object. The id member is ignored
// because product ids never change.
func (pp *ProductPatch) UnmarshalJSON(data []byte) error {
	var known productPatchJSON
	if err := json.Unmarshal(data, &known); err != nil {
		return err
	}
	var raw map[string]json.RawMessage
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	for _, f := range productFields {
		delete(raw, f)
	}

	*pp = ProductPatch{
		Name:        known.Name,
		Price:       known.Price,
		Description: known.Description,
		Category:    known.Category,
		Image:       known.Image,
		Available:   known.Available,
	}
	if len(raw) > 0 {
		pp.Extra = raw
	}
	return nil
}

// Apply merges the patch into p and reports whether anything changed.
func (pp ProductPatch) Apply(p *Product) bool {
	before, _ := json.Marshal(*p)

	if pp.Name != nil {
		p.Name = *pp.Name
	}
	if pp.Price != nil {
		p.Price = *pp.Price
	}
	if pp.Description != nil {
		p.Description = *pp.Description
	}
	if pp.Category != nil {
		p.Category = *pp.Category
	}
	if pp.Image != nil {
		p.Image = *pp.Image
	}
	if pp.Available != nil {
		p.Available = *pp.Available
	}
	if len(pp.Extra) > 0 {
		if p.Extra == nil {
			p.Extra = make(map[string]json.RawMessage, len(pp.Extra))
		}
		for k, v := range pp.Extra {
			p.Extra[k] = append(json.RawMessage(nil), v...)
		}
	}

	after, _ := json.Marshal(*p)
	return string(before) != string(after)
}

// CartLine is a copy of a product taken when it was added, plus a quantity.
type CartLine struct {
	Product
	Qty int `json:"qty"`
}

func (l CartLine) MarshalJSON() ([]byte, error) {
	qty, err := json.Marshal(l.Qty)
	if err != nil {
		return nil, err
	}
	p := l.Product
	p.Extra = cloneRaw(l.Extra)
	if p.Extra == nil {
		p.Extra = make(map[string]json.RawMessage, 1)
	}
	p.Extra["qty"] = qty
	return p.MarshalJSON()
}

func (l *CartLine) UnmarshalJSON(data []byte) error {
	var p Product
	if err := p.UnmarshalJSON(data); err != nil {
		return err
	}

	qty := 0
	if raw, ok := p.Extra["qty"]; ok {
		if err := json.Unmarshal(raw, &qty); err != nil {
			return err
		}
		delete(p.Extra, "qty")
		if len(p.Extra) == 0 {
			p.Extra = nil
		}
	}

	l.Product = p
	l.Qty = qty
	return nil
}

func (l CartLine) Clone() CartLine {
	l.Product = l.Product.Clone()
	return l
}

// Order represents a submitted table order. Only Status changes after creation.
type Order struct {
	ID        string      `json:"id"`
	Table     string      `json:"table"`
	Items     []CartLine  `json:"items"`
	Status    OrderStatus `json:"status"`
	CreatedAt time.Time   `json:"createdAt"`
	Notes     string      `json:"notes"`
}

func (o Order) Clone() Order {
	if o.Items != nil {
		items := make([]CartLine, len(o.Items))
		for i, it := range o.Items {
			items[i] = it.Clone()
		}
		o.Items = items
	}
	return o
}

// OrderStatus is the lifecycle state of an order
type OrderStatus string

// Order statuses
const (
	OrderStatusPending   OrderStatus = "Pending"
	OrderStatusPreparing OrderStatus = "Preparing"
	OrderStatusCooking   OrderStatus = "Cooking"
	OrderStatusReady     OrderStatus = "Ready"
	OrderStatusServed    OrderStatus = "Served"
)

// TrackerSequence is the order in which the customer progress tracker shows statuses.
var TrackerSequence = []OrderStatus{
	OrderStatusPending,
	OrderStatusPreparing,
	OrderStatusCooking,
	OrderStatusReady,
	OrderStatusServed,
}

// AdminActions is the order of the admin status buttons. It disagrees with
// TrackerSequence on Ready/Cooking; the store enforces neither.
var AdminActions = []OrderStatus{
	OrderStatusPreparing,
	OrderStatusReady,
	OrderStatusCooking,
	OrderStatusServed,
}

func (s OrderStatus) Valid() bool {
	return s.Step() >= 0
}

// Step returns the position of s in TrackerSequence, or -1.
func (s OrderStatus) Step() int {
	for i, st := range TrackerSequence {
		if st == s {
			return i
		}
	}
	return -1
}

func (s OrderStatus) Terminal() bool {
	return s == OrderStatusServed
}

func cloneRaw(m map[string]json.RawMessage) map[string]json.RawMessage {
	if m == nil {
		return nil
	}
	out := make(map[string]json.RawMessage, len(m))
	for k, v := range m {
		out[k] = append(json.RawMessage(nil), v...)
	}
	return out
}
