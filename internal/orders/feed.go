package orders

import "tableorder/internal/models"

// FeedEntry is an order waiting for the kitchen, with its amount.
type FeedEntry struct {
	Order models.Order `json:"order"`
	Total float64      `json:"total"`
}

// Feed is a read-only view of the orders still in Pending.
type Feed struct {
	orders *Store
}

func NewFeed(orders *Store) *Feed {
	return &Feed{orders: orders}
}

// Pending returns the Pending orders in insertion order.
func (f *Feed) Pending() []models.Order {
	var out []models.Order
	for _, o := range f.orders.List() {
		if o.Status == models.OrderStatusPending {
			out = append(out, o)
		}
	}
	return out
}

func (f *Feed) Entries() []FeedEntry {
	pending := f.Pending()
	out := make([]FeedEntry, len(pending))
	for i, o := range pending {
		out[i] = FeedEntry{Order: o, Total: o.Total()}
	}
	return out
}

func (f *Feed) Count() int {
	return len(f.Pending())
}

// Subscribe registers fn to run whenever the underlying orders change.
func (f *Feed) Subscribe(fn func()) func() {
	return f.orders.Subscribe(fn)
}
