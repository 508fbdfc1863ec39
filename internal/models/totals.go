package models

import "github.com/shopspring/decimal"

// LinesTotal sums price*qty over lines without float drift.
func LinesTotal(lines []CartLine) decimal.Decimal {
	total := decimal.Zero
	for _, l := range lines {
		total = total.Add(decimal.NewFromFloat(l.Price).Mul(decimal.NewFromInt(int64(l.Qty))))
	}
	return total
}

// LinesQty is the number of units across lines.
func LinesQty(lines []CartLine) int {
	n := 0
	for _, l := range lines {
		n += l.Qty
	}
	return n
}

// Total is the order amount computed from its item snapshot.
func (o Order) Total() float64 {
	return LinesTotal(o.Items).InexactFloat64()
}
