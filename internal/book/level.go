package book

import "github.com/shopspring/decimal"

// Level is one price level: the set of resting orders whose prices share a
// key, queued in arrival order (time priority). A level only exists while
// it holds at least one order.
type Level struct {
	Price  decimal.Decimal
	Orders []*Order
}

// TotalSize sums the remaining size of every order at this level.
func (l *Level) TotalSize() decimal.Decimal {
	total := decimal.Zero
	for _, o := range l.Orders {
		total = total.Add(o.Size)
	}
	return total
}

// front returns the order with the highest time priority.
func (l *Level) front() *Order {
	return l.Orders[0]
}

func (l *Level) append(o *Order) {
	l.Orders = append(l.Orders, o)
}

func (l *Level) remove(id string) {
	for i, o := range l.Orders {
		if o.ID == id {
			l.Orders = append(l.Orders[:i], l.Orders[i+1:]...)
			return
		}
	}
}
