package cart

import "github.com/shopspring/decimal"

// Op identifies the mutation that produced an Event.
type Op string

const (
	OpAdd    Op = "add"
	OpRemove Op = "remove"
	OpClear  Op = "clear"
)

// Event describes a committed cart mutation together with the totals after
// it.
//
// Quantity is the number of units added for OpAdd and the number of units
// dropped for OpRemove and OpClear.
type Event struct {
	Op         Op
	ProductID  string
	Quantity   int
	TotalItems int
	TotalPrice decimal.Decimal
}

// Observer is notified after a mutation is committed. Observers run
// synchronously, outside the store lock, in registration order.
type Observer func(Event)

func notify(observers []Observer, ev Event) {
	for _, o := range observers {
		o(ev)
	}
}
