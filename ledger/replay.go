package ledger

import "github.com/shopspring/decimal"

// Result is the state derived from folding a record list.
type Result struct {
	// Balance is signed: positive when lent, negative when borrowed.
	Balance   decimal.Decimal
	Amount    decimal.Decimal
	Direction Direction
	Status    Status
}

// Replay folds records in entry order, starting from a zero balance and the
// given direction for the Initial record.
func Replay(records []Record, start Direction) Result {
	balance := decimal.Zero
	for _, r := range records {
		balance = step(balance, r, start)
	}
	return resultOf(balance)
}

// step applies one record to a signed balance. Increase grows the debt in its
// current direction and Repay shrinks it, possibly through zero. A zero
// balance counts as lent.
func step(balance decimal.Decimal, r Record, start Direction) decimal.Decimal {
	switch r.Kind {
	case KindInitial:
		if start == DirectionBorrowed {
			return balance.Sub(r.Amount)
		}
		return balance.Add(r.Amount)
	case KindIncrease:
		if balance.IsNegative() {
			return balance.Sub(r.Amount)
		}
		return balance.Add(r.Amount)
	case KindRepay:
		if balance.IsNegative() {
			return balance.Add(r.Amount)
		}
		return balance.Sub(r.Amount)
	}
	return balance
}

func resultOf(balance decimal.Decimal) Result {
	res := Result{
		Balance:   balance,
		Amount:    balance.Abs(),
		Direction: DirectionLent,
		Status:    StatusActive,
	}
	if balance.IsNegative() {
		res.Direction = DirectionBorrowed
	}
	if res.Amount.IsZero() {
		res.Status = StatusClosed
	}
	return res
}

func signed(amount decimal.Decimal, direction Direction) decimal.Decimal {
	if direction == DirectionBorrowed {
		return amount.Neg()
	}
	return amount
}

// ResolveStartingDirection recovers the direction of the Initial record from
// a stored (amount, direction) pair and the records that produced it: if a
// replay starting from lent reproduces the pair, the debt started lent.
//
// The answer is only reliable when the running balance never sat at exactly
// zero between records; past a zero both hypotheses fold to the same state.
func ResolveStartingDirection(amount decimal.Decimal, direction Direction, records []Record) Direction {
	res := Replay(records, DirectionLent)
	if res.Amount.Equal(amount) && res.Direction == direction {
		return DirectionLent
	}
	return DirectionBorrowed
}

// startingDirection prefers the stored origin and falls back to resolution
// for documents that predate it.
func (d Debt) startingDirection() Direction {
	if d.origin.Valid() {
		return d.origin
	}
	return ResolveStartingDirection(d.amount, d.direction, d.records)
}

// Consistent reports whether the cached amount, direction and status equal a
// replay of the records.
func (d Debt) Consistent() bool {
	if len(d.records) == 0 {
		return false
	}
	res := Replay(d.records, d.startingDirection())
	return res.Amount.Equal(d.amount) && res.Direction == d.direction && res.Status == d.status
}

// repaired rederives the cached state from the records.
func (d Debt) repaired() Debt {
	return d.replayed(d.records, d.startingDirection(), d.LastUpdated)
}
