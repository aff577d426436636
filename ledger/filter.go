package ledger

import (
	"sort"

	"github.com/shopspring/decimal"
)

// Filter narrows a debt list the way the dashboard tabs do. Zero values match
// everything.
type Filter struct {
	Status    Status
	Direction Direction
}

func (f Filter) Match(d Debt) bool {
	if f.Status != "" && d.status != f.Status {
		return false
	}
	if f.Direction != "" && d.direction != f.Direction {
		return false
	}
	return true
}

// Select returns the debts matching f, most recently updated first.
func Select(debts []Debt, f Filter) []Debt {
	out := make([]Debt, 0, len(debts))
	for _, d := range debts {
		if f.Match(d) {
			out = append(out, d)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].LastUpdated.After(out[j].LastUpdated)
	})
	return out
}

// Total sums the outstanding amounts of debts.
func Total(debts []Debt) decimal.Decimal {
	total := decimal.Zero
	for _, d := range debts {
		total = total.Add(d.amount)
	}
	return total
}

// Summary aggregates a user's debts. Lent and Borrowed only count active debts.
type Summary struct {
	Lent     decimal.Decimal `json:"lent"`
	Borrowed decimal.Decimal `json:"borrowed"`
	// Net is Lent minus Borrowed.
	Net    decimal.Decimal `json:"net"`
	Active int             `json:"active"`
	Closed int             `json:"closed"`
}

func Summarize(debts []Debt) Summary {
	s := Summary{Lent: decimal.Zero, Borrowed: decimal.Zero}
	for _, d := range debts {
		if d.IsClosed() {
			s.Closed++
			continue
		}
		s.Active++
		if d.direction == DirectionBorrowed {
			s.Borrowed = s.Borrowed.Add(d.amount)
		} else {
			s.Lent = s.Lent.Add(d.amount)
		}
	}
	s.Net = s.Lent.Sub(s.Borrowed)
	return s
}
