package ledger

import (
	"math/rand"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func dec(s string) decimal.Decimal {
	return decimal.RequireFromString(s)
}

func rec(kind Kind, amount string) Record {
	return Record{ID: uuid.New(), Kind: kind, Amount: dec(amount), Account: AccountCash}
}

func freezeTime(t *testing.T, at time.Time) {
	t.Helper()
	prev := now
	now = func() time.Time { return at }
	t.Cleanup(func() { now = prev })
}

func requireState(t *testing.T, d Debt, amount string, direction Direction, status Status) {
	t.Helper()
	require.True(t, d.Amount().Equal(dec(amount)), "amount = %s, want %s", d.Amount(), amount)
	require.Equal(t, direction, d.Direction())
	require.Equal(t, status, d.Status())
	require.True(t, d.Consistent(), "cached state differs from replay")
}

func TestReplay(t *testing.T) {
	tests := []struct {
		name      string
		records   []Record
		start     Direction
		amount    string
		direction Direction
		status    Status
	}{
		{
			name:      "initial lent",
			records:   []Record{rec(KindInitial, "500")},
			start:     DirectionLent,
			amount:    "500",
			direction: DirectionLent,
			status:    StatusActive,
		},
		{
			name:      "initial borrowed",
			records:   []Record{rec(KindInitial, "500")},
			start:     DirectionBorrowed,
			amount:    "500",
			direction: DirectionBorrowed,
			status:    StatusActive,
		},
		{
			name:      "increase grows a borrowed debt",
			records:   []Record{rec(KindInitial, "100"), rec(KindIncrease, "50")},
			start:     DirectionBorrowed,
			amount:    "150",
			direction: DirectionBorrowed,
			status:    StatusActive,
		},
		{
			name:      "repay to zero closes",
			records:   []Record{rec(KindInitial, "100"), rec(KindRepay, "100")},
			start:     DirectionBorrowed,
			amount:    "0",
			direction: DirectionLent,
			status:    StatusClosed,
		},
		{
			name:      "increase at zero counts as lent",
			records:   []Record{rec(KindInitial, "100"), rec(KindRepay, "100"), rec(KindIncrease, "30")},
			start:     DirectionBorrowed,
			amount:    "30",
			direction: DirectionLent,
			status:    StatusActive,
		},
		{
			name: "multiple flips",
			records: []Record{
				rec(KindInitial, "100"),
				rec(KindRepay, "150"),
				rec(KindRepay, "80"),
				rec(KindIncrease, "10"),
			},
			start:     DirectionLent,
			amount:    "40",
			direction: DirectionLent,
			status:    StatusActive,
		},
		{
			name:      "fractional amounts",
			records:   []Record{rec(KindInitial, "10.25"), rec(KindRepay, "0.75")},
			start:     DirectionLent,
			amount:    "9.5",
			direction: DirectionLent,
			status:    StatusActive,
		},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			res := Replay(tt.records, tt.start)
			assert.True(t, res.Amount.Equal(dec(tt.amount)), "amount = %s, want %s", res.Amount, tt.amount)
			assert.Equal(t, tt.direction, res.Direction)
			assert.Equal(t, tt.status, res.Status)
		})
	}
}

func TestReplayIsDeterministic(t *testing.T) {
	records := []Record{rec(KindInitial, "300"), rec(KindRepay, "450"), rec(KindIncrease, "20")}
	first := Replay(records, DirectionLent)
	for i := 0; i < 10; i++ {
		require.Equal(t, first, Replay(records, DirectionLent))
	}
}

func TestRepayFlipsDirection(t *testing.T) {
	for _, start := range []Direction{DirectionLent, DirectionBorrowed} {
		d, err := NewDebt(uuid.New(), "Alice", start, RecordInput{Amount: dec("200")})
		require.NoError(t, err)

		d, err = d.AppendRecord(KindRepay, RecordInput{Amount: dec("350")})
		require.NoError(t, err)

		want := DirectionBorrowed
		if start == DirectionBorrowed {
			want = DirectionLent
		}
		requireState(t, d, "150", want, StatusActive)
	}
}

// randomWalk builds a create+append history whose running balance never
// lands on zero.
func randomWalk(r *rand.Rand, start Direction) Debt {
	d, err := NewDebt(uuid.New(), "walk", start, RecordInput{Amount: decimal.NewFromInt(int64(r.Intn(1000) + 1))})
	if err != nil {
		panic(err)
	}
	steps := r.Intn(12)
	for i := 0; i < steps; i++ {
		kind := KindIncrease
		if r.Intn(2) == 0 {
			kind = KindRepay
		}
		amount := decimal.NewFromInt(int64(r.Intn(1000) + 1))
		if kind == KindRepay && amount.Equal(d.Amount()) {
			amount = amount.Add(decimal.NewFromInt(1))
		}
		d, err = d.AppendRecord(kind, RecordInput{Amount: amount})
		if err != nil {
			panic(err)
		}
	}
	return d
}

func TestResolveStartingDirection(t *testing.T) {
	r := rand.New(rand.NewSource(42))
	for i := 0; i < 500; i++ {
		start := DirectionLent
		if i%2 == 1 {
			start = DirectionBorrowed
		}
		d := randomWalk(r, start)

		got := ResolveStartingDirection(d.Amount(), d.Direction(), d.Records())
		require.Equal(t, start, got, "walk %d: %v", i, d.Records())

		res := Replay(d.Records(), start)
		require.True(t, res.Amount.Equal(d.Amount()))
		require.Equal(t, d.Direction(), res.Direction)
	}
}

func TestResolveStartingDirectionIsAmbiguousAfterZero(t *testing.T) {
	records := []Record{rec(KindInitial, "100"), rec(KindRepay, "100"), rec(KindIncrease, "40")}

	res := Replay(records, DirectionBorrowed)
	// Both hypotheses fold to +40, so the stored origin is what disambiguates.
	assert.Equal(t, DirectionLent, ResolveStartingDirection(res.Amount, res.Direction, records))
}

func TestConsistentDetectsTampering(t *testing.T) {
	d, err := NewDebt(uuid.New(), "Bob", DirectionLent, RecordInput{Amount: dec("100")})
	require.NoError(t, err)
	require.True(t, d.Consistent())

	d.amount = dec("90")
	assert.False(t, d.Consistent())

	assert.False(t, Debt{}.Consistent())
}
