package ledger

import (
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

// Direction tells who owes whom.
type Direction string

const (
	// DirectionLent means the counterparty owes the user.
	DirectionLent Direction = "lent"
	// DirectionBorrowed means the user owes the counterparty.
	DirectionBorrowed Direction = "borrowed"
)

func (d Direction) Valid() bool {
	return d == DirectionLent || d == DirectionBorrowed
}

type Status string

const (
	StatusActive Status = "active"
	StatusClosed Status = "closed"
)

func (s Status) Valid() bool {
	return s == StatusActive || s == StatusClosed
}

// Kind is the type of a ledger entry.
type Kind string

const (
	KindInitial  Kind = "initial"
	KindIncrease Kind = "increase"
	KindRepay    Kind = "repay"
)

func (k Kind) Valid() bool {
	return k == KindInitial || k == KindIncrease || k == KindRepay
}

func (k Kind) placeholder() string {
	switch k {
	case KindIncrease:
		return "Additional Debt"
	case KindRepay:
		return "Repayment"
	default:
		return "Initial Debt"
	}
}

// Account is where the money moved through. Informational only.
type Account string

const (
	AccountCash   Account = "Cash"
	AccountBKash  Account = "bKash"
	AccountNagad  Account = "Nagad"
	AccountBank   Account = "Bank"
	AccountOthers Account = "Others"
)

// Accounts lists the account vocabulary in display order.
var Accounts = []Account{AccountCash, AccountBKash, AccountNagad, AccountBank, AccountOthers}

func (a Account) Valid() bool {
	for _, known := range Accounts {
		if a == known {
			return true
		}
	}
	return false
}

// Record is one immutable ledger entry. Amount is always positive; its effect
// on the balance depends on Kind and on the balance it is applied to.
type Record struct {
	ID          uuid.UUID       `json:"id"`
	Kind        Kind            `json:"kind"`
	Amount      decimal.Decimal `json:"amount"`
	Description string          `json:"description"`
	Account     Account         `json:"account"`
	Date        time.Time       `json:"date"`
	EnteredAt   time.Time       `json:"entered_at"`
}

// Debt is a snapshot of one relationship with a counterparty.
//
// Direction, Amount and Status are a projection of the record list and can
// only change through NewDebt, AppendRecord, EditRecord and DeleteRecord.
type Debt struct {
	ID          uuid.UUID
	UserID      uuid.UUID
	Name        string
	Version     int64
	CreatedAt   time.Time
	LastUpdated time.Time

	direction      Direction
	origin         Direction
	amount         decimal.Decimal
	originalAmount decimal.Decimal
	status         Status
	records        []Record
}

func (d Debt) Direction() Direction { return d.direction }

// Origin is the direction of the Initial record, or "" for documents written
// before it was stored.
func (d Debt) Origin() Direction { return d.origin }

func (d Debt) Amount() decimal.Decimal { return d.amount }

// OriginalAmount is the magnitude the debt was created with.
func (d Debt) OriginalAmount() decimal.Decimal { return d.originalAmount }

func (d Debt) Status() Status { return d.status }

func (d Debt) IsClosed() bool { return d.status == StatusClosed }

// Records returns a copy of the record list in entry order.
func (d Debt) Records() []Record {
	out := make([]Record, len(d.records))
	copy(out, d.records)
	return out
}

// Record looks up a record by its identifier.
func (d Debt) Record(id uuid.UUID) (Record, bool) {
	if i := d.indexOf(id); i >= 0 {
		return d.records[i], true
	}
	return Record{}, false
}

func (d Debt) indexOf(id uuid.UUID) int {
	for i, r := range d.records {
		if r.ID == id {
			return i
		}
	}
	return -1
}

var (
	// ErrValidation is wrapped by every input error.
	ErrValidation       = errors.New("validation failed")
	ErrEmptyName        = fmt.Errorf("%w: name can't be empty", ErrValidation)
	ErrInvalidAmount    = fmt.Errorf("%w: amount must be positive", ErrValidation)
	ErrInvalidDirection = fmt.Errorf("%w: direction must be lent or borrowed", ErrValidation)
	ErrInvalidKind      = fmt.Errorf("%w: unsupported record kind", ErrValidation)
	ErrInvalidAccount   = fmt.Errorf("%w: unknown account", ErrValidation)

	// ErrRecordNotFound means the caller holds a stale record reference and
	// should re-fetch the debt.
	ErrRecordNotFound = errors.New("record not found")
	// ErrLastRecord is returned when deleting the only remaining record.
	// Delete the debt instead.
	ErrLastRecord = errors.New("can't delete the last record of a debt")

	ErrDebtNotFound = errors.New("debt not found")
	// ErrConflict means the debt changed between read and write.
	ErrConflict = errors.New("debt was modified concurrently")
)

type debtJSON struct {
	ID             uuid.UUID       `json:"id"`
	UserID         uuid.UUID       `json:"user_id"`
	Name           string          `json:"name"`
	Direction      Direction       `json:"direction"`
	Origin         Direction       `json:"origin_direction,omitempty"`
	Amount         decimal.Decimal `json:"amount"`
	OriginalAmount decimal.Decimal `json:"original_amount"`
	Status         Status          `json:"status"`
	Records        []Record        `json:"records"`
	Version        int64           `json:"version"`
	CreatedAt      time.Time       `json:"created_at"`
	LastUpdated    time.Time       `json:"last_updated"`
}

func (d Debt) MarshalJSON() ([]byte, error) {
	records := d.records
	if records == nil {
		records = []Record{}
	}
	return json.Marshal(debtJSON{
		ID:             d.ID,
		UserID:         d.UserID,
		Name:           d.Name,
		Direction:      d.direction,
		Origin:         d.origin,
		Amount:         d.amount,
		OriginalAmount: d.originalAmount,
		Status:         d.status,
		Records:        records,
		Version:        d.Version,
		CreatedAt:      d.CreatedAt,
		LastUpdated:    d.LastUpdated,
	})
}

func (d *Debt) UnmarshalJSON(data []byte) error {
	var raw debtJSON
	if err := json.Unmarshal(data, &raw); err != nil {
		return err
	}
	*d = Debt{
		ID:             raw.ID,
		UserID:         raw.UserID,
		Name:           raw.Name,
		Version:        raw.Version,
		CreatedAt:      raw.CreatedAt,
		LastUpdated:    raw.LastUpdated,
		direction:      raw.Direction,
		origin:         raw.Origin,
		amount:         raw.Amount,
		originalAmount: raw.OriginalAmount,
		status:         raw.Status,
		records:        raw.Records,
	}
	return nil
}
