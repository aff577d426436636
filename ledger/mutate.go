package ledger

import (
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

var now = func() time.Time { return time.Now().UTC() }

// RecordInput carries the user-supplied fields of a record.
type RecordInput struct {
	Amount      decimal.Decimal
	Description string
	Account     Account
	Date        time.Time
}

// RecordEdit replaces fields of an existing record. Empty Kind, Description,
// Account and Date keep the current values; Amount is always required.
type RecordEdit struct {
	Kind Kind
	RecordInput
}

func (in RecordInput) record(kind Kind, at time.Time) (Record, error) {
	if !in.Amount.IsPositive() {
		return Record{}, ErrInvalidAmount
	}

	account := in.Account
	if account == "" {
		account = AccountCash
	}
	if !account.Valid() {
		return Record{}, ErrInvalidAccount
	}

	description := strings.TrimSpace(in.Description)
	if description == "" {
		description = kind.placeholder()
	}

	date := in.Date
	if date.IsZero() {
		date = at
	}

	return Record{
		ID:          uuid.New(),
		Kind:        kind,
		Amount:      in.Amount,
		Description: description,
		Account:     account,
		Date:        truncateDay(date),
		EnteredAt:   at,
	}, nil
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

// NewDebt starts a debt with a single Initial record.
func NewDebt(userID uuid.UUID, name string, direction Direction, in RecordInput) (Debt, error) {
	name = strings.TrimSpace(name)
	if name == "" {
		return Debt{}, ErrEmptyName
	}

	if !direction.Valid() {
		return Debt{}, ErrInvalidDirection
	}

	at := now()
	initial, err := in.record(KindInitial, at)
	if err != nil {
		return Debt{}, err
	}

	d := Debt{
		ID:             uuid.New(),
		UserID:         userID,
		Name:           name,
		CreatedAt:      at,
		originalAmount: initial.Amount,
	}
	return d.replayed([]Record{initial}, direction, at), nil
}

// AppendRecord applies a repayment or an additional advance to the current
// balance. A repayment larger than the outstanding amount flips the direction.
func (d Debt) AppendRecord(kind Kind, in RecordInput) (Debt, error) {
	if kind != KindIncrease && kind != KindRepay {
		return Debt{}, ErrInvalidKind
	}

	at := now()
	rec, err := in.record(kind, at)
	if err != nil {
		return Debt{}, err
	}

	res := resultOf(step(signed(d.amount, d.direction), rec, d.direction))

	records := make([]Record, 0, len(d.records)+1)
	records = append(records, d.records...)
	d.records = append(records, rec)
	d.amount = res.Amount
	d.direction = res.Direction
	d.status = res.Status
	d.LastUpdated = at
	return d, nil
}

// EditRecord replaces a historical record and replays the whole ledger.
func (d Debt) EditRecord(recordID uuid.UUID, edit RecordEdit) (Debt, error) {
	i := d.indexOf(recordID)
	if i < 0 {
		return Debt{}, ErrRecordNotFound
	}
	current := d.records[i]

	kind := current.Kind
	if edit.Kind != "" && edit.Kind != current.Kind {
		// Exactly one Initial record, and it stays first.
		if current.Kind == KindInitial || edit.Kind == KindInitial || !edit.Kind.Valid() {
			return Debt{}, ErrInvalidKind
		}
		kind = edit.Kind
	}

	in := edit.RecordInput
	if strings.TrimSpace(in.Description) == "" {
		in.Description = current.Description
	}
	if in.Account == "" {
		in.Account = current.Account
	}
	if in.Date.IsZero() {
		in.Date = current.Date
	}

	rec, err := in.record(kind, current.EnteredAt)
	if err != nil {
		return Debt{}, err
	}
	rec.ID = current.ID
	if kind == KindInitial {
		d.originalAmount = rec.Amount
	}

	start := d.startingDirection()
	records := d.Records()
	records[i] = rec
	return d.replayed(records, start, now()), nil
}

// DeleteRecord removes a historical record and replays the rest. The Initial
// record may go as long as another record remains.
func (d Debt) DeleteRecord(recordID uuid.UUID) (Debt, error) {
	i := d.indexOf(recordID)
	if i < 0 {
		return Debt{}, ErrRecordNotFound
	}
	if len(d.records) == 1 {
		return Debt{}, ErrLastRecord
	}

	start := d.startingDirection()
	records := make([]Record, 0, len(d.records)-1)
	records = append(records, d.records[:i]...)
	records = append(records, d.records[i+1:]...)
	return d.replayed(records, start, now()), nil
}

func (d Debt) replayed(records []Record, start Direction, at time.Time) Debt {
	res := Replay(records, start)
	d.records = records
	d.origin = start
	d.amount = res.Amount
	d.direction = res.Direction
	d.status = res.Status
	d.LastUpdated = at
	return d
}
