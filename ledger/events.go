package ledger

import (
	"strconv"
	"time"

	"github.com/billbatista/acasinha-debts/eventlogger"
	"github.com/google/uuid"
	"github.com/shopspring/decimal"
)

const (
	EventDebtCreated    = "debt.created"
	EventRecordAppended = "debt.record_appended"
	EventRecordEdited   = "debt.record_edited"
	EventRecordDeleted  = "debt.record_deleted"
	EventDebtDeleted    = "debt.deleted"
)

// BalanceChange is the state before and after a mutation.
type BalanceChange struct {
	FromAmount    decimal.Decimal `json:"from_amount"`
	FromDirection Direction       `json:"from_direction"`
	ToAmount      decimal.Decimal `json:"to_amount"`
	ToDirection   Direction       `json:"to_direction"`
	Status        Status          `json:"status"`
}

type DebtCreatedEvent struct {
	Name      string          `json:"name"`
	Direction Direction       `json:"direction"`
	Amount    decimal.Decimal `json:"amount"`
	CreatedAt time.Time       `json:"created_at"`
}

type RecordAppendedEvent struct {
	Record Record `json:"record"`
	BalanceChange
}

type RecordEditedEvent struct {
	Before Record `json:"before"`
	After  Record `json:"after"`
	BalanceChange
}

type RecordDeletedEvent struct {
	Record Record `json:"record"`
	BalanceChange
}

type DebtDeletedEvent struct {
	Name      string          `json:"name"`
	Amount    decimal.Decimal `json:"amount"`
	Direction Direction       `json:"direction"`
}

func balanceChange(before, after Debt) BalanceChange {
	return BalanceChange{
		FromAmount:    before.amount,
		FromDirection: before.direction,
		ToAmount:      after.amount,
		ToDirection:   after.direction,
		Status:        after.status,
	}
}

func debtEvent(eventType string, d Debt, data any) eventlogger.Event {
	return eventlogger.NewEvent(
		eventlogger.WithType(eventType),
		eventlogger.WithActor(d.UserID),
		eventlogger.WithSubject(d.ID),
		eventlogger.WithData(data),
		eventlogger.WithMetadata(map[string]string{
			"version": strconv.FormatInt(d.Version, 10),
		}),
	)
}

func createdEvent(d Debt) eventlogger.Event {
	return debtEvent(EventDebtCreated, d, DebtCreatedEvent{
		Name:      d.Name,
		Direction: d.direction,
		Amount:    d.amount,
		CreatedAt: d.CreatedAt,
	})
}

func appendedEvent(before, after Debt, rec Record) eventlogger.Event {
	return debtEvent(EventRecordAppended, after, RecordAppendedEvent{
		Record:        rec,
		BalanceChange: balanceChange(before, after),
	})
}

func editedEvent(before, after Debt, recordID uuid.UUID) eventlogger.Event {
	old, _ := before.Record(recordID)
	updated, _ := after.Record(recordID)
	return debtEvent(EventRecordEdited, after, RecordEditedEvent{
		Before:        old,
		After:         updated,
		BalanceChange: balanceChange(before, after),
	})
}

func deletedRecordEvent(before, after Debt, recordID uuid.UUID) eventlogger.Event {
	old, _ := before.Record(recordID)
	return debtEvent(EventRecordDeleted, after, RecordDeletedEvent{
		Record:        old,
		BalanceChange: balanceChange(before, after),
	})
}

func deletedDebtEvent(d Debt) eventlogger.Event {
	return debtEvent(EventDebtDeleted, d, DebtDeletedEvent{
		Name:      d.Name,
		Amount:    d.amount,
		Direction: d.direction,
	})
}
