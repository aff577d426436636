package ledger

import (
	"context"
	"log/slog"

	"github.com/billbatista/acasinha-debts/eventlogger"
	"github.com/google/uuid"
)

type Repository interface {
	List(ctx context.Context, userID uuid.UUID) ([]Debt, error)
	Get(ctx context.Context, userID, debtID uuid.UUID) (Debt, error)
	Create(ctx context.Context, d Debt) (int64, error)
	Update(ctx context.Context, d Debt) (int64, error)
	Delete(ctx context.Context, userID, debtID uuid.UUID) error
}

// ListCache caches each user's debt list and signals its changes.
type ListCache interface {
	BuildKey(ctx context.Context, scope string, parts ...string) (string, error)
	FetchJSON(ctx context.Context, key string, dest any, loader func(context.Context) (any, error)) error
	Bump(ctx context.Context, scope string) error
	Subscribe(ctx context.Context, scope string) (<-chan struct{}, error)
}

type EventLogger interface {
	Log(event eventlogger.Event)
}

type MutationRecorder interface {
	DebtMutation(op string, err error)
}

// Service applies coordinator operations as read-modify-write cycles against
// the repository. Cache, events and metrics are optional.
type Service struct {
	repo    Repository
	cache   ListCache
	events  EventLogger
	metrics MutationRecorder
	log     *slog.Logger
}

func NewService(repo Repository, cache ListCache, events EventLogger, metrics MutationRecorder, logger *slog.Logger) *Service {
	if logger == nil {
		logger = slog.Default()
	}
	return &Service{
		repo:    repo,
		cache:   cache,
		events:  events,
		metrics: metrics,
		log:     logger,
	}
}

// List returns the user's debts matching f, most recently updated first.
func (s *Service) List(ctx context.Context, userID uuid.UUID, f Filter) ([]Debt, error) {
	debts, err := s.all(ctx, userID)
	if err != nil {
		return nil, err
	}
	return Select(debts, f), nil
}

func (s *Service) Summary(ctx context.Context, userID uuid.UUID) (Summary, error) {
	debts, err := s.all(ctx, userID)
	if err != nil {
		return Summary{}, err
	}
	return Summarize(debts), nil
}

func (s *Service) all(ctx context.Context, userID uuid.UUID) ([]Debt, error) {
	if s.cache == nil {
		return s.repo.List(ctx, userID)
	}

	scope := userID.String()
	key, err := s.cache.BuildKey(ctx, scope, "list")
	if err == nil {
		var debts []Debt
		err = s.cache.FetchJSON(ctx, key, &debts, func(ctx context.Context) (any, error) {
			return s.repo.List(ctx, userID)
		})
		if err == nil {
			return debts, nil
		}
	}
	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	s.log.Warn("debt list cache unavailable, reading from store", "error", err, "user_id", userID)
	return s.repo.List(ctx, userID)
}

func (s *Service) Get(ctx context.Context, userID, debtID uuid.UUID) (Debt, error) {
	return s.repo.Get(ctx, userID, debtID)
}

func (s *Service) Create(ctx context.Context, userID uuid.UUID, name string, direction Direction, in RecordInput) (Debt, error) {
	d, err := NewDebt(userID, name, direction, in)
	if err == nil {
		d.Version, err = s.repo.Create(ctx, d)
	}
	s.record("create", err)
	if err != nil {
		return Debt{}, err
	}

	s.changed(ctx, userID, createdEvent(d))
	return d, nil
}

func (s *Service) AppendRecord(ctx context.Context, userID, debtID uuid.UUID, kind Kind, in RecordInput) (Debt, error) {
	before, after, err := s.mutate(ctx, "append_record", userID, debtID, func(d Debt) (Debt, error) {
		return d.AppendRecord(kind, in)
	})
	if err != nil {
		return Debt{}, err
	}

	s.changed(ctx, userID, appendedEvent(before, after, after.records[len(after.records)-1]))
	return after, nil
}

func (s *Service) EditRecord(ctx context.Context, userID, debtID, recordID uuid.UUID, edit RecordEdit) (Debt, error) {
	before, after, err := s.mutate(ctx, "edit_record", userID, debtID, func(d Debt) (Debt, error) {
		return d.EditRecord(recordID, edit)
	})
	if err != nil {
		return Debt{}, err
	}

	s.changed(ctx, userID, editedEvent(before, after, recordID))
	return after, nil
}

func (s *Service) DeleteRecord(ctx context.Context, userID, debtID, recordID uuid.UUID) (Debt, error) {
	before, after, err := s.mutate(ctx, "delete_record", userID, debtID, func(d Debt) (Debt, error) {
		return d.DeleteRecord(recordID)
	})
	if err != nil {
		return Debt{}, err
	}

	s.changed(ctx, userID, deletedRecordEvent(before, after, recordID))
	return after, nil
}

func (s *Service) DeleteDebt(ctx context.Context, userID, debtID uuid.UUID) error {
	d, err := s.repo.Get(ctx, userID, debtID)
	if err == nil {
		err = s.repo.Delete(ctx, userID, debtID)
	}
	s.record("delete_debt", err)
	if err != nil {
		return err
	}

	s.changed(ctx, userID, deletedDebtEvent(d))
	return nil
}

// mutate loads the debt, applies fn and writes the result back guarded by the
// version it was read at. A concurrent writer makes it fail with ErrConflict.
func (s *Service) mutate(ctx context.Context, op string, userID, debtID uuid.UUID, fn func(Debt) (Debt, error)) (Debt, Debt, error) {
	before, err := s.repo.Get(ctx, userID, debtID)
	if err != nil {
		s.record(op, err)
		return Debt{}, Debt{}, err
	}
	if !before.Consistent() {
		s.log.Warn("stored debt state differs from its records, replaying",
			"debt_id", debtID, "amount", before.amount, "direction", before.direction)
		before = before.repaired()
	}

	after, err := fn(before)
	if err == nil {
		after.Version, err = s.repo.Update(ctx, after)
	}
	s.record(op, err)
	if err != nil {
		return Debt{}, Debt{}, err
	}
	return before, after, nil
}

func (s *Service) record(op string, err error) {
	if s.metrics != nil {
		s.metrics.DebtMutation(op, err)
	}
}

func (s *Service) changed(ctx context.Context, userID uuid.UUID, event eventlogger.Event) {
	if s.cache != nil {
		if err := s.cache.Bump(ctx, userID.String()); err != nil {
			s.log.Error("failed to invalidate debt list", "error", err, "user_id", userID)
		}
	}
	if s.events != nil {
		s.events.Log(event)
	}
}

// Subscribe pushes the user's full debt list once immediately and again after
// every change. The channel is closed when ctx ends.
func (s *Service) Subscribe(ctx context.Context, userID uuid.UUID) (<-chan []Debt, error) {
	var signals <-chan struct{}
	if s.cache != nil {
		var err error
		signals, err = s.cache.Subscribe(ctx, userID.String())
		if err != nil {
			return nil, err
		}
	}

	out := make(chan []Debt)
	go func() {
		defer close(out)
		for {
			debts, err := s.List(ctx, userID, Filter{})
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				s.log.Error("failed to load debts for subscriber", "error", err, "user_id", userID)
			} else {
				select {
				case out <- debts:
				case <-ctx.Done():
					return
				}
			}

			select {
			case <-ctx.Done():
				return
			case _, ok := <-signals:
				if !ok {
					return
				}
			}
		}
	}()
	return out, nil
}
