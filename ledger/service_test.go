package ledger

import (
	"bytes"
	"context"
	"log/slog"
	"sync"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/billbatista/acasinha-debts/cache"
	"github.com/billbatista/acasinha-debts/eventlogger"
	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type memRepo struct {
	mu    sync.Mutex
	debts map[uuid.UUID]Debt
	lists int
}

func newMemRepo() *memRepo {
	return &memRepo{debts: make(map[uuid.UUID]Debt)}
}

func (m *memRepo) List(_ context.Context, userID uuid.UUID) ([]Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.lists++
	out := make([]Debt, 0)
	for _, d := range m.debts {
		if d.UserID == userID {
			out = append(out, d)
		}
	}
	return out, nil
}

func (m *memRepo) Get(_ context.Context, userID, debtID uuid.UUID) (Debt, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debts[debtID]
	if !ok || d.UserID != userID {
		return Debt{}, ErrDebtNotFound
	}
	return d, nil
}

func (m *memRepo) Create(_ context.Context, d Debt) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	d.Version = 1
	m.debts[d.ID] = d
	return 1, nil
}

func (m *memRepo) Update(_ context.Context, d Debt) (int64, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.debts[d.ID]
	if !ok || stored.UserID != d.UserID {
		return 0, ErrDebtNotFound
	}
	if stored.Version != d.Version {
		return 0, ErrConflict
	}
	d.Version++
	m.debts[d.ID] = d
	return d.Version, nil
}

func (m *memRepo) Delete(_ context.Context, userID, debtID uuid.UUID) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	d, ok := m.debts[debtID]
	if !ok || d.UserID != userID {
		return ErrDebtNotFound
	}
	delete(m.debts, debtID)
	return nil
}

func (m *memRepo) listCalls() int {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.lists
}

type eventSink struct {
	mu     sync.Mutex
	events []eventlogger.Event
}

func (s *eventSink) Log(e eventlogger.Event) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.events = append(s.events, e)
}

func (s *eventSink) types() []string {
	s.mu.Lock()
	defer s.mu.Unlock()
	out := make([]string, 0, len(s.events))
	for _, e := range s.events {
		out = append(out, e.Type)
	}
	return out
}

type mutationCounter struct {
	mu   sync.Mutex
	seen map[string][]error
}

func (c *mutationCounter) DebtMutation(op string, err error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.seen == nil {
		c.seen = make(map[string][]error)
	}
	c.seen[op] = append(c.seen[op], err)
}

type fixture struct {
	svc     *Service
	repo    *memRepo
	events  *eventSink
	metrics *mutationCounter
	redis   *miniredis.Miniredis
	user    uuid.UUID
}

func newFixture(t *testing.T) fixture {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })

	f := fixture{
		repo:    newMemRepo(),
		events:  &eventSink{},
		metrics: &mutationCounter{},
		redis:   mr,
		user:    uuid.New(),
	}
	f.svc = NewService(f.repo, cache.NewCache(client, time.Minute), f.events, f.metrics, nil)
	return f
}

func TestServiceLifecycle(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, f.user, "Alice", DirectionLent, RecordInput{Amount: dec("500")})
	require.NoError(t, err)
	require.Equal(t, int64(1), d.Version)

	d, err = f.svc.AppendRecord(ctx, f.user, d.ID, KindRepay, RecordInput{Amount: dec("800")})
	require.NoError(t, err)
	require.Equal(t, int64(2), d.Version)
	requireState(t, d, "300", DirectionBorrowed, StatusActive)

	repay := d.Records()[1]
	d, err = f.svc.EditRecord(ctx, f.user, d.ID, repay.ID, RecordEdit{RecordInput: RecordInput{Amount: dec("400")}})
	require.NoError(t, err)
	requireState(t, d, "100", DirectionLent, StatusActive)

	d, err = f.svc.DeleteRecord(ctx, f.user, d.ID, repay.ID)
	require.NoError(t, err)
	requireState(t, d, "500", DirectionLent, StatusActive)

	stored, err := f.svc.Get(ctx, f.user, d.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(4), stored.Version)

	require.NoError(t, f.svc.DeleteDebt(ctx, f.user, d.ID))
	_, err = f.svc.Get(ctx, f.user, d.ID)
	require.ErrorIs(t, err, ErrDebtNotFound)

	assert.Equal(t, []string{
		EventDebtCreated,
		EventRecordAppended,
		EventRecordEdited,
		EventRecordDeleted,
		EventDebtDeleted,
	}, f.events.types())
	for _, e := range f.events.events {
		assert.Equal(t, f.user, e.ActorID)
		assert.Equal(t, d.ID, e.SubjectID)
	}
}

func TestServiceErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.user, "", DirectionLent, RecordInput{Amount: dec("1")})
	require.ErrorIs(t, err, ErrValidation)

	_, err = f.svc.AppendRecord(ctx, f.user, uuid.New(), KindRepay, RecordInput{Amount: dec("1")})
	require.ErrorIs(t, err, ErrDebtNotFound)

	d, err := f.svc.Create(ctx, f.user, "Alice", DirectionLent, RecordInput{Amount: dec("10")})
	require.NoError(t, err)

	_, err = f.svc.DeleteRecord(ctx, f.user, d.ID, d.Records()[0].ID)
	require.ErrorIs(t, err, ErrLastRecord)

	_, err = f.svc.EditRecord(ctx, f.user, d.ID, uuid.New(), RecordEdit{RecordInput: RecordInput{Amount: dec("1")}})
	require.ErrorIs(t, err, ErrRecordNotFound)

	// Another user can't see or touch it.
	_, err = f.svc.AppendRecord(ctx, uuid.New(), d.ID, KindRepay, RecordInput{Amount: dec("1")})
	require.ErrorIs(t, err, ErrDebtNotFound)

	assert.Equal(t, []string{EventDebtCreated}, f.events.types())
	assert.Len(t, f.metrics.seen["create"], 2)
	assert.ErrorIs(t, f.metrics.seen["delete_record"][0], ErrLastRecord)
}

func TestServiceConflict(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	d, err := f.svc.Create(ctx, f.user, "Alice", DirectionLent, RecordInput{Amount: dec("100")})
	require.NoError(t, err)

	// A writer that read version 1 loses against one that already bumped it.
	stale, err := d.AppendRecord(KindRepay, RecordInput{Amount: dec("10")})
	require.NoError(t, err)

	_, err = f.svc.AppendRecord(ctx, f.user, d.ID, KindIncrease, RecordInput{Amount: dec("5")})
	require.NoError(t, err)

	_, err = f.repo.Update(ctx, stale)
	require.ErrorIs(t, err, ErrConflict)

	stored, err := f.svc.Get(ctx, f.user, d.ID)
	require.NoError(t, err)
	requireState(t, stored, "105", DirectionLent, StatusActive)
}

func TestServiceRepairsDriftedState(t *testing.T) {
	f := newFixture(t)
	var logs bytes.Buffer
	f.svc = NewService(f.repo, nil, f.events, f.metrics, slog.New(slog.NewTextHandler(&logs, nil)))
	ctx := context.Background()

	d, err := f.svc.Create(ctx, f.user, "Alice", DirectionLent, RecordInput{Amount: dec("500")})
	require.NoError(t, err)

	drifted := f.repo.debts[d.ID]
	drifted.amount = dec("90")
	f.repo.debts[d.ID] = drifted
	require.False(t, drifted.Consistent())

	d, err = f.svc.AppendRecord(ctx, f.user, d.ID, KindRepay, RecordInput{Amount: dec("100")})
	require.NoError(t, err)
	requireState(t, d, "400", DirectionLent, StatusActive)
	assert.Contains(t, logs.String(), "stored debt state differs from its records")
}

func TestServiceListUsesCache(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.user, "Alice", DirectionLent, RecordInput{Amount: dec("500")})
	require.NoError(t, err)
	_, err = f.svc.Create(ctx, f.user, "Bob", DirectionBorrowed, RecordInput{Amount: dec("200")})
	require.NoError(t, err)

	first, err := f.svc.List(ctx, f.user, Filter{})
	require.NoError(t, err)
	require.Len(t, first, 2)

	second, err := f.svc.List(ctx, f.user, Filter{Direction: DirectionBorrowed})
	require.NoError(t, err)
	require.Equal(t, []string{"Bob"}, names(second))
	assert.Equal(t, 1, f.repo.listCalls())

	for _, d := range first {
		requireState(t, d, d.Amount().String(), d.Direction(), d.Status())
	}

	_, err = f.svc.Create(ctx, f.user, "Carol", DirectionLent, RecordInput{Amount: dec("50")})
	require.NoError(t, err)

	third, err := f.svc.List(ctx, f.user, Filter{})
	require.NoError(t, err)
	require.Len(t, third, 3)
	assert.Equal(t, 2, f.repo.listCalls())

	summary, err := f.svc.Summary(ctx, f.user)
	require.NoError(t, err)
	assert.True(t, summary.Lent.Equal(dec("550")))
	assert.True(t, summary.Borrowed.Equal(dec("200")))
}

func TestServiceListFallsBackWithoutRedis(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	_, err := f.svc.Create(ctx, f.user, "Alice", DirectionLent, RecordInput{Amount: dec("500")})
	require.NoError(t, err)

	f.redis.Close()

	debts, err := f.svc.List(ctx, f.user, Filter{})
	require.NoError(t, err)
	require.Len(t, debts, 1)
}

func TestServiceSubscribe(t *testing.T) {
	f := newFixture(t)
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	updates, err := f.svc.Subscribe(ctx, f.user)
	require.NoError(t, err)

	initial := receive(t, updates)
	require.Empty(t, initial)

	_, err = f.svc.Create(ctx, f.user, "Alice", DirectionLent, RecordInput{Amount: dec("500")})
	require.NoError(t, err)

	next := receive(t, updates)
	require.Equal(t, []string{"Alice"}, names(next))

	// Changes of other users don't wake this subscriber.
	_, err = f.svc.Create(ctx, uuid.New(), "Mallory", DirectionLent, RecordInput{Amount: dec("1")})
	require.NoError(t, err)
	select {
	case got := <-updates:
		t.Fatalf("unexpected update: %v", names(got))
	case <-time.After(100 * time.Millisecond):
	}

	cancel()
	require.Eventually(t, func() bool {
		select {
		case _, ok := <-updates:
			return !ok
		default:
			return false
		}
	}, time.Second, 10*time.Millisecond)
}

func receive(t *testing.T, ch <-chan []Debt) []Debt {
	t.Helper()
	select {
	case debts, ok := <-ch:
		require.True(t, ok, "subscription closed")
		return debts
	case <-time.After(2 * time.Second):
		t.Fatal("timed out waiting for update")
		return nil
	}
}
