package workorders

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/require"

	"github.com/meridian-cmms/meridian-cmms/internal/inventory"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

type memoryRepo struct {
	orders map[int64]WorkOrder
	nextID int64
	seq    int64
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{orders: make(map[int64]WorkOrder)}
}

func (r *memoryRepo) Create(ctx context.Context, wo WorkOrder) (WorkOrder, error) {
	r.seq++
	r.nextID++
	wo.ID = r.nextID
	wo.Number = fmt.Sprintf("WO-%06d", r.seq)
	r.orders[wo.ID] = wo
	return wo, nil
}

func (r *memoryRepo) Get(ctx context.Context, id int64) (WorkOrder, error) {
	wo, ok := r.orders[id]
	if !ok {
		return WorkOrder{}, ErrNotFound
	}
	return wo, nil
}

func (r *memoryRepo) GetByNumber(ctx context.Context, number string) (WorkOrder, error) {
	for _, wo := range r.orders {
		if wo.Number == number {
			return wo, nil
		}
	}
	return WorkOrder{}, ErrNotFound
}

func (r *memoryRepo) List(ctx context.Context, filter Filter) ([]WorkOrder, int, error) {
	matched := []WorkOrder{}
	for _, wo := range r.orders {
		if filter.Status != "" && wo.Status != filter.Status {
			continue
		}
		if filter.EquipmentID != 0 && wo.EquipmentID != filter.EquipmentID {
			continue
		}
		matched = append(matched, wo)
	}
	return matched, len(matched), nil
}

func (r *memoryRepo) Update(ctx context.Context, wo WorkOrder) error {
	if _, ok := r.orders[wo.ID]; !ok {
		return ErrNotFound
	}
	r.orders[wo.ID] = wo
	return nil
}

type fakeIssuer struct {
	issued  []inventory.TransactionInput
	failOn  int64
	failErr error
}

func (f *fakeIssuer) Issue(ctx context.Context, input inventory.TransactionInput) (inventory.Transaction, error) {
	if f.failOn != 0 && input.ItemID == f.failOn {
		return inventory.Transaction{}, f.failErr
	}
	f.issued = append(f.issued, input)
	return inventory.Transaction{ID: int64(len(f.issued)), ItemID: input.ItemID}, nil
}

type fakeAdvancer struct {
	advanced []int64
	err      error
}

func (f *fakeAdvancer) CompleteOccurrence(ctx context.Context, scheduleID int64) error {
	if f.err != nil {
		return f.err
	}
	f.advanced = append(f.advanced, scheduleID)
	return nil
}

type allowAllEquipment struct{}

func (allowAllEquipment) Exists(ctx context.Context, id int64) error { return nil }

type rejectEquipment struct{}

func (rejectEquipment) Exists(ctx context.Context, id int64) error {
	return fmt.Errorf("equipment: asset not found: %w", shared.ErrNotFound)
}

func openOrder(t *testing.T, svc *Service) WorkOrder {
	t.Helper()
	wo, err := svc.Create(context.Background(), CreateInput{Title: "Replace bearings", EquipmentID: 3})
	require.NoError(t, err)
	return wo
}

func TestCreateAssignsSequentialNumbers(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)

	first := openOrder(t, svc)
	second := openOrder(t, svc)

	require.Equal(t, "WO-000001", first.Number)
	require.Equal(t, "WO-000002", second.Number)
	require.Equal(t, StatusOpen, first.Status)
	require.Equal(t, PriorityMedium, first.Priority, "priority defaults when not supplied")
	require.NotNil(t, first.Tasks)
}

func TestCreateValidation(t *testing.T) {
	svc := NewService(newMemoryRepo(), nil, nil, nil, nil)
	ctx := context.Background()

	_, err := svc.Create(ctx, CreateInput{Title: " ", EquipmentID: 1})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Title: "No asset"})
	require.ErrorIs(t, err, shared.ErrValidation)

	_, err = svc.Create(ctx, CreateInput{Title: "Bad priority", EquipmentID: 1, Priority: Priority("URGENT")})
	require.ErrorIs(t, err, ErrInvalidPriority)

	guarded := NewService(newMemoryRepo(), nil, nil, rejectEquipment{}, nil)
	_, err = guarded.Create(ctx, CreateInput{Title: "Ghost asset", EquipmentID: 99})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestLifecycleTransitions(t *testing.T) {
	repo := newMemoryRepo()
	svc := NewService(repo, nil, nil, nil, nil)
	ctx := context.Background()

	wo := openOrder(t, svc)

	// completing an order that was never started is not allowed
	_, err := svc.Complete(ctx, CompleteInput{WorkOrderID: wo.ID})
	require.ErrorIs(t, err, ErrInvalidTransition)

	started, err := svc.Start(ctx, wo.ID, 5)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, started.Status)
	require.NotNil(t, started.StartedAt)

	_, err = svc.Start(ctx, wo.ID, 5)
	require.ErrorIs(t, err, ErrInvalidTransition)

	done, err := svc.Complete(ctx, CompleteInput{WorkOrderID: wo.ID, Note: "bearings replaced"})
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, done.Status)
	require.NotNil(t, done.CompletedAt)
	require.Equal(t, "bearings replaced", done.CompletionNote)

	_, err = svc.Cancel(ctx, wo.ID, "too late", 5)
	require.ErrorIs(t, err, ErrInvalidTransition)
}

func TestCompleteIssuesPartsAgainstLedger(t *testing.T) {
	repo := newMemoryRepo()
	issuer := &fakeIssuer{}
	svc := NewService(repo, issuer, nil, nil, nil)
	ctx := context.Background()

	wo := openOrder(t, svc)
	_, err := svc.Start(ctx, wo.ID, 0)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, CompleteInput{
		WorkOrderID: wo.ID,
		Parts: []PartUsage{
			{ItemID: 11, Quantity: 2},
			{ItemID: 12, Quantity: 1},
		},
		ActorID: 9,
	})
	require.NoError(t, err)

	require.Len(t, issuer.issued, 2)
	for _, issue := range issuer.issued {
		require.NotNil(t, issue.WorkOrderID)
		require.Equal(t, wo.ID, *issue.WorkOrderID)
		require.Equal(t, wo.Number, issue.Reference)
		require.True(t, issue.ReleaseReserved, "reserved stock is released as it is consumed")
		require.EqualValues(t, 9, issue.ActorID)
	}
}

func TestCompletePropagatesPartFailure(t *testing.T) {
	repo := newMemoryRepo()
	issuer := &fakeIssuer{failOn: 12, failErr: inventory.ErrInsufficientStock}
	svc := NewService(repo, issuer, nil, nil, nil)
	ctx := context.Background()

	wo := openOrder(t, svc)
	_, err := svc.Start(ctx, wo.ID, 0)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, CompleteInput{
		WorkOrderID: wo.ID,
		Parts: []PartUsage{
			{ItemID: 11, Quantity: 1},
			{ItemID: 12, Quantity: 5},
		},
	})
	require.ErrorIs(t, err, inventory.ErrInsufficientStock)

	current, err := svc.Get(ctx, wo.ID)
	require.NoError(t, err)
	require.Equal(t, StatusInProgress, current.Status, "failed completion leaves the order in progress")
	require.Len(t, issuer.issued, 1, "parts issued before the failure stay on the ledger")
}

func TestCompleteAdvancesOriginSchedule(t *testing.T) {
	repo := newMemoryRepo()
	advancer := &fakeAdvancer{}
	svc := NewService(repo, nil, advancer, nil, nil)
	ctx := context.Background()

	scheduleID := int64(44)
	wo, err := svc.Create(ctx, CreateInput{Title: "Monthly PM", EquipmentID: 2, ScheduleID: &scheduleID})
	require.NoError(t, err)
	_, err = svc.Start(ctx, wo.ID, 0)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, CompleteInput{WorkOrderID: wo.ID})
	require.NoError(t, err)
	require.Equal(t, []int64{44}, advancer.advanced)

	// a manual order has no schedule to advance
	manual := openOrder(t, svc)
	_, err = svc.Start(ctx, manual.ID, 0)
	require.NoError(t, err)
	_, err = svc.Complete(ctx, CompleteInput{WorkOrderID: manual.ID})
	require.NoError(t, err)
	require.Len(t, advancer.advanced, 1)
}

func TestCompleteSurfacesAdvanceFailure(t *testing.T) {
	repo := newMemoryRepo()
	advancer := &fakeAdvancer{err: errors.New("schedule store down")}
	svc := NewService(repo, nil, advancer, nil, nil)
	ctx := context.Background()

	scheduleID := int64(7)
	wo, err := svc.Create(ctx, CreateInput{Title: "Quarterly PM", EquipmentID: 2, ScheduleID: &scheduleID})
	require.NoError(t, err)
	_, err = svc.Start(ctx, wo.ID, 0)
	require.NoError(t, err)

	_, err = svc.Complete(ctx, CompleteInput{WorkOrderID: wo.ID})
	require.Error(t, err)

	// the order itself is closed; only the schedule advance is reported
	current, err := svc.Get(ctx, wo.ID)
	require.NoError(t, err)
	require.Equal(t, StatusCompleted, current.Status)
}
