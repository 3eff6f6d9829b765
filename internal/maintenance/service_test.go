package maintenance

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

type memoryRepo struct {
	mu        sync.Mutex
	schedules map[int64]PMSchedule
	nextID    int64
	dueErr    error
	markErr   map[int64]error
}

func newMemoryRepo() *memoryRepo {
	return &memoryRepo{schedules: map[int64]PMSchedule{}, markErr: map[int64]error{}}
}

func (m *memoryRepo) Create(_ context.Context, s *PMSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	s.ID = m.nextID
	s.Code = fmt.Sprintf("PM-%05d", m.nextID)
	s.CreatedAt = time.Now().UTC()
	s.UpdatedAt = s.CreatedAt
	m.schedules[s.ID] = *s
	return nil
}

func (m *memoryRepo) Get(_ context.Context, id int64) (PMSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[id]
	if !ok {
		return PMSchedule{}, ErrScheduleNotFound
	}
	return s, nil
}

func (m *memoryRepo) GetByCode(_ context.Context, code string) (PMSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, s := range m.schedules {
		if s.Code == code {
			return s, nil
		}
	}
	return PMSchedule{}, ErrScheduleNotFound
}

func (m *memoryRepo) List(_ context.Context, filter Filter) ([]PMSchedule, int, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	var out []PMSchedule
	for _, s := range m.schedules {
		if filter.EquipmentID > 0 && s.EquipmentID != filter.EquipmentID {
			continue
		}
		if !filter.IncludeInactive && !s.Active {
			continue
		}
		out = append(out, s)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].NextDueAt.Before(out[j].NextDueAt) })
	return out, len(out), nil
}

func (m *memoryRepo) Due(_ context.Context, asOf time.Time, limit int) ([]PMSchedule, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if m.dueErr != nil {
		return nil, m.dueErr
	}
	var due []PMSchedule
	for _, s := range m.schedules {
		if !s.NextDueAt.After(asOf) {
			due = append(due, s)
		}
	}
	sort.Slice(due, func(i, j int) bool {
		if due[i].NextDueAt.Equal(due[j].NextDueAt) {
			return due[i].ID < due[j].ID
		}
		return due[i].NextDueAt.Before(due[j].NextDueAt)
	})
	if limit > 0 && len(due) > limit {
		due = due[:limit]
	}
	return due, nil
}

func (m *memoryRepo) Update(_ context.Context, s *PMSchedule) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	stored, ok := m.schedules[s.ID]
	if !ok {
		return ErrScheduleNotFound
	}
	// generation tracking is owned by MarkGenerated
	s.LastGeneratedAt = stored.LastGeneratedAt
	s.LastWorkOrderID = stored.LastWorkOrderID
	s.TotalGenerated = stored.TotalGenerated
	s.UpdatedAt = time.Now().UTC()
	m.schedules[s.ID] = *s
	return nil
}

func (m *memoryRepo) MarkGenerated(_ context.Context, scheduleID int64, dueAt time.Time, workOrderID int64) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if err := m.markErr[scheduleID]; err != nil {
		return err
	}
	s, ok := m.schedules[scheduleID]
	if !ok {
		return ErrScheduleNotFound
	}
	s.LastGeneratedAt = &dueAt
	s.LastWorkOrderID = &workOrderID
	s.TotalGenerated++
	m.schedules[scheduleID] = s
	return nil
}

func (m *memoryRepo) AdvanceNextDue(_ context.Context, scheduleID int64, next time.Time) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	s, ok := m.schedules[scheduleID]
	if !ok {
		return ErrScheduleNotFound
	}
	s.NextDueAt = next
	m.schedules[scheduleID] = s
	return nil
}

type fakeWorkOrders struct {
	mu      sync.Mutex
	created []WorkOrderRequest
	nextID  int64
	failFor map[int64]error
}

func (f *fakeWorkOrders) CreateFromSchedule(_ context.Context, req WorkOrderRequest) (WorkOrderRef, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failFor[req.ScheduleID]; err != nil {
		return WorkOrderRef{}, err
	}
	f.nextID++
	f.created = append(f.created, req)
	return WorkOrderRef{ID: f.nextID, Number: fmt.Sprintf("WO-%06d", f.nextID)}, nil
}

type allowAllEquipment struct{}

func (allowAllEquipment) Exists(context.Context, int64) error { return nil }

type rejectEquipment struct{}

func (rejectEquipment) Exists(context.Context, int64) error {
	return fmt.Errorf("equipment: asset not found: %w", shared.ErrNotFound)
}

func newTestService() (*Service, *memoryRepo, *fakeWorkOrders) {
	repo := newMemoryRepo()
	wo := &fakeWorkOrders{failFor: map[int64]error{}}
	return NewService(repo, wo, allowAllEquipment{}, nil), repo, wo
}

// seedDue inserts a schedule whose due date passed a day ago.
func seedDue(t *testing.T, repo *memoryRepo, mutate func(*PMSchedule)) PMSchedule {
	t.Helper()
	s := PMSchedule{
		EquipmentID:  1,
		Title:        "Monthly lubrication",
		Frequency:    FrequencyMonthly,
		NextDueAt:    time.Now().UTC().Add(-24 * time.Hour).Truncate(time.Second),
		Active:       true,
		AutoGenerate: true,
		Priority:     "MEDIUM",
		Checklist:    []ChecklistTask{{Title: "Grease bearings"}},
	}
	if mutate != nil {
		mutate(&s)
	}
	require.NoError(t, repo.Create(context.Background(), &s))
	return s
}

func TestGenerateDueCreatesWorkOrders(t *testing.T) {
	svc, repo, wo := newTestService()
	ctx := context.Background()

	first := seedDue(t, repo, nil)
	second := seedDue(t, repo, func(s *PMSchedule) { s.Title = "Filter swap" })
	seedDue(t, repo, func(s *PMSchedule) {
		s.Title = "Not due yet"
		s.NextDueAt = time.Now().UTC().Add(30 * 24 * time.Hour)
	})

	summary, err := svc.GenerateDue(ctx, BatchOptions{})
	require.NoError(t, err)
	require.NotEmpty(t, summary.RunID)
	require.Equal(t, 2, summary.Processed)
	require.Equal(t, 2, summary.Generated)
	require.Zero(t, summary.Skipped)
	require.Zero(t, summary.Failed)
	require.False(t, summary.DryRun)
	require.Len(t, wo.created, 2)

	for _, res := range summary.Results {
		require.Equal(t, ResultGenerated, res.Status)
		require.NotEmpty(t, res.WorkOrderNumber)
		require.NotZero(t, res.WorkOrderID)
	}

	stored, err := repo.Get(ctx, first.ID)
	require.NoError(t, err)
	require.NotNil(t, stored.LastGeneratedAt)
	require.True(t, stored.LastGeneratedAt.Equal(first.NextDueAt), "generation stamp must equal the due date it covers")
	require.NotNil(t, stored.LastWorkOrderID)
	require.EqualValues(t, 1, stored.TotalGenerated)
	require.True(t, stored.NextDueAt.Equal(first.NextDueAt), "the generator never moves the due date")

	// the payload carries the schedule back-reference and its checklist
	require.EqualValues(t, second.ID, wo.created[1].ScheduleID)
	require.Equal(t, "Filter swap", wo.created[1].Title)
	require.Len(t, wo.created[0].Tasks, 1)
	require.True(t, wo.created[0].DueAt.Equal(first.NextDueAt))
}

func TestGenerateDueSecondRunSkips(t *testing.T) {
	svc, repo, wo := newTestService()
	ctx := context.Background()

	seedDue(t, repo, nil)
	seedDue(t, repo, func(s *PMSchedule) { s.Title = "Belt inspection" })

	summary, err := svc.GenerateDue(ctx, BatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Generated)

	// nothing advanced the schedules, so the same due set comes back;
	// the generation stamp must make the rerun a no-op
	again, err := svc.GenerateDue(ctx, BatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, again.Processed)
	require.Zero(t, again.Generated)
	require.Equal(t, 2, again.Skipped)
	for _, res := range again.Results {
		require.Equal(t, ResultSkipped, res.Status)
		require.Equal(t, "work order already generated for current due date", res.Reason)
	}
	require.Len(t, wo.created, 2, "no duplicate work orders")
}

func TestGenerateDueDryRunCommitsNothing(t *testing.T) {
	svc, repo, wo := newTestService()
	ctx := context.Background()

	sched := seedDue(t, repo, nil)

	summary, err := svc.GenerateDue(ctx, BatchOptions{DryRun: true})
	require.NoError(t, err)
	require.True(t, summary.DryRun)
	require.Equal(t, 1, summary.Processed)
	require.Equal(t, 1, summary.Generated)
	require.Equal(t, ResultPlanned, summary.Results[0].Status)
	require.True(t, summary.Results[0].DryRun)

	require.Empty(t, wo.created)
	stored, err := repo.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.Nil(t, stored.LastGeneratedAt)
	require.Zero(t, stored.TotalGenerated)

	// a real run afterwards still generates
	live, err := svc.GenerateDue(ctx, BatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, live.Generated)
	require.Equal(t, ResultGenerated, live.Results[0].Status)
}

func TestGenerateDueIsolatesFailures(t *testing.T) {
	svc, repo, wo := newTestService()
	ctx := context.Background()

	first := seedDue(t, repo, nil)
	second := seedDue(t, repo, func(s *PMSchedule) { s.Title = "Doomed" })
	third := seedDue(t, repo, func(s *PMSchedule) { s.Title = "Coupling check" })
	wo.failFor[second.ID] = errors.New("equipment record gone")

	summary, err := svc.GenerateDue(ctx, BatchOptions{})
	require.NoError(t, err, "per-schedule failures never abort the batch")
	require.Equal(t, 3, summary.Processed)
	require.Equal(t, 2, summary.Generated)
	require.Equal(t, 1, summary.Failed)

	require.Equal(t, ResultFailed, summary.Results[1].Status)
	require.Contains(t, summary.Results[1].Reason, "equipment record gone")

	for _, id := range []int64{first.ID, third.ID} {
		stored, err := repo.Get(ctx, id)
		require.NoError(t, err)
		require.NotNil(t, stored.LastGeneratedAt)
	}
	failedStored, err := repo.Get(ctx, second.ID)
	require.NoError(t, err)
	require.Nil(t, failedStored.LastGeneratedAt, "failed schedule keeps its occurrence open")
}

func TestGenerateDueBookkeepingFailureKeepsOccurrenceOpen(t *testing.T) {
	svc, repo, wo := newTestService()
	ctx := context.Background()

	sched := seedDue(t, repo, nil)
	repo.markErr[sched.ID] = errors.New("write timeout")

	summary, err := svc.GenerateDue(ctx, BatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, summary.Failed)
	require.Equal(t, ResultFailed, summary.Results[0].Status)
	require.NotEmpty(t, summary.Results[0].WorkOrderNumber, "the order exists even though tracking failed")
	require.Len(t, wo.created, 1)

	// once the store recovers the schedule is still eligible
	delete(repo.markErr, sched.ID)
	retry, err := svc.GenerateDue(ctx, BatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 1, retry.Generated)
}

func TestGenerateDueSkipReasons(t *testing.T) {
	svc, repo, wo := newTestService()
	ctx := context.Background()

	seedDue(t, repo, func(s *PMSchedule) { s.Active = false })
	seedDue(t, repo, func(s *PMSchedule) { s.AutoGenerate = false })

	summary, err := svc.GenerateDue(ctx, BatchOptions{})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Skipped)
	require.Empty(t, wo.created)

	reasons := []string{summary.Results[0].Reason, summary.Results[1].Reason}
	require.Contains(t, reasons, "schedule inactive")
	require.Contains(t, reasons, "auto-generation disabled")
}

func TestGenerateDueHonorsLimit(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	for i := 0; i < 3; i++ {
		seedDue(t, repo, nil)
	}

	summary, err := svc.GenerateDue(ctx, BatchOptions{Limit: 2})
	require.NoError(t, err)
	require.Equal(t, 2, summary.Processed)
	require.Equal(t, 2, summary.Generated)
}

func TestGenerateDueFetchFailurePropagates(t *testing.T) {
	svc, repo, _ := newTestService()
	repo.dueErr = errors.New("connection refused")

	_, err := svc.GenerateDue(context.Background(), BatchOptions{})
	require.Error(t, err)
	require.ErrorIs(t, err, shared.ErrDependency)
	require.Contains(t, err.Error(), "connection refused")
}

func TestCompleteOccurrenceAdvancesSchedule(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	due := dueAt("2026-09-01")
	sched := PMSchedule{
		EquipmentID: 1, Title: "Monthly lubrication", Frequency: FrequencyMonthly,
		NextDueAt: due, Active: true, AutoGenerate: true, Priority: "MEDIUM",
	}
	require.NoError(t, repo.Create(ctx, &sched))
	require.NoError(t, repo.MarkGenerated(ctx, sched.ID, due, 77))

	covered, err := repo.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.False(t, EvaluateSchedule(covered).Eligible)

	require.NoError(t, svc.CompleteOccurrence(ctx, sched.ID))

	advanced, err := repo.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.Equal(t, "2026-10-01", advanced.NextDueAt.Format("2006-01-02"))
	require.True(t, EvaluateSchedule(advanced).Eligible, "advancing re-arms generation for the next cycle")

	require.ErrorIs(t, svc.CompleteOccurrence(ctx, 999), ErrScheduleNotFound)
}

func TestCreateScheduleDefaults(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()

	sched, err := svc.CreateSchedule(ctx, CreateScheduleInput{
		EquipmentID: 4,
		Title:       "Annual pressure test",
		Frequency:   FrequencyAnnual,
		NextDueAt:   dueAt("2027-01-15"),
	})
	require.NoError(t, err)
	require.Equal(t, "PM-00001", sched.Code)
	require.True(t, sched.Active)
	require.True(t, sched.AutoGenerate)
	require.Equal(t, "MEDIUM", sched.Priority)
	require.NotNil(t, sched.Checklist)
	require.Zero(t, sched.TotalGenerated)
}

func TestCreateScheduleValidation(t *testing.T) {
	svc, _, _ := newTestService()
	ctx := context.Background()
	due := dueAt("2027-01-15")

	cases := []struct {
		name  string
		input CreateScheduleInput
		want  error
	}{
		{"blank title", CreateScheduleInput{EquipmentID: 1, Frequency: FrequencyDaily, NextDueAt: due}, shared.ErrValidation},
		{"missing equipment", CreateScheduleInput{Title: "x", Frequency: FrequencyDaily, NextDueAt: due}, shared.ErrValidation},
		{"unknown frequency", CreateScheduleInput{EquipmentID: 1, Title: "x", Frequency: "FORTNIGHTLY", NextDueAt: due}, ErrInvalidFrequency},
		{"custom without interval", CreateScheduleInput{EquipmentID: 1, Title: "x", Frequency: FrequencyCustom, NextDueAt: due}, ErrInvalidFrequency},
		{"zero due date", CreateScheduleInput{EquipmentID: 1, Title: "x", Frequency: FrequencyDaily}, shared.ErrValidation},
		{"unknown priority", CreateScheduleInput{EquipmentID: 1, Title: "x", Frequency: FrequencyDaily, NextDueAt: due, Priority: "URGENT"}, ErrInvalidPriority},
	}
	for _, tc := range cases {
		_, err := svc.CreateSchedule(ctx, tc.input)
		require.ErrorIs(t, err, tc.want, tc.name)
	}

	rejecting := NewService(newMemoryRepo(), &fakeWorkOrders{}, rejectEquipment{}, nil)
	_, err := rejecting.CreateSchedule(ctx, CreateScheduleInput{
		EquipmentID: 42, Title: "x", Frequency: FrequencyDaily, NextDueAt: due,
	})
	require.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUpdateSchedulePreservesGenerationTracking(t *testing.T) {
	svc, repo, _ := newTestService()
	ctx := context.Background()

	sched := seedDue(t, repo, nil)
	require.NoError(t, repo.MarkGenerated(ctx, sched.ID, sched.NextDueAt, 9))

	moved := dueAt("2027-03-01")
	updated, err := svc.UpdateSchedule(ctx, UpdateScheduleInput{
		ScheduleID:   sched.ID,
		Title:        "Monthly lubrication (revised)",
		Frequency:    FrequencyQuarterly,
		NextDueAt:    moved,
		Active:       true,
		AutoGenerate: true,
		Priority:     "HIGH",
	})
	require.NoError(t, err)
	require.Equal(t, FrequencyQuarterly, updated.Frequency)
	require.True(t, updated.NextDueAt.Equal(moved))

	stored, err := repo.Get(ctx, sched.ID)
	require.NoError(t, err)
	require.EqualValues(t, 1, stored.TotalGenerated, "editing never touches generation tracking")
	require.NotNil(t, stored.LastGeneratedAt)
	require.True(t, EvaluateSchedule(stored).Eligible, "re-anchored due date opens a new occurrence")
}
