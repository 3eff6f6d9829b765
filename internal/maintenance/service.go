package maintenance

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// defaultBatchLimit caps one generator run when the caller does not.
const defaultBatchLimit = 100

// RepositoryPort abstracts schedule persistence.
type RepositoryPort interface {
	Create(ctx context.Context, s *PMSchedule) error
	Get(ctx context.Context, id int64) (PMSchedule, error)
	GetByCode(ctx context.Context, code string) (PMSchedule, error)
	List(ctx context.Context, filter Filter) ([]PMSchedule, int, error)
	Due(ctx context.Context, asOf time.Time, limit int) ([]PMSchedule, error)
	Update(ctx context.Context, s *PMSchedule) error
	MarkGenerated(ctx context.Context, scheduleID int64, dueAt time.Time, workOrderID int64) error
	AdvanceNextDue(ctx context.Context, scheduleID int64, next time.Time) error
}

// WorkOrderPort is the generator's only view of the work order module.
// The app layer adapts the real work order service onto it.
type WorkOrderPort interface {
	CreateFromSchedule(ctx context.Context, req WorkOrderRequest) (WorkOrderRef, error)
}

// EquipmentChecker verifies asset references on new schedules.
type EquipmentChecker interface {
	Exists(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages PM schedules and generates work orders from them.
type Service struct {
	repo       RepositoryPort
	workOrders WorkOrderPort
	equipment  EquipmentChecker
	audit      AuditPort
}

// NewService builds Service. Equipment and audit may be nil when the
// corresponding side effect is not wired, for example in tests.
func NewService(repo RepositoryPort, workOrders WorkOrderPort, equipment EquipmentChecker, audit AuditPort) *Service {
	return &Service{repo: repo, workOrders: workOrders, equipment: equipment, audit: audit}
}

// CreateSchedule registers a new recurring maintenance plan.
func (s *Service) CreateSchedule(ctx context.Context, input CreateScheduleInput) (PMSchedule, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return PMSchedule{}, fmt.Errorf("maintenance: title required: %w", shared.ErrValidation)
	}
	if input.EquipmentID == 0 {
		return PMSchedule{}, fmt.Errorf("maintenance: equipment id required: %w", shared.ErrValidation)
	}
	if s.equipment != nil {
		if err := s.equipment.Exists(ctx, input.EquipmentID); err != nil {
			return PMSchedule{}, err
		}
	}
	if err := validateRecurrence(input.Frequency, input.IntervalDays); err != nil {
		return PMSchedule{}, err
	}
	if input.NextDueAt.IsZero() {
		return PMSchedule{}, fmt.Errorf("maintenance: first due date required: %w", shared.ErrValidation)
	}
	if input.EstimatedMinutes < 0 {
		return PMSchedule{}, fmt.Errorf("maintenance: estimated minutes must not be negative: %w", shared.ErrValidation)
	}
	priority := input.Priority
	if priority == "" {
		priority = "MEDIUM"
	}
	if !validPriority(priority) {
		return PMSchedule{}, fmt.Errorf("%w: %q", ErrInvalidPriority, priority)
	}
	autoGenerate := true
	if input.AutoGenerate != nil {
		autoGenerate = *input.AutoGenerate
	}
	checklist := input.Checklist
	if checklist == nil {
		checklist = []ChecklistTask{}
	}

	sched := PMSchedule{
		EquipmentID:      input.EquipmentID,
		Title:            title,
		Description:      input.Description,
		Frequency:        input.Frequency,
		IntervalDays:     input.IntervalDays,
		NextDueAt:        input.NextDueAt.UTC(),
		Active:           true,
		AutoGenerate:     autoGenerate,
		AssigneeID:       input.AssigneeID,
		Priority:         priority,
		EstimatedMinutes: input.EstimatedMinutes,
		Checklist:        checklist,
	}
	if err := s.repo.Create(ctx, &sched); err != nil {
		return PMSchedule{}, err
	}
	s.recordAudit(ctx, s.actorID(ctx, input.ActorID), "maintenance:create_schedule", sched.Code, map[string]any{
		"schedule_id":  sched.ID,
		"equipment_id": sched.EquipmentID,
		"frequency":    string(sched.Frequency),
	})
	return sched, nil
}

// UpdateSchedule rewrites the editable schedule fields, including the
// next due date. Moving the due date is how a plan is re-anchored after
// ad-hoc maintenance; the generator never moves it.
func (s *Service) UpdateSchedule(ctx context.Context, input UpdateScheduleInput) (PMSchedule, error) {
	sched, err := s.repo.Get(ctx, input.ScheduleID)
	if err != nil {
		return PMSchedule{}, err
	}
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return PMSchedule{}, fmt.Errorf("maintenance: title required: %w", shared.ErrValidation)
	}
	if err := validateRecurrence(input.Frequency, input.IntervalDays); err != nil {
		return PMSchedule{}, err
	}
	if input.NextDueAt.IsZero() {
		return PMSchedule{}, fmt.Errorf("maintenance: next due date required: %w", shared.ErrValidation)
	}
	if !validPriority(input.Priority) {
		return PMSchedule{}, fmt.Errorf("%w: %q", ErrInvalidPriority, input.Priority)
	}

	sched.Title = title
	sched.Description = input.Description
	sched.Frequency = input.Frequency
	sched.IntervalDays = input.IntervalDays
	sched.NextDueAt = input.NextDueAt.UTC()
	sched.Active = input.Active
	sched.AutoGenerate = input.AutoGenerate
	sched.AssigneeID = input.AssigneeID
	sched.Priority = input.Priority
	sched.EstimatedMinutes = input.EstimatedMinutes
	sched.Checklist = input.Checklist
	if sched.Checklist == nil {
		sched.Checklist = []ChecklistTask{}
	}
	if err := s.repo.Update(ctx, &sched); err != nil {
		return PMSchedule{}, err
	}
	s.recordAudit(ctx, s.actorID(ctx, input.ActorID), "maintenance:update_schedule", sched.Code, nil)
	return sched, nil
}

// Get loads one schedule by id.
func (s *Service) Get(ctx context.Context, id int64) (PMSchedule, error) {
	if id == 0 {
		return PMSchedule{}, fmt.Errorf("maintenance: schedule id required: %w", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// GetByCode loads one schedule by its PM code.
func (s *Service) GetByCode(ctx context.Context, code string) (PMSchedule, error) {
	return s.repo.GetByCode(ctx, strings.TrimSpace(code))
}

// List returns schedules matching the filter plus the unpaged total.
func (s *Service) List(ctx context.Context, filter Filter) ([]PMSchedule, int, error) {
	return s.repo.List(ctx, filter)
}

// ListDue returns the schedules currently due, soonest first.
func (s *Service) ListDue(ctx context.Context, limit int) ([]PMSchedule, error) {
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	return s.repo.Due(ctx, time.Now().UTC(), limit)
}

// GenerateDue loads the due set and runs the generator over it. A
// failure to load the due set aborts the whole run; per-schedule
// failures do not.
func (s *Service) GenerateDue(ctx context.Context, opts BatchOptions) (BatchSummary, error) {
	limit := opts.Limit
	if limit <= 0 {
		limit = defaultBatchLimit
	}
	due, err := s.repo.Due(ctx, time.Now().UTC(), limit)
	if err != nil {
		return BatchSummary{}, fmt.Errorf("maintenance: due set unavailable: %w: %w", shared.ErrDependency, err)
	}
	return s.ProcessDueSchedules(ctx, due, opts), nil
}

// ProcessDueSchedules runs the generator over an explicit schedule set.
// Each schedule gets exactly one verdict: its eligibility is evaluated
// once up front, then an eligible schedule either produces a work order
// plus bookkeeping or a failure entry. Schedules are independent; an
// error on one is recorded and the loop moves on. In dry-run mode the
// payloads are built but nothing is created or written.
func (s *Service) ProcessDueSchedules(ctx context.Context, schedules []PMSchedule, opts BatchOptions) BatchSummary {
	if opts.Limit > 0 && len(schedules) > opts.Limit {
		schedules = schedules[:opts.Limit]
	}
	summary := BatchSummary{
		RunID:   uuid.NewString(),
		DryRun:  opts.DryRun,
		Results: make([]ScheduleResult, 0, len(schedules)),
	}
	for _, sched := range schedules {
		summary.Processed++
		result := ScheduleResult{
			ScheduleID: sched.ID,
			Code:       sched.Code,
			DueAt:      sched.NextDueAt,
			DryRun:     opts.DryRun,
		}

		state := EvaluateSchedule(sched)
		if !state.Eligible {
			summary.Skipped++
			result.Status = ResultSkipped
			result.Reason = state.Reason
			summary.Results = append(summary.Results, result)
			continue
		}

		req := BuildWorkOrderRequest(sched)
		if opts.DryRun {
			summary.Generated++
			result.Status = ResultPlanned
			summary.Results = append(summary.Results, result)
			continue
		}

		ref, err := s.workOrders.CreateFromSchedule(ctx, req)
		if err != nil {
			summary.Failed++
			result.Status = ResultFailed
			result.Reason = err.Error()
			summary.Results = append(summary.Results, result)
			continue
		}
		if err := s.repo.MarkGenerated(ctx, sched.ID, sched.NextDueAt, ref.ID); err != nil {
			// The work order exists but the schedule still claims the
			// occurrence is open; the next run will see it as eligible
			// again.
			summary.Failed++
			result.Status = ResultFailed
			result.Reason = err.Error()
			result.WorkOrderID = ref.ID
			result.WorkOrderNumber = ref.Number
			summary.Results = append(summary.Results, result)
			continue
		}

		summary.Generated++
		result.Status = ResultGenerated
		result.WorkOrderID = ref.ID
		result.WorkOrderNumber = ref.Number
		summary.Results = append(summary.Results, result)

		s.recordAudit(ctx, shared.ActorID(ctx), "maintenance:generate", sched.Code, map[string]any{
			"run_id":        summary.RunID,
			"work_order_id": ref.ID,
			"due_at":        sched.NextDueAt.Format(time.RFC3339),
		})
	}
	return summary
}

// CompleteOccurrence advances a schedule to its next cycle. The work
// order module calls this when an order born from the schedule is
// completed; the advance re-arms the eligibility check for the new due
// date.
func (s *Service) CompleteOccurrence(ctx context.Context, scheduleID int64) error {
	sched, err := s.repo.Get(ctx, scheduleID)
	if err != nil {
		return err
	}
	next, err := NextOccurrence(sched.Frequency, sched.IntervalDays, sched.NextDueAt)
	if err != nil {
		return err
	}
	if err := s.repo.AdvanceNextDue(ctx, scheduleID, next); err != nil {
		return err
	}
	s.recordAudit(ctx, shared.ActorID(ctx), "maintenance:advance", sched.Code, map[string]any{
		"next_due_at": next.Format(time.RFC3339),
	})
	return nil
}

func validateRecurrence(freq Frequency, intervalDays int) error {
	if !freq.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidFrequency, freq)
	}
	if freq == FrequencyCustom && intervalDays <= 0 {
		return fmt.Errorf("%w: custom recurrence needs a positive day interval", ErrInvalidFrequency)
	}
	return nil
}

func validPriority(p string) bool {
	switch p {
	case "LOW", "MEDIUM", "HIGH", "CRITICAL":
		return true
	}
	return false
}

func (s *Service) actorID(ctx context.Context, explicit int64) int64 {
	if explicit != 0 {
		return explicit
	}
	return shared.ActorID(ctx)
}

func (s *Service) recordAudit(ctx context.Context, actorID int64, action, entityID string, meta map[string]any) {
	if s.audit == nil {
		return
	}
	_ = s.audit.Record(ctx, shared.AuditLog{
		ActorID:  actorID,
		Action:   action,
		Entity:   "pm_schedule",
		EntityID: entityID,
		Meta:     meta,
	})
}
