package workorders

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/meridian-cmms/meridian-cmms/internal/inventory"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// RepositoryPort abstracts repository usage for the service.
type RepositoryPort interface {
	Create(ctx context.Context, wo WorkOrder) (WorkOrder, error)
	Get(ctx context.Context, id int64) (WorkOrder, error)
	GetByNumber(ctx context.Context, number string) (WorkOrder, error)
	List(ctx context.Context, filter Filter) ([]WorkOrder, int, error)
	Update(ctx context.Context, wo WorkOrder) error
}

// PartIssuer posts spare-part consumption to the stock ledger. Implemented
// by the inventory service.
type PartIssuer interface {
	Issue(ctx context.Context, input inventory.TransactionInput) (inventory.Transaction, error)
}

// ScheduleAdvancer moves a PM schedule to its next cycle once the order it
// generated is closed. Implemented by the maintenance service.
type ScheduleAdvancer interface {
	CompleteOccurrence(ctx context.Context, scheduleID int64) error
}

// EquipmentChecker resolves asset references. Implemented by the equipment
// service.
type EquipmentChecker interface {
	Exists(ctx context.Context, id int64) error
}

// AuditPort abstracts audit logging functionality.
type AuditPort interface {
	Record(ctx context.Context, log shared.AuditLog) error
}

// Service manages the work order lifecycle and its side effects on stock
// and PM schedules.
type Service struct {
	repo      RepositoryPort
	parts     PartIssuer
	advancer  ScheduleAdvancer
	equipment EquipmentChecker
	audit     AuditPort
}

// NewService builds Service. Parts, advancer and equipment may be nil when
// the corresponding side effect is not wired, for example in tests.
func NewService(repo RepositoryPort, parts PartIssuer, advancer ScheduleAdvancer, equipment EquipmentChecker, audit AuditPort) *Service {
	return &Service{repo: repo, parts: parts, advancer: advancer, equipment: equipment, audit: audit}
}

// Create opens a new work order with a generated number.
func (s *Service) Create(ctx context.Context, input CreateInput) (WorkOrder, error) {
	title := strings.TrimSpace(input.Title)
	if title == "" {
		return WorkOrder{}, fmt.Errorf("workorders: title required: %w", shared.ErrValidation)
	}
	if input.EquipmentID == 0 {
		return WorkOrder{}, fmt.Errorf("workorders: equipment id required: %w", shared.ErrValidation)
	}
	if s.equipment != nil {
		if err := s.equipment.Exists(ctx, input.EquipmentID); err != nil {
			return WorkOrder{}, err
		}
	}
	priority := input.Priority
	if priority == "" {
		priority = PriorityMedium
	}
	if !priority.Valid() {
		return WorkOrder{}, ErrInvalidPriority
	}
	tasks := input.Tasks
	if tasks == nil {
		tasks = []Task{}
	}
	wo, err := s.repo.Create(ctx, WorkOrder{
		Title:       title,
		Description: strings.TrimSpace(input.Description),
		EquipmentID: input.EquipmentID,
		ScheduleID:  input.ScheduleID,
		Status:      StatusOpen,
		Priority:    priority,
		AssigneeID:  input.AssigneeID,
		DueAt:       input.DueAt,
		Tasks:       tasks,
		CreatedBy:   s.actorID(ctx, input.ActorID),
	})
	if err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, wo.CreatedBy, "workorders:create", wo.Number, map[string]any{
		"work_order_id": wo.ID,
		"equipment_id":  wo.EquipmentID,
	})
	return wo, nil
}

// Get loads one work order by id.
func (s *Service) Get(ctx context.Context, id int64) (WorkOrder, error) {
	if id == 0 {
		return WorkOrder{}, fmt.Errorf("workorders: work order id required: %w", shared.ErrValidation)
	}
	return s.repo.Get(ctx, id)
}

// GetByNumber loads one work order by number.
func (s *Service) GetByNumber(ctx context.Context, number string) (WorkOrder, error) {
	if number == "" {
		return WorkOrder{}, fmt.Errorf("workorders: number required: %w", shared.ErrValidation)
	}
	return s.repo.GetByNumber(ctx, number)
}

// List returns a filtered page of work orders with pagination metadata.
func (s *Service) List(ctx context.Context, filter Filter) ([]WorkOrder, shared.Pagination, error) {
	if filter.Status != "" && !filter.Status.Valid() {
		return nil, shared.Pagination{}, ErrInvalidStatus
	}
	orders, total, err := s.repo.List(ctx, filter)
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return orders, shared.NewPagination(filter.Page, filter.PerPage, total), nil
}

// Start moves an open work order into progress.
func (s *Service) Start(ctx context.Context, id, actorID int64) (WorkOrder, error) {
	wo, err := s.Get(ctx, id)
	if err != nil {
		return WorkOrder{}, err
	}
	if !wo.Status.CanTransitionTo(StatusInProgress) {
		return WorkOrder{}, ErrInvalidTransition
	}
	now := time.Now().UTC()
	wo.Status = StatusInProgress
	wo.StartedAt = &now
	if err := s.repo.Update(ctx, wo); err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, s.actorID(ctx, actorID), "workorders:start", wo.Number, nil)
	return wo, nil
}

// Complete closes an in-progress work order. Consumed parts are issued
// through the stock ledger with the order as reference; each issue is its
// own ledger commit, so a failure leaves the order in progress with the
// already issued parts on record, and the caller retries with the rest.
// When the order came from a PM schedule, the schedule is advanced to its
// next cycle after the order is closed.
func (s *Service) Complete(ctx context.Context, input CompleteInput) (WorkOrder, error) {
	wo, err := s.Get(ctx, input.WorkOrderID)
	if err != nil {
		return WorkOrder{}, err
	}
	if !wo.Status.CanTransitionTo(StatusCompleted) {
		return WorkOrder{}, ErrInvalidTransition
	}
	actor := s.actorID(ctx, input.ActorID)

	for _, part := range input.Parts {
		if s.parts == nil {
			return WorkOrder{}, fmt.Errorf("workorders: part usage recorded without stock ledger: %w", shared.ErrDependency)
		}
		_, err := s.parts.Issue(ctx, inventory.TransactionInput{
			ItemID:          part.ItemID,
			Quantity:        part.Quantity,
			WorkOrderID:     &wo.ID,
			Reference:       wo.Number,
			Note:            fmt.Sprintf("consumed by %s", wo.Number),
			ActorID:         actor,
			ReleaseReserved: true,
		})
		if err != nil {
			return WorkOrder{}, fmt.Errorf("workorders: issue part %d for %s: %w", part.ItemID, wo.Number, err)
		}
	}

	now := time.Now().UTC()
	wo.Status = StatusCompleted
	wo.CompletedAt = &now
	wo.CompletionNote = strings.TrimSpace(input.Note)
	if input.Tasks != nil {
		wo.Tasks = input.Tasks
	}
	if err := s.repo.Update(ctx, wo); err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, actor, "workorders:complete", wo.Number, map[string]any{
		"parts_used": len(input.Parts),
	})

	if wo.ScheduleID != nil && s.advancer != nil {
		if err := s.advancer.CompleteOccurrence(ctx, *wo.ScheduleID); err != nil {
			return wo, fmt.Errorf("workorders: %s completed but schedule %d not advanced: %w", wo.Number, *wo.ScheduleID, err)
		}
	}
	return wo, nil
}

// Cancel abandons a work order that has not been completed.
func (s *Service) Cancel(ctx context.Context, id int64, reason string, actorID int64) (WorkOrder, error) {
	wo, err := s.Get(ctx, id)
	if err != nil {
		return WorkOrder{}, err
	}
	if !wo.Status.CanTransitionTo(StatusCancelled) {
		return WorkOrder{}, ErrInvalidTransition
	}
	wo.Status = StatusCancelled
	wo.CompletionNote = strings.TrimSpace(reason)
	if err := s.repo.Update(ctx, wo); err != nil {
		return WorkOrder{}, err
	}
	s.recordAudit(ctx, s.actorID(ctx, actorID), "workorders:cancel", wo.Number, map[string]any{"reason": reason})
	return wo, nil
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
		Entity:   "work_order",
		EntityID: entityID,
		Meta:     meta,
	})
}
