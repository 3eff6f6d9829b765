package app

import (
	"context"
	"fmt"

	"github.com/meridian-cmms/meridian-cmms/internal/maintenance"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
	"github.com/meridian-cmms/meridian-cmms/internal/workorders"
)

// WorkOrderGateway adapts the work order service to the request shape the
// PM generator emits. It lives here so maintenance and workorders never
// import each other's types directly.
//
// The two services reference each other: the generator creates work orders,
// and completing a schedule-linked order advances its schedule. The gateway
// starts unbound and Bind closes the loop once both services exist.
type WorkOrderGateway struct {
	svc *workorders.Service
}

// NewWorkOrderGateway returns an unbound gateway.
func NewWorkOrderGateway() *WorkOrderGateway {
	return &WorkOrderGateway{}
}

// Bind attaches the work order service.
func (g *WorkOrderGateway) Bind(svc *workorders.Service) {
	g.svc = svc
}

// CreateFromSchedule opens a work order from a generated PM request.
func (g *WorkOrderGateway) CreateFromSchedule(ctx context.Context, req maintenance.WorkOrderRequest) (maintenance.WorkOrderRef, error) {
	if g.svc == nil {
		return maintenance.WorkOrderRef{}, fmt.Errorf("app: work order service not bound: %w", shared.ErrDependency)
	}
	scheduleID := req.ScheduleID
	dueAt := req.DueAt
	tasks := make([]workorders.Task, 0, len(req.Tasks))
	for _, t := range req.Tasks {
		tasks = append(tasks, workorders.Task{
			Title:       t.Title,
			Measurement: t.Measurement,
			Safety:      t.Safety,
		})
	}
	wo, err := g.svc.Create(ctx, workorders.CreateInput{
		Title:       req.Title,
		Description: req.Description,
		EquipmentID: req.EquipmentID,
		ScheduleID:  &scheduleID,
		Priority:    workorders.Priority(req.Priority),
		AssigneeID:  req.AssigneeID,
		DueAt:       &dueAt,
		Tasks:       tasks,
	})
	if err != nil {
		return maintenance.WorkOrderRef{}, err
	}
	return maintenance.WorkOrderRef{ID: wo.ID, Number: wo.Number}, nil
}

var (
	_ maintenance.WorkOrderPort   = (*WorkOrderGateway)(nil)
	_ workorders.ScheduleAdvancer = (*maintenance.Service)(nil)
)
