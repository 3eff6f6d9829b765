package workorders

import (
	"fmt"
	"time"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// Status is the work order lifecycle state.
type Status string

const (
	StatusOpen       Status = "OPEN"
	StatusInProgress Status = "IN_PROGRESS"
	StatusCompleted  Status = "COMPLETED"
	StatusCancelled  Status = "CANCELLED"
)

// Valid reports whether s names a known lifecycle state.
func (s Status) Valid() bool {
	switch s {
	case StatusOpen, StatusInProgress, StatusCompleted, StatusCancelled:
		return true
	}
	return false
}

// CanTransitionTo reports whether the lifecycle permits moving to next.
// Completed and cancelled orders are terminal.
func (s Status) CanTransitionTo(next Status) bool {
	switch s {
	case StatusOpen:
		return next == StatusInProgress || next == StatusCancelled
	case StatusInProgress:
		return next == StatusCompleted || next == StatusCancelled
	}
	return false
}

// Priority orders the maintenance backlog.
type Priority string

const (
	PriorityLow      Priority = "LOW"
	PriorityMedium   Priority = "MEDIUM"
	PriorityHigh     Priority = "HIGH"
	PriorityCritical Priority = "CRITICAL"
)

// Valid reports whether p names a known priority.
func (p Priority) Valid() bool {
	switch p {
	case PriorityLow, PriorityMedium, PriorityHigh, PriorityCritical:
		return true
	}
	return false
}

// Task is one checklist entry on a work order. Measurement and Safety are
// copied from the schedule template when the order is generated; Done and
// MeasuredValue are filled by the technician.
type Task struct {
	Title         string `json:"title"`
	Done          bool   `json:"done"`
	Measurement   string `json:"measurement,omitempty"`
	MeasuredValue string `json:"measuredValue,omitempty"`
	Safety        string `json:"safety,omitempty"`
}

// WorkOrder is one unit of maintenance work against an asset. ScheduleID
// is set when a PM generator created the order.
type WorkOrder struct {
	ID             int64      `json:"id"`
	Number         string     `json:"number"`
	Title          string     `json:"title"`
	Description    string     `json:"description,omitempty"`
	EquipmentID    int64      `json:"equipmentId"`
	ScheduleID     *int64     `json:"scheduleId,omitempty"`
	Status         Status     `json:"status"`
	Priority       Priority   `json:"priority"`
	AssigneeID     int64      `json:"assigneeId,omitempty"`
	DueAt          *time.Time `json:"dueAt,omitempty"`
	StartedAt      *time.Time `json:"startedAt,omitempty"`
	CompletedAt    *time.Time `json:"completedAt,omitempty"`
	CompletionNote string     `json:"completionNote,omitempty"`
	Tasks          []Task     `json:"tasks"`
	CreatedBy      int64      `json:"createdBy,omitempty"`
	CreatedAt      time.Time  `json:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt"`
}

// CreateInput describes a new work order. The number is assigned by the
// service and never supplied by callers.
type CreateInput struct {
	Title       string
	Description string
	EquipmentID int64
	ScheduleID  *int64
	Priority    Priority
	AssigneeID  int64
	DueAt       *time.Time
	Tasks       []Task
	ActorID     int64
}

// PartUsage records spare parts consumed while completing an order.
type PartUsage struct {
	ItemID   int64 `json:"itemId"`
	Quantity int64 `json:"quantity"`
}

// CompleteInput closes out a work order: the final checklist state, a
// completion note and the parts that were consumed.
type CompleteInput struct {
	WorkOrderID int64
	Note        string
	Tasks       []Task
	Parts       []PartUsage
	ActorID     int64
}

// Filter narrows work order listings.
type Filter struct {
	EquipmentID int64
	ScheduleID  int64
	Status      Status
	AssigneeID  int64
	Page        int
	PerPage     int
}

var (
	ErrNotFound          = fmt.Errorf("workorders: work order not found: %w", shared.ErrNotFound)
	ErrInvalidStatus     = fmt.Errorf("workorders: unknown status: %w", shared.ErrValidation)
	ErrInvalidPriority   = fmt.Errorf("workorders: unknown priority: %w", shared.ErrValidation)
	ErrInvalidTransition = fmt.Errorf("workorders: status transition not allowed: %w", shared.ErrValidation)
)
