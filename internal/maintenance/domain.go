package maintenance

import (
	"fmt"
	"time"

	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

// Frequency is the recurrence of a PM schedule. Custom schedules carry an
// explicit day interval instead.
type Frequency string

const (
	FrequencyDaily      Frequency = "DAILY"
	FrequencyWeekly     Frequency = "WEEKLY"
	FrequencyMonthly    Frequency = "MONTHLY"
	FrequencyQuarterly  Frequency = "QUARTERLY"
	FrequencySemiannual Frequency = "SEMIANNUAL"
	FrequencyAnnual     Frequency = "ANNUAL"
	FrequencyCustom     Frequency = "CUSTOM"
)

// Valid reports whether f names a known recurrence.
func (f Frequency) Valid() bool {
	switch f {
	case FrequencyDaily, FrequencyWeekly, FrequencyMonthly, FrequencyQuarterly, FrequencySemiannual, FrequencyAnnual, FrequencyCustom:
		return true
	}
	return false
}

// ChecklistTask is one template entry on a schedule. Measurement and
// Safety are copied verbatim onto every generated work order.
type ChecklistTask struct {
	Title       string `json:"title"`
	Measurement string `json:"measurement,omitempty"`
	Safety      string `json:"safety,omitempty"`
}

// PMSchedule describes recurring preventive maintenance for one asset.
// The generator only ever writes the generation-tracking fields
// (LastGeneratedAt, LastWorkOrderID, TotalGenerated); everything else is
// edited externally.
type PMSchedule struct {
	ID               int64           `json:"id"`
	Code             string          `json:"code"`
	EquipmentID      int64           `json:"equipmentId"`
	Title            string          `json:"title"`
	Description      string          `json:"description,omitempty"`
	Frequency        Frequency       `json:"frequency"`
	IntervalDays     int             `json:"intervalDays,omitempty"`
	NextDueAt        time.Time       `json:"nextDueAt"`
	LastGeneratedAt  *time.Time      `json:"lastGeneratedAt,omitempty"`
	LastWorkOrderID  *int64          `json:"lastWorkOrderId,omitempty"`
	TotalGenerated   int64           `json:"totalGenerated"`
	Active           bool            `json:"active"`
	AutoGenerate     bool            `json:"autoGenerate"`
	AssigneeID       int64           `json:"assigneeId,omitempty"`
	Priority         string          `json:"priority"`
	EstimatedMinutes int             `json:"estimatedMinutes,omitempty"`
	Checklist        []ChecklistTask `json:"checklist"`
	CreatedAt        time.Time       `json:"createdAt"`
	UpdatedAt        time.Time       `json:"updatedAt"`
}

// ScheduleState is the generator's one-shot eligibility verdict for a
// schedule. It is computed once per schedule at the start of processing
// and drives every branch after that.
type ScheduleState struct {
	Eligible bool
	Reason   string
}

// ResultStatus tags the outcome recorded for one schedule in a batch.
type ResultStatus string

const (
	// ResultGenerated means a work order was created and the schedule's
	// tracking fields advanced.
	ResultGenerated ResultStatus = "GENERATED"
	// ResultPlanned means a dry run built the payload but committed
	// nothing.
	ResultPlanned ResultStatus = "PLANNED"
	// ResultSkipped means the schedule failed the eligibility check.
	ResultSkipped ResultStatus = "SKIPPED"
	// ResultFailed means work order creation or schedule bookkeeping
	// errored; the batch continued without it.
	ResultFailed ResultStatus = "FAILED"
)

// ScheduleResult is the per-schedule line of a batch summary.
type ScheduleResult struct {
	ScheduleID      int64        `json:"scheduleId"`
	Code            string       `json:"code"`
	Status          ResultStatus `json:"status"`
	Reason          string       `json:"reason,omitempty"`
	WorkOrderID     int64        `json:"workOrderId,omitempty"`
	WorkOrderNumber string       `json:"workOrderNumber,omitempty"`
	DueAt           time.Time    `json:"dueAt"`
	DryRun          bool         `json:"dryRun"`
}

// BatchOptions tunes one generator invocation. Limit caps how many
// schedules are taken per run for backpressure; zero means the default.
type BatchOptions struct {
	DryRun bool
	Limit  int
}

// BatchSummary reports a generator run: totals plus the per-schedule
// detail. One schedule failing never aborts the batch, so the summary is
// the only place failures surface.
type BatchSummary struct {
	// RunID tags every result of one generator pass so a batch can be
	// traced across worker logs and audit entries.
	RunID     string           `json:"runId"`
	Processed int              `json:"processed"`
	Generated int              `json:"generated"`
	Skipped   int              `json:"skipped"`
	Failed    int              `json:"failed"`
	DryRun    bool             `json:"dryRun"`
	Results   []ScheduleResult `json:"results"`
}

// WorkOrderRequest is the payload the generator hands to the work order
// boundary.
type WorkOrderRequest struct {
	Title       string
	Description string
	EquipmentID int64
	ScheduleID  int64
	Priority    string
	AssigneeID  int64
	DueAt       time.Time
	Tasks       []ChecklistTask
}

// WorkOrderRef identifies a created work order.
type WorkOrderRef struct {
	ID     int64
	Number string
}

// CreateScheduleInput describes a new PM schedule.
type CreateScheduleInput struct {
	EquipmentID      int64
	Title            string
	Description      string
	Frequency        Frequency
	IntervalDays     int
	NextDueAt        time.Time
	AutoGenerate     *bool
	AssigneeID       int64
	Priority         string
	EstimatedMinutes int
	Checklist        []ChecklistTask
	ActorID          int64
}

// UpdateScheduleInput carries the externally editable schedule fields.
// Generation-tracking fields are absent; only the generator writes them.
type UpdateScheduleInput struct {
	ScheduleID       int64
	Title            string
	Description      string
	Frequency        Frequency
	IntervalDays     int
	NextDueAt        time.Time
	Active           bool
	AutoGenerate     bool
	AssigneeID       int64
	Priority         string
	EstimatedMinutes int
	Checklist        []ChecklistTask
	ActorID          int64
}

// Filter narrows schedule listings.
type Filter struct {
	EquipmentID     int64
	IncludeInactive bool
	Page            int
	PerPage         int
}

var (
	ErrScheduleNotFound = fmt.Errorf("maintenance: schedule not found: %w", shared.ErrNotFound)
	ErrInvalidFrequency = fmt.Errorf("maintenance: unknown recurrence frequency: %w", shared.ErrValidation)
	ErrInvalidPriority  = fmt.Errorf("maintenance: unknown priority: %w", shared.ErrValidation)
)
