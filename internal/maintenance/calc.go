package maintenance

import (
	"fmt"
	"strings"
	"time"
)

// EvaluateSchedule computes the generator's verdict for one schedule.
// A schedule is eligible when it is active, auto-generation is on, and
// no work order has been generated for the current due date yet. The
// generated-already check compares LastGeneratedAt against NextDueAt:
// the pair is only ever written together, so equality means the current
// occurrence is covered.
func EvaluateSchedule(s PMSchedule) ScheduleState {
	switch {
	case !s.Active:
		return ScheduleState{Reason: "schedule inactive"}
	case !s.AutoGenerate:
		return ScheduleState{Reason: "auto-generation disabled"}
	case s.LastGeneratedAt != nil && !s.LastGeneratedAt.Before(s.NextDueAt):
		return ScheduleState{Reason: "work order already generated for current due date"}
	}
	return ScheduleState{Eligible: true}
}

// NextOccurrence advances a due date by one recurrence period. Calendar
// frequencies use calendar arithmetic, so a monthly schedule due on the
// 31st lands on the shorter month's spillover day the way time.AddDate
// resolves it.
func NextOccurrence(freq Frequency, intervalDays int, from time.Time) (time.Time, error) {
	switch freq {
	case FrequencyDaily:
		return from.AddDate(0, 0, 1), nil
	case FrequencyWeekly:
		return from.AddDate(0, 0, 7), nil
	case FrequencyMonthly:
		return from.AddDate(0, 1, 0), nil
	case FrequencyQuarterly:
		return from.AddDate(0, 3, 0), nil
	case FrequencySemiannual:
		return from.AddDate(0, 6, 0), nil
	case FrequencyAnnual:
		return from.AddDate(1, 0, 0), nil
	case FrequencyCustom:
		if intervalDays <= 0 {
			return time.Time{}, fmt.Errorf("%w: custom recurrence needs a positive day interval", ErrInvalidFrequency)
		}
		return from.AddDate(0, 0, intervalDays), nil
	}
	return time.Time{}, fmt.Errorf("%w: %q", ErrInvalidFrequency, freq)
}

// BuildWorkOrderRequest assembles the work order payload for one due
// occurrence. The schedule's checklist is carried over as-is; completion
// state starts fresh on the work order side. The description gains a
// trailing context block so technicians see where the order came from.
func BuildWorkOrderRequest(s PMSchedule) WorkOrderRequest {
	var b strings.Builder
	if s.Description != "" {
		b.WriteString(s.Description)
		b.WriteString("\n\n")
	}
	b.WriteString("--- Preventive Maintenance ---\n")
	fmt.Fprintf(&b, "Schedule: %s (%s)\n", s.Code, s.Frequency)
	fmt.Fprintf(&b, "Due: %s\n", s.NextDueAt.Format("2006-01-02"))
	if s.EstimatedMinutes > 0 {
		fmt.Fprintf(&b, "Estimated: %d minutes\n", s.EstimatedMinutes)
	}

	tasks := make([]ChecklistTask, len(s.Checklist))
	copy(tasks, s.Checklist)

	return WorkOrderRequest{
		Title:       s.Title,
		Description: b.String(),
		EquipmentID: s.EquipmentID,
		ScheduleID:  s.ID,
		Priority:    s.Priority,
		AssigneeID:  s.AssigneeID,
		DueAt:       s.NextDueAt,
		Tasks:       tasks,
	}
}
