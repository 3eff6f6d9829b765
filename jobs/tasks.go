package jobs

import (
	"encoding/json"

	"github.com/hibiken/asynq"
)

const (
	// QueueDefault is the default queue name for background jobs.
	QueueDefault = "default"
	// TaskPMGenerate is the task type for the preventive maintenance generator.
	TaskPMGenerate = "pm:generate"
)

// PMGeneratePayload carries the options for one generator run.
type PMGeneratePayload struct {
	Limit  int  `json:"limit"`
	DryRun bool `json:"dry_run"`
}

// NewPMGenerateTask constructs an Asynq task for a generator run.
func NewPMGenerateTask(limit int, dryRun bool) (*asynq.Task, error) {
	data, err := json.Marshal(PMGeneratePayload{Limit: limit, DryRun: dryRun})
	if err != nil {
		return nil, err
	}
	return asynq.NewTask(TaskPMGenerate, data, asynq.Queue(QueueDefault)), nil
}
