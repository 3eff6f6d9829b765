package jobs

import (
	"context"
	"encoding/json"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/meridian-cmms/meridian-cmms/internal/jobs"
	"github.com/meridian-cmms/meridian-cmms/internal/maintenance"
)

var defaultJobMetrics = jobmetrics.NewMetrics(nil)

// Generator runs one pass over due PM schedules. Implemented by the
// maintenance service.
type Generator interface {
	GenerateDue(ctx context.Context, opts maintenance.BatchOptions) (maintenance.BatchSummary, error)
}

// PMGenerateJob turns due PM schedules into work orders in the background.
type PMGenerateJob struct {
	Generator Generator
	Logger    *slog.Logger
	Metrics   *jobmetrics.Metrics
	clock     func() time.Time
}

// NewPMGenerateJob wires dependencies for the generator handler.
func NewPMGenerateJob(generator Generator, logger *slog.Logger, metrics *jobmetrics.Metrics) *PMGenerateJob {
	return &PMGenerateJob{
		Generator: generator,
		Logger:    logger,
		Metrics:   metrics,
		clock: func() time.Time {
			return time.Now().UTC()
		},
	}
}

// Handle executes one generator run. Per-schedule failures are part of the
// summary, not a task error; the task fails only when the due set itself
// cannot be fetched, and the next run picks up anything still open.
func (j *PMGenerateJob) Handle(ctx context.Context, t *asynq.Task) error {
	if j == nil || j.Generator == nil {
		return errors.New("pm generate: handler not configured")
	}
	var payload PMGeneratePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	start := j.now()
	tracker := j.metrics().Track(TaskPMGenerate)
	var resultErr error
	defer func() {
		resultErr = tracker.End(resultErr)
	}()

	logger := j.logger().With(
		slog.Int("limit", payload.Limit),
		slog.Bool("dry_run", payload.DryRun),
	)
	logger.Info("starting pm generation")

	summary, err := j.Generator.GenerateDue(ctx, maintenance.BatchOptions{
		Limit:  payload.Limit,
		DryRun: payload.DryRun,
	})
	if err != nil {
		resultErr = err
		logger.Error("pm generation failed", slog.Any("error", err))
		return resultErr
	}

	m := j.metrics()
	m.AddGenerated("generated", summary.Generated)
	m.AddGenerated("skipped", summary.Skipped)
	m.AddGenerated("failed", summary.Failed)

	for _, res := range summary.Results {
		if res.Status != maintenance.ResultFailed {
			continue
		}
		logger.Warn("schedule generation failed",
			slog.Int64("schedule_id", res.ScheduleID),
			slog.String("code", res.Code),
			slog.String("reason", res.Reason),
		)
	}

	logger.Info("completed pm generation",
		slog.String("run_id", summary.RunID),
		slog.Int("processed", summary.Processed),
		slog.Int("generated", summary.Generated),
		slog.Int("skipped", summary.Skipped),
		slog.Int("failed", summary.Failed),
		slog.Duration("duration", time.Since(start)),
	)
	return resultErr
}

func (j *PMGenerateJob) logger() *slog.Logger {
	if j.Logger != nil {
		return j.Logger.With(slog.String("job", TaskPMGenerate))
	}
	return slog.Default().With(slog.String("job", TaskPMGenerate))
}

func (j *PMGenerateJob) metrics() *jobmetrics.Metrics {
	if j.Metrics != nil {
		return j.Metrics
	}
	return defaultJobMetrics
}

func (j *PMGenerateJob) now() time.Time {
	if j.clock != nil {
		return j.clock()
	}
	return time.Now().UTC()
}
