package jobs

import (
	"context"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/hibiken/asynq"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	jobmetrics "github.com/meridian-cmms/meridian-cmms/internal/jobs"
	"github.com/meridian-cmms/meridian-cmms/internal/maintenance"
	"github.com/meridian-cmms/meridian-cmms/internal/shared"
)

type stubGenerator struct {
	opts    maintenance.BatchOptions
	calls   int
	summary maintenance.BatchSummary
	err     error
}

func (g *stubGenerator) GenerateDue(ctx context.Context, opts maintenance.BatchOptions) (maintenance.BatchSummary, error) {
	g.calls++
	g.opts = opts
	return g.summary, g.err
}

func newTestJob(gen *stubGenerator) *PMGenerateJob {
	return NewPMGenerateJob(gen, nil, jobmetrics.NewMetrics(prometheus.NewRegistry()))
}

func TestPMGenerateHandle(t *testing.T) {
	gen := &stubGenerator{summary: maintenance.BatchSummary{
		Processed: 3,
		Generated: 2,
		Skipped:   1,
		Results: []maintenance.ScheduleResult{
			{ScheduleID: 1, Code: "PM-00001", Status: maintenance.ResultGenerated, DueAt: time.Now()},
		},
	}}
	job := newTestJob(gen)

	task, err := NewPMGenerateTask(50, true)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
	assert.Equal(t, 1, gen.calls)
	assert.Equal(t, 50, gen.opts.Limit)
	assert.True(t, gen.opts.DryRun)
}

func TestPMGenerateHandleBadPayload(t *testing.T) {
	gen := &stubGenerator{}
	job := newTestJob(gen)

	err := job.Handle(context.Background(), asynq.NewTask(TaskPMGenerate, []byte("{not json")))
	require.ErrorIs(t, err, asynq.SkipRetry)
	assert.Zero(t, gen.calls)
}

func TestPMGenerateHandleFetchFailure(t *testing.T) {
	cause := errors.New("connection refused")
	gen := &stubGenerator{err: fmt.Errorf("maintenance: due set unavailable: %w: %w", shared.ErrDependency, cause)}
	job := newTestJob(gen)

	task, err := NewPMGenerateTask(0, false)
	require.NoError(t, err)

	err = job.Handle(context.Background(), task)
	require.Error(t, err)
	assert.ErrorIs(t, err, shared.ErrDependency)
}

func TestPMGenerateHandleItemFailuresAreNotTaskErrors(t *testing.T) {
	gen := &stubGenerator{summary: maintenance.BatchSummary{
		Processed: 2,
		Generated: 1,
		Failed:    1,
		Results: []maintenance.ScheduleResult{
			{ScheduleID: 1, Code: "PM-00001", Status: maintenance.ResultGenerated, DueAt: time.Now()},
			{ScheduleID: 2, Code: "PM-00002", Status: maintenance.ResultFailed, Reason: "equipment retired", DueAt: time.Now()},
		},
	}}
	job := newTestJob(gen)

	task, err := NewPMGenerateTask(0, false)
	require.NoError(t, err)

	require.NoError(t, job.Handle(context.Background(), task))
}
