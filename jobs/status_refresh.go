package jobs

import (
	"context"
	"errors"
	"log/slog"
	"time"

	"github.com/hibiken/asynq"

	jobmetrics "github.com/sojourn-loans/sojourn/internal/jobs"
	"github.com/sojourn-loans/sojourn/internal/loan"
)

// CronStatusRefresh runs the status sweep shortly after midnight, when
// the "is this month overdue yet" answer may have changed.
const CronStatusRefresh = "10 0 * * *"

// StatusRefresher recomputes loan statuses from recorded payments.
type StatusRefresher interface {
	RefreshStatuses(ctx context.Context) (int, error)
}

// StatusRefreshJob drives the nightly status sweep.
type StatusRefreshJob struct {
	Service StatusRefresher
	Logger  *slog.Logger
	Metrics *jobmetrics.Metrics
}

// NewStatusRefreshJob constructs the job handler.
func NewStatusRefreshJob(service StatusRefresher, logger *slog.Logger, metrics *jobmetrics.Metrics) *StatusRefreshJob {
	return &StatusRefreshJob{Service: service, Logger: logger, Metrics: metrics}
}

// Handle executes the status refresh job.
func (j *StatusRefreshJob) Handle(ctx context.Context, _ *asynq.Task) error {
	if j == nil || j.Service == nil {
		return errors.New("status refresh: dependencies not configured")
	}

	tracker := j.Metrics.Track(loan.TaskTypeStatusRefresh)
	start := time.Now()

	changed, err := j.Service.RefreshStatuses(ctx)
	if err != nil {
		j.log().Error("refresh loan statuses", slog.Any("error", err))
		return tracker.End(err)
	}

	j.log().Info("refreshed loan statuses",
		slog.Int("changed", changed),
		slog.Duration("duration", time.Since(start)))
	return tracker.End(nil)
}

func (j *StatusRefreshJob) log() *slog.Logger {
	if j != nil && j.Logger != nil {
		return j.Logger.With(slog.String("job", loan.TaskTypeStatusRefresh))
	}
	return slog.Default().With(slog.String("job", loan.TaskTypeStatusRefresh))
}
