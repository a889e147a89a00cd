package jobs

import (
	"context"
	"time"

	applog "github.com/straye-as/device-importer/internal/logger"
	"go.uber.org/zap"
)

// StatusRefreshJobName is the name of the job status refresh job
const StatusRefreshJobName = "status_refresh"

// StatusRefreshJob re-fetches every tracked job that has not finished and
// logs status transitions.
type StatusRefreshJob struct {
	reader  JobReader
	tracker *Tracker
	logger  *zap.Logger
	timeout time.Duration
}

// NewStatusRefreshJob creates a new status refresh job.
// The timeout bounds a single run across all pending jobs.
func NewStatusRefreshJob(reader JobReader, tracker *Tracker, logger *zap.Logger, timeout time.Duration) *StatusRefreshJob {
	return &StatusRefreshJob{
		reader:  reader,
		tracker: tracker,
		logger:  logger,
		timeout: timeout,
	}
}

// Run refreshes the pending jobs. It is called by the scheduler.
func (j *StatusRefreshJob) Run() {
	ctx, cancel := context.WithTimeout(context.Background(), j.timeout)
	defer cancel()

	j.RunContext(ctx)
}

// RunContext refreshes the pending jobs and returns how many were refreshed and how many failed
func (j *StatusRefreshJob) RunContext(ctx context.Context) (refreshed int, failed int) {
	pending := j.tracker.Pending()
	if len(pending) == 0 {
		return 0, 0
	}

	start := time.Now()
	for _, jobID := range pending {
		if ctx.Err() != nil {
			failed += len(pending) - refreshed - failed
			break
		}

		jobLogger := applog.WithJob(j.logger, jobID)
		job, err := j.reader.GetJob(ctx, jobID)
		if err != nil {
			failed++
			jobLogger.Warn("failed to refresh job status", zap.Error(err))
			continue
		}

		refreshed++
		previous, _ := j.tracker.Update(job)
		if previous != job.Status {
			fields := []zap.Field{
				zap.String("from", string(previous)),
				zap.String("to", string(job.Status)),
				zap.Int("progress", job.Progress),
			}
			if job.FailureReason != "" {
				fields = append(fields, zap.String("failure_reason", job.FailureReason))
			}
			jobLogger.Info("job status changed", fields...)
		}
	}

	j.logger.Info("job status refresh completed",
		zap.Int("refreshed", refreshed),
		zap.Int("failed", failed),
		zap.Duration("duration", time.Since(start)))

	return refreshed, failed
}

// RegisterStatusRefreshJob registers the status refresh job with the scheduler
func RegisterStatusRefreshJob(scheduler *Scheduler, reader JobReader, tracker *Tracker, logger *zap.Logger, cronExpr string, timeout time.Duration) error {
	job := NewStatusRefreshJob(reader, tracker, logger, timeout)
	return scheduler.AddJob(StatusRefreshJobName, cronExpr, job.Run)
}
