package jobs

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/straye-as/device-importer/internal/domain"
	"github.com/straye-as/device-importer/internal/importer"
	"go.uber.org/zap"
)

var (
	// ErrJobFailed is returned when a job could not be created or finished unsuccessfully
	ErrJobFailed = errors.New("import job failed")
	// ErrRetriesExhausted is returned when every attempt allowed by the retry policy failed
	ErrRetriesExhausted = errors.New("retries exhausted")
)

// DeviceCreator creates one import job per batch of devices
type DeviceCreator interface {
	CreateDevices(ctx context.Context, deviceIDs []string) importer.Result
}

// JobReader fetches the current state of a registry job
type JobReader interface {
	GetJob(ctx context.Context, jobID string) (*domain.JobProperties, error)
}

// Outcome describes a completed Run
type Outcome struct {
	FirstJobID     string
	FirstJobStatus domain.JobStatus
	SecondJobID    string
	Attempts       int
}

// Runner creates a primary import job, checks its status, then creates a
// follow-up job under a bounded retry policy.
type Runner struct {
	creator DeviceCreator
	reader  JobReader
	tracker *Tracker
	policy  RetryPolicy
	logger  *zap.Logger
}

// NewRunner creates a Runner. tracker may be nil.
func NewRunner(creator DeviceCreator, reader JobReader, tracker *Tracker, policy RetryPolicy, logger *zap.Logger) *Runner {
	return &Runner{
		creator: creator,
		reader:  reader,
		tracker: tracker,
		policy:  policy,
		logger:  logger,
	}
}

// Run creates job 1 from primary, fetches its status once and then creates
// job 2 from followUp. Job 1 failing is terminal. Job 2 is retried while its
// failures are retryable and the policy allows another attempt.
func (r *Runner) Run(ctx context.Context, primary, followUp []string) (*Outcome, error) {
	r.logger.Info("Creating job 1...", zap.Int("devices", len(primary)))
	first := r.create(ctx, primary)
	if !first.OK() {
		return nil, fmt.Errorf("%w: job 1: %w", ErrJobFailed, first.Err)
	}

	job, err := r.reader.GetJob(ctx, first.JobID)
	if err != nil {
		return nil, fmt.Errorf("failed to get status of job %s: %w", first.JobID, err)
	}
	r.track(job)
	r.logger.Info("Job 1 status",
		zap.String("job_id", first.JobID),
		zap.String("status", string(job.Status)),
	)

	outcome := &Outcome{FirstJobID: first.JobID, FirstJobStatus: job.Status}
	var last importer.Result

	operation := func() error {
		outcome.Attempts++
		r.logger.Info("Creating job 2...",
			zap.Int("devices", len(followUp)),
			zap.Int("attempt", outcome.Attempts),
		)
		last = r.create(ctx, followUp)
		if last.OK() {
			return nil
		}
		if !last.Retryable {
			return backoff.Permanent(last.Err)
		}
		return last.Err
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Warn("Job 2 not created, retrying",
			zap.Int("attempt", outcome.Attempts),
			zap.Duration("wait", wait),
			zap.Error(err),
		)
	}

	if err := backoff.RetryNotify(operation, r.policy.backOff(ctx), notify); err != nil {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return outcome, fmt.Errorf("job 2 creation interrupted: %w", ctxErr)
		}
		if last.Retryable {
			return outcome, fmt.Errorf("%w: job 2 after %d attempts: %w", ErrRetriesExhausted, outcome.Attempts, err)
		}
		return outcome, fmt.Errorf("%w: job 2: %w", ErrJobFailed, err)
	}

	outcome.SecondJobID = last.JobID
	return outcome, nil
}

// Wait polls a job until it reaches a terminal status, backing off between
// polls. Transient fetch errors are retried. A job that ends failed or
// cancelled yields ErrJobFailed together with its final properties.
func (r *Runner) Wait(ctx context.Context, jobID string) (*domain.JobProperties, error) {
	var job *domain.JobProperties

	poll := func() error {
		current, err := r.reader.GetJob(ctx, jobID)
		if err != nil {
			if importer.ShouldRetry(ctx, err) {
				return err
			}
			return backoff.Permanent(err)
		}
		job = current
		r.track(current)
		if !current.Status.IsTerminal() {
			return fmt.Errorf("job %s is %s", jobID, current.Status)
		}
		return nil
	}
	notify := func(err error, wait time.Duration) {
		r.logger.Debug("Waiting for job", zap.String("job_id", jobID), zap.Duration("wait", wait), zap.Error(err))
	}

	if err := backoff.RetryNotify(poll, r.policy.Unlimited().backOff(ctx), notify); err != nil {
		return job, fmt.Errorf("failed waiting for job %s: %w", jobID, err)
	}

	r.logger.Info("Job finished",
		zap.String("job_id", jobID),
		zap.String("status", string(job.Status)),
		zap.Int("progress", job.Progress),
	)
	if job.Status != domain.JobStatusCompleted {
		return job, fmt.Errorf("%w: job %s %s: %s", ErrJobFailed, jobID, job.Status, job.FailureReason)
	}
	return job, nil
}

func (r *Runner) create(ctx context.Context, deviceIDs []string) importer.Result {
	result := r.creator.CreateDevices(ctx, deviceIDs)
	if result.OK() && r.tracker != nil {
		r.tracker.Track(result.JobID, len(deviceIDs))
	}
	return result
}

func (r *Runner) track(job *domain.JobProperties) {
	if r.tracker != nil {
		r.tracker.Update(job)
	}
}
