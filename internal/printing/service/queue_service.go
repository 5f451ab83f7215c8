package service

import (
	"context"
	"fmt"
	"math"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"kitchenops/internal/commons"
	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/events"
)

const (
	ErrorCodePrintFailed  = "PRINT_ERROR"
	ErrorCodePrintTimeout = "PRINT_TIMEOUT"
)

type JobStore interface {
	Get(ctx context.Context, id string) (*domain.PrinterJob, error)
	Create(ctx context.Context, job *domain.PrinterJob) error
	Save(ctx context.Context, job *domain.PrinterJob) error
	FindEligible(ctx context.Context, printerID string, now time.Time) ([]domain.PrinterJob, error)
	FindPrintingStartedBefore(ctx context.Context, cutoff time.Time) ([]domain.PrinterJob, error)
	List(ctx context.Context, filter domain.JobFilter) ([]domain.PrinterJob, int, error)
	DeleteFinishedBefore(ctx context.Context, cutoff time.Time) (int64, error)
	CountByStatus(ctx context.Context, branchID string) (map[domain.JobStatus]int, error)
}

type PrinterStore interface {
	Get(ctx context.Context, id string) (*domain.PrinterConfig, error)
	Save(ctx context.Context, printer *domain.PrinterConfig) error
	ListActive(ctx context.Context, branchID string) ([]domain.PrinterConfig, error)
}

type EventPublisher interface {
	Publish(ctx context.Context, topic string, payload interface{})
}

type QueueConfig struct {
	BaseRetryDelay    time.Duration
	BackoffMultiplier float64
	MaxRetries        int
	CleanupMaxAge     time.Duration
	PrintTimeout      time.Duration
	// StaleAfter is how long a PRINTING attempt may run before recovery
	// fails it. It must exceed the worker's printer lease TTL; zero means
	// three print timeouts.
	StaleAfter time.Duration
}

type CreateJobRequest struct {
	PrinterID  string
	OrderID    *string
	StationID  *string
	Content    string
	Copies     int
	Priority   domain.Priority
	MaxRetries int
}

type QueueStatistics struct {
	BranchID string                   `json:"branchId"`
	ByStatus map[domain.JobStatus]int `json:"byStatus"`
	Total    int                      `json:"total"`
}

type JobPage struct {
	Jobs  []domain.PrinterJob `json:"jobs"`
	Total int                 `json:"total"`
	Page  int                 `json:"page"`
	Limit int                 `json:"limit"`
}

// RetryDelay is the backoff before the nth retry: base * multiplier^(n-1).
func RetryDelay(base time.Duration, multiplier float64, n int) time.Duration {
	if n < 1 {
		n = 1
	}
	return time.Duration(float64(base) * math.Pow(multiplier, float64(n-1)))
}

type QueueService struct {
	jobs      JobStore
	printers  PrinterStore
	publisher EventPublisher
	locks     *commons.KeyedMutex
	cfg       QueueConfig
	logger    *zap.Logger
	now       func() time.Time
}

func NewQueueService(jobs JobStore, printers PrinterStore, publisher EventPublisher, cfg QueueConfig, logger *zap.Logger) *QueueService {
	return &QueueService{
		jobs:      jobs,
		printers:  printers,
		publisher: publisher,
		locks:     commons.NewKeyedMutex(),
		cfg:       cfg,
		logger:    logger,
		now:       time.Now,
	}
}

func (s *QueueService) CreateJob(ctx context.Context, req CreateJobRequest) (*domain.PrinterJob, error) {
	if err := validateCreateJob(&req); err != nil {
		return nil, err
	}

	printer, err := s.printers.Get(ctx, req.PrinterID)
	if err != nil {
		return nil, err
	}

	maxRetries := req.MaxRetries
	if maxRetries <= 0 {
		maxRetries = s.cfg.MaxRetries
	}

	now := s.now()
	job := &domain.PrinterJob{
		ID:         uuid.New().String(),
		BranchID:   printer.BranchID,
		OrderID:    req.OrderID,
		PrinterID:  printer.ID,
		StationID:  req.StationID,
		Status:     domain.JobStatusPending,
		Priority:   req.Priority,
		Content:    req.Content,
		Copies:     req.Copies,
		MaxRetries: maxRetries,
		CreatedAt:  now,
		UpdatedAt:  now,
	}

	if err := s.jobs.Create(ctx, job); err != nil {
		s.logger.Error("failed to create print job", zap.String("printerId", printer.ID), zap.Error(err))
		return nil, err
	}

	s.logger.Info("print job queued",
		zap.String("jobId", job.ID),
		zap.String("printerId", job.PrinterID),
		zap.String("priority", string(job.Priority)),
	)
	s.publish(ctx, job)
	return job, nil
}

func validateCreateJob(req *CreateJobRequest) error {
	var details []apperrors.ValidationDetail
	if strings.TrimSpace(req.PrinterID) == "" {
		details = append(details, apperrors.ValidationDetail{Field: "printerId", Message: "printerId is required"})
	}
	if strings.TrimSpace(req.Content) == "" {
		details = append(details, apperrors.ValidationDetail{Field: "content", Message: "content must not be empty"})
	}
	if req.Copies < 0 {
		details = append(details, apperrors.ValidationDetail{Field: "copies", Message: "copies must not be negative"})
	}
	if req.Priority != "" && !req.Priority.Valid() {
		details = append(details, apperrors.ValidationDetail{Field: "priority", Message: "priority must be URGENT, HIGH, NORMAL or LOW"})
	}
	if len(details) > 0 {
		return apperrors.NewValidationError("validation failed", details...)
	}

	if req.Copies == 0 {
		req.Copies = 1
	}
	if req.Priority == "" {
		req.Priority = domain.PriorityNormal
	}
	return nil
}

// GetNextJob picks the job a consumer loop should print next: highest
// priority first, FIFO within a priority. Returns nil when nothing is due.
func (s *QueueService) GetNextJob(ctx context.Context, printerID string) (*domain.PrinterJob, error) {
	now := s.now()
	candidates, err := s.jobs.FindEligible(ctx, printerID, now)
	if err != nil {
		return nil, err
	}

	eligible := candidates[:0]
	for _, j := range candidates {
		if j.Eligible(now) {
			eligible = append(eligible, j)
		}
	}
	if len(eligible) == 0 {
		return nil, nil
	}

	sort.SliceStable(eligible, func(a, b int) bool {
		ra, rb := eligible[a].Priority.Rank(), eligible[b].Priority.Rank()
		if ra != rb {
			return ra < rb
		}
		if !eligible[a].CreatedAt.Equal(eligible[b].CreatedAt) {
			return eligible[a].CreatedAt.Before(eligible[b].CreatedAt)
		}
		return eligible[a].ID < eligible[b].ID
	})

	next := eligible[0]
	return &next, nil
}

func (s *QueueService) MarkJobStarted(ctx context.Context, id string) (*domain.PrinterJob, error) {
	unlock := s.locks.Lock("job:" + id)
	defer unlock()

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case domain.JobStatusPending, domain.JobStatusRetry:
	case domain.JobStatusPrinting:
		return nil, apperrors.NewAlreadyInStateError("print job", string(job.Status))
	default:
		return nil, apperrors.NewInvalidTransitionError("print job", string(job.Status), string(domain.JobStatusPrinting))
	}

	// Millisecond precision matches the stored column, so the attempt can be
	// identified by its start time after a round trip.
	now := s.now().Truncate(time.Millisecond)
	job.Status = domain.JobStatusPrinting
	job.StartedAt = &now
	job.NextRetryAt = nil
	job.UpdatedAt = now

	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	s.publish(ctx, job)
	return job, nil
}

// MarkJobCompleted records a successful print of the current attempt. A job
// cancelled while it was printing keeps its CANCELLED status but still
// counts for the printer.
func (s *QueueService) MarkJobCompleted(ctx context.Context, id string, durationMs *int64) (*domain.PrinterJob, error) {
	return s.completeAttempt(ctx, id, nil, durationMs)
}

// CompleteAttempt is MarkJobCompleted for the attempt that started at
// startedAt. A report for an attempt that has already been closed fails with
// Conflict and changes nothing.
func (s *QueueService) CompleteAttempt(ctx context.Context, id string, startedAt time.Time, durationMs *int64) (*domain.PrinterJob, error) {
	return s.completeAttempt(ctx, id, &startedAt, durationMs)
}

func (s *QueueService) completeAttempt(ctx context.Context, id string, startedAt *time.Time, durationMs *int64) (*domain.PrinterJob, error) {
	unlock := s.locks.Lock("job:" + id)
	defer unlock()

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkAttempt(job, startedAt, domain.JobStatusCompleted); err != nil {
		return nil, err
	}

	now := s.now()
	switch job.Status {
	case domain.JobStatusCancelled:
		s.logger.Info("cancelled job finished printing", zap.String("jobId", id))
		if err := s.recordOutcome(ctx, job.PrinterID, true, "", now); err != nil {
			return nil, err
		}
		return job, nil
	case domain.JobStatusPrinting:
	default:
		return nil, apperrors.NewInvalidTransitionError("print job", string(job.Status), string(domain.JobStatusCompleted))
	}

	job.Status = domain.JobStatusCompleted
	job.CompletedAt = &now
	job.DurationMs = durationMs
	job.NextRetryAt = nil
	job.ErrorCode = ""
	job.ErrorMessage = ""
	job.UpdatedAt = now

	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	if err := s.recordOutcome(ctx, job.PrinterID, true, "", now); err != nil {
		return nil, err
	}

	s.logger.Info("print job completed", zap.String("jobId", id), zap.String("printerId", job.PrinterID))
	s.publish(ctx, job)
	return job, nil
}

// MarkJobFailed counts a failed attempt of a PRINTING job. Below maxRetries
// the job is rescheduled with exponential backoff, otherwise it becomes
// FAILED for good.
func (s *QueueService) MarkJobFailed(ctx context.Context, id, message, code string) (*domain.PrinterJob, error) {
	return s.failAttempt(ctx, id, nil, message, code)
}

// FailAttempt is MarkJobFailed for the attempt that started at startedAt. A
// late report for an attempt stale recovery has already failed is rejected
// with Conflict, so one attempt is never counted twice.
func (s *QueueService) FailAttempt(ctx context.Context, id string, startedAt time.Time, message, code string) (*domain.PrinterJob, error) {
	return s.failAttempt(ctx, id, &startedAt, message, code)
}

func (s *QueueService) failAttempt(ctx context.Context, id string, startedAt *time.Time, message, code string) (*domain.PrinterJob, error) {
	unlock := s.locks.Lock("job:" + id)
	defer unlock()

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := checkAttempt(job, startedAt, domain.JobStatusFailed); err != nil {
		return nil, err
	}
	if code == "" {
		code = ErrorCodePrintFailed
	}

	now := s.now()
	switch job.Status {
	case domain.JobStatusCancelled:
		if err := s.recordOutcome(ctx, job.PrinterID, false, message, now); err != nil {
			return nil, err
		}
		return job, nil
	case domain.JobStatusPrinting:
	default:
		return nil, apperrors.NewInvalidTransitionError("print job", string(job.Status), string(domain.JobStatusFailed))
	}

	job.RetryCount++
	job.ErrorCode = code
	job.ErrorMessage = message
	job.UpdatedAt = now

	if job.RetryCount < job.MaxRetries {
		next := now.Add(RetryDelay(s.cfg.BaseRetryDelay, s.cfg.BackoffMultiplier, job.RetryCount))
		job.Status = domain.JobStatusRetry
		job.NextRetryAt = &next
		s.logger.Warn("print job failed, retry scheduled",
			zap.String("jobId", id),
			zap.Int("retryCount", job.RetryCount),
			zap.Time("nextRetryAt", next),
			zap.String("error", message),
		)
	} else {
		job.Status = domain.JobStatusFailed
		job.NextRetryAt = nil
		job.CompletedAt = &now
		s.logger.Error("print job failed permanently",
			zap.String("jobId", id),
			zap.Int("retryCount", job.RetryCount),
			zap.String("error", message),
		)
	}

	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}
	if err := s.recordOutcome(ctx, job.PrinterID, false, message, now); err != nil {
		return nil, err
	}

	s.publish(ctx, job)
	return job, nil
}

// checkAttempt rejects a worker report whose attempt is no longer the job's
// open attempt: the job left PRINTING, or a newer attempt has started.
// Reports without a start time are not checked.
func checkAttempt(job *domain.PrinterJob, startedAt *time.Time, target domain.JobStatus) error {
	if startedAt == nil {
		return nil
	}
	current := job.StartedAt != nil && job.StartedAt.Equal(startedAt.Truncate(time.Millisecond))
	switch {
	case !current:
		return apperrors.NewConflictError(fmt.Sprintf("print job %s attempt started at %s is no longer open", job.ID, startedAt.Format(time.RFC3339Nano)))
	case job.Status == domain.JobStatusPrinting, job.Status == domain.JobStatusCancelled:
		return nil
	}
	return apperrors.NewConflictError(fmt.Sprintf("print job %s is %s, outcome %s arrived too late", job.ID, job.Status, target))
}

func (s *QueueService) CancelJob(ctx context.Context, id string) (*domain.PrinterJob, error) {
	unlock := s.locks.Lock("job:" + id)
	defer unlock()

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	switch job.Status {
	case domain.JobStatusCompleted:
		return nil, apperrors.NewInvalidTransitionError("print job", string(job.Status), string(domain.JobStatusCancelled))
	case domain.JobStatusCancelled:
		return job, nil
	}

	now := s.now()
	job.Status = domain.JobStatusCancelled
	job.NextRetryAt = nil
	job.UpdatedAt = now
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("print job cancelled", zap.String("jobId", id))
	s.publish(ctx, job)
	return job, nil
}

// RetryJob re-queues a job by hand. Without force only FAILED jobs with
// retries left qualify; force resets the retry budget and works from any
// status except PRINTING.
func (s *QueueService) RetryJob(ctx context.Context, id string, force bool) (*domain.PrinterJob, error) {
	unlock := s.locks.Lock("job:" + id)
	defer unlock()

	job, err := s.jobs.Get(ctx, id)
	if err != nil {
		return nil, err
	}

	if force {
		if job.Status == domain.JobStatusPrinting {
			return nil, apperrors.NewConflictError("job is printing and cannot be re-queued")
		}
		job.RetryCount = 0
	} else {
		if job.Status != domain.JobStatusFailed {
			return nil, apperrors.NewInvalidTransitionError("print job", string(job.Status), string(domain.JobStatusPending))
		}
		if job.RetryCount >= job.MaxRetries {
			return nil, apperrors.NewRetryExhaustedError("print job has no retries left", job.RetryCount, job.MaxRetries)
		}
	}

	now := s.now()
	job.Status = domain.JobStatusPending
	job.NextRetryAt = nil
	job.StartedAt = nil
	job.CompletedAt = nil
	job.ErrorCode = ""
	job.ErrorMessage = ""
	job.UpdatedAt = now
	if err := s.jobs.Save(ctx, job); err != nil {
		return nil, err
	}

	s.logger.Info("print job re-queued", zap.String("jobId", id), zap.Bool("force", force))
	s.publish(ctx, job)
	return job, nil
}

func (s *QueueService) GetJob(ctx context.Context, id string) (*domain.PrinterJob, error) {
	return s.jobs.Get(ctx, id)
}

func (s *QueueService) ListJobs(ctx context.Context, filter domain.JobFilter) (*JobPage, error) {
	if filter.Page < 1 {
		filter.Page = 1
	}
	if filter.Limit <= 0 || filter.Limit > 200 {
		filter.Limit = 50
	}
	jobs, total, err := s.jobs.List(ctx, filter)
	if err != nil {
		return nil, err
	}
	return &JobPage{Jobs: jobs, Total: total, Page: filter.Page, Limit: filter.Limit}, nil
}

// CleanupOldJobs removes COMPLETED and CANCELLED jobs older than the
// configured max age.
func (s *QueueService) CleanupOldJobs(ctx context.Context) (int64, error) {
	cutoff := s.now().Add(-s.cfg.CleanupMaxAge)
	n, err := s.jobs.DeleteFinishedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}
	if n > 0 {
		s.logger.Info("old print jobs removed", zap.Int64("count", n), zap.Time("cutoff", cutoff))
	}
	return n, nil
}

// RecoverStaleJobs fails every PRINTING job whose attempt started longer ago
// than StaleAfter, so a crash never leaves a job stuck. The margin past the
// worker lease means a live worker has always reported or given up first.
func (s *QueueService) RecoverStaleJobs(ctx context.Context) (int, error) {
	staleAfter := s.cfg.StaleAfter
	if staleAfter <= 0 {
		staleAfter = 3 * s.cfg.PrintTimeout
	}
	cutoff := s.now().Add(-staleAfter)
	stale, err := s.jobs.FindPrintingStartedBefore(ctx, cutoff)
	if err != nil {
		return 0, err
	}

	recovered := 0
	for _, job := range stale {
		if job.StartedAt == nil {
			continue
		}
		if _, err := s.FailAttempt(ctx, job.ID, *job.StartedAt, "print attempt timed out", ErrorCodePrintTimeout); err != nil {
			s.logger.Warn("failed to recover stale job", zap.String("jobId", job.ID), zap.Error(err))
			continue
		}
		recovered++
	}
	return recovered, nil
}

func (s *QueueService) GetStatistics(ctx context.Context, branchID string) (*QueueStatistics, error) {
	counts, err := s.jobs.CountByStatus(ctx, branchID)
	if err != nil {
		return nil, err
	}

	stats := &QueueStatistics{BranchID: branchID, ByStatus: make(map[domain.JobStatus]int)}
	for _, st := range domain.AllJobStatuses() {
		stats.ByStatus[st] = counts[st]
		stats.Total += counts[st]
	}
	return stats, nil
}

func (s *QueueService) recordOutcome(ctx context.Context, printerID string, success bool, message string, now time.Time) error {
	unlock := s.locks.Lock("printer:" + printerID)
	defer unlock()

	printer, err := s.printers.Get(ctx, printerID)
	if err != nil {
		if _, ok := apperrors.IsNotFoundError(err); ok {
			s.logger.Warn("printer removed before job outcome was recorded", zap.String("printerId", printerID))
			return nil
		}
		return err
	}

	if success {
		printer.RecordSuccess(now)
	} else {
		printer.RecordFailure(message, now)
	}
	return s.printers.Save(ctx, printer)
}

func (s *QueueService) publish(ctx context.Context, job *domain.PrinterJob) {
	s.publisher.Publish(ctx, events.TopicPrintJobUpdated, events.JobUpdated{
		JobID:      job.ID,
		PrinterID:  job.PrinterID,
		BranchID:   job.BranchID,
		Status:     string(job.Status),
		RetryCount: job.RetryCount,
		At:         job.UpdatedAt,
	})
}
