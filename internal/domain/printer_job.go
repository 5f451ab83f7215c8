package domain

import "time"

type JobStatus string

const (
	JobStatusPending   JobStatus = "PENDING"
	JobStatusPrinting  JobStatus = "PRINTING"
	JobStatusCompleted JobStatus = "COMPLETED"
	JobStatusRetry     JobStatus = "RETRY"
	JobStatusFailed    JobStatus = "FAILED"
	JobStatusCancelled JobStatus = "CANCELLED"
)

func AllJobStatuses() []JobStatus {
	return []JobStatus{
		JobStatusPending, JobStatusPrinting, JobStatusCompleted,
		JobStatusRetry, JobStatusFailed, JobStatusCancelled,
	}
}

type PrinterJob struct {
	ID           string
	BranchID     string
	OrderID      *string
	PrinterID    string
	StationID    *string
	Status       JobStatus
	Priority     Priority
	Content      string
	Copies       int
	RetryCount   int
	MaxRetries   int
	NextRetryAt  *time.Time
	ErrorCode    string
	ErrorMessage string
	DurationMs   *int64
	CreatedAt    time.Time
	StartedAt    *time.Time
	CompletedAt  *time.Time
	UpdatedAt    time.Time
}

// Eligible is the admission rule for a consumer loop: PENDING, or RETRY whose
// backoff has elapsed.
func (j *PrinterJob) Eligible(now time.Time) bool {
	switch j.Status {
	case JobStatusPending:
		return true
	case JobStatusRetry:
		return j.NextRetryAt == nil || !j.NextRetryAt.After(now)
	}
	return false
}
