package dto

import (
	"time"

	"kitchenops/internal/domain"
)

type CreateJobRequest struct {
	PrinterID  string          `json:"printerId"`
	OrderID    *string         `json:"orderId,omitempty"`
	StationID  *string         `json:"stationId,omitempty"`
	Content    string          `json:"content"`
	Copies     int             `json:"copies"`
	Priority   domain.Priority `json:"priority"`
	MaxRetries int             `json:"maxRetries"`
}

type RetryJobRequest struct {
	Force bool `json:"force"`
}

type RouteOrderRequest struct {
	Strategy   string   `json:"strategy"`
	PrinterIDs []string `json:"printerIds"`
	Copies     int      `json:"copies"`
}

type JobResponse struct {
	ID           string           `json:"id"`
	BranchID     string           `json:"branchId"`
	OrderID      *string          `json:"orderId,omitempty"`
	PrinterID    string           `json:"printerId"`
	StationID    *string          `json:"stationId,omitempty"`
	Status       domain.JobStatus `json:"status"`
	Priority     domain.Priority  `json:"priority"`
	Content      string           `json:"content"`
	Copies       int              `json:"copies"`
	RetryCount   int              `json:"retryCount"`
	MaxRetries   int              `json:"maxRetries"`
	NextRetryAt  *time.Time       `json:"nextRetryAt,omitempty"`
	ErrorCode    string           `json:"errorCode,omitempty"`
	ErrorMessage string           `json:"errorMessage,omitempty"`
	DurationMs   *int64           `json:"durationMs,omitempty"`
	CreatedAt    time.Time        `json:"createdAt"`
	StartedAt    *time.Time       `json:"startedAt,omitempty"`
	CompletedAt  *time.Time       `json:"completedAt,omitempty"`
	UpdatedAt    time.Time        `json:"updatedAt"`
}

type JobPageResponse struct {
	Jobs  []JobResponse `json:"jobs"`
	Total int           `json:"total"`
	Page  int           `json:"page"`
	Limit int           `json:"limit"`
}

type PrinterResponse struct {
	ID                string                     `json:"id"`
	BranchID          string                     `json:"branchId"`
	Name              string                     `json:"name"`
	ConnectionType    domain.ConnectionType      `json:"connectionType"`
	Address           string                     `json:"address"`
	Port              int                        `json:"port"`
	Capabilities      domain.PrinterCapabilities `json:"capabilities"`
	Active            bool                       `json:"active"`
	Status            domain.PrinterStatus       `json:"status"`
	TotalJobs         int                        `json:"totalJobs"`
	SuccessfulJobs    int                        `json:"successfulJobs"`
	FailedJobs        int                        `json:"failedJobs"`
	SuccessRate       float64                    `json:"successRate"`
	LastError         string                     `json:"lastError,omitempty"`
	LastErrorAt       *time.Time                 `json:"lastErrorAt,omitempty"`
	LastPrintAt       *time.Time                 `json:"lastPrintAt,omitempty"`
	LastHealthCheckAt *time.Time                 `json:"lastHealthCheckAt,omitempty"`
	StationMappings   []domain.StationMapping    `json:"stationMappings"`
}

func NewJobResponse(j *domain.PrinterJob) JobResponse {
	return JobResponse{
		ID:           j.ID,
		BranchID:     j.BranchID,
		OrderID:      j.OrderID,
		PrinterID:    j.PrinterID,
		StationID:    j.StationID,
		Status:       j.Status,
		Priority:     j.Priority,
		Content:      j.Content,
		Copies:       j.Copies,
		RetryCount:   j.RetryCount,
		MaxRetries:   j.MaxRetries,
		NextRetryAt:  j.NextRetryAt,
		ErrorCode:    j.ErrorCode,
		ErrorMessage: j.ErrorMessage,
		DurationMs:   j.DurationMs,
		CreatedAt:    j.CreatedAt,
		StartedAt:    j.StartedAt,
		CompletedAt:  j.CompletedAt,
		UpdatedAt:    j.UpdatedAt,
	}
}

func NewJobResponses(jobs []*domain.PrinterJob) []JobResponse {
	out := make([]JobResponse, len(jobs))
	for i, j := range jobs {
		out[i] = NewJobResponse(j)
	}
	return out
}

func NewPrinterResponse(p *domain.PrinterConfig) PrinterResponse {
	mappings := p.StationMappings
	if mappings == nil {
		mappings = []domain.StationMapping{}
	}
	return PrinterResponse{
		ID:                p.ID,
		BranchID:          p.BranchID,
		Name:              p.Name,
		ConnectionType:    p.ConnectionType,
		Address:           p.Address,
		Port:              p.Port,
		Capabilities:      p.Capabilities,
		Active:            p.Active,
		Status:            p.Status,
		TotalJobs:         p.TotalJobs,
		SuccessfulJobs:    p.SuccessfulJobs,
		FailedJobs:        p.FailedJobs,
		SuccessRate:       p.SuccessRate(),
		LastError:         p.LastError,
		LastErrorAt:       p.LastErrorAt,
		LastPrintAt:       p.LastPrintAt,
		LastHealthCheckAt: p.LastHealthCheckAt,
		StationMappings:   mappings,
	}
}
