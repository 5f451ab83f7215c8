package dto

import (
	"time"

	"kitchenops/internal/domain"
)

type NotificationResponse struct {
	ID             string                    `json:"id"`
	BranchID       string                    `json:"branchId"`
	DeviceID       string                    `json:"deviceId"`
	OrderID        *string                   `json:"orderId,omitempty"`
	Message        string                    `json:"message"`
	Status         domain.NotificationStatus `json:"status"`
	RetryCount     int                       `json:"retryCount"`
	MaxRetries     int                       `json:"maxRetries"`
	LastError      string                    `json:"lastError,omitempty"`
	ExpiresAt      time.Time                 `json:"expiresAt"`
	SentAt         *time.Time                `json:"sentAt,omitempty"`
	AcknowledgedAt *time.Time                `json:"acknowledgedAt,omitempty"`
	CreatedAt      time.Time                 `json:"createdAt"`
	UpdatedAt      time.Time                 `json:"updatedAt"`
}

func NewNotificationResponse(n *domain.NotificationRecord) NotificationResponse {
	return NotificationResponse{
		ID:             n.ID,
		BranchID:       n.BranchID,
		DeviceID:       n.DeviceID,
		OrderID:        n.OrderID,
		Message:        n.Message,
		Status:         n.Status,
		RetryCount:     n.RetryCount,
		MaxRetries:     n.MaxRetries,
		LastError:      n.LastError,
		ExpiresAt:      n.ExpiresAt,
		SentAt:         n.SentAt,
		AcknowledgedAt: n.AcknowledgedAt,
		CreatedAt:      n.CreatedAt,
		UpdatedAt:      n.UpdatedAt,
	}
}
