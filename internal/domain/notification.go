package domain

import "time"

type DeviceType string

const (
	DeviceTypePager   DeviceType = "PAGER"
	DeviceTypeBuzzer  DeviceType = "BUZZER"
	DeviceTypeDisplay DeviceType = "DISPLAY"
	DeviceTypeSMS     DeviceType = "SMS"
)

type NotificationDevice struct {
	ID        string
	BranchID  string
	Name      string
	Type      DeviceType
	Address   string
	Active    bool
	CreatedAt time.Time
}

type NotificationStatus string

const (
	NotificationPending      NotificationStatus = "PENDING"
	NotificationSent         NotificationStatus = "SENT"
	NotificationAcknowledged NotificationStatus = "ACKNOWLEDGED"
	NotificationExpired      NotificationStatus = "EXPIRED"
	NotificationFailed       NotificationStatus = "FAILED"
	NotificationCancelled    NotificationStatus = "CANCELLED"
)

func (s NotificationStatus) IsTerminal() bool {
	return s != NotificationPending && s != NotificationSent
}

type NotificationRecord struct {
	ID             string
	BranchID       string
	DeviceID       string
	OrderID        *string
	Message        string
	Status         NotificationStatus
	RetryCount     int
	MaxRetries     int
	LastError      string
	ExpiresAt      time.Time
	SentAt         *time.Time
	AcknowledgedAt *time.Time
	CreatedAt      time.Time
	UpdatedAt      time.Time
}
