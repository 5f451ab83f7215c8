// Package events defines the topics and payloads published after a committed
// state change, plus publisher combinators.
package events

import (
	"context"
	"time"
)

const (
	TopicOrderUpdated        = "kitchen.order.updated"
	TopicItemUpdated         = "kitchen.item.updated"
	TopicPrintJobUpdated     = "print.job.updated"
	TopicNotificationUpdated = "notification.updated"
)

type Publisher interface {
	Publish(ctx context.Context, topic string, payload interface{})
}

// Scoped payloads carry the branch they belong to so subscribers can filter.
type Scoped interface {
	Branch() string
}

type OrderUpdated struct {
	OrderID  string    `json:"orderId"`
	BranchID string    `json:"branchId"`
	Number   string    `json:"number"`
	Status   string    `json:"status"`
	Action   string    `json:"action"`
	At       time.Time `json:"at"`
}

func (e OrderUpdated) Branch() string { return e.BranchID }

type ItemUpdated struct {
	OrderID  string    `json:"orderId"`
	ItemID   string    `json:"itemId"`
	BranchID string    `json:"branchId"`
	Status   string    `json:"status"`
	At       time.Time `json:"at"`
}

func (e ItemUpdated) Branch() string { return e.BranchID }

type JobUpdated struct {
	JobID      string    `json:"jobId"`
	PrinterID  string    `json:"printerId"`
	BranchID   string    `json:"branchId"`
	Status     string    `json:"status"`
	RetryCount int       `json:"retryCount"`
	At         time.Time `json:"at"`
}

func (e JobUpdated) Branch() string { return e.BranchID }

type NotificationUpdated struct {
	NotificationID string    `json:"notificationId"`
	DeviceID       string    `json:"deviceId"`
	BranchID       string    `json:"branchId"`
	Status         string    `json:"status"`
	At             time.Time `json:"at"`
}

func (e NotificationUpdated) Branch() string { return e.BranchID }

// Multi fans a publish out to every publisher in order.
type Multi []Publisher

func (m Multi) Publish(ctx context.Context, topic string, payload interface{}) {
	for _, p := range m {
		p.Publish(ctx, topic, payload)
	}
}

type Nop struct{}

func (Nop) Publish(context.Context, string, interface{}) {}

// Recorder keeps every published event. Used by tests across packages.
type Recorder struct {
	Events []Recorded
}

type Recorded struct {
	Topic   string
	Payload interface{}
}

func (r *Recorder) Publish(_ context.Context, topic string, payload interface{}) {
	r.Events = append(r.Events, Recorded{Topic: topic, Payload: payload})
}

func (r *Recorder) Topics() []string {
	topics := make([]string, len(r.Events))
	for i, e := range r.Events {
		topics[i] = e.Topic
	}
	return topics
}
