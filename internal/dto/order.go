package dto

import (
	"time"

	"github.com/shopspring/decimal"

	"kitchenops/internal/domain"
)

type StatusChangeRequest struct {
	Reason string `json:"reason"`
}

type UpdateItemQuantityRequest struct {
	Quantity int `json:"quantity"`
}

type MarkItemReadyRequest struct {
	Notes string `json:"notes"`
}

type BumpOrderRequest struct {
	ItemIDs []string `json:"itemIds"`
}

type RecallOrderRequest struct {
	Note string `json:"note"`
}

type AuditEntryResponse struct {
	ID        string    `json:"id"`
	Timestamp time.Time `json:"timestamp"`
	Actor     string    `json:"actor"`
	Action    string    `json:"action"`
	Before    string    `json:"before"`
	After     string    `json:"after"`
	Note      string    `json:"note,omitempty"`
}

type OrderItemResponse struct {
	ID                  string            `json:"id"`
	ProductID           string            `json:"productId"`
	ProductName         string            `json:"productName"`
	Quantity            int               `json:"quantity"`
	UnitPrice           decimal.Decimal   `json:"unitPrice"`
	Subtotal            decimal.Decimal   `json:"subtotal"`
	Tax                 decimal.Decimal   `json:"tax"`
	Total               decimal.Decimal   `json:"total"`
	StationID           string            `json:"stationId"`
	Course              domain.Course     `json:"course"`
	Status              domain.ItemStatus `json:"status"`
	SeatNumber          *int              `json:"seatNumber,omitempty"`
	Modifiers           []domain.Modifier `json:"modifiers,omitempty"`
	SpecialInstructions string            `json:"specialInstructions,omitempty"`
	Notes               string            `json:"notes,omitempty"`
	CreatedAt           time.Time         `json:"createdAt"`
	SentToKitchenAt     *time.Time        `json:"sentToKitchenAt,omitempty"`
	StartedPreparingAt  *time.Time        `json:"startedPreparingAt,omitempty"`
	CompletedAt         *time.Time        `json:"completedAt,omitempty"`
}

type OrderResponse struct {
	ID                 string               `json:"id"`
	Number             string               `json:"number"`
	BranchID           string               `json:"branchId"`
	TableID            *string              `json:"tableId,omitempty"`
	ServerID           string               `json:"serverId"`
	ServiceType        domain.ServiceType   `json:"serviceType"`
	Priority           domain.Priority      `json:"priority"`
	Status             domain.OrderStatus   `json:"status"`
	PaymentStatus      domain.PaymentStatus `json:"paymentStatus"`
	Subtotal           decimal.Decimal      `json:"subtotal"`
	Tax                decimal.Decimal      `json:"tax"`
	Total              decimal.Decimal      `json:"total"`
	GuestCount         int                  `json:"guestCount"`
	Notes              string               `json:"notes,omitempty"`
	CancellationReason string               `json:"cancellationReason,omitempty"`
	CreatedAt          time.Time            `json:"createdAt"`
	UpdatedAt          time.Time            `json:"updatedAt"`
	ConfirmedAt        *time.Time           `json:"confirmedAt,omitempty"`
	PreparingAt        *time.Time           `json:"preparingAt,omitempty"`
	ReadyAt            *time.Time           `json:"readyAt,omitempty"`
	ServedAt           *time.Time           `json:"servedAt,omitempty"`
	CompletedAt        *time.Time           `json:"completedAt,omitempty"`
	CancelledAt        *time.Time           `json:"cancelledAt,omitempty"`
	Version            int                  `json:"version"`
	Items              []OrderItemResponse  `json:"items"`
	AuditLog           []AuditEntryResponse `json:"auditLog"`
}

func NewOrderResponse(o *domain.Order) OrderResponse {
	resp := OrderResponse{
		ID:                 o.ID,
		Number:             o.Number,
		BranchID:           o.BranchID,
		TableID:            o.TableID,
		ServerID:           o.ServerID,
		ServiceType:        o.ServiceType,
		Priority:           o.Priority,
		Status:             o.Status,
		PaymentStatus:      o.PaymentStatus,
		Subtotal:           o.Subtotal,
		Tax:                o.Tax,
		Total:              o.Total,
		GuestCount:         o.GuestCount,
		Notes:              o.Notes,
		CancellationReason: o.CancellationReason,
		CreatedAt:          o.CreatedAt,
		UpdatedAt:          o.UpdatedAt,
		ConfirmedAt:        o.ConfirmedAt,
		PreparingAt:        o.PreparingAt,
		ReadyAt:            o.ReadyAt,
		ServedAt:           o.ServedAt,
		CompletedAt:        o.CompletedAt,
		CancelledAt:        o.CancelledAt,
		Version:            o.Version,
		Items:              make([]OrderItemResponse, len(o.Items)),
		AuditLog:           make([]AuditEntryResponse, len(o.AuditLog)),
	}

	for i, item := range o.Items {
		resp.Items[i] = OrderItemResponse{
			ID:                  item.ID,
			ProductID:           item.ProductID,
			ProductName:         item.ProductName,
			Quantity:            item.Quantity,
			UnitPrice:           item.UnitPrice,
			Subtotal:            item.Subtotal,
			Tax:                 item.Tax,
			Total:               item.Total,
			StationID:           item.StationID,
			Course:              item.Course,
			Status:              item.Status,
			SeatNumber:          item.SeatNumber,
			Modifiers:           item.Modifiers,
			SpecialInstructions: item.SpecialInstructions,
			Notes:               item.Notes,
			CreatedAt:           item.CreatedAt,
			SentToKitchenAt:     item.SentToKitchenAt,
			StartedPreparingAt:  item.StartedPreparingAt,
			CompletedAt:         item.CompletedAt,
		}
	}
	for i, e := range o.AuditLog {
		resp.AuditLog[i] = AuditEntryResponse{
			ID:        e.ID,
			Timestamp: e.Timestamp,
			Actor:     e.Actor,
			Action:    e.Action,
			Before:    e.Before,
			After:     e.After,
			Note:      e.Note,
		}
	}
	return resp
}
