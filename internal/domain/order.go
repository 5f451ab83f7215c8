package domain

import (
	"time"

	"github.com/shopspring/decimal"
)

type OrderStatus string

const (
	OrderStatusPending   OrderStatus = "PENDING"
	OrderStatusConfirmed OrderStatus = "CONFIRMED"
	OrderStatusPreparing OrderStatus = "PREPARING"
	OrderStatusReady     OrderStatus = "READY"
	OrderStatusServed    OrderStatus = "SERVED"
	OrderStatusCompleted OrderStatus = "COMPLETED"
	OrderStatusCancelled OrderStatus = "CANCELLED"
)

type ItemStatus string

const (
	ItemStatusPending   ItemStatus = "PENDING"
	ItemStatusPreparing ItemStatus = "PREPARING"
	ItemStatusReady     ItemStatus = "READY"
	ItemStatusServed    ItemStatus = "SERVED"
	ItemStatusCancelled ItemStatus = "CANCELLED"
)

type ServiceType string

const (
	ServiceTypeDineIn    ServiceType = "DINE_IN"
	ServiceTypeTakeout   ServiceType = "TAKEOUT"
	ServiceTypePickup    ServiceType = "PICKUP"
	ServiceTypeDelivery  ServiceType = "DELIVERY"
	ServiceTypeDriveThru ServiceType = "DRIVE_THRU"
)

// IsPickupStyle reports whether the customer collects the order at a counter
// and should be paged when it is ready.
func (s ServiceType) IsPickupStyle() bool {
	return s == ServiceTypeTakeout || s == ServiceTypePickup || s == ServiceTypeDriveThru
}

type Priority string

const (
	PriorityUrgent Priority = "URGENT"
	PriorityHigh   Priority = "HIGH"
	PriorityNormal Priority = "NORMAL"
	PriorityLow    Priority = "LOW"
)

// Rank orders priorities URGENT < HIGH < NORMAL < LOW. Unknown values sort last.
func (p Priority) Rank() int {
	switch p {
	case PriorityUrgent:
		return 0
	case PriorityHigh:
		return 1
	case PriorityNormal:
		return 2
	case PriorityLow:
		return 3
	}
	return 4
}

func (p Priority) Valid() bool {
	return p.Rank() < 4
}

type Course string

const (
	CourseAppetizer  Course = "APPETIZER"
	CourseMainCourse Course = "MAIN_COURSE"
	CourseDessert    Course = "DESSERT"
	CourseBeverage   Course = "BEVERAGE"
)

// Rank orders courses APPETIZER < MAIN_COURSE < DESSERT < BEVERAGE.
func (c Course) Rank() int {
	switch c {
	case CourseAppetizer:
		return 0
	case CourseMainCourse:
		return 1
	case CourseDessert:
		return 2
	case CourseBeverage:
		return 3
	}
	return 4
}

type PaymentStatus string

const (
	PaymentStatusUnpaid   PaymentStatus = "UNPAID"
	PaymentStatusPaid     PaymentStatus = "PAID"
	PaymentStatusRefunded PaymentStatus = "REFUNDED"
)

type Modifier struct {
	Name       string          `json:"name"`
	Option     string          `json:"option"`
	PriceDelta decimal.Decimal `json:"priceDelta"`
}

type AuditEntry struct {
	ID        string
	Timestamp time.Time
	Actor     string
	Action    string
	Before    string
	After     string
	Note      string
}

type Order struct {
	ID                 string
	Number             string
	BranchID           string
	TableID            *string
	ServerID           string
	ServiceType        ServiceType
	Priority           Priority
	Status             OrderStatus
	PaymentStatus      PaymentStatus
	Subtotal           decimal.Decimal
	Tax                decimal.Decimal
	Total              decimal.Decimal
	TaxRate            decimal.Decimal
	GuestCount         int
	Notes              string
	CancellationReason string
	CreatedAt          time.Time
	UpdatedAt          time.Time
	ConfirmedAt        *time.Time
	PreparingAt        *time.Time
	ReadyAt            *time.Time
	ServedAt           *time.Time
	CompletedAt        *time.Time
	CancelledAt        *time.Time
	AuditLog           []AuditEntry
	Items              []OrderItem
	Version            int
}

type OrderItem struct {
	ID                  string
	OrderID             string
	ProductID           string
	ProductName         string
	Quantity            int
	UnitPrice           decimal.Decimal
	Subtotal            decimal.Decimal
	Tax                 decimal.Decimal
	Total               decimal.Decimal
	StationID           string
	Course              Course
	Status              ItemStatus
	SeatNumber          *int
	Modifiers           []Modifier
	SpecialInstructions string
	Notes               string
	CreatedAt           time.Time
	SentToKitchenAt     *time.Time
	StartedPreparingAt  *time.Time
	CompletedAt         *time.Time
}

// Item returns a pointer into o.Items so callers can mutate in place.
func (o *Order) Item(id string) *OrderItem {
	for i := range o.Items {
		if o.Items[i].ID == id {
			return &o.Items[i]
		}
	}
	return nil
}

// LiveItems excludes cancelled items.
func (o *Order) LiveItems() []*OrderItem {
	items := make([]*OrderItem, 0, len(o.Items))
	for i := range o.Items {
		if o.Items[i].Status != ItemStatusCancelled {
			items = append(items, &o.Items[i])
		}
	}
	return items
}

func (o *Order) IsDineIn() bool {
	return o.ServiceType == ServiceTypeDineIn
}

// RecalculateTotals recomputes item and order money from unit prices,
// modifier deltas and the order tax rate. Cancelled items contribute nothing.
func (o *Order) RecalculateTotals() {
	subtotal := decimal.Zero
	tax := decimal.Zero
	for i := range o.Items {
		item := &o.Items[i]
		unit := item.UnitPrice
		for _, m := range item.Modifiers {
			unit = unit.Add(m.PriceDelta)
		}
		item.Subtotal = unit.Mul(decimal.NewFromInt(int64(item.Quantity))).Round(2)
		item.Tax = item.Subtotal.Mul(o.TaxRate).Round(2)
		item.Total = item.Subtotal.Add(item.Tax)
		if item.Status == ItemStatusCancelled {
			continue
		}
		subtotal = subtotal.Add(item.Subtotal)
		tax = tax.Add(item.Tax)
	}
	o.Subtotal = subtotal
	o.Tax = tax
	o.Total = subtotal.Add(tax)
}

// ReferenceTime is the instant an item's kitchen age is measured from.
func (i *OrderItem) ReferenceTime() time.Time {
	if i.SentToKitchenAt != nil {
		return *i.SentToKitchenAt
	}
	return i.CreatedAt
}

func (o *Order) ReferenceTime() time.Time {
	if o.ConfirmedAt != nil {
		return *o.ConfirmedAt
	}
	return o.CreatedAt
}

// MinCourseRank is the earliest course among live items.
func (o *Order) MinCourseRank() int {
	min := Course("").Rank()
	for _, item := range o.LiveItems() {
		if r := item.Course.Rank(); r < min {
			min = r
		}
	}
	return min
}

type TableStatus string

const (
	TableStatusAvailable     TableStatus = "AVAILABLE"
	TableStatusNeedsCleaning TableStatus = "NEEDS_CLEANING"
)

const (
	AuditActionItemUpdated = "ITEM_UPDATED"
	AuditActionItemRemoved = "ITEM_REMOVED"
)

// ItemsEditable reports whether items may still be changed. Once the kitchen
// has started the ticket, edits go through cancellation.
func (o *Order) ItemsEditable() bool {
	return o.Status == OrderStatusPending || o.Status == OrderStatusConfirmed
}
