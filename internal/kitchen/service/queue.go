package service

import (
	"context"
	"sort"
	"time"

	"kitchenops/internal/domain"
	"kitchenops/internal/timing"
)

type SortKey string

const (
	SortByPriority  SortKey = "priority"
	SortByAge       SortKey = "age"
	SortByPrepTime  SortKey = "prepTime"
	SortByCreatedAt SortKey = "createdAt"
)

type QueueFilter struct {
	BranchID    string
	StationID   string
	Statuses    []domain.OrderStatus
	Priority    domain.Priority
	Course      domain.Course
	OverdueOnly bool
	WarningOnly bool
	SortBy      SortKey
	Descending  bool
	Page        int
	Limit       int
}

type QueueItem struct {
	ID                  string            `json:"id"`
	ProductName         string            `json:"productName"`
	Quantity            int               `json:"quantity"`
	StationID           string            `json:"stationId"`
	Course              domain.Course     `json:"course"`
	Status              domain.ItemStatus `json:"status"`
	SeatNumber          *int              `json:"seatNumber,omitempty"`
	Modifiers           []domain.Modifier `json:"modifiers,omitempty"`
	SpecialInstructions string            `json:"specialInstructions,omitempty"`
	Age                 int               `json:"age"`
	PrepTime            int               `json:"prepTime"`
	IsOverdue           bool              `json:"isOverdue"`
	IsWarning           bool              `json:"isWarning"`
}

type QueueOrder struct {
	ID              string             `json:"id"`
	Number          string             `json:"number"`
	TableID         *string            `json:"tableId,omitempty"`
	ServiceType     domain.ServiceType `json:"serviceType"`
	Priority        domain.Priority    `json:"priority"`
	Status          domain.OrderStatus `json:"status"`
	Notes           string             `json:"notes,omitempty"`
	CreatedAt       time.Time          `json:"createdAt"`
	Age             int                `json:"age"`
	PrepTime        int                `json:"prepTime"`
	HasOverdueItems bool               `json:"hasOverdueItems"`
	HasWarningItems bool               `json:"hasWarningItems"`
	Items           []QueueItem        `json:"items"`
}

type QueuePage struct {
	Orders []QueueOrder `json:"orders"`
	Total  int          `json:"total"`
	Page   int          `json:"page"`
	Limit  int          `json:"limit"`
}

var defaultQueueStatuses = []domain.OrderStatus{domain.OrderStatusConfirmed, domain.OrderStatusPreparing}

// GetQueue builds the live kitchen view. Timing flags are derived, so every
// filter after the store query, the sort and the paging run in memory.
func (s *Service) GetQueue(ctx context.Context, filter QueueFilter) (*QueuePage, error) {
	statuses := filter.Statuses
	if len(statuses) == 0 {
		statuses = defaultQueueStatuses
	}
	orders, err := s.orders.FindActive(ctx, domain.ActiveOrderFilter{BranchID: filter.BranchID, Statuses: statuses})
	if err != nil {
		return nil, err
	}
	stations, err := s.stationIndex(ctx, filter.BranchID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	var entries []QueueOrder
	for i := range orders {
		order := &orders[i]
		if filter.Priority != "" && order.Priority != filter.Priority {
			continue
		}
		entry, ok := s.buildEntry(now, order, stations, filter)
		if !ok {
			continue
		}
		if filter.OverdueOnly && !entry.HasOverdueItems {
			continue
		}
		if filter.WarningOnly && !entry.HasWarningItems {
			continue
		}
		entries = append(entries, entry)
	}

	SortQueue(entries, filter.SortBy, filter.Descending)

	start, end := domain.Paginate(len(entries), filter.Page, filter.Limit)
	return &QueuePage{
		Orders: entries[start:end],
		Total:  len(entries),
		Page:   filter.Page,
		Limit:  filter.Limit,
	}, nil
}

func (s *Service) buildEntry(now time.Time, order *domain.Order, stations map[string]*domain.KitchenStationConfig, filter QueueFilter) (QueueOrder, bool) {
	var items []QueueItem
	var timings []timing.ItemTiming
	for _, item := range order.LiveItems() {
		if filter.StationID != "" && item.StationID != filter.StationID {
			continue
		}
		if filter.Course != "" && item.Course != filter.Course {
			continue
		}
		it := timing.ForItem(now, item, s.thresholds(stations, item.StationID))
		timings = append(timings, it)
		items = append(items, QueueItem{
			ID:                  item.ID,
			ProductName:         item.ProductName,
			Quantity:            item.Quantity,
			StationID:           item.StationID,
			Course:              item.Course,
			Status:              item.Status,
			SeatNumber:          item.SeatNumber,
			Modifiers:           item.Modifiers,
			SpecialInstructions: item.SpecialInstructions,
			Age:                 it.Age,
			PrepTime:            it.PrepTime,
			IsOverdue:           it.IsOverdue,
			IsWarning:           it.IsWarning,
		})
	}
	if len(items) == 0 {
		return QueueOrder{}, false
	}

	ot := timing.ForOrder(now, order, timings)
	return QueueOrder{
		ID:              order.ID,
		Number:          order.Number,
		TableID:         order.TableID,
		ServiceType:     order.ServiceType,
		Priority:        order.Priority,
		Status:          order.Status,
		Notes:           order.Notes,
		CreatedAt:       order.CreatedAt,
		Age:             ot.Age,
		PrepTime:        ot.PrepTime,
		HasOverdueItems: ot.HasOverdueItems,
		HasWarningItems: ot.HasWarningItems,
		Items:           items,
	}, true
}

// SortQueue orders entries in place. Priority sort ignores direction: rank
// first, then the older order first. Other keys are stable and honour
// descending.
func SortQueue(entries []QueueOrder, key SortKey, descending bool) {
	switch key {
	case SortByPriority:
		sort.SliceStable(entries, func(i, j int) bool {
			ri, rj := entries[i].Priority.Rank(), entries[j].Priority.Rank()
			if ri != rj {
				return ri < rj
			}
			if entries[i].Age != entries[j].Age {
				return entries[i].Age > entries[j].Age
			}
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		})
	case SortByAge:
		sort.SliceStable(entries, func(i, j int) bool {
			if descending {
				return entries[i].Age > entries[j].Age
			}
			return entries[i].Age < entries[j].Age
		})
	case SortByPrepTime:
		sort.SliceStable(entries, func(i, j int) bool {
			if descending {
				return entries[i].PrepTime > entries[j].PrepTime
			}
			return entries[i].PrepTime < entries[j].PrepTime
		})
	default:
		sort.SliceStable(entries, func(i, j int) bool {
			if descending {
				return entries[i].CreatedAt.After(entries[j].CreatedAt)
			}
			return entries[i].CreatedAt.Before(entries[j].CreatedAt)
		})
	}
}

type TableGroup struct {
	TableID string       `json:"tableId"`
	Orders  []QueueOrder `json:"orders"`
}

// GetOrdersByCourseSequence groups the live queue by table; within a table the
// order whose earliest course comes first is served first. Orders without a
// table are grouped last under an empty table id.
func (s *Service) GetOrdersByCourseSequence(ctx context.Context, branchID string) ([]TableGroup, error) {
	orders, err := s.orders.FindActive(ctx, domain.ActiveOrderFilter{BranchID: branchID, Statuses: defaultQueueStatuses})
	if err != nil {
		return nil, err
	}
	stations, err := s.stationIndex(ctx, branchID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	groups := make(map[string][]int)
	var tables []string
	entries := make([]QueueOrder, 0, len(orders))
	ranks := make([]int, 0, len(orders))
	for i := range orders {
		entry, ok := s.buildEntry(now, &orders[i], stations, QueueFilter{})
		if !ok {
			continue
		}
		key := ""
		if orders[i].TableID != nil {
			key = *orders[i].TableID
		}
		if _, seen := groups[key]; !seen {
			tables = append(tables, key)
		}
		groups[key] = append(groups[key], len(entries))
		entries = append(entries, entry)
		ranks = append(ranks, orders[i].MinCourseRank())
	}

	sort.Slice(tables, func(i, j int) bool {
		if tables[i] == "" || tables[j] == "" {
			return tables[j] == "" && tables[i] != ""
		}
		return tables[i] < tables[j]
	})

	result := make([]TableGroup, 0, len(tables))
	for _, table := range tables {
		idx := groups[table]
		sort.SliceStable(idx, func(a, b int) bool {
			ra, rb := ranks[idx[a]], ranks[idx[b]]
			if ra != rb {
				return ra < rb
			}
			return entries[idx[a]].CreatedAt.Before(entries[idx[b]].CreatedAt)
		})
		group := TableGroup{TableID: table}
		for _, i := range idx {
			group.Orders = append(group.Orders, entries[i])
		}
		result = append(result, group)
	}
	return result, nil
}
