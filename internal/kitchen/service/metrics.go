package service

import (
	"context"
	"time"

	"github.com/shopspring/decimal"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
	"kitchenops/internal/timing"
)

type PerformanceMetrics struct {
	BranchID              string                  `json:"branchId"`
	From                  time.Time               `json:"from"`
	To                    time.Time               `json:"to"`
	TotalOrders           int                     `json:"totalOrders"`
	CompletedOrders       int                     `json:"completedOrders"`
	CancelledOrders       int                     `json:"cancelledOrders"`
	TotalItems            int                     `json:"totalItems"`
	CompletedItems        int                     `json:"completedItems"`
	OverdueItems          int                     `json:"overdueItems"`
	AveragePrepTime       float64                 `json:"averagePrepTime"`
	AverageCompletionTime float64                 `json:"averageCompletionTime"`
	OnTimeRate            float64                 `json:"onTimeRate"`
	ByPriority            map[domain.Priority]int `json:"byPriority"`
	ByCourse              map[domain.Course]int   `json:"byCourse"`
	BusiestHour           *int                    `json:"busiestHour,omitempty"`
}

// GetPerformanceMetrics aggregates orders created in [from, to). Times are in
// minutes rounded to one decimal; the on-time rate is a percentage of
// completed items finished within their station prep time.
func (s *Service) GetPerformanceMetrics(ctx context.Context, branchID string, from, to time.Time) (*PerformanceMetrics, error) {
	if !from.Before(to) {
		return nil, apperrors.NewValidationError("invalid time window", apperrors.ValidationDetail{
			Field:   "from",
			Message: "from must be before to",
		})
	}

	orders, err := s.orders.FindCreatedBetween(ctx, branchID, from, to)
	if err != nil {
		return nil, err
	}
	stations, err := s.stationIndex(ctx, branchID)
	if err != nil {
		return nil, err
	}

	now := s.now()
	m := &PerformanceMetrics{
		BranchID:   branchID,
		From:       from,
		To:         to,
		ByPriority: make(map[domain.Priority]int),
		ByCourse:   make(map[domain.Course]int),
	}

	var prepTotal, completionTotal time.Duration
	var prepCount, completionCount, onTime int
	var hours [24]int

	for i := range orders {
		order := &orders[i]
		m.TotalOrders++
		m.ByPriority[order.Priority]++
		hours[order.CreatedAt.Hour()]++

		switch order.Status {
		case domain.OrderStatusCancelled:
			m.CancelledOrders++
		case domain.OrderStatusCompleted:
			m.CompletedOrders++
		}
		if order.ReadyAt != nil {
			completionTotal += order.ReadyAt.Sub(order.CreatedAt)
			completionCount++
		}

		for j := range order.Items {
			item := &order.Items[j]
			if item.Status == domain.ItemStatusCancelled {
				continue
			}
			m.TotalItems++
			m.ByCourse[item.Course]++

			th := s.thresholds(stations, item.StationID)
			it := timing.ForItem(now, item, th)
			if timing.IsOverdue(it.Age, th) {
				m.OverdueItems++
			}
			if item.CompletedAt == nil {
				continue
			}
			m.CompletedItems++
			if it.Age <= th.PrepTime {
				onTime++
			}
			if item.StartedPreparingAt != nil {
				prepTotal += item.CompletedAt.Sub(*item.StartedPreparingAt)
				prepCount++
			}
		}
	}

	m.AveragePrepTime = averageMinutes(prepTotal, prepCount)
	m.AverageCompletionTime = averageMinutes(completionTotal, completionCount)
	if m.CompletedItems > 0 {
		m.OnTimeRate = oneDecimal(decimal.NewFromInt(int64(onTime * 100)).Div(decimal.NewFromInt(int64(m.CompletedItems))))
	}
	if m.TotalOrders > 0 {
		busiest := 0
		for h := 1; h < len(hours); h++ {
			if hours[h] > hours[busiest] {
				busiest = h
			}
		}
		m.BusiestHour = &busiest
	}
	return m, nil
}

func averageMinutes(total time.Duration, n int) float64 {
	if n == 0 {
		return 0
	}
	minutes := decimal.NewFromFloat(total.Minutes())
	return oneDecimal(minutes.Div(decimal.NewFromInt(int64(n))))
}

func oneDecimal(d decimal.Decimal) float64 {
	return d.Round(1).InexactFloat64()
}
