// Package timing computes kitchen ages and alert flags. Everything here is a
// pure function of timestamps and thresholds.
package timing

import (
	"time"

	"kitchenops/internal/domain"
)

const (
	DefaultPrepTime          = 15
	DefaultWarningThreshold  = 10
	DefaultCriticalThreshold = 5
)

// Thresholds are in whole minutes.
type Thresholds struct {
	PrepTime int
	Warning  int
	Critical int
}

func DefaultThresholds() Thresholds {
	return Thresholds{
		PrepTime: DefaultPrepTime,
		Warning:  DefaultWarningThreshold,
		Critical: DefaultCriticalThreshold,
	}
}

// ForStation falls back to the defaults when no station config exists.
func ForStation(station *domain.KitchenStationConfig) Thresholds {
	if station == nil {
		return DefaultThresholds()
	}
	return Thresholds{
		PrepTime: station.DefaultPrepTime,
		Warning:  station.WarningThreshold,
		Critical: station.CriticalThreshold,
	}
}

// Age is the number of whole minutes elapsed since ref, floored and never negative.
func Age(now, ref time.Time) int {
	d := now.Sub(ref)
	if d <= 0 {
		return 0
	}
	return int(d / time.Minute)
}

// IsOverdue: age > prepTime + critical.
func IsOverdue(age int, th Thresholds) bool {
	return age > th.PrepTime+th.Critical
}

// IsWarning: prepTime - warning < age < prepTime. Reaching prepTime exactly
// leaves the warning window; overdue starts only after the critical grace.
func IsWarning(age int, th Thresholds) bool {
	if IsOverdue(age, th) {
		return false
	}
	return age > th.PrepTime-th.Warning && age < th.PrepTime
}

type ItemTiming struct {
	Age       int
	PrepTime  int
	IsOverdue bool
	IsWarning bool
}

// ForItem measures from sent-to-kitchen (or creation). Finished items stop
// ageing at their completion time.
func ForItem(now time.Time, item *domain.OrderItem, th Thresholds) ItemTiming {
	end := now
	if item.CompletedAt != nil {
		end = *item.CompletedAt
	}
	age := Age(end, item.ReferenceTime())
	active := item.Status == domain.ItemStatusPending || item.Status == domain.ItemStatusPreparing
	return ItemTiming{
		Age:       age,
		PrepTime:  th.PrepTime,
		IsOverdue: active && IsOverdue(age, th),
		IsWarning: active && IsWarning(age, th),
	}
}

type OrderTiming struct {
	Age             int
	PrepTime        int
	HasOverdueItems bool
	HasWarningItems bool
}

// ForOrder folds item timings: flags are ORs, prep time is the longest item
// prep time.
func ForOrder(now time.Time, order *domain.Order, items []ItemTiming) OrderTiming {
	ot := OrderTiming{Age: Age(now, order.ReferenceTime())}
	for _, it := range items {
		ot.HasOverdueItems = ot.HasOverdueItems || it.IsOverdue
		ot.HasWarningItems = ot.HasWarningItems || it.IsWarning
		if it.PrepTime > ot.PrepTime {
			ot.PrepTime = it.PrepTime
		}
	}
	return ot
}
