package service

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"kitchenops/internal/domain"
	apperrors "kitchenops/internal/errors"
)

func at(ts time.Time) *time.Time { return &ts }

func TestGetPerformanceMetrics(t *testing.T) {
	completed := kitchenOrder("completed", domain.OrderStatusCompleted, 90,
		kitchenItem("c1", domain.ItemStatusServed),
		kitchenItem("c2", domain.ItemStatusServed),
	)
	completed.ReadyAt = at(completed.CreatedAt.Add(20 * time.Minute))
	completed.Items[0].StartedPreparingAt = at(completed.CreatedAt.Add(2 * time.Minute))
	completed.Items[0].CompletedAt = at(completed.CreatedAt.Add(12 * time.Minute))
	completed.Items[1].StartedPreparingAt = at(completed.CreatedAt.Add(2 * time.Minute))
	completed.Items[1].CompletedAt = at(completed.CreatedAt.Add(20 * time.Minute))
	completed.Items[1].Course = domain.CourseDessert

	cancelled := kitchenOrder("cancelled", domain.OrderStatusCancelled, 30, kitchenItem("x1", domain.ItemStatusCancelled))
	cancelled.Priority = domain.PriorityUrgent

	late := kitchenOrder("late", domain.OrderStatusPreparing, 45, kitchenItem("l1", domain.ItemStatusPreparing))

	outside := kitchenOrder("outside", domain.OrderStatusCompleted, 300, kitchenItem("z1", domain.ItemStatusServed))

	f := newFixture([]domain.Order{completed, cancelled, late, outside})

	m, err := f.svc.GetPerformanceMetrics(context.Background(), "b1", t0.Add(-2*time.Hour), t0)

	require.NoError(t, err)
	assert.Equal(t, 3, m.TotalOrders)
	assert.Equal(t, 1, m.CompletedOrders)
	assert.Equal(t, 1, m.CancelledOrders)
	assert.Equal(t, 3, m.TotalItems)
	assert.Equal(t, 2, m.CompletedItems)
	assert.Equal(t, 1, m.OverdueItems)
	assert.Equal(t, 14.0, m.AveragePrepTime)
	assert.Equal(t, 20.0, m.AverageCompletionTime)
	assert.Equal(t, 50.0, m.OnTimeRate)
	assert.Equal(t, 2, m.ByPriority[domain.PriorityNormal])
	assert.Equal(t, 1, m.ByPriority[domain.PriorityUrgent])
	assert.Equal(t, 2, m.ByCourse[domain.CourseMainCourse])
	assert.Equal(t, 1, m.ByCourse[domain.CourseDessert])
	require.NotNil(t, m.BusiestHour)
	assert.Equal(t, 11, *m.BusiestHour)
}

func TestGetPerformanceMetrics_Empty(t *testing.T) {
	f := newFixture(nil)

	m, err := f.svc.GetPerformanceMetrics(context.Background(), "b1", t0.Add(-time.Hour), t0)

	require.NoError(t, err)
	assert.Zero(t, m.TotalOrders)
	assert.Zero(t, m.OnTimeRate)
	assert.Nil(t, m.BusiestHour)
}

func TestGetPerformanceMetrics_InvalidWindow(t *testing.T) {
	f := newFixture(nil)

	_, err := f.svc.GetPerformanceMetrics(context.Background(), "b1", t0, t0)

	_, ok := apperrors.IsValidationError(err)
	assert.True(t, ok)
}

func TestAverageMinutes_OneDecimal(t *testing.T) {
	assert.Equal(t, 3.3, averageMinutes(10*time.Minute, 3))
	assert.Equal(t, 0.0, averageMinutes(0, 0))
}
