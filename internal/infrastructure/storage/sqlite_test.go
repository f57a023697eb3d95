package storage

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/vitos/tg_signal_trader/internal/domain"
)

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	store, err := NewSQLiteStore(":memory:")
	require.NoError(t, err)
	t.Cleanup(func() { store.Close() })
	return store
}

func TestPositionHistoryRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	opened := time.Now().Add(-time.Hour).UTC().Truncate(time.Second)
	closed := time.Now().UTC().Truncate(time.Second)
	h := &domain.PositionHistory{
		PositionID:  "pos-1",
		Symbol:      "SOLUSDT",
		Side:        domain.SideBuy,
		Size:        5.5,
		EntryPrice:  150.0,
		ExitPrice:   162.0,
		RealizedPnL: 66.0,
		CloseReason: domain.CloseTakeProfit,
		State:       domain.StateClosed,
		OpenedAt:    opened,
		ClosedAt:    closed,
	}
	require.NoError(t, store.SavePositionHistory(ctx, h))
	assert.NotZero(t, h.ID)

	got, err := store.ListPositionHistory(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, "pos-1", got[0].PositionID)
	assert.Equal(t, domain.CloseTakeProfit, got[0].CloseReason)
	assert.Equal(t, domain.StateClosed, got[0].State)
	assert.Equal(t, 66.0, got[0].RealizedPnL)
}

func TestListPositionHistoryOrderAndLimit(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	base := time.Now().UTC().Truncate(time.Second)
	for i := 0; i < 3; i++ {
		require.NoError(t, store.SavePositionHistory(ctx, &domain.PositionHistory{
			PositionID:  "pos",
			Symbol:      "BTCUSDT",
			Side:        domain.SideBuy,
			State:       domain.StateClosed,
			CloseReason: domain.CloseStopLoss,
			OpenedAt:    base,
			ClosedAt:    base.Add(time.Duration(i) * time.Minute),
		}))
	}

	got, err := store.ListPositionHistory(ctx, 2)
	require.NoError(t, err)
	require.Len(t, got, 2)
	// Newest first.
	assert.True(t, got[0].ClosedAt.After(got[1].ClosedAt))
}

func TestOrderRoundTrip(t *testing.T) {
	store := newTestStore(t)
	ctx := context.Background()

	o := &domain.Order{
		ID:         "ord-1",
		PositionID: "pos-1",
		Symbol:     "SOLUSDT",
		Side:       domain.SideSell,
		Type:       domain.OrderMarket,
		Quantity:   2.75,
		Price:      160.0,
		Simulated:  true,
		CreatedAt:  time.Now().UTC().Truncate(time.Second),
	}
	require.NoError(t, store.SaveOrder(ctx, o))

	// Saving the same id again replaces, not duplicates.
	require.NoError(t, store.SaveOrder(ctx, o))

	got, err := store.ListOrders(ctx, 10)
	require.NoError(t, err)
	require.Len(t, got, 1)
	assert.Equal(t, domain.SideSell, got[0].Side)
	assert.Equal(t, domain.OrderMarket, got[0].Type)
	assert.True(t, got[0].Simulated)
	assert.Equal(t, 2.75, got[0].Quantity)
}
