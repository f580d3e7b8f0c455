package notify

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/models"
	"github.com/dvvvvv411/lead-whisperer-portal-sub000/internal/trader"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/mock"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// MockNotifier is a mock implementation of Notifier.
type MockNotifier struct {
	mock.Mock
}

func (m *MockNotifier) Send(msg string) error {
	return m.Called(msg).Error(0)
}

func TestFormatEvent(t *testing.T) {
	session := trader.Session{ID: "sess-1", AccountID: "acc-1", RemainingTrades: 2}

	testCases := []struct {
		name     string
		status   trader.Status
		notify   bool
		contains []string
	}{
		{
			name: "completed trade",
			status: trader.Result{Session: session, Trade: &trader.TradeResult{
				Asset:         models.Asset{Symbol: "BTC"},
				Quantity:      0.5,
				BuyPrice:      99.8,
				SellPrice:     100,
				Profit:        5,
				ProfitPercent: 5,
			}},
			notify:   true,
			contains: []string{"acc-1", "0.50000000 BTC", "Profit 5.00 (5.00%)", "1 trades left"},
		},
		{
			name:     "partial trade",
			status:   trader.Result{Session: session, Err: &trader.PartialTradeError{AccountID: "acc-1", Err: errors.New("io")}, Fatal: true},
			notify:   true,
			contains: []string{"manual reconciliation", trader.ReasonPartialTrade},
		},
		{
			name:     "cancelled",
			status:   trader.Cancelled{Session: session, Reason: trader.ReasonCancelledByUser},
			notify:   true,
			contains: []string{"cancelled", trader.ReasonCancelledByUser},
		},
		{
			name:     "rejected",
			status:   trader.Rejected{SessionID: "sess-1", Err: trader.ErrQuotaExceeded},
			notify:   true,
			contains: []string{trader.ReasonQuotaExceeded},
		},
		{name: "progress is silent", status: trader.Simulating{Session: session}},
		{name: "idle is silent", status: trader.Idle{}},
	}

	for _, tc := range testCases {
		t.Run(tc.name, func(t *testing.T) {
			msg, notify := FormatEvent(trader.Event{AccountID: "acc-1", At: time.Now(), Status: tc.status})
			assert.Equal(t, tc.notify, notify)
			for _, s := range tc.contains {
				assert.Contains(t, msg, s)
			}
		})
	}
}

func TestWatcher_Run(t *testing.T) {
	// Arrange
	notifier := new(MockNotifier)
	sent := make(chan string, 4)
	notifier.On("Send", mock.Anything).Return(errors.New("chat not found")).Run(func(args mock.Arguments) {
		sent <- args.String(0)
	})

	bus := trader.NewHub[trader.Event](nil)
	watcher := NewWatcher(bus, notifier, zap.NewNop())
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	done := make(chan struct{})
	go func() {
		watcher.Run(ctx)
		close(done)
	}()
	require.Eventually(t, func() bool { return bus.Subscribers() == 1 }, time.Second, time.Millisecond)

	// Act
	bus.Broadcast(trader.Event{AccountID: "acc-1", Status: trader.Idle{}})
	bus.Broadcast(trader.Event{AccountID: "acc-1", Status: trader.Rejected{Err: trader.ErrNoEligibleAsset}})

	// Assert
	select {
	case msg := <-sent:
		assert.Contains(t, msg, trader.ReasonNoEligibleAsset)
	case <-time.After(time.Second):
		t.Fatal("no notification sent")
	}
	cancel()
	<-done
	notifier.AssertNumberOfCalls(t, "Send", 1)
}
