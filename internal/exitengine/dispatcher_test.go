package exitengine

import (
	"context"
	"testing"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/wonny/guardian/internal/contracts"
	"github.com/wonny/guardian/internal/venue"
	"github.com/wonny/guardian/pkg/logger"
)

func newTestDispatcher(mock *venue.MockVenue, maxRetries int) *Dispatcher {
	metrics := NewMetrics(prometheus.NewRegistry())
	return NewDispatcher(mock, 1000, maxRetries, time.Millisecond, metrics, logger.NewNop())
}

func seedPosition(mock *venue.MockVenue) {
	mock.SetPosition(contracts.Position{
		Ticket: 1, Symbol: "XAUUSD", Direction: contracts.DirectionBuy,
		Volume: 0.10, OpenPrice: 3950.0, CurrentPrice: 3952.0, StopLoss: 3944.0, TakeProfit: 3980.0,
	})
}

func TestDispatcher_TransientRetriedThenSucceeds(t *testing.T) {
	mock := venue.NewMockVenue()
	seedPosition(mock)
	d := newTestDispatcher(mock, 3)

	mock.FailNext("modify_stop", venue.NewError(venue.ReasonTransient, "modify_stop", 1, "requote"))
	mock.FailNext("modify_stop", venue.NewError(venue.ReasonTransient, "modify_stop", 1, "requote"))

	err := d.ModifyStop(context.Background(), 1, 3950.0)
	require.NoError(t, err)
	assert.Len(t, mock.ModifyCalls, 1)
}

func TestDispatcher_TransientExhaustsRetries(t *testing.T) {
	mock := venue.NewMockVenue()
	seedPosition(mock)
	d := newTestDispatcher(mock, 3)

	for i := 0; i < 3; i++ {
		mock.FailNext("modify_stop", venue.NewError(venue.ReasonTransient, "modify_stop", 1, "busy"))
	}

	err := d.ModifyStop(context.Background(), 1, 3950.0)
	require.Error(t, err)
	assert.Equal(t, venue.ReasonTransient, venue.ReasonOf(err))
	assert.Empty(t, mock.ModifyCalls)
}

// 정책상 거래 불가는 같은 사이클 내 절대 재시도하지 않음
func TestDispatcher_DisallowedNeverRetried(t *testing.T) {
	mock := venue.NewMockVenue()
	seedPosition(mock)
	d := newTestDispatcher(mock, 3)

	mock.FailNext("modify_stop", venue.NewError(venue.ReasonTradingDisallowed, "modify_stop", 1, "session closed"))

	err := d.ModifyStop(context.Background(), 1, 3950.0)
	require.Error(t, err)
	assert.Equal(t, venue.ReasonTradingDisallowed, venue.ReasonOf(err))

	// 대기 중인 두 번째 실패가 남아 있으면 재시도한 것 — 즉시 반환 확인
	mock.FailNext("modify_stop", venue.NewError(venue.ReasonTradingDisallowed, "modify_stop", 1, "session closed"))
	err = d.ModifyStop(context.Background(), 1, 3950.0)
	require.Error(t, err)
	err = d.ModifyStop(context.Background(), 1, 3950.0)
	require.NoError(t, err, "queue should be drained one failure per call")
}

func TestDispatcher_InvalidVolumeNotRetried(t *testing.T) {
	mock := venue.NewMockVenue()
	seedPosition(mock)
	d := newTestDispatcher(mock, 3)

	mock.FailNext("close_partial", venue.NewError(venue.ReasonInvalidVolume, "close_partial", 1, "lot too small"))

	err := d.ClosePartial(context.Background(), 1, 0.05)
	require.Error(t, err)
	assert.Equal(t, venue.ReasonInvalidVolume, venue.ReasonOf(err))
	assert.Empty(t, mock.PartialCalls)
}

// 분류 불가 오류는 보수적으로 1회만 추가 시도
func TestDispatcher_UnknownRetriedOnce(t *testing.T) {
	mock := venue.NewMockVenue()
	seedPosition(mock)
	d := newTestDispatcher(mock, 5)

	mock.FailNext("modify_stop", venue.NewError(venue.ReasonUnknown, "modify_stop", 1, "???"))
	err := d.ModifyStop(context.Background(), 1, 3950.0)
	require.NoError(t, err)

	mock.FailNext("modify_stop", venue.NewError(venue.ReasonUnknown, "modify_stop", 1, "???"))
	mock.FailNext("modify_stop", venue.NewError(venue.ReasonUnknown, "modify_stop", 1, "???"))
	err = d.ModifyStop(context.Background(), 1, 3950.0)
	require.Error(t, err)
}

func TestDispatcher_CancelledContext(t *testing.T) {
	mock := venue.NewMockVenue()
	seedPosition(mock)
	d := newTestDispatcher(mock, 3)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	err := d.ModifyStop(ctx, 1, 3950.0)
	assert.Error(t, err)
}
