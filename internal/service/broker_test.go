package service

import (
	"context"
	"testing"

	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func brokerRequest(key string) model.BrokerOrderRequest {
	return model.BrokerOrderRequest{
		Symbol:         "btcusdt",
		Side:           "BUY",
		Type:           "LIMIT",
		Price:          100,
		Qty:            2,
		IdempotencyKey: key,
	}
}

func TestBrokerPlacesOrderSynchronously(t *testing.T) {
	h := newHarness()
	broker := NewBrokerService(h.exec, instanceStoreFake{h.store})

	order, err := broker.PlaceOrder(context.Background(), "ws-1", "inst-1", brokerRequest("bk-1"))
	require.NoError(t, err)
	assert.Equal(t, model.OrderNew, order.Status)
	assert.Equal(t, "BTCUSDT", order.Symbol)
	assert.Equal(t, 1, h.adapter.placeCalls())
}

func TestBrokerRepeatedKeyReturnsOriginalOrder(t *testing.T) {
	h := newHarness()
	broker := NewBrokerService(h.exec, instanceStoreFake{h.store})

	first, err := broker.PlaceOrder(context.Background(), "ws-1", "inst-1", brokerRequest("bk-dup"))
	require.NoError(t, err)

	second, err := broker.PlaceOrder(context.Background(), "ws-1", "inst-1", brokerRequest("bk-dup"))
	require.NoError(t, err)

	assert.Equal(t, first.ID, second.ID)
	assert.Equal(t, 1, h.adapter.placeCalls())
	assert.Len(t, h.store.orders, 1)
}

func TestBrokerCrossWorkspaceIsHardForbidden(t *testing.T) {
	h := newHarness()
	broker := NewBrokerService(h.exec, instanceStoreFake{h.store})

	_, err := broker.PlaceOrder(context.Background(), "ws-other", "inst-1", brokerRequest("bk-scope"))
	require.Error(t, err)
	appErr := apperrors.Wrap(err)
	assert.Equal(t, apperrors.ErrScopeViolation, appErr.Type)
	assert.Equal(t, 403, appErr.HTTPStatus)
	assert.Equal(t, 0, h.adapter.placeCalls())
}

func TestBrokerUnknownInstanceIs404(t *testing.T) {
	h := newHarness()
	broker := NewBrokerService(h.exec, instanceStoreFake{h.store})

	_, err := broker.PlaceOrder(context.Background(), "ws-1", "inst-missing", brokerRequest("bk-404"))
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrNotFound, apperrors.Wrap(err).Type)
}

func TestBrokerStoppedInstanceIs409(t *testing.T) {
	h := newHarness()
	h.store.instances["inst-1"].State = model.InstanceStopped
	broker := NewBrokerService(h.exec, instanceStoreFake{h.store})

	_, err := broker.PlaceOrder(context.Background(), "ws-1", "inst-1", brokerRequest("bk-409"))
	require.Error(t, err)
	appErr := apperrors.Wrap(err)
	assert.Equal(t, apperrors.ErrNotRunning, appErr.Type)
	assert.Equal(t, 409, appErr.HTTPStatus)
}

func TestBrokerGuardrailRejectSurfacesMachineCode(t *testing.T) {
	h := newHarness()
	broker := NewBrokerService(h.exec, instanceStoreFake{h.store})

	req := brokerRequest("bk-small")
	req.Price = 1
	req.Qty = 2 // notional 2 < min 10

	_, err := broker.PlaceOrder(context.Background(), "ws-1", "inst-1", req)
	require.Error(t, err)
	appErr := apperrors.Wrap(err)
	assert.Equal(t, apperrors.ErrGuardrailReject, appErr.Type)
	assert.Equal(t, apperrors.CodeMinNotional, appErr.Machine)
	assert.Equal(t, 400, appErr.HTTPStatus)
}

func TestBrokerLimitWithoutPriceRejected(t *testing.T) {
	h := newHarness()
	broker := NewBrokerService(h.exec, instanceStoreFake{h.store})

	req := brokerRequest("bk-noprice")
	req.Price = 0

	_, err := broker.PlaceOrder(context.Background(), "ws-1", "inst-1", req)
	require.Error(t, err)
	appErr := apperrors.Wrap(err)
	assert.Equal(t, apperrors.ErrInvalidRequest, appErr.Type)
	assert.Equal(t, 0, h.adapter.placeCalls())
	assert.Empty(t, h.store.orders)
}

func TestBrokerStopWithoutPriceRejected(t *testing.T) {
	h := newHarness()
	broker := NewBrokerService(h.exec, instanceStoreFake{h.store})

	req := brokerRequest("bk-stopnp")
	req.Type = "STOP"
	req.Price = 0

	_, err := broker.PlaceOrder(context.Background(), "ws-1", "inst-1", req)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidRequest, apperrors.Wrap(err).Type)
	assert.Equal(t, 0, h.adapter.placeCalls())
}

func TestBrokerMarketWithoutPriceAccepted(t *testing.T) {
	h := newHarness()
	broker := NewBrokerService(h.exec, instanceStoreFake{h.store})

	req := brokerRequest("bk-mkt")
	req.Type = "MARKET"
	req.Price = 0

	order, err := broker.PlaceOrder(context.Background(), "ws-1", "inst-1", req)
	require.NoError(t, err)
	assert.Equal(t, model.OrderNew, order.Status)
	assert.Equal(t, 1, h.adapter.placeCalls())
}

func TestBrokerRejectsBadSide(t *testing.T) {
	h := newHarness()
	broker := NewBrokerService(h.exec, instanceStoreFake{h.store})

	req := brokerRequest("bk-side")
	req.Side = "LONG"

	_, err := broker.PlaceOrder(context.Background(), "ws-1", "inst-1", req)
	require.Error(t, err)
	assert.Equal(t, apperrors.ErrInvalidRequest, apperrors.Wrap(err).Type)
}
