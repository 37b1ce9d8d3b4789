package service

import (
	"context"
	"strings"

	"github.com/shopspring/decimal"
	"github.com/signalgate/signalgate/internal/guardrail"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/normalize"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
)

// BrokerService is the synchronous order path. Unlike the webhook pipeline
// it answers with the placement outcome in the same request: the caller
// already authenticated with a workspace-scoped token.
type BrokerService struct {
	exec      *ExecutorService
	instances InstanceStore
}

func NewBrokerService(exec *ExecutorService, instances InstanceStore) *BrokerService {
	return &BrokerService{exec: exec, instances: instances}
}

// PlaceOrder runs the guarded placement inline. A repeated idempotency key
// returns the order the first delivery produced instead of placing again.
func (s *BrokerService) PlaceOrder(ctx context.Context, workspaceID, instanceID string, req model.BrokerOrderRequest) (*model.Order, error) {
	instance, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if err := guardrail.EnsureInstanceScope(instance, workspaceID); err != nil {
		return nil, err
	}
	if instance.State != model.InstanceRunning {
		return nil, apperrors.New(apperrors.ErrNotRunning, "bot instance is not running", nil)
	}

	if dup, err := s.exec.LookupDuplicate(ctx, req.IdempotencyKey, instanceID); err != nil {
		return nil, err
	} else if dup != nil {
		return dup, nil
	}

	intent, err := intentFromBrokerRequest(req)
	if err != nil {
		return nil, err
	}
	return s.exec.ExecuteGuarded(ctx, instanceID, intent, req.IdempotencyKey)
}

func intentFromBrokerRequest(req model.BrokerOrderRequest) (model.OrderIntent, error) {
	side := normalize.CoerceSide(req.Side)
	if side == "" {
		return model.OrderIntent{}, apperrors.NewInvalidRequest("side must be BUY or SELL")
	}
	if req.Qty <= 0 {
		return model.OrderIntent{}, apperrors.NewInvalidRequest("qty must be positive")
	}
	typ := normalizeBrokerType(req.Type)
	if typ == "" {
		return model.OrderIntent{}, apperrors.NewInvalidRequest("type must be MARKET, LIMIT or STOP")
	}
	// Only market orders may omit the price; a priceless limit or stop has
	// no level to work at.
	if typ != "market" && req.Price <= 0 {
		return model.OrderIntent{}, apperrors.NewInvalidRequest("price is required for " + req.Type + " orders")
	}

	intent := model.OrderIntent{
		Symbol:        strings.ToUpper(strings.TrimSpace(req.Symbol)),
		Side:          side,
		Type:          typ,
		Amount:        decimal.NewFromFloat(req.Qty),
		HasAmount:     true,
		ClientOrderID: req.IdempotencyKey,
	}
	if req.Price > 0 {
		intent.Price = decimal.NewFromFloat(req.Price)
		intent.HasPrice = true
	}
	return intent, nil
}

func normalizeBrokerType(t string) string {
	switch t {
	case "MARKET":
		return "market"
	case "LIMIT":
		return "limit"
	case "STOP":
		return "stop"
	default:
		return ""
	}
}
