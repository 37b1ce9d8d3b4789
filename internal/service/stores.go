package service

import (
	"context"
	"time"

	"github.com/signalgate/signalgate/internal/exchange"
	"github.com/signalgate/signalgate/internal/model"
)

// Persistence surfaces consumed by the services, satisfied by the gorm
// repositories in production and by in-memory fakes in tests.

type SignalStore interface {
	Create(ctx context.Context, sig *model.Signal) error
	UpdateStatus(ctx context.Context, id, status string) error
}

type OrderStore interface {
	Create(ctx context.Context, order *model.Order) error
	Get(ctx context.Context, id string) (*model.Order, error)
}

type ForwardStore interface {
	Get(ctx context.Context, key, instanceID string) (*model.ForwardedSignal, error)
	RecordOutcome(ctx context.Context, fwd *model.ForwardedSignal) error
}

type EventStore interface {
	Insert(ctx context.Context, event *model.GuardrailEvent) error
	HasEventSince(ctx context.Context, instanceID, eventType string, since time.Time) (bool, error)
}

type InstanceStore interface {
	Get(ctx context.Context, id string) (*model.BotInstance, error)
}

type AccountStore interface {
	Get(ctx context.Context, id string) (*model.ExchangeAccount, error)
	UpdateCredentials(ctx context.Context, id, ciphertext, iv string) error
}

// AdapterResolver narrows the exchange registry to what the executor needs.
type AdapterResolver interface {
	Resolve(identifier string, creds model.Credentials, acct model.ExchangeAccount) (exchange.Adapter, error)
}
