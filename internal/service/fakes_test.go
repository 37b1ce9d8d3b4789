package service

import (
	"context"
	"encoding/json"
	"strconv"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/exchange"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/queue"
	"github.com/signalgate/signalgate/internal/vault"
)

const testVaultKey = "000102030405060708090a0b0c0d0e0f101112131415161718191a1b1c1d1e1f"

// memStore implements every persistence interface against maps, mirroring
// the upsert semantics of the gorm repositories.
type memStore struct {
	mu        sync.Mutex
	signals   map[string]*model.Signal
	orders    map[string]*model.Order
	orderSeq  int
	forwards  map[string]*model.ForwardedSignal
	events    []*model.GuardrailEvent
	instances map[string]*model.BotInstance
	accounts  map[string]*model.ExchangeAccount

	failEnqueue bool
}

func newMemStore() *memStore {
	return &memStore{
		signals:   map[string]*model.Signal{},
		orders:    map[string]*model.Order{},
		forwards:  map[string]*model.ForwardedSignal{},
		instances: map[string]*model.BotInstance{},
		accounts:  map[string]*model.ExchangeAccount{},
	}
}

func (m *memStore) Create(ctx context.Context, sig *model.Signal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	// Dedup on (instance, external ID), like the partial unique index.
	if sig.ExternalID != "" {
		for _, existing := range m.signals {
			if existing.BotInstanceID == sig.BotInstanceID && existing.ExternalID == sig.ExternalID {
				sig.ID = existing.ID
				sig.Status = existing.Status
				return nil
			}
		}
	}
	if sig.ID == "" {
		sig.ID = "sig-" + strconv.Itoa(len(m.signals)+1)
	}
	copied := *sig
	m.signals[sig.ID] = &copied
	return nil
}

func (m *memStore) UpdateStatus(ctx context.Context, id, status string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if sig, ok := m.signals[id]; ok {
		sig.Status = status
	}
	return nil
}

func (m *memStore) createOrder(ctx context.Context, order *model.Order) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.orderSeq++
	if order.ID == "" {
		order.ID = "order-" + strconv.Itoa(m.orderSeq)
	}
	copied := *order
	m.orders[order.ID] = &copied
	return nil
}

func (m *memStore) getOrder(ctx context.Context, id string) (*model.Order, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if o, ok := m.orders[id]; ok {
		copied := *o
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) fwdKey(key, instanceID string) string { return key + "|" + instanceID }

func (m *memStore) Get(ctx context.Context, key, instanceID string) (*model.ForwardedSignal, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if fwd, ok := m.forwards[m.fwdKey(key, instanceID)]; ok {
		copied := *fwd
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) RecordOutcome(ctx context.Context, fwd *model.ForwardedSignal) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	k := m.fwdKey(fwd.IdempotencyKey, fwd.BotInstanceID)
	if existing, ok := m.forwards[k]; ok {
		existing.Attempts++
		existing.LastError = fwd.LastError
		if existing.Status != model.ForwardSucceeded {
			existing.Status = fwd.Status
			existing.OrderID = fwd.OrderID
		}
		return nil
	}
	copied := *fwd
	if copied.Attempts == 0 {
		copied.Attempts = 1
	}
	m.forwards[k] = &copied
	return nil
}

func (m *memStore) Insert(ctx context.Context, event *model.GuardrailEvent) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	copied := *event
	copied.CreatedAt = time.Now().UTC()
	m.events = append(m.events, &copied)
	return nil
}

func (m *memStore) HasEventSince(ctx context.Context, instanceID, eventType string, since time.Time) (bool, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, ev := range m.events {
		if ev.BotInstanceID == instanceID && ev.Type == eventType && !ev.CreatedAt.Before(since) {
			return true, nil
		}
	}
	return false, nil
}

func (m *memStore) getInstance(ctx context.Context, id string) (*model.BotInstance, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if inst, ok := m.instances[id]; ok {
		copied := *inst
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) getAccount(ctx context.Context, id string) (*model.ExchangeAccount, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acct, ok := m.accounts[id]; ok {
		copied := *acct
		return &copied, nil
	}
	return nil, nil
}

func (m *memStore) UpdateCredentials(ctx context.Context, id, ciphertext, iv string) error {
	m.mu.Lock()
	defer m.mu.Unlock()
	if acct, ok := m.accounts[id]; ok {
		acct.CredCiphertext = ciphertext
		acct.CredIV = iv
	}
	return nil
}

// Interface adapters so one memStore serves every store role.

type orderStoreFake struct{ *memStore }

func (o orderStoreFake) Create(ctx context.Context, order *model.Order) error {
	return o.createOrder(ctx, order)
}
func (o orderStoreFake) Get(ctx context.Context, id string) (*model.Order, error) {
	return o.getOrder(ctx, id)
}

type instanceStoreFake struct{ *memStore }

func (i instanceStoreFake) Get(ctx context.Context, id string) (*model.BotInstance, error) {
	return i.getInstance(ctx, id)
}

type accountStoreFake struct{ *memStore }

func (a accountStoreFake) Get(ctx context.Context, id string) (*model.ExchangeAccount, error) {
	return a.getAccount(ctx, id)
}
func (a accountStoreFake) UpdateCredentials(ctx context.Context, id, ciphertext, iv string) error {
	return a.memStore.UpdateCredentials(ctx, id, ciphertext, iv)
}

// fakeAdapter counts calls and returns a canned result or error.
type fakeAdapter struct {
	mu       sync.Mutex
	calls    int
	result   *model.PlacementResult
	err      error
	exported *model.Credentials
}

func (f *fakeAdapter) Name() string                            { return "fakevenue" }
func (f *fakeAdapter) TestConnectivity(ctx context.Context) error { return nil }

func (f *fakeAdapter) PlaceOrder(ctx context.Context, intent model.OrderIntent) (*model.PlacementResult, error) {
	f.mu.Lock()
	f.calls++
	f.mu.Unlock()
	if f.err != nil {
		return nil, f.err
	}
	if f.result != nil {
		return f.result, nil
	}
	return &model.PlacementResult{
		VenueOrderID: "venue-1",
		Symbol:       intent.Symbol,
		Side:         intent.Side,
		Type:         intent.Type,
		Price:        intent.Price,
		Qty:          intent.Amount,
	}, nil
}

func (f *fakeAdapter) ExportCredentialState() *model.Credentials {
	creds := f.exported
	f.exported = nil
	return creds
}

func (f *fakeAdapter) placeCalls() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.calls
}

type fakeRegistry struct {
	adapter *fakeAdapter
	err     error
}

func (r *fakeRegistry) Resolve(identifier string, creds model.Credentials, acct model.ExchangeAccount) (exchange.Adapter, error) {
	if r.err != nil {
		return nil, r.err
	}
	return r.adapter, nil
}

// captureQueue records enqueued jobs without dispatching them.
type captureQueue struct {
	mu   sync.Mutex
	jobs []queue.Job
	err  error
}

func (q *captureQueue) Enqueue(ctx context.Context, job queue.Job) error {
	if q.err != nil {
		return q.err
	}
	q.mu.Lock()
	q.jobs = append(q.jobs, job)
	q.mu.Unlock()
	return nil
}

func (q *captureQueue) RegisterConsumer(h queue.Handler)    {}
func (q *captureQueue) Start(ctx context.Context) error     { return nil }

func (q *captureQueue) enqueued() []queue.Job {
	q.mu.Lock()
	defer q.mu.Unlock()
	out := make([]queue.Job, len(q.jobs))
	copy(out, q.jobs)
	return out
}

// testHarness wires an executor over the fakes with a vaulted credential
// blob already stored for the default account.
type testHarness struct {
	store    *memStore
	adapter  *fakeAdapter
	registry *fakeRegistry
	vault    *vault.AESVault
	exec     *ExecutorService
}

func newHarness() *testHarness {
	store := newMemStore()
	adapter := &fakeAdapter{}
	registry := &fakeRegistry{adapter: adapter}
	v, err := vault.NewAESVault(testVaultKey)
	if err != nil {
		panic(err)
	}

	plain, _ := json.Marshal(model.Credentials{APIKey: "key", APISecret: "secret"})
	blob, err := v.Encrypt(plain)
	if err != nil {
		panic(err)
	}
	store.accounts["acct-1"] = &model.ExchangeAccount{
		ID:             "acct-1",
		WorkspaceID:    "ws-1",
		Venue:          "binance",
		CredCiphertext: blob.Ciphertext,
		CredIV:         blob.IV,
	}
	store.instances["inst-1"] = &model.BotInstance{
		ID:                "inst-1",
		WorkspaceID:       "ws-1",
		Symbol:            "BTCUSDT",
		MinNotional:       decimal.RequireFromString("10"),
		State:             model.InstanceRunning,
		ExchangeAccountID: "acct-1",
	}

	cfg := &config.Config{}
	cfg.Exchanges.MaxQty = "1000"
	cfg.Exchanges.DefaultExchange = "binance"

	exec := NewExecutorService(
		store, orderStoreFake{store}, store, store,
		instanceStoreFake{store}, accountStoreFake{store},
		registry, v, cfg,
	)
	return &testHarness{store: store, adapter: adapter, registry: registry, vault: v, exec: exec}
}

func buyTask(key string) ExecutionTask {
	return ExecutionTask{
		SignalID:       "sig-1",
		BotInstanceID:  "inst-1",
		IdempotencyKey: key,
		Intent: model.OrderIntent{
			Symbol:    "BTCUSDT",
			Side:      "buy",
			Type:      "limit",
			Amount:    decimal.RequireFromString("2"),
			HasAmount: true,
			Price:     decimal.RequireFromString("100"),
			HasPrice:  true,
		},
	}
}
