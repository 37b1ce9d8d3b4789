package service

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/shopspring/decimal"
	"github.com/signalgate/signalgate/internal/config"
	"github.com/signalgate/signalgate/internal/exchange"
	"github.com/signalgate/signalgate/internal/guardrail"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/apperrors"
	"github.com/signalgate/signalgate/internal/pkg/logger"
	"github.com/signalgate/signalgate/internal/pkg/metrics"
	"github.com/signalgate/signalgate/internal/ratelimit"
	"github.com/signalgate/signalgate/internal/vault"
)

// ExecutionTask is the queue payload: everything a worker needs to run the
// guarded placement without re-reading the raw signal.
type ExecutionTask struct {
	SignalID       string            `json:"signal_id"`
	BotInstanceID  string            `json:"bot_instance_id"`
	IdempotencyKey string            `json:"idempotency_key"`
	Intent         model.OrderIntent `json:"intent"`
}

// ExecutorService runs the guardrail chain and the venue placement for one
// delivery. It is shared by the async worker and the synchronous broker
// path; only the surrounding retry/status handling differs.
type ExecutorService struct {
	signals   SignalStore
	orders    OrderStore
	forwards  ForwardStore
	events    EventStore
	instances InstanceStore
	accounts  AccountStore
	registry  AdapterResolver
	vault     vault.Vault
	usage     *ratelimit.Usage

	defaultVenue string
	maxQty       decimal.Decimal

	now func() time.Time
}

func NewExecutorService(
	signals SignalStore,
	orders OrderStore,
	forwards ForwardStore,
	events EventStore,
	instances InstanceStore,
	accounts AccountStore,
	registry AdapterResolver,
	v vault.Vault,
	cfg *config.Config,
) *ExecutorService {
	maxQty := decimal.Zero
	if cfg.Exchanges.MaxQty != "" {
		if parsed, err := decimal.NewFromString(cfg.Exchanges.MaxQty); err == nil {
			maxQty = parsed
		} else {
			logger.Warn("ignoring unparseable max_qty", "value", cfg.Exchanges.MaxQty)
		}
	}
	return &ExecutorService{
		signals:      signals,
		orders:       orders,
		forwards:     forwards,
		events:       events,
		instances:    instances,
		accounts:     accounts,
		registry:     registry,
		vault:        v,
		defaultVenue: cfg.Exchanges.DefaultExchange,
		maxQty:       maxQty,
		now:          time.Now,
	}
}

// WithUsage attaches a daily order counter. Counts are advisory; a failed
// increment never blocks a placement.
func (s *ExecutorService) WithUsage(u *ratelimit.Usage) *ExecutorService {
	s.usage = u
	return s
}

// HandleDelivery processes one queued task. A nil return consumes the job;
// a non-nil return asks the queue for a retry (or, on the final attempt,
// parks the job for manual replay).
func (s *ExecutorService) HandleDelivery(ctx context.Context, task ExecutionTask, finalAttempt bool) error {
	fwd, err := s.forwards.Get(ctx, task.IdempotencyKey, task.BotInstanceID)
	if err != nil {
		return err
	}
	if fwd != nil && fwd.Status == model.ForwardSucceeded {
		logger.Info("duplicate delivery suppressed",
			"instance", task.BotInstanceID, "key", task.IdempotencyKey)
		metrics.SignalsTotal.WithLabelValues("queue", "duplicate").Inc()
		s.setSignalStatus(ctx, task.SignalID, model.SignalExecuted)
		return nil
	}

	order, execErr := s.ExecuteGuarded(ctx, task.BotInstanceID, task.Intent, task.IdempotencyKey)
	if execErr == nil {
		s.setSignalStatus(ctx, task.SignalID, model.SignalExecuted)
		logger.Info("order placed",
			"instance", task.BotInstanceID, "order", order.ID, "venue_order", order.VenueOrderID)
		return nil
	}

	if apperrors.IsRetryable(execErr) {
		if finalAttempt {
			s.setSignalStatus(ctx, task.SignalID, model.SignalFailed)
		}
		return execErr
	}

	// Policy and caller errors are final; retrying cannot change them.
	s.setSignalStatus(ctx, task.SignalID, model.SignalFailed)
	logger.Warn("delivery rejected",
		"instance", task.BotInstanceID, "key", task.IdempotencyKey, "error", execErr.Error())
	return nil
}

// ExecuteGuarded runs the full chain for one intent: instance checks, loss
// cap, rounding, venue filters, adapter resolution and placement. Every
// definitive outcome leaves an Order row and a ForwardedSignal row; only
// transport failures leave the order ledger untouched.
func (s *ExecutorService) ExecuteGuarded(ctx context.Context, instanceID string, intent model.OrderIntent, key string) (*model.Order, error) {
	instance, err := s.instances.Get(ctx, instanceID)
	if err != nil {
		return nil, err
	}
	if instance == nil {
		return nil, s.recordFailure(ctx, instanceID, key, apperrors.NewNotFound("bot instance not found"))
	}
	if instance.State != model.InstanceRunning {
		return nil, s.recordFailure(ctx, instanceID, key,
			apperrors.New(apperrors.ErrNotRunning, "bot instance is not running", nil))
	}
	if intent.Symbol == "" || intent.Side == "" {
		return nil, s.recordFailure(ctx, instanceID, key,
			apperrors.NewInvalidRequest("signal is missing symbol or side"))
	}

	tripped, err := s.events.HasEventSince(ctx, instanceID, model.EventLossCap, guardrail.StartOfUTCDay(s.now()))
	if err != nil {
		return nil, err
	}
	if err := guardrail.CheckDailyLossCap(tripped); err != nil {
		// A violation event, not another loss_cap: re-recording the trip
		// would roll the halt window forward past the UTC day boundary.
		s.appendEvent(ctx, instanceID, model.EventGuardrailViolation, err.Error())
		return nil, s.rejectOrder(ctx, instance, intent, key, err)
	}

	meta := model.VenueMeta{MaxQty: s.maxQty}
	price, qty := guardrail.RoundPriceQty(meta, intent.Price, intent.Amount)
	intent.Price, intent.Amount = price, qty

	// The notional floor needs a price; market orders only get the
	// quantity ceiling.
	minNotional := decimal.Zero
	if intent.HasPrice {
		minNotional = instance.MinNotional
	}
	if err := guardrail.CheckVenueFilters(meta, minNotional, price, qty); err != nil {
		s.appendEvent(ctx, instanceID, model.EventGuardrailViolation, err.Error())
		return nil, s.rejectOrder(ctx, instance, intent, key, err)
	}

	adapter, acctID, err := s.resolveAdapter(ctx, instance, intent)
	if err != nil {
		if !apperrors.IsRetryable(err) {
			return nil, s.recordFailure(ctx, instanceID, key, err)
		}
		return nil, err
	}

	result, err := adapter.PlaceOrder(ctx, intent)
	s.persistCredentialState(ctx, adapter, acctID)
	if err != nil {
		appErr := apperrors.Wrap(err)
		if apperrors.IsRetryable(appErr) {
			metrics.OrdersTotal.WithLabelValues(adapter.Name(), "error").Inc()
			s.recordAttempt(ctx, instanceID, key, appErr)
			return nil, appErr
		}
		// The venue refused the order outright.
		return nil, s.rejectOrder(ctx, instance, intent, key, appErr)
	}

	order := &model.Order{
		BotInstanceID: instance.ID,
		Venue:         adapter.Name(),
		Symbol:        result.Symbol,
		Side:          result.Side,
		Type:          result.Type,
		Price:         result.Price,
		Qty:           result.Qty,
		Status:        model.OrderNew,
		VenueOrderID:  result.VenueOrderID,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		return nil, err
	}
	if err := s.forwards.RecordOutcome(ctx, &model.ForwardedSignal{
		IdempotencyKey: key,
		BotInstanceID:  instance.ID,
		Status:         model.ForwardSucceeded,
		OrderID:        order.ID,
	}); err != nil {
		return nil, err
	}
	metrics.OrdersTotal.WithLabelValues(adapter.Name(), "new").Inc()
	if s.usage != nil {
		if count, err := s.usage.IncrDay(ctx, "orders:"+instance.ID, s.now()); err != nil {
			logger.Warn("daily usage counter increment failed", "instance", instance.ID, "error", err.Error())
		} else {
			logger.Debug("daily order count", "instance", instance.ID, "count", count)
		}
	}
	return order, nil
}

// LookupDuplicate returns the order a previously succeeded delivery of the
// same key produced, or nil when the key is fresh.
func (s *ExecutorService) LookupDuplicate(ctx context.Context, key, instanceID string) (*model.Order, error) {
	fwd, err := s.forwards.Get(ctx, key, instanceID)
	if err != nil {
		return nil, err
	}
	if fwd == nil || fwd.Status != model.ForwardSucceeded {
		return nil, nil
	}
	if fwd.OrderID == "" {
		return nil, apperrors.New(apperrors.ErrInternal,
			fmt.Sprintf("delivery %s succeeded without an order reference", fwd.ID), nil)
	}
	return s.orders.Get(ctx, fwd.OrderID)
}

func (s *ExecutorService) resolveAdapter(ctx context.Context, instance *model.BotInstance, intent model.OrderIntent) (exchange.Adapter, string, error) {
	acct, err := s.accounts.Get(ctx, instance.ExchangeAccountID)
	if err != nil {
		return nil, "", err
	}
	if acct == nil {
		return nil, "", apperrors.NewConfig("instance has no exchange account")
	}

	plain, err := s.vault.Decrypt(vault.Blob{Ciphertext: acct.CredCiphertext, IV: acct.CredIV})
	if err != nil {
		return nil, "", apperrors.NewConfig("stored credentials cannot be decrypted")
	}
	var creds model.Credentials
	if err := json.Unmarshal(plain, &creds); err != nil {
		return nil, "", apperrors.NewConfig("stored credentials are malformed")
	}

	venue := intent.Exchange
	if venue == "" {
		venue = acct.Venue
	}
	if venue == "" {
		venue = s.defaultVenue
	}
	adapter, err := s.registry.Resolve(venue, creds, *acct)
	if err != nil {
		return nil, "", err
	}
	return adapter, acct.ID, nil
}

// persistCredentialState writes back tokens a session adapter minted during
// the call. Best effort: a write failure only costs a re-login later.
func (s *ExecutorService) persistCredentialState(ctx context.Context, adapter exchange.Adapter, acctID string) {
	creds := adapter.ExportCredentialState()
	if creds == nil {
		return
	}
	plain, err := json.Marshal(creds)
	if err != nil {
		logger.Error("credential state marshal failed", "account", acctID, "error", err.Error())
		return
	}
	blob, err := s.vault.Encrypt(plain)
	if err != nil {
		logger.Error("credential state encrypt failed", "account", acctID, "error", err.Error())
		return
	}
	if err := s.accounts.UpdateCredentials(ctx, acctID, blob.Ciphertext, blob.IV); err != nil {
		logger.Error("credential state persist failed", "account", acctID, "error", err.Error())
	}
}

// rejectOrder writes the REJECTED ledger row and the failed delivery record
// for a definitive refusal, then returns the original error.
func (s *ExecutorService) rejectOrder(ctx context.Context, instance *model.BotInstance, intent model.OrderIntent, key string, cause error) error {
	appErr := apperrors.Wrap(cause)
	order := &model.Order{
		BotInstanceID: instance.ID,
		Symbol:        intent.Symbol,
		Side:          intent.Side,
		Type:          intent.Type,
		Price:         intent.Price,
		Qty:           intent.Amount,
		Status:        model.OrderRejected,
		Error:         appErr.Message,
	}
	if err := s.orders.Create(ctx, order); err != nil {
		logger.Error("rejected order persist failed", "instance", instance.ID, "error", err.Error())
	}
	metrics.OrdersTotal.WithLabelValues("", "rejected").Inc()
	s.recordAttempt(ctx, instance.ID, key, appErr)
	return appErr
}

// recordFailure marks the delivery failed without an order row; used when
// the request never reached the guardrail chain.
func (s *ExecutorService) recordFailure(ctx context.Context, instanceID, key string, cause error) error {
	s.recordAttempt(ctx, instanceID, key, apperrors.Wrap(cause))
	return cause
}

func (s *ExecutorService) recordAttempt(ctx context.Context, instanceID, key string, appErr *apperrors.AppError) {
	if key == "" {
		return
	}
	if err := s.forwards.RecordOutcome(ctx, &model.ForwardedSignal{
		IdempotencyKey: key,
		BotInstanceID:  instanceID,
		Status:         model.ForwardFailed,
		LastError:      appErr.Message,
	}); err != nil {
		logger.Error("delivery record persist failed", "instance", instanceID, "error", err.Error())
	}
}

func (s *ExecutorService) appendEvent(ctx context.Context, instanceID, eventType, detail string) {
	if err := s.events.Insert(ctx, &model.GuardrailEvent{
		BotInstanceID: instanceID,
		Type:          eventType,
		Detail:        detail,
	}); err != nil {
		logger.Error("guardrail event persist failed", "instance", instanceID, "error", err.Error())
	}
}

func (s *ExecutorService) setSignalStatus(ctx context.Context, signalID, status string) {
	if signalID == "" {
		return
	}
	if err := s.signals.UpdateStatus(ctx, signalID, status); err != nil {
		logger.Error("signal status update failed", "signal", signalID, "error", err.Error())
	}
}
