package repository

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"github.com/signalgate/signalgate/internal/model"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type OrderRepo struct {
	db *gorm.DB
}

func NewOrderRepo(db *gorm.DB) *OrderRepo {
	return &OrderRepo{db: db}
}

// Create appends one execution record. Orders are never updated; a retry
// that reaches the venue again writes a fresh row.
func (r *OrderRepo) Create(ctx context.Context, order *model.Order) error {
	if order.ID == "" {
		order.ID = uuid.NewString()
	}
	order.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(order).Error
}

func (r *OrderRepo) Get(ctx context.Context, id string) (*model.Order, error) {
	var order model.Order
	err := r.db.WithContext(ctx).First(&order, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &order, nil
}

func (r *OrderRepo) ListByInstance(ctx context.Context, instanceID string, limit int) ([]*model.Order, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var orders []*model.Order
	err := r.db.WithContext(ctx).
		Where("bot_instance_id = ?", instanceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&orders).Error
	return orders, err
}

type ForwardedSignalRepo struct {
	db *gorm.DB
}

func NewForwardedSignalRepo(db *gorm.DB) *ForwardedSignalRepo {
	return &ForwardedSignalRepo{db: db}
}

// Get returns the delivery record for (key, instance), or nil when the key
// has never been attempted.
func (r *ForwardedSignalRepo) Get(ctx context.Context, key, instanceID string) (*model.ForwardedSignal, error) {
	var fwd model.ForwardedSignal
	err := r.db.WithContext(ctx).
		Where("idempotency_key = ? AND bot_instance_id = ?", key, instanceID).
		First(&fwd).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &fwd, nil
}

// RecordOutcome upserts the single delivery row for (key, instance),
// bumping the attempt counter. A succeeded row is terminal and is never
// downgraded back to failed.
func (r *ForwardedSignalRepo) RecordOutcome(ctx context.Context, fwd *model.ForwardedSignal) error {
	if fwd.ID == "" {
		fwd.ID = uuid.NewString()
	}
	now := time.Now().UTC()
	fwd.CreatedAt = now
	fwd.UpdatedAt = now
	if fwd.Attempts == 0 {
		fwd.Attempts = 1
	}

	return r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns: []clause.Column{{Name: "idempotency_key"}, {Name: "bot_instance_id"}},
		DoUpdates: clause.Assignments(map[string]any{
			"status": gorm.Expr(
				"CASE WHEN forwarded_signals.status = ? THEN forwarded_signals.status ELSE ? END",
				model.ForwardSucceeded, fwd.Status),
			"order_id": gorm.Expr(
				"CASE WHEN forwarded_signals.status = ? THEN forwarded_signals.order_id ELSE ? END",
				model.ForwardSucceeded, fwd.OrderID),
			"attempts":   gorm.Expr("forwarded_signals.attempts + 1"),
			"last_error": fwd.LastError,
			"updated_at": now,
		}),
	}).Create(fwd).Error
}
