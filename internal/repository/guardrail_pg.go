package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/signalgate/signalgate/internal/model"
	"gorm.io/gorm"
)

type GuardrailEventRepo struct {
	db *gorm.DB
}

func NewGuardrailEventRepo(db *gorm.DB) *GuardrailEventRepo {
	return &GuardrailEventRepo{db: db}
}

func (r *GuardrailEventRepo) Insert(ctx context.Context, event *model.GuardrailEvent) error {
	if event.ID == "" {
		event.ID = uuid.NewString()
	}
	event.CreatedAt = time.Now().UTC()
	return r.db.WithContext(ctx).Create(event).Error
}

// HasEventSince reports whether an event of the given type was recorded for
// the instance at or after the cutoff. Used for the daily loss-cap trip.
func (r *GuardrailEventRepo) HasEventSince(ctx context.Context, instanceID, eventType string, since time.Time) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&model.GuardrailEvent{}).
		Where("bot_instance_id = ? AND type = ? AND created_at >= ?", instanceID, eventType, since).
		Count(&count).Error
	return count > 0, err
}

func (r *GuardrailEventRepo) ListByInstance(ctx context.Context, instanceID string, limit int) ([]*model.GuardrailEvent, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	var events []*model.GuardrailEvent
	err := r.db.WithContext(ctx).
		Where("bot_instance_id = ?", instanceID).
		Order("created_at DESC").
		Limit(limit).
		Find(&events).Error
	return events, err
}
