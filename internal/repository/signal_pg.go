package repository

import (
	"context"
	"time"

	"github.com/google/uuid"
	"github.com/signalgate/signalgate/internal/model"
	"github.com/signalgate/signalgate/internal/pkg/logger"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"
)

type SignalRepo struct {
	db *gorm.DB
}

func NewSignalRepo(db *gorm.DB) *SignalRepo {
	return &SignalRepo{db: db}
}

// Create persists an inbound signal. When the signal carries an external
// ID a redelivery upserts the existing row instead of inserting a second
// one; the returned signal always holds the surviving row's ID.
func (r *SignalRepo) Create(ctx context.Context, sig *model.Signal) error {
	if sig.ID == "" {
		sig.ID = uuid.NewString()
	}
	if sig.Status == "" {
		sig.Status = model.SignalReceived
	}
	now := time.Now().UTC()
	sig.CreatedAt = now
	sig.UpdatedAt = now

	if sig.ExternalID == "" {
		return r.db.WithContext(ctx).Create(sig).Error
	}

	err := r.db.WithContext(ctx).Clauses(clause.OnConflict{
		Columns:     []clause.Column{{Name: "bot_instance_id"}, {Name: "external_id"}},
		TargetWhere: clause.Where{Exprs: []clause.Expression{gorm.Expr("external_id <> ''")}},
		DoUpdates:   clause.Assignments(map[string]any{"updated_at": now}),
	}).Create(sig).Error
	if err != nil {
		return err
	}

	// The conflict path keeps the original row; read its ID back. The
	// lookup is scoped to the instance, matching the unique index.
	var existing model.Signal
	if err := r.db.WithContext(ctx).
		Where("bot_instance_id = ? AND external_id = ?", sig.BotInstanceID, sig.ExternalID).
		First(&existing).Error; err != nil {
		logger.Error("signal dedup read-back failed",
			"instance", sig.BotInstanceID, "external_id", sig.ExternalID, "error", err.Error())
		return nil
	}
	sig.ID = existing.ID
	sig.Status = existing.Status
	return nil
}

func (r *SignalRepo) UpdateStatus(ctx context.Context, id, status string) error {
	return r.db.WithContext(ctx).Model(&model.Signal{}).
		Where("id = ?", id).
		Updates(map[string]any{"status": status, "updated_at": time.Now().UTC()}).Error
}

func (r *SignalRepo) Get(ctx context.Context, id string) (*model.Signal, error) {
	var sig model.Signal
	if err := r.db.WithContext(ctx).First(&sig, "id = ?", id).Error; err != nil {
		return nil, err
	}
	return &sig, nil
}
