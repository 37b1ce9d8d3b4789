package repository

import (
	"context"
	"errors"
	"time"

	"github.com/signalgate/signalgate/internal/model"
	"gorm.io/gorm"
)

type InstanceRepo struct {
	db *gorm.DB
}

func NewInstanceRepo(db *gorm.DB) *InstanceRepo {
	return &InstanceRepo{db: db}
}

// Get returns the instance or nil when no such row exists.
func (r *InstanceRepo) Get(ctx context.Context, id string) (*model.BotInstance, error) {
	var inst model.BotInstance
	err := r.db.WithContext(ctx).First(&inst, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &inst, nil
}

type ExchangeAccountRepo struct {
	db *gorm.DB
}

func NewExchangeAccountRepo(db *gorm.DB) *ExchangeAccountRepo {
	return &ExchangeAccountRepo{db: db}
}

func (r *ExchangeAccountRepo) Get(ctx context.Context, id string) (*model.ExchangeAccount, error) {
	var acct model.ExchangeAccount
	err := r.db.WithContext(ctx).First(&acct, "id = ?", id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &acct, nil
}

// UpdateCredentials swaps the stored vault blob, used after a session
// adapter mints fresh tokens.
func (r *ExchangeAccountRepo) UpdateCredentials(ctx context.Context, id, ciphertext, iv string) error {
	return r.db.WithContext(ctx).Model(&model.ExchangeAccount{}).
		Where("id = ?", id).
		Updates(map[string]any{
			"cred_ciphertext": ciphertext,
			"cred_iv":         iv,
			"updated_at":      time.Now().UTC(),
		}).Error
}
