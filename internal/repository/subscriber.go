package repository

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/aman-churiwal/x402-gateway/internal/models"
	"github.com/aman-churiwal/x402-gateway/internal/storage"
)

// SubscriberRepository is the postgres-backed subscriber store. It
// satisfies the registry's Store interface; supersession runs in a
// transaction so concurrent readers see the old record or the new one,
// never both or neither.
type SubscriberRepository struct {
	db *storage.Postgres
}

func NewSubscriberRepository(db *storage.Postgres) *SubscriberRepository {
	return &SubscriberRepository{db: db}
}

func (r *SubscriberRepository) ActiveRecord(ctx context.Context, subscriberID string) (*models.TierRecord, error) {
	var rec models.TierRecord
	err := r.db.DB.WithContext(ctx).
		Where("subscriber_id = ? AND superseded_at IS NULL", subscriberID).
		Order("started_at DESC").
		First(&rec).Error

	if err == gorm.ErrRecordNotFound {
		return nil, nil
	}

	return &rec, err
}

func (r *SubscriberRepository) Supersede(ctx context.Context, rec *models.TierRecord) error {
	return r.db.DB.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		sub := models.Subscriber{ID: rec.SubscriberID}
		if err := tx.FirstOrCreate(&sub, models.Subscriber{ID: rec.SubscriberID}).Error; err != nil {
			return err
		}

		now := time.Now().UTC()
		if err := tx.Model(&models.TierRecord{}).
			Where("subscriber_id = ? AND superseded_at IS NULL", rec.SubscriberID).
			Update("superseded_at", now).Error; err != nil {
			return err
		}

		return tx.Create(rec).Error
	})
}

func (r *SubscriberRepository) History(ctx context.Context, subscriberID string) ([]models.TierRecord, error) {
	var records []models.TierRecord
	err := r.db.DB.WithContext(ctx).
		Where("subscriber_id = ?", subscriberID).
		Order("started_at ASC").
		Find(&records).Error

	return records, err
}

func (r *SubscriberRepository) Subscribers(ctx context.Context) ([]models.Subscriber, error) {
	var subs []models.Subscriber
	err := r.db.DB.WithContext(ctx).
		Order("created_at DESC").
		Find(&subs).Error

	return subs, err
}
