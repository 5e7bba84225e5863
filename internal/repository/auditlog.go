package repository

import (
	"context"
	"time"

	"github.com/aman-churiwal/x402-gateway/internal/models"
	"github.com/aman-churiwal/x402-gateway/internal/storage"
)

type AuditLogRepository struct {
	db *storage.Postgres
}

func NewAuditLogRepository(db *storage.Postgres) *AuditLogRepository {
	return &AuditLogRepository{db: db}
}

// Inserts multiple audit entries (for batch insertion)
func (r *AuditLogRepository) CreateBatch(ctx context.Context, logs []models.AuditLog) error {
	if len(logs) == 0 {
		return nil
	}

	return r.db.DB.WithContext(ctx).Create(&logs).Error
}

// Retrieves a subscriber's admission trail, newest first
func (r *AuditLogRepository) FindBySubscriber(ctx context.Context, subscriberID string, from, to time.Time, limit, offset int) ([]models.AuditLog, error) {
	var logs []models.AuditLog
	err := r.db.DB.WithContext(ctx).
		Where("subscriber_id = ? AND timestamp BETWEEN ? AND ?", subscriberID, from, to).
		Order("timestamp DESC").
		Limit(limit).
		Offset(offset).
		Find(&logs).Error

	return logs, err
}

// Counts denials by reason within a time range
func (r *AuditLogRepository) CountDenials(ctx context.Context, from, to time.Time) (map[string]int64, error) {
	rows, err := r.db.DB.WithContext(ctx).
		Model(&models.AuditLog{}).
		Select("reason, COUNT(*) as count").
		Where("admitted = ? AND timestamp BETWEEN ? AND ?", false, from, to).
		Group("reason").
		Rows()

	if err != nil {
		return nil, err
	}
	defer rows.Close()

	out := make(map[string]int64)
	for rows.Next() {
		var reason string
		var count int64
		if err := rows.Scan(&reason, &count); err != nil {
			return nil, err
		}
		out[reason] = count
	}

	return out, nil
}
