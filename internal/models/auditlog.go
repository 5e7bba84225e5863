package models

import (
	"time"
)

// AuditLog records one admission decision on a metered route. Rows are
// append-only; they are the durable trail backing usage disputes.
type AuditLog struct {
	ID             uint      `gorm:"primaryKey" json:"id"`
	Timestamp      time.Time `gorm:"index" json:"timestamp"`
	SubscriberID   string    `gorm:"index" json:"subscriber_id"`
	Tier           string    `json:"tier"`
	PeriodKey      string    `gorm:"index" json:"period_key"`
	Method         string    `json:"method"`
	Path           string    `json:"path"`
	StatusCode     int       `json:"status_code"`
	Admitted       bool      `json:"admitted"`
	Reason         string    `json:"reason,omitempty"`
	ResponseTimeMs int       `json:"response_time_ms"`
	IPAddress      string    `json:"ip_address"`
}

func (AuditLog) TableName() string {
	return "audit_logs"
}
