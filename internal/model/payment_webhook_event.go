package model

import (
	"time"

	"gorm.io/datatypes"
)

// PaymentWebhookEvent keeps every gateway delivery, deduplicated per provider event id.
type PaymentWebhookEvent struct {
	ID              uint64         `gorm:"primaryKey;autoIncrement"`
	Provider        string         `gorm:"column:provider;size:32;not null;uniqueIndex:ux_payment_webhook_events_provider_event,priority:1"`
	EventID         string         `gorm:"column:event_id;size:191;not null;uniqueIndex:ux_payment_webhook_events_provider_event,priority:2"`
	EventType       string         `gorm:"column:event_type;size:100;not null;index"`
	GatewayOrderID  string         `gorm:"column:gateway_order_id;size:128;index"`
	Payload         datatypes.JSON `gorm:"column:payload"`
	SignatureValid  bool           `gorm:"column:signature_valid;not null;default:false"`
	ProcessedAt     *time.Time     `gorm:"column:processed_at"`
	ProcessingError string         `gorm:"column:processing_error;type:text"`
	CreatedAt       time.Time      `gorm:"autoCreateTime"`
}

func (PaymentWebhookEvent) TableName() string {
	return "payment_webhook_events"
}
