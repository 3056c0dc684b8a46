package models

import (
	"time"

	"github.com/finflow/reconciler/pkg/types"

	"gorm.io/datatypes"
)

// SubscriptionLog records every change to a subscription row.
// Use case: troubleshooting and audit.
type SubscriptionLog struct {
	ID     string `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID string `gorm:"column:user_id;type:varchar(64);index:idx_subscription_log_user_id;not null"`
	// Reason is the change reason.
	Reason types.ChangeReason `gorm:"column:reason;type:varchar(32);not null"`
	// Before stores the row before the change in JSON format. Null for inserts.
	Before datatypes.JSONType[*Subscription] `gorm:"column:before;type:jsonb;default:'null'"`
	// After stores the row after the change in JSON format.
	After datatypes.JSONType[*Subscription] `gorm:"column:after;type:jsonb;default:'null'"`
	// Extra stores additional context such as the trigger source.
	Extra     datatypes.JSONMap `gorm:"column:extra;type:jsonb;default:'{}'"`
	CreatedAt time.Time
}

func (SubscriptionLog) TableName() string {
	return "subscription_log"
}
