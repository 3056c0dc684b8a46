package models

import "time"

// Account is an external auth-provider account linked to a user. The
// reconciler only reads this table to fill Subscription.AccountID; users
// who signed up with credentials have no row here, which is fine.
type Account struct {
	ID        string    `gorm:"column:id;type:uuid;primary_key" json:"id"`
	UserID    string    `gorm:"column:user_id;type:varchar(64);not null;index:idx_account_user_id" json:"user_id"`
	Provider  string    `gorm:"column:provider;type:varchar(64);not null" json:"provider"`
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

func (Account) TableName() string { return "account" }
