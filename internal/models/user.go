package models

import "time"

// UserModel is a registered account. Accounts only matter for the
// dashboard side: owning forms, browsing archives, exporting. Lazily
// created email forms have no user behind them.
type UserModel struct {
	Base
	Email         string     `json:"email" gorm:"uniqueIndex;not null"`
	Password      string     `json:"-"     gorm:"not null"`
	Plan          string     `json:"plan"  gorm:"default:'free'"`
	LastLoginTime *time.Time `json:"last_login_time"`
	LastLoginIP   string     `json:"last_login_ip"`

	Forms []FormModel `json:"forms,omitempty" gorm:"foreignKey:OwnerID"`
}

func (UserModel) TableName() string { return "users" }
