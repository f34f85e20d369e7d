package models

import "time"

// UserProfile 用户资料，与 User 一对一。
// ID 在注册事务中显式设置为 UserID，客户端拿到的 main_id 因此可以直接用于 /change_state
type UserProfile struct {
	ID           uint      `gorm:"primaryKey;autoIncrement:false" json:"id"`
	UserInfo     string    `gorm:"column:user_info;not null" json:"user_info"`
	PasswordHash string    `gorm:"column:password_hash;not null" json:"-"`
	UserID       uint      `gorm:"column:user_id;uniqueIndex;not null" json:"user_id"`
	UserState    bool      `gorm:"column:user_state;not null;default:true" json:"user_state"`
	LastSeenAt   time.Time `gorm:"column:last_seen_at;index" json:"last_seen_at"`
	UpdatedAt    time.Time `json:"updated_at"`
}

func (UserProfile) TableName() string {
	return "user_profiles"
}
