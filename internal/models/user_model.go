package models

import "time"

// User 用户身份。用户名唯一，注册后不再修改
type User struct {
	ID uint `gorm:"primaryKey" json:"id"`

	UserName  string    `gorm:"column:username;uniqueIndex;not null" json:"username"`
	CreatedAt time.Time `json:"created_at"`

	Profile  *UserProfile  `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
	Messages []UserMessage `gorm:"foreignKey:UserID;constraint:OnUpdate:CASCADE,OnDelete:CASCADE" json:"-"`
}

func (User) TableName() string {
	return "users"
}
