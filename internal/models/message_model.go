package models

import "time"

// UserMessage 聊天消息，只追加不修改。自增主键顺序即时间顺序
type UserMessage struct {
	ID      uint      `gorm:"primaryKey" json:"id"`
	Date    time.Time `gorm:"column:date;not null" json:"date"`
	Message string    `gorm:"column:message;type:text;not null" json:"message"`
	UserID  uint      `gorm:"column:user_id;not null;index" json:"user_id"`
}

func (UserMessage) TableName() string {
	return "user_messages"
}
