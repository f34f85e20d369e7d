package repositories

import (
	"context"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/MiniChat/internal/models"
)

// FeedRow 消息流的一行，作者名在读取时通过 JOIN 解析
type FeedRow struct {
	ID         uint
	Message    string
	AuthorID   uint
	AuthorName string
	Date       time.Time
}

// MessageRepository 消息仓储
type MessageRepository struct {
	db *gorm.DB
}

// NewMessageRepository 创建消息仓储实例
func NewMessageRepository(db *gorm.DB) *MessageRepository {
	return &MessageRepository{db: db}
}

// Create 追加一条消息
func (r *MessageRepository) Create(ctx context.Context, message *models.UserMessage) error {
	return r.db.WithContext(ctx).Create(message).Error
}

// Count 消息总数
func (r *MessageRepository) Count(ctx context.Context) (int64, error) {
	var total int64
	err := r.db.WithContext(ctx).Model(&models.UserMessage{}).Count(&total).Error
	return total, err
}

// ListFeed 按插入顺序返回全部消息
func (r *MessageRepository) ListFeed(ctx context.Context) ([]FeedRow, error) {
	var rows []FeedRow
	err := r.db.WithContext(ctx).
		Table("user_messages").
		Select("user_messages.id AS id, user_messages.message AS message, " +
			"user_messages.user_id AS author_id, users.username AS author_name, " +
			"user_messages.date AS date").
		Joins("JOIN users ON users.id = user_messages.user_id").
		Order("user_messages.id").
		Scan(&rows).Error
	return rows, err
}
