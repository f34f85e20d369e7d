package repositories

import (
	"context"
	"errors"
	"time"

	"gorm.io/gorm"

	"github.com/Gopher0727/MiniChat/internal/models"
)

// ErrDuplicateUserName 用户名唯一索引冲突
var ErrDuplicateUserName = errors.New("username already taken")

// DirectoryRow 用户目录的一行，由 users LEFT JOIN user_profiles 得到
type DirectoryRow struct {
	ID        uint
	UserName  string
	UserInfo  string
	UserState bool
}

type UserRepository struct {
	db *gorm.DB
}

func NewUserRepository(db *gorm.DB) *UserRepository {
	return &UserRepository{db: db}
}

// CreateWithProfile 在同一事务中创建用户及其资料，资料 ID 与用户 ID 相同
func (r *UserRepository) CreateWithProfile(ctx context.Context, user *models.User, profile *models.UserProfile) error {
	err := r.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(user).Error; err != nil {
			return err
		}
		profile.ID = user.ID
		profile.UserID = user.ID
		return tx.Create(profile).Error
	})
	if errors.Is(err, gorm.ErrDuplicatedKey) {
		return ErrDuplicateUserName
	}
	return err
}

// GetByID 根据 ID 获取用户
func (r *UserRepository) GetByID(ctx context.Context, id uint) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).First(&user, id).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// GetByUserName 根据用户名获取用户
func (r *UserRepository) GetByUserName(ctx context.Context, username string) (*models.User, error) {
	var user models.User
	if err := r.db.WithContext(ctx).Where("username = ?", username).First(&user).Error; err != nil {
		return nil, err
	}
	return &user, nil
}

// ExistsByUserName 检查用户名是否存在
func (r *UserRepository) ExistsByUserName(ctx context.Context, username string) (bool, error) {
	var count int64
	err := r.db.WithContext(ctx).Model(&models.User{}).Where("username = ?", username).Count(&count).Error
	return count > 0, err
}

// ListUserNames 全部用户名，用于启动时预热布隆过滤器
func (r *UserRepository) ListUserNames(ctx context.Context) ([]string, error) {
	var names []string
	err := r.db.WithContext(ctx).Model(&models.User{}).Order("id").Pluck("username", &names).Error
	return names, err
}

// GetProfileByUserID 获取用户资料
func (r *UserRepository) GetProfileByUserID(ctx context.Context, userID uint) (*models.UserProfile, error) {
	var profile models.UserProfile
	if err := r.db.WithContext(ctx).Where("user_id = ?", userID).First(&profile).Error; err != nil {
		return nil, err
	}
	return &profile, nil
}

// SetState 修改在线状态，返回受影响行数。ID 不存在时返回 0 而不是错误
func (r *UserRepository) SetState(ctx context.Context, profileID uint, online bool, at time.Time) (int64, error) {
	updates := map[string]any{"user_state": online}
	if online {
		updates["last_seen_at"] = at
	}
	res := r.db.WithContext(ctx).Model(&models.UserProfile{}).Where("id = ?", profileID).Updates(updates)
	return res.RowsAffected, res.Error
}

// TouchLastSeen 刷新最近活跃时间
func (r *UserRepository) TouchLastSeen(ctx context.Context, profileID uint, at time.Time) error {
	return r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("id = ?", profileID).
		UpdateColumn("last_seen_at", at).Error
}

// MarkStaleOffline 将 before 之前没有活跃过的在线用户置为离线
func (r *UserRepository) MarkStaleOffline(ctx context.Context, before time.Time) (int64, error) {
	res := r.db.WithContext(ctx).Model(&models.UserProfile{}).
		Where("user_state = ? AND last_seen_at < ?", true, before).
		Update("user_state", false)
	return res.RowsAffected, res.Error
}

// ListDirectory 一次 JOIN 查询得到按用户 ID 排序的目录
func (r *UserRepository) ListDirectory(ctx context.Context) ([]DirectoryRow, error) {
	var rows []DirectoryRow
	err := r.db.WithContext(ctx).
		Table("users").
		Select("users.id AS id, users.username AS user_name, " +
			"COALESCE(user_profiles.user_info, '') AS user_info, " +
			"COALESCE(user_profiles.user_state, FALSE) AS user_state").
		Joins("LEFT JOIN user_profiles ON user_profiles.user_id = users.id").
		Order("users.id").
		Scan(&rows).Error
	return rows, err
}
