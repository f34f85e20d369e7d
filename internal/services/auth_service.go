package services

import (
	"context"
	"errors"
	"fmt"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/MiniChat/internal/models"
	"github.com/Gopher0727/MiniChat/internal/pkg/bloom"
	"github.com/Gopher0727/MiniChat/internal/repositories"
	"github.com/Gopher0727/MiniChat/internal/utils"
	"github.com/Gopher0727/MiniChat/middleware/jwt"
	"github.com/Gopher0727/MiniChat/pkg/mq"
)

// AuthService 注册与登录
type AuthService struct {
	users  *repositories.UserRepository
	tokens *jwt.TokenManager
	names  *bloom.Filter
	infra  *Infra
}

// NewAuthService 创建认证服务实例。tokens 为 nil 时不签发会话令牌
func NewAuthService(users *repositories.UserRepository, tokens *jwt.TokenManager, infra *Infra) *AuthService {
	return &AuthService{
		users:  users,
		tokens: tokens,
		names:  bloom.New(1<<16, 0.01),
		infra:  infra.withDefaults(),
	}
}

// RegisterRequest 注册请求。服务端不校验字段是否为空
type RegisterRequest struct {
	UserName string `json:"username"`
	UserInfo string `json:"user_info"`
	Password string `json:"password"`
}

// LoginRequest 登录请求
type LoginRequest struct {
	UserName string `json:"username"`
	Password string `json:"password"`
}

// AuthResult 注册或登录成功后的身份信息。UserID 同时也是资料 ID
type AuthResult struct {
	UserID   uint
	UserName string
	UserInfo string
	Token    string
}

// WarmUp 用已有用户名填充布隆过滤器
func (s *AuthService) WarmUp(ctx context.Context) error {
	names, err := s.users.ListUserNames(ctx)
	if err != nil {
		return fmt.Errorf("load usernames: %w", err)
	}
	for _, n := range names {
		s.names.Add(n)
	}
	s.infra.Logger.Info("username filter warmed up", zap.Int("count", len(names)))
	return nil
}

// Register 注册用户，用户资料与用户在同一事务中创建，初始状态为在线
func (s *AuthService) Register(ctx context.Context, req *RegisterRequest) (*AuthResult, error) {
	// 布隆过滤器判定不存在时跳过查询，最终由唯一索引兜底
	if s.names.MayContain(req.UserName) {
		exists, err := s.users.ExistsByUserName(ctx, req.UserName)
		if err != nil {
			return nil, fmt.Errorf("check username: %w", err)
		}
		if exists {
			s.infra.Metrics.RegistrationsRejected.Inc()
			return nil, ErrUserAlreadyExists
		}
	}

	passwordHash, err := utils.HashPassword(req.Password)
	if err != nil {
		return nil, fmt.Errorf("hash password: %w", err)
	}

	now := s.infra.Now()
	user := &models.User{UserName: req.UserName}
	profile := &models.UserProfile{
		UserInfo:     req.UserInfo,
		PasswordHash: passwordHash,
		UserState:    true,
		LastSeenAt:   now,
	}
	if err := s.users.CreateWithProfile(ctx, user, profile); err != nil {
		if errors.Is(err, repositories.ErrDuplicateUserName) {
			s.names.Add(req.UserName)
			s.infra.Metrics.RegistrationsRejected.Inc()
			return nil, ErrUserAlreadyExists
		}
		return nil, fmt.Errorf("create user: %w", err)
	}
	s.names.Add(user.UserName)

	token, err := s.issueToken(user.ID, profile.ID, user.UserName)
	if err != nil {
		return nil, err
	}

	s.infra.invalidateSnapshot(ctx)
	s.infra.publish(ctx, mq.Event{
		Type:     mq.EventUserRegistered,
		UserID:   user.ID,
		UserName: user.UserName,
		At:       now,
	})
	s.infra.Metrics.Registrations.Inc()

	return &AuthResult{
		UserID:   profile.ID,
		UserName: user.UserName,
		UserInfo: profile.UserInfo,
		Token:    token,
	}, nil
}

// Login 校验用户名和密码，成功后置为在线。任何失败都返回 ErrNotAuthenticated
func (s *AuthService) Login(ctx context.Context, req *LoginRequest) (*AuthResult, error) {
	user, err := s.users.GetByUserName(ctx, req.UserName)
	if err != nil {
		return nil, s.loginFailure(err)
	}
	profile, err := s.users.GetProfileByUserID(ctx, user.ID)
	if err != nil {
		return nil, s.loginFailure(err)
	}
	if !utils.CheckPassword(profile.PasswordHash, req.Password) {
		return nil, s.loginFailure(nil)
	}

	now := s.infra.Now()
	if _, err := s.users.SetState(ctx, profile.ID, true, now); err != nil {
		return nil, fmt.Errorf("set online: %w", err)
	}

	token, err := s.issueToken(user.ID, profile.ID, user.UserName)
	if err != nil {
		return nil, err
	}

	online := true
	s.infra.invalidateSnapshot(ctx)
	s.infra.publish(ctx, mq.Event{
		Type:     mq.EventPresenceChanged,
		UserID:   user.ID,
		UserName: user.UserName,
		Online:   &online,
		At:       now,
	})
	s.infra.Metrics.Logins.Inc()

	return &AuthResult{
		UserID:   profile.ID,
		UserName: user.UserName,
		UserInfo: profile.UserInfo,
		Token:    token,
	}, nil
}

// 数据库故障需要日志，但对调用方仍然是统一的登录失败
func (s *AuthService) loginFailure(err error) error {
	s.infra.Metrics.LoginFailures.Inc()
	if err != nil && !errors.Is(err, gorm.ErrRecordNotFound) {
		s.infra.Logger.Error("login lookup failed", zap.Error(err))
	}
	return ErrNotAuthenticated
}

func (s *AuthService) issueToken(userID, profileID uint, username string) (string, error) {
	if s.tokens == nil {
		return "", nil
	}
	token, err := s.tokens.GenerateToken(userID, profileID, username)
	if err != nil {
		return "", fmt.Errorf("generate token: %w", err)
	}
	return token, nil
}

// ParseSession 解析 Bearer token
func (s *AuthService) ParseSession(token string) (*Session, error) {
	if s.tokens == nil {
		return nil, jwt.ErrInvalidToken
	}
	claims, err := s.tokens.ParseToken(token)
	if err != nil {
		return nil, err
	}
	return &Session{UserID: claims.UserID, ProfileID: claims.ProfileID, UserName: claims.UserName}, nil
}

// RefreshSession 在刷新窗口内换发新 token
func (s *AuthService) RefreshSession(token string) (string, error) {
	if s.tokens == nil {
		return "", jwt.ErrInvalidToken
	}
	return s.tokens.RefreshToken(token)
}
