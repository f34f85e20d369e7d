package services

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.uber.org/zap"
	"gorm.io/gorm"

	"github.com/Gopher0727/MiniChat/internal/models"
	"github.com/Gopher0727/MiniChat/internal/pkg/redis"
	"github.com/Gopher0727/MiniChat/internal/repositories"
	"github.com/Gopher0727/MiniChat/pkg/mq"
)

// ChatService 快照读取与消息发送
type ChatService struct {
	users    *repositories.UserRepository
	messages *repositories.MessageRepository
	infra    *Infra
}

func NewChatService(users *repositories.UserRepository, messages *repositories.MessageRepository, infra *Infra) *ChatService {
	return &ChatService{
		users:    users,
		messages: messages,
		infra:    infra.withDefaults(),
	}
}

// DirectoryEntry 用户目录中的一个用户
type DirectoryEntry struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Info   string `json:"info"`
	Online bool   `json:"online"`
}

// FeedEntry 一条消息及其作者
type FeedEntry struct {
	ID       uint      `json:"id"`
	Text     string    `json:"text"`
	AuthorID uint      `json:"author_id"`
	Author   string    `json:"author"`
	Date     time.Time `json:"date"`
}

// Snapshot 某一时刻的全部用户和消息，均按 ID 升序
type Snapshot struct {
	Users    []DirectoryEntry `json:"users"`
	Messages []FeedEntry      `json:"messages"`
}

// LegacySnapshot GET / 的响应体，按位置对齐的平行数组
type LegacySnapshot struct {
	Names       []string `json:"names"`
	Infos       []string `json:"infos"`
	Messages    []string `json:"messages"`
	IDs         []uint   `json:"ids"`
	SenderUsers []string `json:"sender_users"`
	States      []bool   `json:"states"`
}

// Legacy 转换为平行数组。用户相关的四个数组长度相同，消息相关的两个数组长度相同
func (s *Snapshot) Legacy() LegacySnapshot {
	out := LegacySnapshot{
		Names:       make([]string, 0, len(s.Users)),
		Infos:       make([]string, 0, len(s.Users)),
		IDs:         make([]uint, 0, len(s.Users)),
		States:      make([]bool, 0, len(s.Users)),
		Messages:    make([]string, 0, len(s.Messages)),
		SenderUsers: make([]string, 0, len(s.Messages)),
	}
	for _, u := range s.Users {
		out.Names = append(out.Names, u.Name)
		out.Infos = append(out.Infos, u.Info)
		out.IDs = append(out.IDs, u.ID)
		out.States = append(out.States, u.Online)
	}
	for _, m := range s.Messages {
		out.Messages = append(out.Messages, m.Text)
		out.SenderUsers = append(out.SenderUsers, m.Author)
	}
	return out
}

// SendMessageRequest 作者可以用用户名或数字 ID 指定，两者都有时以 ID 为准
type SendMessageRequest struct {
	Text     string
	UserName string
	AuthorID uint
	// Session 非空时作者固定为会话用户，忽略上面两个字段
	Session *Session
}

// Snapshot 读取当前快照，启用 Redis 时优先读缓存
func (s *ChatService) Snapshot(ctx context.Context) (*Snapshot, error) {
	var gen int64
	cached := s.infra.Cache != nil
	if cached {
		var err error
		gen, err = s.infra.Cache.SnapshotGeneration(ctx)
		if err != nil {
			s.infra.Logger.Warn("snapshot cache unavailable", zap.Error(err))
			cached = false
		}
	}

	if cached {
		var snap Snapshot
		hit, err := s.infra.Cache.GetJSON(ctx, redis.SnapshotKey(gen), &snap)
		if err != nil {
			s.infra.Logger.Warn("snapshot cache read failed", zap.Error(err))
		}
		if hit {
			s.infra.Metrics.SnapshotCacheHits.Inc()
			return &snap, nil
		}
		s.infra.Metrics.SnapshotCacheMisses.Inc()
	}

	snap, err := s.load(ctx)
	if err != nil {
		return nil, err
	}

	if cached {
		if err := s.infra.Cache.SetJSON(ctx, redis.SnapshotKey(gen), snap, 0); err != nil {
			s.infra.Logger.Warn("snapshot cache write failed", zap.Error(err))
		}
	}
	return snap, nil
}

func (s *ChatService) load(ctx context.Context) (*Snapshot, error) {
	dir, err := s.users.ListDirectory(ctx)
	if err != nil {
		return nil, fmt.Errorf("list users: %w", err)
	}
	feed, err := s.messages.ListFeed(ctx)
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}

	snap := &Snapshot{
		Users:    make([]DirectoryEntry, 0, len(dir)),
		Messages: make([]FeedEntry, 0, len(feed)),
	}
	for _, row := range dir {
		snap.Users = append(snap.Users, DirectoryEntry{
			ID:     row.ID,
			Name:   row.UserName,
			Info:   row.UserInfo,
			Online: row.UserState,
		})
	}
	for _, row := range feed {
		snap.Messages = append(snap.Messages, FeedEntry{
			ID:       row.ID,
			Text:     row.Message,
			AuthorID: row.AuthorID,
			Author:   row.AuthorName,
			Date:     row.Date,
		})
	}
	return snap, nil
}

// SendMessage 追加一条消息，时间由服务端决定
func (s *ChatService) SendMessage(ctx context.Context, req *SendMessageRequest) (*FeedEntry, error) {
	author, err := s.resolveAuthor(ctx, req)
	if err != nil {
		return nil, err
	}

	now := s.infra.Now()
	msg := &models.UserMessage{
		Date:    now,
		Message: req.Text,
		UserID:  author.ID,
	}
	if err := s.messages.Create(ctx, msg); err != nil {
		return nil, fmt.Errorf("create message: %w", err)
	}

	// 资料 ID 与用户 ID 相同
	if err := s.users.TouchLastSeen(ctx, author.ID, now); err != nil {
		s.infra.Logger.Warn("touch last seen failed", zap.Uint("user_id", author.ID), zap.Error(err))
	}

	s.infra.invalidateSnapshot(ctx)
	s.infra.publish(ctx, mq.Event{
		Type:      mq.EventMessagePosted,
		UserID:    author.ID,
		UserName:  author.UserName,
		MessageID: msg.ID,
		Text:      msg.Message,
		At:        now,
	})
	s.infra.Metrics.MessagesPosted.Inc()

	return &FeedEntry{
		ID:       msg.ID,
		Text:     msg.Message,
		AuthorID: author.ID,
		Author:   author.UserName,
		Date:     now,
	}, nil
}

func (s *ChatService) resolveAuthor(ctx context.Context, req *SendMessageRequest) (*models.User, error) {
	var (
		user *models.User
		err  error
	)
	switch {
	case req.Session != nil:
		user, err = s.users.GetByID(ctx, req.Session.UserID)
	case req.AuthorID != 0:
		user, err = s.users.GetByID(ctx, req.AuthorID)
	default:
		user, err = s.users.GetByUserName(ctx, req.UserName)
	}
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrUnknownAuthor
	}
	if err != nil {
		return nil, fmt.Errorf("resolve author: %w", err)
	}
	return user, nil
}
