package repositories

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"

	"github.com/Gopher0727/MiniChat/config"
	"github.com/Gopher0727/MiniChat/internal/models"
	"github.com/Gopher0727/MiniChat/internal/storage"
)

func setupTestDB(t *testing.T) *gorm.DB {
	t.Helper()
	db, err := storage.OpenDatabase(&config.DatabaseConfig{
		Driver: "sqlite",
		Path:   filepath.Join(t.TempDir(), "test.db"),
	}, logger.Silent)
	require.NoError(t, err)
	t.Cleanup(func() { _ = storage.Close(db) })
	return db
}

func register(t *testing.T, repo *UserRepository, name, info string) *models.User {
	t.Helper()
	user := &models.User{UserName: name}
	profile := &models.UserProfile{
		UserInfo:     info,
		PasswordHash: "hash",
		UserState:    true,
		LastSeenAt:   time.Now().UTC(),
	}
	require.NoError(t, repo.CreateWithProfile(context.Background(), user, profile))
	return user
}

func TestUserRepository_CreateWithProfile(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)
	ctx := context.Background()

	alice := register(t, repo, "alice", "bio")
	bob := register(t, repo, "bob", "")

	assert.NotZero(t, alice.ID)
	assert.Greater(t, bob.ID, alice.ID)

	profile, err := repo.GetProfileByUserID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, alice.ID, profile.ID)
	assert.Equal(t, "bio", profile.UserInfo)
	assert.True(t, profile.UserState)

	got, err := repo.GetByUserName(ctx, "bob")
	require.NoError(t, err)
	assert.Equal(t, bob.ID, got.ID)

	got, err = repo.GetByID(ctx, alice.ID)
	require.NoError(t, err)
	assert.Equal(t, "alice", got.UserName)
}

func TestUserRepository_DuplicateUserName(t *testing.T) {
	db := setupTestDB(t)
	repo := NewUserRepository(db)

	register(t, repo, "alice", "")

	err := repo.CreateWithProfile(context.Background(),
		&models.User{UserName: "alice"},
		&models.UserProfile{PasswordHash: "x", UserState: true})
	assert.ErrorIs(t, err, ErrDuplicateUserName)

	// 事务回滚，没有孤立的资料行
	var profiles int64
	require.NoError(t, db.Model(&models.UserProfile{}).Count(&profiles).Error)
	assert.Equal(t, int64(1), profiles)
}

func TestUserRepository_GetByUserNameNotFound(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))

	_, err := repo.GetByUserName(context.Background(), "nobody")
	assert.ErrorIs(t, err, gorm.ErrRecordNotFound)

	exists, err := repo.ExistsByUserName(context.Background(), "nobody")
	assert.NoError(t, err)
	assert.False(t, exists)
}

func TestUserRepository_SetState(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()
	alice := register(t, repo, "alice", "")

	n, err := repo.SetState(ctx, alice.ID, false, time.Now().UTC())
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	profile, err := repo.GetProfileByUserID(ctx, alice.ID)
	require.NoError(t, err)
	assert.False(t, profile.UserState)

	// 重复设置离线仍然成功
	_, err = repo.SetState(ctx, alice.ID, false, time.Now().UTC())
	assert.NoError(t, err)

	n, err = repo.SetState(ctx, 999, false, time.Now().UTC())
	assert.NoError(t, err)
	assert.Equal(t, int64(0), n)
}

func TestUserRepository_MarkStaleOffline(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	old := register(t, repo, "old", "")
	fresh := register(t, repo, "fresh", "")

	past := time.Now().UTC().Add(-time.Hour)
	require.NoError(t, repo.TouchLastSeen(ctx, old.ID, past))

	n, err := repo.MarkStaleOffline(ctx, time.Now().UTC().Add(-time.Minute))
	require.NoError(t, err)
	assert.Equal(t, int64(1), n)

	p, err := repo.GetProfileByUserID(ctx, old.ID)
	require.NoError(t, err)
	assert.False(t, p.UserState)

	p, err = repo.GetProfileByUserID(ctx, fresh.ID)
	require.NoError(t, err)
	assert.True(t, p.UserState)
}

func TestUserRepository_ListDirectory(t *testing.T) {
	repo := NewUserRepository(setupTestDB(t))
	ctx := context.Background()

	rows, err := repo.ListDirectory(ctx)
	require.NoError(t, err)
	assert.Empty(t, rows)

	alice := register(t, repo, "alice", "bio")
	bob := register(t, repo, "bob", "")
	_, err = repo.SetState(ctx, bob.ID, false, time.Now().UTC())
	require.NoError(t, err)

	rows, err = repo.ListDirectory(ctx)
	require.NoError(t, err)
	require.Len(t, rows, 2)
	assert.Equal(t, DirectoryRow{ID: alice.ID, UserName: "alice", UserInfo: "bio", UserState: true}, rows[0])
	assert.Equal(t, DirectoryRow{ID: bob.ID, UserName: "bob", UserInfo: "", UserState: false}, rows[1])

	names, err := repo.ListUserNames(ctx)
	require.NoError(t, err)
	assert.Equal(t, []string{"alice", "bob"}, names)
}

func TestMessageRepository_ListFeed(t *testing.T) {
	db := setupTestDB(t)
	users := NewUserRepository(db)
	messages := NewMessageRepository(db)
	ctx := context.Background()

	alice := register(t, users, "alice", "")
	bob := register(t, users, "bob", "")

	now := time.Now().UTC()
	for i, m := range []struct {
		text string
		id   uint
	}{{"hi", alice.ID}, {"hello", bob.ID}, {"", alice.ID}} {
		require.NoError(t, messages.Create(ctx, &models.UserMessage{
			Date:    now.Add(time.Duration(i) * time.Second),
			Message: m.text,
			UserID:  m.id,
		}))
	}

	feed, err := messages.ListFeed(ctx)
	require.NoError(t, err)
	require.Len(t, feed, 3)
	assert.Equal(t, "hi", feed[0].Message)
	assert.Equal(t, "alice", feed[0].AuthorName)
	assert.Equal(t, "hello", feed[1].Message)
	assert.Equal(t, "bob", feed[1].AuthorName)
	assert.Equal(t, bob.ID, feed[1].AuthorID)
	assert.Equal(t, "", feed[2].Message)
	assert.Less(t, feed[0].ID, feed[1].ID)

	total, err := messages.Count(ctx)
	require.NoError(t, err)
	assert.Equal(t, int64(3), total)
}

func TestMessageRepository_UnknownAuthorRejected(t *testing.T) {
	messages := NewMessageRepository(setupTestDB(t))

	// 外键约束拒绝不存在的作者
	err := messages.Create(context.Background(), &models.UserMessage{
		Date:    time.Now().UTC(),
		Message: "ghost",
		UserID:  42,
	})
	assert.Error(t, err)
}
