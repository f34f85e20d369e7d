package client

import (
	"slices"
	"strings"
	"sync"

	"github.com/puzpuzpuz/xsync/v3"
)

// Diff 两次快照之间的变化
type Diff struct {
	AddedMessages   []Message
	RemovedMessages []uint
	AddedUsers      []User
	UpdatedUsers    []User
	RemovedUsers    []uint
}

func (d Diff) Empty() bool {
	return len(d.AddedMessages) == 0 && len(d.RemovedMessages) == 0 &&
		len(d.AddedUsers) == 0 && len(d.UpdatedUsers) == 0 && len(d.RemovedUsers) == 0
}

// Cache 本地保存的最新快照。读操作无锁，Apply 之间互斥
type Cache struct {
	self string

	apply    sync.Mutex
	users    *xsync.MapOf[uint, User]
	messages *xsync.MapOf[uint, Message]
}

// NewCache self 为当前用户名，用于标记自己发出的消息
func NewCache(self string) *Cache {
	return &Cache{
		self:     self,
		users:    xsync.NewMapOf[uint, User](),
		messages: xsync.NewMapOf[uint, Message](),
	}
}

// Apply 用完整快照替换缓存内容，返回与上一次相比的差异
func (c *Cache) Apply(snap *Snapshot) Diff {
	c.apply.Lock()
	defer c.apply.Unlock()

	var diff Diff
	if snap == nil {
		return diff
	}

	seenUsers := make(map[uint]struct{}, len(snap.Users))
	for _, u := range snap.Users {
		seenUsers[u.ID] = struct{}{}
		prev, ok := c.users.Load(u.ID)
		switch {
		case !ok:
			diff.AddedUsers = append(diff.AddedUsers, u)
		case prev != u:
			diff.UpdatedUsers = append(diff.UpdatedUsers, u)
		default:
			continue
		}
		c.users.Store(u.ID, u)
	}
	c.users.Range(func(id uint, _ User) bool {
		if _, ok := seenUsers[id]; !ok {
			diff.RemovedUsers = append(diff.RemovedUsers, id)
		}
		return true
	})
	for _, id := range diff.RemovedUsers {
		c.users.Delete(id)
	}

	seenMessages := make(map[uint]struct{}, len(snap.Messages))
	for _, m := range snap.Messages {
		m.Own = c.self != "" && m.Author == c.self
		seenMessages[m.ID] = struct{}{}
		prev, ok := c.messages.Load(m.ID)
		if ok && prev == m {
			continue
		}
		if !ok {
			diff.AddedMessages = append(diff.AddedMessages, m)
		}
		c.messages.Store(m.ID, m)
	}
	c.messages.Range(func(id uint, _ Message) bool {
		if _, ok := seenMessages[id]; !ok {
			diff.RemovedMessages = append(diff.RemovedMessages, id)
		}
		return true
	})
	for _, id := range diff.RemovedMessages {
		c.messages.Delete(id)
	}

	slices.SortFunc(diff.AddedMessages, func(a, b Message) int { return cmpID(a.ID, b.ID) })
	slices.SortFunc(diff.AddedUsers, func(a, b User) int { return cmpID(a.ID, b.ID) })
	slices.SortFunc(diff.UpdatedUsers, func(a, b User) int { return cmpID(a.ID, b.ID) })
	slices.Sort(diff.RemovedUsers)
	slices.Sort(diff.RemovedMessages)
	return diff
}

func (c *Cache) Users() []User {
	out := make([]User, 0, c.users.Size())
	c.users.Range(func(_ uint, u User) bool {
		out = append(out, u)
		return true
	})
	slices.SortFunc(out, func(a, b User) int { return cmpID(a.ID, b.ID) })
	return out
}

func (c *Cache) Messages() []Message {
	out := make([]Message, 0, c.messages.Size())
	c.messages.Range(func(_ uint, m Message) bool {
		out = append(out, m)
		return true
	})
	slices.SortFunc(out, func(a, b Message) int { return cmpID(a.ID, b.ID) })
	return out
}

func (c *Cache) User(id uint) (User, bool) {
	return c.users.Load(id)
}

// Filter 按用户名做大小写不敏感的子串匹配，空串返回全部
func (c *Cache) Filter(q string) []User {
	return FilterUsers(c.Users(), q)
}

func FilterUsers(users []User, q string) []User {
	q = strings.ToLower(strings.TrimSpace(q))
	out := make([]User, 0, len(users))
	for _, u := range users {
		if q == "" || strings.Contains(strings.ToLower(u.Name), q) {
			out = append(out, u)
		}
	}
	return out
}

func cmpID(a, b uint) int {
	switch {
	case a < b:
		return -1
	case a > b:
		return 1
	}
	return 0
}
