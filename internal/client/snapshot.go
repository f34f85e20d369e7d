package client

import (
	"fmt"
	"time"
)

type User struct {
	ID     uint   `json:"id"`
	Name   string `json:"name"`
	Info   string `json:"info"`
	Online bool   `json:"online"`
}

type Message struct {
	ID       uint      `json:"id"`
	Text     string    `json:"text"`
	AuthorID uint      `json:"author_id"`
	Author   string    `json:"author"`
	Date     time.Time `json:"date"`
	// Own 由本地根据当前身份标记，不来自服务器
	Own bool `json:"-"`
}

type Snapshot struct {
	Users    []User    `json:"users"`
	Messages []Message `json:"messages"`
}

// LegacySnapshot GET / 的响应体
type LegacySnapshot struct {
	Names       []string `json:"names"`
	Infos       []string `json:"infos"`
	Messages    []string `json:"messages"`
	IDs         []uint   `json:"ids"`
	SenderUsers []string `json:"sender_users"`
	States      []bool   `json:"states"`
}

// FromLegacy 按位置拼接平行数组。长度不一致时返回 ErrMisaligned 而不是拼出错位的数据。
// 旧接口不返回消息 ID，消息只追加，所以用从 1 开始的位置作为 ID
func FromLegacy(l LegacySnapshot) (*Snapshot, error) {
	n := len(l.Names)
	if len(l.Infos) != n || len(l.IDs) != n || len(l.States) != n {
		return nil, fmt.Errorf("%w: names=%d infos=%d ids=%d states=%d",
			ErrMisaligned, n, len(l.Infos), len(l.IDs), len(l.States))
	}
	if len(l.Messages) != len(l.SenderUsers) {
		return nil, fmt.Errorf("%w: messages=%d sender_users=%d",
			ErrMisaligned, len(l.Messages), len(l.SenderUsers))
	}

	snap := &Snapshot{
		Users:    make([]User, 0, n),
		Messages: make([]Message, 0, len(l.Messages)),
	}
	byName := make(map[string]uint, n)
	for i := range n {
		snap.Users = append(snap.Users, User{
			ID:     l.IDs[i],
			Name:   l.Names[i],
			Info:   l.Infos[i],
			Online: l.States[i],
		})
		if _, dup := byName[l.Names[i]]; !dup {
			byName[l.Names[i]] = l.IDs[i]
		}
	}
	for i, text := range l.Messages {
		snap.Messages = append(snap.Messages, Message{
			ID:       uint(i + 1),
			Text:     text,
			Author:   l.SenderUsers[i],
			AuthorID: byName[l.SenderUsers[i]],
		})
	}
	return snap, nil
}
