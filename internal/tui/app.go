package tui

import (
	"context"

	"github.com/charmbracelet/bubbles/key"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Gopher0727/MiniChat/internal/client"
)

// SessionFactory 登录成功后创建聊天会话
type SessionFactory func(me client.Identity) ChatSession

// rootModel 先显示登录/注册，成功后切换到聊天界面
type rootModel struct {
	ctx        context.Context
	newSession SessionFactory

	auth *authModel
	chat *chatModel

	session ChatSession
	width   int
	height  int
}

func newRootModel(ctx context.Context, auth Authenticator, newSession SessionFactory) rootModel {
	return rootModel{
		ctx:        ctx,
		newSession: newSession,
		auth:       newAuthModel(ctx, auth),
	}
}

func (r rootModel) Init() tea.Cmd {
	return r.auth.Init()
}

func (r rootModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if keyMsg, ok := msg.(tea.KeyMsg); ok && key.Matches(keyMsg, keys.quit) {
		return r, tea.Quit
	}

	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		r.width, r.height = msg.Width, msg.Height
	case authResultMsg:
		if msg.err == nil && r.chat == nil {
			r.session = r.newSession(msg.me)
			r.chat = newChatModel(r.ctx, r.session)
			if r.width > 0 {
				r.chat.resize(r.width, r.height)
			}
			return r, r.chat.Init()
		}
	}

	if r.chat != nil {
		_, cmd := r.chat.Update(msg)
		return r, cmd
	}
	_, cmd := r.auth.Update(msg)
	return r, cmd
}

func (r rootModel) View() string {
	if r.chat != nil {
		return r.chat.View()
	}
	return r.auth.View()
}
