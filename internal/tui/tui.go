package tui

import (
	"context"
	"errors"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"go.uber.org/zap"

	"github.com/Gopher0727/MiniChat/internal/client"
)

type TUI struct {
	api      *client.API
	interval time.Duration
	logger   *zap.Logger
}

func New(api *client.API, interval time.Duration, logger *zap.Logger) *TUI {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &TUI{api: api, interval: interval, logger: logger}
}

// Run 运行交互界面直到用户退出。退出时停止轮询并通知服务器下线
func (t *TUI) Run(ctx context.Context) error {
	var session *client.Session
	factory := func(me client.Identity) ChatSession {
		session = client.NewSession(t.api, me, t.interval, t.logger)
		return session
	}

	root := newRootModel(ctx, t.api, factory)
	_, err := tea.NewProgram(root, tea.WithAltScreen(), tea.WithContext(ctx)).Run()

	if session != nil {
		session.Leave()
	}
	if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
		return nil
	}
	return err
}
