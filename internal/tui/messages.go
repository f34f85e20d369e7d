package tui

import "github.com/Gopher0727/MiniChat/internal/client"

type authResultMsg struct {
	me  client.Identity
	err error
}

// sessionStartedMsg 首次加载的结果，失败时聊天界面仍然打开并显示错误
type sessionStartedMsg struct {
	err error
}

type pollMsg struct {
	update client.Update
}

type sentMsg struct {
	err error
}
