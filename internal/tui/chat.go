package tui

import (
	"context"
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/Gopher0727/MiniChat/internal/client"
)

type ChatSession interface {
	Start(ctx context.Context) error
	Updates() <-chan client.Update
	Refresh(ctx context.Context) error
	Send(ctx context.Context, text string) error
	Name() string
	Users(filter string) []client.User
	Messages() []client.Message
}

const (
	usersPanelWidth = 28
	minChatWidth    = 40
)

type chatFocus int

const (
	focusCompose chatFocus = iota
	focusFilter
)

type chatModel struct {
	ctx     context.Context
	session ChatSession

	feed    viewport.Model
	compose textinput.Model
	filter  textinput.Model
	focus   chatFocus

	width, height int
	loading       bool
	sending       bool
	overlay       string
	status        string
}

func newChatModel(ctx context.Context, session ChatSession) *chatModel {
	compose := textinput.New()
	compose.Placeholder = "type a message"
	compose.CharLimit = 1000
	compose.Focus()

	filter := textinput.New()
	filter.Placeholder = "filter users"
	filter.CharLimit = 64
	filter.Width = usersPanelWidth - 4

	m := &chatModel{
		ctx:     ctx,
		session: session,
		feed:    viewport.New(80, 20),
		compose: compose,
		filter:  filter,
		loading: true,
	}
	m.resize(100, 30)
	return m
}

func (m *chatModel) Init() tea.Cmd {
	ctx, session := m.ctx, m.session
	return tea.Batch(textinput.Blink, func() tea.Msg {
		return sessionStartedMsg{err: session.Start(ctx)}
	})
}

func (m *chatModel) waitForUpdate() tea.Cmd {
	updates := m.session.Updates()
	return func() tea.Msg {
		u, ok := <-updates
		if !ok {
			return nil
		}
		return pollMsg{update: u}
	}
}

func (m *chatModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.resize(msg.Width, msg.Height)
		m.renderFeed(false)
		return m, nil

	case sessionStartedMsg:
		m.loading = false
		if msg.err != nil {
			m.overlay = humanizeError(msg.err)
		}
		m.renderFeed(true)
		return m, m.waitForUpdate()

	case pollMsg:
		if msg.update.Err != nil {
			m.status = humanizeError(msg.update.Err)
		} else {
			m.status = ""
			m.overlay = ""
		}
		// 只有消息变化才重绘消息区，在线状态变化只影响用户列表
		if d := msg.update.Diff; len(d.AddedMessages) > 0 || len(d.RemovedMessages) > 0 {
			m.renderFeed(false)
		}
		return m, m.waitForUpdate()

	case sentMsg:
		m.sending = false
		if msg.err != nil {
			m.status = "send failed: " + humanizeError(msg.err)
			return m, nil
		}
		m.status = ""
		m.renderFeed(true)
		return m, nil

	case tea.KeyMsg:
		if m.overlay != "" {
			if key.Matches(msg, keys.esc) || key.Matches(msg, keys.enter) {
				m.overlay = ""
			}
			return m, nil
		}

		switch {
		case key.Matches(msg, keys.tab), key.Matches(msg, keys.backtab):
			m.toggleFocus()
			return m, nil
		case key.Matches(msg, keys.refresh):
			ctx, session := m.ctx, m.session
			return m, func() tea.Msg {
				_ = session.Refresh(ctx)
				return nil
			}
		case key.Matches(msg, keys.up), key.Matches(msg, keys.down):
			var cmd tea.Cmd
			m.feed, cmd = m.feed.Update(msg)
			return m, cmd
		case key.Matches(msg, keys.esc) && m.focus == focusFilter:
			m.filter.SetValue("")
			return m, nil
		case key.Matches(msg, keys.enter) && m.focus == focusCompose:
			return m, m.send()
		}
	}

	var cmd tea.Cmd
	if m.focus == focusFilter {
		m.filter, cmd = m.filter.Update(msg)
	} else {
		m.compose, cmd = m.compose.Update(msg)
	}
	return m, cmd
}

func (m *chatModel) send() tea.Cmd {
	text := m.compose.Value()
	if m.sending || strings.TrimSpace(text) == "" {
		return nil
	}
	m.sending = true
	m.compose.SetValue("")

	ctx, session := m.ctx, m.session
	return func() tea.Msg {
		return sentMsg{err: session.Send(ctx, text)}
	}
}

func (m *chatModel) toggleFocus() {
	if m.focus == focusCompose {
		m.focus = focusFilter
		m.compose.Blur()
		m.filter.Focus()
		return
	}
	m.focus = focusCompose
	m.filter.Blur()
	m.compose.Focus()
}

func (m *chatModel) resize(width, height int) {
	m.width, m.height = width, height

	feedWidth := max(width-usersPanelWidth-8, minChatWidth)
	feedHeight := max(height-10, 5)
	m.feed.Width = feedWidth
	m.feed.Height = feedHeight
	m.compose.Width = feedWidth - 4
}

// renderFeed 重绘消息区。用户向上翻阅时保持位置，follow 为 true 或原本停在底部时滚到底部
func (m *chatModel) renderFeed(follow bool) {
	atBottom := m.feed.AtBottom()
	messages := m.session.Messages()
	lines := make([]string, 0, len(messages))
	for _, msg := range messages {
		lines = append(lines, renderMessage(msg, m.feed.Width))
	}
	if len(lines) == 0 {
		lines = append(lines, helpStyle.Render("no messages yet"))
	}
	m.feed.SetContent(strings.Join(lines, "\n"))
	if follow || atBottom {
		m.feed.GotoBottom()
	}
}

// renderMessage 自己的消息靠右显示
func renderMessage(msg client.Message, width int) string {
	if msg.Own {
		return lipgloss.NewStyle().Width(width).Align(lipgloss.Right).
			Render(ownStyle.Render(msg.Text))
	}
	return authorStyle.Render(msg.Author+":") + " " + msg.Text
}

func renderUsers(users []client.User, width int) string {
	var b strings.Builder
	for _, u := range users {
		marker := offlineStyle.Render("○")
		name := offlineStyle.Render(fitText(u.Name, width-4))
		if u.Online {
			marker = onlineStyle.Render("●")
			name = fitText(u.Name, width-4)
		}
		fmt.Fprintf(&b, "%s %s\n", marker, name)
	}
	if len(users) == 0 {
		b.WriteString(helpStyle.Render("no users"))
	}
	return strings.TrimRight(b.String(), "\n")
}

func (m *chatModel) View() string {
	if m.overlay != "" {
		return lipgloss.Place(m.width, m.height, lipgloss.Center, lipgloss.Center, renderOverlay(m.overlay))
	}

	users := m.session.Users(m.filter.Value())
	side := panelStyle.Width(usersPanelWidth).Render(
		titleStyle.Render(fmt.Sprintf("Users (%d)", len(users))) + "\n" +
			m.filter.View() + "\n\n" +
			renderUsers(users, usersPanelWidth))
	main := panelStyle.Render(m.feed.View())
	body := lipgloss.JoinHorizontal(lipgloss.Top, main, side)

	var b strings.Builder
	b.WriteString(body)
	b.WriteString("\n")
	b.WriteString(m.compose.View())
	switch {
	case m.loading:
		b.WriteString("\n" + helpStyle.Render("loading..."))
	case m.sending:
		b.WriteString("\n" + helpStyle.Render("sending..."))
	case m.status != "":
		b.WriteString("\n" + errorStyle.Render(m.status))
	}

	title := "MINICHAT · " + m.session.Name()
	return renderPage(title, b.String(), "enter: send │ tab: compose/filter │ pgup/pgdown: scroll │ ctrl+l: refresh")
}
