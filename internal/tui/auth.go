package tui

import (
	"context"
	"errors"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/Gopher0727/MiniChat/internal/client"
)

type Authenticator interface {
	Login(ctx context.Context, name, password string) (client.Identity, error)
	Register(ctx context.Context, name, info, password string) (client.Identity, error)
}

type authMode int

const (
	modeLogin authMode = iota
	modeRegister
)

const (
	fieldName = iota
	fieldPassword
	fieldConfirm
	fieldInfo
)

// authModel 登录/注册表单。注册需要重复输入密码
type authModel struct {
	ctx  context.Context
	auth Authenticator

	mode       authMode
	inputs     []textinput.Model
	focus      int
	submitting bool
	errMsg     string
}

func newAuthModel(ctx context.Context, auth Authenticator) *authModel {
	name := textinput.New()
	name.Placeholder = "username"
	name.CharLimit = 64
	name.Width = 40
	name.Focus()

	password := textinput.New()
	password.Placeholder = "password"
	password.CharLimit = 256
	password.Width = 40
	password.EchoMode = textinput.EchoPassword
	password.EchoCharacter = '*'

	confirm := password
	confirm.Placeholder = "repeat password"

	info := textinput.New()
	info.Placeholder = "about you"
	info.CharLimit = 256
	info.Width = 40

	return &authModel{
		ctx:    ctx,
		auth:   auth,
		inputs: []textinput.Model{name, password, confirm, info},
	}
}

func (m *authModel) Init() tea.Cmd {
	return textinput.Blink
}

// visible 当前模式下可用的字段
func (m *authModel) visible() []int {
	if m.mode == modeRegister {
		return []int{fieldName, fieldPassword, fieldConfirm, fieldInfo}
	}
	return []int{fieldName, fieldPassword}
}

func (m *authModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if result, ok := msg.(authResultMsg); ok {
		m.submitting = false
		if result.err != nil {
			m.errMsg = authErrorMessage(m.mode, result.err)
		}
		return m, nil
	}

	if keyMsg, ok := msg.(tea.KeyMsg); ok {
		switch {
		case key.Matches(keyMsg, keys.mode):
			m.toggleMode()
			return m, nil
		case key.Matches(keyMsg, keys.tab), keyMsg.String() == "down":
			m.moveFocus(1)
			return m, nil
		case key.Matches(keyMsg, keys.backtab), keyMsg.String() == "up":
			m.moveFocus(-1)
			return m, nil
		case key.Matches(keyMsg, keys.enter):
			return m, m.submit()
		}
	}

	var cmd tea.Cmd
	m.inputs[m.focus], cmd = m.inputs[m.focus].Update(msg)
	return m, cmd
}

func (m *authModel) submit() tea.Cmd {
	if m.submitting {
		return nil
	}

	name := strings.TrimSpace(m.inputs[fieldName].Value())
	password := m.inputs[fieldPassword].Value()

	var err error
	if m.mode == modeRegister {
		err = client.RegisterForm{
			Name:     name,
			Info:     strings.TrimSpace(m.inputs[fieldInfo].Value()),
			Password: password,
			Confirm:  m.inputs[fieldConfirm].Value(),
		}.Validate()
	} else {
		err = client.LoginForm{Name: name, Password: password}.Validate()
	}
	if err != nil {
		m.errMsg = err.Error()
		return nil
	}

	m.errMsg = ""
	m.submitting = true
	ctx, auth, mode := m.ctx, m.auth, m.mode
	info := strings.TrimSpace(m.inputs[fieldInfo].Value())
	return func() tea.Msg {
		var (
			me  client.Identity
			err error
		)
		if mode == modeRegister {
			me, err = auth.Register(ctx, name, info, password)
		} else {
			me, err = auth.Login(ctx, name, password)
		}
		return authResultMsg{me: me, err: err}
	}
}

func (m *authModel) toggleMode() {
	if m.mode == modeLogin {
		m.mode = modeRegister
	} else {
		m.mode = modeLogin
	}
	m.errMsg = ""
	m.inputs[m.focus].Blur()
	m.focus = fieldName
	m.inputs[m.focus].Focus()
}

func (m *authModel) moveFocus(delta int) {
	fields := m.visible()
	pos := 0
	for i, f := range fields {
		if f == m.focus {
			pos = i
		}
	}
	pos = (pos + delta + len(fields)) % len(fields)

	m.inputs[m.focus].Blur()
	m.focus = fields[pos]
	m.inputs[m.focus].Focus()
}

func (m *authModel) View() string {
	labels := map[int]string{
		fieldName:     "Username",
		fieldPassword: "Password",
		fieldConfirm:  "Confirm ",
		fieldInfo:     "About   ",
	}

	var b strings.Builder
	for _, f := range m.visible() {
		b.WriteString(labels[f])
		b.WriteString(" │ ")
		b.WriteString(m.inputs[f].View())
		b.WriteString("\n")
	}

	action := "Log in"
	title := "LOG IN"
	if m.mode == modeRegister {
		action = "Register"
		title = "REGISTER"
	}
	if m.submitting {
		action += "..."
	}
	b.WriteString("\n[" + action + "]\n")

	if m.errMsg != "" {
		b.WriteString("\n")
		b.WriteString(errorStyle.Render(m.errMsg))
		b.WriteString("\n")
	}

	return renderPage(title, strings.TrimRight(b.String(), "\n"),
		"tab: next field │ enter: submit │ ctrl+r: switch login/register")
}

func authErrorMessage(mode authMode, err error) string {
	if !errors.Is(err, client.ErrRejected) {
		return humanizeError(err)
	}
	if mode == modeRegister {
		return "username is already taken"
	}
	return "wrong username or password"
}
