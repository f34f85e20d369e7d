package tui

import (
	"errors"
	"strings"

	"github.com/Gopher0727/MiniChat/internal/client"
)

const uiDivider = "──────────────────────────────────────────────────────"

func renderPage(title, data, hotKeys string) string {
	var b strings.Builder

	b.WriteString(titleStyle.Render(title))
	b.WriteString("\n")
	b.WriteString(uiDivider)
	b.WriteString("\n\n")

	if strings.TrimSpace(data) != "" {
		b.WriteString(data)
		b.WriteString("\n")
	}

	b.WriteString("\n")
	b.WriteString(uiDivider)
	b.WriteString("\n")
	if strings.TrimSpace(hotKeys) != "" {
		b.WriteString(helpStyle.Render(hotKeys))
		b.WriteString("\n")
	}
	b.WriteString(helpStyle.Render("ctrl+c: quit"))

	return appStyle.Render(b.String())
}

func renderOverlay(message string) string {
	return overlayBoxStyle.Render("Error\n\n" + message + "\n\nesc: close")
}

func humanizeError(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, client.ErrUnreachable):
		return "server is unreachable, retrying in background"
	case errors.Is(err, client.ErrRejected):
		return "request rejected"
	case errors.Is(err, client.ErrUnauthorized):
		return "session expired, please log in again"
	case errors.Is(err, client.ErrForbidden):
		return "not allowed"
	case errors.Is(err, client.ErrRateLimited):
		return "too many requests, slow down"
	}
	return err.Error()
}

func fitText(v string, max int) string {
	r := []rune(v)
	if max <= 0 || len(r) <= max {
		return v
	}
	if max <= 3 {
		return string(r[:max])
	}
	return string(r[:max-3]) + "..."
}
