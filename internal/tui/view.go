package tui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/comigor/medchat-go/internal/chat"
)

var (
	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("39")).
			MarginBottom(1)

	sidebarStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	chatStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(0, 1)

	sessionStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("250"))

	currentSessionStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("212"))

	userLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("86"))

	botLabelStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("213"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	statusStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	promptStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("62"))
	spinnerStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("205"))
)

// View renders the screen.
func (m Model) View() string {
	if m.quitting {
		return ""
	}

	side := sidebarStyle.
		Width(sidebarWidth).
		Height(m.chatHeight() + inputHeight).
		Render(m.renderSidebar())

	var main strings.Builder
	main.WriteString(m.viewport.View())
	main.WriteString("\n")
	if m.view.Error != "" {
		main.WriteString(errorStyle.Render("✗ "+m.view.Error) + statusStyle.Render("  (esc to dismiss)"))
	} else if m.voiceErr != "" {
		main.WriteString(errorStyle.Render("✗ " + m.voiceErr))
	}
	main.WriteString("\n")
	main.WriteString(m.input.View())

	body := chatStyle.Width(m.chatWidth()).Render(main.String())
	return lipgloss.JoinVertical(lipgloss.Left,
		lipgloss.JoinHorizontal(lipgloss.Top, side, body),
		m.renderStatus(),
	)
}

func (m Model) renderSidebar() string {
	var b strings.Builder
	b.WriteString(titleStyle.Render("Sessions"))
	b.WriteString("\n")

	if m.view.CurrentID == "" {
		b.WriteString(currentSessionStyle.Render("▸ New chat"))
	} else {
		b.WriteString(sessionStyle.Render("  New chat"))
	}
	b.WriteString("\n")

	for _, s := range m.view.Sessions {
		title := truncate(s.Title, sidebarWidth-4)
		if s.ID == m.view.CurrentID {
			b.WriteString(currentSessionStyle.Render("▸ " + title))
		} else {
			b.WriteString(sessionStyle.Render("  " + title))
		}
		b.WriteString("\n")
	}
	return b.String()
}

func (m Model) renderStatus() string {
	var parts []string
	if m.orch.Busy() || m.sending {
		parts = append(parts, m.spinner.View()+" thinking")
	}
	if m.recording {
		parts = append(parts, "● listening")
	}
	voiceOut := "off"
	if m.orch.VoiceOutput() {
		voiceOut = "on"
	}
	parts = append(parts,
		"voice "+voiceOut,
		"ctrl+n new",
		"ctrl+↑/↓ switch",
		"ctrl+r dictate",
		"ctrl+o speak",
	)
	return statusStyle.Render(strings.Join(parts, " · "))
}

func (m *Model) renderMessages() string {
	if len(m.view.Messages) == 0 {
		return statusStyle.Render("Ask me about your symptoms, medications or lab results.")
	}

	var b strings.Builder
	for i, msg := range m.view.Messages {
		if i > 0 {
			b.WriteString("\n")
		}
		switch msg.Sender {
		case chat.SenderUser:
			b.WriteString(userLabelStyle.Render("You"))
			b.WriteString("\n")
			b.WriteString(msg.Text)
			b.WriteString("\n")
		default:
			b.WriteString(botLabelStyle.Render("Assistant"))
			b.WriteString("\n")
			b.WriteString(m.renderMarkdown(msg))
		}
	}
	return b.String()
}

// renderMarkdown renders a bot message. Output is cached per message id, so
// only the message being revealed is rendered again on each update.
func (m *Model) renderMarkdown(msg chat.Message) string {
	if m.renderer == nil || msg.Text == "" {
		return msg.Text + "\n"
	}
	if c, ok := m.rendered[msg.ID]; ok && c.text == msg.Text {
		return c.out
	}
	out, err := m.renderer.Render(msg.Text)
	if err != nil {
		out = msg.Text + "\n"
	}
	m.rendered[msg.ID] = rendered{text: msg.Text, out: out}
	return out
}

type rendered struct {
	text string
	out  string
}

func truncate(s string, n int) string {
	r := []rune(s)
	if len(r) <= n {
		return s
	}
	if n <= 1 {
		return string(r[:n])
	}
	return string(r[:n-1]) + "…"
}
