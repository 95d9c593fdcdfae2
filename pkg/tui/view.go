package tui

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/portfolia/console/pkg/admin"
)

func (m Model) View() string {
	switch m.state {
	case stateLogin:
		return m.loginView()
	case stateAdmin:
		return m.adminView()
	case stateConfirmReset:
		return m.confirmResetView()
	default:
		return m.homeView()
	}
}

func (m Model) footer() string {
	var parts []string
	if m.err != nil {
		parts = append(parts, errorStyle.Width(m.width).Render("Error: "+m.err.Error()))
	} else if m.status != "" {
		parts = append(parts, statusStyle.Render(m.status))
	}
	if m.busy() {
		parts = append(parts, m.spinner.View()+" "+mutedStyle.Render(m.busyLabel()))
	}
	return strings.Join(parts, "\n")
}

func (m Model) busyLabel() string {
	switch {
	case m.loggingIn:
		return "Logging in..."
	case m.uploading:
		return "Uploading..."
	case m.resetting:
		return "Resetting..."
	default:
		return "Thinking..."
	}
}

func (m Model) header(title string) string {
	access := "guest"
	if m.auth.IsAdmin() {
		access = "admin"
	}
	info := mutedStyle.Render(fmt.Sprintf(" %s · %s", m.baseURL, access))
	return lipgloss.JoinHorizontal(lipgloss.Top, titleStyle.Render(title), info)
}

func (m Model) profileView() string {
	if m.profile == nil {
		return ""
	}
	lines := []string{
		senderStyle.Render(m.profile.Name) + " " + mutedStyle.Render(m.profile.Role),
	}
	if len(m.profile.Projects) > 0 {
		var projects []string
		for i, p := range m.profile.Projects {
			cursor := " "
			title := p.Title
			if m.focus == focusProjects && i == m.projectCursor {
				cursor = ">"
				title = selectedItemStyle.Render(title)
			}
			projects = append(projects, fmt.Sprintf("%s %s", cursorStyle.Render(cursor), title))
		}
		lines = append(lines, strings.Join(projects, "  "))
		if m.focus == focusProjects {
			p := m.profile.Projects[m.projectCursor]
			lines = append(lines, mutedStyle.Render(p.Description))
		}
	}
	return strings.Join(lines, "\n")
}

func (m Model) homeView() string {
	title := "Portfolia"
	if m.profile != nil {
		title = "Portfolia · " + m.profile.Name
	}

	help := "Enter send · Tab projects · Ctrl+L login · Esc quit"
	if m.auth.IsAdmin() {
		help = "Enter send · Tab projects · Ctrl+A admin · Ctrl+O logout · Esc quit"
	}
	if m.focus == focusProjects {
		help = "↑/↓ choose · Enter ask about project · Tab back to chat"
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.header(title),
		m.profileView(),
		"",
		m.viewport.View(),
		m.footer(),
		m.textarea.View(),
		mutedStyle.Render(help),
	)
}

func (m Model) loginView() string {
	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.header("Admin Login"),
		"",
		m.username.View(),
		m.password.View(),
		"",
		m.footer(),
		mutedStyle.Render("Tab switch field · Enter submit · Esc back"),
	)
}

func (m Model) adminView() string {
	tabs := []string{"Upload", "System"}
	var rendered []string
	for i, t := range tabs {
		if adminTab(i) == m.tab {
			rendered = append(rendered, activeTabStyle.Render(t))
		} else {
			rendered = append(rendered, inactiveTabStyle.Render(t))
		}
	}

	var body, help string
	if m.tab == tabUpload {
		body = lipgloss.JoinVertical(
			lipgloss.Left,
			mutedStyle.Render(fmt.Sprintf("Select a document (%s) in %s", strings.Join(admin.AllowedExtensions, " "), m.filepicker.CurrentDirectory)),
			m.filepicker.View(),
		)
		help = "↑/↓ move · Enter select · Tab system · Ctrl+O logout · Esc back"
	} else {
		body = m.systemView()
		help = "s stats · r reset knowledge base · Tab upload · Ctrl+O logout · Esc back"
	}

	return lipgloss.JoinVertical(
		lipgloss.Left,
		m.header("Admin Panel"),
		lipgloss.JoinHorizontal(lipgloss.Top, rendered...),
		"",
		body,
		"",
		m.footer(),
		mutedStyle.Render(help),
	)
}

func (m Model) systemView() string {
	lines := []string{senderStyle.Render("Knowledge base")}
	if m.stats == nil {
		lines = append(lines, mutedStyle.Render("Press s to load document statistics."))
	} else {
		keys := make([]string, 0, len(m.stats))
		for k := range m.stats {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			lines = append(lines, fmt.Sprintf("  %s: %v", k, m.stats[k]))
		}
	}
	lines = append(lines, "", errorStyle.Render("Danger zone"),
		"Reset deletes every ingested document. This cannot be undone.")
	return strings.Join(lines, "\n")
}

func (m Model) confirmResetView() string {
	modal := modalStyle.Render(lipgloss.JoinVertical(
		lipgloss.Left,
		errorStyle.Render("Reset knowledge base?"),
		"",
		"This will permanently delete all documents from the knowledge base.",
		"",
		"Confirm (y/n)",
	))
	return lipgloss.JoinVertical(lipgloss.Left, m.header("Admin Panel"), "", modal)
}
