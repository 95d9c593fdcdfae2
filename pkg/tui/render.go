package tui

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/glamour"

	"github.com/portfolia/console/pkg/chat"
)

const maxSourceLen = 40

// truncateSource shortens long source URLs for display. Document names are
// left alone.
func truncateSource(s string) string {
	if !strings.HasPrefix(s, "http") {
		return s
	}
	r := []rune(s)
	if len(r) <= maxSourceLen {
		return s
	}
	return string(r[:maxSourceLen]) + "..."
}

// newRenderer uses a fixed style so glamour does not query the terminal;
// those queries leak escape sequences into the input.
func newRenderer(width int) *glamour.TermRenderer {
	if width < 20 {
		width = 80
	}
	r, _ := glamour.NewTermRenderer(
		glamour.WithStandardStyle("light"),
		glamour.WithWordWrap(width),
	)
	return r
}

// renderTurns formats the turn log for the chat viewport.
func renderTurns(turns []chat.Turn, r *glamour.TermRenderer) string {
	var sb strings.Builder
	for _, t := range turns {
		if t.Role == chat.RoleUser {
			sb.WriteString(userStyle.Render("You: "))
			sb.WriteString("\n")
			sb.WriteString(messageStyle.Render(t.Content))
			sb.WriteString("\n\n")
			continue
		}

		sb.WriteString(senderStyle.Render("AI: "))
		sb.WriteString("\n")
		switch {
		case t.Failed:
			sb.WriteString(errorStyle.Render(t.Content))
			sb.WriteString("\n")
		case r != nil:
			rendered, err := r.Render(t.Content)
			if err != nil {
				rendered = messageStyle.Render(t.Content) + "\n"
			}
			sb.WriteString(rendered)
		default:
			sb.WriteString(messageStyle.Render(t.Content))
			sb.WriteString("\n")
		}

		if meta := turnMeta(t); meta != "" {
			sb.WriteString(meta)
			sb.WriteString("\n")
		}
		sb.WriteString("\n")
	}
	return sb.String()
}

// turnMeta is the tool tag and source list shown under a reply.
func turnMeta(t chat.Turn) string {
	var lines []string
	if t.Tool != "" {
		lines = append(lines, tagStyle.Render(fmt.Sprintf("[%s]", t.Tool)))
	}
	if len(t.Sources) > 0 {
		refs := make([]string, 0, len(t.Sources))
		for _, s := range t.Sources {
			refs = append(refs, truncateSource(s.Source))
		}
		lines = append(lines, mutedStyle.Render("Sources: "+strings.Join(refs, ", ")))
	}
	if len(lines) == 0 {
		return ""
	}
	return messageStyle.Render(strings.Join(lines, "\n"))
}
