package ui

import (
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/mattn/go-runewidth"
	"github.com/muesli/reflow/wordwrap"

	"github.com/dgnsrekt/habla/internal/ttypes"
)

// bubbleView holds what is needed to draw one message.
type bubbleView struct {
	msg      ttypes.Message
	revealed bool
	selected bool
	playing  bool
}

// renderBubble draws a message. User bubbles are right-aligned within
// width.
func renderBubble(b bubbleView, maxWidth, width int) string {
	inner := maxWidth - 4
	if inner < 10 {
		inner = 10
	}

	var lines []string
	if b.msg.Correction != "" {
		lines = append(lines, correctionStyle.Render(wordwrap.String("✎ "+b.msg.Correction, inner)))
	}
	text := b.msg.Text
	if b.playing {
		text = "♪ " + text
	}
	lines = append(lines, wordwrap.String(text, inner))
	if b.revealed && b.msg.Translation != "" {
		lines = append(lines, translationStyle.Render(wordwrap.String(b.msg.Translation, inner)))
	}
	body := strings.Join(lines, "\n")

	style := tutorBubbleStyle
	if b.msg.Role == ttypes.RoleUser {
		style = userBubbleStyle
	}
	switch {
	case b.selected:
		style = style.BorderForeground(selectedBorder)
	case b.playing:
		style = style.BorderForeground(playingBorder)
	}
	rendered := style.Render(body)

	if b.msg.Role == ttypes.RoleUser && width > 0 {
		return lipgloss.PlaceHorizontal(width, lipgloss.Right, rendered)
	}
	return rendered
}

// truncate shortens s to width cells.
func truncate(s string, width int) string {
	if width <= 0 || runewidth.StringWidth(s) <= width {
		return s
	}
	return runewidth.Truncate(s, width, ellipsis)
}

const ellipsis = "…"
