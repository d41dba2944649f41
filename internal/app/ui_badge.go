package app

import (
	"strings"

	"github.com/charmbracelet/lipgloss"

	"visor/internal/domain"
)

type badgeTone int

const (
	badgeToneNeutral badgeTone = iota
	badgeToneSuccess
	badgeToneWarning
	badgeToneDanger
)

func badgeStyle(tone badgeTone) lipgloss.Style {
	base := lipgloss.NewStyle().Bold(true).Padding(0, 1)
	switch tone {
	case badgeToneSuccess:
		return base.
			Foreground(lipgloss.AdaptiveColor{Light: "#0F5132", Dark: "#0D1117"}).
			Background(lipgloss.AdaptiveColor{Light: "#D1FADF", Dark: "#3FB950"})
	case badgeToneWarning:
		return base.
			Foreground(lipgloss.AdaptiveColor{Light: "#663C00", Dark: "#161B22"}).
			Background(lipgloss.AdaptiveColor{Light: "#F8D66D", Dark: "#D29922"})
	case badgeToneDanger:
		return base.
			Foreground(lipgloss.AdaptiveColor{Light: "#FFFFFF", Dark: "#FFFFFF"}).
			Background(lipgloss.AdaptiveColor{Light: "#CF222E", Dark: "#F85149"})
	default:
		return base.
			Foreground(mutedTextColor).
			Background(lipgloss.AdaptiveColor{Light: "#F6F8FA", Dark: "#161B22"})
	}
}

func renderBadge(label string, tone badgeTone) string {
	label = strings.TrimSpace(label)
	if label == "" {
		return ""
	}
	return badgeStyle(tone).Render(label)
}

// visibilityBadge renders public loudly and private quietly; going
// public is the change users regret.
func visibilityBadge(v domain.Visibility) string {
	if v.Public() {
		return renderBadge("PUBLIC", badgeToneWarning)
	}
	return renderBadge("PRIVATE", badgeToneNeutral)
}
