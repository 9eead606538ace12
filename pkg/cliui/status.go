package cliui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/papercomputeco/memorypalace/pkg/memory"
)

var badgeBase = lipgloss.NewStyle().Padding(0, 1).Bold(true)

var statusColors = map[memory.Status]lipgloss.Color{
	memory.StatusUploaded:       lipgloss.Color("245"),
	memory.StatusFacesDetected:  lipgloss.Color("33"),
	memory.StatusStoryGenerated: lipgloss.Color("214"),
	memory.StatusComplete:       lipgloss.Color("82"),
}

// StatusBadge renders a memory status as a colored label.
func StatusBadge(status memory.Status) string {
	color, ok := statusColors[status]
	if !ok {
		color = lipgloss.Color("245")
	}
	return badgeBase.Foreground(color).Render(string(status))
}

// Progress renders the pipeline position as one mark per reached status
// followed by dots for the remaining ones.
func Progress(status memory.Status) string {
	const total = 4
	filled := status.Rank() + 1

	out := ""
	for i := range total {
		if i < filled {
			out += SuccessMark
		} else {
			out += StepStyle.Render("·")
		}
	}
	return out
}
