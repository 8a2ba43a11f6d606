package inspection

import (
	"fmt"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
)

var (
	titleStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#FAFAFA")).Padding(0, 1)
	labelStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("#61AFEF"))
	dimStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("#888888"))
	boxStyle   = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("#874BFD")).
			Padding(0, 1)
)

// RenderRecord renders a terminal-friendly summary of a record.
func RenderRecord(r *Record) string {
	rows := [][2]string{
		{"Inspection", r.InspectionID},
		{"Record", r.ID},
		{"Tag", r.TagID},
		{"Description", r.Description},
		{"Type", r.InspectionType},
		{"Installation", r.InstallationCode},
		{"Robot", r.RobotName},
		{"ISAR", r.ISARID},
		{"Raw data", r.RawDataPath},
		{"Visualized", r.VisualizedDataPath},
		{"Inspected at", formatTime(r.InspectedAt)},
		{"Recorded at", formatTime(r.CreatedAt)},
	}

	width := 0
	for _, row := range rows {
		width = max(width, len(row[0]))
	}

	var body strings.Builder
	for i, row := range rows {
		value := row[1]
		if value == "" {
			value = dimStyle.Render("-")
		}
		fmt.Fprintf(&body, "%s  %s", labelStyle.Render(fmt.Sprintf("%-*s", width, row[0])), value)
		if i < len(rows)-1 {
			body.WriteString("\n")
		}
	}

	return titleStyle.Render("Inspection Record") + "\n" + boxStyle.Render(body.String()) + "\n"
}

func formatTime(t time.Time) string {
	if t.IsZero() {
		return ""
	}
	return t.UTC().Format(time.RFC3339)
}
