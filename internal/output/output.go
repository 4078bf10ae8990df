// Package output provides styled terminal output helpers (success, error,
// warning, item formatting) using lipgloss.
package output

import (
	"encoding/json"
	"fmt"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/marcus/shoplist/internal/models"
)

var (
	// Styles
	titleStyle   = lipgloss.NewStyle().Bold(true)
	subtleStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	successStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("42"))
	errorStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	warningStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
	checkedStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("242")).Strikethrough(true)
	dirtyStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("214"))
)

// Success prints a success message
func Success(format string, args ...interface{}) {
	fmt.Println(successStyle.Render(fmt.Sprintf(format, args...)))
}

// Error prints an error message
func Error(format string, args ...interface{}) {
	fmt.Println(errorStyle.Render("ERROR: " + fmt.Sprintf(format, args...)))
}

// Warning prints a warning message
func Warning(format string, args ...interface{}) {
	fmt.Println(warningStyle.Render("Warning: " + fmt.Sprintf(format, args...)))
}

// Info prints an info message
func Info(format string, args ...interface{}) {
	fmt.Println(fmt.Sprintf(format, args...))
}

// Title prints a bold section header
func Title(format string, args ...interface{}) {
	fmt.Println(titleStyle.Render(fmt.Sprintf(format, args...)))
}

// JSON outputs data as JSON
func JSON(v interface{}) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	fmt.Println(string(data))
	return nil
}

// FormatItem renders one shopping list item as a checklist line.
func FormatItem(it models.Item) string {
	box := "[ ]"
	name := it.Name
	if it.Checked {
		box = "[x]"
		name = checkedStyle.Render(name)
	}
	return fmt.Sprintf("%s %s %s", box, name, subtleStyle.Render(it.ID))
}

// FormatHousehold renders a household as a one-line summary.
func FormatHousehold(h models.Household) string {
	line := titleStyle.Render(h.Name) + " " + subtleStyle.Render(h.ID)
	if h.OwnerID != nil {
		line += subtleStyle.Render(" owner=" + *h.OwnerID)
	}
	return line
}

// FormatUser renders a user with their household memberships.
func FormatUser(u models.User) string {
	name := u.Email
	if u.Name != nil && *u.Name != "" {
		name = *u.Name + " <" + u.Email + ">"
	}
	line := name + " " + subtleStyle.Render(u.ID)
	if len(u.HouseholdIDs) > 0 {
		line += subtleStyle.Render(fmt.Sprintf(" households=%d", len(u.HouseholdIDs)))
	}
	return line
}

// FormatSyncTime renders an optional timestamp as a relative age.
func FormatSyncTime(ts *time.Time) string {
	if ts == nil {
		return subtleStyle.Render("never")
	}
	age := time.Since(*ts).Round(time.Second)
	if age < time.Minute {
		return fmt.Sprintf("%ds ago", int(age.Seconds()))
	}
	if age < time.Hour {
		return fmt.Sprintf("%dm ago", int(age.Minutes()))
	}
	return ts.Local().Format("2006-01-02 15:04")
}

// FormatPending renders a dirty-document count, highlighted when nonzero.
func FormatPending(n int64) string {
	if n == 0 {
		return subtleStyle.Render("0 pending")
	}
	return dirtyStyle.Render(fmt.Sprintf("%d pending", n))
}
