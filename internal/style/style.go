// Package style renders CLI output for render runs with Lipgloss.
package style

import (
	"fmt"
	"os"

	"github.com/charmbracelet/lipgloss"
)

var (
	colorPass = lipgloss.AdaptiveColor{Light: "#86b300", Dark: "#c2d94c"}
	colorWarn = lipgloss.AdaptiveColor{Light: "#f2ae49", Dark: "#ffb454"}
	colorFail = lipgloss.AdaptiveColor{Light: "#f07171", Dark: "#f07178"}
	colorDim  = lipgloss.AdaptiveColor{Light: "#828c99", Dark: "#6c7680"}
)

const (
	IconPass = "✓"
	IconWarn = "⚠"
	IconFail = "✖"
)

var (
	Success = lipgloss.NewStyle().Foreground(colorPass).Bold(true)
	Warning = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
	Error   = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
	Dim     = lipgloss.NewStyle().Foreground(colorDim)
	Bold    = lipgloss.NewStyle().Bold(true)
)

// SetColorMode applies the --color flag: always, auto or never.
func SetColorMode(mode string) error {
	switch mode {
	case "auto":
	case "never":
		_ = os.Setenv("NO_COLOR", "1")
		Success, Warning, Error, Dim, Bold = plain(), plain(), plain(), plain(), plain()
	case "always":
		_ = os.Unsetenv("NO_COLOR")
		_ = os.Setenv("CLICOLOR_FORCE", "1")
		Success = lipgloss.NewStyle().Foreground(colorPass).Bold(true)
		Warning = lipgloss.NewStyle().Foreground(colorWarn).Bold(true)
		Error = lipgloss.NewStyle().Foreground(colorFail).Bold(true)
		Dim = lipgloss.NewStyle().Foreground(colorDim)
		Bold = lipgloss.NewStyle().Bold(true)
	default:
		return fmt.Errorf("invalid --color value %q: must be always, auto, or never", mode)
	}
	return nil
}

func plain() lipgloss.Style { return lipgloss.NewStyle() }

// Pass renders an OK line.
func Pass(format string, args ...any) string {
	return Success.Render(IconPass) + " " + fmt.Sprintf(format, args...)
}

// Fail renders a failure line.
func Fail(format string, args ...any) string {
	return Error.Render(IconFail) + " " + fmt.Sprintf(format, args...)
}

// Warn renders a warning line.
func Warn(format string, args ...any) string {
	return Warning.Render(IconWarn) + " " + fmt.Sprintf(format, args...)
}
