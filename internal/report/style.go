package report

import (
	"io"

	"github.com/charmbracelet/lipgloss"
)

// Palette colors, Tokyo Night tones.
var (
	colorAccent  = lipgloss.Color("#7aa2f7")
	colorSuccess = lipgloss.Color("#9ece6a")
	colorWarning = lipgloss.Color("#e0af68")
	colorError   = lipgloss.Color("#f7768e")
	colorDim     = lipgloss.Color("#565f89")
)

type styles struct {
	title lipgloss.Style
	ok    lipgloss.Style
	warn  lipgloss.Style
	err   lipgloss.Style
	dim   lipgloss.Style
}

// newStyles returns styles rendered for w. Writers that are not a
// terminal get plain text.
func newStyles(w io.Writer) styles {
	r := lipgloss.NewRenderer(w)
	return styles{
		title: r.NewStyle().Bold(true).Foreground(colorAccent),
		ok:    r.NewStyle().Foreground(colorSuccess),
		warn:  r.NewStyle().Foreground(colorWarning),
		err:   r.NewStyle().Bold(true).Foreground(colorError),
		dim:   r.NewStyle().Foreground(colorDim),
	}
}
