package ui

import (
	"github.com/charmbracelet/lipgloss"

	"github.com/desertthunder/ridesync/internal/models"
)

// Strava orange for titles, Garmin blue for info.
var styles = NewPalette("#FC4C02", "#04B575", "#FF0000", "#FFA500", "#626262", "#007CC3")

// Palette is a simple stylesheet built with named [lipgloss.Style] fields
type Palette struct {
	title lipgloss.Style
	ok    lipgloss.Style
	err   lipgloss.Style
	warn  lipgloss.Style
	help  lipgloss.Style
	info  lipgloss.Style
}

func NewPalette(t, s, e, w, h, i string) *Palette {
	return &Palette{
		title: NewBold(t).MarginBottom(1),
		ok:    NewBold(s),
		err:   NewBold(e),
		warn:  NewStyle(w),
		help:  NewEm(h),
		info:  NewStyle(i),
	}
}

// Status colours a run status.
func (p *Palette) Status(s models.RunStatus) string {
	switch s {
	case models.RunCompleted:
		return p.ok.Render(string(s))
	case models.RunAborted:
		return p.err.Render(string(s))
	default:
		return p.warn.Render(string(s))
	}
}

func NewStyle(fg string) lipgloss.Style {
	return lipgloss.NewStyle().Foreground(lipgloss.Color(fg))
}

func NewBold(fg string) lipgloss.Style {
	return NewStyle(fg).Bold(true)
}

func NewEm(fg string) lipgloss.Style {
	return NewStyle(fg).Italic(true)
}
