package cli

import (
	"fmt"
	"sort"
	"strings"

	"github.com/charmbracelet/lipgloss"

	"github.com/modem-control/mdmcli/internal/modem"
	"github.com/modem-control/mdmcli/internal/telemetry"
)

var (
	colorUp    = lipgloss.Color("#a6e3a1")
	colorDown  = lipgloss.Color("#f9e2af")
	colorDead  = lipgloss.Color("#f38ba8")
	colorMuted = lipgloss.Color("#7f849c")

	labelStyle = lipgloss.NewStyle().Bold(true)
	mutedStyle = lipgloss.NewStyle().Foreground(colorMuted)
	okStyle    = lipgloss.NewStyle().Foreground(colorUp).Bold(true)
	errStyle   = lipgloss.NewStyle().Foreground(colorDead).Bold(true)
)

func statusStyle(s modem.Status) lipgloss.Style {
	switch s {
	case modem.StatusUp:
		return lipgloss.NewStyle().Foreground(colorUp).Bold(true)
	case modem.StatusDown:
		return lipgloss.NewStyle().Foreground(colorDown).Bold(true)
	case modem.StatusDead:
		return lipgloss.NewStyle().Foreground(colorDead).Bold(true)
	default:
		return mutedStyle
	}
}

func renderStatus(s modem.Status) string {
	return statusStyle(s).Render(strings.ToUpper(s.String()))
}

func renderOutcome(op string, err error) string {
	if err != nil {
		return fmt.Sprintf("%s %s %s", labelStyle.Render(op), errStyle.Render("ERROR"), err)
	}
	return fmt.Sprintf("%s %s", labelStyle.Render(op), okStyle.Render("OK"))
}

// renderEvent formats a telemetry event on one line with sorted data keys.
func renderEvent(ev telemetry.Event) string {
	keys := make([]string, 0, len(ev.Data))
	for k := range ev.Data {
		keys = append(keys, k)
	}
	sort.Strings(keys)

	parts := make([]string, 0, len(keys))
	for _, k := range keys {
		parts = append(parts, fmt.Sprintf("%s=%v", k, ev.Data[k]))
	}

	head := fmt.Sprintf("#%d %s", ev.ID, ev.Type)
	if ev.Instance == 0 {
		head = ev.Type
	}
	return fmt.Sprintf("%s %s %s",
		mutedStyle.Render(ev.Time.Format("15:04:05.000")),
		labelStyle.Render(head),
		strings.Join(parts, " "))
}

// printingListener writes every status it receives.
func (a *app) printingListener() modem.Listener {
	show := func(s modem.Status) func() {
		return func() { a.printf("status %s\n", renderStatus(s)) }
	}
	return modem.ListenerFuncs{
		Up:   show(modem.StatusUp),
		Down: show(modem.StatusDown),
		Dead: show(modem.StatusDead),
	}
}
