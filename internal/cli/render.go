package cli

import (
	"fmt"
	"io"
	"strconv"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"

	"github.com/dgnsrekt/sessionvault/internal/catalog"
	"github.com/dgnsrekt/sessionvault/internal/cdpcontrol"
	"github.com/dgnsrekt/sessionvault/internal/controller"
)

var (
	headerStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("62")).
			Padding(0, 1)

	titleStyle = lipgloss.NewStyle().
			Bold(true).
			Foreground(lipgloss.Color("212"))

	domainStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("135")).
			Bold(true)

	idStyle = lipgloss.NewStyle().
		Foreground(lipgloss.Color("240")).
		Italic(true)

	activeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	dateStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("243"))

	warnStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))
)

func truncate(s string, n int) string {
	if len(s) <= n {
		return s
	}
	return s[:n-3] + "..."
}

func formatLastUsed(ms int64, now time.Time) string {
	if ms <= 0 {
		return "-"
	}
	t := time.UnixMilli(ms)
	diff := now.Sub(t)
	switch {
	case diff < 24*time.Hour:
		return t.Format("Today 15:04")
	case diff < 7*24*time.Hour:
		return t.Format("Mon 15:04")
	case diff < 365*24*time.Hour:
		return t.Format("Jan 02 15:04")
	default:
		return t.Format("2006-01-02")
	}
}

// renderSessions prints one table per domain. active maps domain to the
// active session id.
func renderSessions(out io.Writer, sessions []catalog.Session, active map[string]string, now time.Time) {
	if len(sessions) == 0 {
		fmt.Fprintln(out, headerStyle.Render("No saved sessions"))
		return
	}
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d saved session(s)", len(sessions))))

	domain := ""
	var w *tabwriter.Writer
	for _, s := range sessions {
		if s.Domain != domain || w == nil {
			if w != nil {
				_ = w.Flush()
			}
			domain = s.Domain
			fmt.Fprintln(out)
			fmt.Fprintln(out, domainStyle.Render(domain))
			w = tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, titleStyle.Render("#")+"\t"+titleStyle.Render("Name")+"\t"+titleStyle.Render("ID")+"\t"+titleStyle.Render("Last used")+"\t")
		}
		mark := " "
		if active[s.Domain] == s.ID {
			mark = activeStyle.Render("*")
		}
		fmt.Fprintf(w, "%s%s\t%s\t%s\t%s\t\n",
			mark, strconv.Itoa(s.Order),
			truncate(s.Name, 40),
			idStyle.Render(s.ID),
			dateStyle.Render(formatLastUsed(s.LastUsed, now)))
	}
	if w != nil {
		_ = w.Flush()
	}
}

func renderTabs(out io.Writer, tabs []cdpcontrol.TabInfo) {
	if len(tabs) == 0 {
		fmt.Fprintln(out, headerStyle.Render("No page tabs"))
		return
	}
	fmt.Fprintln(out, headerStyle.Render(fmt.Sprintf("%d tab(s)", len(tabs))))
	w := tabwriter.NewWriter(out, 0, 0, 3, ' ', 0)
	fmt.Fprintln(w, titleStyle.Render("Tab")+"\t"+titleStyle.Render("Title")+"\t"+titleStyle.Render("URL")+"\t")
	fmt.Fprintln(w, strings.Repeat("-", 80))
	for _, t := range tabs {
		fmt.Fprintf(w, "%s\t%s\t%s\t\n", idStyle.Render(t.TabID), truncate(t.Title, 40), truncate(t.URL, 60))
	}
	_ = w.Flush()
}

func renderSwitch(out io.Writer, res controller.SwitchResult) {
	fmt.Fprintf(out, "Switched tab %s to %s (%s) in %dms\n",
		res.TabID, idStyle.Render(res.SessionID), res.Domain, res.DurationMS)
	if res.TimedOut {
		fmt.Fprintln(out, warnStyle.Render("restore hit its deadline; the page was reloaded with what was written"))
	}
	if res.RestoreError != "" {
		fmt.Fprintln(out, warnStyle.Render("restore: "+res.RestoreError))
	}
	if res.ReloadError != "" {
		fmt.Fprintln(out, warnStyle.Render("reload: "+res.ReloadError))
	}
}
