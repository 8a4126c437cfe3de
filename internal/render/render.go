// ABOUTME: Renders service results as lipgloss tables and status lines for kscctl
// ABOUTME: Output degrades to plain text when the writer is not a terminal

package render

import (
	"fmt"
	"io"
	"maps"
	"slices"
	"strconv"
	"strings"

	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/harper/ksc-bridge/internal/service"
)

type Printer struct {
	w     io.Writer
	r     *lipgloss.Renderer
	theme Theme
}

func New(w io.Writer, theme Theme) *Printer {
	return &Printer{w: w, r: lipgloss.NewRenderer(w), theme: theme}
}

func (p *Printer) line(s string) {
	fmt.Fprintln(p.w, s)
}

func (p *Printer) table(headers []string, rows [][]string, statusCol int) {
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(p.r.NewStyle().Foreground(p.theme.Border)).
		Headers(headers...).
		Rows(rows...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return p.theme.headerStyle(p.r)
			}
			style := p.theme.cellStyle(p.r)
			if col == statusCol && row >= 0 && row < len(rows) {
				style = style.Inherit(p.theme.statusStyle(p.r, rows[row][col]))
			}
			return style
		})
	p.line(t.Render())
}

func (p *Printer) footer(shown, total int, truncated bool) {
	switch {
	case truncated && total > 0:
		p.line(p.theme.warningStyle(p.r).Render(fmt.Sprintf("showing %d of %d; raise --limit to see more", shown, total)))
	case truncated:
		p.line(p.theme.warningStyle(p.r).Render(fmt.Sprintf("showing first %d; raise --limit to see more", shown)))
	default:
		p.line(p.theme.dimStyle(p.r).Render(fmt.Sprintf("%d total", shown)))
	}
}

func (p *Printer) Error(err error) {
	p.line(p.theme.errorStyle(p.r).Render("error: ") + err.Error())
}

func (p *Printer) Success(msg string) {
	p.line(p.theme.successStyle(p.r).Render("✓ ") + msg)
}

func (p *Printer) Hosts(list *service.HostList) {
	rows := make([][]string, 0, len(list.Hosts))
	for _, h := range list.Hosts {
		rows = append(rows, []string{
			h.ID, h.DisplayName, strconv.FormatInt(h.GroupID, 10), h.Status, h.IPAddress,
		})
	}
	p.table([]string{"ID", "NAME", "GROUP", "STATUS", "IP"}, rows, 3)
	p.footer(len(list.Hosts), list.Total, list.Truncated)
}

func (p *Printer) Host(h *service.HostDetail) {
	p.line(p.theme.titleStyle(p.r).Render(h.DisplayName))
	rows := [][]string{
		{"id", h.ID},
		{"name", h.Name},
		{"group", strconv.FormatInt(h.GroupID, 10)},
		{"status", h.Status},
	}
	if len(h.StatusFlags) > 0 {
		rows = append(rows, []string{"flags", strings.Join(h.StatusFlags, ", ")})
	}
	if h.LastVisible != nil {
		rows = append(rows, []string{"last visible", h.LastVisible.Format("2006-01-02 15:04:05")})
	}
	for _, k := range slices.Sorted(maps.Keys(h.OSInfo)) {
		rows = append(rows, []string{k, fmt.Sprint(h.OSInfo[k])})
	}
	if len(h.Products) > 0 {
		rows = append(rows, []string{"products", strings.Join(h.Products, ", ")})
	}
	p.table([]string{"FIELD", "VALUE"}, rows, -1)
}

func (p *Printer) Groups(list *service.GroupList) {
	rows := make([][]string, 0, len(list.Groups))
	for _, g := range list.Groups {
		rows = append(rows, []string{
			strconv.FormatInt(g.ID, 10), g.Name, g.FullName,
			strconv.FormatInt(g.ParentID, 10), strconv.FormatInt(g.HostCount, 10),
		})
	}
	p.table([]string{"ID", "NAME", "PATH", "PARENT", "HOSTS"}, rows, -1)
	p.footer(len(list.Groups), list.Total, list.Truncated)
}

func (p *Printer) Tasks(list *service.TaskList) {
	rows := make([][]string, 0, len(list.Tasks))
	for _, t := range list.Tasks {
		rows = append(rows, []string{t.ID, t.Name, t.Type, t.Product, strconv.FormatInt(t.GroupID, 10)})
	}
	p.table([]string{"ID", "NAME", "TYPE", "PRODUCT", "GROUP"}, rows, -1)
	p.footer(len(list.Tasks), 0, list.Truncated)
}

func (p *Printer) TaskState(st *service.TaskState) {
	p.line(p.theme.titleStyle(p.r).Render(fmt.Sprintf("task %s: ", st.TaskID)) +
		p.theme.statusStyle(p.r, st.StateDesc).Render(st.StateDesc) +
		fmt.Sprintf(" (%d%%)", st.Percentage))
	rows := make([][]string, 0, len(st.HostCounts))
	for _, k := range slices.Sorted(maps.Keys(st.HostCounts)) {
		rows = append(rows, []string{k, strconv.FormatInt(st.HostCounts[k], 10)})
	}
	p.table([]string{"STATE", "HOSTS"}, rows, 0)
}

func (p *Printer) Removal(r *service.GroupRemoval) {
	if r.Removed {
		p.Success(fmt.Sprintf("group %d removed after %d checks", r.GroupID, r.Checks))
		return
	}
	p.line(p.theme.warningStyle(p.r).Render(
		fmt.Sprintf("group %d: removal not confirmed after %d checks (action %s)", r.GroupID, r.Checks, r.ActionGUID)))
}
