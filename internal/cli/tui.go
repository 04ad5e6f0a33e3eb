package cli

import (
	"fmt"
	"sort"
	"strconv"
	"strings"
	"time"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"

	"github.com/matzehuels/quadmesh/pkg/mesh"
	"github.com/matzehuels/quadmesh/pkg/store"
)

// List styles
var (
	listSelectedStyle = lipgloss.NewStyle().Bold(true).Foreground(colorCyan)
	listDimStyle      = lipgloss.NewStyle().Foreground(colorDim)
)

// Quality bands for element rows.
const (
	poorQuality = 0.3
	fairQuality = 0.6
)

// =============================================================================
// Element rows
// =============================================================================

// element is one mesh element with its quality.
type element struct {
	Kind     string
	ID       int
	Vertices []int
	Quality  float64
}

// elements lists the mesh elements worst quality first. Ties keep
// triangles before quads and ascending IDs.
func elements(h *mesh.HybridMesh) []element {
	out := make([]element, 0, h.NumElements())
	for _, t := range h.Triangles {
		out = append(out, element{
			Kind:     "tri",
			ID:       t.ID,
			Vertices: t.V[:],
			Quality:  mesh.TriangleQuality(h.Vertices, t.V[0], t.V[1], t.V[2]),
		})
	}
	for _, q := range h.Quads {
		out = append(out, element{
			Kind:     "quad",
			ID:       q.ID,
			Vertices: q.V[:],
			Quality:  mesh.QuadQuality(h.Vertices, q.V[0], q.V[1], q.V[2], q.V[3]),
		})
	}
	sort.SliceStable(out, func(i, j int) bool { return out[i].Quality < out[j].Quality })
	return out
}

// elementFilter selects which element kinds are listed.
type elementFilter int

const (
	filterAll elementFilter = iota
	filterTriangles
	filterQuads
)

func (f elementFilter) String() string {
	switch f {
	case filterTriangles:
		return "triangles"
	case filterQuads:
		return "quads"
	}
	return "all"
}

func (f elementFilter) keep(e element) bool {
	switch f {
	case filterTriangles:
		return e.Kind == "tri"
	case filterQuads:
		return e.Kind == "quad"
	}
	return true
}

// elementTable renders rows as a table, highlighting row cursor (or none
// when cursor is negative).
func elementTable(rows []element, cursor int) string {
	data := make([][]string, len(rows))
	for i, e := range rows {
		ids := make([]string, len(e.Vertices))
		for j, v := range e.Vertices {
			ids[j] = strconv.Itoa(v)
		}
		data[i] = []string{e.Kind, strconv.Itoa(e.ID), fmt.Sprintf("%.3f", e.Quality), strings.Join(ids, " ")}
	}

	headerStyle := lipgloss.NewStyle().Foreground(colorGray).Bold(true)
	t := table.New().
		Border(lipgloss.RoundedBorder()).
		BorderStyle(lipgloss.NewStyle().Foreground(colorDim)).
		Headers("Kind", "ID", "Quality", "Vertices").
		Rows(data...).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == -1 {
				return headerStyle
			}
			if row >= len(rows) {
				return lipgloss.NewStyle()
			}
			base := lipgloss.NewStyle()
			if row == cursor {
				base = base.Bold(true)
			}
			if col != 2 {
				if row == cursor {
					return base.Foreground(colorCyan)
				}
				return base.Foreground(colorWhite)
			}
			switch q := rows[row].Quality; {
			case q < poorQuality:
				return base.Foreground(colorRed)
			case q < fairQuality:
				return base.Foreground(colorYellow)
			}
			return base.Foreground(colorGreen)
		})
	return t.Render()
}

// =============================================================================
// ElementListModel - Interactive element quality browser
// =============================================================================

// ElementListModel is the bubbletea model for browsing elements by quality.
type ElementListModel struct {
	Title    string
	Elements []element
	Filter   elementFilter
	Cursor   int
	Height   int
	Offset   int
}

// NewElementListModel creates a browser over the elements of h.
func NewElementListModel(title string, h *mesh.HybridMesh) ElementListModel {
	return ElementListModel{
		Title:    title,
		Elements: elements(h),
		Height:   15,
	}
}

// visible returns the elements passing the current filter.
func (m ElementListModel) visible() []element {
	out := make([]element, 0, len(m.Elements))
	for _, e := range m.Elements {
		if m.Filter.keep(e) {
			out = append(out, e)
		}
	}
	return out
}

func (m ElementListModel) Init() tea.Cmd {
	return nil
}

func (m ElementListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		n := len(m.visible())
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
				if m.Cursor < m.Offset {
					m.Offset = m.Cursor
				}
			}
		case "down", "j":
			if m.Cursor < n-1 {
				m.Cursor++
				if m.Cursor >= m.Offset+m.Height {
					m.Offset = m.Cursor - m.Height + 1
				}
			}
		case "t":
			m.Filter = (m.Filter + 1) % 3
			m.Cursor, m.Offset = 0, 0
		}
	case tea.WindowSizeMsg:
		m.Height = msg.Height - 8
		if m.Height < 5 {
			m.Height = 5
		}
	}
	return m, nil
}

func (m ElementListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render(m.Title))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("↑/↓ navigate  t filter  q quit"))
	b.WriteString("\n\n")

	rows := m.visible()
	end := min(m.Offset+m.Height, len(rows))
	b.WriteString(elementTable(rows[m.Offset:end], m.Cursor-m.Offset))
	b.WriteString("\n\n")

	pos := 0
	if len(rows) > 0 {
		pos = m.Cursor + 1
	}
	b.WriteString(listDimStyle.Render(fmt.Sprintf("  [%d/%d] showing %s", pos, len(rows), m.Filter)))

	return b.String()
}

// =============================================================================
// RecordListModel - Interactive stored mesh selection
// =============================================================================

// RecordListModel is the bubbletea model for picking a stored mesh.
type RecordListModel struct {
	Records  []*store.Record
	Cursor   int
	Selected *store.Record
}

// NewRecordListModel creates a new record list model.
func NewRecordListModel(records []*store.Record) RecordListModel {
	return RecordListModel{Records: records}
}

func (m RecordListModel) Init() tea.Cmd {
	return nil
}

func (m RecordListModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if msg, ok := msg.(tea.KeyMsg); ok {
		switch msg.String() {
		case "q", "ctrl+c", "esc":
			return m, tea.Quit
		case "up", "k":
			if m.Cursor > 0 {
				m.Cursor--
			}
		case "down", "j":
			if m.Cursor < len(m.Records)-1 {
				m.Cursor++
			}
		case "enter":
			if len(m.Records) > 0 {
				m.Selected = m.Records[m.Cursor]
				return m, tea.Quit
			}
		}
	}
	return m, nil
}

func (m RecordListModel) View() string {
	var b strings.Builder

	b.WriteString(StyleTitle.Render("Select Mesh"))
	b.WriteString("\n")
	b.WriteString(listDimStyle.Render("arrows: navigate  enter: select  q: quit"))
	b.WriteString("\n\n")

	for i, rec := range m.Records {
		cursor := "  "
		if i == m.Cursor {
			cursor = "> "
		}
		line := fmt.Sprintf("%s%-20s %6d tris %6d quads  %s", cursor, rec.Name, rec.Triangles, rec.Quads,
			listDimStyle.Render(formatRelativeTime(rec.CreatedAt)))
		if i == m.Cursor {
			b.WriteString(listSelectedStyle.Render(line))
		} else {
			b.WriteString(line)
		}
		b.WriteString("\n")
	}
	return b.String()
}

// =============================================================================
// Helpers
// =============================================================================

func formatRelativeTime(t time.Time) string {
	diff := time.Since(t)

	switch {
	case diff < time.Hour:
		return fmt.Sprintf("%dm ago", int(diff.Minutes()))
	case diff < 24*time.Hour:
		return fmt.Sprintf("%dh ago", int(diff.Hours()))
	case diff < 7*24*time.Hour:
		return fmt.Sprintf("%dd ago", int(diff.Hours()/24))
	default:
		return t.Format("Jan 2, 2006")
	}
}
