// Package render formats documents for the terminal.
package render

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/charmbracelet/glamour"
	"github.com/charmbracelet/lipgloss"
	"github.com/charmbracelet/lipgloss/table"
	"github.com/gogotex/docflow/internal/document"
)

const timeLayout = "2006-01-02 15:04:05"

var (
	headerStyle    = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	labelStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	headerRowStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("12"))
	cellStyle      = lipgloss.NewStyle()

	draftStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("15"))
	reviewStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("11"))
	changesStyle   = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
	approvedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("10"))
	publishedStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("10"))
	archivedStyle  = lipgloss.NewStyle().Foreground(lipgloss.Color("8"))
	warnStyle      = lipgloss.NewStyle().Foreground(lipgloss.Color("9"))
)

func StatusStyle(s document.Status) lipgloss.Style {
	switch s {
	case document.StatusInReview:
		return reviewStyle
	case document.StatusChangesRequested:
		return changesStyle
	case document.StatusApproved:
		return approvedStyle
	case document.StatusPublished:
		return publishedStyle
	case document.StatusArchived:
		return archivedStyle
	default:
		return draftStyle
	}
}

func Status(s document.Status) string {
	return StatusStyle(s).Render(string(s))
}

func Field(label, value string) string {
	return labelStyle.Render(label+":") + " " + value
}

// Header renders a document's metadata block. Pending marks a view that the
// server has not confirmed yet.
func Header(d *document.Document, pending bool) string {
	status := Status(d.Status)
	if pending {
		status += " " + labelStyle.Render("(pending)")
	}
	fields := []string{
		Field("ID", d.ID),
		Field("Status", status),
		Field("Version", strconv.Itoa(d.Version)),
		Field("Author", d.AuthorID),
	}
	if d.ProjectID != "" {
		fields = append(fields, Field("Project", d.ProjectID))
	}
	if d.TemplateID != "" {
		fields = append(fields, Field("Template", d.TemplateID))
	}
	fields = append(fields, Field("Updated", d.UpdatedAt.Format(timeLayout)))
	if d.PublishedAt != nil {
		fields = append(fields, Field("Published", d.PublishedAt.Format(timeLayout)))
	}
	if d.SnapshotPending {
		fields = append(fields, warnStyle.Render("last revision snapshot failed"))
	}

	var sb strings.Builder
	sb.WriteString(headerStyle.Render(d.Title))
	sb.WriteString("\n")
	for _, f := range fields {
		sb.WriteString("  " + f + "\n")
	}
	return sb.String()
}

func Markdown(content string) (string, error) {
	r, err := glamour.NewTermRenderer(glamour.WithAutoStyle())
	if err != nil {
		return "", fmt.Errorf("creating renderer: %w", err)
	}
	out, err := r.Render(content)
	if err != nil {
		return "", fmt.Errorf("rendering markdown: %w", err)
	}
	return out, nil
}

// RevisionTable lists revisions as given, newest first when the server
// ordered them that way.
func RevisionTable(revs []*document.Revision) string {
	if len(revs) == 0 {
		return "No revisions yet."
	}
	rows := make([][]string, len(revs))
	for i, r := range revs {
		rows[i] = []string{
			"v" + strconv.Itoa(r.VersionNumber),
			r.Title,
			r.CreatedBy,
			r.CreatedAt.Format(timeLayout),
			r.ChangeSummary,
		}
	}
	return renderTable([]string{"Version", "Title", "By", "Created", "Summary"}, rows)
}

func DocumentTable(docs []*document.Document) string {
	if len(docs) == 0 {
		return "No documents found."
	}
	rows := make([][]string, len(docs))
	for i, d := range docs {
		rows[i] = []string{d.ID, d.Title, Status(d.Status), "v" + strconv.Itoa(d.Version), d.UpdatedAt.Format("2006-01-02")}
	}
	return renderTable([]string{"ID", "Title", "Status", "Version", "Updated"}, rows)
}

func renderTable(headers []string, rows [][]string) string {
	t := table.New().
		Headers(headers...).
		Rows(rows...).
		BorderStyle(lipgloss.NewStyle().Foreground(lipgloss.Color("8"))).
		StyleFunc(func(row, col int) lipgloss.Style {
			if row == table.HeaderRow {
				return headerRowStyle
			}
			return cellStyle
		})
	return t.Render()
}
