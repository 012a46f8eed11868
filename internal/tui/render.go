package tui

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/date"
	"github.com/twiced-technology-gmbh/taskboard/internal/output"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// --- Styles ---

var (
	columnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("252")).
				Background(lipgloss.Color("236")).
				Padding(0, 1)

	activeColumnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("62")).
				Padding(0, 1)

	dropColumnHeaderStyle = lipgloss.NewStyle().
				Bold(true).
				Foreground(lipgloss.Color("230")).
				Background(lipgloss.Color("28")).
				Padding(0, 1)

	cardStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("240")).
			Padding(0, 1)

	activeCardStyle = cardStyle.BorderForeground(lipgloss.Color("226"))

	selectedCardStyle = cardStyle.BorderForeground(lipgloss.Color("212"))

	overdueCardStyle = cardStyle.BorderForeground(lipgloss.Color("196"))

	draggingCardStyle = cardStyle.
				BorderStyle(lipgloss.DoubleBorder()).
				BorderForeground(lipgloss.Color("42"))

	dropMarkerStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("42")).
			Bold(true)

	statusBarStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("241"))

	errorStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("196")).
			Bold(true)

	noticeStyle = lipgloss.NewStyle().
			Foreground(lipgloss.Color("214"))

	titleStyle = lipgloss.NewStyle().Bold(true)

	dimStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))

	priorityStyles = map[int]lipgloss.Style{
		0: dimStyle,
		1: lipgloss.NewStyle().Foreground(lipgloss.Color("250")),
		2: lipgloss.NewStyle().Foreground(lipgloss.Color("214")),
		3: lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
	}

	dialogPadY = 1
	dialogPadX = 2

	dialogStyle = lipgloss.NewStyle().
			Border(lipgloss.RoundedBorder()).
			BorderForeground(lipgloss.Color("62")).
			Padding(dialogPadY, dialogPadX)
)

// View implements tea.Model.
func (b *Board) View() string {
	if b.width == 0 {
		return "Loading..."
	}

	switch b.view {
	case viewConfirmDelete:
		return b.center(b.viewDeleteConfirm())
	case viewComplete:
		return b.center(b.viewCompletion())
	case viewDetail:
		return lipgloss.JoinVertical(lipgloss.Left, b.detail.View(), "",
			statusBarStyle.Render(truncate(" ↑↓:scroll  esc:back", b.width)))
	default:
		return b.viewBoard()
	}
}

func (b *Board) center(s string) string {
	return lipgloss.Place(b.width, b.height, lipgloss.Center, lipgloss.Center, s)
}

// --- Board rendering ---

func (b *Board) viewBoard() string {
	if len(b.columns) == 0 {
		return "No statuses configured. Run taskboard statuses --sync."
	}

	colWidth := b.columnWidth()
	renderedCols := make([]string, len(b.columns))
	for i := range b.columns {
		renderedCols[i] = b.renderColumn(i, colWidth)
	}
	boardView := lipgloss.JoinHorizontal(lipgloss.Top, renderedCols...)

	// Clamp from the bottom (keeping headers at the top) and pad if needed.
	targetHeight := b.height - b.chromeHeight()
	if targetHeight > 0 {
		actual := strings.Count(boardView, "\n") + 1
		if actual > targetHeight {
			viewLines := strings.SplitN(boardView, "\n", targetHeight+1)
			boardView = strings.Join(viewLines[:targetHeight], "\n")
		} else if actual < targetHeight {
			boardView += strings.Repeat("\n", targetHeight-actual)
		}
	}

	parts := []string{boardView}
	if b.view == viewSearch {
		parts = append(parts, b.search.View())
	} else if b.filter.Search != "" {
		parts = append(parts, dimStyle.Render(truncate("filter: "+b.filter.Search+"  (esc to clear)", b.width)))
	}
	parts = append(parts, "", b.renderStatusBar())
	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (b *Board) columnWidth() int {
	if b.width == 0 || len(b.columns) == 0 {
		return 30 //nolint:mnd // default column width
	}
	w := b.width / len(b.columns)
	const maxColWidth = 60
	if w > maxColWidth {
		w = maxColWidth
	}
	return w
}

func (b *Board) renderColumn(colIdx int, width int) string {
	col := b.columns[colIdx]
	dragging := b.view == viewDrag && colIdx == b.dragCol

	headerText := fmt.Sprintf("%s (%d)", col.status.Name, len(col.tasks))
	if col.hidden > 0 {
		headerText = fmt.Sprintf("%s (%d)", col.status.Name, col.hidden)
	}
	const headerPad = 2
	headerText = truncate(headerText, width-headerPad)

	var header string
	switch {
	case dragging:
		header = dropColumnHeaderStyle.Width(width).Render(headerText)
	case colIdx == b.activeCol && b.view != viewDrag:
		header = activeColumnHeaderStyle.Width(width).Render(headerText)
	case col.status.Color != "":
		header = columnHeaderStyle.Foreground(lipgloss.Color(col.status.Color)).Width(width).Render(headerText)
	default:
		header = columnHeaderStyle.Width(width).Render(headerText)
	}

	maxVis := b.visibleCardsForColumn(colIdx, width)
	start := min(col.scrollOff, len(col.tasks))
	end := min(start+maxVis, len(col.tasks))

	parts := []string{header}
	if start > 0 {
		parts = append(parts, dimStyle.Width(width).Render(truncate(fmt.Sprintf("  ↑ %d more", start), width)))
	}

	marker := dropMarkerStyle.Width(width).Render(truncate("  ▶ drop here", width))
	markerAtEnd := dragging && (b.sort.Field != "" || b.dragRow >= len(col.tasks))

	switch {
	case col.hidden > 0:
		parts = append(parts, dimStyle.Width(width).Render(truncate(fmt.Sprintf("  %d completed (c to show)", col.hidden), width)))
	case len(col.tasks) == 0:
		parts = append(parts, dimStyle.Width(width).Render("  (empty)"))
	default:
		for rowIdx := start; rowIdx < end; rowIdx++ {
			if dragging && !markerAtEnd && rowIdx == b.dragRow {
				parts = append(parts, marker)
			}
			active := b.view != viewDrag && colIdx == b.activeCol && rowIdx == b.activeRow
			parts = append(parts, b.renderCard(col.tasks[rowIdx], active, width))
		}
	}

	if end < len(col.tasks) {
		parts = append(parts, dimStyle.Width(width).Render(truncate(fmt.Sprintf("  ↓ %d more", len(col.tasks)-end), width)))
	}
	if markerAtEnd {
		parts = append(parts, marker)
	}

	return lipgloss.JoinVertical(lipgloss.Left, parts...)
}

func (b *Board) renderCard(t task.Task, active bool, width int) string {
	content := strings.Join(b.cardContentLines(t, width), "\n")

	style := cardStyle
	switch {
	case b.drag != nil && t.ID == b.drag.TaskID():
		style = draggingCardStyle
	case active:
		style = activeCardStyle
	case b.engine.Selection().Has(t.ID):
		style = selectedCardStyle
	case b.overdue(t):
		style = overdueCardStyle
	}
	return style.Width(width - 2).Render(content) //nolint:mnd // border width
}

func (b *Board) cardHeight(t task.Task, width int) int {
	return len(b.cardContentLines(t, width)) + 2 //nolint:mnd // top and bottom borders
}

func (b *Board) cardContentLines(t task.Task, width int) []string {
	const cardChrome = 4 // border (2) + padding (2)
	cardWidth := max(width-cardChrome, 1)
	l := b.engine.Lookup()

	title := t.Title
	if b.engine.Selection().Has(t.ID) {
		title = "● " + title
	}
	var lines []string
	for _, line := range wrapTitle(title, cardWidth, b.cfg.TitleLines()) {
		lines = append(lines, titleStyle.Render(line))
	}

	lines = append(lines, b.cardMeta(t, l, cardWidth))

	if b.cfg.TUI.BodyLines > 0 && strings.TrimSpace(t.Description) != "" {
		para, _, _ := strings.Cut(strings.TrimSpace(t.Description), "\n\n")
		for _, line := range wrapTitle(strings.Join(strings.Fields(para), " "), cardWidth, b.cfg.TUI.BodyLines) {
			lines = append(lines, dimStyle.Render(line))
		}
	}
	return lines
}

// cardMeta is the one-line summary under a card title: priority, due date,
// responsible user, subtask count and time since the last activity.
func (b *Board) cardMeta(t task.Task, l *board.Lookup, width int) string {
	type part struct {
		text  string
		style lipgloss.Style
	}
	parts := []part{{task.PriorityName(t.Priority), priorityStyles[t.Priority]}}
	if t.Due != nil {
		style := dimStyle
		if b.overdue(t) {
			style = errorStyle
		}
		parts = append(parts, part{"due " + date.String(*t.Due), style})
	}
	if t.ResponsibleID != nil {
		parts = append(parts, part{"@" + l.UserName(*t.ResponsibleID), dimStyle})
	}
	if n := b.subtasks[t.ID]; n > 0 {
		parts = append(parts, part{"⊂" + strconv.Itoa(n), dimStyle})
	}
	if last := l.LastActivityOf(t); !last.IsZero() {
		parts = append(parts, part{humanDuration(b.now().Sub(last)), dimStyle})
	}

	var sb strings.Builder
	used := 0
	for i, p := range parts {
		sep := ""
		if i > 0 {
			sep = " "
		}
		w := lipgloss.Width(sep + p.text)
		if used+w > width {
			break
		}
		sb.WriteString(sep + p.style.Render(p.text))
		used += w
	}
	return sb.String()
}

func (b *Board) overdue(t task.Task) bool {
	if t.Due == nil || b.engine.Lookup().IsDone(t) {
		return false
	}
	return date.Truncate(*t.Due).Before(date.Truncate(b.now()))
}

// wrapTitle splits a title across maxLines lines, word-wrapping at word
// boundaries. Each line is at most maxWidth characters.
func wrapTitle(title string, maxWidth, maxLines int) []string {
	if maxLines < 1 {
		maxLines = 1
	}
	if lipgloss.Width(title) <= maxWidth || maxLines == 1 {
		return []string{truncate(title, maxWidth)}
	}

	words := strings.Fields(title)
	lines := make([]string, 0, maxLines)
	var current strings.Builder

	for i, word := range words {
		if current.Len() == 0 {
			current.WriteString(word)
			continue
		}
		if lipgloss.Width(current.String())+1+lipgloss.Width(word) <= maxWidth {
			current.WriteByte(' ')
			current.WriteString(word)
		} else {
			lines = append(lines, truncate(current.String(), maxWidth))
			current.Reset()
			current.WriteString(word)
			if len(lines) == maxLines-1 {
				// Last line: append all remaining words.
				for _, w := range words[i+1:] {
					current.WriteByte(' ')
					current.WriteString(w)
				}
				break
			}
		}
	}
	if current.Len() > 0 {
		lines = append(lines, truncate(current.String(), maxWidth))
	}
	return lines
}

func (b *Board) renderStatusBar() string {
	var status string
	if b.view == viewDrag && b.drag != nil {
		title := ""
		if t, ok := b.engine.Get(b.drag.TaskID()); ok {
			title = t.Title
		}
		status = fmt.Sprintf(" moving %q to %s | ←→↑↓:target enter:drop esc:cancel",
			title, b.columns[b.dragCol].status.Name)
	} else {
		order := "manual"
		if b.sort.Field != "" {
			order = fmt.Sprintf("%s %s", b.sort.Field, b.sort.Direction)
		}
		status = fmt.Sprintf(" %s | %d tasks | sort: %s", b.cfg.Board.Name, b.total, order)
		if n := b.engine.Selection().Len(); n > 0 {
			status += fmt.Sprintf(" | %d selected", n)
		}
		if n := b.engine.Pending(); n > 0 {
			status += fmt.Sprintf(" | saving %d", n)
		}
		status += " | m:move enter:open /:search s/S/o:sort x/a/u:select d/D:del c:done q:quit"
	}
	status = statusBarStyle.Render(truncate(status, b.width))

	switch {
	case b.err != nil:
		return errorStyle.Render(truncate("Error: "+b.err.Error(), b.width)) + "\n" + status
	case b.notice != "":
		return noticeStyle.Render(truncate(b.notice, b.width)) + "\n" + status
	}
	return status
}

// --- Dialogs ---

func (b *Board) viewDeleteConfirm() string {
	var target string
	if b.deleteSelected {
		target = fmt.Sprintf("  %d selected tasks", len(b.deleteIDs))
	} else {
		target = fmt.Sprintf("  %s: %s", output.ShortID(b.deleteIDs[0]), b.deleteTitle)
	}
	content := errorStyle.Render("Delete?") + "\n\n" + target + "\n" +
		dimStyle.Render("  Subtasks are deleted with their parent.") + "\n\n" +
		dimStyle.Render("y:yes  n:no")

	return dialogStyle.Render(content)
}

func (b *Board) viewCompletion() string {
	title := ""
	if b.drag != nil {
		if t, ok := b.engine.Get(b.drag.TaskID()); ok {
			title = t.Title
		}
	}
	content := titleStyle.Render("Complete: "+truncate(title, 50)) + "\n" + //nolint:mnd // dialog width
		dimStyle.Render("Moving a task to done needs a result.") + "\n\n" +
		"Result\n" + b.result.View() + "\n\n" +
		"Attachments\n" + b.attach.View() + "\n"
	if b.err != nil {
		content += "\n" + errorStyle.Render(b.err.Error()) + "\n"
	}
	content += "\n" + dimStyle.Render("tab:next field  enter:complete  esc:cancel")
	return dialogStyle.Render(content)
}

// renderDetail lays out one task for the detail viewport.
func (b *Board) renderDetail(t task.Task, l *board.Lookup, subtasks []task.Task, entries []board.ActivityEntry) string {
	now := b.now()
	var sb strings.Builder
	field := func(label, value string) {
		if value == "" {
			value = dimStyle.Render("--")
		}
		fmt.Fprintf(&sb, "  %-13s %s\n", label+":", value)
	}

	sb.WriteString(titleStyle.Render(t.Title) + "\n")
	sb.WriteString(dimStyle.Render(t.ID) + "\n\n")
	field("Status", l.StatusName(t.StatusID))
	field("Priority", priorityStyles[t.Priority].Render(task.PriorityName(t.Priority)))
	if t.ResponsibleID != nil {
		field("Responsible", l.UserName(*t.ResponsibleID))
	} else {
		field("Responsible", "")
	}
	coworkers := make([]string, len(t.CoworkerIDs))
	for i, id := range t.CoworkerIDs {
		coworkers[i] = l.UserName(id)
	}
	field("Co-workers", strings.Join(coworkers, ", "))
	if t.Due != nil {
		field("Due", output.DueLabel(*t.Due, now))
	}
	field("Project", task.StringValue(t.ProjectID))
	if t.ParentID != nil {
		field("Parent", output.ShortID(*t.ParentID))
	}
	if t.Result != "" {
		field("Result", t.Result)
	}
	if t.CompletedAt != nil {
		field("Completed", humanize.Time(*t.CompletedAt))
	}
	field("Created", humanize.Time(t.CreatedAt))

	if desc := strings.TrimSpace(t.Description); desc != "" {
		sb.WriteString("\n" + output.Markdown(desc, max(b.width-4, 20)) + "\n") //nolint:mnd // margins
	}

	if len(subtasks) > 0 {
		sb.WriteString("\n" + titleStyle.Render("Subtasks") + "\n")
		for _, st := range subtasks {
			box := "[ ]"
			if l.IsDone(st) {
				box = "[x]"
			}
			fmt.Fprintf(&sb, "  %s %s %s\n", box, st.Title, dimStyle.Render(l.StatusName(st.StatusID)))
		}
	}

	if len(entries) > 0 {
		sb.WriteString("\n" + titleStyle.Render("Activity") + "\n")
		for _, e := range entries {
			line := e.Type
			if e.Field != "" {
				line += " " + e.Field
			}
			if e.NewValue != "" {
				line += ": " + e.NewValue
			}
			fmt.Fprintf(&sb, "  %s  %s\n", dimStyle.Render(humanize.Time(e.Timestamp)), truncate(line, max(b.width-20, 20))) //nolint:mnd // timestamp column
		}
	}
	return sb.String()
}

func truncate(s string, maxLen int) string {
	if maxLen < 4 { //nolint:mnd // minimum length for truncation
		maxLen = 4
	}
	if lipgloss.Width(s) <= maxLen {
		return s
	}
	// Slice by runes to avoid breaking multi-byte UTF-8 characters.
	runes := []rune(s)
	target := maxLen - 3 //nolint:mnd // room for "..."
	if target > len(runes) {
		target = len(runes)
	}
	for target > 0 && lipgloss.Width(string(runes[:target])) > maxLen-3 {
		target--
	}
	return string(runes[:target]) + "..."
}

// humanDuration formats a duration as a compact human-readable string.
// Examples: "<1m", "5m", "2h", "3d", "2w", "3mo", "1y".
func humanDuration(d time.Duration) string {
	const (
		day   = 24 * time.Hour
		week  = 7 * day
		month = 30 * day
		year  = 365 * day
	)

	switch {
	case d < time.Minute:
		return "<1m"
	case d < time.Hour:
		return strconv.Itoa(int(d.Minutes())) + "m"
	case d < day:
		return strconv.Itoa(int(d.Hours())) + "h"
	case d < week:
		return strconv.Itoa(int(d/day)) + "d"
	case d < month:
		return strconv.Itoa(int(d/week)) + "w"
	case d < year:
		return strconv.Itoa(int(d/month)) + "mo"
	default:
		return strconv.Itoa(int(d/year)) + "y"
	}
}
