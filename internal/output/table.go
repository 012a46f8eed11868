package output

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/dustin/go-humanize"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/date"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// IDWidth is the number of id characters shown in tables.
const IDWidth = 8

var (
	headerStyle  = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("244"))
	dimStyle     = lipgloss.NewStyle().Foreground(lipgloss.Color("241"))
	titleStyle   = lipgloss.NewStyle().Bold(true)
	overdueStyle = lipgloss.NewStyle().Foreground(lipgloss.Color("196"))
	userStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("44"))
	doneStyle    = lipgloss.NewStyle().Foreground(lipgloss.Color("34"))

	// Priority colors matching TUI priority palette.
	priorityStyles = map[string]lipgloss.Style{
		"urgent": lipgloss.NewStyle().Foreground(lipgloss.Color("196")).Bold(true),
		"high":   lipgloss.NewStyle().Foreground(lipgloss.Color("208")),
		"medium": lipgloss.NewStyle().Foreground(lipgloss.Color("226")),
		"low":    lipgloss.NewStyle().Foreground(lipgloss.Color("242")),
	}

	colorEnabled = true
)

// DisableColor strips all styling from table output.
func DisableColor() {
	headerStyle = lipgloss.NewStyle()
	dimStyle = lipgloss.NewStyle()
	titleStyle = lipgloss.NewStyle()
	overdueStyle = lipgloss.NewStyle()
	userStyle = lipgloss.NewStyle()
	doneStyle = lipgloss.NewStyle()
	priorityStyles = map[string]lipgloss.Style{}
	colorEnabled = false
}

// ShortID truncates an id for display.
func ShortID(id string) string {
	if len(id) > IDWidth {
		return id[:IDWidth]
	}
	return id
}

// TaskTable renders a list of tasks as a formatted table.
func TaskTable(w io.Writer, tasks []task.Task, l *board.Lookup, now time.Time) {
	if len(tasks) == 0 {
		fmt.Fprintln(os.Stderr, "No tasks found.")
		return
	}

	const pad = 2
	idW, statusW, prioW, titleW, respW, dueW := IDWidth+pad, 8, 10, 7, 13, 12
	for _, t := range tasks {
		statusW = max(statusW, len(l.StatusName(t.StatusID))+pad)
		titleW = max(titleW, min(len(displayTitle(t))+pad, 50)) //nolint:mnd // max title column width
		respW = max(respW, min(len(responsible(t, l))+pad, 24))  //nolint:mnd // max responsible column width
	}

	header := fmt.Sprintf("%-*s %-*s %-*s %-*s %-*s %-*s",
		idW, "ID", statusW, "STATUS", prioW, "PRIORITY",
		titleW, "TITLE", respW, "RESPONSIBLE", dueW, "DUE")
	fmt.Fprintln(w, headerStyle.Render(strings.TrimRight(header, " ")))

	for _, t := range tasks {
		title := displayTitle(t)
		const maxTitle = 48
		if len(title) > maxTitle {
			title = title[:maxTitle-3] + "..."
		}
		resp := responsible(t, l)
		if resp == "" {
			resp = dimStyle.Render("--")
		} else {
			resp = userStyle.Render(resp)
		}
		status := l.StatusName(t.StatusID)
		if l.IsDone(t) {
			status = doneStyle.Render(status)
		}

		row := fmt.Sprintf("%-*s %s %s %s %s %s",
			idW, ShortID(t.ID),
			padRight(status, statusW),
			padRight(styledValue(task.PriorityName(t.Priority), priorityStyles), prioW),
			padRight(title, titleW),
			padRight(resp, respW),
			dueDisplay(t, l, now))
		fmt.Fprintln(w, strings.TrimRight(row, " "))
	}
}

// TaskDetail renders a single task with full detail.
func TaskDetail(w io.Writer, t task.Task, l *board.Lookup, subtasks []task.Task, activity []board.ActivityEntry, now time.Time) {
	titleLine := fmt.Sprintf("Task %s: %s", ShortID(t.ID), t.Title)
	fmt.Fprintln(w, titleStyle.Render(titleLine))
	fmt.Fprintln(w, strings.Repeat("─", lipgloss.Width(titleLine)))

	printField(w, "ID", t.ID)
	printField(w, "Status", l.StatusName(t.StatusID))
	printField(w, "Priority", styledValue(task.PriorityName(t.Priority), priorityStyles))
	printField(w, "Responsible", stringOrDash(responsible(t, l)))
	coworkers := make([]string, len(t.CoworkerIDs))
	for i, id := range t.CoworkerIDs {
		coworkers[i] = l.UserName(id)
	}
	printField(w, "Co-workers", stringOrDash(strings.Join(coworkers, ", ")))
	printField(w, "Owner", stringOrDash(l.UserName(t.OwnerID)))
	printField(w, "Project", stringOrDash(task.StringValue(t.ProjectID)))
	printField(w, "Due", dueDisplay(t, l, now))
	if t.ParentID != nil {
		printField(w, "Parent", ShortID(*t.ParentID))
	}
	printField(w, "Created", t.CreatedAt.Local().Format("2006-01-02 15:04"))
	printField(w, "Updated", t.UpdatedAt.Local().Format("2006-01-02 15:04"))
	if last := l.LastActivityOf(t); !last.IsZero() {
		printField(w, "Activity", humanize.RelTime(last, now, "ago", "from now"))
	}
	if t.CompletedAt != nil {
		printField(w, "Completed", t.CompletedAt.Local().Format("2006-01-02 15:04"))
		printField(w, "Lead time", FormatDuration(t.CompletedAt.Sub(t.CreatedAt)))
	}
	if t.Result != "" {
		printField(w, "Result", t.Result)
	}

	if len(subtasks) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("SUBTASKS"))
		for _, s := range subtasks {
			mark := "[ ]"
			if l.IsDone(s) {
				mark = doneStyle.Render("[x]")
			}
			fmt.Fprintf(w, "  %s %s %s %s\n", mark, ShortID(s.ID), s.Title, dimStyle.Render(l.StatusName(s.StatusID)))
		}
	}

	if t.Description != "" {
		fmt.Fprintln(w)
		fmt.Fprintln(w, Markdown(t.Description, 0))
	}

	if len(activity) > 0 {
		fmt.Fprintln(w)
		fmt.Fprintln(w, headerStyle.Render("ACTIVITY"))
		ActivityList(w, activity, l, now)
	}
}

// ActivityList renders activity entries, newest first.
func ActivityList(w io.Writer, entries []board.ActivityEntry, l *board.Lookup, now time.Time) {
	for _, e := range entries {
		when := dimStyle.Render(padRight(humanize.RelTime(e.Timestamp, now, "ago", "from now"), 16)) //nolint:mnd // column width
		fmt.Fprintf(w, "  %s %s\n", when, describeActivity(e, l))
	}
}

func describeActivity(e board.ActivityEntry, l *board.Lookup) string {
	who := ""
	if e.ActorID != "" {
		who = userStyle.Render(l.UserName(e.ActorID)) + " "
	}
	switch e.Type {
	case board.ActivityCreated:
		return who + "created the task"
	case board.ActivityComplete:
		return who + "completed the task"
	case board.ActivityDeleted:
		return who + "deleted the task"
	case board.ActivityAttach:
		return who + "attached " + e.NewValue
	case board.ActivityComment:
		return who + "commented: " + e.NewValue
	}
	oldV, newV := e.OldValue, e.NewValue
	if e.Field == "status_id" {
		oldV, newV = l.StatusName(oldV), l.StatusName(newV)
	}
	return fmt.Sprintf("%schanged %s: %s → %s", who, e.Field, orDash(oldV), orDash(newV))
}

// OverviewTable renders a board summary as a formatted dashboard.
func OverviewTable(w io.Writer, s board.Overview) {
	fmt.Fprintln(w, titleStyle.Render(s.BoardName))
	fmt.Fprintf(w, "Total: %d tasks, %d completed, %d overdue\n\n", s.TotalTasks, s.Completed, s.Overdue)

	header := fmt.Sprintf("%-16s %6s %9s %8s", "STATUS", "COUNT", "SUBTASKS", "OVERDUE")
	fmt.Fprintln(w, headerStyle.Render(header))

	const statusColW = 16
	for _, ss := range s.Statuses {
		overdue := strconv.Itoa(ss.Overdue)
		if ss.Overdue > 0 {
			overdue = overdueStyle.Render(overdue)
		}
		fmt.Fprintf(w, "%s %6d %9d %8s\n", padRight(ss.Status, statusColW), ss.Count, ss.Subtasks, overdue)
	}

	fmt.Fprintln(w)
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-16s %6s", "PRIORITY", "COUNT")))
	for _, pc := range s.Priorities {
		fmt.Fprintf(w, "%s %6d\n", padRight(styledValue(pc.Priority, priorityStyles), statusColW), pc.Count)
	}
}

// ColumnsTable renders the kanban columns one after another.
func ColumnsTable(w io.Writer, cols []board.Column, l *board.Lookup, counts map[string]int, now time.Time) {
	for i, c := range cols {
		if i > 0 {
			fmt.Fprintln(w)
		}
		fmt.Fprintln(w, titleStyle.Render(fmt.Sprintf("%s (%d)", c.Status.Name, len(c.Tasks))))
		for _, t := range c.Tasks {
			line := "  " + ShortID(t.ID) + " " + t.Title
			if n := counts[t.ID]; n > 0 {
				line += dimStyle.Render(fmt.Sprintf(" [%d subtasks]", n))
			}
			if r := responsible(t, l); r != "" {
				line += " " + userStyle.Render("@"+r)
			}
			if t.Due != nil {
				line += " " + dueDisplay(t, l, now)
			}
			fmt.Fprintln(w, line)
		}
	}
}

// StatusTable lists the board's statuses in column order.
func StatusTable(w io.Writer, statuses []task.Status, l *board.Lookup) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-4s %-*s %-20s %s", "POS", IDWidth+2, "ID", "NAME", "DONE")))
	for _, s := range statuses {
		done := ""
		if s.ID == l.DoneID {
			done = doneStyle.Render("yes")
		}
		name := s.Name
		if s.Color != "" && colorEnabled {
			name = lipgloss.NewStyle().Foreground(lipgloss.Color(s.Color)).Render(name)
		}
		fmt.Fprintf(w, "%-4d %-*s %s %s\n", s.Position, IDWidth+2, ShortID(s.ID), padRight(name, 20), done) //nolint:mnd // column width
	}
}

// RoleTable lists role assignments.
func RoleTable(w io.Writer, roles []task.RoleAssignment, l *board.Lookup) {
	if len(roles) == 0 {
		fmt.Fprintln(os.Stderr, "No role assignments.")
		return
	}
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-*s %-20s %-8s %s", IDWidth+2, "ID", "USER", "ROLE", "PROJECT")))
	for _, r := range roles {
		fmt.Fprintf(w, "%-*s %s %-8s %s\n", IDWidth+2, ShortID(r.ID),
			padRight(userStyle.Render(l.UserName(r.UserID)), 20), r.Role, //nolint:mnd // column width
			stringOrDash(task.StringValue(r.ProjectID)))
	}
}

// UserTable lists users by name.
func UserTable(w io.Writer, users []task.User) {
	fmt.Fprintln(w, headerStyle.Render(fmt.Sprintf("%-*s %-20s %s", IDWidth+2, "ID", "NAME", "EMAIL")))
	for _, u := range users {
		fmt.Fprintf(w, "%-*s %s %s\n", IDWidth+2, ShortID(u.ID),
			padRight(userStyle.Render(u.Name), 20), stringOrDash(u.Email)) //nolint:mnd // column width
	}
}

// Messagef prints a simple formatted message line.
func Messagef(w io.Writer, format string, args ...any) {
	fmt.Fprintf(w, format+"\n", args...)
}

func printField(w io.Writer, label, value string) {
	fmt.Fprintf(w, "  %-12s %s\n", label+":", value)
}

// FormatDuration renders a duration as human-readable "Xd Yh" or "Xh Ym".
func FormatDuration(d time.Duration) string {
	const hoursPerDay = 24
	days := int(d.Hours()) / hoursPerDay
	hours := int(d.Hours()) % hoursPerDay
	if days > 0 {
		return strconv.Itoa(days) + "d " + strconv.Itoa(hours) + "h"
	}
	minutes := int(d.Minutes()) % 60 //nolint:mnd // 60 minutes per hour
	return strconv.Itoa(hours) + "h " + strconv.Itoa(minutes) + "m"
}

// DueLabel renders a due date with its distance from today, e.g.
// "2026-05-12 (in 3 days)".
func DueLabel(due, now time.Time) string {
	days := int(date.Truncate(due).Sub(date.Truncate(now)).Hours() / 24) //nolint:mnd // hours per day
	var rel string
	switch {
	case days == 0:
		rel = "today"
	case days == 1:
		rel = "tomorrow"
	case days == -1:
		rel = "yesterday"
	case days > 1:
		rel = "in " + humanize.Comma(int64(days)) + " days"
	default:
		rel = humanize.Comma(int64(-days)) + " days ago"
	}
	return date.String(due) + " (" + rel + ")"
}

func dueDisplay(t task.Task, l *board.Lookup, now time.Time) string {
	if t.Due == nil {
		return dimStyle.Render("--")
	}
	label := DueLabel(*t.Due, now)
	if isOverdue(t, l, now) {
		return overdueStyle.Render(label)
	}
	return label
}

// padRight pads s with spaces to the given visible width, accounting for ANSI
// escape codes that are invisible but consume bytes.
func padRight(s string, width int) string {
	visible := lipgloss.Width(s)
	if visible >= width {
		return s
	}
	return s + strings.Repeat(" ", width-visible)
}

func stringOrDash(s string) string {
	if s == "" {
		return dimStyle.Render("--")
	}
	return s
}

func orDash(s string) string {
	if s == "" {
		return "--"
	}
	return s
}

func responsible(t task.Task, l *board.Lookup) string {
	if t.ResponsibleID == nil {
		return ""
	}
	return l.UserName(*t.ResponsibleID)
}

func displayTitle(t task.Task) string {
	if t.ParentID != nil {
		return "↳ " + t.Title
	}
	return t.Title
}

// styledValue renders s using a matching style from the map, or returns s unchanged.
func styledValue(s string, styles map[string]lipgloss.Style) string {
	if st, ok := styles[s]; ok {
		return st.Render(s)
	}
	return s
}
