// Package tui implements the terminal kanban board.
package tui

import (
	"context"
	"strings"
	"time"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/textinput"
	"github.com/charmbracelet/bubbles/viewport"
	tea "github.com/charmbracelet/bubbletea"

	"github.com/twiced-technology-gmbh/taskboard/internal/board"
	"github.com/twiced-technology-gmbh/taskboard/internal/config"
	"github.com/twiced-technology-gmbh/taskboard/internal/engine"
	"github.com/twiced-technology-gmbh/taskboard/internal/task"
)

// view represents the current screen state.
type view int

const (
	viewBoard view = iota
	viewDrag
	viewComplete
	viewSearch
	viewConfirmDelete
	viewDetail
)

// Key and layout constants.
const (
	keyEsc   = "esc"
	keyEnter = "enter"

	boardChrome  = 2 // blank line + status bar below the column area
	errorChrome  = 1 // extra line when a notice or error is displayed
	tickInterval = 30 * time.Second
	noticeTTL    = 8 * time.Second
	doubleClick  = 500 * time.Millisecond
	activityRows = 5
)

// Board is the top-level bubbletea model. It renders engine projections and
// turns keys into engine intents; it never touches the backend itself.
type Board struct {
	ctx    context.Context
	engine *engine.Engine
	cfg    *config.Config
	now    func() time.Time

	filter   board.Filter
	sort     board.Sort // zero value keeps manual position order
	showDone bool

	columns   []column
	subtasks  map[string]int
	total     int
	activeCol int
	activeRow int
	view      view
	width     int
	height    int
	err       error
	notice    string
	noticeSeq int

	drag    *engine.Gesture
	dragCol int
	dragRow int

	search textinput.Model
	result textinput.Model
	attach textinput.Model
	detail viewport.Model

	deleteIDs      []string
	deleteTitle    string
	deleteSelected bool

	lastClickCol  int
	lastClickRow  int
	lastClickTime time.Time
}

// column is one status column as displayed.
type column struct {
	status    task.Status
	done      bool
	tasks     []task.Task
	hidden    int // completed tasks folded away
	scrollOff int // first visible row index
}

// NewBoard creates a Board over a loaded engine.
func NewBoard(ctx context.Context, e *engine.Engine, cfg *config.Config) *Board {
	b := &Board{
		ctx:      ctx,
		engine:   e,
		cfg:      cfg,
		now:      time.Now,
		showDone: cfg.TUI.ShowDone,
		search:   newInput("search title and description"),
		result:   newInput("what was the result?"),
		attach:   newInput("links or paths, comma-separated (optional)"),
	}
	b.search.Prompt = "/ "
	b.reload()
	return b
}

func newInput(placeholder string) textinput.Model {
	in := textinput.New()
	in.Placeholder = placeholder
	in.CharLimit = 500 //nolint:mnd // long enough for a sentence and a few links
	return in
}

// SetNow overrides the clock function used for due and age labels (for testing).
func (b *Board) SetNow(fn func() time.Time) {
	b.now = fn
}

// Init implements tea.Model.
func (b *Board) Init() tea.Cmd {
	return tickCmd()
}

// Update implements tea.Model.
func (b *Board) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.KeyMsg:
		return b.handleKey(msg)
	case tea.MouseMsg:
		return b.handleMouse(msg)
	case tea.WindowSizeMsg:
		b.width = msg.Width
		b.height = msg.Height
		b.detail.Width = msg.Width
		b.detail.Height = msg.Height - boardChrome
		b.ensureVisible(b.activeCol, b.activeRow)
		return b, nil
	case ReloadMsg:
		b.reload()
		return b, nil
	case NoticeMsg:
		b.notice = msg.Notice.Message()
		b.noticeSeq++
		seq := b.noticeSeq
		return b, tea.Tick(noticeTTL, func(time.Time) tea.Msg { return clearNoticeMsg{seq: seq} })
	case clearNoticeMsg:
		if msg.seq == b.noticeSeq {
			b.notice = ""
		}
		return b, nil
	case TickMsg:
		return b, tickCmd()
	}
	return b, nil
}

func (b *Board) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	if key.Matches(msg, key.NewBinding(key.WithKeys("ctrl+c"))) {
		b.cancelDrag()
		return b, tea.Quit
	}

	switch b.view {
	case viewBoard:
		return b.handleBoardKey(msg)
	case viewDrag:
		return b.handleDragKey(msg)
	case viewComplete:
		return b.handleCompleteKey(msg)
	case viewSearch:
		return b.handleSearchKey(msg)
	case viewConfirmDelete:
		return b.handleDeleteKey(msg)
	case viewDetail:
		return b.handleDetailKey(msg)
	}
	return b, nil
}

func (b *Board) handleBoardKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "q":
		return b, tea.Quit
	case keyEsc:
		if b.filter.Search == "" {
			return b, tea.Quit
		}
		b.search.SetValue("")
		b.filter.Search = ""
		b.reload()
	case "h", "left":
		if b.activeCol > 0 {
			b.activeCol--
			b.clampRow()
		}
	case "l", "right":
		if b.activeCol < len(b.columns)-1 {
			b.activeCol++
			b.clampRow()
		}
	case "j", "down":
		col := b.currentColumn()
		if col != nil && b.activeRow < len(col.tasks)-1 {
			b.activeRow++
			b.ensureVisible(b.activeCol, b.activeRow)
		}
	case "k", "up":
		if b.activeRow > 0 {
			b.activeRow--
			b.ensureVisible(b.activeCol, b.activeRow)
		}
	case keyEnter:
		b.openDetail()
	case "m", " ":
		b.startDrag()
	case "/":
		b.view = viewSearch
		return b, b.search.Focus()
	case "s":
		if b.sort.Field == "" {
			b.sort = board.Sort{Field: board.SortFields[0], Direction: board.Asc}
		} else {
			b.sort = b.sort.Next()
		}
		b.reload()
	case "S":
		if b.sort.Field != "" {
			b.sort = b.sort.Toggle()
			b.reload()
		}
	case "o":
		b.sort = board.Sort{}
		b.reload()
	case "c":
		b.showDone = !b.showDone
		b.reload()
	case "x":
		if t := b.selectedTask(); t != nil {
			b.engine.Selection().Toggle(t.ID)
		}
	case "a":
		b.engine.SelectAll(b.filter)
	case "u":
		b.engine.Selection().Clear()
	case "d":
		if t := b.selectedTask(); t != nil {
			b.deleteIDs = []string{t.ID}
			b.deleteTitle = t.Title
			b.deleteSelected = false
			b.view = viewConfirmDelete
		}
	case "D":
		if ids := b.engine.Selection().IDs(); len(ids) > 0 {
			b.deleteIDs = ids
			b.deleteTitle = ""
			b.deleteSelected = true
			b.view = viewConfirmDelete
		}
	case "r":
		if err := b.engine.Load(b.ctx); err != nil {
			b.err = err
		}
		b.reload()
	}
	return b, nil
}

// startDrag picks up the highlighted card.
func (b *Board) startDrag() {
	t := b.selectedTask()
	if t == nil {
		return
	}
	g, err := b.engine.BeginDrag(t.ID)
	if err != nil {
		b.err = err
		return
	}
	b.err = nil
	b.drag = g
	b.dragCol, b.dragRow = b.activeCol, b.activeRow
	b.view = viewDrag
	b.clampDragRow()
}

func (b *Board) handleDragKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEsc, "q":
		b.cancelDrag()
		b.view = viewBoard
	case "h", "left":
		if b.dragCol > 0 {
			b.dragCol--
			b.clampDragRow()
		}
	case "l", "right":
		if b.dragCol < len(b.columns)-1 {
			b.dragCol++
			b.clampDragRow()
		}
	case "j", "down":
		if b.dragRow < b.dropSlots(b.dragCol)-1 {
			b.dragRow++
			b.ensureVisible(b.dragCol, b.dragRow)
		}
	case "k", "up":
		if b.dragRow > 0 {
			b.dragRow--
			b.ensureVisible(b.dragCol, b.dragRow)
		}
	case keyEnter, "m", " ":
		return b.drop()
	}
	return b, nil
}

// dropSlots is the number of drop targets in a column: before each card of
// a manually ordered column, plus the end of the column.
func (b *Board) dropSlots(colIdx int) int {
	if b.sort.Field != "" {
		return 1
	}
	return len(b.columns[colIdx].tasks) + 1
}

func (b *Board) clampDragRow() {
	if n := b.dropSlots(b.dragCol); b.dragRow >= n {
		b.dragRow = n - 1
	}
	b.ensureVisible(b.dragCol, b.dragRow)
}

// drop releases the dragged card on the targeted slot.
func (b *Board) drop() (tea.Model, tea.Cmd) {
	g := b.drag
	col := b.columns[b.dragCol]
	var err error
	switch {
	case b.sort.Field != "" || b.dragRow >= len(col.tasks):
		_, err = g.DropOnColumn(b.ctx, col.status.ID)
	case col.tasks[b.dragRow].ID == g.TaskID():
		g.Cancel()
	default:
		_, err = g.DropOnTask(b.ctx, col.tasks[b.dragRow].ID, engine.Before)
	}
	if err != nil {
		b.err = err
		b.cancelDrag()
		b.view = viewBoard
		return b, nil
	}
	b.err = nil

	if g.State() == engine.AwaitingCompletion {
		b.result.SetValue("")
		b.attach.SetValue("")
		b.attach.Blur()
		b.view = viewComplete
		return b, b.result.Focus()
	}
	b.finishDrag()
	return b, nil
}

func (b *Board) finishDrag() {
	id := b.drag.TaskID()
	b.drag = nil
	b.view = viewBoard
	b.reload()
	b.focus(id)
}

func (b *Board) cancelDrag() {
	if b.drag == nil {
		return
	}
	b.drag.Cancel()
	b.drag = nil
}

func (b *Board) handleCompleteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEsc:
		b.cancelDrag()
		b.err = nil
		b.view = viewBoard
		return b, nil
	case "tab", "shift+tab":
		if b.result.Focused() {
			b.result.Blur()
			return b, b.attach.Focus()
		}
		b.attach.Blur()
		return b, b.result.Focus()
	case keyEnter:
		_, err := b.drag.Complete(b.ctx, b.result.Value(), splitList(b.attach.Value()))
		if err != nil {
			b.err = err
			return b, nil
		}
		b.err = nil
		b.finishDrag()
		return b, nil
	}

	var cmd tea.Cmd
	if b.result.Focused() {
		b.result, cmd = b.result.Update(msg)
	} else {
		b.attach, cmd = b.attach.Update(msg)
	}
	return b, cmd
}

func (b *Board) handleSearchKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEnter:
		b.search.Blur()
		b.view = viewBoard
		return b, nil
	case keyEsc:
		b.search.SetValue("")
		b.search.Blur()
		b.filter.Search = ""
		b.view = viewBoard
		b.reload()
		return b, nil
	}
	var cmd tea.Cmd
	b.search, cmd = b.search.Update(msg)
	if q := strings.TrimSpace(b.search.Value()); q != b.filter.Search {
		b.filter.Search = q
		b.reload()
	}
	return b, cmd
}

func (b *Board) handleDeleteKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "y", "Y":
		b.executeDelete()
	case "n", "N", keyEsc, "q":
		b.view = viewBoard
	}
	return b, nil
}

// executeDelete removes the confirmed tasks. Persistence failures come back
// as notices after the tasks reappear.
func (b *Board) executeDelete() {
	var err error
	if b.deleteSelected {
		_, err = b.engine.DeleteSelected(b.ctx)
	} else {
		_, err = b.engine.Delete(b.ctx, b.deleteIDs...)
	}
	b.err = err
	b.deleteIDs, b.deleteTitle, b.deleteSelected = nil, "", false
	b.view = viewBoard
	b.reload()
}

func (b *Board) handleDetailKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case keyEsc, "q", keyEnter:
		b.view = viewBoard
		return b, nil
	}
	var cmd tea.Cmd
	b.detail, cmd = b.detail.Update(msg)
	return b, cmd
}

// openDetail shows the highlighted task with its description, subtasks and
// recent activity.
func (b *Board) openDetail() {
	t := b.selectedTask()
	if t == nil {
		return
	}
	entries, err := b.engine.Activity(b.ctx, t.ID, activityRows)
	if err != nil {
		b.err = err
	}
	l := b.engine.Lookup()
	subtasks := board.Subtasks(b.engine.Tasks(), t.ID, l)
	b.detail = viewport.New(b.width, b.height-boardChrome)
	b.detail.SetContent(b.renderDetail(*t, l, subtasks, entries))
	b.view = viewDetail
}

// handleMouse selects the clicked card; a double click opens it.
func (b *Board) handleMouse(msg tea.MouseMsg) (tea.Model, tea.Cmd) {
	if msg.Action != tea.MouseActionPress || msg.Button != tea.MouseButtonLeft {
		return b, nil
	}
	if b.view != viewBoard || len(b.columns) == 0 {
		return b, nil
	}

	colWidth := b.columnWidth()
	clickedCol := msg.X / colWidth
	if clickedCol >= len(b.columns) {
		return b, nil
	}

	col := &b.columns[clickedCol]
	lineY := msg.Y - 1
	if col.scrollOff > 0 {
		lineY-- // "↑ N more" indicator
	}
	clickedRow := -1
	cardLine := 0
	for rowIdx := col.scrollOff; rowIdx < len(col.tasks) && lineY >= 0; rowIdx++ {
		cardH := b.cardHeight(col.tasks[rowIdx], colWidth)
		if lineY < cardLine+cardH {
			clickedRow = rowIdx
			break
		}
		cardLine += cardH
	}

	b.activeCol = clickedCol
	if clickedRow < 0 {
		b.clampRow()
		return b, nil
	}

	now := b.now()
	isDoubleClick := clickedCol == b.lastClickCol &&
		clickedRow == b.lastClickRow &&
		now.Sub(b.lastClickTime) < doubleClick

	b.activeRow = clickedRow
	b.lastClickCol = clickedCol
	b.lastClickRow = clickedRow
	b.lastClickTime = now
	b.ensureVisible(b.activeCol, b.activeRow)

	if isDoubleClick {
		b.openDetail()
	}
	return b, nil
}

// reload rebuilds the columns from the engine, keeping the highlighted task
// and each column's scroll offset.
func (b *Board) reload() {
	cursor := ""
	if t := b.selectedTask(); t != nil {
		cursor = t.ID
	}
	offsets := make(map[string]int, len(b.columns))
	for _, c := range b.columns {
		offsets[c.status.ID] = c.scrollOff
	}

	l := b.engine.Lookup()
	cols := b.engine.Columns(b.filter)
	b.subtasks = board.SubtaskCounts(b.engine.Tasks())
	b.columns = make([]column, len(cols))
	b.total = 0
	for i, c := range cols {
		col := column{status: c.Status, done: c.Done, tasks: c.Tasks, scrollOff: offsets[c.Status.ID]}
		if b.sort.Field != "" {
			b.sort.Apply(col.tasks, l)
		}
		if c.Done && !b.showDone {
			col.hidden = len(col.tasks)
			col.tasks = nil
		}
		b.total += len(c.Tasks)
		b.columns[i] = col
	}

	if b.activeCol >= len(b.columns) {
		b.activeCol = max(len(b.columns)-1, 0)
	}
	if cursor != "" {
		b.focus(cursor)
	}
	b.clampRow()
}

// focus highlights the task with the given id if it is displayed.
func (b *Board) focus(id string) {
	for ci, c := range b.columns {
		for ri, t := range c.tasks {
			if t.ID == id {
				b.activeCol, b.activeRow = ci, ri
				b.ensureVisible(ci, ri)
				return
			}
		}
	}
}

func (b *Board) currentColumn() *column {
	if b.activeCol >= 0 && b.activeCol < len(b.columns) {
		return &b.columns[b.activeCol]
	}
	return nil
}

func (b *Board) selectedTask() *task.Task {
	col := b.currentColumn()
	if col == nil || len(col.tasks) == 0 {
		return nil
	}
	if b.activeRow >= 0 && b.activeRow < len(col.tasks) {
		return &col.tasks[b.activeRow]
	}
	return nil
}

func (b *Board) clampRow() {
	col := b.currentColumn()
	if col == nil || len(col.tasks) == 0 {
		b.activeRow = 0
		return
	}
	if b.activeRow >= len(col.tasks) {
		b.activeRow = len(col.tasks) - 1
	}
	b.ensureVisible(b.activeCol, b.activeRow)
}

// chromeHeight returns the number of lines consumed by non-card elements below
// the column area: blank line + status bar (+ one line for a notice or error).
func (b *Board) chromeHeight() int {
	h := boardChrome
	if b.err != nil || b.notice != "" {
		h += errorChrome
	}
	if b.view == viewSearch || b.filter.Search != "" {
		h++
	}
	return h
}

// visibleCardsForColumn returns the number of cards that fit in the column,
// accounting for scroll indicator lines ("↑ N more" / "↓ N more") that
// consume vertical space.
func (b *Board) visibleCardsForColumn(colIdx int, width int) int {
	col := &b.columns[colIdx]
	budget := b.height - b.chromeHeight()
	if budget < 1 {
		return 1
	}

	// Header line, plus the drop slot marker while dragging into this column.
	avail := budget - 1
	if b.view == viewDrag && colIdx == b.dragCol {
		avail--
	}
	if col.scrollOff > 0 {
		avail--
	}

	n := b.fitCardsInHeight(col, avail, width)
	if col.scrollOff+n < len(col.tasks) {
		n = b.fitCardsInHeight(col, avail-1, width)
		if n < 1 {
			n = 1
		}
	}
	return n
}

// ensureVisible adjusts a column's scroll offset so row is within the
// visible window.
func (b *Board) ensureVisible(colIdx, row int) {
	if colIdx < 0 || colIdx >= len(b.columns) {
		return
	}
	col := &b.columns[colIdx]
	if row >= len(col.tasks) {
		row = len(col.tasks) - 1
	}
	if row < 0 {
		col.scrollOff = 0
		return
	}
	w := b.columnWidth()

	for range len(col.tasks) + 1 {
		maxVis := b.visibleCardsForColumn(colIdx, w)

		switch {
		case row >= col.scrollOff+maxVis:
			col.scrollOff = row - maxVis + 1
		case row < col.scrollOff:
			col.scrollOff = row
		default:
			return
		}
	}
}

func (b *Board) fitCardsInHeight(col *column, avail, width int) int {
	if len(col.tasks) == 0 || avail < 1 {
		return 1
	}

	used := 0
	count := 0
	for i := col.scrollOff; i < len(col.tasks); i++ {
		cardLines := b.cardHeight(col.tasks[i], width)
		if count > 0 && used+cardLines > avail {
			break
		}
		count++
		used += cardLines
		if used >= avail {
			break
		}
	}
	return max(count, 1)
}

// --- Messages ---

// ReloadMsg asks the board to re-read the engine after a change.
type ReloadMsg struct{}

// NoticeMsg carries a rolled-back mutation to the notice line.
type NoticeMsg struct{ Notice engine.Notice }

type clearNoticeMsg struct{ seq int }

// TickMsg is sent periodically to refresh due and age labels.
type TickMsg struct{}

func tickCmd() tea.Cmd {
	return tea.Tick(tickInterval, func(time.Time) tea.Msg { return TickMsg{} })
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}
