// Package board is an interactive terminal view of the task list that talks
// to the running server over HTTP.
package board

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/table"
	"github.com/charmbracelet/bubbles/textinput"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/charmbracelet/lipgloss"

	"github.com/nhle/smstask/internal/keys"
	"github.com/nhle/smstask/internal/model"
	"github.com/nhle/smstask/internal/store"
	"github.com/nhle/smstask/internal/theme"
	"github.com/nhle/smstask/internal/ui"
)

// Tasks is the subset of client.Client the board needs.
type Tasks interface {
	List(ctx context.Context) ([]model.Task, error)
	Create(ctx context.Context, owner, description string) (model.Summary, error)
	Delete(ctx context.Context, id int) (model.Summary, bool, error)
	Update(ctx context.Context, id int, fields map[string]any) (int, error)
}

// TasksLoadedMsg carries the result of a list request.
type TasksLoadedMsg struct {
	Tasks []model.Task
	Err   error
}

// ActionDoneMsg reports a finished create, delete or status change.
type ActionDoneMsg struct {
	Notice string
	Err    error
}

const requestTimeout = 10 * time.Second

type mode int

const (
	modeBrowse mode = iota
	modeInput
)

// Model is the board's bubbletea model.
type Model struct {
	tasks  Tasks
	owner  string
	keys   *keys.KeyMap
	layout ui.Layout

	table table.Model
	input textinput.Model
	help  help.Model

	mode     mode
	rows     []model.Task
	notice   string
	err      error
	showHelp bool
}

// New creates a board that creates tasks on behalf of owner.
func New(tasks Tasks, owner string, k *keys.KeyMap, width, height int) Model {
	t := table.New(
		table.WithColumns(columns(width)),
		table.WithFocused(true),
	)
	styles := table.DefaultStyles()
	styles.Header = styles.Header.Bold(true).Foreground(theme.ColorBlue)
	styles.Selected = styles.Selected.Foreground(theme.ColorWhite).Background(theme.ColorSubtle)
	t.SetStyles(styles)

	in := textinput.New()
	in.Placeholder = "what needs doing?"
	in.Prompt = "new > "
	in.CharLimit = model.MaxDescriptionLen

	m := Model{
		tasks: tasks,
		owner: owner,
		keys:  k,
		table: t,
		input: in,
		help:  help.New(),
	}
	m.SetSize(width, height)
	return m
}

func columns(width int) []table.Column {
	desc := max(width-4-10-16-12, 20)
	return []table.Column{
		{Title: "ID", Width: 4},
		{Title: "Status", Width: 10},
		{Title: "Owner", Width: 16},
		{Title: "Description", Width: desc},
	}
}

func (m Model) Init() tea.Cmd {
	return m.load()
}

func (m Model) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.SetSize(msg.Width, msg.Height)
		return m, nil

	case TasksLoadedMsg:
		if msg.Err != nil {
			m.err = msg.Err
			return m, nil
		}
		m.err = nil
		m.setRows(msg.Tasks)
		return m, nil

	case ActionDoneMsg:
		m.notice, m.err = msg.Notice, msg.Err
		return m, m.load()

	case tea.KeyMsg:
		if m.mode == modeInput {
			return m.handleInputKeys(msg)
		}
		return m.handleBrowseKeys(msg)
	}

	return m, nil
}

func (m Model) handleInputKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Confirm):
		description := m.input.Value()
		m.closeInput()
		return m, m.create(description)

	case key.Matches(msg, m.keys.Cancel):
		m.closeInput()
		return m, nil
	}

	var cmd tea.Cmd
	m.input, cmd = m.input.Update(msg)
	return m, cmd
}

func (m Model) handleBrowseKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.Quit):
		return m, tea.Quit

	case key.Matches(msg, m.keys.New):
		m.mode = modeInput
		m.notice, m.err = "", nil
		m.table.Blur()
		return m, m.input.Focus()

	case key.Matches(msg, m.keys.Delete):
		if task, ok := m.selected(); ok {
			return m, m.remove(task.ID)
		}
		return m, nil

	case key.Matches(msg, m.keys.Toggle):
		if task, ok := m.selected(); ok {
			return m, m.toggle(task)
		}
		return m, nil

	case key.Matches(msg, m.keys.Refresh):
		return m, m.load()

	case key.Matches(msg, m.keys.Help):
		m.showHelp = !m.showHelp
		m.help.ShowAll = m.showHelp
		return m, nil
	}

	var cmd tea.Cmd
	m.table, cmd = m.table.Update(msg)
	return m, cmd
}

func (m *Model) closeInput() {
	m.mode = modeBrowse
	m.input.Reset()
	m.input.Blur()
	m.table.Focus()
}

func (m *Model) setRows(tasks []model.Task) {
	m.rows = tasks
	rows := make([]table.Row, len(tasks))
	for i, t := range tasks {
		rows[i] = table.Row{strconv.Itoa(t.ID), t.Status, t.Owner, t.Description}
	}
	m.table.SetRows(rows)
	if c := m.table.Cursor(); c >= len(rows) && len(rows) > 0 {
		m.table.SetCursor(len(rows) - 1)
	}
}

func (m Model) selected() (model.Task, bool) {
	i := m.table.Cursor()
	if i < 0 || i >= len(m.rows) {
		return model.Task{}, false
	}
	return m.rows[i], true
}

// Selected returns the task under the cursor.
func (m Model) Selected() (model.Task, bool) {
	return m.selected()
}

// SetSize updates the board dimensions.
func (m *Model) SetSize(width, height int) {
	m.layout = ui.NewLayout(width, height)
	m.help.Width = width

	// Panel border, prompt line and help take rows from the table.
	m.table.SetColumns(columns(width))
	m.table.SetWidth(max(width-4, 0))
	m.table.SetHeight(max(m.layout.ContentHeight()-5, 3))
	m.input.Width = max(width-12, 10)
}

func (m Model) View() string {
	body := m.table.View()
	if m.mode == modeInput {
		body = lipgloss.JoinVertical(lipgloss.Left, body, m.input.View())
	}
	if len(m.rows) == 0 && m.mode == modeBrowse {
		body = lipgloss.JoinVertical(lipgloss.Left, body,
			theme.HelpStyle.Render("No tasks yet. Press n to add one."))
	}

	var line string
	switch {
	case m.err != nil:
		line = theme.ErrorStyle.Render(describe(m.err))
	case m.notice != "":
		line = theme.NoticeStyle.Render(m.notice)
	}

	content := lipgloss.JoinVertical(lipgloss.Left,
		theme.PanelStyle.Render(body),
		line,
	)
	if m.showHelp {
		content = lipgloss.JoinVertical(lipgloss.Left, content, m.help.View(m.keys))
	}

	return m.layout.RenderWithFrame(
		m.layout.RenderHeader("smstask", len(m.rows)),
		content,
		m.layout.RenderStatusBar(m.help.ShortHelpView(m.keys.ShortHelp())),
	)
}

// describe turns a client error into a short line for the status area.
func describe(err error) string {
	switch {
	case errors.Is(err, store.ErrCapacityExceeded):
		return fmt.Sprintf("All %d slots are taken. Delete a task first.", model.MaxSlots)
	case errors.Is(err, store.ErrValidation):
		return fmt.Sprintf("A task needs a description of at most %d characters.", model.MaxDescriptionLen)
	default:
		return "Error: " + err.Error()
	}
}

func (m Model) load() tea.Cmd {
	tasks := m.tasks
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		list, err := tasks.List(ctx)
		return TasksLoadedMsg{Tasks: list, Err: err}
	}
}

func (m Model) create(description string) tea.Cmd {
	tasks, owner := m.tasks, m.owner
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		created, err := tasks.Create(ctx, owner, description)
		if err != nil {
			return ActionDoneMsg{Err: err}
		}
		return ActionDoneMsg{Notice: fmt.Sprintf("Created task %d.", created.ID)}
	}
}

func (m Model) remove(id int) tea.Cmd {
	tasks := m.tasks
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		deleted, found, err := tasks.Delete(ctx, id)
		switch {
		case err != nil:
			return ActionDoneMsg{Err: err}
		case !found:
			return ActionDoneMsg{Notice: fmt.Sprintf("Task %d was already gone.", id)}
		default:
			return ActionDoneMsg{Notice: fmt.Sprintf("Deleted task %d.", deleted.ID)}
		}
	}
}

func (m Model) toggle(task model.Task) tea.Cmd {
	next := model.StatusDone
	if task.Status == model.StatusDone {
		next = model.StatusPending
	}
	tasks := m.tasks
	return func() tea.Msg {
		ctx, cancel := context.WithTimeout(context.Background(), requestTimeout)
		defer cancel()
		if _, err := tasks.Update(ctx, task.ID, map[string]any{"status": next}); err != nil {
			return ActionDoneMsg{Err: err}
		}
		return ActionDoneMsg{Notice: fmt.Sprintf("Task %d marked %s.", task.ID, next)}
	}
}
