package ui

import (
	"context"
	"errors"
	"fmt"

	"github.com/charmbracelet/bubbles/help"
	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/desertthunder/redlist/internal/shared"
	"github.com/desertthunder/redlist/internal/tasks"
)

const (
	defaultWidth  = 80
	defaultHeight = 20
)

// BufferFunc returns the upload buffer of the account, in bytes.
type BufferFunc func(ctx context.Context) (int64, error)

// ReviewModel is the download review state.
type ReviewModel struct {
	ctx       context.Context
	items     []reviewItem
	list      list.Model
	buffer    BufferFunc
	available int64
	checked   bool
	bufferErr error
	confirmed bool
	aborted   bool
	help      help.Model
	keys      keyMap
}

// NewReviewModel creates a review of set with every row selected.
//
// A nil buffer skips the buffer check.
func NewReviewModel(ctx context.Context, set []tasks.Resolution, buffer BufferFunc) *ReviewModel {
	items := make([]reviewItem, len(set))
	listItems := make([]list.Item, len(set))
	for i, res := range set {
		items[i] = reviewItem{res: res, selected: true}
		listItems[i] = items[i]
	}

	l := list.New(listItems, reviewDelegate{}, defaultWidth, defaultHeight)
	l.Title = fmt.Sprintf("Review %d downloads", len(set))
	l.SetFilteringEnabled(false)
	l.SetShowHelp(false)
	l.SetShowStatusBar(false)

	return &ReviewModel{
		ctx:    ctx,
		items:  items,
		list:   l,
		buffer: buffer,
		help:   help.New(),
		keys:   newKeyMap(),
	}
}

// Init starts the buffer check.
func (m *ReviewModel) Init() tea.Cmd {
	if m.buffer == nil {
		return nil
	}
	return m.checkBuffer()
}

// Update handles incoming messages and updates the model state.
func (m *ReviewModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.list.SetSize(msg.Width-2, msg.Height-4)
		return m, nil

	case tea.KeyMsg:
		return m.handleKeys(msg)

	case Msg:
		if msg.kind == MsgBufferChecked {
			r := msg.data.(bufferResult)
			m.available, m.bufferErr, m.checked = r.buffer, r.err, true
		}
		return m, nil
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *ReviewModel) handleKeys(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch {
	case key.Matches(msg, m.keys.quit):
		m.aborted = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.confirm):
		m.confirmed = true
		return m, tea.Quit
	case key.Matches(msg, m.keys.toggle):
		return m, m.toggle(m.list.Index())
	case key.Matches(msg, m.keys.all):
		return m, m.toggleAll()
	}

	var cmd tea.Cmd
	m.list, cmd = m.list.Update(msg)
	return m, cmd
}

func (m *ReviewModel) toggle(i int) tea.Cmd {
	if i < 0 || i >= len(m.items) {
		return nil
	}
	m.items[i].selected = !m.items[i].selected
	return m.list.SetItem(i, m.items[i])
}

// toggleAll selects every row unless all are already selected, in which case it clears them.
func (m *ReviewModel) toggleAll() tea.Cmd {
	target := len(m.Selected()) != len(m.items)
	cmds := make([]tea.Cmd, 0, len(m.items))
	for i := range m.items {
		m.items[i].selected = target
		cmds = append(cmds, m.list.SetItem(i, m.items[i]))
	}
	return tea.Batch(cmds...)
}

func (m *ReviewModel) checkBuffer() tea.Cmd {
	return func() tea.Msg {
		buffer, err := m.buffer(m.ctx)
		return bufferCheckedMsg(buffer, err)
	}
}

// Selected returns the selected resolutions in list order.
func (m *ReviewModel) Selected() []tasks.Resolution {
	var set []tasks.Resolution
	for _, it := range m.items {
		if it.selected {
			set = append(set, it.res)
		}
	}
	return set
}

// Confirmed reports whether the review ended with enter.
func (m *ReviewModel) Confirmed() bool { return m.confirmed }

// Aborted reports whether the review was quit.
func (m *ReviewModel) Aborted() bool { return m.aborted }

// View renders the list with a size footer.
func (m *ReviewModel) View() string {
	if m.confirmed || m.aborted {
		return ""
	}
	return fmt.Sprintf("%s\n%s\n%s", m.list.View(), m.footer(), m.help.ShortHelpView(m.keys.ShortHelp()))
}

func (m *ReviewModel) footer() string {
	selected := m.Selected()
	size := tasks.TotalSize(selected)
	line := fmt.Sprintf("%d/%d selected • %s", len(selected), len(m.items), humanize.IBytes(uint64(size)))

	switch {
	case m.buffer == nil:
		return styles.ok.Render(line)
	case !m.checked:
		return line + styles.help.Render(" • checking buffer...")
	case m.bufferErr != nil:
		return line + styles.err.Render(fmt.Sprintf(" • buffer check failed: %v", m.bufferErr))
	case size >= m.available:
		return line + styles.err.Render(fmt.Sprintf(" • exceeds buffer of %s", humanize.IBytes(uint64(max(m.available, 0)))))
	default:
		return line + styles.ok.Render(fmt.Sprintf(" • %s buffer left", humanize.IBytes(uint64(m.available-size))))
	}
}

// RunReview shows the review for set and returns the confirmed selection.
//
// Quitting the review fails with [shared.ErrAborted].
func RunReview(ctx context.Context, set []tasks.Resolution, buffer BufferFunc, opts ...tea.ProgramOption) ([]tasks.Resolution, error) {
	model := NewReviewModel(ctx, set, buffer)
	p := tea.NewProgram(model, append([]tea.ProgramOption{tea.WithContext(ctx)}, opts...)...)

	final, err := p.Run()
	if err != nil {
		if errors.Is(err, tea.ErrProgramKilled) && ctx.Err() != nil {
			return nil, ctx.Err()
		}
		return nil, fmt.Errorf("review failed: %w", err)
	}

	m := final.(*ReviewModel)
	if !m.Confirmed() {
		return nil, shared.ErrAborted
	}
	return m.Selected(), nil
}
