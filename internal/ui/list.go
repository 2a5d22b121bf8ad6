package ui

import (
	"fmt"
	"io"

	"github.com/charmbracelet/bubbles/list"
	tea "github.com/charmbracelet/bubbletea"
	"github.com/dustin/go-humanize"

	"github.com/desertthunder/redlist/internal/tasks"
)

var (
	_ list.Item         = reviewItem{}
	_ list.ItemDelegate = reviewDelegate{}
)

// reviewItem wraps a found [tasks.Resolution] to implement [list.Item].
type reviewItem struct {
	res      tasks.Resolution
	selected bool
}

func (i reviewItem) FilterValue() string { return i.res.Track.String() }

func (i reviewItem) Title() string {
	if i.res.Release == nil {
		return i.res.Track.String()
	}
	return i.res.Release.DisplayName()
}

func (i reviewItem) Description() string {
	a, ok := i.res.Artifact()
	if !ok {
		return i.res.Track.String()
	}
	return fmt.Sprintf("%s • %s • %s", i.res.Track, a.Descriptor(), humanize.IBytes(uint64(a.Size)))
}

// reviewDelegate renders a [reviewItem] as a checkbox row with its artifact on a second line.
type reviewDelegate struct{}

func (d reviewDelegate) Height() int                             { return 2 }
func (d reviewDelegate) Spacing() int                            { return 0 }
func (d reviewDelegate) Update(_ tea.Msg, _ *list.Model) tea.Cmd { return nil }

func (d reviewDelegate) Render(w io.Writer, m list.Model, index int, item list.Item) {
	it, ok := item.(reviewItem)
	if !ok {
		return
	}

	box := "[ ]"
	if it.selected {
		box = "[x]"
	}
	cursor := "  "
	title := it.Title()
	if index == m.Index() {
		cursor = "> "
		title = styles.selected.Render(title)
	}

	fmt.Fprintf(w, "%s%s %s\n      %s", cursor, box, title, styles.dim.Render(it.Description()))
}
