package ui

import (
	"context"
	"errors"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/desertthunder/redlist/internal/models"
	"github.com/desertthunder/redlist/internal/tasks"
)

func found(id int, artist, title string, size int64) tasks.Resolution {
	return tasks.Resolution{
		Track: models.Track{Artist: artist, Title: title},
		Phase: tasks.PhaseFound,
		Release: &models.Release{
			ID:        id,
			Name:      title,
			Artifacts: []models.Artifact{{ID: id * 10, Format: "FLAC", Encoding: "Lossless", Media: "CD", Size: size}},
		},
	}
}

func reviewSet() []tasks.Resolution {
	return []tasks.Resolution{
		found(1, "Boards of Canada", "Music Has the Right to Children", 300<<20),
		found(2, "Up, Bustle & Out", "One Colour Just Reflects Another", 200<<20),
		found(3, "Sigur Rós", "Takk...", 400<<20),
	}
}

func press(m *ReviewModel, keys ...tea.KeyMsg) tea.Cmd {
	var cmd tea.Cmd
	for _, k := range keys {
		_, cmd = m.Update(k)
	}
	return cmd
}

var (
	space = tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	down  = tea.KeyMsg{Type: tea.KeyDown}
	enter = tea.KeyMsg{Type: tea.KeyEnter}
	quit  = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'q'}}
	all   = tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune{'a'}}
)

func ids(set []tasks.Resolution) []int {
	out := make([]int, len(set))
	for i, res := range set {
		out[i] = res.Release.ID
	}
	return out
}

func TestReviewModel(t *testing.T) {
	ctx := context.Background()

	t.Run("Starts Selected", func(t *testing.T) {
		m := NewReviewModel(ctx, reviewSet(), nil)
		if got := len(m.Selected()); got != 3 {
			t.Errorf("expected every row selected, got %d", got)
		}
		if m.Init() != nil {
			t.Error("no buffer check should be scheduled without a BufferFunc")
		}
	})

	t.Run("Toggle Row", func(t *testing.T) {
		m := NewReviewModel(ctx, reviewSet(), nil)
		press(m, down, space)

		if got := ids(m.Selected()); len(got) != 2 || got[0] != 1 || got[1] != 3 {
			t.Errorf("expected rows 1 and 3 selected, got %v", got)
		}
		if !strings.Contains(m.View(), "[ ] One Colour Just Reflects Another") {
			t.Errorf("toggled row should render unchecked:\n%s", m.View())
		}

		press(m, space)
		if len(m.Selected()) != 3 {
			t.Errorf("second toggle should reselect the row")
		}
	})

	t.Run("Toggle All", func(t *testing.T) {
		m := NewReviewModel(ctx, reviewSet(), nil)
		press(m, all)
		if len(m.Selected()) != 0 {
			t.Errorf("a with every row selected should clear the selection")
		}

		press(m, space, all)
		if len(m.Selected()) != 3 {
			t.Errorf("a with a partial selection should select every row")
		}
	})

	t.Run("Confirm", func(t *testing.T) {
		m := NewReviewModel(ctx, reviewSet(), nil)
		press(m, space)
		cmd := press(m, enter)

		if !m.Confirmed() || m.Aborted() {
			t.Errorf("enter should confirm")
		}
		if cmd == nil {
			t.Fatal("enter should quit the program")
		}
		if _, ok := cmd().(tea.QuitMsg); !ok {
			t.Error("expected a quit message")
		}
		if got := ids(m.Selected()); len(got) != 2 || got[0] != 2 {
			t.Errorf("unexpected selection %v", got)
		}
	})

	t.Run("Abort", func(t *testing.T) {
		m := NewReviewModel(ctx, reviewSet(), nil)
		press(m, quit)
		if !m.Aborted() || m.Confirmed() {
			t.Error("q should abort")
		}
	})

	t.Run("Buffer Check", func(t *testing.T) {
		tests := []struct {
			name   string
			buffer int64
			err    error
			want   string
		}{
			{"Enough", 1 << 30, nil, "124 MiB buffer left"},
			{"Exceeded", 500 << 20, nil, "exceeds buffer of 500 MiB"},
			{"Failed", 0, errors.New("boom"), "buffer check failed: boom"},
		}

		for _, tt := range tests {
			t.Run(tt.name, func(t *testing.T) {
				m := NewReviewModel(ctx, reviewSet(), func(context.Context) (int64, error) {
					return tt.buffer, tt.err
				})
				if !strings.Contains(m.View(), "checking buffer") {
					t.Errorf("footer should show the pending check:\n%s", m.View())
				}

				cmd := m.Init()
				if cmd == nil {
					t.Fatal("expected a buffer check command")
				}
				m.Update(cmd())

				if !strings.Contains(m.View(), tt.want) {
					t.Errorf("footer missing %q:\n%s", tt.want, m.View())
				}
			})
		}
	})
}
