package ui

import (
	tea "github.com/charmbracelet/bubbletea"
)

// MsgKind enumerates all message types in the review.
type MsgKind int

// Msg represents all possible messages in the TUI (Elm-style message union).
type Msg struct {
	kind MsgKind
	data any
}

var (
	_ tea.Msg = Msg{}
)

const (
	MsgBufferChecked MsgKind = iota
)

type bufferResult struct {
	buffer int64
	err    error
}

// bufferCheckedMsg is the constructor for [MsgBufferChecked]
func bufferCheckedMsg(buffer int64, err error) Msg {
	return Msg{kind: MsgBufferChecked, data: bufferResult{buffer, err}}
}
