// Copyright (c) 2026 Australian BioCommons.
// SPDX-License-Identifier: Apache-2.0

package command

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
)

// pickStack shows names and returns the one chosen, or "" if the picker was
// dismissed.
func pickStack(names []string) (string, error) {
	m, err := tea.NewProgram(pickerModel{items: names}).Run()
	if err != nil {
		return "", fmt.Errorf("stack picker failed: %w", err)
	}
	return m.(pickerModel).chosen, nil
}

type pickerModel struct {
	items  []string
	cursor int
	chosen string
}

func (m pickerModel) Init() tea.Cmd { return nil }

func (m pickerModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	if key, ok := msg.(tea.KeyMsg); ok {
		switch key.String() {
		case "q", "esc", "ctrl+c":
			m.chosen = ""
			return m, tea.Quit
		case "up", "k":
			if m.cursor > 0 {
				m.cursor--
			}
		case "down", "j":
			if m.cursor < len(m.items)-1 {
				m.cursor++
			}
		case "enter":
			if len(m.items) > 0 {
				m.chosen = m.items[m.cursor]
			}
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m pickerModel) View() string {
	var b strings.Builder
	b.WriteString("Select a stack:\n\n")
	for i, name := range m.items {
		cursor := " "
		if m.cursor == i {
			cursor = ">"
		}
		fmt.Fprintf(&b, "%s %s\n", cursor, name)
	}
	b.WriteString("\nUP/DOWN: move, ENTER: select, Q/ESCAPE: quit\n")
	return b.String()
}
