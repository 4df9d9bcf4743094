package interactive

import (
	"fmt"
	"strings"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/fatih/color"

	"github.com/safepay-org/safepay/internal/usecase"
)

// multiSelectModel is the bubbletea model for picking batch documents
type multiSelectModel struct {
	items     []usecase.DocumentChoice
	cursor    int
	selected  map[int]bool
	title     string
	done      bool
	cancelled bool
}

func initialMultiSelectModel(docs []usecase.DocumentChoice, title string) multiSelectModel {
	return multiSelectModel{
		items:    docs,
		selected: make(map[int]bool, len(docs)),
		title:    title,
	}
}

func (m multiSelectModel) Init() tea.Cmd {
	return nil
}

func (m multiSelectModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	key, ok := msg.(tea.KeyMsg)
	if !ok {
		return m, nil
	}
	switch key.String() {
	case "ctrl+c", "q", "esc":
		m.done, m.cancelled = true, true
		return m, tea.Quit
	case "up", "k":
		if m.cursor > 0 {
			m.cursor--
		}
	case "down", "j":
		if m.cursor < len(m.items)-1 {
			m.cursor++
		}
	case " ", "space":
		m.selected[m.cursor] = !m.selected[m.cursor]
	case "a":
		all := len(m.chosen()) < len(m.items)
		for i := range m.items {
			m.selected[i] = all
		}
	case "enter":
		if len(m.chosen()) > 0 {
			m.done = true
			return m, tea.Quit
		}
	}
	return m, nil
}

func (m multiSelectModel) View() string {
	if m.done {
		return ""
	}

	var b strings.Builder
	b.WriteString(color.New(color.FgCyan, color.Bold).Sprintf("%s\n\n", m.title))

	for i, item := range m.items {
		cursor := " "
		if m.cursor == i {
			cursor = color.New(color.FgCyan).Sprint("▸")
		}
		checkbox := color.New(color.FgWhite).Sprint("○")
		if m.selected[i] {
			checkbox = color.New(color.FgGreen).Sprint("✓")
		}
		kind := color.New(color.FgYellow).Sprintf("(%s)", item.Ref.Kind)
		b.WriteString(fmt.Sprintf("%s %s %s %s\n", cursor, checkbox, item.Label, kind))
	}

	b.WriteString("\n")
	b.WriteString(color.New(color.FgYellow).Sprint("↑/↓: move  Space: toggle  a: all  Enter: confirm  q: quit\n"))
	return b.String()
}

// chosen returns the selected documents in display order
func (m multiSelectModel) chosen() []usecase.DocumentChoice {
	var out []usecase.DocumentChoice
	for i, item := range m.items {
		if m.selected[i] {
			out = append(out, item)
		}
	}
	return out
}

func runMultiSelect(model multiSelectModel) (multiSelectModel, error) {
	final, err := tea.NewProgram(model).Run()
	if err != nil {
		return multiSelectModel{}, fmt.Errorf("multi-select failed: %w", err)
	}
	return final.(multiSelectModel), nil
}
