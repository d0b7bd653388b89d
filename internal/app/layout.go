package app

import (
	"fmt"
	"strings"

	"github.com/charmbracelet/bubbles/key"
	"github.com/charmbracelet/lipgloss"

	"github.com/buckleypaul/sealion/internal/bench"
	"github.com/buckleypaul/sealion/internal/ui"
)

const sidebarWidth = 22 // 20 content + 2 border/padding

func renderBenchBar(device string, state bench.State, elapsed string, width int, sidebarFocused bool) string {
	if device == "" {
		device = "(none)"
	}
	content := fmt.Sprintf("Device: %s  Run: %s", device, ui.StateLabel(state.String()))
	if elapsed != "" {
		content += "  " + elapsed
	}
	hint := ""
	if sidebarFocused {
		hint = ui.DimStyle.Render("  [d] change")
	}
	return ui.StatusBarStyle.Width(width).Render(content + hint)
}

func renderSidebar(pages []PageID, active PageID, pageMap map[PageID]Page, height int, focused bool) string {
	var b strings.Builder
	title := "sealion"
	if focused {
		title = ui.BoldStyle.Render("sealion [FOCUSED]")
	} else {
		title = ui.TitleStyle.Render("sealion")
	}
	b.WriteString(title)
	b.WriteString("\n\n")

	for _, id := range pages {
		p, ok := pageMap[id]
		if !ok {
			continue
		}
		if id == active {
			b.WriteString(ui.SidebarActiveStyle.Render("▸ " + p.Name()))
		} else {
			b.WriteString(ui.SidebarItemStyle.Render("  " + p.Name()))
		}
		b.WriteString("\n")
	}

	style := ui.SidebarStyle.Height(height)
	if focused {
		style = style.BorderForeground(ui.Primary)
	}
	return style.Render(b.String())
}

func renderStatusBar(pageHelp []key.Binding, width int, focus FocusArea) string {
	var parts []string

	// Focus-specific instructions
	if focus == FocusSidebar {
		parts = append(parts,
			ui.StatusKey("↑/↓", "navigate"),
			ui.StatusKey("enter", "select"),
			ui.StatusKey("d", "device"),
		)
	} else {
		// Page-specific keys when content is focused
		for _, kb := range pageHelp {
			if kb.Enabled() {
				parts = append(parts, ui.StatusKey(kb.Help().Key, kb.Help().Desc))
			}
		}
	}

	// Always add global keys
	parts = append(parts,
		ui.StatusKey("tab", "focus"),
		ui.StatusKey("?", "help"),
		ui.StatusKey("q", "quit"),
	)

	line := strings.Join(parts, "  ")
	return ui.StatusBarStyle.Width(width).Render(line)
}

func renderHelp(width int) string {
	var b strings.Builder
	rows := [][2]string{
		{"tab", "switch between sidebar and page"},
		{"d", "choose the bootloader serial device"},
		{"s / p / r / c", "start, pause, resume or cancel a run (tray)"},
		{"space / enter", "toggle a slot or edit a field (setup)"},
		{"q", "quit, cancelling any run"},
	}
	for _, r := range rows {
		b.WriteString(fmt.Sprintf("%-16s %s\n", ui.BoldStyle.Render(r[0]), r[1]))
	}
	return ui.Panel("Help", b.String(), width, 0, true)
}

func renderLayout(benchBar, sidebar, content, statusBar string) string {
	main := lipgloss.JoinHorizontal(lipgloss.Top, sidebar, content)
	return lipgloss.JoinVertical(lipgloss.Left, benchBar, main, statusBar)
}
