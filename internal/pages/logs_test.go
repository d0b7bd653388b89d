package pages

import (
	"path/filepath"
	"strings"
	"testing"
	"time"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/buckleypaul/sealion/internal/bench"
	"github.com/buckleypaul/sealion/internal/store"
)

var logDay = time.Date(2024, 3, 5, 9, 0, 0, 0, time.UTC)

func writeLog(t *testing.T, st *store.Store, id string, at time.Time, text string) {
	t.Helper()
	f, err := st.OpenSlotLog(id, at)
	if err != nil {
		t.Fatalf("open log: %v", err)
	}
	defer f.Close()
	if _, err := f.WriteString(text); err != nil {
		t.Fatalf("write log: %v", err)
	}
}

func newLogs(t *testing.T) (*LogsPage, *store.Store) {
	t.Helper()
	st := store.New(t.TempDir())
	p := NewLogsPage(st)
	p.now = func() time.Time { return logDay }
	p.SetSize(80, 20)
	return p, st
}

// drain runs cmd and feeds its message back to the page.
func drain(p *LogsPage, cmd tea.Cmd) {
	if cmd == nil {
		return
	}
	p.Update(cmd())
}

func TestLogsListsToday(t *testing.T) {
	p, st := newLogs(t)
	writeLog(t, st, "LD5200_4", logDay.Add(2*time.Minute), "b\n")
	writeLog(t, st, "LD2100_1", logDay.Add(time.Minute), "a\n")
	writeLog(t, st, "LD2100_2", logDay.Add(-24*time.Hour), "yesterday\n")

	drain(p, p.Init())

	if len(p.files) != 2 {
		t.Fatalf("expected 2 logs for today, got %d", len(p.files))
	}
	if !strings.HasPrefix(filepath.Base(p.files[0]), "LD2100_1_") {
		t.Fatalf("expected oldest first, got %s", p.files[0])
	}
	if !strings.Contains(p.View(), "LD5200_4_") {
		t.Fatal("expected log names in view")
	}
}

func TestLogsEmpty(t *testing.T) {
	p, _ := newLogs(t)
	drain(p, p.Init())

	if len(p.files) != 0 {
		t.Fatalf("expected no logs, got %d", len(p.files))
	}
	if !strings.Contains(p.View(), "No slot logs") {
		t.Fatal("expected empty message")
	}
	// enter with nothing listed is a no-op
	if _, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter}); cmd != nil {
		t.Fatal("expected no command")
	}
}

func TestLogsOpenAndClose(t *testing.T) {
	p, st := newLogs(t)
	writeLog(t, st, "LD2100_1", logDay, "Passing: true\n\trs232_connection: passed\n")
	drain(p, p.Init())

	_, cmd := p.Update(tea.KeyMsg{Type: tea.KeyEnter})
	drain(p, cmd)

	if p.open == "" {
		t.Fatal("expected a log open")
	}
	if !strings.Contains(p.content, "rs232_connection: passed") {
		t.Fatalf("unexpected content %q", p.content)
	}
	if !strings.Contains(p.View(), "Passing: true") {
		t.Fatal("expected log text in viewport")
	}

	p.Update(tea.KeyMsg{Type: tea.KeyEsc})
	if p.open != "" {
		t.Fatal("expected esc to return to the list")
	}
}

func TestLogsRefreshAfterRun(t *testing.T) {
	p, st := newLogs(t)
	drain(p, p.Init())

	writeLog(t, st, "LD2100_1", logDay, "x\n")
	_, cmd := p.Update(bench.RunFinished{State: bench.Finished})
	drain(p, cmd)
	if len(p.files) != 1 {
		t.Fatalf("expected refresh after run, got %d files", len(p.files))
	}

	writeLog(t, st, "LD2100_2", logDay.Add(time.Second), "y\n")
	_, cmd = p.Update(runes("R"))
	drain(p, cmd)
	if len(p.files) != 2 {
		t.Fatalf("expected refresh on R, got %d files", len(p.files))
	}
}

func TestLogsWrapsLongLines(t *testing.T) {
	p, _ := newLogs(t)
	p.Update(logOpenedMsg{path: "/tmp/x.txt", content: strings.Repeat("a", 200)})

	for _, line := range strings.Split(p.viewport.View(), "\n") {
		if len(strings.TrimRight(line, " ")) > p.viewport.Width {
			t.Fatalf("line wider than viewport: %d > %d", len(line), p.viewport.Width)
		}
	}
}
