package store

import (
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"sync"
	"time"
)

// Store manages the per-slot text logs of test runs.
type Store struct {
	root string
	mu   sync.Mutex
}

// New creates a Store rooted at the given directory (typically logs/).
func New(root string) *Store {
	return &Store{root: root}
}

// Root returns the directory logs are written under.
func (s *Store) Root() string {
	return s.root
}

func (s *Store) dayDir(t time.Time) string {
	return filepath.Join(s.root, t.Format("2006"), t.Format("01"), t.Format("02"))
}

// SlotLogPath returns <root>/YYYY/MM/DD/<id>_HHMMSS.txt for a run of slot id
// started at t.
func (s *Store) SlotLogPath(id string, t time.Time) string {
	return filepath.Join(s.dayDir(t), fmt.Sprintf("%s_%s.txt", id, t.Format("150405")))
}

// OpenSlotLog creates the log file for a slot run, creating the day
// directory if needed. An existing file is appended to.
func (s *Store) OpenSlotLog(id string, t time.Time) (*os.File, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	path := s.SlotLogPath(id, t)
	if err := os.MkdirAll(filepath.Dir(path), 0o755); err != nil {
		return nil, err
	}
	return os.OpenFile(path, os.O_CREATE|os.O_WRONLY|os.O_APPEND, 0o644)
}

// Logs returns the log files written on the day of t, oldest first.
func (s *Store) Logs(t time.Time) ([]string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	dir := s.dayDir(t)
	var paths []string
	err := filepath.WalkDir(dir, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if !d.IsDir() && strings.HasSuffix(path, ".txt") {
			paths = append(paths, path)
		}
		return nil
	})
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	// Names end in HHMMSS, so sort on that rather than the slot id.
	sort.SliceStable(paths, func(i, j int) bool {
		return stamp(paths[i]) < stamp(paths[j])
	})
	return paths, nil
}

func stamp(path string) string {
	base := strings.TrimSuffix(filepath.Base(path), ".txt")
	if i := strings.LastIndexByte(base, '_'); i >= 0 {
		return base[i+1:]
	}
	return base
}
