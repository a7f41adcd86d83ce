// Package resume holds the applicant resume used to tailor cover letters.
package resume

import (
	"errors"
	"log/slog"
	"os"
	"strings"
	"sync/atomic"
)

// Placeholder is held when no resume could be loaded.
const Placeholder = "No resume available."

// ErrEmptyResume is returned by Update for empty text.
var ErrEmptyResume = errors.New("resume: empty text")

type entry struct {
	text string
	real bool
}

// Store is a single replaceable resume. Reads and writes are lock-free; the
// last Update wins.
type Store struct {
	cur atomic.Pointer[entry]
}

// New returns a store holding text, or the placeholder when text is blank.
func New(text string) *Store {
	s := &Store{}
	s.set(text)
	return s
}

// Load seeds a store from the file at path. Read failures and empty files
// leave the placeholder in place; the failure is logged, not returned.
func Load(path string, logger *slog.Logger) *Store {
	data, err := os.ReadFile(path)
	if err != nil {
		logger.Warn("resume file not loaded, using placeholder", "path", path, "err", err)
		return New("")
	}
	s := New(string(data))
	if _, ok := s.Resume(); ok {
		logger.Info("resume loaded", "path", path, "chars", len(s.Get()))
	} else {
		logger.Warn("resume file is empty, using placeholder", "path", path)
	}
	return s
}

// Get returns the current text, which may be the placeholder.
func (s *Store) Get() string {
	return s.cur.Load().text
}

// Resume returns the current text and whether it is a real resume rather
// than the placeholder.
func (s *Store) Resume() (string, bool) {
	e := s.cur.Load()
	return e.text, e.real
}

// Update replaces the stored resume. Empty text is rejected and the store is
// left unchanged.
func (s *Store) Update(text string) error {
	if text == "" {
		return ErrEmptyResume
	}
	s.cur.Store(&entry{text: text, real: true})
	return nil
}

func (s *Store) set(text string) {
	text = strings.TrimSpace(text)
	if text == "" {
		s.cur.Store(&entry{text: Placeholder})
		return
	}
	s.cur.Store(&entry{text: text, real: true})
}
