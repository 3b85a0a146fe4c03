package pipeline

import (
	"encoding/json"
	"log/slog"
	"sync"

	"github.com/couchcryptid/fairway-conditions/internal/domain"
)

// selectionKey is the persistence-store key for the selected course.
const selectionKey = "course"

// Selection reconciles automatic course resolution with manual overrides
// and persists the choice across sessions.
//
// The central consistency rule: while manual is set, no automatic
// resolution result may overwrite the course, even one that was already in
// flight when the manual pick landed. AdoptAutomatic enforces this at apply
// time, so the manual write wins regardless of arrival order.
type Selection struct {
	store  domain.Store
	logger *slog.Logger

	mu     sync.Mutex
	course *domain.Course
	manual bool
}

type persistedSelection struct {
	Course *domain.Course `json:"course,omitempty"`
	Manual bool           `json:"manual"`
}

// NewSelection creates the selection state, restoring any persisted choice.
func NewSelection(store domain.Store, logger *slog.Logger) *Selection {
	s := &Selection{store: store, logger: logger}

	if raw, ok := store.Get(selectionKey); ok {
		var saved persistedSelection
		if err := json.Unmarshal([]byte(raw), &saved); err != nil {
			logger.Warn("persisted course selection corrupt, ignoring", "error", err)
		} else {
			s.course = saved.Course
			s.manual = saved.Manual
		}
	}
	return s
}

// Current returns the selected course (nil when none) and the manual flag.
func (s *Selection) Current() (*domain.Course, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.course, s.manual
}

// AdoptAutomatic applies an automatic resolution result. It reports false,
// leaving the selection untouched, while a manual pick is in effect.
func (s *Selection) AdoptAutomatic(course domain.Course) bool {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.manual {
		return false
	}
	s.course = &course
	s.persistLocked()
	return true
}

// AdoptManual applies a user's explicit pick. It always wins.
func (s *Selection) AdoptManual(course domain.Course) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.course = &course
	s.manual = true
	s.persistLocked()
}

// ClearManual drops the manual flag so automatic resolution may run again.
// The course itself stays: the display should not flash to empty while the
// automatic path re-resolves.
func (s *Selection) ClearManual() {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.manual = false
	s.persistLocked()
}

func (s *Selection) persistLocked() {
	raw, err := json.Marshal(persistedSelection{Course: s.course, Manual: s.manual})
	if err != nil {
		s.logger.Warn("encode course selection failed", "error", err)
		return
	}
	if err := s.store.Set(selectionKey, string(raw)); err != nil {
		s.logger.Warn("persist course selection failed", "error", err)
	}
}
