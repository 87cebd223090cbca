// Package session holds the application flags that coordinate imports with
// other long-running operations. One State is created per process and handed
// to whichever component needs it.
package session

import (
	"errors"
	"fmt"
	"sync"
	"time"
)

var (
	// ErrImportBlocked is returned while imports are paused.
	ErrImportBlocked = errors.New("imports are blocked")
	// ErrResetInProgress is returned while the ledger is being reset.
	ErrResetInProgress = errors.New("ledger reset in progress")
	// ErrImportInProgress is returned by BeginReset while an import is
	// writing to the ledger.
	ErrImportInProgress = errors.New("import in progress")
)

// State is safe for concurrent use.
type State struct {
	mu                 sync.RWMutex
	skipImport         bool
	resetInProgress    bool
	importBlockedUntil time.Time
	importing          int
}

// Snapshot is a point-in-time copy of State.
type Snapshot struct {
	SkipImport         bool      `json:"skip_import"`
	ResetInProgress    bool      `json:"reset_in_progress"`
	ImportBlockedUntil time.Time `json:"import_blocked_until"`
	ImportsInProgress  int       `json:"imports_in_progress"`
}

func New() *State {
	return &State{}
}

// CanImport reports whether a new import may start at now.
func (s *State) CanImport(now time.Time) error {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.canImport(now)
}

func (s *State) canImport(now time.Time) error {
	switch {
	case s.resetInProgress:
		return ErrResetInProgress
	case s.skipImport:
		return ErrImportBlocked
	case now.Before(s.importBlockedUntil):
		return fmt.Errorf("%w until %s", ErrImportBlocked, s.importBlockedUntil.Format(time.RFC3339))
	}
	return nil
}

// SetSkipImport pauses or resumes imports indefinitely.
func (s *State) SetSkipImport(skip bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.skipImport = skip
}

// BlockImportsUntil pauses imports until t. A zero t lifts the block.
func (s *State) BlockImportsUntil(t time.Time) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.importBlockedUntil = t
}

// BeginImport checks CanImport and keeps resets out until the returned
// function is called.
func (s *State) BeginImport(now time.Time) (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if err := s.canImport(now); err != nil {
		return nil, err
	}
	s.importing++

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.importing--
			s.mu.Unlock()
		})
	}, nil
}

// BeginReset marks a ledger reset as running. It fails if one already is or
// an import is writing. The returned function ends the reset.
func (s *State) BeginReset() (func(), error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	switch {
	case s.resetInProgress:
		return nil, ErrResetInProgress
	case s.importing > 0:
		return nil, ErrImportInProgress
	}
	s.resetInProgress = true

	var once sync.Once
	return func() {
		once.Do(func() {
			s.mu.Lock()
			s.resetInProgress = false
			s.mu.Unlock()
		})
	}, nil
}

func (s *State) Snapshot() Snapshot {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return Snapshot{
		SkipImport:         s.skipImport,
		ResetInProgress:    s.resetInProgress,
		ImportBlockedUntil: s.importBlockedUntil,
		ImportsInProgress:  s.importing,
	}
}
