// Package finance holds the canonical, user-edited financial inputs:
// income, risk profile and the raw expense rows.
package finance

import (
	"errors"
	"fmt"
	"slices"
	"sync"

	"finboard/internal/core"
	"finboard/internal/observe"
)

type Field string

const (
	FieldCategory Field = "category"
	FieldAmount   Field = "amount"
)

var (
	ErrRowOutOfRange = errors.New("row index out of range")
	ErrUnknownField  = errors.New("unknown row field")
)

// Snapshot is a copy of the state. Mutating it has no effect on the
// state it came from.
type Snapshot struct {
	Income  string
	Profile core.RiskProfile
	Rows    []core.ExpenseRow
	// Version increases with every mutation.
	Version uint64
}

type State struct {
	// transitions orders mutations with their notifications.
	transitions sync.Mutex

	mu      sync.Mutex
	income  string
	profile core.RiskProfile
	rows    []core.ExpenseRow
	version uint64

	changes observe.Subject[Snapshot]
}

// New returns a state with medium risk and a single empty row ready for
// input.
func New() *State {
	return &State{
		profile: core.RiskMedium,
		rows:    []core.ExpenseRow{{}},
	}
}

func (s *State) Snapshot() Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.snapshotLocked()
}

// Subscribe registers fn for every change. fn must not mutate the state.
func (s *State) Subscribe(fn func(Snapshot)) func() {
	return s.changes.Subscribe(fn)
}

func (s *State) SetIncome(income string) {
	s.mutate(func() error {
		s.income = income
		return nil
	})
}

func (s *State) SetProfile(p core.RiskProfile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	return s.mutate(func() error {
		s.profile = p
		return nil
	})
}

// AddRow appends an empty row.
func (s *State) AddRow() {
	s.mutate(func() error {
		s.rows = append(s.rows, core.ExpenseRow{})
		return nil
	})
}

// UpdateRow replaces one field of row i.
func (s *State) UpdateRow(i int, field Field, value string) error {
	return s.mutate(func() error {
		if i < 0 || i >= len(s.rows) {
			return fmt.Errorf("update row %d: %w", i, ErrRowOutOfRange)
		}
		row := s.rows[i]
		switch field {
		case FieldCategory:
			row.Category = value
		case FieldAmount:
			row.Amount = value
		default:
			return fmt.Errorf("update row %d: %w %q", i, ErrUnknownField, field)
		}
		s.rows[i] = row
		return nil
	})
}

// RemoveRow drops row i. The list may become empty.
func (s *State) RemoveRow(i int) error {
	return s.mutate(func() error {
		if i < 0 || i >= len(s.rows) {
			return fmt.Errorf("remove row %d: %w", i, ErrRowOutOfRange)
		}
		s.rows = slices.Delete(slices.Clone(s.rows), i, i+1)
		return nil
	})
}

// ReplaceRows swaps the whole row list for rows. Nothing of the previous
// list is kept.
func (s *State) ReplaceRows(rows []core.ExpenseRow) {
	s.mutate(func() error {
		s.rows = cloneRows(rows)
		return nil
	})
}

// Restore replaces income, profile and rows in one step.
func (s *State) Restore(income string, profile core.RiskProfile, rows []core.ExpenseRow) error {
	if err := profile.Validate(); err != nil {
		return err
	}
	return s.mutate(func() error {
		s.income = income
		s.profile = profile
		s.rows = cloneRows(rows)
		return nil
	})
}

func (s *State) mutate(fn func() error) error {
	s.transitions.Lock()
	defer s.transitions.Unlock()

	s.mu.Lock()
	if err := fn(); err != nil {
		s.mu.Unlock()
		return err
	}
	s.version++
	snap := s.snapshotLocked()
	s.mu.Unlock()

	s.changes.Publish(snap)
	return nil
}

func (s *State) snapshotLocked() Snapshot {
	return Snapshot{
		Income:  s.income,
		Profile: s.profile,
		Rows:    cloneRows(s.rows),
		Version: s.version,
	}
}

func cloneRows(rows []core.ExpenseRow) []core.ExpenseRow {
	out := make([]core.ExpenseRow, len(rows))
	copy(out, rows)
	return out
}
