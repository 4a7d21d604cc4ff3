// Package kpi runs monthly performance evaluation and level transitions for
// tiered affiliates.
package kpi

import (
	"errors"
	"fmt"
	"time"
)

// Level is a tiered affiliate's pay grade
type Level string

const (
	Level1 Level = "LEVEL_1"
	Level2 Level = "LEVEL_2"
	Level3 Level = "LEVEL_3"
)

// Thresholds are the monthly minimums a level must reach. All must be met.
type Thresholds struct {
	Contacts          int `json:"contacts"`
	PotentialContacts int `json:"potential_contacts"`
	SignedContracts   int `json:"signed_contracts"`
}

type levelSpec struct {
	salary     int64
	thresholds Thresholds
	up, down   Level
}

var levels = map[Level]levelSpec{
	Level1: {5_000_000, Thresholds{10, 5, 0}, Level2, Level1},
	Level2: {10_000_000, Thresholds{20, 10, 1}, Level3, Level1},
	Level3: {15_000_000, Thresholds{30, 15, 2}, Level3, Level2},
}

// Valid reports whether l is a known level
func (l Level) Valid() bool {
	_, ok := levels[l]
	return ok
}

// BaseSalary is the fixed monthly salary of the level
func (l Level) BaseSalary() int64 {
	return levels[l].salary
}

// Thresholds returns the targets evaluated against a month at this level
func (l Level) Thresholds() Thresholds {
	return levels[l].thresholds
}

// Promote returns the next level up; LEVEL_3 stays
func (l Level) Promote() Level {
	return levels[l].up
}

// Demote returns the next level down; LEVEL_1 stays
func (l Level) Demote() Level {
	return levels[l].down
}

// Performance is a month's verdict
type Performance string

const (
	PerformancePending Performance = "pending"
	PerformanceMet     Performance = "MET"
	PerformanceNotMet  Performance = "NOT_MET"
)

// demoteAfter is the number of consecutive NOT_MET months that costs a level
const demoteAfter = 2

// KPI errors
var (
	ErrAlreadyEvaluated     = errors.New("month already evaluated")
	ErrNotEnrolled          = errors.New("affiliate is not enrolled in leveling")
	ErrInvalidPeriod        = errors.New("invalid year or month")
	ErrMonthOpen            = errors.New("month has not ended")
	ErrOutOfOrder           = errors.New("month is not the next to evaluate")
	ErrInvalidContactStatus = errors.New("invalid contact status")
)

// State is the leveling state of one tiered affiliate
type State struct {
	AffiliateID         string    `json:"affiliate_id"`
	Level               Level     `json:"level"`
	CurrentBaseSalary   int64     `json:"current_base_salary"`
	ConsecutiveFailures int       `json:"consecutive_failures"`
	LastEvaluated       *Period   `json:"last_evaluated,omitempty"`
	UpdatedAt           time.Time `json:"updated_at"`
}

// NewState starts an affiliate at LEVEL_1
func NewState(affiliateID string, at time.Time) *State {
	return &State{
		AffiliateID:       affiliateID,
		Level:             Level1,
		CurrentBaseSalary: Level1.BaseSalary(),
		UpdatedAt:         at,
	}
}

// CheckNext returns ErrOutOfOrder unless p directly follows the last
// evaluated month. Any closed month may come first.
func (s *State) CheckNext(p Period) error {
	if s.LastEvaluated == nil {
		return nil
	}
	if want := s.LastEvaluated.Next(); p != want {
		return fmt.Errorf("%w: got %s, next is %s", ErrOutOfOrder, p, want)
	}
	return nil
}

// Apply folds a month's verdict into the state and returns the level held
// before the transition.
func (s *State) Apply(perf Performance, at time.Time) (Level, error) {
	prev := s.Level

	switch perf {
	case PerformanceMet:
		s.ConsecutiveFailures = 0
		s.Level = s.Level.Promote()
	case PerformanceNotMet:
		s.ConsecutiveFailures++
		if s.ConsecutiveFailures >= demoteAfter {
			s.Level = s.Level.Demote()
			s.ConsecutiveFailures = 0
		}
	default:
		return prev, fmt.Errorf("cannot apply performance %q", perf)
	}

	s.CurrentBaseSalary = s.Level.BaseSalary()
	s.UpdatedAt = at
	return prev, nil
}
