package services

import (
	"errors"
	"fmt"
	"strings"

	"github.com/Dosada05/battle-tournament/brackets"
)

// Классы ошибок движка. Конкретные ошибки оборачивают один из них.
var (
	ErrNotFound         = errors.New("requested resource not found")
	ErrConfiguration    = brackets.ErrConfiguration
	ErrValidation       = errors.New("validation failed")
	ErrInvalidState     = errors.New("operation not allowed in the current state")
	ErrConcurrentActive = errors.New("another contest is already active")
	ErrInvalidOutcome   = errors.New("invalid contest outcome")
	ErrAmbiguousVote    = brackets.ErrAmbiguousVote
	ErrInvalidInput     = errors.New("invalid input")
)

var (
	ErrTournamentNotFound = fmt.Errorf("%w: tournament not found", ErrNotFound)
	ErrCategoryNotFound   = fmt.Errorf("%w: category not found", ErrNotFound)
	ErrContestNotFound    = fmt.Errorf("%w: contest not found", ErrNotFound)
	ErrPoolNotFound       = fmt.Errorf("%w: pool not found", ErrNotFound)

	ErrTournamentLocked   = fmt.Errorf("%w: tournament is completed and locked", ErrInvalidState)
	ErrRegistrationClosed = fmt.Errorf("%w: registration is closed", ErrInvalidState)
	ErrContestNotActive   = fmt.Errorf("%w: contest is not active", ErrInvalidState)
	ErrContestNotPending  = fmt.Errorf("%w: contest is not pending", ErrInvalidState)
	ErrWrongContestPhase  = fmt.Errorf("%w: contest belongs to another phase", ErrInvalidState)
	ErrReorderRejected    = fmt.Errorf("%w: reorder rejected", ErrInvalidState)
	ErrPhaseConflict      = fmt.Errorf("%w: tournament phase changed concurrently", ErrInvalidState)
	ErrNoNextPhase        = fmt.Errorf("%w: tournament has no next phase", ErrInvalidState)

	ErrCategoryNameConflict = errors.New("category name already exists in this tournament")
)

// Reason is one blocking condition of a phase transition or registration check.
// It holds everything a caller needs to render it without further lookups.
type Reason struct {
	CategoryID   int    `json:"category_id,omitempty"`
	CategoryName string `json:"category_name,omitempty"`
	Rule         string `json:"rule"`
	Current      int    `json:"current"`
	Required     int    `json:"required"`
	Message      string `json:"message"`
}

// Rule names used in Reason.Rule.
const (
	RuleMinimumContestants  = "minimum_contestants"
	RuleNoCategories        = "no_categories"
	RulePreselectionPending = "preselection_incomplete"
	RulePoolContestsPending = "pool_contests_incomplete"
	RuleFinalsPending       = "finals_incomplete"
	RuleUnresolvedTies      = "unresolved_ties"
	RulePoolWinners         = "pool_winners_missing"
	RuleConfiguration       = "configuration"
)

// ValidationError aggregates every blocking reason of one check.
// errors.Is matches ErrValidation and every attached cause.
type ValidationError struct {
	From    string   `json:"from,omitempty"`
	To      string   `json:"to,omitempty"`
	Reasons []Reason `json:"reasons"`

	causes []error
}

func (e *ValidationError) Error() string {
	parts := make([]string, 0, len(e.Reasons))
	for _, r := range e.Reasons {
		if r.CategoryName != "" {
			parts = append(parts, fmt.Sprintf("%s: %s", r.CategoryName, r.Message))
		} else {
			parts = append(parts, r.Message)
		}
	}
	prefix := "validation failed"
	if e.From != "" && e.To != "" {
		prefix = fmt.Sprintf("cannot advance from %s to %s", e.From, e.To)
	}
	return prefix + ": " + strings.Join(parts, "; ")
}

func (e *ValidationError) Unwrap() []error {
	return append([]error{ErrValidation}, e.causes...)
}

func (e *ValidationError) add(r Reason, cause error) {
	e.Reasons = append(e.Reasons, r)
	if cause != nil {
		e.causes = append(e.causes, cause)
	}
}

func (e *ValidationError) merge(other *ValidationError) {
	if other == nil {
		return
	}
	e.Reasons = append(e.Reasons, other.Reasons...)
	e.causes = append(e.causes, other.causes...)
}

func (e *ValidationError) empty() bool {
	return len(e.Reasons) == 0
}
