// Package lifecycle holds the case status rules.
//
// By default any status may be written by an authorized actor, matching the
// board UI where cards are dragged between arbitrary columns. Strict mode
// restricts writes to the adjacency table below. In both modes closed is
// terminal for normal work: only an admin can move a case out of it, and
// that move is flagged as a reopen.
package lifecycle

import (
	"time"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

// DeadlineWarning is how long before a deadline a case starts needing attention.
const DeadlineWarning = 24 * time.Hour

var adjacency = map[models.CaseStatus][]models.CaseStatus{
	models.StatusOpen:           {models.StatusInProgress},
	models.StatusInProgress:     {models.StatusPendingReview, models.StatusAwaitingClient, models.StatusOnHold, models.StatusClosed},
	models.StatusPendingReview:  {models.StatusInProgress, models.StatusClosed},
	models.StatusAwaitingClient: {models.StatusInProgress, models.StatusClosed},
	models.StatusOnHold:         {models.StatusInProgress, models.StatusClosed},
}

var (
	ErrClosed        = apperr.Conflict("case is closed; only an administrator can reopen it")
	ErrNotAdjacent   = apperr.Conflict("status transition is not allowed")
	ErrSameStatus    = apperr.Field("status", "Case is already in this status")
	ErrUnknownStatus = apperr.Field("status", "Unknown case status")
)

// Transition is an accepted status change.
type Transition struct {
	From   models.CaseStatus
	To     models.CaseStatus
	Reopen bool
}

// Machine validates status changes.
type Machine struct {
	Strict bool
}

// Allowed reports whether from→to is in the adjacency table.
func Allowed(from, to models.CaseStatus) bool {
	for _, s := range adjacency[from] {
		if s == to {
			return true
		}
	}
	return false
}

// Check validates a status write by an actor of the given role. Field-level
// permission to touch status at all is checked by the caller.
func (m Machine) Check(role models.Role, from, to models.CaseStatus) (Transition, error) {
	if !to.Valid() {
		return Transition{}, ErrUnknownStatus
	}
	if from == to {
		return Transition{}, ErrSameStatus
	}
	if from == models.StatusClosed {
		if role != models.RoleAdmin {
			return Transition{}, ErrClosed
		}
		return Transition{From: from, To: to, Reopen: true}, nil
	}
	if m.Strict && !Allowed(from, to) {
		return Transition{}, ErrNotAdjacent
	}
	return Transition{From: from, To: to}, nil
}

// Frozen reports whether the case content (description, priority, notes,
// deadlines, documents) is locked. A closed case accepts only an admin
// status change until it is reopened.
func Frozen(c *models.Case) bool {
	return c != nil && c.Status == models.StatusClosed
}

// NeedsAttention is true once the response SLA has passed or the deadline is
// less than a day away. It depends only on its arguments.
func NeedsAttention(c *models.Case, now time.Time) bool {
	if c == nil {
		return false
	}
	if now.After(c.ExpectedResponseBy) {
		return true
	}
	return c.Deadline != nil && now.After(c.Deadline.Add(-DeadlineWarning))
}
