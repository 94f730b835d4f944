// Package policy is the single place case authorization is decided.
//
// Every case operation asks the Evaluator before touching state; handlers
// never compare ids or roles themselves.
package policy

import (
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

// Actor is the authenticated caller. Specializations is only populated for
// solicitors.
type Actor struct {
	ID              uuid.UUID
	Role            models.Role
	Specializations []models.CaseType
}

func (a Actor) IsAdmin() bool     { return a.Role == models.RoleAdmin }
func (a Actor) IsClient() bool    { return a.Role == models.RoleClient }
func (a Actor) IsSolicitor() bool { return a.Role == models.RoleSolicitor }

// Handles reports whether the actor lists t among their specializations.
func (a Actor) Handles(t models.CaseType) bool {
	for _, s := range a.Specializations {
		if s == t {
			return true
		}
	}
	return false
}

// Mode distinguishes reads from writes.
type Mode int

const (
	Read Mode = iota
	Write
)

func (m Mode) String() string {
	if m == Write {
		return "write"
	}
	return "read"
}

// Field names a mutable part of a case.
type Field string

const (
	FieldStatus      Field = "status"
	FieldPriority    Field = "priority"
	FieldDescription Field = "description"
	FieldAssignee    Field = "assigned_solicitor_id"
	FieldNote        Field = "note"
	FieldPrivateNote Field = "private_note"
	FieldDeadline    Field = "deadline"
	FieldDocument    Field = "document"
)

// Fields lists every mutable field.
func Fields() []Field {
	return []Field{FieldStatus, FieldPriority, FieldDescription, FieldAssignee, FieldNote, FieldPrivateNote, FieldDeadline, FieldDocument}
}

// ErrDenied is the single, generic denial returned for every refused case access.
var ErrDenied = apperr.Forbidden("you do not have access to this case")

// Evaluator holds no state; the zero value is ready to use.
type Evaluator struct{}

// CanAccess decides read or write access to a case as a whole. Read and
// write share the same ownership rules; what a writer may change is decided
// per field by CanMutateField.
func (Evaluator) CanAccess(a Actor, c *models.Case, _ Mode) bool {
	if c == nil {
		return false
	}
	switch a.Role {
	case models.RoleAdmin:
		return true
	case models.RoleClient:
		return c.ClientID == a.ID
	case models.RoleSolicitor:
		if c.AssignedTo(a.ID) {
			return true
		}
		return !c.IsAssigned() && a.Handles(c.Type)
	}
	return false
}

// CanMutateField decides whether the actor may change one field of a case.
func (e Evaluator) CanMutateField(a Actor, c *models.Case, f Field) bool {
	if !e.CanAccess(a, c, Write) {
		return false
	}
	switch a.Role {
	case models.RoleAdmin:
		return true
	case models.RoleClient:
		switch f {
		case FieldDescription, FieldNote, FieldDocument:
			return true
		}
		return false
	case models.RoleSolicitor:
		if c.AssignedTo(a.ID) {
			// Reassignment goes through an admin.
			return f != FieldAssignee
		}
		// Browsing an unassigned case: the only write is accepting it.
		return f == FieldAssignee
	}
	return false
}

// Authorize returns ErrDenied unless CanAccess allows it.
func (e Evaluator) Authorize(a Actor, c *models.Case, m Mode) error {
	if !e.CanAccess(a, c, m) {
		return ErrDenied
	}
	return nil
}

// AuthorizeField returns a denial naming the field unless CanMutateField allows it.
func (e Evaluator) AuthorizeField(a Actor, c *models.Case, f Field) error {
	if !e.CanAccess(a, c, Write) {
		return ErrDenied
	}
	if !e.CanMutateField(a, c, f) {
		return apperr.Forbidden("you may not change " + string(f) + " on this case")
	}
	return nil
}

// Browsing reports whether a solicitor can read the case only because it is
// unassigned and in their specializations. Such a reader gets a redacted
// preview and may accept the case, nothing else.
func (e Evaluator) Browsing(a Actor, c *models.Case) bool {
	return a.IsSolicitor() && !c.AssignedTo(a.ID) && e.CanAccess(a, c, Read)
}

// AuthorizeRecords guards the full case record: client identity, the
// description, notes, timeline, deadlines and documents. Browsing
// solicitors are refused.
func (e Evaluator) AuthorizeRecords(a Actor, c *models.Case) error {
	if err := e.Authorize(a, c, Read); err != nil {
		return err
	}
	if e.Browsing(a, c) {
		return ErrDenied
	}
	return nil
}

// CanSeePrivateNotes reports whether private notes and their activity
// entries on c are visible to the actor.
func CanSeePrivateNotes(a Actor, c *models.Case) bool {
	return a.IsAdmin() || (a.IsSolicitor() && c.AssignedTo(a.ID))
}
