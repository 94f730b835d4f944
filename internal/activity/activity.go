// Package activity is the append-only case timeline. It exposes an insert
// and a read; nothing in the codebase updates or deletes an entry, rows only
// disappear when their case is deleted (ON DELETE CASCADE).
package activity

import (
	"context"
	"encoding/json"
	"time"

	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

// Action labels written to the timeline.
const (
	ActionCreated           = "Case created"
	ActionUpdated           = "Case updated"
	ActionStatusChanged     = "Status changed"
	ActionReopened          = "Case reopened"
	ActionAssigned          = "Case assigned"
	ActionAccepted          = "Case accepted"
	ActionNoteAdded         = "Note added"
	ActionDeadlineAdded     = "Deadline added"
	ActionDeadlineCompleted = "Deadline completed"
	ActionDocumentUploaded  = "Document uploaded"
	ActionDocumentDeleted   = "Document deleted"
)

// Details is the structured payload stored with an entry.
type Details map[string]any

// Recorder writes and reads timeline entries.
type Recorder struct {
	now func() time.Time
}

// NewRecorder returns a recorder stamping entries with now (time.Now if nil).
func NewRecorder(now func() time.Time) *Recorder {
	if now == nil {
		now = time.Now
	}
	return &Recorder{now: now}
}

// Record appends one entry. Pass the transaction that performs the mutation
// being recorded so the two commit or roll back together; a failure here is
// an invariant violation and must abort that transaction.
func (r *Recorder) Record(ctx context.Context, tx *gorm.DB, caseID, actorID uuid.UUID, action string, details Details) (*models.CaseActivity, error) {
	if details == nil {
		details = Details{}
	}
	raw, err := json.Marshal(details)
	if err != nil {
		return nil, apperr.Invariant("encode activity details", err)
	}
	a := &models.CaseActivity{
		CaseID:    caseID,
		ActorID:   actorID,
		Action:    action,
		Details:   datatypes.JSON(raw),
		CreatedAt: r.now().UTC(),
	}
	if err := tx.WithContext(ctx).Create(a).Error; err != nil {
		return nil, apperr.Invariant("record case activity", err)
	}
	return a, nil
}

// List returns a case's entries oldest first; entries with the same
// timestamp come back in insertion order.
func (r *Recorder) List(ctx context.Context, db *gorm.DB, caseID uuid.UUID) ([]models.CaseActivity, error) {
	var out []models.CaseActivity
	if err := db.WithContext(ctx).
		Where("case_id = ?", caseID).
		Order("created_at ASC").Order("id ASC").
		Find(&out).Error; err != nil {
		return nil, apperr.Internal("list case activity", err)
	}
	if out == nil {
		out = []models.CaseActivity{}
	}
	return out, nil
}

// IsPrivate reports whether the entry describes a private note.
func IsPrivate(a models.CaseActivity) bool {
	if a.Action != ActionNoteAdded || len(a.Details) == 0 {
		return false
	}
	var d struct {
		Private bool `json:"private"`
	}
	if err := json.Unmarshal(a.Details, &d); err != nil {
		return false
	}
	return d.Private
}
