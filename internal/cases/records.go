package cases

import (
	"context"
	"errors"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-aid-backend/internal/activity"
	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/internal/lifecycle"
	"github.com/aldoetobex/legal-aid-backend/internal/policy"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

const (
	maxNote          = 10000
	maxDeadlineTitle = 200
)

/* ================================ Notes ================================= */

// AddNote appends a note. Only solicitors and admins may write private notes.
func (s *Service) AddNote(ctx context.Context, a policy.Actor, caseID uuid.UUID, content string, private bool) (*models.CaseNote, error) {
	content = strings.TrimSpace(content)
	switch {
	case content == "":
		return nil, apperr.Field("content", "This field is required")
	case len(content) > maxNote:
		return nil, apperr.Field("content", "Must be at most 10000 characters")
	}
	field := policy.FieldNote
	if private {
		field = policy.FieldPrivateNote
	}

	var (
		note *models.CaseNote
		act  *models.CaseActivity
		cs   *models.Case
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if cs, err = s.loadCase(ctx, tx, a, caseID, false); err != nil {
			return err
		}
		if err := s.access.AuthorizeField(a, cs, field); err != nil {
			return err
		}
		if lifecycle.Frozen(cs) {
			return lifecycle.ErrClosed
		}
		note = &models.CaseNote{
			CaseID:    cs.ID,
			AuthorID:  a.ID,
			Content:   content,
			IsPrivate: private,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.Create(note).Error; err != nil {
			return apperr.Internal("create note", err)
		}
		act, err = s.recorder.Record(ctx, tx, cs.ID, a.ID, activity.ActionNoteAdded, activity.Details{
			"note_id": note.ID,
			"private": private,
		})
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "add note", err)
	}
	s.publish(ctx, act, cs.CaseNumber)
	return note, nil
}

// Notes lists a case's notes oldest first, hiding private ones from clients.
func (s *Service) Notes(ctx context.Context, a policy.Actor, caseID uuid.UUID) ([]models.CaseNote, error) {
	cs, err := s.loadCase(ctx, s.db, a, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.access.AuthorizeRecords(a, cs); err != nil {
		return nil, err
	}
	q := s.db.WithContext(ctx).Where("case_id = ?", cs.ID)
	if !policy.CanSeePrivateNotes(a, cs) {
		q = q.Where("is_private = ?", false)
	}
	out := []models.CaseNote{}
	if err := q.Order("created_at ASC").Order("id ASC").Find(&out).Error; err != nil {
		return nil, s.fail(ctx, "list notes", apperr.Internal("list notes", err))
	}
	return out, nil
}

/* =============================== Timeline =============================== */

// Timeline returns the case activity oldest first. Clients do not see the
// entries of private notes.
func (s *Service) Timeline(ctx context.Context, a policy.Actor, caseID uuid.UUID) ([]models.CaseActivity, error) {
	cs, err := s.loadCase(ctx, s.db, a, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.access.AuthorizeRecords(a, cs); err != nil {
		return nil, err
	}
	all, err := s.recorder.List(ctx, s.db, cs.ID)
	if err != nil {
		return nil, s.fail(ctx, "list activity", err)
	}
	if policy.CanSeePrivateNotes(a, cs) {
		return all, nil
	}
	out := make([]models.CaseActivity, 0, len(all))
	for _, e := range all {
		if !activity.IsPrivate(e) {
			out = append(out, e)
		}
	}
	return out, nil
}

/* =============================== Deadlines ============================== */

// AddDeadline attaches a dated task to a case.
func (s *Service) AddDeadline(ctx context.Context, a policy.Actor, caseID uuid.UUID, title string, dueAt time.Time) (*models.CaseDeadline, error) {
	title = strings.TrimSpace(title)
	errs := map[string][]string{}
	if title == "" {
		errs["title"] = []string{"This field is required"}
	} else if len(title) > maxDeadlineTitle {
		errs["title"] = []string{"Must be at most 200 characters"}
	}
	if dueAt.IsZero() {
		errs["due_at"] = []string{"This field is required"}
	} else if !dueAt.After(s.now()) {
		errs["due_at"] = []string{"Must be in the future"}
	}
	if len(errs) > 0 {
		return nil, apperr.Validation("Validation failed", errs)
	}

	var (
		d   *models.CaseDeadline
		act *models.CaseActivity
		cs  *models.Case
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if cs, err = s.loadCase(ctx, tx, a, caseID, false); err != nil {
			return err
		}
		if err := s.access.AuthorizeField(a, cs, policy.FieldDeadline); err != nil {
			return err
		}
		if lifecycle.Frozen(cs) {
			return lifecycle.ErrClosed
		}
		d = &models.CaseDeadline{
			CaseID:    cs.ID,
			Title:     title,
			DueAt:     dueAt.UTC(),
			CreatedBy: a.ID,
			CreatedAt: s.now().UTC(),
		}
		if err := tx.Create(d).Error; err != nil {
			return apperr.Internal("create deadline", err)
		}
		act, err = s.recorder.Record(ctx, tx, cs.ID, a.ID, activity.ActionDeadlineAdded, activity.Details{
			"deadline_id": d.ID,
			"title":       d.Title,
			"due_at":      d.DueAt,
		})
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "add deadline", err)
	}
	s.publish(ctx, act, cs.CaseNumber)
	return d, nil
}

// Deadlines lists a case's deadlines, soonest first.
func (s *Service) Deadlines(ctx context.Context, a policy.Actor, caseID uuid.UUID) ([]models.CaseDeadline, error) {
	cs, err := s.loadCase(ctx, s.db, a, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.access.AuthorizeRecords(a, cs); err != nil {
		return nil, err
	}
	out := []models.CaseDeadline{}
	if err := s.db.WithContext(ctx).Where("case_id = ?", cs.ID).Order("due_at ASC").Find(&out).Error; err != nil {
		return nil, s.fail(ctx, "list deadlines", apperr.Internal("list deadlines", err))
	}
	return out, nil
}

// CompleteDeadline marks a deadline done. Completing twice is a conflict.
func (s *Service) CompleteDeadline(ctx context.Context, a policy.Actor, deadlineID uuid.UUID) (*models.CaseDeadline, error) {
	var (
		d   models.CaseDeadline
		act *models.CaseActivity
		cs  *models.Case
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&d, "id = ?", deadlineID).Error; err != nil {
			return s.hidden(a, err, "deadline")
		}
		var err error
		if cs, err = s.loadCase(ctx, tx, a, d.CaseID, false); err != nil {
			return err
		}
		if err := s.access.AuthorizeField(a, cs, policy.FieldDeadline); err != nil {
			return err
		}
		if lifecycle.Frozen(cs) {
			return lifecycle.ErrClosed
		}
		if d.Completed {
			return apperr.Conflict("deadline is already completed")
		}
		now := s.now().UTC()
		if err := tx.Model(&d).Updates(map[string]any{"completed": true, "completed_at": now}).Error; err != nil {
			return apperr.Internal("complete deadline", err)
		}
		d.Completed, d.CompletedAt = true, &now
		act, err = s.recorder.Record(ctx, tx, cs.ID, a.ID, activity.ActionDeadlineCompleted, activity.Details{
			"deadline_id": d.ID,
			"title":       d.Title,
		})
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "complete deadline", err)
	}
	s.publish(ctx, act, cs.CaseNumber)
	return &d, nil
}

/* =============================== Documents ============================== */

// AuthorizeUpload checks that the actor may attach documents to the case,
// before any bytes reach storage.
func (s *Service) AuthorizeUpload(ctx context.Context, a policy.Actor, caseID uuid.UUID) (*models.Case, error) {
	cs, err := s.loadCase(ctx, s.db, a, caseID, false)
	if err != nil {
		return nil, err
	}
	if err := s.access.AuthorizeField(a, cs, policy.FieldDocument); err != nil {
		return nil, err
	}
	if lifecycle.Frozen(cs) {
		return nil, lifecycle.ErrClosed
	}
	return cs, nil
}

// AttachDocument records an uploaded object against the case. The caller
// deletes the stored object if this fails.
func (s *Service) AttachDocument(ctx context.Context, a policy.Actor, caseID uuid.UUID, doc *models.CaseDocument) error {
	var (
		act *models.CaseActivity
		cs  *models.Case
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if cs, err = s.loadCase(ctx, tx, a, caseID, false); err != nil {
			return err
		}
		if err := s.access.AuthorizeField(a, cs, policy.FieldDocument); err != nil {
			return err
		}
		if lifecycle.Frozen(cs) {
			return lifecycle.ErrClosed
		}
		doc.CaseID = cs.ID
		doc.UploadedBy = a.ID
		doc.CreatedAt = s.now().UTC()
		if err := tx.Omit(clause.Associations).Create(doc).Error; err != nil {
			return apperr.Internal("create document", err)
		}
		act, err = s.recorder.Record(ctx, tx, cs.ID, a.ID, activity.ActionDocumentUploaded, activity.Details{
			"document_id": doc.ID,
			"name":        doc.OriginalName,
			"mime":        doc.Mime,
			"size":        doc.Size,
		})
		return err
	})
	if err != nil {
		return s.fail(ctx, "attach document", err)
	}
	s.publish(ctx, act, cs.CaseNumber)
	return nil
}

// Document loads a document the actor may read.
func (s *Service) Document(ctx context.Context, a policy.Actor, docID uuid.UUID) (*models.CaseDocument, error) {
	var doc models.CaseDocument
	if err := s.db.WithContext(ctx).Preload("Case").First(&doc, "id = ?", docID).Error; err != nil {
		return nil, s.hidden(a, err, "document")
	}
	if err := s.access.AuthorizeRecords(a, &doc.Case); err != nil {
		return nil, err
	}
	return &doc, nil
}

// RemoveDocument deletes the document row and returns it so the caller can
// remove the stored object. Admins may delete any document; others only
// their own uploads.
func (s *Service) RemoveDocument(ctx context.Context, a policy.Actor, docID uuid.UUID) (*models.CaseDocument, error) {
	var (
		doc models.CaseDocument
		act *models.CaseActivity
		cs  *models.Case
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&doc, "id = ?", docID).Error; err != nil {
			return s.hidden(a, err, "document")
		}
		var err error
		if cs, err = s.loadCase(ctx, tx, a, doc.CaseID, false); err != nil {
			return err
		}
		if err := s.access.AuthorizeField(a, cs, policy.FieldDocument); err != nil {
			return err
		}
		if lifecycle.Frozen(cs) {
			return lifecycle.ErrClosed
		}
		if !a.IsAdmin() && doc.UploadedBy != a.ID {
			return apperr.Forbidden("only the uploader can delete this document")
		}
		if err := tx.Delete(&doc).Error; err != nil {
			return apperr.Internal("delete document", err)
		}
		act, err = s.recorder.Record(ctx, tx, cs.ID, a.ID, activity.ActionDocumentDeleted, activity.Details{
			"document_id": doc.ID,
			"name":        doc.OriginalName,
		})
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "remove document", err)
	}
	s.publish(ctx, act, cs.CaseNumber)
	return &doc, nil
}

// hidden maps a lookup failure of a case child record: admins get a 404,
// everyone else the generic denial.
func (s *Service) hidden(a policy.Actor, err error, what string) error {
	if errors.Is(err, gorm.ErrRecordNotFound) {
		if a.IsAdmin() {
			return apperr.NotFound(what)
		}
		return policy.ErrDenied
	}
	return apperr.Internal("load "+what, err)
}
