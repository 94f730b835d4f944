package cases

import (
	"context"
	"strings"
	"time"

	"github.com/google/uuid"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/internal/activity"
	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/internal/assignment"
	"github.com/aldoetobex/legal-aid-backend/internal/lifecycle"
	"github.com/aldoetobex/legal-aid-backend/internal/policy"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

// UpdateInput is a partial update; nil fields are left alone.
type UpdateInput struct {
	Status      *models.CaseStatus
	Priority    *models.Priority
	Description *string
}

func (in UpdateInput) empty() bool {
	return in.Status == nil && in.Priority == nil && in.Description == nil
}

// Update changes status, priority or description. Every requested field is
// authorized before anything is written, and the whole update produces a
// single timeline entry.
func (s *Service) Update(ctx context.Context, a policy.Actor, id uuid.UUID, in UpdateInput) (*models.Case, error) {
	if in.empty() {
		return nil, apperr.Validation("Nothing to update", map[string][]string{
			"body": {"Provide at least one of status, priority or description"},
		})
	}

	var (
		cs  *models.Case
		act *models.CaseActivity
		tr  lifecycle.Transition
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if cs, err = s.loadCase(ctx, tx, a, id, true); err != nil {
			return err
		}

		if in.Status != nil {
			if err := s.access.AuthorizeField(a, cs, policy.FieldStatus); err != nil {
				return err
			}
		}
		if in.Priority != nil {
			if err := s.access.AuthorizeField(a, cs, policy.FieldPriority); err != nil {
				return err
			}
		}
		if in.Description != nil {
			if err := s.access.AuthorizeField(a, cs, policy.FieldDescription); err != nil {
				return err
			}
		}
		// Content changes wait until an admin has reopened the case; a
		// reopen may carry them in the same request.
		if lifecycle.Frozen(cs) && in.Status == nil {
			return lifecycle.ErrClosed
		}

		updates := map[string]any{}
		details := activity.Details{}

		if in.Status != nil {
			if tr, err = s.transitions.Check(a.Role, cs.Status, *in.Status); err != nil {
				return err
			}
			updates["status"] = tr.To
			details["old_status"] = tr.From
			details["new_status"] = tr.To
			if tr.Reopen {
				details["anomaly"] = true
			}
		}
		if in.Priority != nil && *in.Priority != cs.Priority {
			if !in.Priority.Valid() {
				return apperr.Field("priority", "Unknown priority")
			}
			updates["priority"] = *in.Priority
			details["priority"] = activity.Details{"from": cs.Priority, "to": *in.Priority}
		}
		if in.Description != nil {
			desc := strings.TrimSpace(*in.Description)
			switch {
			case desc == "":
				return apperr.Field("description", "This field is required")
			case len(desc) > maxDescription:
				return apperr.Field("description", "Must be at most 5000 characters")
			}
			if desc != cs.Description {
				updates["description"] = desc
				details["description_changed"] = true
			}
		}
		if len(updates) == 0 {
			return apperr.Validation("Nothing to update", map[string][]string{
				"body": {"The submitted values match the current case"},
			})
		}

		updates["updated_at"] = s.now().UTC()
		if err := tx.Model(cs).Updates(updates).Error; err != nil {
			return apperr.Internal("update case", err)
		}
		applyUpdates(cs, updates)

		action := activity.ActionUpdated
		switch {
		case tr.Reopen:
			action = activity.ActionReopened
		case in.Status != nil:
			action = activity.ActionStatusChanged
		}
		act, err = s.recorder.Record(ctx, tx, cs.ID, a.ID, action, details)
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "update case", err)
	}

	if tr.To != "" {
		s.metrics.StatusChanged(string(tr.From), string(tr.To))
		if tr.Reopen {
			s.log.WarnContext(ctx, "closed case reopened", "case_id", cs.ID, "actor_id", a.ID, "new_status", tr.To)
		}
	}
	s.publish(ctx, act, cs.CaseNumber)
	return cs, nil
}

// MoveStatus is Update restricted to the status field, used by the board view.
func (s *Service) MoveStatus(ctx context.Context, a policy.Actor, id uuid.UUID, to models.CaseStatus) (*models.Case, error) {
	return s.Update(ctx, a, id, UpdateInput{Status: &to})
}

// Assign lets an admin place a case with a solicitor.
func (s *Service) Assign(ctx context.Context, a policy.Actor, id, solicitorID uuid.UUID) (*models.Case, error) {
	if !a.IsAdmin() {
		return nil, apperr.Forbidden("only administrators can assign cases")
	}
	return s.assign(ctx, a, id, solicitorID, activity.ActionAssigned)
}

// Accept lets a solicitor take an unassigned case in one of their specializations.
func (s *Service) Accept(ctx context.Context, a policy.Actor, id uuid.UUID) (*models.Case, error) {
	if !a.IsSolicitor() {
		return nil, apperr.Forbidden("only solicitors can accept cases")
	}
	return s.assign(ctx, a, id, a.ID, activity.ActionAccepted)
}

// assign locks the case and then the solicitor's profile (always in that
// order), re-checks eligibility under the locks, and writes the assignment.
// An open case moves to in_progress in the same write.
func (s *Service) assign(ctx context.Context, a policy.Actor, id, solicitorID uuid.UUID, action string) (*models.Case, error) {
	var (
		cs   *models.Case
		act  *models.CaseActivity
		from models.CaseStatus
	)
	err := s.db.WithContext(ctx).Transaction(func(tx *gorm.DB) error {
		var err error
		if cs, err = s.loadCase(ctx, tx, a, id, true); err != nil {
			return err
		}
		// A solicitor who could have browsed the case learns it was taken;
		// anyone else gets the generic denial below.
		if cs.IsAssigned() && (cs.AssignedTo(a.ID) || a.Handles(cs.Type)) {
			s.metrics.AssignmentRejected(assignment.Reason(assignment.ErrAlreadyAssigned))
			return assignment.ErrAlreadyAssigned
		}
		if err := s.access.AuthorizeField(a, cs, policy.FieldAssignee); err != nil {
			return err
		}
		if cs.Status == models.StatusClosed {
			return lifecycle.ErrClosed
		}

		profile, open, err := assignment.LockSolicitor(ctx, tx, solicitorID)
		if err != nil {
			return err
		}
		if err := assignment.Check(cs, profile, open); err != nil {
			s.metrics.AssignmentRejected(assignment.Reason(err))
			return err
		}

		from = cs.Status
		to := from
		if from == models.StatusOpen {
			to = models.StatusInProgress
		}
		updates := map[string]any{
			"assigned_solicitor_id": solicitorID,
			"status":                to,
			"updated_at":            s.now().UTC(),
		}
		if err := tx.Model(cs).Updates(updates).Error; err != nil {
			return apperr.Internal("assign case", err)
		}
		applyUpdates(cs, updates)

		act, err = s.recorder.Record(ctx, tx, cs.ID, a.ID, action, activity.Details{
			"solicitor_id": solicitorID,
			"old_status":   from,
			"new_status":   to,
		})
		return err
	})
	if err != nil {
		return nil, s.fail(ctx, "assign case", err)
	}

	if from != cs.Status {
		s.metrics.StatusChanged(string(from), string(cs.Status))
	}
	s.log.InfoContext(ctx, "case assigned", "case_id", cs.ID, "solicitor_id", solicitorID, "by", a.ID)
	s.publish(ctx, act, cs.CaseNumber)
	return cs, nil
}

// applyUpdates mirrors a column map onto the loaded case so callers see the
// written state without a reload.
func applyUpdates(cs *models.Case, updates map[string]any) {
	for col, v := range updates {
		switch col {
		case "status":
			cs.Status = v.(models.CaseStatus)
		case "priority":
			cs.Priority = v.(models.Priority)
		case "description":
			cs.Description = v.(string)
		case "assigned_solicitor_id":
			id := v.(uuid.UUID)
			cs.AssignedSolicitorID = &id
		case "updated_at":
			cs.UpdatedAt = v.(time.Time)
		}
	}
}
