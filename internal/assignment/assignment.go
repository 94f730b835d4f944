// Package assignment decides whether a solicitor may take a case.
package assignment

import (
	"context"
	"errors"

	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

// Rejection reasons. Each is a conflict with a stable message.
var (
	ErrAlreadyAssigned = apperr.Conflict("case is already assigned")
	ErrNotVerified     = apperr.Conflict("solicitor is not verified")
	ErrSpecialization  = apperr.Conflict("solicitor does not handle this case type")
	ErrAtCapacity      = apperr.Conflict("solicitor is at capacity")
)

// Reason returns a short label for a rejection, used as a metric label.
func Reason(err error) string {
	switch {
	case errors.Is(err, ErrAlreadyAssigned):
		return "already_assigned"
	case errors.Is(err, ErrNotVerified):
		return "not_verified"
	case errors.Is(err, ErrSpecialization):
		return "specialization"
	case errors.Is(err, ErrAtCapacity):
		return "capacity"
	}
	return "other"
}

// Check returns nil if the solicitor, currently holding openCases non-closed
// cases, can take c.
func Check(c *models.Case, s *models.SolicitorProfile, openCases int64) error {
	switch {
	case c.IsAssigned():
		return ErrAlreadyAssigned
	case s == nil || !s.Verified:
		return ErrNotVerified
	case !s.Handles(c.Type):
		return ErrSpecialization
	case openCases >= int64(s.MaxCases):
		return ErrAtCapacity
	}
	return nil
}

// LockSolicitor loads the solicitor's profile with a row lock and counts
// their open cases. Holding the lock until commit serializes concurrent
// assignments to the same solicitor, so the capacity check cannot be raced.
func LockSolicitor(ctx context.Context, tx *gorm.DB, solicitorID uuid.UUID) (*models.SolicitorProfile, int64, error) {
	var p models.SolicitorProfile
	if err := tx.WithContext(ctx).
		Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&p, "user_id = ?", solicitorID).Error; err != nil {
		return nil, 0, apperr.FromDB(err, "solicitor")
	}
	open, err := CountOpen(ctx, tx, solicitorID)
	if err != nil {
		return nil, 0, err
	}
	return &p, open, nil
}

// CountOpen counts cases assigned to the solicitor that are not closed.
func CountOpen(ctx context.Context, db *gorm.DB, solicitorID uuid.UUID) (int64, error) {
	var n int64
	if err := db.WithContext(ctx).Model(&models.Case{}).
		Where("assigned_solicitor_id = ? AND status <> ?", solicitorID, models.StatusClosed).
		Count(&n).Error; err != nil {
		return 0, apperr.Internal("count open cases", err)
	}
	return n, nil
}
