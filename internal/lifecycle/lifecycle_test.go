package lifecycle

import (
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

func TestCheckPermissive(t *testing.T) {
	var m Machine

	tr, err := m.Check(models.RoleSolicitor, models.StatusOpen, models.StatusPendingReview)
	require.NoError(t, err)
	assert.Equal(t, Transition{From: models.StatusOpen, To: models.StatusPendingReview}, tr)

	// admin straight from open to closed
	tr, err = m.Check(models.RoleAdmin, models.StatusOpen, models.StatusClosed)
	require.NoError(t, err)
	assert.False(t, tr.Reopen)
}

func TestCheckStrict(t *testing.T) {
	m := Machine{Strict: true}

	_, err := m.Check(models.RoleSolicitor, models.StatusOpen, models.StatusClosed)
	assert.ErrorIs(t, err, ErrNotAdjacent)

	_, err = m.Check(models.RoleSolicitor, models.StatusInProgress, models.StatusAwaitingClient)
	assert.NoError(t, err)
}

func TestCheckRejects(t *testing.T) {
	var m Machine

	_, err := m.Check(models.RoleAdmin, models.StatusOpen, models.StatusOpen)
	assert.ErrorIs(t, err, ErrSameStatus)
	assert.ErrorIs(t, err, apperr.ErrValidation)

	_, err = m.Check(models.RoleAdmin, models.StatusOpen, "archived")
	assert.ErrorIs(t, err, ErrUnknownStatus)
}

func TestClosedIsTerminalExceptForAdmins(t *testing.T) {
	for _, strict := range []bool{false, true} {
		m := Machine{Strict: strict}
		for _, role := range []models.Role{models.RoleClient, models.RoleSolicitor} {
			_, err := m.Check(role, models.StatusClosed, models.StatusInProgress)
			assert.ErrorIs(t, err, ErrClosed, "strict=%v role=%s", strict, role)
			assert.ErrorIs(t, err, apperr.ErrConflict)
		}
		tr, err := m.Check(models.RoleAdmin, models.StatusClosed, models.StatusInProgress)
		require.NoError(t, err)
		assert.True(t, tr.Reopen)
	}
}

func TestAllowed(t *testing.T) {
	assert.True(t, Allowed(models.StatusOpen, models.StatusInProgress))
	assert.False(t, Allowed(models.StatusOpen, models.StatusClosed))
	assert.False(t, Allowed(models.StatusClosed, models.StatusOpen))
}

func TestNeedsAttention(t *testing.T) {
	now := time.Date(2024, 3, 10, 12, 0, 0, 0, time.UTC)
	soon := now.Add(23 * time.Hour)
	later := now.Add(72 * time.Hour)

	tests := []struct {
		name string
		c    *models.Case
		want bool
	}{
		{"nil", nil, false},
		{"fresh, no deadline", &models.Case{ExpectedResponseBy: now.Add(time.Hour)}, false},
		{"past response SLA", &models.Case{ExpectedResponseBy: now.Add(-time.Minute)}, true},
		{"deadline within a day", &models.Case{ExpectedResponseBy: now.Add(time.Hour), Deadline: &soon}, true},
		{"deadline far away", &models.Case{ExpectedResponseBy: now.Add(time.Hour), Deadline: &later}, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, NeedsAttention(tt.c, now))
			// same inputs, same answer
			assert.Equal(t, tt.want, NeedsAttention(tt.c, now))
		})
	}
}

func TestFrozen(t *testing.T) {
	assert.False(t, Frozen(nil))
	for _, s := range []models.CaseStatus{models.StatusOpen, models.StatusInProgress, models.StatusPendingReview} {
		assert.False(t, Frozen(&models.Case{Status: s}), s)
	}
	assert.True(t, Frozen(&models.Case{Status: models.StatusClosed}))
}
