package apperr

import (
	"errors"
	"fmt"
	"net/http"
	"testing"

	"github.com/stretchr/testify/assert"
	"gorm.io/gorm"
)

func TestKindSentinels(t *testing.T) {
	err := fmt.Errorf("wrapped: %w", Conflict("case is already assigned"))
	assert.ErrorIs(t, err, ErrConflict)
	assert.NotErrorIs(t, err, ErrForbidden)
	assert.Equal(t, KindConflict, KindOf(err))
}

func TestKindOfTranslatesGorm(t *testing.T) {
	assert.Equal(t, KindNotFound, KindOf(gorm.ErrRecordNotFound))
	assert.Equal(t, KindConflict, KindOf(gorm.ErrDuplicatedKey))
	assert.Equal(t, KindInternal, KindOf(errors.New("boom")))
}

func TestFromDB(t *testing.T) {
	assert.NoError(t, FromDB(nil, "case"))

	err := FromDB(gorm.ErrRecordNotFound, "case")
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Equal(t, "case not found", err.Error())

	err = FromDB(gorm.ErrDuplicatedKey, "rating")
	assert.ErrorIs(t, err, ErrConflict)
	assert.ErrorIs(t, err, gorm.ErrDuplicatedKey)

	already := Forbidden("nope")
	assert.Same(t, already, FromDB(already, "case"))

	assert.ErrorIs(t, FromDB(errors.New("conn reset"), "case"), &Error{Kind: KindInternal})
}

func TestHTTPStatus(t *testing.T) {
	tests := []struct {
		err  error
		code int
		str  string
	}{
		{Field("status", "bad"), http.StatusBadRequest, "VALIDATION_ERROR"},
		{Forbidden("no"), http.StatusForbidden, "FORBIDDEN"},
		{NotFound("case"), http.StatusNotFound, "NOT_FOUND"},
		{Conflict("taken"), http.StatusConflict, "CONFLICT"},
		{Invariant("audit", errors.New("x")), http.StatusInternalServerError, "INVARIANT_VIOLATION"},
		{errors.New("boom"), http.StatusInternalServerError, "INTERNAL_SERVER_ERROR"},
	}
	for _, tt := range tests {
		code, str := HTTPStatus(tt.err)
		assert.Equal(t, tt.code, code, tt.err.Error())
		assert.Equal(t, tt.str, str, tt.err.Error())
	}
}

func TestPublicMessageHidesInternals(t *testing.T) {
	assert.Equal(t, "taken", PublicMessage(Conflict("taken")))
	assert.Equal(t, "Internal Server Error", PublicMessage(Internal("db", errors.New("password=secret"))))
	assert.Equal(t, "Internal Server Error", PublicMessage(Invariant("audit", nil)))
	assert.Equal(t, "Internal Server Error", PublicMessage(errors.New("raw")))
}

func TestErrorUnwrap(t *testing.T) {
	cause := errors.New("cause")
	err := Internal("create case", cause)
	assert.ErrorIs(t, err, cause)
	assert.Equal(t, "create case: cause", err.Error())
}
