package validation

import "github.com/aldoetobex/legal-aid-backend/internal/apperr"

// Check validates s and returns a validation error carrying the field map, or
// nil. The global error handler renders it in the Laravel-style 400 shape.
func Check(s any) error {
	errs, err := Validate(s)
	if err != nil {
		return apperr.Internal("validator misuse", err)
	}
	if errs != nil {
		return apperr.Validation("Validation failed", errs)
	}
	return nil
}
