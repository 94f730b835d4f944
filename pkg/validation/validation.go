package validation

import (
	"fmt"
	"reflect"
	"regexp"
	"strings"

	"github.com/go-playground/validator/v10"

	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

var (
	v *validator.Validate

	// Solicitor number: 3–40 chars, alphanumerics plus space, dash, slash.
	reSolNum = regexp.MustCompile(`^[A-Za-z0-9 /-]{3,40}$`)
	// UK National Insurance number, e.g. AB123456C (no D, F, I, Q, U, V in the prefix).
	reNINO = regexp.MustCompile(`^[A-CEGHJ-PR-TW-Z][A-CEGHJ-NPR-TW-Z][0-9]{6}[A-D]$`)
)

func init() {
	v = validator.New()

	// Use JSON tag as the field name in error output
	v.RegisterTagNameFunc(func(fld reflect.StructField) string {
		name := strings.SplitN(fld.Tag.Get("json"), ",", 2)[0]
		if name == "" || name == "-" {
			return fld.Name
		}
		return name
	})

	_ = v.RegisterValidation("solnum", func(fl validator.FieldLevel) bool {
		val := strings.TrimSpace(fl.Field().String())
		if val == "" { // let omitempty/required handle empty
			return true
		}
		return reSolNum.MatchString(val)
	})

	_ = v.RegisterValidation("nino", func(fl validator.FieldLevel) bool {
		val := fl.Field().String()
		if NormalizeNINO(val) == "" {
			return true
		}
		return ValidNINO(val)
	})

	_ = v.RegisterValidation("casetype", func(fl validator.FieldLevel) bool {
		return models.CaseType(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("casestatus", func(fl validator.FieldLevel) bool {
		return models.CaseStatus(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("priority", func(fl validator.FieldLevel) bool {
		return models.Priority(fl.Field().String()).Valid()
	})
	_ = v.RegisterValidation("permission", func(fl validator.FieldLevel) bool {
		p := models.Permission(fl.Field().String())
		for _, allowed := range models.Permissions() {
			if p == allowed {
				return true
			}
		}
		return false
	})
}

// NormalizeNINO strips spaces and upper-cases a National Insurance number.
func NormalizeNINO(s string) string {
	return strings.ToUpper(strings.ReplaceAll(strings.TrimSpace(s), " ", ""))
}

// ValidNINO reports whether s is a well-formed National Insurance number.
func ValidNINO(s string) bool {
	return reNINO.MatchString(NormalizeNINO(s))
}

// Validate returns map[field][]messages (Laravel-like)
func Validate(s any) (map[string][]string, error) {
	if err := v.Struct(s); err != nil {
		ve, ok := err.(validator.ValidationErrors)
		if !ok {
			return nil, err
		}
		out := make(map[string][]string)
		for _, e := range ve {
			field := e.Field() // already mapped from json tag

			switch e.Tag() {
			case "required":
				out[field] = append(out[field], "This field is required")

			case "email":
				out[field] = append(out[field], "Invalid email format")

			case "min":
				if e.Kind() == reflect.String {
					out[field] = append(out[field], fmt.Sprintf("Must be at least %s characters", e.Param()))
				} else {
					out[field] = append(out[field], fmt.Sprintf("Must be at least %s", e.Param()))
				}

			case "max":
				if e.Kind() == reflect.String {
					out[field] = append(out[field], fmt.Sprintf("Must be at most %s characters", e.Param()))
				} else {
					out[field] = append(out[field], fmt.Sprintf("Must be at most %s", e.Param()))
				}

			case "oneof":
				out[field] = append(out[field], "Value is not allowed")

			case "uuid", "uuid4":
				out[field] = append(out[field], "Invalid UUID format")

			case "gte":
				out[field] = append(out[field], fmt.Sprintf("Must be greater than or equal to %s", e.Param()))

			case "lte":
				out[field] = append(out[field], fmt.Sprintf("Must be less than or equal to %s", e.Param()))

			case "solnum":
				out[field] = append(out[field], "Invalid solicitor number format")

			case "nino":
				out[field] = append(out[field], "Invalid National Insurance number (e.g. “AB123456C”)")

			case "casetype":
				out[field] = append(out[field], "Unknown case type")

			case "casestatus":
				out[field] = append(out[field], "Unknown case status")

			case "priority":
				out[field] = append(out[field], "Unknown priority")

			case "permission":
				out[field] = append(out[field], "Unknown permission")

			default:
				// Fallback to original error text if we missed a tag
				out[field] = append(out[field], e.Error())
			}
		}
		return out, nil
	}
	return nil, nil
}
