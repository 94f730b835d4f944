package auth

import (
	"context"
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/internal/cache"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

/* ============================== JWT Claims ============================== */

// Claims represents the JWT payload we issue and expect. The token id (jti)
// lives in RegisteredClaims.ID and is what logout revokes.
type Claims struct {
	Sub  string `json:"sub"`  // user ID
	Role string `json:"role"` // "client" | "solicitor" | "admin"
	jwt.RegisteredClaims
}

/* ============================== JWT Helpers ============================= */

const revokedPrefix = "auth:revoked:"

// Tokens issues and verifies access tokens. Revoked token ids are kept in
// the cache until the token would have expired anyway; with no cache
// configured, logout is client-side only.
type Tokens struct {
	secret  []byte
	ttl     time.Duration
	revoked *cache.Client
	now     func() time.Time
}

func NewTokens(secret string, ttl time.Duration, revoked *cache.Client) *Tokens {
	if ttl <= 0 {
		ttl = 7 * 24 * time.Hour
	}
	return &Tokens{secret: []byte(secret), ttl: ttl, revoked: revoked, now: time.Now}
}

// Issue signs a token for the given user and role.
func (t *Tokens) Issue(userID string, role models.Role) (string, error) {
	now := t.now()
	claims := &Claims{
		Sub:  userID,
		Role: string(role),
		RegisteredClaims: jwt.RegisteredClaims{
			ID:        uuid.NewString(),
			ExpiresAt: jwt.NewNumericDate(now.Add(t.ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(t.secret)
}

// Parse verifies signature, algorithm and expiry.
func (t *Tokens) Parse(tokenStr string) (*Claims, error) {
	token, err := jwt.ParseWithClaims(tokenStr, &Claims{}, func(*jwt.Token) (any, error) {
		return t.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithTimeFunc(t.now))
	if err != nil || !token.Valid {
		return nil, errors.New("invalid token")
	}
	claims, ok := token.Claims.(*Claims)
	if !ok || claims.Sub == "" {
		return nil, errors.New("invalid token claims")
	}
	return claims, nil
}

// Revoke blacklists the token until its expiry.
func (t *Tokens) Revoke(ctx context.Context, claims *Claims) {
	if claims == nil || claims.ID == "" || claims.ExpiresAt == nil {
		return
	}
	ttl := claims.ExpiresAt.Sub(t.now())
	if ttl <= 0 {
		return
	}
	t.revoked.Set(ctx, revokedPrefix+claims.ID, []byte("1"), ttl)
}

func (t *Tokens) isRevoked(ctx context.Context, jti string) bool {
	return jti != "" && t.revoked.Exists(ctx, revokedPrefix+jti)
}

/* ============================== Middleware ============================== */

// RequireAuth validates a Bearer JWT and injects userID, role and the claims
// into the context.
func (t *Tokens) RequireAuth() fiber.Handler {
	return func(c *fiber.Ctx) error {
		h := c.Get("Authorization")
		if !strings.HasPrefix(h, "Bearer ") {
			return fiber.ErrUnauthorized
		}
		claims, err := t.Parse(strings.TrimPrefix(h, "Bearer "))
		if err != nil {
			return fiber.ErrUnauthorized
		}
		if t.isRevoked(c.UserContext(), claims.ID) {
			return fiber.NewError(fiber.StatusUnauthorized, "token has been revoked")
		}

		c.Locals("userID", claims.Sub)
		c.Locals("role", claims.Role)
		c.Locals("claims", claims)
		return c.Next()
	}
}

// MustUserID reads the authenticated user ID from context or panics (programming error).
func MustUserID(c *fiber.Ctx) string {
	if v := c.Locals("userID"); v != nil {
		return v.(string)
	}
	panic(errors.New("user not in context"))
}

// MustRole reads the authenticated user role from context or panics (programming error).
func MustRole(c *fiber.Ctx) models.Role {
	if v := c.Locals("role"); v != nil {
		return models.Role(v.(string))
	}
	panic(errors.New("role not in context"))
}

// UserUUID parses the authenticated user id.
func UserUUID(c *fiber.Ctx) (uuid.UUID, error) {
	id, err := uuid.Parse(MustUserID(c))
	if err != nil {
		return uuid.Nil, fiber.ErrUnauthorized
	}
	return id, nil
}

// RequireRole ensures the authenticated user has one of the given roles.
func RequireRole(roles ...models.Role) fiber.Handler {
	return func(c *fiber.Ctx) error {
		role := MustRole(c)
		for _, r := range roles {
			if r == role {
				return c.Next()
			}
		}
		return fiber.ErrForbidden
	}
}

/* =========================== Error Formatting =========================== */

// httpCodeToString converts an HTTP status code to a short, stable string.
func httpCodeToString(code int) string {
	switch code {
	case fiber.StatusBadRequest:
		return "BAD_REQUEST"
	case fiber.StatusUnauthorized:
		return "UNAUTHORIZED"
	case fiber.StatusForbidden:
		return "FORBIDDEN"
	case fiber.StatusNotFound:
		return "NOT_FOUND"
	case fiber.StatusConflict:
		return "CONFLICT"
	case fiber.StatusUnprocessableEntity:
		return "UNPROCESSABLE_ENTITY"
	case fiber.StatusRequestEntityTooLarge:
		return "PAYLOAD_TOO_LARGE"
	default:
		return "INTERNAL_SERVER_ERROR"
	}
}

// ErrorHandler renders errors without internal detail; used by tests and
// tools. The server installs NewErrorHandler.
func ErrorHandler(c *fiber.Ctx, err error) error {
	return renderError(c, err, slog.Default(), false)
}

// NewErrorHandler returns the global Fiber error handler. Outside production
// the wrapped error chain of 5xx responses is included as "detail".
func NewErrorHandler(log *slog.Logger, production bool) fiber.ErrorHandler {
	return func(c *fiber.Ctx, err error) error {
		return renderError(c, err, log, !production)
	}
}

func renderError(c *fiber.Ctx, err error, log *slog.Logger, withDetail bool) error {
	// Fiber errors carry status codes
	var fe *fiber.Error
	if errors.As(err, &fe) {
		msg := strings.TrimSpace(fe.Message)
		if msg == "" {
			msg = fiber.NewError(fe.Code).Message
		}
		return c.Status(fe.Code).JSON(models.ErrorResponse{
			Code:    httpCodeToString(fe.Code),
			Error:   true,
			Message: msg,
		})
	}

	// Domain errors
	var ae *apperr.Error
	if errors.As(err, &ae) && ae.Kind == apperr.KindValidation {
		return c.Status(fiber.StatusBadRequest).JSON(models.ValidationErrorResponse{
			Message: ae.Message,
			Errors:  ae.Fields,
		})
	}

	code, codeStr := apperr.HTTPStatus(err)
	resp := models.ErrorResponse{
		Code:    codeStr,
		Error:   true,
		Message: apperr.PublicMessage(err),
	}
	if code >= fiber.StatusInternalServerError {
		log.ErrorContext(c.UserContext(), "request failed",
			"method", c.Method(), "path", c.Path(), "status", code, "error", err)
		if withDetail {
			resp.Detail = err.Error()
		}
	}
	return c.Status(code).JSON(resp)
}
