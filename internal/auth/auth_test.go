package auth

import (
	"encoding/json"
	"errors"
	"io"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/internal/testdb"
	"github.com/aldoetobex/legal-aid-backend/pkg/logging"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

/* ============================== Tokens ================================== */

func TestIssueAndParse(t *testing.T) {
	tk := NewTokens("secret", time.Hour, nil)
	id := uuid.NewString()

	token, err := tk.Issue(id, models.RoleSolicitor)
	require.NoError(t, err)

	claims, err := tk.Parse(token)
	require.NoError(t, err)
	assert.Equal(t, id, claims.Sub)
	assert.Equal(t, "solicitor", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestParseRejects(t *testing.T) {
	tk := NewTokens("secret", time.Hour, nil)
	good, err := tk.Issue(uuid.NewString(), models.RoleClient)
	require.NoError(t, err)

	t.Run("wrong secret", func(t *testing.T) {
		_, err := NewTokens("other", time.Hour, nil).Parse(good)
		assert.Error(t, err)
	})
	t.Run("expired", func(t *testing.T) {
		late := NewTokens("secret", time.Hour, nil)
		late.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
		_, err := late.Parse(good)
		assert.Error(t, err)
	})
	t.Run("none algorithm", func(t *testing.T) {
		unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, &Claims{Sub: "x"}).SignedString(jwt.UnsafeAllowNoneSignatureType)
		require.NoError(t, err)
		_, err = tk.Parse(unsigned)
		assert.Error(t, err)
	})
	t.Run("missing subject", func(t *testing.T) {
		noSub, err := jwt.NewWithClaims(jwt.SigningMethodHS256, &Claims{Role: "client"}).SignedString([]byte("secret"))
		require.NoError(t, err)
		_, err = tk.Parse(noSub)
		assert.Error(t, err)
	})
}

/* ============================== Middleware ============================== */

func protectedApp(tk *Tokens, roles ...models.Role) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Use(tk.RequireAuth())
	if len(roles) > 0 {
		app.Use(RequireRole(roles...))
	}
	app.Get("/whoami", func(c *fiber.Ctx) error {
		return c.JSON(fiber.Map{"id": MustUserID(c), "role": MustRole(c)})
	})
	return app
}

func get(t *testing.T, app *fiber.App, token string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("GET", "/whoami", nil)
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	var body map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&body)
	return resp.StatusCode, body
}

func TestRequireAuth(t *testing.T) {
	tk := NewTokens("secret", time.Hour, nil)
	app := protectedApp(tk)
	id := uuid.NewString()
	token, _ := tk.Issue(id, models.RoleClient)

	code, body := get(t, app, token)
	assert.Equal(t, 200, code)
	assert.Equal(t, id, body["id"])
	assert.Equal(t, "client", body["role"])

	code, body = get(t, app, "")
	assert.Equal(t, 401, code)
	assert.Equal(t, "UNAUTHORIZED", body["code"])
	assert.Equal(t, true, body["error"])

	code, _ = get(t, app, "garbage")
	assert.Equal(t, 401, code)
}

func TestRequireRole(t *testing.T) {
	tk := NewTokens("secret", time.Hour, nil)
	app := protectedApp(tk, models.RoleAdmin)

	admin, _ := tk.Issue(uuid.NewString(), models.RoleAdmin)
	client, _ := tk.Issue(uuid.NewString(), models.RoleClient)

	code, _ := get(t, app, admin)
	assert.Equal(t, 200, code)

	code, body := get(t, app, client)
	assert.Equal(t, 403, code)
	assert.Equal(t, "FORBIDDEN", body["code"])
}

/* =========================== Error Formatting =========================== */

func errorApp(production bool, err error) *fiber.App {
	app := fiber.New(fiber.Config{ErrorHandler: NewErrorHandler(logging.Discard(), production)})
	app.Get("/", func(c *fiber.Ctx) error { return err })
	return app
}

func render(t *testing.T, app *fiber.App) (int, map[string]any) {
	t.Helper()
	resp, err := app.Test(httptest.NewRequest("GET", "/", nil))
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	var body map[string]any
	require.NoError(t, json.Unmarshal(b, &body), string(b))
	return resp.StatusCode, body
}

func TestErrorHandlerValidationShape(t *testing.T) {
	code, body := render(t, errorApp(true, apperr.Field("type", "Unknown case type")))
	assert.Equal(t, 400, code)
	assert.Equal(t, "Validation failed", body["message"])
	assert.Equal(t, map[string]any{"type": []any{"Unknown case type"}}, body["errors"])
	assert.NotContains(t, body, "code")
}

func TestErrorHandlerDomainKinds(t *testing.T) {
	tests := []struct {
		err  error
		code int
		str  string
	}{
		{apperr.Forbidden("you do not have access to this case"), 403, "FORBIDDEN"},
		{apperr.NotFound("case"), 404, "NOT_FOUND"},
		{apperr.Conflict("solicitor is at capacity"), 409, "CONFLICT"},
	}
	for _, tt := range tests {
		code, body := render(t, errorApp(true, tt.err))
		assert.Equal(t, tt.code, code)
		assert.Equal(t, tt.str, body["code"])
		assert.Equal(t, apperr.PublicMessage(tt.err), body["message"])
	}
}

func TestErrorHandlerHidesDetailInProduction(t *testing.T) {
	boom := apperr.Internal("create case", errors.New("pq: connection refused"))

	code, body := render(t, errorApp(true, boom))
	assert.Equal(t, 500, code)
	assert.Equal(t, "Internal Server Error", body["message"])
	assert.NotContains(t, body, "detail")

	_, body = render(t, errorApp(false, boom))
	assert.Contains(t, body["detail"], "connection refused")

	code, body = render(t, errorApp(true, apperr.Invariant("record case activity", errors.New("x"))))
	assert.Equal(t, 500, code)
	assert.Equal(t, "INVARIANT_VIOLATION", body["code"])
}

/* =============================== Handlers =============================== */

func authApp(t *testing.T) (*fiber.App, *Tokens) {
	t.Helper()
	db := testdb.Open(t)
	tk := NewTokens("secret", time.Hour, nil)
	h := NewHandler(db, tk, logging.Discard())

	app := fiber.New(fiber.Config{ErrorHandler: ErrorHandler})
	app.Post("/signup", h.Signup)
	app.Post("/login", h.Login)
	app.Post("/logout", tk.RequireAuth(), h.Logout)
	app.Get("/me", tk.RequireAuth(), h.Me)
	return app, tk
}

func postJSON(t *testing.T, app *fiber.App, path, body, token string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest("POST", path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	if token != "" {
		req.Header.Set("Authorization", "Bearer "+token)
	}
	resp, err := app.Test(req)
	require.NoError(t, err)
	var out map[string]any
	_ = json.NewDecoder(resp.Body).Decode(&out)
	return resp.StatusCode, out
}

func TestSignupSolicitorAndMe(t *testing.T) {
	app, _ := authApp(t)

	code, out := postJSON(t, app, "/signup", `{
		"role":"solicitor","name":"Sam Law","email":"Sam@Example.com","password":"password123",
		"solicitor_number":"SRA-7788","specializations":["housing","housing","debt"],"years_of_experience":4
	}`, "")
	require.Equal(t, 201, code, out)
	assert.Equal(t, "solicitor", out["role"])
	token := out["token"].(string)

	req := httptest.NewRequest("GET", "/me", nil)
	req.Header.Set("Authorization", "Bearer "+token)
	resp, err := app.Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var raw struct {
		Email   string `json:"email"`
		Profile struct {
			Kind string         `json:"kind"`
			Data map[string]any `json:"data"`
		} `json:"profile"`
	}
	b, _ := io.ReadAll(resp.Body)
	require.NoError(t, json.Unmarshal(b, &raw))
	assert.Equal(t, "sam@example.com", raw.Email)
	assert.Equal(t, "solicitor", raw.Profile.Kind)
	assert.Equal(t, []any{"housing", "debt"}, raw.Profile.Data["specializations"])
	assert.Equal(t, false, raw.Profile.Data["verified"])
}

func TestSignupValidation(t *testing.T) {
	app, _ := authApp(t)

	code, out := postJSON(t, app, "/signup", `{"role":"solicitor","name":"Sam","email":"s@x.com","password":"password123"}`, "")
	assert.Equal(t, 400, code)
	errs := out["errors"].(map[string]any)
	assert.Contains(t, errs, "solicitor_number")
	assert.Contains(t, errs, "specializations")

	code, out = postJSON(t, app, "/signup", `{"role":"admin","name":"Eve","email":"e@x.com","password":"password123"}`, "")
	assert.Equal(t, 400, code)
	assert.Contains(t, out["errors"], "role")

	code, out = postJSON(t, app, "/signup", `{"role":"client","name":"Cat","email":"c@x.com","password":"password123","national_insurance_number":"DA123456C"}`, "")
	assert.Equal(t, 400, code)
	assert.Contains(t, out["errors"], "national_insurance_number")
}

func TestSignupDuplicateEmail(t *testing.T) {
	app, _ := authApp(t)
	body := `{"role":"client","name":"Cat","email":"dup@x.com","password":"password123","national_insurance_number":"AB123456C"}`

	code, _ := postJSON(t, app, "/signup", body, "")
	require.Equal(t, 201, code)

	code, out := postJSON(t, app, "/signup", body, "")
	assert.Equal(t, 409, code)
	assert.Equal(t, "email already exists", out["message"])

	// Same NI number under another email
	code, out = postJSON(t, app, "/signup", strings.Replace(body, "dup@x.com", "dup2@x.com", 1), "")
	assert.Equal(t, 409, code)
	assert.Equal(t, "profile identifier already registered", out["message"])
}

func TestLoginAndLogout(t *testing.T) {
	app, _ := authApp(t)
	code, _ := postJSON(t, app, "/signup", `{"role":"client","name":"Cat","email":"cat@x.com","password":"password123"}`, "")
	require.Equal(t, 201, code)

	code, _ = postJSON(t, app, "/login", `{"email":"cat@x.com","password":"wrong-password"}`, "")
	assert.Equal(t, 401, code)

	code, out := postJSON(t, app, "/login", `{"email":" CAT@x.com ","password":"password123"}`, "")
	require.Equal(t, 200, code)
	token := out["token"].(string)

	code, _ = postJSON(t, app, "/logout", ``, token)
	assert.Equal(t, 204, code)
}
