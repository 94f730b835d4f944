package ratings

import (
	"encoding/json"
	"io"
	"net/http/httptest"
	"strings"
	"sync"
	"testing"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/internal/testdb"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
)

/* ===== helpers ===== */

func injectAuth(u models.User) fiber.Handler {
	id, role := u.ID.String(), string(u.Role)
	return func(c *fiber.Ctx) error {
		c.Locals("userID", id)
		c.Locals("role", role)
		return c.Next()
	}
}

func newApp(db *gorm.DB, u models.User) *fiber.App {
	h := NewHandler(db)
	app := fiber.New(fiber.Config{ErrorHandler: auth.ErrorHandler})
	app.Use(injectAuth(u))
	app.Post("/api/solicitors/:id/ratings", h.Rate)
	app.Get("/api/solicitors/:id/ratings", h.List)
	return app
}

func rate(t *testing.T, app *fiber.App, solicitorID uuid.UUID, body string) (int, []byte) {
	t.Helper()
	req := httptest.NewRequest("POST", "/api/solicitors/"+solicitorID.String()+"/ratings", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req, -1)
	require.NoError(t, err)
	b, _ := io.ReadAll(resp.Body)
	return resp.StatusCode, b
}

func average(t *testing.T, db *gorm.DB, solicitorID uuid.UUID) float64 {
	t.Helper()
	var sp models.SolicitorProfile
	require.NoError(t, db.First(&sp, "user_id = ?", solicitorID).Error)
	return sp.AverageRating
}

// clientOf creates a client with a case handled by the solicitor.
func clientOf(t *testing.T, db *gorm.DB, sol models.User) models.User {
	t.Helper()
	c := testdb.User(t, db, models.RoleClient)
	testdb.Case(t, db, c.ID, models.CaseHousing, models.StatusClosed, &sol.ID)
	return c
}

/* ===== tests ===== */

func TestRate_RecomputesAverage(t *testing.T) {
	db := testdb.Open(t)
	sol := testdb.Solicitor(t, db, true, 5, models.CaseHousing)

	code, body := rate(t, newApp(db, clientOf(t, db, sol)), sol.ID, `{"score":5,"comment":" Excellent "}`)
	require.Equal(t, 201, code, string(body))
	var r models.Rating
	require.NoError(t, json.Unmarshal(body, &r))
	assert.Equal(t, "Excellent", r.Comment)
	assert.InDelta(t, 5.0, average(t, db, sol.ID), 0.001)

	code, _ = rate(t, newApp(db, clientOf(t, db, sol)), sol.ID, `{"score":2}`)
	require.Equal(t, 201, code)
	assert.InDelta(t, 3.5, average(t, db, sol.ID), 0.001)
}

func TestRate_OncePerClient(t *testing.T) {
	db := testdb.Open(t)
	sol := testdb.Solicitor(t, db, true, 5, models.CaseHousing)
	app := newApp(db, clientOf(t, db, sol))

	code, _ := rate(t, app, sol.ID, `{"score":4}`)
	require.Equal(t, 201, code)

	code, body := rate(t, app, sol.ID, `{"score":1}`)
	assert.Equal(t, 409, code)
	assert.Contains(t, string(body), "already rated")
	assert.InDelta(t, 4.0, average(t, db, sol.ID), 0.001)
}

func TestRate_RequiresWorkingRelationship(t *testing.T) {
	db := testdb.Open(t)
	sol := testdb.Solicitor(t, db, true, 5, models.CaseHousing)
	stranger := testdb.User(t, db, models.RoleClient)

	code, _ := rate(t, newApp(db, stranger), sol.ID, `{"score":1}`)
	assert.Equal(t, 403, code)

	code, _ = rate(t, newApp(db, stranger), uuid.New(), `{"score":1}`)
	assert.Equal(t, 404, code)

	var n int64
	db.Model(&models.Rating{}).Count(&n)
	assert.Zero(t, n)
}

func TestRate_Validation(t *testing.T) {
	db := testdb.Open(t)
	sol := testdb.Solicitor(t, db, true, 5, models.CaseHousing)
	app := newApp(db, clientOf(t, db, sol))

	for _, body := range []string{`{"score":0}`, `{"score":6}`, `{"score":3,"comment":"` + strings.Repeat("x", 1001) + `"}`} {
		code, _ := rate(t, app, sol.ID, body)
		assert.Equal(t, 400, code, body)
	}
	code, _ := rate(t, app, uuid.Nil, `{"score":3}`)
	assert.Equal(t, 404, code)

	req := httptest.NewRequest("POST", "/api/solicitors/not-a-uuid/ratings", strings.NewReader(`{"score":3}`))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	assert.Equal(t, 400, resp.StatusCode)
}

func TestRate_ConcurrentRatingsKeepAverageConsistent(t *testing.T) {
	db := testdb.Open(t)
	sol := testdb.Solicitor(t, db, true, 5, models.CaseHousing)

	scores := []int{1, 2, 3, 4, 5, 5}
	apps := make([]*fiber.App, len(scores))
	for i := range scores {
		apps[i] = newApp(db, clientOf(t, db, sol))
	}

	var wg sync.WaitGroup
	codes := make([]int, len(scores))
	for i, s := range scores {
		wg.Add(1)
		go func(i, s int) {
			defer wg.Done()
			body, _ := json.Marshal(map[string]int{"score": s})
			req := httptest.NewRequest("POST", "/api/solicitors/"+sol.ID.String()+"/ratings", strings.NewReader(string(body)))
			req.Header.Set("Content-Type", "application/json")
			if resp, err := apps[i].Test(req, -1); err == nil {
				codes[i] = resp.StatusCode
			}
		}(i, s)
	}
	wg.Wait()

	for _, c := range codes {
		assert.Equal(t, 201, c)
	}
	assert.InDelta(t, 20.0/6.0, average(t, db, sol.ID), 0.001)
}

func TestList_Paginates(t *testing.T) {
	db := testdb.Open(t)
	sol := testdb.Solicitor(t, db, true, 5, models.CaseHousing)
	for i := 0; i < 3; i++ {
		code, _ := rate(t, newApp(db, clientOf(t, db, sol)), sol.ID, `{"score":4}`)
		require.Equal(t, 201, code)
	}

	req := httptest.NewRequest("GET", "/api/solicitors/"+sol.ID.String()+"/ratings?page=2&pageSize=2", nil)
	resp, err := newApp(db, sol).Test(req)
	require.NoError(t, err)
	require.Equal(t, 200, resp.StatusCode)

	var page models.Page[models.Rating]
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&page))
	assert.Equal(t, int64(3), page.Total)
	assert.Equal(t, 2, page.Pages)
	assert.Len(t, page.Items, 1)
}
