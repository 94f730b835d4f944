package ratings

import (
	"errors"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
	"github.com/aldoetobex/legal-aid-backend/pkg/utils"
	"github.com/aldoetobex/legal-aid-backend/pkg/validation"
)

type Handler struct {
	db *gorm.DB
}

func NewHandler(db *gorm.DB) *Handler { return &Handler{db: db} }

// ===========================================
// POST /api/solicitors/:id/ratings (client)
// ===========================================

type RateRequest struct {
	Score   int    `json:"score" validate:"required,gte=1,lte=5"`
	Comment string `json:"comment" validate:"max=1000"`
}

// recomputeSQL refreshes the cached average from every rating of the solicitor.
const recomputeSQL = `
UPDATE solicitor_profiles
SET average_rating = (SELECT COALESCE(AVG(score), 0) FROM ratings WHERE solicitor_id = ?),
    updated_at = ?
WHERE user_id = ?`

// Rate godoc
// @Summary      Rate a solicitor
// @Description  A client who has (or had) a case with the solicitor leaves one rating; the solicitor's average is refreshed in the same transaction
// @Tags         ratings
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string       true  "solicitor id (uuid)"
// @Param        payload  body  RateRequest  true  "rating"
// @Success      201  {object}  models.Rating
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /solicitors/{id}/ratings [post]
func (h *Handler) Rate(c *fiber.Ctx) error {
	solicitorID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid solicitor id")
	}
	raterID, err := auth.UserUUID(c)
	if err != nil {
		return err
	}

	var in RateRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if err := validation.Check(in); err != nil {
		return err
	}

	tx := h.db.WithContext(c.UserContext()).Begin()
	defer func() {
		if r := recover(); r != nil {
			tx.Rollback()
			panic(r)
		}
	}()

	// 1) Lock the profile so concurrent ratings recompute the average in turn
	var sp models.SolicitorProfile
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).
		First(&sp, "user_id = ?", solicitorID).Error; err != nil {
		tx.Rollback()
		return apperr.FromDB(err, "solicitor")
	}

	// 2) Only clients the solicitor has worked for may rate
	var worked int64
	if err := tx.Model(&models.Case{}).
		Where("client_id = ? AND assigned_solicitor_id = ?", raterID, solicitorID).
		Count(&worked).Error; err != nil {
		tx.Rollback()
		return apperr.Internal("check rating eligibility", err)
	}
	if worked == 0 {
		tx.Rollback()
		return apperr.Forbidden("you can only rate a solicitor who has handled one of your cases")
	}

	// 3) Insert; the unique (solicitor, rater) index rejects a second rating
	now := time.Now().UTC()
	r := models.Rating{
		SolicitorID: solicitorID,
		RaterID:     raterID,
		Score:       in.Score,
		Comment:     strings.TrimSpace(in.Comment),
		CreatedAt:   now,
	}
	if err := tx.Create(&r).Error; err != nil {
		tx.Rollback()
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return apperr.Conflict("you have already rated this solicitor")
		}
		return apperr.Internal("create rating", err)
	}

	// 4) Refresh the average
	if err := tx.Exec(recomputeSQL, solicitorID, now, solicitorID).Error; err != nil {
		tx.Rollback()
		return apperr.Internal("recompute average rating", err)
	}

	if err := tx.Commit().Error; err != nil {
		return apperr.Internal("commit rating", err)
	}
	return c.Status(fiber.StatusCreated).JSON(r)
}

// ==============================================
// GET /api/solicitors/:id/ratings?page=&pageSize=
// ==============================================

// List godoc
// @Summary      List a solicitor's ratings
// @Tags         ratings
// @Security     BearerAuth
// @Produce      json
// @Param        id        path  string true  "solicitor id (uuid)"
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Success      200  {object}  models.Page[models.Rating]
// @Router       /solicitors/{id}/ratings [get]
func (h *Handler) List(c *fiber.Ctx) error {
	solicitorID, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid solicitor id")
	}
	page, size := utils.ParsePage(c)

	q := h.db.WithContext(c.UserContext()).Model(&models.Rating{}).Where("solicitor_id = ?", solicitorID)

	var total int64
	if err := q.Count(&total).Error; err != nil {
		return apperr.Internal("count ratings", err)
	}

	rows := []models.Rating{}
	if err := q.Order("created_at DESC").
		Offset(utils.Offset(page, size)).Limit(size).
		Find(&rows).Error; err != nil {
		return apperr.Internal("list ratings", err)
	}

	return c.JSON(models.Page[models.Rating]{
		Page: page, PageSize: size, Total: total,
		Pages: utils.Pages(total, size),
		Items: rows,
	})
}
