package users

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"gorm.io/datatypes"
	"gorm.io/gorm"
	"gorm.io/gorm/clause"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/internal/assignment"
	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
	"github.com/aldoetobex/legal-aid-backend/pkg/utils"
	"github.com/aldoetobex/legal-aid-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// UpdateProfileRequest carries the fields of either profile variant; the
// ones that do not belong to the caller's role are rejected.
type UpdateProfileRequest struct {
	Name  *string `json:"name" validate:"omitempty,min=2,max=80"`
	Phone *string `json:"phone" validate:"omitempty,max=30"`

	// Client
	Address           *string `json:"address" validate:"omitempty,max=255"`
	EmploymentStatus  *string `json:"employment_status" validate:"omitempty,oneof=employed self_employed unemployed student retired"`
	AnnualIncomePence *int64  `json:"annual_income_pence" validate:"omitempty,gte=0"`

	// Solicitor
	Specializations   []string `json:"specializations" validate:"omitempty,min=1,dive,casetype"`
	FirmName          *string  `json:"firm_name" validate:"omitempty,max=120"`
	FirmAddress       *string  `json:"firm_address" validate:"omitempty,max=255"`
	YearsOfExperience *int     `json:"years_of_experience" validate:"omitempty,gte=0,lte=70"`
	AvailableHours    *int     `json:"available_hours" validate:"omitempty,gte=0,lte=168"`
}

// AdminSolicitorRequest is what an admin may change on a solicitor.
type AdminSolicitorRequest struct {
	Verified *bool `json:"verified"`
	MaxCases *int  `json:"max_cases" validate:"omitempty,gte=0,lte=500"`
}

// SolicitorItem is a solicitor in directory listings.
type SolicitorItem struct {
	ID                uuid.UUID                            `json:"id"`
	Name              string                               `json:"name"`
	SolicitorNumber   string                               `json:"solicitor_number"`
	Specializations   datatypes.JSONSlice[models.CaseType] `json:"specializations"`
	FirmName          string                               `json:"firm_name"`
	YearsOfExperience int                                  `json:"years_of_experience"`
	Verified          bool                                 `json:"verified"`
	MaxCases          int                                  `json:"max_cases"`
	AvailableHours    int                                  `json:"available_hours"`
	AverageRating     float64                              `json:"average_rating"`
	OpenCases         int64                                `json:"open_cases"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db  *gorm.DB
	log *slog.Logger
}

func NewHandler(db *gorm.DB, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{db: db, log: log}
}

/* =========================== Update profile ============================= */

// UpdateProfile godoc
// @Summary      Update own profile
// @Description  Client: address, employment, income. Solicitor: specializations, firm, experience, availability.
// @Tags         users
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  UpdateProfileRequest  true  "profile fields"
// @Success      200  {object}  models.ProfileEnvelope
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /me/profile [patch]
func (h *Handler) UpdateProfile(c *fiber.Ctx) error {
	userID, err := auth.UserUUID(c)
	if err != nil {
		return err
	}
	role := auth.MustRole(c)

	var in UpdateProfileRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if err := validation.Check(in); err != nil {
		return err
	}
	if err := checkRoleFields(role, in); err != nil {
		return err
	}

	now := time.Now().UTC()
	var out models.Profile
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		user := map[string]any{}
		if in.Name != nil {
			user["name"] = strings.TrimSpace(*in.Name)
		}
		if in.Phone != nil {
			user["phone"] = strings.TrimSpace(*in.Phone)
		}
		if len(user) > 0 {
			user["updated_at"] = now
			if err := tx.Model(&models.User{}).Where("id = ?", userID).Updates(user).Error; err != nil {
				return apperr.Internal("update user", err)
			}
		}

		switch role {
		case models.RoleClient:
			p, err := updateClient(tx, userID, in, now)
			out = p
			return err
		case models.RoleSolicitor:
			p, err := updateSolicitor(tx, userID, in, now)
			out = p
			return err
		default:
			var p models.AdminProfile
			if err := tx.First(&p, "user_id = ?", userID).Error; err != nil {
				return apperr.FromDB(err, "profile")
			}
			out = &p
			return nil
		}
	})
	if err != nil {
		return err
	}
	return c.JSON(models.ProfileEnvelope{Kind: role, Data: out})
}

func checkRoleFields(role models.Role, in UpdateProfileRequest) error {
	errs := map[string][]string{}
	notYours := "Not a field of your profile"
	if role != models.RoleClient {
		if in.Address != nil {
			errs["address"] = []string{notYours}
		}
		if in.EmploymentStatus != nil {
			errs["employment_status"] = []string{notYours}
		}
		if in.AnnualIncomePence != nil {
			errs["annual_income_pence"] = []string{notYours}
		}
	}
	if role != models.RoleSolicitor {
		if in.Specializations != nil {
			errs["specializations"] = []string{notYours}
		}
		if in.FirmName != nil {
			errs["firm_name"] = []string{notYours}
		}
		if in.FirmAddress != nil {
			errs["firm_address"] = []string{notYours}
		}
		if in.YearsOfExperience != nil {
			errs["years_of_experience"] = []string{notYours}
		}
		if in.AvailableHours != nil {
			errs["available_hours"] = []string{notYours}
		}
	}
	if len(errs) > 0 {
		return apperr.Validation("Validation failed", errs)
	}
	return nil
}

func updateClient(tx *gorm.DB, userID uuid.UUID, in UpdateProfileRequest, now time.Time) (*models.ClientProfile, error) {
	var p models.ClientProfile
	if err := tx.First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, apperr.FromDB(err, "profile")
	}
	if in.Address != nil {
		p.Address = strings.TrimSpace(*in.Address)
	}
	if in.EmploymentStatus != nil {
		p.EmploymentStatus = models.EmploymentStatus(*in.EmploymentStatus)
	}
	if in.AnnualIncomePence != nil {
		p.AnnualIncomePence = *in.AnnualIncomePence
	}
	p.UpdatedAt = now
	if err := tx.Save(&p).Error; err != nil {
		return nil, apperr.Internal("update client profile", err)
	}
	return &p, nil
}

// updateSolicitor refuses to drop a specialization while the solicitor still
// holds an open case of that type; the assignment invariant would break.
func updateSolicitor(tx *gorm.DB, userID uuid.UUID, in UpdateProfileRequest, now time.Time) (*models.SolicitorProfile, error) {
	var p models.SolicitorProfile
	if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "user_id = ?", userID).Error; err != nil {
		return nil, apperr.FromDB(err, "profile")
	}

	if in.Specializations != nil {
		next := datatypes.JSONSlice[models.CaseType]{}
		keep := map[models.CaseType]bool{}
		for _, s := range in.Specializations {
			t := models.CaseType(s)
			if !keep[t] {
				keep[t] = true
				next = append(next, t)
			}
		}
		var held []models.CaseType
		if err := tx.Model(&models.Case{}).
			Where("assigned_solicitor_id = ? AND status <> ?", userID, models.StatusClosed).
			Distinct().Pluck("type", &held).Error; err != nil {
			return nil, apperr.Internal("check open cases", err)
		}
		for _, t := range held {
			if !keep[t] {
				return nil, apperr.Conflict("cannot remove specialization " + string(t) + " while holding open cases of that type")
			}
		}
		p.Specializations = next
	}
	if in.FirmName != nil {
		p.FirmName = strings.TrimSpace(*in.FirmName)
	}
	if in.FirmAddress != nil {
		p.FirmAddress = strings.TrimSpace(*in.FirmAddress)
	}
	if in.YearsOfExperience != nil {
		p.YearsOfExperience = *in.YearsOfExperience
	}
	if in.AvailableHours != nil {
		p.AvailableHours = *in.AvailableHours
	}
	p.UpdatedAt = now
	if err := tx.Save(&p).Error; err != nil {
		return nil, apperr.Internal("update solicitor profile", err)
	}
	return &p, nil
}

/* ============================ Solicitor list ============================ */

// ListSolicitors godoc
// @Summary      Solicitor directory
// @Tags         users
// @Security     BearerAuth
// @Produce      json
// @Param        page            query int    false "page"
// @Param        pageSize        query int    false "pageSize"
// @Param        specialization  query string false "case type"
// @Param        verified        query bool   false "only verified solicitors"
// @Success      200  {object}  models.Page[SolicitorItem]
// @Failure      400  {object}  models.ValidationErrorResponse
// @Router       /solicitors [get]
func (h *Handler) ListSolicitors(c *fiber.Ctx) error {
	page, size := utils.ParsePage(c)
	spec := models.CaseType(strings.TrimSpace(c.Query("specialization")))
	if spec != "" && !spec.Valid() {
		return apperr.Field("specialization", "Unknown case type")
	}

	build := func() *gorm.DB {
		q := h.db.WithContext(c.UserContext()).
			Table("solicitor_profiles AS sp").
			Joins("JOIN users u ON u.id = sp.user_id")
		if spec != "" {
			q = q.Where("sp.specializations @> ?", datatypes.JSONSlice[models.CaseType]{spec})
		}
		if c.QueryBool("verified", false) {
			q = q.Where("sp.verified = ?", true)
		}
		return q
	}

	var total int64
	if err := build().Count(&total).Error; err != nil {
		return apperr.Internal("count solicitors", err)
	}

	var profiles []struct {
		models.SolicitorProfile
		Name string
	}
	if err := build().
		Select("sp.*, u.name").
		Order("sp.average_rating DESC, u.name ASC").
		Offset(utils.Offset(page, size)).Limit(size).
		Scan(&profiles).Error; err != nil {
		return apperr.Internal("list solicitors", err)
	}

	items := make([]SolicitorItem, 0, len(profiles))
	for _, p := range profiles {
		open, err := assignment.CountOpen(c.UserContext(), h.db, p.UserID)
		if err != nil {
			return err
		}
		items = append(items, SolicitorItem{
			ID:                p.UserID,
			Name:              p.Name,
			SolicitorNumber:   p.SolicitorNumber,
			Specializations:   p.Specializations,
			FirmName:          p.FirmName,
			YearsOfExperience: p.YearsOfExperience,
			Verified:          p.Verified,
			MaxCases:          p.MaxCases,
			AvailableHours:    p.AvailableHours,
			AverageRating:     p.AverageRating,
			OpenCases:         open,
		})
	}

	return c.JSON(models.Page[SolicitorItem]{
		Page: page, PageSize: size, Total: total,
		Pages: utils.Pages(total, size),
		Items: items,
	})
}

/* ========================= Admin: solicitor edit ======================== */

// UpdateSolicitor godoc
// @Summary      Verify a solicitor or change their capacity (admin)
// @Tags         admin
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string                 true  "solicitor id (uuid)"
// @Param        payload  body  AdminSolicitorRequest  true  "fields"
// @Success      200  {object}  models.SolicitorProfile
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /admin/solicitors/{id} [patch]
func (h *Handler) UpdateSolicitor(c *fiber.Ctx) error {
	id, err := uuid.Parse(c.Params("id"))
	if err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid solicitor id")
	}
	var in AdminSolicitorRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if err := validation.Check(in); err != nil {
		return err
	}
	if in.Verified == nil && in.MaxCases == nil {
		return apperr.Field("body", "Provide verified or max_cases")
	}

	var p models.SolicitorProfile
	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Clauses(clause.Locking{Strength: "UPDATE"}).First(&p, "user_id = ?", id).Error; err != nil {
			if errors.Is(err, gorm.ErrRecordNotFound) {
				return apperr.NotFound("solicitor")
			}
			return apperr.Internal("load solicitor", err)
		}
		if in.Verified != nil {
			p.Verified = *in.Verified
		}
		if in.MaxCases != nil {
			p.MaxCases = *in.MaxCases
		}
		p.UpdatedAt = time.Now().UTC()
		if err := tx.Save(&p).Error; err != nil {
			return apperr.Internal("update solicitor", err)
		}
		return nil
	})
	if err != nil {
		return err
	}
	h.log.InfoContext(c.UserContext(), "solicitor updated by admin",
		"solicitor_id", id, "verified", p.Verified, "max_cases", p.MaxCases, "by", auth.MustUserID(c))
	return c.JSON(p)
}
