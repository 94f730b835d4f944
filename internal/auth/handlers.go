package auth

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
	"gorm.io/datatypes"
	"gorm.io/gorm"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
	"github.com/aldoetobex/legal-aid-backend/pkg/validation"
)

/* ================================ DTOs ================================= */

// Request body for /signup. Admin accounts are never self-registered.
type SignupRequest struct {
	Role     string `json:"role" validate:"required,oneof=client solicitor"`
	Name     string `json:"name" validate:"required,min=2,max=80"`
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required,min=8,max=72"`
	Phone    string `json:"phone" validate:"omitempty,max=30"`

	// Client profile
	Address                 string `json:"address" validate:"omitempty,max=255"`
	DateOfBirth             string `json:"date_of_birth" validate:"omitempty,datetime=2006-01-02"`
	NationalInsuranceNumber string `json:"national_insurance_number" validate:"omitempty,nino"`
	EmploymentStatus        string `json:"employment_status" validate:"omitempty,oneof=employed self_employed unemployed student retired"`
	AnnualIncomePence       int64  `json:"annual_income_pence" validate:"gte=0"`

	// Solicitor profile
	SolicitorNumber   string   `json:"solicitor_number" validate:"omitempty,solnum"`
	Specializations   []string `json:"specializations" validate:"omitempty,dive,casetype"`
	FirmName          string   `json:"firm_name" validate:"omitempty,max=120"`
	FirmAddress       string   `json:"firm_address" validate:"omitempty,max=255"`
	YearsOfExperience int      `json:"years_of_experience" validate:"gte=0,lte=70"`
}

// Request body for /login
type LoginRequest struct {
	Email    string `json:"email" validate:"required,email,max=120"`
	Password string `json:"password" validate:"required"`
}

// Standard auth response
type AuthResponse struct {
	Token string `json:"token"`
	Role  string `json:"role"`
}

// Profile response for /me
type UserProfileResponse struct {
	ID        uuid.UUID              `json:"id"`
	Email     string                 `json:"email"`
	Role      models.Role            `json:"role"`
	Name      string                 `json:"name"`
	Phone     string                 `json:"phone"`
	CreatedAt time.Time              `json:"created_at"`
	Profile   models.ProfileEnvelope `json:"profile"`
}

/* ============================== Handler ================================= */

type Handler struct {
	db     *gorm.DB
	tokens *Tokens
	log    *slog.Logger
}

func NewHandler(db *gorm.DB, tokens *Tokens, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{db: db, tokens: tokens, log: log}
}

/* =============================== Signup ================================= */

// @Summary      Sign up
// @Description  Register a client or solicitor together with their profile
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  SignupRequest  true  "Signup payload"
// @Success      201      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      409      {object}  models.ErrorResponse  "email already exists"
// @Router       /signup [post]
func (h *Handler) Signup(c *fiber.Ctx) error {
	var in SignupRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	// Normalize
	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	in.Name = strings.TrimSpace(in.Name)
	in.NationalInsuranceNumber = validation.NormalizeNINO(in.NationalInsuranceNumber)

	if err := validation.Check(in); err != nil {
		return err
	}
	if in.Role == string(models.RoleSolicitor) {
		errs := map[string][]string{}
		if strings.TrimSpace(in.SolicitorNumber) == "" {
			errs["solicitor_number"] = []string{"This field is required"}
		}
		if len(in.Specializations) == 0 {
			errs["specializations"] = []string{"This field is required"}
		}
		if len(errs) > 0 {
			return apperr.Validation("Validation failed", errs)
		}
	}

	hash, err := bcrypt.GenerateFromPassword([]byte(in.Password), bcrypt.DefaultCost)
	if err != nil {
		return apperr.Internal("hash password", err)
	}

	u := models.User{
		Email:        in.Email,
		PasswordHash: string(hash),
		Role:         models.Role(in.Role),
		Name:         in.Name,
		Phone:        strings.TrimSpace(in.Phone),
	}

	err = h.db.WithContext(c.UserContext()).Transaction(func(tx *gorm.DB) error {
		if err := tx.Create(&u).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("email already exists")
			}
			return apperr.Internal("create user", err)
		}
		if err := tx.Create(newProfile(u.ID, in)).Error; err != nil {
			if errors.Is(err, gorm.ErrDuplicatedKey) {
				return apperr.Conflict("profile identifier already registered")
			}
			return apperr.Internal("create profile", err)
		}
		return nil
	})
	if err != nil {
		return err
	}

	token, err := h.tokens.Issue(u.ID.String(), u.Role)
	if err != nil {
		return apperr.Internal("issue token", err)
	}
	h.log.InfoContext(c.UserContext(), "user registered", "user_id", u.ID, "role", u.Role)
	return c.Status(fiber.StatusCreated).JSON(AuthResponse{Token: token, Role: string(u.Role)})
}

// newProfile builds the profile variant for a signup; input is already validated.
func newProfile(userID uuid.UUID, in SignupRequest) models.Profile {
	if in.Role == string(models.RoleSolicitor) {
		specs := make(datatypes.JSONSlice[models.CaseType], 0, len(in.Specializations))
		seen := map[models.CaseType]bool{}
		for _, s := range in.Specializations {
			t := models.CaseType(s)
			if !seen[t] {
				seen[t] = true
				specs = append(specs, t)
			}
		}
		return &models.SolicitorProfile{
			UserID:            userID,
			SolicitorNumber:   strings.TrimSpace(in.SolicitorNumber),
			Specializations:   specs,
			FirmName:          strings.TrimSpace(in.FirmName),
			FirmAddress:       strings.TrimSpace(in.FirmAddress),
			YearsOfExperience: in.YearsOfExperience,
			MaxCases:          10,
		}
	}

	p := &models.ClientProfile{
		UserID:            userID,
		Address:           strings.TrimSpace(in.Address),
		EmploymentStatus:  models.EmploymentStatus(in.EmploymentStatus),
		AnnualIncomePence: in.AnnualIncomePence,
	}
	if in.NationalInsuranceNumber != "" {
		nino := in.NationalInsuranceNumber
		p.NationalInsuranceNumber = &nino
	}
	if in.DateOfBirth != "" {
		if dob, err := time.Parse("2006-01-02", in.DateOfBirth); err == nil {
			p.DateOfBirth = &dob
		}
	}
	return p
}

/* ================================ Login ================================= */

// @Summary      Login
// @Description  Authenticate and receive a JWT
// @Tags         auth
// @Accept       json
// @Produce      json
// @Param        payload  body  LoginRequest  true  "Login payload"
// @Success      200      {object}  AuthResponse
// @Failure      400      {object}  models.ValidationErrorResponse
// @Failure      401      {object}  models.ErrorResponse
// @Router       /login [post]
func (h *Handler) Login(c *fiber.Ctx) error {
	var in LoginRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.ErrBadRequest
	}

	in.Email = strings.ToLower(strings.TrimSpace(in.Email))
	if err := validation.Check(in); err != nil {
		return err
	}

	var u models.User
	if err := h.db.WithContext(c.UserContext()).Where("email = ?", in.Email).First(&u).Error; err != nil {
		return fiber.ErrUnauthorized
	}
	if bcrypt.CompareHashAndPassword([]byte(u.PasswordHash), []byte(in.Password)) != nil {
		return fiber.ErrUnauthorized
	}

	token, err := h.tokens.Issue(u.ID.String(), u.Role)
	if err != nil {
		return apperr.Internal("issue token", err)
	}
	return c.JSON(AuthResponse{Token: token, Role: string(u.Role)})
}

/* ================================ Logout ================================ */

// @Summary      Logout
// @Description  Revoke the presented token
// @Tags         auth
// @Security     BearerAuth
// @Success      204
// @Failure      401  {object}  models.ErrorResponse
// @Router       /logout [post]
func (h *Handler) Logout(c *fiber.Ctx) error {
	claims, _ := c.Locals("claims").(*Claims)
	if claims == nil {
		return fiber.ErrUnauthorized
	}
	h.tokens.Revoke(c.UserContext(), claims)
	return c.SendStatus(fiber.StatusNoContent)
}

/* ================================= Me =================================== */

// @Summary      Get current user profile
// @Description  Return the authenticated user with their role-specific profile
// @Tags         auth
// @Security     BearerAuth
// @Produce      json
// @Success      200  {object}  UserProfileResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /me [get]
func (h *Handler) Me(c *fiber.Ctx) error {
	userID, err := UserUUID(c)
	if err != nil {
		return err
	}

	var u models.User
	if err := h.db.WithContext(c.UserContext()).
		Preload("ClientProfile").Preload("SolicitorProfile").Preload("AdminProfile").
		First(&u, "id = ?", userID).Error; err != nil {
		return fiber.ErrUnauthorized
	}

	return c.JSON(UserProfileResponse{
		ID:        u.ID,
		Email:     u.Email,
		Role:      u.Role,
		Name:      u.Name,
		Phone:     u.Phone,
		CreatedAt: u.CreatedAt,
		Profile:   models.ProfileEnvelope{Kind: u.Role, Data: u.ProfileOf()},
	})
}
