package cases

import (
	"errors"
	"log/slog"
	"strings"
	"time"

	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"

	"github.com/aldoetobex/legal-aid-backend/internal/auth"
	"github.com/aldoetobex/legal-aid-backend/internal/policy"
	"github.com/aldoetobex/legal-aid-backend/internal/storage"
	"github.com/aldoetobex/legal-aid-backend/pkg/models"
	"github.com/aldoetobex/legal-aid-backend/pkg/utils"
	"github.com/aldoetobex/legal-aid-backend/pkg/validation"
)

// ===== DTOs =====

type CreateCaseRequest struct {
	Type        string     `json:"type" validate:"required,casetype"`
	Description string     `json:"description" validate:"required,max=5000"`
	Priority    string     `json:"priority" validate:"omitempty,priority"`
	Deadline    *time.Time `json:"deadline"`
}

type UpdateCaseRequest struct {
	Status      *string `json:"status" validate:"omitempty,casestatus"`
	Priority    *string `json:"priority" validate:"omitempty,priority"`
	Description *string `json:"description" validate:"omitempty,max=5000"`
}

type MoveStatusRequest struct {
	Status string `json:"status" validate:"required,casestatus"`
}

type AssignRequest struct {
	SolicitorID string `json:"solicitor_id" validate:"required,uuid"`
}

type NoteRequest struct {
	Content string `json:"content" validate:"required,max=10000"`
	Private bool   `json:"is_private"`
}

type DeadlineRequest struct {
	Title string    `json:"title" validate:"required,max=200"`
	DueAt time.Time `json:"due_at" validate:"required"`
}

type Handler struct {
	svc   *Service
	store storage.Store
	log   *slog.Logger
}

func NewHandler(svc *Service, store storage.Store, log *slog.Logger) *Handler {
	if log == nil {
		log = slog.Default()
	}
	return &Handler{svc: svc, store: store, log: log}
}

// actor resolves the authenticated caller.
func (h *Handler) actor(c *fiber.Ctx) (policy.Actor, error) {
	id, err := auth.UserUUID(c)
	if err != nil {
		return policy.Actor{}, err
	}
	return h.svc.Actor(c.UserContext(), id, auth.MustRole(c))
}

// pathID parses a uuid route parameter.
func pathID(c *fiber.Ctx, name string) (uuid.UUID, error) {
	id, err := uuid.Parse(c.Params(name))
	if err != nil {
		return uuid.Nil, fiber.NewError(fiber.StatusBadRequest, "invalid "+name)
	}
	return id, nil
}

// Create Case godoc
// @Summary      Create case
// @Description  Client opens a new case; a case number is generated
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body  CreateCaseRequest  true  "Case payload"
// @Success      201  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases [post]
func (h *Handler) Create(c *fiber.Ctx) error {
	var in CreateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if err := validation.Check(in); err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}

	cs, err := h.svc.Create(c.UserContext(), a, CreateInput{
		Type:        models.CaseType(in.Type),
		Description: in.Description,
		Priority:    models.Priority(in.Priority),
		Deadline:    in.Deadline,
	})
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(cs)
}

// listFilter reads the common list query parameters.
func listFilter(c *fiber.Ctx) ListFilter {
	page, size := utils.ParsePage(c)
	return ListFilter{
		Status:         models.CaseStatus(strings.TrimSpace(c.Query("status"))),
		Type:           models.CaseType(strings.TrimSpace(c.Query("type"))),
		Priority:       models.Priority(strings.TrimSpace(c.Query("priority"))),
		Scope:          Scope(strings.TrimSpace(c.Query("scope"))),
		NeedsAttention: c.QueryBool("needs_attention", false),
		Page:           page,
		PageSize:       size,
	}
}

// List Cases godoc
// @Summary      List cases
// @Description  Cases visible to the caller: own cases (client), assigned and browsable cases (solicitor), everything (admin)
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page             query int    false "page"
// @Param        pageSize         query int    false "pageSize"
// @Param        status           query string false "status"
// @Param        type             query string false "case type"
// @Param        priority         query string false "priority"
// @Param        scope            query string false "assigned | available (admin only; solicitors use /cases/available)"
// @Param        needs_attention  query bool   false "only cases past SLA or near deadline"
// @Success      200  {object}  models.Page[CaseView]
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      401  {object}  models.ErrorResponse
// @Router       /cases [get]
func (h *Handler) List(c *fiber.Ctx) error {
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	page, err := h.svc.List(c.UserContext(), a, listFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// Available godoc
// @Summary      Available cases (redacted)
// @Description  Solicitor browses unassigned cases in their specializations; no client identity, description reduced to a redacted preview
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        page      query int    false "page"
// @Param        pageSize  query int    false "pageSize"
// @Param        type      query string false "case type"
// @Param        priority  query string false "priority"
// @Success      200  {object}  models.Page[AvailableItem]
// @Failure      401  {object}  models.ErrorResponse
// @Router       /cases/available [get]
func (h *Handler) Available(c *fiber.Ctx) error {
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	page, err := h.svc.Available(c.UserContext(), a, listFilter(c))
	if err != nil {
		return err
	}
	return c.JSON(page)
}

// Get case detail
// @Summary      Case detail
// @Description  Case with notes, deadlines and documents; private notes hidden from clients.
// @Description  A solicitor who has not accepted an unassigned case gets the AvailableItem preview.
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  CaseDetail
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Router       /cases/{id} [get]
func (h *Handler) GetDetail(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	d, err := h.svc.Get(c.UserContext(), a, id)
	if errors.Is(err, ErrPreviewOnly) {
		p, err := h.svc.Preview(c.UserContext(), a, id)
		if err != nil {
			return err
		}
		return c.JSON(p)
	}
	if err != nil {
		return err
	}
	return c.JSON(d)
}

// Update godoc
// @Summary      Update case
// @Description  Partial update of status, priority and description, subject to per-field permissions
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string             true  "case id (uuid)"
// @Param        payload  body  UpdateCaseRequest  true  "fields to change"
// @Success      200  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id} [patch]
func (h *Handler) Update(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in UpdateCaseRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if err := validation.Check(in); err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}

	var up UpdateInput
	if in.Status != nil {
		s := models.CaseStatus(*in.Status)
		up.Status = &s
	}
	if in.Priority != nil {
		p := models.Priority(*in.Priority)
		up.Priority = &p
	}
	up.Description = in.Description

	cs, err := h.svc.Update(c.UserContext(), a, id, up)
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// MoveStatus godoc
// @Summary      Move case status
// @Description  Board drag-and-drop; only an admin can move a case out of closed
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string             true  "case id (uuid)"
// @Param        payload  body  MoveStatusRequest  true  "target status"
// @Success      200  {object}  models.Case
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/status [post]
func (h *Handler) MoveStatus(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in MoveStatusRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if err := validation.Check(in); err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.MoveStatus(c.UserContext(), a, id, models.CaseStatus(in.Status))
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// Assign godoc
// @Summary      Assign case (admin)
// @Description  Admin assigns a case to a verified solicitor with the matching specialization and free capacity
// @Tags         cases
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string         true  "case id (uuid)"
// @Param        payload  body  AssignRequest  true  "solicitor"
// @Success      200  {object}  models.Case
// @Failure      403  {object}  models.ErrorResponse
// @Failure      404  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/assign [post]
func (h *Handler) Assign(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in AssignRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if err := validation.Check(in); err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.Assign(c.UserContext(), a, id, uuid.MustParse(in.SolicitorID))
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// Accept godoc
// @Summary      Accept case (solicitor)
// @Description  Solicitor takes an unassigned case in one of their specializations
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {object}  models.Case
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /cases/{id}/accept [post]
func (h *Handler) Accept(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	cs, err := h.svc.Accept(c.UserContext(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(cs)
}

// AddNote godoc
// @Summary      Add note
// @Description  Clients may add public notes; solicitors and admins may add private notes
// @Tags         notes
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string       true  "case id (uuid)"
// @Param        payload  body  NoteRequest  true  "note"
// @Success      201  {object}  models.CaseNote
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases/{id}/notes [post]
func (h *Handler) AddNote(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in NoteRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if err := validation.Check(in); err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	n, err := h.svc.AddNote(c.UserContext(), a, id, in.Content, in.Private)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(n)
}

// Notes godoc
// @Summary      List notes
// @Tags         notes
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {array}   models.CaseNote
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases/{id}/notes [get]
func (h *Handler) Notes(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	notes, err := h.svc.Notes(c.UserContext(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(notes)
}

// Timeline godoc
// @Summary      Case timeline
// @Description  Activity entries oldest first
// @Tags         cases
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {array}   models.CaseActivity
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases/{id}/activities [get]
func (h *Handler) Timeline(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	entries, err := h.svc.Timeline(c.UserContext(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(entries)
}

// AddDeadline godoc
// @Summary      Add deadline
// @Tags         deadlines
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path  string           true  "case id (uuid)"
// @Param        payload  body  DeadlineRequest  true  "deadline"
// @Success      201  {object}  models.CaseDeadline
// @Failure      400  {object}  models.ValidationErrorResponse
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases/{id}/deadlines [post]
func (h *Handler) AddDeadline(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	var in DeadlineRequest
	if err := c.BodyParser(&in); err != nil {
		return fiber.NewError(fiber.StatusBadRequest, "invalid json")
	}
	if err := validation.Check(in); err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	d, err := h.svc.AddDeadline(c.UserContext(), a, id, in.Title, in.DueAt)
	if err != nil {
		return err
	}
	return c.Status(fiber.StatusCreated).JSON(d)
}

// Deadlines godoc
// @Summary      List deadlines
// @Tags         deadlines
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "case id (uuid)"
// @Success      200  {array}   models.CaseDeadline
// @Failure      403  {object}  models.ErrorResponse
// @Router       /cases/{id}/deadlines [get]
func (h *Handler) Deadlines(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	list, err := h.svc.Deadlines(c.UserContext(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(list)
}

// CompleteDeadline godoc
// @Summary      Complete deadline
// @Tags         deadlines
// @Security     BearerAuth
// @Produce      json
// @Param        id   path string true "deadline id (uuid)"
// @Success      200  {object}  models.CaseDeadline
// @Failure      403  {object}  models.ErrorResponse
// @Failure      409  {object}  models.ErrorResponse
// @Router       /deadlines/{id}/complete [post]
func (h *Handler) CompleteDeadline(c *fiber.Ctx) error {
	id, err := pathID(c, "id")
	if err != nil {
		return err
	}
	a, err := h.actor(c)
	if err != nil {
		return err
	}
	d, err := h.svc.CompleteDeadline(c.UserContext(), a, id)
	if err != nil {
		return err
	}
	return c.JSON(d)
}
