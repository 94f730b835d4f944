package stats

import (
	"github.com/gofiber/fiber/v2"

	"github.com/aldoetobex/legal-aid-backend/internal/apperr"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler { return &Handler{svc: svc} }

// Overview godoc
// @Summary      Dashboard statistics (admin)
// @Description  Case counts by status, type and priority, unassigned and overdue cases, solicitor figures; cached briefly
// @Tags         admin
// @Security     BearerAuth
// @Produce      json
// @Param        fresh  query bool false "bypass the cache"
// @Success      200  {object}  Overview
// @Failure      403  {object}  models.ErrorResponse
// @Router       /admin/stats [get]
func (h *Handler) Overview(c *fiber.Ctx) error {
	if c.QueryBool("fresh", false) {
		h.svc.Invalidate(c.UserContext())
	}
	o, err := h.svc.Overview(c.UserContext())
	if err != nil {
		return apperr.Internal("load statistics", err)
	}
	return c.JSON(o)
}
