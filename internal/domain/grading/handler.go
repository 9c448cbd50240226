package grading

import (
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/optoclinic/clinic/internal/domain/access"
	"github.com/optoclinic/clinic/internal/domain/appointment"
	"github.com/optoclinic/clinic/internal/platform/auth"
	"github.com/optoclinic/clinic/pkg/apierror"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	read := api.Group("/grading", auth.RequireRole(auth.RoleStudent, auth.RoleClinician, auth.RoleLecturer))
	read.GET("/:appointmentId", h.ListGrades)
	read.GET("/:appointmentId/:section", h.GetGrade)

	write := api.Group("/grading", auth.RequireRole(auth.RoleLecturer))
	write.POST("/:appointmentId", h.SubmitGrade)
	write.POST("/:appointmentId/:section", h.SubmitGrade)
}

type gradeRequest struct {
	Section string      `json:"section"`
	Score   interface{} `json:"score"`
	Remarks string      `json:"remarks"`
}

// SubmitGrade takes the section from the path, then the body, and defaults to
// the overall grade.
func (h *Handler) SubmitGrade(c echo.Context) error {
	actor, ok := access.ActorFromContext(c.Request().Context())
	if !ok {
		return apierror.New(http.StatusUnauthorized, apierror.CodeUnauthenticated, "authentication required")
	}
	id, err := uuid.Parse(c.Param("appointmentId"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid appointmentId")
	}
	var req gradeRequest
	if err := c.Bind(&req); err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, err.Error())
	}
	section := c.Param("section")
	if section == "" {
		section = req.Section
	}
	if section == "" {
		section = SectionOverall
	}

	g, err := h.svc.SubmitGrading(c.Request().Context(), actor, id, section, Submission{Score: req.Score, Remarks: req.Remarks})
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func (h *Handler) ListGrades(c echo.Context) error {
	id, err := uuid.Parse(c.Param("appointmentId"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid appointmentId")
	}
	grades, err := h.svc.List(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	if grades == nil {
		grades = []*Grade{}
	}
	return c.JSON(http.StatusOK, grades)
}

func (h *Handler) GetGrade(c echo.Context) error {
	id, err := uuid.Parse(c.Param("appointmentId"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid appointmentId")
	}
	g, err := h.svc.Get(c.Request().Context(), id, c.Param("section"))
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, g)
}

func toHTTPError(err error) error {
	switch {
	case errors.Is(err, ErrInvalidScore):
		return apierror.New(http.StatusUnprocessableEntity, apierror.CodeInvalidScore, err.Error())
	case errors.Is(err, ErrInvalidSection):
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, err.Error())
	case errors.Is(err, access.ErrNotAuthorized):
		return apierror.New(http.StatusForbidden, apierror.CodeNotAuthorized, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, appointment.ErrNotFound):
		return apierror.New(http.StatusNotFound, apierror.CodeNotFound, err.Error())
	case errors.Is(err, ErrReviewNotOpen), errors.Is(err, appointment.ErrInvalidTransition):
		return apierror.New(http.StatusConflict, apierror.CodeInvalidTransition, err.Error())
	default:
		return apierror.New(http.StatusInternalServerError, apierror.CodeInternal, err.Error())
	}
}
