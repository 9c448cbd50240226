package consultation

import (
	"context"
	"encoding/json"
	"errors"
	"net/http"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"

	"github.com/optoclinic/clinic/internal/domain/access"
	"github.com/optoclinic/clinic/internal/domain/appointment"
	"github.com/optoclinic/clinic/internal/platform/auth"
	"github.com/optoclinic/clinic/pkg/apierror"
	"github.com/optoclinic/clinic/pkg/pagination"
)

type Handler struct {
	svc *Service
}

func NewHandler(svc *Service) *Handler {
	return &Handler{svc: svc}
}

func (h *Handler) RegisterRoutes(api *echo.Group) {
	// Every clinical role; the access resolver decides per appointment.
	all := api.Group("", auth.RequireRole(auth.RoleStudent, auth.RoleClinician, auth.RoleLecturer))
	all.POST("/consultations/start", h.Start)
	all.GET("/consultations/:appointmentId/versions", h.ListVersions)
	all.GET("/consultations/versions/:versionId", h.GetVersion)
	all.GET("/consultations/versions/:versionId/records", h.ListRecords)
	all.GET("/consultations/versions/:versionId/records/:section", h.GetRecord)
	all.PUT("/consultations/versions/:versionId/records/:section", h.WriteRecord)
	all.GET("/appointments/:id/access", h.GetAccess)
	all.POST("/appointments/:id/submit-for-review", h.SubmitForReview)
	all.POST("/appointments/:id/release-lock", h.ReleaseLock)

	// Supervisor operations
	sup := api.Group("", auth.RequireRole(auth.RoleLecturer))
	sup.POST("/consultations/versions/:versionId/initiate-review", h.InitiateReview)
	sup.POST("/consultations/versions/:versionId/finalize", h.FinalizeReview)
	sup.POST("/appointments/:id/return-for-changes", h.ReturnForChanges)

	done := api.Group("", auth.RequireRole(auth.RoleClinician, auth.RoleLecturer))
	done.POST("/appointments/:id/complete", h.Complete)
}

type startRequest struct {
	AppointmentID      string `json:"appointmentId"`
	AppointmentIDSnake string `json:"appointment_id"`
	VersionType        string `json:"versionType"`
	VersionTypeSnake   string `json:"version_type"`
}

// reviewResponse is the initiate-review body for both outcomes.
type reviewResponse struct {
	Outcome           ReviewOutcome        `json:"outcome"`
	Version           *ConsultationVersion `json:"version"`
	RecordsCloned     *int                 `json:"records_cloned,omitempty"`
	Code              string               `json:"code,omitempty"`
	ExistingVersionID string               `json:"existing_version_id,omitempty"`
	Detail            string               `json:"detail,omitempty"`
}

func (h *Handler) Start(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	var req startRequest
	if err := c.Bind(&req); err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, err.Error())
	}
	raw := firstNonEmpty(req.AppointmentID, req.AppointmentIDSnake)
	apptID, err := uuid.Parse(raw)
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid appointmentId")
	}

	res, err := h.svc.ResolveOrStart(c.Request().Context(), actor, apptID, firstNonEmpty(req.VersionType, req.VersionTypeSnake))
	if err != nil {
		return toHTTPError(err)
	}
	status := http.StatusOK
	if res.Created {
		status = http.StatusCreated
	}
	return c.JSON(status, res.Version)
}

func (h *Handler) InitiateReview(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid versionId")
	}

	res, err := h.svc.InitiateReview(c.Request().Context(), actor, id)
	if err != nil {
		return toHTTPError(err)
	}
	if res.Created() {
		n := res.RecordsCloned
		return c.JSON(http.StatusCreated, reviewResponse{
			Outcome:       res.Outcome,
			Version:       res.Version,
			RecordsCloned: &n,
		})
	}
	return c.JSON(http.StatusOK, reviewResponse{
		Outcome:           res.Outcome,
		Version:           res.Version,
		Code:              res.Conflict.Code,
		ExistingVersionID: res.Conflict.ExistingVersionID.String(),
		Detail:            res.Conflict.Detail(),
	})
}

func (h *Handler) FinalizeReview(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid versionId")
	}
	v, err := h.svc.FinalizeReview(c.Request().Context(), actor, id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) GetVersion(c echo.Context) error {
	id, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid versionId")
	}
	v, err := h.svc.GetVersion(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, v)
}

func (h *Handler) ListVersions(c echo.Context) error {
	id, err := uuid.Parse(c.Param("appointmentId"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid appointmentId")
	}
	versions, err := h.svc.ListVersions(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	pg := pagination.FromContext(c)
	start, end := pg.Window(len(versions))
	return c.JSON(http.StatusOK, pagination.NewResponse(versions[start:end], len(versions), pg))
}

func (h *Handler) ListRecords(c echo.Context) error {
	id, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid versionId")
	}
	recs, err := h.svc.ListRecords(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, recs)
}

func (h *Handler) GetRecord(c echo.Context) error {
	id, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid versionId")
	}
	section := c.Param("section")
	if !IsSection(section) {
		return toHTTPError(ErrInvalidSection)
	}
	recs, err := h.svc.ListRecords(c.Request().Context(), id)
	if err != nil {
		return toHTTPError(err)
	}
	for _, r := range recs {
		if r.Section == section {
			return c.JSON(http.StatusOK, r)
		}
	}
	return apierror.New(http.StatusNotFound, apierror.CodeNotFound, "no "+section+" record in this version")
}

func (h *Handler) WriteRecord(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("versionId"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid versionId")
	}
	// Decoded by hand: echo's binder would merge path params into the map.
	var data map[string]interface{}
	if err := json.NewDecoder(c.Request().Body).Decode(&data); err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "record body must be a JSON object")
	}
	rec, err := h.svc.WriteRecord(c.Request().Context(), actor, id, c.Param("section"), data)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, rec)
}

func (h *Handler) GetAccess(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid id")
	}
	view, err := h.svc.Access(c.Request().Context(), actor, id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, view)
}

func (h *Handler) SubmitForReview(c echo.Context) error {
	return h.appointmentAction(c, h.svc.SubmitForReview)
}

func (h *Handler) ReturnForChanges(c echo.Context) error {
	return h.appointmentAction(c, h.svc.ReturnForChanges)
}

func (h *Handler) Complete(c echo.Context) error {
	return h.appointmentAction(c, h.svc.CompleteConsultation)
}

func (h *Handler) ReleaseLock(c echo.Context) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid id")
	}
	if err := h.svc.ReleaseLock(c.Request().Context(), actor, id); err != nil {
		return toHTTPError(err)
	}
	return c.NoContent(http.StatusNoContent)
}

type appointmentOp func(ctx context.Context, actor access.Actor, id uuid.UUID) (*appointment.Appointment, error)

func (h *Handler) appointmentAction(c echo.Context, op appointmentOp) error {
	actor, err := actorFrom(c)
	if err != nil {
		return err
	}
	id, err := uuid.Parse(c.Param("id"))
	if err != nil {
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, "invalid id")
	}
	appt, err := op(c.Request().Context(), actor, id)
	if err != nil {
		return toHTTPError(err)
	}
	return c.JSON(http.StatusOK, appt)
}

func actorFrom(c echo.Context) (access.Actor, error) {
	actor, ok := access.ActorFromContext(c.Request().Context())
	if !ok {
		return access.Actor{}, apierror.New(http.StatusUnauthorized, apierror.CodeUnauthenticated, "authentication required")
	}
	return actor, nil
}

func firstNonEmpty(vals ...string) string {
	for _, v := range vals {
		if v != "" {
			return v
		}
	}
	return ""
}

func toHTTPError(err error) error {
	var ce *ConflictError
	switch {
	case errors.As(err, &ce):
		body := &apierror.Error{Code: ce.Code, Detail: ce.Detail()}
		if ce.ExistingVersionID != uuid.Nil {
			body.ExistingVersionID = ce.ExistingVersionID.String()
		}
		if ce.LockedBy != nil {
			body.LockedBy = ce.LockedBy
		}
		return apierror.With(http.StatusConflict, body)
	case errors.Is(err, access.ErrNotAuthorized):
		return apierror.New(http.StatusForbidden, apierror.CodeNotAuthorized, err.Error())
	case errors.Is(err, ErrVersionLocked):
		return apierror.New(http.StatusLocked, apierror.CodeVersionLocked, err.Error())
	case errors.Is(err, ErrVersionConflict):
		return apierror.New(http.StatusConflict, apierror.CodeVersionConflict, err.Error())
	case errors.Is(err, ErrNotFound), errors.Is(err, appointment.ErrNotFound):
		return apierror.New(http.StatusNotFound, apierror.CodeNotFound, err.Error())
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, appointment.ErrInvalidTransition):
		return apierror.New(http.StatusConflict, apierror.CodeInvalidTransition, err.Error())
	case errors.Is(err, ErrInvalidSection), errors.Is(err, ErrInvalidVersionType):
		return apierror.New(http.StatusBadRequest, apierror.CodeInvalidRequest, err.Error())
	default:
		return apierror.New(http.StatusInternalServerError, apierror.CodeInternal, err.Error())
	}
}
