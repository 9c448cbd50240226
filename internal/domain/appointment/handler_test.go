package appointment

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/google/uuid"
	"github.com/labstack/echo/v4"
)

func newTestHandler() (*Handler, *Service, *echo.Echo) {
	svc, _ := newTestService()
	return NewHandler(svc), svc, echo.New()
}

func TestHandler_CreateAppointment(t *testing.T) {
	h, _, e := newTestHandler()

	body := `{"patient_id":"` + uuid.New().String() + `","patient_name":"Jo","is_student_case":true}`
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(body))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	rec := httptest.NewRecorder()

	if err := h.CreateAppointment(e.NewContext(req, rec)); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusCreated {
		t.Errorf("expected 201, got %d", rec.Code)
	}
	var a Appointment
	json.Unmarshal(rec.Body.Bytes(), &a)
	if a.Status != StatusScheduled || !a.IsStudentCase {
		t.Errorf("unexpected appointment: %+v", a)
	}
}

func TestHandler_CreateAppointment_BadRequest(t *testing.T) {
	h, _, e := newTestHandler()
	req := httptest.NewRequest(http.MethodPost, "/api/v1/appointments", strings.NewReader(`{}`))
	req.Header.Set(echo.HeaderContentType, echo.MIMEApplicationJSON)
	if err := h.CreateAppointment(e.NewContext(req, httptest.NewRecorder())); err == nil {
		t.Error("expected error for missing patient_id")
	}
}

func TestHandler_GetAppointment(t *testing.T) {
	h, svc, e := newTestHandler()
	a := createAppointment(t, svc)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.GetAppointment(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if rec.Code != http.StatusOK {
		t.Errorf("expected 200, got %d", rec.Code)
	}
}

func TestHandler_GetAppointment_NotFound(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues(uuid.New().String())

	err := h.GetAppointment(c)
	he, ok := err.(*echo.HTTPError)
	if !ok || he.Code != http.StatusNotFound {
		t.Errorf("expected 404, got %v", err)
	}
}

func TestHandler_GetAppointment_InvalidID(t *testing.T) {
	h, _, e := newTestHandler()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), httptest.NewRecorder())
	c.SetParamNames("id")
	c.SetParamValues("not-a-uuid")
	if err := h.GetAppointment(c); err == nil {
		t.Error("expected error for invalid id")
	}
}

func TestHandler_ListAppointments(t *testing.T) {
	h, svc, e := newTestHandler()
	createAppointment(t, svc)
	createAppointment(t, svc)

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/api/v1/appointments?status=Scheduled", nil), rec)
	if err := h.ListAppointments(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var resp struct {
		Total int `json:"total"`
	}
	json.Unmarshal(rec.Body.Bytes(), &resp)
	if resp.Total != 2 {
		t.Errorf("expected 2 appointments, got %d", resp.Total)
	}
}

func TestHandler_GetStatusHistory(t *testing.T) {
	h, svc, e := newTestHandler()
	a := createAppointment(t, svc)
	if _, err := svc.Transition(t.Context(), a.ID, StatusInProgress, "u-a"); err != nil {
		t.Fatalf("transition: %v", err)
	}

	rec := httptest.NewRecorder()
	c := e.NewContext(httptest.NewRequest(http.MethodGet, "/", nil), rec)
	c.SetParamNames("id")
	c.SetParamValues(a.ID.String())
	if err := h.GetStatusHistory(c); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	var items []StatusHistory
	json.Unmarshal(rec.Body.Bytes(), &items)
	if len(items) != 1 || items[0].ToStatus != StatusInProgress {
		t.Errorf("unexpected history: %+v", items)
	}
}
