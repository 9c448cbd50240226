package clinicclient

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"
)

type Version struct {
	ID            string          `json:"id"`
	AppointmentID string          `json:"appointment_id"`
	VersionType   string          `json:"version_type"`
	IsFinal       bool            `json:"is_final"`
	CreatedByID   string          `json:"created_by_id"`
	DiffSnapshot  json.RawMessage `json:"diff_snapshot,omitempty"`
	CreatedAt     time.Time       `json:"created_at"`
	FinalizedAt   *time.Time      `json:"finalized_at,omitempty"`
}

// StartResult is the version the caller should work on.
type StartResult struct {
	Version *Version
	Created bool
}

// Start resolves or creates the caller's working version. An empty
// versionType lets the server derive it from the caller's roles.
func (c *Client) Start(ctx context.Context, appointmentID, versionType string) (*StartResult, error) {
	body := map[string]string{"appointmentId": appointmentID}
	if versionType != "" {
		body["versionType"] = versionType
	}
	var v Version
	status, err := c.do(ctx, http.MethodPost, "/api/v1/consultations/start", nil, body, &v)
	if err != nil {
		return nil, err
	}
	return &StartResult{Version: &v, Created: status == http.StatusCreated}, nil
}

type ReviewOutcome int

const (
	ReviewCreated ReviewOutcome = iota + 1
	ReviewAlreadyExists
)

func (o ReviewOutcome) String() string {
	switch o {
	case ReviewCreated:
		return "created"
	case ReviewAlreadyExists:
		return "already_exists"
	}
	return "unknown"
}

// ReviewResult is either a newly cloned review or the review that was
// already open. VersionID is set in both cases.
type ReviewResult struct {
	Outcome       ReviewOutcome
	VersionID     string
	Version       *Version
	RecordsCloned int
	Detail        string
}

type reviewBody struct {
	Outcome           string   `json:"outcome"`
	Version           *Version `json:"version"`
	RecordsCloned     int      `json:"records_cloned"`
	Code              string   `json:"code"`
	ExistingVersionID string   `json:"existing_version_id"`
	Detail            string   `json:"detail"`
}

// InitiateReview clones a student version into a review. A review that
// already exists is a result, not an error, including the 409 answer of
// servers that predate the structured outcome.
func (c *Client) InitiateReview(ctx context.Context, studentVersionID string) (*ReviewResult, error) {
	var body reviewBody
	status, err := c.do(ctx, http.MethodPost, "/api/v1/consultations/versions/"+url.PathEscape(studentVersionID)+"/initiate-review", nil, nil, &body)

	var apiErr *APIError
	if errors.As(err, &apiErr) && apiErr.Status == http.StatusConflict && isExistingReview(apiErr.Code, apiErr.Detail) {
		body = reviewBody{
			Outcome:           "already_exists",
			Code:              apiErr.Code,
			ExistingVersionID: apiErr.ExistingVersionID,
			Detail:            apiErr.Detail,
		}
		err = nil
	}
	if err != nil {
		return nil, err
	}

	if status == http.StatusCreated || body.Outcome == "created" {
		if body.Version == nil {
			return nil, fmt.Errorf("initiate review: created response without a version")
		}
		return &ReviewResult{
			Outcome:       ReviewCreated,
			VersionID:     body.Version.ID,
			Version:       body.Version,
			RecordsCloned: body.RecordsCloned,
		}, nil
	}

	res := &ReviewResult{Outcome: ReviewAlreadyExists, Version: body.Version, Detail: body.Detail}
	switch {
	case body.ExistingVersionID != "":
		res.VersionID = body.ExistingVersionID
	case body.Version != nil && body.Version.ID != "":
		res.VersionID = body.Version.ID
	default:
		res.VersionID = versionIDFromDetail(body.Detail)
	}
	if res.VersionID == "" {
		return nil, fmt.Errorf("review already exists but the server did not say which: %q", body.Detail)
	}
	return res, nil
}

func isExistingReview(code, detail string) bool {
	if code == CodeReviewAlreadyExists {
		return true
	}
	return code == "" && versionIDFromDetail(detail) != ""
}

func (c *Client) FinalizeReview(ctx context.Context, reviewVersionID string) (*Version, error) {
	var v Version
	if _, err := c.do(ctx, http.MethodPost, "/api/v1/consultations/versions/"+url.PathEscape(reviewVersionID)+"/finalize", nil, nil, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

type VersionPage struct {
	Data    []Version `json:"data"`
	Total   int       `json:"total"`
	Limit   int       `json:"limit"`
	Offset  int       `json:"offset"`
	HasMore bool      `json:"has_more"`
}

func (c *Client) ListVersions(ctx context.Context, appointmentID string, limit, offset int) (*VersionPage, error) {
	q := url.Values{}
	if limit > 0 {
		q.Set("limit", strconv.Itoa(limit))
	}
	if offset > 0 {
		q.Set("offset", strconv.Itoa(offset))
	}
	var page VersionPage
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/consultations/"+url.PathEscape(appointmentID)+"/versions", q, nil, &page); err != nil {
		return nil, err
	}
	return &page, nil
}

// Capabilities mirrors the server's access view.
type Capabilities struct {
	CanStart           bool   `json:"can_start"`
	CanContinue        bool   `json:"can_continue"`
	CanReview          bool   `json:"can_review"`
	CanGrade           bool   `json:"can_grade"`
	CanOverride        bool   `json:"can_override"`
	CanSubmitForReview bool   `json:"can_submit_for_review"`
	CanComplete        bool   `json:"can_complete"`
	ReadOnly           bool   `json:"read_only"`
	PrimaryAction      string `json:"primary_action"`
	LockedBy           string `json:"locked_by,omitempty"`
}

type AccessView struct {
	Appointment struct {
		ID     string `json:"id"`
		Status string `json:"status"`
	} `json:"appointment"`
	Capabilities Capabilities `json:"capabilities"`
	VersionType  string       `json:"version_type"`
}

func (c *Client) Access(ctx context.Context, appointmentID string) (*AccessView, error) {
	var view AccessView
	if _, err := c.do(ctx, http.MethodGet, "/api/v1/appointments/"+url.PathEscape(appointmentID)+"/access", nil, nil, &view); err != nil {
		return nil, err
	}
	return &view, nil
}
