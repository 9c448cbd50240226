package consultation

import (
	"time"

	"github.com/google/uuid"

	"github.com/optoclinic/clinic/internal/domain/access"
	"github.com/optoclinic/clinic/internal/domain/appointment"
)

type VersionType string

const (
	VersionStudent      VersionType = "student"
	VersionProfessional VersionType = "professional"
	VersionReview       VersionType = "review"
)

// ParseVersionType accepts the canonical names plus "reviewed", which older
// clients send for review versions.
func ParseVersionType(s string) (VersionType, bool) {
	switch s {
	case string(VersionStudent):
		return VersionStudent, true
	case string(VersionProfessional):
		return VersionProfessional, true
	case string(VersionReview), "reviewed":
		return VersionReview, true
	}
	return "", false
}

// VersionTypeFor picks the version an actor works on: graders review,
// completers record professionally, everyone else records as a student.
func VersionTypeFor(g access.Grants) VersionType {
	switch {
	case g.Grade:
		return VersionReview
	case g.Complete:
		return VersionProfessional
	default:
		return VersionStudent
	}
}

func allowedType(g access.Grants, vt VersionType) bool {
	switch vt {
	case VersionReview:
		return g.Grade
	case VersionProfessional:
		return g.Complete
	case VersionStudent:
		return g.Start
	}
	return false
}

// FieldChange is one field's value before and after review.
type FieldChange struct {
	Before interface{} `json:"before"`
	After  interface{} `json:"after"`
}

type DiffSnapshot struct {
	Changes       map[string]FieldChange `json:"changes,omitempty"`
	ClonedFrom    *uuid.UUID             `json:"cloned_from,omitempty"`
	ClonedAt      *time.Time             `json:"cloned_at,omitempty"`
	RecordsCloned int                    `json:"records_cloned"`
}

type ConsultationVersion struct {
	ID            uuid.UUID     `json:"id"`
	AppointmentID uuid.UUID     `json:"appointment_id"`
	VersionType   VersionType   `json:"version_type"`
	IsFinal       bool          `json:"is_final"`
	CreatedByID   string        `json:"created_by_id"`
	DiffSnapshot  *DiffSnapshot `json:"diff_snapshot,omitempty"`
	CreatedAt     time.Time     `json:"created_at"`
	FinalizedAt   *time.Time    `json:"finalized_at,omitempty"`
}

// ClinicalRecord is one exam section's data within a version.
type ClinicalRecord struct {
	ID        uuid.UUID              `json:"id"`
	VersionID uuid.UUID              `json:"version_id"`
	Section   string                 `json:"section"`
	Data      map[string]interface{} `json:"data"`
	UpdatedBy string                 `json:"updated_by,omitempty"`
	UpdatedAt time.Time              `json:"updated_at"`
}

const (
	SectionCaseHistory         = "case_history"
	SectionVisualAcuity        = "visual_acuity"
	SectionExternalObservation = "external_observation"
	SectionInternalObservation = "internal_observation"
	SectionRefraction          = "refraction"
	SectionExtraTest           = "extra_test"
	SectionDiagnosis           = "diagnosis"
	SectionManagement          = "management"
	SectionManagementGuide     = "management_guide"
)

// sectionStatus is the appointment status reached once a section is recorded.
var sectionStatus = map[string]string{
	SectionCaseHistory:         appointment.StatusCaseHistoryRecorded,
	SectionVisualAcuity:        appointment.StatusVisualAcuityRecorded,
	SectionExternalObservation: appointment.StatusExaminationsRecorded,
	SectionInternalObservation: appointment.StatusExaminationsRecorded,
	SectionRefraction:          appointment.StatusExaminationsRecorded,
	SectionExtraTest:           appointment.StatusExaminationsRecorded,
	SectionDiagnosis:           appointment.StatusDiagnosisAdded,
	SectionManagement:          appointment.StatusManagementCreated,
	SectionManagementGuide:     appointment.StatusManagementGuide,
}

func IsSection(s string) bool {
	_, ok := sectionStatus[s]
	return ok
}
