package grading

import (
	"time"

	"github.com/google/uuid"
)

// Gradable sections. SectionOverall carries the final grade for the whole
// encounter; the rest are per-section grades.
const (
	SectionCaseHistory         = "case_history"
	SectionVisualAcuity        = "visual_acuity"
	SectionInternalObservation = "internal_observation"
	SectionExternalObservation = "external_observation"
	SectionRefraction          = "refraction"
	SectionExtraTest           = "extra_test"
	SectionDiagnosis           = "diagnosis"
	SectionManagement          = "management"
	SectionManagementGuide     = "management_guide"
	SectionLogs                = "logs"
	SectionOverall             = "overall"
)

var sections = map[string]bool{
	SectionCaseHistory:         true,
	SectionVisualAcuity:        true,
	SectionInternalObservation: true,
	SectionExternalObservation: true,
	SectionRefraction:          true,
	SectionExtraTest:           true,
	SectionDiagnosis:           true,
	SectionManagement:          true,
	SectionManagementGuide:     true,
	SectionLogs:                true,
	SectionOverall:             true,
}

func IsSection(s string) bool { return sections[s] }

const (
	MinScore = 0
	MaxScore = 100
)

// Grade is one supervisor score for an (appointment, section) pair.
type Grade struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	Section       string    `json:"section"`
	Score         float64   `json:"score"`
	Remarks       string    `json:"remarks,omitempty"`
	IsFinal       bool      `json:"is_final"`
	GradedBy      string    `json:"graded_by"`
	CreatedAt     time.Time `json:"created_at"`
	UpdatedAt     time.Time `json:"updated_at"`
}
