package appointment

import (
	"time"

	"github.com/google/uuid"
)

// Appointment status strings. These are the values the clinic front end
// displays, so they are stored verbatim.
const (
	StatusScheduled             = "Scheduled"
	StatusInProgress            = "Consultation In Progress"
	StatusCaseHistoryRecorded   = "Case History Recorded"
	StatusVisualAcuityRecorded  = "Visual Acuity Recorded"
	StatusExaminationsRecorded  = "Examinations Recorded"
	StatusDiagnosisAdded        = "Diagnosis Added"
	StatusManagementCreated     = "Management Created"
	StatusManagementGuide       = "Case Management Guide Created"
	StatusReturnedForChanges    = "Returned For Changes"
	StatusSubmittedForReview    = "Submitted For Review"
	StatusUnderReview           = "Under Review"
	StatusScored                = "Scored"
	StatusConsultationCompleted = "Consultation Completed"
)

// progression orders the in-flight statuses a consultation walks through as
// sections are recorded. Returned For Changes is in-flight but sits outside
// the progression.
var progression = []string{
	StatusInProgress,
	StatusCaseHistoryRecorded,
	StatusVisualAcuityRecorded,
	StatusExaminationsRecorded,
	StatusDiagnosisAdded,
	StatusManagementCreated,
	StatusManagementGuide,
}

var inFlight = map[string]bool{
	StatusInProgress:           true,
	StatusCaseHistoryRecorded:  true,
	StatusVisualAcuityRecorded: true,
	StatusExaminationsRecorded: true,
	StatusDiagnosisAdded:       true,
	StatusManagementCreated:    true,
	StatusManagementGuide:      true,
	StatusReturnedForChanges:   true,
}

// IsInFlight reports whether a consultation is actively being recorded.
func IsInFlight(status string) bool {
	return inFlight[status]
}

// IsKnownStatus reports whether status is one of the appointment statuses.
func IsKnownStatus(status string) bool {
	if inFlight[status] {
		return true
	}
	switch status {
	case StatusScheduled, StatusSubmittedForReview, StatusUnderReview, StatusScored, StatusConsultationCompleted:
		return true
	}
	return false
}

var transitions = buildTransitions()

func buildTransitions() map[string]map[string]bool {
	t := map[string]map[string]bool{
		StatusScheduled:          {StatusInProgress: true},
		StatusSubmittedForReview: {StatusUnderReview: true, StatusReturnedForChanges: true},
		StatusUnderReview:        {StatusScored: true, StatusConsultationCompleted: true},
		StatusScored:             {StatusConsultationCompleted: true},
	}
	for from := range inFlight {
		next := map[string]bool{
			StatusSubmittedForReview:    true,
			StatusConsultationCompleted: true,
		}
		for _, to := range progression {
			if to != from {
				next[to] = true
			}
		}
		t[from] = next
	}
	return t
}

// CanTransition reports whether an appointment may move from one status to another.
func CanTransition(from, to string) bool {
	return transitions[from][to]
}

// Advances reports whether moving to target is a step forward along the
// recording progression. Statuses outside the progression never advance.
func Advances(current, target string) bool {
	cur, tgt := -1, -1
	for i, s := range progression {
		if s == current {
			cur = i
		}
		if s == target {
			tgt = i
		}
	}
	return cur >= 0 && tgt > cur
}

// LockHolder identifies the actor holding an appointment's edit lock.
type LockHolder struct {
	ID   string `json:"id"`
	Name string `json:"name"`
}

type Appointment struct {
	ID                   uuid.UUID   `json:"id"`
	PatientID            uuid.UUID   `json:"patient_id"`
	PatientName          string      `json:"patient_name,omitempty"`
	Status               string      `json:"status"`
	ScheduledAt          time.Time   `json:"scheduled_at"`
	IsStudentCase        bool        `json:"is_student_case"`
	IsSubmittedForReview bool        `json:"is_submitted_for_review"`
	IsLocked             bool        `json:"is_locked"`
	LockedBy             *LockHolder `json:"locked_by,omitempty"`
	LockedAt             *time.Time  `json:"locked_at,omitempty"`
	CreatedAt            time.Time   `json:"created_at"`
	UpdatedAt            time.Time   `json:"updated_at"`
}

// LockedByOther reports whether someone other than actorID holds the lock.
// A lock with no recorded holder counts as foreign.
func (a *Appointment) LockedByOther(actorID string) bool {
	if !a.IsLocked {
		return false
	}
	return a.LockedBy == nil || a.LockedBy.ID != actorID
}

func (a *Appointment) LockedByActor(actorID string) bool {
	return a.IsLocked && a.LockedBy != nil && a.LockedBy.ID == actorID
}

type StatusHistory struct {
	ID            uuid.UUID `json:"id"`
	AppointmentID uuid.UUID `json:"appointment_id"`
	FromStatus    string    `json:"from_status"`
	ToStatus      string    `json:"to_status"`
	ChangedBy     string    `json:"changed_by,omitempty"`
	ChangedAt     time.Time `json:"changed_at"`
}
