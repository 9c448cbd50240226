// Package flow tracks where a user is inside an encounter's forms: the coarse
// flow step, the active tab and which tabs have been completed. It is a local
// cache for UI sequencing and never feeds back into appointment state.
package flow

import "github.com/optoclinic/clinic/internal/domain/appointment"

// Canonical flow steps, in order.
const (
	StepConsultation = "consultation"
	StepDiagnosis    = "diagnosis"
	StepManagement   = "management"
	StepDispensing   = "dispensing"
)

const DefaultTab = "case history"

var steps = []string{StepConsultation, StepDiagnosis, StepManagement, StepDispensing}

var tabs = map[string][]string{
	StepConsultation: {
		"case history",
		"visual acuity",
		"external observation",
		"internal observation",
		"refraction",
		"extra tests",
		"cover test",
		"ocular motility",
		"pupils",
		"colour vision",
		"binocular vision",
		"amsler grid",
	},
	StepDiagnosis:  {"diagnosis"},
	StepManagement: {"management"},
	StepDispensing: {"dispensing"},
}

// statusSteps is the fixed lookup from appointment status to the step the
// forms should be showing. Completed is absent: completion discards state.
var statusSteps = map[string]string{
	appointment.StatusScheduled:            StepConsultation,
	appointment.StatusInProgress:           StepConsultation,
	appointment.StatusCaseHistoryRecorded:  StepConsultation,
	appointment.StatusVisualAcuityRecorded: StepConsultation,
	appointment.StatusExaminationsRecorded: StepConsultation,
	appointment.StatusReturnedForChanges:   StepConsultation,
	appointment.StatusDiagnosisAdded:       StepDiagnosis,
	appointment.StatusManagementCreated:    StepManagement,
	appointment.StatusManagementGuide:      StepDispensing,
	appointment.StatusSubmittedForReview:   StepDispensing,
	appointment.StatusUnderReview:          StepDispensing,
	appointment.StatusScored:               StepDispensing,
}

// Steps returns the canonical steps in order.
func Steps() []string {
	return append([]string(nil), steps...)
}

// Tabs returns the ordered tabs of a canonical step, or nil for any other step.
func Tabs(step string) []string {
	t, ok := tabs[step]
	if !ok {
		return nil
	}
	return append([]string(nil), t...)
}

// StepForStatus maps an appointment status to its flow step.
func StepForStatus(status string) (string, bool) {
	s, ok := statusSteps[status]
	return s, ok
}

func stepIndex(step string) int {
	for i, s := range steps {
		if s == step {
			return i
		}
	}
	return -1
}

func firstTab(step string) string {
	if t := tabs[step]; len(t) > 0 {
		return t[0]
	}
	return DefaultTab
}

// State is the persisted navigator state for one appointment.
type State struct {
	AppointmentID string          `json:"appointment_id"`
	FlowStep      string          `json:"flow_step"`
	ActiveTab     string          `json:"active_tab"`
	Completed     map[string]bool `json:"tab_completion_status"`
}

func defaultState(appointmentID string) *State {
	return &State{
		AppointmentID: appointmentID,
		FlowStep:      StepConsultation,
		ActiveTab:     DefaultTab,
		Completed:     map[string]bool{},
	}
}

// Progress counts completed tabs of the current step.
func (s *State) Progress() (done, total int) {
	for _, t := range tabs[s.FlowStep] {
		total++
		if s.Completed[t] {
			done++
		}
	}
	return done, total
}
