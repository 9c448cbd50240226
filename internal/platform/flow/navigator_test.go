package flow

import (
	"testing"

	"github.com/optoclinic/clinic/internal/domain/appointment"
)

func newNavigators(t *testing.T) map[string]*Navigator {
	t.Helper()
	ldb, err := OpenMemLevelDB()
	if err != nil {
		t.Fatalf("open leveldb: %v", err)
	}
	t.Cleanup(func() { ldb.Close() })
	return map[string]*Navigator{
		"leveldb": NewNavigator(ldb),
		"memory":  NewNavigator(NewMemoryStore()),
	}
}

func TestOpen_Defaults(t *testing.T) {
	for name, nav := range newNavigators(t) {
		t.Run(name, func(t *testing.T) {
			st, err := nav.Open("appt-1", "")
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if st.FlowStep != StepConsultation || st.ActiveTab != DefaultTab || len(st.Completed) != 0 {
				t.Errorf("unexpected defaults: %+v", st)
			}
		})
	}
}

func TestOpen_DerivesStepWithoutPersistedState(t *testing.T) {
	for name, nav := range newNavigators(t) {
		t.Run(name, func(t *testing.T) {
			st, err := nav.Open("appt-1", appointment.StatusDiagnosisAdded)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if st.FlowStep != StepDiagnosis || st.ActiveTab != "diagnosis" {
				t.Errorf("unexpected state: %+v", st)
			}
		})
	}
}

func TestOpen_PersistedStepWins(t *testing.T) {
	for name, nav := range newNavigators(t) {
		t.Run(name, func(t *testing.T) {
			if err := nav.SetFlowStep("appt-1", StepDiagnosis); err != nil {
				t.Fatalf("set step: %v", err)
			}
			for _, status := range []string{"", appointment.StatusInProgress, appointment.StatusCaseHistoryRecorded, appointment.StatusDiagnosisAdded} {
				st, err := nav.Open("appt-1", status)
				if err != nil {
					t.Fatalf("open: %v", err)
				}
				if st.FlowStep != StepDiagnosis {
					t.Errorf("status %q: expected persisted %q, got %q", status, StepDiagnosis, st.FlowStep)
				}
			}
		})
	}
}

func TestOpen_ServerMovesStepForward(t *testing.T) {
	for name, nav := range newNavigators(t) {
		t.Run(name, func(t *testing.T) {
			nav.SetFlowStep("appt-1", StepConsultation)
			nav.SetActiveTab("appt-1", "refraction")

			st, err := nav.Open("appt-1", appointment.StatusManagementCreated)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if st.FlowStep != StepManagement || st.ActiveTab != "management" {
				t.Errorf("unexpected state: %+v", st)
			}
			again, _, _ := nav.Load("appt-1")
			if again.FlowStep != StepManagement {
				t.Errorf("forward move should persist, got %q", again.FlowStep)
			}
		})
	}
}

func TestOpen_NonCanonicalStepIsKept(t *testing.T) {
	nav := NewNavigator(NewMemoryStore())
	nav.SetFlowStep("appt-1", "contact lens fitting")

	st, err := nav.Open("appt-1", appointment.StatusScored)
	if err != nil {
		t.Fatalf("open: %v", err)
	}
	if st.FlowStep != "contact lens fitting" {
		t.Errorf("expected the custom step to be kept, got %q", st.FlowStep)
	}
	if Tabs(st.FlowStep) != nil {
		t.Error("non-canonical steps have no tab set")
	}
}

func TestOpen_CompletedDiscardsState(t *testing.T) {
	for name, nav := range newNavigators(t) {
		t.Run(name, func(t *testing.T) {
			nav.SetFlowStep("appt-1", StepDispensing)
			nav.MarkComplete("appt-1", "case history")

			st, err := nav.Open("appt-1", appointment.StatusConsultationCompleted)
			if err != nil {
				t.Fatalf("open: %v", err)
			}
			if st.FlowStep != StepConsultation || len(st.Completed) != 0 {
				t.Errorf("expected fresh state, got %+v", st)
			}
			if _, ok, _ := nav.Load("appt-1"); ok {
				t.Error("expected persisted state to be removed")
			}
		})
	}
}

func TestMarkComplete_Monotonic(t *testing.T) {
	for name, nav := range newNavigators(t) {
		t.Run(name, func(t *testing.T) {
			nav.MarkComplete("appt-1", "case history")
			nav.MarkComplete("appt-1", "visual acuity")
			nav.SetFlowStep("appt-1", StepDiagnosis)
			nav.SetActiveTab("appt-1", "diagnosis")
			done, err := nav.MarkComplete("appt-1", "case history")
			if err != nil {
				t.Fatalf("mark: %v", err)
			}
			if !done["case history"] || !done["visual acuity"] || len(done) != 2 {
				t.Errorf("unexpected completion: %v", done)
			}

			if err := nav.Reset("appt-1"); err != nil {
				t.Fatalf("reset: %v", err)
			}
			st, ok, _ := nav.Load("appt-1")
			if ok || len(st.Completed) != 0 {
				t.Errorf("reset should clear completion, got %v", st.Completed)
			}
		})
	}
}

func TestKeysAreScopedPerAppointment(t *testing.T) {
	store := NewMemoryStore()
	nav := NewNavigator(store)
	nav.SetActiveTab("a", "pupils")
	nav.SetActiveTab("b", "refraction")

	if v, ok, _ := store.Get("clinic:flow:a:activeTab"); !ok || string(v) != "pupils" {
		t.Errorf("unexpected value for a: %q", v)
	}
	st, _, _ := nav.Load("b")
	if st.ActiveTab != "refraction" {
		t.Errorf("unexpected tab for b: %q", st.ActiveTab)
	}
}

func TestCorruptCompletionIsDropped(t *testing.T) {
	store := NewMemoryStore()
	store.Put(keyCompletion("appt-1"), []byte("{not json"))
	nav := NewNavigator(store)

	done, err := nav.MarkComplete("appt-1", "pupils")
	if err != nil {
		t.Fatalf("mark: %v", err)
	}
	if len(done) != 1 || !done["pupils"] {
		t.Errorf("unexpected completion: %v", done)
	}
}

func TestRequiresAppointmentID(t *testing.T) {
	nav := NewNavigator(NewMemoryStore())
	if err := nav.SetFlowStep("", StepDiagnosis); err != ErrNoAppointment {
		t.Errorf("expected ErrNoAppointment, got %v", err)
	}
	if _, err := nav.Open("", ""); err != ErrNoAppointment {
		t.Errorf("expected ErrNoAppointment, got %v", err)
	}
}

func TestTabsAndProgress(t *testing.T) {
	if n := len(Tabs(StepConsultation)); n < 10 {
		t.Errorf("consultation should have ten or more tabs, got %d", n)
	}
	for _, s := range []string{StepDiagnosis, StepManagement, StepDispensing} {
		if n := len(Tabs(s)); n != 1 {
			t.Errorf("%s: expected a single view, got %d tabs", s, n)
		}
	}
	st := &State{FlowStep: StepConsultation, Completed: map[string]bool{"case history": true, "pupils": true}}
	if done, total := st.Progress(); done != 2 || total != len(Tabs(StepConsultation)) {
		t.Errorf("unexpected progress %d/%d", done, total)
	}
}

func TestStepForStatus(t *testing.T) {
	tests := map[string]string{
		appointment.StatusScheduled:            StepConsultation,
		appointment.StatusExaminationsRecorded: StepConsultation,
		appointment.StatusDiagnosisAdded:       StepDiagnosis,
		appointment.StatusManagementCreated:    StepManagement,
		appointment.StatusUnderReview:          StepDispensing,
	}
	for status, want := range tests {
		if got, ok := StepForStatus(status); !ok || got != want {
			t.Errorf("StepForStatus(%q) = %q, %v; want %q", status, got, ok, want)
		}
	}
	if _, ok := StepForStatus(appointment.StatusConsultationCompleted); ok {
		t.Error("completed has no flow step")
	}
}
