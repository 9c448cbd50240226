package flow

import (
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/rs/zerolog"

	"github.com/optoclinic/clinic/internal/domain/appointment"
)

var ErrNoAppointment = errors.New("appointment id is required")

// Navigator reads and writes navigator state through a Store.
type Navigator struct {
	store  Store
	logger zerolog.Logger

	// mu serializes read-modify-write of the completion map.
	mu sync.Mutex
}

func NewNavigator(store Store) *Navigator {
	return &Navigator{store: store, logger: zerolog.Nop()}
}

func (n *Navigator) SetLogger(l zerolog.Logger) {
	n.logger = l.With().Str("component", "flow").Logger()
}

// Load returns the persisted state. ok is false when nothing has been
// persisted for the appointment, in which case the defaults are returned.
func (n *Navigator) Load(appointmentID string) (st *State, ok bool, err error) {
	if appointmentID == "" {
		return nil, false, ErrNoAppointment
	}
	st = defaultState(appointmentID)

	step, hasStep, err := n.store.Get(keyFlowStep(appointmentID))
	if err != nil {
		return nil, false, fmt.Errorf("read flow step: %w", err)
	}
	tab, hasTab, err := n.store.Get(keyActiveTab(appointmentID))
	if err != nil {
		return nil, false, fmt.Errorf("read active tab: %w", err)
	}
	done, hasDone, err := n.store.Get(keyCompletion(appointmentID))
	if err != nil {
		return nil, false, fmt.Errorf("read tab completion: %w", err)
	}

	if hasStep {
		st.FlowStep = string(step)
	}
	if hasTab {
		st.ActiveTab = string(tab)
	}
	if hasDone {
		if err := json.Unmarshal(done, &st.Completed); err != nil {
			// A corrupt map only loses checkmarks.
			n.logger.Warn().Err(err).Str("appointment_id", appointmentID).Msg("discarding unreadable tab completion")
			st.Completed = nil
		}
		if st.Completed == nil {
			st.Completed = map[string]bool{}
		}
	}
	return st, hasStep || hasTab || hasDone, nil
}

// Open resumes the navigator for an appointment whose server status is
// serverStatus. Persisted state wins; the server can only move the step
// forward along the canonical order. A completed appointment discards the
// state. Without persisted state the step is derived from the status.
func (n *Navigator) Open(appointmentID, serverStatus string) (*State, error) {
	if serverStatus == appointment.StatusConsultationCompleted {
		if err := n.Reset(appointmentID); err != nil {
			return nil, err
		}
		return defaultState(appointmentID), nil
	}

	st, persisted, err := n.Load(appointmentID)
	if err != nil {
		return nil, err
	}
	serverStep, known := StepForStatus(serverStatus)
	if !persisted {
		if known {
			st.FlowStep = serverStep
			st.ActiveTab = firstTab(serverStep)
		}
		return st, nil
	}

	cur := stepIndex(st.FlowStep)
	if known && cur >= 0 && stepIndex(serverStep) > cur {
		n.logger.Debug().
			Str("appointment_id", appointmentID).
			Str("from", st.FlowStep).
			Str("to", serverStep).
			Msg("flow step advanced by server status")
		st.FlowStep = serverStep
		st.ActiveTab = firstTab(serverStep)
		if err := n.store.Put(keyFlowStep(appointmentID), []byte(st.FlowStep)); err != nil {
			return nil, fmt.Errorf("write flow step: %w", err)
		}
		if err := n.store.Put(keyActiveTab(appointmentID), []byte(st.ActiveTab)); err != nil {
			return nil, fmt.Errorf("write active tab: %w", err)
		}
	}
	return st, nil
}

// SetFlowStep persists any step, canonical or not.
func (n *Navigator) SetFlowStep(appointmentID, step string) error {
	if appointmentID == "" {
		return ErrNoAppointment
	}
	return n.store.Put(keyFlowStep(appointmentID), []byte(step))
}

func (n *Navigator) SetActiveTab(appointmentID, tab string) error {
	if appointmentID == "" {
		return ErrNoAppointment
	}
	return n.store.Put(keyActiveTab(appointmentID), []byte(tab))
}

// MarkComplete records a tab as complete. Completion is never cleared except
// by Reset.
func (n *Navigator) MarkComplete(appointmentID, tab string) (map[string]bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()

	st, _, err := n.Load(appointmentID)
	if err != nil {
		return nil, err
	}
	if st.Completed[tab] {
		return st.Completed, nil
	}
	st.Completed[tab] = true
	b, err := json.Marshal(st.Completed)
	if err != nil {
		return nil, err
	}
	if err := n.store.Put(keyCompletion(appointmentID), b); err != nil {
		return nil, fmt.Errorf("write tab completion: %w", err)
	}
	return st.Completed, nil
}

// Reset removes everything persisted for the appointment.
func (n *Navigator) Reset(appointmentID string) error {
	if appointmentID == "" {
		return ErrNoAppointment
	}
	n.mu.Lock()
	defer n.mu.Unlock()
	return n.store.Delete(keyActiveTab(appointmentID), keyFlowStep(appointmentID), keyCompletion(appointmentID))
}
