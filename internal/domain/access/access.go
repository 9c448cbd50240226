// Package access derives what an actor may do with an appointment. Every
// lifecycle and grading operation asks Resolve before touching a store.
package access

import (
	"context"
	"errors"

	"github.com/optoclinic/clinic/internal/domain/appointment"
	"github.com/optoclinic/clinic/internal/platform/auth"
)

var ErrNotAuthorized = errors.New("not authorized for this consultation action")

// Grants are the role-derived base capabilities of an actor.
type Grants struct {
	Start    bool
	Grade    bool
	Complete bool
	Override bool
}

var roleGrants = map[string]Grants{
	auth.RoleStudent:   {Start: true},
	auth.RoleClinician: {Start: true, Complete: true},
	auth.RoleLecturer:  {Grade: true, Complete: true},
	auth.RoleAdmin:     {Start: true, Grade: true, Complete: true, Override: true},
}

// GrantsFor unions the grants of every role held. Unknown roles grant nothing.
func GrantsFor(roles []string) Grants {
	var g Grants
	for _, r := range roles {
		rg := roleGrants[r]
		g.Start = g.Start || rg.Start
		g.Grade = g.Grade || rg.Grade
		g.Complete = g.Complete || rg.Complete
		g.Override = g.Override || rg.Override
	}
	return g
}

type Actor struct {
	ID    string
	Name  string
	Roles []string
}

func ActorFromPrincipal(p auth.Principal) Actor {
	return Actor{ID: p.ID, Name: p.Name, Roles: p.Roles}
}

// ActorFromContext returns the authenticated caller as an Actor.
func ActorFromContext(ctx context.Context) (Actor, bool) {
	p, ok := auth.PrincipalFromContext(ctx)
	if !ok || p.ID == "" {
		return Actor{}, false
	}
	return ActorFromPrincipal(p), true
}

func (a Actor) Grants() Grants { return GrantsFor(a.Roles) }

func (a Actor) Holder() appointment.LockHolder {
	return appointment.LockHolder{ID: a.ID, Name: a.Name}
}

// Primary action labels shown on the appointment's main button.
const (
	ActionView     = "view"
	ActionContinue = "continue"
	ActionReview   = "review"
	ActionStart    = "start"
	ActionNone     = "none"
)

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

// IsReviewable reports the statuses in which a supervisor may open a review.
func IsReviewable(status string) bool {
	return status == appointment.StatusSubmittedForReview || status == appointment.StatusUnderReview
}

func isGradable(status string) bool {
	return IsReviewable(status) || status == appointment.StatusScored
}

// startBlocked lists the statuses past the point where a consultation can be
// started afresh.
func startBlocked(status string) bool {
	switch status {
	case appointment.StatusSubmittedForReview, appointment.StatusUnderReview,
		appointment.StatusScored, appointment.StatusConsultationCompleted:
		return true
	}
	return false
}

// Resolve returns the capability set of actor for appt. Rules are checked in
// priority order and lock state always wins over status.
func Resolve(actor Actor, appt *appointment.Appointment) Capabilities {
	g := actor.Grants()
	status := appt.Status
	var caps Capabilities

	foreign := appt.LockedByOther(actor.ID)
	if foreign && appt.LockedBy != nil {
		caps.LockedBy = appt.LockedBy.Name
	}

	switch {
	case foreign:
		if !g.Override {
			caps.ReadOnly = true
			caps.PrimaryAction = ActionView
			return caps
		}
		caps.CanContinue = true
		caps.PrimaryAction = ActionContinue
	case appt.LockedByActor(actor.ID):
		caps.CanContinue = true
		caps.PrimaryAction = ActionContinue
	case appointment.IsInFlight(status):
		caps.CanContinue = true
		caps.PrimaryAction = ActionContinue
	case status == appointment.StatusConsultationCompleted:
		caps.ReadOnly = true
		caps.PrimaryAction = ActionView
		return caps
	case IsReviewable(status) && g.Grade:
		caps.CanReview = true
		caps.PrimaryAction = ActionReview
	case g.Start && !startBlocked(status):
		caps.CanStart = true
		caps.PrimaryAction = ActionStart
	default:
		caps.PrimaryAction = ActionNone
	}

	lockFreeOrMine := !appt.IsLocked || appt.LockedByActor(actor.ID)

	caps.CanOverride = g.Override
	caps.CanGrade = g.Grade && appt.IsStudentCase && isGradable(status)
	caps.CanSubmitForReview = appt.IsStudentCase && !g.Grade &&
		appointment.IsInFlight(status) && !appt.IsSubmittedForReview && lockFreeOrMine
	if g.Complete {
		if appt.IsStudentCase {
			caps.CanComplete = status == appointment.StatusUnderReview || status == appointment.StatusScored
		} else {
			caps.CanComplete = appointment.IsInFlight(status)
		}
	}
	return caps
}

// CanSupervise reports whether actor supervises appt at all: a grader on a
// student case. It says nothing about the case's status.
func CanSupervise(actor Actor, appt *appointment.Appointment) bool {
	return actor.Grants().Grade && appt.IsStudentCase
}

// CanInitiateReview reports whether actor may clone the student's work into
// a new review. Review cloning works on its own version row, so the student's
// edit lock does not block it. Scored is accepted so a case graded before
// any review was opened can still be reviewed and completed.
func CanInitiateReview(actor Actor, appt *appointment.Appointment) bool {
	return CanSupervise(actor, appt) &&
		(IsReviewable(appt.Status) || appt.Status == appointment.StatusScored)
}
