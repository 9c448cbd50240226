package consultation

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	"github.com/optoclinic/clinic/internal/domain/access"
	"github.com/optoclinic/clinic/internal/domain/appointment"
	"github.com/optoclinic/clinic/internal/platform/notification"
	"github.com/optoclinic/clinic/internal/platform/telemetry"
)

var tracer = otel.Tracer("github.com/optoclinic/clinic/internal/domain/consultation")

// Service is the version lifecycle manager. Every mutation runs in one
// transaction that first row-locks the appointment, so concurrent callers on
// the same encounter are serialized.
type Service struct {
	repo      Repository
	appts     AppointmentStore
	publisher notification.Publisher
	metrics   *telemetry.Collector
	logger    zerolog.Logger
	now       func() time.Time
}

func NewService(repo Repository, appts AppointmentStore) *Service {
	return &Service{
		repo:   repo,
		appts:  appts,
		logger: zerolog.Nop(),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

func (s *Service) SetPublisher(p notification.Publisher) { s.publisher = p }

func (s *Service) SetMetrics(m *telemetry.Collector) { s.metrics = m }

func (s *Service) SetLogger(l zerolog.Logger) {
	s.logger = l.With().Str("component", "consultation").Logger()
}

// StartResult is the version an actor should work on.
type StartResult struct {
	Version *ConsultationVersion
	Created bool
}

type ReviewOutcome string

const (
	OutcomeCreated       ReviewOutcome = "created"
	OutcomeAlreadyExists ReviewOutcome = "already_exists"
)

// ReviewResult is either a freshly cloned review or the review that already
// existed, in which case Conflict carries its id.
type ReviewResult struct {
	Outcome       ReviewOutcome
	Version       *ConsultationVersion
	RecordsCloned int
	Conflict      *ConflictError
}

func (r *ReviewResult) Created() bool { return r.Outcome == OutcomeCreated }

func alreadyExists(v *ConsultationVersion) *ReviewResult {
	return &ReviewResult{
		Outcome:  OutcomeAlreadyExists,
		Version:  v,
		Conflict: &ConflictError{Code: CodeReviewAlreadyExists, ExistingVersionID: v.ID},
	}
}

// AccessView is what the front end needs to render an appointment's actions.
type AccessView struct {
	Appointment  *appointment.Appointment `json:"appointment"`
	Capabilities access.Capabilities      `json:"capabilities"`
	VersionType  VersionType              `json:"version_type"`
}

// -- Lifecycle operations --

// ResolveOrStart returns the open version the actor should edit, creating it
// if needed, and locks the appointment to the actor. An empty requested type
// is derived from the actor's roles.
func (s *Service) ResolveOrStart(ctx context.Context, actor access.Actor, appointmentID uuid.UUID, requested string) (res *StartResult, err error) {
	ctx, span := s.startSpan(ctx, "ResolveOrStart", appointmentID)
	defer func() { s.finish(span, "start", err) }()

	g := actor.Grants()
	vt := VersionTypeFor(g)
	if requested != "" {
		parsed, ok := ParseVersionType(requested)
		if !ok {
			return nil, fmt.Errorf("%w: %q", ErrInvalidVersionType, requested)
		}
		if !allowedType(g, parsed) {
			return nil, fmt.Errorf("%w: cannot work on a %s version", access.ErrNotAuthorized, parsed)
		}
		vt = parsed
	}
	span.SetAttributes(attribute.String("version.type", string(vt)))

	var review *ReviewResult
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		appt, err := s.appts.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if vt == VersionReview {
			res, review, err = s.resolveReview(ctx, actor, appt)
		} else {
			res, err = s.resolveRecording(ctx, actor, appt, vt)
		}
		if err != nil {
			return err
		}
		if _, err := s.appts.Lock(ctx, appt.ID, actor.Holder(), g.Override); err != nil {
			return lockConflict(err)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}

	if review != nil && review.Created() {
		s.publish(ctx, notification.EventReviewInitiated, appointmentID, review.Version.ID, actor, map[string]string{
			"records_cloned": fmt.Sprint(review.RecordsCloned),
		})
	}
	if res.Created {
		s.publish(ctx, notification.EventStarted, appointmentID, res.Version.ID, actor, map[string]string{
			"version_type": string(res.Version.VersionType),
		})
	}
	return res, nil
}

func (s *Service) resolveRecording(ctx context.Context, actor access.Actor, appt *appointment.Appointment, vt VersionType) (*StartResult, error) {
	caps := access.Resolve(actor, appt)
	if !caps.CanStart && !caps.CanContinue {
		return nil, s.deny(actor, appt, "start consultation")
	}

	open, err := s.repo.FindOpenVersion(ctx, appt.ID, vt)
	if err != nil {
		return nil, err
	}
	if open != nil {
		return &StartResult{Version: open}, nil
	}

	v := &ConsultationVersion{
		AppointmentID: appt.ID,
		VersionType:   vt,
		CreatedByID:   actor.ID,
		CreatedAt:     s.now(),
	}
	if err := s.repo.CreateVersion(ctx, v); err != nil {
		return nil, err
	}
	if appt.Status == appointment.StatusScheduled {
		if _, err := s.appts.Transition(ctx, appt.ID, appointment.StatusInProgress, actor.ID); err != nil {
			return nil, err
		}
	}
	return &StartResult{Version: v, Created: true}, nil
}

func (s *Service) resolveReview(ctx context.Context, actor access.Actor, appt *appointment.Appointment) (*StartResult, *ReviewResult, error) {
	g := actor.Grants()
	open, err := s.repo.FindOpenVersion(ctx, appt.ID, VersionReview)
	if err != nil {
		return nil, nil, err
	}
	if open != nil {
		if open.CreatedByID == actor.ID || g.Override {
			return &StartResult{Version: open}, nil, nil
		}
		return nil, nil, &ConflictError{Code: CodeReviewAlreadyExists, ExistingVersionID: open.ID}
	}

	if appt.LockedByOther(actor.ID) && !g.Override {
		return nil, nil, s.deny(actor, appt, "review")
	}
	if !access.CanInitiateReview(actor, appt) {
		return nil, nil, fmt.Errorf("%w: review", access.ErrNotAuthorized)
	}

	src, err := s.latest(ctx, appt.ID, VersionStudent)
	if err != nil {
		return nil, nil, err
	}
	if src == nil {
		return nil, nil, fmt.Errorf("%w: no student version to review", ErrInvalidTransition)
	}
	rv, err := s.cloneForReview(ctx, actor, src, appt)
	if err != nil {
		return nil, nil, err
	}
	return &StartResult{Version: rv.Version, Created: rv.Created()}, rv, nil
}

// InitiateReview clones a student version into a new review version. A second
// call while a review is open returns that review as OutcomeAlreadyExists
// rather than an error.
func (s *Service) InitiateReview(ctx context.Context, actor access.Actor, studentVersionID uuid.UUID) (res *ReviewResult, err error) {
	ctx, span := s.startSpan(ctx, "InitiateReview", uuid.Nil)
	span.SetAttributes(attribute.String("version.source", studentVersionID.String()))
	defer func() {
		if err == nil {
			span.SetAttributes(attribute.String("review.outcome", string(res.Outcome)))
			s.metrics.ObserveLifecycle("initiate_review", string(res.Outcome))
			endSpan(span, nil)
			return
		}
		s.finish(span, "initiate_review", err)
	}()

	var appointmentID uuid.UUID
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		src, err := s.repo.GetVersion(ctx, studentVersionID)
		if err != nil {
			return err
		}
		if src.VersionType != VersionStudent {
			return fmt.Errorf("%w: only student versions can be reviewed", ErrInvalidTransition)
		}
		appointmentID = src.AppointmentID

		appt, err := s.appts.GetForUpdate(ctx, src.AppointmentID)
		if err != nil {
			return err
		}
		// The status gate applies only to creating a review, so a retry
		// still gets the open review back.
		if !access.CanSupervise(actor, appt) {
			return fmt.Errorf("%w: review", access.ErrNotAuthorized)
		}
		res, err = s.cloneForReview(ctx, actor, src, appt)
		return err
	})
	if errors.Is(err, errDuplicateOpen) {
		// Lost an insert race the row lock did not cover; the winner's
		// review is the answer.
		open, ferr := s.repo.FindOpenVersion(ctx, appointmentID, VersionReview)
		if ferr == nil && open != nil {
			res, err = alreadyExists(open), nil
		}
	}
	if err != nil {
		return nil, err
	}

	if res.Created() {
		s.logger.Info().
			Str("appointment_id", appointmentID.String()).
			Str("review_version_id", res.Version.ID.String()).
			Int("records_cloned", res.RecordsCloned).
			Msg("review initiated")
		s.publish(ctx, notification.EventReviewInitiated, appointmentID, res.Version.ID, actor, map[string]string{
			"cloned_from":    studentVersionID.String(),
			"records_cloned": fmt.Sprint(res.RecordsCloned),
		})
	} else {
		s.logger.Warn().
			Str("appointment_id", appointmentID.String()).
			Str("existing_version_id", res.Version.ID.String()).
			Str("actor_id", actor.ID).
			Msg("review already exists")
	}
	return res, nil
}

// cloneForReview must run inside the caller's transaction with the
// appointment row locked.
func (s *Service) cloneForReview(ctx context.Context, actor access.Actor, src *ConsultationVersion, appt *appointment.Appointment) (*ReviewResult, error) {
	versions, err := s.repo.ListVersions(ctx, appt.ID)
	if err != nil {
		return nil, err
	}
	for _, v := range versions {
		if v.VersionType != VersionReview {
			continue
		}
		if !v.IsFinal {
			return alreadyExists(v), nil
		}
		return nil, fmt.Errorf("%w: review %s is already finalized", ErrInvalidTransition, v.ID)
	}
	if !access.CanInitiateReview(actor, appt) {
		return nil, fmt.Errorf("%w: review", access.ErrNotAuthorized)
	}

	n, err := s.repo.CountRecords(ctx, src.ID)
	if err != nil {
		return nil, err
	}
	now := s.now()
	srcID := src.ID
	rv := &ConsultationVersion{
		AppointmentID: appt.ID,
		VersionType:   VersionReview,
		CreatedByID:   actor.ID,
		CreatedAt:     now,
		DiffSnapshot: &DiffSnapshot{
			ClonedFrom:    &srcID,
			ClonedAt:      &now,
			RecordsCloned: n,
		},
	}
	if err := s.repo.CreateVersion(ctx, rv); err != nil {
		return nil, err
	}
	copied, err := s.repo.CopyRecords(ctx, src.ID, rv.ID, actor.ID)
	if err != nil {
		return nil, err
	}
	if copied != n {
		return nil, fmt.Errorf("cloned %d of %d records from %s", copied, n, src.ID)
	}

	if appt.Status == appointment.StatusSubmittedForReview {
		if _, err := s.appts.Transition(ctx, appt.ID, appointment.StatusUnderReview, actor.ID); err != nil {
			return nil, err
		}
		appt.Status = appointment.StatusUnderReview
	}
	return &ReviewResult{Outcome: OutcomeCreated, Version: rv, RecordsCloned: n}, nil
}

// lockedVersion takes the appointment row lock for a version and reads the
// version again under it, so is_final reflects any finalize that committed
// while this transaction waited for the lock.
func (s *Service) lockedVersion(ctx context.Context, versionID uuid.UUID) (*ConsultationVersion, *appointment.Appointment, error) {
	v, err := s.repo.GetVersion(ctx, versionID)
	if err != nil {
		return nil, nil, err
	}
	appt, err := s.appts.GetForUpdate(ctx, v.AppointmentID)
	if err != nil {
		return nil, nil, err
	}
	if v, err = s.repo.GetVersion(ctx, versionID); err != nil {
		return nil, nil, err
	}
	return v, appt, nil
}

// FinalizeReview locks a review version for good and records what the
// reviewer changed relative to the student's version.
func (s *Service) FinalizeReview(ctx context.Context, actor access.Actor, reviewVersionID uuid.UUID) (out *ConsultationVersion, err error) {
	ctx, span := s.startSpan(ctx, "FinalizeReview", uuid.Nil)
	span.SetAttributes(attribute.String("version.id", reviewVersionID.String()))
	defer func() { s.finish(span, "finalize_review", err) }()

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		v, appt, err := s.lockedVersion(ctx, reviewVersionID)
		if err != nil {
			return err
		}
		if v.VersionType != VersionReview {
			return fmt.Errorf("%w: only review versions can be finalized", ErrInvalidTransition)
		}
		if v.IsFinal || appt.Status == appointment.StatusConsultationCompleted {
			return ErrVersionLocked
		}
		g := actor.Grants()
		if !g.Grade || (v.CreatedByID != actor.ID && !g.Override) {
			return fmt.Errorf("%w: finalize another supervisor's review", access.ErrNotAuthorized)
		}

		snap := &DiffSnapshot{}
		if v.DiffSnapshot != nil {
			*snap = *v.DiffSnapshot
		}
		if snap.ClonedFrom != nil {
			before, err := s.repo.ListRecords(ctx, *snap.ClonedFrom)
			if err != nil {
				return err
			}
			after, err := s.repo.ListRecords(ctx, v.ID)
			if err != nil {
				return err
			}
			snap.Changes = diffRecords(before, after)
		}
		if err := s.repo.MarkFinal(ctx, v.ID, snap); err != nil {
			return err
		}
		now := s.now()
		v.IsFinal = true
		v.FinalizedAt = &now
		v.DiffSnapshot = snap
		out = v
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notification.EventReviewFinalized, out.AppointmentID, out.ID, actor, map[string]string{
		"changes": fmt.Sprint(len(out.DiffSnapshot.Changes)),
	})
	return out, nil
}

// SubmitForReview hands a student's consultation to supervisors and releases
// the student's lock.
func (s *Service) SubmitForReview(ctx context.Context, actor access.Actor, appointmentID uuid.UUID) (out *appointment.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "SubmitForReview", appointmentID)
	defer func() { s.finish(span, "submit_for_review", err) }()

	var versionID uuid.UUID
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		appt, err := s.appts.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !access.Resolve(actor, appt).CanSubmitForReview {
			return s.deny(actor, appt, "submit for review")
		}
		open, err := s.repo.FindOpenVersion(ctx, appointmentID, VersionStudent)
		if err != nil {
			return err
		}
		if open == nil {
			return fmt.Errorf("%w: no open student version to submit", ErrInvalidTransition)
		}
		versionID = open.ID

		if out, err = s.appts.Transition(ctx, appointmentID, appointment.StatusSubmittedForReview, actor.ID); err != nil {
			return err
		}
		if err := s.appts.Unlock(ctx, appointmentID, actor.ID, actor.Grants().Override); err != nil {
			return lockConflict(err)
		}
		out.IsLocked, out.LockedBy, out.LockedAt = false, nil, nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notification.EventSubmittedForReview, appointmentID, versionID, actor, nil)
	return out, nil
}

// ReturnForChanges sends a submitted case back to the student before any
// review has been opened on it.
func (s *Service) ReturnForChanges(ctx context.Context, actor access.Actor, appointmentID uuid.UUID) (out *appointment.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "ReturnForChanges", appointmentID)
	defer func() { s.finish(span, "return_for_changes", err) }()

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		appt, err := s.appts.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !access.Resolve(actor, appt).CanReview {
			return s.deny(actor, appt, "return for changes")
		}
		if appt.Status != appointment.StatusSubmittedForReview {
			return fmt.Errorf("%w: cannot return a case that is %q", ErrInvalidTransition, appt.Status)
		}
		versions, err := s.repo.ListVersions(ctx, appointmentID)
		if err != nil {
			return err
		}
		for _, v := range versions {
			if v.VersionType == VersionReview {
				return fmt.Errorf("%w: review %s already started", ErrInvalidTransition, v.ID)
			}
		}
		out, err = s.appts.Transition(ctx, appointmentID, appointment.StatusReturnedForChanges, actor.ID)
		return err
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notification.EventReturnedForChanges, appointmentID, uuid.Nil, actor, nil)
	return out, nil
}

// CompleteConsultation closes the encounter. Student cases need a finalized
// review; every version still open is finalized and the lock released.
func (s *Service) CompleteConsultation(ctx context.Context, actor access.Actor, appointmentID uuid.UUID) (out *appointment.Appointment, err error) {
	ctx, span := s.startSpan(ctx, "CompleteConsultation", appointmentID)
	defer func() { s.finish(span, "complete", err) }()

	closed := 0
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		appt, err := s.appts.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !access.Resolve(actor, appt).CanComplete {
			return s.deny(actor, appt, "complete consultation")
		}
		versions, err := s.repo.ListVersions(ctx, appointmentID)
		if err != nil {
			return err
		}
		if appt.IsStudentCase && !hasFinalReview(versions) {
			return fmt.Errorf("%w: a finalized review is required before completion", ErrInvalidTransition)
		}
		for _, v := range versions {
			if v.IsFinal {
				continue
			}
			if err := s.repo.MarkFinal(ctx, v.ID, nil); err != nil {
				return fmt.Errorf("finalize %s version %s: %w", v.VersionType, v.ID, err)
			}
			closed++
		}
		// Authorization above already rules out a foreign lock without override.
		if err := s.appts.Unlock(ctx, appointmentID, actor.ID, true); err != nil {
			return err
		}
		if out, err = s.appts.Transition(ctx, appointmentID, appointment.StatusConsultationCompleted, actor.ID); err != nil {
			return err
		}
		out.IsLocked, out.LockedBy, out.LockedAt = false, nil, nil
		return nil
	})
	if err != nil {
		return nil, err
	}
	s.publish(ctx, notification.EventCompleted, appointmentID, uuid.Nil, actor, map[string]string{
		"versions_finalized": fmt.Sprint(closed),
	})
	return out, nil
}

func hasFinalReview(versions []*ConsultationVersion) bool {
	for _, v := range versions {
		if v.VersionType == VersionReview && v.IsFinal {
			return true
		}
	}
	return false
}

// ReleaseLock lets the holder, or an override actor, leave the encounter.
func (s *Service) ReleaseLock(ctx context.Context, actor access.Actor, appointmentID uuid.UUID) (err error) {
	ctx, span := s.startSpan(ctx, "ReleaseLock", appointmentID)
	defer func() { s.finish(span, "release_lock", err) }()

	if err = s.appts.Unlock(ctx, appointmentID, actor.ID, actor.Grants().Override); err != nil {
		return lockConflict(err)
	}
	return nil
}

// -- Clinical records --

// WriteRecord upserts one section of a version. Student and professional
// versions require the appointment lock; review versions are writable by
// their creator. Override actors may write either.
func (s *Service) WriteRecord(ctx context.Context, actor access.Actor, versionID uuid.UUID, section string, data map[string]interface{}) (rec *ClinicalRecord, err error) {
	if !IsSection(section) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSection, section)
	}
	ctx, span := s.startSpan(ctx, "WriteRecord", uuid.Nil)
	span.SetAttributes(attribute.String("version.id", versionID.String()), attribute.String("record.section", section))
	defer func() { s.finish(span, "write_record", err) }()

	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		v, appt, err := s.lockedVersion(ctx, versionID)
		if err != nil {
			return err
		}
		if v.IsFinal || appt.Status == appointment.StatusConsultationCompleted {
			return ErrVersionLocked
		}

		g := actor.Grants()
		if v.VersionType == VersionReview {
			if v.CreatedByID != actor.ID && !g.Override {
				return fmt.Errorf("%w: review belongs to another supervisor", access.ErrNotAuthorized)
			}
		} else if !appt.LockedByActor(actor.ID) && !g.Override {
			return s.deny(actor, appt, "write without holding the lock")
		}

		if data == nil {
			data = map[string]interface{}{}
		}
		rec = &ClinicalRecord{VersionID: v.ID, Section: section, Data: data, UpdatedBy: actor.ID}
		if err := s.repo.UpsertRecord(ctx, rec); err != nil {
			return err
		}

		if v.VersionType != VersionReview {
			if target := sectionStatus[section]; appointment.Advances(appt.Status, target) {
				if _, err := s.appts.Transition(ctx, appt.ID, target, actor.ID); err != nil {
					return err
				}
			}
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return rec, nil
}

func (s *Service) ListRecords(ctx context.Context, versionID uuid.UUID) ([]*ClinicalRecord, error) {
	if _, err := s.repo.GetVersion(ctx, versionID); err != nil {
		return nil, err
	}
	return s.repo.ListRecords(ctx, versionID)
}

// -- Queries --

func (s *Service) GetVersion(ctx context.Context, id uuid.UUID) (*ConsultationVersion, error) {
	return s.repo.GetVersion(ctx, id)
}

// ListVersions returns an appointment's versions oldest first.
func (s *Service) ListVersions(ctx context.Context, appointmentID uuid.UUID) ([]*ConsultationVersion, error) {
	if _, err := s.appts.Get(ctx, appointmentID); err != nil {
		return nil, err
	}
	return s.repo.ListVersions(ctx, appointmentID)
}

func (s *Service) Access(ctx context.Context, actor access.Actor, appointmentID uuid.UUID) (*AccessView, error) {
	appt, err := s.appts.Get(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	return &AccessView{
		Appointment:  appt,
		Capabilities: access.Resolve(actor, appt),
		VersionType:  VersionTypeFor(actor.Grants()),
	}, nil
}

func (s *Service) latest(ctx context.Context, appointmentID uuid.UUID, vt VersionType) (*ConsultationVersion, error) {
	versions, err := s.repo.ListVersions(ctx, appointmentID)
	if err != nil {
		return nil, err
	}
	var found *ConsultationVersion
	for _, v := range versions {
		if v.VersionType == vt {
			found = v
		}
	}
	return found, nil
}

// deny reports a foreign lock as a conflict naming the holder and anything
// else as ErrNotAuthorized.
func (s *Service) deny(actor access.Actor, appt *appointment.Appointment, action string) error {
	if appt.LockedByOther(actor.ID) && !actor.Grants().Override {
		h := appointment.LockHolder{}
		if appt.LockedBy != nil {
			h = *appt.LockedBy
		}
		s.logger.Warn().
			Str("appointment_id", appt.ID.String()).
			Str("actor_id", actor.ID).
			Str("locked_by", h.ID).
			Msg("lock held by other")
		return &ConflictError{Code: CodeLockedByOther, LockedBy: &h}
	}
	return fmt.Errorf("%w: %s", access.ErrNotAuthorized, action)
}

// -- Instrumentation --

func (s *Service) startSpan(ctx context.Context, op string, appointmentID uuid.UUID) (context.Context, trace.Span) {
	ctx, span := tracer.Start(ctx, "consultation."+op)
	if appointmentID != uuid.Nil {
		span.SetAttributes(attribute.String("appointment.id", appointmentID.String()))
	}
	return ctx, span
}

func (s *Service) finish(span trace.Span, op string, err error) {
	s.metrics.ObserveLifecycle(op, outcomeOf(err))
	endSpan(span, err)
}

func endSpan(span trace.Span, err error) {
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	}
	span.End()
}

func outcomeOf(err error) string {
	switch {
	case err == nil:
		return "ok"
	case errors.Is(err, access.ErrNotAuthorized):
		return "denied"
	case errors.Is(err, ErrVersionConflict), errors.Is(err, appointment.ErrLockedByOther):
		return "conflict"
	case errors.Is(err, ErrVersionLocked):
		return "locked"
	case errors.Is(err, ErrNotFound), errors.Is(err, appointment.ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidTransition), errors.Is(err, appointment.ErrInvalidTransition):
		return "invalid"
	default:
		return "error"
	}
}

// publish runs after commit. A failed publish is logged, never returned:
// the transition has already happened.
func (s *Service) publish(ctx context.Context, eventType string, appointmentID, versionID uuid.UUID, actor access.Actor, attrs map[string]string) {
	if s.publisher == nil {
		return
	}
	evt := notification.Event{
		Type:          eventType,
		AppointmentID: appointmentID.String(),
		ActorID:       actor.ID,
		OccurredAt:    s.now(),
		Attributes:    attrs,
	}
	if versionID != uuid.Nil {
		evt.VersionID = versionID.String()
	}
	err := s.publisher.Publish(ctx, evt)
	s.metrics.ObserveEvent(eventType, err)
	if err != nil {
		s.logger.Error().Err(err).Str("event", eventType).Str("appointment_id", evt.AppointmentID).Msg("publish lifecycle event")
	}
}
