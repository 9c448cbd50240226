package grading

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/optoclinic/clinic/internal/domain/access"
	"github.com/optoclinic/clinic/internal/domain/appointment"
	"github.com/optoclinic/clinic/internal/platform/notification"
	"github.com/optoclinic/clinic/internal/platform/telemetry"
)

var tracer = otel.Tracer("github.com/optoclinic/clinic/internal/domain/grading")

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
	s.logger = l.With().Str("component", "grading").Logger()
}

// Submission is a raw grading form. Score is left untyped because forms send
// numbers and numeric strings alike.
type Submission struct {
	Score   interface{} `json:"score"`
	Remarks string      `json:"remarks"`
}

// ParseScore accepts a number or numeric string in [0, 100].
func ParseScore(raw interface{}) (float64, error) {
	var f float64
	switch v := raw.(type) {
	case float64:
		f = v
	case float32:
		f = float64(v)
	case int:
		f = float64(v)
	case int64:
		f = float64(v)
	case json.Number:
		n, err := v.Float64()
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidScore, v)
		}
		f = n
	case string:
		n, err := strconv.ParseFloat(strings.TrimSpace(v), 64)
		if err != nil {
			return 0, fmt.Errorf("%w: %q", ErrInvalidScore, v)
		}
		f = n
	default:
		return 0, fmt.Errorf("%w: got %T", ErrInvalidScore, raw)
	}
	if math.IsNaN(f) || f < MinScore || f > MaxScore {
		return 0, fmt.Errorf("%w: %v", ErrInvalidScore, f)
	}
	return f, nil
}

// SubmitGrading creates or replaces the grade for (appointmentID, section).
// The score is validated before anything else is consulted. An overall grade
// moves the appointment to Scored and is refused until a review has been
// opened, since completion needs that review.
func (s *Service) SubmitGrading(ctx context.Context, actor access.Actor, appointmentID uuid.UUID, section string, sub Submission) (out *Grade, err error) {
	score, err := ParseScore(sub.Score)
	if err != nil {
		return nil, err
	}
	if !IsSection(section) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSection, section)
	}

	ctx, span := tracer.Start(ctx, "grading.SubmitGrading")
	span.SetAttributes(attribute.String("appointment.id", appointmentID.String()), attribute.String("grade.section", section))
	defer func() {
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
		}
		span.End()
	}()

	var created bool
	err = s.repo.WithTx(ctx, func(ctx context.Context) error {
		appt, err := s.appts.GetForUpdate(ctx, appointmentID)
		if err != nil {
			return err
		}
		if !access.Resolve(actor, appt).CanGrade {
			return fmt.Errorf("%w: grade this consultation", access.ErrNotAuthorized)
		}
		if section == SectionOverall && appt.Status == appointment.StatusSubmittedForReview {
			return ErrReviewNotOpen
		}

		g := &Grade{
			AppointmentID: appointmentID,
			Section:       section,
			Score:         score,
			Remarks:       strings.TrimSpace(sub.Remarks),
			IsFinal:       section == SectionOverall,
			GradedBy:      actor.ID,
		}
		if created, err = s.repo.Upsert(ctx, g); err != nil {
			return err
		}
		if g.IsFinal && appt.Status != appointment.StatusScored {
			if _, err := s.appts.Transition(ctx, appointmentID, appointment.StatusScored, actor.ID); err != nil {
				return err
			}
		}
		out = g
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.metrics.ObserveGrade(created)
	s.logger.Debug().
		Str("appointment_id", appointmentID.String()).
		Str("section", section).
		Bool("created", created).
		Msg("grade saved")
	s.publish(ctx, out, actor, created)
	return out, nil
}

func (s *Service) Get(ctx context.Context, appointmentID uuid.UUID, section string) (*Grade, error) {
	if !IsSection(section) {
		return nil, fmt.Errorf("%w: %q", ErrInvalidSection, section)
	}
	return s.repo.Get(ctx, appointmentID, section)
}

func (s *Service) List(ctx context.Context, appointmentID uuid.UUID) ([]*Grade, error) {
	if _, err := s.appts.Get(ctx, appointmentID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, appointmentID)
}

func (s *Service) publish(ctx context.Context, g *Grade, actor access.Actor, created bool) {
	if s.publisher == nil {
		return
	}
	evt := notification.Event{
		Type:          notification.EventGraded,
		AppointmentID: g.AppointmentID.String(),
		ActorID:       actor.ID,
		OccurredAt:    s.now(),
		Attributes: map[string]string{
			"section": g.Section,
			"score":   strconv.FormatFloat(g.Score, 'f', -1, 64),
			"created": strconv.FormatBool(created),
		},
	}
	err := s.publisher.Publish(ctx, evt)
	s.metrics.ObserveEvent(evt.Type, err)
	if err != nil {
		s.logger.Error().Err(err).Str("event", evt.Type).Str("appointment_id", evt.AppointmentID).Msg("publish grading event")
	}
}
