package patient

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/hackgods/patient-intake/internal/messaging"
	"github.com/hackgods/patient-intake/internal/phone"
	redisclient "github.com/hackgods/patient-intake/internal/redis"
	"github.com/hackgods/patient-intake/internal/validation"
)

const dateLayout = "2006-01-02"

var (
	ErrInvalidSessionID   = errors.New("invalid session id")
	ErrInvalidStatus      = errors.New("status cannot be written by intake")
	ErrInvalidGender      = errors.New("invalid gender")
	ErrInvalidDateOfBirth = errors.New("date_of_birth must be formatted YYYY-MM-DD")
	ErrSessionBusy        = errors.New("session is being written, please retry")
)

// SubmissionError lists the fields that keep a write from being accepted as submitted.
type SubmissionError struct {
	Fields map[string]validation.Reason
}

func (e *SubmissionError) Error() string {
	names := make([]string, 0, len(e.Fields))
	for name := range e.Fields {
		names = append(names, name)
	}
	sort.Strings(names)
	return "incomplete submission: " + strings.Join(names, ", ")
}

// CheckSubmission runs the same checks the form runs before submitting.
func CheckSubmission(p UpsertParams) error {
	checks := map[string]validation.Result{
		"first_name":    validation.Required(p.FirstName),
		"last_name":     validation.Required(p.LastName),
		"date_of_birth": validation.Required(derefString(p.DateOfBirth)),
		"address":       validation.Required(p.Address),
		"phone":         validation.ValidatePhoneNumber(p.Phone),
		"email":         validation.ValidateEmail(p.Email),
	}

	fields := map[string]validation.Reason{}
	for name, res := range checks {
		if !res.Valid {
			fields[name] = res.Reason
		}
	}
	if len(fields) > 0 {
		return &SubmissionError{Fields: fields}
	}
	return nil
}

type Service struct {
	repo   Repository
	locker redisclient.Locker
	events messaging.Publisher
	log    zerolog.Logger
	now    func() time.Time
}

func NewService(repo Repository, locker redisclient.Locker, events messaging.Publisher, log zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		locker: locker,
		events: events,
		log:    log.With().Str("component", "patient_service").Logger(),
		now:    time.Now,
	}
}

// Upsert writes the row for p.SessionID. Writes for one session are serialised
// by a distributed lock, and a write whose status ranks below the stored one is
// refused with ErrStaleWrite so a late auto-save cannot undo a submission.
func (s *Service) Upsert(ctx context.Context, p UpsertParams) (*Patient, bool, error) {
	if err := s.normalize(&p); err != nil {
		return nil, false, err
	}

	var (
		saved    *Patient
		inserted bool
	)

	err := s.locker.WithSessionLock(ctx, p.SessionID, func(lockCtx context.Context) error {
		var err error
		saved, inserted, err = s.repo.UpsertBySession(lockCtx, p)
		return err
	})
	if err != nil {
		switch {
		case errors.Is(err, redisclient.ErrLockNotAcquired):
			return nil, false, ErrSessionBusy
		case errors.Is(err, ErrStaleWrite):
			s.log.Info().Str("session_id", p.SessionID).Str("status", string(p.Status)).Msg("stale write ignored")
			return nil, false, err
		default:
			return nil, false, fmt.Errorf("upsert patient: %w", err)
		}
	}

	if inserted {
		s.publish(ctx, messaging.EventPatientCreated, saved, saved.UpdatedAt)
	}
	if p.Status == StatusSubmitted {
		s.publish(ctx, messaging.EventPatientSubmitted, saved, saved.UpdatedAt)
	}

	return saved, inserted, nil
}

func (s *Service) normalize(p *UpsertParams) error {
	if !ValidSessionID(p.SessionID) {
		return fmt.Errorf("%w: %q", ErrInvalidSessionID, p.SessionID)
	}

	if p.Status == "" {
		p.Status = StatusFilling
	}
	if p.Status != StatusFilling && p.Status != StatusSubmitted {
		return fmt.Errorf("%w: %q", ErrInvalidStatus, p.Status)
	}

	if p.Gender == "" {
		p.Gender = GenderMale
	}
	if !p.Gender.Valid() {
		return fmt.Errorf("%w: %q", ErrInvalidGender, p.Gender)
	}

	if p.DateOfBirth != nil {
		dob := strings.TrimSpace(*p.DateOfBirth)
		if dob == "" {
			p.DateOfBirth = nil
		} else {
			if _, err := time.Parse(dateLayout, dob); err != nil {
				return fmt.Errorf("%w: %q", ErrInvalidDateOfBirth, dob)
			}
			p.DateOfBirth = &dob
		}
	}

	p.Phone = phone.CleanForStorage(p.Phone)
	p.UpdatedAt = s.now().UTC()

	if p.Status == StatusSubmitted {
		return CheckSubmission(*p)
	}
	return nil
}

// List returns every patient, most recently updated first.
func (s *Service) List(ctx context.Context) ([]Patient, error) {
	patients, err := s.repo.List(ctx)
	if err != nil {
		return nil, fmt.Errorf("list patients: %w", err)
	}
	return patients, nil
}

func (s *Service) Get(ctx context.Context, id uuid.UUID) (*Patient, error) {
	p, err := s.repo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get patient: %w", err)
	}
	return p, nil
}

// Delete removes the row outright. There is no soft delete.
func (s *Service) Delete(ctx context.Context, id uuid.UUID) error {
	deleted, err := s.repo.Delete(ctx, id)
	if err != nil {
		return fmt.Errorf("delete patient: %w", err)
	}

	s.publish(ctx, messaging.EventPatientDeleted, deleted, s.now().UTC())
	return nil
}

func (s *Service) publish(ctx context.Context, routingKey string, p *Patient, at time.Time) {
	event := messaging.NewPatientEvent(routingKey, messaging.PatientEventData{
		PatientID:  p.ID.String(),
		SessionID:  p.SessionID,
		Status:     string(p.Status),
		OccurredAt: at,
	})

	if err := s.events.Publish(ctx, routingKey, event); err != nil {
		s.log.Error().Err(err).Str("routing_key", routingKey).Str("patient_id", p.ID.String()).Msg("failed to publish event")
	}
}
