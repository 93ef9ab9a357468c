package intake

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/medintake/intake/internal/platform/websocket"
)

// ErrInvalid marks submissions rejected before preparation.
var ErrInvalid = errors.New("invalid submission")

// RateSource is implemented by *exchange.Client.
type RateSource interface {
	Rate(ctx context.Context) (float64, error)
}

// Preview is a prepared submission that was not stored, with the payment
// breakdown that produced it.
type Preview struct {
	Submission Submission     `json:"submission"`
	Details    PaymentDetails `json:"details"`
}

type Service struct {
	repo   RecordRepository
	rates  RateSource
	events websocket.Publisher
	logger zerolog.Logger
	now    func() time.Time
}

// NewService wires the record service. rates and events may be nil; records
// are then stored without an exchange rate and without live notifications.
func NewService(repo RecordRepository, rates RateSource, events websocket.Publisher, logger zerolog.Logger) *Service {
	return &Service{
		repo:   repo,
		rates:  rates,
		events: events,
		logger: logger.With().Str("component", "intake").Logger(),
		now:    time.Now,
	}
}

// Validate checks the fields the table and the calculator rely on.
func (s *Service) Validate(v FormValues) error {
	if strings.TrimSpace(v.FullName) == "" {
		return fmt.Errorf("%w: full_name is required", ErrInvalid)
	}
	if strings.TrimSpace(v.IDNumber) == "" {
		return fmt.Errorf("%w: id_number is required", ErrInvalid)
	}
	if v.TotalAmount < 0 {
		return fmt.Errorf("%w: total_amount must not be negative", ErrInvalid)
	}
	if v.Age != nil && *v.Age < 0 {
		return fmt.Errorf("%w: age must not be negative", ErrInvalid)
	}
	if v.NumberOfSamples != nil && *v.NumberOfSamples < 0 {
		return fmt.Errorf("%w: number_of_samples must not be negative", ErrInvalid)
	}
	if len(v.Payments) > MaxPayments {
		return fmt.Errorf("%w: at most %d payments are allowed", ErrInvalid, MaxPayments)
	}
	for i, p := range v.Payments {
		if p.Amount != nil && *p.Amount < 0 {
			return fmt.Errorf("%w: payment %d amount must not be negative", ErrInvalid, i+1)
		}
	}
	if !v.Date.IsZero() && !v.Date.Valid() {
		return fmt.Errorf("%w: date %q is not a valid date", ErrInvalid, v.Date.ISO())
	}
	return nil
}

// currentRate returns nil when the rate source is missing or failing.
func (s *Service) currentRate(ctx context.Context) *float64 {
	if s.rates == nil {
		return nil
	}
	rate, err := s.rates.Rate(ctx)
	if err != nil {
		s.logger.Warn().Err(err).Msg("exchange rate unavailable, preparing submission without it")
		return nil
	}
	return &rate
}

func (s *Service) prepare(ctx context.Context, v FormValues) (Submission, PaymentDetails, error) {
	if err := s.Validate(v); err != nil {
		return Submission{}, PaymentDetails{}, err
	}
	if v.Date.IsZero() {
		v.Date = DateFromTime(s.now())
	}
	sub, details := prepare(v, s.currentRate(ctx))
	if details.Degraded {
		s.logger.Warn().Str("id_number", v.IDNumber).Msg("bolívar payments counted without conversion")
	}
	return sub, details, nil
}

func (s *Service) Preview(ctx context.Context, v FormValues) (*Preview, error) {
	sub, details, err := s.prepare(ctx, v)
	if err != nil {
		return nil, err
	}
	return &Preview{Submission: sub, Details: details}, nil
}

// Submit prepares and stores a form, then notifies dashboards.
func (s *Service) Submit(ctx context.Context, v FormValues, userID string) (*Record, error) {
	sub, _, err := s.prepare(ctx, v)
	if err != nil {
		return nil, err
	}
	rec, err := s.repo.Create(ctx, sub, userID)
	if err != nil {
		return nil, err
	}
	s.logger.Info().
		Str("record_id", rec.ID.String()).
		Str("payment_status", rec.PaymentStatus).
		Float64("remaining", rec.Remaining).
		Msg("medical record stored")

	s.publishCreated(ctx, rec)
	return rec, nil
}

func (s *Service) publishCreated(ctx context.Context, rec *Record) {
	if s.events == nil {
		return
	}
	var branch string
	if rec.Branch != nil {
		branch = *rec.Branch
	}
	data, err := json.Marshal(map[string]interface{}{
		"id":             rec.ID,
		"full_name":      rec.FullName,
		"branch":         rec.Branch,
		"date":           rec.Date,
		"payment_status": rec.PaymentStatus,
		"remaining":      rec.Remaining,
	})
	if err != nil {
		s.logger.Error().Err(err).Msg("encode record event")
		return
	}
	for _, topic := range []string{websocket.TopicRecords, websocket.BranchTopic(branch)} {
		err := s.events.Publish(ctx, websocket.Event{
			Type:      websocket.EventRecordCreated,
			Topic:     topic,
			SubjectID: rec.ID.String(),
			Data:      data,
		})
		if err != nil {
			s.logger.Error().Err(err).Str("topic", topic).Msg("publish record event")
		}
	}
}

func (s *Service) GetRecord(ctx context.Context, id uuid.UUID) (*Record, error) {
	return s.repo.GetByID(ctx, id)
}

func (s *Service) ListRecords(ctx context.Context, f ListFilter, limit, offset int) ([]*Record, int, error) {
	return s.repo.List(ctx, f, limit, offset)
}

// Calendar returns per-day record counts for month, formatted YYYY-MM. An
// empty month means the current one.
func (s *Service) Calendar(ctx context.Context, month string) (string, []DayCount, error) {
	var start time.Time
	if month == "" {
		now := s.now().UTC()
		start = time.Date(now.Year(), now.Month(), 1, 0, 0, 0, 0, time.UTC)
	} else {
		t, err := time.Parse("2006-01", month)
		if err != nil {
			return "", nil, fmt.Errorf("%w: month must be YYYY-MM", ErrInvalid)
		}
		start = t
	}
	days, err := s.repo.CountByDay(ctx, start, start.AddDate(0, 1, 0))
	if err != nil {
		return "", nil, err
	}
	return start.Format("2006-01"), days, nil
}
