package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"

	"github.com/kisansahayak/agrimonitor/internal/core/diagnosis"
	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/ports"
	"github.com/kisansahayak/agrimonitor/internal/pkg/metrics"
)

var tracer = otel.Tracer("github.com/kisansahayak/agrimonitor/internal/core/usecases")

// SubmitReading is an incoming field observation.
type SubmitReading struct {
	FieldID      int64
	Temperature  *float64
	Humidity     *float64
	SoilMoisture *float64
	Location     *domain.LatLng
	Description  string
	Image        []byte
	ImageMIME    string
}

// ReadingService runs submitted readings through diagnosis and storage.
//
// A reading with an image moves through classify, core persist and asset
// attach. The core record is written before the image is uploaded and is
// never rolled back; an upload failure leaves it in AssetAttachFailed.
type ReadingService struct {
	readings   ports.ReadingRepository
	fields     ports.FieldRepository
	classifier ports.Classifier
	assets     *AssetService
	events     ports.EventPublisher
	now        func() time.Time
}

// NewReadingService creates a new ReadingService. classifier and events may
// be nil.
func NewReadingService(
	readings ports.ReadingRepository,
	fields ports.FieldRepository,
	classifier ports.Classifier,
	assets *AssetService,
	events ports.EventPublisher,
) *ReadingService {
	return &ReadingService{
		readings:   readings,
		fields:     fields,
		classifier: classifier,
		assets:     assets,
		events:     events,
		now:        time.Now,
	}
}

// Submit stores a reading. Classification and upload failures are recorded
// on the reading rather than returned; errors mean nothing was stored.
func (s *ReadingService) Submit(ctx context.Context, in SubmitReading) (*domain.Reading, error) {
	if err := s.validate(ctx, in); err != nil {
		return nil, err
	}

	r := &domain.Reading{
		FieldID:      in.FieldID,
		Temperature:  in.Temperature,
		Humidity:     in.Humidity,
		SoilMoisture: in.SoilMoisture,
		Location:     in.Location,
		Description:  diagnosis.Clean(in.Description, diagnosis.MaxTextLen),
		CropName:     domain.DefaultCropName,
		Solution:     domain.DefaultSolution,
		AssetStatus:  domain.AssetNone,
		CreatedAt:    s.now().UTC(),
	}

	hasImage := len(in.Image) > 0
	if hasImage {
		r.ApplyDiagnosis(s.Classify(ctx, in.Image, in.ImageMIME))
		r.AssetStatus = domain.AssetPending
	}

	if err := s.persistCore(ctx, r); err != nil {
		return nil, err
	}
	metrics.ReadingsSubmitted.WithLabelValues(fmt.Sprint(hasImage), fmt.Sprint(r.IsDisease)).Inc()

	if hasImage {
		s.attach(ctx, r, in.Image)
	}

	s.publishCreated(ctx, r)
	return r, nil
}

// Classify asks the classifier for a diagnosis of image. It never fails:
// call and parse errors produce the sentinel diagnosis.
func (s *ReadingService) Classify(ctx context.Context, image []byte, mimeType string) (d domain.Diagnosis) {
	ctx, span := tracer.Start(ctx, "reading.classify")
	defer span.End()

	defer func() {
		if p := recover(); p != nil {
			metrics.ClassifierCalls.WithLabelValues("call_error").Inc()
			d = diagnosis.Sentinel(fmt.Errorf("classifier panic: %v", p))
			span.SetStatus(codes.Error, d.Error)
		}
	}()

	if s.classifier == nil {
		metrics.ClassifierCalls.WithLabelValues("call_error").Inc()
		return diagnosis.Sentinel(errors.New("classifier not configured"))
	}
	if mimeType == "" {
		mimeType = http.DetectContentType(image)
	}

	text, err := s.classifier.Classify(ctx, image, mimeType, diagnosis.Prompt)
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues("call_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "classifier call failed")
		slog.WarnContext(ctx, "classifier call failed", "error", err)
		return diagnosis.Sentinel(fmt.Errorf("classifier call: %w", err))
	}

	parsed, err := diagnosis.Parse(text)
	if err != nil {
		metrics.ClassifierCalls.WithLabelValues("parse_error").Inc()
		span.RecordError(err)
		span.SetStatus(codes.Error, "unparseable classifier response")
		slog.WarnContext(ctx, "unparseable classifier response", "error", err)
		return diagnosis.Sentinel(err)
	}

	metrics.ClassifierCalls.WithLabelValues("ok").Inc()
	span.SetAttributes(
		attribute.String("diagnosis.crop_name", parsed.CropName),
		attribute.Bool("diagnosis.is_disease", parsed.IsDisease),
	)
	return parsed
}

func (s *ReadingService) persistCore(ctx context.Context, r *domain.Reading) error {
	ctx, span := tracer.Start(ctx, "reading.persist")
	defer span.End()

	if err := s.readings.Create(ctx, r); err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "persist reading failed")
		return fmt.Errorf("create reading: %w", err)
	}
	span.SetAttributes(attribute.Int64("reading.id", r.ID))
	return nil
}

func (s *ReadingService) attach(ctx context.Context, r *domain.Reading, image []byte) {
	ctx, span := tracer.Start(ctx, "reading.attach")
	defer span.End()
	span.SetAttributes(attribute.Int64("reading.id", r.ID), attribute.Int("asset.bytes", len(image)))

	var (
		publicID string
		err      error
	)
	if s.assets == nil {
		err = errors.New("asset service not configured")
	} else {
		publicID, err = s.assets.Attach(ctx, r.ID, image)
	}

	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, "asset attach failed")
		metrics.AssetAttachments.WithLabelValues("failed").Inc()
		slog.ErrorContext(ctx, "asset attach failed", "reading_id", r.ID, "error", err)

		r.AssetStatus = domain.AssetAttachFailed
		if s.assets != nil {
			s.assets.MarkFailed(ctx, r.ID, image)
		}
		s.publishAttachFailed(ctx, r, err)
		return
	}

	metrics.AssetAttachments.WithLabelValues("attached").Inc()
	r.AssetID = publicID
	r.AssetStatus = domain.AssetAttached
	r.AssetURL = s.assets.ResolveURL(publicID)
}

// List returns readings matching filter, most recent first, with image URLs.
func (s *ReadingService) List(ctx context.Context, filter ports.ReadingFilter) ([]domain.Reading, int, error) {
	readings, total, err := s.readings.List(ctx, filter)
	if err != nil {
		return nil, 0, fmt.Errorf("list readings: %w", err)
	}
	for i := range readings {
		readings[i].AssetURL = s.resolve(readings[i].AssetID)
	}
	return readings, total, nil
}

// GetByID returns a single reading with its image URL.
func (s *ReadingService) GetByID(ctx context.Context, id int64) (*domain.Reading, error) {
	r, err := s.readings.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	r.AssetURL = s.resolve(r.AssetID)
	return r, nil
}

func (s *ReadingService) validate(ctx context.Context, in SubmitReading) error {
	verr := &domain.ValidationError{}
	if in.FieldID <= 0 {
		verr.Add("main_field", "This field is required.")
		return verr
	}
	if in.Humidity != nil && (*in.Humidity < 0 || *in.Humidity > 100) {
		verr.Add("humidity", "Must be between 0 and 100.")
	}
	if in.Location != nil && (in.Location.Lat < -90 || in.Location.Lat > 90 || in.Location.Lng < -180 || in.Location.Lng > 180) {
		verr.Add("location", "Latitude or longitude out of range.")
	}

	if _, err := s.fields.GetByID(ctx, in.FieldID); err != nil {
		if !errors.Is(err, domain.ErrNotFound) {
			return fmt.Errorf("get field %d: %w", in.FieldID, err)
		}
		verr.Add("main_field", fmt.Sprintf("Invalid pk %q - object does not exist.", fmt.Sprint(in.FieldID)))
	}
	return verr.OrNil()
}

func (s *ReadingService) resolve(publicID string) string {
	if s.assets == nil {
		return ""
	}
	return s.assets.ResolveURL(publicID)
}

func (s *ReadingService) publishCreated(ctx context.Context, r *domain.Reading) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishReadingCreated(ctx, readingEvent(r, "", s.now())); err != nil {
		slog.WarnContext(ctx, "publish reading created", "reading_id", r.ID, "error", err)
	}
}

func (s *ReadingService) publishAttachFailed(ctx context.Context, r *domain.Reading, cause error) {
	if s.events == nil {
		return
	}
	if err := s.events.PublishAssetAttachFailed(ctx, readingEvent(r, cause.Error(), s.now())); err != nil {
		slog.WarnContext(ctx, "publish asset attach failed", "reading_id", r.ID, "error", err)
	}
}

func readingEvent(r *domain.Reading, reason string, at time.Time) *domain.ReadingEvent {
	return &domain.ReadingEvent{
		ReadingID:   r.ID,
		FieldID:     r.FieldID,
		CropName:    r.CropName,
		IsDisease:   r.IsDisease,
		Location:    r.Location,
		AssetStatus: r.AssetStatus,
		Reason:      reason,
		OccurredAt:  at.UTC(),
	}
}
