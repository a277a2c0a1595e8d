package usecases

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"slices"
	"strings"
	"unicode/utf8"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/ports"
	"github.com/kisansahayak/agrimonitor/internal/pkg/geospatial"
)

const maxFieldNameLen = 100

// FieldInput carries user-editable field attributes.
type FieldInput struct {
	Name        string          `json:"name"`
	Description string          `json:"description"`
	Geometry    json.RawMessage `json:"geometry"`
	Size        float64         `json:"size"`
}

// FieldService handles field management and the augmented field view.
type FieldService struct {
	fields   ports.FieldRepository
	readings ports.ReadingRepository
	assets   *AssetService
	weather  *WeatherService
	tiles    *geospatial.TileURLBuilder
}

// NewFieldService creates a new FieldService. weather may be nil, in which
// case detail views carry no weather.
func NewFieldService(
	fields ports.FieldRepository,
	readings ports.ReadingRepository,
	assets *AssetService,
	weather *WeatherService,
	tiles *geospatial.TileURLBuilder,
) *FieldService {
	if tiles == nil {
		tiles = geospatial.NewTileURLBuilder("", 0)
	}
	return &FieldService{fields: fields, readings: readings, assets: assets, weather: weather, tiles: tiles}
}

// List returns fields, most recent first, optionally filtered by a name
// substring.
func (s *FieldService) List(ctx context.Context, search string, offset, limit int) ([]domain.Field, int, error) {
	if offset < 0 {
		offset = 0
	}
	if limit <= 0 || limit > 200 {
		limit = 100
	}
	fields, total, err := s.fields.List(ctx, strings.TrimSpace(search), offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list fields: %w", err)
	}
	return fields, total, nil
}

// GetByID returns a single field.
func (s *FieldService) GetByID(ctx context.Context, id int64) (*domain.Field, error) {
	return s.fields.GetByID(ctx, id)
}

// Create validates and stores a new field.
func (s *FieldService) Create(ctx context.Context, in FieldInput) (*domain.Field, error) {
	if err := s.validate(ctx, in, 0); err != nil {
		return nil, err
	}
	f := &domain.Field{
		Name:        strings.TrimSpace(in.Name),
		Description: in.Description,
		Geometry:    in.Geometry,
		Size:        in.Size,
	}
	if err := s.fields.Create(ctx, f); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, duplicateName()
		}
		return nil, fmt.Errorf("create field: %w", err)
	}
	return f, nil
}

// Update replaces a field's attributes in place.
func (s *FieldService) Update(ctx context.Context, id int64, in FieldInput) (*domain.Field, error) {
	f, err := s.fields.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := s.validate(ctx, in, id); err != nil {
		return nil, err
	}

	f.Name = strings.TrimSpace(in.Name)
	f.Description = in.Description
	f.Geometry = in.Geometry
	f.Size = in.Size
	if err := s.fields.Update(ctx, f); err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return nil, duplicateName()
		}
		return nil, fmt.Errorf("update field: %w", err)
	}
	return f, nil
}

// Delete removes a field and its readings. Stored images are removed on a
// best-effort basis.
func (s *FieldService) Delete(ctx context.Context, id int64) error {
	if _, err := s.fields.GetByID(ctx, id); err != nil {
		return err
	}

	readings, _, err := s.readings.List(ctx, ports.ReadingFilter{FieldID: id})
	if err != nil {
		slog.WarnContext(ctx, "list readings before field delete", "field_id", id, "error", err)
	}

	if err := s.fields.Delete(ctx, id); err != nil {
		return fmt.Errorf("delete field: %w", err)
	}

	if s.assets != nil && len(readings) > 0 {
		s.assets.RemoveAll(context.WithoutCancel(ctx), readings)
	}
	return nil
}

// Sightings returns the deduplicated disease sightings of a field.
// domain.ErrNotFound is returned for unknown fields.
func (s *FieldService) Sightings(ctx context.Context, id int64) ([]domain.Sighting, error) {
	if _, err := s.fields.GetByID(ctx, id); err != nil {
		return nil, err
	}
	return s.sightings(ctx, id)
}

func (s *FieldService) sightings(ctx context.Context, id int64) ([]domain.Sighting, error) {
	readings, _, err := s.readings.List(ctx, ports.ReadingFilter{FieldID: id, DiseaseOnly: true})
	if err != nil {
		return nil, fmt.Errorf("list disease readings: %w", err)
	}

	var resolve func(string) string
	if s.assets != nil {
		resolve = s.assets.ResolveURL
	}
	sightings := slices.Collect(DiseaseSightings(readings, resolve))
	if sightings == nil {
		sightings = []domain.Sighting{}
	}
	return sightings, nil
}

// Detail returns the field with its representative coordinate, map tile,
// disease sightings and weather.
func (s *FieldService) Detail(ctx context.Context, id int64) (*domain.FieldDetail, error) {
	f, err := s.fields.GetByID(ctx, id)
	if err != nil {
		return nil, err
	}

	sightings, err := s.sightings(ctx, id)
	if err != nil {
		return nil, err
	}

	detail := &domain.FieldDetail{Field: *f, DiseaseLocations: sightings}

	p, ok := geospatial.RepresentativeCoordinate(f.Geometry)
	if !ok {
		return detail, nil
	}
	detail.MainCoordinate = &p
	if u, err := s.tiles.URL(p.Lat, p.Lon, s.tiles.Zoom); err == nil {
		detail.MapTileURL = &u
	}

	if s.weather != nil {
		detail.Weather = s.weather.Current(ctx, p.Lat, p.Lon)
		detail.Forecast = s.weather.Forecast(ctx, p.Lat, p.Lon)
	}
	return detail, nil
}

// Tile returns the tile and tile URL covering a coordinate.
func (s *FieldService) Tile(lat, lon float64, zoom int) (domain.Tile, string, error) {
	if zoom == 0 {
		zoom = s.tiles.Zoom
	}
	t, err := geospatial.TileIndex(lat, lon, zoom)
	if err != nil {
		key := "zoom"
		if errors.Is(err, geospatial.ErrInvalidCoordinate) {
			key = "coordinate"
		}
		return domain.Tile{}, "", domain.NewValidationError(key, err.Error())
	}
	return t, s.tiles.Format(t), nil
}

func (s *FieldService) validate(ctx context.Context, in FieldInput, selfID int64) error {
	verr := &domain.ValidationError{}

	name := strings.TrimSpace(in.Name)
	switch {
	case name == "":
		verr.Add("name", "This field may not be blank.")
	case utf8.RuneCountInString(name) > maxFieldNameLen:
		verr.Add("name", fmt.Sprintf("Ensure this field has no more than %d characters.", maxFieldNameLen))
	}
	if in.Size <= 0 {
		verr.Add("size", "Ensure this value is greater than 0.")
	}
	if len(in.Geometry) == 0 || string(in.Geometry) == "null" {
		verr.Add("geometry", "This field is required.")
	} else if !json.Valid(in.Geometry) {
		verr.Add("geometry", "Value must be valid JSON.")
	}
	if len(verr.Fields) > 0 {
		return verr
	}

	existing, err := s.fields.GetByName(ctx, name)
	switch {
	case err == nil && existing != nil && existing.ID != selfID:
		return duplicateName()
	case err != nil && !errors.Is(err, domain.ErrNotFound):
		return fmt.Errorf("check field name: %w", err)
	}
	return nil
}

func duplicateName() error {
	return domain.NewValidationError("name", "Field with this name already exists")
}
