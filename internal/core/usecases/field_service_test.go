package usecases_test

import (
	"context"
	"encoding/json"
	"errors"
	"math"
	"strings"
	"testing"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/usecases"
	"github.com/kisansahayak/agrimonitor/internal/pkg/geospatial"
	"github.com/kisansahayak/agrimonitor/internal/pkg/ttlcache"
)

const northPlot = `[[12.9, 77.6], [12.91, 77.6], [12.91, 77.61]]`

type fieldFixture struct {
	fields   *memFieldRepo
	readings *memReadingRepo
	blobs    *mockBlobStore
	weather  *mockWeatherClient
	svc      *usecases.FieldService
}

func newFieldFixture(fields ...domain.Field) *fieldFixture {
	fx := &fieldFixture{
		fields:   newMemFieldRepo(fields...),
		readings: &memReadingRepo{},
		blobs:    &mockBlobStore{},
		weather:  &mockWeatherClient{},
	}
	assets := usecases.NewAssetService(fx.readings, fx.blobs, nil, "", 0)
	weather := usecases.NewWeatherService(fx.weather, ttlcache.New[json.RawMessage](0))
	fx.svc = usecases.NewFieldService(fx.fields, fx.readings, assets, weather, geospatial.NewTileURLBuilder("", 17))
	return fx
}

func TestFieldService_Create(t *testing.T) {
	fx := newFieldFixture()

	f, err := fx.svc.Create(context.Background(), usecases.FieldInput{
		Name:     "  North plot ",
		Geometry: json.RawMessage(northPlot),
		Size:     2.5,
	})
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if f.ID == 0 {
		t.Error("expected an assigned id")
	}
	if f.Name != "North plot" {
		t.Errorf("expected trimmed name, got %q", f.Name)
	}
}

func TestFieldService_Create_DuplicateName(t *testing.T) {
	fx := newFieldFixture(domain.Field{ID: 1, Name: "North plot", Geometry: json.RawMessage(northPlot), Size: 1})

	_, err := fx.svc.Create(context.Background(), usecases.FieldInput{
		Name:     "North plot",
		Geometry: json.RawMessage(northPlot),
		Size:     1,
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	if verr.Fields["name"] != "Field with this name already exists" {
		t.Errorf("unexpected message %q", verr.Fields["name"])
	}
}

func TestFieldService_Create_Validation(t *testing.T) {
	fx := newFieldFixture()

	_, err := fx.svc.Create(context.Background(), usecases.FieldInput{
		Name:     strings.Repeat("x", 101),
		Geometry: json.RawMessage(`{not json`),
		Size:     0,
	})
	var verr *domain.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected validation error, got %v", err)
	}
	for _, key := range []string{"name", "geometry", "size"} {
		if _, ok := verr.Fields[key]; !ok {
			t.Errorf("expected error on %s, got %v", key, verr.Fields)
		}
	}
}

func TestFieldService_Update_KeepsOwnName(t *testing.T) {
	fx := newFieldFixture(domain.Field{ID: 1, Name: "North plot", Geometry: json.RawMessage(northPlot), Size: 1})

	f, err := fx.svc.Update(context.Background(), 1, usecases.FieldInput{
		Name:        "North plot",
		Description: "drip irrigated",
		Geometry:    json.RawMessage(northPlot),
		Size:        3,
	})
	if err != nil {
		t.Fatalf("renaming to its own name must succeed: %v", err)
	}
	if f.Size != 3 || f.Description != "drip irrigated" {
		t.Errorf("update not applied: %+v", f)
	}
}

func TestFieldService_Update_NotFound(t *testing.T) {
	fx := newFieldFixture()

	_, err := fx.svc.Update(context.Background(), 7, usecases.FieldInput{
		Name: "Ghost", Geometry: json.RawMessage(northPlot), Size: 1,
	})
	if !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFieldService_Detail_EndToEnd(t *testing.T) {
	fx := newFieldFixture(domain.Field{ID: 1, Name: "North plot", Geometry: json.RawMessage(northPlot), Size: 2})
	ctx := context.Background()

	fx.readings.readings = []domain.Reading{
		{ID: 1, FieldID: 1, IsDisease: true, CropName: "Tomato", Location: &domain.LatLng{Lat: 12.9, Lng: 77.6}, AssetID: "field_data/reading-1"},
		{ID: 2, FieldID: 1, IsDisease: false, CropName: "Tomato", Location: &domain.LatLng{Lat: 13.1, Lng: 77.9}},
	}
	fx.readings.nextID = 2

	first, err := fx.svc.Detail(ctx, 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}

	if first.MainCoordinate == nil || first.MainCoordinate.Lat != 77.6 || first.MainCoordinate.Lon != 12.9 {
		t.Fatalf("unexpected main coordinate %+v", first.MainCoordinate)
	}
	if first.MapTileURL == nil || !strings.HasPrefix(*first.MapTileURL, "https://mt1.google.com/vt/lyrs=y&x=70233&y=") || !strings.HasSuffix(*first.MapTileURL, "&z=17") {
		t.Fatalf("unexpected tile URL %v", first.MapTileURL)
	}

	if len(first.DiseaseLocations) != 1 {
		t.Fatalf("expected exactly one sighting, got %d", len(first.DiseaseLocations))
	}
	got := first.DiseaseLocations[0]
	if got.Location == nil || got.Location.Lat != 12.9 || got.Location.Lng != 77.6 {
		t.Errorf("expected sighting at the positive location, got %+v", got.Location)
	}
	if got.Img != "https://blobs.test/field_data/reading-1" {
		t.Errorf("expected resolved image URL, got %q", got.Img)
	}

	if string(first.Weather) != `{"endpoint":"weather"}` || string(first.Forecast) != `{"endpoint":"forecast"}` {
		t.Errorf("unexpected weather payloads %s / %s", first.Weather, first.Forecast)
	}

	second, err := fx.svc.Detail(ctx, 1)
	if err != nil {
		t.Fatal(err)
	}
	if *second.MapTileURL != *first.MapTileURL {
		t.Errorf("tile URL not reproducible: %s vs %s", *first.MapTileURL, *second.MapTileURL)
	}
	if fx.weather.Calls() != 2 {
		t.Errorf("expected one upstream call per endpoint, got %d", fx.weather.Calls())
	}
}

func TestFieldService_Detail_NoCoordinate(t *testing.T) {
	fx := newFieldFixture(domain.Field{ID: 1, Name: "Unmapped", Geometry: json.RawMessage(`{"type":"Polygon","coordinates":[]}`), Size: 1})

	d, err := fx.svc.Detail(context.Background(), 1)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if d.MainCoordinate != nil || d.MapTileURL != nil {
		t.Errorf("expected no coordinate or tile, got %+v %v", d.MainCoordinate, d.MapTileURL)
	}
	if d.DiseaseLocations == nil {
		t.Error("expected an empty, non-nil sighting list")
	}
	if fx.weather.Calls() != 0 {
		t.Errorf("expected no weather lookup, got %d", fx.weather.Calls())
	}
}

func TestFieldService_Detail_NotFound(t *testing.T) {
	fx := newFieldFixture()
	if _, err := fx.svc.Detail(context.Background(), 5); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFieldService_Sightings_UnknownField(t *testing.T) {
	fx := newFieldFixture()

	if _, err := fx.svc.Sightings(context.Background(), 999); !errors.Is(err, domain.ErrNotFound) {
		t.Errorf("expected ErrNotFound, got %v", err)
	}
}

func TestFieldService_Delete_RemovesAssets(t *testing.T) {
	fx := newFieldFixture(domain.Field{ID: 1, Name: "North plot", Geometry: json.RawMessage(northPlot), Size: 2})
	fx.readings.readings = []domain.Reading{
		{ID: 1, FieldID: 1, AssetID: "field_data/reading-1"},
		{ID: 2, FieldID: 1},
	}

	if err := fx.svc.Delete(context.Background(), 1); err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if _, err := fx.fields.GetByID(context.Background(), 1); !errors.Is(err, domain.ErrNotFound) {
		t.Error("expected field to be gone")
	}
	if len(fx.blobs.removed) != 1 || fx.blobs.removed[0] != "field_data/reading-1" {
		t.Errorf("expected the stored image to be removed, got %v", fx.blobs.removed)
	}
}

func TestFieldService_Tile(t *testing.T) {
	fx := newFieldFixture()

	tile, url, err := fx.svc.Tile(0, 0, 0)
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if tile.Zoom != 17 {
		t.Errorf("expected default zoom 17, got %d", tile.Zoom)
	}
	if !strings.Contains(url, "&z=17") {
		t.Errorf("unexpected url %q", url)
	}

	_, _, err = fx.svc.Tile(0, 0, 31)
	if !domain.IsValidation(err) {
		t.Errorf("expected validation error for zoom 31, got %v", err)
	}

	_, _, err = fx.svc.Tile(math.NaN(), 0, 17)
	if !domain.IsValidation(err) {
		t.Errorf("expected validation error for NaN latitude, got %v", err)
	}
}

func TestFieldService_List_ClampsLimit(t *testing.T) {
	fx := newFieldFixture(
		domain.Field{ID: 1, Name: "Alpha"},
		domain.Field{ID: 2, Name: "Beta"},
		domain.Field{ID: 3, Name: "alphonso mango"},
	)

	fields, total, err := fx.svc.List(context.Background(), " alph ", 0, 0)
	if err != nil {
		t.Fatal(err)
	}
	if total != 2 || len(fields) != 2 {
		t.Fatalf("expected 2 matches, got %d (total %d)", len(fields), total)
	}
	if fields[0].ID != 3 {
		t.Errorf("expected most recent first, got id %d", fields[0].ID)
	}
}
