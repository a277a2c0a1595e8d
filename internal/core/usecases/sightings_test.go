package usecases_test

import (
	"slices"
	"testing"
	"time"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/usecases"
)

func TestDiseaseSightings(t *testing.T) {
	t0 := time.Date(2024, 6, 1, 9, 0, 0, 0, time.UTC)
	readings := []domain.Reading{
		{ID: 5, IsDisease: true, CropName: "latest", Location: &domain.LatLng{Lat: 12.9, Lng: 77.6}, CreatedAt: t0.Add(4 * time.Hour)},
		{ID: 4, IsDisease: false, CropName: "healthy", Location: &domain.LatLng{Lat: 13, Lng: 77}, CreatedAt: t0.Add(3 * time.Hour)},
		{ID: 3, IsDisease: true, CropName: "older", Location: &domain.LatLng{Lat: 12.9000001, Lng: 77.6}, CreatedAt: t0.Add(2 * time.Hour)},
		{ID: 2, IsDisease: true, CropName: "elsewhere", Location: &domain.LatLng{Lat: 12.95, Lng: 77.65}, CreatedAt: t0.Add(time.Hour)},
		{ID: 1, IsDisease: true, CropName: "unplaced", CreatedAt: t0},
	}

	got := slices.Collect(usecases.DiseaseSightings(readings, nil))

	want := []string{"latest", "elsewhere", "unplaced"}
	if len(got) != len(want) {
		t.Fatalf("expected %d sightings, got %d: %+v", len(want), len(got), got)
	}
	for i, name := range want {
		if got[i].CropName != name {
			t.Errorf("sighting %d: expected %s, got %s", i, name, got[i].CropName)
		}
	}
}

func TestDiseaseSightings_MissingLocationsShareKey(t *testing.T) {
	readings := []domain.Reading{
		{IsDisease: true, CropName: "first"},
		{IsDisease: true, CropName: "second"},
	}
	got := slices.Collect(usecases.DiseaseSightings(readings, nil))
	if len(got) != 1 || got[0].CropName != "first" {
		t.Errorf("expected only the first unplaced reading, got %+v", got)
	}
}

func TestDiseaseSightings_Restartable(t *testing.T) {
	readings := []domain.Reading{
		{IsDisease: true, Location: &domain.LatLng{Lat: 1, Lng: 1}},
		{IsDisease: true, Location: &domain.LatLng{Lat: 2, Lng: 2}},
	}
	seq := usecases.DiseaseSightings(readings, nil)

	if a, b := len(slices.Collect(seq)), len(slices.Collect(seq)); a != 2 || b != 2 {
		t.Errorf("expected 2 sightings on each pass, got %d and %d", a, b)
	}

	n := 0
	for range seq {
		n++
		break
	}
	if n != 1 {
		t.Errorf("expected early stop after one sighting, got %d", n)
	}
}

func TestDiseaseSightings_ResolvesImages(t *testing.T) {
	readings := []domain.Reading{
		{IsDisease: true, AssetID: "field_data/reading-9"},
	}
	got := slices.Collect(usecases.DiseaseSightings(readings, func(id string) string { return "https://cdn.test/" + id }))
	if got[0].Img != "https://cdn.test/field_data/reading-9" {
		t.Errorf("unexpected image URL %q", got[0].Img)
	}
}

func TestDiseaseSightings_Empty(t *testing.T) {
	if got := slices.Collect(usecases.DiseaseSightings(nil, nil)); len(got) != 0 {
		t.Errorf("expected no sightings, got %d", len(got))
	}
}
