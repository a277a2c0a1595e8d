//go:build integration

package http_test

import (
	"context"
	"encoding/base64"
	"encoding/json"
	"strconv"
	"strings"
	"testing"
	"time"

	"github.com/gofiber/fiber/v2"

	handler "github.com/kisansahayak/agrimonitor/internal/adapters/http"
	"github.com/kisansahayak/agrimonitor/internal/adapters/postgres"
	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/usecases"
	"github.com/kisansahayak/agrimonitor/internal/pkg/config"
	"github.com/kisansahayak/agrimonitor/internal/pkg/geospatial"
	"github.com/kisansahayak/agrimonitor/migrations"
)

// setupTestDB connects to the test database and applies the schema.
func setupTestDB(t *testing.T) *postgres.DB {
	cfg, err := config.Load("agrimonitor-test")
	if err != nil {
		t.Fatalf("load config: %v", err)
	}

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	db, err := postgres.New(ctx, cfg.Database.DSN())
	if err != nil {
		t.Fatalf("connect db: %v", err)
	}
	t.Cleanup(db.Close)

	files, err := migrations.Up()
	if err != nil {
		t.Fatalf("list migrations: %v", err)
	}
	for _, name := range files {
		sql, err := migrations.FS.ReadFile(name)
		if err != nil {
			t.Fatalf("read %s: %v", name, err)
		}
		if _, err := db.Pool.Exec(ctx, string(sql)); err != nil {
			t.Fatalf("apply %s: %v", name, err)
		}
	}
	return db
}

// setupDBApp wires real repositories with in-process collaborators.
func setupDBApp(db *postgres.DB, blobs *mockBlobStore) *fiber.App {
	fields := postgres.NewFieldRepo(db)
	readings := postgres.NewReadingRepo(db)
	assets := usecases.NewAssetService(readings, blobs, nil, "", 0)

	deps := &handler.Dependencies{
		Fields:   usecases.NewFieldService(fields, readings, assets, usecases.NewWeatherService(stubWeather{}, nil), geospatial.NewTileURLBuilder("", 17)),
		Readings: usecases.NewReadingService(readings, fields, &mockClassifier{text: leafBlight}, assets, nil),
		DB:       db,
	}
	app := fiber.New(fiber.Config{DisableStartupMessage: true})
	handler.SetupRoutes(app, deps)
	return app
}

func uniqueName(prefix string) string {
	return prefix + " " + time.Now().Format("20060102150405.000000")
}

func createField(t *testing.T, app *fiber.App, name string) domain.Field {
	t.Helper()
	status, data := postJSON(t, app, "/v1/fields", map[string]any{
		"name": name, "geometry": json.RawMessage(northPlot), "size": 3.2,
	})
	if status != 201 {
		t.Fatalf("create field: %d %s", status, data)
	}
	var f domain.Field
	if err := json.Unmarshal(data, &f); err != nil {
		t.Fatal(err)
	}
	return f
}

func TestFieldLifecycle_Integration(t *testing.T) {
	db := setupTestDB(t)
	app := setupDBApp(db, &mockBlobStore{})

	name := uniqueName("Integration plot")
	f := createField(t, app, name)

	status, data := postJSON(t, app, "/v1/fields", map[string]any{
		"name": name, "geometry": json.RawMessage(northPlot), "size": 1,
	})
	if status != 400 || decodeError(t, data).Fields["name"] == "" {
		t.Fatalf("expected duplicate name rejection, got %d: %s", status, data)
	}

	status, _, _ = do(t, app, "GET", "/v1/fields/"+jsonID(f.ID), "", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}

	status, _, _ = do(t, app, "DELETE", "/v1/fields/"+jsonID(f.ID), "", nil)
	if status != 204 {
		t.Fatalf("expected 204, got %d", status)
	}
	status, _, _ = do(t, app, "GET", "/v1/fields/"+jsonID(f.ID), "", nil)
	if status != 404 {
		t.Errorf("expected 404 after delete, got %d", status)
	}
}

func TestReadingIntake_Integration(t *testing.T) {
	db := setupTestDB(t)
	blobs := &mockBlobStore{}
	app := setupDBApp(db, blobs)

	f := createField(t, app, uniqueName("Intake plot"))

	status, data := postJSON(t, app, "/v1/readings", map[string]any{
		"main_field": f.ID,
		"humidity":   64,
		"location":   map[string]float64{"lat": 12.9, "lng": 77.6},
		"img":        base64.StdEncoding.EncodeToString(jpeg),
	})
	if status != 201 {
		t.Fatalf("expected 201, got %d: %s", status, data)
	}
	var r domain.Reading
	json.Unmarshal(data, &r)
	if r.AssetStatus != domain.AssetAttached || r.CropName != "Tomato" {
		t.Fatalf("unexpected reading %+v", r)
	}

	blobs.fail = true
	status, data = postJSON(t, app, "/v1/readings", map[string]any{
		"main_field": f.ID,
		"img":        base64.StdEncoding.EncodeToString(jpeg),
	})
	if status != 201 {
		t.Fatalf("expected 201 despite upload failure, got %d: %s", status, data)
	}
	json.Unmarshal(data, &r)

	status, data, _ = do(t, app, "GET", "/v1/readings/"+jsonID(r.ID), "", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var stored domain.Reading
	json.Unmarshal(data, &stored)
	if stored.AssetStatus != domain.AssetAttachFailed || stored.IsDisease != true {
		t.Errorf("expected persisted attach_failed diagnosis, got %+v", stored)
	}

	status, data, _ = do(t, app, "GET", "/v1/fields/"+jsonID(f.ID)+"/sightings", "", nil)
	if status != 200 {
		t.Fatalf("expected 200, got %d", status)
	}
	var sightings []domain.Sighting
	json.Unmarshal(data, &sightings)
	if len(sightings) != 2 {
		t.Errorf("expected located and unlocated sightings, got %d", len(sightings))
	}
	if !strings.HasPrefix(sightings[0].Img, "https://blobs.test/field_data/") && !strings.HasPrefix(sightings[1].Img, "https://blobs.test/field_data/") {
		t.Errorf("expected an attached image among sightings, got %+v", sightings)
	}
}

func jsonID(id int64) string { return strconv.FormatInt(id, 10) }
