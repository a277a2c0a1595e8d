package postgres

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/ports"
)

// ReadingRepo implements ports.ReadingRepository with pgx.
type ReadingRepo struct {
	db *DB
}

// NewReadingRepo creates a new ReadingRepo.
func NewReadingRepo(db *DB) *ReadingRepo {
	return &ReadingRepo{db: db}
}

const readingColumns = `id, field_id, temperature, humidity, soil_moisture,
	location_lat, location_lng, asset_id, asset_status,
	crop_name, description, is_disease, is_not_crop, solution, diagnosis_error, created_at`

// Create inserts every non-asset column of a reading and assigns its id.
func (r *ReadingRepo) Create(ctx context.Context, rd *domain.Reading) error {
	var lat, lng *float64
	if rd.Location != nil {
		lat, lng = &rd.Location.Lat, &rd.Location.Lng
	}
	if rd.CreatedAt.IsZero() {
		rd.CreatedAt = time.Now().UTC()
	}

	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO readings (field_id, temperature, humidity, soil_moisture,
			location_lat, location_lng, asset_status,
			crop_name, description, is_disease, is_not_crop, solution, diagnosis_error, created_at)
		VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14)
		RETURNING id
	`, rd.FieldID, rd.Temperature, rd.Humidity, rd.SoilMoisture,
		lat, lng, string(rd.AssetStatus),
		rd.CropName, rd.Description, rd.IsDisease, rd.IsNotCrop, rd.Solution, rd.DiagnosisError, rd.CreatedAt,
	).Scan(&rd.ID)
	if err != nil {
		return fmt.Errorf("insert reading: %w", translate(err))
	}
	return nil
}

// GetByID returns a reading by id.
func (r *ReadingRepo) GetByID(ctx context.Context, id int64) (*domain.Reading, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+readingColumns+` FROM readings WHERE id = $1`, id)
	return scanReading(row)
}

// List returns readings most recent first. A zero Limit returns every match.
func (r *ReadingRepo) List(ctx context.Context, f ports.ReadingFilter) ([]domain.Reading, int, error) {
	var (
		conds []string
		args  []any
	)
	if f.FieldID > 0 {
		args = append(args, f.FieldID)
		conds = append(conds, fmt.Sprintf("field_id = $%d", len(args)))
	}
	if f.DiseaseOnly {
		conds = append(conds, "is_disease")
	}
	where := ""
	if len(conds) > 0 {
		where = "WHERE " + strings.Join(conds, " AND ")
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx, `SELECT count(*) FROM readings `+where, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count readings: %w", err)
	}

	query := `SELECT ` + readingColumns + ` FROM readings ` + where + ` ORDER BY created_at DESC, id DESC`
	if f.Offset > 0 {
		args = append(args, f.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}
	if f.Limit > 0 {
		args = append(args, f.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
	}

	rows, err := r.db.Pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("list readings: %w", err)
	}
	defer rows.Close()

	var readings []domain.Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, *rd)
	}
	return readings, total, rows.Err()
}

// SetAsset records the uploaded asset of a reading.
func (r *ReadingRepo) SetAsset(ctx context.Context, id int64, assetID string, status domain.AssetStatus) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE readings SET asset_id = $2, asset_status = $3 WHERE id = $1`,
		id, assetID, string(status))
	if err != nil {
		return fmt.Errorf("set asset: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// SetAssetStatus changes only the asset status of a reading.
func (r *ReadingRepo) SetAssetStatus(ctx context.Context, id int64, status domain.AssetStatus) error {
	tag, err := r.db.Pool.Exec(ctx,
		`UPDATE readings SET asset_status = $2 WHERE id = $1`, id, string(status))
	if err != nil {
		return fmt.Errorf("set asset status: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// ListDetached returns failed attaches and pending ones created before
// pendingBefore, oldest first.
func (r *ReadingRepo) ListDetached(ctx context.Context, pendingBefore time.Time, limit int) ([]domain.Reading, error) {
	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+readingColumns+`
		FROM readings
		WHERE asset_status = 'attach_failed'
		   OR (asset_status = 'pending' AND created_at < $1)
		ORDER BY created_at, id
		LIMIT $2
	`, pendingBefore, limit)
	if err != nil {
		return nil, fmt.Errorf("list detached readings: %w", err)
	}
	defer rows.Close()

	var readings []domain.Reading
	for rows.Next() {
		rd, err := scanReading(rows)
		if err != nil {
			return nil, fmt.Errorf("scan reading: %w", err)
		}
		readings = append(readings, *rd)
	}
	return readings, rows.Err()
}

func scanReading(row scanner) (*domain.Reading, error) {
	var (
		rd       domain.Reading
		lat, lng *float64
		status   string
	)
	err := row.Scan(
		&rd.ID, &rd.FieldID, &rd.Temperature, &rd.Humidity, &rd.SoilMoisture,
		&lat, &lng, &rd.AssetID, &status,
		&rd.CropName, &rd.Description, &rd.IsDisease, &rd.IsNotCrop, &rd.Solution, &rd.DiagnosisError, &rd.CreatedAt,
	)
	if err != nil {
		return nil, translate(err)
	}
	if lat != nil && lng != nil {
		rd.Location = &domain.LatLng{Lat: *lat, Lng: *lng}
	}
	rd.AssetStatus = domain.AssetStatus(status)
	return &rd, nil
}
