package postgres

import (
	"context"
	"fmt"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
)

// FieldRepo implements ports.FieldRepository with pgx.
type FieldRepo struct {
	db *DB
}

// NewFieldRepo creates a new FieldRepo.
func NewFieldRepo(db *DB) *FieldRepo {
	return &FieldRepo{db: db}
}

const fieldColumns = `id, name, description, geometry, size, created_at, updated_at`

// Create inserts a field and fills in its identity and timestamps.
func (r *FieldRepo) Create(ctx context.Context, f *domain.Field) error {
	err := r.db.Pool.QueryRow(ctx, `
		INSERT INTO fields (name, description, geometry, size)
		VALUES ($1, $2, $3, $4)
		RETURNING id, created_at, updated_at
	`, f.Name, f.Description, []byte(f.Geometry), f.Size).Scan(&f.ID, &f.CreatedAt, &f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("insert field: %w", translate(err))
	}
	return nil
}

// Update replaces a field's attributes.
func (r *FieldRepo) Update(ctx context.Context, f *domain.Field) error {
	err := r.db.Pool.QueryRow(ctx, `
		UPDATE fields
		SET name = $2, description = $3, geometry = $4, size = $5, updated_at = now()
		WHERE id = $1
		RETURNING updated_at
	`, f.ID, f.Name, f.Description, []byte(f.Geometry), f.Size).Scan(&f.UpdatedAt)
	if err != nil {
		return fmt.Errorf("update field: %w", translate(err))
	}
	return nil
}

// Delete removes a field; its readings go with it.
func (r *FieldRepo) Delete(ctx context.Context, id int64) error {
	tag, err := r.db.Pool.Exec(ctx, `DELETE FROM fields WHERE id = $1`, id)
	if err != nil {
		return fmt.Errorf("delete field: %w", err)
	}
	if tag.RowsAffected() == 0 {
		return domain.ErrNotFound
	}
	return nil
}

// GetByID returns a field by id.
func (r *FieldRepo) GetByID(ctx context.Context, id int64) (*domain.Field, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+fieldColumns+` FROM fields WHERE id = $1`, id)
	return scanField(row)
}

// GetByName returns a field by exact name.
func (r *FieldRepo) GetByName(ctx context.Context, name string) (*domain.Field, error) {
	row := r.db.Pool.QueryRow(ctx, `SELECT `+fieldColumns+` FROM fields WHERE name = $1`, name)
	return scanField(row)
}

// List returns a page of fields, most recent first, plus the total count.
// search matches name substrings case-insensitively.
func (r *FieldRepo) List(ctx context.Context, search string, offset, limit int) ([]domain.Field, int, error) {
	pattern := "%"
	if search != "" {
		pattern = "%" + escapeLike(search) + "%"
	}

	var total int
	if err := r.db.Pool.QueryRow(ctx,
		`SELECT count(*) FROM fields WHERE name ILIKE $1`, pattern,
	).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("count fields: %w", err)
	}

	rows, err := r.db.Pool.Query(ctx, `
		SELECT `+fieldColumns+`
		FROM fields
		WHERE name ILIKE $1
		ORDER BY created_at DESC, id DESC
		OFFSET $2 LIMIT $3
	`, pattern, offset, limit)
	if err != nil {
		return nil, 0, fmt.Errorf("list fields: %w", err)
	}
	defer rows.Close()

	fields := make([]domain.Field, 0, limit)
	for rows.Next() {
		f, err := scanField(rows)
		if err != nil {
			return nil, 0, fmt.Errorf("scan field: %w", err)
		}
		fields = append(fields, *f)
	}
	return fields, total, rows.Err()
}

type scanner interface {
	Scan(dest ...any) error
}

func scanField(row scanner) (*domain.Field, error) {
	var (
		f        domain.Field
		geometry []byte
	)
	if err := row.Scan(&f.ID, &f.Name, &f.Description, &geometry, &f.Size, &f.CreatedAt, &f.UpdatedAt); err != nil {
		return nil, translate(err)
	}
	f.Geometry = geometry
	return &f, nil
}

func escapeLike(s string) string {
	out := make([]rune, 0, len(s))
	for _, r := range s {
		if r == '%' || r == '_' || r == '\\' {
			out = append(out, '\\')
		}
		out = append(out, r)
	}
	return string(out)
}
