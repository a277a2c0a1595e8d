package ports

import (
	"context"
	"time"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
)

// FieldRepository persists fields.
type FieldRepository interface {
	Create(ctx context.Context, field *domain.Field) error
	Update(ctx context.Context, field *domain.Field) error
	Delete(ctx context.Context, id int64) error
	GetByID(ctx context.Context, id int64) (*domain.Field, error)
	GetByName(ctx context.Context, name string) (*domain.Field, error)
	List(ctx context.Context, search string, offset, limit int) ([]domain.Field, int, error)
}

// ReadingFilter narrows reading queries. Results are always most-recent-first.
type ReadingFilter struct {
	FieldID     int64
	DiseaseOnly bool
	Offset      int
	Limit       int
}

// ReadingRepository persists field readings.
type ReadingRepository interface {
	Create(ctx context.Context, reading *domain.Reading) error
	GetByID(ctx context.Context, id int64) (*domain.Reading, error)
	List(ctx context.Context, filter ReadingFilter) ([]domain.Reading, int, error)
	SetAsset(ctx context.Context, id int64, assetID string, status domain.AssetStatus) error
	SetAssetStatus(ctx context.Context, id int64, status domain.AssetStatus) error
	ListDetached(ctx context.Context, pendingBefore time.Time, limit int) ([]domain.Reading, error)
}
