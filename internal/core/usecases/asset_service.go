package usecases

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/google/uuid"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/ports"
	"github.com/kisansahayak/agrimonitor/internal/pkg/metrics"
)

// DefaultAssetFolder is the blob folder holding reading images.
const DefaultAssetFolder = "field_data"

// AssetService uploads reading images and attaches them to stored readings.
// Images that could not be attached are held in a shared cache so an
// operator job can retry later.
type AssetService struct {
	readings   ports.ReadingRepository
	blobs      ports.BlobStore
	pending    ports.CacheService
	folder     string
	pendingTTL time.Duration
}

// NewAssetService creates a new AssetService. pending may be nil, in which
// case failed images are not retained.
func NewAssetService(readings ports.ReadingRepository, blobs ports.BlobStore, pending ports.CacheService, folder string, pendingTTL time.Duration) *AssetService {
	if folder == "" {
		folder = DefaultAssetFolder
	}
	if pendingTTL <= 0 {
		pendingTTL = 72 * time.Hour
	}
	return &AssetService{
		readings:   readings,
		blobs:      blobs,
		pending:    pending,
		folder:     folder,
		pendingTTL: pendingTTL,
	}
}

// PendingAssetKey is the cache key holding an unattached image.
func PendingAssetKey(readingID int64) string {
	return "asset:pending:" + strconv.FormatInt(readingID, 10)
}

// AssetKey derives a blob name from the reading identity plus a random suffix.
func AssetKey(readingID int64) string {
	return fmt.Sprintf("reading-%d-%s", readingID, uuid.NewString()[:8])
}

// ResolveURL returns the public URL for a stored asset identifier.
func (s *AssetService) ResolveURL(publicID string) string {
	if publicID == "" || s.blobs == nil {
		return ""
	}
	return s.blobs.ResolveURL(publicID)
}

// Attach uploads image and records it on the reading.
func (s *AssetService) Attach(ctx context.Context, readingID int64, image []byte) (string, error) {
	if s.blobs == nil {
		return "", errors.New("blob store not configured")
	}

	publicID, err := s.blobs.Upload(ctx, image, s.folder, AssetKey(readingID))
	if err != nil {
		return "", fmt.Errorf("upload asset: %w", err)
	}

	if err := s.readings.SetAsset(ctx, readingID, publicID, domain.AssetAttached); err != nil {
		if rmErr := s.blobs.Remove(context.WithoutCancel(ctx), publicID); rmErr != nil {
			slog.WarnContext(ctx, "orphaned asset", "reading_id", readingID, "public_id", publicID, "error", rmErr)
		}
		return "", fmt.Errorf("record asset: %w", err)
	}
	return publicID, nil
}

// MarkFailed records a failed attach and keeps the image for a later retry.
func (s *AssetService) MarkFailed(ctx context.Context, readingID int64, image []byte) {
	ctx = context.WithoutCancel(ctx)

	if err := s.readings.SetAssetStatus(ctx, readingID, domain.AssetAttachFailed); err != nil {
		slog.ErrorContext(ctx, "mark asset attach failed", "reading_id", readingID, "error", err)
	}
	if s.pending == nil {
		return
	}
	if err := s.pending.Set(ctx, PendingAssetKey(readingID), image, int(s.pendingTTL.Seconds())); err != nil {
		slog.ErrorContext(ctx, "stash pending asset", "reading_id", readingID, "error", err)
	}
}

// Reattach retries the upload of a stashed image. Readings that are already
// attached are returned unchanged. domain.ErrAssetExpired is returned when
// the image is no longer held.
func (s *AssetService) Reattach(ctx context.Context, readingID int64) (*domain.Reading, error) {
	r, err := s.readings.GetByID(ctx, readingID)
	if err != nil {
		return nil, fmt.Errorf("get reading %d: %w", readingID, err)
	}
	if r.AssetStatus == domain.AssetAttached {
		r.AssetURL = s.ResolveURL(r.AssetID)
		return r, nil
	}
	if s.pending == nil {
		return nil, domain.ErrAssetExpired
	}

	image, err := s.pending.Get(ctx, PendingAssetKey(readingID))
	if errors.Is(err, ports.ErrCacheMiss) || (err == nil && len(image) == 0) {
		return nil, fmt.Errorf("reading %d: %w", readingID, domain.ErrAssetExpired)
	}
	if err != nil {
		return nil, fmt.Errorf("load pending asset: %w", err)
	}

	publicID, err := s.Attach(ctx, readingID, image)
	if err != nil {
		metrics.AssetAttachments.WithLabelValues("retry_failed").Inc()
		return nil, err
	}
	metrics.AssetAttachments.WithLabelValues("reattached").Inc()

	if err := s.pending.Delete(ctx, PendingAssetKey(readingID)); err != nil {
		slog.WarnContext(ctx, "drop pending asset", "reading_id", readingID, "error", err)
	}

	r.AssetID = publicID
	r.AssetStatus = domain.AssetAttached
	r.AssetURL = s.ResolveURL(publicID)
	return r, nil
}

// MarkLost records that a reading's image can no longer be attached.
func (s *AssetService) MarkLost(ctx context.Context, readingID int64) error {
	if err := s.readings.SetAssetStatus(ctx, readingID, domain.AssetLost); err != nil {
		return fmt.Errorf("mark asset lost: %w", err)
	}
	metrics.AssetAttachments.WithLabelValues("lost").Inc()
	return nil
}

// FindDetached lists readings whose image was never attached: failed
// attaches plus pending ones older than staleAfter.
func (s *AssetService) FindDetached(ctx context.Context, staleAfter time.Duration, limit int) ([]domain.Reading, error) {
	if limit <= 0 || limit > 1000 {
		limit = 100
	}
	readings, err := s.readings.ListDetached(ctx, time.Now().Add(-staleAfter), limit)
	if err != nil {
		return nil, fmt.Errorf("list detached readings: %w", err)
	}
	return readings, nil
}

// RemoveAll deletes the blobs behind readings, logging failures.
func (s *AssetService) RemoveAll(ctx context.Context, readings []domain.Reading) {
	if s.blobs == nil {
		return
	}
	for _, r := range readings {
		if r.AssetID == "" {
			continue
		}
		if err := s.blobs.Remove(ctx, r.AssetID); err != nil {
			slog.WarnContext(ctx, "remove asset", "reading_id", r.ID, "public_id", r.AssetID, "error", err)
		}
	}
}
