package workflows

import (
	"context"
	"errors"

	"go.temporal.io/sdk/activity"
	"go.temporal.io/sdk/temporal"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
	"github.com/kisansahayak/agrimonitor/internal/core/usecases"
)

// AssetActivities holds the activity implementations for the reattach
// workflow.
type AssetActivities struct {
	Assets *usecases.AssetService
}

// ReattachAsset uploads a reading's stashed image and records it.
func (a *AssetActivities) ReattachAsset(ctx context.Context, readingID int64) (AssetReattachResult, error) {
	r, err := a.Assets.Reattach(ctx, readingID)
	switch {
	case errors.Is(err, domain.ErrAssetExpired):
		return AssetReattachResult{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeAssetExpired, err)
	case errors.Is(err, domain.ErrNotFound):
		return AssetReattachResult{}, temporal.NewNonRetryableApplicationError(err.Error(), ErrTypeReadingGone, err)
	case err != nil:
		return AssetReattachResult{}, err
	}

	activity.GetLogger(ctx).Info("Reading image attached", "readingID", readingID)
	return AssetReattachResult{ReadingID: r.ID, AssetStatus: r.AssetStatus, AssetURL: r.AssetURL}, nil
}

// MarkAssetLost records that a reading's image can no longer be attached.
func (a *AssetActivities) MarkAssetLost(ctx context.Context, readingID int64) error {
	return a.Assets.MarkLost(ctx, readingID)
}
