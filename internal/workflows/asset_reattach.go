package workflows

import (
	"errors"
	"strconv"
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"

	"github.com/kisansahayak/agrimonitor/internal/core/domain"
)

// TaskQueue is the default queue served by the asset worker.
const TaskQueue = "asset-reattach"

// Application error types raised by the activities.
const (
	ErrTypeAssetExpired = "AssetExpired"
	ErrTypeReadingGone  = "ReadingGone"
)

// AssetReattachInput is the input for AssetReattachWorkflow.
type AssetReattachInput struct {
	ReadingID int64
}

// AssetReattachResult reports where a reading's image ended up.
type AssetReattachResult struct {
	ReadingID   int64
	AssetStatus domain.AssetStatus
	AssetURL    string
}

// WorkflowID is the deterministic ID used for a reading's retry, so a
// reading never has two retries in flight.
func WorkflowID(readingID int64) string {
	return "asset-reattach-" + strconv.FormatInt(readingID, 10)
}

// AssetReattachWorkflow retries the upload of a reading's stashed image with
// backoff. If the stash has expired the reading is marked lost instead.
func AssetReattachWorkflow(ctx workflow.Context, input AssetReattachInput) (AssetReattachResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting asset reattach", "readingID", input.ReadingID)

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			InitialInterval:        30 * time.Second,
			BackoffCoefficient:     2,
			MaximumInterval:        30 * time.Minute,
			MaximumAttempts:        8,
			NonRetryableErrorTypes: []string{ErrTypeAssetExpired, ErrTypeReadingGone},
		},
	})

	var result AssetReattachResult
	err := workflow.ExecuteActivity(ctx, "ReattachAsset", input.ReadingID).Get(ctx, &result)
	if err == nil {
		logger.Info("Asset attached", "readingID", input.ReadingID, "url", result.AssetURL)
		return result, nil
	}

	var appErr *temporal.ApplicationError
	if !errors.As(err, &appErr) || appErr.Type() != ErrTypeAssetExpired {
		return result, err
	}

	logger.Warn("Pending image expired, marking asset lost", "readingID", input.ReadingID)
	if err := workflow.ExecuteActivity(ctx, "MarkAssetLost", input.ReadingID).Get(ctx, nil); err != nil {
		return result, err
	}
	return AssetReattachResult{ReadingID: input.ReadingID, AssetStatus: domain.AssetLost}, nil
}
