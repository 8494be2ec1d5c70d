package workflows

import (
	"time"

	"go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

// CompressionInput is the input for the image compression workflow.
type CompressionInput struct {
	StationID string
	Quality   float64
}

// CompressionWorkflow recompresses a station's coverage image: fetch the
// original, re-encode it at the requested quality, store the result, and
// record the new URL on the station. If recording fails the stored object
// is deleted again (saga compensation), leaving the station untouched.
func CompressionWorkflow(ctx workflow.Context, input CompressionInput) error {
	logger := workflow.GetLogger(ctx)
	logger.Info("Starting compression workflow", "stationID", input.StationID, "quality", input.Quality)

	actOpts := workflow.ActivityOptions{
		StartToCloseTimeout: 2 * time.Minute,
		RetryPolicy: &temporal.RetryPolicy{
			MaximumAttempts: 3,
		},
	}
	ctx = workflow.WithActivityOptions(ctx, actOpts)

	// Step 1: Fetch the original coverage image
	var original []byte
	err := workflow.ExecuteActivity(ctx, "FetchCoverageImage", input.StationID).Get(ctx, &original)
	if err != nil {
		return err
	}

	// Step 2: Re-encode at the target quality
	var compressed []byte
	err = workflow.ExecuteActivity(ctx, "CompressImage", original, input.Quality).Get(ctx, &compressed)
	if err != nil {
		return err
	}

	// Step 3: Store the compressed object
	var url string
	err = workflow.ExecuteActivity(ctx, "StoreCompressedImage", input.StationID, compressed).Get(ctx, &url)
	if err != nil {
		return err
	}

	// Step 4: Record the URL on the station
	err = workflow.ExecuteActivity(ctx, "RecordCompressedURL", input.StationID, url).Get(ctx, nil)
	if err != nil {
		logger.Warn("recording compressed url failed, compensating", "error", err)
		// Compensate: delete the orphaned object
		_ = workflow.ExecuteActivity(ctx, "DeleteCompressedImage", url).Get(ctx, nil)
		return err
	}

	logger.Info("Compression finished", "stationID", input.StationID, "url", url)
	return nil
}
