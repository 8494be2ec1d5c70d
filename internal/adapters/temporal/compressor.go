package temporaladapter

import (
	"context"
	"fmt"

	"go.temporal.io/sdk/client"

	"github.com/Jaylaelike/sky-view-coverage/internal/workflows"
)

// Compressor implements ports.ImageCompressor by starting a Temporal
// compression workflow per station. The workflow id is derived from the
// station id, so re-enqueueing while a job runs is a no-op instead of a
// duplicate.
type Compressor struct {
	client    client.Client
	taskQueue string
}

// NewCompressor creates a Compressor on an existing Temporal client.
func NewCompressor(c client.Client, taskQueue string) *Compressor {
	return &Compressor{client: c, taskQueue: taskQueue}
}

// EnqueueCompression starts the compression workflow for one station.
func (c *Compressor) EnqueueCompression(ctx context.Context, stationID string, quality float64) error {
	opts := client.StartWorkflowOptions{
		ID:                       "compress-" + stationID,
		TaskQueue:                c.taskQueue,
		WorkflowExecutionTimeout: 0, // bounded by activity timeouts
	}

	_, err := c.client.ExecuteWorkflow(ctx, opts, workflows.CompressionWorkflow, workflows.CompressionInput{
		StationID: stationID,
		Quality:   quality,
	})
	if err != nil {
		return fmt.Errorf("start compression workflow for %s: %w", stationID, err)
	}
	return nil
}
