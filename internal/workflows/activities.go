package workflows

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/jpeg"
	_ "image/png" // coverage images arrive as PNG or JPEG
	"io"
	"net/http"
	"net/url"
	"os"
	"path"
	"path/filepath"
	"time"

	"github.com/Jaylaelike/sky-view-coverage/internal/core/ports"
	"github.com/Jaylaelike/sky-view-coverage/internal/pkg/metrics"
)

// CompressionActivities holds the activity implementations for the image
// compression workflow. Compressed objects land in ObjectDir and are served
// under PublicBaseURL by the API's static file route.
type CompressionActivities struct {
	Stations      ports.StationRepository
	HTTPClient    *http.Client
	ObjectDir     string
	PublicBaseURL string
}

func (a *CompressionActivities) client() *http.Client {
	if a.HTTPClient != nil {
		return a.HTTPClient
	}
	return &http.Client{Timeout: 30 * time.Second}
}

// FetchCoverageImage downloads a station's original coverage image.
func (a *CompressionActivities) FetchCoverageImage(ctx context.Context, stationID string) ([]byte, error) {
	station, err := a.Stations.GetByID(ctx, stationID)
	if err != nil {
		return nil, fmt.Errorf("load station %s: %w", stationID, err)
	}
	if station.ImageURL == "" {
		return nil, fmt.Errorf("station %s has no coverage image", stationID)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, station.ImageURL, nil)
	if err != nil {
		return nil, err
	}
	resp, err := a.client().Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetch %s: %w", station.ImageURL, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch %s: status %d", station.ImageURL, resp.StatusCode)
	}
	// Coverage rasters top out around 20MB; anything larger is a bad upload.
	return io.ReadAll(io.LimitReader(resp.Body, 32<<20))
}

// CompressImage re-encodes an image as JPEG at the given quality (0..1).
// The alpha channel of PNG inputs is dropped; overlay transparency comes
// from the overlay opacity, not the image.
func (a *CompressionActivities) CompressImage(ctx context.Context, data []byte, quality float64) ([]byte, error) {
	img, _, err := image.Decode(bytes.NewReader(data))
	if err != nil {
		metrics.CompressionJobs.WithLabelValues("decode_error").Inc()
		return nil, fmt.Errorf("decode image: %w", err)
	}

	if quality <= 0 || quality > 1 {
		quality = 0.5
	}

	var buf bytes.Buffer
	if err := jpeg.Encode(&buf, img, &jpeg.Options{Quality: int(quality * 100)}); err != nil {
		metrics.CompressionJobs.WithLabelValues("encode_error").Inc()
		return nil, fmt.Errorf("encode jpeg: %w", err)
	}
	metrics.CompressionJobs.WithLabelValues("ok").Inc()
	return buf.Bytes(), nil
}

// StoreCompressedImage writes the compressed object and returns its public URL.
func (a *CompressionActivities) StoreCompressedImage(ctx context.Context, stationID string, data []byte) (string, error) {
	if err := os.MkdirAll(a.ObjectDir, 0o755); err != nil {
		return "", fmt.Errorf("ensure object dir: %w", err)
	}

	name := stationID + ".jpg"
	if err := os.WriteFile(filepath.Join(a.ObjectDir, name), data, 0o644); err != nil {
		return "", fmt.Errorf("write compressed image: %w", err)
	}

	u, err := url.Parse(a.PublicBaseURL)
	if err != nil {
		return "", fmt.Errorf("parse public base url: %w", err)
	}
	u.Path = path.Join(u.Path, name)
	return u.String(), nil
}

// RecordCompressedURL stores the compressed URL on the station record.
func (a *CompressionActivities) RecordCompressedURL(ctx context.Context, stationID, compressedURL string) error {
	return a.Stations.SetCompressedImageURL(ctx, stationID, compressedURL)
}

// DeleteCompressedImage removes a stored object (saga compensation).
func (a *CompressionActivities) DeleteCompressedImage(ctx context.Context, compressedURL string) error {
	u, err := url.Parse(compressedURL)
	if err != nil {
		return err
	}
	return os.Remove(filepath.Join(a.ObjectDir, path.Base(u.Path)))
}
