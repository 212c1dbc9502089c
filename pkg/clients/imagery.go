package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/config"
	"github.com/harvestproof/harvestproof-engine/pkg/logging"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
)

// ImageryProvider fetches vegetation-index time series for a field. The
// provider enforces its own processing quota and may reject requests with
// apperrors.ErrQuotaExceeded.
type ImageryProvider interface {
	FetchIndexSeries(ctx context.Context, fieldID uuid.UUID, from, to time.Time, maxCloudCoverage float64) ([]models.NDVIDataPoint, error)
}

type imageryClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewImageryClient creates an ImageryProvider backed by the imagery
// provider's HTTP API.
func NewImageryClient(ep config.ServiceEndpoint, logger *zap.Logger) ImageryProvider {
	return &imageryClient{
		baseURL:    ep.BaseURL,
		httpClient: &http.Client{Timeout: ep.Timeout},
		logger:     logger.Named("imagery-client"),
	}
}

var _ ImageryProvider = (*imageryClient)(nil)

func (c *imageryClient) FetchIndexSeries(ctx context.Context, fieldID uuid.UUID, from, to time.Time, maxCloudCoverage float64) ([]models.NDVIDataPoint, error) {
	endpoint, err := url.JoinPath(c.baseURL, "api", "v1", "fields", fieldID.String(), "ndvi")
	if err != nil {
		return nil, fmt.Errorf("failed to build imagery URL: %w", err)
	}

	params := url.Values{}
	params.Set("from", from.UTC().Format(time.RFC3339))
	params.Set("to", to.UTC().Format(time.RFC3339))
	params.Set("max_cloud_coverage", fmt.Sprintf("%g", maxCloudCoverage))
	endpoint += "?" + params.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create imagery request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Imagery provider unreachable",
			zap.String("url", logging.SanitizeURL(endpoint)),
			zap.Error(err))
		return nil, fmt.Errorf("imagery request failed: %w: %v", apperrors.ErrExternalService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("imagery provider rejected request: %w", apperrors.ErrQuotaExceeded)
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("field %s: %w", fieldID, apperrors.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("imagery provider returned %d: %w", resp.StatusCode, apperrors.ErrExternalService)
	}

	var series []models.NDVIDataPoint
	if err := json.NewDecoder(resp.Body).Decode(&series); err != nil {
		return nil, fmt.Errorf("failed to decode index series: %w", err)
	}

	return series, nil
}
