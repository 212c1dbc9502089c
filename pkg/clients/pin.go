package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"

	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/config"
	"github.com/harvestproof/harvestproof-engine/pkg/logging"
)

// PinService pins a certificate payload to content-addressed storage and
// returns its content identifier. Pinning is optional: failure degrades to
// hash-only certificates without blocking issuance.
type PinService interface {
	Pin(ctx context.Context, payload []byte) (string, error)
}

type pinClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewPinClient creates a PinService backed by the pinning service's HTTP API.
// Returns nil when no base URL is configured; the issuer treats a nil pin
// service as "pinning disabled".
func NewPinClient(ep config.ServiceEndpoint, logger *zap.Logger) PinService {
	if ep.BaseURL == "" {
		return nil
	}
	return &pinClient{
		baseURL:    ep.BaseURL,
		httpClient: &http.Client{Timeout: ep.Timeout},
		logger:     logger.Named("pin-client"),
	}
}

var _ PinService = (*pinClient)(nil)

func (c *pinClient) Pin(ctx context.Context, payload []byte) (string, error) {
	endpoint, err := url.JoinPath(c.baseURL, "api", "v1", "pins")
	if err != nil {
		return "", fmt.Errorf("failed to build pin URL: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(payload))
	if err != nil {
		return "", fmt.Errorf("failed to create pin request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Pin service unreachable",
			zap.String("url", logging.SanitizeURL(endpoint)),
			zap.Error(err))
		return "", fmt.Errorf("pin request failed: %w: %v", apperrors.ErrExternalService, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated {
		return "", fmt.Errorf("pin service returned %d: %w", resp.StatusCode, apperrors.ErrExternalService)
	}

	var out struct {
		ContentID string `json:"content_id"`
	}
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return "", fmt.Errorf("failed to decode pin response: %w", err)
	}
	if out.ContentID == "" {
		return "", fmt.Errorf("pin service returned empty content id: %w", apperrors.ErrExternalService)
	}

	return out.ContentID, nil
}
