package clients

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"regexp"

	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/config"
	"github.com/harvestproof/harvestproof-engine/pkg/logging"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
)

// AnchorService submits a content hash to the blockchain anchoring service.
// Transient failures are retryable; a malformed hash is fatal.
type AnchorService interface {
	Anchor(ctx context.Context, contentHash string) (*models.AnchorRef, error)
}

// contentHashPattern is the hex SHA-256 format the anchoring service accepts.
var contentHashPattern = regexp.MustCompile(`^[0-9a-f]{64}$`)

type anchorClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewAnchorClient creates an AnchorService backed by the anchoring service's
// HTTP API.
func NewAnchorClient(ep config.ServiceEndpoint, logger *zap.Logger) AnchorService {
	return &anchorClient{
		baseURL:    ep.BaseURL,
		httpClient: &http.Client{Timeout: ep.Timeout},
		logger:     logger.Named("anchor-client"),
	}
}

var _ AnchorService = (*anchorClient)(nil)

func (c *anchorClient) Anchor(ctx context.Context, contentHash string) (*models.AnchorRef, error) {
	// Reject malformed hashes locally; the remote treats them as permanent
	// failures anyway.
	if !contentHashPattern.MatchString(contentHash) {
		return nil, fmt.Errorf("hash %q: %w", contentHash, apperrors.ErrInvalidHash)
	}

	endpoint, err := url.JoinPath(c.baseURL, "api", "v1", "anchors")
	if err != nil {
		return nil, fmt.Errorf("failed to build anchor URL: %w", err)
	}

	body, err := json.Marshal(map[string]string{"content_hash": contentHash})
	if err != nil {
		return nil, fmt.Errorf("failed to marshal anchor request: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, endpoint, bytes.NewReader(body))
	if err != nil {
		return nil, fmt.Errorf("failed to create anchor request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Anchor service unreachable",
			zap.String("url", logging.SanitizeURL(endpoint)),
			zap.Error(err))
		return nil, fmt.Errorf("anchor request failed: %w: %v", apperrors.ErrExternalService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusBadRequest || resp.StatusCode == http.StatusUnprocessableEntity:
		return nil, fmt.Errorf("anchor service rejected hash: %w", apperrors.ErrInvalidHash)
	case resp.StatusCode >= 500 || resp.StatusCode == http.StatusTooManyRequests:
		return nil, fmt.Errorf("anchor service returned %d: %w", resp.StatusCode, apperrors.ErrExternalService)
	case resp.StatusCode != http.StatusOK && resp.StatusCode != http.StatusCreated:
		return nil, fmt.Errorf("anchor service returned unexpected status %d", resp.StatusCode)
	}

	var ref models.AnchorRef
	if err := json.NewDecoder(resp.Body).Decode(&ref); err != nil {
		return nil, fmt.Errorf("failed to decode anchor reference: %w", err)
	}

	return &ref, nil
}
