// Package clients holds HTTP implementations of the external collaborator
// contracts the certification core consumes: evidence aggregation, satellite
// imagery, blockchain anchoring, and content-addressed pinning. Every call
// carries a timeout; transient failures map to apperrors.ErrExternalService.
package clients

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/harvestproof/harvestproof-engine/pkg/apperrors"
	"github.com/harvestproof/harvestproof-engine/pkg/config"
	"github.com/harvestproof/harvestproof-engine/pkg/logging"
	"github.com/harvestproof/harvestproof-engine/pkg/models"
)

// EvidenceAggregator supplies counts of recent field evidence. Consumed by
// the eligibility evaluator; the aggregation itself lives in another service.
type EvidenceAggregator interface {
	CountRecentEvidence(ctx context.Context, ref uuid.UUID, windowDays int) (*models.EvidenceCounts, error)
}

type evidenceClient struct {
	baseURL    string
	httpClient *http.Client
	logger     *zap.Logger
}

// NewEvidenceClient creates an EvidenceAggregator backed by the evidence
// service's HTTP API.
func NewEvidenceClient(ep config.ServiceEndpoint, logger *zap.Logger) EvidenceAggregator {
	return &evidenceClient{
		baseURL:    ep.BaseURL,
		httpClient: &http.Client{Timeout: ep.Timeout},
		logger:     logger.Named("evidence-client"),
	}
}

var _ EvidenceAggregator = (*evidenceClient)(nil)

func (c *evidenceClient) CountRecentEvidence(ctx context.Context, ref uuid.UUID, windowDays int) (*models.EvidenceCounts, error) {
	endpoint, err := url.JoinPath(c.baseURL, "api", "v1", "evidence", ref.String(), "counts")
	if err != nil {
		return nil, fmt.Errorf("failed to build evidence URL: %w", err)
	}
	endpoint += "?window_days=" + strconv.Itoa(windowDays)

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create evidence request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.httpClient.Do(req)
	if err != nil {
		c.logger.Warn("Evidence service unreachable",
			zap.String("url", logging.SanitizeURL(endpoint)),
			zap.Error(err))
		return nil, fmt.Errorf("evidence request failed: %w: %v", apperrors.ErrExternalService, err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, fmt.Errorf("evidence for %s: %w", ref, apperrors.ErrNotFound)
	case resp.StatusCode != http.StatusOK:
		return nil, fmt.Errorf("evidence service returned %d: %w", resp.StatusCode, apperrors.ErrExternalService)
	}

	var counts models.EvidenceCounts
	if err := json.NewDecoder(resp.Body).Decode(&counts); err != nil {
		return nil, fmt.Errorf("failed to decode evidence counts: %w", err)
	}

	return &counts, nil
}
