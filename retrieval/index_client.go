package retrieval

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/fableloom/chronicler/types"
)

// IndexClientConfig configures the HTTP adapter for the external
// ranked index.
type IndexClientConfig struct {
	BaseURL    string        `json:"base_url"`
	Timeout    time.Duration `json:"timeout"`
	RetryCount int           `json:"retry_count"`
	RetryDelay time.Duration `json:"retry_delay"`
}

// DefaultIndexClientConfig returns sensible defaults.
func DefaultIndexClientConfig() IndexClientConfig {
	return IndexClientConfig{
		Timeout:    2 * time.Second,
		RetryCount: 2,
		RetryDelay: 200 * time.Millisecond,
	}
}

// queryRequest is the wire shape of one index query.
type queryRequest struct {
	Query string      `json:"query"`
	Scope ScopeFilter `json:"scope"`
	TopK  int         `json:"top_k"`
}

// queryResponse is the wire shape of the index's answer.
type queryResponse struct {
	Snippets []types.KnowledgeSnippet `json:"snippets"`
}

// IndexClient queries the external ranked index over HTTP. The index
// is a black box maintained by the offline indexing collaborator; this
// client only speaks its query contract.
type IndexClient struct {
	config IndexClientConfig
	client *http.Client
	logger *zap.Logger
}

// NewIndexClient creates the adapter.
func NewIndexClient(cfg IndexClientConfig, logger *zap.Logger) *IndexClient {
	if logger == nil {
		logger = zap.NewNop()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultIndexClientConfig().Timeout
	}
	return &IndexClient{
		config: cfg,
		client: &http.Client{Timeout: cfg.Timeout},
		logger: logger.With(zap.String("component", "index_client")),
	}
}

// Query implements Retriever. Transport failures, timeouts and 5xx
// answers are INDEX_UNAVAILABLE: recoverable, the caller degrades the
// brief instead of failing the turn.
func (c *IndexClient) Query(ctx context.Context, text string, scope ScopeFilter, topK int) ([]types.KnowledgeSnippet, error) {
	if topK <= 0 {
		return nil, nil
	}
	payload, err := json.Marshal(queryRequest{Query: text, Scope: scope, TopK: topK})
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "encoding index query").WithCause(err)
	}

	var body []byte
	for attempt := 0; attempt <= c.config.RetryCount; attempt++ {
		if attempt > 0 {
			select {
			case <-ctx.Done():
				return nil, c.unavailable(ctx.Err())
			case <-time.After(c.config.RetryDelay):
			}
			c.logger.Debug("retrying index query", zap.Int("attempt", attempt))
		}
		body, err = c.doQuery(ctx, payload)
		if err == nil {
			break
		}
		if !types.IsRetryable(err) {
			return nil, err
		}
		c.logger.Warn("index query failed",
			zap.Int("attempt", attempt),
			zap.Error(err))
	}
	if err != nil {
		return nil, err
	}

	var resp queryResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, c.unavailable(fmt.Errorf("malformed index response: %w", err))
	}
	rankSnippets(resp.Snippets)
	if len(resp.Snippets) > topK {
		resp.Snippets = resp.Snippets[:topK]
	}
	return resp.Snippets, nil
}

// doQuery performs one POST against the index.
func (c *IndexClient) doQuery(ctx context.Context, payload []byte) ([]byte, error) {
	url := c.config.BaseURL + "/v1/query"
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, bytes.NewReader(payload))
	if err != nil {
		return nil, types.NewError(types.ErrValidation, "building index request").WithCause(err)
	}
	req.Header.Set("Content-Type", "application/json")

	resp, err := c.client.Do(req)
	if err != nil {
		return nil, c.unavailable(err)
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusOK:
	case resp.StatusCode >= 500:
		errBody, _ := io.ReadAll(resp.Body)
		return nil, c.unavailable(fmt.Errorf("index returned status %d: %s", resp.StatusCode, string(errBody)))
	default:
		errBody, _ := io.ReadAll(resp.Body)
		return nil, types.NewError(types.ErrValidation,
			fmt.Sprintf("index rejected query with status %d: %s", resp.StatusCode, string(errBody))).
			WithStage("retrieval")
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, c.unavailable(err)
	}
	return body, nil
}

// unavailable wraps a transport-level failure as the recoverable
// INDEX_UNAVAILABLE the pipeline degrades on.
func (c *IndexClient) unavailable(cause error) error {
	return types.NewError(types.ErrIndexUnavailable, "knowledge index unreachable").
		WithCause(cause).WithRetryable(true).WithStage("retrieval")
}

var _ Retriever = (*IndexClient)(nil)
