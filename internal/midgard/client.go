package midgard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"

	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"midgardFeed/internal/model"
	"midgardFeed/internal/observability"
)

const (
	// MaxActionsPerCall is the largest page Midgard serves.
	MaxActionsPerCall = 50

	defaultTimeout  = 10 * time.Second
	maxResponseSize = 16 << 20
)

// ClientConfig selects a network and tunes the HTTP side of the client.
type ClientConfig struct {
	Network string
	// BaseURL overrides the registry URL, keeping the network's schema.
	BaseURL string
	Timeout time.Duration
	// RateLimit caps requests per second; zero disables limiting.
	RateLimit  float64
	HTTPClient *http.Client
	Metrics    *observability.Metrics
}

// Client fetches pool and action snapshots from one Midgard deployment.
type Client struct {
	network Network
	baseURL string
	parser  Parser
	http    *http.Client
	limiter *rate.Limiter
	metrics *observability.Metrics
	logger  *zap.Logger
}

// NewClient resolves the network and its schema once. Unknown networks are a
// *ConfigError.
func NewClient(cfg ClientConfig, logger *zap.Logger) (*Client, error) {
	network, err := LookupNetwork(cfg.Network)
	if err != nil {
		return nil, err
	}
	parser, err := ParserFor(network.Schema)
	if err != nil {
		return nil, err
	}

	baseURL := network.BaseURL
	if override := strings.TrimSpace(cfg.BaseURL); override != "" {
		if _, err := url.Parse(override); err != nil {
			return nil, &ConfigError{Field: "midgard-url", Err: err}
		}
		baseURL = override
	}

	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = defaultTimeout
		}
		httpClient = &http.Client{Timeout: timeout}
	}

	limiter := rate.NewLimiter(rate.Inf, 1)
	if cfg.RateLimit > 0 {
		limiter = rate.NewLimiter(rate.Limit(cfg.RateLimit), 1)
	}

	if logger == nil {
		logger = zap.NewNop()
	}

	return &Client{
		network: network,
		baseURL: strings.TrimRight(baseURL, "/"),
		parser:  parser,
		http:    httpClient,
		limiter: limiter,
		metrics: cfg.Metrics,
		logger:  logger,
	}, nil
}

func (c *Client) Network() Network {
	return c.network
}

func (c *Client) Schema() SchemaVersion {
	return c.network.Schema
}

func (c *Client) Parser() Parser {
	return c.parser
}

// RawPools returns the wire pool records of the current snapshot.
func (c *Client) RawPools(ctx context.Context) ([]json.RawMessage, error) {
	if c.network.Schema == SchemaV1 {
		return c.rawPoolsV1(ctx)
	}

	body, err := c.get(ctx, "get pools", "/v2/pools", nil)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, newNetworkError("decode pools", err)
	}
	return raws, nil
}

func (c *Client) rawPoolsV1(ctx context.Context) ([]json.RawMessage, error) {
	body, err := c.get(ctx, "get pools", "/v1/pools", nil)
	if err != nil {
		return nil, err
	}
	var assets []string
	if err := json.Unmarshal(body, &assets); err != nil {
		return nil, newNetworkError("decode pools", err)
	}
	if len(assets) == 0 {
		return nil, nil
	}
	sort.Strings(assets)

	query := url.Values{}
	query.Set("asset", strings.Join(assets, ","))
	query.Set("view", "simple")
	body, err = c.get(ctx, "get pool details", "/v1/pools/detail", query)
	if err != nil {
		return nil, err
	}
	var raws []json.RawMessage
	if err := json.Unmarshal(body, &raws); err != nil {
		return nil, newNetworkError("decode pool details", err)
	}
	return raws, nil
}

// RawActions returns one page of wire action records and the total count.
func (c *Client) RawActions(ctx context.Context, offset, limit int) ([]json.RawMessage, int64, error) {
	if limit <= 0 || limit > MaxActionsPerCall {
		limit = MaxActionsPerCall
	}
	if offset < 0 {
		offset = 0
	}
	query := url.Values{}
	query.Set("offset", strconv.Itoa(offset))
	query.Set("limit", strconv.Itoa(limit))

	if c.network.Schema == SchemaV1 {
		body, err := c.get(ctx, "get txs", "/v1/txs", query)
		if err != nil {
			return nil, 0, err
		}
		raws, total, err := decodeV1TxsPage(body)
		if err != nil {
			return nil, 0, newNetworkError("decode txs", err)
		}
		return raws, total, nil
	}

	body, err := c.get(ctx, "get actions", "/v2/actions", query)
	if err != nil {
		return nil, 0, err
	}
	raws, total, err := decodeV2ActionsPage(body)
	if err != nil {
		return nil, 0, newNetworkError("decode actions", err)
	}
	return raws, total, nil
}

// PoolState returns the normalized pool snapshot.
func (c *Client) PoolState(ctx context.Context) ([]model.PoolState, error) {
	raws, err := c.RawPools(ctx)
	if err != nil {
		return nil, err
	}
	pools, dropped := ParsePools(c.parser, raws, c.logger)
	c.metrics.RecordDropped("pools", dropped)
	return pools, nil
}

// Transactions returns one normalized page of actions.
func (c *Client) Transactions(ctx context.Context, offset, limit int) (model.TxBatch, error) {
	raws, total, err := c.RawActions(ctx, offset, limit)
	if err != nil {
		return model.TxBatch{}, err
	}
	txs, dropped := ParseTxs(c.parser, raws, c.logger)
	c.metrics.RecordDropped("actions", dropped)
	return model.TxBatch{Txs: txs, Total: total}, nil
}

func (c *Client) get(ctx context.Context, op, path string, query url.Values) ([]byte, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, &NetworkError{Op: op, Err: err}
	}

	target := c.baseURL + path
	if len(query) > 0 {
		target += "?" + query.Encode()
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, target, nil)
	if err != nil {
		return nil, newFatalNetworkError(op, err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		if errors.Is(err, context.Canceled) {
			return nil, &NetworkError{Op: op, Err: err}
		}
		return nil, newNetworkError(op, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, newNetworkError(op, fmt.Errorf("read body: %w", err))
	}

	if resp.StatusCode != http.StatusOK {
		statusErr := fmt.Errorf("unexpected status %d", resp.StatusCode)
		if resp.StatusCode == http.StatusTooManyRequests || resp.StatusCode >= 500 {
			return nil, newNetworkError(op, statusErr)
		}
		return nil, newFatalNetworkError(op, statusErr)
	}

	c.logger.Debug("midgard request", zap.String("op", op), zap.String("url", target), zap.Int("bytes", len(body)))
	return body, nil
}
