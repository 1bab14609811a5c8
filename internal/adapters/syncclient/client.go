package syncclient

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/sony/gobreaker"

	"github.com/groovy/replicasync/internal/contracts"
	"github.com/groovy/replicasync/internal/domain"
	"github.com/groovy/replicasync/internal/ports"
)

const maxResponseBytes = 32 << 20

type Config struct {
	// Endpoints maps a resource name to the base URL of its owner service.
	Endpoints        map[string]string
	HTTPClient       *http.Client
	Timeout          time.Duration
	BreakerThreshold uint32
	BreakerCooldown  time.Duration
}

// Client reads GET /sync/{resource} from owner services. Each resource gets
// its own circuit breaker so one unhealthy owner does not block the others.
type Client struct {
	logger     *slog.Logger
	httpClient *http.Client
	endpoints  map[string]string
	breakers   map[string]*gobreaker.CircuitBreaker
}

func New(logger *slog.Logger, cfg Config) *Client {
	if logger == nil {
		logger = slog.Default()
	}
	httpClient := cfg.HTTPClient
	if httpClient == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 15 * time.Second
		}
		httpClient = &http.Client{Timeout: timeout}
	}
	threshold := cfg.BreakerThreshold
	if threshold == 0 {
		threshold = 5
	}
	cooldown := cfg.BreakerCooldown
	if cooldown <= 0 {
		cooldown = 30 * time.Second
	}

	c := &Client{
		logger:     logger,
		httpClient: httpClient,
		endpoints:  make(map[string]string, len(cfg.Endpoints)),
		breakers:   make(map[string]*gobreaker.CircuitBreaker, len(cfg.Endpoints)),
	}
	for resource, base := range cfg.Endpoints {
		resource = strings.ToLower(strings.TrimSpace(resource))
		c.endpoints[resource] = strings.TrimRight(strings.TrimSpace(base), "/")
		c.breakers[resource] = gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "sync-" + resource,
			MaxRequests: 1,
			Timeout:     cooldown,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				logger.Warn("sync source breaker state changed",
					"module", "syncclient",
					"layer", "adapter",
					"breaker", name,
					"from", from.String(),
					"to", to.String(),
				)
			},
		})
	}
	return c
}

func (c *Client) FetchPage(ctx context.Context, resource string, query contracts.SyncQuery) (contracts.SyncPage, error) {
	params := url.Values{}
	params.Set("page", strconv.Itoa(query.Page))
	params.Set("limit", strconv.Itoa(query.Limit))
	if query.Since != nil {
		params.Set("since", query.Since.UTC().Format(time.RFC3339Nano))
	}
	raw, err := c.get(ctx, resource, params)
	if err != nil {
		return contracts.SyncPage{}, err
	}
	page, err := contracts.DecodeSyncPage(resource, raw)
	if err != nil {
		return contracts.SyncPage{}, fmt.Errorf("%w: decode %s page: %v", domain.ErrDependencyUnavailable, resource, err)
	}
	return page, nil
}

func (c *Client) FetchActiveIDs(ctx context.Context, resource string) ([]string, error) {
	params := url.Values{}
	params.Set("getAllIds", "true")
	raw, err := c.get(ctx, resource, params)
	if err != nil {
		return nil, err
	}
	ids, err := contracts.DecodeSyncIDs(resource, raw)
	if err != nil {
		return nil, fmt.Errorf("%w: decode %s ids: %v", domain.ErrDependencyUnavailable, resource, err)
	}
	return ids, nil
}

func (c *Client) get(ctx context.Context, resource string, params url.Values) ([]byte, error) {
	key := strings.ToLower(strings.TrimSpace(resource))
	base, ok := c.endpoints[key]
	if !ok {
		return nil, fmt.Errorf("%w: no sync endpoint for %q", domain.ErrInvalidInput, resource)
	}
	endpoint := base + "/sync/" + url.PathEscape(key) + "?" + params.Encode()

	result, err := c.breakers[key].Execute(func() (interface{}, error) {
		return c.do(ctx, endpoint)
	})
	if err != nil {
		if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
			return nil, fmt.Errorf("%w: %s sync source: %v", domain.ErrDependencyUnavailable, key, err)
		}
		return nil, err
	}
	return result.([]byte), nil
}

func (c *Client) do(ctx context.Context, endpoint string) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("build sync request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	res, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", domain.ErrDependencyUnavailable, err)
	}
	defer res.Body.Close()

	body, err := io.ReadAll(io.LimitReader(res.Body, maxResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read sync response: %v", domain.ErrDependencyUnavailable, err)
	}
	if res.StatusCode < 200 || res.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: sync endpoint returned %d", domain.ErrDependencyUnavailable, res.StatusCode)
	}
	return body, nil
}

var _ ports.SyncSource = (*Client)(nil)
