package catalog

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"time"

	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/semaphore"

	"github.com/ASFHyP3/VolcSARvatory/pkg/metrics"
	"github.com/ASFHyP3/VolcSARvatory/pkg/utils"
)

const (
	DefaultBaseURL      = "https://api.daac.asf.alaska.edu"
	DefaultTimeout      = 30 * time.Second
	DefaultConcurrency  = 4
	DefaultRetryBackoff = 5 * time.Second

	searchPath = "/services/search/param"
)

// ErrUnexpectedStatus is returned when the search API answers with a non-200
// status. Gateway errors additionally wrap utils.ErrTransient.
var ErrUnexpectedStatus = errors.New("unexpected catalog status")

// Config holds catalog client settings.
type Config struct {
	BaseURL      string
	Timeout      time.Duration
	Concurrency  int
	RetryBackoff time.Duration
}

// Client searches the ASF burst catalog.
type Client struct {
	cfg     Config
	http    *http.Client
	log     *zap.SugaredLogger
	metrics *metrics.Metrics
}

// NewClient creates a catalog client. Zero config fields take the package
// defaults; m may be nil.
func NewClient(cfg Config, log *zap.SugaredLogger, m *metrics.Metrics) *Client {
	if cfg.BaseURL == "" {
		cfg.BaseURL = DefaultBaseURL
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = DefaultTimeout
	}
	if cfg.Concurrency <= 0 {
		cfg.Concurrency = DefaultConcurrency
	}
	if cfg.RetryBackoff <= 0 {
		cfg.RetryBackoff = DefaultRetryBackoff
	}
	if log == nil {
		log = zap.NewNop().Sugar()
	}
	return &Client{
		cfg:     cfg,
		http:    &http.Client{Timeout: cfg.Timeout},
		log:     log,
		metrics: m,
	}
}

type searchResponse struct {
	Results []searchResult `json:"results"`
}

type searchResult struct {
	GranuleName  string `json:"granuleName"`
	StartTime    string `json:"startTime"`
	StopTime     string `json:"stopTime"`
	Polarization string `json:"polarization"`
	Burst        struct {
		FullBurstID string `json:"fullBurstID"`
	} `json:"burst"`
}

// Search returns every acquisition of the given full burst id.
func (c *Client) Search(ctx context.Context, fullBurstID string) ([]Acquisition, error) {
	start := time.Now()
	acqs, err := c.search(ctx, fullBurstID)
	c.metrics.RecordCatalogRequest(err, time.Since(start).Seconds())
	if err != nil {
		c.metrics.IncError(metrics.ErrTypeCatalog)
		return nil, fmt.Errorf("failed to search burst %s: %w", fullBurstID, err)
	}
	return acqs, nil
}

func (c *Client) search(ctx context.Context, fullBurstID string) ([]Acquisition, error) {
	q := url.Values{}
	q.Set("fullBurstID", fullBurstID)
	q.Set("output", "jsonlite")
	endpoint := c.cfg.BaseURL + searchPath + "?" + q.Encode()

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Accept", "application/json")

	resp, err := c.http.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, 512))
		switch resp.StatusCode {
		case http.StatusBadGateway, http.StatusServiceUnavailable, http.StatusGatewayTimeout:
			return nil, fmt.Errorf("%w %d: %s: %w", ErrUnexpectedStatus, resp.StatusCode, body, utils.ErrTransient)
		default:
			return nil, fmt.Errorf("%w %d: %s", ErrUnexpectedStatus, resp.StatusCode, body)
		}
	}

	var sr searchResponse
	if err := json.NewDecoder(resp.Body).Decode(&sr); err != nil {
		return nil, fmt.Errorf("failed to decode search response: %w", err)
	}

	acqs := make([]Acquisition, 0, len(sr.Results))
	for _, r := range sr.Results {
		a, err := r.acquisition()
		if err != nil {
			return nil, err
		}
		acqs = append(acqs, a)
	}
	return acqs, nil
}

func (r searchResult) acquisition() (Acquisition, error) {
	a := Acquisition{
		SceneName:    r.GranuleName,
		FullBurstID:  r.Burst.FullBurstID,
		Polarization: r.Polarization,
	}
	if r.StartTime != "" {
		t, err := time.Parse(time.RFC3339, r.StartTime)
		if err != nil {
			return Acquisition{}, fmt.Errorf("invalid start time of %s: %w", r.GranuleName, err)
		}
		a.StartTime = t
	}
	if r.StopTime != "" {
		t, err := time.Parse(time.RFC3339, r.StopTime)
		if err != nil {
			return Acquisition{}, fmt.Errorf("invalid stop time of %s: %w", r.GranuleName, err)
		}
		a.StopTime = &t
	}
	return a, nil
}

// FilterQualified returns the ids, in input order, whose acquisitions pass
// Qualifies. Lookups run concurrently; a transient failure is retried once.
func (c *Client) FilterQualified(ctx context.Context, ids []string) ([]string, error) {
	keep := make([]bool, len(ids))
	sem := semaphore.NewWeighted(int64(c.cfg.Concurrency))
	g, gctx := errgroup.WithContext(ctx)

	var acquireErr error
	for i, id := range ids {
		if err := sem.Acquire(gctx, 1); err != nil {
			acquireErr = err
			break
		}
		g.Go(func() error {
			defer sem.Release(1)
			onRetry := func(err error) {
				c.log.Warnw("transient catalog failure, retrying", "burst", id, "backoff", c.cfg.RetryBackoff, "error", err)
			}
			acqs, err := utils.RetryOnce(gctx, c.cfg.RetryBackoff, onRetry, func(ctx context.Context) ([]Acquisition, error) {
				return c.Search(ctx, id)
			})
			if err != nil {
				return err
			}
			keep[i] = Qualifies(acqs)
			if !keep[i] {
				c.log.Debugw("burst disqualified", "burst", id, "acquisitions", len(acqs))
			}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return nil, err
	}
	if acquireErr != nil {
		return nil, acquireErr
	}

	out := make([]string, 0, len(ids))
	for i, id := range ids {
		if keep[i] {
			out = append(out, id)
		}
	}
	c.log.Infow("catalog qualification finished", "bursts", len(ids), "qualified", len(out))
	return out, nil
}
