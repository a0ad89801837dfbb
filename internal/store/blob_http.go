package store

import (
	"context"
	"io"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/rotisserie/eris"
	"go.uber.org/zap"
	"golang.org/x/time/rate"

	"github.com/sells-group/crowdcount/internal/model"
	"github.com/sells-group/crowdcount/internal/resilience"
)

// HTTPBlobOptions configures HTTPBlobStore.
type HTTPBlobOptions struct {
	// ContainerURL is the base URL blobs live under, e.g.
	// https://acct.blob.core.windows.net/density.
	ContainerURL string
	// SAS is an optional query string appended to every request.
	SAS       string
	Timeout   time.Duration
	RateLimit float64
	Burst     int
	Client    *http.Client
}

// AdaptiveLimiter wraps a rate.Limiter that backs off on 429 responses and
// recovers gradually on success, never above the configured rate.
type AdaptiveLimiter struct {
	mu          sync.Mutex
	limiter     *rate.Limiter
	maxRate     rate.Limit
	minRate     rate.Limit
	currentRate rate.Limit
}

// NewAdaptiveLimiter creates an adaptive limiter starting at r.
func NewAdaptiveLimiter(r rate.Limit, burst int) *AdaptiveLimiter {
	return &AdaptiveLimiter{
		limiter:     rate.NewLimiter(r, burst),
		maxRate:     r,
		minRate:     r / 8,
		currentRate: r,
	}
}

// Wait blocks until the limiter allows an event.
func (a *AdaptiveLimiter) Wait(ctx context.Context) error {
	return a.limiter.Wait(ctx)
}

// OnSuccess raises the rate by 20%, up to the configured maximum.
func (a *AdaptiveLimiter) OnSuccess() {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.currentRate >= a.maxRate {
		return
	}
	a.currentRate = min(a.currentRate*1.2, a.maxRate)
	a.limiter.SetLimit(a.currentRate)
}

// OnRateLimit halves the rate.
func (a *AdaptiveLimiter) OnRateLimit() {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.currentRate = max(a.currentRate*0.5, a.minRate)
	a.limiter.SetLimit(a.currentRate)
	zap.L().Warn("blob store: reducing request rate after 429",
		zap.Float64("new_rate", float64(a.currentRate)),
	)
}

// Limit returns the current rate limit.
func (a *AdaptiveLimiter) Limit() rate.Limit {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.currentRate
}

// HTTPBlobStore fetches density blobs from an HTTP object container.
type HTTPBlobStore struct {
	base    *url.URL
	sas     url.Values
	client  *http.Client
	limiter *AdaptiveLimiter
}

// NewHTTPBlobs validates opts and returns an HTTPBlobStore.
func NewHTTPBlobs(opts HTTPBlobOptions) (*HTTPBlobStore, error) {
	base, err := url.Parse(strings.TrimRight(opts.ContainerURL, "/"))
	if err != nil || base.Scheme == "" || base.Host == "" {
		return nil, eris.Errorf("http blob: invalid container url %q", opts.ContainerURL)
	}
	sas, err := url.ParseQuery(strings.TrimPrefix(opts.SAS, "?"))
	if err != nil {
		return nil, eris.Wrap(err, "http blob: parse sas token")
	}
	if opts.Timeout == 0 {
		opts.Timeout = 15 * time.Second
	}
	if opts.RateLimit <= 0 {
		opts.RateLimit = 20
	}
	if opts.Burst <= 0 {
		opts.Burst = int(opts.RateLimit)
	}
	client := opts.Client
	if client == nil {
		client = &http.Client{
			Timeout: opts.Timeout,
			Transport: &http.Transport{
				MaxIdleConnsPerHost: 10,
				MaxConnsPerHost:     20,
				IdleConnTimeout:     90 * time.Second,
			},
		}
	}
	return &HTTPBlobStore{
		base:    base,
		sas:     sas,
		client:  client,
		limiter: NewAdaptiveLimiter(rate.Limit(opts.RateLimit), opts.Burst),
	}, nil
}

// blobURL joins the container URL, the escaped blob name and the SAS query.
func (s *HTTPBlobStore) blobURL(recordID string) string {
	u := *s.base
	u.Path = u.Path + "/" + BlobName(recordID)
	u.RawPath = ""
	u.RawQuery = s.sas.Encode()
	return u.String()
}

func (s *HTTPBlobStore) GetBlob(ctx context.Context, recordID string) ([]model.DensitySample, error) {
	if recordID == "" {
		return nil, eris.New("http blob: empty record id")
	}
	if err := s.limiter.Wait(ctx); err != nil {
		return nil, eris.Wrap(err, "http blob: rate limit wait")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, s.blobURL(recordID), nil)
	if err != nil {
		return nil, eris.Wrap(err, "http blob: build request")
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "http blob: get %s", BlobName(recordID)), 0)
	}
	defer resp.Body.Close() //nolint:errcheck

	switch {
	case resp.StatusCode == http.StatusNotFound:
		return nil, eris.Wrapf(ErrNotFound, "http blob: %s", BlobName(recordID))
	case resp.StatusCode == http.StatusTooManyRequests:
		s.limiter.OnRateLimit()
		return nil, resilience.NewTransientError(eris.Errorf("http blob: %s: status %d", BlobName(recordID), resp.StatusCode), resp.StatusCode)
	case resilience.IsTransientHTTPStatus(resp.StatusCode):
		return nil, resilience.NewTransientError(eris.Errorf("http blob: %s: status %d", BlobName(recordID), resp.StatusCode), resp.StatusCode)
	case resp.StatusCode != http.StatusOK:
		return nil, eris.Errorf("http blob: %s: status %d", BlobName(recordID), resp.StatusCode)
	}
	s.limiter.OnSuccess()

	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, resilience.NewTransientError(eris.Wrapf(err, "http blob: read %s", BlobName(recordID)), 0)
	}
	return decodeBlob(data, recordID)
}
