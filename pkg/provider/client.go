package provider

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"dossiersync/pkg/config"
	errs "dossiersync/pkg/errors"
	"dossiersync/pkg/logger"
	"dossiersync/pkg/ratelimit"
	"dossiersync/pkg/retry"
)

const dossiersEndpoint = "alldossiers"

// Client fetches pages of dossiers from the remote provider. It owns the
// rate limiting and retry policy for network calls and nothing else: it
// never touches the progress file or the document store.
type Client struct {
	httpClient  *http.Client
	baseURL     string
	username    string
	password    string
	maxPageSize int
	limiter     ratelimit.Limiter
	retryCfg    *retry.Config
	logger      logger.Logger
}

// NewClient creates a provider client from configuration. When the
// configuration sets a requests-per-minute ceiling a token bucket is used
// on top of the inter-call delay; otherwise the inter-call delay alone
// paces requests.
func NewClient(cfg *config.Config, log logger.Logger) *Client {
	if log == nil {
		log = logger.GetLogger()
	}

	var limiter ratelimit.Limiter
	if cfg.RateLimit.RequestsPerMinute > 0 {
		limiter = ratelimit.NewTokenBucket(cfg.RateLimit.RequestsPerMinute, time.Minute)
	} else if cfg.RateLimit.InterCallDelay > 0 {
		limiter = ratelimit.NewInterval(cfg.RateLimit.InterCallDelay)
	} else {
		limiter = ratelimit.Nop{}
	}

	retryCfg := &retry.Config{
		MaxAttempts: cfg.RateLimit.MaxRetries + 1,
		Backoff: &retry.ExponentialBackoff{
			BaseDelay:    cfg.RateLimit.RetryDelay,
			MaxDelay:     10 * cfg.RateLimit.RetryDelay,
			Multiplier:   2.0,
			JitterFactor: 0.1,
		},
		RetryIf: retry.DefaultRetryIf,
		OnRetry: func(attempt int, err error, delay time.Duration) {
			fetchRetries.Inc()
		},
		Logger: log,
	}

	return &Client{
		httpClient:  &http.Client{Timeout: cfg.Provider.RequestTimeout},
		baseURL:     cfg.Provider.BaseURL,
		username:    cfg.Provider.Username,
		password:    cfg.Provider.Password,
		maxPageSize: cfg.Provider.MaxPageSize,
		limiter:     limiter,
		retryCfg:    retryCfg,
		logger:      log,
	}
}

// SetCredentials overrides the username/password headers, e.g. with
// values from the credential store.
func (c *Client) SetCredentials(username, password string) {
	c.username = username
	c.password = password
}

// FetchRange fetches records for the 1-based inclusive index range
// [from, to]. The range must respect the provider's page size ceiling;
// violations fail before any network call. Transient failures are retried
// with backoff; the final failure surfaces as a page_fetch error carrying
// the range.
func (c *Client) FetchRange(ctx context.Context, from, to int) ([]Record, error) {
	if err := c.validateRange(from, to); err != nil {
		return nil, err
	}

	resp, err := retry.DoWithResult(ctx, func() (*pageResponse, error) {
		return c.fetchPage(ctx, from, to)
	}, c.retryCfg)
	if err != nil {
		return nil, &errs.Error{
			Type:    errs.ErrorTypePageFetch,
			Message: fmt.Sprintf("fetching range [%d,%d] failed", from, to),
			Err:     err,
		}
	}

	c.logger.InfoWithFields("page fetched", map[string]interface{}{
		"from":       from,
		"to":         to,
		"records":    len(resp.Dossiers),
		"last_index": resp.LastIndexID,
	})
	return resp.Dossiers, nil
}

// TotalRecords probes the provider with a single-record request and
// returns the declared dataset size.
func (c *Client) TotalRecords(ctx context.Context) (int, error) {
	resp, err := retry.DoWithResult(ctx, func() (*pageResponse, error) {
		return c.fetchPage(ctx, 1, 1)
	}, c.retryCfg)
	if err != nil {
		return 0, &errs.Error{
			Type:    errs.ErrorTypePageFetch,
			Message: "fetching total record count failed",
			Err:     err,
		}
	}

	c.logger.InfoWithFields("total records reported by provider", map[string]interface{}{
		"total": resp.TotalDossiers,
	})
	return resp.TotalDossiers, nil
}

// TestConnection reports whether the provider answers a minimal request
func (c *Client) TestConnection(ctx context.Context) bool {
	_, err := c.fetchPage(ctx, 1, 1)
	return err == nil
}

func (c *Client) validateRange(from, to int) error {
	if from < 1 || to < from {
		return errs.Newf(errs.ErrorTypeInvalidRange,
			"invalid range [%d,%d]: indexes are 1-based and inclusive", from, to)
	}
	if size := to - from + 1; c.maxPageSize > 0 && size > c.maxPageSize {
		return errs.Newf(errs.ErrorTypeInvalidRange,
			"range [%d,%d] requests %d records, provider maximum is %d",
			from, to, size, c.maxPageSize)
	}
	return nil
}

// fetchPage performs one bounded remote fetch, waiting on the rate
// limiter first. The limiter applies to retries as well since every
// attempt goes through here.
func (c *Client) fetchPage(ctx context.Context, from, to int) (*pageResponse, error) {
	if err := c.limiter.Wait(ctx); err != nil {
		return nil, err
	}

	reqURL, err := c.buildURL(from, to)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to build request URL")
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, reqURL, nil)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeUnknown, err, "failed to create request")
	}
	req.Header.Set("username", c.username)
	req.Header.Set("password", c.password)
	req.Header.Set("Accept", "application/json")

	start := time.Now()
	resp, err := c.httpClient.Do(req)
	duration := time.Since(start)
	fetchDuration.Observe(duration.Seconds())

	if err != nil {
		requestsTotal.WithLabelValues("network_error").Inc()
		c.logger.WarnWithFields("provider request failed", map[string]interface{}{
			"from":     from,
			"to":       to,
			"error":    err.Error(),
			"duration": duration,
		})
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "provider request failed")
	}
	defer resp.Body.Close()

	requestsTotal.WithLabelValues(strconv.Itoa(resp.StatusCode)).Inc()

	if err := c.checkResponseStatus(resp); err != nil {
		return nil, err
	}

	body, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, errs.Wrap(errs.ErrorTypeNetwork, err, "failed to read response body")
	}

	var page pageResponse
	if err := json.Unmarshal(body, &page); err != nil {
		preview := string(body)
		if len(preview) > 200 {
			preview = preview[:200] + "..."
		}
		c.logger.ErrorWithFields("failed to parse provider response", map[string]interface{}{
			"from":         from,
			"to":           to,
			"status":       resp.StatusCode,
			"body_preview": preview,
		})
		return nil, errs.Wrap(errs.ErrorTypeParsing, err, "failed to parse provider response")
	}

	c.logger.DebugWithFields("provider request completed", map[string]interface{}{
		"from":     from,
		"to":       to,
		"status":   resp.StatusCode,
		"duration": duration,
	})
	return &page, nil
}

func (c *Client) buildURL(from, to int) (string, error) {
	base, err := url.Parse(c.baseURL)
	if err != nil {
		return "", err
	}
	endpoint, err := base.Parse(dossiersEndpoint)
	if err != nil {
		return "", err
	}

	q := endpoint.Query()
	q.Set("dossierType", "both")
	q.Set("fromIndex", strconv.Itoa(from))
	q.Set("toIndex", strconv.Itoa(to))
	endpoint.RawQuery = q.Encode()
	return endpoint.String(), nil
}

func (c *Client) checkResponseStatus(resp *http.Response) error {
	switch {
	case resp.StatusCode == http.StatusOK:
		return nil
	case resp.StatusCode == http.StatusUnauthorized || resp.StatusCode == http.StatusForbidden:
		return &errs.Error{
			Type:    errs.ErrorTypeAuth,
			Message: "provider rejected credentials",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusNotFound:
		return &errs.Error{
			Type:    errs.ErrorTypeNotFound,
			Message: "provider endpoint not found",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode == http.StatusTooManyRequests:
		return &errs.Error{
			Type:    errs.ErrorTypeRateLimit,
			Message: "provider rate limit exceeded",
			Code:    resp.StatusCode,
		}
	case resp.StatusCode >= 500:
		return &errs.Error{
			Type:    errs.ErrorTypeServerError,
			Message: "provider server error",
			Code:    resp.StatusCode,
		}
	default:
		return &errs.Error{
			Type:    errs.ErrorTypeUnknown,
			Message: fmt.Sprintf("unexpected status code %d", resp.StatusCode),
			Code:    resp.StatusCode,
		}
	}
}
