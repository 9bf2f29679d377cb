// Package verify submits deployed contracts to an Etherscan-compatible
// explorer API for source verification. Verification never fails a run: every
// outcome is reported as a Result.
package verify

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/compose-network/deployctl/internal/domain"
	"github.com/compose-network/deployctl/internal/logger"
	"github.com/compose-network/deployctl/internal/network"
)

type Status string

const (
	StatusVerified   Status = "verified"
	StatusFailed     Status = "failed"
	StatusIncomplete Status = "incomplete"
)

var (
	ErrVerificationFailed     = fmt.Errorf("verification rejected: %w", domain.ErrVerification)
	ErrVerificationIncomplete = fmt.Errorf("verification incomplete: %w", domain.ErrVerification)
	ErrMissingMetadata        = fmt.Errorf("verification metadata missing: %w", domain.ErrVerification)

	errPending = errors.New("verification pending")
)

type (
	// Metadata is what the explorer needs to rebuild the bytecode.
	Metadata struct {
		ContractName      string
		SourceName        string
		CompilerVersion   string
		StandardJSONInput json.RawMessage
	}

	Result struct {
		StepID  string
		Address string
		Status  Status
		GUID    string
		Message string
		URL     string
		Err     error
	}

	Option func(*Client)

	Client struct {
		httpClient      *http.Client
		maxAttempts     uint
		pollAttempts    uint
		initialInterval time.Duration
		maxInterval     time.Duration
		logger          *slog.Logger
	}

	apiResponse struct {
		Status  string `json:"status"`
		Message string `json:"message"`
		Result  string `json:"result"`
	}
)

func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithAttempts bounds submission retries and status polls.
func WithAttempts(maxAttempts, pollAttempts uint) Option {
	return func(c *Client) {
		if maxAttempts > 0 {
			c.maxAttempts = maxAttempts
		}
		if pollAttempts > 0 {
			c.pollAttempts = pollAttempts
		}
	}
}

func WithIntervals(initial, max time.Duration) Option {
	return func(c *Client) {
		if initial > 0 {
			c.initialInterval = initial
		}
		if max > 0 {
			c.maxInterval = max
		}
	}
}

func NewClient(opts ...Option) *Client {
	c := &Client{
		httpClient:      &http.Client{Timeout: 30 * time.Second},
		maxAttempts:     5,
		pollAttempts:    10,
		initialInterval: 2 * time.Second,
		maxInterval:     30 * time.Second,
		logger:          logger.Named("verify_client"),
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Verify submits record for verification and waits for the explorer's verdict.
func (c *Client) Verify(ctx context.Context, settings network.VerificationSettings, record domain.Record, metadata Metadata) Result {
	result := Result{
		StepID:  record.StepID,
		Address: record.Address,
		URL:     browserURL(settings.BrowserURL, record.Address),
	}

	log := c.logger.With("network", record.Network).With("step_id", record.StepID).With("address", record.Address)

	if len(metadata.StandardJSONInput) == 0 || metadata.CompilerVersion == "" || metadata.ContractName == "" {
		return result.fail(StatusFailed, fmt.Errorf("%w for step '%s'", ErrMissingMetadata, record.StepID))
	}

	guid, err := backoff.Retry(ctx, func() (string, error) {
		return c.submit(ctx, settings, record, metadata)
	}, c.retryOptions(c.maxAttempts)...)
	switch {
	case errors.Is(err, errAlreadyVerified):
		log.Info("contract already verified")
		result.Status = StatusVerified
		result.Message = "already verified"
		return result
	case err != nil:
		return result.unsuccessful(err)
	}
	result.GUID = guid

	log.With("guid", guid).Debug("verification submitted, polling status")

	message, err := backoff.Retry(ctx, func() (string, error) {
		return c.checkStatus(ctx, settings, record.ChainID, guid)
	}, c.retryOptions(c.pollAttempts)...)
	if err != nil && !errors.Is(err, errAlreadyVerified) {
		return result.unsuccessful(err)
	}

	result.Status = StatusVerified
	result.Message = message
	log.Info("contract verified")

	return result
}

var errAlreadyVerified = errors.New("already verified")

func (c *Client) submit(ctx context.Context, settings network.VerificationSettings, record domain.Record, metadata Metadata) (string, error) {
	contractName := metadata.ContractName
	if metadata.SourceName != "" {
		contractName = metadata.SourceName + ":" + metadata.ContractName
	}

	form := url.Values{}
	form.Set("module", "contract")
	form.Set("action", "verifysourcecode")
	form.Set("apikey", settings.APIKey)
	form.Set("chainid", strconv.FormatInt(record.ChainID, 10))
	form.Set("codeformat", "solidity-standard-json-input")
	form.Set("sourceCode", string(metadata.StandardJSONInput))
	form.Set("contractaddress", record.Address)
	form.Set("contractname", contractName)
	form.Set("compilerversion", metadata.CompilerVersion)
	// The misspelling is part of the API.
	form.Set("constructorArguements", strings.TrimPrefix(record.ConstructorArgs, "0x"))

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, withChainID(settings.APIURL, record.ChainID), strings.NewReader(form.Encode()))
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: failed to build request: %w", ErrVerificationFailed, err))
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}

	if resp.Status == "1" {
		return resp.Result, nil
	}
	if isAlreadyVerified(resp.Result) {
		return "", backoff.Permanent(errAlreadyVerified)
	}
	if isRateLimited(resp.Result) {
		return "", fmt.Errorf("rate limited: %s", resp.Result)
	}
	if isNotIndexed(resp.Result) {
		return "", fmt.Errorf("contract not indexed yet: %s", resp.Result)
	}
	return "", backoff.Permanent(fmt.Errorf("%w: %s", ErrVerificationFailed, resp.Result))
}

func (c *Client) checkStatus(ctx context.Context, settings network.VerificationSettings, chainID int64, guid string) (string, error) {
	query := url.Values{}
	query.Set("module", "contract")
	query.Set("action", "checkverifystatus")
	query.Set("guid", guid)
	query.Set("apikey", settings.APIKey)

	endpoint := withChainID(settings.APIURL, chainID)
	separator := "?"
	if strings.Contains(endpoint, "?") {
		separator = "&"
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, endpoint+separator+query.Encode(), nil)
	if err != nil {
		return "", backoff.Permanent(fmt.Errorf("%w: failed to build request: %w", ErrVerificationFailed, err))
	}

	resp, err := c.do(req)
	if err != nil {
		return "", err
	}

	switch {
	case resp.Status == "1":
		return resp.Result, nil
	case isAlreadyVerified(resp.Result):
		return resp.Result, nil
	case strings.Contains(strings.ToLower(resp.Result), "pending"):
		return "", errPending
	case isRateLimited(resp.Result):
		return "", fmt.Errorf("rate limited: %s", resp.Result)
	}
	return "", backoff.Permanent(fmt.Errorf("%w: %s", ErrVerificationFailed, resp.Result))
}

// do sends req and decodes the API envelope. Transport errors, 429 and 5xx
// are returned as retryable; other HTTP failures are permanent.
func (c *Client) do(req *http.Request) (apiResponse, error) {
	httpResp, err := c.httpClient.Do(req)
	if err != nil {
		return apiResponse{}, fmt.Errorf("explorer request failed: %w", err)
	}
	defer httpResp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(httpResp.Body, 1<<20))
	if err != nil {
		return apiResponse{}, fmt.Errorf("failed to read explorer response: %w", err)
	}

	switch {
	case httpResp.StatusCode == http.StatusTooManyRequests:
		if seconds, err := strconv.Atoi(httpResp.Header.Get("Retry-After")); err == nil && seconds > 0 {
			return apiResponse{}, backoff.RetryAfter(seconds)
		}
		return apiResponse{}, fmt.Errorf("explorer rate limited the request")
	case httpResp.StatusCode >= http.StatusInternalServerError:
		return apiResponse{}, fmt.Errorf("explorer returned %s", httpResp.Status)
	case httpResp.StatusCode >= http.StatusBadRequest:
		return apiResponse{}, backoff.Permanent(fmt.Errorf("%w: explorer returned %s: %s", ErrVerificationFailed, httpResp.Status, strings.TrimSpace(string(body))))
	}

	var resp apiResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return apiResponse{}, backoff.Permanent(fmt.Errorf("%w: malformed explorer response: %w", ErrVerificationFailed, err))
	}
	return resp, nil
}

func (c *Client) retryOptions(maxTries uint) []backoff.RetryOption {
	b := backoff.NewExponentialBackOff()
	b.InitialInterval = c.initialInterval
	b.MaxInterval = c.maxInterval

	return []backoff.RetryOption{
		backoff.WithBackOff(b),
		backoff.WithMaxTries(maxTries),
		backoff.WithNotify(func(err error, next time.Duration) {
			c.logger.With("err", err).With("retry_in", next).Debug("explorer call will be retried")
		}),
	}
}

func (r Result) fail(status Status, err error) Result {
	r.Status = status
	r.Err = err
	r.Message = err.Error()
	return r
}

// unsuccessful maps the error left after retries to a status. Only an explicit
// rejection by the explorer is a failure; anything else may succeed later.
func (r Result) unsuccessful(err error) Result {
	if errors.Is(err, ErrVerificationFailed) {
		return r.fail(StatusFailed, err)
	}
	return r.fail(StatusIncomplete, fmt.Errorf("%w: %w", ErrVerificationIncomplete, err))
}

func isAlreadyVerified(message string) bool {
	return strings.Contains(strings.ToLower(message), "already verified")
}

func isRateLimited(message string) bool {
	return strings.Contains(strings.ToLower(message), "rate limit")
}

// isNotIndexed matches the explorer's answer for a contract it has not seen
// yet, which is common right after deployment.
func isNotIndexed(message string) bool {
	lower := strings.ToLower(message)
	return strings.Contains(lower, "unable to locate contractcode") ||
		strings.Contains(lower, "does not have bytecode")
}

func withChainID(apiURL string, chainID int64) string {
	parsed, err := url.Parse(apiURL)
	if err != nil {
		return apiURL
	}
	query := parsed.Query()
	if query.Get("chainid") == "" {
		query.Set("chainid", strconv.FormatInt(chainID, 10))
		parsed.RawQuery = query.Encode()
	}
	return parsed.String()
}

func browserURL(base, address string) string {
	if base == "" {
		return ""
	}
	return strings.TrimRight(base, "/") + "/address/" + address + "#code"
}
