// Package volcengine implements the provider contract against the
// Volcengine Jimeng visual generation API, including the V4 request
// signing scheme and the bounded retry policy.
package volcengine

import (
	"bytes"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net"
	"net/http"
	"net/url"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/zhanren/Malden-image-creator/internal/imageutil"
	"github.com/zhanren/Malden-image-creator/internal/provider"
)

const providerName = "volcengine"

// Environment variables holding the access key pair. They are read
// once at construction and never re-read mid-session.
const (
	EnvAccessKeyID     = "VOLCENGINE_ACCESS_KEY_ID"
	EnvSecretAccessKey = "VOLCENGINE_SECRET_ACCESS_KEY"
)

const maxBatchSize = 4

// modelVersions maps the human-readable model names accepted in
// configuration to the vendor's internal model version identifiers.
var modelVersions = map[string]string{
	"图片生成4.0": "general_v2.0",
	"文生图3.1":  "general_v1.4",
	"文生图3.0":  "general_v1.3",
	"图生图3.0":  "img2img_v1.0",
}

// reqKeys maps a model version to the req_key the API expects.
var reqKeys = map[string]string{
	"general_v2.0": "high_aes_general_v20",
	"general_v1.4": "jimeng_t2i_v31",
	"general_v1.3": "jimeng_t2i_v30",
	"img2img_v1.0": "jimeng_i2i_v30",
}

// Unknown model names fall back to this pairing instead of erroring.
const (
	defaultModelVersion = "general_v1.3"
	defaultReqKey       = "jimeng_t2i_v30"
)

// A reference image always selects this model version, whatever model
// the configuration names. Mode follows the request, not the config.
const i2iModelVersion = "img2img_v1.0"

// The vendor has shipped incompatible spellings of the reference-image
// field across API revisions, so the field name is mapped per model
// version rather than hardcoded.
var i2iImageFields = map[string]string{
	"img2img_v1.0": "binary_data_base64",
}

const defaultI2IImageField = "binary_data_base64"

// Client talks to the Volcengine visual API. It is not safe for
// concurrent use; callers issue one Generate at a time.
type Client struct {
	creds       credentials
	endpoint    string
	timeout     time.Duration
	maxRetries  int
	retryDelay  time.Duration
	projectRoot string
	logger      *slog.Logger

	// Lazily created on first use, released by Close.
	httpClient *http.Client

	now   func() time.Time
	sleep func(time.Duration)
}

// Option configures a Client.
type Option func(*Client)

// WithCredentials overrides the environment-sourced access key pair.
func WithCredentials(accessKeyID, secretAccessKey string) Option {
	return func(c *Client) {
		c.creds = credentials{AccessKeyID: accessKeyID, SecretAccessKey: secretAccessKey}
	}
}

// WithEndpoint overrides the API endpoint. Used by tests.
func WithEndpoint(endpoint string) Option {
	return func(c *Client) { c.endpoint = strings.TrimSuffix(endpoint, "/") }
}

// WithTimeout sets the per-attempt HTTP timeout.
func WithTimeout(d time.Duration) Option {
	return func(c *Client) { c.timeout = d }
}

// WithRetryPolicy sets the retry budget and the base backoff delay.
// A request makes at most maxRetries+1 attempts; the delay before
// attempt n (n >= 1) is delay * 2^(n-1).
func WithRetryPolicy(maxRetries int, delay time.Duration) Option {
	return func(c *Client) {
		c.maxRetries = maxRetries
		c.retryDelay = delay
	}
}

// WithProjectRoot sets the directory relative reference-image paths
// resolve against.
func WithProjectRoot(dir string) Option {
	return func(c *Client) { c.projectRoot = dir }
}

// WithLogger sets the structured logger.
func WithLogger(logger *slog.Logger) Option {
	return func(c *Client) { c.logger = logger }
}

// New builds a client with credentials read from the environment,
// applying any options on top.
func New(opts ...Option) *Client {
	c := &Client{
		creds: credentials{
			AccessKeyID:     os.Getenv(EnvAccessKeyID),
			SecretAccessKey: os.Getenv(EnvSecretAccessKey),
		},
		endpoint:   baseURL,
		timeout:    60 * time.Second,
		maxRetries: 3,
		retryDelay: time.Second,
		logger:     slog.Default(),
		now:        time.Now,
		sleep:      time.Sleep,
	}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Name implements provider.ImageProvider.
func (c *Client) Name() string { return providerName }

// ValidateCredentials returns the names of missing credential
// variables, empty when the client is fully configured.
func (c *Client) ValidateCredentials() []string {
	var missing []string
	if c.creds.AccessKeyID == "" {
		missing = append(missing, EnvAccessKeyID)
	}
	if c.creds.SecretAccessKey == "" {
		missing = append(missing, EnvSecretAccessKey)
	}
	return missing
}

// Close releases the underlying HTTP connections. Safe to call
// multiple times and before any request was made.
func (c *Client) Close() error {
	if c.httpClient != nil {
		c.httpClient.CloseIdleConnections()
		c.httpClient = nil
	}
	return nil
}

func (c *Client) http() *http.Client {
	if c.httpClient == nil {
		c.httpClient = &http.Client{Timeout: c.timeout}
	}
	return c.httpClient
}

// Generate implements provider.ImageProvider. API-level failures come
// back as a FAILED result; the error return is reserved for pre-flight
// problems (missing credentials, unreadable reference image) raised
// before any HTTP attempt.
func (c *Client) Generate(req *provider.GenerationRequest) (*provider.GenerationResult, error) {
	start := c.now()

	if missing := c.ValidateCredentials(); len(missing) > 0 {
		return nil, &provider.AuthenticationError{
			Provider: providerName,
			Message: fmt.Sprintf("missing credentials: %s. Set them with: export %s=your_value",
				strings.Join(missing, ", "), missing[0]),
		}
	}

	body, err := c.buildBody(req)
	if err != nil {
		return nil, err
	}
	bodyJSON, err := json.Marshal(body)
	if err != nil {
		return nil, &provider.GenerationError{Provider: providerName, Message: fmt.Sprintf("encode request body: %v", err)}
	}

	query := url.Values{}
	query.Set("Action", actionCVProcess)
	query.Set("Version", apiVersion)
	requestURL := c.endpoint + "/?" + query.Encode()

	maxRetries := c.maxRetries
	if maxRetries < 0 {
		maxRetries = 0
	}
	var lastErr error
	for attempt := 0; attempt <= maxRetries; attempt++ {
		if attempt > 0 {
			delay := c.retryDelay * (1 << (attempt - 1))
			c.logger.Warn("retrying generation request",
				"provider", providerName, "attempt", attempt, "delay", delay, "cause", lastErr)
			c.sleep(delay)
		}

		result, err := c.attempt(requestURL, query, bodyJSON, req, start)
		if err == nil {
			return result, nil
		}
		lastErr = err
		if !isTransient(err) || attempt == maxRetries {
			break
		}
	}

	return c.failed(req, start, lastErr.Error(), nil), nil
}

// attempt sends one signed request and classifies the response. A
// returned error marks a failed attempt; isTransient decides whether
// the retry loop may resend it.
func (c *Client) attempt(requestURL string, query url.Values, bodyJSON []byte, req *provider.GenerationRequest, start time.Time) (*provider.GenerationResult, error) {
	headers := signRequest(http.MethodPost, "/", query, string(bodyJSON), c.now(), c.creds)

	httpReq, err := http.NewRequest(http.MethodPost, requestURL, bytes.NewReader(bodyJSON))
	if err != nil {
		return nil, &provider.GenerationError{Provider: providerName, Message: err.Error()}
	}
	for name, value := range headers {
		httpReq.Header.Set(name, value)
	}

	resp, err := c.http().Do(httpReq)
	if err != nil {
		if isTimeoutErr(err) {
			return nil, &provider.TimeoutError{
				Provider: providerName,
				Message:  fmt.Sprintf("request timed out after %s", c.timeout),
			}
		}
		return nil, &provider.GenerationError{
			Provider:  providerName,
			Message:   fmt.Sprintf("connection error: %v", err),
			Transient: true,
		}
	}
	defer resp.Body.Close()

	respBody, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, &provider.GenerationError{
			Provider:  providerName,
			Message:   fmt.Sprintf("read response: %v", err),
			Transient: true,
		}
	}

	var payload map[string]any
	jsonErr := json.Unmarshal(respBody, &payload)

	switch {
	case resp.StatusCode == http.StatusUnauthorized:
		return nil, c.authError(payload, req)

	case resp.StatusCode == http.StatusTooManyRequests:
		return nil, c.rateLimitError(resp, payload)

	case resp.StatusCode >= 500:
		return nil, &provider.GenerationError{
			Provider:  providerName,
			Message:   fmt.Sprintf("server error (HTTP %d): %s", resp.StatusCode, vendorMessage(payload, respBody)),
			Transient: true,
		}

	case resp.StatusCode >= 400:
		return nil, &provider.GenerationError{
			Provider: providerName,
			Message:  fmt.Sprintf("request rejected (HTTP %d): %s", resp.StatusCode, vendorMessage(payload, respBody)),
		}
	}

	if jsonErr != nil {
		return nil, &provider.GenerationError{
			Provider: providerName,
			Message:  fmt.Sprintf("invalid JSON in response: %v", jsonErr),
		}
	}
	return c.successResult(payload, req, start), nil
}

func (c *Client) authError(payload map[string]any, req *provider.GenerationRequest) error {
	ve, known := provider.NormalizeVendorError(payload)
	msg := "authentication failed"
	if known {
		msg = fmt.Sprintf("authentication failed: %s (%s)", ve.Message, ve.Code)
	}

	// Code 50400 means the key pair is valid but lacks permissions for
	// the specific model, which needs different guidance than bad keys.
	if known && ve.Code == "50400" {
		guidance := "Access denied (50400): the credentials are correct but lack permissions. " +
			"The Jimeng AI sub-service may need separate activation; check the IAM policies " +
			"for the Visual service in the Volcengine console: https://console.volcengine.com/"
		switch {
		case req.HasReference():
			guidance += " The request used the image-to-image service (图生图3.0), which is permissioned separately."
		case req.Model == "图片生成4.0":
			guidance += " 图片生成4.0 may require extra permissions; try --model 文生图3.1 instead."
		case req.Model == "文生图3.1":
			guidance += " If 文生图3.1 keeps failing, try --model 图片生成4.0."
		}
		return &provider.AuthenticationError{Provider: providerName, Message: msg + ". " + guidance}
	}

	return &provider.AuthenticationError{
		Provider: providerName,
		Message: msg + ". Check that your access key pair is correct and that the Visual service " +
			"is activated in the Volcengine console: https://console.volcengine.com/",
	}
}

func (c *Client) rateLimitError(resp *http.Response, payload map[string]any) error {
	retryAfter := 0
	if v := resp.Header.Get("Retry-After"); v != "" {
		if n, err := strconv.Atoi(v); err == nil {
			retryAfter = n
		}
	}
	msg := "rate limit exceeded"
	if ve, ok := provider.NormalizeVendorError(payload); ok {
		msg = fmt.Sprintf("rate limit exceeded: %s", ve.Message)
	}
	return &provider.RateLimitError{Provider: providerName, Message: msg, RetryAfter: retryAfter}
}

// successResult decodes a 2xx payload. A response with neither inline
// base64 images nor URLs is a logical failure, not a retry trigger.
func (c *Client) successResult(payload map[string]any, req *provider.GenerationRequest, start time.Time) *provider.GenerationResult {
	data, _ := payload["data"].(map[string]any)

	var images [][]byte
	var decodeErr string
	if raw, ok := data["binary_data_base64"].([]any); ok {
		for _, item := range raw {
			s, ok := item.(string)
			if !ok {
				continue
			}
			img, err := base64.StdEncoding.DecodeString(s)
			if err != nil {
				decodeErr = fmt.Sprintf("decode image payload: %v", err)
				continue
			}
			images = append(images, img)
		}
	}
	if len(images) == 0 {
		if urls, ok := data["image_urls"].([]any); ok {
			for _, item := range urls {
				u, ok := item.(string)
				if !ok {
					continue
				}
				img, err := c.fetchImage(u)
				if err != nil {
					decodeErr = err.Error()
					continue
				}
				images = append(images, img)
			}
		}
	}

	if len(images) == 0 {
		msg := "no images in response"
		if decodeErr != "" {
			msg = decodeErr
		}
		result := c.failed(req, start, msg, payload)
		return result
	}

	seed := req.Seed
	if s, ok := data["seed"].(float64); ok {
		v := int64(s)
		seed = &v
	}

	return &provider.GenerationResult{
		Status:     provider.StatusSuccess,
		Images:     images,
		RequestID:  provider.RequestIDFromPayload(payload),
		Model:      req.Model,
		Prompt:     req.Prompt,
		Seed:       seed,
		DurationMs: c.now().Sub(start).Milliseconds(),
		Raw:        payload,
	}
}

func (c *Client) fetchImage(imageURL string) ([]byte, error) {
	resp, err := c.http().Get(imageURL)
	if err != nil {
		return nil, fmt.Errorf("fetch image URL: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("fetch image URL: HTTP %d", resp.StatusCode)
	}
	return io.ReadAll(resp.Body)
}

// buildBody assembles the vendor request body. Reference images switch
// the request into image-to-image mode; an unreadable image is a
// pre-flight error that propagates to the caller.
func (c *Client) buildBody(req *provider.GenerationRequest) (map[string]any, error) {
	modelVersion, ok := modelVersions[req.Model]
	if !ok {
		modelVersion = defaultModelVersion
	}
	if req.HasReference() {
		modelVersion = i2iModelVersion
	}
	reqKey, ok := reqKeys[modelVersion]
	if !ok {
		reqKey = defaultReqKey
	}

	width, height := req.Width, req.Height
	if width <= 0 {
		width = 1024
	}
	if height <= 0 {
		height = 1024
	}

	body := map[string]any{
		"req_key":       reqKey,
		"prompt":        req.Prompt,
		"model_version": modelVersion,
		"width":         width,
		"height":        height,
		"return_url":    false,
		"logo_info":     map[string]any{"add_logo": false},
	}
	if req.NegativePrompt != "" {
		body["negative_prompt"] = req.NegativePrompt
	}
	if req.Seed != nil {
		body["seed"] = *req.Seed
	}
	if req.NumImages > 1 {
		batch := req.NumImages
		if batch > maxBatchSize {
			batch = maxBatchSize
		}
		body["batch_size"] = batch
	}
	for key, value := range req.Extra {
		body[key] = value
	}

	if req.HasReference() {
		images := req.ReferenceImageData
		if len(images) == 0 {
			for _, path := range req.ReferenceImagePaths {
				encoded, _, err := imageutil.LoadAndEncode(path, c.projectRoot)
				if err != nil {
					return nil, err
				}
				images = append(images, encoded)
			}
		}
		field, ok := i2iImageFields[modelVersion]
		if !ok {
			field = defaultI2IImageField
		}
		if field != defaultI2IImageField && len(images) == 1 {
			body[field] = images[0]
		} else {
			body[field] = images
		}
	}

	return body, nil
}

func (c *Client) failed(req *provider.GenerationRequest, start time.Time, message string, raw map[string]any) *provider.GenerationResult {
	return &provider.GenerationResult{
		Status:       provider.StatusFailed,
		Model:        req.Model,
		Prompt:       req.Prompt,
		Seed:         req.Seed,
		DurationMs:   c.now().Sub(start).Milliseconds(),
		ErrorMessage: message,
		Raw:          raw,
	}
}

func vendorMessage(payload map[string]any, raw []byte) string {
	if ve, ok := provider.NormalizeVendorError(payload); ok {
		if ve.Code != "" {
			return fmt.Sprintf("%s (%s)", ve.Message, ve.Code)
		}
		return ve.Message
	}
	s := strings.TrimSpace(string(raw))
	if len(s) > 200 {
		s = s[:200]
	}
	return s
}

func isTransient(err error) bool {
	var ge *provider.GenerationError
	if errors.As(err, &ge) {
		return ge.Transient
	}
	var te *provider.TimeoutError
	return errors.As(err, &te)
}

func isTimeoutErr(err error) bool {
	var ne net.Error
	return errors.As(err, &ne) && ne.Timeout()
}
