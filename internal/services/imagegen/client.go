package imagegen

import (
	"bytes"
	"context"
	"encoding/base64"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"math/rand/v2"
	"net/http"
	"net/url"
	"strings"
	"time"

	"loom/internal/config"
)

const (
	defaultHTTPTimeout  = 60 * time.Second
	defaultPollInterval = 5 * time.Second
	defaultPollAttempts = 60
)

// PollPolicy controls how the client waits on an asynchronous generation
// job. Jitter is a fraction of the interval added randomly to each wait to
// avoid synchronized polling across parallel scenes.
type PollPolicy struct {
	Interval    time.Duration
	MaxAttempts int
	Jitter      float64
}

// PolicyFromConfig builds the polling policy from the images section,
// falling back to the provider defaults for unset values.
func PolicyFromConfig(cfg config.Images) PollPolicy {
	policy := PollPolicy{
		Interval:    defaultPollInterval,
		MaxAttempts: defaultPollAttempts,
		Jitter:      cfg.PollJitter,
	}
	if cfg.PollIntervalSeconds > 0 {
		policy.Interval = time.Duration(cfg.PollIntervalSeconds) * time.Second
	}
	if cfg.PollMaxAttempts > 0 {
		policy.MaxAttempts = cfg.PollMaxAttempts
	}
	if policy.Jitter < 0 {
		policy.Jitter = 0
	}
	return policy
}

// Client talks to an asynchronous image generation API: submit a prompt,
// poll the job until it settles, fetch the finished image.
type Client struct {
	cfg        config.Images
	policy     PollPolicy
	httpClient *http.Client
	sleeper    func(time.Duration)
	jitterFn   func() float64
}

// Option customizes the client.
type Option func(*Client)

// WithHTTPClient overrides the default HTTP client.
func WithHTTPClient(client *http.Client) Option {
	return func(c *Client) {
		if client != nil {
			c.httpClient = client
		}
	}
}

// WithPollPolicy overrides the polling policy derived from configuration.
func WithPollPolicy(policy PollPolicy) Option {
	return func(c *Client) {
		c.policy = policy
	}
}

// WithSleeper overrides how poll waits are performed (useful for tests).
func WithSleeper(sleeper func(time.Duration)) Option {
	return func(c *Client) {
		c.sleeper = sleeper
	}
}

// NewClient constructs an image generation client from configuration.
func NewClient(cfg config.Images, opts ...Option) *Client {
	timeout := defaultHTTPTimeout
	if cfg.TimeoutSeconds > 0 {
		timeout = time.Duration(cfg.TimeoutSeconds) * time.Second
	}
	cfg.BaseURL = strings.TrimRight(strings.TrimSpace(cfg.BaseURL), "/")
	client := &Client{
		cfg:        cfg,
		policy:     PolicyFromConfig(cfg),
		httpClient: &http.Client{Timeout: timeout},
		jitterFn:   rand.Float64,
	}
	for _, opt := range opts {
		opt(client)
	}
	if client.httpClient == nil {
		client.httpClient = &http.Client{Timeout: timeout}
	}
	if client.policy.Interval <= 0 {
		client.policy.Interval = defaultPollInterval
	}
	if client.policy.MaxAttempts <= 0 {
		client.policy.MaxAttempts = defaultPollAttempts
	}
	return client
}

// Request describes one image to generate. ReferenceID carries the provider
// id of the previous scene's finished image so consecutive scenes stay
// visually consistent; empty for the first scene.
type Request struct {
	Prompt      string
	ReferenceID string
}

// Generation is the normalized outcome of a finished job.
type Generation struct {
	ID    string
	Image []byte
}

// jobState is the decoded provider status tag. The raw response is
// normalized at the boundary so the rest of the client never branches on
// response shape.
type jobState int

const (
	statePending jobState = iota
	stateSucceeded
	stateFailed
)

type generationResponse struct {
	ID     string `json:"id"`
	Status string `json:"status"`
	Error  string `json:"error"`
	Output *struct {
		B64 string `json:"b64_json"`
		URL string `json:"url"`
	} `json:"output"`
}

type jobResult struct {
	id    string
	state jobState
	image []byte
	url   string
	cause string
}

// normalize validates the tagged provider response and maps it onto one
// internal result type. Unknown status tags are an error, not a guess.
func normalize(raw generationResponse) (jobResult, error) {
	result := jobResult{id: strings.TrimSpace(raw.ID), cause: strings.TrimSpace(raw.Error)}
	if result.id == "" {
		return result, errors.New("imagegen: response missing job id")
	}
	switch strings.ToLower(strings.TrimSpace(raw.Status)) {
	case "queued", "pending", "processing", "running":
		result.state = statePending
		return result, nil
	case "succeeded", "completed", "done":
		result.state = stateSucceeded
		if raw.Output == nil {
			return result, errors.New("imagegen: succeeded job carries no output")
		}
		b64 := strings.TrimSpace(raw.Output.B64)
		link := strings.TrimSpace(raw.Output.URL)
		switch {
		case b64 != "":
			image, err := base64.StdEncoding.DecodeString(b64)
			if err != nil {
				return result, fmt.Errorf("imagegen: decode image payload: %w", err)
			}
			result.image = image
		case link != "":
			result.url = link
		default:
			return result, errors.New("imagegen: succeeded job output has neither b64_json nor url")
		}
		return result, nil
	case "failed", "error", "canceled", "cancelled":
		result.state = stateFailed
		return result, nil
	default:
		return result, fmt.Errorf("imagegen: unrecognized job status %q", raw.Status)
	}
}

// Generate submits the request and waits for the job to settle under the
// polling policy. It returns the finished image bytes and the provider's
// generation id for reference continuity.
func (c *Client) Generate(ctx context.Context, req Request) (*Generation, error) {
	if strings.TrimSpace(req.Prompt) == "" {
		return nil, errors.New("imagegen: prompt required")
	}
	if strings.TrimSpace(c.cfg.APIKey) == "" {
		return nil, errors.New("imagegen: api key required")
	}
	if c.cfg.BaseURL == "" {
		return nil, errors.New("imagegen: base url required")
	}

	result, err := c.submit(ctx, req)
	if err != nil {
		return nil, err
	}
	for attempt := 0; result.state == statePending; attempt++ {
		if attempt >= c.policy.MaxAttempts {
			return nil, fmt.Errorf("imagegen: job %s still pending after %d polls", result.id, c.policy.MaxAttempts)
		}
		if err := c.wait(ctx); err != nil {
			return nil, err
		}
		result, err = c.poll(ctx, result.id)
		if err != nil {
			return nil, err
		}
	}
	if result.state == stateFailed {
		if result.cause == "" {
			result.cause = "provider reported failure"
		}
		return nil, fmt.Errorf("imagegen: job %s failed: %s", result.id, result.cause)
	}

	image := result.image
	if image == nil {
		image, err = c.download(ctx, result.url)
		if err != nil {
			return nil, err
		}
	}
	if len(image) == 0 {
		return nil, fmt.Errorf("imagegen: job %s produced an empty image", result.id)
	}
	return &Generation{ID: result.id, Image: image}, nil
}

func (c *Client) submit(ctx context.Context, req Request) (jobResult, error) {
	payload := map[string]any{
		"prompt": strings.TrimSpace(req.Prompt),
		"model":  strings.TrimSpace(c.cfg.Model),
		"width":  c.cfg.Width,
		"height": c.cfg.Height,
	}
	if ref := strings.TrimSpace(req.ReferenceID); ref != "" {
		payload["reference_image_id"] = ref
	}
	encoded, err := json.Marshal(payload)
	if err != nil {
		return jobResult{}, fmt.Errorf("imagegen: encode request: %w", err)
	}
	return c.decodeJob(ctx, http.MethodPost, c.cfg.BaseURL+"/generations", encoded)
}

func (c *Client) poll(ctx context.Context, id string) (jobResult, error) {
	return c.decodeJob(ctx, http.MethodGet, c.cfg.BaseURL+"/generations/"+url.PathEscape(id), nil)
}

func (c *Client) decodeJob(ctx context.Context, method, endpoint string, body []byte) (jobResult, error) {
	var reader io.Reader
	if body != nil {
		reader = bytes.NewReader(body)
	}
	req, err := http.NewRequestWithContext(ctx, method, endpoint, reader)
	if err != nil {
		return jobResult{}, fmt.Errorf("imagegen: new request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+c.cfg.APIKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return jobResult{}, fmt.Errorf("imagegen: %w", err)
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return jobResult{}, fmt.Errorf("imagegen: read body: %w", err)
	}
	if resp.StatusCode >= http.StatusMultipleChoices {
		return jobResult{}, fmt.Errorf("imagegen: http %d: %s", resp.StatusCode, strings.TrimSpace(string(data)))
	}
	var raw generationResponse
	if err := json.Unmarshal(data, &raw); err != nil {
		return jobResult{}, fmt.Errorf("imagegen: decode response: %w", err)
	}
	return normalize(raw)
}

func (c *Client) download(ctx context.Context, link string) ([]byte, error) {
	if strings.TrimSpace(link) == "" {
		return nil, errors.New("imagegen: empty image url")
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, link, nil)
	if err != nil {
		return nil, fmt.Errorf("imagegen: new download request: %w", err)
	}
	resp, err := c.httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("imagegen: download image: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return nil, fmt.Errorf("imagegen: download image: http %d", resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("imagegen: download image: %w", err)
	}
	return data, nil
}

func (c *Client) wait(ctx context.Context) error {
	delay := c.policy.Interval
	if c.policy.Jitter > 0 {
		delay += time.Duration(float64(delay) * c.policy.Jitter * c.jitterFn())
	}
	if ctx.Err() != nil {
		return ctx.Err()
	}
	if c.sleeper != nil {
		c.sleeper(delay)
		return ctx.Err()
	}
	timer := time.NewTimer(delay)
	defer timer.Stop()
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-timer.C:
		return nil
	}
}
