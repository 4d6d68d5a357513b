package ai

import (
    "bytes"
    "context"
    "fmt"
    "io"
    "net/http"
    "strings"
    "time"

    "github.com/sony/gobreaker"
    "github.com/tidwall/gjson"
    "github.com/tidwall/sjson"
)

// Client talks to an Ollama-compatible /api/generate endpoint.
type Client struct {
    http    *http.Client
    baseURL string
    model   string
    cb      *gobreaker.CircuitBreaker
}

type Option func(*Client)

func WithHTTPClient(c *http.Client) Option {
    return func(cl *Client) { cl.http = c }
}

func WithModel(model string) Option {
    return func(cl *Client) { cl.model = model }
}

func New(baseURL string, timeout time.Duration, opts ...Option) *Client {
    if timeout <= 0 {
        timeout = 2 * time.Minute
    }
    c := &Client{
        http:    &http.Client{Timeout: timeout},
        baseURL: strings.TrimRight(baseURL, "/"),
        model:   "phi3:mini",
    }
    for _, opt := range opts {
        opt(c)
    }
    c.cb = gobreaker.NewCircuitBreaker(gobreaker.Settings{
        Name:        "ai-oracle",
        MaxRequests: 1,
        Interval:    time.Minute,
        Timeout:     30 * time.Second,
        ReadyToTrip: func(counts gobreaker.Counts) bool {
            return counts.ConsecutiveFailures >= 3
        },
    })
    return c
}

// Complete sends a single non-streaming prompt and returns the model's text.
func (c *Client) Complete(ctx context.Context, prompt string) (string, error) {
    out, err := c.cb.Execute(func() (interface{}, error) {
        return c.generate(ctx, prompt)
    })
    if err != nil {
        return "", err
    }
    return out.(string), nil
}

func (c *Client) generate(ctx context.Context, prompt string) (string, error) {
    body, err := sjson.Set("", "model", c.model)
    if err == nil {
        body, err = sjson.Set(body, "prompt", prompt)
    }
    if err == nil {
        body, err = sjson.Set(body, "stream", false)
    }
    if err != nil {
        return "", fmt.Errorf("build request: %w", err)
    }

    req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.baseURL+"/api/generate", bytes.NewReader([]byte(body)))
    if err != nil {
        return "", fmt.Errorf("create request: %w", err)
    }
    req.Header.Set("Content-Type", "application/json")

    resp, err := c.http.Do(req)
    if err != nil {
        return "", fmt.Errorf("http request: %w", err)
    }
    defer resp.Body.Close()

    raw, err := io.ReadAll(resp.Body)
    if err != nil {
        return "", fmt.Errorf("read response: %w", err)
    }
    if resp.StatusCode < 200 || resp.StatusCode > 299 {
        return "", fmt.Errorf("%s: %s", resp.Status, strings.TrimSpace(string(raw)))
    }

    if r := gjson.GetBytes(raw, "response"); r.Exists() {
        return r.String(), nil
    }
    return string(raw), nil
}
