package cluster

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"

	"golang.org/x/oauth2"
	"golang.org/x/oauth2/clientcredentials"
)

const maxHTTPResponseBytes = 32 << 20

// HTTPConfig configures the HTTP shim transport. When TokenURL is set every request
// carries a client-credentials bearer token.
type HTTPConfig struct {
	URL          string
	TokenURL     string
	ClientID     string
	ClientSecret string
	Scopes       []string
	Timeout      time.Duration

	// Client overrides the base HTTP client (tests).
	Client *http.Client
}

// HTTPTransport posts the envelope to a shim that fronts the remote entrypoint.
type HTTPTransport struct {
	url    string
	client *http.Client
}

// NewHTTPTransport validates cfg and returns an HTTPTransport.
func NewHTTPTransport(ctx context.Context, cfg HTTPConfig) (*HTTPTransport, error) {
	if strings.TrimSpace(cfg.URL) == "" {
		return nil, errors.New("http transport: url is required")
	}
	base := cfg.Client
	if base == nil {
		timeout := cfg.Timeout
		if timeout <= 0 {
			timeout = 2 * time.Minute
		}
		base = &http.Client{Timeout: timeout}
	}

	client := base
	if cfg.TokenURL != "" {
		cc := clientcredentials.Config{
			ClientID:     cfg.ClientID,
			ClientSecret: cfg.ClientSecret,
			TokenURL:     cfg.TokenURL,
			Scopes:       cfg.Scopes,
		}
		// Token fetches reuse the base client through the oauth2 context key.
		client = cc.Client(context.WithValue(context.WithoutCancel(ctx), oauth2.HTTPClient, base))
		client.Timeout = base.Timeout
	}
	return &HTTPTransport{url: cfg.URL, client: client}, nil
}

// Name implements Transport.
func (t *HTTPTransport) Name() string { return "http" }

// Call implements Transport.
func (t *HTTPTransport) Call(ctx context.Context, payload []byte) ([]byte, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, t.url, bytes.NewReader(payload))
	if err != nil {
		return nil, fmt.Errorf("%w: build request: %w", ErrTransport, err)
	}
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("Accept", "application/json")

	resp, err := t.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("%w: post %s: %w", ErrTransport, t.url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxHTTPResponseBytes))
	if err != nil {
		return nil, fmt.Errorf("%w: read response: %w", ErrTransport, err)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, fmt.Errorf("%w: %s returned %d: %s", ErrTransport, t.url, resp.StatusCode, stderrDetail(body))
	}
	return body, nil
}
