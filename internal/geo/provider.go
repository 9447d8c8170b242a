package geo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"time"
)

// HTTPProvider reads fixes from a local positioning daemon (gpsd-style
// bridge exposing the device position over HTTP).
type HTTPProvider struct {
	BaseURL string
	HTTP    *http.Client

	// PollInterval controls how often Watch re-polls the daemon.
	PollInterval time.Duration
}

// NewHTTPProvider creates a provider for the daemon at baseURL.
func NewHTTPProvider(baseURL string) *HTTPProvider {
	return &HTTPProvider{
		BaseURL:      baseURL,
		HTTP:         &http.Client{Timeout: 5 * time.Second},
		PollInterval: time.Second,
	}
}

// Watch polls the daemon until ctx is cancelled, emitting each fix.
func (p *HTTPProvider) Watch(ctx context.Context) (<-chan Fix, error) {
	out := make(chan Fix)
	go func() {
		defer close(out)
		ticker := time.NewTicker(p.PollInterval)
		defer ticker.Stop()
		for {
			loc, err := p.Current(ctx)
			select {
			case out <- Fix{Location: loc, Err: err}:
			case <-ctx.Done():
				return
			}
			if err != nil {
				return
			}
			select {
			case <-ticker.C:
			case <-ctx.Done():
				return
			}
		}
	}()
	return out, nil
}

// Current fetches a single fix from the daemon.
func (p *HTTPProvider) Current(ctx context.Context) (Location, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.BaseURL+"/position", nil)
	if err != nil {
		return Location{}, err
	}

	resp, err := p.HTTP.Do(req)
	if err != nil {
		if ctx.Err() != nil {
			return Location{}, ErrLocationTimeout
		}
		return Location{}, ErrPositionUnavailable
	}
	defer resp.Body.Close()

	switch {
	case resp.StatusCode == http.StatusForbidden:
		return Location{}, ErrPermissionDenied
	case resp.StatusCode == http.StatusServiceUnavailable:
		return Location{}, ErrPositionUnavailable
	case resp.StatusCode >= 300:
		return Location{}, fmt.Errorf("positioning daemon error: %s", resp.Status)
	}

	var loc Location
	if err := json.NewDecoder(resp.Body).Decode(&loc); err != nil {
		return Location{}, fmt.Errorf("failed to decode position: %w", err)
	}
	return loc, nil
}
