package account

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/go-resty/resty/v2"
)

// tokenSource owns the cached broker session token. The cache lives on the
// long-lived provider instance and is refreshed under an explicit TTL check;
// concurrent callers share one refresh.
type tokenSource struct {
	client *resty.Client
	apiKey string
	ttl    time.Duration

	mu      sync.Mutex
	cached  string
	expires time.Time
	now     func() time.Time
}

func newTokenSource(client *resty.Client, apiKey string, ttl time.Duration) *tokenSource {
	return &tokenSource{
		client: client,
		apiKey: apiKey,
		ttl:    ttl,
		now:    time.Now,
	}
}

type tokenResponse struct {
	Token string `json:"token"`
}

// token returns the cached session token, refreshing it when expired.
func (s *tokenSource) token(ctx context.Context) (string, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.cached != "" && s.now().Before(s.expires) {
		return s.cached, nil
	}

	var result tokenResponse
	resp, err := s.client.R().
		SetContext(ctx).
		SetBody(map[string]string{"api_key": s.apiKey}).
		SetResult(&result).
		Post("/auth/token")
	if err != nil {
		return "", fmt.Errorf("token request failed: %w", err)
	}
	if resp.IsError() {
		return "", fmt.Errorf("token request failed with status %s: %s", resp.Status(), resp.String())
	}
	if result.Token == "" {
		return "", fmt.Errorf("token response carried no token")
	}

	s.cached = result.Token
	s.expires = s.now().Add(s.ttl)
	return s.cached, nil
}
