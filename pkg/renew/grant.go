package renew

import (
	"context"
	"fmt"
	"net/http"
	"net/url"
	"strings"
)

// Grant returns a Func performing a standard OAuth2 refresh_token grant
// against tokenURL: a form-encoded POST spending the refresh credential.
// clientID is included when non-empty. Pair it with
// JSONField("access_token") and JSONField("refresh_token") for a stock
// OAuth2 backend.
func Grant(tokenURL, clientID string) Func {
	return func(ctx context.Context, client Doer, refresh string) (*http.Response, error) {
		data := url.Values{
			"grant_type":    {"refresh_token"},
			"refresh_token": {refresh},
		}
		if clientID != "" {
			data.Set("client_id", clientID)
		}

		req, err := http.NewRequestWithContext(
			ctx,
			http.MethodPost,
			tokenURL,
			strings.NewReader(data.Encode()),
		)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %w", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		return client.Do(req)
	}
}
