package token

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/jrsteele09/go-lichess-client/internal/errors"
)

const maxErrorBody = 8 << 10

// Revoke invalidates accessToken with DELETE /api/token. Callers treat
// failures as best effort.
func (c *OAuthClient) Revoke(ctx context.Context, accessToken string) error {
	if strings.TrimSpace(accessToken) == "" {
		return nil
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodDelete, c.host+TokenPath, nil)
	if err != nil {
		return fmt.Errorf("failed to create revoke request: %w", err)
	}
	req.Header.Set("Authorization", "Bearer "+accessToken)

	resp, err := c.httpClient.Do(req)
	if err != nil {
		return &errors.TransportError{Endpoint: TokenPath, Err: err}
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &errors.RequestError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body)), Endpoint: TokenPath}
	}
	_, _ = io.Copy(io.Discard, resp.Body)
	return nil
}
