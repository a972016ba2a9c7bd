package portal

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"time"

	"github.com/cenkalti/backoff/v4"

	"UsageSync/internal/domain"
	"UsageSync/internal/ports"
)

var (
	_ ports.TokenProvider  = (*Client)(nil)
	_ ports.PortalResolver = (*Client)(nil)
)

type tokenResponse struct {
	Token   string `json:"token"`
	Expires int64  `json:"expires"`
}

// Token exchanges credentials for an access token. Rejected credentials fail
// immediately; transport failures are retried up to the attempt cap.
func (c *Client) Token(ctx context.Context, creds domain.Credentials) (domain.AccessToken, error) {
	expiration := creds.ExpirationMinutes
	if expiration <= 0 {
		expiration = 120
	}

	form := url.Values{}
	form.Set("f", "json")
	form.Set("username", creds.Username)
	form.Set("password", creds.Password)
	form.Set("referer", creds.Referer)
	form.Set("expiration", strconv.Itoa(expiration))

	var resp tokenResponse
	attempts, err := c.retry(ctx, func() error {
		err := c.call(ctx, http.MethodPost, "/sharing/rest/generateToken", form, &resp)
		var apiErr *APIError
		if errors.As(err, &apiErr) {
			return backoff.Permanent(err)
		}
		return permanent(ctx, err)
	})
	if err != nil {
		return domain.AccessToken{}, &domain.AuthError{Op: "generate token", Err: fmt.Errorf("after %d attempts: %w", attempts, err)}
	}
	if resp.Token == "" {
		return domain.AccessToken{}, &domain.AuthError{Op: "generate token", Err: errors.New("empty token in response")}
	}

	obtained := c.now()
	expires := obtained.Add(time.Duration(expiration) * time.Minute)
	if resp.Expires > 0 {
		expires = time.UnixMilli(resp.Expires)
	}

	return domain.AccessToken{Value: resp.Token, ObtainedAt: obtained, ExpiresAt: expires}, nil
}

// PortalID resolves the organisation id of the authenticated portal.
func (c *Client) PortalID(ctx context.Context, token domain.AccessToken) (string, error) {
	form := url.Values{}
	form.Set("f", "json")
	form.Set("token", token.Value)

	var resp struct {
		ID string `json:"id"`
	}
	attempts, err := c.retry(ctx, func() error {
		return permanent(ctx, c.call(ctx, http.MethodPost, "/sharing/rest/portals/self", form, &resp))
	})
	if err != nil {
		return "", &domain.AuthError{Op: "portal id", Err: fmt.Errorf("after %d attempts: %w", attempts, err)}
	}
	if resp.ID == "" {
		return "", &domain.AuthError{Op: "portal id", Err: errors.New("empty portal id in response")}
	}

	return resp.ID, nil
}
