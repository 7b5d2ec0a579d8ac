package oauth

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/httpclient"
	"github.com/sb-console/engine/pkg/model"
)

var clientCredentialErrorMessages = map[string]string{
	"invalid_client":      "Check your client id/secret.",
	"invalid_request":     "Invalid authentication request. Check your configuration.",
	"unauthorized_client": "This application is not authorized for the client credentials flow.",
	"access_denied":       "Access denied. The application lacks the necessary permissions.",
	"invalid_scope":       "Invalid scope specified.",
}

// ClientCredentialsProvider runs the OAuth 2.0 client credentials grant: a
// single POST with the client's id and secret.
type ClientCredentialsProvider struct {
	cfg    Config
	client *httpclient.Client
}

// NewClientCredentialsProvider constructs a provider bound to cfg.
func NewClientCredentialsProvider(cfg Config, client *httpclient.Client) *ClientCredentialsProvider {
	return &ClientCredentialsProvider{cfg: cfg, client: client}
}

// Authenticate performs the single-request client-credentials exchange.
func (p *ClientCredentialsProvider) Authenticate(ctx context.Context) (model.AuthToken, error) {
	if p.cfg.TenantID == "" || p.cfg.ClientID == "" {
		return model.AuthToken{}, errors.Configuration("tenant_id and client_id are required for client credentials flow", nil)
	}
	if p.cfg.ClientSecret == "" {
		return model.AuthToken{}, errors.Configuration("client_secret is required for client credentials flow", nil)
	}

	tokenURL := fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.cfg.authorityHost(), p.cfg.TenantID)

	form := url.Values{
		"grant_type":    {"client_credentials"},
		"client_id":     {p.cfg.ClientID},
		"client_secret": {p.cfg.ClientSecret},
		"scope":         {p.cfg.scope()},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, tokenURL, strings.NewReader(form.Encode()))
	if err != nil {
		return model.AuthToken{}, errors.Authentication("failed to build client credentials request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return model.AuthToken{}, errors.Authentication("failed to authenticate with client credentials", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return model.AuthToken{}, errors.Authentication(
			fmt.Sprintf("client credentials authentication failed: %s", errResp.friendly(clientCredentialErrorMessages)), nil)
	}

	var tok tokenResponse
	if err := json.NewDecoder(resp.Body).Decode(&tok); err != nil {
		return model.AuthToken{}, errors.Authentication("failed to parse token response", err)
	}

	return newToken(tok, p.cfg.SafetyMargin, time.Now()), nil
}
