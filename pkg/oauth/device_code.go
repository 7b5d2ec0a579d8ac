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

var deviceCodeErrorMessages = map[string]string{
	"invalid_client":      "Invalid client configuration. Check the app registration and ensure public client flows are allowed.",
	"invalid_request":     "Invalid authentication request. Check the client ID and tenant ID.",
	"unauthorized_client": "This application is not authorized for device code flow.",
	"access_denied":       "Access denied. Ensure the account has the necessary permissions.",
	"expired_token":       "Authentication expired. Please try again.",
}

type deviceCodeStartResponse struct {
	DeviceCode      string `json:"device_code"`
	UserCode        string `json:"user_code"`
	VerificationURI string `json:"verification_uri"`
	ExpiresIn       int64  `json:"expires_in"`
	Interval        int64  `json:"interval"`
	Message         string `json:"message"`
}

// DeviceCodeProvider runs the OAuth 2.0 device authorization grant against
// Azure AD: start, display, poll.
type DeviceCodeProvider struct {
	cfg    Config
	client *httpclient.Client
	onCode DeviceCodeCallback
}

// NewDeviceCodeProvider constructs a provider bound to cfg. client is the
// shared outbound HTTP client (retries + tracing + circuit breaker); onCode
// is invoked once the device/user codes are available, so the UI can
// display them before polling begins. onCode may be nil.
func NewDeviceCodeProvider(cfg Config, client *httpclient.Client, onCode DeviceCodeCallback) *DeviceCodeProvider {
	return &DeviceCodeProvider{cfg: cfg, client: client, onCode: onCode}
}

// Authenticate starts the device-code flow, invokes the configured callback
// with the display information as soon as it is available, then polls until
// the flow succeeds, is denied, expires, or ctx is cancelled. It satisfies
// the common Provider capability shared with ClientCredentialsProvider.
func (p *DeviceCodeProvider) Authenticate(ctx context.Context) (model.AuthToken, error) {
	if p.cfg.TenantID == "" || p.cfg.ClientID == "" {
		return model.AuthToken{}, errors.Configuration("tenant_id and client_id are required for device code flow", nil)
	}

	start, err := p.startDeviceCodeFlow(ctx)
	if err != nil {
		return model.AuthToken{}, err
	}

	if p.onCode != nil {
		p.onCode(DeviceCodeInfo{
			UserCode:        start.UserCode,
			VerificationURI: start.VerificationURI,
			Message:         start.Message,
			ExpiresIn:       time.Duration(start.ExpiresIn) * time.Second,
			Interval:        time.Duration(start.Interval) * time.Second,
		})
	}

	return p.pollDeviceCodeToken(ctx, start)
}

func (p *DeviceCodeProvider) tokenURL() string {
	return fmt.Sprintf("%s/%s/oauth2/v2.0/token", p.cfg.authorityHost(), p.cfg.TenantID)
}

func (p *DeviceCodeProvider) startDeviceCodeFlow(ctx context.Context) (deviceCodeStartResponse, error) {
	deviceCodeURL := fmt.Sprintf("%s/%s/oauth2/v2.0/devicecode", p.cfg.authorityHost(), p.cfg.TenantID)

	form := url.Values{
		"client_id": {p.cfg.ClientID},
		"scope":     {p.cfg.scope()},
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, deviceCodeURL, strings.NewReader(form.Encode()))
	if err != nil {
		return deviceCodeStartResponse{}, errors.Authentication("failed to build device code request", err)
	}
	req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

	resp, err := p.client.Do(req)
	if err != nil {
		return deviceCodeStartResponse{}, errors.Authentication("failed to initiate device code flow", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		return deviceCodeStartResponse{}, errors.Authentication(
			fmt.Sprintf("authentication failed: %s", errResp.friendly(deviceCodeErrorMessages)), nil)
	}

	var start deviceCodeStartResponse
	if err := json.NewDecoder(resp.Body).Decode(&start); err != nil {
		return deviceCodeStartResponse{}, errors.Authentication("failed to parse device code response", err)
	}
	return start, nil
}

func (p *DeviceCodeProvider) pollDeviceCodeToken(ctx context.Context, start deviceCodeStartResponse) (model.AuthToken, error) {
	interval := time.Duration(start.Interval) * time.Second
	if interval <= 0 {
		interval = 5 * time.Second
	}
	timeout := time.Duration(start.ExpiresIn) * time.Second
	deadline := time.Now().Add(timeout)

	for {
		if time.Now().After(deadline) {
			return model.AuthToken{}, errors.Authentication("device code expired before authentication completed", nil)
		}

		select {
		case <-ctx.Done():
			return model.AuthToken{}, ctx.Err()
		case <-time.After(interval):
		}

		form := url.Values{
			"grant_type":  {"urn:ietf:params:oauth:grant-type:device_code"},
			"client_id":   {p.cfg.ClientID},
			"device_code": {start.DeviceCode},
		}
		if p.cfg.ClientSecret != "" {
			form.Set("client_secret", p.cfg.ClientSecret)
		}

		req, err := http.NewRequestWithContext(ctx, http.MethodPost, p.tokenURL(), strings.NewReader(form.Encode()))
		if err != nil {
			return model.AuthToken{}, errors.Authentication("failed to build token poll request", err)
		}
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")

		resp, err := p.client.Do(req)
		if err != nil {
			return model.AuthToken{}, errors.Authentication("failed to poll for token", err)
		}

		if resp.StatusCode >= 200 && resp.StatusCode < 300 {
			var tok tokenResponse
			decodeErr := json.NewDecoder(resp.Body).Decode(&tok)
			resp.Body.Close()
			if decodeErr != nil {
				return model.AuthToken{}, errors.Authentication("failed to parse token response", decodeErr)
			}
			return newToken(tok, p.cfg.SafetyMargin, time.Now()), nil
		}

		var errResp errorResponse
		_ = json.NewDecoder(resp.Body).Decode(&errResp)
		resp.Body.Close()

		switch errResp.Error {
		case "authorization_pending":
			continue
		case "slow_down":
			interval += 5 * time.Second
			continue
		case "expired_token":
			return model.AuthToken{}, errors.Authentication("the device code has expired; restart authentication", nil)
		case "access_denied":
			return model.AuthToken{}, errors.Authentication("access was denied", nil)
		default:
			return model.AuthToken{}, errors.Authentication(
				fmt.Sprintf("authentication failed: %s - %s", errResp.Error, errResp.friendly(deviceCodeErrorMessages)), nil)
		}
	}
}
