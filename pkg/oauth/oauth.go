// Package oauth implements the two Azure AD authentication flows the
// console supports: interactive device-code and service-to-service
// client-credentials. Both produce a model.AuthToken; each provider keeps
// its Config, including any client secret, for reuse on every call.
package oauth

import (
	"context"
	"time"

	"github.com/sb-console/engine/pkg/model"
)

// Provider is the common capability of both auth flows: acquire a fresh
// token given the context of an in-flight authentication attempt. AuthState
// depends on this interface, not on either concrete flow.
type Provider interface {
	Authenticate(ctx context.Context) (model.AuthToken, error)
}

// Method selects which OAuth 2.0 flow a Provider runs.
type Method string

const (
	MethodDeviceCode       Method = "device_code"
	MethodClientCredential Method = "client_secret"
)

// Config carries everything a Provider needs to reach Azure AD. ClientSecret
// is empty for device-code flow using a public client.
type Config struct {
	Method         Method
	AuthorityHost  string
	TenantID       string
	ClientID       string
	ClientSecret   string
	Scope          string
	SafetyMargin   time.Duration
}

const defaultAuthorityHost = "https://login.microsoftonline.com"
const defaultScope = "https://servicebus.azure.net/.default"

func (c Config) authorityHost() string {
	if c.AuthorityHost != "" {
		return c.AuthorityHost
	}
	return defaultAuthorityHost
}

func (c Config) scope() string {
	if c.Scope != "" {
		return c.Scope
	}
	return defaultScope
}

// DeviceCodeInfo is the display payload the UI shows while device-code
// authentication is pending: a verification URL and a short user code.
type DeviceCodeInfo struct {
	UserCode        string
	VerificationURI string
	Message         string
	ExpiresIn       time.Duration
	Interval        time.Duration
}

// DeviceCodeCallback is invoked once the device-code start request succeeds, so the
// caller can surface DeviceCodeInfo to the operator before polling begins.
type DeviceCodeCallback func(DeviceCodeInfo)

type tokenResponse struct {
	AccessToken string `json:"access_token"`
	TokenType   string `json:"token_type"`
	ExpiresIn   int64  `json:"expires_in"`
}

type errorResponse struct {
	Error            string `json:"error"`
	ErrorDescription string `json:"error_description"`
}

func (e errorResponse) friendly(fallback map[string]string) string {
	if msg, ok := fallback[e.Error]; ok {
		return msg
	}
	if e.ErrorDescription != "" {
		return e.ErrorDescription
	}
	return e.Error
}

func newToken(resp tokenResponse, safetyMargin time.Duration, now time.Time) model.AuthToken {
	return model.NewAuthToken(resp.AccessToken, resp.TokenType, time.Duration(resp.ExpiresIn)*time.Second, safetyMargin, now)
}
