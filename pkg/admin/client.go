// Package admin implements the management-plane client: Azure Resource
// Manager discovery (subscriptions, resource groups, namespaces, queues),
// connection-string retrieval, and queue count lookups, all fronted by a
// ResourceCache.
package admin

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/httpclient"
	"github.com/sb-console/engine/pkg/model"
	"github.com/sb-console/engine/pkg/resilience"
)

const (
	managementBaseURL        = "https://management.azure.com"
	apiVersionSubscriptions  = "2022-12-01"
	apiVersionResourceGroups = "2021-04-01"
	apiVersionServiceBus     = "2021-11-01"
)

// TokenSource supplies the bearer token for admin-plane calls. authstate.State
// satisfies this directly.
type TokenSource interface {
	Token(scope model.Scope) model.AuthToken
}

// Client is the management-plane HTTP client. It does not own an auth
// provider; it reads whatever token TokenSource currently holds, re-reading
// before every call per the auth state's non-blocking read contract.
type Client struct {
	http    *httpclient.Client
	tokens  TokenSource
	cache   *ResourceCache
	cfg     CacheConfig
	baseURL string
}

// NewClient constructs an admin Client backed by http for transport and
// tokens for bearer-token acquisition.
func NewClient(http *httpclient.Client, tokens TokenSource, cache *ResourceCache, cfg CacheConfig) *Client {
	return &Client{http: http, tokens: tokens, cache: cache, cfg: cfg, baseURL: managementBaseURL}
}

// SetBaseURL overrides the Azure Resource Manager base URL. Production
// callers never need this; it exists so tests can point the client at a
// local fixture server.
func (c *Client) SetBaseURL(baseURL string) {
	c.baseURL = baseURL
}

func (c *Client) token() (string, error) {
	tok := c.tokens.Token(model.ScopeAdminPlane)
	if tok.Token == "" {
		return "", errors.Authentication("no admin-plane token available", nil)
	}
	return tok.Token, nil
}

func (c *Client) get(ctx context.Context, url string) (*http.Response, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, errors.Internal("failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	return c.http.Do(req)
}

func (c *Client) postEmptyJSON(ctx context.Context, url string) (*http.Response, error) {
	token, err := c.token()
	if err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, url, strings.NewReader("{}"))
	if err != nil {
		return nil, errors.Internal("failed to build request", err)
	}
	req.Header.Set("Authorization", "Bearer "+token)
	req.Header.Set("Content-Type", "application/json")
	return c.http.Do(req)
}

func httpError(op string, resp *http.Response) error {
	body, _ := io.ReadAll(resp.Body)
	resp.Body.Close()
	if resp.StatusCode == http.StatusNotFound {
		return errors.NotFound(fmt.Sprintf("%s: not found", op), nil)
	}
	return errors.ServiceBus(fmt.Sprintf("%s failed: %s - %s", op, resp.Status, string(body)), nil)
}

// ListSubscriptions lists every subscription visible to the current token,
// using the cache unless it has expired.
func (c *Client) ListSubscriptions(ctx context.Context) ([]Subscription, error) {
	if cached, ok := c.cache.subscriptions.Get(subscriptionsKey); ok {
		return cached, nil
	}

	u := fmt.Sprintf("%s/subscriptions?api-version=%s", c.baseURL, apiVersionSubscriptions)
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpError("list subscriptions", resp)
	}

	var list listResponse[Subscription]
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errors.ServiceBus("failed to parse subscriptions response", err)
	}

	c.cache.subscriptions.Set(subscriptionsKey, list.Value, c.cfg.ResourceTTL)
	return list.Value, nil
}

// ListResourceGroups lists resource groups within subscriptionID.
func (c *Client) ListResourceGroups(ctx context.Context, subscriptionID string) ([]ResourceGroup, error) {
	key := namespaceScopedKey(subscriptionID)
	if cached, ok := c.cache.resourceGroups.Get(key); ok {
		return cached, nil
	}

	u := fmt.Sprintf("%s/subscriptions/%s/resourcegroups?api-version=%s",
		c.baseURL, url.PathEscape(subscriptionID), apiVersionResourceGroups)
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpError("list resource groups", resp)
	}

	var list listResponse[ResourceGroup]
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errors.ServiceBus("failed to parse resource groups response", err)
	}

	c.cache.resourceGroups.Set(key, list.Value, c.cfg.ResourceTTL)
	return list.Value, nil
}

// ListNamespaces lists Service Bus namespaces within subscriptionID.
func (c *Client) ListNamespaces(ctx context.Context, subscriptionID string) ([]Namespace, error) {
	key := namespaceScopedKey(subscriptionID)
	if cached, ok := c.cache.namespaces.Get(key); ok {
		return cached, nil
	}

	u := fmt.Sprintf("%s/subscriptions/%s/providers/Microsoft.ServiceBus/namespaces?api-version=%s",
		c.baseURL, url.PathEscape(subscriptionID), apiVersionServiceBus)
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpError("list namespaces", resp)
	}

	var list listResponse[Namespace]
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errors.ServiceBus("failed to parse namespaces response", err)
	}

	c.cache.namespaces.Set(key, list.Value, c.cfg.ResourceTTL)
	return list.Value, nil
}

// ListQueues lists queue names within a namespace.
func (c *Client) ListQueues(ctx context.Context, subscriptionID, resourceGroup, namespace string) ([]string, error) {
	u := fmt.Sprintf("%s/subscriptions/%s/resourceGroups/%s/providers/Microsoft.ServiceBus/namespaces/%s/queues?api-version=%s",
		c.baseURL, url.PathEscape(subscriptionID), url.PathEscape(resourceGroup), url.PathEscape(namespace), apiVersionServiceBus)
	resp, err := c.get(ctx, u)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return nil, httpError("list queues", resp)
	}

	var list listResponse[json.RawMessage]
	if err := json.NewDecoder(resp.Body).Decode(&list); err != nil {
		return nil, errors.ServiceBus("failed to parse queues response", err)
	}

	names := make([]string, 0, len(list.Value))
	for _, raw := range list.Value {
		var entry struct {
			Name string `json:"name"`
		}
		if err := json.Unmarshal(raw, &entry); err == nil && entry.Name != "" {
			names = append(names, entry.Name)
		}
	}
	return names, nil
}

// GetNamespaceConnectionString fetches the primary connection string for a
// namespace via the RootManageSharedAccessKey listKeys endpoint.
func (c *Client) GetNamespaceConnectionString(ctx context.Context, subscriptionID, resourceGroup, namespace string) (string, error) {
	key := connectionStringKey(subscriptionID, resourceGroup, namespace)
	if cached, ok := c.cache.connectionString.Get(key); ok {
		return cached, nil
	}

	u := fmt.Sprintf("%s/subscriptions/%s/resourceGroups/%s/providers/Microsoft.ServiceBus/namespaces/%s/authorizationRules/RootManageSharedAccessKey/listKeys?api-version=%s",
		c.baseURL, url.PathEscape(subscriptionID), url.PathEscape(resourceGroup), url.PathEscape(namespace), apiVersionServiceBus)

	resp, err := c.postEmptyJSON(ctx, u)
	if err != nil {
		return "", err
	}
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", httpError("get namespace connection string", resp)
	}

	var keys accessKeys
	if err := json.NewDecoder(resp.Body).Decode(&keys); err != nil {
		return "", errors.ServiceBus("failed to parse access keys response", err)
	}

	c.cache.connectionString.Set(key, keys.PrimaryConnectionString, c.cfg.ResourceTTL)
	return keys.PrimaryConnectionString, nil
}

// GetQueueCounts returns (active, deadLetter) message counts for queueName,
// retrying transient failures with exponential backoff starting at 100ms.
// Configuration, authentication, and 404 errors fail immediately.
func (c *Client) GetQueueCounts(ctx context.Context, subscriptionID, resourceGroup, namespace, queueName string) (active, dlq int64, err error) {
	key := queueStatsKey(subscriptionID, resourceGroup, namespace, queueName)
	if cached, ok := c.cache.queueStats.Get(key); ok && cached.Fresh(time.Now()) {
		return derefOrZero(cached.ActiveCount), derefOrZero(cached.DLQCount), nil
	}

	retryCfg := resilience.RetryConfig{
		MaxAttempts:    4,
		InitialBackoff: 100 * time.Millisecond,
		MaxBackoff:     2 * time.Second,
		Multiplier:     2.0,
		RetryIf:        errors.Retryable,
	}

	var result [2]int64
	runErr := resilience.Retry(ctx, retryCfg, func(ctx context.Context) error {
		a, d, innerErr := c.getQueueCountsOnce(ctx, subscriptionID, resourceGroup, namespace, queueName)
		if innerErr != nil {
			return innerErr
		}
		result[0], result[1] = a, d
		return nil
	})
	if runErr != nil {
		return 0, 0, runErr
	}

	stats := model.QueueStatsCache{
		QueueName:   queueName,
		ActiveCount: &result[0],
		DLQCount:    &result[1],
		FetchedAt:   time.Now(),
		TTL:         c.cfg.QueueStatsTTL,
	}
	c.cache.queueStats.Set(key, stats, c.cfg.QueueStatsTTL)
	return result[0], result[1], nil
}

func (c *Client) getQueueCountsOnce(ctx context.Context, subscriptionID, resourceGroup, namespace, queueName string) (int64, int64, error) {
	u := fmt.Sprintf("%s/subscriptions/%s/resourceGroups/%s/providers/Microsoft.ServiceBus/namespaces/%s/queues/%s?api-version=%s",
		c.baseURL, url.PathEscape(subscriptionID), url.PathEscape(resourceGroup), url.PathEscape(namespace),
		url.PathEscape(queueName), apiVersionServiceBus)

	resp, err := c.get(ctx, u)
	if err != nil {
		return 0, 0, err
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return 0, 0, errors.ServiceBus(fmt.Sprintf("queue not found: %s", queueName), nil)
	}
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		body, _ := io.ReadAll(resp.Body)
		return 0, 0, &errors.AppError{
			Kind:      errors.KindServiceBus,
			Message:   fmt.Sprintf("queue counts request failed: %s - %s", resp.Status, string(body)),
			Retryable: true,
		}
	}

	var parsed queuePropertiesResponse
	if err := json.NewDecoder(resp.Body).Decode(&parsed); err != nil {
		return 0, 0, errors.ServiceBus("failed to parse queue properties response", err)
	}

	active := parsed.Properties.CountDetails.ActiveMessageCount
	dlq := parsed.Properties.CountDetails.DeadLetterMessageCount
	if active < 0 {
		active = 0
	}
	if dlq < 0 {
		dlq = 0
	}
	return active, dlq, nil
}

func derefOrZero(p *int64) int64 {
	if p == nil {
		return 0
	}
	return *p
}
