package admin_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/sb-console/engine/pkg/admin"
	"github.com/sb-console/engine/pkg/errors"
	"github.com/sb-console/engine/pkg/httpclient"
	"github.com/sb-console/engine/pkg/model"
)

type staticTokens struct{}

func (staticTokens) Token(scope model.Scope) model.AuthToken {
	return model.AuthToken{Token: "tok", TokenType: "Bearer", ExpiresAt: time.Now().Add(time.Hour)}
}

func newClient(t *testing.T, handler http.Handler) (*admin.Client, *httptest.Server) {
	t.Helper()
	server := httptest.NewServer(handler)
	cfg := httpclient.DefaultConfig()
	cfg.CircuitBreakerEnabled = false
	cfg.Retries = 0
	httpC := httpclient.New("admin-test", cfg)
	cache := admin.NewResourceCache(admin.DefaultCacheConfig())
	return admin.NewClient(httpC, staticTokens{}, cache, admin.DefaultCacheConfig()), server
}

func TestListSubscriptionsCaches(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/subscriptions", func(w http.ResponseWriter, r *http.Request) {
		calls++
		_ = json.NewEncoder(w).Encode(map[string]any{
			"value": []map[string]string{{"id": "/subscriptions/1", "subscriptionId": "1", "displayName": "Sub One", "state": "Enabled"}},
		})
	})
	client, server := newClient(t, mux)
	defer server.Close()

	client.SetBaseURL(server.URL)

	subs, err := client.ListSubscriptions(context.Background())
	require.NoError(t, err)
	require.Len(t, subs, 1)
	assert.Equal(t, "Sub One", subs[0].DisplayName)

	_, err = client.ListSubscriptions(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, calls, "second call should be served from cache")
}

func TestGetQueueCountsClampsNegatives(t *testing.T) {
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		_ = json.NewEncoder(w).Encode(map[string]any{
			"properties": map[string]any{
				"countDetails": map[string]any{
					"activeMessageCount":     -5,
					"deadLetterMessageCount": 3,
				},
			},
		})
	})
	client, server := newClient(t, mux)
	defer server.Close()
	client.SetBaseURL(server.URL)

	active, dlq, err := client.GetQueueCounts(context.Background(), "sub", "rg", "ns", "orders")
	require.NoError(t, err)
	assert.Equal(t, int64(0), active)
	assert.Equal(t, int64(3), dlq)
}

func TestGetQueueCountsNoRetryOn404(t *testing.T) {
	calls := 0
	mux := http.NewServeMux()
	mux.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusNotFound)
	})
	client, server := newClient(t, mux)
	defer server.Close()
	client.SetBaseURL(server.URL)

	_, _, err := client.GetQueueCounts(context.Background(), "sub", "rg", "ns", "missing")
	require.Error(t, err)
	assert.Equal(t, errors.KindServiceBus, errors.KindOf(err))
	assert.Equal(t, 1, calls, "404 must not be retried")
	assert.Contains(t, strings.ToLower(err.Error()), "not found")
}
