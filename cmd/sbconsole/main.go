// Command sbconsole wires together the operator console's session state and
// hands it to the UI dispatcher. Everything below the dispatcher — token
// refresh, resource caching, consumer/producer pooling, bulk operations,
// pagination — is built here once at startup and shared for the life of the
// process; the dispatcher itself only ever talks to the mediator.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/sb-console/engine/pkg/admin"
	"github.com/sb-console/engine/pkg/authstate"
	"github.com/sb-console/engine/pkg/broker"
	"github.com/sb-console/engine/pkg/broker/azsb"
	"github.com/sb-console/engine/pkg/bulk"
	"github.com/sb-console/engine/pkg/config"
	"github.com/sb-console/engine/pkg/httpclient"
	"github.com/sb-console/engine/pkg/logger"
	"github.com/sb-console/engine/pkg/mediator"
	"github.com/sb-console/engine/pkg/model"
	"github.com/sb-console/engine/pkg/oauth"
	"github.com/sb-console/engine/pkg/pagination"
)

const (
	dataPlaneScope  = "https://servicebus.azure.net/.default"
	adminPlaneScope = "https://management.azure.com/.default"
)

func main() {
	envPath := flag.String("env", ".env", "path to the credential and resource selection file")
	tomlPath := flag.String("config", "config.toml", "path to the persisted operator settings file")
	pageSize := flag.Int("page-size", 100, "initial message list page size (100-1000, step 100)")
	flag.Parse()

	if !config.IsValidPageSize(*pageSize) {
		fmt.Fprintf(os.Stderr, "invalid -page-size %d: must be one of %v\n", *pageSize, config.ValidPageSizes())
		os.Exit(1)
	}

	var logCfg logger.Config
	if err := config.Load(&logCfg); err != nil {
		fmt.Fprintln(os.Stderr, "logger configuration:", err)
		os.Exit(1)
	}
	log := logger.Init(logCfg)

	app, err := bootstrap(*envPath, *tomlPath, *pageSize)
	if err != nil {
		log.Error("failed to start console session", "error", err)
		os.Exit(1)
	}
	defer app.Close()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	app.authState.StartRefresh(ctx)

	log.Info("console session ready",
		"namespace", app.nsContext.Namespace,
		"page_size", *pageSize,
	)

	runDispatcher(ctx, app)
}

// session bundles every long-lived component the UI dispatcher drives
// through the mediator. Nothing outside this file reaches into its fields;
// the mediator and pagination engine are the only surfaces the dispatcher
// should ever call.
type session struct {
	authState  *authstate.State
	brokerConn broker.Client
	mediator   *mediator.Mediator
	pagination *pagination.Engine
	nsContext  mediator.NamespaceContext
}

func (s *session) Close() {
	ctx := context.Background()
	_ = s.mediator.Execute(ctx, mediator.Command{Kind: mediator.CmdDisposeAllResources})
	_ = s.brokerConn.Close(ctx)
	s.authState.Close()
}

// bootstrap loads persisted configuration and constructs a session. It is
// the composition root: every package that owns live resources (auth state,
// broker connections, caches) is instantiated exactly once, here.
func bootstrap(envPath, tomlPath string, pageSize int) (*session, error) {
	envFile, err := config.LoadEnvFile(envPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", envPath, err)
	}

	var runtimeCfg config.RuntimeConfig
	if err := config.Load(&runtimeCfg); err != nil {
		return nil, fmt.Errorf("loading runtime configuration: %w", err)
	}

	authMethod, ok, err := config.LoadAuthMethod(tomlPath)
	if err != nil {
		return nil, fmt.Errorf("loading %s: %w", tomlPath, err)
	}
	if !ok {
		authMethod = config.AuthMethodConnectionString
	}

	nsContext := mediator.NamespaceContext{
		SubscriptionID: envFile.SubscriptionID,
		ResourceGroup:  envFile.ResourceGroup,
		Namespace:      envFile.Namespace,
	}

	authState, err := buildAuthState(authMethod, envFile, authstate.Config{
		MaxRetries:     runtimeCfg.AuthMaxRefreshRetries,
		InitialBackoff: authstate.DefaultConfig().InitialBackoff,
		MaxBackoff:     authstate.DefaultConfig().MaxBackoff,
	}, runtimeCfg.AuthTokenSafetyMargin)
	if err != nil {
		return nil, err
	}

	brokerConn, err := buildBrokerClient(authMethod, envFile, authState)
	if err != nil {
		return nil, err
	}

	producerCfg := broker.DefaultProducerManagerConfig()
	producerCfg.BulkChunkSize = runtimeCfg.BulkChunkSize
	producerCfg.PacingThreshold = runtimeCfg.BulkPacingThreshold

	consumers := broker.NewConsumerManager(brokerConn)
	producers := broker.NewProducerManager(brokerConn, producerCfg)
	bulkEngine := bulk.New(consumers, producers, bulk.Config{
		MaxBatchSize:          runtimeCfg.BulkChunkSize,
		OperationTimeout:      runtimeCfg.OperationTimeout,
		OrderWarningThreshold: runtimeCfg.OrderWarningThreshold,
	})

	cache := admin.NewResourceCache(admin.CacheConfig{
		ResourceTTL:   runtimeCfg.ResourceCacheTTL,
		QueueStatsTTL: runtimeCfg.QueueStatsTTL,
		MaxEntries:    runtimeCfg.ResourceCacheMaxEntry,
	})

	var adminClient *admin.Client
	if authMethod != config.AuthMethodConnectionString && runtimeCfg.QueueStatsUseMgmtAPI {
		adminHTTP := httpclient.New("admin-plane", httpclient.DefaultConfig())
		adminClient = admin.NewClient(adminHTTP, authState, cache, admin.CacheConfig{
			ResourceTTL:   runtimeCfg.ResourceCacheTTL,
			QueueStatsTTL: runtimeCfg.QueueStatsTTL,
			MaxEntries:    runtimeCfg.ResourceCacheMaxEntry,
		})
	}

	med := mediator.New(consumers, producers, bulkEngine, cache, adminClient, nsContext)

	window := pagination.New(pageSize)
	pager := pagination.NewEngine(consumers, window)

	if envFile.QueueName != "" {
		if err := consumers.SwitchQueue(context.Background(), model.MainQueue(envFile.QueueName)); err != nil {
			return nil, fmt.Errorf("switching to configured queue %q: %w", envFile.QueueName, err)
		}
	}

	return &session{
		authState:  authState,
		brokerConn: brokerConn,
		mediator:   med,
		pagination: pager,
		nsContext:  nsContext,
	}, nil
}

// buildAuthState constructs the data-plane and admin-plane providers
// matching the configured auth method. A connection-string session needs
// neither plane's token: the broker authenticates with the string directly
// and the admin client is left unwired, so both providers stay nil.
func buildAuthState(method config.AuthMethod, envFile *config.EnvFile, cfg authstate.Config, safetyMargin time.Duration) (*authstate.State, error) {
	onFail := func(scope model.Scope, err error) {
		logger.L().Error("token refresh exhausted its retries", "scope", scope, "error", err)
	}

	if method == config.AuthMethodConnectionString {
		return authstate.New(cfg, nil, nil, onFail), nil
	}

	oauthHTTP := httpclient.New("oauth", httpclient.DefaultConfig())

	baseCfg := oauth.Config{
		TenantID:     envFile.TenantID,
		ClientID:     envFile.ClientID,
		ClientSecret: envFile.ClientSecret,
		SafetyMargin: safetyMargin,
	}

	dataPlaneCfg := baseCfg
	dataPlaneCfg.Scope = dataPlaneScope
	adminPlaneCfg := baseCfg
	adminPlaneCfg.Scope = adminPlaneScope

	var dataPlaneProvider, adminPlaneProvider oauth.Provider
	switch method {
	case config.AuthMethodDeviceCode:
		dataPlaneCfg.Method = oauth.MethodDeviceCode
		adminPlaneCfg.Method = oauth.MethodDeviceCode
		onCode := func(info oauth.DeviceCodeInfo) {
			fmt.Printf("To sign in, visit %s and enter code %s\n", info.VerificationURI, info.UserCode)
		}
		dataPlaneProvider = oauth.NewDeviceCodeProvider(dataPlaneCfg, oauthHTTP, onCode)
		adminPlaneProvider = oauth.NewDeviceCodeProvider(adminPlaneCfg, oauthHTTP, onCode)
	case config.AuthMethodClientSecret:
		dataPlaneCfg.Method = oauth.MethodClientCredential
		adminPlaneCfg.Method = oauth.MethodClientCredential
		dataPlaneProvider = oauth.NewClientCredentialsProvider(dataPlaneCfg, oauthHTTP)
		adminPlaneProvider = oauth.NewClientCredentialsProvider(adminPlaneCfg, oauthHTTP)
	default:
		return nil, fmt.Errorf("unrecognized auth method %q", method)
	}

	return authstate.New(cfg, dataPlaneProvider, adminPlaneProvider, onFail), nil
}

func buildBrokerClient(method config.AuthMethod, envFile *config.EnvFile, authState *authstate.State) (broker.Client, error) {
	if method == config.AuthMethodConnectionString {
		return azsb.New(azsb.Config{ConnectionString: envFile.ConnectionString})
	}
	return azsb.New(azsb.Config{Namespace: envFile.Namespace, Credential: authState})
}

// runDispatcher is the boundary with the UI layer: the console's visual
// presentation and input handling live outside this module's scope, so
// this only keeps the process alive and routes its own shutdown signal
// through to resource cleanup. A real dispatcher replaces this loop with
// whatever render/event-poll cycle the UI toolkit requires, driving the
// session exclusively through app.mediator.Execute and app.pagination.
func runDispatcher(ctx context.Context, app *session) {
	<-ctx.Done()
	logger.L().Info("shutting down console session")
}
