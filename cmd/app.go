package cmd

import (
	"context"
	"fmt"
	"time"

	cloudclient "github.com/AzielCF/az-connect/infrastructure/cloudapi"
	"github.com/AzielCF/az-connect/infrastructure/httpclient"
	"github.com/AzielCF/az-connect/infrastructure/pipeline"
	"github.com/AzielCF/az-connect/infrastructure/valkey"
	whapiclient "github.com/AzielCF/az-connect/infrastructure/whapi"
	coreconfig "github.com/AzielCF/az-connect/core/config"
	coreDB "github.com/AzielCF/az-connect/core/database"
	"github.com/AzielCF/az-connect/core/tracing"
	"github.com/AzielCF/az-connect/messaging/application"
	"github.com/AzielCF/az-connect/messaging/domain/channel"
	"github.com/AzielCF/az-connect/messaging/domain/conversation"
	"github.com/AzielCF/az-connect/messaging/domain/message"
	"github.com/AzielCF/az-connect/messaging/repository"
	"github.com/AzielCF/az-connect/messaging/strategy/cloudapi"
	"github.com/AzielCF/az-connect/messaging/strategy/whapi"
	"github.com/AzielCF/az-connect/pkg/crypto"
	"github.com/AzielCF/az-connect/pkg/msgworker"
	"github.com/AzielCF/az-connect/pkg/retry"
	"github.com/AzielCF/az-connect/pkg/utils"
	"github.com/AzielCF/az-connect/ui/websocket"
	"github.com/sirupsen/logrus"
	"gorm.io/gorm"
)

const recoveryTimeout = 2 * time.Minute

// engine holds every long-lived component of a running server.
type engine struct {
	cfg      *coreconfig.Config
	serverID string

	db      *gorm.DB
	vk      *valkey.Client
	tracing *tracing.Manager

	hub       *websocket.Hub
	queue     *msgworker.MessageQueue
	filter    *application.DedupFilter
	manager   *application.ChannelManager
	heartbeat *application.Heartbeat
	cloud     *cloudapi.Strategy
}

func buildEngine(ctx context.Context, cfg *coreconfig.Config) (*engine, error) {
	e := &engine{
		cfg:      cfg,
		serverID: utils.GetPersistentServerID(cfg.App.ServerID, cfg.Paths.Storages),
	}

	e.tracing = tracing.NewManager(cfg.Tracing, cfg.App)
	if err := e.tracing.Initialize(ctx); err != nil {
		logrus.WithError(err).Warn("[TRACING] Disabled, initialization failed")
	}

	db, err := coreDB.NewDatabase(cfg)
	if err != nil {
		return nil, err
	}
	e.db = db
	if err := repository.Migrate(ctx, db); err != nil {
		return nil, fmt.Errorf("migrate: %w", err)
	}

	if cfg.Database.ValkeyEnabled {
		vk, err := valkey.NewClient(valkey.Config{
			Address:   cfg.Database.ValkeyAddress,
			Password:  cfg.Database.ValkeyPassword,
			DB:        cfg.Database.ValkeyDB,
			KeyPrefix: cfg.Database.ValkeyKeyPrefix,
		})
		if err != nil {
			return nil, err
		}
		e.vk = vk
		logrus.Infof("[VALKEY] Connected to %s", cfg.Database.ValkeyAddress)
	}

	sealer, err := crypto.NewSealer(cfg.Database.CredentialsKey)
	if err != nil {
		return nil, err
	}
	if !sealer.Enabled() {
		logrus.Warn("[APP] CREDENTIALS_KEY not set, provider credentials are stored unencrypted")
	}
	channels := repository.NewChannelGormRepository(db).WithSealer(sealer)
	messages := repository.NewMessageGormRepository(db)
	conversations := repository.NewConversationGormRepository(db)

	var (
		dedupStore message.DedupStore
		locks      channel.LockSet
		bus        websocket.Bus
	)
	if e.vk != nil {
		dedupStore = repository.NewValkeyDedupStore(e.vk, cfg.Ingress.DedupTTL)
		locks = repository.NewValkeyLockSet(e.vk, recoveryTimeout)
		bus = e.vk
	} else {
		dedupStore = repository.NewMemoryDedupStore(cfg.Ingress.DedupTTL)
		locks = repository.NewMemoryLockSet()
	}

	e.hub = websocket.NewHub(bus, e.serverID)

	retryCfg := retry.DefaultConfig()
	retryCfg.MaxAttempts = cfg.Retry.MaxAttempts
	retryCfg.InitialDelay = cfg.Retry.InitialDelay
	retryCfg.MaxDelay = cfg.Retry.MaxDelay

	var forwarder conversation.Pipeline = pipeline.Nop{}
	if cfg.Pipeline.URL != "" {
		forwarder = pipeline.NewForwarder(pipeline.Config{
			URL:     cfg.Pipeline.URL,
			Secret:  cfg.Pipeline.Secret,
			Timeout: cfg.Pipeline.Timeout,
			Retry:   retryCfg,
		})
	}

	e.filter = application.NewDedupFilter(dedupStore, application.DedupConfig{
		TTL:           cfg.Ingress.DedupTTL,
		SweepInterval: cfg.Ingress.DedupSweep,
		MaxAge:        cfg.Ingress.MaxAge,
		MaxFutureSkew: cfg.Ingress.MaxFutureSkew,
	})
	e.queue = msgworker.NewMessageQueue(ctx)
	processor := application.NewMessageProcessor(e.filter, e.queue, messages, conversations, forwarder, e.hub, cfg.Ingress.HistoryLimit)

	gate := whapiclient.NewGate(httpclient.New(httpclient.Config{
		Provider: "whapi",
		BaseURL:  cfg.Whapi.GateURL,
		Timeout:  cfg.Whapi.HTTPTimeout,
		Retry:    retryCfg,
	}))
	partner := whapiclient.NewManager(httpclient.New(httpclient.Config{
		Provider: "whapi-manager",
		BaseURL:  cfg.Whapi.ManagerURL,
		Timeout:  cfg.Whapi.HTTPTimeout,
		Retry:    retryCfg,
	}), cfg.Whapi.PartnerToken, cfg.Whapi.ProjectID)

	qr := whapi.New(gate, partner, channels, messages, processor, e.hub, whapi.Config{
		QRAttempts:     cfg.Whapi.QRAttempts,
		QRDelay:        cfg.Whapi.QRDelay,
		ReauthDelay:    cfg.Whapi.ReauthDelay,
		WebhookBaseURL: cfg.Ingress.WebhookBaseURL,
		ExtendDays:     cfg.Whapi.ExtendDays,
	})

	graph := cloudclient.NewClient(httpclient.New(httpclient.Config{
		Provider: "cloud_api",
		BaseURL:  cfg.CloudAPI.BaseURL,
		Timeout:  cfg.CloudAPI.HTTPTimeout,
		Retry:    retryCfg,
	}), cfg.CloudAPI.Version)
	e.cloud = cloudapi.New(graph, channels, messages, processor, e.hub)

	registry := application.NewRegistry(qr, e.cloud)
	e.manager = application.NewChannelManager(channels, registry, e.hub)

	recovery := application.NewRecoveryOrchestrator(channels, registry, locks, e.hub)
	e.manager.SetRecovery(recovery)

	if cfg.Heartbeat.Enabled {
		e.heartbeat = application.NewHeartbeat(channels, registry, e.hub, application.HeartbeatConfig{
			Tick:               cfg.Heartbeat.Tick,
			Interval:           cfg.Heartbeat.Interval,
			CacheRefresh:       cfg.Heartbeat.CacheRefresh,
			MaxStrikes:         cfg.Heartbeat.MaxStrikes,
			VerificationWindow: cfg.Heartbeat.VerificationWindow,
			AdminSyncInterval:  cfg.Heartbeat.AdminSyncInterval,
			Concurrency:        cfg.Heartbeat.Concurrency,
		})
		e.heartbeat.OnSustainedFailure = func(channelID string) {
			go func() {
				rctx, cancel := context.WithTimeout(context.Background(), recoveryTimeout)
				defer cancel()
				if err := recovery.Recover(rctx, channelID); err != nil {
					logrus.WithError(err).WithField("channel_id", channelID).Warn("[RECOVERY] Automatic recovery failed")
				}
			}()
		}
		e.manager.SetHeartbeat(e.heartbeat)
	}

	logrus.WithField("server_id", e.serverID).Info("[APP] Engine ready")
	return e, nil
}

// start launches the background loops. They stop when ctx ends.
func (e *engine) start(ctx context.Context) {
	go e.hub.Run(ctx)
	e.filter.StartSweeper(ctx)
	if e.heartbeat != nil {
		e.heartbeat.Start(ctx)
	}
}

// stop drains in-flight work and releases connections.
func (e *engine) stop() {
	logrus.Info("[APP] Stopping application...")

	if e.heartbeat != nil {
		e.heartbeat.Stop()
	}
	e.filter.Stop()

	ctx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := e.queue.Wait(ctx); err != nil {
		logrus.WithError(err).Warn("[APP] Message queue not drained before shutdown")
	}

	if err := e.tracing.Shutdown(ctx); err != nil {
		logrus.WithError(err).Warn("[TRACING] Shutdown failed")
	}
	if e.vk != nil {
		e.vk.Close()
	}
	if sqlDB, err := e.db.DB(); err == nil {
		_ = sqlDB.Close()
	}

	logrus.Info("[APP] Application stopped cleanly.")
}
