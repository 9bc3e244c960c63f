package handler

import (
	"context"
	"io"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/team-telnyx/demo-conference-node/internal/adapters/telnyx"
	"github.com/team-telnyx/demo-conference-node/internal/config"
	"github.com/team-telnyx/demo-conference-node/internal/core/event"
	"github.com/team-telnyx/demo-conference-node/internal/repository"
	"github.com/team-telnyx/demo-conference-node/internal/services/conference"
	"github.com/team-telnyx/demo-conference-node/internal/services/lifecycle"
	"github.com/team-telnyx/demo-conference-node/pkg/logger"
	"github.com/team-telnyx/demo-conference-node/pkg/pubsub"
	"github.com/team-telnyx/demo-conference-node/pkg/redis"
	"go.uber.org/zap"
)

// HandlerManager manages all handlers and their initialization
type HandlerManager struct {
	config     *config.ConferenceConfig
	store      *conference.Store
	bus        event.EventBus
	dispatcher *conference.Dispatcher
	admin      *conference.AdminService
	journal    repository.ConferenceJournalRepository

	// Optional lifecycle sinks, closed after the bus drains
	closers []io.Closer
}

// NewHandlerManager creates and initializes all handlers and services
func NewHandlerManager(ctx context.Context, cfg *config.ConferenceConfig) (*HandlerManager, error) {
	bus := event.NewEventBus()
	bus.Use(event.RecoveryMiddleware)
	bus.Use(event.LoggingMiddleware)

	client := telnyx.NewClient(telnyx.ClientConfig{
		Version:   telnyx.APIVersion(cfg.Telnyx.APIVersion),
		BaseURL:   cfg.Telnyx.BaseURL,
		APIKey:    cfg.Telnyx.APIKeyV1,
		APISecret: cfg.Telnyx.APISecretV1,
		APIToken:  cfg.Telnyx.APIAuthV2,
		Voice:     cfg.IVR.Voice,
		Language:  cfg.IVR.Language,
		Timeout:   cfg.Telnyx.Timeout,
		RateLimit: cfg.Telnyx.RateLimit,
		Burst:     cfg.Telnyx.Burst,
	})

	store := conference.NewStore()
	dispatcher := conference.NewDispatcher(store, client, bus, conference.DispatcherOptions{
		ConferenceName: cfg.IVR.ConferenceName,
		WaitingURL:     cfg.Telnyx.WaitingURL,
		Shards:         cfg.Worker.Shards,
		QueueSize:      cfg.Worker.QueueSize,
	})
	admin := conference.NewAdminService(store, client, bus, conference.AdminOptions{
		WaitingURL:    cfg.Telnyx.WaitingURL,
		DialFrom:      cfg.IVR.DialFrom,
		ConnectionID:  cfg.Telnyx.ConnectionID,
		DefaultRegion: cfg.IVR.DefaultRegion,
	})

	hm := &HandlerManager{
		config:     cfg,
		store:      store,
		bus:        bus,
		dispatcher: dispatcher,
		admin:      admin,
	}
	hm.initSinks(ctx)

	logger.Base().Info("conference service initialized",
		zap.String("app", cfg.AppName),
		zap.String("api_version", cfg.Telnyx.APIVersion),
		zap.Int("workers", cfg.Worker.Shards),
		zap.Int("sinks", len(hm.closers)),
	)
	return hm, nil
}

// initSinks wires the optional lifecycle sinks. A sink that fails to start is
// logged and skipped.
func (hm *HandlerManager) initSinks(ctx context.Context) {
	cfg := hm.config

	if cfg.Redis.Enabled {
		redisSvc, err := redis.NewRedisService(&redis.RedisConfig{
			Host:     cfg.Redis.Host,
			Port:     cfg.Redis.Port,
			Password: cfg.Redis.Password,
			DB:       cfg.Redis.DB,
		})
		if err != nil {
			logger.Base().Warn("failed to initialize redis, running without snapshot mirror", zap.Error(err))
		} else if err := lifecycle.NewRedisMirror(redisSvc, hm.store, cfg.AppName, cfg.Redis.Channel).Register(hm.bus); err != nil {
			logger.Base().Warn("failed to register redis mirror", zap.Error(err))
			redisSvc.Close()
		} else {
			hm.closers = append(hm.closers, redisSvc)
			logger.Base().Info("redis snapshot mirror enabled", zap.String("channel", cfg.Redis.Channel))
		}
	}

	if cfg.PubSub.Enabled() {
		pubsubSvc, err := pubsub.NewPubSubService(ctx, &pubsub.PubSubConfig{
			ProjectID: cfg.PubSub.ProjectID,
			TopicName: cfg.PubSub.TopicName,
			PubID:     cfg.PubSub.PubID,
		})
		if err != nil {
			logger.Base().Warn("failed to initialize pubsub, running without lifecycle export", zap.Error(err))
		} else if err := lifecycle.NewPubSubExporter(pubsubSvc, cfg.AppName).Register(hm.bus); err != nil {
			logger.Base().Warn("failed to register pubsub exporter", zap.Error(err))
			pubsubSvc.Close()
		} else {
			hm.closers = append(hm.closers, pubsubSvc)
			logger.Base().Info("pubsub lifecycle export enabled", zap.String("topic", cfg.PubSub.TopicName))
		}
	}

	if cfg.Database.Enabled {
		repoManager, err := repository.NewRepositoryManager(ctx, cfg.Database)
		if err != nil {
			logger.Base().Warn("failed to connect to database, running without journal", zap.Error(err))
		} else if err := lifecycle.NewJournal(repoManager).Register(hm.bus); err != nil {
			logger.Base().Warn("failed to register conference journal", zap.Error(err))
			repoManager.Close()
		} else {
			hm.journal = repoManager.ConferenceJournal()
			hm.closers = append(hm.closers, repoManager)
			logger.Base().Info("conference journal enabled", zap.String("db", cfg.Database.Name))
		}
	}
}

// SetupAllRoutes sets up all routes with middleware
func (hm *HandlerManager) SetupAllRoutes(router *mux.Router) {
	router.Use(CORSMiddleware)
	router.Use(GlobalLoggingMiddleware)

	router.HandleFunc("/health", hm.handleHealth).Methods(http.MethodGet)

	NewWebhookHandler(hm.dispatcher, telnyx.APIVersion(hm.config.Telnyx.APIVersion)).
		SetupWebhookRoutes(router, hm.config.AppName)

	adminRouter := router.NewRoute().Subrouter()
	adminRouter.Use(APIKeyMiddleware(hm.config.AdminSecretKey))
	NewAdminHandler(hm.admin).SetupAdminRoutes(adminRouter, hm.config.AppName)
	if hm.journal != nil {
		NewJournalHandler(hm.journal).SetupJournalRoutes(adminRouter, hm.config.AppName)
	}

	if hm.config.AdminSecretKey != "" {
		logger.Base().Info("admin routes protected with api key middleware")
	} else {
		logger.Base().Info("admin routes registered without api key (development mode)")
	}
	logger.Base().Info("all application routes registered", zap.String("app", hm.config.AppName))
}

type healthResponse struct {
	Status      string           `json:"status"`
	App         string           `json:"app"`
	Conference  string           `json:"conference_id"`
	Events      int64            `json:"events_published"`
	BusHandlers int              `json:"bus_handlers"`
	Time        time.Time        `json:"time"`
	ByType      map[string]int64 `json:"events_by_type,omitempty"`
}

func (hm *HandlerManager) handleHealth(w http.ResponseWriter, r *http.Request) {
	stats := hm.bus.GetStats()
	writeJSON(w, http.StatusOK, healthResponse{
		Status:      "ok",
		App:         hm.config.AppName,
		Conference:  hm.store.ConferenceID(),
		Events:      stats.TotalEvents,
		BusHandlers: stats.ActiveHandlers,
		Time:        time.Now().UTC(),
		ByType:      stats.EventsByType,
	})
}

// Shutdown drains the dispatcher, then the bus, then closes the sinks.
func (hm *HandlerManager) Shutdown(ctx context.Context) error {
	err := hm.dispatcher.Close(ctx)
	if err != nil {
		logger.Base().Warn("dispatcher did not drain before deadline", zap.Error(err))
	}

	if busErr := hm.bus.Close(); busErr != nil {
		logger.Base().Warn("failed to close event bus", zap.Error(busErr))
	}

	for _, c := range hm.closers {
		if cerr := c.Close(); cerr != nil {
			logger.Base().Warn("failed to close lifecycle sink", zap.Error(cerr))
		}
	}
	return err
}
