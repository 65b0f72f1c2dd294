// Command coreserver boots every subsystem of the solar lead-to-
// revenue core as one process (spec §2: "the spec describes the core
// as one tightly-coupled system"). Grounded on
// services/distribution_service/main.go's config-load, wire, serve,
// signal.Notify-plus-context.WithTimeout shutdown sequence.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/gorilla/mux"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/redis/go-redis/v9"
	"github.com/shopspring/decimal"
	"go.mongodb.org/mongo-driver/mongo"
	mongooptions "go.mongodb.org/mongo-driver/mongo/options"
	"go.uber.org/zap"
	"gorm.io/driver/postgres"
	"gorm.io/gorm"

	iaroslogging "github.com/aurum-solar/core/common/libraries/go/iaros-core/logging"
	"github.com/aurum-solar/core/internal/capacity"
	"github.com/aurum-solar/core/internal/clock"
	"github.com/aurum-solar/core/internal/config"
	"github.com/aurum-solar/core/internal/dispatch"
	"github.com/aurum-solar/core/internal/dispatch/transport"
	"github.com/aurum-solar/core/internal/eventbus"
	"github.com/aurum-solar/core/internal/feedback"
	"github.com/aurum-solar/core/internal/ledger"
	"github.com/aurum-solar/core/internal/marketdata"
	"github.com/aurum-solar/core/internal/metrics"
	"github.com/aurum-solar/core/internal/model"
	"github.com/aurum-solar/core/internal/pipeline"
	"github.com/aurum-solar/core/internal/pricing"
	"github.com/aurum-solar/core/internal/routing"
	"github.com/aurum-solar/core/internal/scoring"
	"github.com/aurum-solar/core/internal/storage/snapshotstore"
	"github.com/aurum-solar/core/internal/tracker"
)

// Exit codes (spec §6).
const (
	exitOK                  = 0
	exitInvalidConfig       = 64
	exitDependencyUnavailable = 69
	exitTransientFailure    = 75
	exitInternal            = 70
)

func main() {
	os.Exit(run())
}

func run() int {
	log := iaroslogging.New("coreserver")
	defer log.Sync()

	cfg, err := config.Load(os.Getenv("CONFIG_FILE"))
	if err != nil {
		log.Error("invalid configuration", zap.Error(err))
		return exitInvalidConfig
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	db, err := gorm.Open(postgres.Open(postgresDSN(cfg.Postgres)), &gorm.Config{})
	if err != nil {
		log.Error("postgres connection failed", zap.Error(err))
		return exitDependencyUnavailable
	}
	if err := ledger.AutoMigrate(db); err != nil {
		log.Error("ledger auto-migration failed", zap.Error(err))
		return exitInternal
	}

	redisClient := redis.NewClient(&redis.Options{
		Addr:     cfg.Redis.Addr,
		Password: cfg.Redis.Password,
		DB:       cfg.Redis.DB,
	})
	if err := redisClient.Ping(ctx).Err(); err != nil {
		log.Error("redis connection failed", zap.Error(err))
		return exitDependencyUnavailable
	}
	defer redisClient.Close()

	mongoClient, err := mongo.Connect(ctx, mongooptions.Client().ApplyURI(cfg.Mongo.URI))
	if err != nil {
		log.Error("mongo connection failed", zap.Error(err))
		return exitDependencyUnavailable
	}
	defer mongoClient.Disconnect(context.Background())
	snapshots := snapshotstore.New(mongoClient.Database(cfg.Mongo.Database))
	if err := snapshots.EnsureIndexes(ctx); err != nil {
		log.Error("snapshot store index creation failed", zap.Error(err))
		return exitInternal
	}

	reg := prometheus.NewRegistry()
	m := metrics.New(reg)

	counter := capacity.NewMeteredCounter(capacity.NewRedisCounter(redisClient), m)

	market := marketdata.NewStore()
	market.Seed(marketdata.SampleNYCData())

	pricer := pricing.NewEngine(cfg.Pricing)

	scorer, err := scoring.NewEngine(cfg.Scoring.Weights, cfg.Scoring.TierThresholds, pricer)
	if err != nil {
		log.Error("scoring engine construction failed", zap.Error(err))
		return exitInvalidConfig
	}

	registry := routing.NewPlatformRegistry()
	for _, pc := range cfg.Platforms {
		registry.Upsert(platformFromConfig(pc))
	}
	router := routing.NewEngine(registry, counter, pricer, nil, nil, market)

	gormStore := ledger.NewGormStore(db)
	ldgr := ledger.NewLedger(gormStore, registry, cfg.Ledger.PaymentTermsDays, log.Logger)
	ldgr.SetMetrics(m)

	transports := map[model.DeliveryMethod]transport.Transport{
		model.DeliveryJSONAPI:  transport.NewJSONAPITransport("buyer-json-api", "aurum-solar-core", log.Logger),
		model.DeliveryWebhook:  transport.NewWebhookTransport("buyer-webhook", "aurum-solar-core", log.Logger),
		model.DeliveryCSVEmail: transport.NewCSVEmailTransport(loggingEmailEnqueuer{log: log.Logger}),
	}

	dispatchCfg := dispatch.Config{
		RetryBaseMS:      cfg.DispatchRetry.BaseMS,
		RetryMaxMS:       cfg.DispatchRetry.MaxMS,
		RetryMaxAttempts: cfg.DispatchRetry.MaxAttempts,
		QueueCapacity:    10_000,
		WorkerCount:      8,
	}
	dispatcher := dispatch.NewDispatcher(transports, counter, ldgr, registry, nil, clock.Real{}, dispatchCfg, log.Logger)
	dispatcher.SetMetrics(m)

	loop := feedback.NewLoop(ldgr, registry, cfg.FeedbackTargetConversionRate, log.Logger)
	trk := tracker.NewTracker(clock.Real{}, time.Duration(cfg.Session.IdleTTLSeconds)*time.Second, nil, log.Logger)
	leads := pipeline.NewMemoryLeadStore()

	pl := pipeline.New(leads, trk, scorer, market, router, dispatcher, loop, snapshots, requiredLeadFields, log.Logger)
	pl.SetMetrics(m)
	pl.SetClock(clock.Real{})
	pl.SetMaxRerouteAttempts(cfg.Routing.MaxDispatchAttemptsPerLead)
	dispatcher.SetReroute(pl)

	dispatchDone := make(chan struct{})
	go func() {
		defer close(dispatchDone)
		dispatcher.Run(ctx, registry.Get)
	}()

	consumerDone := make(chan struct{})
	go runEventConsumers(ctx, cfg, pl, log.Logger, consumerDone)

	maintenanceDone := make(chan struct{})
	go runMaintenance(ctx, cfg, pl, ldgr, loop, scorer, log.Logger, maintenanceDone)

	httpServer := newIngressServer(cfg, pl, log.Logger)
	adminServer := newAdminServer(cfg, reg)

	go func() {
		log.Info("inbound event server listening", zap.String("addr", httpServer.Addr))
		if err := httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("inbound event server failed", zap.Error(err))
		}
	}()
	go func() {
		log.Info("admin server listening", zap.String("addr", adminServer.Addr))
		if err := adminServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			log.Error("admin server failed", zap.Error(err))
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	log.Info("shutting down coreserver")

	cancel()

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	_ = httpServer.Shutdown(shutdownCtx)
	_ = adminServer.Shutdown(shutdownCtx)

	<-dispatchDone
	<-consumerDone
	<-maintenanceDone

	log.Info("coreserver stopped")
	return exitOK
}

// requiredLeadFields are the fields spec §4.5/§6 demand before a lead
// clears the routing gate.
var requiredLeadFields = []string{"email", "zip_code"}

func postgresDSN(c config.PostgresConfig) string {
	return fmt.Sprintf("host=%s port=%d user=%s password=%s dbname=%s sslmode=%s",
		c.Host, c.Port, c.User, c.Password, c.DBName, c.SSLMode)
}

func platformFromConfig(pc config.PlatformConfig) *model.Platform {
	tiers := make(map[model.Tier]bool, len(pc.AcceptedTiers))
	for _, t := range pc.AcceptedTiers {
		tiers[model.Tier(t)] = true
	}
	return &model.Platform{
		Code:             pc.Code,
		DeliveryMethod:   model.DeliveryMethod(pc.DeliveryMethod),
		Endpoint:         pc.Endpoint,
		Credential:       pc.Credential,
		Active:           true,
		IsAcceptingLeads: true,
		AcceptedTiers:    tiers,
		MinScore:         pc.MinScore,
		MaxScore:         pc.MaxScore,
		MaxDaily:         pc.MaxDaily,
		CommissionRate:   decimal.NewFromFloat(pc.CommissionRate),
		RequiredFields:   requiredLeadFields,
		SLAMinutes:       pc.SLAMinutes,
		HealthStatus:     model.HealthHealthy,
		AcceptanceRate:   pricing.DefaultAcceptanceRate,
	}
}

// loggingEmailEnqueuer is the CSV-email transport's EmailEnqueuer
// until an operator wires a real outbound mailer; logging the render
// keeps the transport exercised end to end without fabricating an
// email-sending dependency not present anywhere in the retrieved pack.
type loggingEmailEnqueuer struct {
	log *zap.Logger
}

func (e loggingEmailEnqueuer) Enqueue(ctx context.Context, platformCode string, csvBody []byte) error {
	e.log.Info("csv lead export enqueued", zap.String("platform", platformCode), zap.Int("bytes", len(csvBody)))
	return nil
}

func newIngressServer(cfg *config.Config, pl *pipeline.Pipeline, log *zap.Logger) *http.Server {
	gin.SetMode(gin.ReleaseMode)
	r := gin.New()
	r.Use(gin.Recovery())

	r.POST("/v1/events/conversation-turn", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		env, err := eventbus.DecodeTurn(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		sessionID, err := env.ParseSessionID()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := pl.IngestTurn(c.Request.Context(), sessionID, env.Slots(), env.Meta(), env.Timestamp); err != nil {
			log.Error("ingest turn failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusAccepted)
	})

	r.POST("/v1/events/buyer-feedback", func(c *gin.Context) {
		body, err := c.GetRawData()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		env, err := eventbus.DecodeFeedback(body)
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		fb, tier, err := env.ToModel()
		if err != nil {
			c.JSON(http.StatusBadRequest, gin.H{"error": err.Error()})
			return
		}
		if err := pl.ConsumeFeedback(c.Request.Context(), fb, tier, env.ReceivedAt); err != nil {
			log.Error("consume feedback failed", zap.Error(err))
			c.JSON(http.StatusInternalServerError, gin.H{"error": err.Error()})
			return
		}
		c.Status(http.StatusAccepted)
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

func newAdminServer(cfg *config.Config, reg *prometheus.Registry) *http.Server {
	r := mux.NewRouter()
	r.Handle("/metrics", promhttp.HandlerFor(reg, promhttp.HandlerOpts{}))
	r.HandleFunc("/healthz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ok"))
	})
	r.HandleFunc("/readyz", func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusOK)
		_, _ = w.Write([]byte("ready"))
	})

	return &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.AdminPort),
		Handler:      r,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 10 * time.Second,
	}
}

// runEventConsumers drains the two Kafka topics into the pipeline
// until ctx is cancelled (spec §2 event bus data flow).
func runEventConsumers(ctx context.Context, cfg *config.Config, pl *pipeline.Pipeline, log *zap.Logger, done chan<- struct{}) {
	defer close(done)

	turnsConsumer, err := eventbus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, eventbus.TopicConversationTurns, log)
	if err != nil {
		log.Error("conversation-turns consumer construction failed", zap.Error(err))
		return
	}
	defer turnsConsumer.Close()

	feedbackConsumer, err := eventbus.NewConsumer(cfg.Kafka.Brokers, cfg.Kafka.ConsumerGroup, eventbus.TopicBuyerFeedback, log)
	if err != nil {
		log.Error("buyer-feedback consumer construction failed", zap.Error(err))
		return
	}
	defer feedbackConsumer.Close()

	turnsDone := make(chan struct{})
	go func() {
		defer close(turnsDone)
		_ = turnsConsumer.Run(ctx, func(ctx context.Context, key string, value []byte) error {
			env, err := eventbus.DecodeTurn(value)
			if err != nil {
				return err
			}
			sessionID, err := env.ParseSessionID()
			if err != nil {
				return err
			}
			return pl.IngestTurn(ctx, sessionID, env.Slots(), env.Meta(), env.Timestamp)
		})
	}()

	feedbackDone := make(chan struct{})
	go func() {
		defer close(feedbackDone)
		_ = feedbackConsumer.Run(ctx, func(ctx context.Context, key string, value []byte) error {
			env, err := eventbus.DecodeFeedback(value)
			if err != nil {
				return err
			}
			fb, tier, err := env.ToModel()
			if err != nil {
				return err
			}
			return pl.ConsumeFeedback(ctx, fb, tier, env.ReceivedAt)
		})
	}()

	<-turnsDone
	<-feedbackDone
}

// runMaintenance drives the non-request-driven sweeps on their own
// tickers: idle-session expiry and ledger aging run frequently, daily
// threshold recalibration runs once a day (spec §4.2, §4.7, §4.8).
func runMaintenance(ctx context.Context, cfg *config.Config, pl *pipeline.Pipeline, ldgr *ledger.Ledger, loop *feedback.Loop, scorer *scoring.Engine, log *zap.Logger, done chan<- struct{}) {
	defer close(done)

	sweepTicker := time.NewTicker(time.Minute)
	defer sweepTicker.Stop()
	recalibrateTicker := time.NewTicker(24 * time.Hour)
	defer recalibrateTicker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-sweepTicker.C:
			pl.RunMaintenance(ctx, ldgr, clock.Real{}.Now())
		case <-recalibrateTicker.C:
			next, audit := loop.Recalibrate(scorer.Thresholds(), clock.Real{}.Now())
			scorer.UpdateThresholds(next)
			for _, a := range audit {
				log.Info("tier threshold recalibrated",
					zap.String("tier", string(a.Tier)), zap.Int("old", a.OldValue),
					zap.Int("new", a.NewValue), zap.String("reason", a.Reason))
			}
		}
	}
}
