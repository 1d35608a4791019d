package main

import (
	"context"
	"errors"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/KirkDiggler/rpg-toolkit/dice"
	"github.com/gin-gonic/gin"
	apirest "github.com/kasuganosora/questengine/api/rest"
	"github.com/kasuganosora/questengine/api/sse"
	"github.com/kasuganosora/questengine/audit"
	"github.com/kasuganosora/questengine/cache"
	"github.com/kasuganosora/questengine/config"
	dbadapter "github.com/kasuganosora/questengine/db"
	"github.com/kasuganosora/questengine/game/quest"
	mw "github.com/kasuganosora/questengine/middleware"
	"github.com/kasuganosora/questengine/model"
	"github.com/kasuganosora/questengine/scheduler"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"
	"golang.org/x/time/rate"
)

func main() {
	cfgPath := "config/config.yaml"
	if len(os.Args) > 1 {
		cfgPath = os.Args[1]
	}

	cfg, err := config.Load(cfgPath)
	if err != nil {
		log.Fatalf("config: %v", err)
	}

	var logger *zap.Logger
	var logErr error
	if cfg.Server.Debug {
		logger, logErr = zap.NewDevelopment()
	} else {
		logger, logErr = zap.NewProduction()
	}
	if logErr != nil {
		log.Fatalf("logger: %v", logErr)
	}
	defer logger.Sync()

	db, err := dbadapter.Open(cfg.Database)
	if err != nil {
		log.Fatalf("db: %v", err)
	}
	if err := model.AutoMigrate(db); err != nil {
		log.Fatalf("db migrate: %v", err)
	}
	logger.Info("DB initialized", zap.String("mode", cfg.Database.Mode))

	auditSvc := audit.New(db, logger)
	defer auditSvc.Stop(context.Background())

	cacheConfig := cache.CacheConfig{
		RedisAddr:       cfg.Cache.RedisAddr,
		RedisPassword:   cfg.Cache.RedisPassword,
		RedisDB:         cfg.Cache.RedisDB,
		LocalGCInterval: cfg.Cache.LocalGCInterval,
		LocalPubSubBuf:  cfg.Cache.LocalPubSubBuf,
	}
	c, err := cache.NewCache(cacheConfig)
	if err != nil {
		log.Fatalf("cache: %v", err)
	}
	pubsub, err := cache.NewPubSub(cacheConfig)
	if err != nil {
		log.Fatalf("pubsub: %v", err)
	}
	logger.Info("Cache initialized", zap.Bool("redis", cfg.Cache.RedisAddr != ""))

	store, err := quest.NewTemplateStore(db, cfg.Quest.TemplateCacheSize, logger)
	if err != nil {
		log.Fatalf("template store: %v", err)
	}

	sched := scheduler.New(logger)
	defer sched.Stop()

	var reload func(ctx context.Context) error
	if cfg.Quest.ContentDir != "" {
		reloader := &scheduler.ContentReloader{
			Dir:    cfg.Quest.ContentDir,
			Store:  store,
			Logger: logger,
		}
		reload = reloader.Run
		if err := reloader.Run(context.Background()); err != nil {
			logger.Warn("quest content load failed; serving stored templates", zap.Error(err))
		}
		if cfg.Quest.ReloadInterval > 0 {
			sched.AddTicker("quest_content_reload", cfg.Quest.ReloadInterval, reloader.Run)
		}
	}

	// Templates deactivated directly in the database are only noticed once
	// their cache entry is gone.
	sched.AddTicker("template_cache_purge", time.Hour, func(context.Context) error {
		store.Purge()
		return nil
	})

	var locker quest.Locker
	switch cfg.Quest.LockMode {
	case "cache":
		locker = quest.NewCacheLocker(c, cfg.Quest.LockTTL)
	case "", "local":
		locker = quest.NewLocalLocker()
	default:
		log.Fatalf("quest.lock_mode: unknown mode %q", cfg.Quest.LockMode)
	}

	var rolls quest.RollerSource
	switch cfg.Quest.RollMode {
	case "", "dice":
		rolls = quest.DiceRolls{Roller: dice.DefaultRoller}
	case "seeded":
		rolls = quest.SeededRolls{}
	default:
		log.Fatalf("quest.roll_mode: unknown mode %q", cfg.Quest.RollMode)
	}

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))

	attrs := quest.NewAttributeStore(db)
	questSvc := quest.NewService(db, store, logger,
		quest.WithCharacters(attrs),
		quest.WithLocker(locker),
		quest.WithEvents(quest.NewPubSubPublisher(pubsub, cfg.Quest.EventChannel)),
		quest.WithAuditor(auditSvc),
		quest.WithMetrics(quest.NewMetrics(reg)),
		quest.WithRollerSource(rolls),
	)

	if !cfg.Server.Debug {
		gin.SetMode(gin.ReleaseMode)
	}

	r := gin.New()
	r.Use(mw.TraceID(), mw.Logger(logger), mw.Recovery(logger))

	r.GET("/health", func(ctx *gin.Context) {
		sqlDB, err := db.DB()
		if err == nil {
			err = sqlDB.PingContext(ctx.Request.Context())
		}
		if err != nil {
			ctx.JSON(http.StatusServiceUnavailable, gin.H{"status": "db unavailable"})
			return
		}
		ctx.JSON(http.StatusOK, gin.H{"status": "ok"})
	})
	r.GET("/metrics", gin.WrapH(promhttp.HandlerFor(reg, promhttp.HandlerOpts{})))

	api := r.Group("/api")
	api.Use(mw.RateLimit(rate.Limit(cfg.Security.RateLimitRPS), cfg.Security.RateLimitBurst))
	{
		apirest.NewQuestHandler(questSvc, logger).Register(api)
		apirest.NewAdminHandler(store, attrs, auditSvc, sched, reload, logger).Register(api)

		// ---- SSE ----
		sseH := sse.NewHandler(pubsub, cfg.Quest.EventChannel, logger)
		api.GET("/characters/:id/quest-events", sseH.ServeQuestEvents)
	}

	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{Addr: addr, Handler: r, ReadHeaderTimeout: 10 * time.Second}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()
	go func() {
		logger.Info("Server listening", zap.String("addr", addr))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("server", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Warn("server shutdown", zap.Error(err))
	}
}
