package main

import (
	"context"
	"errors"
	"log"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/labstack/echo/v4"
	"github.com/labstack/echo/v4/middleware"
	"github.com/redis/go-redis/v9"
	"github.com/robfig/cron/v3"

	"github.com/millomarket/marketplace/internal/config"
	"github.com/millomarket/marketplace/internal/earnings"
	"github.com/millomarket/marketplace/internal/handlers"
	"github.com/millomarket/marketplace/internal/hash"
	"github.com/millomarket/marketplace/internal/logging"
	"github.com/millomarket/marketplace/internal/middleware/loggingmw"
	"github.com/millomarket/marketplace/internal/models"
	"github.com/millomarket/marketplace/internal/notify"
	"github.com/millomarket/marketplace/internal/search"
	"github.com/millomarket/marketplace/internal/settlement"
	"github.com/millomarket/marketplace/internal/store"
	"github.com/millomarket/marketplace/internal/subscription"
	httpserver "github.com/millomarket/marketplace/internal/transport/http"
)

func main() {
	configuration, err := config.LoadConfig()
	if err != nil {
		log.Fatal(err)
	}
	if configuration.JWT_SECRET == "" {
		log.Fatal("JWT_SECRET is required")
	}
	jwtSecret := []byte(configuration.JWT_SECRET)

	logger := logging.New(configuration.LOG_LEVEL)

	db, err := store.Open(configuration.DB_FILE, models.Schema())
	if err != nil {
		log.Fatalf("store init error: %v", err)
	}
	if err := seedAdmin(db, configuration); err != nil {
		log.Fatalf("admin seed error: %v", err)
	}

	var notifier notify.Notifier = notify.Noop{}
	var kafkaNotifier *notify.KafkaNotifier
	if configuration.KAFKA_ADDRESS != "" {
		kafkaNotifier = notify.NewKafkaNotifier(configuration.KAFKA_ADDRESS, configuration.ORDER_TOPIC)
		notifier = kafkaNotifier
	}

	esClient, err := search.NewClient(configuration.ES_URL, configuration.ES_USER, configuration.ES_PASSWORD)
	if err != nil {
		log.Fatalf("elasticsearch error: %v", err)
	}
	index := search.NewIndex(esClient)
	if esClient == nil {
		logger.Warn("elasticsearch not configured, search disabled")
	}

	var cache *redis.Client
	if configuration.REDIS_ADDR != "" {
		cache = redis.NewClient(&redis.Options{Addr: configuration.REDIS_ADDR})
	} else {
		logger.Warn("redis not configured, catalog cache disabled")
	}

	engine := settlement.NewEngine(db, notifier, configuration.COMMISSION_RATE, logger)
	if esClient != nil {
		engine.Indexer = index
	}
	subs := subscription.NewLedger(db, configuration.LISTING_FEE, logger)
	owner := &earnings.Ledger{Store: db}

	e := echo.New()
	e.HideBanner = true
	e.Pre(middleware.RemoveTrailingSlash())
	e.Use(middleware.Recover(), middleware.RequestID(), loggingmw.RequestLogger(logger))
	e.Static("/uploads", configuration.UPLOAD_DIR)

	deps := httpserver.Deps{
		JWTSecret:       jwtSecret,
		Cache:           cache,
		CatalogTTL:      time.Minute,
		AuthHandler:     &handlers.AuthHandler{Store: db, JWTSecret: jwtSecret},
		CatalogHandler:  &handlers.CatalogHandler{Store: db},
		SearchHandler:   &handlers.SearchHandler{Index: index},
		CheckoutHandler: &handlers.CheckoutHandler{Engine: engine, Cache: cache},
		SellerHandler:   &handlers.SellerHandler{Store: db, Subs: subs, Index: index, Cache: cache},
		AdminHandler:    &handlers.AdminHandler{Store: db, Subs: subs, Earnings: owner, Index: index, Cache: cache},
		TablesHandler:   &handlers.TablesHandler{Store: db},
		UploadHandler:   &handlers.UploadHandler{Dir: configuration.UPLOAD_DIR},
	}

	httpserver.Register(e, &deps)

	// Hourly billing sweep: overdue active subscriptions go past_due and
	// their products leave the catalog.
	sched := cron.New()
	if _, err := sched.AddFunc("@hourly", func() {
		moved, err := subs.Sweep(time.Now().UTC())
		if err != nil {
			logger.Error("billing sweep failed", "error", err)
			return
		}
		if moved > 0 {
			logger.Info("billing sweep", "marked_past_due", moved)
		}
	}); err != nil {
		log.Fatalf("cron error: %v", err)
	}
	sched.Start()

	srv := &http.Server{
		Addr:         ":" + configuration.PORT,
		Handler:      e,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 15 * time.Second,
		IdleTimeout:  60 * time.Second,
	}
	go func() {
		logger.Info("server listening", "port", configuration.PORT)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", "error", err)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}

	sched.Stop()

	if kafkaNotifier != nil {
		if err := kafkaNotifier.Close(); err != nil {
			logger.Error("kafka close error", "error", err)
		}
	}
	if cache != nil {
		if err := cache.Close(); err != nil {
			logger.Error("redis close error", "error", err)
		}
	}

	logger.Info("shutdown complete")
}

// seedAdmin creates the platform owner's account on first boot so a fresh
// store is immediately usable.
func seedAdmin(db *store.Store, cfg *config.Config) error {
	if cfg.ADMIN_EMAIL == "" || cfg.ADMIN_PASSWORD == "" {
		return nil
	}
	_, exists, err := models.UserByEmail(db, cfg.ADMIN_EMAIL)
	if err != nil || exists {
		return err
	}

	hashed, err := hash.HashPassword(cfg.ADMIN_PASSWORD)
	if err != nil {
		return err
	}
	rec, err := models.ToRecord(models.User{
		Email:    cfg.ADMIN_EMAIL,
		Password: hashed,
		FullName: "Platform Admin",
		Role:     models.RoleAdmin,
		Status:   models.UserActive,
	})
	if err != nil {
		return err
	}
	_, err = db.Create(models.TableUsers, rec)
	return err
}
