package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"runtime"
	"syscall"
	"time"

	_ "backoffice/api/swagger" // swagger docs
	"backoffice/internal/commission"
	"backoffice/internal/config"
	"backoffice/internal/database"
	"backoffice/internal/export"
	"backoffice/internal/handler"
	"backoffice/internal/logger"
	"backoffice/internal/media"
	"backoffice/internal/metrics"
	"backoffice/internal/middleware"
	"backoffice/internal/realtime"
	"backoffice/internal/repository"
	"backoffice/internal/service"

	"github.com/gin-contrib/cors"
	"github.com/gin-gonic/gin"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/rs/zerolog"
	"github.com/spf13/cobra"
	swaggerFiles "github.com/swaggo/files"
	ginSwagger "github.com/swaggo/gin-swagger"
	"gorm.io/gorm"
)

const (
	Version   = "1.0.0"
	BuildTime = "dev"
	appName   = "backoffice"
)

const shutdownTimeout = 15 * time.Second

// @title           Service Back Office API
// @version         1.0
// @description     Quotes, work orders, invoices, commissions and the realtime inbox for a service shop.
// @host            localhost:8080
// @BasePath        /
// @securityDefinitions.apikey BearerAuth
// @in header
// @name Authorization
func main() {
	defer func() {
		if r := recover(); r != nil {
			buf := make([]byte, 4096)
			n := runtime.Stack(buf, false)
			_, _ = fmt.Fprintf(os.Stderr, "PANIC: %v\nStack trace:\n%s\n", r, string(buf[:n]))
			os.Exit(2)
		}
	}()

	if err := rootCmd().Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

func rootCmd() *cobra.Command {
	cmd := &cobra.Command{
		Use:   appName,
		Short: "Service back-office API",
		Long: `Runs the back-office HTTP API: quote requests and estimates, work orders,
invoices, staff commissions and the realtime notification inbox.

Configuration is read from configs/.env and the process environment.`,
		SilenceUsage: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	}

	cmd.AddCommand(&cobra.Command{
		Use:   "serve",
		Short: "Start the HTTP server (default)",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve()
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "migrate",
		Short: "Create or update the database schema and exit",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, log, db, err := bootstrap()
			if err != nil {
				return err
			}
			defer closeDB(db, log)
			if err := database.Migrate(db); err != nil {
				return err
			}
			log.Info().Str("driver", cfg.DB.Driver).Msg("schema is up to date")
			return nil
		},
	})

	cmd.AddCommand(&cobra.Command{
		Use:   "version",
		Short: "Print version information",
		Run: func(cmd *cobra.Command, args []string) {
			fmt.Printf("%s version %s (build: %s)\n", appName, Version, BuildTime)
		},
	})

	return cmd
}

func bootstrap() (*config.Config, zerolog.Logger, *gorm.DB, error) {
	cfg, err := config.Load()
	if err != nil {
		return nil, zerolog.Nop(), nil, fmt.Errorf("load config: %w", err)
	}
	log := logger.New(cfg.Environment, cfg.LogLevel)

	db, err := database.NewConnection(cfg.DB, log)
	if err != nil {
		return nil, log, nil, fmt.Errorf("database connection failed: %w", err)
	}
	return cfg, log, db, nil
}

func closeDB(db *gorm.DB, log zerolog.Logger) {
	sqlDB, err := db.DB()
	if err != nil {
		return
	}
	if err := sqlDB.Close(); err != nil {
		log.Warn().Err(err).Msg("closing database")
	}
}

func serve() error {
	cfg, log, db, err := bootstrap()
	if err != nil {
		return err
	}
	defer closeDB(db, log)

	if err := database.Migrate(db); err != nil {
		return err
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	m := metrics.New(reg)

	allocMode, err := commission.ParseMode(cfg.Commission.SplitMode)
	if err != nil {
		return err
	}
	allocator := commission.NewAllocator(allocMode)

	store, err := media.NewLocalStore(cfg.MediaDir, "/media")
	if err != nil {
		return fmt.Errorf("media store: %w", err)
	}

	// Repositories
	quoteRepo := repository.NewQuoteRepository(db)
	workOrderRepo := repository.NewWorkOrderRepository(db)
	invoiceRepo := repository.NewInvoiceRepository(db)
	catalogRepo := repository.NewServiceCatalogRepository(db)
	profileRepo := repository.NewProfileRepository(db)
	auditRepo := repository.NewAuditRepository(db)
	notificationRepo := repository.NewNotificationRepository(db)
	messageRepo := repository.NewMessageRepository(db)
	txManager := repository.NewTransactionManager(db)

	// Realtime: change feed -> notifier -> websocket hub
	feed := realtime.NewFeed(log, m)
	cache := realtime.NewViewCache(cfg.Realtime.ViewCacheTTL)
	badges := realtime.NewBadges()
	hub := realtime.NewHub(log)
	go hub.Run(ctx)

	notifier := realtime.NewNotifier(realtime.NotifierDeps{
		Feed:          feed,
		Cache:         cache,
		Badges:        badges,
		Pusher:        hub,
		Quotes:        quoteRepo,
		WorkOrders:    workOrderRepo,
		Invoices:      invoiceRepo,
		Notifications: notificationRepo,
		Profiles:      profileRepo,
		Metrics:       m,
		Log:           log,
	})
	notifier.Start()
	defer notifier.Stop()

	// Services
	quoteService := service.NewQuoteService(quoteRepo, catalogRepo, auditRepo, txManager, store, feed, cache, m, log)
	workOrderService := service.NewWorkOrderService(workOrderRepo, catalogRepo, auditRepo, txManager, allocator, feed, cache, m, log)
	invoiceService := service.NewInvoiceService(invoiceRepo, profileRepo, auditRepo, txManager, export.NewPDFGenerator(), cfg.CompanyName, feed, cache, m, log)
	conversionService := service.NewConversionService(quoteRepo, workOrderRepo, invoiceRepo, catalogRepo, auditRepo, feed, m, log)
	commissionService := service.NewCommissionService(workOrderRepo, profileRepo, allocator, export.NewWorkbookGenerator(), cache, log)
	inboxService := service.NewInboxService(notificationRepo, messageRepo, badges, hub, cfg.Realtime.FeedLimit, log)
	messageService := service.NewMessageService(messageRepo, feed)
	auditService := service.NewAuditService(auditRepo, profileRepo)
	catalogService := service.NewCatalogService(catalogRepo)

	if cfg.IsProduction() {
		gin.SetMode(gin.ReleaseMode)
	}
	router := gin.New()
	router.Use(gin.Recovery(), middleware.RequestLogger(log))

	corsConfig := cors.DefaultConfig()
	corsConfig.AllowOrigins = cfg.HTTP.CORSOrigins
	corsConfig.AllowCredentials = true
	corsConfig.AllowHeaders = []string{"Origin", "Content-Length", "Content-Type", "Authorization", "Accept"}
	corsConfig.AllowMethods = []string{"GET", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"}
	router.Use(cors.New(corsConfig))

	// Swagger route
	router.GET("/swagger/*any", ginSwagger.WrapHandler(swaggerFiles.Handler))

	// Health check
	router.GET("/health", func(c *gin.Context) {
		if sqlDB, err := db.DB(); err != nil || sqlDB.PingContext(c.Request.Context()) != nil {
			c.JSON(http.StatusServiceUnavailable, gin.H{"status": "DEGRADED"})
			return
		}
		c.JSON(http.StatusOK, gin.H{"status": "OK"})
	})
	router.GET("/metrics", gin.WrapH(m.Handler()))
	router.Static(store.Prefix(), store.Dir())

	secret := []byte(cfg.Auth.JWTSecret)
	handler.NewWebsocketHandler(hub, secret).RegisterRoutes(router)

	api := router.Group("/api", middleware.Authenticate(secret))
	handler.NewQuoteHandler(quoteService, conversionService, store).RegisterRoutes(api)
	handler.NewWorkOrderHandler(workOrderService).RegisterRoutes(api)
	handler.NewInvoiceHandler(invoiceService, conversionService).RegisterRoutes(api)
	handler.NewCommissionHandler(commissionService).RegisterRoutes(api)
	handler.NewInboxHandler(inboxService, messageService).RegisterRoutes(api)
	handler.NewAuditHandler(auditService).RegisterRoutes(api)
	handler.NewCatalogHandler(catalogService).RegisterRoutes(api)

	srv := &http.Server{
		Addr:              cfg.Addr(),
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		log.Info().Str("addr", srv.Addr).Str("version", Version).Msg("server listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	log.Info().Msg("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("graceful shutdown: %w", err)
	}
	return nil
}
