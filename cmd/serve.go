package cmd

import (
	"context"
	"database/sql"
	"net"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/venuetix-solutions/ms-go-orders/app/controller"
	"github.com/venuetix-solutions/ms-go-orders/app/entity"
	"github.com/venuetix-solutions/ms-go-orders/app/gateway"
	"github.com/venuetix-solutions/ms-go-orders/app/repository"
	"github.com/venuetix-solutions/ms-go-orders/app/service"
	"github.com/venuetix-solutions/ms-go-orders/config"

	"github.com/go-co-op/gocron/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/labstack/echo/v4"
	echomiddleware "github.com/labstack/echo/v4/middleware"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

var serveCmd = &cobra.Command{
	Use:   "serve",
	Short: "Start the HTTP server",
	Long:  "Start the HTTP (Echo) server for the orders service along with the in-process purge sweep.",
	Run:   runServe,
}

func init() {
	rootCmd.AddCommand(serveCmd)
}

func runServe(_ *cobra.Command, _ []string) {
	cfg, orderService, cleanup := mustCreateOrderService()
	defer cleanup()

	orderController := controller.NewOrderController(orderService)
	e := setupHTTPServer(orderController)

	scheduler := startSweepScheduler(cfg, orderService)

	go func() {
		httpAddr := net.JoinHostPort(cfg.HTTP.Host, cfg.HTTP.Port)
		logrus.WithField("addr", httpAddr).Info("Starting HTTP server")
		if err := e.Start(httpAddr); err != nil && err != http.ErrServerClosed {
			logrus.WithError(err).Fatal("HTTP server error")
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	logrus.Info("Shutting down...")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := e.Shutdown(shutdownCtx); err != nil {
		logrus.WithError(err).Warn("HTTP shutdown error")
	}
	if scheduler != nil {
		if err := scheduler.Shutdown(); err != nil {
			logrus.WithError(err).Warn("Scheduler shutdown error")
		}
	}

	logrus.Info("Server stopped")
}

func setupHTTPServer(orderController *controller.OrderController) *echo.Echo {
	e := echo.New()
	e.HideBanner = true

	e.Use(echomiddleware.RequestID())
	e.Use(echomiddleware.RequestLoggerWithConfig(echomiddleware.RequestLoggerConfig{
		LogURI:       true,
		LogStatus:    true,
		LogMethod:    true,
		LogRemoteIP:  true,
		LogLatency:   true,
		LogUserAgent: true,
		LogError:     true,
		HandleError:  true,
		LogRequestID: true,
		LogValuesFunc: func(_ echo.Context, v echomiddleware.RequestLoggerValues) error {
			fields := logrus.Fields{
				"remote_ip":  v.RemoteIP,
				"host":       v.Host,
				"method":     v.Method,
				"uri":        v.URI,
				"status":     v.Status,
				"latency":    v.Latency.String(),
				"latency_ns": v.Latency.Nanoseconds(),
				"user_agent": v.UserAgent,
				"request_id": v.RequestID,
			}
			entry := logrus.WithFields(fields)
			if v.Error != nil {
				entry = entry.WithError(v.Error)
			}
			entry.Info("http_request")
			return nil
		},
	}))
	e.Use(echomiddleware.Recover())
	e.Use(echomiddleware.CORS())

	e.GET("/health", orderController.Health)

	orders := e.Group("/orders")
	orders.POST("", orderController.CreateOrder)
	orders.GET("", orderController.ListOrders)
	orders.GET("/:code", orderController.GetOrder)
	orders.POST("/:code/verify", orderController.VerifyOrder)
	orders.POST("/:code/cancel", orderController.CancelOrder)

	webhooks := e.Group("/webhooks")
	webhooks.POST("/payos", orderController.HandleWebhook)

	return e
}

// startSweepScheduler runs the stale-order purge and gateway reconcile
// sweeps inside the serve process so held seats are released and lost
// webhooks are recovered even when no jobs worker is deployed.
func startSweepScheduler(cfg *config.Config, orderService *service.OrderService) gocron.Scheduler {
	scheduler, err := gocron.NewScheduler()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to create scheduler")
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Jobs.PurgeInterval),
		gocron.NewTask(func() {
			if err := orderService.RunPurgeStaleBatch(context.Background()); err != nil {
				logrus.WithError(err).Error("Purge sweep failed")
			}
		}),
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to schedule purge sweep")
	}

	_, err = scheduler.NewJob(
		gocron.DurationJob(cfg.Jobs.ReconcileInterval),
		gocron.NewTask(func() {
			if err := orderService.RunReconcileBatch(context.Background()); err != nil {
				logrus.WithError(err).Error("Reconcile sweep failed")
			}
		}),
	)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to schedule reconcile sweep")
	}

	scheduler.Start()
	return scheduler
}

func mustCreateOrderService() (*config.Config, *service.OrderService, func()) {
	cfg, err := config.Load()
	if err != nil {
		logrus.WithError(err).Fatal("Failed to load configuration")
	}
	if err := configureLogging(cfg); err != nil {
		logrus.WithError(err).Fatal("Failed to configure logging")
	}

	db, err := sql.Open("mysql", cfg.MySQL.DSN)
	if err != nil {
		logrus.WithError(err).Fatal("Failed to connect to database")
	}

	db.SetMaxOpenConns(cfg.MySQL.MaxOpenConns)
	db.SetMaxIdleConns(cfg.MySQL.MaxIdleConns)
	db.SetConnMaxLifetime(cfg.MySQL.ConnMaxLifetime)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		logrus.WithError(err).Fatal("Failed to ping database")
	}

	orderRepo := repository.NewOrderRepository(db)
	eventRepo := repository.NewOrderEventRepository(db)
	webhookRepo := repository.NewWebhookLogRepository(db)

	gateways := []gateway.PaymentGateway{
		gateway.NewLinkClient(gateway.LinkClientConfig{
			Channel: entity.ChannelDefault,
			BaseURL: cfg.PayOS.BaseURL,
			Credentials: gateway.Credentials{
				ClientID:    cfg.PayOS.Default.ClientID,
				APIKey:      cfg.PayOS.Default.APIKey,
				ChecksumKey: cfg.PayOS.Default.ChecksumKey,
			},
			HTTPTimeout: cfg.PayOS.HTTPTimeout,
		}),
	}

	mobileCreds := gateway.Credentials{
		ClientID:    cfg.PayOS.Mobile.ClientID,
		APIKey:      cfg.PayOS.Mobile.APIKey,
		ChecksumKey: cfg.PayOS.Mobile.ChecksumKey,
	}
	if mobileCreds.Configured() {
		gateways = append(gateways, gateway.NewLinkClient(gateway.LinkClientConfig{
			Channel:     entity.ChannelMobile,
			BaseURL:     cfg.PayOS.BaseURL,
			Credentials: mobileCreds,
			HTTPTimeout: cfg.PayOS.HTTPTimeout,
		}))
	}

	transferClient := gateway.NewTransferClient(gateway.TransferConfig{
		Endpoint:            cfg.Transfer.Endpoint,
		APIKey:              cfg.Transfer.APIKey,
		SourceAccountNumber: cfg.Transfer.SourceAccountNumber,
		SourceAccountName:   cfg.Transfer.SourceAccountName,
		HTTPTimeout:         cfg.Transfer.HTTPTimeout,
	})

	orderService := service.NewOrderService(
		orderRepo,
		eventRepo,
		webhookRepo,
		gateway.NewChannelSet(gateways...),
		transferClient,
		cfg.Orders,
		cfg.PayOS.RedirectURL,
	)

	cleanup := func() {
		if err := db.Close(); err != nil {
			logrus.WithError(err).Warn("Failed to close database")
		}
	}

	return cfg, orderService, cleanup
}
