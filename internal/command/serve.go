package command

import (
	"context"
	"errors"
	"net/http"
	"os/signal"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/time/rate"

	"support-dashboard/internal/config"
	"support-dashboard/internal/handlers"
	"support-dashboard/internal/health"
	"support-dashboard/internal/ingest"
	"support-dashboard/internal/logger"
	"support-dashboard/internal/middleware"
	"support-dashboard/internal/observability"
	"support-dashboard/internal/rabbitmq"
	"support-dashboard/internal/repositories"
	"support-dashboard/internal/telemetry"
	"support-dashboard/internal/tracing"
	"support-dashboard/internal/ws"
)

const (
	auditRoutingKey    = "audit.dashboard"
	shutdownTimeout    = 10 * time.Second
	healthPollInterval = 5 * time.Second
)

func NewServeCmd(v *viper.Viper) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "serve",
		Short: "Run the dashboard server",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(cmd, v)
			if err != nil {
				return err
			}
			logger.Init(cfg.Env, cfg.LogLevel)

			ctx, stop := signal.NotifyContext(cmd.Context(), syscall.SIGINT, syscall.SIGTERM)
			defer stop()
			return serve(ctx, cfg)
		},
	}
	cmd.Flags().String("port", "", "HTTP listen port")
	_ = v.BindPFlag("PORT", cmd.Flags().Lookup("port"))
	return cmd
}

func serve(ctx context.Context, cfg *config.Config) error {
	if cfg.Env != "development" {
		gin.SetMode(gin.ReleaseMode)
	}

	shutdownTracing, err := tracing.Init(ctx, AppName, cfg.Env, cfg.OTLPEndpoint)
	if err != nil {
		return err
	}

	publisher := rabbitmq.NewPublisher(rabbitmq.Config{URL: cfg.AMQPURL, Exchange: cfg.AMQPExchange})
	defer publisher.Close()
	observability.SetPublisher(publisher)
	audit := telemetry.NewAuditEmitter(publisher, auditRoutingKey, AppName, cfg.Env)
	logger.Info().
		Str("mode", rabbitmq.PublisherMode(publisher)).
		Str("reason", rabbitmq.PublisherNoopReason(publisher)).
		Msg("event publisher ready")

	messages, err := repositories.OpenMessageLog(cfg.MessagesPath())
	if err != nil {
		return err
	}
	transactions, err := repositories.OpenTransactionLog(cfg.TransfersPath())
	if err != nil {
		return err
	}
	logger.Info().
		Int("messages", messages.Len()).
		Int("transactions", transactions.Len()).
		Msg("logs loaded")

	store, err := newStore(ctx, cfg)
	if err != nil {
		return err
	}

	runCtx, cancel := context.WithCancel(ctx)
	defer cancel()

	hub := ws.NewHub()
	dispatcher, err := ws.NewDispatcher(runCtx, hub, messages, transactions, ws.WithAudit(audit))
	if err != nil {
		return err
	}
	dispatcherDone := make(chan struct{})
	go func() {
		dispatcher.Run(runCtx)
		close(dispatcherDone)
	}()

	monitor := health.NewMonitor(messages, transactions)
	go monitor.Run(runCtx, healthPollInterval)
	grpcServer := health.NewGRPCServer(monitor)
	go func() {
		if err := health.Serve(grpcServer, ":"+cfg.GRPCHealthPort); err != nil {
			logger.Error().Err(err).Msg("grpc health server stopped")
		}
	}()

	sessionCfg := ws.SessionConfig{
		IntentRate:  cfg.IntentRate,
		IntentBurst: cfg.IntentBurst,
		SendBuffer:  cfg.SessionSendBuffer,
	}
	socketIO := ws.NewSocketIOServer(dispatcher, sessionCfg)
	go func() {
		if err := socketIO.Serve(); err != nil {
			logger.Error().Err(err).Msg("socket.io server stopped")
		}
	}()

	limiter := middleware.NewIPRateLimiter(rate.Limit(cfg.HTTPRate), cfg.HTTPBurst)
	defer limiter.Stop()

	_, diskStore := store.(*ingest.DiskStore)
	router := newRouter(routerDeps{
		cfg:       cfg,
		uploads:   handlers.NewUploadHandler(store, cfg.MaxUploadBytes, audit),
		history:   handlers.NewHistoryHandler(messages, transactions),
		health:    handlers.NewHealthHandler(monitor),
		websocket: ws.NewWebSocketHandler(dispatcher, sessionCfg),
		socketIO:  socketIO.Handler(),
		sessions:  hub,
		limiter:   limiter,
		audit:     audit,
		diskStore: diskStore,
	})

	srv := &http.Server{
		Addr:              ":" + cfg.Port,
		Handler:           router,
		ReadHeaderTimeout: 10 * time.Second,
	}
	serveErr := make(chan error, 1)
	go func() {
		logger.Info().Str("addr", srv.Addr).Msg("http listening")
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case <-ctx.Done():
		logger.Info().Msg("shutting down")
	case err = <-serveErr:
		logger.Error().Err(err).Msg("http server failed")
	}

	shutdownCtx, cancelShutdown := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancelShutdown()

	if shutdownErr := srv.Shutdown(shutdownCtx); shutdownErr != nil {
		logger.Warn().Err(shutdownErr).Msg("http shutdown incomplete")
	}
	_ = socketIO.Close()
	cancel()
	<-dispatcherDone
	hub.CloseAll()
	grpcServer.GracefulStop()
	if tracingErr := shutdownTracing(shutdownCtx); tracingErr != nil {
		logger.Warn().Err(tracingErr).Msg("tracer flush failed")
	}
	return err
}

func newStore(ctx context.Context, cfg *config.Config) (ingest.Store, error) {
	if cfg.S3Bucket == "" {
		return ingest.NewDiskStore(cfg.UploadPath()), nil
	}
	return ingest.NewS3Store(ctx, ingest.S3Config{
		Bucket:          cfg.S3Bucket,
		Endpoint:        cfg.S3Endpoint,
		Region:          cfg.S3Region,
		AccessKeyID:     cfg.S3AccessKeyID,
		SecretAccessKey: cfg.S3SecretAccessKey,
		PublicURL:       cfg.S3PublicURL,
	})
}
