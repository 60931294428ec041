package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	zlog "github.com/rs/zerolog/log"

	"github.com/ksred/orderbook-api/internal/database"
	"github.com/ksred/orderbook-api/internal/engine"
	"github.com/ksred/orderbook-api/internal/stream"
	"github.com/ksred/orderbook-api/internal/trades"
	"github.com/ksred/orderbook-api/internal/trading"
	"github.com/ksred/orderbook-api/pkg/middleware"

	"github.com/gin-gonic/gin"
)

// init configures the application logging based on environment settings
// In development mode, it enables pretty printing with timestamps
// Debug logging can be enabled via DEBUG environment variable
func init() {
	// Configure pretty logging for development
	if os.Getenv("ENV") != "production" {
		output := zerolog.ConsoleWriter{
			Out:        os.Stdout,
			TimeFormat: time.RFC3339,
		}
		zlog.Logger = zerolog.New(output).With().Timestamp().Logger()
	}

	// Set global log level
	zerolog.SetGlobalLevel(zerolog.InfoLevel)
	if os.Getenv("DEBUG") == "true" {
		zerolog.SetGlobalLevel(zerolog.DebugLevel)
	}
}

// main initializes and runs the three services: order intake, trade/book
// query and the streaming feed, all sharing one matching engine, with
// graceful shutdown support
func main() {
	// Initialize database
	db, err := database.NewDatabase()
	if err != nil {
		zlog.Fatal().Err(err).Msg("Failed to initialize database")
	}

	// Initialize the matching engine and rebuild the book from storage
	controller := engine.NewController(db)
	if err := controller.Recover(); err != nil {
		zlog.Fatal().Err(err).Msg("Failed to rebuild order book")
	}
	defer controller.Close()

	// Initialize services and handlers
	tradingHandlers := trading.NewGinHandlers(controller)

	tradesService := trades.NewService(db)
	tradesHandlers := trades.NewGinHandlers(tradesService, controller)

	hub := stream.NewHub()
	broadcaster := stream.NewBroadcaster(hub, controller, snapshotInterval())

	broadcastCtx, broadcastCancel := context.WithCancel(context.Background())
	defer broadcastCancel()
	go broadcaster.Start(broadcastCtx)

	// One router per service port
	intakeRouter := gin.Default()
	intakeRouter.Use(middleware.RateLimit())
	setupIntakeRoutes(intakeRouter, tradingHandlers)

	queryRouter := gin.Default()
	queryRouter.Use(middleware.RateLimit())
	setupQueryRoutes(queryRouter, tradesHandlers)

	streamRouter := gin.Default()
	setupStreamRoutes(streamRouter, hub)

	servers := []*http.Server{
		{Addr: ":" + envPort("INTAKE_PORT", "8080"), Handler: intakeRouter},
		{Addr: ":" + envPort("QUERY_PORT", "8081"), Handler: queryRouter},
		{Addr: ":" + envPort("STREAM_PORT", "8082"), Handler: streamRouter},
	}

	for _, srv := range servers {
		srv := srv
		go func() {
			zlog.Info().Str("addr", srv.Addr).Msg("listening")
			if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
				zlog.Fatal().Err(err).Str("addr", srv.Addr).Msg("listen")
			}
		}()
	}

	// Wait for interrupt signal
	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit
	zlog.Info().Msg("Shutting down servers...")

	// Give outstanding operations 5 seconds to complete
	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer shutdownCancel()
	for _, srv := range servers {
		if err := srv.Shutdown(shutdownCtx); err != nil {
			zlog.Error().Err(err).Str("addr", srv.Addr).Msg("Server forced to shutdown")
		}
	}

	zlog.Info().Msg("Servers exiting")
}

// setupIntakeRoutes configures the order intake endpoints
func setupIntakeRoutes(router *gin.Engine, handlers *trading.GinHandlers) {
	orders := router.Group("/orders")
	{
		orders.POST("/", handlers.PlaceOrderHandler())
		orders.GET("/", handlers.ListOrdersHandler())
		orders.GET("/:order_id/", handlers.GetOrderHandler())
		orders.PUT("/:order_id/", handlers.ModifyOrderHandler())
		orders.DELETE("/:order_id/", handlers.CancelOrderHandler())
	}
}

// setupQueryRoutes configures the trade history, settlement and order book
// snapshot endpoints
func setupQueryRoutes(router *gin.Engine, handlers *trades.GinHandlers) {
	tradeRoutes := router.Group("/trades")
	{
		tradeRoutes.GET("/", handlers.ListTradesHandler())
		tradeRoutes.GET("/:trade_id/", handlers.GetTradeHandler())
		tradeRoutes.POST("/:trade_id/settle/", handlers.SettleTradeHandler())
	}
	router.GET("/orderbook/", handlers.OrderBookHandler())
}

// setupStreamRoutes configures the websocket feed endpoints
func setupStreamRoutes(router *gin.Engine, hub *stream.Hub) {
	router.GET("/ws/trades", hub.Handler(stream.FeedTrades))
	router.GET("/ws/orderbook", hub.Handler(stream.FeedOrderBook))
}

func envPort(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func snapshotInterval() time.Duration {
	if raw := os.Getenv("SNAPSHOT_INTERVAL"); raw != "" {
		if d, err := time.ParseDuration(raw); err == nil && d > 0 {
			return d
		}
	}
	return time.Second
}
