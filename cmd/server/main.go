package main

import (
	"context"
	"net/http"
	"os"
	"os/signal"
	"strconv"
	"syscall"
	"time"

	"github.com/gin-gonic/gin"
	"github.com/holiman/uint256"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"go.uber.org/zap"

	"github.com/irnb/SegmentXOrderbook/internal/domain"
	"github.com/irnb/SegmentXOrderbook/internal/handler"
	"github.com/irnb/SegmentXOrderbook/internal/ledger"
	"github.com/irnb/SegmentXOrderbook/internal/marketdata"
	"github.com/irnb/SegmentXOrderbook/internal/middleware"
	"github.com/irnb/SegmentXOrderbook/internal/pair"
	"github.com/irnb/SegmentXOrderbook/internal/scaling"
	"github.com/irnb/SegmentXOrderbook/internal/sequencer"
)

const channelBufferSize = 4096

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

func envUint(key string, fallback uint64) uint64 {
	if v := os.Getenv(key); v != "" {
		if n, err := strconv.ParseUint(v, 10, 64); err == nil {
			return n
		}
	}
	return fallback
}

func main() {
	logger, err := zap.NewProduction()
	if err != nil {
		panic(err)
	}
	defer func() { _ = logger.Sync() }()

	logger.Info("starting segmentx orderbook service")

	// Price precision defaults to 10^18: prices are quoted per whole
	// 18-decimal base unit.
	precision, err := uint256.FromDecimal(envOr("PRICE_PRECISION", "1000000000000000000"))
	if err != nil {
		logger.Fatal("invalid PRICE_PRECISION", zap.Error(err))
	}

	cfg := pair.Config{
		BaseAsset:      domain.AssetID(envOr("BASE_ASSET", "BASE")),
		QuoteAsset:     domain.AssetID(envOr("QUOTE_ASSET", "QUOTE")),
		MakerFee:       envUint("MAKER_FEE", 10),
		TakerFee:       envUint("TAKER_FEE", 20),
		PricePrecision: precision,
		Governance:     domain.AccountID(envOr("GOVERNANCE_ACCOUNT", "treasury")),
	}

	// --- Core components ---

	assets := ledger.NewInMemory()
	seq := sequencer.New(channelBufferSize, logger)

	var relay marketdata.Relay
	if url := os.Getenv("NATS_URL"); url != "" {
		natsRelay, err := marketdata.NewNATSRelay(url, logger)
		if err != nil {
			logger.Fatal("nats connect failed", zap.Error(err))
		}
		defer natsRelay.Close()
		relay = natsRelay
	}
	publisher := marketdata.NewPublisher(channelBufferSize, relay, logger)

	controller := pair.New(cfg, scaling.NewFixedQuantum(nil), assets, seq, logger)

	// Pipe sequenced observations into the publisher.
	go func() {
		for obs := range seq.Out() {
			select {
			case publisher.ObservationIn <- obs:
			default:
				logger.Warn("market data channel full, dropping observation",
					zap.Uint64("sequence_id", obs.SequenceID))
			}
		}
	}()
	publisher.Start()

	// --- HTTP server ---

	r := gin.Default()
	r.Use(middleware.PrometheusMiddleware())

	h := handler.NewHandler(controller, assets, publisher, seq)
	h.RegisterRoutes(r)

	srv := &http.Server{
		Addr:    ":" + envOr("PORT", "8080"),
		Handler: r,
	}

	// --- Metrics server ---

	metricsMux := http.NewServeMux()
	metricsMux.Handle("/metrics", promhttp.Handler())
	metricsSrv := &http.Server{
		Addr:    ":" + envOr("METRICS_PORT", "9090"),
		Handler: metricsMux,
	}

	go func() {
		logger.Info("metrics server listening", zap.String("addr", metricsSrv.Addr))
		if err := metricsSrv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("metrics server error", zap.Error(err))
		}
	}()

	go func() {
		logger.Info("http server listening", zap.String("addr", srv.Addr))
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	// --- Graceful shutdown ---

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, syscall.SIGINT, syscall.SIGTERM)
	<-quit

	logger.Info("shutting down")

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()

	publisher.Stop()

	if err := srv.Shutdown(ctx); err != nil {
		logger.Warn("http server shutdown error", zap.Error(err))
	}
	if err := metricsSrv.Shutdown(ctx); err != nil {
		logger.Warn("metrics server shutdown error", zap.Error(err))
	}

	logger.Info("segmentx orderbook service stopped")
}
