package main

import (
	"context"
	"errors"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"golang.org/x/time/rate"

	"fieldgate/internal/platform/config"
	"fieldgate/internal/platform/httpserver"
	"fieldgate/internal/platform/logger"
	"fieldgate/internal/platform/metrics"
	platformredis "fieldgate/internal/platform/redis"
	"fieldgate/internal/proxy"
	httptransport "fieldgate/internal/transport/http"
)

// main wires the edge proxy: configuration, logging, the optional Redis
// backend, the rate gate and the upstream client, then runs the server until
// a shutdown signal arrives.
func main() {
	cfg, err := config.Load()
	if err != nil {
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}

	log := logger.New(cfg.LogLevel)

	registry := prometheus.NewRegistry()
	registry.MustRegister(collectors.NewGoCollector())
	mx := metrics.New(registry)

	redisClient, err := platformredis.New(cfg.Redis)
	if err != nil {
		log.Error("redis unavailable", "error", err)
		os.Exit(1)
	}

	var counterStore proxy.CounterStore
	var health func(ctx context.Context) error
	if redisClient != nil {
		log.Info("using redis counter store")
		counterStore = proxy.NewRedisCounterStore(redisClient.Client)
		health = redisClient.Health
		defer redisClient.Close()
	} else {
		log.Info("redis not configured, using in-memory counter store")
		counterStore = proxy.NewMemoryCounterStore()
	}

	gate := proxy.NewGate(counterStore, cfg.Gate.Limit, cfg.Gate.Window,
		proxy.WithGateLogger(log),
		proxy.WithGateMetrics(mx),
	)

	upstream := proxy.NewUpstream(cfg.Upstream, proxy.WithUpstreamMetrics(mx))
	if !upstream.Ready() {
		log.Warn("upstream API key not configured, verification requests will fail")
	}

	handler := proxy.NewHandler(gate, upstream,
		proxy.WithHandlerLogger(log),
		proxy.WithHandlerMetrics(mx),
		proxy.WithGlobalThrottle(rate.NewLimiter(rate.Limit(cfg.Gate.GlobalRPS), cfg.Gate.GlobalBurst)),
	)

	router := httptransport.NewRouter(httptransport.Deps{
		Proxy:          handler,
		AllowedOrigins: cfg.CORSAllowedOrigins,
		Gatherer:       registry,
		Health:         health,
	})

	srv := httpserver.New(cfg.Addr, router)

	go func() {
		log.Info("starting fieldgate edge", "addr", cfg.Addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			log.Error("server error", "error", err)
			os.Exit(1)
		}
	}()

	quit := make(chan os.Signal, 1)
	signal.Notify(quit, os.Interrupt, syscall.SIGTERM)
	<-quit

	log.Info("shutting down")
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(ctx); err != nil {
		log.Error("graceful shutdown failed", "error", err)
		os.Exit(1)
	}
}
