// Command tracker polls the Kotak Neo position book, reconciles MTF
// positions, records exits and serves the result over HTTP and WebSocket.
package main

import (
	"context"
	"errors"
	"flag"
	"net/http"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"
	"time"

	goredis "github.com/go-redis/redis/v8"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"go.uber.org/zap"

	"mtf-tracker/config"
	"mtf-tracker/internal/api"
	"mtf-tracker/internal/gateway"
	"mtf-tracker/internal/logger"
	"mtf-tracker/internal/markethours"
	"mtf-tracker/internal/metrics"
	"mtf-tracker/internal/model"
	"mtf-tracker/internal/notification"
	"mtf-tracker/internal/quote"
	"mtf-tracker/internal/reconcile"
	"mtf-tracker/internal/session"
	"mtf-tracker/internal/snapshot"
	redisstore "mtf-tracker/internal/store/redis"
	sqlitestore "mtf-tracker/internal/store/sqlite"
	"mtf-tracker/internal/tracker"
	"mtf-tracker/pkg/neo"
)

func main() {
	gatewayOnly := flag.Bool("gateway-only", false, "serve the WebSocket hub from Redis pub/sub without polling the broker")
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		// logger not ready yet
		os.Stderr.WriteString("config: " + err.Error() + "\n")
		os.Exit(1)
	}
	log := logger.Init("tracker", logger.Options{Level: cfg.Log.Level, Format: cfg.Log.Format})
	defer log.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	if *gatewayOnly {
		runGateway(ctx, cfg, log)
		return
	}
	if err := cfg.Validate(); err != nil {
		log.Fatal("invalid config", zap.Error(err))
	}
	run(ctx, cfg, log)
}

func run(ctx context.Context, cfg *config.Config, log *zap.Logger) {
	reg := prometheus.NewRegistry()
	reg.MustRegister(collectors.NewGoCollector(), collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}))
	prom := metrics.New(reg)

	// ---- Exit store ----
	if err := os.MkdirAll(filepath.Dir(cfg.Storage.SQLitePath), 0o755); err != nil {
		log.Fatal("create data dir", zap.Error(err))
	}
	exits, err := sqlitestore.Open(sqlitestore.Config{DBPath: cfg.Storage.SQLitePath, Log: log})
	if err != nil {
		log.Fatal("sqlite init failed", zap.Error(err))
	}
	defer exits.Close()

	// ---- Redis (optional) ----
	var rdb *goredis.Client
	if cfg.Storage.RedisAddr != "" {
		rdb, err = redisstore.Connect(redisstore.Config{
			Addr:     cfg.Storage.RedisAddr,
			Password: cfg.Storage.RedisPassword,
			DB:       cfg.Storage.RedisDB,
		})
		if err != nil {
			log.Warn("redis init failed, continuing without redis", zap.Error(err))
			rdb = nil
		} else {
			defer rdb.Close()
			log.Info("redis connected", zap.String("addr", cfg.Storage.RedisAddr))
		}
	}

	health := metrics.NewHealthStatus(rdb != nil)
	health.StartLivenessChecker(ctx, rdb, exits.DB(), 10*time.Second)

	// ---- Broker session ----
	client := neo.New(neo.Config{
		AccessToken:  cfg.Neo.AccessToken,
		MobileNumber: cfg.Neo.MobileNumber,
		UCC:          cfg.Neo.UCC,
		MPIN:         cfg.Neo.MPIN,
		LoginURL:     cfg.Neo.LoginURL,
		NeoFinKey:    cfg.Neo.NeoFinKey,
	})
	var store session.Store = session.NewMemoryStore()
	if rdb != nil {
		store = redisstore.NewSessionStore(rdb)
	}
	sessions, control := brokerSessions(cfg.Neo, client, store, time.Now(), log)

	// ---- Quotes ----
	var sources []quote.Source
	for _, name := range cfg.Quote.Sources {
		switch name {
		case "broker":
			sources = append(sources, quote.NewBrokerSource(client, sessions, cfg.Neo.Segment))
		case "yahoo":
			sources = append(sources, quote.NewYahooSource(cfg.Quote.YahooURL, nil))
		}
	}
	resolver := quote.NewResolver(quote.Config{
		TTL:             cfg.Quote.CacheTTL,
		SourceTimeout:   cfg.Quote.SourceTimeout,
		BreakerFailures: cfg.Quote.BreakerFailures,
		BreakerCooldown: cfg.Quote.BreakerCooldown,
	}, log, sources...)
	prom.Instrument(resolver)

	rec := reconcile.New(reconcile.Config{
		Category:    cfg.Reconcile.Category,
		Concurrency: cfg.Reconcile.Concurrency,
	}, resolver, snapshot.New(), log)

	// ---- Fan-out ----
	hub := gateway.NewHub(cfg.Server.ReplaySize, log)
	hub.OnClients = prom.SetWSClients

	publishers := []tracker.Publisher{prom, health, hub}
	if rdb != nil {
		publishers = append(publishers, redisstore.NewPublisher(rdb, cfg.Storage.LatestTTL, log))
	}

	svc := tracker.New(tracker.Deps{
		Sessions:   sessions,
		Positions:  client,
		Orders:     client,
		Reconciler: rec,
		Sink:       exits,
		Publishers: publishers,
		Notifier:   notification.ExitAlerts{N: notifiers(cfg, log)},
		Log:        log,
	})

	// ---- HTTP ----
	router := api.NewRouter(&api.Server{Cycles: svc, History: exits, Sessions: control, Log: log})
	router.Handle("/ws", hub)
	apiSrv := &http.Server{Addr: cfg.Server.APIAddr, Handler: router, ReadHeaderTimeout: 5 * time.Second}
	go serve(apiSrv, log.Named("api"))

	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddr, reg, health, log)
	metricsSrv.Start()

	// ---- Poll loop ----
	cal := markethours.NewCalendar()
	if err := cal.AddHolidays(cfg.Holidays...); err != nil {
		log.Fatal("invalid holiday list", zap.Error(err))
	}
	log.Info("tracker started",
		zap.Duration("interval", cfg.Poll.Interval),
		zap.Strings("quote_sources", cfg.Quote.Sources),
		zap.String("market", cal.Status(time.Now())))
	poll(ctx, svc, cal, cfg.Poll, prom, log)

	// ---- Shutdown ----
	log.Info("shutdown signal received, cleaning up")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := apiSrv.Shutdown(shutdownCtx); err != nil {
		log.Warn("api shutdown", zap.Error(err))
	}
	if err := metricsSrv.Stop(shutdownCtx); err != nil {
		log.Warn("metrics shutdown", zap.Error(err))
	}
}

// brokerSessions picks the session source. A pre-issued session token is
// used as is until the end of the IST day and cannot be logged in or out
// through the API, so control is nil in that case.
func brokerSessions(cfg config.NeoConfig, auth session.Authenticator, store session.Store, now time.Time, log *zap.Logger) (model.SessionProvider, api.SessionControl) {
	if cfg.SessionToken != "" {
		log.Info("using pre-issued broker session", zap.String("base_url", cfg.BaseURL))
		return session.Static{Session: &model.Session{
			BearerToken: cfg.SessionToken,
			SessionID:   cfg.SessionSID,
			BaseURL:     cfg.BaseURL,
			ValidUntil:  markethours.EndOfDay(now),
		}}, nil
	}
	m := session.NewManager(session.Config{
		TOTPSecret: cfg.TOTPSecret,
		AutoLogin:  cfg.AutoLogin,
	}, auth, store, log)
	return m, m
}

// poll runs a cycle every interval while the market is open. Cycles are
// skipped outside market hours unless OutsideHours is set.
func poll(ctx context.Context, svc *tracker.Service, cal *markethours.Calendar, cfg config.PollConfig, prom *metrics.Metrics, log *zap.Logger) {
	ticker := time.NewTicker(cfg.Interval)
	defer ticker.Stop()

	wasOpen := false
	tick := func() {
		now := time.Now()
		open := cal.IsOpen(now)
		prom.SetMarketOpen(open)
		if open != wasOpen {
			log.Info("market session changed", zap.String("status", cal.Status(now)))
			wasOpen = open
		}
		if !open && !cfg.OutsideHours {
			return
		}
		svc.RunCycle(ctx)
	}

	tick()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tick()
		}
	}
}

// runGateway serves only the WebSocket hub, fed from another tracker's
// Redis channel.
func runGateway(ctx context.Context, cfg *config.Config, log *zap.Logger) {
	if cfg.Storage.RedisAddr == "" {
		log.Fatal("gateway mode needs REDIS_ADDR")
	}
	rdb, err := redisstore.Connect(redisstore.Config{
		Addr:     cfg.Storage.RedisAddr,
		Password: cfg.Storage.RedisPassword,
		DB:       cfg.Storage.RedisDB,
	})
	if err != nil {
		log.Fatal("redis connection failed", zap.Error(err))
	}
	defer rdb.Close()

	reg := prometheus.NewRegistry()
	prom := metrics.New(reg)
	health := metrics.NewHealthStatus(true)
	health.SQLiteOK = true // no exit store in this mode
	health.StartLivenessChecker(ctx, rdb, nil, 10*time.Second)

	hub := gateway.NewHub(cfg.Server.ReplaySize, log)
	hub.OnClients = prom.SetWSClients
	relay := gateway.NewRelay(hub, rdb, redisstore.ChannelCycles)
	relay.Seed(ctx, redisstore.KeyLatest)
	go relay.Run(ctx)

	mux := http.NewServeMux()
	mux.Handle("/ws", hub)
	srv := &http.Server{Addr: cfg.Server.APIAddr, Handler: mux, ReadHeaderTimeout: 5 * time.Second}
	go serve(srv, log.Named("gateway"))

	metricsSrv := metrics.NewServer(cfg.Server.MetricsAddr, reg, health, log)
	metricsSrv.Start()

	<-ctx.Done()
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	srv.Shutdown(shutdownCtx)
	metricsSrv.Stop(shutdownCtx)
}

func notifiers(cfg *config.Config, log *zap.Logger) notification.Notifier {
	n := notification.Multi{notification.NewLogNotifier(log)}
	if cfg.Notify.WebhookURL != "" {
		n = append(n, notification.NewWebhookNotifier(cfg.Notify.WebhookURL).WithSecret(cfg.Notify.WebhookSecret))
	}
	if cfg.Notify.TelegramToken != "" {
		n = append(n, notification.NewTelegramNotifier(cfg.Notify.TelegramToken, cfg.Notify.TelegramChatID))
	}
	return n
}

func serve(srv *http.Server, log *zap.Logger) {
	log.Info("listening", zap.String("addr", srv.Addr))
	if err := srv.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Error("server error", zap.Error(err))
	}
}
