package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"log"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/gorilla/handlers"
	"go.uber.org/zap"

	alarmapp "hvac-insight/internal/alarms/application"
	alarmhttp "hvac-insight/internal/alarms/interfaces/http"
	"hvac-insight/internal/alarms/notify"
	"hvac-insight/internal/analytics/application"
	"hvac-insight/internal/analytics/domain/rules"
	apihttp "hvac-insight/internal/api/http"
	"hvac-insight/internal/audit"
	"hvac-insight/internal/auth"
	"hvac-insight/internal/config"
	"hvac-insight/internal/observability/metrics"
	"hvac-insight/internal/reporting"
	"hvac-insight/internal/telemetry/infrastructure/archive"
	"hvac-insight/internal/telemetry/infrastructure/csvfeed"
)

func main() {
	configPath := flag.String("config", os.Getenv("HVAC_CONFIG"), "path to the config file")
	issueToken := flag.String("issue-token", "", "print a signed token for role:subject and exit")
	tokenTTL := flag.Duration("token-ttl", 24*time.Hour, "lifetime of tokens printed by -issue-token")
	flag.Parse()

	cfg, _, err := config.Load(*configPath)
	if err != nil {
		log.Fatalf("config error: %v", err)
	}
	if *issueToken != "" {
		token, err := issue(cfg.Auth, *issueToken, *tokenTTL)
		if err != nil {
			log.Fatalf("issue token: %v", err)
		}
		fmt.Println(token)
		return
	}

	logger, err := config.NewLogger(cfg.Logging)
	if err != nil {
		log.Fatalf("logger error: %v", err)
	}
	defer func() { _ = logger.Sync() }()

	metrics.Init(logger)

	loc, err := cfg.LoadLocation()
	if err != nil {
		logger.Fatal("location error", zap.Error(err))
	}

	provider, err := csvfeed.NewProvider(cfg.Feeds, csvfeed.WithLocation(loc), csvfeed.WithLogger(logger))
	if err != nil {
		logger.Fatal("feed provider error", zap.Error(err))
	}
	profile, err := config.LoadThresholdProfile(cfg.Thresholds)
	if err != nil {
		logger.Fatal("threshold profile error", zap.Error(err))
	}
	engine, err := application.NewEngine(provider, application.WithLocation(loc), application.WithEngineLogger(logger))
	if err != nil {
		logger.Fatal("engine error", zap.Error(err))
	}

	broker := alarmhttp.NewSSEBroker()
	channel, closeChannels, err := buildChannel(cfg.Alerts, broker, logger)
	if err != nil {
		logger.Fatal("alert channel error", zap.Error(err))
	}
	defer closeChannels()
	template, err := notify.NewTemplate("")
	if err != nil {
		logger.Fatal("alert template error", zap.Error(err))
	}
	notifier, err := notify.NewNotifier(channel, template,
		notify.WithCooldown(cfg.Alerts.Cooldown),
		notify.WithDedupeWindow(cfg.Alerts.DedupeWindow),
		notify.WithCurrency(cfg.Alerts.Currency),
		notify.WithDashboardURL(cfg.Alerts.DashboardURL),
	)
	if err != nil {
		logger.Fatal("notifier error", zap.Error(err))
	}
	dispatcher, err := alarmapp.NewDispatcher(notifier,
		alarmapp.WithTimeout(cfg.Alerts.Timeout),
		alarmapp.WithLogger(logger),
		alarmapp.WithChannelName(notifier.Channel()),
		alarmapp.WithSuppressed(func(err error) bool { return errors.Is(err, notify.ErrSuppressed) }),
	)
	if err != nil {
		logger.Fatal("dispatcher error", zap.Error(err))
	}

	monitorOpts := []application.MonitorOption{
		application.WithDispatcher(dispatcher),
		application.WithPublisher(broker),
		application.WithMonitorLogger(logger),
	}
	if cfg.Thresholds != "" {
		path := cfg.Thresholds
		monitorOpts = append(monitorOpts, application.WithProfileStore(func(p rules.Profile) error {
			return config.SaveThresholdProfile(path, p)
		}))
	}
	if cfg.Archive.Enabled {
		archiver, err := archive.NewArchiver(cfg.Feeds, cfg.Archive.Root, cfg.Archive.MaxAge,
			archive.WithLocation(loc),
			archive.WithLogger(logger),
			archive.WithKeepLatest(cfg.Archive.KeepLatest),
		)
		if err != nil {
			logger.Fatal("archiver error", zap.Error(err))
		}
		monitorOpts = append(monitorOpts, application.WithArchiver(archiver, cfg.Archive.OnRefresh))
	}
	monitor, err := application.NewMonitor(engine, profile, monitorOpts...)
	if err != nil {
		logger.Fatal("monitor error", zap.Error(err))
	}

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go monitor.ForwardResults(ctx, dispatcher.Results())

	scheduler := application.NewScheduler(monitor, cfg.Cycle.Interval, logger)
	if cfg.Reports.DailyAt != "" {
		currency := cfg.Reports.Currency
		scheduler, err = scheduler.WithDailyReport(cfg.Reports.DailyAt, cfg.Reports.Dir, loc, func(s application.Snapshot) ([]byte, error) {
			return reporting.BuildDailyPDF(s.Result.Report, currency)
		})
		if err != nil {
			logger.Fatal("daily report error", zap.Error(err))
		}
	}
	go scheduler.Start(ctx)

	if cfg.Cycle.Watch {
		watcher, err := csvfeed.NewWatcher(cfg.Feeds, cfg.Cycle.Debounce, func(ctx context.Context) {
			if _, err := monitor.Refresh(ctx, "watch"); err != nil {
				logger.Warn("refresh on file change failed", zap.Error(err))
			}
		}, logger)
		if err != nil {
			logger.Fatal("watcher error", zap.Error(err))
		}
		go func() {
			if err := watcher.Run(ctx); err != nil {
				logger.Error("watcher stopped", zap.Error(err))
			}
		}()
	}

	router, err := apihttp.NewRouter(apihttp.Deps{
		Session:        monitor,
		Dispatches:     dispatcher,
		Sources:        provider,
		Broker:         broker,
		Audit:          audit.NewTrail(0, logger),
		Currency:       cfg.Alerts.Currency,
		ReportCurrency: cfg.Reports.Currency,
		Logger:         logger,
	})
	if err != nil {
		logger.Fatal("router error", zap.Error(err))
	}

	var handler http.Handler = router
	if cfg.Auth.Enabled() {
		policy := auth.NewDefaultPolicy("/healthz", "/metrics")
		handler = auth.NewMiddleware([]byte(cfg.Auth.JWTSecret), policy, auth.WithLogger(logger)).Wrap(handler)
	} else {
		logger.Warn("auth disabled: set auth.jwt_secret to require tokens")
	}
	handler = handlers.RecoveryHandler(handlers.PrintRecoveryStack(true))(handler)
	handler = handlers.LoggingHandler(os.Stdout, handler)

	server := &http.Server{
		Addr:         cfg.HTTP.Addr,
		Handler:      handler,
		ReadTimeout:  cfg.HTTP.ReadTimeout,
		WriteTimeout: cfg.HTTP.WriteTimeout,
	}
	go func() {
		logger.Info("http listening", zap.String("addr", cfg.HTTP.Addr), zap.Int("feeds", len(cfg.Feeds)))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Fatal("http server error", zap.Error(err))
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Warn("http shutdown error", zap.Error(err))
	}
	dispatcher.Wait()
}

// buildChannel assembles every configured alert channel. The SSE broker is always included.
func buildChannel(cfg config.AlertsConfig, broker *alarmhttp.SSEBroker, logger *zap.Logger) (notify.Channel, func(), error) {
	channels := []notify.Channel{broker}
	var closers []func()
	if cfg.Log {
		channels = append(channels, notify.NewLogChannel(logger))
	}
	if cfg.Webhook.URL != "" {
		webhook, err := notify.NewWebhookChannel(cfg.Webhook.URL, notify.WithFormat(cfg.Webhook.Format))
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, webhook)
	}
	if cfg.Email.Host != "" {
		email, err := notify.NewEmailChannel(cfg.Email)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, email)
	}
	if len(cfg.Kafka.Brokers) > 0 {
		kafka, err := notify.NewKafkaChannel(cfg.Kafka.Brokers, cfg.Kafka.Topic)
		if err != nil {
			return nil, nil, err
		}
		channels = append(channels, kafka)
		closers = append(closers, func() { _ = kafka.Close() })
	}
	if cfg.MQTT.BrokerURL != "" {
		mqtt, err := notify.NewMQTTChannel(cfg.MQTT)
		if err != nil {
			logger.Warn("mqtt channel unavailable", zap.Error(err))
		} else {
			channels = append(channels, mqtt)
			closers = append(closers, mqtt.Close)
		}
	}
	closeAll := func() {
		for _, closeFn := range closers {
			closeFn()
		}
	}
	return notify.NewMultiChannel(channels...), closeAll, nil
}

// issue signs a token for "role:subject".
func issue(cfg config.AuthConfig, spec string, ttl time.Duration) (string, error) {
	if !cfg.Enabled() {
		return "", errors.New("auth.jwt_secret is not set")
	}
	rawRole, subject, _ := strings.Cut(spec, ":")
	role, ok := auth.NormalizeRole(rawRole)
	if !ok {
		return "", fmt.Errorf("unknown role %q", rawRole)
	}
	if subject == "" {
		subject = string(role)
	}
	return auth.IssueJWT([]byte(cfg.JWTSecret), subject, role, ttl)
}
