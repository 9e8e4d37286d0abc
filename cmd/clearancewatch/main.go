// Package main wires together the clearance monitor binary.
package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	gpubsub "cloud.google.com/go/pubsub"
	gcstorage "cloud.google.com/go/storage"
	"go.uber.org/zap"

	"clearancewatch/internal/alert"
	"clearancewatch/internal/alert/logsink"
	pubsubsink "clearancewatch/internal/alert/pubsub"
	"clearancewatch/internal/alert/telegram"
	"clearancewatch/internal/api"
	"clearancewatch/internal/clock/system"
	"clearancewatch/internal/config"
	"clearancewatch/internal/cycle"
	"clearancewatch/internal/detect"
	"clearancewatch/internal/healthcheck"
	"clearancewatch/internal/id/uuid"
	"clearancewatch/internal/logging"
	"clearancewatch/internal/metrics"
	"clearancewatch/internal/monitor"
	chromedpreader "clearancewatch/internal/reader/chromedp"
	"clearancewatch/internal/reader/static"
	"clearancewatch/internal/retailer"
	"clearancewatch/internal/snapshot"
	"clearancewatch/internal/storage/gcs"
	"clearancewatch/internal/storage/memory"
	"clearancewatch/internal/storage/postgres"
	"clearancewatch/internal/validate"
	"clearancewatch/internal/worker"
)

func main() {
	cfgPath := flag.String("config", "", "Path to config file")
	once := flag.Bool("once", false, "Run a single cycle and exit")
	retailerFlag := flag.String("retailer", "", "Override configured retailer")
	zipsFlag := flag.String("zips", "", "Comma-separated ZIP codes (overrides config)")
	categoriesFlag := flag.String("categories", "", "Comma-separated name=url category pairs (overrides config)")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "load config failed: %v\n", err)
		os.Exit(1)
	}
	if *retailerFlag != "" {
		cfg.Retailer = *retailerFlag
	}

	logger, err := logging.New(cfg.Logging.Development)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logger init failed: %v\n", err)
		os.Exit(1)
	}
	defer func() {
		_ = logger.Sync()
	}()
	zap.ReplaceGlobals(logger)

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	ok, err := run(ctx, cfg, *once, *zipsFlag, *categoriesFlag, logger)
	stop()
	if err != nil {
		logger.Error("fatal", zap.Error(err))
		_ = logger.Sync()
		os.Exit(1)
	}
	if *once && !ok {
		_ = logger.Sync()
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg config.Config, once bool, zipsFlag, categoriesFlag string, logger *zap.Logger) (bool, error) {
	zips, categories, err := resolveTargets(cfg, zipsFlag, categoriesFlag)
	if err != nil {
		return false, err
	}

	profile, err := retailer.Lookup(cfg.Retailer)
	if err != nil {
		return false, err
	}

	metrics.Init()

	store, closeStore, err := buildStore(ctx, cfg)
	if err != nil {
		return false, err
	}
	defer closeStore()

	factory, closeReader, err := buildReader(profile, cfg)
	if err != nil {
		return false, err
	}
	defer closeReader()

	sink, closeSinks, err := buildSinks(ctx, cfg, logger)
	if err != nil {
		return false, err
	}
	defer closeSinks()

	publisher, err := buildPublisher(ctx, cfg, logger)
	if err != nil {
		return false, err
	}

	clk := system.New()
	idGen := uuid.NewGenerator()
	validator := validate.New(validate.Config{
		MinPrice: monitor.Cents(cfg.Validation.MinPriceCents),
		MaxPrice: monitor.Cents(cfg.Validation.MaxPriceCents),
	}, profile)
	detector := detect.New(store, idGen, detect.Config{
		PctDropThreshold:       cfg.Detect.PctDropThreshold,
		AbsoluteDropByCategory: centsByCategory(cfg.Detect.AbsoluteDrops),
	}, logger.Named("detect"))
	retry := monitor.NewRetryPolicy(
		cfg.Crawl.MaxRetries,
		time.Duration(cfg.Crawl.BackoffInitialMs)*time.Millisecond,
		time.Duration(cfg.Crawl.BackoffMaxMs)*time.Millisecond,
	)
	pauser := monitor.NewPauser(
		time.Duration(cfg.Crawl.PauseMinMs)*time.Millisecond,
		time.Duration(cfg.Crawl.PauseMaxMs)*time.Millisecond,
	)

	pool := worker.NewPool(factory, validator, detector, store, sink, retry, pauser, clk, worker.Config{
		Retailer:     cfg.Retailer,
		PageCap:      cfg.Crawl.PageCap,
		StoreTimeout: time.Duration(cfg.Crawl.StoreTimeoutSec) * time.Second,
		PageTimeout:  time.Duration(cfg.Crawl.PageTimeoutSec) * time.Second,
	}, logger.Named("worker"))

	pinger := healthcheck.New(
		cfg.Healthcheck.URL,
		time.Duration(cfg.Healthcheck.TimeoutSeconds)*time.Second,
		logger.Named("healthcheck"),
	)

	coordinator := cycle.New(pool, store, publisher, pinger, clk, cycle.Config{
		Retailer:            cfg.Retailer,
		Concurrency:         cfg.Crawl.Concurrency,
		QuarantineRetention: cfg.QuarantineRetention(),
	}, logger.Named("cycle"))

	scheduler := cycle.NewScheduler(coordinator, cfg.CycleInterval(), clk, logger.Named("scheduler"))

	if once {
		summary := scheduler.RunOnce(ctx, zips, categories)
		return summary.OK, nil
	}

	srv := &http.Server{
		Addr:              fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:           api.NewServer(store, logger.Named("api")).Handler(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	go func() {
		logger.Info("http server started", zap.Int("port", cfg.Server.Port))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server error", zap.Error(err))
		}
	}()

	scheduler.Run(ctx, zips, categories)

	logger.Info("shutdown initiated")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", zap.Error(err))
	}
	logger.Info("shutdown complete")
	return true, nil
}

func resolveTargets(cfg config.Config, zipsFlag, categoriesFlag string) ([]string, []monitor.Category, error) {
	zips := cfg.Zips
	if zipsFlag != "" {
		zips = splitNonEmpty(zipsFlag)
	}
	if len(zips) == 0 {
		return nil, nil, errors.New("no zips configured")
	}

	var categories []monitor.Category
	if categoriesFlag != "" {
		for _, pair := range splitNonEmpty(categoriesFlag) {
			name, url, found := strings.Cut(pair, "=")
			if !found || name == "" || url == "" {
				return nil, nil, fmt.Errorf("bad category %q, want name=url", pair)
			}
			categories = append(categories, monitor.Category{Name: name, URL: url})
		}
	} else {
		for _, c := range cfg.Categories {
			categories = append(categories, monitor.Category{Name: c.Name, URL: c.URL})
		}
	}
	if len(categories) == 0 {
		return nil, nil, errors.New("no categories configured")
	}
	return zips, categories, nil
}

func splitNonEmpty(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}

func centsByCategory(drops map[string]int64) map[string]monitor.Cents {
	if len(drops) == 0 {
		return nil
	}
	out := make(map[string]monitor.Cents, len(drops))
	for name, cents := range drops {
		out[name] = monitor.Cents(cents)
	}
	return out
}

func buildStore(ctx context.Context, cfg config.Config) (monitor.Store, func(), error) {
	if cfg.DB.DSN == "" {
		return memory.New(), func() {}, nil
	}
	pg, err := postgres.New(ctx, postgres.Config{
		DSN:             cfg.DB.DSN,
		MaxConns:        int32(cfg.DB.MaxConns),
		MinConns:        int32(cfg.DB.MinConns),
		MaxConnLifetime: time.Duration(cfg.DB.ConnLifetime) * time.Minute,
	})
	if err != nil {
		return nil, nil, err
	}
	if err := pg.Migrate(ctx); err != nil {
		pg.Close()
		return nil, nil, err
	}
	return pg, pg.Close, nil
}

func buildReader(profile *retailer.Profile, cfg config.Config) (worker.ReaderFactory, func(), error) {
	if cfg.Crawl.Headless {
		reader, err := chromedpreader.New(profile, chromedpreader.Config{
			MaxParallel:       cfg.Crawl.HeadlessParallel,
			UserAgent:         cfg.Crawl.UserAgent,
			NavigationTimeout: time.Duration(cfg.Crawl.PageTimeoutSec) * time.Second,
			SettleDelay:       time.Duration(cfg.Crawl.SettleDelayMs) * time.Millisecond,
		})
		if err != nil {
			return nil, nil, err
		}
		return reader, reader.Close, nil
	}
	reader, err := static.New(profile, static.Config{
		UserAgent: cfg.Crawl.UserAgent,
		Timeout:   time.Duration(cfg.Crawl.PageTimeoutSec) * time.Second,
	})
	if err != nil {
		return nil, nil, err
	}
	return reader, func() {}, nil
}

func buildSinks(ctx context.Context, cfg config.Config, logger *zap.Logger) (monitor.AlertSink, func(), error) {
	var sinks []monitor.AlertSink
	closers := []func(){}

	if cfg.Alerts.TelegramToken != "" {
		tg, err := telegram.New(telegram.Config{
			Token:  cfg.Alerts.TelegramToken,
			ChatID: cfg.Alerts.TelegramChatID,
		})
		if err != nil {
			return nil, nil, err
		}
		sinks = append(sinks, tg)
	}

	if cfg.Alerts.PubSubProject != "" {
		client, err := gpubsub.NewClient(ctx, cfg.Alerts.PubSubProject)
		if err != nil {
			return nil, nil, fmt.Errorf("pubsub client: %w", err)
		}
		topic := client.Topic(cfg.Alerts.PubSubTopic)
		ps, err := pubsubsink.New(topic)
		if err != nil {
			client.Close()
			return nil, nil, err
		}
		sinks = append(sinks, ps)
		closers = append(closers, func() {
			topic.Stop()
			_ = client.Close()
		})
	}

	if len(sinks) == 0 {
		sinks = append(sinks, logsink.New(logger.Named("alerts")))
	}

	closeAll := func() {
		for _, c := range closers {
			c()
		}
	}
	if len(sinks) == 1 {
		return sinks[0], closeAll, nil
	}
	return alert.NewFanout(sinks...), closeAll, nil
}

func buildPublisher(ctx context.Context, cfg config.Config, logger *zap.Logger) (monitor.SnapshotPublisher, error) {
	var blob snapshot.BlobStore
	if cfg.Snapshot.GCSBucket != "" {
		client, err := gcstorage.NewClient(ctx)
		if err != nil {
			return nil, fmt.Errorf("gcs client: %w", err)
		}
		blob, err = gcs.New(client, gcs.Config{Bucket: cfg.Snapshot.GCSBucket})
		if err != nil {
			return nil, err
		}
	}
	objectPath := "latest.csv"
	if cfg.Snapshot.GCSPrefix != "" {
		objectPath = cfg.Snapshot.GCSPrefix + "/latest.csv"
	}
	return snapshot.New(snapshot.Config{
		Path:       cfg.Snapshot.Path,
		ObjectPath: objectPath,
	}, blob, logger.Named("snapshot"))
}
