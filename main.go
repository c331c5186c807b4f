package main

import (
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/rs/zerolog/log"

	"rmb_tracker/classify"
	"rmb_tracker/config"
	"rmb_tracker/httputil"
	"rmb_tracker/logging"
	"rmb_tracker/metrics"
	"rmb_tracker/models"
	"rmb_tracker/scheduler"
	"rmb_tracker/scraper"
	"rmb_tracker/services"
	"rmb_tracker/storage"
	"rmb_tracker/workers"
)

var (
	scrapeNow  = flag.Bool("scrape", false, "Run a full scrape once and exit")
	metricsNow = flag.Bool("metrics", false, "Compute weekly metrics once and exit")
	refDateStr = flag.String("date", "", "Reference date for -metrics (YYYY-MM-DD, default today)")
	companyID  = flag.String("company", "", "Scrape a single company by id (with -scrape)")
	platform   = flag.String("platform", "", "Scrape a single ATS platform (with -scrape)")
	enqueueCmd = flag.String("cmd", "", "Enqueue a command for a running daemon (scrape_now, compute_metrics, pause, resume, check_boards)")
)

func main() {
	flag.Parse()

	cfg, err := config.Load()
	if err != nil {
		fmt.Fprintf(os.Stderr, "config: %v\n", err)
		os.Exit(1)
	}

	logWriter, err := logging.Setup(cfg.LogPath, cfg.LogLevel)
	if err != nil {
		fmt.Fprintf(os.Stderr, "logging: %v\n", err)
		os.Exit(1)
	}
	defer logWriter.Close()

	log.Info().Msg("starting rmb_tracker")

	// Command enqueueing talks only to the local ops store; the running
	// daemon picks it up on its next poll.
	if *enqueueCmd != "" {
		if err := enqueueCommand(cfg, *enqueueCmd); err != nil {
			log.Fatal().Err(err).Msg("enqueue failed")
		}
		log.Info().Str("command", *enqueueCmd).Msg("command enqueued")
		return
	}

	taxonomy, err := cfg.LoadTaxonomy()
	if err != nil {
		log.Fatal().Err(err).Msg("taxonomy load failed")
	}
	classifier, err := classify.New(taxonomy)
	if err != nil {
		log.Fatal().Err(err).Msg("taxonomy rejected")
	}
	log.Info().
		Str("version", classifier.Version()).
		Strs("functions", classifier.Functions()).
		Msg("classifier ready")

	ctx := context.Background()

	pgStore, err := storage.NewPostgresStore(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatal().Err(err).Msg("postgres connect failed")
	}
	defer pgStore.Close()
	log.Info().Str("dsn", maskConnectionString(cfg.DatabaseURL)).Msg("postgres connected")

	sqliteStore, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		log.Fatal().Err(err).Msg("sqlite open failed")
	}
	defer sqliteStore.Close()
	log.Info().Str("path", cfg.DBPath).Msg("sqlite ready")

	clients := httputil.NewClients(&cfg.Proxy)
	postingService := services.NewPostingService(pgStore, classifier)
	orchestrator := scraper.NewOrchestrator(cfg, sqliteStore, pgStore, postingService, clients)

	if cfg.Archive.Enabled {
		archiver, err := storage.NewArchiver(ctx, storage.ArchiveConfig{
			Bucket:          cfg.Archive.Bucket,
			Region:          cfg.Archive.Region,
			Endpoint:        cfg.Archive.Endpoint,
			AccessKeyID:     cfg.Archive.AccessKeyID,
			SecretAccessKey: cfg.Archive.SecretAccessKey,
		})
		if err != nil {
			log.Fatal().Err(err).Msg("archiver init failed")
		}
		orchestrator.SetArchiver(archiver)
		log.Info().Str("bucket", cfg.Archive.Bucket).Msg("raw payload archive enabled")
	}

	metricsRunner := metrics.NewRunner(pgStore, metrics.Options{
		StaleDays:    cfg.Metrics.StaleDays,
		CompareDays:  cfg.Metrics.CompareDays,
		TopEmployers: cfg.Metrics.TopEmployers,
		Functions:    classifier.Functions(),
	})

	switch {
	case *scrapeNow:
		runScrapeOnce(ctx, orchestrator)
		return
	case *metricsNow:
		runMetricsOnce(ctx, metricsRunner)
		return
	}

	// Daemon mode
	ctx, cancel := context.WithCancel(ctx)
	defer cancel()

	sched := scheduler.New(cfg, orchestrator, metricsRunner, sqliteStore)

	boardCheck := workers.NewBoardCheckWorker(pgStore, clients.Checks, 3)
	boardCheck.SetLogger(func(level models.LogLevel, source, message string) {
		if err := sqliteStore.AddLog(nil, level, source, message); err != nil {
			log.Warn().Err(err).Msg("worker log write failed")
		}
	})
	sched.SetBoardCheckWorker(boardCheck)

	if last, err := sqliteStore.GetLastRunTime(models.RunTypeScrape); err == nil && !last.IsZero() {
		log.Info().Time("last_scrape", last).Msg("resuming after previous run")
	}

	if err := sched.Start(ctx); err != nil {
		log.Fatal().Err(err).Msg("scheduler start failed")
	}

	go boardCheck.Run(ctx, 24*time.Hour, 20, 30*time.Minute)
	log.Info().Msg("board check worker started")

	log.Info().Msg("daemon running")

	sigCh := make(chan os.Signal, 1)
	signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
	<-sigCh

	log.Info().Msg("shutting down")
	sched.Stop()
}

func runScrapeOnce(ctx context.Context, orchestrator *scraper.Orchestrator) {
	var err error
	switch {
	case *companyID != "":
		_, err = orchestrator.RunCompany(ctx, *companyID)
	case *platform != "":
		_, err = orchestrator.RunPlatform(ctx, *platform)
	default:
		_, err = orchestrator.RunAll(ctx)
	}
	if err != nil {
		log.Fatal().Err(err).Msg("scrape failed")
	}
	log.Info().Msg("scrape complete")
}

func runMetricsOnce(ctx context.Context, runner *metrics.Runner) {
	refDate := time.Now().UTC()
	if *refDateStr != "" {
		d, err := time.Parse("2006-01-02", *refDateStr)
		if err != nil {
			log.Fatal().Err(err).Str("date", *refDateStr).Msg("bad reference date")
		}
		refDate = d
	}

	result, err := runner.Run(ctx, refDate)
	if err != nil {
		log.Fatal().Err(err).Msg("metrics run failed")
	}
	log.Info().
		Time("week_start", result.WeekStart).
		Int("postings", result.PostingsRead).
		Bool("insufficient_history", result.InsufficientHistory).
		Msg("metrics complete")
}

func enqueueCommand(cfg *config.Config, name string) error {
	cmdType := models.CommandType(name)
	switch cmdType {
	case models.CmdScrapeNow, models.CmdScrapePlatform, models.CmdComputeMetrics,
		models.CmdPause, models.CmdResume, models.CmdCheckBoards:
	default:
		return fmt.Errorf("unknown command: %s", name)
	}

	store, err := storage.NewSQLiteStore(cfg.DBPath)
	if err != nil {
		return fmt.Errorf("open ops store: %w", err)
	}
	defer store.Close()

	params, err := json.Marshal(models.CommandParams{
		Platform: *platform,
		Company:  *companyID,
		Date:     *refDateStr,
	})
	if err != nil {
		return err
	}

	return store.EnqueueCommand(&models.Command{
		Command:   cmdType,
		Params:    params,
		CreatedAt: time.Now().UTC(),
	})
}

// maskConnectionString hides the password portion of a DSN for logging.
func maskConnectionString(connStr string) string {
	schemeEnd := strings.Index(connStr, "://")
	if schemeEnd < 0 {
		return connStr
	}
	rest := connStr[schemeEnd+3:]
	at := strings.LastIndex(rest, "@")
	if at < 0 {
		return connStr
	}
	userinfo := rest[:at]
	if colon := strings.Index(userinfo, ":"); colon >= 0 {
		userinfo = userinfo[:colon] + ":****"
	}
	return connStr[:schemeEnd+3] + userinfo + rest[at:]
}
