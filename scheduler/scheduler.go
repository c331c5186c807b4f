package scheduler

import (
	"context"
	"encoding/json"
	"fmt"
	"sync/atomic"
	"time"

	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"

	"rmb_tracker/config"
	"rmb_tracker/metrics"
	"rmb_tracker/models"
	"rmb_tracker/scraper"
	"rmb_tracker/storage"
)

// Triggerable lets background workers be kicked manually.
type Triggerable interface {
	Trigger()
}

// Scheduler owns the cron entries for scrape and metrics runs and polls
// the local command queue. The two run types share one in-flight guard:
// metrics must never read a snapshot mid-upsert, so a tick of either kind
// that lands while any run is in flight is skipped and logged.
type Scheduler struct {
	cfg          *config.Config
	orchestrator *scraper.Orchestrator
	metricsRun   *metrics.Runner
	store        *storage.SQLiteStore
	cron         *cron.Cron
	stopCh       chan struct{}

	runInFlight atomic.Bool

	boardCheckWorker Triggerable
}

func New(cfg *config.Config, orchestrator *scraper.Orchestrator, metricsRun *metrics.Runner, store *storage.SQLiteStore) *Scheduler {
	return &Scheduler{
		cfg:          cfg,
		orchestrator: orchestrator,
		metricsRun:   metricsRun,
		store:        store,
		cron:         cron.New(),
		stopCh:       make(chan struct{}),
	}
}

// SetBoardCheckWorker registers the careers-page check worker for manual
// triggering through the command queue.
func (s *Scheduler) SetBoardCheckWorker(w Triggerable) {
	s.boardCheckWorker = w
}

func (s *Scheduler) Start(ctx context.Context) error {
	go s.pollCommands(ctx)

	if s.cfg.Scheduler.ScrapeCron != "" {
		log.Info().Str("cron", s.cfg.Scheduler.ScrapeCron).Msg("scrape_schedule_registered")
		_, err := s.cron.AddFunc(s.cfg.Scheduler.ScrapeCron, func() {
			s.runScrape(ctx)
		})
		if err != nil {
			return fmt.Errorf("invalid scrape cron expression: %w", err)
		}
	}

	if s.cfg.Scheduler.MetricsCron != "" {
		log.Info().Str("cron", s.cfg.Scheduler.MetricsCron).Msg("metrics_schedule_registered")
		_, err := s.cron.AddFunc(s.cfg.Scheduler.MetricsCron, func() {
			s.runMetrics(ctx, time.Now().UTC())
		})
		if err != nil {
			return fmt.Errorf("invalid metrics cron expression: %w", err)
		}
	}

	if s.cfg.Scheduler.ScrapeCron == "" && s.cfg.Scheduler.MetricsCron == "" {
		log.Info().Msg("no schedules configured, daemon will only respond to commands")
	}

	s.cron.Start()
	return nil
}

func (s *Scheduler) Stop() {
	s.cron.Stop()
	close(s.stopCh)
}

func (s *Scheduler) runScrape(ctx context.Context) {
	if !s.runInFlight.CompareAndSwap(false, true) {
		log.Warn().Msg("scrape_tick_skipped_run_in_flight")
		return
	}
	defer s.runInFlight.Store(false)

	if _, err := s.orchestrator.RunAll(ctx); err != nil {
		log.Error().Err(err).Msg("scheduled_scrape_failed")
	}
}

func (s *Scheduler) runScrapeCompany(ctx context.Context, companyID string) {
	if !s.runInFlight.CompareAndSwap(false, true) {
		log.Warn().Str("company_id", companyID).Msg("scrape_command_skipped_run_in_flight")
		return
	}
	defer s.runInFlight.Store(false)

	if _, err := s.orchestrator.RunCompany(ctx, companyID); err != nil {
		log.Error().Err(err).Str("company_id", companyID).Msg("company_scrape_failed")
	}
}

func (s *Scheduler) runScrapePlatform(ctx context.Context, platform string) {
	if !s.runInFlight.CompareAndSwap(false, true) {
		log.Warn().Str("platform", platform).Msg("scrape_command_skipped_run_in_flight")
		return
	}
	defer s.runInFlight.Store(false)

	if _, err := s.orchestrator.RunPlatform(ctx, platform); err != nil {
		log.Error().Err(err).Str("platform", platform).Msg("platform_scrape_failed")
	}
}

func (s *Scheduler) runMetrics(ctx context.Context, refDate time.Time) {
	if !s.runInFlight.CompareAndSwap(false, true) {
		log.Warn().Msg("metrics_tick_skipped_run_in_flight")
		return
	}
	defer s.runInFlight.Store(false)

	run := &models.ScrapeRun{
		RunType:   models.RunTypeMetrics,
		Platform:  "all",
		StartedAt: time.Now().UTC(),
		Status:    models.RunStatusRunning,
	}
	runID, err := s.store.CreateRun(run)
	if err != nil {
		log.Warn().Err(err).Msg("metrics_run_record_failed")
	} else {
		run.ID = runID
	}

	result, err := s.metricsRun.Run(ctx, refDate)

	now := time.Now().UTC()
	run.FinishedAt = &now
	if err != nil {
		run.Status = models.RunStatusFailed
		run.ErrorMessage = err.Error()
		log.Error().Err(err).Msg("scheduled_metrics_failed")
	} else {
		run.Status = models.RunStatusCompleted
		run.JobsFound = result.PostingsRead
	}
	if runID != 0 {
		if uerr := s.store.UpdateRun(run); uerr != nil {
			log.Warn().Err(uerr).Msg("metrics_run_update_failed")
		}
	}
}

func (s *Scheduler) pollCommands(ctx context.Context) {
	ticker := time.NewTicker(2 * time.Second)
	defer ticker.Stop()

	for {
		select {
		case <-ticker.C:
			cmds, err := s.store.GetPendingCommands()
			if err != nil {
				log.Error().Err(err).Msg("command_poll_failed")
				continue
			}

			for _, cmd := range cmds {
				log.Info().Str("command", string(cmd.Command)).Msg("command_received")
				if err := s.handleCommand(ctx, &cmd); err != nil {
					log.Error().Err(err).Str("command", string(cmd.Command)).Msg("command_failed")
				}
				if err := s.store.MarkCommandProcessed(cmd.ID); err != nil {
					log.Error().Err(err).Msg("command_mark_processed_failed")
				}
			}
		case <-s.stopCh:
			return
		case <-ctx.Done():
			return
		}
	}
}

func (s *Scheduler) handleCommand(ctx context.Context, cmd *models.Command) error {
	var params models.CommandParams
	if len(cmd.Params) > 0 {
		if err := json.Unmarshal(cmd.Params, &params); err != nil {
			return fmt.Errorf("decode command params: %w", err)
		}
	}

	switch cmd.Command {
	case models.CmdScrapeNow:
		if params.Company != "" {
			go s.runScrapeCompany(ctx, params.Company)
			return nil
		}
		go s.runScrape(ctx)
		return nil
	case models.CmdScrapePlatform:
		if params.Platform == "" {
			return fmt.Errorf("scrape_platform command missing platform")
		}
		go s.runScrapePlatform(ctx, params.Platform)
		return nil
	case models.CmdComputeMetrics:
		refDate := time.Now().UTC()
		if params.Date != "" {
			d, err := time.Parse("2006-01-02", params.Date)
			if err != nil {
				return fmt.Errorf("bad reference date %q: %w", params.Date, err)
			}
			refDate = d
		}
		go s.runMetrics(ctx, refDate)
		return nil
	case models.CmdPause:
		s.orchestrator.Pause()
		return nil
	case models.CmdResume:
		s.orchestrator.Resume()
		return nil
	case models.CmdCheckBoards:
		if s.boardCheckWorker != nil {
			s.boardCheckWorker.Trigger()
		}
		return nil
	default:
		return fmt.Errorf("unknown command: %s", cmd.Command)
	}
}

// TriggerScrape runs a full scrape immediately, outside the schedule.
func (s *Scheduler) TriggerScrape(ctx context.Context) {
	s.runScrape(ctx)
}
