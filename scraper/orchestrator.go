package scraper

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog/log"

	"rmb_tracker/config"
	"rmb_tracker/httputil"
	"rmb_tracker/models"
	"rmb_tracker/services"
	"rmb_tracker/storage"
)

// Orchestrator drives one scrape pass: for every active company it picks
// the handler for that company's ATS, fetches the board, and feeds the
// records through the posting service. Per-company failures are recorded
// and the pass continues.
type Orchestrator struct {
	cfg      *config.Config
	store    *storage.SQLiteStore
	pgStore  *storage.PostgresStore
	postings *services.PostingService
	handlers map[string]Handler
	archiver *storage.Archiver

	mu     sync.Mutex
	paused bool
}

func NewOrchestrator(cfg *config.Config, store *storage.SQLiteStore, pgStore *storage.PostgresStore, postings *services.PostingService, clients *httputil.Clients) *Orchestrator {
	handlers := make(map[string]Handler)
	for _, platform := range []string{models.PlatformAshby, models.PlatformGreenhouse, models.PlatformLever} {
		h, err := NewHandler(platform, clients.Boards, cfg.Scraper.MaxRetries)
		if err != nil {
			continue
		}
		handlers[h.Platform()] = h
	}

	return &Orchestrator{
		cfg:      cfg,
		store:    store,
		pgStore:  pgStore,
		postings: postings,
		handlers: handlers,
	}
}

// SetArchiver enables raw payload archiving. Optional.
func (o *Orchestrator) SetArchiver(a *storage.Archiver) {
	o.archiver = a
}

func (o *Orchestrator) Pause() {
	o.mu.Lock()
	o.paused = true
	o.mu.Unlock()
	log.Info().Msg("scraper_paused")
}

func (o *Orchestrator) Resume() {
	o.mu.Lock()
	o.paused = false
	o.mu.Unlock()
	log.Info().Msg("scraper_resumed")
}

func (o *Orchestrator) isPaused() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.paused
}

// RunAll scrapes every active company across all platforms.
func (o *Orchestrator) RunAll(ctx context.Context) (models.RunSummary, error) {
	return o.run(ctx, "all", nil)
}

// RunPlatform scrapes only the active companies on one ATS platform.
func (o *Orchestrator) RunPlatform(ctx context.Context, platform string) (models.RunSummary, error) {
	if !models.KnownPlatform(platform) {
		return models.RunSummary{}, fmt.Errorf("unknown ats platform: %s", platform)
	}
	return o.run(ctx, platform, nil)
}

// RunCompany scrapes a single company by id, regardless of its active flag.
func (o *Orchestrator) RunCompany(ctx context.Context, companyID string) (models.RunSummary, error) {
	company, err := o.pgStore.GetCompany(ctx, companyID)
	if err != nil {
		return models.RunSummary{}, fmt.Errorf("get company: %w", err)
	}
	if company == nil {
		return models.RunSummary{}, fmt.Errorf("unknown company: %s", companyID)
	}
	return o.run(ctx, company.ATSPlatform, []models.Company{*company})
}

func (o *Orchestrator) run(ctx context.Context, platform string, companies []models.Company) (models.RunSummary, error) {
	var summary models.RunSummary

	if o.isPaused() {
		log.Info().Msg("scrape_skipped_paused")
		return summary, nil
	}

	if companies == nil {
		all, err := o.pgStore.ListActiveCompanies(ctx)
		if err != nil {
			return summary, fmt.Errorf("list companies: %w", err)
		}
		for _, c := range all {
			if platform == "all" || c.ATSPlatform == platform {
				companies = append(companies, c)
			}
		}
	}

	run := &models.ScrapeRun{
		RunType:   models.RunTypeScrape,
		Platform:  platform,
		StartedAt: time.Now().UTC(),
		Status:    models.RunStatusRunning,
	}
	runID, err := o.store.CreateRun(run)
	if err != nil {
		return summary, fmt.Errorf("create run record: %w", err)
	}
	run.ID = runID

	pgRun := &models.ScrapeRun{
		RunType:   models.RunTypeScrape,
		Platform:  platform,
		StartedAt: run.StartedAt,
		Status:    models.RunStatusRunning,
	}
	if err := o.pgStore.CreateScrapeRun(ctx, pgRun); err != nil {
		log.Warn().Err(err).Msg("mirror_run_create_failed")
		pgRun = nil
	}

	o.logRun(runID, models.LogLevelInfo, platform,
		fmt.Sprintf("starting scrape of %d companies", len(companies)))

	runDate := run.StartedAt
	for i, company := range companies {
		if ctx.Err() != nil {
			summary.Errors = append(summary.Errors, ctx.Err().Error())
			break
		}
		if i > 0 && o.cfg.Scraper.DelayMS > 0 {
			time.Sleep(time.Duration(o.cfg.Scraper.DelayMS) * time.Millisecond)
		}

		companySummary := o.scrapeCompany(ctx, runID, runDate, company)
		summary.Add(companySummary)
	}

	o.finishRun(ctx, run, pgRun, &summary)

	platforms := map[string]bool{}
	for _, c := range companies {
		platforms[c.ATSPlatform] = true
	}
	for p := range platforms {
		if err := o.store.UpdatePlatformStats(p); err != nil {
			log.Warn().Err(err).Str("platform", p).Msg("platform_stats_update_failed")
		}
	}

	log.Info().
		Str("platform", platform).
		Int("found", summary.Found).
		Int("inserted", summary.Inserted).
		Int("updated", summary.Updated).
		Int("unchanged", summary.Unchanged).
		Int("skipped", summary.Skipped).
		Int("failed", summary.Failed).
		Msg("scrape_run_completed")

	return summary, nil
}

func (o *Orchestrator) scrapeCompany(ctx context.Context, runID int64, runDate time.Time, company models.Company) models.RunSummary {
	handler, ok := o.handlers[company.ATSPlatform]
	if !ok {
		msg := fmt.Sprintf("%s: unsupported ats platform %q", company.ID, company.ATSPlatform)
		o.logRun(runID, models.LogLevelWarn, company.ATSPlatform, msg)
		return models.RunSummary{Failed: 1, Errors: []string{msg}}
	}

	records, payload, err := handler.FetchJobs(ctx, company)
	if err != nil {
		msg := fmt.Sprintf("%s: fetch: %v", company.ID, err)
		o.logRun(runID, models.LogLevelError, company.ATSPlatform, msg)
		log.Error().Err(err).
			Str("company_id", company.ID).
			Str("platform", company.ATSPlatform).
			Msg("company_fetch_failed")
		return models.RunSummary{Failed: 1, Errors: []string{msg}}
	}

	if o.archiver != nil && len(payload) > 0 {
		if key, aerr := o.archiver.ArchivePayload(ctx, runDate, company.ATSPlatform, company.ID, payload); aerr != nil {
			log.Warn().Err(aerr).Str("company_id", company.ID).Msg("payload_archive_failed")
		} else {
			log.Debug().Str("key", key).Msg("payload_archived")
		}
	}

	summary := o.postings.ProcessBatch(ctx, records)
	o.logRun(runID, models.LogLevelInfo, company.ATSPlatform,
		fmt.Sprintf("%s: %d found, %d inserted, %d updated, %d unchanged, %d skipped, %d failed",
			company.ID, summary.Found, summary.Inserted, summary.Updated,
			summary.Unchanged, summary.Skipped, summary.Failed))
	return summary
}

func (o *Orchestrator) finishRun(ctx context.Context, run, pgRun *models.ScrapeRun, summary *models.RunSummary) {
	now := time.Now().UTC()
	run.FinishedAt = &now
	run.Status = models.RunStatusCompleted
	if summary.Failed > 0 && summary.Inserted == 0 && summary.Updated == 0 && summary.Unchanged == 0 {
		run.Status = models.RunStatusFailed
	}
	run.JobsFound = summary.Found
	run.JobsInserted = summary.Inserted
	run.JobsUpdated = summary.Updated
	run.JobsUnchanged = summary.Unchanged
	run.JobsSkipped = summary.Skipped
	run.ErrorsCount = summary.Failed
	if len(summary.Errors) > 0 {
		run.ErrorMessage = strings.Join(summary.Errors, "; ")
	}
	run.Metadata = summary.ToJSON()

	if err := o.store.UpdateRun(run); err != nil {
		log.Warn().Err(err).Msg("run_update_failed")
	}
	if pgRun != nil {
		pgRun.FinishedAt = run.FinishedAt
		pgRun.Status = run.Status
		pgRun.JobsFound = run.JobsFound
		pgRun.JobsInserted = run.JobsInserted
		pgRun.JobsUpdated = run.JobsUpdated
		pgRun.JobsUnchanged = run.JobsUnchanged
		pgRun.JobsSkipped = run.JobsSkipped
		pgRun.ErrorsCount = run.ErrorsCount
		pgRun.ErrorMessage = run.ErrorMessage
		pgRun.Metadata = run.Metadata
		if err := o.pgStore.UpdateScrapeRun(ctx, pgRun); err != nil {
			log.Warn().Err(err).Msg("mirror_run_update_failed")
		}
	}
}

func (o *Orchestrator) logRun(runID int64, level models.LogLevel, platform, message string) {
	if err := o.store.AddLog(&runID, level, platform, message); err != nil {
		log.Warn().Err(err).Msg("run_log_failed")
	}
}
