package workers

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"rmb_tracker/models"
	"rmb_tracker/storage"
)

// LogFunc mirrors worker activity into the scrape_logs table.
type LogFunc func(level models.LogLevel, source, message string)

var NoOpLogger LogFunc = func(level models.LogLevel, source, message string) {}

// BoardCheckWorker periodically verifies that tracked careers pages still
// resolve. A company whose board keeps failing is deactivated so scrape
// runs stop wasting requests on it.
type BoardCheckWorker struct {
	store       *storage.PostgresStore
	client      *http.Client
	maxFailures int
	triggerCh   chan struct{}
	logFunc     LogFunc
}

func NewBoardCheckWorker(store *storage.PostgresStore, client *http.Client, maxFailures int) *BoardCheckWorker {
	if maxFailures <= 0 {
		maxFailures = 3
	}
	return &BoardCheckWorker{
		store:       store,
		client:      client,
		maxFailures: maxFailures,
		triggerCh:   make(chan struct{}, 1),
		logFunc:     NoOpLogger,
	}
}

func (w *BoardCheckWorker) SetLogger(fn LogFunc) {
	w.logFunc = fn
}

// Trigger causes the worker to run a batch immediately.
func (w *BoardCheckWorker) Trigger() {
	select {
	case w.triggerCh <- struct{}{}:
	default:
	}
}

func (w *BoardCheckWorker) Run(ctx context.Context, staleDuration time.Duration, batchSize int, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			log.Info().Msg("board check worker stopping")
			return
		case <-ticker.C:
			w.processBatch(ctx, staleDuration, batchSize)
		case <-w.triggerCh:
			log.Info().Msg("board check worker triggered manually")
			w.processBatch(ctx, staleDuration, batchSize)
		}
	}
}

func (w *BoardCheckWorker) processBatch(ctx context.Context, staleDuration time.Duration, batchSize int) {
	checkedBefore := time.Now().UTC().Add(-staleDuration)
	companies, err := w.store.ListCompaniesForCheck(ctx, checkedBefore, batchSize)
	if err != nil {
		log.Error().Err(err).Msg("board_check_list_failed")
		return
	}
	if len(companies) == 0 {
		return
	}

	for _, company := range companies {
		if ctx.Err() != nil {
			return
		}
		w.checkCompany(ctx, company)
	}
}

func (w *BoardCheckWorker) checkCompany(ctx context.Context, company models.Company) {
	now := time.Now().UTC()
	alive, status := w.headCheck(ctx, company.CareersURL)

	if alive {
		if err := w.store.TouchCompanyCheck(ctx, company.ID, now); err != nil {
			log.Warn().Err(err).Str("company_id", company.ID).Msg("board_check_touch_failed")
		}
		return
	}

	deactivated, err := w.store.RecordCompanyCheckFailure(ctx, company.ID, now, w.maxFailures)
	if err != nil {
		log.Warn().Err(err).Str("company_id", company.ID).Msg("board_check_record_failed")
		return
	}

	log.Warn().
		Str("company_id", company.ID).
		Str("url", company.CareersURL).
		Int("status", status).
		Bool("deactivated", deactivated).
		Msg("careers_page_check_failed")
	w.logFunc(models.LogLevelWarn, company.ATSPlatform,
		"careers page check failed for "+company.ID)

	if deactivated {
		w.logFunc(models.LogLevelWarn, company.ATSPlatform,
			"company deactivated after repeated board failures: "+company.ID)
	}
}

// headCheck issues a HEAD request without following redirects. A redirect off a
// hosted board usually means the board moved or was taken down.
func (w *BoardCheckWorker) headCheck(ctx context.Context, url string) (bool, int) {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, url, nil)
	if err != nil {
		return false, 0
	}
	req.Header.Set("User-Agent", "Mozilla/5.0 (Windows NT 10.0; Win64; x64) AppleWebKit/537.36")

	resp, err := w.client.Do(req)
	if err != nil {
		return false, 0
	}
	resp.Body.Close()

	switch resp.StatusCode {
	case http.StatusNotFound, http.StatusGone, http.StatusMovedPermanently:
		return false, resp.StatusCode
	default:
		// Temporary redirects and odd codes still count as live; hosted
		// boards answer 200 or 302 depending on the ATS.
		return true, resp.StatusCode
	}
}
