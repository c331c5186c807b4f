package services

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog/log"

	"rmb_tracker/classify"
	"rmb_tracker/models"
	"rmb_tracker/storage"
)

// ErrMalformedRecord marks an incoming record missing a required field.
// Such records are skipped and counted, never fatal to a batch.
var ErrMalformedRecord = errors.New("malformed record")

// PostingStore is the slice of the posting store the merge engine needs.
type PostingStore interface {
	GetJobPosting(ctx context.Context, sourceJobID, companyID string) (*models.JobPosting, error)
	UpsertJobPosting(ctx context.Context, p *models.JobPosting) error
}

var _ PostingStore = (*storage.PostgresStore)(nil)

// PostingService merges observed postings into the persistent history.
// Re-applying an identical batch any number of times leaves the stored
// state unchanged.
type PostingService struct {
	store      PostingStore
	classifier *classify.Classifier
}

func NewPostingService(store PostingStore, classifier *classify.Classifier) *PostingService {
	return &PostingService{
		store:      store,
		classifier: classifier,
	}
}

// ProcessResult contains the outcome of processing one observation.
type ProcessResult struct {
	PostingID   uuid.UUID
	Inserted    bool
	Updated     bool
	Unchanged   bool
	NeedsReview bool // unclassifiable title, flagged for manual audit
}

// BuildPosting normalizes and classifies a raw observation into a posting
// record. LastSeen is the observation date; FirstSeen is the same unless
// the board reported an earlier publish date.
func (s *PostingService) BuildPosting(raw models.RawJobPosting) (models.JobPosting, error) {
	if raw.SourceJobID == "" {
		return models.JobPosting{}, fmt.Errorf("%w: missing source_job_id", ErrMalformedRecord)
	}
	if raw.CompanyID == "" {
		return models.JobPosting{}, fmt.Errorf("%w: missing company_id", ErrMalformedRecord)
	}
	if raw.ObservedAt.IsZero() {
		return models.JobPosting{}, fmt.Errorf("%w: missing observed_at", ErrMalformedRecord)
	}

	res := s.classifier.Classify(raw.Title)
	city, state := ParseLocation(raw.LocationRaw)
	now := time.Now().UTC()

	firstSeen := raw.ObservedAt.UTC()
	if raw.PostedAt != nil && raw.PostedAt.Before(firstSeen) {
		firstSeen = raw.PostedAt.UTC()
	}

	return models.JobPosting{
		ID:             uuid.New(),
		SourceJobID:    raw.SourceJobID,
		CompanyID:      raw.CompanyID,
		TitleRaw:       raw.Title,
		TitleCanonical: classify.NormalizeTitle(raw.Title),
		Function:       nullable(res.Function),
		Level:          nullable(res.Level),
		LocationCity:   city,
		LocationState:  state,
		IsRemote:       raw.IsRemote,
		URL:            raw.URL,
		FirstSeen:      firstSeen,
		LastSeen:       raw.ObservedAt.UTC(),
		CreatedAt:      now,
		UpdatedAt:      now,
	}, nil
}

// ProcessPosting merges one observation into the store, keyed by
// (source_job_id, company_id). First observation inserts; later ones widen
// last_seen and refresh descriptive fields from the newest observation.
// first_seen never changes after creation.
func (s *PostingService) ProcessPosting(ctx context.Context, raw models.RawJobPosting) (*ProcessResult, error) {
	incoming, err := s.BuildPosting(raw)
	if err != nil {
		return nil, err
	}

	result := &ProcessResult{
		NeedsReview: incoming.Function == nil && incoming.Level == nil,
	}
	if result.NeedsReview {
		log.Debug().
			Str("company_id", incoming.CompanyID).
			Str("source_job_id", incoming.SourceJobID).
			Str("title", incoming.TitleRaw).
			Msg("posting_unclassified")
	}

	existing, err := s.store.GetJobPosting(ctx, incoming.SourceJobID, incoming.CompanyID)
	if err != nil {
		return nil, fmt.Errorf("get posting: %w", err)
	}

	if existing == nil {
		if err := s.store.UpsertJobPosting(ctx, &incoming); err != nil {
			return nil, fmt.Errorf("insert posting: %w", err)
		}
		result.PostingID = incoming.ID
		result.Inserted = true
		return result, nil
	}

	merged := models.MergePostings(*existing, incoming)
	merged.ID = existing.ID
	result.PostingID = existing.ID

	if merged.Equivalent(existing) {
		result.Unchanged = true
		return result, nil
	}

	merged.UpdatedAt = time.Now().UTC()
	if err := s.store.UpsertJobPosting(ctx, &merged); err != nil {
		return nil, fmt.Errorf("update posting: %w", err)
	}
	result.Updated = true
	return result, nil
}

// ProcessBatch runs a whole batch, isolating per-record failures into the
// summary rather than aborting.
func (s *PostingService) ProcessBatch(ctx context.Context, raws []models.RawJobPosting) models.RunSummary {
	summary := models.RunSummary{Found: len(raws)}

	for _, raw := range raws {
		res, err := s.ProcessPosting(ctx, raw)
		if err != nil {
			if errors.Is(err, ErrMalformedRecord) {
				summary.Skipped++
				log.Warn().Err(err).
					Str("company_id", raw.CompanyID).
					Str("source_job_id", raw.SourceJobID).
					Msg("posting_skipped")
				continue
			}
			summary.Failed++
			summary.Errors = append(summary.Errors,
				fmt.Sprintf("%s/%s: %v", raw.CompanyID, raw.SourceJobID, err))
			log.Error().Err(err).
				Str("company_id", raw.CompanyID).
				Str("source_job_id", raw.SourceJobID).
				Msg("posting_upsert_error")
			continue
		}

		switch {
		case res.Inserted:
			summary.Inserted++
		case res.Updated:
			summary.Updated++
		default:
			summary.Unchanged++
		}
	}

	return summary
}

// ParseLocation splits "City, ST" location strings into their parts.
// Anything unparseable becomes a city-only value.
func ParseLocation(locationRaw string) (city, state *string) {
	locationRaw = strings.TrimSpace(locationRaw)
	if locationRaw == "" {
		return nil, nil
	}

	parts := strings.Split(locationRaw, ",")
	c := strings.TrimSpace(parts[0])
	if c != "" {
		city = &c
	}
	if len(parts) >= 2 {
		st := strings.TrimSpace(parts[len(parts)-1])
		if len(st) > 2 {
			st = st[:2]
		}
		if st != "" {
			st = strings.ToUpper(st)
			state = &st
		}
	}
	return city, state
}

func nullable(s string) *string {
	if s == "" {
		return nil
	}
	return &s
}
