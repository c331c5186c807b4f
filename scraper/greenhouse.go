package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strconv"
	"strings"
	"time"

	"rmb_tracker/models"
)

// GreenhouseHandler reads the public job board API at
// boards-api.greenhouse.io. Boards link from either boards.greenhouse.io
// or job-boards.greenhouse.io, both carry the same slug.
type GreenhouseHandler struct {
	client     *http.Client
	maxRetries int
}

func NewGreenhouseHandler(client *http.Client, maxRetries int) *GreenhouseHandler {
	return &GreenhouseHandler{client: client, maxRetries: maxRetries}
}

func (h *GreenhouseHandler) Platform() string {
	return models.PlatformGreenhouse
}

func (h *GreenhouseHandler) FetchJobs(ctx context.Context, company models.Company) ([]models.RawJobPosting, json.RawMessage, error) {
	slug := slugFromURL(company.CareersURL, "boards.greenhouse.io")
	if slug == "" {
		slug = slugFromURL(company.CareersURL, "job-boards.greenhouse.io")
	}
	if slug == "" {
		return nil, nil, fmt.Errorf("not a greenhouse board url: %s", company.CareersURL)
	}

	apiURL := fmt.Sprintf("https://boards-api.greenhouse.io/v1/boards/%s/jobs", slug)
	headers := map[string]string{"Accept": "application/json"}

	body, err := fetchBody(ctx, h.client, h.maxRetries, http.MethodGet, apiURL, nil, headers)
	if err != nil {
		return nil, nil, fmt.Errorf("greenhouse fetch %s: %w", slug, err)
	}

	records, err := parseGreenhouseResponse(body, company, time.Now().UTC())
	if err != nil {
		return nil, json.RawMessage(body), err
	}
	return records, json.RawMessage(body), nil
}

type greenhouseResponse struct {
	Jobs []greenhouseJob `json:"jobs"`
}

type greenhouseJob struct {
	ID          int64  `json:"id"`
	Title       string `json:"title"`
	UpdatedAt   string `json:"updated_at"`
	AbsoluteURL string `json:"absolute_url"`
	Location    *struct {
		Name string `json:"name"`
	} `json:"location"`
	Locations []struct {
		Name string `json:"name"`
	} `json:"locations"`
}

func parseGreenhouseResponse(body []byte, company models.Company, observedAt time.Time) ([]models.RawJobPosting, error) {
	var resp greenhouseResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode greenhouse response: %w", err)
	}

	records := make([]models.RawJobPosting, 0, len(resp.Jobs))
	for _, job := range resp.Jobs {
		if job.ID == 0 {
			continue
		}

		// updated_at seeds first_seen so a posting that predates
		// tracking is not treated as brand new.
		var postedAt *time.Time
		if job.UpdatedAt != "" {
			if t, err := time.Parse(time.RFC3339, job.UpdatedAt); err == nil {
				t = t.UTC()
				postedAt = &t
			}
		}

		names := make([]string, 0, len(job.Locations)+1)
		if job.Location != nil && job.Location.Name != "" {
			names = append(names, job.Location.Name)
		}
		for _, loc := range job.Locations {
			if loc.Name != "" {
				names = append(names, loc.Name)
			}
		}
		location := strings.Join(names, ", ")

		url := job.AbsoluteURL
		if url == "" {
			url = fmt.Sprintf("%s/jobs/%d", strings.TrimRight(company.CareersURL, "/"), job.ID)
		}

		raw, _ := json.Marshal(job)
		records = append(records, models.RawJobPosting{
			SourceJobID: strconv.FormatInt(job.ID, 10),
			CompanyID:   company.ID,
			Title:       job.Title,
			URL:         url,
			LocationRaw: location,
			IsRemote:    strings.Contains(strings.ToLower(location), "remote"),
			SourceURL:   company.CareersURL,
			ObservedAt:  observedAt,
			PostedAt:    postedAt,
			Data:        raw,
		})
	}
	return records, nil
}
