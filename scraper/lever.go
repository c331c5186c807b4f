package scraper

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/rs/zerolog/log"

	"rmb_tracker/models"
)

// LeverHandler prefers the JSON postings API and falls back to parsing
// the hosted board HTML when the API is closed off for a company.
type LeverHandler struct {
	client     *http.Client
	maxRetries int
}

func NewLeverHandler(client *http.Client, maxRetries int) *LeverHandler {
	return &LeverHandler{client: client, maxRetries: maxRetries}
}

func (h *LeverHandler) Platform() string {
	return models.PlatformLever
}

func (h *LeverHandler) FetchJobs(ctx context.Context, company models.Company) ([]models.RawJobPosting, json.RawMessage, error) {
	slug := slugFromURL(company.CareersURL, "jobs.lever.co")
	if slug == "" {
		slug = slugFromURL(company.CareersURL, "lever.co")
	}
	if slug == "" || slug == "www" {
		return nil, nil, fmt.Errorf("not a lever board url: %s", company.CareersURL)
	}

	apiURL := fmt.Sprintf("https://api.lever.co/v0/postings/%s?mode=json", slug)
	headers := map[string]string{"Accept": "application/json"}

	body, err := fetchBody(ctx, h.client, h.maxRetries, http.MethodGet, apiURL, nil, headers)
	if err == nil {
		records, perr := parseLeverResponse(body, company, time.Now().UTC())
		if perr == nil {
			return records, json.RawMessage(body), nil
		}
		err = perr
	}

	log.Warn().Err(err).
		Str("company_id", company.ID).
		Str("slug", slug).
		Msg("lever_api_failed_falling_back_to_html")

	boardURL := fmt.Sprintf("https://jobs.lever.co/%s", slug)
	html, herr := fetchBody(ctx, h.client, h.maxRetries, http.MethodGet, boardURL, nil, nil)
	if herr != nil {
		return nil, nil, fmt.Errorf("lever fetch %s: api: %v, html: %w", slug, err, herr)
	}

	records, perr := parseLeverBoardHTML(html, company, time.Now().UTC())
	if perr != nil {
		return nil, nil, perr
	}
	return records, nil, nil
}

type leverPosting struct {
	ID         string `json:"id"`
	Text       string `json:"text"`
	HostedURL  string `json:"hostedUrl"`
	CreatedAt  int64  `json:"createdAt"` // milliseconds
	Categories struct {
		Location   string `json:"location"`
		Commitment string `json:"commitment"`
		Team       string `json:"team"`
	} `json:"categories"`
	WorkplaceType string `json:"workplaceType"`
}

func parseLeverResponse(body []byte, company models.Company, observedAt time.Time) ([]models.RawJobPosting, error) {
	var postings []leverPosting
	if err := json.Unmarshal(body, &postings); err != nil {
		return nil, fmt.Errorf("decode lever response: %w", err)
	}

	records := make([]models.RawJobPosting, 0, len(postings))
	for _, job := range postings {
		if job.ID == "" {
			continue
		}

		var postedAt *time.Time
		if job.CreatedAt > 0 {
			t := time.UnixMilli(job.CreatedAt).UTC()
			postedAt = &t
		}

		url := job.HostedURL
		if url == "" {
			url = strings.TrimRight(company.CareersURL, "/") + "/" + job.ID
		}

		location := job.Categories.Location
		isRemote := strings.EqualFold(job.WorkplaceType, "remote") ||
			strings.Contains(strings.ToLower(location), "remote")

		raw, _ := json.Marshal(job)
		records = append(records, models.RawJobPosting{
			SourceJobID: job.ID,
			CompanyID:   company.ID,
			Title:       job.Text,
			URL:         url,
			LocationRaw: location,
			IsRemote:    isRemote,
			SourceURL:   company.CareersURL,
			ObservedAt:  observedAt,
			PostedAt:    postedAt,
			Data:        raw,
		})
	}
	return records, nil
}

// parseLeverBoardHTML scrapes the hosted board page. Postings render as
// div.posting blocks with the job id in the posting-title href.
func parseLeverBoardHTML(html []byte, company models.Company, observedAt time.Time) ([]models.RawJobPosting, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(html))
	if err != nil {
		return nil, fmt.Errorf("parse lever board html: %w", err)
	}

	var records []models.RawJobPosting
	doc.Find("div.posting").Each(func(_ int, s *goquery.Selection) {
		href, ok := s.Find("a.posting-title").Attr("href")
		if !ok {
			return
		}
		href = strings.TrimRight(href, "/")
		id := href[strings.LastIndex(href, "/")+1:]
		if id == "" {
			return
		}

		title := strings.TrimSpace(s.Find("h5[data-qa=posting-name]").Text())
		if title == "" {
			title = strings.TrimSpace(s.Find("h5").First().Text())
		}
		location := strings.TrimSpace(s.Find(".posting-categories .sort-by-location").Text())

		records = append(records, models.RawJobPosting{
			SourceJobID: id,
			CompanyID:   company.ID,
			Title:       title,
			URL:         href,
			LocationRaw: location,
			IsRemote:    strings.Contains(strings.ToLower(location), "remote"),
			SourceURL:   company.CareersURL,
			ObservedAt:  observedAt,
		})
	})
	return records, nil
}
