package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"
	"time"

	"rmb_tracker/models"
)

const ashbyAPIURL = "https://jobs.ashbyhq.com/api/non-user-graphql"

const ashbyJobBoardQuery = `query GetJobBoard($organizationHostedJobsPageName: String!) {
  jobBoardWithTeams(organizationHostedJobsPageName: $organizationHostedJobsPageName) {
    jobPostings {
      id
      title
      locationName
      locationAddress
      workplaceType
      employmentType
    }
  }
}`

// AshbyHandler pulls postings through the GraphQL endpoint that backs
// jobs.ashbyhq.com hosted boards.
type AshbyHandler struct {
	client     *http.Client
	maxRetries int
}

func NewAshbyHandler(client *http.Client, maxRetries int) *AshbyHandler {
	return &AshbyHandler{client: client, maxRetries: maxRetries}
}

func (h *AshbyHandler) Platform() string {
	return models.PlatformAshby
}

func (h *AshbyHandler) FetchJobs(ctx context.Context, company models.Company) ([]models.RawJobPosting, json.RawMessage, error) {
	slug := slugFromURL(company.CareersURL, "jobs.ashbyhq.com")
	if slug == "" {
		return nil, nil, fmt.Errorf("not an ashby board url: %s", company.CareersURL)
	}

	reqBody, err := json.Marshal(map[string]interface{}{
		"query":     ashbyJobBoardQuery,
		"variables": map[string]string{"organizationHostedJobsPageName": slug},
	})
	if err != nil {
		return nil, nil, err
	}

	headers := map[string]string{
		"Content-Type": "application/json",
		"Origin":       "https://jobs.ashbyhq.com",
		"Referer":      company.CareersURL,
	}

	body, err := fetchBody(ctx, h.client, h.maxRetries, http.MethodPost, ashbyAPIURL, reqBody, headers)
	if err != nil {
		return nil, nil, fmt.Errorf("ashby fetch %s: %w", slug, err)
	}

	records, err := parseAshbyResponse(body, company, time.Now().UTC())
	if err != nil {
		return nil, json.RawMessage(body), err
	}
	return records, json.RawMessage(body), nil
}

type ashbyResponse struct {
	Data struct {
		JobBoardWithTeams *struct {
			JobPostings []ashbyPosting `json:"jobPostings"`
		} `json:"jobBoardWithTeams"`
	} `json:"data"`
	Errors []struct {
		Message string `json:"message"`
	} `json:"errors"`
}

type ashbyPosting struct {
	ID              string `json:"id"`
	Title           string `json:"title"`
	LocationName    string `json:"locationName"`
	LocationAddress string `json:"locationAddress"`
	WorkplaceType   string `json:"workplaceType"`
	EmploymentType  string `json:"employmentType"`
}

func parseAshbyResponse(body []byte, company models.Company, observedAt time.Time) ([]models.RawJobPosting, error) {
	var resp ashbyResponse
	if err := json.Unmarshal(body, &resp); err != nil {
		return nil, fmt.Errorf("decode ashby response: %w", err)
	}
	if len(resp.Errors) > 0 {
		return nil, fmt.Errorf("ashby graphql error: %s", resp.Errors[0].Message)
	}
	if resp.Data.JobBoardWithTeams == nil {
		return nil, nil
	}

	records := make([]models.RawJobPosting, 0, len(resp.Data.JobBoardWithTeams.JobPostings))
	for _, job := range resp.Data.JobBoardWithTeams.JobPostings {
		if job.ID == "" {
			continue
		}

		location := job.LocationName
		if location == "" {
			location = job.LocationAddress
		}
		workplace := strings.ToLower(job.WorkplaceType)
		isRemote := workplace == "remote" || workplace == "hybrid" ||
			strings.Contains(strings.ToLower(location), "remote")

		raw, _ := json.Marshal(job)
		records = append(records, models.RawJobPosting{
			SourceJobID: job.ID,
			CompanyID:   company.ID,
			Title:       job.Title,
			URL:         strings.TrimRight(company.CareersURL, "/") + "/" + job.ID,
			LocationRaw: location,
			IsRemote:    isRemote,
			SourceURL:   company.CareersURL,
			ObservedAt:  observedAt,
			Data:        raw,
		})
	}
	return records, nil
}
