package scraper

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"strings"

	"rmb_tracker/models"
)

// Handler fetches the current postings for one company from its ATS board.
// The raw response body is returned alongside the parsed records so the
// orchestrator can archive it.
type Handler interface {
	Platform() string
	FetchJobs(ctx context.Context, company models.Company) ([]models.RawJobPosting, json.RawMessage, error)
}

func NewHandler(platform string, client *http.Client, maxRetries int) (Handler, error) {
	switch platform {
	case models.PlatformAshby:
		return NewAshbyHandler(client, maxRetries), nil
	case models.PlatformGreenhouse:
		return NewGreenhouseHandler(client, maxRetries), nil
	case models.PlatformLever:
		return NewLeverHandler(client, maxRetries), nil
	default:
		return nil, fmt.Errorf("unknown ats platform: %s", platform)
	}
}

// slugFromURL pulls the company slug out of a careers URL hosted on the
// given board domain, e.g. jobs.ashbyhq.com/acme -> acme.
func slugFromURL(careersURL, host string) string {
	marker := host + "/"
	idx := strings.Index(careersURL, marker)
	if idx < 0 {
		return ""
	}
	slug := careersURL[idx+len(marker):]
	if i := strings.IndexAny(slug, "/?#"); i >= 0 {
		slug = slug[:i]
	}
	return slug
}
