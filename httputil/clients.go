package httputil

import (
	"net/http"
	"net/url"
	"time"

	"rmb_tracker/config"
)

type Clients struct {
	Boards *http.Client // ATS board APIs; optionally proxied
	Checks *http.Client // careers-page healthchecks; no redirect following
}

func NewClients(proxyCfg *config.ProxyConfig) *Clients {
	transport := http.DefaultTransport.(*http.Transport).Clone()
	if proxyCfg != nil && proxyCfg.URL != "" {
		if proxyURL, err := url.Parse(proxyCfg.URL); err == nil {
			transport.Proxy = http.ProxyURL(proxyURL)
		}
	}

	boards := &http.Client{
		Timeout:   30 * time.Second,
		Transport: transport,
	}

	// HEAD checks care about the raw status code, so a redirect is a
	// signal, not something to follow.
	checks := &http.Client{
		Timeout:   15 * time.Second,
		Transport: transport,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			return http.ErrUseLastResponse
		},
	}

	return &Clients{
		Boards: boards,
		Checks: checks,
	}
}
