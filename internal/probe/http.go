package probe

import (
	"context"
	"net/http"
	"time"

	"github.com/rs/zerolog"
)

type HTTPSettings struct {
	URL              string
	Timeout          time.Duration
	AcceptedStatuses []int
}

// HTTP probes a URL with a bounded timeout. Any transport error counts as
// unhealthy; the status code must be in the accepted set (default: 200).
type HTTP struct {
	client   *http.Client
	url      string
	accepted map[int]struct{}
	log      zerolog.Logger
}

func NewHTTP(settings HTTPSettings, logger zerolog.Logger) *HTTP {
	if settings.Timeout == 0 {
		settings.Timeout = time.Second
	}
	if len(settings.AcceptedStatuses) == 0 {
		settings.AcceptedStatuses = []int{http.StatusOK}
	}
	accepted := make(map[int]struct{}, len(settings.AcceptedStatuses))
	for _, status := range settings.AcceptedStatuses {
		accepted[status] = struct{}{}
	}
	return &HTTP{
		client: &http.Client{
			Timeout: settings.Timeout,
			Transport: &http.Transport{
				DisableKeepAlives: true,
			},
		},
		url:      settings.URL,
		accepted: accepted,
		log:      logger.With().Str("component", "http-probe").Logger(),
	}
}

func (p *HTTP) Check(ctx context.Context) bool {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, p.url, nil)
	if err != nil {
		p.log.Error().Err(err).Msg("failed to build probe request")
		return false
	}
	resp, err := p.client.Do(req)
	if err != nil {
		p.log.Debug().Err(err).Msg("probe request failed")
		return false
	}
	_ = resp.Body.Close()
	if _, ok := p.accepted[resp.StatusCode]; !ok {
		p.log.Debug().Msgf("probe got unaccepted status code = %d", resp.StatusCode)
		return false
	}
	return true
}
