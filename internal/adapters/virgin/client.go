// internal/adapters/virgin/client.go
package virgin

import (
	"bytes"
	"context"
	"encoding/json"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/rs/zerolog/log"
	"golang.org/x/time/rate"

	"rewardo/internal/adapters/observability"
	"rewardo/internal/domain"
)

const (
	DefaultBaseURL = "https://www.virginatlantic.com/travelplus/reward-seat-checker-api/"
	userAgent      = "PostmanRuntime/7.44.1"
	service        = "virgin"
)

// Client speaks the reward-seat checker's two-step protocol: a POST that
// answers with a Location and session cookies, then a GET of that Location
// carrying the cookies back.
type Client struct {
	base *url.URL
	hc   *http.Client
	rl   *rate.Limiter
}

func New(base string, rps float64, timeout time.Duration) (*Client, error) {
	if base == "" {
		base = DefaultBaseURL
	}
	u, err := url.Parse(base)
	if err != nil {
		return nil, errors.Wrapf(err, "parse base url %q", base)
	}
	if rps <= 0 {
		rps = 1
	}
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		base: u,
		hc: &http.Client{
			Timeout: timeout,
			// the Location of the first leg is consumed by hand
			CheckRedirect: func(*http.Request, []*http.Request) error { return http.ErrUseLastResponse },
		},
		rl: rate.NewLimiter(rate.Limit(rps), 1),
	}, nil
}

// FetchMonth runs both legs for one (origin, destination, month) and returns
// every per-day entry of the returned calendars. It never retries.
func (c *Client) FetchMonth(ctx context.Context, req domain.MonthRequest) ([]domain.DayAward, error) {
	body, err := json.Marshal(newFlightRequest(req))
	if err != nil {
		return nil, err
	}

	location, cookie, err := c.start(ctx, body)
	if err != nil {
		return nil, err
	}

	calendars, err := c.collect(ctx, location, cookie)
	if err != nil {
		return nil, err
	}
	return flatten(calendars), nil
}

// start issues the first leg and returns the Location to follow and the
// Cookie header rebuilt from Set-Cookie.
func (c *Client) start(ctx context.Context, body []byte) (*url.URL, string, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, "", err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodPost, c.base.String(), bytes.NewReader(body))
	if err != nil {
		return nil, "", err
	}
	req.Host = c.base.Host
	req.Header.Set("Content-Type", "application/json")
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	req.Header.Set("Connection", "keep-alive")

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, "", errors.Wrap(err, "seat checker: initial request")
	}
	defer drain(resp)
	observability.ObserveExternal(service, "initial", resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 400 {
		return nil, "", errors.Mark(
			errors.Newf("seat checker: unexpected initial response code %d", resp.StatusCode),
			domain.ErrUpstream)
	}

	// Location() resolves relative values against the request URL.
	loc, err := resp.Location()
	if err != nil {
		return nil, "", errors.Mark(
			errors.Wrap(err, "seat checker: Location header not found in the response"),
			domain.ErrProtocol)
	}

	cookie := cookieHeader(resp.Header.Values("Set-Cookie"))
	if cookie == "" {
		log.Warn().Str("location", loc.String()).Msg("no cookies found in the initial response")
	}
	return loc, cookie, nil
}

func (c *Client) collect(ctx context.Context, loc *url.URL, cookie string) ([]awardCalendar, error) {
	if err := c.rl.Wait(ctx); err != nil {
		return nil, err
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, loc.String(), nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", userAgent)
	req.Header.Set("Accept", "*/*")
	if cookie != "" {
		req.Header.Set("Cookie", cookie)
	}

	start := time.Now()
	resp, err := c.hc.Do(req)
	if err != nil {
		return nil, errors.Wrap(err, "seat checker: second request")
	}
	defer drain(resp)
	observability.ObserveExternal(service, "calendar", resp.StatusCode, time.Since(start))

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		b, _ := io.ReadAll(io.LimitReader(resp.Body, 4096))
		return nil, errors.Mark(
			errors.Newf("seat checker: unexpected response code from second request %d: %s",
				resp.StatusCode, strings.TrimSpace(string(b))),
			domain.ErrUpstream)
	}

	var out []awardCalendar
	if err := json.NewDecoder(resp.Body).Decode(&out); err != nil {
		return nil, errors.Wrap(err, "seat checker: decode award calendars")
	}
	return out, nil
}

// cookieHeader keeps the name=value part of each Set-Cookie and joins them
// with "; ".
func cookieHeader(setCookies []string) string {
	pairs := make([]string, 0, len(setCookies))
	for _, sc := range setCookies {
		pair, _, _ := strings.Cut(sc, ";")
		if pair = strings.TrimSpace(pair); pair != "" {
			pairs = append(pairs, pair)
		}
	}
	return strings.Join(pairs, "; ")
}

func flatten(calendars []awardCalendar) []domain.DayAward {
	var out []domain.DayAward
	for _, cal := range calendars {
		for _, pd := range cal.PointsDays {
			d, err := toDayAward(pd)
			if err != nil {
				log.Warn().Err(err).Str("month", string(cal.Month)).Msg("skipping malformed points day")
				continue
			}
			out = append(out, d)
		}
	}
	return out
}

func drain(resp *http.Response) {
	_, _ = io.Copy(io.Discard, io.LimitReader(resp.Body, 64<<10))
	resp.Body.Close()
}
