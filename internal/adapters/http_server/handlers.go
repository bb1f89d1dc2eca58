// internal/adapters/http_server/handlers.go
package httpserver

import (
	"context"
	"crypto/sha1"
	"encoding/hex"
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strconv"
	"strings"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog/log"
	"golang.org/x/sync/semaphore"

	"rewardo/internal/app"
	"rewardo/internal/domain"
)

type Queries interface {
	LatestBetween(ctx context.Context, q domain.FlightsQuery) (domain.SnapshotsPage, error)
	Cheapest(ctx context.Context, q domain.CheapestQuery) (domain.SnapshotsPage, error)
	History(ctx context.Context, q domain.HistoryQuery) (domain.SnapshotsPage, error)
	Summary(ctx context.Context) (app.Summary, error)
	MostChangedRoutes(ctx context.Context, pg domain.PageQuery) (domain.PairCountsPage, error)
	MostCommonPairs(ctx context.Context, carrier string, pg domain.PageQuery) (domain.PairCountsPage, error)
}

type Routes interface {
	Get() []domain.Route
	Refresh(ctx context.Context) ([]domain.Route, error)
}

type ChangeStream interface {
	Subscribe(ctx context.Context) <-chan domain.ChangeEvent
}

type Handlers struct {
	Q      Queries
	Routes Routes
	Events ChangeStream
	// StreamSlots caps concurrent stream clients; nil means no cap.
	StreamSlots *semaphore.Weighted
	// Heartbeat is the SSE keep-alive interval; zero means 30s.
	Heartbeat time.Duration
}

type problem struct {
	Type   string `json:"type"`
	Title  string `json:"title"`
	Status int    `json:"status"`
	Detail string `json:"detail,omitempty"`
}

func (s *Server) MountHandlers(h *Handlers) {
	s.mux.Get("/healthz", func(w http.ResponseWriter, r *http.Request) { w.WriteHeader(200); _, _ = w.Write([]byte("ok")) })

	// The stream outlives any request timeout.
	s.mux.Get("/price-changes/airlines", h.streamChanges)

	s.mux.Group(func(r chi.Router) {
		r.Use(Timeout(s.timeout))

		r.Get("/api/routes", h.listRoutes)
		r.Post("/api/routes/refresh", h.refreshRoutes)

		r.Route("/api/v1/airline/vs/reward-flights/origin/{origin}/destination/{destination}", func(r chi.Router) {
			r.Get("/from/{from}/to/{to}", h.latestFlights)
			r.Get("/cabin/{cabin}/cheapest", h.cheapestFlights)
			r.Get("/on/{on}/historic", h.historicFlights)
		})

		r.Route("/api/v1/search-data", func(r chi.Router) {
			r.Get("/summary", h.summary)
			r.Get("/routes/most-changes", h.mostChanges)
			r.Get("/routes/most-common-pairs", h.mostCommonPairs)
		})
	})
}

func writeProblem(w http.ResponseWriter, status int, title, detail string) {
	w.Header().Set("Content-Type", "application/problem+json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(problem{Type: "about:blank", Title: title, Status: status, Detail: detail}); err != nil {
		log.Error().Err(err).Msg("write JSON problem response failed")
	}
}

// calcETagAndBody marshals once and hashes once, returning both ETag and body.
func calcETagAndBody(v any) (string, []byte) {
	body, err := json.Marshal(v)
	if err != nil {
		log.Error().Err(err).Msg("failed to marshal object for ETag/body")
		return "", nil
	}
	sum := sha1.Sum(body)
	etag := `W/"` + hex.EncodeToString(sum[:]) + `"`
	return etag, body
}

// writeJSON answers with an ETag and honours If-None-Match.
func writeJSON(w http.ResponseWriter, r *http.Request, v any) {
	etag, body := calcETagAndBody(v)
	if body == nil {
		writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "could not encode response")
		return
	}
	if inm := r.Header.Get("If-None-Match"); inm != "" && inm == etag {
		w.Header().Set("ETag", etag)
		w.WriteHeader(http.StatusNotModified)
		return
	}

	w.Header().Set("ETag", etag)
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if _, err := w.Write(body); err != nil {
		log.Error().Err(err).Str("path", r.URL.Path).Msg("failed to write body")
	}
}

func writeQueryError(w http.ResponseWriter, r *http.Request, err error) {
	if errors.Is(err, context.Canceled) {
		return
	}
	log.Error().Err(err).Str("path", r.URL.Path).Msg("query failed")
	writeProblem(w, http.StatusInternalServerError, "Internal Server Error", "query failed")
}

var airportCode = regexp.MustCompile(`^[A-Z]{3}$`)

// pair reads and validates the origin and destination path params.
func pair(w http.ResponseWriter, r *http.Request) (string, string, bool) {
	origin := strings.ToUpper(chi.URLParam(r, "origin"))
	destination := strings.ToUpper(chi.URLParam(r, "destination"))
	if !airportCode.MatchString(origin) || !airportCode.MatchString(destination) {
		writeProblem(w, http.StatusBadRequest, "Invalid airport", "origin and destination must be 3-letter IATA codes")
		return "", "", false
	}
	return origin, destination, true
}

func pathDate(w http.ResponseWriter, r *http.Request, name string) (time.Time, bool) {
	t, err := time.Parse(domain.DateLayout, chi.URLParam(r, name))
	if err != nil {
		writeProblem(w, http.StatusBadRequest, "Invalid date", fmt.Sprintf("%s must be formatted as YYYY-MM-DD", name))
		return time.Time{}, false
	}
	return t, true
}

// pageParams reads page-number and page-size; sizes outside 1..200 are rejected.
func pageParams(w http.ResponseWriter, r *http.Request, defSize int) (domain.PageQuery, bool) {
	pg := domain.PageQuery{Size: defSize}
	q := r.URL.Query()
	if v := q.Get("page-number"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			writeProblem(w, http.StatusBadRequest, "Invalid page-number", "page-number must be a non-negative integer")
			return pg, false
		}
		pg.Page = n
	}
	if v := q.Get("page-size"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n <= 0 || n > app.MaxPageSize {
			writeProblem(w, http.StatusBadRequest, "Invalid page-size",
				fmt.Sprintf("page-size must be an integer between 1 and %d", app.MaxPageSize))
			return pg, false
		}
		pg.Size = n
	}
	return pg, true
}

func (h *Handlers) listRoutes(w http.ResponseWriter, r *http.Request) {
	routes := h.Routes.Get()
	if routes == nil {
		routes = []domain.Route{}
	}
	writeJSON(w, r, routes)
}

func (h *Handlers) refreshRoutes(w http.ResponseWriter, r *http.Request) {
	routes, err := h.Routes.Refresh(r.Context())
	if err != nil {
		log.Error().Err(err).Msg("route refresh failed")
		writeProblem(w, http.StatusBadGateway, "Bad Gateway", "route directory unavailable")
		return
	}
	writeJSON(w, r, routes)
}

func (h *Handlers) latestFlights(w http.ResponseWriter, r *http.Request) {
	origin, destination, ok := pair(w, r)
	if !ok {
		return
	}
	from, ok := pathDate(w, r, "from")
	if !ok {
		return
	}
	to, ok := pathDate(w, r, "to")
	if !ok {
		return
	}
	if to.Before(from) {
		writeProblem(w, http.StatusBadRequest, "Invalid range", "to must not be before from")
		return
	}
	pg, ok := pageParams(w, r, app.DefaultFlightsPageSize)
	if !ok {
		return
	}

	out, err := h.Q.LatestBetween(r.Context(), domain.FlightsQuery{
		Origin: origin, Destination: destination, Carrier: domain.CarrierVS,
		From: from, To: to, Page: pg,
	})
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, toSnapshotsPageView(out))
}

func (h *Handlers) cheapestFlights(w http.ResponseWriter, r *http.Request) {
	origin, destination, ok := pair(w, r)
	if !ok {
		return
	}
	cabin, ok := domain.ParseCabinType(strings.ToUpper(chi.URLParam(r, "cabin")))
	if !ok {
		writeProblem(w, http.StatusBadRequest, "Invalid cabin", "cabin must be ECONOMY, PREMIUM_ECONOMY, BUSINESS or FIRST")
		return
	}
	pg, ok := pageParams(w, r, app.DefaultFlightsPageSize)
	if !ok {
		return
	}

	out, err := h.Q.Cheapest(r.Context(), domain.CheapestQuery{
		Origin: origin, Destination: destination, Carrier: domain.CarrierVS,
		Cabin: cabin, Page: pg,
	})
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, toSnapshotsPageView(out))
}

func (h *Handlers) historicFlights(w http.ResponseWriter, r *http.Request) {
	origin, destination, ok := pair(w, r)
	if !ok {
		return
	}
	on, ok := pathDate(w, r, "on")
	if !ok {
		return
	}
	pg, ok := pageParams(w, r, app.DefaultFlightsPageSize)
	if !ok {
		return
	}

	out, err := h.Q.History(r.Context(), domain.HistoryQuery{
		Origin: origin, Destination: destination, Carrier: domain.CarrierVS,
		Departure: on, Page: pg,
	})
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, toSnapshotsPageView(out))
}

func (h *Handlers) summary(w http.ResponseWriter, r *http.Request) {
	out, err := h.Q.Summary(r.Context())
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, out)
}

func (h *Handlers) mostChanges(w http.ResponseWriter, r *http.Request) {
	pg, ok := pageParams(w, r, app.DefaultStatsPageSize)
	if !ok {
		return
	}
	out, err := h.Q.MostChangedRoutes(r.Context(), pg)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, toPairsPageView(out, domain.CarrierVS))
}

func (h *Handlers) mostCommonPairs(w http.ResponseWriter, r *http.Request) {
	pg, ok := pageParams(w, r, app.DefaultStatsPageSize)
	if !ok {
		return
	}
	carrier := strings.ToUpper(r.URL.Query().Get("carrierCode"))
	out, err := h.Q.MostCommonPairs(r.Context(), carrier, pg)
	if err != nil {
		writeQueryError(w, r, err)
		return
	}
	writeJSON(w, r, toPairsPageView(out, carrier))
}

// streamChanges relays change events as Server-Sent Events until the client
// goes away. New subscribers first get the recent replay.
func (h *Handlers) streamChanges(w http.ResponseWriter, r *http.Request) {
	flusher, ok := w.(http.Flusher)
	if !ok {
		writeProblem(w, http.StatusInternalServerError, "Streaming unsupported", "response writer cannot flush")
		return
	}

	if h.StreamSlots != nil {
		if !h.StreamSlots.TryAcquire(1) {
			writeProblem(w, http.StatusServiceUnavailable, "Too many subscribers", "price-change stream is at capacity")
			return
		}
		defer h.StreamSlots.Release(1)
	}

	ctx := r.Context()
	events := h.Events.Subscribe(ctx)
	log.Info().Str("remote", remoteIP(r)).Msg("price-change stream connected")
	defer log.Info().Str("remote", remoteIP(r)).Msg("price-change stream closed")

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.Header().Set("X-Accel-Buffering", "no")
	w.WriteHeader(http.StatusOK)
	flusher.Flush()

	every := h.Heartbeat
	if every <= 0 {
		every = 30 * time.Second
	}
	heartbeat := time.NewTicker(every)
	defer heartbeat.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-heartbeat.C:
			if _, err := fmt.Fprint(w, ": keep-alive\n\n"); err != nil {
				return
			}
			flusher.Flush()
		case ev, open := <-events:
			if !open {
				return
			}
			data, err := json.Marshal(toChangeView(ev))
			if err != nil {
				log.Error().Err(err).Msg("encode price-change event failed")
				continue
			}
			if _, err := fmt.Fprintf(w, "event: price-change\ndata: %s\n\n", data); err != nil {
				return
			}
			flusher.Flush()
		}
	}
}
