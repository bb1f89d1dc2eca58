//go:build integration

package integration

import (
	"context"
	"database/sql"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"sort"
	"sync/atomic"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	_ "github.com/go-sql-driver/mysql"
	"github.com/ory/dockertest/v3"
	"github.com/ory/dockertest/v3/docker"

	httpserver "rewardo/internal/adapters/http_server"
	redisad "rewardo/internal/adapters/redis"
	"rewardo/internal/adapters/routesapi"
	"rewardo/internal/adapters/virgin"
	"rewardo/internal/app"
	"rewardo/internal/broadcast"
	"rewardo/internal/domain"
	"rewardo/internal/shared"
	mysqlrepo "rewardo/internal/storage/mysql"
)

// ---------- helpers ----------

func applyMigrations(t *testing.T, db *sql.DB) {
	t.Helper()
	dir := os.Getenv("MIGRATIONS_DIR")
	if dir == "" {
		dir = filepath.Join("..", "..", "migrations")
	}

	ents, err := os.ReadDir(dir)
	if err != nil {
		t.Fatalf("read migrations dir: %v", err)
	}
	var files []string
	for _, e := range ents {
		if !e.IsDir() && filepath.Ext(e.Name()) == ".sql" {
			files = append(files, filepath.Join(dir, e.Name()))
		}
	}
	if len(files) == 0 {
		t.Fatalf("no .sql files in %s", dir)
	}
	sort.Strings(files)
	for _, f := range files {
		sqlBytes, err := os.ReadFile(f)
		if err != nil {
			t.Fatalf("read %s: %v", f, err)
		}
		if _, err := db.Exec(string(sqlBytes)); err != nil {
			t.Fatalf("exec %s: %v", f, err)
		}
	}
}

func startMySQL(t *testing.T) *sql.DB {
	t.Helper()
	pool, err := dockertest.NewPool("")
	if err != nil {
		t.Fatalf("dockertest: %v", err)
	}
	resource, err := pool.RunWithOptions(&dockertest.RunOptions{
		Repository: "mysql",
		Tag:        "8.0.36",
		Env:        []string{"MYSQL_ROOT_PASSWORD=root", "MYSQL_DATABASE=rewardo"},
	}, func(hc *docker.HostConfig) {
		hc.AutoRemove = true
		hc.RestartPolicy = docker.RestartPolicy{Name: "no"}
	})
	if err != nil {
		t.Fatalf("run mysql: %v", err)
	}
	t.Cleanup(func() { _ = pool.Purge(resource) })

	dsn := fmt.Sprintf("root:root@tcp(127.0.0.1:%s)/rewardo?parseTime=true&multiStatements=true&charset=utf8mb4,utf8&loc=UTC",
		resource.GetPort("3306/tcp"))
	var db *sql.DB
	if err := pool.Retry(func() error {
		var e error
		db, e = sql.Open("mysql", dsn)
		if e != nil {
			return e
		}
		return db.Ping()
	}); err != nil {
		t.Fatalf("connect mysql: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })
	applyMigrations(t, db)
	return db
}

// seatChecker fakes both legs of the upstream; points drop after the first
// calendar fetch so a second crawl sees a change.
func seatChecker(t *testing.T) *httptest.Server {
	t.Helper()
	var fetches int32
	mux := http.NewServeMux()
	mux.HandleFunc("/checker/", func(w http.ResponseWriter, r *http.Request) {
		w.Header().Add("Set-Cookie", "session=abc; Path=/")
		w.Header().Set("Location", "/calendar")
		w.WriteHeader(http.StatusFound)
	})
	mux.HandleFunc("/calendar", func(w http.ResponseWriter, r *http.Request) {
		points := 34000
		if atomic.AddInt32(&fetches, 1) > 1 {
			points = 30000
		}
		w.Header().Set("Content-Type", "application/json")
		fmt.Fprintf(w, `[{"pointsDays":[{"date":"2025-10-01","seats":{"awardEconomy":{"cabinPointsValue":%d,"cabinClassSeatCount":4}}}]}]`, points)
	})
	ts := httptest.NewServer(mux)
	t.Cleanup(ts.Close)
	return ts
}

func routesAPI(t *testing.T) *httptest.Server {
	t.Helper()
	ts := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`[{"origin":{"city":"London","airportCode":"LHR","country":"GB"},
		  "destinations":[{"city":"New York","airportCode":"JFK","country":"US"}]}]`))
	}))
	t.Cleanup(ts.Close)
	return ts
}

func noPause(ctx context.Context, d time.Duration) error { return ctx.Err() }

// ---------- the test ----------

func TestPipeline_CrawlDetectAndServe(t *testing.T) {
	db := startMySQL(t)
	mr := miniredis.RunT(t)
	cache := redisad.New(mr.Addr(), "", 0)
	t.Cleanup(func() { _ = cache.Close() })

	checker := seatChecker(t)
	fetcher, err := virgin.New(checker.URL+"/checker/", 1000, 5*time.Second)
	if err != nil {
		t.Fatalf("virgin.New: %v", err)
	}
	routes := app.NewRouteDirectory(routesapi.New(routesAPI(t).URL, 5*time.Second), cache)

	repo := mysqlrepo.New(db)
	events := broadcast.New[domain.ChangeEvent](broadcast.DefaultReplay, broadcast.DefaultBuffer)
	clock := shared.NewFixedClock(time.Date(2025, 10, 1, 6, 0, 0, 0, time.UTC))
	detector := app.NewDetector(repo, events, cache, clock)
	crawler := app.NewCrawler(routes, fetcher, detector, clock,
		app.CrawlerConfig{Months: 1}, app.WithPause(noPause))

	srv := httpserver.New(5 * time.Second)
	srv.MountHandlers(&httpserver.Handlers{
		Q:      app.NewQueryService(repo, cache, time.Minute, routes, clock),
		Routes: routes,
		Events: events,
	})
	ts := httptest.NewServer(srv.Mux())
	defer ts.Close()

	ctx := context.Background()
	stats, err := crawler.RunCycle(ctx)
	if err != nil {
		t.Fatalf("first cycle: %v", err)
	}
	if stats.Inserted != 1 || len(events.Recent()) != 0 {
		t.Fatalf("first cycle: stats %+v, events %d", stats, len(events.Recent()))
	}

	// warm the cache so the second cycle has something to invalidate
	flightsURL := ts.URL + "/api/v1/airline/vs/reward-flights/origin/LHR/destination/JFK/from/2025-10-01/to/2025-10-31"
	if got := economyPoints(t, flightsURL); got != 34000 {
		t.Fatalf("latest before change: %d", got)
	}

	clock.Add(time.Hour)
	stats, err = crawler.RunCycle(ctx)
	if err != nil {
		t.Fatalf("second cycle: %v", err)
	}
	if stats.Updated != 1 || stats.PriceChanges != 1 {
		t.Fatalf("second cycle stats: %+v", stats)
	}
	recent := events.Recent()
	if len(recent) != 1 || *recent[0].Previous.Economy.PointsValue != 34000 || *recent[0].Current.Economy.PointsValue != 30000 {
		t.Fatalf("unexpected events: %+v", recent)
	}

	if got := economyPoints(t, flightsURL); got != 30000 {
		t.Fatalf("latest after change (stale cache?): %d", got)
	}

	histURL := ts.URL + "/api/v1/airline/vs/reward-flights/origin/LHR/destination/JFK/on/2025-10-01/historic"
	if got := economyPoints(t, histURL); got != 34000 {
		t.Fatalf("historic record: %d", got)
	}
}

func economyPoints(t *testing.T, url string) int {
	t.Helper()
	res, err := http.Get(url)
	if err != nil {
		t.Fatalf("GET %s: %v", url, err)
	}
	defer res.Body.Close()
	if res.StatusCode != http.StatusOK {
		t.Fatalf("GET %s: status %d", url, res.StatusCode)
	}
	var body struct {
		Content []struct {
			AwardEconomy struct {
				Points int `json:"cabin_points_value"`
			} `json:"award_economy"`
		} `json:"content"`
	}
	if err := json.NewDecoder(res.Body).Decode(&body); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if len(body.Content) != 1 {
		t.Fatalf("GET %s: %d items", url, len(body.Content))
	}
	return body.Content[0].AwardEconomy.Points
}
