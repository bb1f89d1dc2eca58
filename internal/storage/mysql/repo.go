package mysql

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"github.com/cockroachdb/errors"
	"github.com/google/uuid"

	"rewardo/internal/domain"
)

func valInt(p *int) any {
	if p == nil {
		return nil
	}
	return *p
}
func valBool(p *bool) any {
	if p == nil {
		return nil
	}
	return *p
}
func valStr(p *string) any {
	if p == nil {
		return nil
	}
	return *p
}

// cabinArgs flattens a cabin into its four columns.
func cabinArgs(a *domain.CabinAward) []any {
	if a == nil {
		return []any{nil, nil, nil, nil}
	}
	return []any{valInt(a.PointsValue), valBool(a.IsSaverAward), valInt(a.SeatCount), valStr(a.SeatCountString)}
}

func allCabinArgs(s domain.Snapshot) []any {
	args := make([]any, 0, 16)
	for _, c := range []*domain.CabinAward{s.Economy, s.PremiumEconomy, s.Business, s.First} {
		args = append(args, cabinArgs(c)...)
	}
	return args
}

func day(t time.Time) string { return t.Format(domain.DateLayout) }

// cabinColumns maps a cabin to its column prefix.
var cabinColumns = map[domain.CabinType]string{
	domain.CabinEconomy:        "economy",
	domain.CabinPremiumEconomy: "premium",
	domain.CabinBusiness:       "business",
	domain.CabinFirst:          "first",
}

type Repo struct {
	db    *sql.DB
	newID func() string
}

func New(db *sql.DB) *Repo { return &Repo{db: db, newID: uuid.NewString} }

func (r *Repo) GetLatest(ctx context.Context, key domain.SnapshotKey) (domain.Snapshot, error) {
	row := r.db.QueryRowContext(ctx, getLatestSQL, key.Origin, key.Destination, day(key.Departure), key.CarrierCode)
	s, err := scanSnapshot(row)
	if errors.Is(err, sql.ErrNoRows) {
		return domain.Snapshot{}, domain.ErrNotFound
	}
	if err != nil {
		return domain.Snapshot{}, errors.Wrapf(err, "get latest %s", key)
	}
	return s, nil
}

func (r *Repo) InsertLatest(ctx context.Context, s domain.Snapshot) error {
	args := append([]any{
		s.ID, s.Key.Origin, s.Key.Destination, day(s.Key.Departure), s.Key.CarrierCode, s.ScrapedAt.UTC(),
	}, allCabinArgs(s)...)
	if _, err := r.db.ExecContext(ctx, insertLatestSQL, args...); err != nil {
		return errors.Wrapf(err, "insert latest %s", s.Key)
	}
	return nil
}

// ReplaceLatest copies previous into the historic table and overwrites the
// latest row in one transaction. Nothing is written if either step fails.
func (r *Repo) ReplaceLatest(ctx context.Context, previous, current domain.Snapshot) (err error) {
	tx, err := r.db.BeginTx(ctx, nil)
	if err != nil {
		return errors.Wrap(err, "begin replace latest")
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	hist := append([]any{
		previous.ID, r.newID(), previous.Key.Origin, previous.Key.Destination, day(previous.Key.Departure),
		previous.Key.CarrierCode, previous.ScrapedAt.UTC(),
	}, allCabinArgs(previous)...)
	if _, err = tx.ExecContext(ctx, insertHistoricSQL, hist...); err != nil {
		return errors.Wrapf(err, "archive latest %s", previous.Key)
	}

	upd := append([]any{current.ScrapedAt.UTC()}, allCabinArgs(current)...)
	upd = append(upd, previous.ID)
	res, err := tx.ExecContext(ctx, updateLatestSQL, upd...)
	if err != nil {
		return errors.Wrapf(err, "update latest %s", current.Key)
	}
	if n, _ := res.RowsAffected(); n == 0 {
		err = errors.Wrapf(domain.ErrNotFound, "update latest %s", current.Key)
		return err
	}

	if err = tx.Commit(); err != nil {
		return errors.Wrap(err, "commit replace latest")
	}
	return nil
}

func (r *Repo) LatestBetween(ctx context.Context, q domain.FlightsQuery) (domain.SnapshotsPage, error) {
	where := []any{q.Origin, q.Destination, q.Carrier, day(q.From), day(q.To)}
	return r.snapshotsPage(ctx, latestBetweenSQL, countLatestBetweenSQL, where, q.Page)
}

func (r *Repo) Cheapest(ctx context.Context, q domain.CheapestQuery) (domain.SnapshotsPage, error) {
	col, ok := cabinColumns[q.Cabin]
	if !ok {
		return domain.SnapshotsPage{}, errors.Newf("unknown cabin %q", q.Cabin)
	}
	where := []any{q.Origin, q.Destination, q.Carrier}
	return r.snapshotsPage(ctx, fmt.Sprintf(cheapestSQL, col), fmt.Sprintf(countCheapestSQL, col), where, q.Page)
}

func (r *Repo) History(ctx context.Context, q domain.HistoryQuery) (domain.SnapshotsPage, error) {
	where := []any{q.Origin, q.Destination, q.Carrier, day(q.Departure)}
	return r.snapshotsPage(ctx, historySQL, countHistorySQL, where, q.Page)
}

func (r *Repo) CountLatest(ctx context.Context) (int64, error) {
	return r.count(ctx, countLatestSQL)
}

func (r *Repo) CountHistoric(ctx context.Context) (int64, error) {
	return r.count(ctx, countHistoricSQL)
}

func (r *Repo) MostChangedRoutes(ctx context.Context, pg domain.PageQuery) (domain.PairCountsPage, error) {
	return r.pairCountsPage(ctx, mostChangedSQL, countChangedPairsSQL, nil, pg)
}

func (r *Repo) MostCommonPairs(ctx context.Context, carrier string, since time.Time, pg domain.PageQuery) (domain.PairCountsPage, error) {
	where := []any{since.UTC(), carrier, carrier}
	return r.pairCountsPage(ctx, mostCommonPairsSQL, countCommonPairsSQL, where, pg)
}

// ---- Internals ----

func (r *Repo) count(ctx context.Context, query string, args ...any) (int64, error) {
	var n int64
	if err := r.db.QueryRowContext(ctx, query, args...).Scan(&n); err != nil {
		return 0, errors.Wrap(err, "count")
	}
	return n, nil
}

func (r *Repo) snapshotsPage(ctx context.Context, query, countQuery string, where []any, pg domain.PageQuery) (domain.SnapshotsPage, error) {
	total, err := r.count(ctx, countQuery, where...)
	if err != nil {
		return domain.SnapshotsPage{}, err
	}
	out := domain.SnapshotsPage{Page: pg.Page, Size: pg.Size, TotalItems: total}
	if total == 0 || pg.Offset() >= int(total) {
		return out, nil
	}

	args := append(append([]any{}, where...), pg.Size, pg.Offset())
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.SnapshotsPage{}, errors.Wrap(err, "query snapshots")
	}
	defer rows.Close()

	for rows.Next() {
		s, err := scanSnapshot(rows)
		if err != nil {
			return domain.SnapshotsPage{}, errors.Wrap(err, "scan snapshot")
		}
		out.Items = append(out.Items, s)
	}
	if err := rows.Err(); err != nil {
		return domain.SnapshotsPage{}, err
	}
	return out, nil
}

func (r *Repo) pairCountsPage(ctx context.Context, query, countQuery string, where []any, pg domain.PageQuery) (domain.PairCountsPage, error) {
	total, err := r.count(ctx, countQuery, where...)
	if err != nil {
		return domain.PairCountsPage{}, err
	}
	out := domain.PairCountsPage{Page: pg.Page, Size: pg.Size, TotalItems: total}
	if total == 0 || pg.Offset() >= int(total) {
		return out, nil
	}

	args := append(append([]any{}, where...), pg.Size, pg.Offset())
	rows, err := r.db.QueryContext(ctx, query, args...)
	if err != nil {
		return domain.PairCountsPage{}, errors.Wrap(err, "query pair counts")
	}
	defer rows.Close()

	for rows.Next() {
		var pc domain.PairCount
		if err := rows.Scan(&pc.Origin, &pc.Destination, &pc.Count); err != nil {
			return domain.PairCountsPage{}, errors.Wrap(err, "scan pair count")
		}
		out.Items = append(out.Items, pc)
	}
	if err := rows.Err(); err != nil {
		return domain.PairCountsPage{}, err
	}
	return out, nil
}

type scanner interface {
	Scan(dest ...any) error
}

type cabinCols struct {
	points, seats sql.NullInt64
	saver         sql.NullBool
	seatsStr      sql.NullString
}

func (c *cabinCols) dest() []any { return []any{&c.points, &c.saver, &c.seats, &c.seatsStr} }

// award returns nil when none of the cabin's columns are set.
func (c *cabinCols) award() *domain.CabinAward {
	if !c.points.Valid && !c.saver.Valid && !c.seats.Valid && !c.seatsStr.Valid {
		return nil
	}
	a := &domain.CabinAward{}
	if c.points.Valid {
		v := int(c.points.Int64)
		a.PointsValue = &v
	}
	if c.saver.Valid {
		v := c.saver.Bool
		a.IsSaverAward = &v
	}
	if c.seats.Valid {
		v := int(c.seats.Int64)
		a.SeatCount = &v
	}
	if c.seatsStr.Valid {
		v := c.seatsStr.String
		a.SeatCountString = &v
	}
	return a
}

func scanSnapshot(row scanner) (domain.Snapshot, error) {
	var s domain.Snapshot
	var eco, prem, bus, first cabinCols
	dest := []any{
		&s.ID, &s.Key.Origin, &s.Key.Destination, &s.Key.Departure, &s.Key.CarrierCode, &s.ScrapedAt,
	}
	for _, c := range []*cabinCols{&eco, &prem, &bus, &first} {
		dest = append(dest, c.dest()...)
	}
	if err := row.Scan(dest...); err != nil {
		return domain.Snapshot{}, err
	}
	s.Key.Departure = s.Key.Departure.UTC()
	s.ScrapedAt = s.ScrapedAt.UTC()
	s.Economy = eco.award()
	s.PremiumEconomy = prem.award()
	s.Business = bus.award()
	s.First = first.award()
	return s, nil
}
