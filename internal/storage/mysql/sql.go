package mysql

// Column order shared by every snapshot SELECT and scanSnapshot.
const snapshotColumns = `
  id, origin, destination, departure, carrier_code, scraped_at,
  economy_points, economy_saver, economy_seats, economy_seats_str,
  premium_points, premium_saver, premium_seats, premium_seats_str,
  business_points, business_saver, business_seats, business_seats_str,
  first_points, first_saver, first_seats, first_seats_str`

const getLatestSQL = `
SELECT` + snapshotColumns + `
FROM reward_flight_latest
WHERE origin = ? AND destination = ? AND departure = ? AND carrier_code = ?
`

const insertLatestSQL = `
INSERT INTO reward_flight_latest (` + snapshotColumns + `)
VALUES
  (?, ?, ?, ?, ?, ?,
   ?, ?, ?, ?,
   ?, ?, ?, ?,
   ?, ?, ?, ?,
   ?, ?, ?, ?)
`

// The historic copy gets its own id and points back at the latest row.
const insertHistoricSQL = `
INSERT INTO reward_flight_latest_historic (latest_id,` + snapshotColumns + `)
VALUES
  (?, ?, ?, ?, ?, ?, ?,
   ?, ?, ?, ?,
   ?, ?, ?, ?,
   ?, ?, ?, ?,
   ?, ?, ?, ?)
`

const updateLatestSQL = `
UPDATE reward_flight_latest SET
  scraped_at         = ?,
  economy_points     = ?,
  economy_saver      = ?,
  economy_seats      = ?,
  economy_seats_str  = ?,
  premium_points     = ?,
  premium_saver      = ?,
  premium_seats      = ?,
  premium_seats_str  = ?,
  business_points    = ?,
  business_saver     = ?,
  business_seats     = ?,
  business_seats_str = ?,
  first_points       = ?,
  first_saver        = ?,
  first_seats        = ?,
  first_seats_str    = ?
WHERE id = ?
`

// -----------------------------------------------------------------------------
// READ QUERIES
// -----------------------------------------------------------------------------

const latestBetweenWhere = `
FROM reward_flight_latest
WHERE origin = ? AND destination = ? AND carrier_code = ?
  AND departure BETWEEN ? AND ?
`

const latestBetweenSQL = `
SELECT` + snapshotColumns + latestBetweenWhere + `ORDER BY departure
LIMIT ? OFFSET ?
`

const countLatestBetweenSQL = `SELECT COUNT(*)` + latestBetweenWhere

// Cheapest queries are built per cabin from cabinColumns; %[1]s is the
// column prefix.
const cheapestWhere = `
FROM reward_flight_latest
WHERE origin = ? AND destination = ? AND carrier_code = ?
  AND %[1]s_points IS NOT NULL AND %[1]s_seats > 0
`

const cheapestSQL = `
SELECT` + snapshotColumns + cheapestWhere + `ORDER BY %[1]s_points ASC, departure
LIMIT ? OFFSET ?
`

const countCheapestSQL = `SELECT COUNT(*)` + cheapestWhere

const historyWhere = `
FROM reward_flight_latest_historic
WHERE origin = ? AND destination = ? AND carrier_code = ? AND departure = ?
`

const historySQL = `
SELECT` + snapshotColumns + historyWhere + `ORDER BY scraped_at ASC
LIMIT ? OFFSET ?
`

const countHistorySQL = `SELECT COUNT(*)` + historyWhere

const countLatestSQL = `SELECT COUNT(*) FROM reward_flight_latest`

const countHistoricSQL = `SELECT COUNT(*) FROM reward_flight_latest_historic`

const mostChangedSQL = `
SELECT origin, destination, COUNT(*) AS changes
FROM reward_flight_latest_historic
GROUP BY origin, destination
ORDER BY changes DESC, origin, destination
LIMIT ? OFFSET ?
`

const countChangedPairsSQL = `
SELECT COUNT(*) FROM (
  SELECT 1 FROM reward_flight_latest_historic GROUP BY origin, destination
) pairs
`

// An empty carrier matches every carrier.
const commonPairsWhere = `
FROM reward_flight_latest_historic
WHERE scraped_at >= ? AND (? = '' OR carrier_code = ?)
`

const mostCommonPairsSQL = `
SELECT origin, destination, COUNT(*) AS pairs` + commonPairsWhere + `GROUP BY origin, destination
ORDER BY pairs DESC, origin, destination
LIMIT ? OFFSET ?
`

const countCommonPairsSQL = `
SELECT COUNT(*) FROM (
  SELECT 1` + commonPairsWhere + `  GROUP BY origin, destination
) pairs
`
