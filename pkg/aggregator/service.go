package aggregator

import (
	"database/sql"
	"time"

	log "github.com/sirupsen/logrus"
)

// Raw readings older than this are removed once aggregated.
const retainRaw = 3

// roundToHourStart returns the Unix timestamp of the start of the hour for the given time
func roundToHourStart(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), t.Hour(), 0, 0, 0, time.UTC).Unix()
}

// roundToDayStart returns the Unix timestamp of the start of the day for the given time
func roundToDayStart(t time.Time) int64 {
	t = t.UTC()
	return time.Date(t.Year(), t.Month(), t.Day(), 0, 0, 0, 0, time.UTC).Unix()
}

// getHourEnd returns the Unix timestamp of the last second of the hour (next hour start - 1)
func getHourEnd(hourStart int64) int64 {
	return time.Unix(hourStart, 0).Add(time.Hour).Unix() - 1
}

// getDayEnd returns the Unix timestamp of the last second of the day (next day start - 1)
func getDayEnd(dayStart int64) int64 {
	return time.Unix(dayStart, 0).UTC().AddDate(0, 0, 1).Unix() - 1
}

// aggregate writes avg/min/max/count per OBIS code of [start, end] into
// the given aggregate table. Returns the number of OBIS codes written.
func aggregate(db *sql.DB, tf Timeframe, start, end int64) (int, error) {
	query := `
		SELECT
			obis,
			MAX(name),
			AVG(value),
			MIN(value),
			MAX(value),
			COUNT(*)
		FROM meter_readings
		WHERE timestamp >= ? AND timestamp <= ?
		GROUP BY obis
	`

	rows, err := db.Query(query, start, end)
	if err != nil {
		return 0, err
	}

	var aggregates []AggregateData
	for rows.Next() {
		a := AggregateData{Timeframe: tf, EndTime: end}
		a.Aggregate.StartTime = start
		if err := rows.Scan(&a.Aggregate.Obis, &a.Aggregate.Name, &a.Aggregate.AvgValue,
			&a.Aggregate.MinValue, &a.Aggregate.MaxValue, &a.Aggregate.SampleCount); err != nil {
			rows.Close()
			return 0, err
		}
		aggregates = append(aggregates, a)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return 0, err
	}
	rows.Close()

	// Only insert if we have data
	if len(aggregates) == 0 {
		return 0, nil
	}

	insertQuery := `
		INSERT OR REPLACE INTO ` + tf.table() + `
		(` + tf.startColumn() + `, obis, name, avg_value, min_value, max_value, sample_count)
		VALUES (?, ?, ?, ?, ?, ?, ?)
	`
	for _, a := range aggregates {
		g := a.Aggregate
		if _, err := db.Exec(insertQuery, g.StartTime, g.Obis, g.Name, g.AvgValue, g.MinValue, g.MaxValue, g.SampleCount); err != nil {
			return 0, err
		}
	}
	return len(aggregates), nil
}

// aggregateHourly aggregates raw readings for a specific hour
func aggregateHourly(db *sql.DB, hourStart int64) (int, error) {
	return aggregate(db, Hourly, hourStart, getHourEnd(hourStart))
}

// aggregateDaily aggregates raw readings for a specific day
func aggregateDaily(db *sql.DB, dayStart int64) (int, error) {
	return aggregate(db, Daily, dayStart, getDayEnd(dayStart))
}

// cleanupOldData removes raw data older than 3 months if we have aggregated it
func cleanupOldData(db *sql.DB, now time.Time) error {
	cutoff := now.UTC().AddDate(0, -retainRaw, 0)
	cutoffTimestamp := cutoff.Unix()

	// Check if we have aggregated data up to the cutoff point
	var lastAggregateHour sql.NullInt64
	err := db.QueryRow("SELECT MAX(hour_start) FROM aggregate_readings_hourly").Scan(&lastAggregateHour)
	if err != nil {
		return err
	}
	if !lastAggregateHour.Valid || lastAggregateHour.Int64 < cutoffTimestamp {
		// We haven't aggregated enough data yet, don't clean up
		return nil
	}

	res, err := db.Exec("DELETE FROM meter_readings WHERE timestamp < ?", cutoffTimestamp)
	if err != nil {
		return err
	}
	removed, _ := res.RowsAffected()

	if _, err := db.Exec("DELETE FROM poll_results WHERE timestamp < ?", cutoffTimestamp); err != nil {
		return err
	}

	if removed > 0 {
		log.Infof("Cleaned up %d readings older than %s", removed, cutoff.Format(time.RFC3339))
	}
	return nil
}

// AggregateAndCleanup aggregates the hour before now, the previous day once
// a new day has started, and drops raw data past retention.
// Call it once an hour.
func AggregateAndCleanup(db *sql.DB, now time.Time) error {
	now = now.UTC()

	// Aggregate the previous hour (current hour is still ongoing)
	hourStart := roundToHourStart(now.Add(-time.Hour))
	n, err := aggregateHourly(db, hourStart)
	if err != nil {
		log.Errorf("Error aggregating hour %s: %v", time.Unix(hourStart, 0).UTC().Format(time.RFC3339), err)
		return err
	}
	log.Debugf("Aggregated %d registers for hour starting at %s", n, time.Unix(hourStart, 0).UTC().Format(time.RFC3339))

	// Aggregate the previous day if it's a new day
	if now.Hour() == 0 {
		dayStart := roundToDayStart(now.AddDate(0, 0, -1))
		if _, err := aggregateDaily(db, dayStart); err != nil {
			log.Errorf("Error aggregating day %s: %v", time.Unix(dayStart, 0).UTC().Format(time.RFC3339), err)
			return err
		}
		log.Infof("Aggregated day starting at %s", time.Unix(dayStart, 0).UTC().Format(time.RFC3339))
	}

	return cleanupOldData(db, now)
}
