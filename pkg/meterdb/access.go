package meterdb

import (
	"database/sql"

	"github.com/NotCoffee418/dlms_power_meter/pkg/meter"
	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
)

// InsertReadings stores a snapshot: one poll_results row and, for valid
// snapshots, one meter_readings row per table entry.
func InsertReadings(db *sql.DB, r *types.MeterReadings, table []meter.ObisMapping) error {
	ts := r.Timestamp.Unix()

	tx, err := db.Begin()
	if err != nil {
		return err
	}
	defer tx.Rollback()

	_, err = tx.Exec(
		"INSERT OR REPLACE INTO poll_results (timestamp, valid, read_count, error_count) "+
			"VALUES (?, ?, ?, ?)",
		ts,
		r.Valid,
		r.ReadCount,
		r.ErrorCount,
	)
	if err != nil {
		return err
	}

	if r.Valid {
		stmt, err := tx.Prepare("INSERT INTO meter_readings (timestamp, obis, name, value) VALUES (?, ?, ?, ?)")
		if err != nil {
			return err
		}
		defer stmt.Close()

		for _, entry := range table {
			if _, err := stmt.Exec(ts, entry.Obis.String(), entry.Name, *entry.Field(r)); err != nil {
				return err
			}
		}
	}

	return tx.Commit()
}

// GetReadings returns the stored values of one OBIS code in [from, to].
func GetReadings(db *sql.DB, obis string, from, to int64) ([]MeterDbReading, error) {
	rows, err := db.Query(
		"SELECT timestamp, obis, name, value FROM meter_readings "+
			"WHERE obis = ? AND timestamp >= ? AND timestamp <= ? ORDER BY timestamp",
		obis, from, to,
	)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []MeterDbReading
	for rows.Next() {
		var r MeterDbReading
		if err := rows.Scan(&r.Timestamp, &r.Obis, &r.Name, &r.Value); err != nil {
			return nil, err
		}
		out = append(out, r)
	}
	return out, rows.Err()
}

// GetLatestPollResult returns nil when nothing was stored yet.
func GetLatestPollResult(db *sql.DB) (*MeterDbPollResult, error) {
	var p MeterDbPollResult
	err := db.QueryRow(
		"SELECT timestamp, valid, read_count, error_count FROM poll_results ORDER BY timestamp DESC LIMIT 1",
	).Scan(&p.Timestamp, &p.Valid, &p.ReadCount, &p.ErrorCount)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return &p, nil
}
