package meterdb

// MeterDbReading is one register value of one poll.
type MeterDbReading struct {
	Timestamp int64   `db:"timestamp"`
	Obis      string  `db:"obis"`
	Name      string  `db:"name"`
	Value     float64 `db:"value"`
}

// MeterDbPollResult records the outcome of one poll cycle.
type MeterDbPollResult struct {
	Timestamp  int64 `db:"timestamp"`
	Valid      bool  `db:"valid"`
	ReadCount  int   `db:"read_count"`
	ErrorCount int   `db:"error_count"`
}

// Aggregate models, one row per OBIS code and timeframe.
// Use timeframe specified types instead of this directly
type AggregateReadingTable struct {
	StartTime   int64   `db:"start_time"`
	Obis        string  `db:"obis"`
	Name        string  `db:"name"`
	AvgValue    float64 `db:"avg_value"`
	MinValue    float64 `db:"min_value"`
	MaxValue    float64 `db:"max_value"`
	SampleCount uint32  `db:"sample_count"`
}

type AggregateReadingHourly = AggregateReadingTable
type AggregateReadingDaily = AggregateReadingTable
