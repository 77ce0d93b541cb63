package aggregator

import "github.com/NotCoffee418/dlms_power_meter/pkg/meterdb"

type Timeframe int

const (
	Hourly Timeframe = iota
	Daily
)

func (tf Timeframe) table() string {
	if tf == Daily {
		return "aggregate_readings_daily"
	}
	return "aggregate_readings_hourly"
}

func (tf Timeframe) startColumn() string {
	if tf == Daily {
		return "day_start"
	}
	return "hour_start"
}

type AggregateData struct {
	Timeframe Timeframe
	EndTime   int64
	Aggregate meterdb.AggregateReadingTable
}
