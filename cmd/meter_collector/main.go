// Responsible for storing the readings published by meter_reader.
// Depends on the meter reader API being online.
package main

import (
	"context"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/aggregator"
	"github.com/NotCoffee418/dlms_power_meter/pkg/config"
	"github.com/NotCoffee418/dlms_power_meter/pkg/livefeed"
	"github.com/NotCoffee418/dlms_power_meter/pkg/meter"
	"github.com/NotCoffee418/dlms_power_meter/pkg/meterdb"
	"github.com/NotCoffee418/dlms_power_meter/pkg/pathing"
	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
	log "github.com/sirupsen/logrus"
)

var obisTable = meter.DefaultObisTable()

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	if err := config.LoadMeterCollectorConfig(); err != nil {
		log.Fatalf("Failed to load meter collector config: %v", err)
	}
	cfg := config.ActiveMeterCollectorConfig
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	// Initialize database
	meterdb.InitializeDatabase()

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	go runAggregator(ctx)

	// Subscribe to websocket with revive
	livefeed.Listen(ctx, livefeed.FeedURL(cfg.ReaderHost, cfg.TLSEnabled), handleMeterReading)
}

// Handle meter reading data
func handleMeterReading(reading *types.MeterReadings) {
	if err := meterdb.InsertReadings(meterdb.GetDB(), reading, obisTable); err != nil {
		log.Errorf("Failed to store reading from %s: %v", reading.Timestamp.Format(time.RFC3339), err)
		return
	}
	log.Debugf("Stored reading from %s (%d values)", reading.Timestamp.Format(time.RFC3339), reading.ReadCount)
}

// runAggregator aggregates a few minutes after every full hour.
func runAggregator(ctx context.Context) {
	for {
		now := time.Now().UTC()
		next := now.Truncate(time.Hour).Add(time.Hour + 2*time.Minute)
		select {
		case <-ctx.Done():
			return
		case <-time.After(next.Sub(now)):
		}

		if err := aggregator.AggregateAndCleanup(meterdb.GetDB(), time.Now()); err != nil {
			log.Errorf("Aggregation failed: %v", err)
		}
	}
}
