// Meter reader polls the DLMS meter over RS485 and publishes the readings
// over HTTP, websocket and optionally MQTT.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/NotCoffee418/dlms_power_meter/pkg/config"
	"github.com/NotCoffee418/dlms_power_meter/pkg/livefeed"
	"github.com/NotCoffee418/dlms_power_meter/pkg/meter"
	"github.com/NotCoffee418/dlms_power_meter/pkg/pathing"
	"github.com/NotCoffee418/dlms_power_meter/pkg/rs485"
	"github.com/NotCoffee418/dlms_power_meter/pkg/telemetry"
	"github.com/NotCoffee418/dlms_power_meter/pkg/types"
	log "github.com/sirupsen/logrus"
)

func main() {
	if err := pathing.EnsureDirs(); err != nil {
		log.Fatalf("Failed to create directories: %v", err)
	}
	if err := config.LoadMeterReaderConfig(); err != nil {
		log.Fatalf("Failed to load meter reader config: %v", err)
	}
	cfg := config.ActiveMeterReaderConfig
	if level, err := log.ParseLevel(cfg.LogLevel); err == nil {
		log.SetLevel(level)
	}

	port, err := openPort(cfg)
	if err != nil {
		log.Fatalf("Failed to open RS485 port: %v", err)
	}
	defer port.Close()

	session := meter.NewSession(port, cfg.SessionConfig(), meter.DefaultObisTable())
	poller, err := meter.NewPoller(session, cfg.PollInterval())
	if err != nil {
		log.Fatalf("Failed to create poller: %v", err)
	}

	store := telemetry.NewStore(cfg.DeviceInfo())
	if cfg.MQTT.Enabled {
		setupMQTT(cfg, store)
	}

	hub := livefeed.NewHub(poller.Latest)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	pollerDone := make(chan struct{})
	go func() {
		defer close(pollerDone)
		poller.Run(ctx, func(reading *types.MeterReadings) {
			store.Push(reading)
			hub.Broadcast(reading)
		})
	}()

	http.HandleFunc("/", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{
			"message": "DLMS Power Meter API",
			"status":  "running",
		})
	})

	http.HandleFunc("/latest", func(w http.ResponseWriter, r *http.Request) {
		reading := poller.Latest()
		if reading == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "No readings available yet",
			})
			return
		}
		writeJSON(w, http.StatusOK, reading)
	})

	http.HandleFunc("/state", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"poller":     poller.Status(),
			"rx_dropped": port.Dropped(),
		})
	})

	http.HandleFunc("/resources", func(w http.ResponseWriter, r *http.Request) {
		reading := poller.Latest()
		if reading == nil {
			writeJSON(w, http.StatusNotFound, map[string]string{
				"error": "No readings available yet",
			})
			return
		}
		writeJSON(w, http.StatusOK, map[string]interface{}{
			"object_id": telemetry.PowerMeterObjectID,
			"device":    store.DeviceInfo(),
			"resources": telemetry.Resources(reading),
		})
	})

	http.Handle("/ws", hub)

	listener := fmt.Sprintf("%s:%d", cfg.ListenAddress, cfg.ListenPort)
	server := &http.Server{Addr: listener}
	go func() {
		<-ctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		server.Shutdown(shutdownCtx)
	}()

	log.Printf("Starting DLMS Power Meter API on %s (polling every %s)", listener, cfg.PollInterval())
	if err := server.ListenAndServe(); !errors.Is(err, http.ErrServerClosed) {
		log.Fatal(err)
	}

	// let the running cycle release the meter before the port closes
	<-pollerDone
	log.Println("Meter reader stopped")
}

func openPort(cfg *config.MeterReaderConfig) (*rs485.Port, error) {
	opts := rs485.Options{
		PortName:    cfg.Serial.Device,
		BaudRate:    cfg.Serial.Baudrate,
		KernelRS485: cfg.Serial.KernelRS485,
	}
	if cfg.Serial.DirectionGPIO >= 0 && !cfg.Serial.KernelRS485 {
		dir, err := rs485.NewGPIODirection(cfg.Serial.DirectionGPIO)
		if err != nil {
			return nil, fmt.Errorf("direction gpio %d: %w", cfg.Serial.DirectionGPIO, err)
		}
		opts.Direction = dir
	}
	return rs485.Open(opts)
}

// setupMQTT registers the telemetry observer. The reader keeps running
// without it when the broker is unreachable at startup.
func setupMQTT(cfg *config.MeterReaderConfig, store *telemetry.Store) {
	mqttCfg := cfg.TelemetryConfig()
	client, err := telemetry.DialMQTT(mqttCfg)
	if err != nil {
		log.Errorf("MQTT disabled: %v", err)
		return
	}

	observer := telemetry.NewMQTTObserver(client, mqttCfg)
	store.AddObserver(observer)
	if err := observer.PublishDeviceInfo(mqttCfg.AttributesTopic, store.DeviceInfo()); err != nil {
		log.Warnf("Failed to publish device info: %v", err)
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}
