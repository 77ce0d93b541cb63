package config

import (
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strconv"
	"time"

	"github.com/BurntSushi/toml"
	"github.com/NotCoffee418/dlms_power_meter/pkg/hdlc"
	"github.com/NotCoffee418/dlms_power_meter/pkg/meter"
	"github.com/NotCoffee418/dlms_power_meter/pkg/pathing"
	"github.com/NotCoffee418/dlms_power_meter/pkg/telemetry"
	"github.com/joho/godotenv"
	"github.com/sirupsen/logrus"
)

var _lg = logrus.WithField("module", "config")

var (
	ActiveMeterReaderConfig    *MeterReaderConfig
	ActiveMeterCollectorConfig *MeterCollectorConfig
)

func DefaultMeterReaderConfig() *MeterReaderConfig {
	m := meter.DefaultConfig()
	return &MeterReaderConfig{
		LogLevel:            "info",
		ListenAddress:       "0.0.0.0",
		ListenPort:          9039,
		PollIntervalSeconds: 30,
		Serial: SerialConfig{
			Device:        "/dev/ttyUSB0",
			Baudrate:      9600,
			DirectionGPIO: -1,
		},
		Meter: MeterConfig{
			ClientAddress:       m.ClientAddress,
			ServerLogical:       m.ServerLogical,
			ServerPhysical:      m.ServerPhysical,
			Password:            m.Password,
			MaxPDUSize:          m.MaxPDUSize,
			ResponseTimeoutMs:   int(m.ResponseTimeout / time.Millisecond),
			InterFrameDelayMs:   int(m.InterFrameDelay / time.Millisecond),
			InterRequestDelayMs: int(m.InterRequestDelay / time.Millisecond),
			SettleDelayMs:       int(m.SettleDelay / time.Millisecond),
			SNRM: SNRMConfig{
				MaxInfoTx: 128,
				MaxInfoRx: 128,
				WindowTx:  1,
				WindowRx:  1,
			},
		},
		MQTT: MQTTConfig{
			Broker:           "tcp://localhost:1883",
			Topic:            telemetry.DefaultTelemetryTopic,
			QoS:              1,
			AttributesTopic:  telemetry.DefaultAttributesTopic,
			PublishTimeoutMs: 5000,
		},
		Device: DeviceConfig{
			Manufacturer: "Microstar",
			Description:  "3-phase power meter",
		},
	}
}

func DefaultMeterCollectorConfig() *MeterCollectorConfig {
	return &MeterCollectorConfig{
		ReaderHost: "localhost:9039",
		TLSEnabled: false,
		LogLevel:   "info",
	}
}

func LoadMeterReaderConfig() error {
	loadEnvFile("meter_reader.env")
	cfg, err := LoadMeterReaderConfigFrom(filepath.Join(pathing.GetConfigDir(), "meter_reader.toml"))
	if err != nil {
		return err
	}
	ActiveMeterReaderConfig = cfg
	return nil
}

// LoadMeterReaderConfigFrom reads configPath, writing the defaults there
// first if it does not exist. Environment overrides are applied on top.
func LoadMeterReaderConfigFrom(configPath string) (*MeterReaderConfig, error) {
	cfg := DefaultMeterReaderConfig()
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	applyReaderEnv(cfg)
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("%s: %w", configPath, err)
	}
	return cfg, nil
}

func LoadMeterCollectorConfig() error {
	loadEnvFile("meter_collector.env")
	cfg, err := LoadMeterCollectorConfigFrom(filepath.Join(pathing.GetConfigDir(), "meter_collector.toml"))
	if err != nil {
		return err
	}
	ActiveMeterCollectorConfig = cfg
	return nil
}

func LoadMeterCollectorConfigFrom(configPath string) (*MeterCollectorConfig, error) {
	cfg := DefaultMeterCollectorConfig()
	if err := loadOrCreate(configPath, cfg); err != nil {
		return nil, err
	}
	if val := os.Getenv("DLMS_READER_HOST"); val != "" {
		cfg.ReaderHost = val
	}
	if val := os.Getenv("DLMS_LOG_LEVEL"); val != "" {
		cfg.LogLevel = val
	}
	return cfg, nil
}

// loadOrCreate decodes configPath into cfg, which holds the defaults.
// A missing file is created from those defaults.
func loadOrCreate(configPath string, cfg interface{}) error {
	if _, err := os.Stat(configPath); os.IsNotExist(err) {
		cfgFile, err := os.Create(configPath)
		if err != nil {
			return err
		}
		defer cfgFile.Close()
		if err := toml.NewEncoder(cfgFile).Encode(cfg); err != nil {
			return err
		}
		_lg.Infof("Wrote default config to %s", configPath)
		return nil
	}

	md, err := toml.DecodeFile(configPath, cfg)
	if err != nil {
		return err
	}
	for _, key := range md.Undecoded() {
		_lg.Warnf("%s: unknown key %q", configPath, key.String())
	}
	return nil
}

// loadEnvFile loads DLMS_ENV_PATH or <config dir>/name. Variables already
// set in the environment win.
func loadEnvFile(name string) {
	envPath := filepath.Join(pathing.GetConfigDir(), name)
	if val := os.Getenv("DLMS_ENV_PATH"); val != "" {
		envPath = val
	}
	if err := godotenv.Load(envPath); err != nil {
		_lg.Debugf("No env file loaded from %s: %v", envPath, err)
		return
	}
	_lg.Infof("Loaded env file %s", envPath)
}

func applyReaderEnv(cfg *MeterReaderConfig) {
	envString("DLMS_LOG_LEVEL", &cfg.LogLevel)
	envString("DLMS_SERIAL_DEVICE", &cfg.Serial.Device)
	envString("DLMS_PASSWORD", &cfg.Meter.Password)
	envInt("DLMS_LISTEN_PORT", &cfg.ListenPort)
	envInt("DLMS_POLL_INTERVAL_SECONDS", &cfg.PollIntervalSeconds)
	envInt("DLMS_DIRECTION_GPIO", &cfg.Serial.DirectionGPIO)
	if val := os.Getenv("DLMS_BAUDRATE"); val != "" {
		if baud, err := strconv.ParseUint(val, 10, 32); err != nil {
			_lg.Warnf("Could not parse DLMS_BAUDRATE (%q): %v", val, err)
		} else {
			cfg.Serial.Baudrate = uint(baud)
		}
	}

	if val := os.Getenv("MQTT_ENABLED"); val != "" {
		if enabled, err := strconv.ParseBool(val); err != nil {
			_lg.Warnf("Could not parse MQTT_ENABLED (%q): %v", val, err)
		} else {
			cfg.MQTT.Enabled = enabled
		}
	}
	envString("MQTT_BROKER", &cfg.MQTT.Broker)
	envString("MQTT_CLIENT_ID", &cfg.MQTT.ClientID)
	envString("MQTT_USERNAME", &cfg.MQTT.Username)
	envString("MQTT_PASSWORD", &cfg.MQTT.Password)
	envString("MQTT_TOPIC", &cfg.MQTT.Topic)
	envString("MQTT_ATTRIBUTES_TOPIC", &cfg.MQTT.AttributesTopic)
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
		_lg.Debugf("ENV override: %s", key)
	}
}

func envInt(key string, dst *int) {
	val := os.Getenv(key)
	if val == "" {
		return
	}
	n, err := strconv.Atoi(val)
	if err != nil {
		_lg.Warnf("Could not parse %s (%q): %v", key, val, err)
		return
	}
	*dst = n
	_lg.Debugf("ENV override: %s=%d", key, n)
}

// Validate reports every invalid setting at once.
func (c *MeterReaderConfig) Validate() error {
	var errs []error
	if c.PollIntervalSeconds <= 0 {
		errs = append(errs, errors.New("poll_interval_seconds must be > 0"))
	}
	if c.Serial.Device == "" {
		errs = append(errs, errors.New("serial.device is required"))
	}
	if c.Serial.Baudrate == 0 {
		errs = append(errs, errors.New("serial.baudrate must be > 0"))
	}
	if _, err := hdlc.ServerAddress(c.Meter.ServerLogical, c.Meter.ServerPhysical); err != nil {
		errs = append(errs, fmt.Errorf("meter server address: %w", err))
	}
	if c.Meter.ResponseTimeoutMs <= 0 {
		errs = append(errs, errors.New("meter.response_timeout_ms must be > 0"))
	}
	if c.Meter.SNRM.Enabled {
		snrm := c.Meter.SNRM
		if snrm.MaxInfoTx == 0 || snrm.MaxInfoRx == 0 || snrm.MaxInfoRx > hdlc.MaxInfoLen {
			errs = append(errs, fmt.Errorf("meter.snrm: max_info_tx and max_info_rx must be within 1-%d", hdlc.MaxInfoLen))
		}
		// one frame in flight at a time
		if snrm.WindowTx != 1 || snrm.WindowRx != 1 {
			errs = append(errs, errors.New("meter.snrm: window_tx and window_rx must be 1"))
		}
	}
	if c.MQTT.Enabled && c.MQTT.Broker == "" {
		errs = append(errs, errors.New("mqtt.broker is required when mqtt is enabled"))
	}
	if c.MQTT.PublishTimeoutMs < 0 {
		errs = append(errs, errors.New("mqtt.publish_timeout_ms must not be negative"))
	}
	if _, err := logrus.ParseLevel(c.LogLevel); err != nil {
		errs = append(errs, err)
	}
	return errors.Join(errs...)
}

func (c *MeterReaderConfig) PollInterval() time.Duration {
	return time.Duration(c.PollIntervalSeconds) * time.Second
}

// SessionConfig converts the [meter] section for meter.NewSession.
func (c *MeterReaderConfig) SessionConfig() meter.Config {
	return meter.Config{
		ClientAddress:     c.Meter.ClientAddress,
		ServerLogical:     c.Meter.ServerLogical,
		ServerPhysical:    c.Meter.ServerPhysical,
		Password:          c.Meter.Password,
		MaxPDUSize:        c.Meter.MaxPDUSize,
		ResponseTimeout:   time.Duration(c.Meter.ResponseTimeoutMs) * time.Millisecond,
		InterFrameDelay:   time.Duration(c.Meter.InterFrameDelayMs) * time.Millisecond,
		InterRequestDelay: time.Duration(c.Meter.InterRequestDelayMs) * time.Millisecond,
		SettleDelay:       time.Duration(c.Meter.SettleDelayMs) * time.Millisecond,
		SNRMParams:        c.snrmParams(),
	}
}

func (c *MeterReaderConfig) snrmParams() *hdlc.Params {
	if !c.Meter.SNRM.Enabled {
		return nil
	}
	return &hdlc.Params{
		MaxInfoTx: c.Meter.SNRM.MaxInfoTx,
		MaxInfoRx: c.Meter.SNRM.MaxInfoRx,
		WindowTx:  c.Meter.SNRM.WindowTx,
		WindowRx:  c.Meter.SNRM.WindowRx,
	}
}

func (c *MeterReaderConfig) TelemetryConfig() telemetry.MQTTConfig {
	return telemetry.MQTTConfig{
		Broker:          c.MQTT.Broker,
		ClientID:        c.MQTT.ClientID,
		Username:        c.MQTT.Username,
		Password:        c.MQTT.Password,
		TelemetryTopic:  c.MQTT.Topic,
		AttributesTopic: c.MQTT.AttributesTopic,
		QoS:             c.MQTT.QoS,
		Timeout:         time.Duration(c.MQTT.PublishTimeoutMs) * time.Millisecond,
	}
}

func (c *MeterReaderConfig) DeviceInfo() telemetry.DeviceInfo {
	return telemetry.DeviceInfo{
		Manufacturer: c.Device.Manufacturer,
		ModelNumber:  c.Device.ModelNumber,
		SerialNumber: c.Device.SerialNumber,
		Description:  c.Device.Description,
	}
}
