package config

type MeterCollectorConfig struct {
	ReaderHost string `toml:"reader_host"`
	TLSEnabled bool   `toml:"tls_enabled"`
	LogLevel   string `toml:"log_level"`
}

type MeterReaderConfig struct {
	LogLevel            string `toml:"log_level"`
	ListenAddress       string `toml:"listen_address"`
	ListenPort          int    `toml:"listen_port"`
	PollIntervalSeconds int    `toml:"poll_interval_seconds"`

	Serial SerialConfig `toml:"serial"`
	Meter  MeterConfig  `toml:"meter"`
	MQTT   MQTTConfig   `toml:"mqtt"`
	Device DeviceConfig `toml:"device"`
}

type SerialConfig struct {
	Device   string `toml:"device"`
	Baudrate uint   `toml:"baudrate"`
	// Sysfs GPIO number driving DE/RE of the transceiver, -1 for none.
	DirectionGPIO int `toml:"direction_gpio"`
	// Let the kernel toggle RTS around transmissions instead.
	KernelRS485 bool `toml:"kernel_rs485"`
}

type MeterConfig struct {
	ClientAddress       uint8  `toml:"client_address"`
	ServerLogical       uint16 `toml:"server_logical"`
	ServerPhysical      uint16 `toml:"server_physical"`
	Password            string `toml:"password"`
	MaxPDUSize          uint16 `toml:"max_pdu_size"`
	ResponseTimeoutMs   int    `toml:"response_timeout_ms"`
	InterFrameDelayMs   int    `toml:"inter_frame_delay_ms"`
	InterRequestDelayMs int    `toml:"inter_request_delay_ms"`
	SettleDelayMs       int    `toml:"settle_delay_ms"`

	SNRM SNRMConfig `toml:"snrm"`
}

// SNRMConfig is the optional HDLC parameter negotiation sent with SNRM.
// Most meters accept a bare SNRM.
type SNRMConfig struct {
	Enabled   bool   `toml:"enabled"`
	MaxInfoTx uint16 `toml:"max_info_tx"`
	MaxInfoRx uint16 `toml:"max_info_rx"`
	WindowTx  uint8  `toml:"window_tx"`
	WindowRx  uint8  `toml:"window_rx"`
}

type MQTTConfig struct {
	Enabled  bool   `toml:"enabled"`
	Broker   string `toml:"broker"`
	ClientID string `toml:"client_id"`
	// ThingsBoard uses the device access token as username
	Username string `toml:"username"`
	Password string `toml:"password"`
	Topic    string `toml:"topic"`
	QoS      uint8  `toml:"qos"`

	AttributesTopic  string `toml:"attributes_topic"`
	PublishTimeoutMs int    `toml:"publish_timeout_ms"`
}

type DeviceConfig struct {
	Manufacturer string `toml:"manufacturer"`
	ModelNumber  string `toml:"model_number"`
	SerialNumber string `toml:"serial_number"`
	Description  string `toml:"description"`
}
