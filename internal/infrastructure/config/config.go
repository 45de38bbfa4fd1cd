package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the RX380 logger.
// All configuration is loaded from YAML and can be overridden by environment variables.
type Config struct {
	Site       SiteConfig       `yaml:"site"`
	Meter      MeterConfig      `yaml:"meter"`
	Pipeline   PipelineConfig   `yaml:"pipeline"`
	Watchdog   WatchdogConfig   `yaml:"watchdog"`
	Control    ControlConfig    `yaml:"control"`
	Sinks      SinksConfig      `yaml:"sinks"`
	Database   DatabaseConfig   `yaml:"database"`
	Postgres   PostgresConfig   `yaml:"postgres"`
	InfluxDB   InfluxDBConfig   `yaml:"influxdb"`
	TSDB       TSDBConfig       `yaml:"tsdb"`
	MQTT       MQTTConfig       `yaml:"mqtt"`
	Redis      RedisConfig      `yaml:"redis"`
	API        APIConfig        `yaml:"api"`
	Logging    LoggingConfig    `yaml:"logging"`
	Supervisor SupervisorConfig `yaml:"supervisor"`
}

// SiteConfig identifies the installation and its local time zone.
// The time zone drives daily file rollover and clock-aligned cadence.
type SiteConfig struct {
	ID       string `yaml:"id"`
	Name     string `yaml:"name"`
	Timezone string `yaml:"timezone"`
}

// MeterConfig contains the Modbus link and register map settings.
type MeterConfig struct {
	// DeviceName is used in file names, topics and table rows.
	DeviceName string `yaml:"device_name"`

	// Mode is "rtu" (serial) or "tcp".
	Mode      string `yaml:"mode"`
	RTUDevice string `yaml:"rtu_device"`
	RTUBaud   int    `yaml:"rtu_baud"`
	DataBits  int    `yaml:"data_bits"`
	Parity    string `yaml:"parity"`
	StopBits  int    `yaml:"stop_bits"`
	TCPHost   string `yaml:"tcp_host"`
	TCPPort   int    `yaml:"tcp_port"`

	SlaveID int           `yaml:"slave_id"`
	Timeout time.Duration `yaml:"timeout"`

	// WordOrder is "high_first" or "low_first" for 32-bit values.
	WordOrder string `yaml:"word_order"`

	// PoolSize is the number of transport handles kept open.
	PoolSize int `yaml:"pool_size"`

	// Registers replaces the built-in RX380 map when non-empty.
	Registers []RegisterConfig `yaml:"registers,omitempty"`
}

// RegisterConfig describes one channel of a custom register map.
type RegisterConfig struct {
	Name     string  `yaml:"name"`
	Address  uint16  `yaml:"address"`
	Kind     string  `yaml:"kind"` // scaled, long, decimal
	Scale    float64 `yaml:"scale,omitempty"`
	Decimals int     `yaml:"decimals,omitempty"`
	Signed   bool    `yaml:"signed,omitempty"`
	Unit     string  `yaml:"unit,omitempty"`
}

// PipelineConfig contains the read/flush cadence and buffering settings.
type PipelineConfig struct {
	ReadInterval  time.Duration `yaml:"read_interval"`
	FlushInterval time.Duration `yaml:"flush_interval"`

	// Cadence is "fixed" or "clock" (aligned to local-midnight boundaries).
	Cadence string `yaml:"cadence"`

	BufferCapacity int `yaml:"buffer_capacity"`

	// OverflowPolicy is "drop_oldest" or "flush".
	OverflowPolicy string `yaml:"overflow_policy"`

	// BacklogLimit caps rows carried over per failing sink. 0 disables carry-over.
	BacklogLimit int `yaml:"backlog_limit"`

	ReadWorkers int `yaml:"read_workers"`
	SinkWorkers int `yaml:"sink_workers"`

	SinkTimeout     time.Duration `yaml:"sink_timeout"`
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`
}

// WatchdogConfig contains liveness monitor settings.
type WatchdogConfig struct {
	Enabled bool          `yaml:"enabled"`
	Timeout time.Duration `yaml:"timeout"`
}

// ControlConfig selects the operator command sources.
type ControlConfig struct {
	Stdin bool `yaml:"stdin"`
	MQTT  bool `yaml:"mqtt"`
}

// SinksConfig contains the file-based sink settings.
type SinksConfig struct {
	CSV         CSVSinkConfig         `yaml:"csv"`
	Spreadsheet SpreadsheetSinkConfig `yaml:"spreadsheet"`
}

// CSVSinkConfig contains daily CSV file settings.
type CSVSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Folder  string `yaml:"folder"`
}

// SpreadsheetSinkConfig contains daily spreadsheet file settings.
type SpreadsheetSinkConfig struct {
	Enabled bool   `yaml:"enabled"`
	Folder  string `yaml:"folder"`
	Sheet   string `yaml:"sheet"`
}

// DatabaseConfig contains SQLite database settings.
type DatabaseConfig struct {
	Enabled     bool   `yaml:"enabled"`
	Path        string `yaml:"path"`
	WALMode     bool   `yaml:"wal_mode"`
	BusyTimeout int    `yaml:"busy_timeout"`
	Table       string `yaml:"table"`
}

// PostgresConfig contains PostgreSQL/TimescaleDB settings.
type PostgresConfig struct {
	Enabled  bool   `yaml:"enabled"`
	URL      string `yaml:"url"`
	Table    string `yaml:"table"`
	MaxConns int32  `yaml:"max_conns"`
}

// InfluxDBConfig contains InfluxDB connection settings.
type InfluxDBConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Token       string `yaml:"token"`
	Org         string `yaml:"org"`
	Bucket      string `yaml:"bucket"`
	Measurement string `yaml:"measurement"`
}

// TSDBConfig contains VictoriaMetrics settings.
type TSDBConfig struct {
	Enabled     bool   `yaml:"enabled"`
	URL         string `yaml:"url"`
	Measurement string `yaml:"measurement"`
}

// MQTTConfig contains MQTT broker connection settings.
// The connection is shared by the MQTT sink and the control topic.
type MQTTConfig struct {
	Enabled     bool                `yaml:"enabled"`
	Broker      MQTTBrokerConfig    `yaml:"broker"`
	Auth        MQTTAuthConfig      `yaml:"auth"`
	QoS         int                 `yaml:"qos"`
	Reconnect   MQTTReconnectConfig `yaml:"reconnect"`
	TopicPrefix string              `yaml:"topic_prefix"`

	// Publish enables the MQTT sink. The control topic only needs Enabled.
	Publish bool `yaml:"publish"`
}

// MQTTBrokerConfig contains MQTT broker connection details.
type MQTTBrokerConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	TLS      bool   `yaml:"tls"`
	ClientID string `yaml:"client_id"`
}

// MQTTAuthConfig contains MQTT authentication credentials.
type MQTTAuthConfig struct {
	Username string `yaml:"username"`
	Password string `yaml:"password"`
}

// MQTTReconnectConfig contains MQTT reconnection settings.
type MQTTReconnectConfig struct {
	InitialDelay int `yaml:"initial_delay"`
	MaxDelay     int `yaml:"max_delay"`
}

// RedisConfig contains the latest-reading cache settings.
type RedisConfig struct {
	Enabled   bool          `yaml:"enabled"`
	Addr      string        `yaml:"addr"`
	Password  string        `yaml:"password"`
	DB        int           `yaml:"db"`
	KeyPrefix string        `yaml:"key_prefix"`
	TTL       time.Duration `yaml:"ttl"`
}

// APIConfig contains the status HTTP server settings.
type APIConfig struct {
	Enabled  bool             `yaml:"enabled"`
	Host     string           `yaml:"host"`
	Port     int              `yaml:"port"`
	Timeouts APITimeoutConfig `yaml:"timeouts"`

	// DashboardDir serves the dashboard from disk instead of the embedded copy.
	DashboardDir string `yaml:"dashboard_dir"`

	// ControlSecret signs operator tokens. When set, control requests need
	// a bearer token (see rx380token).
	ControlSecret string `yaml:"control_secret"`
}

// APITimeoutConfig contains HTTP timeout settings in seconds.
type APITimeoutConfig struct {
	Read  int `yaml:"read"`
	Write int `yaml:"write"`
	Idle  int `yaml:"idle"`
}

// LoggingConfig contains logging settings.
type LoggingConfig struct {
	Level  string            `yaml:"level"`
	Format string            `yaml:"format"`
	Output string            `yaml:"output"`
	File   FileLoggingConfig `yaml:"file"`

	// Console mirrors the latest reading and error to stdout.
	Console bool `yaml:"console"`
}

// FileLoggingConfig contains file-based logging settings.
type FileLoggingConfig struct {
	Path       string `yaml:"path"`
	MaxSize    int    `yaml:"max_size"`
	MaxBackups int    `yaml:"max_backups"`
	MaxAge     int    `yaml:"max_age"`
	Compress   bool   `yaml:"compress"`
}

// SupervisorConfig contains settings for rx380supervisor.
type SupervisorConfig struct {
	Binary              string        `yaml:"binary"`
	Args                []string      `yaml:"args"`
	RestartDelay        time.Duration `yaml:"restart_delay"`
	MaxRestartDelay     time.Duration `yaml:"max_restart_delay"`
	MaxRestartAttempts  int           `yaml:"max_restart_attempts"`
	HealthCheckInterval time.Duration `yaml:"health_check_interval"`
}

// Load reads configuration from a YAML file and applies environment variable overrides.
//
// The configuration loading order is:
//  1. Default values (hardcoded)
//  2. YAML file values (override defaults)
//  3. Environment variables (override file values)
//
// Environment variables follow the pattern: RX380_SECTION_KEY
// For example: RX380_METER_DEVICE, RX380_POSTGRES_URL
//
// Parameters:
//   - path: Path to the YAML configuration file
//
// Returns:
//   - *Config: Loaded and validated configuration
//   - error: If file cannot be read, parsed, or validation fails
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading config file: %w", err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("parsing config file: %w", err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("validating config: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config matching the RX380 factory settings.
func defaultConfig() *Config {
	return &Config{
		Site: SiteConfig{
			ID:       "site-001",
			Name:     "RX380 logger",
			Timezone: "Local",
		},
		Meter: MeterConfig{
			DeviceName: "rx380",
			Mode:       "rtu",
			RTUDevice:  "/dev/ttyUSB0",
			RTUBaud:    19200,
			DataBits:   8,
			Parity:     "E",
			StopBits:   1,
			TCPPort:    502,
			SlaveID:    1,
			Timeout:    time.Second,
			WordOrder:  "high_first",
			PoolSize:   1,
		},
		Pipeline: PipelineConfig{
			ReadInterval:    5 * time.Second,
			FlushInterval:   60 * time.Second,
			Cadence:         "fixed",
			BufferCapacity:  1000,
			OverflowPolicy:  "drop_oldest",
			BacklogLimit:    10000,
			ReadWorkers:     4,
			SinkWorkers:     8,
			SinkTimeout:     30 * time.Second,
			ShutdownTimeout: 15 * time.Second,
		},
		Watchdog: WatchdogConfig{
			Enabled: true,
			Timeout: 60 * time.Second,
		},
		Control: ControlConfig{
			Stdin: true,
		},
		Sinks: SinksConfig{
			CSV: CSVSinkConfig{
				Enabled: true,
				Folder:  "./data/csv",
			},
			Spreadsheet: SpreadsheetSinkConfig{
				Folder: "./data/xlsx",
				Sheet:  "Sheet1",
			},
		},
		Database: DatabaseConfig{
			Path:        "./data/rx380.db",
			WALMode:     true,
			BusyTimeout: 5,
			Table:       "readings",
		},
		Postgres: PostgresConfig{
			Table:    "rx380_readings",
			MaxConns: 4,
		},
		InfluxDB: InfluxDBConfig{
			Measurement: "rx380",
		},
		TSDB: TSDBConfig{
			Measurement: "rx380",
		},
		MQTT: MQTTConfig{
			Broker: MQTTBrokerConfig{
				Host:     "localhost",
				Port:     1883,
				ClientID: "rx380-logger",
			},
			QoS: 1,
			Reconnect: MQTTReconnectConfig{
				InitialDelay: 1,
				MaxDelay:     60,
			},
			TopicPrefix: "rx380",
		},
		Redis: RedisConfig{
			Addr:      "localhost:6379",
			KeyPrefix: "rx380",
			TTL:       24 * time.Hour,
		},
		API: APIConfig{
			Enabled: true,
			Host:    "127.0.0.1",
			Port:    8380,
			Timeouts: APITimeoutConfig{
				Read:  10,
				Write: 10,
				Idle:  60,
			},
		},
		Logging: LoggingConfig{
			Level:   "info",
			Format:  "json",
			Output:  "stdout",
			Console: true,
			File: FileLoggingConfig{
				Path:       "./logs/rx380.log",
				MaxSize:    10,
				MaxBackups: 7,
				MaxAge:     30,
				Compress:   true,
			},
		},
		Supervisor: SupervisorConfig{
			Binary:              "./rx380logger",
			RestartDelay:        5 * time.Second,
			MaxRestartDelay:     5 * time.Minute,
			HealthCheckInterval: 30 * time.Second,
		},
	}
}

// applyEnvOverrides applies environment variable overrides to the configuration.
// Environment variables follow the pattern: RX380_SECTION_KEY
func applyEnvOverrides(cfg *Config) {
	// Meter
	if v := os.Getenv("RX380_METER_DEVICE"); v != "" {
		cfg.Meter.RTUDevice = v
	}
	if v := os.Getenv("RX380_METER_TCP_HOST"); v != "" {
		cfg.Meter.TCPHost = v
	}
	if v := os.Getenv("RX380_METER_SLAVE_ID"); v != "" {
		if id, err := strconv.Atoi(v); err == nil {
			cfg.Meter.SlaveID = id
		}
	}

	// Sinks
	if v := os.Getenv("RX380_CSV_FOLDER"); v != "" {
		cfg.Sinks.CSV.Folder = v
	}
	if v := os.Getenv("RX380_DATABASE_PATH"); v != "" {
		cfg.Database.Path = v
	}
	if v := os.Getenv("RX380_POSTGRES_URL"); v != "" {
		cfg.Postgres.URL = v
	}
	if v := os.Getenv("RX380_INFLUXDB_TOKEN"); v != "" {
		cfg.InfluxDB.Token = v
	}
	if v := os.Getenv("RX380_REDIS_PASSWORD"); v != "" {
		cfg.Redis.Password = v
	}

	// MQTT
	if v := os.Getenv("RX380_MQTT_HOST"); v != "" {
		cfg.MQTT.Broker.Host = v
	}
	if v := os.Getenv("RX380_MQTT_USERNAME"); v != "" {
		cfg.MQTT.Auth.Username = v
	}
	if v := os.Getenv("RX380_MQTT_PASSWORD"); v != "" {
		cfg.MQTT.Auth.Password = v
	}

	// API
	if v := os.Getenv("RX380_API_CONTROL_SECRET"); v != "" {
		cfg.API.ControlSecret = v
	}

	// Logging
	if v := os.Getenv("RX380_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks the configuration for errors.
//
// All problems are collected so an operator sees every mistake at once.
//
// Returns:
//   - error: Description of validation failures, or nil if valid
func (c *Config) Validate() error {
	var errs []string

	if c.Site.ID == "" {
		errs = append(errs, "site.id is required")
	}
	if _, err := c.Location(); err != nil {
		errs = append(errs, fmt.Sprintf("site.timezone %q is invalid", c.Site.Timezone))
	}

	errs = append(errs, c.validateMeter()...)
	errs = append(errs, c.validatePipeline()...)
	errs = append(errs, c.validateSinks()...)

	if c.Watchdog.Enabled {
		// Longest gap between heartbeats: a read interval, one meter
		// timeout and a sink write that runs to its own timeout.
		cycle := c.Pipeline.ReadInterval + c.Meter.Timeout + c.Pipeline.SinkTimeout
		if c.Watchdog.Timeout <= cycle {
			errs = append(errs, fmt.Sprintf(
				"watchdog.timeout must be longer than pipeline.read_interval + meter.timeout + pipeline.sink_timeout (%s)", cycle))
		}
		// The final flush runs with the watchdog armed.
		if c.Watchdog.Timeout <= c.Pipeline.ShutdownTimeout {
			errs = append(errs, "watchdog.timeout must be longer than pipeline.shutdown_timeout")
		}
	}

	if c.MQTT.QoS < 0 || c.MQTT.QoS > 2 {
		errs = append(errs, "mqtt.qos must be 0, 1, or 2")
	}
	if c.Control.MQTT && !c.MQTT.Enabled {
		errs = append(errs, "control.mqtt requires mqtt.enabled")
	}

	if c.API.Enabled && (c.API.Port < 1 || c.API.Port > 65535) {
		errs = append(errs, "api.port must be between 1 and 65535")
	}
	if c.API.ControlSecret != "" && len(c.API.ControlSecret) < 32 {
		errs = append(errs, "api.control_secret must be at least 32 bytes")
	}

	if len(errs) > 0 {
		return fmt.Errorf("configuration errors: %s", strings.Join(errs, "; "))
	}

	return nil
}

func (c *Config) validateMeter() []string {
	var errs []string
	m := c.Meter

	if m.DeviceName == "" {
		errs = append(errs, "meter.device_name is required")
	}

	switch m.Mode {
	case "rtu":
		if m.RTUDevice == "" {
			errs = append(errs, "meter.rtu_device is required in rtu mode")
		}
		if m.RTUBaud <= 0 {
			errs = append(errs, "meter.rtu_baud must be positive")
		}
		switch m.Parity {
		case "N", "E", "O":
		default:
			errs = append(errs, "meter.parity must be N, E, or O")
		}
	case "tcp":
		if m.TCPHost == "" {
			errs = append(errs, "meter.tcp_host is required in tcp mode")
		}
		if m.TCPPort < 1 || m.TCPPort > 65535 {
			errs = append(errs, "meter.tcp_port must be between 1 and 65535")
		}
	default:
		errs = append(errs, fmt.Sprintf("meter.mode %q must be rtu or tcp", m.Mode))
	}

	if m.SlaveID < 1 || m.SlaveID > 247 {
		errs = append(errs, "meter.slave_id must be between 1 and 247")
	}
	if m.Timeout <= 0 {
		errs = append(errs, "meter.timeout must be positive")
	}
	if m.WordOrder != "high_first" && m.WordOrder != "low_first" {
		errs = append(errs, "meter.word_order must be high_first or low_first")
	}
	if m.PoolSize < 1 {
		errs = append(errs, "meter.pool_size must be at least 1")
	}

	return errs
}

func (c *Config) validatePipeline() []string {
	var errs []string
	p := c.Pipeline

	if p.ReadInterval <= 0 {
		errs = append(errs, "pipeline.read_interval must be positive")
	}
	if p.FlushInterval < p.ReadInterval {
		errs = append(errs, "pipeline.flush_interval must not be shorter than pipeline.read_interval")
	}
	if p.Cadence != "fixed" && p.Cadence != "clock" {
		errs = append(errs, "pipeline.cadence must be fixed or clock")
	}
	if p.BufferCapacity < 1 {
		errs = append(errs, "pipeline.buffer_capacity must be at least 1")
	}
	if p.OverflowPolicy != "drop_oldest" && p.OverflowPolicy != "flush" {
		errs = append(errs, "pipeline.overflow_policy must be drop_oldest or flush")
	}
	if p.BacklogLimit < 0 {
		errs = append(errs, "pipeline.backlog_limit must not be negative")
	}
	if p.ReadWorkers < 1 || p.SinkWorkers < 1 {
		errs = append(errs, "pipeline.read_workers and pipeline.sink_workers must be at least 1")
	}

	return errs
}

func (c *Config) validateSinks() []string {
	var errs []string

	if c.Sinks.CSV.Enabled && c.Sinks.CSV.Folder == "" {
		errs = append(errs, "sinks.csv.folder is required")
	}
	if c.Sinks.Spreadsheet.Enabled && (c.Sinks.Spreadsheet.Folder == "" || c.Sinks.Spreadsheet.Sheet == "") {
		errs = append(errs, "sinks.spreadsheet.folder and sinks.spreadsheet.sheet are required")
	}
	if c.Database.Enabled && c.Database.Path == "" {
		errs = append(errs, "database.path is required")
	}
	if c.Postgres.Enabled && c.Postgres.URL == "" {
		errs = append(errs, "postgres.url is required (set RX380_POSTGRES_URL)")
	}
	if c.InfluxDB.Enabled && (c.InfluxDB.URL == "" || c.InfluxDB.Bucket == "") {
		errs = append(errs, "influxdb.url and influxdb.bucket are required")
	}
	if c.TSDB.Enabled && c.TSDB.URL == "" {
		errs = append(errs, "tsdb.url is required")
	}
	if c.Redis.Enabled && c.Redis.Addr == "" {
		errs = append(errs, "redis.addr is required")
	}
	if c.MQTT.Publish && !c.MQTT.Enabled {
		errs = append(errs, "mqtt.publish requires mqtt.enabled")
	}

	if c.EnabledSinkCount() == 0 {
		errs = append(errs, "at least one sink must be enabled")
	}

	return errs
}

// EnabledSinkCount returns how many persistence targets are configured.
func (c *Config) EnabledSinkCount() int {
	n := 0
	for _, on := range []bool{
		c.Sinks.CSV.Enabled,
		c.Sinks.Spreadsheet.Enabled,
		c.Database.Enabled,
		c.Postgres.Enabled,
		c.InfluxDB.Enabled,
		c.TSDB.Enabled,
		c.MQTT.Enabled && c.MQTT.Publish,
		c.Redis.Enabled,
	} {
		if on {
			n++
		}
	}
	return n
}

// Location returns the site time zone used for daily files and clock alignment.
func (c *Config) Location() (*time.Location, error) {
	if c.Site.Timezone == "" || c.Site.Timezone == "Local" {
		return time.Local, nil
	}
	return time.LoadLocation(c.Site.Timezone)
}

// GetReadTimeout returns the API read timeout as a Duration.
func (a APIConfig) GetReadTimeout() time.Duration {
	return time.Duration(a.Timeouts.Read) * time.Second
}

// GetWriteTimeout returns the API write timeout as a Duration.
func (a APIConfig) GetWriteTimeout() time.Duration {
	return time.Duration(a.Timeouts.Write) * time.Second
}

// GetIdleTimeout returns the API idle timeout as a Duration.
func (a APIConfig) GetIdleTimeout() time.Duration {
	return time.Duration(a.Timeouts.Idle) * time.Second
}
