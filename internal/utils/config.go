package utils

import (
	"errors"
	"fmt"
	"os"
	"time"

	"github.com/benmeehan/proximity-agent/pkg/file"
	"github.com/benmeehan/proximity-agent/pkg/location"
	"github.com/joho/godotenv"
)

// Recognised values for the source, transport and driver settings.
const (
	SourceSensor = "sensor"
	SourceGoogle = "google"
	SourceMQTT   = "mqtt"

	TransportMQTT = "mqtt"
	TransportAMQP = "amqp"

	DriverFile     = "file"
	DriverPostgres = "postgres"
)

// Environment variables that override secrets from the config file.
const (
	EnvMQTTPassword = "PROXIMITY_MQTT_PASSWORD"
	EnvMapsAPIKey   = "PROXIMITY_MAPS_API_KEY"
	EnvPostgresDSN  = "PROXIMITY_POSTGRES_DSN"
	EnvAMQPURL      = "PROXIMITY_AMQP_URL"
	EnvS3AccessKey  = "PROXIMITY_S3_ACCESS_KEY"
	EnvS3SecretKey  = "PROXIMITY_S3_SECRET_KEY"
)

// Config represents the structure of the configuration file.
type Config struct {
	MQTT struct {
		Broker        string `yaml:"broker"`         // MQTT broker address
		ClientID      string `yaml:"client_id"`      // MQTT client ID
		CACertificate string `yaml:"ca_certificate"` // Path to the CA certificate
		Username      string `yaml:"username"`
		Password      string `yaml:"password"`
	} `yaml:"mqtt"`

	Identity struct {
		DeviceFile string `yaml:"device_file"` // Path to the device identity file
	} `yaml:"identity"`

	Logging struct {
		Level  string `yaml:"level"`  // zerolog level name
		Pretty bool   `yaml:"pretty"` // Human readable console output
	} `yaml:"logging"`

	Proximity struct {
		ThresholdMeters    float64       `yaml:"threshold_meters"`     // Inclusive proximity radius
		CleanupInterval    time.Duration `yaml:"cleanup_interval"`     // How often stale notifications are withdrawn
		NotificationMaxAge time.Duration `yaml:"notification_max_age"` // Age after which a notification is stale
		UpdateTopic        string        `yaml:"update_topic"`         // MQTT topic for enter/exit events, empty disables
		QOS                int           `yaml:"qos"`
	} `yaml:"proximity"`

	Location struct {
		Source            string        `yaml:"source"`          // sensor, google or mqtt
		Interval          time.Duration `yaml:"interval"`        // Polling interval for sensor and google sources
		GPSDevicePort     string        `yaml:"gps_device_port"` // UNIX port where the GPS sensor is mounted
		GPSDeviceBaudRate int           `yaml:"gps_baud_rate"`   // The baud rate for the GPS sensor
		MapsAPIKey        string        `yaml:"maps_api_key"`    // Google maps API key
		ModemIndex        int           `yaml:"modem_index"`     // ModemManager index used for cell tower lookup
		Topic             string        `yaml:"topic"`           // MQTT topic for the mqtt source
		QOS               int           `yaml:"qos"`
	} `yaml:"location"`

	Notifications struct {
		Transport    string        `yaml:"transport"` // mqtt or amqp
		Topic        string        `yaml:"topic"`     // MQTT topic prefix
		QOS          int           `yaml:"qos"`
		Granted      bool          `yaml:"granted"`      // Initial notification permission
		CallTimeout  time.Duration `yaml:"call_timeout"` // Bound on each issue or cancel call
		Workers      int           `yaml:"workers"`      // Parallel issue/cancel calls per update
		AMQPURL      string        `yaml:"amqp_url"`
		AMQPExchange string        `yaml:"amqp_exchange"`
	} `yaml:"notifications"`

	Store struct {
		Driver      string `yaml:"driver"` // file or postgres
		File        string `yaml:"file"`
		PostgresDSN string `yaml:"postgres_dsn"`
		SeedGeoJSON string `yaml:"seed_geojson"` // Optional GeoJSON imported when the store is empty
	} `yaml:"store"`

	Images struct {
		Enabled   bool   `yaml:"enabled"`
		Endpoint  string `yaml:"endpoint"`
		AccessKey string `yaml:"access_key"`
		SecretKey string `yaml:"secret_key"`
		Bucket    string `yaml:"bucket"`
		UseSSL    bool   `yaml:"use_ssl"`
	} `yaml:"images"`

	Stats struct {
		Enabled     bool          `yaml:"enabled"`
		Topic       string        `yaml:"topic"`
		Interval    time.Duration `yaml:"interval"`
		QOS         int           `yaml:"qos"`
		HostMetrics []string      `yaml:"host_metrics"` // cpu, memory, disk, goroutines
		DiskPath    string        `yaml:"disk_path"`    // Filesystem measured by the disk metric
	} `yaml:"stats"`

	API struct {
		Enabled bool   `yaml:"enabled"`
		Address string `yaml:"address"`
	} `yaml:"api"`
}

// LoadConfig loads the YAML configuration from the specified file, applies
// environment overrides and defaults, and validates the result.
// Variables from envFile are loaded first when the file exists.
func LoadConfig(filename, envFile string, fileClient file.FileOperations) (*Config, error) {
	if envFile != "" {
		if err := godotenv.Load(envFile); err != nil && !errors.Is(err, os.ErrNotExist) {
			return nil, fmt.Errorf("failed to load %s: %w", envFile, err)
		}
	}

	var config Config
	if err := fileClient.ReadYamlFile(filename, &config); err != nil {
		return nil, fmt.Errorf("failed to read config %s: %w", filename, err)
	}

	config.applyEnv()
	config.applyDefaults()

	if err := config.Validate(); err != nil {
		return nil, err
	}
	return &config, nil
}

func (c *Config) applyEnv() {
	override := func(dst *string, key string) {
		if v := os.Getenv(key); v != "" {
			*dst = v
		}
	}
	override(&c.MQTT.Password, EnvMQTTPassword)
	override(&c.Location.MapsAPIKey, EnvMapsAPIKey)
	override(&c.Store.PostgresDSN, EnvPostgresDSN)
	override(&c.Notifications.AMQPURL, EnvAMQPURL)
	override(&c.Images.AccessKey, EnvS3AccessKey)
	override(&c.Images.SecretKey, EnvS3SecretKey)
}

func (c *Config) applyDefaults() {
	if c.Identity.DeviceFile == "" {
		c.Identity.DeviceFile = "configs/device.json"
	}
	if c.Logging.Level == "" {
		c.Logging.Level = "info"
	}
	if c.Proximity.ThresholdMeters == 0 {
		c.Proximity.ThresholdMeters = location.DefaultThresholdMeters
	}
	if c.Proximity.CleanupInterval == 0 {
		c.Proximity.CleanupInterval = time.Hour
	}
	if c.Proximity.NotificationMaxAge == 0 {
		c.Proximity.NotificationMaxAge = 24 * time.Hour
	}
	if c.Location.Source == "" {
		c.Location.Source = SourceSensor
	}
	if c.Location.Interval == 0 {
		c.Location.Interval = 5 * time.Second
	}
	if c.Location.GPSDeviceBaudRate == 0 {
		c.Location.GPSDeviceBaudRate = 9600
	}
	if c.Notifications.Transport == "" {
		c.Notifications.Transport = TransportMQTT
	}
	if c.Notifications.Topic == "" {
		c.Notifications.Topic = "proximity/notifications"
	}
	if c.Notifications.CallTimeout == 0 {
		c.Notifications.CallTimeout = 10 * time.Second
	}
	if c.Notifications.Workers == 0 {
		c.Notifications.Workers = 1
	}
	if c.Notifications.AMQPExchange == "" {
		c.Notifications.AMQPExchange = "proximity.notifications"
	}
	if c.Store.Driver == "" {
		c.Store.Driver = DriverFile
	}
	if c.Store.File == "" {
		c.Store.File = "data/markers.json"
	}
	if c.Stats.Interval == 0 {
		c.Stats.Interval = time.Minute
	}
	if c.API.Address == "" {
		c.API.Address = ":8080"
	}
}

// Validate reports every invalid setting at once.
func (c *Config) Validate() error {
	var errs []error

	if c.Proximity.ThresholdMeters < 0 {
		errs = append(errs, fmt.Errorf("proximity.threshold_meters must not be negative, got %v", c.Proximity.ThresholdMeters))
	}

	switch c.Location.Source {
	case SourceSensor:
		if c.Location.GPSDevicePort == "" {
			errs = append(errs, errors.New("location.gps_device_port is required for the sensor source"))
		}
	case SourceGoogle:
		if c.Location.MapsAPIKey == "" {
			errs = append(errs, fmt.Errorf("location.maps_api_key or %s is required for the google source", EnvMapsAPIKey))
		}
	case SourceMQTT:
		if c.Location.Topic == "" {
			errs = append(errs, errors.New("location.topic is required for the mqtt source"))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown location.source %q", c.Location.Source))
	}

	switch c.Notifications.Transport {
	case TransportMQTT:
	case TransportAMQP:
		if c.Notifications.AMQPURL == "" {
			errs = append(errs, fmt.Errorf("notifications.amqp_url or %s is required for the amqp transport", EnvAMQPURL))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown notifications.transport %q", c.Notifications.Transport))
	}

	switch c.Store.Driver {
	case DriverFile:
	case DriverPostgres:
		if c.Store.PostgresDSN == "" {
			errs = append(errs, fmt.Errorf("store.postgres_dsn or %s is required for the postgres driver", EnvPostgresDSN))
		}
	default:
		errs = append(errs, fmt.Errorf("unknown store.driver %q", c.Store.Driver))
	}

	if c.Images.Enabled && (c.Images.Endpoint == "" || c.Images.Bucket == "") {
		errs = append(errs, errors.New("images.endpoint and images.bucket are required when images are enabled"))
	}
	if c.Stats.Enabled && c.Stats.Topic == "" {
		errs = append(errs, errors.New("stats.topic is required when stats are enabled"))
	}

	return errors.Join(errs...)
}

// NeedsMQTT reports whether any configured component talks to the broker.
func (c *Config) NeedsMQTT() bool {
	return c.Location.Source == SourceMQTT ||
		c.Notifications.Transport == TransportMQTT ||
		c.Stats.Enabled ||
		c.Proximity.UpdateTopic != ""
}
