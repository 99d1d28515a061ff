// Package config loads the service configuration and the threshold profile.
package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"
	"time"
	_ "time/tzdata"

	"github.com/spf13/viper"

	"hvac-insight/internal/alarms/notify"
	telemetry "hvac-insight/internal/telemetry/domain"
	"hvac-insight/internal/telemetry/infrastructure/csvfeed"
)

// EnvPrefix prefixes every environment override, e.g. HVAC_HTTP_ADDR.
const EnvPrefix = "HVAC"

// Config is the service configuration.
type Config struct {
	HTTP       HTTPConfig           `mapstructure:"http"`
	Logging    LoggingConfig        `mapstructure:"logging"`
	Location   string               `mapstructure:"location"`
	DataDir    string               `mapstructure:"data_dir"`
	Feeds      []csvfeed.FeedConfig `mapstructure:"feeds"`
	Thresholds string               `mapstructure:"thresholds"`
	Cycle      CycleConfig          `mapstructure:"cycle"`
	Archive    ArchiveConfig        `mapstructure:"archive"`
	Auth       AuthConfig           `mapstructure:"auth"`
	Alerts     AlertsConfig         `mapstructure:"alerts"`
	Reports    ReportsConfig        `mapstructure:"reports"`
}

// HTTPConfig configures the API listener.
type HTTPConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout"`
	WriteTimeout time.Duration `mapstructure:"write_timeout"`
}

// LoggingConfig selects the zap level and encoder.
type LoggingConfig struct {
	Level  string `mapstructure:"level"`
	Format string `mapstructure:"format"`
}

// CycleConfig controls when refresh cycles run.
type CycleConfig struct {
	Interval time.Duration `mapstructure:"interval"`
	Watch    bool          `mapstructure:"watch"`
	Debounce time.Duration `mapstructure:"debounce"`
}

// ArchiveConfig controls stale CSV archiving.
type ArchiveConfig struct {
	Enabled    bool          `mapstructure:"enabled"`
	OnRefresh  bool          `mapstructure:"on_refresh"`
	Root       string        `mapstructure:"root"`
	MaxAge     time.Duration `mapstructure:"max_age"`
	KeepLatest bool          `mapstructure:"keep_latest"`
}

// AuthConfig enables JWT auth when a secret is set.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret"`
}

// Enabled reports whether requests must carry a token.
func (a AuthConfig) Enabled() bool {
	return a.JWTSecret != ""
}

// AlertsConfig configures notification channels.
type AlertsConfig struct {
	Log          bool              `mapstructure:"log"`
	Currency     string            `mapstructure:"currency"`
	DashboardURL string            `mapstructure:"dashboard_url"`
	Cooldown     time.Duration     `mapstructure:"cooldown"`
	DedupeWindow time.Duration     `mapstructure:"dedupe_window"`
	Timeout      time.Duration     `mapstructure:"timeout"`
	Webhook      WebhookConfig     `mapstructure:"webhook"`
	Email        notify.SMTPConfig `mapstructure:"email"`
	Kafka        KafkaConfig       `mapstructure:"kafka"`
	MQTT         notify.MQTTConfig `mapstructure:"mqtt"`
}

// WebhookConfig targets a chat webhook.
type WebhookConfig struct {
	URL string `mapstructure:"url"`
	// Format is text, slack or json.
	Format string `mapstructure:"format"`
}

// KafkaConfig targets an alert topic.
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic"`
}

// ReportsConfig configures rendered reports.
type ReportsConfig struct {
	Currency string `mapstructure:"currency"`
	Dir      string `mapstructure:"dir"`
	// DailyAt is the local HH:MM at which the daily PDF is written; empty disables it.
	DailyAt string `mapstructure:"daily_at"`
}

// Load reads configuration from file and environment variables.
// A missing default config file is not an error.
func Load(configPath string) (Config, *viper.Viper, error) {
	v := viper.New()
	setDefaults(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
	} else {
		v.SetConfigName("hvac-insight")
		v.SetConfigType("yaml")
		v.AddConfigPath(".")
		v.AddConfigPath("./configs")
		v.AddConfigPath("/etc/hvac-insight")
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return Config{}, nil, fmt.Errorf("reading config: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, nil, fmt.Errorf("decoding config: %w", err)
	}
	if len(cfg.Feeds) == 0 {
		cfg.Feeds = DefaultFeeds(cfg.DataDir)
	}
	if cfg.Archive.Root == "" {
		cfg.Archive.Root = filepath.Join(cfg.DataDir, "_archive")
	}
	if err := cfg.Validate(); err != nil {
		return Config{}, nil, err
	}
	return cfg, v, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("http.addr", ":8080")
	v.SetDefault("http.read_timeout", "15s")
	v.SetDefault("http.write_timeout", "60s")
	v.SetDefault("logging.level", "info")
	v.SetDefault("logging.format", "json")
	v.SetDefault("location", "Local")
	v.SetDefault("data_dir", "./data/live")
	v.SetDefault("thresholds", "")
	v.SetDefault("cycle.interval", "15m")
	v.SetDefault("cycle.watch", false)
	v.SetDefault("cycle.debounce", "2s")
	v.SetDefault("archive.enabled", true)
	v.SetDefault("archive.on_refresh", true)
	v.SetDefault("archive.root", "")
	v.SetDefault("archive.max_age", "24h")
	v.SetDefault("archive.keep_latest", true)
	v.SetDefault("auth.jwt_secret", "")
	v.SetDefault("alerts.log", true)
	v.SetDefault("alerts.currency", "₹")
	v.SetDefault("alerts.dashboard_url", "")
	v.SetDefault("alerts.cooldown", "0s")
	v.SetDefault("alerts.dedupe_window", "10m")
	v.SetDefault("alerts.timeout", "10s")
	v.SetDefault("alerts.webhook.url", "")
	v.SetDefault("alerts.webhook.format", "text")
	v.SetDefault("alerts.email.host", "")
	v.SetDefault("alerts.email.port", 587)
	v.SetDefault("alerts.email.username", "")
	v.SetDefault("alerts.email.password", "")
	v.SetDefault("alerts.email.from", "")
	v.SetDefault("alerts.email.to", []string{})
	v.SetDefault("alerts.kafka.brokers", []string{})
	v.SetDefault("alerts.kafka.topic", "hvac.alerts")
	v.SetDefault("alerts.mqtt.broker_url", "")
	v.SetDefault("alerts.mqtt.client_id", "hvac-insight")
	v.SetDefault("alerts.mqtt.username", "")
	v.SetDefault("alerts.mqtt.password", "")
	v.SetDefault("alerts.mqtt.topic_prefix", "hvac")
	v.SetDefault("alerts.mqtt.qos", 1)
	v.SetDefault("alerts.mqtt.timeout", "5s")
	v.SetDefault("reports.currency", "Rs.")
	v.SetDefault("reports.dir", "./reports")
	v.SetDefault("reports.daily_at", "")
}

// DefaultFeeds returns the four-folder layout under dataDir:
// power, status, temp (room temperature and setpoint) and valve,
// all attributed to a single unit HVAC-01.
func DefaultFeeds(dataDir string) []csvfeed.FeedConfig {
	const asset = "HVAC-01"
	return []csvfeed.FeedConfig{
		{Name: "power", Dir: filepath.Join(dataDir, "power"), TimestampColumn: "T_Stamp", Kinds: []telemetry.StreamKind{telemetry.KindPower}, DefaultAsset: asset},
		{Name: "status", Dir: filepath.Join(dataDir, "status"), TimestampColumn: "Log_Time", Kinds: []telemetry.StreamKind{telemetry.KindStatus}, DefaultAsset: asset},
		{Name: "temp", Dir: filepath.Join(dataDir, "temp"), TimestampColumn: "Timestamp", Kinds: []telemetry.StreamKind{telemetry.KindRoomTemp, telemetry.KindSetpoint}, DefaultAsset: asset},
		{Name: "valve", Dir: filepath.Join(dataDir, "valve"), TimestampColumn: "Log_Time", Kinds: []telemetry.StreamKind{telemetry.KindValvePosition}, DefaultAsset: asset},
	}
}

// Validate checks the loaded configuration.
func (c Config) Validate() error {
	if c.HTTP.Addr == "" {
		return errors.New("config: http.addr required")
	}
	if c.Cycle.Interval < 0 {
		return errors.New("config: cycle.interval must not be negative")
	}
	if c.Archive.Enabled && c.Archive.MaxAge <= 0 {
		return errors.New("config: archive.max_age must be positive")
	}
	if _, err := c.LoadLocation(); err != nil {
		return err
	}
	names := make(map[string]struct{}, len(c.Feeds))
	for _, feed := range c.Feeds {
		if err := feed.Validate(); err != nil {
			return fmt.Errorf("config: %w", err)
		}
		if _, dup := names[feed.Name]; dup {
			return fmt.Errorf("config: duplicate feed %s", feed.Name)
		}
		names[feed.Name] = struct{}{}
	}
	return nil
}

// LoadLocation resolves the configured time zone.
func (c Config) LoadLocation() (*time.Location, error) {
	if c.Location == "" || strings.EqualFold(c.Location, "local") {
		return time.Local, nil
	}
	loc, err := time.LoadLocation(c.Location)
	if err != nil {
		return nil, fmt.Errorf("config: location %q: %w", c.Location, err)
	}
	return loc, nil
}
