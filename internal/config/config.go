package config

import (
	"encoding/base64"
	"fmt"
	"log"
	"net/url"
	"strconv"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/viper"
)

// Config holds the application's configuration.
type Config struct {
	Ixon    IxonConfig
	Storage StorageConfig
	Influx  InfluxConfig
	Server  ServerConfig
	Trigger TriggerConfig
	Redis   RedisConfig
}

// IxonConfig describes how to reach the IXON and LSI APIs and which device to sync.
type IxonConfig struct {
	APIURL      string
	LSIURL      string
	APIKey      string
	CompanyID   string
	AgentID     string
	DeviceID    string
	UserID      string
	Password    string
	AuthString  string
	Timezone    string
	HTTPTimeout time.Duration
}

type StorageConfig struct {
	Bucket string
	Object string
}

type InfluxConfig struct {
	HostURL        string
	Port           int
	Username       string
	Password       string
	Token          string
	Org            string
	Database       string
	Measurement    string
	BatchSize      int
	CreateDatabase bool
}

type ServerConfig struct {
	Port           string
	AllowedOrigins []string
	LogLevel       string
}

// TriggerConfig protects the sync endpoints. Auth is off when Secret is empty.
type TriggerConfig struct {
	Secret   string
	Issuer   string
	Audience string
}

type RedisConfig struct {
	Addr      string
	Password  string
	DB        int
	ReportTTL time.Duration
}

var defaults = map[string]any{
	"IXON_API_URL":           "https://api.ixon.net:443/",
	"LSI_API_URL":            "https://api.lsi.ams.dkn.ayayot.com:443/",
	"EXPORT_TIMEZONE":        "Europe/London",
	"HTTP_TIMEOUT":           "0s",
	"GCS_BUCKET":             "ixon-data",
	"GCS_OBJECT":             "historical-daily-raw.csv",
	"INFLUX_PORT":            8086,
	"INFLUX_DATABASE":        "test_total_4",
	"INFLUX_BATCH_SIZE":      5000,
	"INFLUX_CREATE_DATABASE": true,
	"PORT":                   "8000",
	"CORS_ALLOWED_ORIGINS":   "*",
	"LOG_LEVEL":              "info",
	"REDIS_DB":               0,
	"REDIS_REPORT_TTL":       "168h",
}

// LoadConfig loads the configuration from an optional .env file, an optional
// YAML config file and the process environment, in increasing precedence.
func LoadConfig(envFile, configFile string) (Config, error) {
	if envFile == "" {
		envFile = ".env"
	}
	if err := godotenv.Load(envFile); err != nil {
		log.Println("No .env file found, relying on system environment variables")
	}

	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	if configFile != "" {
		v.SetConfigFile(configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("error reading config file %s: %w", configFile, err)
		}
	}
	v.AutomaticEnv()

	return fromViper(v)
}

func fromViper(v *viper.Viper) (Config, error) {
	timeout, err := time.ParseDuration(v.GetString("HTTP_TIMEOUT"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid HTTP_TIMEOUT: %w", err)
	}
	reportTTL, err := time.ParseDuration(v.GetString("REDIS_REPORT_TTL"))
	if err != nil {
		return Config{}, fmt.Errorf("invalid REDIS_REPORT_TTL: %w", err)
	}

	cfg := Config{
		Ixon: IxonConfig{
			APIURL:      v.GetString("IXON_API_URL"),
			LSIURL:      v.GetString("LSI_API_URL"),
			APIKey:      v.GetString("API_KEY"),
			CompanyID:   v.GetString("COMPANY_ID"),
			AgentID:     v.GetString("AGENT_ID"),
			DeviceID:    v.GetString("DEVICE_ID"),
			UserID:      v.GetString("USER_ID"),
			Password:    v.GetString("PASSWORD"),
			AuthString:  v.GetString("AUTH_STRING"),
			Timezone:    v.GetString("EXPORT_TIMEZONE"),
			HTTPTimeout: timeout,
		},
		Storage: StorageConfig{
			Bucket: v.GetString("GCS_BUCKET"),
			Object: v.GetString("GCS_OBJECT"),
		},
		Influx: InfluxConfig{
			HostURL:        v.GetString("INFLUX_HOST_URL"),
			Port:           v.GetInt("INFLUX_PORT"),
			Username:       v.GetString("INFLUX_USERNAME"),
			Password:       v.GetString("INFLUX_PASSWORD"),
			Token:          v.GetString("INFLUX_TOKEN"),
			Org:            v.GetString("INFLUX_ORG"),
			Database:       v.GetString("INFLUX_DATABASE"),
			Measurement:    v.GetString("MEASUREMENT"),
			BatchSize:      v.GetInt("INFLUX_BATCH_SIZE"),
			CreateDatabase: v.GetBool("INFLUX_CREATE_DATABASE"),
		},
		Server: ServerConfig{
			Port:           v.GetString("PORT"),
			AllowedOrigins: splitList(v.GetString("CORS_ALLOWED_ORIGINS")),
			LogLevel:       v.GetString("LOG_LEVEL"),
		},
		Trigger: TriggerConfig{
			Secret:   v.GetString("TRIGGER_JWT_SECRET"),
			Issuer:   v.GetString("TRIGGER_JWT_ISSUER"),
			Audience: v.GetString("TRIGGER_JWT_AUDIENCE"),
		},
		Redis: RedisConfig{
			Addr:      v.GetString("REDIS_ADDR"),
			Password:  v.GetString("REDIS_PASSWORD"),
			DB:        v.GetInt("REDIS_DB"),
			ReportTTL: reportTTL,
		},
	}
	if cfg.Influx.BatchSize <= 0 {
		cfg.Influx.BatchSize = 5000
	}
	if cfg.Trigger.Secret != "" && (cfg.Trigger.Issuer == "" || cfg.Trigger.Audience == "") {
		return Config{}, fmt.Errorf("TRIGGER_JWT_SECRET is set but TRIGGER_JWT_ISSUER or TRIGGER_JWT_AUDIENCE is missing")
	}
	return cfg, nil
}

func splitList(raw string) []string {
	var out []string
	for _, part := range strings.Split(raw, ",") {
		if p := strings.TrimSpace(part); p != "" {
			out = append(out, p)
		}
	}
	return out
}

// BasicAuth returns the encoded credentials for the access token request.
// A pre-encoded AUTH_STRING wins over USER_ID/PASSWORD.
func (c IxonConfig) BasicAuth() string {
	if c.AuthString != "" {
		return c.AuthString
	}
	return base64.StdEncoding.EncodeToString([]byte(c.UserID + "::" + c.Password))
}

// ValidateIxon reports the IXON settings every pipeline needs.
func (c Config) ValidateIxon() error {
	var missing []string
	if c.Ixon.APIKey == "" {
		missing = append(missing, "API_KEY")
	}
	if c.Ixon.CompanyID == "" {
		missing = append(missing, "COMPANY_ID")
	}
	if c.Ixon.AgentID == "" {
		missing = append(missing, "AGENT_ID")
	}
	if c.Ixon.DeviceID == "" {
		missing = append(missing, "DEVICE_ID")
	}
	if c.Ixon.AuthString == "" && (c.Ixon.UserID == "" || c.Ixon.Password == "") {
		missing = append(missing, "AUTH_STRING or USER_ID/PASSWORD")
	}
	return missingError(missing)
}

func (c Config) ValidateStorage() error {
	var missing []string
	if c.Storage.Bucket == "" {
		missing = append(missing, "GCS_BUCKET")
	}
	if c.Storage.Object == "" {
		missing = append(missing, "GCS_OBJECT")
	}
	return missingError(missing)
}

func (c Config) ValidateInflux() error {
	var missing []string
	if c.Influx.HostURL == "" {
		missing = append(missing, "INFLUX_HOST_URL")
	}
	if c.Influx.Measurement == "" {
		missing = append(missing, "MEASUREMENT")
	}
	if c.Influx.Database == "" {
		missing = append(missing, "INFLUX_DATABASE")
	}
	return missingError(missing)
}

func missingError(missing []string) error {
	if len(missing) == 0 {
		return nil
	}
	return fmt.Errorf("configuration is incomplete, please set %s", strings.Join(missing, ", "))
}

// URL returns the InfluxDB endpoint, adding the http scheme and the port
// when INFLUX_HOST_URL is a bare host.
func (c InfluxConfig) URL() string {
	raw := c.HostURL
	if !strings.Contains(raw, "://") {
		raw = "http://" + raw
	}
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	if u.Port() == "" && c.Port > 0 {
		u.Host = u.Hostname() + ":" + strconv.Itoa(c.Port)
	}
	return strings.TrimSuffix(u.String(), "/")
}

// AuthToken returns the client token. InfluxDB 1.8 accepts "user:password".
func (c InfluxConfig) AuthToken() string {
	if c.Token != "" {
		return c.Token
	}
	if c.Username == "" && c.Password == "" {
		return ""
	}
	return c.Username + ":" + c.Password
}
