package config

import (
	"errors"
	"fmt"
	"path/filepath"
	"strings"

	"github.com/spf13/viper"
)

// Config holds every runtime setting of the dashboard server.
type Config struct {
	Env      string `mapstructure:"GO_ENV"`
	LogLevel string `mapstructure:"LOG_LEVEL"`

	Port           string `mapstructure:"PORT"`
	GRPCHealthPort string `mapstructure:"GRPC_HEALTH_PORT"`

	DataDir       string `mapstructure:"DATA_DIR"`
	MessagesFile  string `mapstructure:"MESSAGES_FILE"`
	TransfersFile string `mapstructure:"TRANSFERS_FILE"`
	UploadDir     string `mapstructure:"UPLOAD_DIR"`
	PublicDir     string `mapstructure:"PUBLIC_DIR"`

	MaxUploadBytes int64  `mapstructure:"MAX_UPLOAD_BYTES"`
	CORSOrigins    string `mapstructure:"CORS_ORIGINS"`

	IntentRate        float64 `mapstructure:"INTENT_RATE"`
	IntentBurst       int     `mapstructure:"INTENT_BURST"`
	SessionSendBuffer int     `mapstructure:"SESSION_SEND_BUFFER"`

	HTTPRate  float64 `mapstructure:"HTTP_RATE"`
	HTTPBurst int     `mapstructure:"HTTP_BURST"`

	AMQPURL      string `mapstructure:"AMQP_URL"`
	AMQPExchange string `mapstructure:"AMQP_EXCHANGE"`
	OTLPEndpoint string `mapstructure:"OTLP_ENDPOINT"`

	S3Bucket          string `mapstructure:"S3_BUCKET"`
	S3Endpoint        string `mapstructure:"S3_ENDPOINT"`
	S3Region          string `mapstructure:"S3_REGION"`
	S3AccessKeyID     string `mapstructure:"S3_ACCESS_KEY_ID"`
	S3SecretAccessKey string `mapstructure:"S3_SECRET_ACCESS_KEY"`
	S3PublicURL       string `mapstructure:"S3_PUBLIC_URL"`
}

var defaults = map[string]any{
	"GO_ENV":               "development",
	"LOG_LEVEL":            "info",
	"PORT":                 "3000",
	"GRPC_HEALTH_PORT":     "3001",
	"DATA_DIR":             ".",
	"MESSAGES_FILE":        "messages.json",
	"TRANSFERS_FILE":       "transfers.json",
	"UPLOAD_DIR":           "uploads",
	"PUBLIC_DIR":           "public",
	"MAX_UPLOAD_BYTES":     int64(25 << 20),
	"CORS_ORIGINS":         "*",
	"INTENT_RATE":          20.0,
	"INTENT_BURST":         40,
	"SESSION_SEND_BUFFER":  256,
	"HTTP_RATE":            10.0,
	"HTTP_BURST":           20,
	"AMQP_URL":             "",
	"AMQP_EXCHANGE":        "dashboard.events",
	"OTLP_ENDPOINT":        "",
	"S3_BUCKET":            "",
	"S3_ENDPOINT":          "",
	"S3_REGION":            "auto",
	"S3_ACCESS_KEY_ID":     "",
	"S3_SECRET_ACCESS_KEY": "",
	"S3_PUBLIC_URL":        "",
}

// New returns a viper instance with defaults registered and environment
// overrides enabled. Callers may bind flags before calling Load.
func New() *viper.Viper {
	v := viper.New()
	for key, value := range defaults {
		v.SetDefault(key, value)
	}
	v.AutomaticEnv()
	return v
}

// Load reads the optional config file and decodes the settings.
func Load(v *viper.Viper, file string) (*Config, error) {
	if file != "" {
		v.SetConfigFile(file)
		if err := v.ReadInConfig(); err != nil {
			var notFound viper.ConfigFileNotFoundError
			if !errors.As(err, &notFound) {
				return nil, fmt.Errorf("read config %s: %w", file, err)
			}
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("decode config: %w", err)
	}
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

func (c *Config) validate() error {
	if c.Port == "" {
		return errors.New("PORT must not be empty")
	}
	if c.MaxUploadBytes <= 0 {
		return errors.New("MAX_UPLOAD_BYTES must be positive")
	}
	if c.IntentRate <= 0 || c.IntentBurst <= 0 {
		return errors.New("INTENT_RATE and INTENT_BURST must be positive")
	}
	if c.HTTPRate <= 0 || c.HTTPBurst <= 0 {
		return errors.New("HTTP_RATE and HTTP_BURST must be positive")
	}
	if c.SessionSendBuffer <= 0 {
		return errors.New("SESSION_SEND_BUFFER must be positive")
	}
	return nil
}

// MessagesPath is the message log file location.
func (c *Config) MessagesPath() string {
	return c.resolve(c.MessagesFile)
}

// TransfersPath is the transaction log file location.
func (c *Config) TransfersPath() string {
	return c.resolve(c.TransfersFile)
}

// UploadPath is the directory for uploaded files.
func (c *Config) UploadPath() string {
	return c.resolve(c.UploadDir)
}

// AllowedOrigins splits CORS_ORIGINS on commas.
func (c *Config) AllowedOrigins() []string {
	var out []string
	for _, origin := range strings.Split(c.CORSOrigins, ",") {
		if origin = strings.TrimSpace(origin); origin != "" {
			out = append(out, origin)
		}
	}
	return out
}

func (c *Config) resolve(path string) string {
	if filepath.IsAbs(path) {
		return path
	}
	return filepath.Join(c.DataDir, path)
}
