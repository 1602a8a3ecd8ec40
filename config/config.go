// Package config loads application settings from a config file, a .env file
// and ONION_* environment variables, in increasing order of precedence.
package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/joho/godotenv"
	"github.com/spf13/viper"

	"github.com/felixgeelhaar/onion/logger"
)

// EnvPrefix prefixes every environment variable the loader consults.
// HTTP.Addr is read from ONION_HTTP_ADDR.
const EnvPrefix = "ONION"

// Config is the full application configuration.
type Config struct {
	Name      string          `mapstructure:"name" validate:"required"`
	HTTP      HTTPConfig      `mapstructure:"http"`
	WebSocket WebSocketConfig `mapstructure:"websocket"`
	Log       logger.Config   `mapstructure:"log"`
	Limits    LimitsConfig    `mapstructure:"limits"`
	CORS      CORSConfig      `mapstructure:"cors"`
	Telemetry TelemetryConfig `mapstructure:"telemetry"`
}

// HTTPConfig configures the HTTP transport.
type HTTPConfig struct {
	Addr            string        `mapstructure:"addr" validate:"required"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout" validate:"gt=0"`
	DrainDelay      time.Duration `mapstructure:"drain_delay" validate:"gte=0"`
}

// WebSocketConfig configures the WebSocket transport.
type WebSocketConfig struct {
	Addr         string        `mapstructure:"addr"`
	ReadTimeout  time.Duration `mapstructure:"read_timeout" validate:"gte=0"`
	WriteTimeout time.Duration `mapstructure:"write_timeout" validate:"gte=0"`
}

// LimitsConfig configures the guard stages. Zero disables a guard.
type LimitsConfig struct {
	RequestTimeout time.Duration `mapstructure:"request_timeout" validate:"gte=0"`
	Rate           int           `mapstructure:"rate" validate:"gte=0"`
	Burst          int           `mapstructure:"burst" validate:"gte=0,required_with=Rate"`
	MaxBodyBytes   int64         `mapstructure:"max_body_bytes" validate:"gte=0"`
}

// CORSConfig configures the CORS stage.
type CORSConfig struct {
	AllowOrigins     []string `mapstructure:"allow_origins" validate:"dive,required"`
	AllowCredentials bool     `mapstructure:"allow_credentials"`
}

// TelemetryConfig toggles the OpenTelemetry stage.
type TelemetryConfig struct {
	Enabled     bool   `mapstructure:"enabled"`
	ServiceName string `mapstructure:"service_name"`
}

// Option configures Load.
type Option func(*loader)

type loader struct {
	configFile string
	envFile    string
}

// WithConfigFile reads a YAML, JSON or TOML file before the environment.
func WithConfigFile(path string) Option {
	return func(l *loader) { l.configFile = path }
}

// WithEnvFile loads a .env file into the process environment. Variables
// already set are not overridden.
func WithEnvFile(path string) Option {
	return func(l *loader) { l.envFile = path }
}

// Default returns the configuration used when nothing overrides it.
func Default() Config {
	return Config{
		Name: "onion",
		HTTP: HTTPConfig{
			Addr:            ":8080",
			ReadTimeout:     30 * time.Second,
			WriteTimeout:    30 * time.Second,
			ShutdownTimeout: 30 * time.Second,
			DrainDelay:      5 * time.Second,
		},
		WebSocket: WebSocketConfig{
			ReadTimeout:  60 * time.Second,
			WriteTimeout: 10 * time.Second,
		},
		Log: logger.Config{
			Level:     "info",
			Format:    "json",
			Output:    "stderr",
			Timestamp: true,
		},
		Limits: LimitsConfig{
			RequestTimeout: 30 * time.Second,
			MaxBodyBytes:   1 << 20,
		},
		Telemetry: TelemetryConfig{
			ServiceName: "onion",
		},
	}
}

// Load builds a Config from defaults, the optional config file, the
// optional .env file and the environment, then validates it.
func Load(opts ...Option) (Config, error) {
	var l loader
	for _, opt := range opts {
		opt(&l)
	}

	if l.envFile != "" {
		if err := godotenv.Load(l.envFile); err != nil {
			return Config{}, fmt.Errorf("config: load env file %s: %w", l.envFile, err)
		}
	}

	v := viper.New()
	setDefaults(v, Default())

	if l.configFile != "" {
		v.SetConfigFile(l.configFile)
		if err := v.ReadInConfig(); err != nil {
			return Config{}, fmt.Errorf("config: read %s: %w", l.configFile, err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return Config{}, fmt.Errorf("config: decode: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return Config{}, err
	}
	return cfg, nil
}

// Validate checks struct constraints and the logging section.
func (c Config) Validate() error {
	if err := validate.Struct(c); err != nil {
		var verrs validator.ValidationErrors
		if errors.As(err, &verrs) {
			msgs := make([]string, 0, len(verrs))
			for _, fe := range verrs {
				msgs = append(msgs, fmt.Sprintf("%s failed %q", fe.Namespace(), fe.Tag()))
			}
			return fmt.Errorf("config: invalid: %s", strings.Join(msgs, "; "))
		}
		return fmt.Errorf("config: invalid: %w", err)
	}
	if err := c.Log.Validate(); err != nil {
		return fmt.Errorf("config: %w", err)
	}
	return nil
}

var validate = validator.New(validator.WithRequiredStructEnabled())

// setDefaults registers every key so AutomaticEnv can resolve it during
// Unmarshal.
func setDefaults(v *viper.Viper, d Config) {
	v.SetDefault("name", d.Name)

	v.SetDefault("http.addr", d.HTTP.Addr)
	v.SetDefault("http.read_timeout", d.HTTP.ReadTimeout)
	v.SetDefault("http.write_timeout", d.HTTP.WriteTimeout)
	v.SetDefault("http.shutdown_timeout", d.HTTP.ShutdownTimeout)
	v.SetDefault("http.drain_delay", d.HTTP.DrainDelay)

	v.SetDefault("websocket.addr", d.WebSocket.Addr)
	v.SetDefault("websocket.read_timeout", d.WebSocket.ReadTimeout)
	v.SetDefault("websocket.write_timeout", d.WebSocket.WriteTimeout)

	v.SetDefault("log.level", d.Log.Level)
	v.SetDefault("log.format", d.Log.Format)
	v.SetDefault("log.output", d.Log.Output)
	v.SetDefault("log.no_color", d.Log.NoColor)
	v.SetDefault("log.timestamp", d.Log.Timestamp)
	v.SetDefault("log.caller", d.Log.Caller)

	v.SetDefault("limits.request_timeout", d.Limits.RequestTimeout)
	v.SetDefault("limits.rate", d.Limits.Rate)
	v.SetDefault("limits.burst", d.Limits.Burst)
	v.SetDefault("limits.max_body_bytes", d.Limits.MaxBodyBytes)

	v.SetDefault("cors.allow_origins", d.CORS.AllowOrigins)
	v.SetDefault("cors.allow_credentials", d.CORS.AllowCredentials)

	v.SetDefault("telemetry.enabled", d.Telemetry.Enabled)
	v.SetDefault("telemetry.service_name", d.Telemetry.ServiceName)
}
