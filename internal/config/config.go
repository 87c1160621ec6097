package config

import (
	"bytes"
	_ "embed"
	"fmt"
	"net"
	"regexp"
	"strings"
	"time"

	validator "github.com/go-playground/validator/v10"
	"github.com/shugur-labs/relaycore/internal/logger"
	"github.com/spf13/viper"
	"go.uber.org/zap"
)

//go:embed defaults.yaml
var defaultYAML []byte

// Version is set at runtime from build information.
var Version = "dev"

var validate = validator.New()

// Config holds every sub-config for a relaycore client process.
type Config struct {
	General    GeneralConfig    `mapstructure:"general"    validate:"required"`
	Logging    LoggingConfig    `mapstructure:"logging"    validate:"required"`
	Metrics    MetricsConfig    `mapstructure:"metrics"    validate:"required"`
	Supervisor SupervisorConfig `mapstructure:"supervisor" validate:"required"`
	Relays     []RelayConfig    `mapstructure:"relays"     validate:"required,dive"`
}

// GeneralConfig holds client-identity settings.
type GeneralConfig struct {
	ClientName string `mapstructure:"CLIENT_NAME" json:"client_name" validate:"required"`
}

// SupervisorConfig exposes the tick/ping intervals as tunables, per the
// Open Question on retry backoff: the module implements a fixed interval
// as specified, but the interval itself is not hardcoded.
type SupervisorConfig struct {
	TickInterval time.Duration `mapstructure:"TICK_INTERVAL" json:"tick_interval" validate:"required,reasonable_duration"`
	PingInterval time.Duration `mapstructure:"PING_INTERVAL" json:"ping_interval" validate:"required,reasonable_duration"`
}

// RelayConfig describes one relay a pool should supervise.
type RelayConfig struct {
	URL   string `mapstructure:"URL"   json:"url"   validate:"required,relayurl"`
	Proxy string `mapstructure:"PROXY" json:"proxy" validate:"omitempty,socksaddr"`
}

func init() {
	registerCustomValidators()
	validate.RegisterStructValidation(func(sl validator.StructLevel) {
		cfg := sl.Current().Interface().(Config)

		if err := validate.Struct(cfg.General); err != nil {
			sl.ReportError(cfg.General, "General", "General", "required", "")
		}
		if err := validate.Struct(cfg.Logging); err != nil {
			sl.ReportError(cfg.Logging, "Logging", "Logging", "required", "")
		}
		if err := validate.Struct(cfg.Metrics); err != nil {
			sl.ReportError(cfg.Metrics, "Metrics", "Metrics", "required", "")
		}
		if err := validate.Struct(cfg.Supervisor); err != nil {
			sl.ReportError(cfg.Supervisor, "Supervisor", "Supervisor", "required", "")
		}
		if len(cfg.Relays) == 0 {
			sl.ReportError(cfg.Relays, "Relays", "Relays", "required", "")
		}
	}, Config{})
}

func registerCustomValidators() {
	if err := validate.RegisterValidation("relayurl", func(fl validator.FieldLevel) bool {
		u := fl.Field().String()
		return strings.HasPrefix(u, "ws://") || strings.HasPrefix(u, "wss://")
	}); err != nil {
		logger.Error("Failed to register relayurl validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("socksaddr", func(fl validator.FieldLevel) bool {
		addr := fl.Field().String()
		if addr == "" {
			return true
		}
		host, port, err := net.SplitHostPort(addr)
		if err != nil {
			return false
		}
		if _, err := net.LookupPort("tcp", port); err != nil {
			return false
		}
		if host == "" {
			return false
		}
		if ip := net.ParseIP(host); ip != nil {
			return true
		}
		matched, _ := regexp.MatchString(`^[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?(\.[a-zA-Z0-9]([a-zA-Z0-9\-]{0,61}[a-zA-Z0-9])?)*$`, host)
		return matched
	}); err != nil {
		logger.Error("Failed to register socksaddr validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("reasonable_duration", func(fl validator.FieldLevel) bool {
		d := fl.Field().Interface().(time.Duration)
		return d >= time.Second && d <= 24*time.Hour
	}); err != nil {
		logger.Error("Failed to register reasonable_duration validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("log_level", func(fl validator.FieldLevel) bool {
		switch fl.Field().String() {
		case "debug", "info", "warn", "error", "fatal":
			return true
		}
		return false
	}); err != nil {
		logger.Error("Failed to register log_level validator", zap.Error(err))
	}

	if err := validate.RegisterValidation("log_format", func(fl validator.FieldLevel) bool {
		f := fl.Field().String()
		return f == "console" || f == "json"
	}); err != nil {
		logger.Error("Failed to register log_format validator", zap.Error(err))
	}
}

// SetVersion sets the version from build information.
func SetVersion(v string) {
	Version = v
}

// Load merges defaults -> file (optional) -> env vars, validates, and
// returns cfg. Mirrors the teacher's layering order exactly.
func Load(path string, log *zap.Logger) (*Config, error) {
	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvPrefix("RELAYCORE")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadConfig(bytes.NewReader(defaultYAML)); err != nil {
		return nil, fmt.Errorf("read defaults: %w", err)
	}

	if path != "" {
		v.SetConfigFile(path)
		if err := v.MergeInConfig(); err != nil {
			return nil, fmt.Errorf("read config file: %w", err)
		}
	} else {
		v.SetConfigName("config")
		v.AddConfigPath(".")
		if err := v.MergeInConfig(); err != nil {
			if log != nil {
				log.Info("No config.yaml found, using defaults")
			}
		}
	}

	var cfg Config
	if err := v.UnmarshalExact(&cfg); err != nil {
		return nil, fmt.Errorf("unmarshal config: %w", err)
	}
	if err := validate.Struct(cfg); err != nil {
		return nil, formatValidationError(err)
	}

	if err := initializeLogger(cfg.Logging); err != nil {
		return nil, fmt.Errorf("initialize logger: %w", err)
	}
	return &cfg, nil
}

func initializeLogger(cfg LoggingConfig) error {
	return logger.Init(
		logger.WithLevel(cfg.Level),
		logger.WithFormat(cfg.Format),
		logger.WithFile(cfg.FilePath),
		logger.WithVersion(Version),
		logger.WithComponent("relaycore"),
		logger.WithRotation(cfg.MaxSize, cfg.MaxBackups, cfg.MaxAge),
	)
}

func formatValidationError(err error) error {
	validationErrors, ok := err.(validator.ValidationErrors)
	if !ok {
		return fmt.Errorf("configuration validation failed: %w", err)
	}
	messages := make([]string, 0, len(validationErrors))
	for _, fe := range validationErrors {
		messages = append(messages, fieldErrorMessage(fe))
	}
	return fmt.Errorf("configuration validation failed:\n  - %s", strings.Join(messages, "\n  - "))
}

func fieldErrorMessage(fe validator.FieldError) string {
	field, value, tag := fe.Field(), fe.Value(), fe.Tag()
	switch tag {
	case "required":
		return fmt.Sprintf("%s is required but not provided", field)
	case "relayurl":
		return fmt.Sprintf("%s must start with ws:// or wss:// (got: %v)", field, value)
	case "socksaddr":
		return fmt.Sprintf("%s must be a valid host:port SOCKS5 address (got: %v)", field, value)
	case "reasonable_duration":
		return fmt.Sprintf("%s must be between 1 second and 24 hours (got: %v)", field, value)
	case "log_level":
		return fmt.Sprintf("%s must be one of: debug, info, warn, error, fatal (got: %v)", field, value)
	case "log_format":
		return fmt.Sprintf("%s must be either 'console' or 'json' (got: %v)", field, value)
	default:
		return fmt.Sprintf("%s validation failed: %s (got: %v)", field, tag, value)
	}
}
