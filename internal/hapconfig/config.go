// Package hapconfig is the ambient configuration layer for the hapd
// accessory daemon: environment-driven, struct-tag defaulted, and
// validated before anything downstream reads it.
package hapconfig

import (
	"fmt"

	validator "github.com/go-playground/validator/v10"
	"github.com/kelseyhightower/envconfig"
	defaults "github.com/mcuadros/go-defaults"
	"github.com/sirupsen/logrus"
)

// Config is the accessory daemon's full runtime configuration, loaded
// from the environment (prefix HAPD_) with struct-tag defaults applied
// first and struct-tag validation applied last.
type Config struct {
	LogLevel string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=trace debug info warn error"`

	AccessoryCategoryID uint16 `envconfig:"ACCESSORY_CATEGORY" default:"1" validate:"min=1,max=30"`
	AccessoryName       string `envconfig:"ACCESSORY_NAME" default:"HAP Accessory" validate:"required"`

	SetupCode string `envconfig:"SETUP_CODE" validate:"omitempty,len=10"`
	SetupID   string `envconfig:"SETUP_ID" validate:"omitempty,len=4"`

	IPPort    int  `envconfig:"IP_PORT" default:"0" validate:"min=0,max=65535"`
	EnableIP  bool `envconfig:"ENABLE_IP" default:"true"`
	EnableBLE bool `envconfig:"ENABLE_BLE" default:"false"`

	StatePath string `envconfig:"STATE_PATH" default:"hapd.state" validate:"required"`
}

// Load reads Config from the environment, applies defaults for any field
// left unset, and validates the result.
func Load() (*Config, error) {
	cfg := &Config{}
	defaults.SetDefaults(cfg)

	if err := envconfig.Process("HAPD", cfg); err != nil {
		return nil, fmt.Errorf("hapconfig: %w", err)
	}

	validate := validator.New(validator.WithRequiredStructEnabled())
	if err := validate.Struct(cfg); err != nil {
		return nil, fmt.Errorf("hapconfig: invalid configuration: %w", err)
	}
	if !cfg.EnableIP && !cfg.EnableBLE {
		return nil, fmt.Errorf("hapconfig: at least one of ENABLE_IP, ENABLE_BLE must be true")
	}
	return cfg, nil
}

// NewLogger creates a logger configured per Config.LogLevel, mirroring
// pkg/config/config.go's NewLogger shape.
func (c *Config) NewLogger() *logrus.Logger {
	logger := logrus.New()
	level, err := logrus.ParseLevel(c.LogLevel)
	if err != nil {
		level = logrus.InfoLevel
	}
	logger.SetLevel(level)
	logger.SetFormatter(&logrus.TextFormatter{FullTimestamp: true})
	return logger
}
