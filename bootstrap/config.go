package bootstrap

import (
	"github.com/kbukum/mmrunner/config"
)

// Config is the interface constraint for application configuration types.
// Any struct that embeds config.ServiceConfig (value embedding) automatically
// satisfies this interface via promoted methods.
//
// Example:
//
//	type Config struct {
//	    config.ServiceConfig `yaml:",inline" mapstructure:",squash"`
//	    Runner RunnerConfig `yaml:"runner" mapstructure:"runner"`
//	}
//
//	app, err := bootstrap.NewApp(&cfg)
//
// Structs that override ApplyDefaults or Validate call the embedded
// ServiceConfig methods themselves.
type Config interface {
	GetServiceConfig() *config.ServiceConfig
	ApplyDefaults()
	Validate() error
}
