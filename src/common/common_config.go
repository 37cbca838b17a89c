package common

import (
	"time"

	"github.com/pkg/errors"
)

type CommonConfig struct {
	OracleURL       string `yaml:"oracle_url"`
	PromPort        string `yaml:"prom_port"`
	HealthCheckPort string `yaml:"health_check_port"`
	PostgresConfig  string `yaml:"postgres"`
	RedisConfig     string `yaml:"redis"` // empty keeps locks, windows and staging in-process
	LogLevel        string `yaml:"log_level"`
}

// Duration lets yaml carry values like "30s" or "15m".
type Duration time.Duration

func (d *Duration) UnmarshalYAML(unmarshal func(interface{}) error) error {
	var raw string
	if err := unmarshal(&raw); err != nil {
		return err
	}
	if raw == "" {
		*d = 0
		return nil
	}
	parsed, err := time.ParseDuration(raw)
	if err != nil {
		return errors.Wrapf(err, "invalid duration `%s`", raw)
	}
	*d = Duration(parsed)
	return nil
}

func (d Duration) Std() time.Duration {
	return time.Duration(d)
}

// OrDefault returns def when the value was left unset.
func (d Duration) OrDefault(def time.Duration) time.Duration {
	if d <= 0 {
		return def
	}
	return time.Duration(d)
}
