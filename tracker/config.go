package tracker

import "time"

// Config tunes the tracker service.
type Config struct {
	// MetricsInterval is the period between metric collection sweeps.
	// Default: 1h.
	MetricsInterval time.Duration `yaml:"metrics_interval"`
	// LivenessInterval is the period between existence sweeps. Default: 24h.
	LivenessInterval time.Duration `yaml:"liveness_interval"`
	// Workers bounds concurrent collection tasks. Default: 5.
	Workers int `yaml:"workers"`
	// MaxAttempts is the per-task retry budget. Default: 3.
	MaxAttempts int `yaml:"max_attempts"`
	// BackoffBase is the first retry delay, doubled per attempt. Default: 30s.
	BackoffBase time.Duration `yaml:"backoff_base"`
	// BackoffMax caps the retry delay. Default: 10m.
	BackoffMax time.Duration `yaml:"backoff_max"`
	// CallTimeout bounds one collection task's upstream work. Default: 1m.
	CallTimeout time.Duration `yaml:"call_timeout"`
	// Visibility is how long a claimed task stays invisible. Default: 2m.
	Visibility time.Duration `yaml:"visibility"`
}

func (c *Config) defaults() {
	if c.MetricsInterval <= 0 {
		c.MetricsInterval = time.Hour
	}
	if c.LivenessInterval <= 0 {
		c.LivenessInterval = 24 * time.Hour
	}
	if c.Workers <= 0 {
		c.Workers = 5
	}
	if c.MaxAttempts <= 0 {
		c.MaxAttempts = 3
	}
	if c.BackoffBase <= 0 {
		c.BackoffBase = 30 * time.Second
	}
	if c.BackoffMax <= 0 {
		c.BackoffMax = 10 * time.Minute
	}
	if c.CallTimeout <= 0 {
		c.CallTimeout = time.Minute
	}
	if c.Visibility <= 0 {
		c.Visibility = 2 * time.Minute
	}
}
