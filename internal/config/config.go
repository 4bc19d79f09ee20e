// Package config provides YAML-based configuration loading for fieldsync.
package config

import (
	"fmt"
	"os"
	"strings"

	"gopkg.in/yaml.v3"
)

// Config is the top-level fieldsync configuration, loaded from config.yaml.
type Config struct {
	APIBaseURL   string `yaml:"api_base_url"`
	APIToken     string `yaml:"api_token"`
	TechnicianID string `yaml:"technician_id"`
	DatabasePath string `yaml:"database_path"`
	// SyncSchedule is a 5-field cron expression driving the daemon's sync
	// ticks.
	SyncSchedule string                  `yaml:"sync_schedule"`
	BatchSize    int                     `yaml:"batch_size"`
	WorkOrders   WorkOrderWindow         `yaml:"work_order_window"`
	Entities     map[string]EntityConfig `yaml:"entities"`
}

// WorkOrderWindow bounds the rolling date range used when pulling work
// orders, a high-churn entity that would otherwise sync unbounded history.
type WorkOrderWindow struct {
	DaysBack    int `yaml:"days_back"`
	DaysForward int `yaml:"days_forward"`
}

// EntityConfig holds per-entity overrides.
type EntityConfig struct {
	BatchSize int `yaml:"batch_size"`
}

// Load reads a YAML config file from path and returns a validated Config.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: read %s: %w", path, err)
	}
	return Parse(data)
}

// Parse unmarshals YAML bytes into a validated Config.
func Parse(data []byte) (*Config, error) {
	var cfg Config
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, fmt.Errorf("config: parse: %w", err)
	}
	cfg.applyDefaults()
	if err := cfg.validate(); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// applyDefaults fills in derived and default values.
func (c *Config) applyDefaults() {
	if c.DatabasePath == "" {
		c.DatabasePath = "fieldsync.db"
	}
	if c.SyncSchedule == "" {
		c.SyncSchedule = "*/5 * * * *"
	}
	if c.BatchSize == 0 {
		c.BatchSize = 100
	}
	if c.WorkOrders.DaysBack == 0 {
		c.WorkOrders.DaysBack = 30
	}
	if c.WorkOrders.DaysForward == 0 {
		c.WorkOrders.DaysForward = 60
	}
}

// validate checks that all required fields are present and consistent.
func (c *Config) validate() error {
	var errs []string
	if c.APIBaseURL == "" {
		errs = append(errs, "api_base_url is required")
	}
	if c.TechnicianID == "" {
		errs = append(errs, "technician_id is required")
	}
	if c.BatchSize < 0 {
		errs = append(errs, "batch_size must not be negative")
	}
	for name, ec := range c.Entities {
		if ec.BatchSize < 0 {
			errs = append(errs, fmt.Sprintf("entities.%s.batch_size must not be negative", name))
		}
	}
	if len(errs) > 0 {
		return fmt.Errorf("config: %s", strings.Join(errs, "; "))
	}
	return nil
}

// EntityBatchSize returns the batch size for an entity, falling back to the
// global default.
func (c *Config) EntityBatchSize(entity string) int {
	if ec, ok := c.Entities[entity]; ok && ec.BatchSize > 0 {
		return ec.BatchSize
	}
	return c.BatchSize
}
