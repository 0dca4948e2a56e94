// Package config loads the coordination kernel's runtime configuration:
// defaults layered under an optional YAML file, then environment variable
// overrides, then struct-tag validation at the boundary.
package config

import (
	"time"

	"github.com/go-playground/validator/v10"
)

// LeaseConfig controls the Lease Manager.
type LeaseConfig struct {
	DefaultDurationHours int `yaml:"default_duration_hours" validate:"min=1"`
	TickerIntervalSeconds int `yaml:"ticker_interval_seconds" validate:"min=1"`
}

// ReconcilerConfig controls the periodic board reconciliation loop.
type ReconcilerConfig struct {
	Enabled         bool `yaml:"enabled"`
	IntervalSeconds int  `yaml:"interval_seconds" validate:"min=1"`
}

// ProjectConfig controls the Project Context Manager's LRU cache.
type ProjectConfig struct {
	CacheCapacity int `yaml:"cache_capacity" validate:"min=1"`
}

// ScoreWeights weights the scheduler's task-selection scoring function.
type ScoreWeights struct {
	Skill    float64 `yaml:"skill" validate:"gte=0"`
	Priority float64 `yaml:"priority" validate:"gte=0"`
	Impact   float64 `yaml:"impact" validate:"gte=0"`
}

// SchedulerConfig controls the Scheduler / Task Picker.
type SchedulerConfig struct {
	DeadlineSeconds int          `yaml:"deadline_seconds" validate:"min=1"`
	ScoreWeights    ScoreWeights `yaml:"score_weights" validate:"required"`
}

// EventsConfig controls the Event Bus's durable log.
type EventsConfig struct {
	Durable         bool `yaml:"durable"`
	FsyncIntervalMS int  `yaml:"fsync_interval_ms" validate:"min=0"`
}

// KanbanRetryConfig controls retry/backoff for the KanbanClient collaborator.
type KanbanRetryConfig struct {
	Attempts          int     `yaml:"attempts" validate:"min=1"`
	BackoffInitialMS  int     `yaml:"backoff_initial_ms" validate:"min=1"`
	BackoffFactor     float64 `yaml:"backoff_factor" validate:"gte=1"`
}

// KanbanConfig controls the KanbanClient collaborator.
type KanbanConfig struct {
	Retry KanbanRetryConfig `yaml:"retry" validate:"required"`
}

// Config is the fully-resolved runtime configuration for the coordination
// kernel.
type Config struct {
	Lease      LeaseConfig      `yaml:"lease" validate:"required"`
	Reconciler ReconcilerConfig `yaml:"reconciler" validate:"required"`
	Project    ProjectConfig    `yaml:"project" validate:"required"`
	Scheduler  SchedulerConfig  `yaml:"scheduler" validate:"required"`
	Events     EventsConfig     `yaml:"events" validate:"required"`
	Kanban     KanbanConfig     `yaml:"kanban" validate:"required"`
}

// LeaseDefaultDuration returns the lease duration as a time.Duration.
func (c Config) LeaseDefaultDuration() time.Duration {
	return time.Duration(c.Lease.DefaultDurationHours) * time.Hour
}

// LeaseTickerInterval returns the lease-expiry scan interval.
func (c Config) LeaseTickerInterval() time.Duration {
	return time.Duration(c.Lease.TickerIntervalSeconds) * time.Second
}

// ReconcilerInterval returns the reconciler loop interval.
func (c Config) ReconcilerInterval() time.Duration {
	return time.Duration(c.Reconciler.IntervalSeconds) * time.Second
}

// SchedulerDeadline returns the per-request scheduling deadline.
func (c Config) SchedulerDeadline() time.Duration {
	return time.Duration(c.Scheduler.DeadlineSeconds) * time.Second
}

// Defaults returns a Config with the kernel's built-in defaults, mirroring
// the layered-defaults approach of the teacher's internal/config/loader.go
// (defaults first, then file, then env, validated last).
func Defaults() Config {
	return Config{
		Lease: LeaseConfig{
			DefaultDurationHours:  4,
			TickerIntervalSeconds: 60,
		},
		Reconciler: ReconcilerConfig{
			Enabled:         true,
			IntervalSeconds: 300,
		},
		Project: ProjectConfig{
			CacheCapacity: 8,
		},
		Scheduler: SchedulerConfig{
			DeadlineSeconds: 10,
			ScoreWeights: ScoreWeights{
				Skill:    0.5,
				Priority: 0.3,
				Impact:   0.2,
			},
		},
		Events: EventsConfig{
			Durable:         true,
			FsyncIntervalMS: 500,
		},
		Kanban: KanbanConfig{
			Retry: KanbanRetryConfig{
				Attempts:         3,
				BackoffInitialMS: 1000,
				BackoffFactor:    2.0,
			},
		},
	}
}

var validate = validator.New()

// Validate applies struct-tag validation to c, the boundary check the
// Design Notes require before configuration reaches any component.
func Validate(c Config) error {
	return validate.Struct(c)
}
