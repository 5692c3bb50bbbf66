package config

import (
	"os"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/XiaoConstantine/govern-go/pkg/errors"
)

// Config represents the complete configuration for the governance engine.
type Config struct {
	// Trust policy constants
	Policy PolicyConfig `yaml:"policy" validate:"required"`

	// Storage configuration
	Storage StorageConfig `yaml:"storage,omitempty" validate:"omitempty"`

	// Logging configuration
	Logging LoggingConfig `yaml:"logging,omitempty" validate:"omitempty"`
}

// PolicyConfig holds the tunable trust policy constants. The numeric values
// are deliberately configuration, not code: different deployments weigh human
// approvals and measured outcomes differently.
type PolicyConfig struct {
	// Trust score assigned to a capability on implicit creation.
	DefaultTrustScore float64 `yaml:"default_trust_score" validate:"gte=0,lte=1"`

	// Auto-approve threshold assigned on implicit creation.
	DefaultAutoApproveThreshold float64 `yaml:"default_auto_approve_threshold" validate:"gte=0,lte=1"`

	// Whether new capabilities start with the human-review override set.
	DefaultRequiresReview bool `yaml:"default_requires_review"`

	// Trust delta applied when a human approves a proposal.
	ApproveDelta float64 `yaml:"approve_delta" validate:"gte=0,lte=1"`

	// Trust delta subtracted when a human rejects a proposal.
	RejectDelta float64 `yaml:"reject_delta" validate:"gte=0,lte=1"`

	// Small positive nudge applied on a successful unsupervised accept.
	AutoApproveBonus float64 `yaml:"auto_approve_bonus" validate:"gte=0,lte=1"`

	// Full-scale delta for a measured outcome. A measured success score of
	// 1.0 adds the whole delta, 0.0 subtracts it, 0.5 changes nothing.
	OutcomeDelta float64 `yaml:"outcome_delta" validate:"gte=0,lte=1"`

	// Trust delta subtracted when an implemented proposal is reverted.
	RevertDelta float64 `yaml:"revert_delta" validate:"gte=0,lte=1"`

	// Bounded retries for optimistic-lock conflicts before the transition
	// surfaces a transient failure.
	MaxConflictRetries int `yaml:"max_conflict_retries" validate:"gte=1,lte=20"`
}

// StorageConfig holds configuration for the sqlite-backed store.
type StorageConfig struct {
	// Database file path. ":memory:" opens a shared in-memory database.
	Path string `yaml:"path" validate:"required"`

	// How long a writer waits on a locked database before failing.
	BusyTimeout time.Duration `yaml:"busy_timeout" validate:"gte=0"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	// Severity level (DEBUG, INFO, WARN, ERROR, FATAL)
	Level string `yaml:"level" validate:"omitempty,oneof=DEBUG INFO WARN ERROR FATAL"`

	// Whether console output uses ANSI colors
	Color bool `yaml:"color"`

	// Optional file path for an additional file sink
	FilePath string `yaml:"file_path,omitempty"`
}

// Load reads a yaml config file, overlays it on the defaults and validates
// the result.
func Load(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to read config file"),
			errors.Fields{"path": path},
		)
	}

	cfg := DefaultConfig()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, errors.WithFields(
			errors.Wrap(err, errors.InvalidInput, "failed to parse config file"),
			errors.Fields{"path": path},
		)
	}

	if err := cfg.Validate(); err != nil {
		return nil, err
	}
	return cfg, nil
}

// Validate checks the configuration against its struct tags.
func (c *Config) Validate() error {
	v := validator.New()
	if err := v.Struct(c); err != nil {
		return errors.Wrap(err, errors.ValidationFailed, "invalid configuration")
	}
	return nil
}
