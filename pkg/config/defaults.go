package config

import (
	"time"
)

// DefaultConfig returns the default configuration for the governance engine.
//
// The policy defaults encode a conservative posture: new capabilities start
// near zero trust with the review override on, human approvals move trust
// slowly, and measured outcomes and reverts move it faster than any approval
// can. Reaching the default auto-approve threshold therefore takes a long run
// of approved, successfully measured changes.
func DefaultConfig() *Config {
	return &Config{
		Policy:  DefaultPolicy(),
		Storage: defaultStorageConfig(),
		Logging: defaultLoggingConfig(),
	}
}

// DefaultPolicy returns the documented default trust policy constants.
func DefaultPolicy() PolicyConfig {
	return PolicyConfig{
		DefaultTrustScore:           0.10,
		DefaultAutoApproveThreshold: 0.80,
		DefaultRequiresReview:       true,
		ApproveDelta:                0.05,
		RejectDelta:                 0.10,
		AutoApproveBonus:            0.01,
		OutcomeDelta:                0.15,
		RevertDelta:                 0.20,
		MaxConflictRetries:          3,
	}
}

func defaultStorageConfig() StorageConfig {
	return StorageConfig{
		Path:        "govern.db",
		BusyTimeout: 5 * time.Second,
	}
}

func defaultLoggingConfig() LoggingConfig {
	return LoggingConfig{
		Level: "INFO",
		Color: true,
	}
}
