package resilience

import (
	"time"

	"github.com/sells-group/leadval-cli/internal/config"
)

// FromConfig converts the resilience config section into retry and circuit
// breaker settings. Zero or missing values keep the package defaults.
func FromConfig(cfg config.ResilienceConfig) (RetryConfig, CircuitBreakerConfig) {
	retry := DefaultRetryConfig()
	if cfg.RetryMaxAttempts > 0 {
		retry.MaxAttempts = cfg.RetryMaxAttempts
	}
	if cfg.RetryInitialBackoffMs > 0 {
		retry.InitialBackoff = time.Duration(cfg.RetryInitialBackoffMs) * time.Millisecond
	}
	if cfg.RetryMaxBackoffMs > 0 {
		retry.MaxBackoff = time.Duration(cfg.RetryMaxBackoffMs) * time.Millisecond
	}

	circuit := DefaultCircuitBreakerConfig()
	if cfg.CircuitFailureThreshold > 0 {
		circuit.FailureThreshold = cfg.CircuitFailureThreshold
	}
	if cfg.CircuitResetTimeoutSecs > 0 {
		circuit.ResetTimeout = time.Duration(cfg.CircuitResetTimeoutSecs) * time.Second
	}
	return retry, circuit
}
