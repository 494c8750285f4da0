package resilience

import "time"

// RetryFromConfig builds a RetryConfig from config values, keeping defaults
// for unset (zero) fields.
func RetryFromConfig(maxAttempts, initialBackoffMs, maxBackoffMs int) RetryConfig {
	cfg := DefaultRetryConfig()
	if maxAttempts > 0 {
		cfg.MaxAttempts = maxAttempts
	}
	if initialBackoffMs > 0 {
		cfg.InitialBackoff = time.Duration(initialBackoffMs) * time.Millisecond
	}
	if maxBackoffMs > 0 {
		cfg.MaxBackoff = time.Duration(maxBackoffMs) * time.Millisecond
	}
	return cfg
}

// BreakerFromConfig builds a BreakerConfig from config values.
func BreakerFromConfig(failureThreshold, coolDownSecs int) BreakerConfig {
	cfg := DefaultBreakerConfig()
	if failureThreshold > 0 {
		cfg.FailureThreshold = failureThreshold
	}
	if coolDownSecs > 0 {
		cfg.CoolDown = time.Duration(coolDownSecs) * time.Second
	}
	return cfg
}
