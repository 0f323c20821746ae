package infra

import (
	"math"
	"time"
)

const (
	BackoffBaseDelay  = 1 * time.Second
	BackoffMaxDelay   = 60 * time.Second
	BackoffMaxRetries = 10
)

// CalculateBackoff returns the redial delay for the given retry attempt (0-based).
func CalculateBackoff(retryCount int) time.Duration {
	if retryCount < 0 {
		retryCount = 0
	}
	if retryCount > BackoffMaxRetries {
		return BackoffMaxDelay
	}
	delay := BackoffBaseDelay * time.Duration(math.Pow(2, float64(retryCount)))
	if delay > BackoffMaxDelay {
		delay = BackoffMaxDelay
	}
	return delay
}
