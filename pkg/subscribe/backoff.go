package subscribe

import (
	"time"

	"github.com/getbunnyd/bunnyd/pkg/config"
)

// Delay returns how long to wait after failed attempt number attempt
// (1-based) before the next POST.
func Delay(strategy config.BackoffStrategy, base time.Duration, attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	switch strategy {
	case config.BackoffLinear:
		return base * time.Duration(attempt)
	case config.BackoffExponential:
		if attempt > 31 {
			attempt = 31
		}
		return base << (attempt - 1)
	default:
		return base
	}
}
