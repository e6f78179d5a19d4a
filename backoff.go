package retry

import (
	"fmt"
	"math"
	"math/rand/v2"
	"strings"
	"time"
)

// Backoff calculates the delay between retry attempts. Delay receives the
// number of the attempt that just failed, starting at 1.
type Backoff interface {
	Delay(attempt int) time.Duration
}

// BackoffFunc is an adapter that allows a function to be used as a Backoff.
type BackoffFunc func(attempt int) time.Duration

// Delay implements Backoff.
func (f BackoffFunc) Delay(attempt int) time.Duration {
	return f(attempt)
}

// Shape names a family of backoff curves.
type Shape int

// Supported shapes.
const (
	// ShapeConstant waits the same delay before every retry.
	ShapeConstant Shape = iota
	// ShapeLinear grows the delay by base on each attempt.
	ShapeLinear
	// ShapeExponential doubles the delay on each attempt.
	ShapeExponential
)

func (s Shape) String() string {
	switch s {
	case ShapeConstant:
		return "constant"
	case ShapeLinear:
		return "linear"
	case ShapeExponential:
		return "exponential"
	default:
		return fmt.Sprintf("Shape(%d)", int(s))
	}
}

// ParseShape parses a shape name. "fixed" is accepted for constant.
func ParseShape(name string) (Shape, error) {
	switch strings.ToLower(strings.TrimSpace(name)) {
	case "", "constant", "fixed":
		return ShapeConstant, nil
	case "linear":
		return ShapeLinear, nil
	case "exponential":
		return ShapeExponential, nil
	}
	return 0, fmt.Errorf("%w: unknown backoff shape %q", ErrInvalidArgument, name)
}

// Backoff returns the curve of this shape starting at base.
func (s Shape) Backoff(base time.Duration) Backoff {
	switch s {
	case ShapeLinear:
		return Linear(base)
	case ShapeExponential:
		return Exponential(base)
	default:
		return Constant(base)
	}
}

// Constant returns a backoff that always waits the same duration.
func Constant(d time.Duration) Backoff {
	return BackoffFunc(func(int) time.Duration {
		return d
	})
}

// Linear returns a backoff that increases linearly with each attempt.
// delay = base * attempt
func Linear(base time.Duration) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		if attempt < 1 {
			attempt = 1
		}
		if base > 0 && int64(base) > math.MaxInt64/int64(attempt) {
			return time.Duration(math.MaxInt64)
		}
		return base * time.Duration(attempt)
	})
}

const maxShift = 62

// Exponential returns a backoff that doubles with each attempt.
// delay = base * 2^(attempt-1), saturating at the largest Duration.
func Exponential(base time.Duration) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		if attempt <= 1 || base <= 0 {
			return base
		}
		shift := min(attempt-1, maxShift)
		multiplier := int64(1) << shift
		if int64(base) > math.MaxInt64/multiplier {
			return time.Duration(math.MaxInt64)
		}
		return base * time.Duration(multiplier)
	})
}

// WithCap wraps a backoff and caps the delay at a maximum value.
func WithCap(max time.Duration, b Backoff) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		return min(b.Delay(attempt), max)
	})
}

// WithMin wraps a backoff and ensures the delay is at least a minimum value.
func WithMin(min time.Duration, b Backoff) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		return max(b.Delay(attempt), min)
	})
}

// WithJitter wraps a backoff and adds random jitter to the delay.
// The jitter is a factor between 0 and 1, where 0.2 means ±20%.
func WithJitter(factor float64, b Backoff) Backoff {
	return BackoffFunc(func(attempt int) time.Duration {
		d := b.Delay(attempt)
		if factor <= 0 {
			return d
		}
		jitterRange := float64(d) * factor
		jitter := (rand.Float64()*2 - 1) * jitterRange
		return max(time.Duration(float64(d)+jitter), 0)
	})
}
