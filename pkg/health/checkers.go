package health

import (
	"context"
	"time"
)

// Checkable is any component with a health check, such as a store adapter or a cache.
type Checkable interface {
	HealthCheck(ctx context.Context) error
}

// AdapterChecker probes a Checkable under a timeout.
type AdapterChecker struct {
	name      string
	component Checkable
	timeout   time.Duration
	optional  bool
}

// NewAdapterChecker checks a required component; a failure makes the catalog unhealthy.
// A zero timeout means five seconds.
func NewAdapterChecker(name string, component Checkable, timeout time.Duration) *AdapterChecker {
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &AdapterChecker{name: name, component: component, timeout: timeout}
}

// NewOptionalChecker checks a component the catalog can work without; a failure only
// degrades it.
func NewOptionalChecker(name string, component Checkable, timeout time.Duration) *AdapterChecker {
	c := NewAdapterChecker(name, component, timeout)
	c.optional = true
	return c
}

// Check runs the wrapped health check.
func (c *AdapterChecker) Check(ctx context.Context) CheckResult {
	start := time.Now()
	checkCtx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	err := c.component.HealthCheck(checkCtx)
	result := CheckResult{Name: c.name, Status: StatusHealthy, Duration: time.Since(start)}
	if err != nil {
		result.Error = err.Error()
		result.Status = StatusUnhealthy
		if c.optional {
			result.Status = StatusDegraded
		}
	}
	return result
}

// Name returns the check name.
func (c *AdapterChecker) Name() string {
	return c.name
}
