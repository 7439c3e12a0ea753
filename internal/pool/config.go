package pool

import "runtime"

// DefaultPolicyCap bounds the worker count regardless of how many cores the
// host reports. Throughput of the bundled engines stops improving and then
// degrades past this point on the reference hardware, mostly from memory
// bandwidth contention in the reduction and cross-cell traffic in the
// particle solver. Override it with threads.policy_cap or --threads-cap.
const DefaultPolicyCap = 8

// Config describes how many workers the compute module should allocate.
type Config struct {
	// PolicyCap is the upper bound. Values <= 0 mean DefaultPolicyCap.
	PolicyCap int `yaml:"policy_cap"`

	// HostConcurrencyHint is the number of hardware threads the host
	// reports. Values <= 0 mean the hint is unavailable.
	HostConcurrencyHint int `yaml:"-"`
}

// HostConfig returns a Config using the runtime's view of host concurrency.
func HostConfig(policyCap int) Config {
	return Config{PolicyCap: policyCap, HostConcurrencyHint: runtime.NumCPU()}
}

// Resolve returns min(PolicyCap, HostConcurrencyHint), never less than 1.
// An unavailable hint resolves to a single worker.
func (c Config) Resolve() int {
	if c.HostConcurrencyHint <= 0 {
		return 1
	}
	limit := c.PolicyCap
	if limit <= 0 {
		limit = DefaultPolicyCap
	}
	return max(1, min(limit, c.HostConcurrencyHint))
}
