package config

import (
	"time"
)

// Registry configures connector bookkeeping: how often enrolled connectors are probed
// and how long a probe may take before the connector is marked degraded.
type Registry struct {
	// LivenessScheduleVal is a cron expression for the background liveness sweep.
	LivenessScheduleVal string `json:"liveness_schedule,omitempty" yaml:"liveness_schedule,omitempty"`

	// ProbeTimeoutVal bounds a single repo_check call during the sweep.
	ProbeTimeoutVal *HumanDuration `json:"probe_timeout,omitempty" yaml:"probe_timeout,omitempty"`

	// NonceCleanupScheduleVal is a cron expression for sweeping expired signing nonces.
	NonceCleanupScheduleVal string `json:"nonce_cleanup_schedule,omitempty" yaml:"nonce_cleanup_schedule,omitempty"`
}

func (r *Registry) LivenessSchedule() string {
	if r == nil || r.LivenessScheduleVal == "" {
		return "@every 1m"
	}

	return r.LivenessScheduleVal
}

func (r *Registry) ProbeTimeout() time.Duration {
	if r == nil || r.ProbeTimeoutVal == nil || r.ProbeTimeoutVal.Duration == 0 {
		return 10 * time.Second
	}

	return r.ProbeTimeoutVal.Duration
}

func (r *Registry) NonceCleanupSchedule() string {
	if r == nil || r.NonceCleanupScheduleVal == "" {
		return "@every 10m"
	}

	return r.NonceCleanupScheduleVal
}
