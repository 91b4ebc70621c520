package config

import (
	"time"
)

// Pipeline tunes the stage queues: retry budgets per failure class and the exponential
// backoff window shared by transient retries.
type Pipeline struct {
	// MaxConnectorRetriesVal bounds retries for connector-unreachable failures.
	MaxConnectorRetriesVal *int `json:"max_connector_retries,omitempty" yaml:"max_connector_retries,omitempty"`

	// MaxScannerRetriesVal bounds retries for scanner-unreachable failures.
	MaxScannerRetriesVal *int `json:"max_scanner_retries,omitempty" yaml:"max_scanner_retries,omitempty"`

	// RetryBaseDelayVal is the backoff delay for the first retry; it doubles per attempt.
	RetryBaseDelayVal *HumanDuration `json:"retry_base_delay,omitempty" yaml:"retry_base_delay,omitempty"`

	// RetryMaxDelayVal caps the backoff delay.
	RetryMaxDelayVal *HumanDuration `json:"retry_max_delay,omitempty" yaml:"retry_max_delay,omitempty"`

	// ReadTimeoutVal bounds streaming a file from a connector.
	ReadTimeoutVal *HumanDuration `json:"read_timeout,omitempty" yaml:"read_timeout,omitempty"`

	// ActionTimeoutVal bounds a remediation call to a connector.
	ActionTimeoutVal *HumanDuration `json:"action_timeout,omitempty" yaml:"action_timeout,omitempty"`
}

func (p *Pipeline) MaxConnectorRetries() int {
	if p == nil || p.MaxConnectorRetriesVal == nil {
		return 5
	}

	return *p.MaxConnectorRetriesVal
}

func (p *Pipeline) MaxScannerRetries() int {
	if p == nil || p.MaxScannerRetriesVal == nil {
		return 5
	}

	return *p.MaxScannerRetriesVal
}

func (p *Pipeline) RetryBaseDelay() time.Duration {
	if p == nil || p.RetryBaseDelayVal == nil || p.RetryBaseDelayVal.Duration == 0 {
		return 2 * time.Second
	}

	return p.RetryBaseDelayVal.Duration
}

func (p *Pipeline) RetryMaxDelay() time.Duration {
	if p == nil || p.RetryMaxDelayVal == nil || p.RetryMaxDelayVal.Duration == 0 {
		return 5 * time.Minute
	}

	return p.RetryMaxDelayVal.Duration
}

func (p *Pipeline) ReadTimeout() time.Duration {
	if p == nil || p.ReadTimeoutVal == nil || p.ReadTimeoutVal.Duration == 0 {
		return 120 * time.Second
	}

	return p.ReadTimeoutVal.Duration
}

func (p *Pipeline) ActionTimeout() time.Duration {
	if p == nil || p.ActionTimeoutVal == nil || p.ActionTimeoutVal.Duration == 0 {
		return 60 * time.Second
	}

	return p.ActionTimeoutVal.Duration
}
