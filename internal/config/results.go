package config

import (
	"time"
)

// Results configures persistence and forwarding of per-item scan results.
type Results struct {
	// RetentionVal caps how many result records are kept. Oldest records are pruned as
	// new ones arrive. Zero keeps everything.
	RetentionVal *int `json:"retention,omitempty" yaml:"retention,omitempty"`

	// Syslog, if present, forwards every result as a JSON line to a syslog collector.
	Syslog *SyslogSink `json:"syslog,omitempty" yaml:"syslog,omitempty"`
}

// Retention is the record cap, 0 meaning unlimited.
func (r *Results) Retention() int {
	if r == nil || r.RetentionVal == nil {
		return 10_000
	}

	if *r.RetentionVal <= 0 {
		return 0
	}

	return *r.RetentionVal
}

// SyslogSink is a TCP (optionally TLS) syslog destination.
type SyslogSink struct {
	Address            string         `json:"address" yaml:"address"`
	Tls                bool           `json:"tls,omitempty" yaml:"tls,omitempty"`
	InsecureSkipVerify bool           `json:"insecure_skip_verify,omitempty" yaml:"insecure_skip_verify,omitempty"`
	TimeoutVal         *HumanDuration `json:"timeout,omitempty" yaml:"timeout,omitempty"`
}

func (s *SyslogSink) Timeout() time.Duration {
	if s == nil || s.TimeoutVal == nil || s.TimeoutVal.Duration == 0 {
		return 10 * time.Second
	}

	return s.TimeoutVal.Duration
}
