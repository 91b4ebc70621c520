package config

import (
	"fmt"
)

type ServiceId string

const (
	ServiceIdApi    ServiceId = "api"
	ServiceIdWorker ServiceId = "worker"
)

// Service is the common interface for the network configuration of a runnable service.
type Service interface {
	GetId() ServiceId
	GetPort() uint16
	GetHost() string
	GetBaseUrl() string
}

type serviceCommon struct {
	Port    uint16 `json:"port" yaml:"port"`
	Host    string `json:"host,omitempty" yaml:"host,omitempty"`
	BaseUrl string `json:"base_url,omitempty" yaml:"base_url,omitempty"`
}

func (s *serviceCommon) GetPort() uint16 {
	return s.Port
}

func (s *serviceCommon) GetHost() string {
	if s.Host == "" {
		return "0.0.0.0"
	}

	return s.Host
}

func (s *serviceCommon) GetBaseUrl() string {
	if s.BaseUrl != "" {
		return s.BaseUrl
	}

	return fmt.Sprintf("http://localhost:%d", s.Port)
}

// ServiceApi is the externally facing HTTP surface that connectors and operators talk to.
type ServiceApi struct {
	serviceCommon `json:",inline" yaml:",inline"`
}

func (s *ServiceApi) GetId() ServiceId {
	return ServiceIdApi
}

// ServiceWorker runs the asynq stage workers plus a small health endpoint.
type ServiceWorker struct {
	serviceCommon `json:",inline" yaml:",inline"`

	// Concurrency is the number of in-flight tasks per stage queue across this worker
	// process. Stage queues drain independently so a slow stage never blocks a fast one.
	Concurrency map[string]int `json:"concurrency,omitempty" yaml:"concurrency,omitempty"`
}

func (s *ServiceWorker) GetId() ServiceId {
	return ServiceIdWorker
}

func (s *ServiceWorker) GetConcurrencyOrDefault(queue string, def int) int {
	if s == nil || s.Concurrency == nil {
		return def
	}

	if v, ok := s.Concurrency[queue]; ok && v > 0 {
		return v
	}

	return def
}

var (
	_ Service = (*ServiceApi)(nil)
	_ Service = (*ServiceWorker)(nil)
)
