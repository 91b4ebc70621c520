package results

import (
	"context"
	"crypto/tls"
	"encoding/json"
	"log/slog"
	"net"
	"sync"
	"time"

	"github.com/pkg/errors"

	"github.com/logang-di/dsx-connect/internal/config"
)

// Emitter forwards scan result events to an external sink. Emission is best effort: a
// sink outage must never fail the pipeline stage that produced the event.
type Emitter interface {
	Emit(ctx context.Context, event interface{}) error
	Close() error
}

type noopEmitter struct{}

func (noopEmitter) Emit(ctx context.Context, event interface{}) error { return nil }
func (noopEmitter) Close() error                                      { return nil }

// NewEmitterForRoot returns a syslog emitter when a sink is configured, otherwise a noop.
func NewEmitterForRoot(cfg config.C, logger *slog.Logger) Emitter {
	sink := cfg.GetRoot().Results.Syslog
	if sink == nil || sink.Address == "" {
		return noopEmitter{}
	}

	return &syslogEmitter{
		sink:   sink,
		logger: logger,
	}
}

// syslogEmitter writes newline-delimited JSON events over a long-lived TCP (optionally
// TLS) connection, reconnecting once per emit when the connection has gone stale.
type syslogEmitter struct {
	sink   *config.SyslogSink
	logger *slog.Logger

	mu   sync.Mutex
	conn net.Conn
}

func (e *syslogEmitter) dial() (net.Conn, error) {
	dialer := &net.Dialer{Timeout: e.sink.Timeout()}

	if e.sink.Tls {
		return tls.DialWithDialer(dialer, "tcp", e.sink.Address, &tls.Config{
			InsecureSkipVerify: e.sink.InsecureSkipVerify,
		})
	}

	return dialer.Dial("tcp", e.sink.Address)
}

func (e *syslogEmitter) writeLine(line []byte) error {
	if e.conn == nil {
		conn, err := e.dial()
		if err != nil {
			return errors.Wrap(err, "failed to connect to result sink")
		}
		e.conn = conn
	}

	_ = e.conn.SetWriteDeadline(time.Now().Add(e.sink.Timeout()))

	if _, err := e.conn.Write(line); err != nil {
		// Stale connection; reconnect and retry once.
		_ = e.conn.Close()
		e.conn = nil

		conn, derr := e.dial()
		if derr != nil {
			return errors.Wrap(derr, "failed to reconnect to result sink")
		}
		e.conn = conn
		_ = e.conn.SetWriteDeadline(time.Now().Add(e.sink.Timeout()))

		if _, werr := e.conn.Write(line); werr != nil {
			_ = e.conn.Close()
			e.conn = nil
			return errors.Wrap(werr, "failed to write to result sink")
		}
	}

	return nil
}

func (e *syslogEmitter) Emit(ctx context.Context, event interface{}) error {
	payload, err := json.Marshal(event)
	if err != nil {
		return errors.Wrap(err, "failed to marshal result event")
	}

	line := append(payload, '\n')

	e.mu.Lock()
	defer e.mu.Unlock()

	if err := e.writeLine(line); err != nil {
		e.logger.Error("result sink emission failed",
			"address", e.sink.Address,
			"error", err)
		return err
	}

	return nil
}

func (e *syslogEmitter) Close() error {
	e.mu.Lock()
	defer e.mu.Unlock()

	if e.conn == nil {
		return nil
	}

	err := e.conn.Close()
	e.conn = nil
	return err
}
