package core

import (
	"encoding/json"
	"fmt"
	"os"
	"time"

	"github.com/nats-io/nats-server/v2/server"
	"github.com/nats-io/nats.go"
	"github.com/rs/zerolog"
)

// EventBus publishes alerts and response records to NATS JetStream for
// out-of-band consumption (dashboards, SIEM forwarders). It can run against
// an external NATS server or start an embedded one.
type EventBus struct {
	nc     *nats.Conn
	js     nats.JetStreamContext
	ns     *server.Server
	logger zerolog.Logger
}

// NewEventBus connects to NATS per the config. If cfg.Embedded is true an
// embedded server is started first.
func NewEventBus(cfg *BusConfig, logger zerolog.Logger) (*EventBus, error) {
	bus := &EventBus{
		logger: logger.With().Str("component", "event_bus").Logger(),
	}

	if cfg.Embedded {
		if err := os.MkdirAll(cfg.DataDir, 0755); err != nil {
			return nil, fmt.Errorf("creating NATS data dir: %w", err)
		}

		opts := &server.Options{
			Host:      "127.0.0.1",
			Port:      cfg.Port,
			JetStream: true,
			StoreDir:  cfg.DataDir,
			NoLog:     true,
			NoSigs:    true,
		}
		ns, err := server.NewServer(opts)
		if err != nil {
			return nil, fmt.Errorf("creating embedded NATS server: %w", err)
		}
		ns.Start()
		if !ns.ReadyForConnections(10 * time.Second) {
			return nil, fmt.Errorf("embedded NATS server failed to start within timeout")
		}
		bus.ns = ns
		bus.logger.Info().Int("port", cfg.Port).Msg("embedded NATS server started")
	}

	url := cfg.URL
	if cfg.Embedded {
		url = fmt.Sprintf("nats://127.0.0.1:%d", cfg.Port)
	}

	nc, err := nats.Connect(url,
		nats.RetryOnFailedConnect(true),
		nats.MaxReconnects(60),
		nats.ReconnectWait(time.Second),
		nats.DisconnectErrHandler(func(_ *nats.Conn, err error) {
			if err != nil {
				bus.logger.Warn().Err(err).Msg("NATS disconnected")
			}
		}),
		nats.ReconnectHandler(func(_ *nats.Conn) {
			bus.logger.Info().Msg("NATS reconnected")
		}),
	)
	if err != nil {
		return nil, fmt.Errorf("connecting to NATS: %w", err)
	}
	bus.nc = nc

	js, err := nc.JetStream()
	if err != nil {
		return nil, fmt.Errorf("creating JetStream context: %w", err)
	}
	bus.js = js

	alertsStreamCfg := &nats.StreamConfig{
		Name:      "EDR_ALERTS",
		Subjects:  []string{"edr.alerts.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour * 30,
		MaxBytes:  512 * 1024 * 1024,
		Storage:   nats.FileStorage,
		Discard:   nats.DiscardOld,
	}
	if _, err := js.AddStream(alertsStreamCfg); err != nil {
		if _, updateErr := js.UpdateStream(alertsStreamCfg); updateErr != nil {
			return nil, fmt.Errorf("creating/updating alerts stream: %w (original: %v)", updateErr, err)
		}
	}

	responsesStreamCfg := &nats.StreamConfig{
		Name:      "EDR_RESPONSES",
		Subjects:  []string{"edr.responses.>"},
		Retention: nats.LimitsPolicy,
		MaxAge:    24 * time.Hour * 30,
		MaxBytes:  256 * 1024 * 1024,
		Storage:   nats.FileStorage,
		Discard:   nats.DiscardOld,
	}
	if _, err := js.AddStream(responsesStreamCfg); err != nil {
		if _, updateErr := js.UpdateStream(responsesStreamCfg); updateErr != nil {
			return nil, fmt.Errorf("creating/updating responses stream: %w (original: %v)", updateErr, err)
		}
	}

	bus.logger.Info().Str("url", url).Msg("connected to NATS JetStream")
	return bus, nil
}

// PublishAlert publishes a received alert to the alerts stream.
func (b *EventBus) PublishAlert(alert *Alert) error {
	data, err := alert.Marshal()
	if err != nil {
		return fmt.Errorf("marshaling alert: %w", err)
	}
	subject := fmt.Sprintf("edr.alerts.%s", alert.Severity.String())
	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing alert to %s: %w", subject, err)
	}
	return nil
}

// PublishResponse publishes a response record to the responses stream.
func (b *EventBus) PublishResponse(record *ResponseRecord) error {
	data, err := json.Marshal(record)
	if err != nil {
		return fmt.Errorf("marshaling response record: %w", err)
	}
	subject := fmt.Sprintf("edr.responses.%s.%s", record.Action, record.Status)
	if _, err := b.js.Publish(subject, data); err != nil {
		return fmt.Errorf("publishing response record to %s: %w", subject, err)
	}
	return nil
}

// IsConnected returns true if the NATS connection is active.
func (b *EventBus) IsConnected() bool {
	return b.nc != nil && b.nc.IsConnected()
}

// Close shuts down the connection and the embedded server, if any.
func (b *EventBus) Close() error {
	if b.nc != nil {
		b.nc.Close()
	}
	if b.ns != nil {
		b.ns.Shutdown()
		b.ns.WaitForShutdown()
		b.logger.Info().Msg("embedded NATS server stopped")
	}
	return nil
}
