/*
Copyright 2024.

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package audit

import (
	"context"
	"crypto/tls"
	"crypto/x509"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"strings"
	"sync"
	"time"

	"github.com/segmentio/kafka-go"
	"github.com/segmentio/kafka-go/sasl"
	"github.com/segmentio/kafka-go/sasl/plain"
	"github.com/segmentio/kafka-go/sasl/scram"
	"go.uber.org/zap"

	"github.com/telekom/account-client/pkg/metrics"
)

// KafkaSinkConfig configures a KafkaSink.
type KafkaSinkConfig struct {
	// Name is the identifier for this sink instance.
	Name string

	// Brokers is the list of Kafka broker addresses.
	Brokers []string

	// Topic is the Kafka topic to write audit events to.
	Topic string

	TLS  *KafkaTLSConfig
	SASL *KafkaSASLConfig

	// WriteTimeout is the timeout for writing messages.
	// Default: 10 seconds
	WriteTimeout time.Duration

	// CompressionCodec for message compression.
	// Valid values: "none", "gzip", "snappy", "lz4", "zstd"
	// Default: "snappy"
	CompressionCodec string
}

// KafkaTLSConfig holds TLS configuration for Kafka connections.
type KafkaTLSConfig struct {
	Enabled bool

	// CACert is the PEM-encoded CA certificate for verifying the server.
	CACert []byte

	// ClientCert and ClientKey are PEM-encoded and enable mTLS when both are set.
	ClientCert []byte
	ClientKey  []byte

	// InsecureSkipVerify skips server certificate verification.
	// WARNING: Only use for testing.
	InsecureSkipVerify bool
}

// KafkaSASLConfig holds SASL authentication configuration.
type KafkaSASLConfig struct {
	// Mechanism is one of "PLAIN", "SCRAM-SHA-256", "SCRAM-SHA-512".
	Mechanism string
	Username  string
	Password  string
}

// KafkaSink writes audit events to a Kafka topic. Events are keyed by
// device ID so that one device's history stays ordered within a partition.
type KafkaSink struct {
	name   string
	writer *kafka.Writer
	logger *zap.Logger
	mu     sync.Mutex
	closed bool
}

// NewKafkaSink creates a new KafkaSink. No connection is made until the
// first Write.
func NewKafkaSink(cfg KafkaSinkConfig, logger *zap.Logger) (*KafkaSink, error) {
	if len(cfg.Brokers) == 0 {
		return nil, fmt.Errorf("at least one Kafka broker is required")
	}
	if cfg.Topic == "" {
		return nil, fmt.Errorf("Kafka topic is required")
	}

	transport := &kafka.Transport{}

	if cfg.TLS != nil && cfg.TLS.Enabled {
		tlsConfig, err := buildTLSConfig(cfg.TLS)
		if err != nil {
			return nil, fmt.Errorf("failed to build TLS config: %w", err)
		}
		transport.TLS = tlsConfig
	}

	if cfg.SASL != nil && cfg.SASL.Mechanism != "" {
		mechanism, err := buildSASLMechanism(cfg.SASL)
		if err != nil {
			return nil, fmt.Errorf("failed to build SASL mechanism: %w", err)
		}
		transport.SASL = mechanism
	}

	writeTimeout := cfg.WriteTimeout
	if writeTimeout <= 0 {
		writeTimeout = 10 * time.Second
	}

	compression := kafka.Snappy
	switch cfg.CompressionCodec {
	case "none":
		compression = 0
	case "gzip":
		compression = kafka.Gzip
	case "lz4":
		compression = kafka.Lz4
	case "zstd":
		compression = kafka.Zstd
	case "snappy", "":
	default:
		return nil, fmt.Errorf("unsupported compression codec: %s", cfg.CompressionCodec)
	}

	sinkName := cfg.Name
	if sinkName == "" {
		sinkName = "kafka"
	}

	// A CLI writes a handful of events per run; one message per batch keeps
	// Write synchronous instead of waiting for BatchTimeout.
	writer := &kafka.Writer{
		Addr:                   kafka.TCP(cfg.Brokers...),
		Topic:                  cfg.Topic,
		Balancer:               &kafka.Hash{},
		BatchSize:              1,
		WriteTimeout:           writeTimeout,
		RequiredAcks:           kafka.RequireAll,
		Compression:            compression,
		Transport:              transport,
		AllowAutoTopicCreation: false,
	}

	logger.Debug("Kafka audit sink created",
		zap.String("name", sinkName),
		zap.Strings("brokers", cfg.Brokers),
		zap.String("topic", cfg.Topic),
		zap.Bool("tls_enabled", transport.TLS != nil),
		zap.Bool("sasl_enabled", transport.SASL != nil))

	return &KafkaSink{
		name:   sinkName,
		writer: writer,
		logger: logger.Named("kafka-audit"),
	}, nil
}

// Write sends one audit event to Kafka.
func (s *KafkaSink) Write(ctx context.Context, event *Event) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		metrics.AuditEventsFailed.WithLabelValues(s.name).Inc()
		return fmt.Errorf("kafka sink is closed")
	}
	if err := event.Validate(); err != nil {
		return err
	}

	value, err := json.Marshal(event)
	if err != nil {
		metrics.AuditEventsFailed.WithLabelValues(s.name).Inc()
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	key := event.DeviceID
	if key == "" {
		key = event.ID
	}
	headers := []kafka.Header{
		{Key: "event-type", Value: []byte(event.Type)},
		{Key: "severity", Value: []byte(event.Severity)},
		{Key: "timestamp", Value: []byte(event.Timestamp.Format(time.RFC3339))},
	}
	if event.Account != "" {
		headers = append(headers, kafka.Header{Key: "account", Value: []byte(event.Account)})
	}

	start := time.Now()
	if err := s.writer.WriteMessages(ctx, kafka.Message{Key: []byte(key), Value: value, Headers: headers}); err != nil {
		errorType := classifyKafkaError(err)
		metrics.AuditEventsFailed.WithLabelValues(s.name).Inc()

		logFields := []zap.Field{
			zap.String("error", err.Error()),
			zap.String("error_type", errorType),
			zap.Duration("duration", time.Since(start)),
			zap.String("event_id", event.ID),
			zap.String("event_type", string(event.Type)),
		}
		switch errorType {
		case "network", "dns", "timeout", "cancelled":
			s.logger.Warn("Kafka sink temporarily unavailable, event dropped", logFields...)
		default:
			s.logger.Error("failed to write audit event to Kafka", logFields...)
		}
		return fmt.Errorf("failed to write to Kafka (%s): %w", errorType, err)
	}

	metrics.AuditEventsWritten.WithLabelValues(s.name).Inc()
	return nil
}

// Close flushes and closes the writer. Closing twice is a no-op.
func (s *KafkaSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.closed {
		return nil
	}
	s.closed = true

	if err := s.writer.Close(); err != nil {
		return fmt.Errorf("failed to close Kafka writer: %w", err)
	}
	return nil
}

func (s *KafkaSink) Name() string {
	return s.name
}

// classifyKafkaError categorizes Kafka errors for logging.
func classifyKafkaError(err error) string {
	if err == nil {
		return ""
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return "timeout"
	}
	if errors.Is(err, context.Canceled) {
		return "cancelled"
	}

	var dnsErr *net.DNSError
	if errors.As(err, &dnsErr) {
		return "dns"
	}
	var netErr net.Error
	if errors.As(err, &netErr) {
		if netErr.Timeout() {
			return "timeout"
		}
		return "network"
	}

	errStr := err.Error()
	switch {
	case strings.Contains(errStr, "SASL") || strings.Contains(errStr, "authentication"):
		return "auth"
	case strings.Contains(errStr, "authorization") || strings.Contains(errStr, "ACL"):
		return "authorization"
	case strings.Contains(errStr, "timeout") || strings.Contains(errStr, "timed out"):
		return "timeout"
	case strings.Contains(errStr, "connection refused") || strings.Contains(errStr, "no such host"):
		return "network"
	case strings.Contains(errStr, "TLS") || strings.Contains(errStr, "certificate"):
		return "tls"
	case strings.Contains(errStr, "broker") || strings.Contains(errStr, "leader"):
		return "broker"
	case strings.Contains(errStr, "topic"):
		return "topic"
	default:
		return "other"
	}
}

func buildTLSConfig(cfg *KafkaTLSConfig) (*tls.Config, error) {
	tlsConfig := &tls.Config{
		MinVersion:         tls.VersionTLS12,
		InsecureSkipVerify: cfg.InsecureSkipVerify, //nolint:gosec // Configurable for testing
	}

	if len(cfg.CACert) > 0 {
		caCertPool := x509.NewCertPool()
		if !caCertPool.AppendCertsFromPEM(cfg.CACert) {
			return nil, fmt.Errorf("failed to parse CA certificate")
		}
		tlsConfig.RootCAs = caCertPool
	}

	if len(cfg.ClientCert) > 0 && len(cfg.ClientKey) > 0 {
		cert, err := tls.X509KeyPair(cfg.ClientCert, cfg.ClientKey)
		if err != nil {
			return nil, fmt.Errorf("failed to load client certificate: %w", err)
		}
		tlsConfig.Certificates = []tls.Certificate{cert}
	}

	return tlsConfig, nil
}

func buildSASLMechanism(cfg *KafkaSASLConfig) (sasl.Mechanism, error) {
	switch cfg.Mechanism {
	case "PLAIN":
		return plain.Mechanism{Username: cfg.Username, Password: cfg.Password}, nil
	case "SCRAM-SHA-256":
		mechanism, err := scram.Mechanism(scram.SHA256, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to create SCRAM-SHA-256 mechanism: %w", err)
		}
		return mechanism, nil
	case "SCRAM-SHA-512":
		mechanism, err := scram.Mechanism(scram.SHA512, cfg.Username, cfg.Password)
		if err != nil {
			return nil, fmt.Errorf("failed to create SCRAM-SHA-512 mechanism: %w", err)
		}
		return mechanism, nil
	default:
		return nil, fmt.Errorf("unsupported SASL mechanism: %s", cfg.Mechanism)
	}
}
