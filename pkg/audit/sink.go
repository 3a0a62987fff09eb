/*
Copyright 2026.

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
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"time"

	"go.uber.org/zap"

	"github.com/telekom/account-client/pkg/metrics"
)

// Sink defines the interface for audit event destinations.
type Sink interface {
	// Write sends an audit event to the sink.
	Write(ctx context.Context, event *Event) error

	// Close releases any resources held by the sink.
	Close() error

	// Name returns the sink's identifier.
	Name() string
}

// LogSink writes audit events to a structured logger.
type LogSink struct {
	logger *zap.Logger
}

func NewLogSink(logger *zap.Logger) *LogSink {
	return &LogSink{logger: logger.Named("audit")}
}

// Write logs the audit event.
func (s *LogSink) Write(_ context.Context, event *Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	fields := []zap.Field{
		zap.String("event_id", event.ID),
		zap.String("event_type", string(event.Type)),
		zap.String("severity", string(event.Severity)),
		zap.Time("timestamp", event.Timestamp),
	}
	if event.Account != "" {
		fields = append(fields, zap.String("account", event.Account))
	}
	if event.DeviceID != "" {
		fields = append(fields, zap.String("device_id", event.DeviceID))
	}
	if event.UID != "" {
		fields = append(fields, zap.String("uid", event.UID))
	}
	if len(event.Details) > 0 {
		if detailsJSON, err := json.Marshal(event.Details); err == nil {
			fields = append(fields, zap.String("details", string(detailsJSON)))
		}
	}

	s.logger.Info("audit_event", fields...)
	metrics.AuditEventsWritten.WithLabelValues(s.Name()).Inc()
	return nil
}

func (s *LogSink) Close() error {
	return nil
}

func (s *LogSink) Name() string {
	return "log"
}

// WebhookSink posts audit events as JSON to an HTTP endpoint.
type WebhookSink struct {
	name       string
	url        string
	httpClient *http.Client
	headers    map[string]string
	logger     *zap.Logger
}

// WebhookSinkConfig configures a WebhookSink.
type WebhookSinkConfig struct {
	Name    string
	URL     string
	Headers map[string]string
	Timeout time.Duration
}

func NewWebhookSink(cfg WebhookSinkConfig, logger *zap.Logger) (*WebhookSink, error) {
	if cfg.URL == "" {
		return nil, errors.New("webhook url is required")
	}
	timeout := cfg.Timeout
	if timeout == 0 {
		timeout = 5 * time.Second
	}
	return &WebhookSink{
		name:       cfg.Name,
		url:        cfg.URL,
		httpClient: &http.Client{Timeout: timeout},
		headers:    cfg.Headers,
		logger:     logger.Named("webhook-sink"),
	}, nil
}

// Write sends the audit event to the webhook.
func (s *WebhookSink) Write(ctx context.Context, event *Event) error {
	if err := event.Validate(); err != nil {
		return err
	}
	body, err := json.Marshal(event)
	if err != nil {
		metrics.AuditEventsFailed.WithLabelValues(s.Name()).Inc()
		return fmt.Errorf("failed to marshal audit event: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodPost, s.url, bytes.NewReader(body))
	if err != nil {
		metrics.AuditEventsFailed.WithLabelValues(s.Name()).Inc()
		return fmt.Errorf("failed to create request: %w", err)
	}
	req.Header.Set("Content-Type", "application/json")
	for k, v := range s.headers {
		req.Header.Set(k, v)
	}

	resp, err := s.httpClient.Do(req)
	if err != nil {
		metrics.AuditEventsFailed.WithLabelValues(s.Name()).Inc()
		s.logger.Debug("webhook request failed",
			zap.String("url", s.url),
			zap.String("event_id", event.ID),
			zap.String("error", err.Error()))
		return fmt.Errorf("failed to send audit event to %s: %w", s.url, err)
	}
	defer func() { _ = resp.Body.Close() }()

	if resp.StatusCode >= 400 {
		metrics.AuditEventsFailed.WithLabelValues(s.Name()).Inc()
		return fmt.Errorf("webhook %s returned error status: %d", s.url, resp.StatusCode)
	}
	metrics.AuditEventsWritten.WithLabelValues(s.Name()).Inc()
	return nil
}

func (s *WebhookSink) Close() error {
	return nil
}

func (s *WebhookSink) Name() string {
	if s.name != "" {
		return s.name
	}
	return "webhook"
}

// MultiSink writes to multiple sinks in order. A failing sink does not stop
// the others.
type MultiSink struct {
	sinks  []Sink
	logger *zap.Logger
}

func NewMultiSink(sinks []Sink, logger *zap.Logger) *MultiSink {
	return &MultiSink{
		sinks:  sinks,
		logger: logger,
	}
}

// Write sends the event to all sinks and joins their errors.
func (s *MultiSink) Write(ctx context.Context, event *Event) error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Write(ctx, event); err != nil {
			// Use string representation to avoid noisy stacktraces for transient errors
			s.logger.Warn("audit sink write failed",
				zap.String("sink", sink.Name()),
				zap.String("error", err.Error()))
			errs = append(errs, fmt.Errorf("%s: %w", sink.Name(), err))
		}
	}
	return errors.Join(errs...)
}

func (s *MultiSink) Close() error {
	var errs []error
	for _, sink := range s.sinks {
		if err := sink.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}

func (s *MultiSink) Name() string {
	return "multi"
}
