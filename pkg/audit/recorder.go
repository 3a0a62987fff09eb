// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"context"
	"time"

	"go.uber.org/zap"
)

// DefaultWriteTimeout bounds a single Record call.
const DefaultWriteTimeout = 5 * time.Second

// Recorder stamps events with the account and device they belong to and
// hands them to a Sink. Audit is best effort: sink failures are logged and
// never fail the caller's operation. A nil *Recorder discards everything.
type Recorder struct {
	sink     Sink
	account  string
	deviceID string
	timeout  time.Duration
	logger   *zap.Logger
}

func NewRecorder(sink Sink, account string, logger *zap.Logger) *Recorder {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Recorder{
		sink:    sink,
		account: account,
		timeout: DefaultWriteTimeout,
		logger:  logger,
	}
}

// SetDeviceID updates the device identity attached to later events.
func (r *Recorder) SetDeviceID(deviceID string) {
	if r != nil {
		r.deviceID = deviceID
	}
}

// Record writes one event and returns it, or nil if nothing was written.
func (r *Recorder) Record(ctx context.Context, eventType EventType, uid string, details map[string]any) *Event {
	if r == nil || r.sink == nil {
		return nil
	}
	event := NewEvent(eventType, details)
	event.Account = r.account
	event.DeviceID = r.deviceID
	event.UID = uid
	if eventType == EventDisconnected {
		event.Severity = SeverityWarning
	}

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()
	if err := r.sink.Write(ctx, event); err != nil {
		r.logger.Warn("failed to record audit event",
			zap.String("event_type", string(eventType)),
			zap.String("sink", r.sink.Name()),
			zap.String("error", err.Error()))
		return nil
	}
	return event
}

// Close closes the underlying sink.
func (r *Recorder) Close() error {
	if r == nil || r.sink == nil {
		return nil
	}
	return r.sink.Close()
}
