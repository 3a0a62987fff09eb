// SPDX-FileCopyrightText: 2024 Deutsche Telekom AG
// SPDX-License-Identifier: Apache-2.0

package audit

import (
	"errors"
	"time"

	"github.com/google/uuid"
)

// EventType represents the type of audit event.
type EventType string

const (
	EventAuthenticated   EventType = "account.authenticated"
	EventDisconnected    EventType = "account.disconnected"
	EventDisplayNameSet  EventType = "account.display_name_set"
	EventKeyGenerated    EventType = "account.key_generated"
	EventCommandReceived EventType = "device.command_received"
)

// Severity indicates the importance of an audit event.
type Severity string

const (
	SeverityInfo    Severity = "info"
	SeverityWarning Severity = "warning"
)

// Event is one audit record.
type Event struct {
	ID        string    `json:"id"`
	Type      EventType `json:"type"`
	Severity  Severity  `json:"severity"`
	Timestamp time.Time `json:"timestamp"`
	// Account is the configured account name, DeviceID the device identity.
	Account  string         `json:"account,omitempty"`
	DeviceID string         `json:"device_id,omitempty"`
	UID      string         `json:"uid,omitempty"`
	Details  map[string]any `json:"details,omitempty"`
}

// NewEvent returns an event with a fresh ID and the current time.
func NewEvent(eventType EventType, details map[string]any) *Event {
	return &Event{
		ID:        uuid.NewString(),
		Type:      eventType,
		Severity:  SeverityInfo,
		Timestamp: time.Now().UTC(),
		Details:   details,
	}
}

func (e *Event) Validate() error {
	if e == nil {
		return errors.New("audit event is nil")
	}
	if e.ID == "" {
		return errors.New("audit event id is required")
	}
	if e.Type == "" {
		return errors.New("audit event type is required")
	}
	return nil
}
