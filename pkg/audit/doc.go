// Package audit records account lifecycle events (sign-in, sign-out, device
// renames, key generation, received device commands) and forwards them to
// configurable sinks: the process log, a webhook, or a Kafka topic.
package audit
