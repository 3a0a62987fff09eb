// Package metrics defines Prometheus metrics for the account client, covering
// authorization flows, state persistence, and device command polling.
package metrics
