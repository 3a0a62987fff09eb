// SPDX-FileCopyrightText: 2025 Deutsche Telekom AG
//
// SPDX-License-Identifier: Apache-2.0

package system

import (
	"time"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// NewLogger builds the process logger. verbose selects the development
// configuration with debug level; otherwise production JSON at info level.
func NewLogger(verbose bool) (*zap.Logger, error) {
	cfg := zap.NewProductionConfig()
	if verbose {
		cfg = zap.NewDevelopmentConfig()
	}
	// Disable automatic stacktraces for non-fatal levels to avoid noisy traces in WARN/INFO logs
	cfg.DisableStacktrace = true
	cfg.EncoderConfig.EncodeTime = func(t time.Time, enc zapcore.PrimitiveArrayEncoder) {
		enc.AppendString(t.UTC().Format(time.RFC3339))
	}
	cfg.EncoderConfig.TimeKey = "ts"
	// CLI output goes to stdout; keep logs off it.
	cfg.OutputPaths = []string{"stderr"}
	return cfg.Build()
}

// AccountFields returns key/value pairs identifying an account and device for
// SugaredLogger.With or Infow calls. Empty values are omitted.
func AccountFields(account, deviceID string) []interface{} {
	fields := []interface{}{}
	if account != "" {
		fields = append(fields, "account", account)
	}
	if deviceID != "" {
		fields = append(fields, "deviceId", deviceID)
	}
	return fields
}
