package notify

import (
	"sync"
	"time"

	"go.uber.org/zap"
)

// Permission is the tri-state platform alert permission.
type Permission string

const (
	PermissionDefault Permission = "default"
	PermissionGranted Permission = "granted"
	PermissionDenied  Permission = "denied"
)

// Alerter is the platform integration that surfaces alerts outside the app
// surface. Permission is queried at mount and updated after an explicit
// request; Alert is only called while permission is granted.
type Alerter interface {
	Permission() Permission
	RequestPermission() Permission
	Alert(title, body, tag string, dismissAfter time.Duration)
}

// LogAlerter is the headless Alerter: it records alerts through the logger.
// Permission starts in the platform-neutral default state and is granted on
// first request.
type LogAlerter struct {
	logger *zap.Logger

	mu         sync.Mutex
	permission Permission
}

// NewLogAlerter constructs a LogAlerter.
func NewLogAlerter(logger *zap.Logger) *LogAlerter {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &LogAlerter{logger: logger, permission: PermissionDefault}
}

// Permission returns the current permission state.
func (a *LogAlerter) Permission() Permission {
	a.mu.Lock()
	defer a.mu.Unlock()
	return a.permission
}

// RequestPermission grants permission unless it was already denied.
func (a *LogAlerter) RequestPermission() Permission {
	a.mu.Lock()
	defer a.mu.Unlock()
	if a.permission == PermissionDefault {
		a.permission = PermissionGranted
	}
	return a.permission
}

// Alert logs the alert. dismissAfter is recorded for parity with transient
// platform alerts that auto-close.
func (a *LogAlerter) Alert(title, body, tag string, dismissAfter time.Duration) {
	a.logger.Info("platform alert",
		zap.String("title", title),
		zap.String("body", body),
		zap.String("tag", tag),
		zap.Duration("dismiss_after", dismissAfter))
}
