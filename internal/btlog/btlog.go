// Package btlog owns logger construction for all tickvault subsystems.
// The root logger defaults to a no-op so library consumers stay silent
// unless they opt in.
package btlog

import (
	"sync"

	"go.uber.org/zap"
)

var (
	mu   sync.RWMutex
	root = zap.NewNop()
)

// SetRoot replaces the root logger for the process. Passing nil restores
// the no-op default.
func SetRoot(l *zap.Logger) {
	mu.Lock()
	defer mu.Unlock()
	if l == nil {
		l = zap.NewNop()
	}
	root = l
}

// Sub returns a named child of the root logger, one per subsystem.
func Sub(name string) *zap.Logger {
	mu.RLock()
	defer mu.RUnlock()
	return root.Named(name)
}
