package observability

import "github.com/tphakala/playrec/internal/logger"

// GetLogger returns the observability module logger. It is resolved on each call so
// that a logger installed after package init is honoured.
func GetLogger() logger.Logger {
	return logger.Global().Module("metrics")
}
