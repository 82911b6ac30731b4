package metrics

import "time"

const (
	// Namespace prefixes every playrec metric.
	Namespace = "playrec"

	// ShutdownTimeout is the timeout for graceful shutdown of the metrics server.
	ShutdownTimeout = 5 * time.Second
)
