package stream

import (
	"context"
	"time"

	"github.com/tphakala/playrec/internal/logger"
)

// monitor reports xruns counted by the realtime callback, which cannot log itself.
// Deltas are logged once per interval and only when something happened. last is the
// snapshot taken before the engine was activated.
func (s *Session) monitor(ctx context.Context, interval time.Duration, last Stats) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		cur := s.Stats()
		under := cur.Underflows - last.Underflows
		over := cur.Overflows - last.Overflows
		last = cur
		if under == 0 && over == 0 {
			continue
		}

		s.log.Warn("xruns detected",
			logger.Uint64("underflows", under),
			logger.Uint64("overflows", over),
			logger.Uint64("underflows_total", cur.Underflows),
			logger.Uint64("overflows_total", cur.Overflows),
			logger.Int("ring_fill", cur.RingFill),
			logger.Duration("interval", interval))
		if s.xrunHook != nil {
			s.xrunHook(cur)
		}
	}
}
