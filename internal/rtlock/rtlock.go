// Package rtlock prepares the process for realtime audio by locking memory and
// reporting the resource limits that govern realtime scheduling.
package rtlock

import (
	"strconv"

	"github.com/tphakala/playrec/internal/errors"
	"github.com/tphakala/playrec/internal/logger"
)

// ErrUnsupported is returned on platforms without memory locking.
var ErrUnsupported = errors.NewStd("memory locking not supported on this platform")

// Unlimited marks a resource limit without a ceiling.
const Unlimited = ^uint64(0)

// Limits are the soft resource limits relevant to realtime audio.
type Limits struct {
	MemlockBytes uint64 // RLIMIT_MEMLOCK
	RTPriority   uint64 // RLIMIT_RTPRIO, zero where the platform has no such limit
}

// Fields returns the limits as log fields.
func (l Limits) Fields() []logger.Field {
	return []logger.Field{
		logger.String("memlock", formatLimit(l.MemlockBytes)),
		logger.String("rtprio", formatLimit(l.RTPriority)),
	}
}

// Lock locks current and future pages of the process into RAM so the audio callback
// never waits on a page fault. The returned function undoes the lock.
func Lock() (unlock func() error, err error) {
	if err := lockAll(); err != nil {
		limits, _ := CurrentLimits()
		return nil, errors.New(err).
			Component("rtlock").
			Category(errors.CategorySystem).
			Context("operation", "mlockall").
			Context("memlock_limit", formatLimit(limits.MemlockBytes)).
			Build()
	}
	return unlockAll, nil
}

// CurrentLimits reads the process resource limits.
func CurrentLimits() (Limits, error) {
	return currentLimits()
}

// LockAndReport locks memory when enabled and logs the outcome and the limits. Failure
// to lock is logged as a warning and is not fatal; the returned function is always safe
// to call.
func LockAndReport(enabled bool, log logger.Logger) func() {
	limits, err := CurrentLimits()
	if err == nil {
		log.Debug("realtime resource limits", limits.Fields()...)
	}
	if !enabled {
		return func() {}
	}
	unlock, err := Lock()
	if err != nil {
		log.Warn("could not lock memory, page faults may cause xruns", logger.Error(err))
		return func() {}
	}
	log.Info("process memory locked")
	return func() {
		if err := unlock(); err != nil {
			log.Warn("failed to unlock memory", logger.Error(err))
		}
	}
}

func formatLimit(v uint64) string {
	if v == Unlimited {
		return "unlimited"
	}
	return strconv.FormatUint(v, 10)
}
