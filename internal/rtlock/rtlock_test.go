package rtlock

import (
	"io"
	"runtime"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tphakala/playrec/internal/logger"
)

func TestFormatLimit(t *testing.T) {
	t.Parallel()

	assert.Equal(t, "unlimited", formatLimit(Unlimited))
	assert.Equal(t, "65536", formatLimit(65536))
}

func TestCurrentLimits(t *testing.T) {
	t.Parallel()

	limits, err := CurrentLimits()
	if runtime.GOOS != "linux" {
		assert.ErrorIs(t, err, ErrUnsupported)
		return
	}
	require.NoError(t, err)
	assert.Len(t, limits.Fields(), 2)
}

func TestLockAndReportDisabled(t *testing.T) {
	t.Parallel()

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)
	unlock := LockAndReport(false, log)
	require.NotNil(t, unlock)
	unlock()
}

// Locking may be refused in unprivileged environments; either outcome must leave a
// callable release function.
func TestLockAndReportEnabled(t *testing.T) {
	t.Parallel()

	log := logger.NewSlogLogger(io.Discard, logger.LogLevelDebug, nil)
	unlock := LockAndReport(true, log)
	require.NotNil(t, unlock)
	unlock()
}
