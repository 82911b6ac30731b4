//go:build !linux

package rtlock

func lockAll() error { return ErrUnsupported }

func unlockAll() error { return nil }

func currentLimits() (Limits, error) { return Limits{}, ErrUnsupported }
