//go:build linux

package rtlock

import "golang.org/x/sys/unix"

func lockAll() error {
	return unix.Mlockall(unix.MCL_CURRENT | unix.MCL_FUTURE)
}

func unlockAll() error {
	return unix.Munlockall()
}

func currentLimits() (Limits, error) {
	var l Limits
	var r unix.Rlimit
	if err := unix.Getrlimit(unix.RLIMIT_MEMLOCK, &r); err != nil {
		return l, err
	}
	l.MemlockBytes = limitValue(r.Cur)
	if err := unix.Getrlimit(unix.RLIMIT_RTPRIO, &r); err != nil {
		return l, err
	}
	l.RTPriority = limitValue(r.Cur)
	return l, nil
}

func limitValue(v uint64) uint64 {
	if v == unix.RLIM_INFINITY {
		return Unlimited
	}
	return v
}
