package record

import (
	"fmt"
	"time"
)

// durationFlag is a pflag.Value that rejects negative durations.
type durationFlag struct {
	value time.Duration
}

func (d *durationFlag) String() string {
	if d.value == 0 {
		return ""
	}
	return d.value.String()
}

func (d *durationFlag) Set(s string) error {
	v, err := time.ParseDuration(s)
	if err != nil {
		return err
	}
	if v < 0 {
		return fmt.Errorf("duration must not be negative: %s", s)
	}
	d.value = v
	return nil
}

func (d *durationFlag) Type() string { return "duration" }
